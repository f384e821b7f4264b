package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"coursepilot/internal/ai"
	"coursepilot/internal/chunker"
	"coursepilot/internal/model"
	"coursepilot/internal/parser"
	"coursepilot/internal/repository"
	"coursepilot/internal/storage"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrUnsupportedType  = errors.New("unsupported file type")
	ErrOversizeInput    = errors.New("file exceeds size limit")
	ErrDocumentNotFound = errors.New("document not found")
	ErrNotReprocessable = errors.New("only failed documents can be reprocessed")
	ErrPublishIngestJob = errors.New("ingest job enqueue failed")
)

// Job is the payload carried on the ingest queue. The document's status
// field is the only externally observable progress signal.
type Job struct {
	DocumentID uint `json:"document_id"`
}

type JobPublisher interface {
	Publish(ctx context.Context, job Job) error
}

type Options struct {
	MaxUploadBytes int64
	ParserOptions  parser.Options
}

// Orchestrator drives documents through
// PENDING -> PROCESSING -> COMPLETED/FAILED. Upload validation runs
// synchronously; parse and chunk run off the request path via the job queue.
type Orchestrator struct {
	docRepo   *repository.DocumentRepository
	chunkRepo *repository.ChunkRepository
	store     storage.Store
	parser    *parser.Parser
	jobs      JobPublisher
	opts      Options
}

func NewOrchestrator(
	docRepo *repository.DocumentRepository,
	chunkRepo *repository.ChunkRepository,
	store storage.Store,
	p *parser.Parser,
	jobs JobPublisher,
	opts Options,
) *Orchestrator {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 10 << 20
	}
	return &Orchestrator{
		docRepo:   docRepo,
		chunkRepo: chunkRepo,
		store:     store,
		parser:    p,
		jobs:      jobs,
		opts:      opts,
	}
}

type UploadInput struct {
	UserID   uint
	CourseID uint
	Filename string
	MimeType string
	Data     []byte
}

// Upload validates the file, commits the bytes to storage, creates the
// PENDING document record, and enqueues the processing job. It returns
// before any parsing happens.
func (o *Orchestrator) Upload(ctx context.Context, input UploadInput) (*model.Document, error) {
	if input.UserID == 0 || input.CourseID == 0 || len(input.Data) == 0 {
		return nil, ErrInvalidInput
	}
	if int64(len(input.Data)) > o.opts.MaxUploadBytes {
		return nil, ErrOversizeInput
	}
	if !parser.Supported(input.MimeType) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, input.MimeType)
	}

	filename := strings.TrimSpace(input.Filename)
	if filename == "" {
		filename = "untitled"
	}

	location, err := o.store.Save(ctx, filepath.Ext(filename), input.Data)
	if err != nil {
		return nil, err
	}

	doc := &model.Document{
		CourseID:        input.CourseID,
		UserID:          input.UserID,
		Filename:        filename,
		MimeType:        input.MimeType,
		SizeBytes:       int64(len(input.Data)),
		StorageLocation: location,
		Status:          model.DocumentStatusPending,
	}
	if err := o.docRepo.Create(doc); err != nil {
		return nil, err
	}

	if err := o.jobs.Publish(ctx, Job{DocumentID: doc.ID}); err != nil {
		// The record stays PENDING; a reprocess with force can recover it.
		log.Printf("publish ingest job for document %d failed: %v", doc.ID, err)
		return nil, ErrPublishIngestJob
	}
	return doc, nil
}

// Process runs the full parse+chunk pipeline for one document. Failures are
// recorded on the document, never returned to an unrelated caller; the
// returned error only signals infrastructure problems to the worker.
func (o *Orchestrator) Process(ctx context.Context, documentID uint) error {
	doc, err := o.docRepo.GetByID(documentID)
	if err != nil {
		return err
	}
	if doc == nil {
		return fmt.Errorf("%w: id=%d", ErrDocumentNotFound, documentID)
	}

	if err := o.docRepo.UpdateStatus(doc.ID, model.DocumentStatusProcessing); err != nil {
		return err
	}

	data, err := o.store.Load(ctx, doc.StorageLocation)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			// Stored bytes vanished mid-pipeline; treat like unreadable input.
			return o.fail(doc.ID, fmt.Errorf("%w: stored bytes missing", parser.ErrCorruptInput))
		}
		return err
	}

	result, err := o.parser.Parse(ctx, data, doc.MimeType, o.opts.ParserOptions)
	if err != nil {
		return o.fail(doc.ID, err)
	}

	chunks := chunker.Split(result.Text, chunker.Options{})

	docMeta := result.Metadata
	chunkModels := make([]model.DocumentChunk, len(chunks))
	for i, ch := range chunks {
		meta := map[string]any{}
		for k, v := range docMeta {
			meta[k] = v
		}
		meta["start_offset"] = ch.Start
		meta["end_offset"] = ch.End
		chunkModels[i] = model.DocumentChunk{
			DocumentID: doc.ID,
			ChunkIndex: ch.Index,
			Content:    ch.Content,
		}
		chunkModels[i].SetMetadata(meta)
	}

	aggregate := map[string]any{}
	for k, v := range docMeta {
		aggregate[k] = v
	}
	addChunkStats(aggregate, chunks)

	doc.ExtractedText = result.Text
	doc.SetMetadata(aggregate)
	return o.docRepo.CompleteWithChunks(doc, chunkModels)
}

func (o *Orchestrator) fail(documentID uint, cause error) error {
	if err := o.docRepo.MarkFailed(documentID, cause.Error()); err != nil {
		return err
	}
	return nil
}

func addChunkStats(metadata map[string]any, chunks []chunker.Chunk) {
	metadata["chunk_count"] = len(chunks)
	if len(chunks) == 0 {
		return
	}
	minLen, maxLen, total := len(chunks[0].Content), len(chunks[0].Content), 0
	tokens := 0
	for _, ch := range chunks {
		l := len(ch.Content)
		total += l
		if l < minLen {
			minLen = l
		}
		if l > maxLen {
			maxLen = l
		}
		tokens += ai.EstimateTokens(ch.Content)
	}
	metadata["chunk_min_length"] = minLen
	metadata["chunk_max_length"] = maxLen
	metadata["chunk_avg_length"] = total / len(chunks)
	metadata["estimated_tokens"] = tokens
}

// Reprocess re-runs the pipeline from the original stored bytes. Allowed
// only from FAILED state unless force is set; a read never triggers it.
func (o *Orchestrator) Reprocess(ctx context.Context, userID, documentID uint, force bool) (*model.Document, error) {
	doc, err := o.docRepo.GetByIDAndUserID(documentID, userID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, ErrDocumentNotFound
	}
	if doc.Status != model.DocumentStatusFailed && !force {
		return nil, ErrNotReprocessable
	}

	if err := o.docRepo.UpdateStatus(doc.ID, model.DocumentStatusPending); err != nil {
		return nil, err
	}
	if err := o.jobs.Publish(ctx, Job{DocumentID: doc.ID}); err != nil {
		log.Printf("publish reprocess job for document %d failed: %v", doc.ID, err)
		return nil, ErrPublishIngestJob
	}
	doc.Status = model.DocumentStatusPending
	return doc, nil
}

// Get returns the caller's document for status polling.
func (o *Orchestrator) Get(userID, documentID uint) (*model.Document, error) {
	doc, err := o.docRepo.GetByIDAndUserID(documentID, userID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, ErrDocumentNotFound
	}
	return doc, nil
}

// List returns the caller's documents; courseID 0 means all courses.
func (o *Orchestrator) List(userID, courseID uint) ([]model.Document, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}
	return o.docRepo.ListByUserID(userID, courseID)
}

// Delete removes the document and chunks; storage cleanup is best-effort.
func (o *Orchestrator) Delete(ctx context.Context, userID, documentID uint) error {
	doc, err := o.docRepo.GetByIDAndUserID(documentID, userID)
	if err != nil {
		return err
	}
	if doc == nil {
		return ErrDocumentNotFound
	}
	if err := o.docRepo.Delete(doc.ID, userID); err != nil {
		return err
	}
	if err := o.store.Delete(ctx, doc.StorageLocation); err != nil {
		log.Printf("delete stored bytes for document %d failed: %v", doc.ID, err)
	}
	return nil
}
