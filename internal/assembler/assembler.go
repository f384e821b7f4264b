package assembler

import (
	"strings"

	"coursepilot/internal/model"
	"coursepilot/internal/repository"
)

const chunkSeparator = "\n\n"

// Assembler concatenates the chunks of completed documents into one bounded
// context block for prompt construction. Truncation already happened at
// extraction time, so none is applied here.
type Assembler struct {
	docRepo   *repository.DocumentRepository
	chunkRepo *repository.ChunkRepository
}

func New(docRepo *repository.DocumentRepository, chunkRepo *repository.ChunkRepository) *Assembler {
	return &Assembler{docRepo: docRepo, chunkRepo: chunkRepo}
}

// Assemble builds the context text for the caller's COMPLETED documents
// among the requested ids. Documents that are missing, not the caller's, or
// still processing contribute nothing; that is silent exclusion, not an
// error. Each included document is delimited by a labeled header so the
// model can attribute claims to sources.
func (a *Assembler) Assemble(documentIDs []uint, userID uint) (string, []model.Document, error) {
	if len(documentIDs) == 0 {
		return "", nil, nil
	}

	docs, err := a.docRepo.ListByIDsAndUserID(documentIDs, userID)
	if err != nil {
		return "", nil, err
	}

	var included []model.Document
	var sections []string
	for _, doc := range docs {
		if doc.Status != model.DocumentStatusCompleted {
			continue
		}
		chunks, err := a.chunkRepo.ListByDocumentID(doc.ID)
		if err != nil {
			return "", nil, err
		}
		if len(chunks) == 0 {
			continue
		}

		parts := make([]string, 0, len(chunks))
		for _, ch := range chunks {
			parts = append(parts, ch.Content)
		}
		sections = append(sections, "=== "+doc.Filename+" ===\n\n"+strings.Join(parts, chunkSeparator))
		included = append(included, doc)
	}

	return strings.Join(sections, "\n\n"), included, nil
}
