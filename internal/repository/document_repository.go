package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"coursepilot/internal/model"
)

type DocumentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) Create(doc *model.Document) error {
	if err := r.db.Create(doc).Error; err != nil {
		return fmt.Errorf("create document failed: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(id uint) (*model.Document, error) {
	var doc model.Document
	if err := r.db.First(&doc, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get document failed: %w", err)
	}
	return &doc, nil
}

func (r *DocumentRepository) GetByIDAndUserID(id, userID uint) (*model.Document, error) {
	var doc model.Document
	if err := r.db.Where("id = ? AND user_id = ?", id, userID).First(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get document failed: %w", err)
	}
	return &doc, nil
}

// ListByIDsAndUserID returns the caller's documents among the given ids.
func (r *DocumentRepository) ListByIDsAndUserID(ids []uint, userID uint) ([]model.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var docs []model.Document
	if err := r.db.Where("id IN ? AND user_id = ?", ids, userID).Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("list documents by ids failed: %w", err)
	}
	return docs, nil
}

// ListByUserID lists the user's documents; courseID 0 means all courses.
func (r *DocumentRepository) ListByUserID(userID, courseID uint) ([]model.Document, error) {
	q := r.db.Where("user_id = ?", userID)
	if courseID != 0 {
		q = q.Where("course_id = ?", courseID)
	}
	var docs []model.Document
	if err := q.Order("created_at DESC").Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("list documents failed: %w", err)
	}
	return docs, nil
}

func (r *DocumentRepository) UpdateStatus(id uint, status string) error {
	if err := r.db.Model(&model.Document{}).Where("id = ?", id).Update("status", status).Error; err != nil {
		return fmt.Errorf("update document status failed: %w", err)
	}
	return nil
}

// MarkFailed records the failure on the document. Any previously committed
// chunk set is left untouched.
func (r *DocumentRepository) MarkFailed(id uint, message string) error {
	updates := map[string]any{
		"status":        model.DocumentStatusFailed,
		"error_message": message,
	}
	if err := r.db.Model(&model.Document{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return fmt.Errorf("mark document failed failed: %w", err)
	}
	return nil
}

// CompleteWithChunks atomically replaces the document's chunk set and marks
// it COMPLETED. Delete-then-insert inside one transaction, so readers never
// observe both an old and a new full set.
func (r *DocumentRepository) CompleteWithChunks(doc *model.Document, chunks []model.DocumentChunk) error {
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", doc.ID).Delete(&model.DocumentChunk{}).Error; err != nil {
			return err
		}
		if len(chunks) > 0 {
			if err := tx.Create(&chunks).Error; err != nil {
				return err
			}
		}
		updates := map[string]any{
			"status":         model.DocumentStatusCompleted,
			"extracted_text": doc.ExtractedText,
			"metadata":       doc.Metadata,
			"error_message":  "",
		}
		return tx.Model(&model.Document{}).Where("id = ?", doc.ID).Updates(updates).Error
	})
	if err != nil {
		return fmt.Errorf("complete document with chunks failed: %w", err)
	}
	return nil
}

// Delete removes the document and its chunks.
func (r *DocumentRepository) Delete(id, userID uint) error {
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", id).Delete(&model.DocumentChunk{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ? AND user_id = ?", id, userID).Delete(&model.Document{}).Error
	})
	if err != nil {
		return fmt.Errorf("delete document failed: %w", err)
	}
	return nil
}
