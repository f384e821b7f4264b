package model

import (
	"encoding/json"
	"time"
)

// DocumentChunk is one retrievable segment of a document's extracted text.
// ChunkIndex is 0-based and contiguous per document; it defines retrieval
// and reconstruction order.
type DocumentChunk struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	DocumentID uint      `gorm:"not null;index" json:"document_id"`
	ChunkIndex int       `gorm:"not null" json:"chunk_index"`
	Content    string    `gorm:"type:text;not null" json:"content"`
	Metadata   string    `gorm:"type:text" json:"-"` // JSON object
	CreatedAt  time.Time `json:"created_at"`
}

// MetadataMap returns the parsed metadata object; empty map on parse error.
func (c *DocumentChunk) MetadataMap() map[string]any {
	m := map[string]any{}
	if c.Metadata != "" {
		_ = json.Unmarshal([]byte(c.Metadata), &m)
	}
	return m
}

// SetMetadata stores the metadata object as JSON.
func (c *DocumentChunk) SetMetadata(m map[string]any) {
	if len(m) == 0 {
		c.Metadata = "{}"
		return
	}
	b, _ := json.Marshal(m)
	c.Metadata = string(b)
}
