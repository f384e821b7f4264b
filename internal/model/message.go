package model

import (
	"encoding/json"
	"time"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

type Message struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	SessionID   uint      `gorm:"not null;index" json:"session_id"`
	UserID      uint      `gorm:"not null;index" json:"user_id"`
	Role        string    `gorm:"size:16;not null;index" json:"role"`
	Content     string    `gorm:"type:text;not null" json:"content"`
	TokenCount  int       `json:"token_count,omitempty"`
	DocumentIDs string    `gorm:"type:text" json:"-"` // JSON array of uint
	Error       string    `gorm:"type:text" json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// DocumentIDList returns the parsed referenced document ids; nil on parse error.
func (m *Message) DocumentIDList() []uint {
	if m.DocumentIDs == "" {
		return nil
	}
	var ids []uint
	_ = json.Unmarshal([]byte(m.DocumentIDs), &ids)
	return ids
}

// SetDocumentIDs stores the referenced document ids as JSON.
func (m *Message) SetDocumentIDs(ids []uint) {
	if len(ids) == 0 {
		m.DocumentIDs = "[]"
		return
	}
	b, _ := json.Marshal(ids)
	m.DocumentIDs = string(b)
}
