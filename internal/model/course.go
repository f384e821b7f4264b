package model

import "time"

// Course carries the per-course assistant configuration read by the chat
// pipeline. Course CRUD itself lives outside this service; rows are only
// read here.
type Course struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	Name             string    `gorm:"size:256;not null" json:"name"`
	AssistantPersona string    `gorm:"type:text" json:"assistant_persona,omitempty"`
	AssistantModel   string    `gorm:"size:128" json:"assistant_model,omitempty"`
	Temperature      float64   `json:"temperature,omitempty"`
	ReasoningEffort  string    `gorm:"size:32" json:"reasoning_effort,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}
