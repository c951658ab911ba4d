package model

import "time"

// Brief is a generated daily executive summary.
type Brief struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
