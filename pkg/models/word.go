package models

import "time"

// Word is a spelling word belonging to a parent-managed list.
type Word struct {
	ID        string    `json:"id" db:"id"`
	ListID    string    `json:"list_id" db:"list_id"`
	Text      string    `json:"text" db:"text"`
	Position  int       `json:"position" db:"position"` // Order within the list
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
