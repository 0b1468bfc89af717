package models

import "time"

type ContentItem struct {
	ID        string    `db:"id" json:"id"`
	OwnerID   string    `db:"owner_id" json:"owner_id"`
	Score     float64   `db:"score" json:"score"`
	Title     string    `db:"title" json:"title"`
	Caption   string    `db:"caption" json:"caption"`
	MediaKey  string    `db:"media_key" json:"media_key"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
