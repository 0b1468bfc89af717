package models

import "time"

type PublishRecord struct {
	ContentItemID string    `db:"content_item_id" json:"content_item_id"`
	OwnerID       string    `db:"owner_id" json:"owner_id"`
	Platform      Platform  `db:"platform" json:"platform"`
	RemotePostID  string    `db:"remote_post_id" json:"remote_post_id"`
	RemoteURL     string    `db:"remote_url" json:"remote_url"`
	PublishedAt   time.Time `db:"published_at" json:"published_at"`
}
