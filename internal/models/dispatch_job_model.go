package models

import (
	"fmt"
	"time"
)

type Platform string

const (
	PlatformYoutube   Platform = "youtube"
	PlatformTiktok    Platform = "tiktok"
	PlatformInstagram Platform = "instagram"
)

// Platforms lists every destination the dispatcher knows about.
var Platforms = []Platform{PlatformYoutube, PlatformTiktok, PlatformInstagram}

func ParsePlatform(s string) (Platform, error) {
	for _, p := range Platforms {
		if string(p) == s {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown platform %q", s)
}

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

type DispatchJob struct {
	ID            string     `db:"id" json:"id"`
	ContentItemID string     `db:"content_item_id" json:"content_item_id"`
	Platform      Platform   `db:"platform" json:"platform"`
	Status        JobStatus  `db:"status" json:"status"`
	Attempts      int        `db:"attempts" json:"attempts"`
	NextAttemptAt *time.Time `db:"next_attempt_at" json:"next_attempt_at,omitempty"`
	LastError     *string    `db:"last_error" json:"last_error,omitempty"`
	CompletedAt   *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// Candidate is a dispatch job joined with its content item. Content is nil
// when the item was deleted upstream.
type Candidate struct {
	Job     *DispatchJob
	Content *ContentItem
}
