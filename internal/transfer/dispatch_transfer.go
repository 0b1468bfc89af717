package transfer

import "time"

type DispatchSummary struct {
	Platform  string `json:"platform"`
	OwnerID   string `json:"owner_id,omitempty"`
	Processed int    `json:"processed"`
	Succeeded int    `json:"succeeded"`
	Deferred  int    `json:"deferred"`
	Failed    int    `json:"failed"`
	Retried   int    `json:"retried"`
	Skipped   int    `json:"skipped"`
}

type ReconcileSummary struct {
	Completed int64 `json:"completed"`
	Reset     int64 `json:"reset"`
}

type EnqueueJobsRequest struct {
	ContentItemID string   `json:"content_item_id"`
	Platforms     []string `json:"platforms"`
}

type EnqueueJobsResponse struct {
	Created []*DispatchJobInfo `json:"created"`
	Existed []string           `json:"existed"`
}

type DispatchJobInfo struct {
	ID            string     `json:"id"`
	ContentItemID string     `json:"content_item_id"`
	Platform      string     `json:"platform"`
	Status        string     `json:"status"`
	Attempts      int        `json:"attempts"`
	NextAttemptAt *time.Time `json:"next_attempt_at,omitempty"`
	LastError     *string    `json:"last_error,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

type PlatformQuota struct {
	DailyCap       int `json:"daily_cap"`
	PublishedToday int `json:"published_today"`
}

// OwnerLimits is an owner's resolved tier limits next to today's ledger usage.
type OwnerLimits struct {
	OwnerID             string                   `json:"owner_id"`
	Tier                string                   `json:"tier"`
	ScoreThreshold      float64                  `json:"score_threshold"`
	UniqueContentPerDay int                      `json:"unique_content_per_day"`
	UniqueContentToday  int                      `json:"unique_content_today"`
	WindowStart         time.Time                `json:"window_start"`
	Platforms           map[string]PlatformQuota `json:"platforms"`
}

type UpdateSettingsRequest struct {
	ScoreThreshold *float64 `json:"score_threshold"`
}
