package service

import "github.com/maheshrc27/clipcast/internal/models"

type Decision int

const (
	Allow Decision = iota
	DeferScore
	DeferQuota
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case DeferScore:
		return "defer_score"
	case DeferQuota:
		return "defer_quota"
	default:
		return "unknown"
	}
}

// Usage is today's publishing activity for one owner: the distinct content
// ids published on any platform, and the number of publishes on the
// platform being dispatched.
type Usage struct {
	ContentIDs        map[string]struct{}
	PlatformPublished int
}

func NewUsage() Usage {
	return Usage{ContentIDs: map[string]struct{}{}}
}

func (u *Usage) Add(contentItemID string) {
	if u.ContentIDs == nil {
		u.ContentIDs = map[string]struct{}{}
	}
	u.ContentIDs[contentItemID] = struct{}{}
	u.PlatformPublished++
}

// Admit applies the score, unique-content and platform-cap gates in that
// order. It has no side effects.
func Admit(content *models.ContentItem, platform models.Platform, limits *TierLimits, ledger, inRun Usage) Decision {
	if content.Score < limits.MinScore() {
		return DeferScore
	}

	if _, seen := ledger.ContentIDs[content.ID]; !seen {
		if _, seen = inRun.ContentIDs[content.ID]; !seen {
			unique := len(ledger.ContentIDs)
			for id := range inRun.ContentIDs {
				if _, dup := ledger.ContentIDs[id]; !dup {
					unique++
				}
			}
			if unique >= limits.UniqueContentPerDay {
				return DeferQuota
			}
		}
	}

	if ledger.PlatformPublished+inRun.PlatformPublished >= limits.DailyCap(platform) {
		return DeferQuota
	}

	return Allow
}
