package models

type UserTierConfig struct {
	TierName            string           `db:"tier_name" json:"tier_name"`
	UniqueContentPerDay int              `db:"unique_content_per_day" json:"unique_content_per_day"`
	PlatformDailyCap    map[Platform]int `db:"platform_caps" json:"platform_caps"`
}

const (
	TierStarter = "starter"
	TierCreator = "creator"
	TierStudio  = "studio"
)
