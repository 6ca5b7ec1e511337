package domain

import "time"

type Addon struct {
	ID   uint64 `gorm:"primaryKey;autoIncrement"`
	GUID string `gorm:"uniqueIndex;not null;size:255"`
	Name string `gorm:"not null;size:255"`
	Slug string `gorm:"uniqueIndex;not null;size:255"`

	AverageDailyUsers int64 `gorm:"not null;default:0"`

	CollectionAddons []CollectionAddon `gorm:"foreignKey:AddonID"`
	CreatedAt        time.Time         `gorm:"autoCreateTime"`
}
