package domain

import "time"

// Block is a blocklist entry keyed by add-on guid.
type Block struct {
	ID     uint64 `gorm:"primaryKey;autoIncrement"`
	GUID   string `gorm:"uniqueIndex;not null;size:255"`
	URL    string `gorm:"size:255;not null;default:''"`
	Reason string `gorm:"type:text;not null;default:''"`

	MinVersion string `gorm:"size:255;not null;default:'0'"`
	MaxVersion string `gorm:"size:255;not null;default:'*'"`

	UpdatedByID *uint `gorm:"index"`
	UpdatedBy   *User `gorm:"foreignKey:UpdatedByID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL;"`

	AverageDailyUsersSnapshot *int64 `gorm:""`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}
