package domain

import "time"

// Collection is a curated list of add-ons. Deletion is soft: the row is kept
// with Deleted set so it can be restored, and the slug is preserved.
type Collection struct {
	ID            uint64 `gorm:"primaryKey;autoIncrement"`
	Slug          string `gorm:"index;not null;size:255"`
	Name          string `gorm:"size:255;not null;default:''"`
	Description   string `gorm:"type:text;not null;default:''"`
	DefaultLocale string `gorm:"size:10;not null;default:'en-US'"`
	Listed        bool   `gorm:"not null;default:true"`
	Deleted       bool   `gorm:"not null;default:false;index"`

	AuthorID *uint `gorm:"index"`
	Author   *User `gorm:"foreignKey:AuthorID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL;"`

	Addons    []CollectionAddon `gorm:"foreignKey:CollectionID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	CreatedAt time.Time         `gorm:"autoCreateTime"`
	UpdatedAt time.Time         `gorm:"autoUpdateTime"`
}

// CollectionAddon is the ordered membership of an add-on in a collection.
type CollectionAddon struct {
	ID           uint64 `gorm:"primaryKey;autoIncrement"`
	CollectionID uint64 `gorm:"not null;uniqueIndex:idx_collection_addon,priority:1"`
	AddonID      uint64 `gorm:"not null;uniqueIndex:idx_collection_addon,priority:2"`
	Ordering     int    `gorm:"not null;default:0"`

	Collection Collection `gorm:"foreignKey:CollectionID" json:"-"`
	Addon      Addon      `gorm:"foreignKey:AddonID"`
}
