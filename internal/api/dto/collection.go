package dto

import "time"

type CollectionUpsert struct {
	Slug          string `json:"slug"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	DefaultLocale string `json:"default_locale"`
	Listed        *bool  `json:"listed,omitempty"`
}

type CollectionInfo struct {
	Id            uint64    `json:"id"`
	Slug          string    `json:"slug"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	DefaultLocale string    `json:"default_locale"`
	Listed        bool      `json:"listed"`
	Deleted       bool      `json:"deleted"`
	AuthorEmail   string    `json:"author_email,omitempty"`
	AddonCount    int       `json:"addon_count"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type CollectionPage struct {
	Collections []CollectionInfo `json:"collections"`
	Total       int64            `json:"total"`
	Page        int              `json:"page"`
	PageSize    int              `json:"page_size"`
}

type CollectionAddonUpsert struct {
	AddonID  uint64 `json:"addon_id"`
	Ordering int    `json:"ordering"`
}
