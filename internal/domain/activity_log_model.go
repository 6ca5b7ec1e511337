package domain

import (
	"net/netip"
	"time"
)

// Activity log action codes. Stable values, referenced by admin list
// configurations to scope IP searches to relevant events.
const (
	ActionLogin               = 1
	ActionCollectionCreated   = 10
	ActionCollectionEdited    = 11
	ActionCollectionDeleted   = 12
	ActionCollectionUndeleted = 13
	ActionReportSubmitted     = 20
	ActionReportResolved      = 21
	ActionReportAppealed      = 22
	ActionBlockAdded          = 30
	ActionBlockEdited         = 31
	ActionBlockDeleted        = 32
)

// ActivityLog records an admin or user action against a target entity.
type ActivityLog struct {
	ID     uint64 `gorm:"primaryKey;autoIncrement"`
	Action int    `gorm:"not null;index"`

	UserID *uint `gorm:"index"`
	User   *User `gorm:"foreignKey:UserID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL;"`

	// TargetType/TargetID identify the entity acted on ("collection",
	// "abuse_report", "block", ...).
	TargetType string `gorm:"size:32;not null;index:idx_activity_target,priority:1"`
	TargetID   uint64 `gorm:"not null;index:idx_activity_target,priority:2"`

	IPLogs    []IPLog   `gorm:"foreignKey:ActivityLogID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// IPLog stores the client address an activity originated from. The binary
// column always holds the 16-byte form so range predicates order correctly
// for both address families; the text column is what listings display.
type IPLog struct {
	ID            uint64 `gorm:"primaryKey;autoIncrement"`
	ActivityLogID uint64 `gorm:"not null;index"`

	IPAddress       string `gorm:"size:45;not null"`
	IPAddressBinary []byte `gorm:"type:bytea;size:16;index"`

	// Geo columns are backfilled by the runtime geo refresh job.
	Country string `gorm:"size:56;not null;default:''"`
	ASOrg   string `gorm:"size:255;not null;default:''"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// SetIP fills both address columns from a parsed address.
func (ipl *IPLog) SetIP(addr netip.Addr) {
	b16 := addr.As16()
	ipl.IPAddress = addr.Unmap().String()
	ipl.IPAddressBinary = b16[:]
}
