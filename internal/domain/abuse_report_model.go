package domain

import "time"

// Abuse report reasons (subset relevant to moderation routing).
const (
	ReasonUnknown         uint8 = 0
	ReasonPolicyViolation uint8 = 1
	ReasonMalware         uint8 = 2
	ReasonSpam            uint8 = 3
	ReasonOther           uint8 = 4
)

// ReasonFromString maps the public API reason names onto the stored codes.
// Unknown names fall back to ReasonOther so reports are never lost over a
// label mismatch.
func ReasonFromString(reason string) uint8 {
	switch reason {
	case "policy_violation":
		return ReasonPolicyViolation
	case "malware":
		return ReasonMalware
	case "spam":
		return ReasonSpam
	case "":
		return ReasonUnknown
	default:
		return ReasonOther
	}
}

// AbuseReport is a user-submitted report against an add-on (by guid).
// When the reporter appeals a decision, AppellantJobID points at the
// moderation job opened for that appeal.
type AbuseReport struct {
	ID      uint64 `gorm:"primaryKey;autoIncrement"`
	GUID    string `gorm:"index;not null;size:255"`
	Message string `gorm:"type:text;not null;default:''"`
	Reason  uint8  `gorm:"not null;default:0"`

	ReporterID *uint `gorm:"index"`
	Reporter   *User `gorm:"foreignKey:ReporterID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL;"`

	ReporterEmail string `gorm:"size:255;not null;default:''"`
	ReporterName  string `gorm:"size:255;not null;default:''"`

	ReporterAppealDate *time.Time `gorm:""`

	ModerationJobID *uint64        `gorm:"index"`
	ModerationJob   *ModerationJob `gorm:"foreignKey:ModerationJobID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL;"`

	AppellantJobID *uint64        `gorm:"index"`
	AppellantJob   *ModerationJob `gorm:"foreignKey:AppellantJobID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL;"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
}
