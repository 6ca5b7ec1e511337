package domain

import "time"

// Decision actions a moderation job can end with.
const (
	DecisionNone               uint8 = 0
	DecisionUserBan            uint8 = 1
	DecisionAddonDisable       uint8 = 2
	DecisionEscalateAddon      uint8 = 3
	DecisionRatingDelete       uint8 = 5
	DecisionCollectionDelete   uint8 = 6
	DecisionApprovedNoAction   uint8 = 7
	DecisionAddonVersionReject uint8 = 8
)

// DecisionLabel maps a decision action code to its display name.
func DecisionLabel(action uint8) string {
	switch action {
	case DecisionNone:
		return "No decision"
	case DecisionUserBan:
		return "User ban"
	case DecisionAddonDisable:
		return "Add-on disable"
	case DecisionEscalateAddon:
		return "Escalate add-on to reviewers"
	case DecisionRatingDelete:
		return "Rating delete"
	case DecisionCollectionDelete:
		return "Collection delete"
	case DecisionApprovedNoAction:
		return "Approved (no action)"
	case DecisionAddonVersionReject:
		return "Add-on version reject"
	default:
		return "Unknown"
	}
}

// ModerationJob tracks one moderation case opened for a target entity.
// An appealed job points at the follow-up job handling the appeal.
type ModerationJob struct {
	ID    uint64 `gorm:"primaryKey;autoIncrement"`
	JobID string `gorm:"uniqueIndex;not null;size:36"`

	TargetGUID string `gorm:"index;not null;size:255;default:''"`

	DecisionAction uint8      `gorm:"not null;default:0"`
	DecisionDate   *time.Time `gorm:""`

	AppealJobID *uint64        `gorm:"index"`
	AppealJob   *ModerationJob `gorm:"foreignKey:AppealJobID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`

	// Reports resolved by this job, and reports whose appeal opened it.
	Reports    []AbuseReport `gorm:"foreignKey:ModerationJobID"`
	Appellants []AbuseReport `gorm:"foreignKey:AppellantJobID"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// Decided reports whether the job reached a terminal decision.
func (job *ModerationJob) Decided() bool {
	return job.DecisionAction != DecisionNone && job.DecisionDate != nil
}
