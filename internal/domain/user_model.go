package domain

import (
	"strings"
	"time"
)

// Task user is the platform-owned account that curated collections are
// transferred to. Curators may edit collections owned by it.
const TaskUserEmail = "taskuser@shrike.local"

// Permission names follow the "<module>:<action>" convention.
const (
	PermCollectionsEdit = "Collections:Edit"
	PermAdminCuration   = "Admin:Curation"
	PermAdminAdvanced   = "Admin:Advanced"
	PermBlocklistEdit   = "Blocklist:Edit"
	PermAbuseView       = "Abuse:View"
)

type User struct {
	ID       uint   `gorm:"primaryKey;autoIncrement"`
	Email    string `gorm:"uniqueIndex;not null;size:255"`
	Username string `gorm:"size:255;not null;default:''"`
	Password string `gorm:"not null;size:100;check:length(password) >= 8" json:"-"`
	Role     string `gorm:"not null;default:'user';check:role IN ('user', 'admin')"`

	// Permissions stores "<module>:<action>" grants as a JSON list.
	Permissions StringList `gorm:"type:text;not null;default:'[]'"`

	// TaskUser marks the platform-owned account.
	TaskUser bool `gorm:"not null;default:false"`

	Collections []Collection `gorm:"foreignKey:AuthorID"`
	CreatedAt   time.Time    `gorm:"autoCreateTime"`
}

// HasPermission reports whether the user holds the named permission.
// Admins implicitly hold everything.
func (u *User) HasPermission(perm string) bool {
	if u.Role == "admin" {
		return true
	}
	for _, granted := range u.Permissions {
		if strings.EqualFold(granted, perm) {
			return true
		}
	}
	return false
}

// HasAnyPermission reports whether the user holds at least one of perms.
func (u *User) HasAnyPermission(perms ...string) bool {
	for _, perm := range perms {
		if u.HasPermission(perm) {
			return true
		}
	}
	return false
}
