package database

import (
	"errors"
	"fmt"
	"strings"

	"shrike/internal/domain"
	"shrike/internal/support"

	"gorm.io/gorm"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

func GetUserFromId(id uint) (domain.User, error) {
	var user domain.User
	err := DB.First(&user, id).Error
	return user, err
}

func GetUserByEmail(email string) (domain.User, error) {
	var user domain.User
	err := DB.Where("email = ?", strings.ToLower(email)).First(&user).Error
	return user, err
}

// RegisterUser stores a new account with a hashed password.
func RegisterUser(email, username, password string) (domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	var count int64
	if err := DB.Model(&domain.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return domain.User{}, err
	}
	if count > 0 {
		return domain.User{}, ErrEmailTaken
	}

	hashed, err := support.HashPassword(password)
	if err != nil {
		return domain.User{}, err
	}

	user := domain.User{
		Email:    email,
		Username: username,
		Password: hashed,
	}
	if err := DB.Create(&user).Error; err != nil {
		return domain.User{}, fmt.Errorf("database: create user: %w", err)
	}

	return user, nil
}

// AuthenticateUser verifies credentials. Task users never log in directly.
func AuthenticateUser(email, password string) (domain.User, error) {
	user, err := GetUserByEmail(email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, ErrInvalidCredentials
		}
		return domain.User{}, err
	}

	if user.TaskUser || !support.CheckPassword(user.Password, password) {
		return domain.User{}, ErrInvalidCredentials
	}

	return user, nil
}

// ChangePassword swaps the stored hash after verifying the current password.
func ChangePassword(user *domain.User, currentPassword, newPassword string) error {
	if user.TaskUser || !support.CheckPassword(user.Password, currentPassword) {
		return ErrInvalidCredentials
	}

	hashed, err := support.HashPassword(newPassword)
	if err != nil {
		return err
	}

	if err := DB.Model(user).Update("password", hashed).Error; err != nil {
		return fmt.Errorf("database: update password: %w", err)
	}
	user.Password = hashed
	return nil
}

// GrantPermissions adds the named permissions to a user, skipping any the
// user already holds.
func GrantPermissions(user *domain.User, perms ...string) error {
	changed := false
	for _, perm := range perms {
		if user.HasPermission(perm) {
			continue
		}
		user.Permissions = append(user.Permissions, perm)
		changed = true
	}
	if !changed {
		return nil
	}

	return DB.Model(user).Update("permissions", user.Permissions).Error
}
