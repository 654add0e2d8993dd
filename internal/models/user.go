package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	gorm.Model
	Email        string     `gorm:"uniqueIndex;not null" json:"email"`
	Password     string     `gorm:"not null" json:"-"`
	Name         string     `gorm:"not null" json:"name"`
	Phone        *string    `gorm:"uniqueIndex" json:"phone,omitempty"`
	PhotoURL     *string    `json:"photo_url,omitempty"`
	Role         string     `gorm:"default:'user'" json:"role"`
	Status       string     `gorm:"default:'active'" json:"status"`
	ReferredBy   *uint      `json:"referred_by,omitempty"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
	TokenVersion int        `gorm:"default:1" json:"-"`
}
