package user

import (
	"errors"
	"time"
)

var (
	ErrNotFound  = errors.New("user not found")
	ErrDuplicate = errors.New("username already exists")
)

type Role string

const (
	RoleApprover Role = "approver"
	RoleAdmin    Role = "admin"
)

type User struct {
	ID           string    `gorm:"column:id;type:char(36);primaryKey"`
	Username     string    `gorm:"column:username;size:64;not null;uniqueIndex:ux_users_username"`
	PasswordHash string    `gorm:"column:password_hash;size:100;not null"`
	FullName     string    `gorm:"column:full_name;size:255"`
	Role         Role      `gorm:"column:role;size:20;not null;default:'approver'"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (User) TableName() string { return "users" }
