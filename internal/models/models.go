package models

import "time"

type Permission string

const (
	PermissionView Permission = "view"
	PermissionEdit Permission = "edit"
)

func (p Permission) Valid() bool {
	return p == PermissionView || p == PermissionEdit
}

// Allows reports whether a share with permission p grants required.
// Edit implies view.
func (p Permission) Allows(required Permission) bool {
	switch required {
	case PermissionView:
		return p.Valid()
	case PermissionEdit:
		return p == PermissionEdit
	default:
		return false
	}
}

const (
	PriorityLow    = 0
	PriorityMedium = 1
	PriorityHigh   = 2
)

type User struct {
	Id           string
	Email        string
	Username     string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Task struct {
	Id          string
	Title       string
	Description *string
	IsCompleted bool
	CreatedBy   string
	DueDate     *time.Time
	Priority    int
	Category    *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Share struct {
	Id         string
	TaskId     string
	SharedWith string
	Permission Permission
	SharedBy   string
	CreatedAt  time.Time
}
