package todo

import (
	"time"

	"github.com/goevery/collabtodo/internal/models"
)

const (
	DefaultPage     = 1
	DefaultPageSize = 20
	MaxPageSize     = 100
)

type UserDTO struct {
	Id        string    `json:"id"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type UserWithTokenDTO struct {
	User  UserDTO `json:"user"`
	Token string  `json:"token"`
}

type ShareDTO struct {
	Id         string            `json:"id"`
	TaskId     string            `json:"taskId"`
	SharedWith UserDTO           `json:"sharedWith"`
	Permission models.Permission `json:"permission"`
	SharedBy   UserDTO           `json:"sharedBy"`
	CreatedAt  time.Time         `json:"createdAt"`
}

type TaskDTO struct {
	Id          string     `json:"id"`
	Title       string     `json:"title"`
	Description *string    `json:"description"`
	IsCompleted bool       `json:"isCompleted"`
	CreatedBy   UserDTO    `json:"createdBy"`
	DueDate     *time.Time `json:"dueDate"`
	Priority    int        `json:"priority"`
	Category    *string    `json:"category"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	SharedWith  []ShareDTO `json:"sharedWith"`
}

type TaskListResponse struct {
	Tasks    []TaskDTO `json:"tasks"`
	Page     int       `json:"page"`
	PageSize int       `json:"pageSize"`
	Total    int       `json:"total"`
	HasMore  bool      `json:"hasMore"`
}

type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Username string `json:"username" validate:"required,username"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type TaskCreate struct {
	Title       string  `json:"title" validate:"required,max=255"`
	Description *string `json:"description" validate:"omitnil,max=2000"`
	DueDate     *string `json:"dueDate" validate:"omitnil,datetime=2006-01-02T15:04:05Z07:00"`
	Priority    int     `json:"priority" validate:"min=0,max=2"`
	Category    *string `json:"category" validate:"omitnil,max=100"`
}

type TaskUpdate struct {
	Title       *string `json:"title" validate:"omitnil,min=1,max=255"`
	Description *string `json:"description" validate:"omitnil,max=2000"`
	IsCompleted *bool   `json:"isCompleted"`
	DueDate     *string `json:"dueDate" validate:"omitnil,datetime=2006-01-02T15:04:05Z07:00"`
	Priority    *int    `json:"priority" validate:"omitnil,min=0,max=2"`
	Category    *string `json:"category" validate:"omitnil,max=100"`
}

func (u TaskUpdate) empty() bool {
	return u.Title == nil && u.Description == nil && u.IsCompleted == nil &&
		u.DueDate == nil && u.Priority == nil && u.Category == nil
}

type ShareCreate struct {
	TaskId          string            `json:"taskId" validate:"required"`
	SharedWithEmail string            `json:"sharedWithEmail" validate:"required,email"`
	Permission      models.Permission `json:"permission" validate:"required,oneof=view edit"`
}

func newUserDTO(user models.User) UserDTO {
	return UserDTO{
		Id:        user.Id,
		Email:     user.Email,
		Username:  user.Username,
		CreatedAt: user.CreatedAt,
		UpdatedAt: user.UpdatedAt,
	}
}
