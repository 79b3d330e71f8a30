package persistence

import (
	"context"
	"errors"

	"github.com/goevery/collabtodo/internal/models"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrAlreadyExists = errors.New("record already exists")
)

const MaxUserSearchResults = 20

type Page struct {
	Number int
	Size   int
}

func (p Page) Offset() int {
	return (p.Number - 1) * p.Size
}

type Engine interface {
	Setup(ctx context.Context) error
	Close(ctx context.Context) error

	UserStore
	TaskStore
	ShareStore
}

type UserStore interface {
	// CreateUser returns ErrAlreadyExists when the email or username is taken.
	CreateUser(ctx context.Context, user models.User) error
	FindUserById(ctx context.Context, id string) (models.User, error)
	FindUserByEmail(ctx context.Context, email string) (models.User, error)
	FindUserByUsername(ctx context.Context, username string) (models.User, error)
	// SearchUsers matches query case-insensitively against email and username.
	SearchUsers(ctx context.Context, query string, excludeUserId string) ([]models.User, error)
}

type TaskStore interface {
	CreateTask(ctx context.Context, task models.Task) error
	FindTask(ctx context.Context, id string) (models.Task, error)
	// ListTasksByOwner returns a page of tasks, newest first, and the total count.
	ListTasksByOwner(ctx context.Context, ownerId string, page Page) ([]models.Task, int, error)
	UpdateTask(ctx context.Context, task models.Task) error
	// DeleteTask removes the task and its shares.
	DeleteTask(ctx context.Context, id string) error
}

type ShareStore interface {
	// CreateShare returns ErrAlreadyExists when the task is already shared
	// with the user.
	CreateShare(ctx context.Context, share models.Share) error
	FindShare(ctx context.Context, id string) (models.Share, error)
	FindShareByTaskAndUser(ctx context.Context, taskId string, userId string) (models.Share, error)
	ListSharesByTask(ctx context.Context, taskId string) ([]models.Share, error)
	ListSharesBySharedWith(ctx context.Context, userId string, page Page) ([]models.Share, int, error)
	DeleteShare(ctx context.Context, id string) error
}
