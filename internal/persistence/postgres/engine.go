package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goevery/collabtodo/internal/models"
	"github.com/goevery/collabtodo/internal/persistence"
	"github.com/lib/pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            UUID PRIMARY KEY,
	email         VARCHAR(255) NOT NULL UNIQUE,
	username      VARCHAR(100) NOT NULL UNIQUE,
	password_hash VARCHAR(255) NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS tasks (
	id           UUID PRIMARY KEY,
	title        VARCHAR(255) NOT NULL,
	description  TEXT,
	is_completed BOOLEAN NOT NULL DEFAULT FALSE,
	created_by   UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	due_date     TIMESTAMPTZ,
	priority     INTEGER NOT NULL DEFAULT 0 CHECK (priority BETWEEN 0 AND 2),
	category     VARCHAR(100),
	created_at   TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tasks_created_by ON tasks (created_by, created_at DESC);

CREATE TABLE IF NOT EXISTS shares (
	id          UUID PRIMARY KEY,
	task_id     UUID NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
	shared_with UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	permission  VARCHAR(50) NOT NULL DEFAULT 'view' CHECK (permission IN ('view', 'edit')),
	shared_by   UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	created_at  TIMESTAMPTZ NOT NULL,
	UNIQUE (task_id, shared_with)
);

CREATE INDEX IF NOT EXISTS idx_shares_shared_with ON shares (shared_with, created_at DESC);
`

const (
	userColumns  = `id, email, username, password_hash, created_at, updated_at`
	taskColumns  = `id, title, description, is_completed, created_by, due_date, priority, category, created_at, updated_at`
	shareColumns = `id, task_id, shared_with, permission, shared_by, created_at`
)

type PersistenceEngine struct {
	db *sql.DB
}

func NewPersistenceEngine(db *sql.DB) *PersistenceEngine {
	return &PersistenceEngine{
		db,
	}
}

func Open(ctx context.Context, url string) (*PersistenceEngine, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return NewPersistenceEngine(db), nil
}

func (e *PersistenceEngine) Setup(ctx context.Context) error {
	_, err := e.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

func (e *PersistenceEngine) Close(ctx context.Context) error {
	return e.db.Close()
}

func (e *PersistenceEngine) CreateUser(ctx context.Context, user models.User) error {
	query := `INSERT INTO users (` + userColumns + `) VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := e.db.ExecContext(ctx, query,
		user.Id, user.Email, user.Username, user.PasswordHash, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", mapError(err))
	}

	return nil
}

func (e *PersistenceEngine) FindUserById(ctx context.Context, id string) (models.User, error) {
	return e.findUser(ctx, `id = $1`, id)
}

func (e *PersistenceEngine) FindUserByEmail(ctx context.Context, email string) (models.User, error) {
	return e.findUser(ctx, `email = $1`, email)
}

func (e *PersistenceEngine) FindUserByUsername(ctx context.Context, username string) (models.User, error) {
	return e.findUser(ctx, `username = $1`, username)
}

func (e *PersistenceEngine) findUser(ctx context.Context, condition string, arg any) (models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + condition

	user, err := scanUser(e.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		return models.User{}, fmt.Errorf("failed to get user: %w", mapError(err))
	}

	return user, nil
}

func (e *PersistenceEngine) SearchUsers(ctx context.Context, query string, excludeUserId string) ([]models.User, error) {
	statement := `SELECT ` + userColumns + ` FROM users
		WHERE (email ILIKE $1 OR username ILIKE $1) AND id::text <> $2
		ORDER BY username
		LIMIT $3`

	rows, err := e.db.QueryContext(ctx, statement, "%"+escapeLike(query)+"%", excludeUserId, persistence.MaxUserSearchResults)
	if err != nil {
		return nil, fmt.Errorf("failed to search users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}

	return users, rows.Err()
}

func (e *PersistenceEngine) CreateTask(ctx context.Context, task models.Task) error {
	query := `INSERT INTO tasks (` + taskColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := e.db.ExecContext(ctx, query,
		task.Id, task.Title, task.Description, task.IsCompleted, task.CreatedBy,
		task.DueDate, task.Priority, task.Category, task.CreatedAt, task.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", mapError(err))
	}

	return nil
}

func (e *PersistenceEngine) FindTask(ctx context.Context, id string) (models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`

	task, err := scanTask(e.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return models.Task{}, fmt.Errorf("failed to get task: %w", mapError(err))
	}

	return task, nil
}

func (e *PersistenceEngine) ListTasksByOwner(ctx context.Context, ownerId string, page persistence.Page) ([]models.Task, int, error) {
	var total int
	err := e.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks WHERE created_by = $1`, ownerId).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count tasks: %w", mapError(err))
	}

	query := `SELECT ` + taskColumns + ` FROM tasks
		WHERE created_by = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := e.db.QueryContext(ctx, query, ownerId, page.Size, page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	tasks := []models.Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}

	return tasks, total, rows.Err()
}

func (e *PersistenceEngine) UpdateTask(ctx context.Context, task models.Task) error {
	query := `UPDATE tasks
		SET title = $2, description = $3, is_completed = $4, due_date = $5,
			priority = $6, category = $7, updated_at = $8
		WHERE id = $1`

	result, err := e.db.ExecContext(ctx, query,
		task.Id, task.Title, task.Description, task.IsCompleted, task.DueDate,
		task.Priority, task.Category, task.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", mapError(err))
	}

	return expectAffected(result, "task")
}

func (e *PersistenceEngine) DeleteTask(ctx context.Context, id string) error {
	result, err := e.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", mapError(err))
	}

	return expectAffected(result, "task")
}

func (e *PersistenceEngine) CreateShare(ctx context.Context, share models.Share) error {
	query := `INSERT INTO shares (` + shareColumns + `) VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := e.db.ExecContext(ctx, query,
		share.Id, share.TaskId, share.SharedWith, string(share.Permission), share.SharedBy, share.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create share: %w", mapError(err))
	}

	return nil
}

func (e *PersistenceEngine) FindShare(ctx context.Context, id string) (models.Share, error) {
	query := `SELECT ` + shareColumns + ` FROM shares WHERE id = $1`

	share, err := scanShare(e.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return models.Share{}, fmt.Errorf("failed to get share: %w", mapError(err))
	}

	return share, nil
}

func (e *PersistenceEngine) FindShareByTaskAndUser(ctx context.Context, taskId string, userId string) (models.Share, error) {
	query := `SELECT ` + shareColumns + ` FROM shares WHERE task_id = $1 AND shared_with = $2`

	share, err := scanShare(e.db.QueryRowContext(ctx, query, taskId, userId))
	if err != nil {
		return models.Share{}, fmt.Errorf("failed to get share: %w", mapError(err))
	}

	return share, nil
}

func (e *PersistenceEngine) ListSharesByTask(ctx context.Context, taskId string) ([]models.Share, error) {
	query := `SELECT ` + shareColumns + ` FROM shares WHERE task_id = $1 ORDER BY created_at DESC`

	return e.queryShares(ctx, query, taskId)
}

func (e *PersistenceEngine) ListSharesBySharedWith(ctx context.Context, userId string, page persistence.Page) ([]models.Share, int, error) {
	var total int
	err := e.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM shares WHERE shared_with = $1`, userId).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count shares: %w", mapError(err))
	}

	query := `SELECT ` + shareColumns + ` FROM shares
		WHERE shared_with = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	shares, err := e.queryShares(ctx, query, userId, page.Size, page.Offset())
	if err != nil {
		return nil, 0, err
	}

	return shares, total, nil
}

func (e *PersistenceEngine) queryShares(ctx context.Context, query string, args ...any) ([]models.Share, error) {
	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		if errors.Is(mapError(err), persistence.ErrNotFound) {
			return []models.Share{}, nil
		}
		return nil, fmt.Errorf("failed to list shares: %w", err)
	}
	defer rows.Close()

	shares := []models.Share{}
	for rows.Next() {
		share, err := scanShare(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan share: %w", err)
		}
		shares = append(shares, share)
	}

	return shares, rows.Err()
}

func (e *PersistenceEngine) DeleteShare(ctx context.Context, id string) error {
	result, err := e.db.ExecContext(ctx, `DELETE FROM shares WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete share: %w", mapError(err))
	}

	return expectAffected(result, "share")
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (models.User, error) {
	var user models.User

	err := row.Scan(&user.Id, &user.Email, &user.Username, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)

	return user, err
}

func scanTask(row scanner) (models.Task, error) {
	var (
		task        models.Task
		description sql.NullString
		dueDate     sql.NullTime
		category    sql.NullString
	)

	err := row.Scan(&task.Id, &task.Title, &description, &task.IsCompleted, &task.CreatedBy,
		&dueDate, &task.Priority, &category, &task.CreatedAt, &task.UpdatedAt)
	if err != nil {
		return models.Task{}, err
	}

	if description.Valid {
		task.Description = &description.String
	}
	if dueDate.Valid {
		task.DueDate = &dueDate.Time
	}
	if category.Valid {
		task.Category = &category.String
	}

	return task, nil
}

func scanShare(row scanner) (models.Share, error) {
	var (
		share      models.Share
		permission string
	)

	err := row.Scan(&share.Id, &share.TaskId, &share.SharedWith, &permission, &share.SharedBy, &share.CreatedAt)
	share.Permission = models.Permission(permission)

	return share, err
}

func expectAffected(result sql.Result, entity string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("%s: %w", entity, persistence.ErrNotFound)
	}

	return nil
}

// mapError translates driver errors into persistence sentinels. Malformed
// UUIDs and dangling references are reported as not found.
func mapError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return persistence.ErrNotFound
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505":
			return persistence.ErrAlreadyExists
		case "23503", "22P02":
			return persistence.ErrNotFound
		}
	}

	return err
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
