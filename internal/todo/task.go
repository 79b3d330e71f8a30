package todo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/goevery/collabtodo/internal/ierr"
	"github.com/goevery/collabtodo/internal/mail"
	"github.com/goevery/collabtodo/internal/models"
	"github.com/goevery/collabtodo/internal/persistence"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const minSearchQueryLength = 2

// Notifier pushes task changes to connected users. Implementations must
// return without waiting for delivery.
type Notifier interface {
	NotifyUpdated(taskId string, updatedBy string, audience []string)
	NotifyDeleted(taskId string, deletedBy string, audience []string)
	NotifyShared(userId string, taskId string, sharedBy string)
	NotifyShareRemoved(userId string, taskId string, removedBy string)
}

type TaskService struct {
	logger        *zap.Logger
	engine        persistence.Engine
	notifier      Notifier
	mailer        mail.Mailer
	validator     *Validator
	shareLinkBase string
	emailTimeout  time.Duration
	now           func() time.Time
}

func NewTaskService(
	logger *zap.Logger,
	engine persistence.Engine,
	notifier Notifier,
	mailer mail.Mailer,
	validator *Validator,
	shareLinkBase string,
) *TaskService {
	return &TaskService{
		logger:        logger,
		engine:        engine,
		notifier:      notifier,
		mailer:        mailer,
		validator:     validator,
		shareLinkBase: shareLinkBase,
		emailTimeout:  30 * time.Second,
		now:           time.Now,
	}
}

func (s *TaskService) CreateTask(ctx context.Context, userId string, req TaskCreate) (TaskDTO, error) {
	req.Title = strings.TrimSpace(req.Title)
	req.Description = trimmed(req.Description)
	req.Category = trimmed(req.Category)

	if err := s.validator.Struct(req); err != nil {
		return TaskDTO{}, err
	}

	owner, err := s.engine.FindUserById(ctx, userId)
	if err != nil {
		return TaskDTO{}, storeError(err, "User")
	}

	now := s.now().UTC()
	task := models.Task{
		Id:          uuid.NewString(),
		Title:       req.Title,
		Description: req.Description,
		CreatedBy:   userId,
		DueDate:     parseDueDate(req.DueDate),
		Priority:    req.Priority,
		Category:    req.Category,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.engine.CreateTask(ctx, task); err != nil {
		return TaskDTO{}, storeError(err, "Task")
	}

	return TaskDTO{
		Id:          task.Id,
		Title:       task.Title,
		Description: task.Description,
		CreatedBy:   newUserDTO(owner),
		DueDate:     task.DueDate,
		Priority:    task.Priority,
		Category:    task.Category,
		CreatedAt:   task.CreatedAt,
		UpdatedAt:   task.UpdatedAt,
		SharedWith:  []ShareDTO{},
	}, nil
}

func (s *TaskService) GetTask(ctx context.Context, userId string, taskId string) (TaskDTO, error) {
	task, err := s.engine.FindTask(ctx, taskId)
	if err != nil {
		return TaskDTO{}, storeError(err, "Task")
	}

	if err := s.authorize(ctx, userId, task, models.PermissionView); err != nil {
		return TaskDTO{}, err
	}

	return s.taskDTO(ctx, task)
}

func (s *TaskService) ListTasks(ctx context.Context, userId string, page int, pageSize int) (TaskListResponse, error) {
	if err := ValidatePage(page, pageSize); err != nil {
		return TaskListResponse{}, err
	}

	tasks, total, err := s.engine.ListTasksByOwner(ctx, userId, persistence.Page{Number: page, Size: pageSize})
	if err != nil {
		return TaskListResponse{}, storeError(err, "Task")
	}

	return s.taskList(ctx, tasks, page, pageSize, total)
}

func (s *TaskService) UpdateTask(ctx context.Context, userId string, taskId string, req TaskUpdate) (TaskDTO, error) {
	req.Title = trimmed(req.Title)
	req.Description = trimmed(req.Description)
	req.Category = trimmed(req.Category)

	if err := s.validator.Struct(req); err != nil {
		return TaskDTO{}, err
	}

	if req.empty() {
		return TaskDTO{}, ierr.Newf(ierr.ErrorCodeInvalidArgument, "No updates provided")
	}

	task, err := s.engine.FindTask(ctx, taskId)
	if err != nil {
		return TaskDTO{}, storeError(err, "Task")
	}

	if err := s.authorize(ctx, userId, task, models.PermissionEdit); err != nil {
		return TaskDTO{}, err
	}

	if req.Title != nil {
		task.Title = *req.Title
	}
	if req.Description != nil {
		task.Description = req.Description
	}
	if req.IsCompleted != nil {
		task.IsCompleted = *req.IsCompleted
	}
	if req.DueDate != nil {
		task.DueDate = parseDueDate(req.DueDate)
	}
	if req.Priority != nil {
		task.Priority = *req.Priority
	}
	if req.Category != nil {
		task.Category = req.Category
	}
	task.UpdatedAt = s.now().UTC()

	if err := s.engine.UpdateTask(ctx, task); err != nil {
		return TaskDTO{}, storeError(err, "Task")
	}

	audience, err := s.TaskAudience(ctx, task.Id)
	if err != nil {
		s.logger.Error("failed to resolve task audience",
			zap.String("taskId", task.Id),
			zap.Error(err))
	} else {
		s.notifier.NotifyUpdated(task.Id, userId, audience)
	}

	return s.taskDTO(ctx, task)
}

func (s *TaskService) DeleteTask(ctx context.Context, userId string, taskId string) error {
	task, err := s.engine.FindTask(ctx, taskId)
	if err != nil {
		return storeError(err, "Task")
	}

	if task.CreatedBy != userId {
		return ierr.Newf(ierr.ErrorCodePermissionDenied, "Only task owner can delete")
	}

	// Shares are removed with the task, so the audience is captured first.
	audience, err := s.TaskAudience(ctx, taskId)
	if err != nil {
		return storeError(err, "Task")
	}

	if err := s.engine.DeleteTask(ctx, taskId); err != nil {
		return storeError(err, "Task")
	}

	s.notifier.NotifyDeleted(taskId, userId, audience)

	return nil
}

func (s *TaskService) ShareTask(ctx context.Context, userId string, req ShareCreate) (ShareDTO, error) {
	req.TaskId = strings.TrimSpace(req.TaskId)
	req.SharedWithEmail = strings.ToLower(strings.TrimSpace(req.SharedWithEmail))
	if req.Permission == "" {
		req.Permission = models.PermissionView
	}

	if err := s.validator.Struct(req); err != nil {
		return ShareDTO{}, err
	}

	task, err := s.engine.FindTask(ctx, req.TaskId)
	if err != nil {
		return ShareDTO{}, storeError(err, "Task")
	}

	if task.CreatedBy != userId {
		return ShareDTO{}, ierr.Newf(ierr.ErrorCodePermissionDenied, "Only task owner can share")
	}

	recipient, err := s.engine.FindUserByEmail(ctx, req.SharedWithEmail)
	if err != nil {
		return ShareDTO{}, storeError(err, "User")
	}

	if recipient.Id == userId {
		return ShareDTO{}, ierr.Newf(ierr.ErrorCodeInvalidArgument, "Cannot share task with yourself")
	}

	owner, err := s.engine.FindUserById(ctx, userId)
	if err != nil {
		return ShareDTO{}, storeError(err, "User")
	}

	share := models.Share{
		Id:         uuid.NewString(),
		TaskId:     task.Id,
		SharedWith: recipient.Id,
		Permission: req.Permission,
		SharedBy:   userId,
		CreatedAt:  s.now().UTC(),
	}

	err = s.engine.CreateShare(ctx, share)
	if errors.Is(err, persistence.ErrAlreadyExists) {
		return ShareDTO{}, ierr.Newf(ierr.ErrorCodeAlreadyExists, "Task already shared with this user")
	}
	if err != nil {
		return ShareDTO{}, storeError(err, "Share")
	}

	s.notifier.NotifyShared(recipient.Id, task.Id, userId)

	go s.sendShareEmail(mail.ShareNotification{
		ToEmail:   recipient.Email,
		TaskTitle: task.Title,
		SharedBy:  owner.Username,
		ShareLink: s.shareLinkBase + task.Id,
	})

	return ShareDTO{
		Id:         share.Id,
		TaskId:     share.TaskId,
		SharedWith: newUserDTO(recipient),
		Permission: share.Permission,
		SharedBy:   newUserDTO(owner),
		CreatedAt:  share.CreatedAt,
	}, nil
}

func (s *TaskService) sendShareEmail(notification mail.ShareNotification) {
	ctx, cancel := context.WithTimeout(context.Background(), s.emailTimeout)
	defer cancel()

	err := s.mailer.SendShareNotification(ctx, notification)
	if err != nil {
		s.logger.Warn("failed to send share notification email",
			zap.String("to", notification.ToEmail),
			zap.Error(err))
	}
}

func (s *TaskService) SharedTasks(ctx context.Context, userId string, page int, pageSize int) (TaskListResponse, error) {
	if err := ValidatePage(page, pageSize); err != nil {
		return TaskListResponse{}, err
	}

	shares, total, err := s.engine.ListSharesBySharedWith(ctx, userId, persistence.Page{Number: page, Size: pageSize})
	if err != nil {
		return TaskListResponse{}, storeError(err, "Share")
	}

	tasks := make([]models.Task, 0, len(shares))
	for _, share := range shares {
		task, err := s.engine.FindTask(ctx, share.TaskId)
		if errors.Is(err, persistence.ErrNotFound) {
			continue
		}
		if err != nil {
			return TaskListResponse{}, storeError(err, "Task")
		}
		tasks = append(tasks, task)
	}

	return s.taskList(ctx, tasks, page, pageSize, total)
}

func (s *TaskService) RemoveShare(ctx context.Context, userId string, shareId string) error {
	share, err := s.engine.FindShare(ctx, shareId)
	if err != nil {
		return storeError(err, "Share")
	}

	task, err := s.engine.FindTask(ctx, share.TaskId)
	if err != nil {
		return storeError(err, "Task")
	}

	if task.CreatedBy != userId && share.SharedWith != userId {
		return ierr.Newf(ierr.ErrorCodePermissionDenied, "Permission denied")
	}

	if err := s.engine.DeleteShare(ctx, shareId); err != nil {
		return storeError(err, "Share")
	}

	if share.SharedWith != userId {
		s.notifier.NotifyShareRemoved(share.SharedWith, share.TaskId, userId)
	}

	return nil
}

func (s *TaskService) SearchUsers(ctx context.Context, userId string, query string) ([]UserDTO, error) {
	query = strings.TrimSpace(query)
	if len(query) < minSearchQueryLength {
		return []UserDTO{}, nil
	}

	users, err := s.engine.SearchUsers(ctx, query, userId)
	if err != nil {
		return nil, storeError(err, "User")
	}

	dtos := make([]UserDTO, len(users))
	for i, user := range users {
		dtos[i] = newUserDTO(user)
	}

	return dtos, nil
}

// TaskAudience returns the owner and every share holder of a task.
func (s *TaskService) TaskAudience(ctx context.Context, taskId string) ([]string, error) {
	task, err := s.engine.FindTask(ctx, taskId)
	if err != nil {
		return nil, err
	}

	shares, err := s.engine.ListSharesByTask(ctx, taskId)
	if err != nil {
		return nil, err
	}

	audience := make([]string, 0, len(shares)+1)
	audience = append(audience, task.CreatedBy)
	for _, share := range shares {
		audience = append(audience, share.SharedWith)
	}

	return audience, nil
}

func (s *TaskService) authorize(ctx context.Context, userId string, task models.Task, required models.Permission) error {
	if task.CreatedBy == userId {
		return nil
	}

	share, err := s.engine.FindShareByTaskAndUser(ctx, task.Id, userId)
	if errors.Is(err, persistence.ErrNotFound) {
		return ierr.Newf(ierr.ErrorCodePermissionDenied, "Access denied")
	}
	if err != nil {
		return ierr.New(ierr.ErrorCodeInternal, err)
	}

	if !share.Permission.Allows(required) {
		return ierr.Newf(ierr.ErrorCodePermissionDenied, "Edit permission denied")
	}

	return nil
}

func (s *TaskService) taskList(ctx context.Context, tasks []models.Task, page int, pageSize int, total int) (TaskListResponse, error) {
	dtos := make([]TaskDTO, 0, len(tasks))
	for _, task := range tasks {
		dto, err := s.taskDTO(ctx, task)
		if err != nil {
			return TaskListResponse{}, err
		}
		dtos = append(dtos, dto)
	}

	return TaskListResponse{
		Tasks:    dtos,
		Page:     page,
		PageSize: pageSize,
		Total:    total,
		HasMore:  page*pageSize < total,
	}, nil
}

func (s *TaskService) taskDTO(ctx context.Context, task models.Task) (TaskDTO, error) {
	users := map[string]UserDTO{}
	lookup := func(id string) (UserDTO, error) {
		if user, ok := users[id]; ok {
			return user, nil
		}

		user, err := s.engine.FindUserById(ctx, id)
		if err != nil {
			return UserDTO{}, err
		}

		users[id] = newUserDTO(user)

		return users[id], nil
	}

	owner, err := lookup(task.CreatedBy)
	if err != nil {
		return TaskDTO{}, storeError(err, "Owner")
	}

	shares, err := s.engine.ListSharesByTask(ctx, task.Id)
	if err != nil {
		return TaskDTO{}, storeError(err, "Share")
	}

	shareDTOs := make([]ShareDTO, 0, len(shares))
	for _, share := range shares {
		sharedWith, err := lookup(share.SharedWith)
		if err != nil {
			continue
		}

		sharedBy, err := lookup(share.SharedBy)
		if err != nil {
			continue
		}

		shareDTOs = append(shareDTOs, ShareDTO{
			Id:         share.Id,
			TaskId:     share.TaskId,
			SharedWith: sharedWith,
			Permission: share.Permission,
			SharedBy:   sharedBy,
			CreatedAt:  share.CreatedAt,
		})
	}

	return TaskDTO{
		Id:          task.Id,
		Title:       task.Title,
		Description: task.Description,
		IsCompleted: task.IsCompleted,
		CreatedBy:   owner,
		DueDate:     task.DueDate,
		Priority:    task.Priority,
		Category:    task.Category,
		CreatedAt:   task.CreatedAt,
		UpdatedAt:   task.UpdatedAt,
		SharedWith:  shareDTOs,
	}, nil
}

// parseDueDate expects a value that already passed validation.
func parseDueDate(value *string) *time.Time {
	if value == nil {
		return nil
	}

	dueDate, err := time.Parse(time.RFC3339, *value)
	if err != nil {
		return nil
	}

	dueDate = dueDate.UTC()

	return &dueDate
}

func storeError(err error, entity string) error {
	switch {
	case errors.Is(err, persistence.ErrNotFound):
		return ierr.Newf(ierr.ErrorCodeNotFound, entity+" not found")
	case errors.Is(err, persistence.ErrAlreadyExists):
		return ierr.Newf(ierr.ErrorCodeAlreadyExists, entity+" already exists")
	default:
		return ierr.New(ierr.ErrorCodeInternal, err)
	}
}
