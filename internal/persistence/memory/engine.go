package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/goevery/collabtodo/internal/models"
	"github.com/goevery/collabtodo/internal/persistence"
)

// PersistenceEngine keeps everything in process memory. It is meant for
// development and tests.
type PersistenceEngine struct {
	mu     sync.RWMutex
	users  map[string]models.User
	tasks  map[string]models.Task
	shares map[string]models.Share
}

func NewPersistenceEngine() *PersistenceEngine {
	return &PersistenceEngine{
		users:  make(map[string]models.User),
		tasks:  make(map[string]models.Task),
		shares: make(map[string]models.Share),
	}
}

func (e *PersistenceEngine) Setup(ctx context.Context) error {
	return nil
}

func (e *PersistenceEngine) Close(ctx context.Context) error {
	return nil
}

func (e *PersistenceEngine) CreateUser(ctx context.Context, user models.User) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, existing := range e.users {
		if existing.Id == user.Id || existing.Email == user.Email || existing.Username == user.Username {
			return persistence.ErrAlreadyExists
		}
	}

	e.users[user.Id] = user

	return nil
}

func (e *PersistenceEngine) FindUserById(ctx context.Context, id string) (models.User, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	user, ok := e.users[id]
	if !ok {
		return models.User{}, persistence.ErrNotFound
	}

	return user, nil
}

func (e *PersistenceEngine) FindUserByEmail(ctx context.Context, email string) (models.User, error) {
	return e.findUser(func(u models.User) bool { return u.Email == email })
}

func (e *PersistenceEngine) FindUserByUsername(ctx context.Context, username string) (models.User, error) {
	return e.findUser(func(u models.User) bool { return u.Username == username })
}

func (e *PersistenceEngine) findUser(match func(models.User) bool) (models.User, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, user := range e.users {
		if match(user) {
			return user, nil
		}
	}

	return models.User{}, persistence.ErrNotFound
}

func (e *PersistenceEngine) SearchUsers(ctx context.Context, query string, excludeUserId string) ([]models.User, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	query = strings.ToLower(query)

	var users []models.User
	for _, user := range e.users {
		if user.Id == excludeUserId {
			continue
		}

		if strings.Contains(strings.ToLower(user.Email), query) ||
			strings.Contains(strings.ToLower(user.Username), query) {
			users = append(users, user)
		}
	}

	sort.Slice(users, func(i, j int) bool {
		return users[i].Username < users[j].Username
	})

	if len(users) > persistence.MaxUserSearchResults {
		users = users[:persistence.MaxUserSearchResults]
	}

	return users, nil
}

func (e *PersistenceEngine) CreateTask(ctx context.Context, task models.Task) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.tasks[task.Id]; ok {
		return persistence.ErrAlreadyExists
	}

	e.tasks[task.Id] = task

	return nil
}

func (e *PersistenceEngine) FindTask(ctx context.Context, id string) (models.Task, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	task, ok := e.tasks[id]
	if !ok {
		return models.Task{}, persistence.ErrNotFound
	}

	return task, nil
}

func (e *PersistenceEngine) ListTasksByOwner(ctx context.Context, ownerId string, page persistence.Page) ([]models.Task, int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var tasks []models.Task
	for _, task := range e.tasks {
		if task.CreatedBy == ownerId {
			tasks = append(tasks, task)
		}
	}

	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})

	return paginate(tasks, page), len(tasks), nil
}

func (e *PersistenceEngine) UpdateTask(ctx context.Context, task models.Task) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.tasks[task.Id]; !ok {
		return persistence.ErrNotFound
	}

	e.tasks[task.Id] = task

	return nil
}

func (e *PersistenceEngine) DeleteTask(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.tasks[id]; !ok {
		return persistence.ErrNotFound
	}

	delete(e.tasks, id)

	for shareId, share := range e.shares {
		if share.TaskId == id {
			delete(e.shares, shareId)
		}
	}

	return nil
}

func (e *PersistenceEngine) CreateShare(ctx context.Context, share models.Share) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.tasks[share.TaskId]; !ok {
		return persistence.ErrNotFound
	}

	for _, existing := range e.shares {
		if existing.Id == share.Id || (existing.TaskId == share.TaskId && existing.SharedWith == share.SharedWith) {
			return persistence.ErrAlreadyExists
		}
	}

	e.shares[share.Id] = share

	return nil
}

func (e *PersistenceEngine) FindShare(ctx context.Context, id string) (models.Share, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	share, ok := e.shares[id]
	if !ok {
		return models.Share{}, persistence.ErrNotFound
	}

	return share, nil
}

func (e *PersistenceEngine) FindShareByTaskAndUser(ctx context.Context, taskId string, userId string) (models.Share, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, share := range e.shares {
		if share.TaskId == taskId && share.SharedWith == userId {
			return share, nil
		}
	}

	return models.Share{}, persistence.ErrNotFound
}

func (e *PersistenceEngine) ListSharesByTask(ctx context.Context, taskId string) ([]models.Share, error) {
	shares := e.filterShares(func(s models.Share) bool { return s.TaskId == taskId })

	return shares, nil
}

func (e *PersistenceEngine) ListSharesBySharedWith(ctx context.Context, userId string, page persistence.Page) ([]models.Share, int, error) {
	shares := e.filterShares(func(s models.Share) bool { return s.SharedWith == userId })

	return paginate(shares, page), len(shares), nil
}

func (e *PersistenceEngine) filterShares(match func(models.Share) bool) []models.Share {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var shares []models.Share
	for _, share := range e.shares {
		if match(share) {
			shares = append(shares, share)
		}
	}

	sort.Slice(shares, func(i, j int) bool {
		return shares[i].CreatedAt.After(shares[j].CreatedAt)
	})

	return shares
}

func (e *PersistenceEngine) DeleteShare(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.shares[id]; !ok {
		return persistence.ErrNotFound
	}

	delete(e.shares, id)

	return nil
}

func paginate[T any](items []T, page persistence.Page) []T {
	offset := page.Offset()
	if offset >= len(items) {
		return []T{}
	}

	end := offset + page.Size
	if end > len(items) {
		end = len(items)
	}

	return items[offset:end]
}
