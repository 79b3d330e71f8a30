// Package persistencetest holds the behaviour every persistence engine must
// satisfy.
package persistencetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/goevery/collabtodo/internal/models"
	"github.com/goevery/collabtodo/internal/persistence"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func NewUser(name string) models.User {
	now := time.Now().UTC().Truncate(time.Millisecond)

	return models.User{
		Id:           uuid.NewString(),
		Email:        name + "@example.com",
		Username:     name,
		PasswordHash: "hash",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func NewTask(ownerId string, title string, createdAt time.Time) models.Task {
	createdAt = createdAt.UTC().Truncate(time.Millisecond)

	return models.Task{
		Id:        uuid.NewString(),
		Title:     title,
		CreatedBy: ownerId,
		Priority:  models.PriorityMedium,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func NewShare(taskId string, sharedWith string, sharedBy string, permission models.Permission) models.Share {
	return models.Share{
		Id:         uuid.NewString(),
		TaskId:     taskId,
		SharedWith: sharedWith,
		Permission: permission,
		SharedBy:   sharedBy,
		CreatedAt:  time.Now().UTC().Truncate(time.Millisecond),
	}
}

// Run exercises engine. The engine must start empty.
func Run(t *testing.T, engine persistence.Engine) {
	ctx := context.Background()
	require.NoError(t, engine.Setup(ctx))

	alice := NewUser("alice")
	bob := NewUser("bob")
	carol := NewUser("carol")

	t.Run("users", func(t *testing.T) {
		for _, user := range []models.User{alice, bob, carol} {
			require.NoError(t, engine.CreateUser(ctx, user))
		}

		duplicateEmail := NewUser("alice2")
		duplicateEmail.Email = alice.Email
		assert.ErrorIs(t, engine.CreateUser(ctx, duplicateEmail), persistence.ErrAlreadyExists)

		duplicateUsername := NewUser("bob")
		duplicateUsername.Email = "other@example.com"
		assert.ErrorIs(t, engine.CreateUser(ctx, duplicateUsername), persistence.ErrAlreadyExists)

		found, err := engine.FindUserById(ctx, alice.Id)
		require.NoError(t, err)
		assert.Equal(t, alice.Email, found.Email)
		assert.Equal(t, alice.PasswordHash, found.PasswordHash)

		found, err = engine.FindUserByEmail(ctx, bob.Email)
		require.NoError(t, err)
		assert.Equal(t, bob.Id, found.Id)

		found, err = engine.FindUserByUsername(ctx, "carol")
		require.NoError(t, err)
		assert.Equal(t, carol.Id, found.Id)

		_, err = engine.FindUserById(ctx, uuid.NewString())
		assert.ErrorIs(t, err, persistence.ErrNotFound)

		_, err = engine.FindUserByEmail(ctx, "nobody@example.com")
		assert.ErrorIs(t, err, persistence.ErrNotFound)
	})

	t.Run("search users", func(t *testing.T) {
		users, err := engine.SearchUsers(ctx, "EXAMPLE", alice.Id)
		require.NoError(t, err)

		var usernames []string
		for _, user := range users {
			usernames = append(usernames, user.Username)
		}
		assert.Equal(t, []string{"bob", "carol"}, usernames)

		users, err = engine.SearchUsers(ctx, "car", alice.Id)
		require.NoError(t, err)
		require.Len(t, users, 1)
		assert.Equal(t, carol.Id, users[0].Id)
	})

	base := time.Now().Add(-time.Hour)
	var tasks []models.Task

	t.Run("tasks", func(t *testing.T) {
		for i := 0; i < 5; i++ {
			task := NewTask(alice.Id, fmt.Sprintf("task %d", i), base.Add(time.Duration(i)*time.Minute))
			require.NoError(t, engine.CreateTask(ctx, task))
			tasks = append(tasks, task)
		}
		require.NoError(t, engine.CreateTask(ctx, NewTask(bob.Id, "bob's task", base)))

		page, total, err := engine.ListTasksByOwner(ctx, alice.Id, persistence.Page{Number: 1, Size: 2})
		require.NoError(t, err)
		assert.Equal(t, 5, total)
		require.Len(t, page, 2)
		assert.Equal(t, "task 4", page[0].Title)
		assert.Equal(t, "task 3", page[1].Title)

		page, _, err = engine.ListTasksByOwner(ctx, alice.Id, persistence.Page{Number: 3, Size: 2})
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.Equal(t, "task 0", page[0].Title)

		page, _, err = engine.ListTasksByOwner(ctx, alice.Id, persistence.Page{Number: 4, Size: 2})
		require.NoError(t, err)
		assert.Empty(t, page)

		description := "write the report"
		dueDate := base.Add(48 * time.Hour).UTC().Truncate(time.Millisecond)
		updated := tasks[0]
		updated.Title = "renamed"
		updated.Description = &description
		updated.DueDate = &dueDate
		updated.IsCompleted = true
		updated.Priority = models.PriorityHigh
		updated.UpdatedAt = time.Now().UTC().Truncate(time.Millisecond)
		require.NoError(t, engine.UpdateTask(ctx, updated))

		found, err := engine.FindTask(ctx, updated.Id)
		require.NoError(t, err)
		assert.Equal(t, "renamed", found.Title)
		require.NotNil(t, found.Description)
		assert.Equal(t, description, *found.Description)
		require.NotNil(t, found.DueDate)
		assert.True(t, dueDate.Equal(*found.DueDate))
		assert.True(t, found.IsCompleted)
		assert.Equal(t, models.PriorityHigh, found.Priority)
		assert.Nil(t, found.Category)

		missing := NewTask(alice.Id, "missing", base)
		assert.ErrorIs(t, engine.UpdateTask(ctx, missing), persistence.ErrNotFound)

		_, err = engine.FindTask(ctx, missing.Id)
		assert.ErrorIs(t, err, persistence.ErrNotFound)
	})

	t.Run("shares", func(t *testing.T) {
		task := tasks[1]

		toBob := NewShare(task.Id, bob.Id, alice.Id, models.PermissionEdit)
		toCarol := NewShare(task.Id, carol.Id, alice.Id, models.PermissionView)
		require.NoError(t, engine.CreateShare(ctx, toBob))
		require.NoError(t, engine.CreateShare(ctx, toCarol))
		require.NoError(t, engine.CreateShare(ctx, NewShare(tasks[2].Id, bob.Id, alice.Id, models.PermissionView)))

		duplicate := NewShare(task.Id, bob.Id, alice.Id, models.PermissionView)
		assert.ErrorIs(t, engine.CreateShare(ctx, duplicate), persistence.ErrAlreadyExists)

		found, err := engine.FindShare(ctx, toBob.Id)
		require.NoError(t, err)
		assert.Equal(t, models.PermissionEdit, found.Permission)
		assert.Equal(t, alice.Id, found.SharedBy)

		found, err = engine.FindShareByTaskAndUser(ctx, task.Id, carol.Id)
		require.NoError(t, err)
		assert.Equal(t, toCarol.Id, found.Id)

		_, err = engine.FindShareByTaskAndUser(ctx, tasks[3].Id, carol.Id)
		assert.ErrorIs(t, err, persistence.ErrNotFound)

		shares, err := engine.ListSharesByTask(ctx, task.Id)
		require.NoError(t, err)
		assert.Len(t, shares, 2)

		shares, total, err := engine.ListSharesBySharedWith(ctx, bob.Id, persistence.Page{Number: 1, Size: 20})
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		assert.Len(t, shares, 2)

		require.NoError(t, engine.DeleteShare(ctx, toCarol.Id))
		assert.ErrorIs(t, engine.DeleteShare(ctx, toCarol.Id), persistence.ErrNotFound)

		require.NoError(t, engine.DeleteTask(ctx, task.Id))
		assert.ErrorIs(t, engine.DeleteTask(ctx, task.Id), persistence.ErrNotFound)

		_, err = engine.FindShare(ctx, toBob.Id)
		assert.ErrorIs(t, err, persistence.ErrNotFound)

		shares, total, err = engine.ListSharesBySharedWith(ctx, bob.Id, persistence.Page{Number: 1, Size: 20})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		assert.Len(t, shares, 1)
	})
}
