package memory

import (
	"context"
	"testing"

	"github.com/goevery/collabtodo/internal/models"
	"github.com/goevery/collabtodo/internal/persistence"
	"github.com/goevery/collabtodo/internal/persistence/persistencetest"
	"github.com/stretchr/testify/assert"
)

func TestPersistenceEngine(t *testing.T) {
	persistencetest.Run(t, NewPersistenceEngine())
}

func TestPersistenceEngine_ShareRequiresTask(t *testing.T) {
	engine := NewPersistenceEngine()

	share := persistencetest.NewShare("missing-task", "u1", "u2", models.PermissionView)

	assert.ErrorIs(t, engine.CreateShare(context.Background(), share), persistence.ErrNotFound)
}
