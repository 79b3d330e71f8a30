package mongodb

import (
	"context"
	"os"
	"testing"

	"github.com/goevery/collabtodo/internal/persistence/persistencetest"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestPersistenceEngine(t *testing.T) {
	uri := os.Getenv("TEST_MONGODB_URI")
	if uri == "" {
		t.Skip("TEST_MONGODB_URI not set")
	}

	ctx := context.Background()
	databaseName := "collabtodo_test_" + uuid.NewString()[:8]

	engine, err := Open(ctx, uri, databaseName)
	require.NoError(t, err)
	defer func() {
		_ = engine.client.Database(databaseName).Drop(ctx)
		_ = engine.Close(ctx)
	}()

	persistencetest.Run(t, engine)
}
