package server

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/goevery/collabtodo/internal/auth"
	"github.com/goevery/collabtodo/internal/broadcaster"
	"github.com/goevery/collabtodo/internal/mail"
	"github.com/goevery/collabtodo/internal/persistence/memory"
	"github.com/goevery/collabtodo/internal/todo"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type restClient struct {
	t       *testing.T
	baseURL string
}

func (c restClient) do(method string, path string, token string, body any) (*http.Response, map[string]any) {
	c.t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(c.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)

	return resp, decoded
}

func (c restClient) register(username string) (string, string) {
	c.t.Helper()

	resp, body := c.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"email":    username + "@example.com",
		"username": username,
		"password": "password123",
	})
	require.Equal(c.t, http.StatusCreated, resp.StatusCode, body)

	user := body["user"].(map[string]any)

	return user["id"].(string), body["token"].(string)
}

func newRESTFixture(t *testing.T, authRateLimit int) (restClient, *broadcaster.InMemoryRegistry) {
	t.Helper()

	logger, _ := zap.NewDevelopment()
	engine := memory.NewPersistenceEngine()
	metrics := broadcaster.NewMetrics()
	registry := broadcaster.NewInMemoryRegistry(logger, metrics)
	dispatcher := broadcaster.NewDispatcher(logger, registry, metrics, 1, 64)
	authenticator := auth.NewAuthenticator("test-secret", "todo-app", "todo-app-users", time.Hour)
	validator := todo.NewValidator()

	accounts := todo.NewAccountService(logger, engine, authenticator, auth.NewPasswordHasher(4), validator)
	tasks := todo.NewTaskService(logger, engine, dispatcher, mail.NewLogMailer(logger), validator, "todoapp://tasks/")

	restServer := NewRESTServer(logger, authenticator, accounts, tasks, registry, "test", authRateLimit)

	router := mux.NewRouter()
	restServer.Register(router)

	server := httptest.NewServer(RequestLogger(logger)(router))
	t.Cleanup(server.Close)

	return restClient{t: t, baseURL: server.URL}, registry
}

func TestRESTServer_Auth(t *testing.T) {
	client, _ := newRESTFixture(t, 100)

	_, token := client.register("alice")

	t.Run("duplicate registration", func(t *testing.T) {
		resp, body := client.do(http.MethodPost, "/api/auth/register", "", map[string]string{
			"email":    "alice@example.com",
			"username": "alice2",
			"password": "password123",
		})

		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		assert.Equal(t, "AlreadyExists", body["error"])
	})

	t.Run("invalid registration", func(t *testing.T) {
		resp, body := client.do(http.MethodPost, "/api/auth/register", "", map[string]string{
			"email":    "bob@example.com",
			"username": "bob",
			"password": "short",
		})

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "InvalidArgument", body["error"])
		assert.Contains(t, body["message"], "password")
	})

	t.Run("login", func(t *testing.T) {
		resp, body := client.do(http.MethodPost, "/api/auth/login", "", map[string]string{
			"email":    "alice@example.com",
			"password": "password123",
		})

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.NotEmpty(t, body["token"])
	})

	t.Run("login with a wrong password", func(t *testing.T) {
		resp, body := client.do(http.MethodPost, "/api/auth/login", "", map[string]string{
			"email":    "alice@example.com",
			"password": "wrong-password",
		})

		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "Unauthenticated", body["error"])
	})

	t.Run("validate", func(t *testing.T) {
		resp, body := client.do(http.MethodPost, "/api/auth/validate", token, nil)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, true, body["valid"])
		assert.Equal(t, "alice", body["username"])
	})

	t.Run("validate without a token", func(t *testing.T) {
		resp, _ := client.do(http.MethodPost, "/api/auth/validate", "", nil)

		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("malformed body", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPost, client.baseURL+"/api/auth/login", bytes.NewBufferString("{"))
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestRESTServer_AuthRateLimit(t *testing.T) {
	client, _ := newRESTFixture(t, 2)

	login := map[string]string{"email": "nobody@example.com", "password": "password123"}

	for i := 0; i < 2; i++ {
		resp, _ := client.do(http.MethodPost, "/api/auth/login", "", login)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}

	resp, body := client.do(http.MethodPost, "/api/auth/login", "", login)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "TooManyRequests", body["error"])
}

func TestRESTServer_Tasks(t *testing.T) {
	client, _ := newRESTFixture(t, 100)

	_, aliceToken := client.register("alice")
	bobId, bobToken := client.register("bob")

	resp, task := client.do(http.MethodPost, "/api/tasks", aliceToken, map[string]any{
		"title":    "Buy milk",
		"priority": 2,
		"dueDate":  "2030-01-01T10:00:00Z",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, task)
	taskId := task["id"].(string)

	t.Run("list owned tasks", func(t *testing.T) {
		resp, body := client.do(http.MethodGet, "/api/tasks?page=1&pageSize=10", aliceToken, nil)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, float64(1), body["total"])
		assert.Equal(t, false, body["hasMore"])
		assert.Len(t, body["tasks"], 1)
	})

	t.Run("invalid page", func(t *testing.T) {
		resp, _ := client.do(http.MethodGet, "/api/tasks?page=0", aliceToken, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		resp, _ = client.do(http.MethodGet, "/api/tasks?pageSize=abc", aliceToken, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("requires authentication", func(t *testing.T) {
		resp, _ := client.do(http.MethodGet, "/api/tasks", "", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("stranger cannot read", func(t *testing.T) {
		resp, body := client.do(http.MethodGet, "/api/tasks/"+taskId, bobToken, nil)

		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		assert.Equal(t, "PermissionDenied", body["error"])
	})

	var shareId string

	t.Run("share with edit permission", func(t *testing.T) {
		resp, body := client.do(http.MethodPost, "/api/tasks/share", aliceToken, map[string]string{
			"taskId":          taskId,
			"sharedWithEmail": "bob@example.com",
			"permission":      "edit",
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode, body)

		shareId = body["id"].(string)
		assert.Equal(t, "edit", body["permission"])
		assert.Equal(t, bobId, body["sharedWith"].(map[string]any)["id"])
	})

	t.Run("search users", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, client.baseURL+"/api/tasks/search-users?q=bo", nil)
		req.Header.Set("Authorization", "Bearer "+aliceToken)
		raw, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer raw.Body.Close()
		require.Equal(t, http.StatusOK, raw.StatusCode)

		var users []map[string]any
		require.NoError(t, json.NewDecoder(raw.Body).Decode(&users))
		require.Len(t, users, 1)
		assert.Equal(t, "bob", users[0]["username"])
	})

	t.Run("editor updates", func(t *testing.T) {
		resp, body := client.do(http.MethodPut, "/api/tasks/"+taskId, bobToken, map[string]any{
			"isCompleted": true,
		})

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, true, body["isCompleted"])
	})

	t.Run("shared tasks", func(t *testing.T) {
		resp, body := client.do(http.MethodGet, "/api/tasks/shared", bobToken, nil)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, float64(1), body["total"])
	})

	t.Run("only the owner deletes", func(t *testing.T) {
		resp, _ := client.do(http.MethodDelete, "/api/tasks/"+taskId, bobToken, nil)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("remove share", func(t *testing.T) {
		resp, _ := client.do(http.MethodDelete, "/api/shares/"+shareId, aliceToken, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		resp, _ = client.do(http.MethodGet, "/api/tasks/"+taskId, bobToken, nil)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("owner deletes", func(t *testing.T) {
		resp, _ := client.do(http.MethodDelete, "/api/tasks/"+taskId, aliceToken, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		resp, body := client.do(http.MethodGet, "/api/tasks/"+taskId, aliceToken, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "NotFound", body["error"])
	})
}

func TestRESTServer_Health(t *testing.T) {
	client, registry := newRESTFixture(t, 100)

	registry.Admit("user-1", &discardStream{})

	resp, body := client.do(http.MethodGet, "/health", "", nil)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, float64(1), body["connections"])
	assert.NotEmpty(t, resp.Header.Get(requestIdHeader))

	_, token := client.register("alice")

	resp, body = client.do(http.MethodGet, "/api/connections/stats", token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["totalConnections"])
	assert.Equal(t, []any{"user-1"}, body["connectedUsers"])
}

type discardStream struct{}

func (discardStream) Send(message broadcaster.Message) error { return nil }

func (discardStream) Close(reason broadcaster.CloseReason) {}
