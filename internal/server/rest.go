package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/goevery/collabtodo/internal/auth"
	"github.com/goevery/collabtodo/internal/broadcaster"
	"github.com/goevery/collabtodo/internal/ierr"
	"github.com/goevery/collabtodo/internal/todo"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const (
	serviceName     = "collabtodo"
	maxRequestBytes = 1 << 20
)

type RESTServer struct {
	logger *zap.Logger

	authenticator RequestAuthenticator
	accounts      *todo.AccountService
	tasks         *todo.TaskService
	registry      broadcaster.Registry

	version       string
	authRateLimit int
	startedAt     time.Time
}

func NewRESTServer(
	logger *zap.Logger,
	authenticator RequestAuthenticator,
	accounts *todo.AccountService,
	tasks *todo.TaskService,
	registry broadcaster.Registry,
	version string,
	authRateLimit int,
) *RESTServer {
	return &RESTServer{
		logger:        logger,
		authenticator: authenticator,
		accounts:      accounts,
		tasks:         tasks,
		registry:      registry,
		version:       version,
		authRateLimit: authRateLimit,
		startedAt:     time.Now(),
	}
}

func (s *RESTServer) Register(router *mux.Router) {
	router.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)
	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	authRouter := router.PathPrefix("/api/auth").Subrouter()
	authRouter.HandleFunc("/health", s.handleAuthHealth).Methods(http.MethodGet)
	authRouter.HandleFunc("/validate", Authenticated(s.authenticator, s.handleValidate)).Methods(http.MethodPost)

	limited := authRouter.NewRoute().Subrouter()
	limited.Use(RateLimitByIP(s.authRateLimit, time.Minute))
	limited.HandleFunc("/register", s.handleRegister).Methods(http.MethodPost)
	limited.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)

	taskRouter := router.PathPrefix("/api/tasks").Subrouter()
	taskRouter.HandleFunc("", Authenticated(s.authenticator, s.handleListTasks)).Methods(http.MethodGet)
	taskRouter.HandleFunc("", Authenticated(s.authenticator, s.handleCreateTask)).Methods(http.MethodPost)
	taskRouter.HandleFunc("/share", Authenticated(s.authenticator, s.handleShareTask)).Methods(http.MethodPost)
	taskRouter.HandleFunc("/search-users", Authenticated(s.authenticator, s.handleSearchUsers)).Methods(http.MethodGet)
	taskRouter.HandleFunc("/shared", Authenticated(s.authenticator, s.handleSharedTasks)).Methods(http.MethodGet)
	taskRouter.HandleFunc("/{taskId}", Authenticated(s.authenticator, s.handleGetTask)).Methods(http.MethodGet)
	taskRouter.HandleFunc("/{taskId}", Authenticated(s.authenticator, s.handleUpdateTask)).Methods(http.MethodPut)
	taskRouter.HandleFunc("/{taskId}", Authenticated(s.authenticator, s.handleDeleteTask)).Methods(http.MethodDelete)

	router.HandleFunc("/api/shares/{shareId}", Authenticated(s.authenticator, s.handleRemoveShare)).Methods(http.MethodDelete)
	router.HandleFunc("/api/connections/stats", Authenticated(s.authenticator, s.handleConnectionStats)).Methods(http.MethodGet)
}

func (s *RESTServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Collaborative Todo API",
		"version": s.version,
	})
}

type healthResponse struct {
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	Service     string    `json:"service"`
	Version     string    `json:"version"`
	Uptime      float64   `json:"uptime"`
	Connections int       `json:"connections"`
}

func (s *RESTServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:      "healthy",
		Timestamp:   time.Now().UTC(),
		Service:     serviceName,
		Version:     s.version,
		Uptime:      time.Since(s.startedAt).Seconds(),
		Connections: len(s.registry.Connections()),
	})
}

func (s *RESTServer) handleAuthHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "auth",
	})
}

func (s *RESTServer) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req todo.RegisterRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := s.accounts.Register(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

func (s *RESTServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req todo.LoginRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := s.accounts.Login(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

type validateResponse struct {
	Valid    bool   `json:"valid"`
	UserId   string `json:"userId"`
	Email    string `json:"email"`
	Username string `json:"username"`
}

func (s *RESTServer) handleValidate(w http.ResponseWriter, r *http.Request) {
	authentication := mustAuthentication(r)

	writeJSON(w, http.StatusOK, validateResponse{
		Valid:    true,
		UserId:   authentication.UserId,
		Email:    authentication.Email,
		Username: authentication.Username,
	})
}

func (s *RESTServer) handleListTasks(w http.ResponseWriter, r *http.Request) {
	page, pageSize, err := parsePage(r)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := s.tasks.ListTasks(r.Context(), mustAuthentication(r).UserId, page, pageSize)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *RESTServer) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req todo.TaskCreate
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := s.tasks.CreateTask(r.Context(), mustAuthentication(r).UserId, req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

func (s *RESTServer) handleShareTask(w http.ResponseWriter, r *http.Request) {
	var req todo.ShareCreate
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := s.tasks.ShareTask(r.Context(), mustAuthentication(r).UserId, req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

func (s *RESTServer) handleSearchUsers(w http.ResponseWriter, r *http.Request) {
	result, err := s.tasks.SearchUsers(r.Context(), mustAuthentication(r).UserId, r.URL.Query().Get("q"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *RESTServer) handleSharedTasks(w http.ResponseWriter, r *http.Request) {
	page, pageSize, err := parsePage(r)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := s.tasks.SharedTasks(r.Context(), mustAuthentication(r).UserId, page, pageSize)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *RESTServer) handleGetTask(w http.ResponseWriter, r *http.Request) {
	result, err := s.tasks.GetTask(r.Context(), mustAuthentication(r).UserId, mux.Vars(r)["taskId"])
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *RESTServer) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	var req todo.TaskUpdate
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := s.tasks.UpdateTask(r.Context(), mustAuthentication(r).UserId, mux.Vars(r)["taskId"], req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *RESTServer) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	err := s.tasks.DeleteTask(r.Context(), mustAuthentication(r).UserId, mux.Vars(r)["taskId"])
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Task deleted successfully"})
}

func (s *RESTServer) handleRemoveShare(w http.ResponseWriter, r *http.Request) {
	err := s.tasks.RemoveShare(r.Context(), mustAuthentication(r).UserId, mux.Vars(r)["shareId"])
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Share removed successfully"})
}

func (s *RESTServer) handleConnectionStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, broadcaster.CollectStats(s.registry, time.Now()))
}

func (s *RESTServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if ierr.CodeOf(err) == ierr.ErrorCodeInternal {
		s.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}

	writeError(w, err)
}

func mustAuthentication(r *http.Request) *auth.Authentication {
	authentication, ok := auth.AuthenticationFromContext(r.Context())
	if !ok {
		panic("handler requires an authenticated request")
	}

	return authentication
}

func parsePage(r *http.Request) (int, int, error) {
	page, err := queryInt(r, "page", todo.DefaultPage)
	if err != nil {
		return 0, 0, err
	}

	pageSize, err := queryInt(r, "pageSize", todo.DefaultPageSize)
	if err != nil {
		return 0, 0, err
	}

	return page, pageSize, nil
}

func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}

	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, ierr.Newf(ierr.ErrorCodeInvalidArgument, name+" must be an integer")
	}

	return value, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(v)
	if errors.Is(err, io.EOF) {
		return ierr.Newf(ierr.ErrorCodeInvalidArgument, "Request body is required")
	}
	if err != nil {
		return ierr.Newf(ierr.ErrorCodeInvalidArgument, "Invalid request body")
	}

	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	var e ierr.Error
	if !errors.As(err, &e) || e.Code == ierr.ErrorCodeInternal {
		writeJSON(w, http.StatusInternalServerError, ierr.Error{
			Code:    ierr.ErrorCodeInternal,
			Message: "Internal server error",
		})

		return
	}

	writeJSON(w, e.HTTPStatus(), e)
}
