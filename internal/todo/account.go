package todo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/goevery/collabtodo/internal/auth"
	"github.com/goevery/collabtodo/internal/ierr"
	"github.com/goevery/collabtodo/internal/models"
	"github.com/goevery/collabtodo/internal/persistence"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type TokenIssuer interface {
	IssueToken(auth auth.Authentication) (string, error)
}

type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(hash string, password string) bool
}

type AccountService struct {
	logger    *zap.Logger
	users     persistence.UserStore
	issuer    TokenIssuer
	hasher    PasswordHasher
	validator *Validator
	now       func() time.Time
}

func NewAccountService(
	logger *zap.Logger,
	users persistence.UserStore,
	issuer TokenIssuer,
	hasher PasswordHasher,
	validator *Validator,
) *AccountService {
	return &AccountService{
		logger:    logger,
		users:     users,
		issuer:    issuer,
		hasher:    hasher,
		validator: validator,
		now:       time.Now,
	}
}

func (s *AccountService) Register(ctx context.Context, req RegisterRequest) (UserWithTokenDTO, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Username = strings.TrimSpace(req.Username)

	if err := s.validator.Struct(req); err != nil {
		return UserWithTokenDTO{}, err
	}

	_, err := s.users.FindUserByEmail(ctx, req.Email)
	if err == nil {
		return UserWithTokenDTO{}, ierr.Newf(ierr.ErrorCodeAlreadyExists, "Email already registered")
	}
	if !errors.Is(err, persistence.ErrNotFound) {
		return UserWithTokenDTO{}, ierr.New(ierr.ErrorCodeInternal, err)
	}

	_, err = s.users.FindUserByUsername(ctx, req.Username)
	if err == nil {
		return UserWithTokenDTO{}, ierr.Newf(ierr.ErrorCodeAlreadyExists, "Username already taken")
	}
	if !errors.Is(err, persistence.ErrNotFound) {
		return UserWithTokenDTO{}, ierr.New(ierr.ErrorCodeInternal, err)
	}

	passwordHash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return UserWithTokenDTO{}, ierr.New(ierr.ErrorCodeInternal, err)
	}

	now := s.now().UTC()
	user := models.User{
		Id:           uuid.NewString(),
		Email:        req.Email,
		Username:     req.Username,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = s.users.CreateUser(ctx, user)
	if errors.Is(err, persistence.ErrAlreadyExists) {
		return UserWithTokenDTO{}, ierr.Newf(ierr.ErrorCodeAlreadyExists, "Email or username already registered")
	}
	if err != nil {
		return UserWithTokenDTO{}, ierr.New(ierr.ErrorCodeInternal, err)
	}

	s.logger.Info("user registered",
		zap.String("userId", user.Id),
		zap.String("username", user.Username))

	return s.withToken(user)
}

func (s *AccountService) Login(ctx context.Context, req LoginRequest) (UserWithTokenDTO, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	if err := s.validator.Struct(req); err != nil {
		return UserWithTokenDTO{}, err
	}

	user, err := s.users.FindUserByEmail(ctx, req.Email)
	if errors.Is(err, persistence.ErrNotFound) {
		return UserWithTokenDTO{}, ierr.Newf(ierr.ErrorCodeUnauthenticated, "Invalid email or password")
	}
	if err != nil {
		return UserWithTokenDTO{}, ierr.New(ierr.ErrorCodeInternal, err)
	}

	if !s.hasher.Verify(user.PasswordHash, req.Password) {
		return UserWithTokenDTO{}, ierr.Newf(ierr.ErrorCodeUnauthenticated, "Invalid email or password")
	}

	return s.withToken(user)
}

func (s *AccountService) withToken(user models.User) (UserWithTokenDTO, error) {
	token, err := s.issuer.IssueToken(auth.Authentication{
		UserId:   user.Id,
		Email:    user.Email,
		Username: user.Username,
	})
	if err != nil {
		return UserWithTokenDTO{}, ierr.New(ierr.ErrorCodeInternal, err)
	}

	return UserWithTokenDTO{
		User:  newUserDTO(user),
		Token: token,
	}, nil
}
