package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/goevery/collabtodo/internal/ierr"
	"github.com/golang-jwt/jwt/v5"
)

type Claims struct {
	jwt.RegisteredClaims
	UserId   string `json:"userId"`
	Email    string `json:"email,omitempty"`
	Username string `json:"username,omitempty"`
}

type Authentication struct {
	UserId   string
	Email    string
	Username string
}

type contextKey string

const authenticationKey contextKey = "authentication"

func WithAuthentication(ctx context.Context, auth *Authentication) context.Context {
	return context.WithValue(ctx, authenticationKey, auth)
}

func AuthenticationFromContext(ctx context.Context) (*Authentication, bool) {
	auth, ok := ctx.Value(authenticationKey).(*Authentication)
	return auth, ok
}

type Authenticator struct {
	secret    []byte
	issuer    string
	audience  string
	ttl       time.Duration
	jwtParser *jwt.Parser
	now       func() time.Time
}

func NewAuthenticator(secret string, issuer string, audience string, ttl time.Duration) *Authenticator {
	jwtParser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(30*time.Second),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithIssuer(issuer),
		jwt.WithAudience(audience),
	)

	return &Authenticator{
		secret:    []byte(secret),
		issuer:    issuer,
		audience:  audience,
		ttl:       ttl,
		jwtParser: jwtParser,
		now:       time.Now,
	}
}

func (a *Authenticator) keyFunc(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, ierr.New(ierr.ErrorCodeUnauthenticated, errors.New("unexpected signing method"))
	}
	return a.secret, nil
}

func (a *Authenticator) IssueToken(auth Authentication) (string, error) {
	now := a.now()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    a.issuer,
			Subject:   auth.UserId,
			Audience:  jwt.ClaimStrings{a.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
		UserId:   auth.UserId,
		Email:    auth.Email,
		Username: auth.Username,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	return token.SignedString(a.secret)
}

func (a *Authenticator) AuthenticateJWT(tokenString string) (*Authentication, error) {
	claims := Claims{}

	_, err := a.jwtParser.ParseWithClaims(tokenString, &claims, a.keyFunc)
	if err != nil {
		return nil, ierr.New(ierr.ErrorCodeUnauthenticated, err)
	}

	userId := claims.UserId
	if userId == "" {
		userId, _ = claims.GetSubject()
	}

	if userId == "" {
		return nil, ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("invalid userId claim"))
	}

	return &Authentication{
		UserId:   userId,
		Email:    claims.Email,
		Username: claims.Username,
	}, nil
}

// AuthenticateRequest reads the token from the Authorization header or, for
// clients that cannot set headers on a WebSocket handshake, from the token
// query parameter.
func (a *Authenticator) AuthenticateRequest(r *http.Request) (*Authentication, error) {
	token, ok := BearerToken(r)
	if !ok {
		token = r.URL.Query().Get("token")
	}

	if token == "" {
		return nil, ierr.New(ierr.ErrorCodeUnauthenticated, errors.New("missing token"))
	}

	return a.AuthenticateJWT(token)
}

func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")

	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return "", false
	}

	token = strings.TrimSpace(token)

	return token, token != ""
}
