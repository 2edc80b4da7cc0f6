package httpapi

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"icepos/backend/internal/domain"
	"icepos/backend/internal/store"
)

// AuthorizationError distinguishes "who are you" from "you may not":
// handlers map Reason to 401 or 403 instead of sniffing error strings.
type AuthorizationError struct {
	Reason string
	Denied bool // true when authenticated but lacking privilege
}

func (e *AuthorizationError) Error() string {
	return e.Reason
}

func unauthenticated(reason string) *AuthorizationError {
	return &AuthorizationError{Reason: reason}
}

func forbidden(reason string) *AuthorizationError {
	return &AuthorizationError{Reason: reason, Denied: true}
}

// UserStore is the slice of the repository the auth layer needs.
type UserStore interface {
	GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error)
	CreateUser(ctx context.Context, user domain.UserAccount) error
	UpdateUserPassword(ctx context.Context, username string, passwordHash string) error
}

type AuthManager struct {
	secret    []byte
	tokenTTL  time.Duration
	userStore UserStore
}

type posCustomClaims struct {
	jwtlib.RegisteredClaims
	Role string `json:"role"`
}

func NewAuthManager(secret string, tokenTTL time.Duration, userStore UserStore) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}

	return &AuthManager{
		secret:    []byte(secret),
		tokenTTL:  tokenTTL,
		userStore: userStore,
	}
}

func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	username := strings.ToLower(strings.TrimSpace(req.Username))
	user, err := a.userStore.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.LoginResponse{}, unauthenticated("invalid credentials")
		}
		return domain.LoginResponse{}, err
	}

	if !verifyPassword(user.Password, req.Password) {
		return domain.LoginResponse{}, unauthenticated("invalid credentials")
	}
	if !user.Active {
		return domain.LoginResponse{}, forbidden("account is inactive")
	}

	expiresAt := time.Now().UTC().Add(a.tokenTTL)
	token, err := a.sign(user.Username, user.Role, expiresAt)
	if err != nil {
		return domain.LoginResponse{}, err
	}

	return domain.LoginResponse{
		AccessToken: token,
		Role:        user.Role.String(),
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

func (a *AuthManager) ParseToken(tokenStr string) (domain.Actor, error) {
	claims := &posCustomClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return domain.Actor{}, unauthenticated("invalid or expired token")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domain.Actor{}, unauthenticated("invalid token subject")
	}
	role := domain.ParseRole(claims.Role)
	if !role.Valid() {
		return domain.Actor{}, unauthenticated("unknown role in token")
	}
	return domain.Actor{Username: sub, Role: role}, nil
}

func (a *AuthManager) sign(username string, role domain.Role, expiresAt time.Time) (string, error) {
	claims := posCustomClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwtlib.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    "icepos",
		},
		Role: role.String(),
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func (a *AuthManager) CreateUser(ctx context.Context, req domain.UserCreateRequest) (domain.UserAccount, error) {
	username := strings.ToLower(strings.TrimSpace(req.Username))
	if len(username) < 3 || strings.ContainsAny(username, " \t\r\n") {
		return domain.UserAccount{}, fmt.Errorf("username must be at least 3 characters with no spaces: %w", store.ErrValidation)
	}
	if len(strings.TrimSpace(req.Password)) < 6 {
		return domain.UserAccount{}, fmt.Errorf("password must be at least 6 characters: %w", store.ErrValidation)
	}
	role := domain.ParseRole(req.Role)
	if !role.Valid() {
		return domain.UserAccount{}, fmt.Errorf("unknown role %q: %w", req.Role, store.ErrValidation)
	}

	hash, err := hashPassword(req.Password)
	if err != nil {
		return domain.UserAccount{}, fmt.Errorf("hash password: %w", err)
	}

	user := domain.UserAccount{
		Username:  username,
		Password:  hash,
		Role:      role,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	if err := a.userStore.CreateUser(ctx, user); err != nil {
		return domain.UserAccount{}, err
	}
	user.Password = ""
	return user, nil
}

func (a *AuthManager) ResetPassword(ctx context.Context, req domain.ResetPasswordRequest) error {
	if len(strings.TrimSpace(req.Password)) < 6 {
		return fmt.Errorf("password must be at least 6 characters: %w", store.ErrValidation)
	}
	hash, err := hashPassword(req.Password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return a.userStore.UpdateUserPassword(ctx, req.Username, hash)
}

func verifyPassword(stored string, input string) bool {
	if stored == "" || strings.TrimSpace(input) == "" || !isPasswordHash(stored) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(input)) == nil
}

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func isPasswordHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}
