package user

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"golang.org/x/crypto/argon2"
)

const (
	argonTime    uint32 = 1
	argonMemory  uint32 = 64 * 1024
	argonThreads uint8  = 4
	argonKeyLen  uint32 = 32
	argonSaltLen        = 16
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// Verifier authenticates a resource owner's credentials within a tenant.
// Lockout policy and multi-factor flows live outside this interface.
type Verifier interface {
	Verify(ctx context.Context, tenantID snowflake.ID, usernameOrEmail, password string) (snowflake.ID, error)
}

// RoleSource returns the role claims for a user.
type RoleSource interface {
	RolesFor(ctx context.Context, userID snowflake.ID) ([]string, error)
}

// Service is the store-backed Verifier and RoleSource.
type Service struct {
	log  *zap.Logger
	repo Repository
}

func NewService(log *zap.Logger, repo Repository) *Service {
	return &Service{
		log:  log.Named("user.service"),
		repo: repo,
	}
}

// Verify checks the password against the stored argon2id hash. Unknown
// users and wrong passwords are indistinguishable to the caller.
func (s *Service) Verify(ctx context.Context, tenantID snowflake.ID, usernameOrEmail, password string) (snowflake.ID, error) {
	if strings.TrimSpace(usernameOrEmail) == "" || password == "" {
		return 0, ErrInvalidCredentials
	}

	found, err := s.repo.FindByLogin(ctx, tenantID, usernameOrEmail)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return 0, ErrInvalidCredentials
		}
		return 0, err
	}
	if !found.IsActive || found.PasswordHash == nil {
		return 0, ErrInvalidCredentials
	}
	if !verifyPassword(password, *found.PasswordHash) {
		return 0, ErrInvalidCredentials
	}
	return found.ID, nil
}

// RolesFor returns the stored role claims for the user.
func (s *Service) RolesFor(ctx context.Context, userID snowflake.ID) ([]string, error) {
	found, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	roles := make([]string, 0, len(found.Roles))
	roles = append(roles, found.Roles...)
	return roles, nil
}

// HashPassword produces an encoded argon2id hash suitable for storage.
func HashPassword(password string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	key := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		argonMemory,
		argonTime,
		argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

func verifyPassword(password, encoded string) bool {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false
	}

	var memory, iterations uint32
	var parallelism uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false
	}

	key := argon2.IDKey([]byte(password), salt, iterations, memory, parallelism, uint32(len(expected)))
	return subtle.ConstantTimeCompare(key, expected) == 1
}
