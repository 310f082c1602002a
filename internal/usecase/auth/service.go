// Package auth issues and checks bearer tokens for approvers and admins.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"erp-approval-middleware/internal/domain/user"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUsernameTaken      = errors.New("username already exists")
	ErrUnauthorized       = errors.New("invalid or expired token")
	ErrForbidden          = errors.New("insufficient permissions")
)

const TokenType = "bearer"

// Denylist holds revoked token IDs.
type Denylist interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	Revoked(ctx context.Context, jti string) (bool, error)
}

// Claims: Subject is the username, ID the token id used for logout.
type Claims struct {
	Role     string `json:"role"`
	FullName string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Principal is the caller behind a verified token.
type Principal struct {
	Username  string
	FullName  string
	Role      user.Role
	TokenID   string
	ExpiresAt time.Time
}

func (p *Principal) HasRole(roles ...user.Role) bool {
	for _, r := range roles {
		if p.Role == r {
			return true
		}
	}
	return false
}

type UserDTO struct {
	Username string    `json:"username"`
	FullName string    `json:"full_name"`
	Role     user.Role `json:"role"`
}

type TokenDTO struct {
	AccessToken string  `json:"access_token"`
	TokenType   string  `json:"token_type"`
	ExpiresIn   int     `json:"expires_in"` // seconds
	User        UserDTO `json:"user"`
}

type RegisterInput struct {
	Username string
	Password string
	FullName string
}

type Service struct {
	users  user.Repository
	deny   Denylist
	secret []byte
	ttl    time.Duration
	cost   int
	now    func() time.Time
}

type Option func(*Service)

// WithBcryptCost lowers the hashing cost; tests use bcrypt.MinCost.
func WithBcryptCost(c int) Option { return func(s *Service) { s.cost = c } }
func WithClock(f func() time.Time) Option { return func(s *Service) { s.now = f } }

// NewService: deny may be nil, in which case logout is a no-op.
func NewService(users user.Repository, deny Denylist, secret string, ttl time.Duration, opts ...Option) *Service {
	s := &Service{
		users:  users,
		deny:   deny,
		secret: []byte(secret),
		ttl:    ttl,
		cost:   bcrypt.DefaultCost,
		now:    time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (*TokenDTO, error) {
	u, err := s.create(ctx, in, user.RoleApprover)
	if err != nil {
		return nil, err
	}
	return s.issue(u)
}

func (s *Service) create(ctx context.Context, in RegisterInput, role user.Role) (*user.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	name := strings.TrimSpace(in.FullName)
	if name == "" {
		name = in.Username
	}
	u := &user.User{
		Username:     in.Username,
		PasswordHash: string(hash),
		FullName:     name,
		Role:         role,
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, user.ErrDuplicate) {
			return nil, ErrUsernameTaken
		}
		return nil, err
	}
	return u, nil
}

func (s *Service) Login(ctx context.Context, username, password string) (*TokenDTO, error) {
	u, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return s.issue(u)
}

func (s *Service) issue(u *user.User) (*TokenDTO, error) {
	now := s.now()
	claims := Claims{
		Role:     string(u.Role),
		FullName: u.FullName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.Username,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	return &TokenDTO{
		AccessToken: signed,
		TokenType:   TokenType,
		ExpiresIn:   int(s.ttl.Seconds()),
		User:        UserDTO{Username: u.Username, FullName: u.FullName, Role: u.Role},
	}, nil
}

// Authenticate verifies signature, expiry and revocation.
func (s *Service) Authenticate(ctx context.Context, token string) (*Principal, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid || claims.Subject == "" || claims.ID == "" {
		return nil, ErrUnauthorized
	}

	if s.deny != nil {
		revoked, err := s.deny.Revoked(ctx, claims.ID)
		if err != nil {
			return nil, fmt.Errorf("check token revocation: %w", err)
		}
		if revoked {
			return nil, ErrUnauthorized
		}
	}

	return &Principal{
		Username:  claims.Subject,
		FullName:  claims.FullName,
		Role:      user.Role(claims.Role),
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Logout revokes p's token for the rest of its lifetime.
func (s *Service) Logout(ctx context.Context, p *Principal) error {
	if s.deny == nil {
		return nil
	}
	return s.deny.Revoke(ctx, p.TokenID, p.ExpiresAt.Sub(s.now()))
}

func (s *Service) Me(p *Principal) UserDTO {
	return UserDTO{Username: p.Username, FullName: p.FullName, Role: p.Role}
}

// EnsureAdmin creates the admin account if it does not exist yet.
// It never changes an existing user's password or role.
func (s *Service) EnsureAdmin(ctx context.Context, username, password string) (bool, error) {
	if username == "" || password == "" {
		return false, nil
	}
	_, err := s.users.GetByUsername(ctx, username)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, user.ErrNotFound) {
		return false, err
	}
	if _, err := s.create(ctx, RegisterInput{Username: username, Password: password, FullName: "Administrator"}, user.RoleAdmin); err != nil {
		if errors.Is(err, ErrUsernameTaken) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
