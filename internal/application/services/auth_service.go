package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/taskforge/core/internal/domain/entities"
	"github.com/taskforge/core/internal/infrastructure/config"
	"github.com/taskforge/core/internal/infrastructure/logger"
	"github.com/taskforge/core/internal/ports"
)

// Claims are the JWT claims embedded in issued tokens.
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// AuthService issues and verifies credentials.
type AuthService struct {
	userRepo  ports.UserRepository
	jwtConfig config.JWTConfig
	logger    *logger.Logger
}

// NewAuthService creates a new auth service.
func NewAuthService(userRepo ports.UserRepository, jwtConfig config.JWTConfig, log *logger.Logger) *AuthService {
	return &AuthService{
		userRepo:  userRepo,
		jwtConfig: jwtConfig,
		logger:    log.WithComponent("auth"),
	}
}

// Register creates a new account and signs it in.
func (s *AuthService) Register(ctx context.Context, req ports.RegisterRequest) (*ports.AuthResponse, error) {
	existing, err := s.userRepo.GetByEmail(ctx, req.Email)
	if err == nil && existing != nil {
		return nil, entities.ErrDuplicateEmail
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now().UTC()
	user := &entities.User{
		ID:           uuid.New(),
		Email:        req.Email,
		Name:         req.Name,
		PasswordHash: string(hashed),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.Infow("User registered", "user_id", user.ID, "email", user.Email)

	return s.issue(user)
}

// Login authenticates an account and returns a token.
func (s *AuthService) Login(ctx context.Context, req ports.LoginRequest) (*ports.AuthResponse, error) {
	user, err := s.userRepo.GetByEmail(ctx, req.Email)
	if err != nil {
		s.logger.Warnw("Login attempt with unknown email", "email", req.Email)
		return nil, entities.ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		s.logger.LogSecurityEvent("login_failed", user.ID.String(), "", nil)
		return nil, entities.ErrInvalidCredentials
	}

	s.logger.Infow("User logged in", "user_id", user.ID)

	return s.issue(user)
}

func (s *AuthService) issue(user *entities.User) (*ports.AuthResponse, error) {
	token, err := s.generateToken(user)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	sanitized := *user
	sanitized.PasswordHash = ""

	return &ports.AuthResponse{
		Token:     token,
		TokenType: "Bearer",
		ExpiresIn: int64(s.jwtConfig.ExpiresIn.Seconds()),
		User:      &sanitized,
	}, nil
}

func (s *AuthService) generateToken(user *entities.User) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: user.ID.String(),
		Email:  user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.jwtConfig.ExpiresIn)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    s.jwtConfig.Issuer,
			Subject:   user.ID.String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.jwtConfig.Secret))
}

// VerifyToken validates a compact token and returns the identity it
// carries. Each failure mode maps to its own sentinel so the HTTP layer
// can report tampering distinctly from expiry.
func (s *AuthService) VerifyToken(tokenString string) (*ports.Identity, error) {
	if tokenString == "" {
		return nil, entities.ErrTokenMissing
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.jwtConfig.Secret), nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, entities.ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, entities.ErrTokenSignatureInvalid
		default:
			return nil, entities.ErrTokenMalformed
		}
	}
	if !token.Valid {
		return nil, entities.ErrTokenSignatureInvalid
	}

	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return nil, entities.ErrTokenMissingClaims
	}
	if claims.Email == "" {
		return nil, entities.ErrTokenMissingClaims
	}

	return &ports.Identity{UserID: userID, Email: claims.Email}, nil
}
