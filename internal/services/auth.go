package services

import (
	"client-registry/internal/config"
	"client-registry/internal/models"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	// RememberTokenTTL is the server-side lifetime of a remember-me token
	RememberTokenTTL = 30 * 24 * time.Hour
	// MinPasswordLength applies to passwords set through ChangePassword
	MinPasswordLength = 6

	defaultSessionTTL = 12 * time.Hour
	tokenIssuer       = "client-registry"
)

// compareHash is swapped in tests to observe comparisons
var compareHash = bcrypt.CompareHashAndPassword

// dummyHash is compared against when the username is unknown so that the
// response takes as long as a wrong password.
var dummyHash = sync.OnceValue(func() []byte {
	h, _ := bcrypt.GenerateFromPassword([]byte("client-registry-dummy"), bcrypt.DefaultCost)
	return h
})

// Claims represents JWT claims
type Claims struct {
	UserID   uint   `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Session is an authenticated operator session
type Session struct {
	User       *models.User `json:"user"`
	Token      string       `json:"token"`
	ExpiresAt  time.Time    `json:"expires_at"`
	Remembered bool         `json:"remembered"`
	// RememberToken is the raw remember-me token, set only by a remembered
	// Login. The caller keeps it and presents it to VerifyRememberToken.
	RememberToken string `json:"remember_token,omitempty"`
}

// AuthService handles operator authentication and remember-me tokens
type AuthService struct {
	db         *gorm.DB
	tokens     *TokenFile
	secret     []byte
	sessionTTL time.Duration
	retries    int
	now        func() time.Time
	log        *zap.Logger
}

// NewAuthService creates a new auth service
func NewAuthService(db *gorm.DB, cfg *config.AuthConfig, tokens *TokenFile, log *zap.Logger, now func() time.Time) *AuthService {
	if now == nil {
		now = time.Now
	}
	ttl, err := time.ParseDuration(cfg.SessionTTL)
	if err != nil || ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &AuthService{
		db:         db,
		tokens:     tokens,
		secret:     []byte(cfg.JWTSecret),
		sessionTTL: ttl,
		retries:    cfg.LoginRetries,
		now:        now,
		log:        log.With(zap.String("component", "auth")),
	}
}

// HashPassword hashes a password using bcrypt
func (s *AuthService) HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckPassword compares hashed password with plain password. Accounts
// provisioned before bcrypt carry an unsalted SHA-256 hex digest; those are
// still accepted and logged.
func (s *AuthService) CheckPassword(hashedPassword, password string) bool {
	if isLegacyHash(hashedPassword) {
		sum := sha256.Sum256([]byte(password))
		ok := subtle.ConstantTimeCompare([]byte(hex.EncodeToString(sum[:])), []byte(strings.ToLower(hashedPassword))) == 1
		if ok {
			s.log.Warn("Account uses a legacy unsalted password hash; change the password to upgrade it")
		}
		return ok
	}
	err := compareHash([]byte(hashedPassword), []byte(password))
	return err == nil
}

func isLegacyHash(h string) bool {
	if len(h) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(h)
	return err == nil
}

// Login verifies credentials and opens a session. With rememberMe a new
// remember token replaces any earlier ones and is saved locally; without it
// the local token file is cleared.
func (s *AuthService) Login(ctx context.Context, username, password string, rememberMe bool) (*Session, error) {
	var user models.User
	err := withRetry(ctx, s.retries, func() error {
		return s.db.WithContext(ctx).Where("username = ?", strings.TrimSpace(username)).First(&user).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		_ = compareHash(dummyHash(), []byte(password))
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if !s.CheckPassword(user.PasswordHash, password) || !user.IsActive {
		s.log.Info("Login rejected", zap.String("username", user.Username))
		return nil, ErrInvalidCredentials
	}

	if err := s.touchLastLogin(ctx, &user); err != nil {
		return nil, err
	}

	var raw string
	if rememberMe {
		if raw, err = s.issueRememberToken(ctx, user.ID); err != nil {
			return nil, err
		}
		if err := s.tokens.Save(raw); err != nil {
			s.log.Warn("Failed to save remember token locally", zap.Error(err))
		}
	} else if err := s.tokens.Clear(); err != nil {
		s.log.Warn("Failed to clear remember token file", zap.Error(err))
	}

	s.log.Info("User logged in", zap.String("username", user.Username), zap.Bool("remember", rememberMe))
	session, err := s.SessionFor(&user, rememberMe)
	if err != nil {
		return nil, err
	}
	session.RememberToken = raw
	return session, nil
}

// VerifyRememberToken resolves a raw remember token to its active user
func (s *AuthService) VerifyRememberToken(ctx context.Context, raw string) (*models.User, error) {
	if raw == "" {
		return nil, ErrInvalidCredentials
	}

	var user models.User
	err := withRetry(ctx, s.retries, func() error {
		return s.db.WithContext(ctx).
			Select("users.*").
			Joins("JOIN remember_tokens ON remember_tokens.user_id = users.id").
			Where("remember_tokens.token_hash = ? AND remember_tokens.expires_at > ? AND users.is_active = ?",
				HashToken(raw), s.now().UTC(), true).
			First(&user).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to verify remember token: %w", err)
	}

	if err := s.touchLastLogin(ctx, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// ResumeSession opens a session from the locally saved remember token
func (s *AuthService) ResumeSession(ctx context.Context) (*Session, error) {
	raw, err := s.tokens.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to read remember token: %w", err)
	}
	if raw == "" {
		return nil, ErrNoSavedSession
	}

	user, err := s.VerifyRememberToken(ctx, raw)
	if errors.Is(err, ErrInvalidCredentials) {
		_ = s.tokens.Clear()
		return nil, ErrNoSavedSession
	}
	if err != nil {
		return nil, err
	}
	return s.SessionFor(user, true)
}

// Logout forgets the locally saved token. The server-side hash stays until
// it expires or the next remembered login replaces it.
func (s *AuthService) Logout() error {
	return s.tokens.Clear()
}

// CleanupExpiredTokens deletes expired remember tokens
func (s *AuthService) CleanupExpiredTokens(ctx context.Context) (int64, error) {
	var affected int64
	err := withRetry(ctx, s.retries, func() error {
		result := s.db.WithContext(ctx).Where("expires_at <= ?", s.now().UTC()).Delete(&models.RememberToken{})
		affected = result.RowsAffected
		return result.Error
	})
	if err != nil {
		return 0, fmt.Errorf("failed to clean up tokens: %w", err)
	}
	return affected, nil
}

// ChangePassword replaces userID's password after verifying the old one
func (s *AuthService) ChangePassword(ctx context.Context, userID uint, oldPassword, newPassword string) error {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}

	if !s.CheckPassword(user.PasswordHash, oldPassword) {
		return ErrInvalidCredentials
	}
	if len(newPassword) < MinPasswordLength {
		return &ValidationError{Errors: []FieldError{{
			Field:   "new_password",
			Message: fmt.Sprintf("must be at least %d characters", MinPasswordLength),
		}}}
	}

	hash, err := s.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	return withRetry(ctx, s.retries, func() error {
		return s.db.WithContext(ctx).Model(&user).Update("password_hash", hash).Error
	})
}

// HasPermission reports whether user holds perm. Admins and holders of
// PermissionAll hold every permission.
func (s *AuthService) HasPermission(user *models.User, perm string) bool {
	if user == nil || !user.IsActive {
		return false
	}
	if user.Role == "admin" {
		return true
	}
	for _, p := range user.PermissionSet() {
		if p == models.PermissionAll || p == perm {
			return true
		}
	}
	return false
}

// EnsureDefaultAdmin creates an admin account when no users exist
func (s *AuthService) EnsureDefaultAdmin(ctx context.Context, username, password string) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hash, err := s.HashPassword(password)
	if err != nil {
		return err
	}
	admin := &models.User{
		Username:     username,
		PasswordHash: hash,
		FullName:     "Administrator",
		Role:         "admin",
		Permissions:  models.PermissionAll,
		IsActive:     true,
	}
	if err := s.db.WithContext(ctx).Create(admin).Error; err != nil {
		return err
	}

	s.log.Warn("Default admin account created; change its password", zap.String("username", username))
	return nil
}

// GenerateToken generates a JWT token for a user
func (s *AuthService) GenerateToken(user *models.User) (string, time.Time, error) {
	now := s.now()
	expirationTime := now.Add(s.sessionTTL)

	claims := &Claims{
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expirationTime),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	return signed, expirationTime, err
}

// ValidateToken validates a JWT token and returns claims
func (s *AuthService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, errors.New("invalid token")
}

// GetUser loads an active user by id
func (s *AuthService) GetUser(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("id = ? AND is_active = ?", id, true).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return &user, err
}

// HashToken returns the stored form of a raw remember token
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func generateRawToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func (s *AuthService) issueRememberToken(ctx context.Context, userID uint) (string, error) {
	raw, err := generateRawToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	record := &models.RememberToken{
		UserID:    userID,
		TokenHash: HashToken(raw),
		ExpiresAt: s.now().UTC().Add(RememberTokenTTL),
	}
	err = withRetry(ctx, s.retries, func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Where("user_id = ?", userID).Delete(&models.RememberToken{}).Error; err != nil {
				return err
			}
			record.ID = 0
			return tx.Create(record).Error
		})
	})
	if err != nil {
		return "", fmt.Errorf("failed to store remember token: %w", err)
	}
	return raw, nil
}

func (s *AuthService) touchLastLogin(ctx context.Context, user *models.User) error {
	now := s.now()
	err := withRetry(ctx, s.retries, func() error {
		return s.db.WithContext(ctx).Model(user).Update("last_login", now).Error
	})
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	user.LastLogin = &now
	return nil
}

// SessionFor issues a signed session for an already authenticated user
func (s *AuthService) SessionFor(user *models.User, remembered bool) (*Session, error) {
	token, expires, err := s.GenerateToken(user)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}
	return &Session{User: user, Token: token, ExpiresAt: expires, Remembered: remembered}, nil
}
