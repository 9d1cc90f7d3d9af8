package service

import (
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/noah-isme/coaching-console/internal/models"
	appErrors "github.com/noah-isme/coaching-console/pkg/errors"
)

type sessionCache interface {
	Clear()
}

// SessionConfig defines how access tokens issued by the identity service are verified.
type SessionConfig struct {
	Secret string
	Issuer string
	Now    func() time.Time
}

// SessionService observes the signed-in identity of the console. Identity-scoped reads
// only run while a session is active, and the cache is dropped whenever the identity
// changes.
type SessionService struct {
	cfg    SessionConfig
	cache  sessionCache
	logger *zap.Logger

	mu        sync.Mutex
	claims    *models.SessionClaims
	token     string
	listeners map[uint64]func(models.UserInfo, bool)
	nextID    uint64
}

// NewSessionService constructs a SessionService.
func NewSessionService(cfg SessionConfig, cache sessionCache, logger *zap.Logger) *SessionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &SessionService{cfg: cfg, cache: cache, logger: logger, listeners: make(map[uint64]func(models.UserInfo, bool))}
}

// Validate parses and verifies an access token without changing the session.
func (s *SessionService) Validate(tokenString string) (*models.SessionClaims, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "missing access token")
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.cfg.Now),
		jwt.WithExpirationRequired(),
	}
	if s.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.cfg.Issuer))
	}
	claims := &models.SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.cfg.Secret), nil
	}, opts...)
	if err != nil || !token.Valid {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid or expired token")
	}
	if claims.User().ID == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "token has no subject")
	}
	return claims, nil
}

// Login starts a session for the token's user. Switching to another user drops every
// cached read of the previous one.
func (s *SessionService) Login(tokenString string) (models.UserInfo, error) {
	claims, err := s.Validate(tokenString)
	if err != nil {
		return models.UserInfo{}, err
	}
	user := claims.User()

	s.mu.Lock()
	switched := s.claims == nil || s.claims.User().ID != user.ID
	s.claims = claims
	s.token = tokenString
	listeners := s.listenersLocked()
	s.mu.Unlock()

	if !switched {
		return user, nil
	}
	if s.cache != nil {
		s.cache.Clear()
	}
	s.logger.Info("session started", zap.String("user_id", user.ID), zap.String("role", string(user.Role)))
	for _, fn := range listeners {
		fn(user, true)
	}
	return user, nil
}

// Logout ends the session and clears the cache.
func (s *SessionService) Logout() {
	s.mu.Lock()
	prev := s.claims
	s.claims = nil
	s.token = ""
	listeners := s.listenersLocked()
	s.mu.Unlock()

	if s.cache != nil {
		s.cache.Clear()
	}
	if prev == nil {
		return
	}
	s.logger.Info("session ended", zap.String("user_id", prev.User().ID))
	for _, fn := range listeners {
		fn(models.UserInfo{}, false)
	}
}

// IsAuthenticated reports whether an unexpired session is active.
func (s *SessionService) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeLocked()
}

// User returns the signed-in user.
func (s *SessionService) User() (models.UserInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.activeLocked() {
		return models.UserInfo{}, false
	}
	return s.claims.User(), true
}

// Matches reports whether tokenString is the token of the active session.
func (s *SessionService) Matches(tokenString string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeLocked() && s.token == strings.TrimSpace(tokenString)
}

// OnChange registers fn for sign-in and sign-out events.
func (s *SessionService) OnChange(fn func(user models.UserInfo, signedIn bool)) func() {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.listeners[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *SessionService) activeLocked() bool {
	if s.claims == nil {
		return false
	}
	if s.claims.ExpiresAt != nil && !s.cfg.Now().Before(s.claims.ExpiresAt.Time) {
		return false
	}
	return true
}

func (s *SessionService) listenersLocked() []func(models.UserInfo, bool) {
	out := make([]func(models.UserInfo, bool), 0, len(s.listeners))
	for _, fn := range s.listeners {
		out = append(out, fn)
	}
	return out
}
