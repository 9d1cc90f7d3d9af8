package service

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/coaching-console/internal/models"
	appErrors "github.com/noah-isme/coaching-console/pkg/errors"
)

type preferenceStore interface {
	Get(ctx context.Context, userID, key string, dest interface{}) error
	Set(ctx context.Context, userID, key string, value interface{}) error
	Clear(ctx context.Context, userID string) error
}

type userSource interface {
	User() (models.UserInfo, bool)
}

// DefaultPreferences are served when nothing is stored for a key.
var DefaultPreferences = map[string]interface{}{
	"theme":                    "light",
	"dashboard.low_attendance": 75,
	"students.page_size":       25,
	"attendance.default_view":  "month",
}

// PreferenceService persists UI preferences of the signed-in user. Storage failures never
// reach the caller: reads fall back to defaults and writes are logged and dropped.
type PreferenceService struct {
	store    preferenceStore
	users    userSource
	defaults map[string]interface{}
	logger   *zap.Logger
}

// NewPreferenceService constructs a PreferenceService. A nil defaults map uses DefaultPreferences.
func NewPreferenceService(store preferenceStore, users userSource, defaults map[string]interface{}, logger *zap.Logger) *PreferenceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaults == nil {
		defaults = DefaultPreferences
	}
	return &PreferenceService{store: store, users: users, defaults: defaults, logger: logger}
}

// Get fills dest with the stored value of key, or with its default. It reports whether
// dest was filled.
func (s *PreferenceService) Get(ctx context.Context, key string, dest interface{}) bool {
	key = strings.TrimSpace(key)
	if key == "" {
		return false
	}
	err := s.store.Get(ctx, s.userID(), key, dest)
	if err == nil {
		return true
	}
	if !appErrors.Is(err, appErrors.ErrCacheMiss) {
		s.logger.Warn("preference read failed", zap.String("key", key), zap.Error(err))
	}
	return s.fallback(key, dest)
}

// Set stores value under key.
func (s *PreferenceService) Set(ctx context.Context, key string, value interface{}) {
	key = strings.TrimSpace(key)
	if key == "" {
		return
	}
	if err := s.store.Set(ctx, s.userID(), key, value); err != nil {
		s.logger.Warn("preference write dropped", zap.String("key", key), zap.Error(err))
	}
}

// Reset removes every stored preference of the signed-in user.
func (s *PreferenceService) Reset(ctx context.Context) {
	if err := s.store.Clear(ctx, s.userID()); err != nil {
		s.logger.Warn("preference reset failed", zap.Error(err))
	}
}

func (s *PreferenceService) fallback(key string, dest interface{}) bool {
	def, ok := s.defaults[key]
	if !ok {
		return false
	}
	raw, err := json.Marshal(def)
	if err != nil {
		return false
	}
	return json.Unmarshal(raw, dest) == nil
}

func (s *PreferenceService) userID() string {
	if s.users == nil {
		return ""
	}
	user, ok := s.users.User()
	if !ok {
		return ""
	}
	return user.ID
}
