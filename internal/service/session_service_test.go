package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/coaching-console/internal/models"
	appErrors "github.com/noah-isme/coaching-console/pkg/errors"
)

const testSecret = "console-secret"

type clearCounter struct{ clears int }

func (c *clearCounter) Clear() { c.clears++ }

func signToken(t *testing.T, secret, userID string, expires time.Time) string {
	t.Helper()
	claims := models.SessionClaims{
		UserID:   userID,
		Email:    userID + "@institute.test",
		FullName: "Teacher " + userID,
		Role:     models.RoleTeacher,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    "identity",
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(expires.Add(-time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestSessionLoginAndLogout(t *testing.T) {
	cache := &clearCounter{}
	svc := NewSessionService(SessionConfig{Secret: testSecret, Issuer: "identity"}, cache, nil)

	var events []bool
	stop := svc.OnChange(func(_ models.UserInfo, signedIn bool) { events = append(events, signedIn) })
	defer stop()

	assert.False(t, svc.IsAuthenticated())

	token := signToken(t, testSecret, "u1", time.Now().Add(time.Hour))
	user, err := svc.Login(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)
	assert.True(t, svc.IsAuthenticated())
	assert.True(t, svc.Matches(token))
	assert.Equal(t, 1, cache.clears)

	_, err = svc.Login(token)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.clears, "same user keeps the cache")

	svc.Logout()
	assert.False(t, svc.IsAuthenticated())
	_, ok := svc.User()
	assert.False(t, ok)
	assert.Equal(t, 2, cache.clears)
	assert.Equal(t, []bool{true, false}, events)
}

func TestSessionSwitchingUserClearsCache(t *testing.T) {
	cache := &clearCounter{}
	svc := NewSessionService(SessionConfig{Secret: testSecret}, cache, nil)

	_, err := svc.Login(signToken(t, testSecret, "u1", time.Now().Add(time.Hour)))
	require.NoError(t, err)
	_, err = svc.Login(signToken(t, testSecret, "u2", time.Now().Add(time.Hour)))
	require.NoError(t, err)

	user, ok := svc.User()
	require.True(t, ok)
	assert.Equal(t, "u2", user.ID)
	assert.Equal(t, 2, cache.clears)
}

func TestSessionRejectsBadTokens(t *testing.T) {
	svc := NewSessionService(SessionConfig{Secret: testSecret, Issuer: "identity"}, nil, nil)

	cases := map[string]string{
		"empty":        "",
		"wrong secret": signToken(t, "other", "u1", time.Now().Add(time.Hour)),
		"expired":      signToken(t, testSecret, "u1", time.Now().Add(-time.Minute)),
		"garbage":      "not-a-token",
	}
	for name, token := range cases {
		_, err := svc.Login(token)
		require.Error(t, err, name)
		assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized), name)
	}
	assert.False(t, svc.IsAuthenticated())
}

func TestSessionExpiresWithClock(t *testing.T) {
	now := time.Now()
	svc := NewSessionService(SessionConfig{Secret: testSecret, Now: func() time.Time { return now }}, nil, nil)

	_, err := svc.Login(signToken(t, testSecret, "u1", now.Add(time.Minute)))
	require.NoError(t, err)
	assert.True(t, svc.IsAuthenticated())

	now = now.Add(2 * time.Minute)
	assert.False(t, svc.IsAuthenticated())
}
