package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/coaching-console/internal/models"
	appErrors "github.com/noah-isme/coaching-console/pkg/errors"
	"github.com/noah-isme/coaching-console/pkg/response"
)

type sessionService interface {
	Login(token string) (models.UserInfo, error)
	Logout()
	User() (models.UserInfo, bool)
}

type focusTarget interface {
	Focus() int
}

// SessionHandler signs the console operator in and out and relays window focus.
type SessionHandler struct {
	sessions sessionService
	cache    focusTarget
}

// NewSessionHandler constructs SessionHandler.
func NewSessionHandler(sessions sessionService, cache focusTarget) *SessionHandler {
	return &SessionHandler{sessions: sessions, cache: cache}
}

type loginRequest struct {
	Token string `json:"token"`
}

// Login starts a session from an access token issued by the identity service.
func (h *SessionHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindJSON(c, &req) {
		return
	}
	user, err := h.sessions.Login(req.Token)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, user)
}

// Logout ends the session and drops every cached read.
func (h *SessionHandler) Logout(c *gin.Context) {
	h.sessions.Logout()
	response.NoContent(c)
}

// Me returns the signed-in user.
func (h *SessionHandler) Me(c *gin.Context) {
	user, ok := h.sessions.User()
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "no active session"))
		return
	}
	response.OK(c, user)
}

// Focus refreshes stale observed reads after the console regains focus.
func (h *SessionHandler) Focus(c *gin.Context) {
	refreshed := 0
	if h.cache != nil {
		refreshed = h.cache.Focus()
	}
	response.OK(c, gin.H{"refreshed": refreshed})
}
