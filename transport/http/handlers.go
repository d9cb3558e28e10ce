package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	slogctx "github.com/veqryn/slog-context"

	"github.com/layer-3/lens-onboard/core"
	"github.com/layer-3/lens-onboard/ports"
	"github.com/layer-3/lens-onboard/service"
)

// StoreFunc returns the key-value store backing the session of a request
type StoreFunc func(c *gin.Context) ports.KeyValueStore

// SharedStore serves every request from one store
func SharedStore(kv ports.KeyValueStore) StoreFunc {
	return func(*gin.Context) ports.KeyValueStore { return kv }
}

// Deps are the services behind the web backend
type Deps struct {
	Requester     *service.ChallengeRequester
	Authenticator *service.Authenticator
	Queries       *service.SessionQueries
	Onboarder     *service.Onboarder
	Apps          *service.Apps
	Wallet        ports.Signer // nil disables /onboard
	Store         StoreFunc
}

// Handlers contains HTTP handlers for the onboarding endpoints
type Handlers struct {
	Deps
}

// NewHandlers creates new handlers
func NewHandlers(deps Deps) *Handlers {
	return &Handlers{Deps: deps}
}

func (h *Handlers) sessionStore(c *gin.Context) *service.SessionStore {
	return service.NewSessionStore(h.Store(c))
}

// Challenge handles POST /auth/challenge
func (h *Handlers) Challenge(c *gin.Context) {
	var req struct {
		WalletAddress string `json:"walletAddress"`
		service.ChallengeOptions
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	challenge, err := h.Requester.GenerateChallenge(c.Request.Context(), req.WalletAddress, req.ChallengeOptions)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, challenge)
}

// Authenticate handles POST /auth/authenticate and persists the issued tokens
func (h *Handlers) Authenticate(c *gin.Context) {
	var req struct {
		core.Challenge
		Signature string `json:"signature"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	ctx := c.Request.Context()
	tokens, err := h.Authenticator.Authenticate(ctx, req.Challenge, req.Signature)
	if err != nil {
		writeError(c, err)
		return
	}
	if err := h.sessionStore(c).Save(ctx, tokens); err != nil {
		slogctx.Error(ctx, "Failed to persist session", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to persist session"})
		return
	}

	c.JSON(http.StatusOK, tokens)
}

// Onboard handles POST /onboard with the configured wallet
func (h *Handlers) Onboard(c *gin.Context) {
	if h.Wallet == nil {
		writeError(c, core.ErrWalletNotConnected)
		return
	}

	var req service.OnboardRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
	}

	result, err := h.Onboarder.WithStore(h.sessionStore(c)).Run(c.Request.Context(), h.Wallet, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Session handles GET /session
func (h *Handlers) Session(c *gin.Context) {
	ctx := c.Request.Context()
	q := h.Queries.WithStore(h.sessionStore(c))

	handle, ok := q.ResumeSession(ctx)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "No session"})
		return
	}

	resp := gin.H{
		"address": handle.Address(),
		"role":    handle.Role(),
		"app":     handle.App(),
	}
	if info, ok := q.GetCurrentSession(ctx, handle); ok {
		resp["session"] = info
	}
	c.JSON(http.StatusOK, resp)
}

// Sessions handles GET /session/all
func (h *Handlers) Sessions(c *gin.Context) {
	ctx := c.Request.Context()
	q := h.Queries.WithStore(h.sessionStore(c))

	handle, ok := q.ResumeSession(ctx)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "No session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": q.ListAuthenticatedSessions(ctx, handle)})
}

// LastAccount handles GET /accounts/:address/last
func (h *Handlers) LastAccount(c *gin.Context) {
	account, ok := h.Queries.GetLastLoggedInAccount(c.Request.Context(), c.Param("address"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "No account"})
		return
	}
	c.JSON(http.StatusOK, account)
}

// AvailableAccounts handles GET /accounts/:address/available
func (h *Handlers) AvailableAccounts(c *gin.Context) {
	accounts := h.Queries.ListAvailableAccounts(c.Request.Context(), c.Param("address"))
	c.JSON(http.StatusOK, gin.H{"items": accounts})
}

// Logout handles POST /auth/logout. Logging out without a session succeeds.
func (h *Handlers) Logout(c *gin.Context) {
	ctx := c.Request.Context()
	sessions := h.sessionStore(c)
	q := h.Queries.WithStore(sessions)

	var err error
	if handle, ok := q.ResumeSession(ctx); ok {
		err = q.Logout(ctx, handle)
	} else {
		err = sessions.Clear(ctx)
	}
	if err != nil {
		slogctx.Error(ctx, "Failed to clear session", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to logout"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

// CreateApp handles POST /apps under the caller's (builder) session
func (h *Handlers) CreateApp(c *gin.Context) {
	var app service.App
	if err := c.ShouldBindJSON(&app); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	ctx := c.Request.Context()
	handle, ok := h.Queries.WithStore(h.sessionStore(c)).ResumeSession(ctx)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "No session"})
		return
	}

	hash, err := h.Apps.CreateApp(ctx, handle, app)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"txHash": hash})
}

// statusFor maps an error to its response status and public message
func statusFor(err error) (int, string) {
	var validation *core.ValidationError
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest, validation.Error()
	case errors.Is(err, core.ErrWalletNotConnected):
		return http.StatusPreconditionFailed, "Wallet not connected"
	case errors.Is(err, core.ErrFlowInProgress):
		return http.StatusConflict, "Onboarding already in progress"
	case errors.Is(err, core.ErrWrongSigner):
		return http.StatusUnauthorized, "Signature does not match the challenged address"
	case errors.Is(err, core.ErrForbidden):
		return http.StatusForbidden, "Forbidden"
	case errors.Is(err, core.ErrExpiredChallenge):
		return http.StatusGone, "Challenge expired"
	case errors.Is(err, core.ErrBusinessRule):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, core.ErrChallengeGeneration), errors.Is(err, core.ErrTransport):
		return http.StatusBadGateway, "Lens API unavailable"
	default:
		return http.StatusInternalServerError, "Internal error"
	}
}

func writeError(c *gin.Context, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		slogctx.Error(c.Request.Context(), "Request failed", "error", err)
	} else {
		slogctx.Info(c.Request.Context(), "Request rejected", "status", status, "error", err)
	}
	c.JSON(status, gin.H{"error": msg})
}
