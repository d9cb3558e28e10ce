// Package devnet is an in-process stand-in for the Lens authentication API. It issues
// challenges, verifies personal_sign signatures and hands out ES256 session tokens.
package devnet

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/layer-3/lens-onboard/adapters/lensapi"
	"github.com/layer-3/lens-onboard/core"
	"github.com/layer-3/lens-onboard/ports"
)

// Config tunes the devnet
type Config struct {
	Domain       string
	ChainID      int64
	ChallengeTTL time.Duration
	AccessTTL    time.Duration
	RefreshTTL   time.Duration
	SigningKey   *ecdsa.PrivateKey // generated when nil
	Now          func() time.Time
}

// DefaultConfig mirrors the lifetimes of the hosted API
func DefaultConfig() Config {
	return Config{
		Domain:       "localhost",
		ChainID:      37111,
		ChallengeTTL: 5 * time.Minute,
		AccessTTL:    10 * time.Minute,
		RefreshTTL:   7 * 24 * time.Hour,
	}
}

// Server holds the devnet state
type Server struct {
	cfg      Config
	tokens   *tokenizer
	revoked  ports.KeyValueStore
	eventPub ports.EventPublisher
	now      func() time.Time

	mu         sync.Mutex
	challenges map[string]*challenge
	sessions   map[string]*session
	accounts   map[string]*account // by lowercased address
	usernames  map[string]string   // username -> account address
	lastLogin  map[string]string   // lowercased signer -> account address
}

// New creates a devnet server. revoked records rotated and revoked refresh tokens;
// eventPub may be nil.
func New(cfg Config, revoked ports.KeyValueStore, eventPub ports.EventPublisher) (*Server, error) {
	def := DefaultConfig()
	if cfg.Domain == "" {
		cfg.Domain = def.Domain
	}
	if cfg.ChainID == 0 {
		cfg.ChainID = def.ChainID
	}
	if cfg.ChallengeTTL <= 0 {
		cfg.ChallengeTTL = def.ChallengeTTL
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = def.AccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = def.RefreshTTL
	}
	if cfg.SigningKey == nil {
		key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("generating signing key: %w", err)
		}
		cfg.SigningKey = key
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Server{
		cfg:        cfg,
		tokens:     &tokenizer{signKey: cfg.SigningKey, accessTTL: cfg.AccessTTL, refreshTTL: cfg.RefreshTTL},
		revoked:    revoked,
		eventPub:   eventPub,
		now:        now,
		challenges: make(map[string]*challenge),
		sessions:   make(map[string]*session),
		accounts:   make(map[string]*account),
		usernames:  make(map[string]string),
		lastLogin:  make(map[string]string),
	}, nil
}

// SetupRouter sets up the Gin router serving POST /graphql
func (s *Server) SetupRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.POST("/graphql", s.handleGraphQL)
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return router
}

type graphQLRequest struct {
	OperationName string          `json:"operationName"`
	Query         string          `json:"query"`
	Variables     json.RawMessage `json:"variables"`
}

// opError is reported in the GraphQL errors array
type opError struct {
	code    string
	message string
}

func (e *opError) Error() string { return e.message }

func badInput(format string, args ...any) error {
	return &opError{code: lensapi.CodeBadUserInput, message: fmt.Sprintf(format, args...)}
}

func unauthenticated(message string) error {
	return &opError{code: lensapi.CodeUnauthenticated, message: message}
}

func forbidden(message string) error {
	return &opError{code: lensapi.CodeForbidden, message: message}
}

type operationHandler func(s *Server, c *gin.Context, vars json.RawMessage) (any, error)

var operations = map[string]operationHandler{
	"Challenge":                 (*Server).challenge,
	"Authenticate":              (*Server).authenticate,
	"Refresh":                   (*Server).refresh,
	"CurrentSession":            (*Server).currentSession,
	"AuthenticatedSessions":     (*Server).authenticatedSessions,
	"RevokeAuthentication":      (*Server).revokeAuthentication,
	"LastLoggedInAccount":       (*Server).lastLoggedInAccount,
	"AccountsAvailable":         (*Server).accountsAvailable,
	"CreateAccountWithUsername": (*Server).createAccountWithUsername,
	"SetAccountMetadata":        (*Server).setAccountMetadata,
	"CreateApp":                 (*Server).createApp,
}

func (s *Server) handleGraphQL(c *gin.Context) {
	var req graphQLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	handler, ok := operations[req.OperationName]
	if !ok {
		writeError(c, badInput("unknown operation %q", req.OperationName))
		return
	}

	data, err := handler(s, c, req.Variables)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": data})
}

func writeError(c *gin.Context, err error) {
	gqlErr := lensapi.GraphQLError{Message: err.Error()}
	if oe, ok := err.(*opError); ok {
		gqlErr.Extensions.Code = oe.code
	} else {
		gqlErr.Extensions.Code = "INTERNAL_SERVER_ERROR"
	}
	c.JSON(http.StatusOK, lensapi.Response{Errors: []lensapi.GraphQLError{gqlErr}})
}

// decodeRequest unpacks {"request": ...} variables into dst
func decodeRequest(vars json.RawMessage, dst any) error {
	if len(vars) == 0 {
		return badInput("missing variables")
	}
	wrapper := struct {
		Request any `json:"request"`
	}{Request: dst}
	if err := json.Unmarshal(vars, &wrapper); err != nil {
		return badInput("malformed request: %v", err)
	}
	return nil
}

func bearer(c *gin.Context) string {
	auth := c.GetHeader("Authorization")
	if len(auth) < 8 || !strings.EqualFold(auth[:7], "Bearer ") {
		return ""
	}
	return auth[7:]
}

func key(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

func (s *Server) publish(c *gin.Context, event core.SessionEvent) {
	if s.eventPub == nil {
		return
	}
	if err := s.eventPub.PublishSessionEvent(c.Request.Context(), event); err != nil {
		// the session change already happened
		_ = c.Error(err)
	}
}
