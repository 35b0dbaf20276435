package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/layer-3/didgate/core"
	"github.com/layer-3/didgate/service"
)

// AuthHandlers contains HTTP handlers for auth endpoints
type AuthHandlers struct {
	authService *service.AuthService
	logger      *slog.Logger
}

// NewAuthHandlers creates new auth handlers
func NewAuthHandlers(authService *service.AuthService, logger *slog.Logger) *AuthHandlers {
	return &AuthHandlers{
		authService: authService,
		logger:      logger,
	}
}

// SignupResponse carries a freshly registered identity. The private key is only ever sent here.
type SignupResponse struct {
	DID        string `json:"did"`
	PublicKey  string `json:"publicKey"`
	PrivateKey string `json:"privateKey"`
	Scheme     string `json:"scheme"`
}

type ChallengeRequest struct {
	DID string `json:"did"`
}

type ChallengeResponse struct {
	DID       string     `json:"did"`
	Challenge string     `json:"challenge"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// VerifyRequest carries the login proof. PrivateKey is the field name older
// clients use for the shared-secret proof.
type VerifyRequest struct {
	DID        string `json:"did"`
	Challenge  string `json:"challenge"`
	Proof      string `json:"proof"`
	PrivateKey string `json:"privateKey"`
}

type VerifyResponse struct {
	DID       string `json:"did"`
	Token     string `json:"token"`
	TokenType string `json:"tokenType"`
	ExpiresIn int64  `json:"expiresIn"`
}

type MeResponse struct {
	DID     string `json:"did"`
	Purpose string `json:"purpose"`
}

type ErrorResponse struct {
	Error string    `json:"error"`
	Kind  core.Kind `json:"kind"`
}

// Signup registers a new identity
func (h *AuthHandlers) Signup(c *gin.Context) {
	reg, err := h.authService.Register(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, SignupResponse{
		DID:        reg.DID,
		PublicKey:  reg.PublicCredential,
		PrivateKey: reg.PrivateCredential,
		Scheme:     reg.Scheme,
	})
}

// LoginChallenge issues a challenge for a registered DID
func (h *AuthHandlers) LoginChallenge(c *gin.Context) {
	var req ChallengeRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.DID == "" {
		abortWithMessage(c, core.KindMissingParameters, "Missing DID")
		return
	}

	challenge, err := h.authService.BeginLogin(c.Request.Context(), req.DID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	resp := ChallengeResponse{DID: challenge.DID, Challenge: challenge.Value}
	if !challenge.ExpiresAt.IsZero() {
		expiresAt := challenge.ExpiresAt.UTC()
		resp.ExpiresAt = &expiresAt
	}
	c.JSON(http.StatusOK, resp)
}

// LoginVerify checks the proof and returns a session token
func (h *AuthHandlers) LoginVerify(c *gin.Context) {
	var req VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, core.ErrMissingParameters)
		return
	}

	proof := req.Proof
	if proof == "" {
		proof = req.PrivateKey
	}

	session, err := h.authService.CompleteLogin(c.Request.Context(), req.DID, req.Challenge, proof)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, VerifyResponse{
		DID:       session.DID,
		Token:     session.Token,
		TokenType: "Bearer",
		ExpiresIn: int64(session.ExpiresAt.Sub(session.IssuedAt).Seconds()),
	})
}

// Me returns the authenticated caller
func (h *AuthHandlers) Me(c *gin.Context) {
	principal := PrincipalFromContext(c.Request.Context())
	if principal == nil {
		h.writeError(c, core.ErrUnauthorized)
		return
	}

	c.JSON(http.StatusOK, MeResponse{DID: principal.DID, Purpose: principal.Purpose})
}

// Authorize checks if a caller is authorized
func (h *AuthHandlers) Authorize(c *gin.Context) {
	// The middleware already validated the token
	principal := PrincipalFromContext(c.Request.Context())
	if principal == nil {
		h.writeError(c, core.ErrUnauthorized)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"authorized": true,
		"did":        principal.DID,
	})
}

// Health reports liveness
func (h *AuthHandlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "scheme": h.authService.Scheme()})
}

var errorStatus = map[core.Kind]int{
	core.KindMissingParameters: http.StatusBadRequest,
	core.KindUnknownDID:        http.StatusNotFound,
	core.KindNoActiveChallenge: http.StatusBadRequest,
	core.KindChallengeMismatch: http.StatusUnauthorized,
	core.KindInvalidProof:      http.StatusUnauthorized,
	core.KindUnauthorized:      http.StatusUnauthorized,
	core.KindInternal:          http.StatusInternalServerError,
}

var errorMessage = map[core.Kind]string{
	core.KindMissingParameters: "Missing did, challenge or proof",
	core.KindUnknownDID:        "DID not registered",
	core.KindNoActiveChallenge: "No active login challenge for this DID",
	core.KindChallengeMismatch: "Challenge mismatch",
	core.KindInvalidProof:      "Invalid proof",
	core.KindUnauthorized:      "Invalid or expired token",
	core.KindInternal:          "Internal server error",
}

// writeError maps err to a status and a fixed message; details never reach the client
func (h *AuthHandlers) writeError(c *gin.Context, err error) {
	kind := core.KindOf(err)
	if kind == core.KindInternal {
		h.logger.Error("request failed", "path", c.FullPath(), "error", err)
	}
	abortWithError(c, kind)
}

func abortWithError(c *gin.Context, kind core.Kind) {
	abortWithMessage(c, kind, errorMessage[kind])
}

func abortWithMessage(c *gin.Context, kind core.Kind, message string) {
	c.AbortWithStatusJSON(errorStatus[kind], ErrorResponse{Error: message, Kind: kind})
}
