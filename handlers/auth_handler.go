package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/medicrypt/recordvault/middleware"
	"github.com/medicrypt/recordvault/models"
	"github.com/medicrypt/recordvault/services/auth"
	"github.com/medicrypt/recordvault/token"
	"github.com/medicrypt/recordvault/utils"
	"go.uber.org/zap"
)

// SignupRequest represents a request to register a wallet
type SignupRequest struct {
	WalletAddress string `json:"walletAddress" validate:"required,wallet"`
	Role          string `json:"role" validate:"required,oneof=patient doctor researcher"`
}

// SigninRequest carries a wallet signature over a login message
type SigninRequest struct {
	WalletAddress string `json:"walletAddress" validate:"required,wallet"`
	Message       string `json:"message" validate:"required,max=1024"`
	Signature     string `json:"signature" validate:"required"`
}

// MeResponse combines the token claims with the stored user
type MeResponse struct {
	WalletAddress string       `json:"walletAddress"`
	Role          models.Role  `json:"role"`
	ExpiresAt     time.Time    `json:"expires_at"`
	User          *models.User `json:"user"`
}

// AuthService defines the operations the auth handler needs
type AuthService interface {
	Signup(ctx context.Context, walletAddress, role string) (*models.User, error)
	Signin(ctx context.Context, walletAddress, message, signature string) (*auth.Session, error)
	Me(ctx context.Context, identity *token.Identity) (*models.User, error)
}

// AuthHandler handles registration, sign-in and session lookups
type AuthHandler struct {
	auth          AuthService
	secureCookies bool
	logger        *zap.Logger
}

// NewAuthHandler creates a new AuthHandler. secureCookies marks the session
// cookie Secure and should be set whenever the API is served over TLS.
func NewAuthHandler(authService AuthService, secureCookies bool, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		auth:          authService,
		secureCookies: secureCookies,
		logger:        logger,
	}
}

// HandleSignup handles POST /api/auth/signup
func (h *AuthHandler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}

	user, err := h.auth.Signup(r.Context(), req.WalletAddress, req.Role)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteCreated(w, user)
}

// HandleSignin handles POST /api/auth/signin. The token is returned in the
// body and set as an HttpOnly cookie.
func (h *AuthHandler) HandleSignin(w http.ResponseWriter, r *http.Request) {
	var req SigninRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}

	session, err := h.auth.Signin(r.Context(), req.WalletAddress, req.Message, req.Signature)
	if err != nil {
		h.logger.Info("sign-in rejected",
			zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())),
			zap.String("identity", req.WalletAddress),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.AuthTokenCookieName,
		Value:    session.Token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteStrictMode,
	})

	_ = utils.WriteOK(w, session)
}

// HandleMe handles GET /api/auth/me
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentityFromContext(r.Context())
	if identity == nil {
		_ = utils.WriteUnauthorized(w, "Authentication required")
		return
	}

	user, err := h.auth.Me(r.Context(), identity)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, MeResponse{
		WalletAddress: identity.WalletAddress,
		Role:          identity.Role,
		ExpiresAt:     identity.ExpiresAt,
		User:          user,
	})
}
