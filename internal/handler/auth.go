package handler

import (
	"net/http"

	"github.com/rs/xid"
	"go.uber.org/zap"

	"github.com/sakif/volunteer-hub/internal/apperror"
	"github.com/sakif/volunteer-hub/internal/auth"
	"github.com/sakif/volunteer-hub/internal/service"
)

const oauthStateCookie = "oauth_state"

// AuthHandler serves account routes: password registration and login, the
// caller's profile, and (when configured) GitHub sign-in.
//
// DEPENDENCY CHAIN:
//   - svc    *service.AuthService   → all account rules
//   - github *auth.GitHubProvider   → OAuth code exchange; nil disables GitHub routes
type AuthHandler struct {
	svc           *service.AuthService
	github        *auth.GitHubProvider
	maxBody       int64
	secureCookies bool
	logger        *zap.Logger
}

// NewAuthHandler creates an AuthHandler. github may be nil.
func NewAuthHandler(
	svc *service.AuthService,
	github *auth.GitHubProvider,
	maxBody int64,
	secureCookies bool,
	logger *zap.Logger,
) *AuthHandler {
	return &AuthHandler{
		svc:           svc,
		github:        github,
		maxBody:       maxBody,
		secureCookies: secureCookies,
		logger:        logger,
	}
}

// authResponse is the data of every successful sign-in.
type authResponse struct {
	Token string `json:"token"`
	User  any    `json:"user"`
}

// HandleRegister creates an account.
//
// HTTP: POST /api/auth/register
// REQUEST BODY: {"name": "Ann", "email": "ann@example.com", "password": "..."}
// RESPONSE: 201 {token, user: {id, name, email}}
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var in service.RegisterInput
	if err := decodeJSON(w, r, h.maxBody, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	res, err := h.svc.Register(r.Context(), in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, h.logger, http.StatusCreated, "Registration successful",
		authResponse{Token: res.Token, User: res.User.Summary()})
}

// HandleLogin signs in with email and password.
//
// HTTP: POST /api/auth/login
// RESPONSE: 200 {token, user: {id, name, email, skills, causes, bio}}
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var in service.LoginInput
	if err := decodeJSON(w, r, h.maxBody, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	res, err := h.svc.Login(r.Context(), in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, h.logger, http.StatusOK, "Login successful",
		authResponse{Token: res.Token, User: res.User.Public()})
}

// HandleGetProfile returns the caller's profile with events expanded.
//
// HTTP: GET /api/auth/profile
// Auth: Required
func (h *AuthHandler) HandleGetProfile(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	profile, err := h.svc.Profile(r.Context(), userID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, h.logger, http.StatusOK, "", profile)
}

// HandleUpdateProfile applies a partial profile update.
//
// HTTP: PUT /api/auth/profile
// Auth: Required
// REQUEST BODY: any of {"name", "bio", "skills", "causes"}
func (h *AuthHandler) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var in service.UpdateProfileInput
	if err := decodeJSON(w, r, h.maxBody, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	user, err := h.svc.UpdateProfile(r.Context(), userID, in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, h.logger, http.StatusOK, "Profile updated successfully", user)
}

// HandleGitHubLogin redirects the browser to GitHub's authorization page.
//
// HTTP: GET /api/auth/github/login
//
// CSRF PROTECTION VIA STATE:
// A random state value goes into a short-lived cookie and into the GitHub
// URL. The callback only proceeds when both match, which proves the flow was
// started by this browser on this server.
func (h *AuthHandler) HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	state := xid.New().String()

	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600, // 10 minutes
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.github.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGitHubCallback completes the OAuth flow.
//
// HTTP: GET /api/auth/github/callback?code=xxx&state=yyy
// RESPONSE: 200 with the same {token, user} data as HandleLogin.
//
// FLOW:
//  1. Validate the state parameter (CSRF check) and clear the cookie
//  2. Exchange the code for a GitHub profile
//  3. Upsert the account and issue a token (AuthService)
func (h *AuthHandler) HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	// --- Step 1: Validate CSRF state ---
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || stateCookie.Value == "" || r.URL.Query().Get("state") != stateCookie.Value {
		h.logger.Warn("github callback: state mismatch")
		writeError(w, r, h.logger, apperror.ValidationFailed("state", "Invalid OAuth state"))
		return
	}

	// The state is single-use.
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})

	if denied := r.URL.Query().Get("error"); denied != "" {
		h.logger.Info("github callback: authorization denied", zap.String("error", denied))
		writeError(w, r, h.logger, apperror.ValidationFailed("code", "GitHub authorization was denied"))
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, r, h.logger, apperror.ValidationFailed("code", "Missing OAuth code"))
		return
	}

	// --- Step 2: Exchange code for a GitHub profile ---
	ghUser, err := h.github.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Warn("github callback: exchange failed", zap.Error(err))
		writeError(w, r, h.logger, apperror.ValidationFailed("code", "GitHub authentication failed"))
		return
	}

	// --- Step 3: Upsert and issue a token ---
	res, err := h.svc.LoginOrRegisterGitHub(r.Context(), ghUser)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, h.logger, http.StatusOK, "Login successful",
		authResponse{Token: res.Token, User: res.User.Public()})
}
