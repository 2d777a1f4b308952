// Package api exposes the HTTP auth surface: register, login, refresh,
// logout, and the authenticated /auth/me probe.
package api

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/oklog/ulid/v2"

	"pulse/cmd/identity"
	"pulse/cmd/internal/auth/session"
	"pulse/cmd/internal/auth/token"
	"pulse/cmd/security/password"
)

// Handler wires the HTTP auth endpoints to the identity store and session
// service.
type Handler struct {
	log      *slog.Logger
	cfg      Config
	identity identity.Store
	sessions *session.Service
	tokens   *token.Manager

	validate *validator.Validate
	throttle *loginThrottle

	// dummyHash makes unknown-telephone logins take the same time as a real
	// bcrypt verification.
	dummyHash string
}

// NewHandler constructs an auth Handler.
func NewHandler(log *slog.Logger, cfg Config, idStore identity.Store, sessions *session.Service, tokens *token.Manager) (*Handler, error) {
	if log == nil || idStore == nil || sessions == nil || tokens == nil {
		return nil, errors.New("api: missing handler dependency")
	}
	cfg = cfg.withDefaults()

	h := &Handler{
		log:      log,
		cfg:      cfg,
		identity: idStore,
		sessions: sessions,
		tokens:   tokens,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		throttle: newLoginThrottle(cfg.LoginFailureMax, cfg.LoginFailureWindow),
	}

	if hash, err := password.Hash("dummy-password-for-timing-only"); err == nil {
		h.dummyHash = hash
	}

	return h, nil
}

// Register wires the auth routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("/auth/register", h.handleRegister)
	mux.HandleFunc("/auth/login", h.handleLogin)
	mux.HandleFunc("/auth/refresh", h.handleRefresh)
	mux.HandleFunc("/auth/logout", h.handleLogout)
	mux.HandleFunc("/auth/me", h.handleMe)
}

// ---- handlers ----

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req registerRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid registration input")
		return
	}

	telephone := identity.NormalizeTelephone(req.Telephone)
	if telephone == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid telephone")
		return
	}

	hash, err := password.Hash(req.Password)
	if err != nil {
		if errors.Is(err, password.ErrPasswordTooLong) {
			writeError(w, http.StatusBadRequest, "invalid_request", "password too long")
			return
		}
		h.log.Error("auth.register.hash.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()

	// The store takes over a profile-less row from an earlier failed attempt,
	// so a username conflict below does not strand the telephone.
	user, err := h.identity.CreateUser(ctx, identity.User{
		ID:           ulid.Make().String(),
		Telephone:    telephone,
		PasswordHash: hash,
		CreatedAt:    now,
	})
	if err != nil {
		if errors.Is(err, identity.ErrConflict) {
			writeError(w, http.StatusConflict, "conflict", "telephone already registered")
			return
		}
		h.log.Error("auth.register.create_user.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	profile := identity.Profile{
		ID:        ulid.Make().String(),
		UserID:    user.ID,
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		Username:  identity.NormalizeUsername(req.Username),
	}
	if err := h.identity.CreateProfile(ctx, profile); err != nil {
		if errors.Is(err, identity.ErrConflict) {
			writeError(w, http.StatusConflict, "conflict", "username already taken")
			return
		}
		h.log.Error("auth.register.create_profile.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	user.ProfileID = profile.ID

	issued, err := h.sessions.Issue(ctx, now, user.ID, profile.ID, h.deviceContext(r))
	if err != nil {
		h.log.Error("auth.register.issue.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	h.log.Info("auth.register.ok", "user_id", user.ID, "profile_id", profile.ID)
	writeJSON(w, http.StatusCreated, registerResponse{
		User:    toUserResponse(user),
		Session: toSessionResponse(issued),
	})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "telephone and password are required")
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()
	telephone := identity.NormalizeTelephone(req.Telephone)
	ipKey := ipThrottleKey(clientIP(r, h.cfg.TrustProxy))

	for _, key := range []string{ipKey, telephone} {
		if blocked, retryAfter := h.throttle.Blocked(key, now); blocked {
			writeRateLimited(w, retryAfter)
			return
		}
	}

	user, err := h.identity.FindByTelephone(ctx, telephone)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			if h.dummyHash != "" {
				_ = password.Verify(req.Password, h.dummyHash)
			}
			h.recordLoginFailure(now, ipKey, telephone)
			writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
			return
		}
		h.log.Error("auth.login.lookup.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	if err := password.Verify(req.Password, user.PasswordHash); err != nil {
		if errors.Is(err, password.ErrMismatch) {
			h.recordLoginFailure(now, ipKey, telephone)
			writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
			return
		}
		h.log.Error("auth.login.verify.fail", "err", err, "user_id", user.ID)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	issued, err := h.sessions.Issue(ctx, now, user.ID, user.ProfileID, h.deviceContext(r))
	if err != nil {
		h.log.Error("auth.login.issue.fail", "err", err, "user_id", user.ID)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	h.throttle.Reset(ipKey)
	h.throttle.Reset(telephone)

	h.log.Info("auth.login.ok", "user_id", user.ID, "session_id", issued.SessionID)
	writeJSON(w, http.StatusOK, loginResponse{
		User:    toUserResponse(user),
		Session: toSessionResponse(issued),
	})
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req refreshRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "refreshToken is required")
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()

	issued, err := h.sessions.Rotate(ctx, now, req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, token.ErrInvalidToken):
			writeError(w, http.StatusUnauthorized, "unauthenticated", "invalid refresh token")
		case errors.Is(err, session.ErrRefreshStale), errors.Is(err, session.ErrSessionNotFound):
			// Terminal for the whole chain: the client must log in again.
			writeError(w, http.StatusUnauthorized, "session_not_active", "session not active")
		default:
			h.log.Error("auth.refresh.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	h.log.Info("auth.refresh.ok", "session_id", issued.SessionID)
	writeJSON(w, http.StatusOK, refreshResponse{Session: toSessionResponse(issued)})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req logoutRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "refreshToken is required")
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()

	if err := h.sessions.Revoke(ctx, now, req.RefreshToken); err != nil {
		switch {
		case errors.Is(err, token.ErrInvalidToken):
			writeError(w, http.StatusUnauthorized, "unauthenticated", "invalid refresh token")
		case errors.Is(err, session.ErrSessionNotFound):
			// Already gone; logout is idempotent from the client's view.
			w.WriteHeader(http.StatusNoContent)
		default:
			h.log.Error("auth.logout.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	claims, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	ctx := r.Context()

	profile, err := h.identity.GetProfile(ctx, claims.ProfileID)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "unauthorized", "profile not found")
			return
		}
		h.log.Error("auth.me.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	writeJSON(w, http.StatusOK, meResponse{
		User:    userResponse{ID: claims.UserID, ProfileID: claims.ProfileID},
		Profile: toProfileResponse(profile),
	})
}

// ---- helpers ----

func (h *Handler) requireAuth(w http.ResponseWriter, r *http.Request) (token.Claims, bool) {
	raw := bearerToken(r)
	if raw == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return token.Claims{}, false
	}
	claims, err := h.tokens.VerifyAccess(raw, time.Now().UTC())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
		return token.Claims{}, false
	}
	return claims, true
}

func (h *Handler) deviceContext(r *http.Request) session.DeviceContext {
	return session.DeviceContext{
		UserAgent: strings.TrimSpace(r.UserAgent()),
		IP:        clientIP(r, h.cfg.TrustProxy),
	}
}

func (h *Handler) recordLoginFailure(now time.Time, keys ...string) {
	for _, key := range keys {
		h.throttle.RecordFailure(key, now)
	}
}

func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		return ""
	}
	parts := strings.SplitN(raw, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func ipThrottleKey(ip net.IP) string {
	if ip == nil {
		return ""
	}
	return "ip:" + ip.String()
}

func clientIP(r *http.Request, trustProxy bool) net.IP {
	if trustProxy {
		if ip := parseForwardedIP(r.Header.Get("X-Forwarded-For")); ip != nil {
			return ip
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip
		}
	}
	return nil
}

func parseForwardedIP(raw string) net.IP {
	if raw == "" {
		return nil
	}
	for _, p := range strings.Split(raw, ",") {
		if ip := net.ParseIP(strings.TrimSpace(p)); ip != nil {
			return ip
		}
	}
	return nil
}
