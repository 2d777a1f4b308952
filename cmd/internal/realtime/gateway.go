package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/go-playground/validator/v10"

	"pulse/cmd/internal/auth/token"
	v1 "pulse/contracts/realtime/v1"
)

const (
	wsDefaultSendQueueSize = 256
	wsMinSendQueueSize     = 32

	wsDefaultWriteTimeout = 5 * time.Second
	wsDefaultReadIdle     = 2 * time.Minute
	wsCloseGrace          = 1 * time.Second

	wsMaxPingFailures = 3

	wsAccessTokenParam = "accessToken"
)

// AccessVerifier checks an access token presented at handshake time.
type AccessVerifier interface {
	VerifyAccess(tokenString string, now time.Time) (token.Claims, error)
}

// LastSeenStore stamps a profile's last-seen marker on connect and disconnect.
type LastSeenStore interface {
	UpdateLastSeen(ctx context.Context, profileID string, at time.Time) error
}

// Publisher feeds inbound client frames into the event pipeline.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// GatewayConfig carries the tunables for the websocket surface.
// App config resolves these from the environment; zero values fall back to
// the package defaults.
type GatewayConfig struct {
	// OriginRequired rejects handshakes that carry no Origin header.
	OriginRequired bool
	// AllowedOrigins is the handshake origin allowlist ("*" honors any origin).
	AllowedOrigins []string
	// DevInsecure disables origin verification inside websocket.Accept.
	// TLS/dev escape hatch only.
	DevInsecure bool

	WriteTimeout    time.Duration
	ReadIdleTimeout time.Duration
	SendQueueSize   int

	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration

	RateEvents int
	RateWindow time.Duration
}

func (c GatewayConfig) withDefaults() GatewayConfig {
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = wsDefaultWriteTimeout
	}
	if c.ReadIdleTimeout <= 0 {
		c.ReadIdleTimeout = wsDefaultReadIdle
	}
	if c.SendQueueSize < wsMinSendQueueSize {
		c.SendQueueSize = wsDefaultSendQueueSize
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = heartbeatInterval
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = heartbeatTimeout
	}
	if c.RateEvents <= 0 {
		c.RateEvents = rateLimitEvents
	}
	if c.RateWindow <= 0 {
		c.RateWindow = rateLimitWindow
	}
	return c
}

// WSGateway is the websocket entrypoint for Pulse realtime.
//
// It authenticates the handshake with an access token, registers the
// connection in the presence registry, and runs the per-connection read,
// write, and heartbeat loops. Malformed or unknown inbound frames are
// dropped without a reply; only handshake failures produce an error frame.
type WSGateway struct {
	log      *slog.Logger
	verifier AccessVerifier
	presence *Registry
	events   Publisher
	lastSeen LastSeenStore

	cfg GatewayConfig

	// Derived for websocket.Accept origin checks.
	// Accept() authorizes same-host origins by default, but for cross-origin
	// it requires OriginPatterns.
	originPatterns []string

	validate *validator.Validate
}

// NewWSGateway constructs a gateway. verifier, presence, and events are
// required; lastSeen may be nil when no identity store is wired.
func NewWSGateway(log *slog.Logger, cfg GatewayConfig, verifier AccessVerifier, presence *Registry, events Publisher, lastSeen LastSeenStore) (*WSGateway, error) {
	if log == nil || verifier == nil || presence == nil || events == nil {
		return nil, errors.New("realtime: missing gateway dependency")
	}

	cfg = cfg.withDefaults()

	return &WSGateway{
		log:            log,
		verifier:       verifier,
		presence:       presence,
		events:         events,
		lastSeen:       lastSeen,
		cfg:            cfg,
		originPatterns: deriveOriginPatternsFromAllowedOrigins(cfg.AllowedOrigins),
		validate:       validator.New(validator.WithRequiredStructEnabled()),
	}, nil
}

// ServeHTTP adapter so the gateway can be mounted as http.Handler.
func (g *WSGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.HandleWS(w, r)
}

// HandleWS upgrades an HTTP request to a websocket session and runs the
// realtime loop until disconnect.
func (g *WSGateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	if err := g.enforceOrigin(r); err != nil {
		g.log.Info("ws.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:     g.originPatterns,
		InsecureSkipVerify: g.cfg.DevInsecure,
	})
	if err != nil {
		g.log.Error("ws.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	conn.SetReadLimit(maxFrameBytes)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	claims, err := g.authenticate(r)
	if err != nil {
		authFailures.Inc()
		g.log.Info("ws.reject.token", "err", err, "remote", r.RemoteAddr)
		g.writeAuthError(ctx, conn)
		_ = conn.Close(websocket.StatusPolicyViolation, "authentication failed")
		return
	}

	// The peer can vanish between upgrade and authentication.
	select {
	case <-ctx.Done():
		return
	default:
	}

	client := NewClient(claims.ProfileID, claims.SessionID, g.cfg.SendQueueSize)
	g.presence.Register(client)
	connectionsTotal.Inc()
	g.touchLastSeen(ctx, claims.ProfileID)

	// shutdown is idempotent. It does NOT close client.Send.
	// Presence removal resolves by connection, so a delayed close of a
	// superseded connection cannot evict the profile's newer one.
	var closeOnce sync.Once
	shutdown := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			if g.presence.Unregister(client) {
				g.touchLastSeen(context.WithoutCancel(ctx), claims.ProfileID)
			}
			client.Close()
			_ = conn.Close(code, reason)
			cancel()
		})
	}

	rl := NewRateLimiter(g.cfg.RateEvents, g.cfg.RateWindow)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)

		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case env := <-client.Send:
				if err := writeEnvelope(ctx, conn, env, g.cfg.WriteTimeout); err != nil {
					g.log.Info("ws.write.fail", "conn_id", client.ConnID, "close_status", websocket.CloseStatus(err), "err", err)
					shutdown(websocket.StatusAbnormalClosure, "write failed")
					return
				}
			}
		}
	}()

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)

		t := time.NewTicker(g.cfg.HeartbeatInterval)
		defer t.Stop()

		failures := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case <-t.C:
				hbCtx, hbCancel := context.WithTimeout(ctx, g.cfg.HeartbeatTimeout)
				err := conn.Ping(hbCtx)
				hbCancel()

				if err != nil {
					failures++
					g.log.Info("ws.ping.fail", "conn_id", client.ConnID, "failures", failures, "err", err)
					if failures >= wsMaxPingFailures {
						shutdown(websocket.StatusGoingAway, "heartbeat failed")
						return
					}
					continue
				}
				failures = 0
			}
		}
	}()

readLoop:
	for {
		readCtx, readCancel := context.WithTimeout(ctx, g.cfg.ReadIdleTimeout)
		env, err := readEnvelope(readCtx, conn)
		readCancel()

		if err != nil {
			switch classifyReadErr(err) {
			case readErrClose:
				shutdown(websocket.StatusNormalClosure, "peer closed")
				break readLoop
			case readErrCtxDone:
				shutdown(websocket.StatusNormalClosure, "context done")
				break readLoop
			case readErrConnClosed:
				shutdown(websocket.StatusAbnormalClosure, "conn closed")
				break readLoop
			case readErrBadJSON:
				// Malformed frames are dropped without a reply.
				g.log.Debug("ws.drop.bad_json", "conn_id", client.ConnID)
				continue readLoop
			default:
				g.log.Info("ws.read.fail", "conn_id", client.ConnID, "err", err)
				shutdown(websocket.StatusAbnormalClosure, "read failed")
				break readLoop
			}
		}

		now := time.Now().UTC()
		if !rl.Allow(now) {
			shutdown(websocket.StatusPolicyViolation, "rate limited")
			break readLoop
		}

		if err := env.Validate(); err != nil {
			g.log.Debug("ws.drop.bad_envelope", "conn_id", client.ConnID, "err", err)
			continue readLoop
		}

		switch env.Type {
		case v1.TypeGetUserIsOnline:
			g.onGetUserIsOnline(ctx, client, env)

		case v1.TypeSendChatAction:
			g.onSendChatAction(ctx, client, env)

		default:
			// Server-to-client types and anything unrecognized get the same
			// treatment as malformed input.
			g.log.Debug("ws.drop.unhandled", "conn_id", client.ConnID, "type", env.Type)
		}
	}

	shutdown(websocket.StatusNormalClosure, "bye")
	<-writerDone

	select {
	case <-heartbeatDone:
	case <-time.After(wsCloseGrace):
	}
}

// ---- handshake auth ----

func (g *WSGateway) authenticate(r *http.Request) (token.Claims, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(wsAccessTokenParam))
	if raw == "" {
		return token.Claims{}, errors.New("missing access token")
	}
	if len(raw) > maxAccessTokenBytes {
		return token.Claims{}, errors.New("oversized access token")
	}
	return g.verifier.VerifyAccess(raw, time.Now().UTC())
}

// writeAuthError emits the one error frame the gateway ever sends: a rejected
// handshake. The write goes straight to the conn since no client exists yet.
func (g *WSGateway) writeAuthError(ctx context.Context, conn *websocket.Conn) {
	p, _ := json.Marshal(v1.ErrorPayload{Code: "unauthenticated", Message: "invalid access token"})
	env := newEnvelope(v1.TypeError, p, time.Now().UTC())
	_ = writeEnvelope(ctx, conn, env, g.cfg.WriteTimeout)
}

func (g *WSGateway) touchLastSeen(ctx context.Context, profileID string) {
	if g.lastSeen == nil {
		return
	}
	lsCtx, lsCancel := context.WithTimeout(ctx, 2*time.Second)
	defer lsCancel()

	// Best effort: presence must not depend on the identity store being up.
	if err := g.lastSeen.UpdateLastSeen(lsCtx, profileID, time.Now().UTC()); err != nil {
		g.log.Warn("ws.last_seen.fail", "profile_id", profileID, "err", err)
	}
}

// ---- frame handlers ----

func (g *WSGateway) onGetUserIsOnline(ctx context.Context, client *Client, env v1.Envelope) {
	var p v1.GetUserIsOnlinePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		g.log.Debug("ws.drop.bad_payload", "conn_id", client.ConnID, "type", env.Type)
		return
	}
	if err := g.validate.Struct(p); err != nil {
		g.log.Debug("ws.drop.bad_payload", "conn_id", client.ConnID, "type", env.Type)
		return
	}

	reply, _ := json.Marshal(v1.UserIsOnlinePayload{
		ProfileID: p.ProfileID,
		Online:    g.presence.IsOnline(p.ProfileID),
	})
	g.enqueue(ctx, client, newEnvelope(v1.TypeUserIsOnline, reply, time.Now().UTC()))
}

func (g *WSGateway) onSendChatAction(ctx context.Context, client *Client, env v1.Envelope) {
	var p v1.SendChatActionPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		g.log.Debug("ws.drop.bad_payload", "conn_id", client.ConnID, "type", env.Type)
		return
	}
	if err := g.validate.Struct(p); err != nil {
		g.log.Debug("ws.drop.bad_payload", "conn_id", client.ConnID, "type", env.Type)
		return
	}

	ev := ChatAction{
		ChatID:          p.ChatID,
		SenderProfileID: client.ProfileID,
		ActionType:      p.ActionType,
	}
	if err := g.events.Publish(ctx, ev); err != nil {
		g.log.Warn("ws.chat_action.fail", "conn_id", client.ConnID, "chat_id", p.ChatID, "err", err)
	}
}

// ---- send helpers ----

func (g *WSGateway) enqueue(ctx context.Context, client *Client, env v1.Envelope) bool {
	select {
	case <-ctx.Done():
		return false
	case <-client.Done():
		return false
	case client.Send <- env:
		return true
	default:
		framesDropped.WithLabelValues("backpressure").Inc()
		return false
	}
}

// ---- envelope IO ----

func readEnvelope(ctx context.Context, conn *websocket.Conn) (v1.Envelope, error) {
	mt, data, err := conn.Read(ctx)
	if err != nil {
		return v1.Envelope{}, err
	}
	if mt != websocket.MessageText && mt != websocket.MessageBinary {
		return v1.Envelope{}, fmt.Errorf("unsupported message type: %v", mt)
	}
	var env v1.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return v1.Envelope{}, fmt.Errorf("%w: %v", errMalformedFrame, err)
	}
	return env, nil
}

func writeEnvelope(parent context.Context, conn *websocket.Conn, env v1.Envelope, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

// ---- read error classification ----

// errMalformedFrame marks payload bytes that did not decode into an Envelope,
// whatever the JSON top-level type was. These never tear the connection down.
var errMalformedFrame = errors.New("malformed frame")

type readErrKind uint8

const (
	readErrUnknown readErrKind = iota
	readErrClose
	readErrCtxDone
	readErrConnClosed
	readErrBadJSON
)

func classifyReadErr(err error) readErrKind {
	if websocket.CloseStatus(err) != -1 {
		return readErrClose
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return readErrCtxDone
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
		return readErrConnClosed
	}

	if errors.Is(err, errMalformedFrame) {
		return readErrBadJSON
	}
	// Decode errors surfaced without the wrapper still count as bad input.
	var (
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
	)
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return readErrBadJSON
	}
	return readErrUnknown
}

// ---- origin policy ----

func (g *WSGateway) enforceOrigin(r *http.Request) error {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		if g.cfg.OriginRequired {
			return errors.New("missing origin")
		}
		return nil
	}

	if len(g.cfg.AllowedOrigins) == 0 {
		return errors.New("origin not allowed (no allowlist)")
	}

	originHost := originHostOnly(origin)

	for _, a := range g.cfg.AllowedOrigins {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if a == "*" {
			// Strongly discouraged, but honored if explicitly configured.
			return nil
		}

		// Full origin match (scheme + host + optional port).
		if origin == a {
			return nil
		}

		// Host match fallback (ignores port/scheme).
		if originHost != "" && originHost == originHostOnly(a) {
			return nil
		}
	}

	return fmt.Errorf("origin not allowed: %s", origin)
}

func originHostOnly(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	// URL form.
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		h := strings.TrimSpace(u.Host)
		if h == "" {
			return ""
		}
		if host, _, err := net.SplitHostPort(h); err == nil {
			return strings.ToLower(host)
		}
		return strings.ToLower(h)
	}

	// host[:port] form.
	if host, _, err := net.SplitHostPort(s); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(s)
}

func deriveOriginPatternsFromAllowedOrigins(allowed []string) []string {
	// websocket.Accept matches OriginPatterns against the origin host using
	// filepath.Match patterns. Keep this strict: only hosts extracted from the
	// allowlist are accepted.
	seen := make(map[string]struct{}, len(allowed))

	for _, a := range allowed {
		h := originHostOnly(a)
		if h == "" {
			continue
		}
		if h == "*" {
			// Explicit wildcard: any origin host passes, matching enforceOrigin.
			return []string{"*"}
		}
		seen[h] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for h := range seen {
		out = append(out, h)
	}

	// Stable in-file sort (avoid importing sort just for this).
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j] < out[i] {
				out[i], out[j] = out[j], out[i]
			}
		}
	}

	return out
}
