package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"pulse/cmd/internal/auth/token"
	v1 "pulse/contracts/realtime/v1"
)

func newGatewayTokens(t *testing.T) *token.Manager {
	t.Helper()
	m, err := token.NewManager(token.Config{
		Issuer:        "pulse-test",
		AccessSecret:  []byte("gateway-access-secret-0123456789"),
		RefreshSecret: []byte("gateway-refresh-secret-0123456789"),
		AccessTTL:     90 * time.Second,
		RefreshTTL:    360 * time.Hour,
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

type lastSeenRecorder struct {
	mu    sync.Mutex
	stamp map[string]int
}

func (r *lastSeenRecorder) UpdateLastSeen(_ context.Context, profileID string, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stamp == nil {
		r.stamp = make(map[string]int)
	}
	r.stamp[profileID]++
	return nil
}

func (r *lastSeenRecorder) count(profileID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stamp[profileID]
}

type gatewayHarness struct {
	tokens   *token.Manager
	presence *Registry
	parts    *InMemoryParticipantStore
	lastSeen *lastSeenRecorder
	server   *httptest.Server
}

func newGatewayHarness(t *testing.T) *gatewayHarness {
	t.Helper()

	log := testLogger()
	tokens := newGatewayTokens(t)
	presence := NewRegistry(log)
	parts := NewInMemoryParticipantStore()
	lastSeen := &lastSeenRecorder{}

	bus := NewBus(log)
	router := NewRouter(log, presence, parts)
	bus.Subscribe(router.Dispatch)

	gw, err := NewWSGateway(log, GatewayConfig{OriginRequired: false}, tokens, presence, bus, lastSeen)
	if err != nil {
		t.Fatalf("NewWSGateway: %v", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/ws", gw)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	return &gatewayHarness{
		tokens:   tokens,
		presence: presence,
		parts:    parts,
		lastSeen: lastSeen,
		server:   ts,
	}
}

func (h *gatewayHarness) accessToken(t *testing.T, userID, profileID, sessionID string, issuedAt time.Time) string {
	t.Helper()
	pair, err := h.tokens.IssuePair(issuedAt, userID, profileID, sessionID)
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	return pair.AccessToken
}

func (h *gatewayHarness) dial(t *testing.T, accessToken string) *websocket.Conn {
	t.Helper()

	u, err := url.Parse(h.server.URL)
	if err != nil {
		t.Fatalf("url.Parse: %v", err)
	}
	u.Scheme = "ws"
	u.Path = "/ws"
	if accessToken != "" {
		q := u.Query()
		q.Set(wsAccessTokenParam, accessToken)
		u.RawQuery = q.Encode()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, resp, err := websocket.Dial(ctx, u.String(), nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("websocket.Dial: %v", err)
	}
	return conn
}

func sendEnvelope(t *testing.T, conn *websocket.Conn, env v1.Envelope) {
	t.Helper()
	b, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
		t.Fatalf("conn.Write: %v", err)
	}
}

func recvEnvelope(t *testing.T, conn *websocket.Conn) v1.Envelope {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, b, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("conn.Read: %v", err)
	}
	var env v1.Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	return env
}

func queryOnline(t *testing.T, conn *websocket.Conn, profileID string) v1.UserIsOnlinePayload {
	t.Helper()
	payload, _ := json.Marshal(v1.GetUserIsOnlinePayload{ProfileID: profileID})
	sendEnvelope(t, conn, v1.Envelope{
		V:       v1.Version,
		Type:    v1.TypeGetUserIsOnline,
		TS:      time.Now().UTC(),
		Payload: payload,
	})

	env := recvEnvelope(t, conn)
	if env.Type != v1.TypeUserIsOnline {
		t.Fatalf("expected %s, got %s", v1.TypeUserIsOnline, env.Type)
	}
	var p v1.UserIsOnlinePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	return p
}

func TestWSGateway_InvalidTokenErrorFrameAndClose(t *testing.T) {
	h := newGatewayHarness(t)

	conn := h.dial(t, "not-a-valid-token")
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	env := recvEnvelope(t, conn)
	if env.Type != v1.TypeError {
		t.Fatalf("expected error frame, got %s", env.Type)
	}
	var p v1.ErrorPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if p.Code != "unauthenticated" {
		t.Fatalf("expected unauthenticated code, got %q", p.Code)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, _, err := conn.Read(ctx); err == nil {
		t.Fatalf("expected connection closed after auth failure")
	}

	if n := h.presence.Online(); n != 0 {
		t.Fatalf("rejected handshake must not register presence, got %d online", n)
	}
}

func TestWSGateway_ExpiredTokenRejected(t *testing.T) {
	h := newGatewayHarness(t)

	stale := h.accessToken(t, "user-1", "profile-1", "sess-1", time.Now().UTC().Add(-10*time.Minute))
	conn := h.dial(t, stale)
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	env := recvEnvelope(t, conn)
	if env.Type != v1.TypeError {
		t.Fatalf("expected error frame for expired token, got %s", env.Type)
	}
	if n := h.presence.Online(); n != 0 {
		t.Fatalf("expired token must not register presence, got %d online", n)
	}
}

func TestWSGateway_AuthenticatedPresenceQuery(t *testing.T) {
	h := newGatewayHarness(t)

	now := time.Now().UTC()
	conn := h.dial(t, h.accessToken(t, "user-1", "profile-1", "sess-1", now))
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	// Registration precedes the read loop, so a self-query answers true.
	if p := queryOnline(t, conn, "profile-1"); !p.Online || p.ProfileID != "profile-1" {
		t.Fatalf("expected self to be online, got %+v", p)
	}
	if p := queryOnline(t, conn, "profile-unknown"); p.Online {
		t.Fatalf("expected unknown profile to be offline")
	}

	if got := h.lastSeen.count("profile-1"); got < 1 {
		t.Fatalf("expected last-seen stamp on connect, got %d", got)
	}
}

func TestWSGateway_MalformedFramesSilentlyDropped(t *testing.T) {
	h := newGatewayHarness(t)

	now := time.Now().UTC()
	conn := h.dial(t, h.accessToken(t, "user-1", "profile-1", "sess-1", now))
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := conn.Write(ctx, websocket.MessageText, []byte("{not json")); err != nil {
		cancel()
		t.Fatalf("write garbage: %v", err)
	}
	cancel()

	// Unknown type and invalid payload are dropped the same way.
	sendEnvelope(t, conn, v1.Envelope{V: v1.Version, Type: v1.TypeUserIsOnline, TS: time.Now().UTC()})
	badPayload, _ := json.Marshal(v1.GetUserIsOnlinePayload{ProfileID: ""})
	sendEnvelope(t, conn, v1.Envelope{V: v1.Version, Type: v1.TypeGetUserIsOnline, TS: time.Now().UTC(), Payload: badPayload})

	// The connection is still serviceable afterwards.
	if p := queryOnline(t, conn, "profile-1"); !p.Online {
		t.Fatalf("expected connection to survive malformed frames")
	}
}

func TestWSGateway_NonObjectJSONFramesDropped(t *testing.T) {
	h := newGatewayHarness(t)

	now := time.Now().UTC()
	conn := h.dial(t, h.accessToken(t, "user-1", "profile-1", "sess-1", now))
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	// Valid JSON with the wrong top-level type decodes to an unmarshal type
	// error, not a syntax error. All of these must be dropped in place.
	for _, raw := range []string{"[1,2]", `"hi"`, "42", "null"} {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := conn.Write(ctx, websocket.MessageText, []byte(raw))
		cancel()
		if err != nil {
			t.Fatalf("write %s: %v", raw, err)
		}
	}

	if p := queryOnline(t, conn, "profile-1"); !p.Online {
		t.Fatalf("expected connection to survive non-object frames")
	}
}

func TestClassifyReadErr_DecodeFailuresAreBadJSON(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"[1,2]", `"hi"`, "42", "{not json"} {
		var env v1.Envelope
		err := json.Unmarshal([]byte(raw), &env)
		if err == nil {
			t.Fatalf("expected decode failure for %s", raw)
		}

		wrapped := fmt.Errorf("%w: %v", errMalformedFrame, err)
		if got := classifyReadErr(wrapped); got != readErrBadJSON {
			t.Fatalf("wrapped %s: got kind %d, want readErrBadJSON", raw, got)
		}
		// The bare decode error classifies the same way.
		if got := classifyReadErr(err); got != readErrBadJSON {
			t.Fatalf("bare %s: got kind %d, want readErrBadJSON", raw, got)
		}
	}
}

func TestDeriveOriginPatterns(t *testing.T) {
	t.Parallel()

	got := deriveOriginPatternsFromAllowedOrigins([]string{
		"http://localhost:3000",
		"https://app.example.com",
		"http://LOCALHOST",
	})
	want := []string{"app.example.com", "localhost"}
	if len(got) != len(want) {
		t.Fatalf("patterns = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("patterns = %v, want %v", got, want)
		}
	}

	// An explicit "*" in the allowlist must reach websocket.Accept too, or
	// its own origin check would still reject cross-origin handshakes.
	star := deriveOriginPatternsFromAllowedOrigins([]string{"https://app.example.com", "*"})
	if len(star) != 1 || star[0] != "*" {
		t.Fatalf("wildcard allowlist: patterns = %v, want [*]", star)
	}
}

func TestWSGateway_TypingReachesOtherParticipantOnly(t *testing.T) {
	h := newGatewayHarness(t)
	h.parts.SetChat("chat-1", "profile-alice", "profile-bob")

	now := time.Now().UTC()
	alice := h.dial(t, h.accessToken(t, "user-a", "profile-alice", "sess-a", now))
	defer func() { _ = alice.Close(websocket.StatusNormalClosure, "bye") }()
	bob := h.dial(t, h.accessToken(t, "user-b", "profile-bob", "sess-b", now))
	defer func() { _ = bob.Close(websocket.StatusNormalClosure, "bye") }()

	// Both sides are registered once their own read loops answer.
	if p := queryOnline(t, alice, "profile-alice"); !p.Online {
		t.Fatalf("alice not registered")
	}
	if p := queryOnline(t, bob, "profile-bob"); !p.Online {
		t.Fatalf("bob not registered")
	}

	payload, _ := json.Marshal(v1.SendChatActionPayload{ChatID: "chat-1", ActionType: "typing"})
	sendEnvelope(t, alice, v1.Envelope{
		V:       v1.Version,
		Type:    v1.TypeSendChatAction,
		TS:      time.Now().UTC(),
		Payload: payload,
	})

	env := recvEnvelope(t, bob)
	if env.Type != v1.TypeChatAction {
		t.Fatalf("expected %s, got %s", v1.TypeChatAction, env.Type)
	}
	var p v1.ChatActionPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if p.SenderID != "profile-alice" || p.ChatID != "chat-1" || p.ActionType != "typing" {
		t.Fatalf("unexpected chat action payload: %+v", p)
	}

	// The sender's next frame must be the presence reply, not an echo of the
	// action: queue order proves nothing was enqueued in between.
	if reply := queryOnline(t, alice, "profile-bob"); !reply.Online {
		t.Fatalf("expected bob online in sender's follow-up query")
	}
}
