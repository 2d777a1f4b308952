// Package main provides a CI-friendly smoke test for the Pulse realtime
// surface.
//
// It validates:
//   - register over HTTP for two throwaway users
//   - websocket handshake with an access token
//   - presence query answers (self online, peer online)
//   - invalid-token handshake gets an error frame and a close
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"

	v1 "pulse/contracts/realtime/v1"
)

const maxReadBytes = 1 << 20 // 1MiB

type smokeClient struct {
	name      string
	conn      *websocket.Conn
	profileID string

	inbox chan v1.Envelope
	errCh chan error
}

type registered struct {
	accessToken string
	profileID   string
}

func main() {
	var (
		apiURL  = flag.String("api", "http://127.0.0.1:8080", "HTTP API base URL")
		wsURL   = flag.String("url", "ws://127.0.0.1:8080/ws", "WebSocket URL")
		origin  = flag.String("origin", "http://localhost", "Origin header to send (browser-like WS handshake)")
		timeout = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	if err := validateWSURL(*wsURL); err != nil {
		fatalf("invalid -url: %v", err)
	}
	if err := validateOrigin(*origin); err != nil {
		fatalf("invalid -origin: %v", err)
	}

	root := context.Background()

	suffix := time.Now().UnixNano() % 1_000_000_000
	ua := mustRegister(*apiURL, fmt.Sprintf("+1555%09d", suffix), *timeout)
	ub := mustRegister(*apiURL, fmt.Sprintf("+1556%09d", suffix), *timeout)

	a := mustConnect(root, "A", *wsURL, *origin, ua, *timeout)
	defer closeWS(a.conn)

	b := mustConnect(root, "B", *wsURL, *origin, ub, *timeout)
	defer closeWS(b.conn)

	if *verbose {
		fmt.Printf("connected: A=%s B=%s origin=%q\n", a.profileID, b.profileID, *origin)
	}

	mustAssertOnline(root, a, a.profileID, true, *timeout)
	mustAssertOnline(root, a, b.profileID, true, *timeout)
	mustAssertOnline(root, b, a.profileID, true, *timeout)
	mustAssertOnline(root, b, "profile-that-does-not-exist", false, *timeout)

	mustRejectBadToken(root, *wsURL, *origin, *timeout)

	fmt.Printf("OK: A=%s B=%s\n", a.profileID, b.profileID)
}

func validateWSURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("missing host")
	}
	if strings.TrimSpace(u.Path) == "" {
		return errors.New("missing path")
	}
	return nil
}

func validateOrigin(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("origin must be http/https, got: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("origin missing host")
	}
	return nil
}

func mustRegister(apiURL, telephone string, stepTimeout time.Duration) registered {
	body, _ := json.Marshal(map[string]any{
		"telephone": telephone,
		"password":  "smoke-test-password",
		"firstName": "Smoke",
		"lastName":  "Test",
	})

	client := &http.Client{Timeout: stepTimeout}
	resp, err := client.Post(apiURL+"/auth/register", "application/json", bytes.NewReader(body))
	if err != nil {
		fatalf("register %s: %v", telephone, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusCreated {
		fatalf("register %s: status=%d", telephone, resp.StatusCode)
	}

	var out struct {
		User struct {
			ProfileID string `json:"profileId"`
		} `json:"user"`
		Session struct {
			AccessToken string `json:"accessToken"`
		} `json:"session"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		fatalf("register %s: decode: %v", telephone, err)
	}
	if out.Session.AccessToken == "" || out.User.ProfileID == "" {
		fatalf("register %s: missing token or profile id", telephone)
	}
	return registered{accessToken: out.Session.AccessToken, profileID: out.User.ProfileID}
}

func mustConnect(parent context.Context, name, wsURL, origin string, u registered, stepTimeout time.Duration) *smokeClient {
	conn := dialWS(parent, wsURL, origin, u.accessToken, stepTimeout)

	conn.SetReadLimit(maxReadBytes)

	c := &smokeClient{
		name:      name,
		conn:      conn,
		profileID: u.profileID,
		inbox:     make(chan v1.Envelope, 512),
		errCh:     make(chan error, 1),
	}
	c.startReadLoop()
	return c
}

func dialWS(parent context.Context, wsURL, origin, accessToken string, stepTimeout time.Duration) *websocket.Conn {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	u, err := url.Parse(wsURL)
	if err != nil {
		fatalf("parse ws url: %v", err)
	}
	q := u.Query()
	q.Set("accessToken", accessToken)
	u.RawQuery = q.Encode()

	h := http.Header{}
	if strings.TrimSpace(origin) != "" {
		h.Set("Origin", origin)
	}

	conn, resp, err := websocket.Dial(ctx, u.String(), &websocket.DialOptions{HTTPHeader: h})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		fatalf("connect: %v", err)
	}
	return conn
}

func (c *smokeClient) startReadLoop() {
	go func() {
		defer close(c.inbox)

		for {
			mt, data, err := c.conn.Read(context.Background())
			if err != nil {
				select {
				case c.errCh <- err:
				default:
				}
				return
			}

			if mt != websocket.MessageText && mt != websocket.MessageBinary {
				select {
				case c.errCh <- fmt.Errorf("unsupported message type: %v", mt):
				default:
				}
				return
			}

			var env v1.Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				select {
				case c.errCh <- fmt.Errorf("bad json: %w", err):
				default:
				}
				return
			}
			if err := env.Validate(); err != nil {
				select {
				case c.errCh <- fmt.Errorf("bad envelope: %w", err):
				default:
				}
				return
			}

			select {
			case c.inbox <- env:
			default:
				select {
				case c.errCh <- errors.New("inbox overflow: consumer too slow"):
				default:
				}
				return
			}
		}
	}()
}

func mustAssertOnline(parent context.Context, c *smokeClient, profileID string, want bool, stepTimeout time.Duration) {
	env := v1.Envelope{
		V:       v1.Version,
		Type:    v1.TypeGetUserIsOnline,
		ID:      fmt.Sprintf("%s-presence-%s", c.name, profileID),
		TS:      time.Now().UTC(),
		Payload: mustJSON(v1.GetUserIsOnlinePayload{ProfileID: profileID}),
	}
	mustWriteWithTimeout(parent, c.conn, env, stepTimeout)

	reply := c.mustReadUntilType(parent, v1.TypeUserIsOnline, stepTimeout)

	var p v1.UserIsOnlinePayload
	if err := json.Unmarshal(reply.Payload, &p); err != nil {
		fatalf("unmarshal presence payload (%s): %v", c.name, err)
	}
	if p.ProfileID != profileID {
		fatalf("presence profile mismatch (%s): got=%q want=%q", c.name, p.ProfileID, profileID)
	}
	if p.Online != want {
		fatalf("presence mismatch (%s): profile=%s online=%v want=%v", c.name, profileID, p.Online, want)
	}
}

func mustRejectBadToken(parent context.Context, wsURL, origin string, stepTimeout time.Duration) {
	conn := dialWS(parent, wsURL, origin, "not-a-valid-token", stepTimeout)
	defer closeWS(conn)

	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	_, data, err := conn.Read(ctx)
	if err != nil {
		fatalf("bad-token read: %v", err)
	}
	var env v1.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		fatalf("bad-token decode: %v", err)
	}
	if env.Type != v1.TypeError {
		fatalf("bad-token: expected error frame, got %q", env.Type)
	}

	if _, _, err := conn.Read(ctx); err == nil {
		fatalf("bad-token: expected close after error frame")
	}
}

func (c *smokeClient) mustReadUntilType(parent context.Context, wantType string, stepTimeout time.Duration) v1.Envelope {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			fatalf("timeout waiting for %q (%s): %v", wantType, c.name, ctx.Err())
		case err := <-c.errCh:
			if err == nil {
				fatalf("connection closed while waiting for %q (%s)", wantType, c.name)
			}
			fatalf("connection error while waiting for %q (%s): %v", wantType, c.name, err)
		case env, ok := <-c.inbox:
			if !ok {
				fatalf("connection closed while waiting for %q (%s)", wantType, c.name)
			}
			if env.Type == wantType {
				return env
			}
			if env.Type == v1.TypeError {
				var ep v1.ErrorPayload
				_ = json.Unmarshal(env.Payload, &ep)
				fatalf("server error (%s): code=%q msg=%q", c.name, ep.Code, ep.Message)
			}
		}
	}
}

func mustWriteWithTimeout(parent context.Context, conn *websocket.Conn, env v1.Envelope, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		fatalf("marshal envelope: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
		fatalf("write failed: %v", err)
	}
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func closeWS(conn *websocket.Conn) {
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
