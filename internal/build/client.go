// Package build is the wire layer between the controller and the physics
// build: a persistent connection over which command batches go out and
// observation frames come back, one exchange per simulation step.
package build

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Config holds connection settings for the build.
type Config struct {
	// Addr is the build's websocket endpoint, e.g. "ws://127.0.0.1:1071".
	Addr string
	// AvatarID is the avatar the controller drives.
	AvatarID string
	// StepTimeout bounds one command/frame exchange.
	StepTimeout time.Duration
}

func (c Config) withDefaults() Config {
	out := c
	if out.Addr == "" {
		out.Addr = "ws://127.0.0.1:1071"
	}
	if out.AvatarID == "" {
		out.AvatarID = "a"
	}
	if out.StepTimeout <= 0 {
		out.StepTimeout = 15 * time.Second
	}
	return out
}

// Client drives the build over a single websocket connection.
//
// Expectations:
//   - At most one Step exchange is in flight at a time (mutex-enforced)
//   - Commands of step N are applied by the build before frame N is produced
//   - Any transport or decode failure is fatal: the caller must not retry the
//     step, because the build may already have advanced
type Client struct {
	cfg Config

	mu   sync.Mutex
	conn *websocket.Conn
}

// Dial connects to the build. The scene handshake (create avatar, receive
// static data) is the controller's job; Dial only opens the transport.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	cfg = cfg.withDefaults()
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, cfg.Addr, nil)
	if err != nil {
		return nil, fmt.Errorf("build: dial %s: %w", cfg.Addr, err)
	}
	slog.Info("[BUILD] connected", "addr", cfg.Addr, "avatar", cfg.AvatarID)
	return &Client{cfg: cfg, conn: conn}, nil
}

// AvatarID returns the configured avatar ID.
func (c *Client) AvatarID() string { return c.cfg.AvatarID }

// Step sends one command batch and blocks until the resulting frame arrives.
// An empty batch is valid: the build advances one step with no new commands.
func (c *Client) Step(ctx context.Context, cmds []Command) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("build: %w", err)
	}
	payload, err := MarshalBatch(cmds)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil, errors.New("build: connection closed")
	}

	deadline := time.Now().Add(c.cfg.StepTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return nil, fmt.Errorf("build: set write deadline: %w", err)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return nil, fmt.Errorf("build: send commands: %w", err)
	}
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("build: set read deadline: %w", err)
	}
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("build: read frame: %w", err)
	}
	return DecodeFrame(data)
}

// Close shuts the connection down. Safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
