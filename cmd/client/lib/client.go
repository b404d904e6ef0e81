package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/HMasataka/clientserve/internal/livereload"
	ws "github.com/gorilla/websocket"
	"github.com/sourcegraph/jsonrpc2"
	jsonrpc2ws "github.com/sourcegraph/jsonrpc2/websocket"
)

const reloadBuffer = 16

// Client talks to a running server's live reload endpoint.
type Client struct {
	conn    *jsonrpc2.Conn
	reloads chan livereload.ReloadParams
}

// WebSocketURL turns a server URL such as http://127.0.0.1:5000 into the live
// reload endpoint URL.
func WebSocketURL(serverURL, endpoint string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}

	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	u.Path = strings.TrimSuffix(u.Path, "/") + endpoint
	return u.String(), nil
}

func Dial(ctx context.Context, serverURL, endpoint string) (*Client, error) {
	target, err := WebSocketURL(serverURL, endpoint)
	if err != nil {
		return nil, err
	}

	conn, _, err := ws.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect %s: %w", target, err)
	}

	c := &Client{
		reloads: make(chan livereload.ReloadParams, reloadBuffer),
	}
	c.conn = jsonrpc2.NewConn(context.WithoutCancel(ctx), jsonrpc2ws.NewObjectStream(conn), jsonrpc2.HandlerWithError(c.handle))

	return c, nil
}

func (c *Client) handle(_ context.Context, _ *jsonrpc2.Conn, request *jsonrpc2.Request) (any, error) {
	if request.Method != livereload.ReloadMethod {
		return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeMethodNotFound, Message: "unknown method: " + request.Method}
	}
	if request.Params == nil {
		return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: "Invalid params"}
	}

	var params livereload.ReloadParams
	if err := json.Unmarshal(*request.Params, &params); err != nil {
		return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: err.Error()}
	}

	select {
	case c.reloads <- params:
	default:
		slog.Warn("dropping reload, receiver is behind", slog.Int("paths", len(params.Paths)))
	}
	return nil, nil
}

func (c *Client) Ping(ctx context.Context) error {
	var result string
	if err := c.conn.Call(ctx, livereload.PingMethod, nil, &result); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	if result != "pong" {
		return fmt.Errorf("unexpected ping reply %q", result)
	}
	return nil
}

func (c *Client) Status(ctx context.Context) (*livereload.Status, error) {
	var status livereload.Status
	if err := c.conn.Call(ctx, livereload.StatusMethod, nil, &status); err != nil {
		return nil, fmt.Errorf("status failed: %w", err)
	}
	return &status, nil
}

// Reloads delivers reload notifications pushed by the server.
func (c *Client) Reloads() <-chan livereload.ReloadParams {
	return c.reloads
}

// Done is closed when the connection drops.
func (c *Client) Done() <-chan struct{} {
	return c.conn.DisconnectNotify()
}

func (c *Client) Close() error {
	return c.conn.Close()
}
