package livereload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/HMasataka/logging"
	"github.com/gammazero/workerpool"
	ws "github.com/gorilla/websocket"
	"github.com/samber/lo"
	"github.com/sourcegraph/jsonrpc2"
	jsonrpc2ws "github.com/sourcegraph/jsonrpc2/websocket"
)

const (
	ReloadMethod = "reload"
	PingMethod   = "ping"
	StatusMethod = "status"
)

var ErrHubClosed = errors.New("livereload hub is closed")

type ReloadParams struct {
	Paths   []string `json:"paths"`
	Changes []Change `json:"changes"`
}

type Status struct {
	Clients    int       `json:"clients"`
	Reloads    int       `json:"reloads"`
	LastReload time.Time `json:"lastReload,omitzero"`
}

type HubOptions struct {
	Workers      int
	WriteTimeout time.Duration
}

func DefaultHubOptions() HubOptions {
	return HubOptions{
		Workers:      4,
		WriteTimeout: 5 * time.Second,
	}
}

// Hub keeps the connected browser clients and pushes reload notifications to
// them over JSON-RPC on a websocket.
type Hub struct {
	upgrader ws.Upgrader
	options  HubOptions
	pool     *workerpool.WorkerPool

	mu         sync.RWMutex
	clients    map[*jsonrpc2.Conn]struct{}
	reloads    int
	lastReload time.Time
	closed     bool
}

var _ Notifier = (*Hub)(nil)

func NewHub(options HubOptions) *Hub {
	if options.Workers <= 0 {
		options.Workers = 1
	}

	return &Hub{
		upgrader: ws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		options: options,
		pool:    workerpool.New(options.Workers),
		clients: make(map[*jsonrpc2.Conn]struct{}),
	}
}

// ServeHTTP upgrades the request and blocks until the client goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		http.Error(w, ErrHubClosed.Error(), http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("failed to upgrade connection", slog.String("error", err.Error()))
		return
	}

	ctx := context.WithoutCancel(r.Context())
	stream := deadlineStream{ObjectStream: jsonrpc2ws.NewObjectStream(conn), conn: conn, timeout: h.options.WriteTimeout}
	rpc := jsonrpc2.NewConn(ctx, stream, jsonrpc2.AsyncHandler(h), jsonrpc2.SetLogger(rpcLogger{}))

	if err := h.add(rpc); err != nil {
		rpc.Close()
		return
	}
	if logging.HasLoggingContext(ctx) {
		slog.InfoContext(ctx, "livereload client connected", slog.String("remote", r.RemoteAddr))
	} else {
		slog.Debug("livereload client connected", slog.String("remote", r.RemoteAddr))
	}

	<-rpc.DisconnectNotify()

	h.remove(rpc)
	slog.Debug("livereload client disconnected", slog.String("remote", r.RemoteAddr))
}

func (h *Hub) add(conn *jsonrpc2.Conn) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrHubClosed
	}
	h.clients[conn] = struct{}{}
	return nil
}

func (h *Hub) remove(conn *jsonrpc2.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.clients, conn)
}

// Handle answers calls made by a browser client.
func (h *Hub) Handle(ctx context.Context, conn *jsonrpc2.Conn, request *jsonrpc2.Request) {
	if request.Notif {
		return
	}

	switch request.Method {
	case PingMethod:
		if err := conn.Reply(ctx, request.ID, "pong"); err != nil {
			slog.Error("failed to send ping reply", "error", err)
		}
	case StatusMethod:
		if err := conn.Reply(ctx, request.ID, h.Status()); err != nil {
			slog.Error("failed to send status reply", "error", err)
		}
	default:
		jsonErr := &jsonrpc2.Error{Code: jsonrpc2.CodeMethodNotFound, Message: fmt.Sprintf("unknown method: %s", request.Method)}
		if replyErr := conn.ReplyWithError(ctx, request.ID, jsonErr); replyErr != nil {
			slog.Error("failed to send error reply", "error", replyErr)
		}
	}
}

// Notify tells every connected client to reload.
func (h *Hub) Notify(ctx context.Context, changes []Change) {
	params := ReloadParams{
		Paths: lo.Map(changes, func(c Change, _ int) string {
			return c.Path
		}),
		Changes: changes,
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.reloads++
	h.lastReload = time.Now()

	for conn := range h.clients {
		h.pool.Submit(func() {
			if err := conn.Notify(ctx, ReloadMethod, params); err != nil {
				slog.Warn("failed to send reload", slog.String("error", err.Error()))
				conn.Close()
			}
		})
	}

	slog.Info("reload sent", slog.Int("clients", len(h.clients)), slog.Any("paths", params.Paths))
}

func (h *Hub) Status() Status {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return Status{
		Clients:    len(h.clients),
		Reloads:    h.reloads,
		LastReload: h.lastReload,
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects all clients and waits for queued sends.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	clients := lo.Keys(h.clients)
	h.mu.Unlock()

	h.pool.StopWait()

	var errs []error
	for _, conn := range clients {
		if err := conn.Close(); err != nil && !errors.Is(err, jsonrpc2.ErrClosed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// deadlineStream bounds every write so a stalled client cannot hold a worker.
type deadlineStream struct {
	jsonrpc2ws.ObjectStream
	conn    *ws.Conn
	timeout time.Duration
}

func (s deadlineStream) WriteObject(obj any) error {
	if s.timeout > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(s.timeout)); err != nil {
			return err
		}
	}
	return s.ObjectStream.WriteObject(obj)
}

type rpcLogger struct{}

func (rpcLogger) Printf(format string, v ...any) {
	slog.Debug(fmt.Sprintf(format, v...))
}
