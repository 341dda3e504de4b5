package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"

	"github.com/lotas/hidenobids/internal/applog"
	"github.com/lotas/hidenobids/internal/types"
)

// DefaultPort is where the extension shim connects.
const DefaultPort = 19191

const defaultTimeout = 5 * time.Second

var (
	ErrNotConnected = errors.New("extension not connected")
	ErrTimeout      = errors.New("extension did not answer")
)

// IncomingMsg is a message from the extension: either a browser event or the
// response to a command, identified by ID.
type IncomingMsg struct {
	Type    string `json:"type,omitempty"`
	TabID   int    `json:"tabId,omitempty"`
	URL     string `json:"url,omitempty"`
	Status  string `json:"status,omitempty"`
	Enabled *bool  `json:"enabled,omitempty"`
	MaxBids *int   `json:"maxBids,omitempty"`
	Count   *int   `json:"count,omitempty"`
	// Command response fields
	ID    string `json:"id,omitempty"`
	OK    *bool  `json:"ok,omitempty"`
	Error string `json:"error,omitempty"`
}

// IsResponse reports whether msg answers a command.
func (m IncomingMsg) IsResponse() bool {
	return m.ID != "" && m.OK != nil
}

// OutgoingMsg is a command to the extension.
type OutgoingMsg struct {
	ID         string          `json:"id"`
	Action     string          `json:"action"`
	TabID      int             `json:"tabId,omitempty"`
	Settings   *types.Settings `json:"settings,omitempty"`
	Text       string          `json:"text,omitempty"`
	Background string          `json:"background,omitempty"`
	Color      string          `json:"color,omitempty"`
	Enabled    *bool           `json:"enabled,omitempty"`
}

// Server manages the WebSocket connection to the extension.
type Server struct {
	port    int
	timeout time.Duration
	msgs    chan IncomingMsg

	mu      sync.Mutex
	conn    *websocket.Conn
	connCtx context.Context
	pending map[string]chan IncomingMsg
}

// New creates a new Server. Port 0 means the caller manages the listener.
func New(port int) *Server {
	return &Server{
		port:    port,
		timeout: defaultTimeout,
		msgs:    make(chan IncomingMsg, 64),
		pending: make(map[string]chan IncomingMsg),
	}
}

// SetTimeout changes how long Request waits for an answer.
func (s *Server) SetTimeout(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeout = d
}

// Port returns the configured port.
func (s *Server) Port() int {
	return s.port
}

// Messages returns the channel of browser events from the extension.
// Command responses are routed to Request and never appear here.
func (s *Server) Messages() <-chan IncomingMsg {
	return s.msgs
}

// Connected reports whether an extension is connected.
func (s *Server) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// Send sends a command without waiting for an answer. It is a no-op when no
// extension is connected.
func (s *Server) Send(msg OutgoingMsg) error {
	s.mu.Lock()
	conn := s.conn
	ctx := s.connCtx
	s.mu.Unlock()

	if conn == nil {
		return nil
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	return s.write(ctx, conn, msg)
}

func (s *Server) write(ctx context.Context, conn *websocket.Conn, msg OutgoingMsg) error {
	applog.Info("ws.send", "action", msg.Action, "id", msg.ID)
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

// Request sends a command and waits for the extension's response.
// A response with ok=false is returned as an error.
func (s *Server) Request(ctx context.Context, msg OutgoingMsg) (IncomingMsg, error) {
	msg.ID = uuid.NewString()
	reply := make(chan IncomingMsg, 1)

	s.mu.Lock()
	conn := s.conn
	connCtx := s.connCtx
	timeout := s.timeout
	if conn == nil {
		s.mu.Unlock()
		return IncomingMsg{}, fmt.Errorf("%s: %w", msg.Action, ErrNotConnected)
	}
	s.pending[msg.ID] = reply
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.pending, msg.ID)
		s.mu.Unlock()
	}()

	if err := s.write(connCtx, conn, msg); err != nil {
		return IncomingMsg{}, fmt.Errorf("%s: %w", msg.Action, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case resp := <-reply:
		if !*resp.OK {
			return resp, fmt.Errorf("%s: %s", msg.Action, resp.Error)
		}
		return resp, nil
	case <-timer.C:
		return IncomingMsg{}, fmt.Errorf("%s: %w", msg.Action, ErrTimeout)
	case <-ctx.Done():
		return IncomingMsg{}, ctx.Err()
	}
}

func (s *Server) resolve(msg IncomingMsg) {
	s.mu.Lock()
	reply, ok := s.pending[msg.ID]
	s.mu.Unlock()
	if !ok {
		applog.Info("ws.stale_response", "id", msg.ID)
		return
	}
	select {
	case reply <- msg:
	default:
	}
}

// Handler returns an http.Handler that accepts WebSocket upgrades.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			applog.Error("ws.accept", err)
			return
		}

		conn.SetReadLimit(1 << 20)

		ctx := r.Context()
		s.mu.Lock()
		if s.conn != nil {
			applog.Info("ws.replaced")
			s.conn.CloseNow()
		}
		s.conn = conn
		s.connCtx = ctx
		s.mu.Unlock()

		applog.Info("ws.connected", "remote", r.RemoteAddr)

		in := newInbox()
		go in.forward(s.msgs)

		defer func() {
			in.close()
			s.mu.Lock()
			if s.conn == conn {
				s.conn = nil
				s.connCtx = nil
			}
			s.mu.Unlock()
			conn.CloseNow()
			applog.Info("ws.disconnected")
		}()

		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var msg IncomingMsg
			if err := json.Unmarshal(data, &msg); err != nil {
				applog.Error("ws.parse", err)
				continue
			}
			if msg.IsResponse() {
				s.resolve(msg)
				continue
			}
			applog.Info("ws.recv", "type", msg.Type, "tab", msg.TabID)
			in.push(msg)
		}
	})
}

// inbox queues browser events from one connection in arrival order. The
// socket reader only appends, so it keeps resolving command responses while
// the coordinator is busy, and no event is dropped.
type inbox struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []IncomingMsg
	closed bool
}

func newInbox() *inbox {
	b := &inbox{}
	b.cond = sync.NewCond(&b.mu)
	return b
}

func (b *inbox) push(msg IncomingMsg) {
	b.mu.Lock()
	b.queue = append(b.queue, msg)
	b.mu.Unlock()
	b.cond.Signal()
}

// close stops the inbox once the queued events have been handed on.
func (b *inbox) close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.cond.Signal()
}

func (b *inbox) pop() (IncomingMsg, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for len(b.queue) == 0 && !b.closed {
		b.cond.Wait()
	}
	if len(b.queue) == 0 {
		return IncomingMsg{}, false
	}
	msg := b.queue[0]
	b.queue[0] = IncomingMsg{}
	b.queue = b.queue[1:]
	return msg, true
}

// forward hands queued events to out until the inbox is closed and empty.
func (b *inbox) forward(out chan<- IncomingMsg) {
	for {
		msg, ok := b.pop()
		if !ok {
			return
		}
		out <- msg
	}
}

// ListenAndServe starts the WebSocket server on the configured port.
func (s *Server) ListenAndServe(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/", s.Handler())

	addr := fmt.Sprintf("127.0.0.1:%d", s.port)
	applog.Info("server.start", "addr", addr)
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
