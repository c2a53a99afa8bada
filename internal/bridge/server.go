package bridge

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/fgutoehrlein/Link-o-Saurus-sub000/internal/nativetree"
)

// callTimeout bounds how long a gateway call waits for the extension's
// response before failing.
const callTimeout = 10 * time.Second

// Config holds bridge server configuration.
type Config struct {
	// Port to listen on (default: 48766, loopback only).
	Port int

	// Logger for bridge activity (default: stderr logger).
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Port:   48766,
		Logger: log.New(os.Stderr, "[bridge] ", log.LstdFlags),
	}
}

// Server accepts the extension's WebSocket connection and relays the
// gateway interface over it. Only one extension connection is active at
// a time; a newer connection replaces the previous one.
//
// Server implements nativetree.Gateway and nativetree.EventSource.
type Server struct {
	addr     string
	listener net.Listener
	server   *http.Server
	logger   *log.Logger

	connMu sync.Mutex
	conn   *websocket.Conn

	pendingMu  sync.Mutex
	pending    map[uint64]chan *Message
	nextCallID uint64

	events chan nativetree.Event

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer creates a bridge server. Call Start to begin listening.
func NewServer(config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[bridge] ", log.LstdFlags)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:    fmt.Sprintf("127.0.0.1:%d", config.Port),
		logger:  config.Logger,
		pending: make(map[uint64]chan *Message),
		events:  make(chan nativetree.Event, 100),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start begins listening for extension connections.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)

	s.server = &http.Server{Handler: mux}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("server error: %v", err)
		}
	}()

	s.logger.Printf("listening on ws://%s/ws", s.addr)
	return nil
}

// Stop shuts the server down and closes the active connection.
func (s *Server) Stop() error {
	s.cancel()

	s.connMu.Lock()
	if s.conn != nil {
		_ = s.conn.Close(websocket.StatusGoingAway, "daemon shutting down")
		s.conn = nil
	}
	s.connMu.Unlock()

	var err error
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = s.server.Shutdown(ctx)
	}
	s.wg.Wait()
	close(s.events)
	return err
}

// Addr returns the listen address, useful when Port was 0.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Connected reports whether an extension is currently connected.
func (s *Server) Connected() bool {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return s.conn != nil
}

// Events implements nativetree.EventSource.
func (s *Server) Events() <-chan nativetree.Event {
	return s.events
}

// handleHealth reports daemon liveness to the extension's probe.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status":"ok","connected":%v}`, s.Connected())
}

// handleWebSocket accepts the extension connection.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// The extension connects from an extension origin, not http.
		InsecureSkipVerify: true,
	})
	if err != nil {
		s.logger.Printf("websocket accept failed: %v", err)
		return
	}

	s.connMu.Lock()
	if s.conn != nil {
		s.logger.Printf("replacing previous extension connection")
		_ = s.conn.Close(websocket.StatusPolicyViolation, "superseded by new connection")
	}
	s.conn = conn
	s.connMu.Unlock()

	hello := &Message{Type: MessageTypeHello}
	if data, err := hello.Encode(); err == nil {
		ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
		_ = conn.Write(ctx, websocket.MessageText, data)
		cancel()
	}

	s.logger.Printf("extension connected from %s", r.RemoteAddr)
	s.readLoop(conn)
}

// readLoop drains frames from one connection until it closes.
func (s *Server) readLoop(conn *websocket.Conn) {
	defer s.dropConn(conn)

	for {
		_, data, err := conn.Read(s.ctx)
		if err != nil {
			if s.ctx.Err() == nil {
				s.logger.Printf("extension disconnected: %v", err)
			}
			return
		}

		msg, err := DecodeMessage(data)
		if err != nil {
			s.logger.Printf("ignoring malformed frame: %v", err)
			continue
		}

		switch msg.Type {
		case MessageTypeEvent:
			select {
			case s.events <- msg.Event():
			default:
				s.logger.Printf("WARNING: event buffer full, dropping %s for %s", msg.Kind, msg.NativeID)
			}
		case MessageTypeResult:
			s.deliverResult(msg)
		default:
			s.logger.Printf("ignoring unexpected frame type %q", msg.Type)
		}
	}
}

// dropConn clears the active connection if it is still conn.
func (s *Server) dropConn(conn *websocket.Conn) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn == conn {
		s.conn = nil
	}
	_ = conn.Close(websocket.StatusNormalClosure, "")
}

// deliverResult routes a result frame to the waiting call.
func (s *Server) deliverResult(msg *Message) {
	s.pendingMu.Lock()
	ch, ok := s.pending[msg.CallID]
	if ok {
		delete(s.pending, msg.CallID)
	}
	s.pendingMu.Unlock()

	if !ok {
		s.logger.Printf("ignoring result for unknown call %d", msg.CallID)
		return
	}
	ch <- msg
}

// call sends one gateway operation to the extension and waits for its
// result.
func (s *Server) call(ctx context.Context, msg *Message) (*Message, error) {
	s.connMu.Lock()
	conn := s.conn
	s.connMu.Unlock()
	if conn == nil {
		return nil, fmt.Errorf("no extension connected: %w", nativetree.ErrUnavailable)
	}

	s.pendingMu.Lock()
	s.nextCallID++
	msg.CallID = s.nextCallID
	ch := make(chan *Message, 1)
	s.pending[msg.CallID] = ch
	s.pendingMu.Unlock()

	cleanup := func() {
		s.pendingMu.Lock()
		delete(s.pending, msg.CallID)
		s.pendingMu.Unlock()
	}

	data, err := msg.Encode()
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to encode call: %w", err)
	}

	writeCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	if err := conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to send call: %w", err)
	}

	select {
	case res := <-ch:
		if res.Error != "" {
			if res.Error == "not found" {
				return nil, fmt.Errorf("%s: %w", msg.NativeID, nativetree.ErrNotFound)
			}
			return nil, fmt.Errorf("extension error: %s", res.Error)
		}
		return res, nil
	case <-writeCtx.Done():
		cleanup()
		return nil, fmt.Errorf("call %s timed out: %w", msg.Op, writeCtx.Err())
	case <-s.ctx.Done():
		cleanup()
		return nil, fmt.Errorf("bridge shutting down: %w", nativetree.ErrUnavailable)
	}
}

// GetTree implements nativetree.Gateway.
func (s *Server) GetTree(ctx context.Context) (*nativetree.Node, error) {
	res, err := s.call(ctx, &Message{Type: MessageTypeCall, Op: OpGetTree})
	if err != nil {
		return nil, err
	}
	if res.Tree == nil {
		return nil, fmt.Errorf("extension returned no tree")
	}
	return res.Tree, nil
}

// Get implements nativetree.Gateway.
func (s *Server) Get(ctx context.Context, nativeID string) (*nativetree.Node, error) {
	res, err := s.call(ctx, &Message{Type: MessageTypeCall, Op: OpGet, NativeID: nativeID})
	if err != nil {
		return nil, err
	}
	if res.Node == nil {
		return nil, fmt.Errorf("%s: %w", nativeID, nativetree.ErrNotFound)
	}
	return res.Node, nil
}

// Create implements nativetree.Gateway.
func (s *Server) Create(ctx context.Context, parentID, title, url string) (*nativetree.Node, error) {
	res, err := s.call(ctx, &Message{
		Type:     MessageTypeCall,
		Op:       OpCreate,
		ParentID: parentID,
		Title:    title,
		URL:      url,
	})
	if err != nil {
		return nil, err
	}
	if res.Node == nil {
		return nil, fmt.Errorf("extension returned no created node")
	}
	return res.Node, nil
}

// Update implements nativetree.Gateway.
func (s *Server) Update(ctx context.Context, nativeID string, fields nativetree.NodeFields) error {
	msg := &Message{Type: MessageTypeCall, Op: OpUpdate, NativeID: nativeID}
	if fields.Title != nil {
		msg.Title = *fields.Title
		msg.TitleSet = true
	}
	if fields.URL != nil {
		msg.URL = *fields.URL
		msg.URLSet = true
	}
	_, err := s.call(ctx, msg)
	return err
}

// Move implements nativetree.Gateway.
func (s *Server) Move(ctx context.Context, nativeID, newParentID string) error {
	_, err := s.call(ctx, &Message{
		Type:     MessageTypeCall,
		Op:       OpMove,
		NativeID: nativeID,
		ParentID: newParentID,
	})
	return err
}

// Remove implements nativetree.Gateway.
func (s *Server) Remove(ctx context.Context, nativeID string) error {
	_, err := s.call(ctx, &Message{Type: MessageTypeCall, Op: OpRemove, NativeID: nativeID})
	return err
}
