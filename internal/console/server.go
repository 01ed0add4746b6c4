package console

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"regionsim/physics/internal/logging"
	"regionsim/physics/internal/params"
	"regionsim/physics/internal/scene"
)

const (
	defaultPingInterval = 30 * time.Second
	writeWait           = 5 * time.Second
	maxRequestBytes     = 4096
	sendBuffer          = 64
)

// Scene is the part of the physics scene the console drives.
type Scene interface {
	Ready() bool
	RegionName() string
	GetParameter(name string) (float64, error)
	SetParameter(name string, value float64, target params.Target) error
	ParameterList() []scene.ParameterEntry
	StepStats() scene.StepStats
}

// Options configures a console Server.
type Options struct {
	Logger        *logging.Logger
	Authenticator Authenticator
	PingInterval  time.Duration
	CheckOrigin   func(r *http.Request) bool
	// TuneInterval is the minimum spacing between set commands on one
	// connection. Zero disables the limit.
	TuneInterval time.Duration
	Clock        Clock
}

// Server upgrades operator connections and answers console commands.
type Server struct {
	scene        Scene
	auth         Authenticator
	log          *logging.Logger
	upgrader     websocket.Upgrader
	pingInterval time.Duration
	gate         *Gate

	mu      sync.Mutex
	clients map[*client]struct{}
	nextID  uint64
}

type client struct {
	id       string
	conn     *websocket.Conn
	send     chan []byte
	done     chan struct{}
	once     sync.Once
	identity Identity
}

func (c *client) shutdown() {
	c.once.Do(func() { close(c.done) })
}

// NewServer constructs a console bound to the scene.
func NewServer(sc Scene, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = logging.L()
	}
	authenticator := opts.Authenticator
	if authenticator == nil {
		authenticator = NewAnonymousAuthenticator()
	}
	interval := opts.PingInterval
	if interval <= 0 {
		interval = defaultPingInterval
	}
	checkOrigin := opts.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Server{
		scene:        sc,
		auth:         authenticator,
		log:          logger.With(logging.String("component", "console")),
		upgrader:     websocket.Upgrader{CheckOrigin: checkOrigin},
		pingInterval: interval,
		gate:         NewGate(opts.TuneInterval, opts.Clock),
		clients:      make(map[*client]struct{}),
	}
}

// ClientCount reports the number of connected operators.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// ServeHTTP authenticates the request and upgrades it to a console session.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	identity, err := s.auth.Authenticate(r)
	if err != nil {
		s.log.Warn("console connection rejected", logging.String("remote_addr", r.RemoteAddr), logging.Error(err))
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("console upgrade failed", logging.Error(err))
		return
	}
	c := &client{conn: conn, send: make(chan []byte, sendBuffer), done: make(chan struct{}), identity: identity}
	s.mu.Lock()
	s.nextID++
	c.id = fmt.Sprintf("%s#%d", identity.Subject, s.nextID)
	s.clients[c] = struct{}{}
	s.mu.Unlock()
	s.log.Info("console connected", logging.String("subject", identity.Subject), logging.Bool("can_tune", identity.CanTune))

	go s.readLoop(c)
	go s.writeLoop(c)
}

// Broadcast queues a response to every connected client, dropping clients
// whose buffers are full.
func (s *Server) Broadcast(resp Response) {
	payload, err := json.Marshal(resp)
	if err != nil {
		s.log.Error("console broadcast encode failed", logging.Error(err))
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		s.enqueueLocked(c, payload)
	}
}

func (s *Server) enqueueLocked(c *client, payload []byte) {
	select {
	case c.send <- payload:
	default:
		delete(s.clients, c)
		c.shutdown()
		s.log.Warn("console client too slow, disconnecting", logging.String("subject", c.identity.Subject))
	}
}

func (s *Server) reply(c *client, resp Response) {
	payload, err := json.Marshal(resp)
	if err != nil {
		s.log.Error("console reply encode failed", logging.Error(err))
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[c]; ok {
		s.enqueueLocked(c, payload)
	}
}

func (s *Server) remove(c *client) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
	s.gate.Forget(c.id)
	c.shutdown()
}

func (s *Server) readLoop(c *client) {
	defer func() {
		s.remove(c)
		s.log.Info("console disconnected", logging.String("subject", c.identity.Subject))
	}()
	//1.- Bound message size and keep the read deadline alive through pongs.
	c.conn.SetReadLimit(maxRequestBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * s.pingInterval))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(2 * s.pingInterval))
	})
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var req Request
		if err := json.Unmarshal(msg, &req); err != nil {
			s.reply(c, Response{Type: TypeError, Error: "invalid request"})
			continue
		}
		//2.- Replays and bursts of changes are refused before touching the scene.
		if decision := s.gate.Evaluate(c.id, req.Seq, isMutation(req)); !decision.Accepted {
			s.log.Debug("console command dropped", logging.String("client", c.id), logging.String("reason", decision.Reason.String()))
			s.reply(c, Response{ID: req.ID, Type: TypeError, Command: req.Command, Error: dropMessage(decision.Reason)})
			continue
		}
		//3.- Answer the caller first, then tell everyone about changes.
		resp, notice := s.execute(c.identity, req)
		s.reply(c, resp)
		if notice != "" {
			s.log.Info("console parameter change", logging.String("subject", c.identity.Subject), logging.String("notice", notice))
			s.Broadcast(Response{Type: TypeNotice, Notice: notice})
		}
	}
}

func (s *Server) writeLoop(c *client) {
	ticker := time.NewTicker(s.pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.shutdown()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.shutdown()
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		}
	}
}

// Drops reports the gate counters summed over connected clients.
func (s *Server) Drops() DropCounters {
	return s.gate.Totals()
}

// Close disconnects every client.
func (s *Server) Close() {
	s.mu.Lock()
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.clients = make(map[*client]struct{})
	s.mu.Unlock()
	for _, c := range clients {
		c.shutdown()
	}
}
