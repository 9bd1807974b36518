package transport

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/san-kum/crawlerctl/internal/vehicle"
)

var (
	// ErrOwnerLocked is returned when a connection comes from an address
	// other than the first operator's.
	ErrOwnerLocked = errors.New("transport: controller locked to another address")

	// ErrSlotTaken is returned when the owner slot is already in use.
	ErrSlotTaken = errors.New("transport: controller slot taken")
)

const (
	DefaultPath       = "/ws"
	DefaultStatusPath = "/status"

	socketBufferSize = 1024
)

// TrimSetter applies calibration changes carried by operator frames.
type TrimSetter interface {
	vehicle.TrimSource
	ApplyTrimLive(v float64)
	ApplyThrottleTrimLive(v float64)
	ApplyTrimCommit(v float64) error
	ApplyThrottleTrimCommit(v float64) error
}

type Config struct {
	Path       string `yaml:"path"`
	StatusPath string `yaml:"status_path"`
}

func DefaultConfig() Config {
	return Config{Path: DefaultPath, StatusPath: DefaultStatusPath}
}

// Server accepts a single operator and feeds its frames into a Link. It
// also observes the control loop to serve the latest status.
type Server struct {
	cfg      Config
	link     *Link
	trims    TrimSetter
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu     sync.Mutex
	owner  string
	busy   bool
	status vehicle.Status
}

func NewServer(cfg Config, link *Link, trims TrimSetter, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:    cfg,
		link:   link,
		trims:  trims,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  socketBufferSize,
			WriteBufferSize: socketBufferSize,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Handler routes the websocket and status endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.cfg.Path, s.serveWS)
	mux.HandleFunc(s.cfg.StatusPath, s.serveStatus)
	return mux
}

// OnTick records the control loop's latest status.
func (s *Server) OnTick(st vehicle.Status) {
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
}

func (s *Server) Status() vehicle.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Owner returns the locked operator address, empty until the first
// connection.
func (s *Server) Owner() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.owner
}

// ResetOwner clears the address lock. A connected operator stays connected.
func (s *Server) ResetOwner() {
	s.mu.Lock()
	s.owner = ""
	s.mu.Unlock()
	s.logger.Info("owner lock reset")
}

func (s *Server) claim(addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.owner != "" && s.owner != addr {
		return ErrOwnerLocked
	}
	if s.busy {
		return ErrSlotTaken
	}
	s.busy = true
	s.owner = addr
	return nil
}

func (s *Server) release() {
	s.mu.Lock()
	s.busy = false
	s.mu.Unlock()
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	addr := remoteIP(r)
	if err := s.claim(addr); err != nil {
		code := http.StatusConflict
		if errors.Is(err, ErrOwnerLocked) {
			code = http.StatusForbidden
		}
		s.logger.Warn("rejecting operator", "addr", addr, "err", err)
		http.Error(w, err.Error(), code)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.release()
		s.logger.Warn("websocket upgrade failed", "addr", addr, "err", err)
		return
	}
	s.link.SetConnected(true)
	s.logger.Info("operator connected", "addr", addr)

	defer func() {
		s.link.SetConnected(false)
		s.release()
		conn.Close()
		s.logger.Info("operator disconnected", "addr", addr)
	}()

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("websocket read", "err", err)
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		for _, reply := range s.HandleFrame(data) {
			if err := conn.WriteJSON(reply); err != nil {
				s.logger.Debug("websocket write", "err", err)
				return
			}
		}
	}
}

// HandleFrame applies one operator frame and returns the replies owed to
// the sender. Trim fields take effect before the control sample is
// published. Malformed frames are dropped.
func (s *Server) HandleFrame(data []byte) []any {
	p, err := DecodePacket(data)
	if err != nil {
		s.logger.Debug("dropping frame", "err", err)
		return nil
	}

	if s.trims != nil {
		if p.Trim != nil {
			if err := s.trims.ApplyTrimCommit(*p.Trim); err != nil {
				s.logger.Warn("steering trim not persisted", "err", err)
			}
		}
		if p.TrimLive != nil {
			s.trims.ApplyTrimLive(*p.TrimLive)
		}
		if p.ThrottleTrim != nil {
			if err := s.trims.ApplyThrottleTrimCommit(*p.ThrottleTrim); err != nil {
				s.logger.Warn("throttle trim not persisted", "err", err)
			}
		}
		if p.ThrottleTrimLive != nil {
			s.trims.ApplyThrottleTrimLive(*p.ThrottleTrimLive)
		}
	}

	s.link.Publish(p.Input())

	var replies []any
	if p.Millis != 0 {
		replies = append(replies, Pong{Pong: p.Millis})
	}
	if p.GetSettings && s.trims != nil {
		t := s.trims.Trims()
		replies = append(replies, Settings{Trim: t.Steering, ThrottleTrim: t.Throttle})
	}
	return replies
}

func (s *Server) serveStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	if err := json.NewEncoder(w).Encode(s.Status()); err != nil {
		s.logger.Debug("status encode", "err", err)
	}
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
