package maintenance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cabin-dispatch/internal/config"
	"github.com/cabin-dispatch/internal/dispatch"
	"github.com/cabin-dispatch/internal/instruction"
	"github.com/cabin-dispatch/internal/state"
)

const (
	source = "maintenance"

	triggerCode = "2300"
	releaseCode = "3000"
)

// Dispatcher is what the maintenance server drives
type Dispatcher interface {
	Process(ctx context.Context, code, source string) (*instruction.Parsed, dispatch.Outcome, error)
	Snapshot() state.Snapshot
}

// Server handles maintenance TCP connections, one JSON-RPC request per
// connection, from allowed networks only
type Server struct {
	dispatcher        Dispatcher
	allowed           []*net.IPNet
	log               logrus.FieldLogger
	listener          net.Listener
	stopChan          chan struct{}
	activeConnections map[string]net.Conn
	connectionsMutex  sync.RWMutex
	maxConnections    int
	connectionTimeout time.Duration
}

// Request represents a JSON-RPC request over TCP
type Request struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  []string    `json:"params,omitempty"`
	ID      interface{} `json:"id"`
}

// Response represents a JSON-RPC response over TCP
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   interface{} `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

// ActionResult is returned by the emergency drill methods
type ActionResult struct {
	Outcome dispatch.Outcome `json:"outcome"`
	State   state.Snapshot   `json:"state"`
}

// NewServer creates a maintenance server. The CIDRs are validated by config.
func NewServer(cfg config.MaintenanceConfig, d Dispatcher, log logrus.FieldLogger) (*Server, error) {
	allowed := make([]*net.IPNet, 0, len(cfg.AllowedCIDRs))
	for _, cidr := range cfg.AllowedCIDRs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			return nil, fmt.Errorf("invalid CIDR %q: %w", cidr, err)
		}
		allowed = append(allowed, network)
	}

	return &Server{
		dispatcher:        d,
		allowed:           allowed,
		log:               log,
		stopChan:          make(chan struct{}),
		activeConnections: make(map[string]net.Conn),
		maxConnections:    10,
		connectionTimeout: 30 * time.Second,
	}, nil
}

// ListenAndServe listens on addr and serves until Close
func (s *Server) ListenAndServe(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(listener)
}

// Serve accepts connections on listener until Close
func (s *Server) Serve(listener net.Listener) error {
	s.connectionsMutex.Lock()
	s.listener = listener
	s.connectionsMutex.Unlock()

	s.log.Infof("Maintenance server listening on %s", listener.Addr())

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-s.stopChan:
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.log.WithError(err).Warn("Failed to accept maintenance connection")
			continue
		}

		if !s.isAllowedConnection(conn) {
			s.log.WithField("client", conn.RemoteAddr().String()).Warn("Rejected maintenance connection (not in allowed CIDRs)")
			conn.Close()
			continue
		}

		if !s.track(conn) {
			s.log.WithField("client", conn.RemoteAddr().String()).Warn("Rejected maintenance connection (too many connections)")
			conn.Close()
			continue
		}

		go s.handleConnection(conn)
	}
}

func (s *Server) track(conn net.Conn) bool {
	s.connectionsMutex.Lock()
	defer s.connectionsMutex.Unlock()
	if len(s.activeConnections) >= s.maxConnections {
		return false
	}
	s.activeConnections[conn.RemoteAddr().String()] = conn
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.connectionsMutex.Lock()
	defer s.connectionsMutex.Unlock()
	delete(s.activeConnections, conn.RemoteAddr().String())
}

// handleConnection handles a single TCP connection
func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()
	defer s.untrack(conn)

	_ = conn.SetDeadline(time.Now().Add(s.connectionTimeout))
	logger := s.log.WithField("client", conn.RemoteAddr().String())

	var req Request
	decoder := json.NewDecoder(conn)
	if err := decoder.Decode(&req); err != nil {
		logger.WithError(err).Warn("Failed to decode maintenance request")
		s.writeErrorResponse(conn, -32700, "Parse error", nil)
		return
	}

	if req.JSONRPC != "2.0" {
		s.writeErrorResponse(conn, -32600, "Invalid Request", req.ID)
		return
	}

	response := s.processMaintenanceRequest(&req)

	encoder := json.NewEncoder(conn)
	if err := encoder.Encode(response); err != nil {
		logger.WithError(err).Warn("Failed to encode maintenance response")
		return
	}

	logger.WithField("method", req.Method).Info("Maintenance command processed")
}

// processMaintenanceRequest processes maintenance commands
func (s *Server) processMaintenanceRequest(req *Request) *Response {
	ctx, cancel := context.WithTimeout(context.Background(), s.connectionTimeout)
	defer cancel()

	var code string
	switch req.Method {
	case "status":
		return &Response{JSONRPC: "2.0", Result: s.dispatcher.Snapshot(), ID: req.ID}
	case "trigger_emergency":
		code = triggerCode
	case "release_emergency":
		code = releaseCode
	default:
		return &Response{
			JSONRPC: "2.0",
			Error: map[string]interface{}{
				"code":    -32601,
				"message": "Method not found",
			},
			ID: req.ID,
		}
	}

	_, outcome, err := s.dispatcher.Process(ctx, code, source)
	if err != nil {
		return &Response{
			JSONRPC: "2.0",
			Error: map[string]interface{}{
				"code":    -32603,
				"message": "INTERNAL",
			},
			ID: req.ID,
		}
	}

	return &Response{
		JSONRPC: "2.0",
		Result:  ActionResult{Outcome: outcome, State: s.dispatcher.Snapshot()},
		ID:      req.ID,
	}
}

// isAllowedConnection checks if the connection is from an allowed CIDR
func (s *Server) isAllowedConnection(conn net.Conn) bool {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return false
	}

	clientIP := net.ParseIP(host)
	if clientIP == nil {
		return false
	}

	for _, network := range s.allowed {
		if network.Contains(clientIP) {
			return true
		}
	}
	return false
}

// writeErrorResponse writes an error response
func (s *Server) writeErrorResponse(conn net.Conn, code int, message string, id interface{}) {
	response := &Response{
		JSONRPC: "2.0",
		Error: map[string]interface{}{
			"code":    code,
			"message": message,
		},
		ID: id,
	}

	if err := json.NewEncoder(conn).Encode(response); err != nil {
		s.log.WithError(err).Debug("Failed to write maintenance error")
	}
}

// Close shuts down the listener and every open connection
func (s *Server) Close() error {
	select {
	case <-s.stopChan:
		return nil
	default:
		close(s.stopChan)
	}

	s.connectionsMutex.Lock()
	defer s.connectionsMutex.Unlock()
	for _, conn := range s.activeConnections {
		conn.Close()
	}
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}
