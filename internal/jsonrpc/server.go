package jsonrpc

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// JSON-RPC 2.0 error codes
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Request represents a JSON-RPC 2.0 request
type Request struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  []string    `json:"params,omitempty"`
	ID      interface{} `json:"id"`
}

// Response represents a JSON-RPC 2.0 response
type Response struct {
	JSONRPC string         `json:"jsonrpc"`
	Result  interface{}    `json:"result,omitempty"`
	Error   *ErrorResponse `json:"error,omitempty"`
	ID      interface{}    `json:"id"`
}

// ErrorResponse represents a JSON-RPC 2.0 error object
type ErrorResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Server handles JSON-RPC HTTP requests against a method registry
type Server struct {
	registry     *MethodRegistry
	serverHeader string
	log          logrus.FieldLogger
}

// NewServer creates a server with an empty registry
func NewServer(serverHeader string, log logrus.FieldLogger) *Server {
	return &Server{
		registry:     NewMethodRegistry(),
		serverHeader: serverHeader,
		log:          log,
	}
}

// Register adds a method to the server
func (s *Server) Register(handler MethodHandler) {
	s.registry.Register(handler)
}

// Registry returns the server's method registry
func (s *Server) Registry() *MethodRegistry {
	return s.registry
}

// HandleRequest handles HTTP POST requests to the JSON-RPC endpoint
func (s *Server) HandleRequest(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	w.Header().Set("Content-Type", "application/json")
	if s.serverHeader != "" {
		w.Header().Set("Server", s.serverHeader)
	}

	if r.Method != http.MethodPost {
		s.writeErrorResponse(w, CodeInvalidRequest, "Invalid Request", nil)
		return
	}

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorResponse(w, CodeParseError, "Parse error", nil)
		return
	}

	if req.JSONRPC != "2.0" || req.Method == "" {
		s.writeErrorResponse(w, CodeInvalidRequest, "Invalid Request", req.ID)
		return
	}

	response := s.processRequest(r, &req)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.log.WithError(err).Warn("Failed to encode JSON-RPC response")
		return
	}

	entry := s.log.WithFields(logrus.Fields{
		"method":   req.Method,
		"duration": time.Since(start),
	})
	if response.Error != nil {
		entry.WithField("error", response.Error.Message).Info("JSON-RPC request failed")
	} else {
		entry.Debug("JSON-RPC request processed")
	}
}

// processRequest runs the method named by req
func (s *Server) processRequest(r *http.Request, req *Request) *Response {
	handler, exists := s.registry.Get(req.Method)
	if !exists {
		return errorResponse(CodeMethodNotFound, "Method not found", req.ID)
	}

	result, err := handler.Handle(r.Context(), req.Params)
	if err != nil {
		var cmdErr *CommandError
		if errors.As(err, &cmdErr) {
			resp := errorResponse(CodeInvalidParams, cmdErr.Code, req.ID)
			if cmdErr.Message != "" {
				resp.Error.Data = cmdErr.Message
			}
			return resp
		}

		s.log.WithError(err).WithField("method", req.Method).Error("JSON-RPC method failed")
		return errorResponse(CodeInternalError, ErrInternal, req.ID)
	}

	return &Response{
		JSONRPC: "2.0",
		Result:  result,
		ID:      req.ID,
	}
}

func errorResponse(code int, message string, id interface{}) *Response {
	return &Response{
		JSONRPC: "2.0",
		Error: &ErrorResponse{
			Code:    code,
			Message: message,
		},
		ID: id,
	}
}

// writeErrorResponse writes an error response for a request that never
// reached a method
func (s *Server) writeErrorResponse(w http.ResponseWriter, code int, message string, id interface{}) {
	w.WriteHeader(http.StatusBadRequest)
	if err := json.NewEncoder(w).Encode(errorResponse(code, message, id)); err != nil {
		s.log.WithError(err).Warn("Failed to encode JSON-RPC error")
	}
}

// Methods describes every registered method, sorted by name
func (s *Server) Methods() []MethodInfo {
	names := s.registry.List()
	methods := make([]MethodInfo, 0, len(names))
	for _, name := range names {
		handler, _ := s.registry.Get(name)
		methods = append(methods, MethodInfo{
			Name:        handler.GetName(),
			Description: handler.GetDescription(),
			ReadOnly:    handler.IsReadOnly(),
		})
	}
	return methods
}
