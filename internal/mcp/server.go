package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/hb-chen/skillgate/pkg/logger"
)

// maxMessageBytes bounds a single line of input.
const maxMessageBytes = 1 << 20

// Server is a line-delimited JSON-RPC server speaking MCP
type Server struct {
	name         string
	version      string
	capabilities ServerCapabilities
	handlers     map[string]HandlerFunc
	mu           sync.RWMutex
}

// HandlerFunc handles one MCP method. Returning a *JSONRPCError keeps its
// code; any other error is reported as an internal error.
type HandlerFunc func(ctx context.Context, params json.RawMessage) (interface{}, error)

// NewServer creates a new MCP server
func NewServer(name, version string) *Server {
	s := &Server{
		name:     name,
		version:  version,
		handlers: make(map[string]HandlerFunc),
	}
	s.RegisterHandler(MethodPing, func(ctx context.Context, _ json.RawMessage) (interface{}, error) {
		return struct{}{}, nil
	})
	s.RegisterHandler(MethodInitialized, func(ctx context.Context, _ json.RawMessage) (interface{}, error) {
		return nil, nil
	})
	return s
}

// SetCapabilities sets server capabilities
func (s *Server) SetCapabilities(caps ServerCapabilities) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.capabilities = caps
}

// RegisterHandler registers a handler for an MCP method
func (s *Server) RegisterHandler(method string, handler HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = handler
}

// HandleRequest dispatches req. It returns nil for notifications.
func (s *Server) HandleRequest(ctx context.Context, req *JSONRPCRequest) (*JSONRPCResponse, error) {
	if req.Method == MethodInitialize {
		return s.handleInitialize(req)
	}

	s.mu.RLock()
	handler, exists := s.handlers[req.Method]
	s.mu.RUnlock()

	if !exists {
		if req.IsNotification() {
			logger.Debugf("[MCP] Ignoring notification %s", req.Method)
			return nil, nil
		}
		return NewJSONRPCResponse(req.ID, nil, NewJSONRPCError(
			ErrCodeMethodNotFound,
			fmt.Sprintf("Method not found: %s", req.Method),
			nil,
		))
	}

	result, err := handler(ctx, req.Params)
	if req.IsNotification() {
		if err != nil {
			logger.Warnf("[MCP] Notification %s failed: %v", req.Method, err)
		}
		return nil, nil
	}
	if err != nil {
		var rpcErr *JSONRPCError
		if !errors.As(err, &rpcErr) {
			rpcErr = NewJSONRPCError(ErrCodeInternalError, err.Error(), nil)
		}
		return NewJSONRPCResponse(req.ID, nil, rpcErr)
	}

	return NewJSONRPCResponse(req.ID, result, nil)
}

func (s *Server) handleInitialize(req *JSONRPCRequest) (*JSONRPCResponse, error) {
	var params InitializeParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return NewJSONRPCResponse(req.ID, nil, NewJSONRPCError(
				ErrCodeInvalidParams,
				"Invalid initialize parameters",
				nil,
			))
		}
	}
	logger.Infof("[MCP] Client connected: %s %s (protocol %s)",
		params.ClientInfo.Name, params.ClientInfo.Version, params.ProtocolVersion)

	s.mu.RLock()
	caps := s.capabilities
	s.mu.RUnlock()

	return NewJSONRPCResponse(req.ID, InitializeResult{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    caps,
		ServerInfo: ServerInfo{
			Name:    s.name,
			Version: s.version,
		},
	}, nil)
}

// Serve reads one JSON-RPC message per line from reader and writes
// responses to writer until EOF or ctx is done.
func (s *Server) Serve(ctx context.Context, reader io.Reader, writer io.Writer) error {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), maxMessageBytes)
	encoder := json.NewEncoder(writer)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req JSONRPCRequest
		if err := json.Unmarshal(line, &req); err != nil {
			resp, _ := NewJSONRPCResponse(nil, nil, NewJSONRPCError(ErrCodeParseError, "Parse error", nil))
			if err := encoder.Encode(resp); err != nil {
				return fmt.Errorf("failed to encode response: %w", err)
			}
			continue
		}

		resp, err := s.HandleRequest(ctx, &req)
		if err != nil {
			resp, _ = NewJSONRPCResponse(req.ID, nil, NewJSONRPCError(ErrCodeInternalError, err.Error(), nil))
		}
		if resp == nil {
			continue
		}

		if err := encoder.Encode(resp); err != nil {
			return fmt.Errorf("failed to encode response: %w", err)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read request: %w", err)
	}
	return nil
}
