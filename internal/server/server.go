// ABOUTME: Websocket transport server forwarding protocol requests to the supervisor.
// ABOUTME: Concurrent per-request handling with per-agent serialization of mutations.

package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/2389/coven-flow/internal/protocol"
)

// Backend is the supervisor surface the server forwards to. The concrete
// implementation is *supervisor.Supervisor; tests substitute fakes.
type Backend interface {
	Spawn(command string, args []string, limits protocol.Limits) (string, error)
	Pause(agentID string) error
	Resume(agentID string) error
	Stop(agentID string, graceful bool) error
	Status(agentID string) (protocol.AgentStatus, error)
	BatchStatus(agentIDs []string) protocol.BatchStatusResult
	List() []protocol.AgentStatus
	Output(agentID string, stream protocol.Stream, sinceOffset uint64) (protocol.OutputResult, error)
	WriteStdin(agentID string, data []byte) error
	CustomAction(agentID, name string, params json.RawMessage) (json.RawMessage, error)
}

// TokenVerifier authenticates handshake bearer tokens.
type TokenVerifier interface {
	Verify(token string) (subject string, err error)
}

// Options configures a Server.
type Options struct {
	// Verifier, when set, requires a valid bearer token on every handshake.
	Verifier TokenVerifier
	Logger   *slog.Logger
}

// Server accepts websocket connections and dispatches protocol requests.
type Server struct {
	backend Backend
	opts    Options
	logger  *slog.Logger
	stats   *stats
	locks   *agentLocks
}

// New creates a Server around the given backend.
func New(backend Backend, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Server{
		backend: backend,
		opts:    opts,
		logger:  opts.Logger.With("component", "server"),
		stats:   newStats(),
		locks:   newAgentLocks(),
	}
}

// Handler returns the HTTP handler: websocket upgrade at /ws and a plain
// liveness probe at /healthz.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", s.handleWS)
	return mux
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.opts.Verifier != nil {
		subject, err := s.verifyRequest(r)
		if err != nil {
			s.logger.Warn("rejected connection", "remote", r.RemoteAddr, "error", err)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		s.logger.Info("client authenticated", "subject", subject, "remote", r.RemoteAddr)
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Error("websocket accept failed", "error", err)
		return
	}
	conn.SetReadLimit(protocol.MaxMessageSize)

	s.logger.Info("client connected", "remote", r.RemoteAddr)
	s.serveConn(r.Context(), conn)
	s.logger.Info("client disconnected", "remote", r.RemoteAddr)
}

func (s *Server) verifyRequest(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return "", protocol.Errorf(protocol.KindUnauthorized, "missing bearer token")
	}
	subject, err := s.opts.Verifier.Verify(token)
	if err != nil {
		return "", protocol.Errorf(protocol.KindUnauthorized, "invalid token: %v", err)
	}
	return subject, nil
}

// serveConn reads frames until the connection closes. Each request runs on
// its own goroutine; writes back to the socket are serialized.
func (s *Server) serveConn(ctx context.Context, conn *websocket.Conn) {
	var (
		writeMu  sync.Mutex
		inflight sync.WaitGroup
	)
	defer func() {
		inflight.Wait()
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}()

	write := func(resp *protocol.Response) {
		data, err := json.Marshal(resp)
		if err != nil {
			s.logger.Error("marshaling response", "error", err)
			return
		}
		writeMu.Lock()
		defer writeMu.Unlock()
		wctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := conn.Write(wctx, websocket.MessageText, data); err != nil {
			s.logger.Warn("writing response", "error", err)
		}
	}

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		req, derr := protocol.DecodeRequest(data)
		if derr != nil {
			// Answer malformed frames when the correlation id survived;
			// otherwise there is nothing to correlate a response to.
			if req != nil && req.ID != "" {
				write(protocol.ErrResponse(req.ID, derr))
			} else {
				s.logger.Warn("dropping malformed frame", "error", derr)
			}
			continue
		}

		inflight.Add(1)
		go func() {
			defer inflight.Done()
			write(s.dispatch(ctx, req))
		}()
	}
}

// dispatch routes one request to the backend and records its stats.
func (s *Server) dispatch(ctx context.Context, req *protocol.Request) *protocol.Response {
	start := time.Now()
	result, err := s.call(ctx, req)
	s.stats.record(req.Method, time.Since(start), err != nil)
	if err != nil {
		return protocol.ErrResponse(req.ID, err)
	}
	resp, err := protocol.OKResponse(req.ID, result)
	if err != nil {
		return protocol.ErrResponse(req.ID, err)
	}
	return resp
}

func (s *Server) call(ctx context.Context, req *protocol.Request) (any, error) {
	// The lock set is derived from protocol.Mutating so the wire contract
	// and the serialization discipline cannot drift apart. Spawn is
	// mutating but targets no existing agent id, so nothing is acquired.
	if protocol.Mutating(req.Method) {
		var target protocol.AgentParams
		if json.Unmarshal(req.Params, &target) == nil && target.AgentID != "" {
			defer s.locks.lock(target.AgentID)()
		}
	}

	switch req.Method {
	case protocol.MethodPing:
		return struct{}{}, nil

	case protocol.MethodStats:
		active := 0
		for _, st := range s.backend.List() {
			if st.State == protocol.StateRunning || st.State == protocol.StatePaused || st.State == protocol.StateSpawning {
				active++
			}
		}
		return s.stats.snapshot(active), nil

	case protocol.MethodSpawn:
		var p protocol.SpawnParams
		if err := protocol.Unmarshal(req.Params, &p); err != nil {
			return nil, err
		}
		id, err := s.backend.Spawn(p.Command, p.Args, p.Limits)
		if err != nil {
			return nil, err
		}
		s.stats.recordSpawn()
		return protocol.SpawnResult{AgentID: id}, nil

	case protocol.MethodPause:
		var p protocol.AgentParams
		if err := protocol.Unmarshal(req.Params, &p); err != nil {
			return nil, err
		}
		return struct{}{}, s.backend.Pause(p.AgentID)

	case protocol.MethodResume:
		var p protocol.AgentParams
		if err := protocol.Unmarshal(req.Params, &p); err != nil {
			return nil, err
		}
		return struct{}{}, s.backend.Resume(p.AgentID)

	case protocol.MethodStop:
		var p protocol.StopParams
		if err := protocol.Unmarshal(req.Params, &p); err != nil {
			return nil, err
		}
		return struct{}{}, s.backend.Stop(p.AgentID, p.Graceful)

	case protocol.MethodWriteStdin:
		var p protocol.WriteStdinParams
		if err := protocol.Unmarshal(req.Params, &p); err != nil {
			return nil, err
		}
		return struct{}{}, s.backend.WriteStdin(p.AgentID, p.Data)

	case protocol.MethodStatus:
		var p protocol.AgentParams
		if err := protocol.Unmarshal(req.Params, &p); err != nil {
			return nil, err
		}
		return s.backend.Status(p.AgentID)

	case protocol.MethodBatchStatus:
		var p protocol.BatchStatusParams
		if err := protocol.Unmarshal(req.Params, &p); err != nil {
			return nil, err
		}
		return s.backend.BatchStatus(p.AgentIDs), nil

	case protocol.MethodList:
		return protocol.ListResult{Agents: s.backend.List()}, nil

	case protocol.MethodOutput:
		var p protocol.OutputParams
		if err := protocol.Unmarshal(req.Params, &p); err != nil {
			return nil, err
		}
		return s.backend.Output(p.AgentID, p.Stream, p.SinceOffset)

	case protocol.MethodCustomAction:
		var p protocol.CustomActionParams
		if err := protocol.Unmarshal(req.Params, &p); err != nil {
			return nil, err
		}
		raw, err := s.backend.CustomAction(p.AgentID, p.Name, p.Params)
		if err != nil {
			return nil, err
		}
		return protocol.CustomActionResult{Result: raw}, nil
	}

	return nil, protocol.Errorf(protocol.KindProtocolError, "unknown method %q", req.Method)
}
