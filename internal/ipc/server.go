package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"

	"log/slog"

	"dcmrelay/internal/daemon"
	"dcmrelay/internal/journal"
	"dcmrelay/internal/logging"
)

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	daemon    *daemon.Daemon
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logger, ctx: ctx}
	if err := rpcServer.RegisterName("Relay", srv); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		daemon:    d,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "ipc_accept_failed"),
					logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "check socket permissions and restart the daemon if needed"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "ipc_socket_cleanup_failed"),
			logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "remove the socket file manually or rerun dcmrelay stop"))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) log() *slog.Logger {
	if s.logger == nil {
		return logging.NewNop()
	}
	return s.logger.With(logging.String("component", "ipc"))
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.daemon.Status(s.ctx)
	resp.Running = status.Running
	resp.PID = status.PID
	resp.LockPath = status.LockPath
	resp.JournalPath = status.JournalPath
	if len(status.JournalStats) > 0 {
		resp.JournalStats = make(map[string]int, len(status.JournalStats))
		for outcome, count := range status.JournalStats {
			resp.JournalStats[outcome] = count
		}
	}
	for _, listener := range status.Relay.Listeners {
		resp.Listeners = append(resp.Listeners, ListenerStatus{
			Name:    listener.Name,
			Running: listener.Running,
			Pid:     listener.Pid,
		})
	}
	for _, route := range status.Relay.Routes {
		resp.Routes = append(resp.Routes, RouteStatus{
			Route:     route.Route,
			Inbox:     route.Inbox,
			Endpoints: route.Endpoints,
			Cycles:    route.Cycles,
			Relayed:   route.Relayed,
			Failed:    route.Failed,
			LastScan:  route.LastScan,
		})
	}
	for _, dep := range status.Dependencies {
		resp.Dependencies = append(resp.Dependencies, DependencyStatus{
			Name:        dep.Name,
			Command:     dep.Command,
			Description: dep.Description,
			Optional:    dep.Optional,
			Available:   dep.Available,
			Detail:      dep.Detail,
		})
	}
	return nil
}

func (s *service) History(req HistoryRequest, resp *HistoryResponse) error {
	entries, err := s.daemon.History(s.ctx, journal.Query{
		Route:   req.Route,
		Outcome: req.Outcome,
		Limit:   req.Limit,
	})
	if err != nil {
		return err
	}
	resp.Entries = make([]DeliveryRecord, 0, len(entries))
	for _, entry := range entries {
		resp.Entries = append(resp.Entries, DeliveryRecord{
			ID:         entry.ID,
			At:         entry.OccurredAt,
			Route:      entry.Route,
			BatchID:    entry.BatchID,
			File:       entry.File,
			Endpoint:   entry.Endpoint,
			Outcome:    entry.Outcome,
			Detail:     entry.Detail,
			DurationMS: entry.Duration.Milliseconds(),
		})
	}
	return nil
}

func (s *service) Ping(_ PingRequest, resp *PingResponse) error {
	results := s.daemon.PingEndpoints(s.ctx)
	resp.Results = make([]EndpointResult, 0, len(results))
	for _, result := range results {
		resp.Results = append(resp.Results, EndpointResult{
			Endpoint:  result.Name,
			Reachable: result.Passed,
			Detail:    result.Detail,
		})
	}
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	sent, message, err := s.daemon.TestNotification(s.ctx)
	resp.Sent = sent
	resp.Message = message
	return err
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.log().Debug("daemon stop requested")
	err := s.daemon.Stop(s.ctx)
	resp.Stopped = true
	if err != nil {
		resp.Message = err.Error()
	}
	s.log().Info("daemon stopped via IPC",
		logging.String(logging.FieldEventType, "daemon_stop"))
	return nil
}
