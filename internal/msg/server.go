package msg

import (
	"errors"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"

	"nonalt/internal/services"
)

// Handler implements the agent side of the protocol. Operation failures are
// reported through the response ErrorMessage field rather than the returned
// error, which is reserved for transport problems.
type Handler interface {
	PreflightOnPost(req PreflightOnPostRequest, resp *PreflightOnPostResponse) error
	QueueForReblogging(req QueueForRebloggingRequest, resp *QueueForRebloggingResponse) error
	DequeueForReblogging(req DequeueForRebloggingRequest, resp *DequeueForRebloggingResponse) error
	QueueList(req QueueListRequest, resp *QueueListResponse) error
	QueueClear(req QueueClearRequest, resp *QueueClearResponse) error
	LoadPostImages(req LoadPostImagesRequest, resp *LoadPostImagesResponse) error
	ClearPostImages(req ClearPostImagesRequest, resp *ClearPostImagesResponse) error
	HistoryList(req HistoryListRequest, resp *HistoryListResponse) error
	ScanStart(req ScanStartRequest, resp *ScanStartResponse) error
	ScanStop(req ScanStopRequest, resp *ScanStopResponse) error
	Reblog(req ReblogRequest, resp *ReblogResponse) error
	Status(req StatusRequest, resp *StatusResponse) error
}

// Server accepts protocol connections on a unix socket.
type Server struct {
	path     string
	listener net.Listener
	rpc      *rpc.Server
	logger   *slog.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewServer binds the socket at path and registers the handler.
func NewServer(path string, handler Handler, logger *slog.Logger) (*Server, error) {
	if err := os.RemoveAll(path); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "msg", "listen", "remove stale socket", err)
	}
	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "msg", "listen", "bind socket", err)
	}
	srv := rpc.NewServer()
	if err := srv.RegisterName("Nonalt", &service{handler: handler}); err != nil {
		listener.Close()
		return nil, services.Wrap(services.ErrConfiguration, "msg", "listen", "register service", err)
	}
	return &Server{path: path, listener: listener, rpc: srv, logger: logger}, nil
}

// Path returns the socket path the server is bound to.
func (s *Server) Path() string {
	return s.path
}

// Serve accepts connections until Close. Each connection gets its own codec.
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed || errors.Is(err, net.ErrClosed) {
				s.wg.Wait()
				return nil
			}
			return services.Wrap(services.ErrTransient, "msg", "serve", "accept failed", err)
		}
		s.wg.Add(1)
		go func(c net.Conn) {
			defer s.wg.Done()
			s.rpc.ServeCodec(jsonrpc.NewServerCodec(c))
		}(conn)
	}
}

// Close stops accepting, waits for in-flight requests, and removes the socket.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	err := s.listener.Close()
	s.wg.Wait()
	if removeErr := os.RemoveAll(s.path); removeErr != nil && err == nil {
		err = removeErr
	}
	return err
}

// service adapts the handler to net/rpc method shape.
type service struct {
	handler Handler
}

func (s *service) PreflightOnPost(req PreflightOnPostRequest, resp *PreflightOnPostResponse) error {
	return s.handler.PreflightOnPost(req, resp)
}

func (s *service) QueueForReblogging(req QueueForRebloggingRequest, resp *QueueForRebloggingResponse) error {
	return s.handler.QueueForReblogging(req, resp)
}

func (s *service) DequeueForReblogging(req DequeueForRebloggingRequest, resp *DequeueForRebloggingResponse) error {
	return s.handler.DequeueForReblogging(req, resp)
}

func (s *service) QueueList(req QueueListRequest, resp *QueueListResponse) error {
	return s.handler.QueueList(req, resp)
}

func (s *service) QueueClear(req QueueClearRequest, resp *QueueClearResponse) error {
	return s.handler.QueueClear(req, resp)
}

func (s *service) LoadPostImages(req LoadPostImagesRequest, resp *LoadPostImagesResponse) error {
	return s.handler.LoadPostImages(req, resp)
}

func (s *service) ClearPostImages(req ClearPostImagesRequest, resp *ClearPostImagesResponse) error {
	return s.handler.ClearPostImages(req, resp)
}

func (s *service) HistoryList(req HistoryListRequest, resp *HistoryListResponse) error {
	return s.handler.HistoryList(req, resp)
}

func (s *service) ScanStart(req ScanStartRequest, resp *ScanStartResponse) error {
	return s.handler.ScanStart(req, resp)
}

func (s *service) ScanStop(req ScanStopRequest, resp *ScanStopResponse) error {
	return s.handler.ScanStop(req, resp)
}

func (s *service) Reblog(req ReblogRequest, resp *ReblogResponse) error {
	return s.handler.Reblog(req, resp)
}

func (s *service) Status(req StatusRequest, resp *StatusResponse) error {
	return s.handler.Status(req, resp)
}
