package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/stellarlinkco/haiemet/internal/logger"
	"github.com/stellarlinkco/haiemet/internal/registry"
)

// Registry is the read side of the registry served over HTTP.
type Registry interface {
	Snapshot() registry.Snapshot
	Get(id string) (registry.UserRecord, bool)
}

// Server is a read-only status API.
type Server struct {
	Engine  *gin.Engine
	reg     Registry
	log     *logger.Logger
	srv     *http.Server
	ln      net.Listener
	userAPI bool
}

type Option func(*Server)

// WithUserAPI exposes single user records under /api/users/:id.
func WithUserAPI(enabled bool) Option {
	return func(s *Server) { s.userAPI = enabled }
}

func NewServer(reg Registry, log *logger.Logger, opts ...Option) *Server {
	if log == nil {
		log = logger.NewNop()
	}
	s := &Server{reg: reg, log: log.Named("http")}
	for _, opt := range opts {
		opt(s)
	}

	router := gin.New()
	router.Use(gin.Recovery(), s.requestLog())
	router.GET("/healthz", s.health)
	api := router.Group("/api")
	{
		api.GET("/status", s.status)
		if s.userAPI {
			api.GET("/users/:id", s.user)
		}
	}
	s.Engine = router
	return s
}

// Handle mounts h for GET requests on path, used for the chat websocket.
func (s *Server) Handle(path string, h http.Handler) {
	s.Engine.GET(path, gin.WrapH(h))
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"elapsed", time.Since(start))
	}
}

func (s *Server) health(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

func (s *Server) status(c *gin.Context) {
	c.JSON(http.StatusOK, s.reg.Snapshot())
}

func (s *Server) user(c *gin.Context) {
	u, ok := s.reg.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": registry.ErrUnknownUser.Error()})
		return
	}
	c.JSON(http.StatusOK, u)
}

// Start listens on addr and serves until Shutdown. It returns once the
// listener is bound.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	s.ln = ln
	s.srv = &http.Server{
		Handler:           s.Engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("serve failed", "error", err)
		}
	}()
	s.log.Info("listening", "addr", ln.Addr().String())
	return nil
}

// Addr is the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
