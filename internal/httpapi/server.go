// Package httpapi serves share links and session histories over HTTP.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dshills/sketchlink/internal/logging"
	"github.com/dshills/sketchlink/internal/session"
	"github.com/dshills/sketchlink/internal/share"
)

// Options configures a Server.
type Options struct {
	Sessions *session.Manager
	Codec    *share.Codec
	// BaseURL is the page share links point at.
	BaseURL string
	Logger  *logging.Logger

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server is the HTTP API.
type Server struct {
	engine   *gin.Engine
	sessions *session.Manager
	codec    *share.Codec
	baseURL  string
	logger   *logging.Logger

	readTimeout  time.Duration
	writeTimeout time.Duration
}

// New builds the router.
func New(opts Options) *Server {
	if opts.Codec == nil {
		opts.Codec = share.NewCodec()
	}
	if opts.Sessions == nil {
		opts.Sessions = session.NewManager(session.Options{})
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Null()
	}

	s := &Server{
		engine:       gin.New(),
		sessions:     opts.Sessions,
		codec:        opts.Codec,
		baseURL:      opts.BaseURL,
		logger:       logger.WithComponent("http"),
		readTimeout:  opts.ReadTimeout,
		writeTimeout: opts.WriteTimeout,
	}

	s.engine.Use(requestLogger(s.logger), recovery(s.logger))
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.engine
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": s.sessions.Count()})
	})

	v1 := r.Group("/v1")
	v1.POST("/share", s.encodeShare)
	v1.POST("/share/decode", s.decodeShare)

	sessions := v1.Group("/sessions")
	sessions.POST("", s.openSession)
	sessions.GET("", s.listSessions)

	one := sessions.Group("/:id", s.loadSession)
	one.GET("", s.getSession)
	one.DELETE("", s.closeSession)
	one.PUT("/text", s.typeText)
	one.POST("/rewrite", s.rewrite)
	one.POST("/undo", s.undo)
	one.POST("/redo", s.redo)
	one.POST("/flush", s.flush)
	one.POST("/switch", s.switchDocument)
	one.GET("/history", s.history)
	one.GET("/share", s.shareSession)
	one.GET("/events", s.events)
}

// Handler returns the router as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.engine,
		ReadTimeout:  s.readTimeout,
		WriteTimeout: s.writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.logger.Info("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
