package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/agenthands/kgfuse/internal/core"
	"github.com/agenthands/kgfuse/internal/logger"
	"github.com/agenthands/kgfuse/internal/reporter"
)

type Server struct {
	Engine *core.Engine

	// busy serializes pipeline stages; they all write the same graph.
	busy sync.Mutex
	log  *logger.Logger
}

func NewServer(engine *core.Engine, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	return &Server{Engine: engine, log: log.With("component", "Server")}
}

func (s *Server) SetupRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLog())

	r.GET("/healthz", s.Health)
	r.GET("/crossref", s.CrossRef)

	stages := r.Group("/", s.exclusive())
	stages.POST("/runs", s.Run)
	stages.POST("/provenance", s.Provenance)
	stages.POST("/align", s.Align)
	stages.POST("/fuse", s.Fuse)
	stages.POST("/impacts", s.Impacts)

	return r
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Info("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

// exclusive rejects a stage request while another one is running.
func (s *Server) exclusive() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.busy.TryLock() {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "another stage is running"})
			return
		}
		defer s.busy.Unlock()
		c.Next()
	}
}

func (s *Server) Health(c *gin.Context) {
	if err := s.Engine.Store.Ping(c.Request.Context()); err != nil {
		s.log.Warn("health check failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) Run(c *gin.Context) {
	summary, err := s.Engine.Run(c.Request.Context())
	if err != nil && summary.Alignment == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "summary": summary})
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) Provenance(c *gin.Context) {
	n, err := s.Engine.TagProvenance(c.Request.Context())
	if err != nil {
		s.fail(c, "provenance", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"corrected": n})
}

type AlignRequest struct {
	RunID string `json:"run_id"`
}

func (s *Server) Align(c *gin.Context) {
	var req AlignRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
	}
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}

	summary, err := s.Engine.Align(c.Request.Context(), req.RunID)
	if err != nil && summary == nil {
		s.fail(c, "align", err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) Fuse(c *gin.Context) {
	summary, err := s.Engine.Fuse(c.Request.Context())
	if err != nil {
		s.fail(c, "fuse", err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) Impacts(c *gin.Context) {
	n, err := s.Engine.PropagateImpacts(c.Request.Context())
	if err != nil {
		s.fail(c, "impacts", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"paths": n})
}

// CrossRef serves the owl:sameAs assertions as Turtle, or as JSON with
// ?format=json.
func (s *Server) CrossRef(c *gin.Context) {
	triples, err := s.Engine.CrossReferences(c.Request.Context())
	if err != nil {
		s.fail(c, "crossref", err)
		return
	}
	if c.Query("format") == "json" {
		c.JSON(http.StatusOK, gin.H{"triples": triples})
		return
	}
	data, err := reporter.Turtle(triples)
	if err != nil {
		s.fail(c, "crossref", err)
		return
	}
	c.Data(http.StatusOK, "text/turtle; charset=utf-8", data)
}

func (s *Server) fail(c *gin.Context, stage string, err error) {
	s.log.Error("stage failed", "stage", stage, "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
