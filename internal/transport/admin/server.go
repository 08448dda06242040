package admin

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"gridtraffic.ai/internal/persistence/indexdb"
	"gridtraffic.ai/internal/sim/world"
	"gridtraffic.ai/internal/sim/world/feature/traffic"
)

const requestTimeout = 3 * time.Second

// BlockerIndex is the read side of the index database used by the
// blockers report. Optional.
type BlockerIndex interface {
	TopBlockers(ctx context.Context, limit int) ([]indexdb.BlockerCount, error)
}

type Server struct {
	world   *world.World
	index   BlockerIndex
	metrics http.Handler
	log     zerolog.Logger

	onTraffic func(cfg traffic.Config, err error)
}

// NewServer wires the operator API. index and metricsHandler may be nil.
func NewServer(w *world.World, index BlockerIndex, metricsHandler http.Handler, logger zerolog.Logger) *Server {
	return &Server{world: w, index: index, metrics: metricsHandler, log: logger}
}

// OnTrafficUpdate registers a callback run after every PUT /traffic,
// accepted or not.
func (s *Server) OnTrafficUpdate(fn func(cfg traffic.Config, err error)) { s.onTraffic = fn }

// Router returns the gin engine. Every route is restricted to loopback
// clients.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), LoopbackOnly())

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics))
	}

	v1 := r.Group("/admin/v1")
	{
		v1.GET("/state", s.state)
		v1.GET("/tracker", s.tracker)
		v1.GET("/metrics", s.worldMetrics)
		v1.GET("/agents/:id", s.agent)
		v1.DELETE("/agents/:id", s.removeAgent)
		v1.POST("/snapshot", s.snapshot)
		v1.PUT("/traffic", s.updateTraffic)
		v1.GET("/blockers", s.blockers)
	}
	return r
}

// LoopbackOnly rejects requests whose peer address is not a loopback IP.
func LoopbackOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		host, _, err := net.SplitHostPort(c.Request.RemoteAddr)
		if err != nil {
			host = c.Request.RemoteAddr
		}
		ip := net.ParseIP(host)
		if ip == nil || !ip.IsLoopback() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"err": "loopback only"})
			return
		}
		c.Next()
	}
}

func (s *Server) state(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()
	v, err := s.world.RequestState(ctx)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"err": err.Error()})
		return
	}
	c.JSON(http.StatusOK, v)
}

func (s *Server) tracker(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()
	v, err := s.world.RequestTracker(ctx)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"err": err.Error()})
		return
	}
	c.JSON(http.StatusOK, v)
}

func (s *Server) worldMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, s.world.Metrics())
}

func (s *Server) agent(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()
	v, err := s.world.RequestAgent(ctx, c.Param("id"))
	switch {
	case errors.Is(err, world.ErrAgentNotFound):
		c.JSON(http.StatusNotFound, gin.H{"err": err.Error()})
	case err != nil:
		c.JSON(http.StatusServiceUnavailable, gin.H{"err": err.Error()})
	default:
		c.JSON(http.StatusOK, v)
	}
}

func (s *Server) removeAgent(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()
	id := c.Param("id")
	if _, err := s.world.RequestAgent(ctx, id); err != nil {
		if errors.Is(err, world.ErrAgentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"err": err.Error()})
			return
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"err": err.Error()})
		return
	}
	if err := s.world.RemoveAgent(ctx, id); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"err": err.Error()})
		return
	}
	s.log.Info().Str("agent_id", id).Msg("agent removal requested")
	c.JSON(http.StatusAccepted, gin.H{"agent_id": id, "queued": true})
}

func (s *Server) snapshot(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()
	tick, err := s.world.RequestSnapshot(ctx)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"err": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "tick": tick})
}

type trafficUpdate struct {
	StuckLimit uint64 `json:"stuck_limit" binding:"required,min=1"`
	SwapDelay  uint64 `json:"swap_delay" binding:"required,min=1"`
}

func (s *Server) updateTraffic(c *gin.Context) {
	var req trafficUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()
	cfg := traffic.Config{StuckLimit: req.StuckLimit, SwapDelay: req.SwapDelay}
	err := s.world.UpdateConfig(ctx, world.ConfigUpdate{Traffic: cfg})
	if s.onTraffic != nil {
		s.onTraffic(cfg, err)
	}
	if err != nil {
		if errors.Is(err, traffic.ErrInvalidConfig) {
			c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
			return
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"err": err.Error()})
		return
	}
	s.log.Info().Uint64("stuck_limit", cfg.StuckLimit).Uint64("swap_delay", cfg.SwapDelay).Msg("traffic config updated via admin")
	c.JSON(http.StatusOK, cfg)
}

func (s *Server) blockers(c *gin.Context) {
	if s.index == nil {
		c.JSON(http.StatusNotFound, gin.H{"err": "index disabled"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()
	rows, err := s.index.TopBlockers(ctx, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"err": err.Error()})
		return
	}
	if rows == nil {
		rows = []indexdb.BlockerCount{}
	}
	c.JSON(http.StatusOK, gin.H{"blockers": rows})
}
