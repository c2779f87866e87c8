// Package controlplane 只读状态 API：检测器状态、最近的信号和分片结果
package controlplane

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/betbot/lagbot/internal/detector"
	"github.com/betbot/lagbot/internal/journal"
)

// StatsSource 检测器状态（detector.Detector 满足）
type StatsSource interface {
	Stats() detector.Stats
}

// Store 审计日志查询（journal.Journal 满足）
type Store interface {
	ListSignals(ctx context.Context, limit int) ([]journal.SignalRow, error)
	ListOutcomes(ctx context.Context, limit int) ([]journal.OutcomeRow, error)
	ListSettlements(ctx context.Context, chunkID string, limit int) ([]journal.SettlementRow, error)
}

type Server struct {
	store   Store // 可以为 nil（未启用 journal）
	log     *logrus.Entry
	started time.Time
	now     func() time.Time

	mu        sync.RWMutex
	detectors []StatsSource
	phase     string
}

func New(store Store, log *logrus.Entry) *Server {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Server{store: store, log: log, started: time.Now(), now: time.Now, phase: "starting"}
}

// AddDetector 注册一个需要在 /api/status 中展示的检测器
func (s *Server) AddDetector(d StatsSource) {
	s.mu.Lock()
	s.detectors = append(s.detectors, d)
	s.mu.Unlock()
}

// SetPhase 当前运行阶段（prompt / detecting / trading / done）
func (s *Server) SetPhase(phase string) {
	s.mu.Lock()
	s.phase = phase
	s.mu.Unlock()
}

func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	api := r.Group("/api")
	api.GET("/status", s.handleStatus)
	api.GET("/signals", s.handleSignals)
	api.GET("/outcomes", s.handleOutcomes)
	api.GET("/chunks/:chunkID/settlements", s.handleSettlements)
	return r
}

type statusResponse struct {
	Phase     string           `json:"phase"`
	StartedAt time.Time        `json:"started_at"`
	Uptime    string           `json:"uptime"`
	Detectors []detector.Stats `json:"detectors"`
	Journal   bool             `json:"journal"`
}

func (s *Server) handleStatus(c *gin.Context) {
	s.mu.RLock()
	resp := statusResponse{
		Phase:     s.phase,
		StartedAt: s.started,
		Uptime:    s.now().Sub(s.started).Truncate(time.Second).String(),
		Detectors: make([]detector.Stats, 0, len(s.detectors)),
		Journal:   s.store != nil,
	}
	for _, d := range s.detectors {
		resp.Detectors = append(resp.Detectors, d.Stats())
	}
	s.mu.RUnlock()
	c.JSON(http.StatusOK, resp)
}

func queryLimit(c *gin.Context) int {
	if v := strings.TrimSpace(c.Query("limit")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 2000 {
			return n
		}
	}
	return 50
}

func (s *Server) requireStore(c *gin.Context) bool {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "journal disabled"})
		return false
	}
	return true
}

func (s *Server) handleSignals(c *gin.Context) {
	if !s.requireStore(c) {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	rows, err := s.store.ListSignals(ctx, queryLimit(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db list: " + err.Error()})
		return
	}
	if rows == nil {
		rows = []journal.SignalRow{}
	}
	c.JSON(http.StatusOK, rows)
}

func (s *Server) handleOutcomes(c *gin.Context) {
	if !s.requireStore(c) {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	rows, err := s.store.ListOutcomes(ctx, queryLimit(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db list: " + err.Error()})
		return
	}
	if rows == nil {
		rows = []journal.OutcomeRow{}
	}
	c.JSON(http.StatusOK, rows)
}

func (s *Server) handleSettlements(c *gin.Context) {
	if !s.requireStore(c) {
		return
	}
	chunkID := c.Param("chunkID")
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	rows, err := s.store.ListSettlements(ctx, chunkID, queryLimit(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db list: " + err.Error()})
		return
	}
	if len(rows) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "chunk not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"chunk_id": chunkID, "settlements": rows})
}

// StartAsync 在 addr 上启动服务（非阻塞），ctx 结束时优雅关闭；返回实际监听地址
func (s *Server) StartAsync(ctx context.Context, addr string) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", err
	}
	srv := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Errorf("控制面服务异常退出: %v", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	s.log.Infof("控制面已启动: http://%s", ln.Addr())
	return ln.Addr().String(), nil
}
