// Package admin implements the admin HTTP surface named in §6:
// getWorkflows, cancelWorkflow, recoverPendingWorkflows, and a
// workflow-events websocket, plus /health and /metrics. The gin router,
// CORS handling, request logging, and health-check shape are grounded on
// the teacher's control-plane server; the admin surface itself is scoped
// down to the four workflow operations this engine exposes.
package admin

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hanzoai/dbosgo/internal/config"
	"github.com/hanzoai/dbosgo/internal/events"
	"github.com/hanzoai/dbosgo/internal/logger"
	"github.com/hanzoai/dbosgo/pkg/dbos"
)

// Server is the admin HTTP surface bound to a running Executor.
type Server struct {
	config   config.AdminConfig
	executor *dbos.Executor
	router   *gin.Engine
	httpSrv  *http.Server
	bus      *events.EventBus[dbos.WorkflowStatus]

	pollCancel context.CancelFunc
}

// NewServer constructs the admin surface. Call Start to begin serving.
func NewServer(cfg config.AdminConfig, executor *dbos.Executor) *Server {
	s := &Server{
		config:   cfg,
		executor: executor,
		router:   gin.Default(),
		bus:      events.NewEventBus[dbos.WorkflowStatus](),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	corsConfig := cors.Config{
		AllowOrigins:     s.config.CORS.AllowedOrigins,
		AllowMethods:     s.config.CORS.AllowedMethods,
		AllowHeaders:     s.config.CORS.AllowedHeaders,
		AllowCredentials: s.config.CORS.AllowCredentials,
	}
	if len(corsConfig.AllowOrigins) == 0 {
		corsConfig.AllowOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	}
	if len(corsConfig.AllowMethods) == 0 {
		corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	}
	if len(corsConfig.AllowHeaders) == 0 {
		corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "X-API-Key"}
	}
	s.router.Use(cors.New(corsConfig))

	s.router.Use(gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s\"\n",
			param.ClientIP, param.TimeStamp.Format(time.RFC1123), param.Method, param.Path, param.Request.Proto, param.StatusCode, param.Latency)
	}))

	s.router.Use(func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3600*time.Second)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	})

	s.router.Use(s.apiKeyAuth())

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.router.GET("/health", s.healthHandler)

	wf := s.router.Group("/workflows")
	{
		wf.GET("", s.getWorkflowsHandler)
		wf.POST("/:uuid/cancel", s.cancelWorkflowHandler)
		wf.POST("/recover", s.recoverWorkflowsHandler)
		wf.GET("/events", s.workflowEventsHandler)
	}
}

// apiKeyAuth enforces AdminConfig.Auth.APIKey via the X-API-Key header when
// one is configured; empty APIKey disables auth entirely (local dev).
func (s *Server) apiKeyAuth() gin.HandlerFunc {
	skip := make(map[string]bool, len(s.config.Auth.SkipPaths))
	for _, p := range s.config.Auth.SkipPaths {
		skip[p] = true
	}
	return func(c *gin.Context) {
		if s.config.Auth.APIKey == "" || skip[c.Request.URL.Path] {
			c.Next()
			return
		}
		if c.GetHeader("X-API-Key") != s.config.Auth.APIKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or missing API key"})
			return
		}
		c.Next()
	}
}

func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func (s *Server) getWorkflowsHandler(c *gin.Context) {
	filter := dbos.WorkflowFilter{
		Name:               c.Query("name"),
		AuthenticatedUser:  c.Query("authenticated_user"),
		ApplicationVersion: c.Query("application_version"),
	}
	if status := c.Query("status"); status != "" {
		filter.Status = dbos.WorkflowStatusValue(status)
	}
	workflows, err := s.executor.GetWorkflows(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"workflows": workflows})
}

func (s *Server) cancelWorkflowHandler(c *gin.Context) {
	uuid := c.Param("uuid")
	if err := s.executor.CancelWorkflow(c.Request.Context(), uuid); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"workflow_uuid": uuid, "status": "CANCELLED"})
}

func (s *Server) recoverWorkflowsHandler(c *gin.Context) {
	var body struct {
		ExecutorIDs []string `json:"executor_ids"`
	}
	_ = c.ShouldBindJSON(&body)

	executorIDs := body.ExecutorIDs
	if len(executorIDs) == 0 {
		executorIDs = []string{""}
	}

	recovered := make([]string, 0)
	for _, id := range executorIDs {
		handles, err := s.executor.RecoverPendingWorkflows(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		for _, h := range handles {
			recovered = append(recovered, h.WorkflowUUID())
		}
	}
	c.JSON(http.StatusOK, gin.H{"recovered": recovered})
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// workflowEventsHandler streams workflow status changes over a websocket,
// grounded on the teacher's generic EventBus[T] publish/subscribe pattern.
func (s *Server) workflowEventsHandler(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Logger.Warn().Err(err).Msg("dbos: admin websocket upgrade failed")
		return
	}
	defer conn.Close()

	subscriberID := fmt.Sprintf("%p", conn)
	ch := s.bus.Subscribe(subscriberID)
	defer s.bus.Unsubscribe(subscriberID)

	for status := range ch {
		if err := conn.WriteJSON(status); err != nil {
			return
		}
	}
}

// startPoller periodically diffs GetWorkflows against the last-seen status
// per workflow and publishes changes to the event bus, since the Executor
// has no direct status-change hook to subscribe to.
func (s *Server) startPoller(ctx context.Context) {
	pollCtx, cancel := context.WithCancel(ctx)
	s.pollCancel = cancel

	go func() {
		last := make(map[string]dbos.WorkflowStatusValue)
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-pollCtx.Done():
				return
			case <-ticker.C:
				workflows, err := s.executor.GetWorkflows(pollCtx, dbos.WorkflowFilter{})
				if err != nil {
					continue
				}
				for _, wf := range workflows {
					if prev, ok := last[wf.WorkflowUUID]; !ok || prev != wf.Status {
						last[wf.WorkflowUUID] = wf.Status
						s.bus.Publish(wf)
					}
				}
			}
		}
	}()
}

// Start begins serving the admin HTTP surface and the status-change poller.
// It blocks until the HTTP server stops (Stop, or a listen error); cancelling
// ctx stops only the poller.
func (s *Server) Start(ctx context.Context) error {
	s.startPoller(ctx)
	s.httpSrv = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.config.Port),
		Handler: s.router,
	}
	logger.Logger.Info().Int("port", s.config.Port).Msg("dbos: admin surface listening")
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully shuts down the admin HTTP surface and the poller.
func (s *Server) Stop(ctx context.Context) error {
	if s.pollCancel != nil {
		s.pollCancel()
	}
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}
