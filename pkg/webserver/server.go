package webserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/01000101/cloudbridge/pkg/cloud"
	"github.com/01000101/cloudbridge/pkg/models"
	"github.com/01000101/cloudbridge/pkg/storage"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Server exposes a read-only JSON view of a provider's resources
type Server struct {
	provider cloud.Provider
	storage  *storage.FileStorage
	logger   *logrus.Logger
	addr     string
}

// APIResponse represents the API response format
type APIResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	// Paging is set on list responses
	Paging *Paging `json:"paging,omitempty"`
}

// Paging describes the page returned by a list endpoint
type Paging struct {
	Total      int    `json:"total"`
	Truncated  bool   `json:"truncated"`
	NextMarker string `json:"next_marker,omitempty"`
}

// NewServer creates a new web server instance
func NewServer(provider cloud.Provider, storage *storage.FileStorage, logger *logrus.Logger, addr string) *Server {
	return &Server{
		provider: provider,
		storage:  storage,
		logger:   logger,
		addr:     addr,
	}
}

// Start serves until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Infof("Starting web server on http://localhost%s", s.addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Handler returns the router
func (s *Server) Handler() http.Handler {
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())

	api := router.Group("/api")
	api.GET("/health", s.handleHealth)
	api.GET("/keypairs", func(c *gin.Context) {
		listPage[cloud.KeyPair](s, c, s.provider.Security().KeyPairs(), viewKeyPair)
	})
	api.GET("/securitygroups", func(c *gin.Context) {
		listPage[cloud.SecurityGroup](s, c, s.provider.Security().SecurityGroups(), viewSecurityGroup)
	})
	api.GET("/securitygroups/:id/rules", s.handleRules)
	api.GET("/images", func(c *gin.Context) {
		listPage[cloud.Image](s, c, s.provider.Images(), viewImage)
	})
	api.GET("/instances", func(c *gin.Context) {
		listPage[cloud.Instance](s, c, s.provider.Instances(), viewInstance)
	})
	api.GET("/instances/:id", s.handleInstance)
	api.GET("/volumes", func(c *gin.Context) {
		listPage[cloud.Volume](s, c, s.provider.BlockStore().Volumes(), viewVolume)
	})
	api.GET("/snapshots", func(c *gin.Context) {
		listPage[cloud.Snapshot](s, c, s.provider.BlockStore().Snapshots(), viewSnapshot)
	})
	api.GET("/networks", func(c *gin.Context) {
		listPage[cloud.Network](s, c, s.provider.Network().Networks(), viewNetwork)
	})
	api.GET("/subnets", func(c *gin.Context) {
		listPage[cloud.Subnet](s, c, s.provider.Network().Subnets(), viewSubnet)
	})
	api.GET("/regions", func(c *gin.Context) {
		listPage[cloud.Region](s, c, s.provider.Regions(), viewRegion)
	})
	api.GET("/regions/:name/zones", s.handleZones)
	api.GET("/instancetypes", func(c *gin.Context) {
		listPage[cloud.InstanceType](s, c, s.provider.InstanceTypes(), viewInstanceType)
	})
	api.GET("/ledger", s.handleLedger)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, APIResponse{Success: false, Error: "Not found"})
	})
	return router
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		}).Debug("Handled request")
	}
}

// Handlers

func (s *Server) handleHealth(c *gin.Context) {
	if err := s.provider.ValidateCredentials(c.Request.Context()); err != nil {
		s.logger.WithError(err).Warn("Credential check failed")
		s.errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, APIResponse{
		Success: true,
		Message: "Service is healthy",
		Data: gin.H{
			"provider": s.provider.Name(),
			"region":   s.provider.Region(),
		},
	})
}

// listPage renders one page of a listing. Paging follows ?limit=&marker=.
func listPage[T cloud.Resource](s *Server, c *gin.Context, svc cloud.Lister[T], view func(T) any) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, APIResponse{Success: false, Error: fmt.Sprintf("invalid limit %q", raw)})
			return
		}
		limit = n
	}

	page, err := cloud.ListPage(c.Request.Context(), svc, limit, c.Query("marker"))
	if err != nil {
		s.logger.WithError(err).WithField("path", c.Request.URL.Path).Error("Failed to list resources")
		s.errorResponse(c, err)
		return
	}

	items := make([]any, 0, len(page.Items))
	for _, item := range page.Items {
		items = append(items, view(item))
	}
	c.JSON(http.StatusOK, APIResponse{
		Success: true,
		Message: fmt.Sprintf("Retrieved %d resources", len(items)),
		Data:    items,
		Paging:  &Paging{Total: page.Total, Truncated: page.Truncated, NextMarker: page.NextMarker},
	})
}

func (s *Server) handleRules(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	groups, err := s.provider.Security().SecurityGroups().Get(ctx, models.Filter{IDs: []string{id}})
	if err != nil {
		s.errorResponse(c, err)
		return
	}
	if len(groups) == 0 {
		s.errorResponse(c, cloud.NotFound("rules", cloud.KindSecurityGroup, id))
		return
	}

	rules, err := groups[0].Rules(ctx)
	if err != nil {
		s.errorResponse(c, err)
		return
	}
	items := make([]any, 0, len(rules))
	for _, r := range rules {
		items = append(items, viewRule(r))
	}
	c.JSON(http.StatusOK, APIResponse{
		Success: true,
		Message: fmt.Sprintf("Retrieved %d rules", len(items)),
		Data:    items,
	})
}

func (s *Server) handleInstance(c *gin.Context) {
	id := c.Param("id")
	instances, err := s.provider.Instances().Get(c.Request.Context(), models.Filter{IDs: []string{id}})
	if err != nil {
		s.errorResponse(c, err)
		return
	}
	if len(instances) == 0 {
		s.errorResponse(c, cloud.NotFound("get", cloud.KindInstance, id))
		return
	}
	c.JSON(http.StatusOK, APIResponse{
		Success: true,
		Message: "Instance retrieved",
		Data:    viewInstance(instances[0]),
	})
}

func (s *Server) handleZones(c *gin.Context) {
	ctx := c.Request.Context()
	name := c.Param("name")
	region, ok, err := s.provider.Regions().Get(ctx, name)
	if err != nil {
		s.errorResponse(c, err)
		return
	}
	if !ok {
		s.errorResponse(c, cloud.NotFound("zones", cloud.KindRegion, name))
		return
	}
	zones, err := region.Zones(ctx)
	if err != nil {
		s.errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, APIResponse{
		Success: true,
		Message: fmt.Sprintf("Retrieved %d zones", len(zones)),
		Data:    zones,
	})
}

func (s *Server) handleLedger(c *gin.Context) {
	if s.storage == nil {
		c.JSON(http.StatusOK, APIResponse{Success: true, Message: "No ledger configured", Data: []any{}})
		return
	}
	records, err := s.storage.List(cloud.Kind(c.Query("kind")))
	if err != nil {
		s.logger.WithError(err).Error("Failed to read ledger")
		s.errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, APIResponse{
		Success: true,
		Message: fmt.Sprintf("Retrieved %d records", len(records)),
		Data:    records,
	})
}

// Helper methods

func (s *Server) errorResponse(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	var transport *cloud.TransportError
	switch {
	case errors.Is(err, cloud.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, cloud.ErrNotSupported):
		status = http.StatusNotImplemented
	case errors.As(err, &transport):
		status = http.StatusBadGateway
	}
	c.JSON(status, APIResponse{Success: false, Error: err.Error()})
}
