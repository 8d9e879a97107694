// Package http provides the HTTP adapter for the application layer.
// This is a thin adapter layer that translates HTTP requests to application service calls.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/edusuite/school-billing/internal/application/service"
)

// Logger interface for logging operations
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:         "0.0.0.0",
		Port:         8080,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// Server is the HTTP server adapter
type Server struct {
	config            ServerConfig
	httpServer        *http.Server
	router            *gin.Engine
	ledgerService     service.LedgerService
	paymentService    service.PaymentService
	adjustmentService service.AdjustmentService
	receiptService    service.ReceiptService
	logger            Logger
}

// NewServer creates a new HTTP server with the given services
func NewServer(
	config ServerConfig,
	ledgerService service.LedgerService,
	paymentService service.PaymentService,
	adjustmentService service.AdjustmentService,
	receiptService service.ReceiptService,
	logger Logger,
) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	server := &Server{
		config:            config,
		router:            router,
		ledgerService:     ledgerService,
		paymentService:    paymentService,
		adjustmentService: adjustmentService,
		receiptService:    receiptService,
		logger:            logger,
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

// setupMiddleware configures middleware for the router
func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(s.loggingMiddleware())
}

// loggingMiddleware creates a logging middleware
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		s.logger.Info("HTTP request",
			"method", method,
			"path", path,
			"status", status,
			"latency", latency.String(),
			"client_ip", c.ClientIP(),
		)
	}
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	handlers := NewHandlers(s.ledgerService, s.paymentService, s.adjustmentService, s.receiptService, s.logger)

	// Health check
	s.router.GET("/health", handlers.HealthCheck)

	api := s.router.Group("/api/v1")
	{
		// Invoices
		api.POST("/invoices", handlers.CreateInvoice)
		api.GET("/invoices/:id", handlers.GetInvoice)
		api.POST("/invoices/:id/issue", handlers.IssueInvoice)
		api.POST("/invoices/:id/cancel", handlers.CancelInvoice)
		api.GET("/invoices/:id/payments", handlers.ListInvoicePayments)
		api.POST("/invoices/:id/discounts", handlers.ApplyDiscount)
		api.POST("/invoices/:id/scholarships/:scholarshipId", handlers.ApplyScholarship)

		// Payments
		api.POST("/payments", handlers.RecordPayment)
		api.GET("/payments/:id", handlers.GetPayment)
		api.POST("/payments/:id/validate", handlers.ValidatePayment)
		api.POST("/payments/:id/cancel", handlers.CancelPayment)
		api.GET("/payments/:id/receipt", handlers.DownloadReceipt)

		// Waivers
		api.POST("/waivers", handlers.FileWaiver)
		api.GET("/waivers/:id", handlers.GetWaiver)
		api.POST("/waivers/:id/decision", handlers.DecideWaiver)

		// Scholarships
		api.POST("/scholarships", handlers.AwardScholarship)
	}
}

// Start starts the HTTP server
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting HTTP server", "address", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("HTTP server shutdown requested")
		return s.Stop()
	case err := <-errCh:
		s.logger.Error("HTTP server error", "error", err)
		return err
	}
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	s.logger.Info("Stopping HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the underlying gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Address returns the server address
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}
