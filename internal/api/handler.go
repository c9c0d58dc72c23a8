package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"storefront/internal/service"
	"storefront/internal/util"
)

// Pinger reports whether a backing dependency is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services bundles the business services the handlers delegate to
type Services struct {
	Auth       *service.AuthService
	Customers  *service.CustomerService
	Categories *service.CategoryService
	Products   *service.ProductService
	Orders     *service.OrderService
}

// Handler contains HTTP handlers
type Handler struct {
	db         Pinger
	auth       *service.AuthService
	customers  *service.CustomerService
	categories *service.CategoryService
	products   *service.ProductService
	orders     *service.OrderService
	logger     *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(db Pinger, svc Services) *Handler {
	return &Handler{
		db:         db,
		auth:       svc.Auth,
		customers:  svc.Customers,
		categories: svc.Categories,
		products:   svc.Products,
		orders:     svc.Orders,
		logger:     util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(requestLogger(h.logger))
	router.Use(prometheusMiddleware())

	router.GET("/health", h.healthCheck)
	router.GET("/health-check", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	requireAuth := jwtMiddleware(h.auth)

	v1 := router.Group("/api/v1")
	{
		auth := v1.Group("/auth")
		auth.POST("/google", h.googleLogin)
		auth.POST("/token/refresh", h.refreshToken)
		auth.GET("/profile", requireAuth, h.getProfile)
		auth.PATCH("/profile", requireAuth, h.updateProfile)
		auth.POST("/logout", requireAuth, h.logout)

		v1.GET("/customers", requireAuth, h.listCustomers)

		v1.GET("/categories", h.listCategories)
		v1.POST("/categories", h.createCategory)
		v1.GET("/categories/:id", h.getCategory)
		v1.PATCH("/categories/:id", h.updateCategory)
		v1.DELETE("/categories/:id", h.deleteCategory)
		v1.GET("/categories/:id/average-price", h.categoryAveragePrice)

		v1.GET("/products", h.listProducts)
		v1.POST("/products", h.createProduct)
		v1.POST("/products/bulk", h.bulkUploadProducts)
		v1.GET("/products/:id", h.getProduct)
		v1.PATCH("/products/:id", h.updateProduct)
		v1.DELETE("/products/:id", h.deleteProduct)

		orders := v1.Group("/orders", requireAuth)
		orders.POST("", h.createOrder)
		orders.GET("", h.listOrders)
		orders.GET("/:id", h.getOrder)
		orders.PATCH("/:id/status", h.updateOrderStatus)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck reports ready once the database answers
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		h.logger.Warn("Readiness check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unavailable",
			"time":   time.Now().Unix(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// pathID parses the :id route parameter, answering 404 when it is not a
// positive integer.
func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return 0, false
	}
	return id, true
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		util.HTTPRequestDuration.WithLabelValues(c.Request.Method, path, status).Observe(duration)
		util.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
	}
}
