package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/campusduka/storefront/internal/auth"
	"github.com/campusduka/storefront/internal/cart"
	"github.com/campusduka/storefront/internal/catalog"
	"github.com/campusduka/storefront/internal/config"
	"github.com/campusduka/storefront/internal/orders"
	"github.com/campusduka/storefront/internal/serviceerr"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	userIDContextKey = "storefront_user_id"
	claimsContextKey = "storefront_session_claims"
)

var (
	errMissingSessionValidator = errors.New("session validator dependency required")
	errMissingUserResolver     = errors.New("user resolver dependency required")
	errMissingCatalogService   = errors.New("catalog service dependency required")
	errMissingCartService      = errors.New("cart service dependency required")
	errMissingOrderSequencer   = errors.New("order sequencer dependency required")
)

// SessionValidator authenticates a request from its session cookie or bearer token.
type SessionValidator interface {
	ValidateRequest(r *http.Request) (auth.SessionClaims, error)
}

// UserResolver maps session claims onto a canonical shopper id.
type UserResolver interface {
	ResolveCanonicalUserID(ctx context.Context, claims auth.SessionClaims) (string, error)
}

// Dependencies wires the HTTP layer to the storefront services.
type Dependencies struct {
	SessionValidator  SessionValidator
	UserResolver      UserResolver
	CatalogService    *catalog.Service
	CartService       *cart.Service
	OrderSequencer    *orders.Sequencer
	Realtime          *RealtimeDispatcher
	RateLimiter       *RateLimiter
	AllowedOrigins    []string
	HeartbeatInterval time.Duration
	Clock             func() time.Time
	Logger            *zap.Logger
}

// NewHTTPHandler builds the gin engine serving the storefront API.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.SessionValidator == nil {
		return nil, errMissingSessionValidator
	}
	if deps.UserResolver == nil {
		return nil, errMissingUserResolver
	}
	if deps.CatalogService == nil {
		return nil, errMissingCatalogService
	}
	if deps.CartService == nil {
		return nil, errMissingCartService
	}
	if deps.OrderSequencer == nil {
		return nil, errMissingOrderSequencer
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	realtime := deps.Realtime
	if realtime == nil {
		realtime = NewRealtimeDispatcher()
	}
	limiter := deps.RateLimiter
	if limiter == nil {
		general, strict := config.DefaultRateLimits()
		limiter = NewRateLimiter(general, strict, clock)
	}
	heartbeatInterval := deps.HeartbeatInterval
	if heartbeatInterval <= 0 {
		heartbeatInterval = defaultHeartbeatInterval
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(deps.AllowedOrigins))

	handler := &httpHandler{
		sessions:          deps.SessionValidator,
		users:             deps.UserResolver,
		catalog:           deps.CatalogService,
		cart:              deps.CartService,
		orders:            deps.OrderSequencer,
		realtime:          realtime,
		heartbeatInterval: heartbeatInterval,
		clock:             clock,
		logger:            logger,
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	public := router.Group("/")
	public.Use(limiter.middleware(rateTierGeneral))
	public.GET("/products", handler.handleListProducts)
	public.GET("/products/related", handler.handleRelatedProducts)
	public.GET("/products/:id", handler.handleGetProduct)
	public.GET("/categories", handler.handleListCategories)

	router.POST("/payments/mpesa/callback", limiter.middleware(rateTierStrict), handler.handleMpesaCallback)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.GET("/cart/events", handler.handleCartEvents)

	limited := protected.Group("/")
	limited.Use(limiter.middleware(rateTierGeneral))
	limited.GET("/cart", handler.handleGetCart)
	limited.POST("/cart", handler.handleAddToCart)
	limited.PUT("/cart", handler.handleUpdateCart)
	limited.DELETE("/cart", handler.handleDeleteCart)
	limited.POST("/cart/sync", handler.handleSyncCart)
	limited.GET("/orders", handler.handleListOrders)
	limited.GET("/orders/:id/status", handler.handleGetOrderStatus)
	limited.POST("/categories", handler.requireRole(auth.RoleAdmin), handler.handleCreateCategory)

	protected.POST("/orders", limiter.middleware(rateTierStrict), handler.handleCheckout)

	admin := limited.Group("/admin")
	admin.Use(handler.requireRole(auth.RoleAdmin))
	admin.POST("/products", handler.handleCreateProduct)
	admin.GET("/products/check", handler.handleCheckProduct)
	admin.GET("/inventory", handler.handleInventory)
	admin.PUT("/products/:id/stock", handler.handleSetStock)
	admin.GET("/orders", handler.handleListAllOrders)
	admin.PUT("/orders/:id/status", handler.handleUpdateOrderStatus)

	return router, nil
}

type httpHandler struct {
	sessions          SessionValidator
	users             UserResolver
	catalog           *catalog.Service
	cart              *cart.Service
	orders            *orders.Sequencer
	realtime          *RealtimeDispatcher
	heartbeatInterval time.Duration
	clock             func() time.Time
	logger            *zap.Logger
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type", "Accept", "Last-Event-ID"},
		MaxAge:       12 * time.Hour,
	}
	if len(allowedOrigins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = allowedOrigins
		cfg.AllowCredentials = true
	}
	return cors.New(cfg)
}

func respondError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": code, "message": message})
}

// respondInternal logs a service failure and returns its code to the caller.
func (h *httpHandler) respondInternal(c *gin.Context, code, message string, err error) {
	fields := []zap.Field{zap.Error(err), zap.String("path", c.FullPath())}
	body := gin.H{"error": code, "message": message}
	if serviceCode, ok := serviceerr.CodeOf(err); ok {
		fields = append(fields, zap.String("code", serviceCode))
		body["code"] = serviceCode
	}
	h.logger.Error(message, fields...)
	c.AbortWithStatusJSON(http.StatusInternalServerError, body)
}
