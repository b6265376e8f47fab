package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/MarkoPoloResearchLab/cartsync/internal/authtoken"
	"github.com/MarkoPoloResearchLab/cartsync/pkg/cart"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/tyemirov/tauth/pkg/sessionvalidator"
	"go.uber.org/zap"
)

// StorageFactory builds the guest storage slot for one browser session.
type StorageFactory func(slotID string) (cart.GuestStorage, error)

// Server is the storefront façade: a session-scoped cart orchestrator behind
// a gin router. Authenticated identity endpoints sit behind the tauth session
// validator; cart endpoints accept both guests and bearer credentials.
type Server struct {
	logger    *zap.Logger
	cfg       Config
	gateway   cart.ServerGateway
	storage   StorageFactory
	validator *sessionvalidator.Validator

	mu       sync.Mutex
	sessions map[string]*cartSession
}

type cartSession struct {
	service *cart.Service
	tokens  *authtoken.Holder
}

// New wires a Server.
func New(cfg Config, logger *zap.Logger, gateway cart.ServerGateway, storage StorageFactory) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		return nil, fmt.Errorf("%w: logger dependency is nil", cart.ErrInvalidServiceConfig)
	}
	if gateway == nil {
		return nil, fmt.Errorf("%w: gateway dependency is nil", cart.ErrInvalidServiceConfig)
	}
	if storage == nil {
		return nil, fmt.Errorf("%w: storage factory dependency is nil", cart.ErrInvalidServiceConfig)
	}
	validator, err := sessionvalidator.New(sessionvalidator.Config{
		SigningKey: []byte(cfg.SessionSigningKey),
		Issuer:     cfg.SessionIssuer,
		CookieName: cfg.SessionCookieName,
	})
	if err != nil {
		return nil, fmt.Errorf("session validator: %w", err)
	}
	return &Server{
		logger:    logger,
		cfg:       cfg,
		gateway:   gateway,
		storage:   storage,
		validator: validator,
		sessions:  make(map[string]*cartSession),
	}, nil
}

// Run serves until the context is cancelled.
func (server *Server) Run(ctx context.Context) error {
	router := server.setupRouter()

	httpServer := &http.Server{
		Addr:    server.cfg.ListenAddr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		server.logger.Info("cart api listening", zap.String("addr", server.cfg.ListenAddr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
			server.logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (server *Server) setupRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     server.cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.GET("/cart", server.handleGetCart)
	api.POST("/cart/items", server.handleAddItem)
	api.PATCH("/cart/items/:id", server.handleUpdateItem)
	api.DELETE("/cart/items/:id", server.handleRemoveItem)
	api.DELETE("/cart", server.handleClearCart)

	account := router.Group("/api/account")
	account.Use(server.validator.GinMiddleware("auth_claims"))
	account.GET("/session", server.handleSession)

	return router
}

func (server *Server) handleSession(ctx *gin.Context) {
	claims := getClaims(ctx)
	if claims == nil {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"user_id":    claims.GetUserID(),
		"email":      claims.GetUserEmail(),
		"display":    claims.GetUserDisplayName(),
		"avatar_url": claims.GetUserAvatarURL(),
		"expires":    claims.GetExpiresAt().Unix(),
	})
}

func (server *Server) handleGetCart(ctx *gin.Context) {
	session, ok := server.bindSession(ctx)
	if !ok {
		return
	}
	force, _ := strconv.ParseBool(ctx.Query("force"))
	requestCtx, cancel := server.requestContext(ctx)
	defer cancel()

	view, err := session.service.Refresh(requestCtx, force)
	server.respond(ctx, view, err)
}

func (server *Server) handleAddItem(ctx *gin.Context) {
	session, ok := server.bindSession(ctx)
	if !ok {
		return
	}
	var request addItemRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	productID, err := cart.NewProductID(request.ProductID)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_product", "product_id is required"))
		return
	}
	quantity, err := cart.NewQuantity(request.Quantity)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_quantity", "quantity must not be negative"))
		return
	}
	requestCtx, cancel := server.requestContext(ctx)
	defer cancel()

	view, err := session.service.AddItem(requestCtx, productID, quantity, cart.ItemFields{
		Price:             request.Price,
		Name:              request.Name,
		Image:             request.Image,
		InstallationPrice: request.InstallationPrice,
		Raw:               request.Extra,
	})
	server.respond(ctx, view, err)
}

func (server *Server) handleUpdateItem(ctx *gin.Context) {
	session, ok := server.bindSession(ctx)
	if !ok {
		return
	}
	itemID, err := cart.NewItemID(ctx.Param("id"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_item", "item id is required"))
		return
	}
	var request updateItemRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	requestCtx, cancel := server.requestContext(ctx)
	defer cancel()

	view, err := session.service.UpdateQuantity(requestCtx, itemID, request.Quantity)
	server.respond(ctx, view, err)
}

func (server *Server) handleRemoveItem(ctx *gin.Context) {
	session, ok := server.bindSession(ctx)
	if !ok {
		return
	}
	itemID, err := cart.NewItemID(ctx.Param("id"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_item", "item id is required"))
		return
	}
	requestCtx, cancel := server.requestContext(ctx)
	defer cancel()

	view, err := session.service.RemoveItem(requestCtx, itemID)
	server.respond(ctx, view, err)
}

func (server *Server) handleClearCart(ctx *gin.Context) {
	session, ok := server.bindSession(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := server.requestContext(ctx)
	defer cancel()

	view, err := session.service.Clear(requestCtx)
	server.respond(ctx, view, err)
}

// bindSession resolves the browser's cart session, lazily creating the
// session-scoped orchestrator, and refreshes its credential from the request.
func (server *Server) bindSession(ctx *gin.Context) (*cartSession, bool) {
	slotID, err := ctx.Cookie(guestSessionCookie)
	if err != nil || strings.TrimSpace(slotID) == "" {
		slotID = uuid.NewString()
		ctx.SetCookie(guestSessionCookie, slotID, int((30 * 24 * time.Hour).Seconds()), "/", "", false, true)
	}

	session, err := server.sessionFor(slotID)
	if err != nil {
		server.logger.Error("session init failed", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, errorResponse("session_error", "cart session unavailable"))
		return nil, false
	}
	session.tokens.Set(bearerToken(ctx))
	return session, true
}

func (server *Server) sessionFor(slotID string) (*cartSession, error) {
	server.mu.Lock()
	defer server.mu.Unlock()
	if session, found := server.sessions[slotID]; found {
		return session, nil
	}
	storage, err := server.storage(slotID)
	if err != nil {
		return nil, err
	}
	holder := authtoken.NewHolder()
	service, err := cart.NewService(
		storage,
		server.gateway,
		authtoken.NewExpiryAware(holder, nil),
		cart.WithOperationLogger(cart.NewZapOperationLogger(server.logger)),
	)
	if err != nil {
		return nil, err
	}
	session := &cartSession{service: service, tokens: holder}
	server.sessions[slotID] = session
	return session, nil
}

func (server *Server) requestContext(ctx *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx.Request.Context(), server.cfg.CartAPITimeout)
}

func (server *Server) respond(ctx *gin.Context, view cart.StateView, err error) {
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, stateResponse(view))
}

func (server *Server) respondError(ctx *gin.Context, err error) {
	if cart.IsAuthExpired(err) {
		ctx.JSON(http.StatusUnauthorized, errorResponse("auth_expired", "credential expired"))
		return
	}
	var httpError *cart.HTTPError
	if errors.As(err, &httpError) {
		server.logger.Warn("cart backend error", zap.Int("status", httpError.StatusCode), zap.Error(err))
		ctx.JSON(http.StatusBadGateway, errorResponse("upstream_error", "cart backend unavailable"))
		return
	}
	if errors.Is(err, cart.ErrInvalidProductID) || errors.Is(err, cart.ErrInvalidItemID) || errors.Is(err, cart.ErrInvalidQuantity) {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_request", err.Error()))
		return
	}
	server.logger.Error("cart operation failed", zap.Error(err))
	ctx.JSON(http.StatusInternalServerError, errorResponse("cart_error", "cart operation failed"))
}

func bearerToken(ctx *gin.Context) string {
	header := ctx.GetHeader("Authorization")
	if header == "" {
		return ""
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, prefix))
}

func getClaims(ctx *gin.Context) *sessionvalidator.Claims {
	claimsValue, ok := ctx.Get("auth_claims")
	if !ok {
		return nil
	}
	claims, _ := claimsValue.(*sessionvalidator.Claims)
	return claims
}

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}

func stateResponse(view cart.StateView) gin.H {
	items := view.Items
	if items == nil {
		items = []cart.CartItem{}
	}
	return gin.H{
		"cart": gin.H{
			"id":     view.CartID,
			"items":  items,
			"totals": view.Totals,
		},
		"is_loaded": view.IsLoaded,
	}
}

type addItemRequest struct {
	ProductID         string         `json:"product_id"`
	Quantity          int64          `json:"quantity"`
	Price             *float64       `json:"price"`
	Name              string         `json:"name"`
	Image             string         `json:"image"`
	InstallationPrice *float64       `json:"installation_price"`
	Extra             map[string]any `json:"extra"`
}

type updateItemRequest struct {
	Quantity int64 `json:"quantity"`
}
