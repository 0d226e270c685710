// Package httpapi exposes the marketplace over HTTP for the virtual tabletop
// client. Sessions are validated through tauth cookies; review endpoints
// require the configured reviewer role.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/tyemirov/tauth/pkg/sessionvalidator"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/vttmarket/pkg/market"
)

const claimsContextKey = "auth_claims"

// Services bundles the domain services the handlers call into.
type Services struct {
	Basket   *market.BasketService
	Workflow *market.Workflow
}

// Run boots the HTTP façade using the supplied configuration.
func Run(ctx context.Context, cfg Config, services Services, logger *zap.Logger) error {
	if services.Basket == nil || services.Workflow == nil {
		return fmt.Errorf("%w: basket and workflow services are required", market.ErrInvalidServiceConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	sessionValidator, err := sessionvalidator.New(sessionvalidator.Config{
		SigningKey: []byte(cfg.SessionSigningKey),
		Issuer:     cfg.SessionIssuer,
		CookieName: cfg.SessionCookieName,
	})
	if err != nil {
		return fmt.Errorf("session validator: %w", err)
	}

	handler := &httpHandler{
		logger:   logger,
		services: services,
		cfg:      cfg,
	}

	router := setupRouter(cfg, handler, sessionValidator)

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("market api listening", zap.String("addr", cfg.ListenAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func setupRouter(cfg Config, handler *httpHandler, validator *sessionvalidator.Validator) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.Use(validator.GinMiddleware(claimsContextKey))

	api.GET("/session", handler.handleSession)

	api.GET("/basket", handler.handleBasket)
	api.POST("/basket/items", handler.handleAddItem)
	api.DELETE("/basket/items/:lineID", handler.handleRemoveLine)
	api.POST("/basket/items/:lineID/quantity", handler.handleChangeQuantity)
	api.POST("/basket/contact", handler.handleSetContact)
	api.POST("/basket/clear", handler.handleClear)
	api.POST("/basket/checkout", handler.handleCheckout)

	api.GET("/actors/:actorID/ledger", handler.handleActorLedger)

	review := api.Group("/review")
	review.Use(handler.requireReviewerRole)
	review.GET("", handler.handleListPending)
	review.POST("/:userID/:requestID/approve", handler.handleApprove)
	review.POST("/:userID/:requestID/reject", handler.handleReject)
	review.POST("/:userID/:requestID/lines/:lineID", handler.handleUpdateLine)
	review.POST("/actors/:actorID/karma", handler.handleAdjustKarma)

	return router
}

type httpHandler struct {
	logger   *zap.Logger
	services Services
	cfg      Config
}

func (handler *httpHandler) requireReviewerRole(ctx *gin.Context) {
	claims := getClaims(ctx)
	if claims == nil {
		ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return
	}
	for _, role := range claims.GetUserRoles() {
		if role == handler.cfg.ReviewerRole {
			ctx.Next()
			return
		}
	}
	ctx.AbortWithStatusJSON(http.StatusForbidden, errorResponse("forbidden", "reviewer role required"))
}

func (handler *httpHandler) handleSession(ctx *gin.Context) {
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
		"roles":      claims.GetUserRoles(),
		"expires":    claims.GetExpiresAt().Unix(),
	})
}

func (handler *httpHandler) handleBasket(ctx *gin.Context) {
	user, ok := handler.sessionUser(ctx)
	if !ok {
		return
	}
	basket, err := handler.services.Basket.Basket(ctx.Request.Context(), user)
	if err != nil {
		handler.respondError(ctx, "basket load failed", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"basket": payloadFromBasket(basket)})
}

func (handler *httpHandler) handleAddItem(ctx *gin.Context) {
	user, ok := handler.sessionUser(ctx)
	if !ok {
		return
	}
	var request addItemRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	catalogID, err := market.NewCatalogID(request.CatalogID)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_catalog_id", err.Error()))
		return
	}
	rating, err := market.NewRating(request.Rating)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_rating", err.Error()))
		return
	}
	var actorHint market.ActorID
	if request.ActorID != "" {
		actorHint, err = market.NewActorID(request.ActorID)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, errorResponse("invalid_actor_id", err.Error()))
			return
		}
	}
	basket, err := handler.services.Basket.AddItem(ctx.Request.Context(), user, catalogID, rating, actorHint)
	if err != nil {
		handler.respondError(ctx, "add item failed", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"basket": payloadFromBasket(basket)})
}

func (handler *httpHandler) handleRemoveLine(ctx *gin.Context) {
	user, ok := handler.sessionUser(ctx)
	if !ok {
		return
	}
	lineID, err := market.NewLineID(ctx.Param("lineID"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_line_id", err.Error()))
		return
	}
	basket, err := handler.services.Basket.RemoveLine(ctx.Request.Context(), user, lineID)
	if err != nil {
		handler.respondError(ctx, "remove line failed", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"basket": payloadFromBasket(basket)})
}

func (handler *httpHandler) handleChangeQuantity(ctx *gin.Context) {
	user, ok := handler.sessionUser(ctx)
	if !ok {
		return
	}
	lineID, err := market.NewLineID(ctx.Param("lineID"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_line_id", err.Error()))
		return
	}
	var request quantityRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	basket, err := handler.services.Basket.ChangeQuantity(ctx.Request.Context(), user, lineID, request.Delta)
	if err != nil {
		handler.respondError(ctx, "change quantity failed", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"basket": payloadFromBasket(basket)})
}

func (handler *httpHandler) handleSetContact(ctx *gin.Context) {
	user, ok := handler.sessionUser(ctx)
	if !ok {
		return
	}
	var request contactRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	basket, err := handler.services.Basket.SetContact(ctx.Request.Context(), user, request.ContactID)
	if err != nil {
		handler.respondError(ctx, "set contact failed", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"basket": payloadFromBasket(basket)})
}

func (handler *httpHandler) handleClear(ctx *gin.Context) {
	user, ok := handler.sessionUser(ctx)
	if !ok {
		return
	}
	basket, err := handler.services.Basket.Clear(ctx.Request.Context(), user)
	if err != nil {
		handler.respondError(ctx, "clear failed", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"basket": payloadFromBasket(basket)})
}

// handleCheckout submits the cart for review, or commits it immediately when
// the world runs without an approval step. A shortfall is a normal outcome,
// reported as a status payload rather than an error code.
func (handler *httpHandler) handleCheckout(ctx *gin.Context) {
	user, ok := handler.sessionUser(ctx)
	if !ok {
		return
	}
	if handler.cfg.RequireApproval {
		request, err := handler.services.Workflow.Submit(ctx.Request.Context(), user)
		if err != nil {
			handler.respondError(ctx, "submit failed", err)
			return
		}
		ctx.JSON(http.StatusOK, gin.H{
			"status":  "submitted",
			"request": payloadFromRequest(request),
		})
		return
	}
	committed, err := handler.services.Workflow.DirectPurchase(ctx.Request.Context(), user, market.ActorID{})
	if err != nil && !committed {
		if status, shortfall := shortfallStatus(err); shortfall {
			ctx.JSON(http.StatusOK, gin.H{"status": status})
			return
		}
		handler.respondError(ctx, "purchase failed", err)
		return
	}
	if err != nil {
		// Committed with partially materialized inventory.
		handler.logger.Warn("purchase committed with errors", zap.Error(err))
		ctx.JSON(http.StatusOK, gin.H{"status": "partial"})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (handler *httpHandler) handleListPending(ctx *gin.Context) {
	reviewer, ok := handler.sessionUser(ctx)
	if !ok {
		return
	}
	reviews, err := handler.services.Workflow.ListPending(ctx.Request.Context(), reviewer)
	if err != nil {
		handler.respondError(ctx, "list pending failed", err)
		return
	}
	payloads := make([]reviewPayload, 0, len(reviews))
	for _, review := range reviews {
		payloads = append(payloads, reviewPayload{
			User:    review.User.String(),
			Request: payloadFromRequest(review.Request),
		})
	}
	ctx.JSON(http.StatusOK, gin.H{"pending": payloads})
}

func (handler *httpHandler) handleApprove(ctx *gin.Context) {
	reviewer, ok := handler.sessionUser(ctx)
	if !ok {
		return
	}
	user, requestID, ok := handler.reviewTarget(ctx)
	if !ok {
		return
	}
	committed, err := handler.services.Workflow.Approve(ctx.Request.Context(), reviewer, user, requestID)
	if err != nil && !committed {
		if status, shortfall := shortfallStatus(err); shortfall {
			ctx.JSON(http.StatusOK, gin.H{"status": status})
			return
		}
		handler.respondError(ctx, "approve failed", err)
		return
	}
	if err != nil {
		handler.logger.Warn("approval committed with errors", zap.Error(err))
		ctx.JSON(http.StatusOK, gin.H{"status": "partial"})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "approved"})
}

func (handler *httpHandler) handleReject(ctx *gin.Context) {
	reviewer, ok := handler.sessionUser(ctx)
	if !ok {
		return
	}
	user, requestID, ok := handler.reviewTarget(ctx)
	if !ok {
		return
	}
	if err := handler.services.Workflow.Reject(ctx.Request.Context(), reviewer, user, requestID); err != nil {
		handler.respondError(ctx, "reject failed", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "rejected"})
}

func (handler *httpHandler) handleUpdateLine(ctx *gin.Context) {
	reviewer, ok := handler.sessionUser(ctx)
	if !ok {
		return
	}
	user, requestID, ok := handler.reviewTarget(ctx)
	if !ok {
		return
	}
	lineID, err := market.NewLineID(ctx.Param("lineID"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_line_id", err.Error()))
		return
	}
	var request updateLineRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	field, err := market.ParseUpdateField(request.Field)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_field", err.Error()))
		return
	}
	updated, err := handler.services.Workflow.UpdatePendingLine(ctx.Request.Context(), reviewer, user, requestID, lineID, field, request.Value)
	if err != nil {
		handler.respondError(ctx, "update line failed", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"request": payloadFromRequest(updated)})
}

func (handler *httpHandler) handleAdjustKarma(ctx *gin.Context) {
	reviewer, ok := handler.sessionUser(ctx)
	if !ok {
		return
	}
	actor, err := market.NewActorID(ctx.Param("actorID"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_actor_id", err.Error()))
		return
	}
	var request karmaRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	if err := handler.services.Workflow.AdjustKarma(ctx.Request.Context(), reviewer, actor, market.Karma(request.Delta), request.Note); err != nil {
		if status, shortfall := shortfallStatus(err); shortfall {
			ctx.JSON(http.StatusOK, gin.H{"status": status})
			return
		}
		handler.respondError(ctx, "karma adjust failed", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "adjusted"})
}

func (handler *httpHandler) handleActorLedger(ctx *gin.Context) {
	if _, ok := handler.sessionUser(ctx); !ok {
		return
	}
	actor, err := market.NewActorID(ctx.Param("actorID"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_actor_id", err.Error()))
		return
	}
	limit := handler.cfg.LedgerLimit
	if raw := ctx.Query("limit"); raw != "" {
		parsed, parseErr := strconv.Atoi(raw)
		if parseErr != nil || parsed < 1 {
			ctx.JSON(http.StatusBadRequest, errorResponse("invalid_limit", "limit must be a positive integer"))
			return
		}
		limit = parsed
	}
	entries, err := handler.services.Workflow.ActorLedger(ctx.Request.Context(), actor, limit)
	if err != nil {
		handler.respondError(ctx, "ledger read failed", err)
		return
	}
	payloads := make([]ledgerEntryPayload, 0, len(entries))
	for _, entry := range entries {
		payloads = append(payloads, payloadFromLedgerEntry(entry))
	}
	ctx.JSON(http.StatusOK, gin.H{"entries": payloads})
}

func (handler *httpHandler) sessionUser(ctx *gin.Context) (market.UserID, bool) {
	claims := getClaims(ctx)
	if claims == nil {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return market.UserID{}, false
	}
	user, err := market.NewUserID(claims.GetUserID())
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "invalid session subject"))
		return market.UserID{}, false
	}
	return user, true
}

func (handler *httpHandler) reviewTarget(ctx *gin.Context) (market.UserID, market.RequestID, bool) {
	user, err := market.NewUserID(ctx.Param("userID"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_user_id", err.Error()))
		return market.UserID{}, market.RequestID{}, false
	}
	requestID, err := market.NewRequestID(ctx.Param("requestID"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_request_id", err.Error()))
		return market.UserID{}, market.RequestID{}, false
	}
	return user, requestID, true
}

func (handler *httpHandler) respondError(ctx *gin.Context, message string, err error) {
	status, code := classifyError(err)
	if status >= http.StatusInternalServerError {
		handler.logger.Error(message, zap.Error(err))
	}
	ctx.JSON(status, errorResponse(code, err.Error()))
}

func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, market.ErrItemNotFound):
		return http.StatusNotFound, "item_not_found"
	case errors.Is(err, market.ErrLineNotFound):
		return http.StatusNotFound, "line_not_found"
	case errors.Is(err, market.ErrRequestNotFound):
		return http.StatusNotFound, "request_not_found"
	case errors.Is(err, market.ErrRequestNotPending):
		return http.StatusConflict, "request_not_pending"
	case errors.Is(err, market.ErrDuplicateUniqueItem):
		return http.StatusConflict, "duplicate_unique_item"
	case errors.Is(err, market.ErrEmptyBasket):
		return http.StatusBadRequest, "empty_basket"
	case errors.Is(err, market.ErrNoActorSelected):
		return http.StatusBadRequest, "no_actor_selected"
	case errors.Is(err, market.ErrInvalidRating):
		return http.StatusBadRequest, "invalid_rating"
	case errors.Is(err, market.ErrInvalidQuantity):
		return http.StatusBadRequest, "invalid_quantity"
	case errors.Is(err, market.ErrInvalidUpdateField):
		return http.StatusBadRequest, "invalid_field"
	case errors.Is(err, market.ErrCapabilityDenied):
		return http.StatusForbidden, "forbidden"
	}
	return http.StatusInternalServerError, "internal_error"
}

// shortfallStatus maps affordability failures to a status string. These are
// expected outcomes of the purchase flow, not transport errors.
func shortfallStatus(err error) (string, bool) {
	switch {
	case errors.Is(err, market.ErrInsufficientFunds):
		return "insufficient_funds", true
	case errors.Is(err, market.ErrInsufficientKarma):
		return "insufficient_karma", true
	}
	return "", false
}

func getClaims(ctx *gin.Context) *sessionvalidator.Claims {
	claimsValue, ok := ctx.Get(claimsContextKey)
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
