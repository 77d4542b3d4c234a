// Package httpapi expone el estado del mirror y su configuración por HTTP.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/alejandrodnm/copybot/internal/application/mirror"
	"github.com/alejandrodnm/copybot/internal/domain"
)

const maxStatusLimit = 500

// Engine es lo que el servidor necesita del mirror engine.
type Engine interface {
	Status(limit int) mirror.Status
	Entries(limit int) []domain.LedgerEntry
	UpdateSettings(patch domain.SettingsPatch) (domain.Settings, error)
	ToggleAutoCopy() (bool, error)
	ResetCursor(ctx context.Context, clearLedger bool) error
	CopyTrade(ctx context.Context, sourceTradeID string) (domain.LedgerEntry, error)
	Authenticate(ctx context.Context) error
}

// Controller agrupa los handlers de la API.
type Controller struct {
	engine Engine
	now    func() time.Time
}

// NewServer crea el router gin y el http.Server que lo sirve en addr.
func NewServer(addr string, engine Engine) (*gin.Engine, *http.Server) {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	ctrl := &Controller{engine: engine, now: time.Now}
	ctrl.RegisterRoutes(r.Group("/api"))

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return r, srv
}

// RegisterRoutes registra las rutas de la API bajo rg.
func (ctrl *Controller) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/status", ctrl.handleStatus)
	rg.GET("/trades", ctrl.handleTrades)
	rg.PATCH("/config", ctrl.handlePatchConfig)
	rg.POST("/reset_cursor", ctrl.handleResetCursor)
	rg.POST("/toggle_auto_copy", ctrl.handleToggleAutoCopy)
	rg.POST("/copy_trade", ctrl.handleCopyTrade)
	rg.POST("/authenticate", ctrl.handleAuthenticate)
}

func (ctrl *Controller) handleStatus(c *gin.Context) {
	limit, ok := parseLimit(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, toStatusView(ctrl.engine.Status(limit), ctrl.now()))
}

func (ctrl *Controller) handleTrades(c *gin.Context) {
	limit, ok := parseLimit(c)
	if !ok {
		return
	}
	now := ctrl.now()
	entries := ctrl.engine.Entries(limit)
	views := make([]entryView, 0, len(entries))
	for _, e := range entries {
		views = append(views, toEntryView(e, now))
	}
	c.JSON(http.StatusOK, gin.H{"trades": views, "count": len(views)})
}

func (ctrl *Controller) handlePatchConfig(c *gin.Context) {
	var patch domain.SettingsPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if patch.Empty() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no fields to update"})
		return
	}

	next, err := ctrl.engine.UpdateSettings(patch)
	if err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "field": verr.Field})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, next)
}

func (ctrl *Controller) handleResetCursor(c *gin.Context) {
	var req struct {
		ClearLedger bool `json:"clear_ledger"`
	}
	// cuerpo opcional
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
	}

	reqCtx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()
	if err := ctrl.engine.ResetCursor(reqCtx, req.ClearLedger); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	st := ctrl.engine.Status(1)
	c.JSON(http.StatusOK, gin.H{
		"status":       "reset",
		"clear_ledger": req.ClearLedger,
		"epoch":        st.Stats.Epoch,
		"cursor":       toCursorView(st.Cursor),
	})
}

func (ctrl *Controller) handleToggleAutoCopy(c *gin.Context) {
	enabled, err := ctrl.engine.ToggleAutoCopy()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"auto_copy_enabled": enabled})
}

func (ctrl *Controller) handleCopyTrade(c *gin.Context) {
	var req struct {
		TradeID string `json:"trade_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "trade_id is required"})
		return
	}

	reqCtx, cancel := context.WithTimeout(c.Request.Context(), 60*time.Second)
	defer cancel()
	entry, err := ctrl.engine.CopyTrade(reqCtx, req.TradeID)
	switch {
	case errors.Is(err, domain.ErrTradeNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrNotCopyable):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, toEntryView(entry, ctrl.now()))
	}
}

// handleAuthenticate renueva la sesión con las credenciales configuradas.
// Las credenciales nunca viajan por la API.
func (ctrl *Controller) handleAuthenticate(c *gin.Context) {
	if err := ctrl.engine.Authenticate(c.Request.Context()); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"authenticated": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"authenticated": true})
}

// parseLimit lee ?limit=N. Escribe la respuesta 400 si es inválido.
func parseLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
		return 0, false
	}
	return min(n, maxStatusLimit), true
}
