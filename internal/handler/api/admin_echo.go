package api

import (
	"errors"
	"time"

	models "QuoteForge/internal/domain/models"
	"QuoteForge/internal/repository"
	"QuoteForge/internal/service/control"
	"QuoteForge/internal/usecase"
	xhttp "QuoteForge/pkg/http"
	xlogger "QuoteForge/pkg/logger"
	xutil "QuoteForge/pkg/util"

	"github.com/labstack/echo/v4"
)

// AdminEchoHandler serves the manual control surface: symbol overrides, user
// targeting, forced outcomes, risk configuration and the intervention log.
type AdminEchoHandler struct {
	logger  *xlogger.Logger
	engine  *usecase.MarketEngine
	control *control.Center
	audit   *repository.AuditLog
}

func NewAdminEchoHandler(logger *xlogger.Logger, engine *usecase.MarketEngine, ctl *control.Center, audit *repository.AuditLog) *AdminEchoHandler {
	return &AdminEchoHandler{logger: logger, engine: engine, control: ctl, audit: audit}
}

func (h *AdminEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/v1/admin")
	g.POST("/control/bias", h.SetBias)
	g.POST("/control/vol-multiplier", h.SetVolMultiplier)
	g.POST("/control/price-override", h.SetPriceOverride)
	g.DELETE("/control/:symbol", h.ClearOverrides)
	g.GET("/control/:symbol", h.GetControl)
	g.POST("/targeting", h.SetUserTargeting)
	g.DELETE("/targeting/:user_id", h.ClearUserTargeting)
	g.POST("/trades/force-outcome", h.ForceTradeOutcome)
	g.GET("/risk/:symbol", h.GetRiskConfig)
	g.PUT("/risk", h.SetRiskConfig)
	g.GET("/exposure", h.GetAllExposures)
	g.GET("/exposure/:symbol", h.GetExposure)
	g.GET("/interventions", h.GetInterventionLog)
	g.POST("/reload/:symbol", h.Reload)
}

func parseTTL(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	return time.ParseDuration(raw)
}

func (h *AdminEchoHandler) controlError(c echo.Context, err error) error {
	if errors.Is(err, control.ErrInvalidOverride) {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()))
	}
	h.logger.Error("control update failed", xlogger.Error(err))
	return xhttp.AppErrorResponse(c, err)
}

func (h *AdminEchoHandler) SetBias(c echo.Context) error {
	req := &models.SetBiasRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	ttl, err := parseTTL(req.TTL)
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("invalid ttl: %v", err))
	}
	if err := h.control.SetBias(req.Symbol, req.Bias, req.Strength, ttl); err != nil {
		return h.controlError(c, err)
	}
	return xhttp.SuccessResponse(c, h.control.Control(req.Symbol))
}

func (h *AdminEchoHandler) SetVolMultiplier(c echo.Context) error {
	req := &models.SetVolMultiplierRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	ttl, err := parseTTL(req.TTL)
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("invalid ttl: %v", err))
	}
	if err := h.control.SetVolMultiplier(req.Symbol, req.Multiplier, ttl); err != nil {
		return h.controlError(c, err)
	}
	return xhttp.SuccessResponse(c, h.control.Control(req.Symbol))
}

func (h *AdminEchoHandler) SetPriceOverride(c echo.Context) error {
	req := &models.SetPriceOverrideRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	ttl, err := parseTTL(req.TTL)
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("invalid ttl: %v", err))
	}
	if err := h.control.SetPriceOverride(req.Symbol, req.Price, ttl); err != nil {
		return h.controlError(c, err)
	}
	return xhttp.SuccessResponse(c, h.control.Control(req.Symbol))
}

func (h *AdminEchoHandler) ClearOverrides(c echo.Context) error {
	h.control.ClearOverrides(c.Param("symbol"))
	return xhttp.NoContentResponse(c)
}

func (h *AdminEchoHandler) GetControl(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.control.Control(c.Param("symbol")))
}

func (h *AdminEchoHandler) SetUserTargeting(c echo.Context) error {
	req := &models.SetUserTargetingRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	t := models.UserTargeting{
		UserID:        req.UserID,
		Symbol:        req.Symbol,
		ForcedWins:    req.ForcedWins,
		ForcedLosses:  req.ForcedLosses,
		TargetWinRate: req.TargetWinRate,
	}
	if err := h.control.SetUserTargeting(t); err != nil {
		return h.controlError(c, err)
	}
	saved, _ := h.control.UserTargeting(req.UserID, req.Symbol)
	return xhttp.SuccessResponse(c, saved)
}

func (h *AdminEchoHandler) ClearUserTargeting(c echo.Context) error {
	h.control.ClearUserTargeting(c.Param("user_id"), c.QueryParam("symbol"))
	return xhttp.NoContentResponse(c)
}

func (h *AdminEchoHandler) ForceTradeOutcome(c echo.Context) error {
	req := &models.ForceTradeOutcomeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if _, ok := h.engine.Risk().GetTrade(req.TradeID); !ok {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("trade %s not open", req.TradeID))
	}
	if err := h.control.ForceTradeOutcome(req.TradeID, models.Outcome(req.Outcome)); err != nil {
		return h.controlError(c, err)
	}
	return xhttp.NoContentResponse(c)
}

func (h *AdminEchoHandler) GetRiskConfig(c echo.Context) error {
	symbol := c.Param("symbol")
	cfg, ok := h.engine.Risk().ConfigFor(symbol)
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no risk config for %s", symbol))
	}
	return xhttp.SuccessResponse(c, cfg)
}

func (h *AdminEchoHandler) SetRiskConfig(c echo.Context) error {
	req := &models.SetRiskConfigRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if req.MaxInterventionRate < req.MinInterventionRate {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("max_intervention_rate below min_intervention_rate"))
	}

	prev, ok := h.engine.Risk().ConfigFor(req.Symbol)
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("unknown symbol %s", req.Symbol))
	}
	cfg := &models.RiskConfig{
		Symbol:              req.Symbol,
		Enabled:             req.Enabled,
		ExposureThreshold:   req.ExposureThreshold,
		MinInterventionRate: req.MinInterventionRate,
		MaxInterventionRate: req.MaxInterventionRate,
		SpreadMultiplier:    req.SpreadMultiplier,
		PipSize:             prev.PipSize,
		PayoutPct:           req.PayoutPct / 100,
	}
	if err := h.engine.ApplyRiskConfig(c.Request().Context(), cfg); err != nil {
		h.logger.Error("risk config update failed", xlogger.String("symbol", req.Symbol), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, cfg)
}

func (h *AdminEchoHandler) GetAllExposures(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.engine.Risk().GetAllExposures())
}

func (h *AdminEchoHandler) GetExposure(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.engine.Risk().GetExposure(c.Param("symbol")))
}

func (h *AdminEchoHandler) GetInterventionLog(c echo.Context) error {
	n := xutil.ParseIntDefault(c.QueryParam("limit"), 100)
	records := h.audit.Recent(n)
	return xhttp.ListResponse(c, records, int64(len(records)))
}

func (h *AdminEchoHandler) Reload(c echo.Context) error {
	symbol := c.Param("symbol")
	if err := h.engine.Reload(c.Request().Context(), symbol); err != nil {
		if errors.Is(err, usecase.ErrSymbolUnknown) {
			return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("unknown symbol %s", symbol))
		}
		h.logger.Error("reload failed", xlogger.String("symbol", symbol), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.NoContentResponse(c)
}
