package api

import (
	"errors"
	"time"

	models "QuoteForge/internal/domain/models"
	"QuoteForge/internal/usecase"
	xhttp "QuoteForge/pkg/http"
	xlogger "QuoteForge/pkg/logger"
	xutil "QuoteForge/pkg/util"

	"github.com/labstack/echo/v4"
)

// MarketEchoHandler serves the public market surface: quotes, state, session
// info, tick history and the trade lifecycle.
type MarketEchoHandler struct {
	logger *xlogger.Logger
	engine *usecase.MarketEngine
}

func NewMarketEchoHandler(logger *xlogger.Logger, engine *usecase.MarketEngine) *MarketEchoHandler {
	return &MarketEchoHandler{logger: logger, engine: engine}
}

func (h *MarketEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/v1")
	g.GET("/symbols", h.Symbols)
	g.GET("/quote/:symbol", h.Quote)
	g.GET("/state/:symbol", h.State)
	g.GET("/session/:symbol", h.Session)
	g.GET("/history", h.History)
	g.POST("/trades", h.PlaceTrade)
	g.DELETE("/trades/:id", h.VoidTrade)
}

func (h *MarketEchoHandler) Symbols(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.engine.Generator().Symbols())
}

func (h *MarketEchoHandler) Quote(c echo.Context) error {
	symbol := c.Param("symbol")
	tick := h.engine.LastTick(symbol)
	if tick == nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no quote for %s", symbol))
	}
	return xhttp.SuccessResponse(c, tick)
}

func (h *MarketEchoHandler) State(c echo.Context) error {
	symbol := c.Param("symbol")
	st, ok := h.engine.Generator().State(symbol)
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("unknown symbol %s", symbol))
	}
	return xhttp.SuccessResponse(c, st)
}

func (h *MarketEchoHandler) Session(c echo.Context) error {
	symbol := c.Param("symbol")
	cfg, ok := h.engine.Generator().Config(symbol)
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("unknown symbol %s", symbol))
	}
	session := h.engine.Sessions().GetMarketSession(symbol, cfg.Market)
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"session":            session,
		"mode":               h.engine.Sessions().GetPriceMode(symbol, cfg.Market),
		"anchoring_progress": h.engine.Sessions().GetAnchoringProgress(symbol),
	})
}

func (h *MarketEchoHandler) History(c echo.Context) error {
	req := &models.HistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	now := time.Now()
	from := xutil.ParseTimeDefault(req.From, now.Add(-time.Hour))
	to := xutil.ParseTimeDefault(req.To, now)
	from, to = xutil.ClampRange(from, to, 7*24*time.Hour)

	ticks, err := h.engine.History(c.Request().Context(), req.Symbol, from, to, req.Limit)
	if err != nil {
		h.logger.Error("history query failed", xlogger.String("symbol", req.Symbol), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.ListResponse(c, ticks, int64(len(ticks)))
}

func (h *MarketEchoHandler) PlaceTrade(c echo.Context) error {
	req := &models.PlaceTradeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	trade, err := h.engine.PlaceTrade(c.Request().Context(), usecase.PlaceTradeInput{
		TradeID:   req.TradeID,
		UserID:    req.UserID,
		Symbol:    req.Symbol,
		Amount:    req.Amount,
		Direction: models.Direction(req.Direction),
		Expiry:    time.Duration(req.ExpirySeconds) * time.Second,
	})
	if err != nil {
		if errors.Is(err, usecase.ErrSymbolUnknown) {
			return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("unknown symbol %s", req.Symbol))
		}
		h.logger.Error("place trade failed", xlogger.String("symbol", req.Symbol), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("place trade: %v", err))
	}
	return xhttp.CreatedResponse(c, trade)
}

func (h *MarketEchoHandler) VoidTrade(c echo.Context) error {
	id := c.Param("id")
	if err := h.engine.VoidTrade(c.Request().Context(), id); err != nil {
		switch {
		case errors.Is(err, usecase.ErrTradeNotFound):
			return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("trade %s not found", id))
		case errors.Is(err, usecase.ErrTradeExpired):
			return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("trade %s is past expiry", id))
		default:
			h.logger.Error("void trade failed", xlogger.String("trade_id", id), xlogger.Error(err))
			return xhttp.AppErrorResponse(c, err)
		}
	}
	return xhttp.NoContentResponse(c)
}
