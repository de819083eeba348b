package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"CoinPulse/internal/domain/models"
	drepo "CoinPulse/internal/domain/repository"
	"CoinPulse/internal/usecase"
	xhttp "CoinPulse/pkg/http"
	"CoinPulse/pkg/logger"
	"CoinPulse/pkg/util"
)

// MarketService is the orchestrator surface the HTTP layer drives.
type MarketService interface {
	TopMarkets() []models.MarketSnapshot
	RefreshTopMarkets(ctx context.Context) error
	Watchlist() ([]string, []models.MarketSnapshot)
	AddToWatchlist(ctx context.Context, assetID string) error
	SearchAndAdd(ctx context.Context, query string) (string, error)
	RemoveFromWatchlist(ctx context.Context, assetID string) error
	ClearWatchlist(ctx context.Context) error
	SelectAsset(ctx context.Context, assetID string) error
	Selected() (*usecase.Selection, error)
	SetFiat(ctx context.Context, code string) error
	SetRefreshInterval(ctx context.Context, seconds int) (int, error)
	SetSymbolOverride(ctx context.Context, assetID, symbol string) error
	Overrides() map[string]string
	Search(ctx context.Context, query string) (string, error)
	Pairs(ctx context.Context, refresh bool) ([]models.DexPair, error)
	Status() usecase.Status
}

type MarketEchoHandler struct {
	logger *logger.Logger
	svc    MarketService
	ticks  drepo.Storage
	now    func() time.Time
}

// NewMarketEchoHandler builds the /api routes. ticks may be nil when no
// queryable sink is configured.
func NewMarketEchoHandler(l *logger.Logger, svc MarketService, ticks drepo.Storage) *MarketEchoHandler {
	if l == nil {
		l = logger.Nop()
	}
	return &MarketEchoHandler{logger: l.Component("api"), svc: svc, ticks: ticks, now: time.Now}
}

func (h *MarketEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/markets/top", h.TopMarkets)
	g.GET("/watchlist", h.Watchlist)
	g.POST("/watchlist", h.AddToWatchlist)
	g.DELETE("/watchlist", h.ClearWatchlist)
	g.DELETE("/watchlist/:id", h.RemoveFromWatchlist)
	g.POST("/select", h.Select)
	g.GET("/selected", h.Selected)
	g.PUT("/settings", h.Settings)
	g.GET("/overrides", h.Overrides)
	g.PUT("/overrides", h.SetOverride)
	g.GET("/search", h.Search)
	g.GET("/pairs", h.Pairs)
	g.GET("/status", h.Status)
	if h.ticks != nil {
		g.GET("/ticks", h.Ticks)
	}
}

func (h *MarketEchoHandler) fail(c echo.Context, op string, err error) error {
	appErr := toAppError(err)
	if appErr.Status >= http.StatusInternalServerError {
		h.logger.Error(op+" failed", logger.Error(err))
	} else {
		h.logger.Debug(op+" rejected", logger.Int("status", appErr.Status), logger.Error(err))
	}
	return xhttp.AppErrorResponse(c, appErr)
}

func (h *MarketEchoHandler) TopMarkets(c echo.Context) error {
	req := &TopMarketsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	list := h.svc.TopMarkets()
	if req.Refresh || len(list) == 0 {
		if err := h.svc.RefreshTopMarkets(c.Request().Context()); err != nil {
			// a stale list is still worth serving
			if len(list) == 0 {
				return h.fail(c, "top markets", err)
			}
			c.Response().Header().Set("X-Data-Stale", "true")
		} else {
			list = h.svc.TopMarkets()
		}
	}
	return xhttp.ListResponse(c, list, int64(len(list)))
}

type watchlistResponse struct {
	IDs       []string                `json:"ids"`
	Snapshots []models.MarketSnapshot `json:"snapshots"`
}

func (h *MarketEchoHandler) Watchlist(c echo.Context) error {
	ids, snaps := h.svc.Watchlist()
	if ids == nil {
		ids = []string{}
	}
	if snaps == nil {
		snaps = []models.MarketSnapshot{}
	}
	return xhttp.SuccessResponse(c, watchlistResponse{IDs: ids, Snapshots: snaps})
}

func (h *MarketEchoHandler) AddToWatchlist(c echo.Context) error {
	req := &WatchlistAddRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	ctx := c.Request().Context()
	id := req.AssetID
	if id == "" {
		found, err := h.svc.SearchAndAdd(ctx, req.Query)
		if err != nil {
			return h.fail(c, "watchlist search", err)
		}
		id = found
	} else if err := h.svc.AddToWatchlist(ctx, id); err != nil {
		return h.fail(c, "watchlist add", err)
	}
	return xhttp.CreatedResponse(c, map[string]string{"asset_id": id})
}

func (h *MarketEchoHandler) RemoveFromWatchlist(c echo.Context) error {
	if err := h.svc.RemoveFromWatchlist(c.Request().Context(), c.Param("id")); err != nil {
		return h.fail(c, "watchlist remove", err)
	}
	return xhttp.NoContentResponse(c)
}

func (h *MarketEchoHandler) ClearWatchlist(c echo.Context) error {
	if err := h.svc.ClearWatchlist(c.Request().Context()); err != nil {
		return h.fail(c, "watchlist clear", err)
	}
	return xhttp.NoContentResponse(c)
}

func (h *MarketEchoHandler) Select(c echo.Context) error {
	req := &SelectRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	// partial failures still leave a usable selection
	if err := h.svc.SelectAsset(c.Request().Context(), req.AssetID); err != nil {
		h.logger.Warn("select partially failed", logger.String("asset", req.AssetID), logger.Error(err))
		if _, serr := h.svc.Selected(); serr != nil {
			return h.fail(c, "select", err)
		}
	}
	return h.Selected(c)
}

func (h *MarketEchoHandler) Selected(c echo.Context) error {
	sel, err := h.svc.Selected()
	if err != nil {
		return h.fail(c, "selected", err)
	}
	return xhttp.SuccessResponse(c, sel)
}

func (h *MarketEchoHandler) Settings(c echo.Context) error {
	req := &SettingsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	ctx := c.Request().Context()
	if req.RefreshSeconds > 0 {
		if _, err := h.svc.SetRefreshInterval(ctx, req.RefreshSeconds); err != nil {
			return h.fail(c, "refresh interval", err)
		}
	}
	if req.Fiat != "" {
		if err := h.svc.SetFiat(ctx, req.Fiat); err != nil {
			return h.fail(c, "fiat", err)
		}
	}
	return xhttp.SuccessResponse(c, h.svc.Status())
}

func (h *MarketEchoHandler) Overrides(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.svc.Overrides())
}

func (h *MarketEchoHandler) SetOverride(c echo.Context) error {
	req := &OverrideRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if err := h.svc.SetSymbolOverride(c.Request().Context(), req.AssetID, req.Symbol); err != nil {
		return h.fail(c, "override", err)
	}
	return xhttp.SuccessResponse(c, h.svc.Overrides())
}

func (h *MarketEchoHandler) Search(c echo.Context) error {
	req := &SearchRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	id, err := h.svc.Search(c.Request().Context(), req.Query)
	if err != nil {
		return h.fail(c, "search", err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=300")
	return xhttp.SuccessResponse(c, map[string]string{"query": req.Query, "asset_id": id})
}

func (h *MarketEchoHandler) Pairs(c echo.Context) error {
	req := &PairsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	list, err := h.svc.Pairs(c.Request().Context(), req.Refresh)
	if err != nil {
		return h.fail(c, "pairs", err)
	}
	if list == nil {
		list = []models.DexPair{}
	}
	return xhttp.ListResponse(c, list, int64(len(list)))
}

func (h *MarketEchoHandler) Status(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.svc.Status())
}

// Ticks reads recorded ticks back from the sink. The window defaults to the
// last hour.
func (h *MarketEchoHandler) Ticks(c echo.Context) error {
	req := &TicksRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	to := h.now()
	if t, ok := util.ParseTime(req.To); ok {
		to = t
	} else if req.To != "" {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("invalid to %q", req.To))
	}
	from := to.Add(-time.Hour)
	if t, ok := util.ParseTime(req.From); ok {
		from = t
	} else if req.From != "" {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("invalid from %q", req.From))
	}
	if !from.Before(to) {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("from must be before to"))
	}

	ticks, err := h.ticks.Query(c.Request().Context(), req.AssetID, from, to, req.Limit)
	if err != nil {
		return h.fail(c, "ticks", err)
	}
	if ticks == nil {
		ticks = []*models.Tick{}
	}
	return xhttp.ListResponse(c, ticks, int64(len(ticks)))
}
