package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/DanielNuud/reactive-my-stock-app/internal/domain"
	"github.com/DanielNuud/reactive-my-stock-app/internal/history"
	"github.com/DanielNuud/reactive-my-stock-app/internal/subs"
)

// StocksHandler serves subscription management and price read endpoints.
type StocksHandler struct {
	registry *subs.Registry
	source   domain.TickSource
	history  *history.Store
	cache    domain.LatestPriceCache // optional
	logger   *slog.Logger
}

// NewStocksHandler creates a StocksHandler. cache may be nil when no shared
// cache is configured; latest reads then come from local history only.
func NewStocksHandler(registry *subs.Registry, source domain.TickSource, hist *history.Store, cache domain.LatestPriceCache, logger *slog.Logger) *StocksHandler {
	return &StocksHandler{
		registry: registry,
		source:   source,
		history:  hist,
		cache:    cache,
		logger:   logger.With(slog.String("handler", "stocks")),
	}
}

// Subscribe switches the caller onto a ticker. The previous ticker, if any and
// no longer watched by anyone, is released upstream; a ticker gaining its
// first watcher is opened upstream.
// POST /api/stocks/subscribe/{ticker}
func (h *StocksHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	user := userKey(r)
	ticker := subs.NormalizeTicker(r.PathValue("ticker"))
	if ticker == "" {
		writeError(w, http.StatusBadRequest, "ticker must not be blank")
		return
	}

	first, vacated := h.registry.Subscribe(user, ticker)
	if vacated != "" {
		h.source.Unsubscribe(vacated)
	}
	if first {
		h.source.SubscribeTo(ticker)
	}

	h.logger.Info("subscribed",
		slog.String("user", user),
		slog.String("ticker", ticker),
		slog.Bool("first", first),
	)
	writeJSON(w, http.StatusAccepted, map[string]string{
		"ticker": ticker,
		"status": "subscribed",
	})
}

// Unsubscribe drops the caller's subscription to a ticker. The request is a
// no-op when the caller is not currently on that ticker; a ticker losing its
// last watcher is released upstream.
// POST /api/stocks/unsubscribe/{ticker}
func (h *StocksHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	user := userKey(r)
	ticker := subs.NormalizeTicker(r.PathValue("ticker"))
	if ticker == "" {
		writeError(w, http.StatusBadRequest, "ticker must not be blank")
		return
	}

	if last := h.registry.Unsubscribe(user, ticker); last {
		h.source.Unsubscribe(ticker)
	}

	h.logger.Info("unsubscribed",
		slog.String("user", user),
		slog.String("ticker", ticker),
	)
	writeJSON(w, http.StatusAccepted, map[string]string{
		"ticker": ticker,
		"status": "unsubscribed",
	})
}

// Recent returns the buffered recent ticks for a ticker, oldest first.
// GET /api/stocks/{ticker}/recent
func (h *StocksHandler) Recent(w http.ResponseWriter, r *http.Request) {
	ticker := subs.NormalizeTicker(r.PathValue("ticker"))
	if ticker == "" {
		writeError(w, http.StatusBadRequest, "ticker must not be blank")
		return
	}

	ticks := h.history.Recent(ticker)
	if ticks == nil {
		ticks = []domain.PriceTick{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ticker": ticker,
		"ticks":  ticks,
	})
}

// Latest returns the most recent tick for a ticker, consulting local history
// first and the shared cache second.
// GET /api/stocks/{ticker}/latest
func (h *StocksHandler) Latest(w http.ResponseWriter, r *http.Request) {
	ticker := subs.NormalizeTicker(r.PathValue("ticker"))
	if ticker == "" {
		writeError(w, http.StatusBadRequest, "ticker must not be blank")
		return
	}

	if tick, ok := h.history.Latest(ticker); ok {
		writeJSON(w, http.StatusOK, tick)
		return
	}

	if h.cache != nil {
		tick, err := h.cache.GetLatest(r.Context(), ticker)
		if err == nil {
			writeJSON(w, http.StatusOK, tick)
			return
		}
		if !errors.Is(err, domain.ErrNotFound) && !errors.Is(err, context.Canceled) {
			h.logger.Warn("cache lookup failed",
				slog.String("ticker", ticker),
				slog.String("error", err.Error()),
			)
		}
	}

	writeError(w, http.StatusNotFound, "no price observed for "+ticker)
}
