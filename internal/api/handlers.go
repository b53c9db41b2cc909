// Package api serves the scheduling engine over HTTP with gin.
package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/example/deckbot/internal/metrics"
	srs "github.com/example/deckbot/internal/spaced_repetition"
)

// DeckLister returns the ids of the decks a user owns
type DeckLister interface {
	ListOwnerDeckIDs(ctx context.Context, ownerID int64) ([]string, error)
}

// Deps are the components the handlers delegate to
type Deps struct {
	Scheduler *srs.Scheduler
	Due       *srs.DueSetQuery
	Stats     *srs.StatsAggregator
	Catalog   srs.Catalog
	Decks     DeckLister
	// Metrics is optional
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Handlers contains the HTTP handlers
type Handlers struct {
	deps   Deps
	logger *slog.Logger
}

// NewHandlers creates the handlers
func NewHandlers(deps Deps) *Handlers {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Handlers{deps: deps, logger: logger}
}

// HandleReview records one answer.
//
//	POST /v1/users/:user/decks/:deck/cards/:card/review
//	200 OK: models.ReviewResult
func (h *Handlers) HandleReview(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	var req ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error(), Code: "INVALID_REQUEST"})
		return
	}

	res, err := h.deps.Scheduler.UpdateProgress(c.Request.Context(), userID, c.Param("deck"), c.Param("card"), *req.Successful)
	if h.deps.Metrics != nil {
		h.deps.Metrics.ObserveReview(*req.Successful, err)
	}
	if err != nil {
		h.fail(c, "review", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// HandleReset forgets the progress of one card.
//
//	POST /v1/users/:user/decks/:deck/cards/:card/reset
//	204 No Content
func (h *Handlers) HandleReset(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	if err := h.deps.Scheduler.ResetProgress(c.Request.Context(), userID, c.Param("deck"), c.Param("card")); err != nil {
		h.fail(c, "reset", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// HandleDue lists the due cards of a deck in catalog order.
//
//	GET /v1/users/:user/decks/:deck/due
func (h *Handlers) HandleDue(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	deckID := c.Param("deck")
	cards, err := h.deps.Due.DueFromCatalog(c.Request.Context(), h.deps.Catalog, userID, deckID)
	if err != nil {
		h.fail(c, "due", err)
		return
	}
	c.JSON(http.StatusOK, DueResponse{DeckID: deckID, Cards: cards})
}

// HandleCardStats
//
//	GET /v1/users/:user/cards/:card/stats
func (h *Handlers) HandleCardStats(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	stats, err := h.deps.Stats.GetCardStats(c.Request.Context(), userID, c.Param("card"))
	if err != nil {
		h.fail(c, "card stats", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// HandleDeckStats
//
//	GET /v1/users/:user/decks/:deck/stats
func (h *Handlers) HandleDeckStats(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	stats, err := h.deps.Stats.GetDeckStats(c.Request.Context(), userID, c.Param("deck"))
	if err != nil {
		h.fail(c, "deck stats", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// HandleOverview returns statistics for several decks at once.
// Decks come from repeated ?deck= parameters, or from the user's own decks when none are given.
//
//	GET /v1/users/:user/overview
func (h *Handlers) HandleOverview(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	deckIDs := c.QueryArray("deck")
	if len(deckIDs) == 0 && h.deps.Decks != nil {
		var err error
		if deckIDs, err = h.deps.Decks.ListOwnerDeckIDs(ctx, userID); err != nil {
			h.fail(c, "list decks", err)
			return
		}
	}

	decks, err := h.deps.Stats.GetOverview(ctx, userID, deckIDs)
	if err != nil {
		h.fail(c, "overview", err)
		return
	}
	c.JSON(http.StatusOK, OverviewResponse{UserID: userID, Decks: decks})
}

// HandleHealth
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "healthy"})
}

func (h *Handlers) userID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("user"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "user id must be a positive integer", Code: "INVALID_INPUT"})
		return 0, false
	}
	return id, true
}

// fail maps an engine error to a status code
func (h *Handlers) fail(c *gin.Context, op string, err error) {
	status, code := http.StatusInternalServerError, "INTERNAL"
	switch {
	case errors.Is(err, srs.ErrInvalidInput):
		status, code = http.StatusBadRequest, "INVALID_INPUT"
	case errors.Is(err, srs.ErrConflictExhausted):
		status, code = http.StatusConflict, "CONFLICT"
	case errors.Is(err, srs.ErrStoreUnavailable):
		status, code = http.StatusServiceUnavailable, "STORE_UNAVAILABLE"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status, code = http.StatusGatewayTimeout, "CANCELED"
	}

	logger := h.logger.With("request_id", c.GetString(requestIDKey), "op", op, "path", c.FullPath())
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "error", err)
	} else {
		logger.Warn("request rejected", "error", err)
	}
	c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
}
