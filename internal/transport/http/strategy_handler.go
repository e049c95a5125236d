package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "qcsync/internal/errors"
	"qcsync/internal/strategy"
)

// StrategyHandler serves strategy selection lookups.
type StrategyHandler struct {
	service StrategyService
	logger  *slog.Logger
}

// NewStrategyHandler creates a strategy lookup handler.
func NewStrategyHandler(service StrategyService, logger *slog.Logger) *StrategyHandler {
	return &StrategyHandler{
		service: service,
		logger:  logger.With(slog.String("component", "strategy_handler")),
	}
}

// Routes returns the strategy routes.
func (h *StrategyHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{strategy}", h.GetSelection)
	return r
}

// SelectionResponse is a fetched strategy selection.
type SelectionResponse struct {
	Strategy   string          `json:"strategy"`
	Period     string          `json:"period"`
	Count      int             `json:"count"`
	SelectTime string          `json:"select_time"`
	BuyTime    string          `json:"buy_time"`
	Result     []SelectionItem `json:"result"`
}

// SelectionItem is one selected stock.
type SelectionItem struct {
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
}

// GetSelection fetches the selection for a strategy, period and count.
func (h *StrategyHandler) GetSelection(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "strategy")
	period := r.URL.Query().Get("period")
	if period == "" {
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.ErrValidation("period", "period is required")))
		return
	}

	count := 0
	if countText := r.URL.Query().Get("count"); countText != "" {
		parsed, err := strconv.Atoi(countText)
		if err != nil || parsed < 0 {
			render.Render(w, r, apierrors.NewErrorResponse(apierrors.ErrValidation("count", "count must be a non-negative integer")))
			return
		}
		count = parsed
	}

	selection, err := h.service.Fetch(r.Context(), id, period, count)
	if err != nil {
		var codeErr *strategy.CodeError
		if errors.As(err, &codeErr) {
			render.Render(w, r, apierrors.NewErrorResponse(codeToAPIError(codeErr)))
			return
		}
		h.logger.Error("strategy fetch failed",
			slog.String("strategy", id),
			slog.String("error", err.Error()))
		render.Render(w, r, apierrors.NewErrorResponse(apierrors.ErrUpstreamFailed))
		return
	}

	resp := SelectionResponse{
		Strategy:   selection.Strategy,
		Period:     selection.Period,
		Count:      selection.Count,
		SelectTime: selection.SelectTime,
		BuyTime:    selection.BuyTime,
	}
	for _, stock := range selection.Stocks {
		resp.Result = append(resp.Result, SelectionItem{Symbol: stock.Symbol, Name: stock.Name})
	}

	render.JSON(w, r, resp)
}

// codeToAPIError maps service-level strategy codes onto HTTP errors.
func codeToAPIError(err *strategy.CodeError) *apierrors.APIError {
	switch err.Code {
	case 1003:
		return apierrors.New(http.StatusForbidden, "STRATEGY_FORBIDDEN", err.Error())
	case 1004:
		return apierrors.New(http.StatusNotFound, "STRATEGY_NOT_FOUND", err.Error())
	case 1005:
		return apierrors.New(http.StatusNotFound, "STRATEGY_NO_DATA", err.Error())
	case 1006:
		return apierrors.New(http.StatusBadRequest, "STRATEGY_BAD_PARAMS", err.Error())
	default:
		return apierrors.ErrUpstreamFailed
	}
}
