// internal/service/gift/interfaces/http_handler.go
package interfaces

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"ecoquiz/internal/pkg/logger"
	"ecoquiz/internal/service/gift/application"
	"ecoquiz/internal/service/gift/domain"
)

// GiftHandler 封装发奖引擎的全部 HTTP 路由。
type GiftHandler struct {
	allocations *application.AllocationService
	lifecycle   *application.LifecycleService
	catalog     *application.CatalogService
	zones       *application.ZoneService
	stats       *application.StatsService
}

// NewGiftHandler 创建 HTTP 处理器。
func NewGiftHandler(
	allocations *application.AllocationService,
	lifecycle *application.LifecycleService,
	catalog *application.CatalogService,
	zones *application.ZoneService,
	stats *application.StatsService,
) *GiftHandler {
	return &GiftHandler{
		allocations: allocations,
		lifecycle:   lifecycle,
		catalog:     catalog,
		zones:       zones,
		stats:       stats,
	}
}

// RegisterRoutes 在 ServeMux 上注册所有路由。
func (h *GiftHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("GET /api/gifts", h.listGifts)
	mux.HandleFunc("POST /api/gifts", h.createGift)
	mux.HandleFunc("GET /api/gifts/{id}", h.getGift)
	mux.HandleFunc("PUT /api/gifts/{id}", h.updateGift)
	mux.HandleFunc("DELETE /api/gifts/{id}", h.deleteGift)

	mux.HandleFunc("GET /api/zones", h.listZones)
	mux.HandleFunc("POST /api/zones", h.createZone)
	mux.HandleFunc("GET /api/zones/{id}", h.getZone)
	mux.HandleFunc("PUT /api/zones/{id}", h.updateZone)
	mux.HandleFunc("DELETE /api/zones/{id}", h.deleteZone)

	mux.HandleFunc("POST /api/players/{playerId}/claims/{giftId}", h.claim)
	mux.HandleFunc("GET /api/allocations/{id}", h.getAllocation)
	mux.HandleFunc("POST /api/allocations/{id}/redeem", h.redeem)

	mux.HandleFunc("GET /api/stats", h.statsReport)
}

// errorBody 是所有错误响应的统一格式。
type errorBody struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (h *GiftHandler) claim(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	playerID := r.PathValue("playerId")
	giftID := r.PathValue("giftId")

	result, err := h.allocations.Claim(ctx, giftID, playerID)
	if err != nil {
		var refused *domain.ClaimRefusedError
		if errors.As(err, &refused) {
			claimsTotal.WithLabelValues("refused").Inc()
			claimRefusalsTotal.WithLabelValues(string(refused.Reason)).Inc()
			writeJSON(w, http.StatusConflict, errorBody{
				Code:    string(refused.Reason),
				Message: refused.Error(),
			})
			return
		}
		claimsTotal.WithLabelValues("error").Inc()
		h.writeError(ctx, w, err)
		return
	}

	if !result.Created {
		// 幂等命中: 玩家已持有存活记录, 随响应一起返回
		claimsTotal.WithLabelValues("idempotent").Inc()
		writeJSON(w, http.StatusConflict, errorBody{
			Code:    string(domain.ReasonAlreadyClaimed),
			Message: "player already holds a live allocation for this gift",
			Details: application.NewAllocationResponse(result.Allocation),
		})
		return
	}

	claimsTotal.WithLabelValues("won").Inc()
	writeJSON(w, http.StatusCreated, application.NewAllocationResponse(result.Allocation))
}

func (h *GiftHandler) getAllocation(w http.ResponseWriter, r *http.Request) {
	allocation, err := h.allocations.GetAllocation(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, application.NewAllocationResponse(allocation))
}

func (h *GiftHandler) redeem(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	allocation, err := h.lifecycle.Redeem(ctx, r.PathValue("id"))
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, application.NewAllocationResponse(allocation))
}

func (h *GiftHandler) listGifts(w http.ResponseWriter, r *http.Request) {
	gifts, err := h.catalog.ListGifts(r.Context())
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, gifts)
}

func (h *GiftHandler) getGift(w http.ResponseWriter, r *http.Request) {
	gift, err := h.catalog.GetGift(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, gift)
}

func (h *GiftHandler) createGift(w http.ResponseWriter, r *http.Request) {
	var req application.GiftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "INVALID_BODY", Message: err.Error()})
		return
	}
	gift, err := h.catalog.CreateGift(r.Context(), &req)
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusCreated, gift)
}

func (h *GiftHandler) updateGift(w http.ResponseWriter, r *http.Request) {
	var req application.GiftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "INVALID_BODY", Message: err.Error()})
		return
	}
	gift, err := h.catalog.UpdateGift(r.Context(), r.PathValue("id"), &req)
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, gift)
}

func (h *GiftHandler) deleteGift(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.DeleteGift(r.Context(), r.PathValue("id")); err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *GiftHandler) listZones(w http.ResponseWriter, r *http.Request) {
	zones, err := h.zones.ListZones(r.Context())
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, zones)
}

func (h *GiftHandler) getZone(w http.ResponseWriter, r *http.Request) {
	zone, err := h.zones.GetZone(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, zone)
}

func (h *GiftHandler) createZone(w http.ResponseWriter, r *http.Request) {
	var req application.ZoneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "INVALID_BODY", Message: err.Error()})
		return
	}
	zone, err := h.zones.CreateZone(r.Context(), &req)
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusCreated, zone)
}

func (h *GiftHandler) updateZone(w http.ResponseWriter, r *http.Request) {
	var req application.ZoneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "INVALID_BODY", Message: err.Error()})
		return
	}
	zone, err := h.zones.UpdateZone(r.Context(), r.PathValue("id"), &req)
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, zone)
}

func (h *GiftHandler) deleteZone(w http.ResponseWriter, r *http.Request) {
	if err := h.zones.DeleteZone(r.Context(), r.PathValue("id")); err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *GiftHandler) statsReport(w http.ResponseWriter, r *http.Request) {
	q, err := parseStatsQuery(r)
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	report, err := h.stats.Report(r.Context(), q)
	if err != nil {
		h.writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func parseStatsQuery(r *http.Request) (domain.StatsQuery, error) {
	var q domain.StatsQuery
	if raw := r.URL.Query().Get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return q, domain.NewValidationError("from", "must be RFC3339, got %q", raw)
		}
		q.From = &t
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return q, domain.NewValidationError("to", "must be RFC3339, got %q", raw)
		}
		q.To = &t
	}
	q.ZoneID = r.URL.Query().Get("zone_id")
	if raw := r.URL.Query().Get("levels"); raw != "" {
		for _, l := range strings.Split(raw, ",") {
			q.Levels = append(q.Levels, domain.Level(strings.TrimSpace(l)))
		}
	}
	return q, nil
}

// writeError 把领域错误映射为 HTTP 状态码。
func (h *GiftHandler) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	var validation *domain.ValidationError
	if errors.As(err, &validation) {
		writeJSON(w, http.StatusBadRequest, errorBody{
			Code:    "VALIDATION_FAILED",
			Message: validation.Error(),
		})
		return
	}

	switch {
	case errors.Is(err, domain.ErrGiftNotFound),
		errors.Is(err, domain.ErrZoneNotFound),
		errors.Is(err, domain.ErrPlayerNotFound),
		errors.Is(err, domain.ErrAllocationNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Code: "NOT_FOUND", Message: err.Error()})
	case errors.Is(err, domain.ErrInvalidTransition):
		writeJSON(w, http.StatusConflict, errorBody{Code: "INVALID_TRANSITION", Message: err.Error()})
	default:
		logger.Ctx(ctx).Error().Err(err).Msg("internal error serving request")
		writeJSON(w, http.StatusInternalServerError, errorBody{Code: "INTERNAL", Message: "internal server error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
