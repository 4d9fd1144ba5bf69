// Package httpapi is the host wiring for the dashboard: mutation endpoints
// for the planning flow and read-only report endpoints for rendering
// collaborators.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	deliveryapp "github.com/agricoop/stockflow/internal/delivery/application"
	deliverydom "github.com/agricoop/stockflow/internal/delivery/domain"
	inventoryapp "github.com/agricoop/stockflow/internal/inventory/application"
	inventorydom "github.com/agricoop/stockflow/internal/inventory/domain"
	reservationapp "github.com/agricoop/stockflow/internal/reservation/application"
	"github.com/agricoop/stockflow/internal/storage"
	"github.com/agricoop/stockflow/pkg/idempotency"
)

type Handler struct {
	log         *slog.Logger
	inventory   *inventoryapp.Service
	manager     *reservationapp.Manager
	sweeper     *reservationapp.Sweeper
	coordinator *deliveryapp.Coordinator
	compensator *deliveryapp.Compensator
	reports     *deliveryapp.Reports
	idem        *idempotency.Store
	tracer      trace.Tracer
}

func NewHandler(
	log *slog.Logger,
	inventory *inventoryapp.Service,
	manager *reservationapp.Manager,
	sweeper *reservationapp.Sweeper,
	coordinator *deliveryapp.Coordinator,
	compensator *deliveryapp.Compensator,
	reports *deliveryapp.Reports,
	idem *idempotency.Store,
) *Handler {
	return &Handler{
		log:         log,
		inventory:   inventory,
		manager:     manager,
		sweeper:     sweeper,
		coordinator: coordinator,
		compensator: compensator,
		reports:     reports,
		idem:        idem,
		tracer:      otel.Tracer("stockflow-http"),
	}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Post("/items", h.intake)
	r.Post("/items/{id}/assign", h.assignWarehouse)
	r.Post("/warehouses", h.registerWarehouse)
	r.Get("/warehouses", h.listWarehouses)

	r.Post("/lots", h.createLot)
	r.Get("/lots/{id}", h.lotSummary)
	r.Delete("/lots/{id}", h.archiveLot)

	r.Post("/reservations", h.reserve)
	r.Delete("/reservations", h.release)
	r.Get("/reservations", h.listActive)
	r.Post("/reservations/sweep", h.sweep)
	r.Post("/reservations/force-clear", h.forceClear)

	r.Post("/deliveries", h.submitDelivery)
	r.Post("/deliveries/{id}/complete", h.completeDelivery)
	r.Post("/deliveries/{id}/cancel", h.cancelDelivery)
	r.Get("/deliveries/{id}", h.getDelivery)
	r.Get("/deliveries", h.listDeliveries)

	return r
}

type intakeReq struct {
	Commodity string          `json:"commodity"`
	Quantity  decimal.Decimal `json:"quantity"`
	Bags      int64           `json:"bags"`
}

func (h *Handler) intake(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "Intake")
	defer span.End()

	var req intakeReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	item, err := h.inventory.Intake(ctx, req.Commodity, req.Quantity, req.Bags)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (h *Handler) assignWarehouse(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "AssignWarehouse")
	defer span.End()

	var req struct {
		WarehouseID string `json:"warehouse_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if err := h.inventory.AssignWarehouse(ctx, chi.URLParam(r, "id"), req.WarehouseID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) registerWarehouse(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string          `json:"name"`
		Capacity decimal.Decimal `json:"capacity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	wh, err := h.inventory.RegisterWarehouse(r.Context(), req.Name, req.Capacity)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, wh)
}

func (h *Handler) listWarehouses(w http.ResponseWriter, r *http.Request) {
	out, err := h.reports.Warehouses(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) createLot(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CreateLot")
	defer span.End()

	var req struct {
		Name    string   `json:"name"`
		ItemIDs []string `json:"item_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	lot, err := h.inventory.CreateLot(ctx, req.Name, req.ItemIDs)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, lot)
}

func (h *Handler) lotSummary(w http.ResponseWriter, r *http.Request) {
	out, err := h.reports.LotSummary(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) archiveLot(w http.ResponseWriter, r *http.Request) {
	if err := h.inventory.ArchiveLot(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type reserveReq struct {
	ItemID   string          `json:"item_id"`
	ItemType string          `json:"item_type"`
	Quantity decimal.Decimal `json:"quantity"`
	Actor    string          `json:"actor"`
}

func (h *Handler) reserve(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "Reserve")
	defer span.End()

	var req reserveReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	id, err := h.manager.Reserve(ctx, req.ItemID, inventorydom.ItemType(req.ItemType), req.Quantity, req.Actor)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"reservation_id": id})
}

func (h *Handler) release(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "Release")
	defer span.End()

	var req reserveReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if err := h.manager.Release(ctx, req.ItemID, inventorydom.ItemType(req.ItemType), req.Actor); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listActive(w http.ResponseWriter, r *http.Request) {
	out, err := h.manager.ListActive(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) sweep(w http.ResponseWriter, r *http.Request) {
	n, err := h.sweeper.SweepNow(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"swept": n})
}

func (h *Handler) forceClear(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Actor string `json:"actor"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Actor == "" {
		http.Error(w, "actor required", http.StatusBadRequest)
		return
	}
	n, err := h.sweeper.ForceClearAll(r.Context(), req.Actor)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"cleared": n})
}

type submitReq struct {
	Buyer string `json:"buyer"`
	Lines []struct {
		ItemID        string          `json:"item_id"`
		LotID         string          `json:"lot_id"`
		Quantity      decimal.Decimal `json:"quantity"`
		Bags          int64           `json:"bags"`
		ReservationID string          `json:"reservation_id"`
	} `json:"lines"`
}

func (h *Handler) submitDelivery(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "SubmitDelivery")
	defer span.End()

	if token := r.Header.Get("Idempotency-Key"); token != "" && h.idem != nil {
		seen, err := h.idem.Seen(ctx, h.idem.RequestKey("submit", token))
		if err != nil {
			h.log.Error("idempotency check failed", "err", err)
		} else if seen {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "duplicate submission"})
			return
		}
	}

	var req submitReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	manifest := make([]deliveryapp.ManifestLine, len(req.Lines))
	for i, l := range req.Lines {
		manifest[i] = deliveryapp.ManifestLine{
			ItemID:        l.ItemID,
			LotID:         l.LotID,
			Quantity:      l.Quantity,
			Bags:          l.Bags,
			ReservationID: l.ReservationID,
		}
	}
	order, err := h.coordinator.SubmitDelivery(ctx, req.Buyer, manifest)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

func (h *Handler) completeDelivery(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CompleteDelivery")
	defer span.End()

	var req struct {
		BuyerWeight decimal.Decimal            `json:"buyer_weight"`
		Cost        *deliverydom.CostBreakdown `json:"cost"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	order, err := h.coordinator.Complete(ctx, chi.URLParam(r, "id"), req.BuyerWeight, req.Cost)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *Handler) cancelDelivery(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CancelDelivery")
	defer span.End()

	var req struct {
		Actor string `json:"actor"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	order, err := h.compensator.Cancel(ctx, chi.URLParam(r, "id"), req.Actor)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *Handler) getDelivery(w http.ResponseWriter, r *http.Request) {
	out, err := h.reports.Delivery(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) listDeliveries(w http.ResponseWriter, r *http.Request) {
	out, err := h.reports.Deliveries(r.Context(), deliveriesFilter(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func deliveriesFilter(r *http.Request) (f storage.DeliveryFilter) {
	f.Status = deliverydom.OrderStatus(r.URL.Query().Get("status"))
	f.Buyer = r.URL.Query().Get("buyer")
	return f
}

// writeError maps the domain taxonomy onto status codes. Partial cascade
// failures carry their per-line detail: they must never hide behind a
// generic failure, let alone a success.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var partial *inventorydom.PartialCascadeError
	switch {
	case errors.As(err, &partial):
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":     "partial cascade failure, rolled back",
			"succeeded": partial.Succeeded,
			"failed":    failMessages(partial.Failed),
		})
	case errors.Is(err, inventorydom.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, inventorydom.ErrInvalidQuantity):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, inventorydom.ErrCapacityExceeded), errors.Is(err, inventorydom.ErrAlreadyLocked):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		h.log.Error("request failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

func failMessages(failed map[string]error) map[string]string {
	out := make(map[string]string, len(failed))
	for id, err := range failed {
		out[id] = err.Error()
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
