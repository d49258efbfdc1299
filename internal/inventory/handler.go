package inventory

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/odyssey-erp/pharmaproc/internal/platform/httpx"
	"github.com/odyssey-erp/pharmaproc/internal/shared"
)

// Handler exposes raw materials and batches over HTTP.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/raw-materials", h.createMaterial)
	r.Get("/batches", h.listBatches)
	r.Get("/batches/{id}", h.getBatch)
}

type materialRequest struct {
	Code     string `json:"code" validate:"required,max=64"`
	Name     string `json:"name" validate:"required,max=255"`
	Category string `json:"category" validate:"max=128"`
	UOM      string `json:"uom" validate:"max=32"`
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if !shared.IsDomainError(err) {
		h.logger.Error("inventory request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func (h *Handler) createMaterial(w http.ResponseWriter, r *http.Request) {
	var req materialRequest
	if err := httpx.Bind(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	m, err := h.service.RegisterMaterial(r.Context(), RawMaterial{
		Code:     req.Code,
		Name:     req.Name,
		Category: req.Category,
		UOM:      req.UOM,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, m)
}

func (h *Handler) listBatches(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := BatchFilter{Status: BatchStatus(q.Get("status"))}
	switch filter.Status {
	case "", BatchQuarantine, BatchApproved, BatchRejected:
	default:
		h.fail(w, r, fmt.Errorf("%w: unknown batch status %q", ErrValidation, filter.Status))
		return
	}
	if raw := q.Get("inventory_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			h.fail(w, r, fmt.Errorf("%w: invalid inventory_id", ErrValidation))
			return
		}
		filter.InventoryID = id
	}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	batches, err := h.service.Batches(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": batches})
}

func (h *Handler) getBatch(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, fmt.Errorf("%w: invalid id", ErrValidation))
		return
	}
	b, err := h.service.Batch(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, b)
}
