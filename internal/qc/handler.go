package qc

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/odyssey-erp/pharmaproc/internal/platform/httpx"
	"github.com/odyssey-erp/pharmaproc/internal/procurement"
	"github.com/odyssey-erp/pharmaproc/internal/shared"
)

// Handler exposes inspections over HTTP.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers inspection routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/inspections", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Get("/{id}", h.get)
		r.Post("/{id}/pass", h.resolve(h.service.Pass))
		r.Post("/{id}/fail", h.resolve(h.service.Fail))
		r.Put("/{id}/assign", h.assign)
	})
}

type createRequest struct {
	GRNID          uuid.UUID           `json:"grn_id" validate:"required"`
	BatchID        *uuid.UUID          `json:"batch_id"`
	MaterialID     *uuid.UUID          `json:"material_id"`
	Description    string              `json:"description" validate:"max=500"`
	InspectorName  string              `json:"inspector_name"`
	InspectionDate *httpx.Date         `json:"inspection_date"`
	Urgency        procurement.Urgency `json:"urgency" validate:"omitempty,oneof=Normal Urgent"`
	Remarks        string              `json:"remarks"`
}

type assignRequest struct {
	InspectorID uuid.UUID `json:"inspector_id" validate:"required"`
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if !shared.IsDomainError(err) {
		h.logger.Error("qc request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func pathID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid id", ErrValidation)
	}
	return id, nil
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{Status: Status(q.Get("status"))}
	if raw := q.Get("grn_id"); raw != "" {
		grnID, err := uuid.Parse(raw)
		if err != nil {
			h.fail(w, r, fmt.Errorf("%w: invalid grn_id", ErrValidation))
			return
		}
		filter.GRNID = &grnID
	}
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.PerPage, _ = strconv.Atoi(q.Get("per_page"))
	result, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.Bind(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	insp, err := h.service.CreateInspection(r.Context(), CreateInput{
		GRNID:          req.GRNID,
		BatchID:        req.BatchID,
		MaterialID:     req.MaterialID,
		Description:    req.Description,
		InspectorName:  req.InspectorName,
		InspectionDate: req.InspectionDate.Value(),
		Urgency:        req.Urgency,
		Remarks:        req.Remarks,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, insp)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	insp, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, insp)
}

func (h *Handler) resolve(verdict func(context.Context, uuid.UUID) (Inspection, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		insp, err := verdict(r.Context(), id)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		httpx.JSON(w, http.StatusOK, insp)
	}
}

func (h *Handler) assign(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req assignRequest
	if err := httpx.Bind(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	insp, err := h.service.AssignInspector(r.Context(), id, req.InspectorID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, insp)
}
