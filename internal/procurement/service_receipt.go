package procurement

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/pharmaproc/internal/numbering"
	"github.com/odyssey-erp/pharmaproc/internal/shared"
)

// GRNInput describes goods receipt creation.
type GRNInput struct {
	Number            string
	GRNDate           time.Time
	POID              *uuid.UUID
	WarehouseLocation string
	ReceivedBy        string
	QCRequired        bool
	Urgency           Urgency
	QCRemarks         string
	Items             []GRNItemInput
}

// GRNItemInput describes a received line.
type GRNItemInput struct {
	ItemCode         string
	ItemName         string
	OrderedQty       decimal.Decimal
	ReceivedQty      decimal.Decimal
	RejectedQty      decimal.Decimal
	BatchNumber      string
	MfgDate          *time.Time
	ExpiryDate       *time.Time
	StorageCondition string
}

// GRNUpdate patches a goods receipt. Nil fields are left unchanged; a non-nil
// Items replaces every item.
type GRNUpdate struct {
	GRNDate           *time.Time
	WarehouseLocation *string
	ReceivedBy        *string
	QCRequired        *bool
	Urgency           *Urgency
	QCRemarks         *string
	Items             *[]GRNItemInput
}

// CreateGRN persists a draft goods receipt. Receipts requiring QC publish
// GRNQcRequired after their items are written, inside the same unit of work.
func (s *Service) CreateGRN(ctx context.Context, input GRNInput) (GoodsReceipt, error) {
	urgency, err := normaliseUrgency(input.Urgency)
	if err != nil {
		return GoodsReceipt{}, err
	}
	items, err := buildGRNItems(input.Items)
	if err != nil {
		return GoodsReceipt{}, err
	}

	var grn GoodsReceipt
	err = s.withNumber(ctx, numbering.PrefixGRN, input.Number, func(number string) error {
		return s.inTx(ctx, func(ctx context.Context, tx TxRepository) error {
			if input.POID != nil {
				if _, err := tx.GetPurchaseOrder(ctx, *input.POID); err != nil {
					return err
				}
			}
			now := s.now().UTC()
			grn = GoodsReceipt{
				ID:                uuid.New(),
				Number:            number,
				GRNDate:           s.today(input.GRNDate),
				POID:              input.POID,
				WarehouseLocation: input.WarehouseLocation,
				ReceivedBy:        input.ReceivedBy,
				QCRequired:        input.QCRequired,
				QCStatus:          QCPending,
				QCRemarks:         input.QCRemarks,
				Urgency:           urgency,
				Status:            GRNDraft,
				CreatedAt:         now,
				UpdatedAt:         now,
			}
			grn.Items = attachGRNItems(grn.ID, items)
			if err := tx.CreateGRN(ctx, grn); err != nil {
				return err
			}
			if !grn.QCRequired {
				return nil
			}
			return s.triggers.HandleGRNQcRequired(ctx, tx, GRNQcRequired{
				GRNID:             grn.ID,
				GRNNumber:         grn.Number,
				WarehouseLocation: grn.WarehouseLocation,
				Urgency:           grn.Urgency,
				Items:             grn.Items,
				OccurredAt:        now,
			})
		})
	})
	if err != nil {
		return GoodsReceipt{}, err
	}
	s.recordAudit(ctx, "GRN_CREATE", grn.ID, map[string]any{"number": grn.Number, "qc_required": grn.QCRequired})
	return grn, nil
}

// UpdateGRN edits a goods receipt under its document lock. Pending inspections
// are regenerated when the update sets QC required, or replaces the items of a
// receipt that requires QC.
func (s *Service) UpdateGRN(ctx context.Context, id uuid.UUID, input GRNUpdate) (GoodsReceipt, error) {
	var items []GRNItem
	if input.Items != nil {
		built, err := buildGRNItems(*input.Items)
		if err != nil {
			return GoodsReceipt{}, err
		}
		items = built
	}
	if input.Urgency != nil {
		if _, err := normaliseUrgency(*input.Urgency); err != nil {
			return GoodsReceipt{}, err
		}
	}

	var grn GoodsReceipt
	var regenerated bool
	err := s.withLock(ctx, shared.GRNLockKey(id), func(ctx context.Context) error {
		return s.inTx(ctx, func(ctx context.Context, tx TxRepository) error {
			current, err := tx.GetGRN(ctx, id)
			if err != nil {
				return err
			}
			if input.GRNDate != nil {
				current.GRNDate = *input.GRNDate
			}
			if input.WarehouseLocation != nil {
				current.WarehouseLocation = *input.WarehouseLocation
			}
			if input.ReceivedBy != nil {
				current.ReceivedBy = *input.ReceivedBy
			}
			if input.QCRequired != nil {
				current.QCRequired = *input.QCRequired
			}
			if input.Urgency != nil {
				current.Urgency = *input.Urgency
			}
			if input.QCRemarks != nil {
				current.QCRemarks = *input.QCRemarks
			}
			if current.QCRequired && current.QCStatus == "" {
				current.QCStatus = QCPending
			}
			current.UpdatedAt = s.now().UTC()
			if err := tx.UpdateGRN(ctx, current); err != nil {
				return err
			}
			if input.Items != nil {
				current.Items = attachGRNItems(current.ID, items)
				if err := tx.ReplaceGRNItems(ctx, current.ID, current.Items); err != nil {
					return err
				}
			}
			grn = current

			qcRequested := input.QCRequired != nil && *input.QCRequired
			itemsChanged := input.Items != nil && current.QCRequired
			if !qcRequested && !itemsChanged {
				return nil
			}
			regenerated = true
			if err := s.triggers.HandleGRNQcRequired(ctx, tx, GRNQcRequired{
				GRNID:             current.ID,
				GRNNumber:         current.Number,
				WarehouseLocation: current.WarehouseLocation,
				Urgency:           current.Urgency,
				Items:             current.Items,
				Regenerate:        true,
				OccurredAt:        current.UpdatedAt,
			}); err != nil {
				return err
			}
			// The trigger may reopen the receipt's QC status.
			refreshed, err := tx.GetGRN(ctx, current.ID)
			if err != nil {
				return err
			}
			grn = refreshed
			return nil
		})
	})
	if err != nil {
		return GoodsReceipt{}, err
	}
	s.recordAudit(ctx, "GRN_UPDATE", id, map[string]any{"number": grn.Number, "regenerated_inspections": regenerated})
	return grn, nil
}

// GetGRN returns a goods receipt with items.
func (s *Service) GetGRN(ctx context.Context, id uuid.UUID) (GoodsReceipt, error) {
	return s.repo.GetGRN(ctx, id)
}

func normaliseUrgency(u Urgency) (Urgency, error) {
	switch u {
	case "":
		return UrgencyNormal, nil
	case UrgencyNormal, UrgencyUrgent:
		return u, nil
	default:
		return "", validation("unknown urgency %q", u)
	}
}

func buildGRNItems(inputs []GRNItemInput) ([]GRNItem, error) {
	items := make([]GRNItem, 0, len(inputs))
	for i, in := range inputs {
		code := strings.TrimSpace(in.ItemCode)
		name := strings.TrimSpace(in.ItemName)
		if code == "" && name == "" {
			return nil, validation("item %d: code or name is required", i+1)
		}
		if in.ReceivedQty.IsNegative() || in.OrderedQty.IsNegative() || in.RejectedQty.IsNegative() {
			return nil, validation("item %d: quantities must not be negative", i+1)
		}
		if in.MfgDate != nil && in.ExpiryDate != nil && in.ExpiryDate.Before(*in.MfgDate) {
			return nil, validation("item %d: expiry precedes manufacturing date", i+1)
		}
		items = append(items, GRNItem{
			ItemCode:         code,
			ItemName:         name,
			OrderedQty:       in.OrderedQty,
			ReceivedQty:      in.ReceivedQty,
			RejectedQty:      in.RejectedQty,
			BatchNumber:      strings.TrimSpace(in.BatchNumber),
			MfgDate:          in.MfgDate,
			ExpiryDate:       in.ExpiryDate,
			StorageCondition: in.StorageCondition,
		})
	}
	return items, nil
}

func attachGRNItems(grnID uuid.UUID, items []GRNItem) []GRNItem {
	out := make([]GRNItem, len(items))
	for i, item := range items {
		item.ID = uuid.New()
		item.GRNID = grnID
		out[i] = item
	}
	return out
}
