package procurement

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/pharmaproc/internal/numbering"
	"github.com/odyssey-erp/pharmaproc/internal/pricing"
)

// PurchaseOrderInput describes purchase order creation. When Items is empty
// and RequisitionID is set, items are copied from the requisition.
type PurchaseOrderInput struct {
	Number           string
	PODate           time.Time
	VendorID         uuid.UUID
	RequisitionID    *uuid.UUID
	Currency         string
	PaymentTerms     string
	DeliveryLocation string
	TaxCategory      pricing.TaxMode
	FreightCharges   decimal.Decimal
	InsuranceCharges decimal.Decimal
	Items            []POItemInput
}

// POItemInput describes an order line.
type POItemInput struct {
	ItemCode        string
	Description     string
	Quantity        decimal.Decimal
	UnitPrice       decimal.Decimal
	DiscountPercent decimal.Decimal
	TaxPercent      decimal.Decimal
	BatchRequired   bool
}

// CreatePurchaseOrder prices and persists a draft purchase order. An approved
// source requisition is converted in the same unit of work.
func (s *Service) CreatePurchaseOrder(ctx context.Context, input PurchaseOrderInput) (PurchaseOrder, error) {
	if input.VendorID == uuid.Nil {
		return PurchaseOrder{}, validation("vendor is required")
	}
	mode := input.TaxCategory
	if mode == "" {
		mode = pricing.TaxExclusive
	}
	if !mode.Valid() {
		return PurchaseOrder{}, validation("unknown tax category %q", mode)
	}

	var po PurchaseOrder
	err := s.withNumber(ctx, numbering.PrefixPurchaseOrder, input.Number, func(number string) error {
		return s.inTx(ctx, func(ctx context.Context, tx TxRepository) error {
			items := input.Items
			var source *Requisition
			if input.RequisitionID != nil {
				req, err := tx.GetRequisition(ctx, *input.RequisitionID)
				if err != nil {
					return err
				}
				source = &req
				if len(items) == 0 {
					items = itemsFromRequisition(req)
				}
			}
			built, err := priceOrder(mode, items, input.FreightCharges, input.InsuranceCharges)
			if err != nil {
				return err
			}
			built.ID = uuid.New()
			built.Number = number
			built.PODate = s.today(input.PODate)
			built.VendorID = input.VendorID
			built.RequisitionID = input.RequisitionID
			built.Currency = input.Currency
			built.PaymentTerms = input.PaymentTerms
			built.DeliveryLocation = input.DeliveryLocation
			built.Status = PODraft
			built.CreatedAt = s.now().UTC()
			for i := range built.Items {
				built.Items[i].POID = built.ID
			}
			if err := tx.CreatePurchaseOrder(ctx, built); err != nil {
				return err
			}
			if source != nil && source.Status == RequisitionApproved {
				if err := tx.UpdateRequisitionStatus(ctx, source.ID, RequisitionConverted); err != nil {
					return err
				}
			}
			po = built
			return nil
		})
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	meta := map[string]any{"number": po.Number, "total": po.TotalAmount.String()}
	if po.RequisitionID != nil {
		meta["requisition_id"] = po.RequisitionID.String()
	}
	s.recordAudit(ctx, "PO_CREATE", po.ID, meta)
	return po, nil
}

// GetPurchaseOrder returns a purchase order with items.
func (s *Service) GetPurchaseOrder(ctx context.Context, id uuid.UUID) (PurchaseOrder, error) {
	return s.repo.GetPurchaseOrder(ctx, id)
}

func itemsFromRequisition(req Requisition) []POItemInput {
	items := make([]POItemInput, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, POItemInput{
			ItemCode:        item.ItemCode,
			Description:     item.ItemName,
			Quantity:        item.Quantity,
			UnitPrice:       item.EstimatedUnitCost,
			DiscountPercent: decimal.Zero,
			TaxPercent:      decimal.Zero,
		})
	}
	return items
}

func priceOrder(mode pricing.TaxMode, inputs []POItemInput, freight, insurance decimal.Decimal) (PurchaseOrder, error) {
	lines := make([]pricing.Line, len(inputs))
	for i, in := range inputs {
		lines[i] = pricing.Line{
			Quantity:    in.Quantity,
			UnitPrice:   in.UnitPrice,
			DiscountPct: in.DiscountPercent,
			TaxPct:      in.TaxPercent,
		}
	}
	totals, err := pricing.Document(mode, lines, freight, insurance)
	if err != nil {
		return PurchaseOrder{}, validation("%v", err)
	}
	po := PurchaseOrder{
		TaxCategory:      mode,
		FreightCharges:   totals.Freight,
		InsuranceCharges: totals.Insurance,
		Subtotal:         totals.Subtotal,
		TaxAmount:        totals.Tax,
		TotalAmount:      totals.Total,
		Items:            make([]POItem, len(inputs)),
	}
	for i, in := range inputs {
		po.Items[i] = POItem{
			ID:              uuid.New(),
			ItemCode:        strings.TrimSpace(in.ItemCode),
			Description:     in.Description,
			Quantity:        in.Quantity,
			UnitPrice:       in.UnitPrice,
			DiscountPercent: in.DiscountPercent,
			TaxPercent:      in.TaxPercent,
			NetAmount:       totals.Lines[i].Net,
			TotalAmount:     totals.Lines[i].Total,
			BatchRequired:   in.BatchRequired,
		}
	}
	return po, nil
}
