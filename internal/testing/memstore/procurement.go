package memstore

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/odyssey-erp/pharmaproc/internal/procurement"
)

var _ procurement.RepositoryPort = (*Store)(nil)
var _ procurement.TxRepository = (*Store)(nil)

func (s *Store) GetRequisition(_ context.Context, id uuid.UUID) (procurement.Requisition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.st.requisitions[id]
	if !ok {
		return procurement.Requisition{}, missing("requisition", id)
	}
	return req, nil
}

func (s *Store) GetPurchaseOrder(_ context.Context, id uuid.UUID) (procurement.PurchaseOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	po, ok := s.st.orders[id]
	if !ok {
		return procurement.PurchaseOrder{}, missing("purchase order", id)
	}
	return po, nil
}

func (s *Store) GetGRN(_ context.Context, id uuid.UUID) (procurement.GoodsReceipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	grn, ok := s.st.receipts[id]
	if !ok {
		return procurement.GoodsReceipt{}, missing("goods receipt", id)
	}
	return grn, nil
}

func (s *Store) GetInvoice(_ context.Context, id uuid.UUID) (procurement.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.st.invoices[id]
	if !ok {
		return procurement.Invoice{}, missing("invoice", id)
	}
	return inv, nil
}

func (s *Store) GetPayment(_ context.Context, id uuid.UUID) (procurement.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.st.payments[id]
	if !ok {
		return procurement.Payment{}, missing("payment", id)
	}
	return p, nil
}

func (s *Store) ListPONumbersByRequisition(_ context.Context, requisitionID uuid.UUID) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var numbers []string
	for _, po := range s.st.orders {
		if po.RequisitionID != nil && *po.RequisitionID == requisitionID {
			numbers = append(numbers, po.Number)
		}
	}
	sort.Strings(numbers)
	return numbers, nil
}

func duplicate(number string) error {
	return fmt.Errorf("%w: %s", procurement.ErrDuplicateNumber, number)
}

func (s *Store) CreateRequisition(ctx context.Context, req procurement.Requisition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx, "CreateRequisition"); err != nil {
		return err
	}
	for _, existing := range s.st.requisitions {
		if existing.Number == req.Number {
			return s.abort(ctx, duplicate(req.Number))
		}
	}
	s.st.requisitions[req.ID] = req
	return nil
}

func (s *Store) UpdateRequisition(ctx context.Context, req procurement.Requisition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx, "UpdateRequisition"); err != nil {
		return err
	}
	current, ok := s.st.requisitions[req.ID]
	if !ok {
		return missing("requisition", req.ID)
	}
	req.Items = current.Items
	s.st.requisitions[req.ID] = req
	return nil
}

func (s *Store) ReplaceRequisitionItems(ctx context.Context, requisitionID uuid.UUID, items []procurement.RequisitionItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx, "ReplaceRequisitionItems"); err != nil {
		return err
	}
	req, ok := s.st.requisitions[requisitionID]
	if !ok {
		return missing("requisition", requisitionID)
	}
	req.Items = append([]procurement.RequisitionItem(nil), items...)
	s.st.requisitions[requisitionID] = req
	return nil
}

func (s *Store) UpdateRequisitionStatus(ctx context.Context, id uuid.UUID, status procurement.RequisitionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx, "UpdateRequisitionStatus"); err != nil {
		return err
	}
	req, ok := s.st.requisitions[id]
	if !ok {
		return missing("requisition", id)
	}
	req.Status = status
	s.st.requisitions[id] = req
	return nil
}

func (s *Store) DeleteRequisition(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx, "DeleteRequisition"); err != nil {
		return err
	}
	if _, ok := s.st.requisitions[id]; !ok {
		return missing("requisition", id)
	}
	delete(s.st.requisitions, id)
	return nil
}

func (s *Store) CreatePurchaseOrder(ctx context.Context, po procurement.PurchaseOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx, "CreatePurchaseOrder"); err != nil {
		return err
	}
	for _, existing := range s.st.orders {
		if existing.Number == po.Number {
			return s.abort(ctx, duplicate(po.Number))
		}
	}
	s.st.orders[po.ID] = po
	return nil
}

func (s *Store) CreateGRN(ctx context.Context, grn procurement.GoodsReceipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx, "CreateGRN"); err != nil {
		return err
	}
	for _, existing := range s.st.receipts {
		if existing.Number == grn.Number {
			return s.abort(ctx, duplicate(grn.Number))
		}
	}
	s.st.receipts[grn.ID] = grn
	return nil
}

func (s *Store) UpdateGRN(ctx context.Context, grn procurement.GoodsReceipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx, "UpdateGRN"); err != nil {
		return err
	}
	current, ok := s.st.receipts[grn.ID]
	if !ok {
		return missing("goods receipt", grn.ID)
	}
	grn.Items = current.Items
	grn.StockPosted = current.StockPosted
	s.st.receipts[grn.ID] = grn
	return nil
}

func (s *Store) ReplaceGRNItems(ctx context.Context, grnID uuid.UUID, items []procurement.GRNItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx, "ReplaceGRNItems"); err != nil {
		return err
	}
	grn, ok := s.st.receipts[grnID]
	if !ok {
		return missing("goods receipt", grnID)
	}
	grn.Items = append([]procurement.GRNItem(nil), items...)
	s.st.receipts[grnID] = grn
	return nil
}

func (s *Store) SetGRNQCStatus(ctx context.Context, id uuid.UUID, status procurement.QCStatus, remarks string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx, "SetGRNQCStatus"); err != nil {
		return err
	}
	grn, ok := s.st.receipts[id]
	if !ok {
		return missing("goods receipt", id)
	}
	grn.QCStatus = status
	grn.QCRemarks = remarks
	s.st.receipts[id] = grn
	return nil
}

func (s *Store) MarkGRNStockPosted(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx, "MarkGRNStockPosted"); err != nil {
		return err
	}
	grn, ok := s.st.receipts[id]
	if !ok {
		return missing("goods receipt", id)
	}
	grn.StockPosted = true
	s.st.receipts[id] = grn
	return nil
}

func (s *Store) CreateInvoice(ctx context.Context, inv procurement.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx, "CreateInvoice"); err != nil {
		return err
	}
	for _, existing := range s.st.invoices {
		if existing.Number == inv.Number {
			return s.abort(ctx, duplicate(inv.Number))
		}
	}
	s.st.invoices[inv.ID] = inv
	return nil
}

func (s *Store) UpdateInvoice(ctx context.Context, inv procurement.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx, "UpdateInvoice"); err != nil {
		return err
	}
	if _, ok := s.st.invoices[inv.ID]; !ok {
		return missing("invoice", inv.ID)
	}
	s.st.invoices[inv.ID] = inv
	return nil
}

func (s *Store) CreatePayment(ctx context.Context, p procurement.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx, "CreatePayment"); err != nil {
		return err
	}
	s.st.payments[p.ID] = p
	return nil
}

func (s *Store) UpdatePayment(ctx context.Context, p procurement.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(ctx, "UpdatePayment"); err != nil {
		return err
	}
	if _, ok := s.st.payments[p.ID]; !ok {
		return missing("payment", p.ID)
	}
	s.st.payments[p.ID] = p
	return nil
}
