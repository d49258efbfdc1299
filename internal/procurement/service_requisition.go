package procurement

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/pharmaproc/internal/numbering"
	"github.com/odyssey-erp/pharmaproc/internal/shared"
)

// RequisitionInput describes requisition creation.
type RequisitionInput struct {
	Number               string
	RequisitionDate      time.Time
	RequestedBy          string
	Department           string
	CostCenter           string
	Priority             Priority
	ExpectedDeliveryDate *time.Time
	BudgetReference      string
	Items                []RequisitionItemInput
}

// RequisitionItemInput describes a requested material.
type RequisitionItemInput struct {
	ItemCode          string
	ItemName          string
	Category          string
	UOM               string
	Quantity          decimal.Decimal
	EstimatedUnitCost decimal.Decimal
	PreferredVendorID *uuid.UUID
	Specification     string
}

// RequisitionUpdate patches a requisition. Nil fields are left unchanged; a
// non-nil Items replaces every item.
type RequisitionUpdate struct {
	RequisitionDate      *time.Time
	RequestedBy          *string
	Department           *string
	CostCenter           *string
	Priority             *Priority
	ExpectedDeliveryDate *time.Time
	BudgetReference      *string
	Items                *[]RequisitionItemInput
}

// CreateRequisition persists a draft requisition with its items.
func (s *Service) CreateRequisition(ctx context.Context, input RequisitionInput) (Requisition, error) {
	if strings.TrimSpace(input.RequestedBy) == "" {
		return Requisition{}, validation("requested by is required")
	}
	priority := input.Priority
	if priority == "" {
		priority = PriorityNormal
	}
	if priority != PriorityNormal && priority != PriorityUrgent {
		return Requisition{}, validation("unknown priority %q", priority)
	}
	now := s.now().UTC()
	req := Requisition{
		RequisitionDate:      s.today(input.RequisitionDate),
		RequestedBy:          strings.TrimSpace(input.RequestedBy),
		Department:           input.Department,
		CostCenter:           input.CostCenter,
		Priority:             priority,
		ExpectedDeliveryDate: input.ExpectedDeliveryDate,
		BudgetReference:      input.BudgetReference,
		Status:               RequisitionDraft,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	items, total, err := buildRequisitionItems(input.Items)
	if err != nil {
		return Requisition{}, err
	}
	req.TotalEstimatedCost = total

	err = s.withNumber(ctx, numbering.PrefixRequisition, input.Number, func(number string) error {
		req.ID = uuid.New()
		req.Number = number
		req.Items = attachRequisitionItems(req.ID, items)
		return s.inTx(ctx, func(ctx context.Context, tx TxRepository) error {
			return tx.CreateRequisition(ctx, req)
		})
	})
	if err != nil {
		return Requisition{}, err
	}
	s.recordAudit(ctx, "PR_CREATE", req.ID, map[string]any{"number": req.Number, "total": req.TotalEstimatedCost.String()})
	return req, nil
}

// UpdateRequisition edits a requisition. Converted requisitions are immutable;
// editing an approved one sends it back for approval.
func (s *Service) UpdateRequisition(ctx context.Context, id uuid.UUID, input RequisitionUpdate) (Requisition, error) {
	var updated Requisition
	err := s.inTx(ctx, func(ctx context.Context, tx TxRepository) error {
		req, err := tx.GetRequisition(ctx, id)
		if err != nil {
			return err
		}
		if req.Status == RequisitionConverted {
			return invalidState("requisition %s is converted and cannot be edited", req.Number)
		}
		if input.RequisitionDate != nil {
			req.RequisitionDate = *input.RequisitionDate
		}
		if input.RequestedBy != nil {
			if strings.TrimSpace(*input.RequestedBy) == "" {
				return validation("requested by is required")
			}
			req.RequestedBy = strings.TrimSpace(*input.RequestedBy)
		}
		if input.Department != nil {
			req.Department = *input.Department
		}
		if input.CostCenter != nil {
			req.CostCenter = *input.CostCenter
		}
		if input.Priority != nil {
			if *input.Priority != PriorityNormal && *input.Priority != PriorityUrgent {
				return validation("unknown priority %q", *input.Priority)
			}
			req.Priority = *input.Priority
		}
		if input.ExpectedDeliveryDate != nil {
			req.ExpectedDeliveryDate = input.ExpectedDeliveryDate
		}
		if input.BudgetReference != nil {
			req.BudgetReference = *input.BudgetReference
		}
		if req.Status == RequisitionApproved {
			req.Status = RequisitionPendingApproval
		}
		req.UpdatedAt = s.now().UTC()
		if input.Items != nil {
			items, total, err := buildRequisitionItems(*input.Items)
			if err != nil {
				return err
			}
			req.Items = attachRequisitionItems(req.ID, items)
			req.TotalEstimatedCost = total
			if err := tx.ReplaceRequisitionItems(ctx, req.ID, req.Items); err != nil {
				return err
			}
		}
		if err := tx.UpdateRequisition(ctx, req); err != nil {
			return err
		}
		updated = req
		return nil
	})
	if err != nil {
		return Requisition{}, err
	}
	s.recordAudit(ctx, "PR_UPDATE", id, map[string]any{"status": string(updated.Status)})
	return updated, nil
}

// SubmitRequisition sends a draft requisition for approval.
func (s *Service) SubmitRequisition(ctx context.Context, id uuid.UUID) (Requisition, error) {
	return s.transitionRequisition(ctx, id, RequisitionDraft, RequisitionPendingApproval, shared.ApprovalSubmit)
}

// ApproveRequisition approves a pending requisition.
func (s *Service) ApproveRequisition(ctx context.Context, id uuid.UUID) (Requisition, error) {
	return s.transitionRequisition(ctx, id, RequisitionPendingApproval, RequisitionApproved, shared.ApprovalApprove)
}

// RejectRequisition returns a pending requisition to draft.
func (s *Service) RejectRequisition(ctx context.Context, id uuid.UUID) (Requisition, error) {
	return s.transitionRequisition(ctx, id, RequisitionPendingApproval, RequisitionDraft, shared.ApprovalReject)
}

// ConvertRequisition marks an approved requisition as converted.
func (s *Service) ConvertRequisition(ctx context.Context, id uuid.UUID) (Requisition, error) {
	return s.transitionRequisition(ctx, id, RequisitionApproved, RequisitionConverted, "")
}

func (s *Service) transitionRequisition(ctx context.Context, id uuid.UUID, from, to RequisitionStatus, action shared.ApprovalAction) (Requisition, error) {
	var req Requisition
	err := s.inTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		req, err = tx.GetRequisition(ctx, id)
		if err != nil {
			return err
		}
		if req.Status != from {
			return invalidState("requisition %s is %s, expected %s", req.Number, req.Status, from)
		}
		if err := tx.UpdateRequisitionStatus(ctx, id, to); err != nil {
			return err
		}
		req.Status = to
		if action != "" {
			return s.recordApproval(ctx, id, action, fmt.Sprintf("PR %s %s", req.Number, strings.ToLower(string(to))))
		}
		return nil
	})
	if err != nil {
		return Requisition{}, err
	}
	s.recordAudit(ctx, "PR_STATUS", id, map[string]any{"from": string(from), "to": string(to)})
	return req, nil
}

// DeleteRequisition archives and removes a requisition that no purchase order
// references.
func (s *Service) DeleteRequisition(ctx context.Context, id uuid.UUID) error {
	var number string
	err := s.inTx(ctx, func(ctx context.Context, tx TxRepository) error {
		req, err := tx.GetRequisition(ctx, id)
		if err != nil {
			return err
		}
		number = req.Number
		poNumbers, err := tx.ListPONumbersByRequisition(ctx, id)
		if err != nil {
			return err
		}
		if len(poNumbers) > 0 {
			return &RequisitionInUseError{RequisitionID: id, PONumbers: poNumbers}
		}
		if req.Status == RequisitionConverted {
			return invalidState("requisition %s is converted and cannot be deleted", req.Number)
		}
		if s.trash != nil {
			if err := s.trash.Archive(ctx, "purchase_requisitions", id, req); err != nil {
				return err
			}
		}
		return tx.DeleteRequisition(ctx, id)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, "PR_DELETE", id, map[string]any{"number": number})
	return nil
}

// GetRequisition returns a requisition with items.
func (s *Service) GetRequisition(ctx context.Context, id uuid.UUID) (Requisition, error) {
	return s.repo.GetRequisition(ctx, id)
}

// RequisitionApprovals returns the approval history of a requisition, oldest
// first.
func (s *Service) RequisitionApprovals(ctx context.Context, id uuid.UUID) ([]shared.ApprovalLog, error) {
	if _, err := s.repo.GetRequisition(ctx, id); err != nil {
		return nil, err
	}
	if s.approvals == nil {
		return nil, nil
	}
	return s.approvals.List(ctx, approvalModule, id)
}

func buildRequisitionItems(inputs []RequisitionItemInput) ([]RequisitionItem, decimal.Decimal, error) {
	total := decimal.Zero
	items := make([]RequisitionItem, 0, len(inputs))
	for i, in := range inputs {
		name := strings.TrimSpace(in.ItemName)
		if name == "" {
			return nil, decimal.Zero, validation("item %d: name is required", i+1)
		}
		if !in.Quantity.IsPositive() {
			return nil, decimal.Zero, validation("item %d: quantity must be positive", i+1)
		}
		if in.EstimatedUnitCost.IsNegative() {
			return nil, decimal.Zero, validation("item %d: estimated unit cost must not be negative", i+1)
		}
		cost := in.Quantity.Mul(in.EstimatedUnitCost).Round(2)
		total = total.Add(cost)
		items = append(items, RequisitionItem{
			ItemCode:          strings.TrimSpace(in.ItemCode),
			ItemName:          name,
			Category:          in.Category,
			UOM:               in.UOM,
			Quantity:          in.Quantity,
			EstimatedUnitCost: in.EstimatedUnitCost,
			TotalCost:         cost,
			PreferredVendorID: in.PreferredVendorID,
			Specification:     in.Specification,
		})
	}
	return items, total, nil
}

func attachRequisitionItems(reqID uuid.UUID, items []RequisitionItem) []RequisitionItem {
	out := make([]RequisitionItem, len(items))
	for i, item := range items {
		item.ID = uuid.New()
		item.RequisitionID = reqID
		out[i] = item
	}
	return out
}
