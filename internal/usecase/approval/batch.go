package approval

import (
	"context"
	"errors"
	"fmt"

	"erp-approval-middleware/internal/domain/decision"
)

func (u *Usecase) BatchApprove(ctx context.Context, in BatchInput) (*BatchResult, error) {
	return u.batch(ctx, in, u.Approve, "Approved")
}

func (u *Usecase) BatchReject(ctx context.Context, in BatchInput) (*BatchResult, error) {
	return u.batch(ctx, in, u.Reject, "Rejected")
}

// batch runs op once per id, in order. Items are independent: one failure
// never stops the rest, and every id gets exactly one result.
func (u *Usecase) batch(ctx context.Context, in BatchInput, op func(context.Context, ActionInput) (*ActionResult, error), okMsg string) (*BatchResult, error) {
	if len(in.IDs) == 0 {
		return nil, fmt.Errorf("%w: ids must not be empty", decision.ErrValidation)
	}

	res := &BatchResult{Results: make([]BatchItem, 0, len(in.IDs))}
	for _, id := range in.IDs {
		item := BatchItem{ErpRequisitionID: id}
		_, err := op(ctx, ActionInput{ErpRequisitionID: id, Comment: in.Comment, Actor: in.Actor})
		switch {
		case err == nil:
			item.Success = true
			item.Message = okMsg
			res.Processed++
		case errors.Is(err, decision.ErrNotFound):
			item.Message = "No pending decision found"
			res.Failed++
		default:
			item.Message = err.Error()
			res.Failed++
		}
		res.Results = append(res.Results, item)
	}
	u.log.Info("batch done", "action", okMsg, "processed", res.Processed, "failed", res.Failed)
	return res, nil
}
