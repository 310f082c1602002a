package http

import (
	"context"
	"net/http"

	"erp-approval-middleware/internal/usecase/approval"

	"github.com/labstack/echo/v4"
)

type DecisionService interface {
	Detect(ctx context.Context) (*approval.DetectResult, error)
	List(ctx context.Context, state string) (*approval.ListResult, error)
	Get(ctx context.Context, erpRequisitionID string) (*approval.DecisionDTO, error)
	Approve(ctx context.Context, in approval.ActionInput) (*approval.ActionResult, error)
	Reject(ctx context.Context, in approval.ActionInput) (*approval.ActionResult, error)
	Undo(ctx context.Context, in approval.ActionInput) (*approval.ActionResult, error)
	BatchApprove(ctx context.Context, in approval.BatchInput) (*approval.BatchResult, error)
	BatchReject(ctx context.Context, in approval.BatchInput) (*approval.BatchResult, error)
}

type ApprovalHandler struct {
	uc DecisionService
}

func NewApprovalHandler(uc DecisionService) *ApprovalHandler { return &ApprovalHandler{uc: uc} }

type listReq struct {
	State string `query:"state" validate:"omitempty,oneof=detected pending_commit committed cancelled failed"`
}

type getReq struct {
	ErpRequisitionID string `param:"erp_requisition_id" validate:"required,reqid"`
}

type actionReq struct {
	ErpRequisitionID string `param:"erp_requisition_id" json:"-" validate:"required,reqid"`
	Comment          string `json:"comment" validate:"max=1000"`
}

type batchReq struct {
	IDs     []string `json:"ids" validate:"required,min=1,max=100,unique,dive,required,reqid"`
	Comment string   `json:"comment" validate:"max=1000"`
}

func (h *ApprovalHandler) Detect(c echo.Context) error {
	res, err := h.uc.Detect(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *ApprovalHandler) List(c echo.Context) error {
	var req listReq
	if err := (&echo.DefaultBinder{}).BindQueryParams(c, &req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid query"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation failed",
			Details: ToFieldErrors(err),
		})
	}
	res, err := h.uc.List(c.Request().Context(), req.State)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *ApprovalHandler) Get(c echo.Context) error {
	var req getReq
	if err := (&echo.DefaultBinder{}).BindPathParams(c, &req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid path"})
	}
	if err := c.Validate(&req); err != nil {
		return validationError(c, err)
	}
	dto, err := h.uc.Get(c.Request().Context(), req.ErpRequisitionID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, dto)
}

func (h *ApprovalHandler) Approve(c echo.Context) error { return h.action(c, h.uc.Approve) }
func (h *ApprovalHandler) Reject(c echo.Context) error { return h.action(c, h.uc.Reject) }
func (h *ApprovalHandler) Undo(c echo.Context) error { return h.action(c, h.uc.Undo) }

func (h *ApprovalHandler) action(c echo.Context, op func(context.Context, approval.ActionInput) (*approval.ActionResult, error)) error {
	// Bind path param + optional JSON body
	var req actionReq
	if err := c.Bind(&req); err != nil {
		return bindError(c)
	}
	if err := c.Validate(&req); err != nil {
		return validationError(c, err)
	}
	res, err := op(c.Request().Context(), approval.ActionInput{
		ErpRequisitionID: req.ErpRequisitionID,
		Comment:          req.Comment,
		Actor:            actor(c),
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *ApprovalHandler) BatchApprove(c echo.Context) error { return h.batch(c, h.uc.BatchApprove) }
func (h *ApprovalHandler) BatchReject(c echo.Context) error { return h.batch(c, h.uc.BatchReject) }

// batch answers 200 even when items failed; the body carries per-item results.
func (h *ApprovalHandler) batch(c echo.Context, op func(context.Context, approval.BatchInput) (*approval.BatchResult, error)) error {
	var req batchReq
	if err := c.Bind(&req); err != nil {
		return bindError(c)
	}
	if err := c.Validate(&req); err != nil {
		return validationError(c, err)
	}
	res, err := op(c.Request().Context(), approval.BatchInput{
		IDs:     req.IDs,
		Comment: req.Comment,
		Actor:   actor(c),
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}
