package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"erp-approval-middleware/internal/adapter/middleware"
	"erp-approval-middleware/internal/domain/decision"
	"erp-approval-middleware/internal/domain/user"
	"erp-approval-middleware/internal/usecase/approval"
	"erp-approval-middleware/internal/usecase/auth"

	"github.com/labstack/echo/v4"
)

// fakeDecisions implements DecisionService with overridable functions.
type fakeDecisions struct {
	DetectFn       func(ctx context.Context) (*approval.DetectResult, error)
	ListFn         func(ctx context.Context, state string) (*approval.ListResult, error)
	GetFn          func(ctx context.Context, id string) (*approval.DecisionDTO, error)
	ActionFn       func(ctx context.Context, op string, in approval.ActionInput) (*approval.ActionResult, error)
	BatchFn        func(ctx context.Context, op string, in approval.BatchInput) (*approval.BatchResult, error)
	calledWithOp   string
	calledWithArgs approval.ActionInput
}

func (f *fakeDecisions) Detect(ctx context.Context) (*approval.DetectResult, error) {
	return f.DetectFn(ctx)
}

func (f *fakeDecisions) List(ctx context.Context, state string) (*approval.ListResult, error) {
	return f.ListFn(ctx, state)
}

func (f *fakeDecisions) Get(ctx context.Context, id string) (*approval.DecisionDTO, error) {
	return f.GetFn(ctx, id)
}

func (f *fakeDecisions) action(ctx context.Context, op string, in approval.ActionInput) (*approval.ActionResult, error) {
	f.calledWithOp, f.calledWithArgs = op, in
	if f.ActionFn == nil {
		return nil, errors.New("unexpected call")
	}
	return f.ActionFn(ctx, op, in)
}

func (f *fakeDecisions) Approve(ctx context.Context, in approval.ActionInput) (*approval.ActionResult, error) {
	return f.action(ctx, "approve", in)
}

func (f *fakeDecisions) Reject(ctx context.Context, in approval.ActionInput) (*approval.ActionResult, error) {
	return f.action(ctx, "reject", in)
}

func (f *fakeDecisions) Undo(ctx context.Context, in approval.ActionInput) (*approval.ActionResult, error) {
	return f.action(ctx, "undo", in)
}

func (f *fakeDecisions) BatchApprove(ctx context.Context, in approval.BatchInput) (*approval.BatchResult, error) {
	return f.BatchFn(ctx, "approve", in)
}

func (f *fakeDecisions) BatchReject(ctx context.Context, in approval.BatchInput) (*approval.BatchResult, error) {
	return f.BatchFn(ctx, "reject", in)
}

func serveAction(t *testing.T, h echo.HandlerFunc, id, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := newEchoWithValidator()
	req := httptest.NewRequest(stdhttp.MethodPost, "/approve/x", strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("erp_requisition_id")
	c.SetParamValues(id)
	middleware.WithPrincipal(c, &auth.Principal{Username: "alice", Role: user.RoleApprover})

	if err := h(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	return rec
}

func TestApprove_Success(t *testing.T) {
	svc := &fakeDecisions{
		ActionFn: func(_ context.Context, _ string, in approval.ActionInput) (*approval.ActionResult, error) {
			return &approval.ActionResult{
				ErpRequisitionID: in.ErpRequisitionID,
				Decision:         decision.VerdictManualApprove,
				State:            decision.StatePendingCommit,
				Message:          "Decision approved successfully",
			}, nil
		},
	}
	h := NewApprovalHandler(svc)

	rec := serveAction(t, h.Approve, "PR-2026-002", `{"comment":"looks fine"}`)
	if rec.Code != stdhttp.StatusOK {
		t.Fatalf("status = %d, want 200 (%s)", rec.Code, rec.Body.String())
	}
	if svc.calledWithOp != "approve" {
		t.Fatalf("op = %q", svc.calledWithOp)
	}
	want := approval.ActionInput{ErpRequisitionID: "PR-2026-002", Comment: "looks fine", Actor: "alice"}
	if svc.calledWithArgs != want {
		t.Fatalf("input = %+v, want %+v", svc.calledWithArgs, want)
	}

	var res approval.ActionResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("bad json: %v", err)
	}
	if res.State != decision.StatePendingCommit || res.Decision != decision.VerdictManualApprove || res.ErpRequisitionID != "PR-2026-002" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestActions_BodyIsOptional(t *testing.T) {
	svc := &fakeDecisions{
		ActionFn: func(_ context.Context, op string, in approval.ActionInput) (*approval.ActionResult, error) {
			return &approval.ActionResult{ErpRequisitionID: in.ErpRequisitionID, State: decision.StateDetected, Message: op}, nil
		},
	}
	h := NewApprovalHandler(svc)

	for op, fn := range map[string]echo.HandlerFunc{"reject": h.Reject, "undo": h.Undo} {
		rec := serveAction(t, fn, "PR-1", "")
		if rec.Code != stdhttp.StatusOK {
			t.Fatalf("%s: status = %d, want 200 (%s)", op, rec.Code, rec.Body.String())
		}
		if svc.calledWithOp != op || svc.calledWithArgs.Comment != "" {
			t.Fatalf("%s: called %q with %+v", op, svc.calledWithOp, svc.calledWithArgs)
		}
	}
}

func TestApprove_BindError(t *testing.T) {
	svc := &fakeDecisions{}
	rec := serveAction(t, NewApprovalHandler(svc).Approve, "PR-1", `{"comment":`)
	if rec.Code != stdhttp.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var er ErrorResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &er)
	if er.Error != "invalid body" {
		t.Fatalf("error = %q, want %q", er.Error, "invalid body")
	}
	if svc.calledWithOp != "" {
		t.Fatalf("usecase must not be called")
	}
}

func TestApprove_ValidationError(t *testing.T) {
	svc := &fakeDecisions{}
	body := fmt.Sprintf(`{"comment":%q}`, strings.Repeat("x", 1001))
	rec := serveAction(t, NewApprovalHandler(svc).Approve, "bad id!", body)
	if rec.Code != stdhttp.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
	var er ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &er); err != nil {
		t.Fatalf("bad json: %v", err)
	}
	if er.Error != "validation failed" {
		t.Fatalf("error = %q", er.Error)
	}
	if !containsFieldMsg(er.Details, "erp_requisition_id", "requisition id") || !containsFieldMsg(er.Details, "comment", "at most 1000") {
		t.Fatalf("missing expected field errors: %+v", er.Details)
	}
	if svc.calledWithOp != "" {
		t.Fatalf("usecase must not be called")
	}
}

func TestActions_ErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		msg    string
	}{
		{decision.ErrNotFound, stdhttp.StatusNotFound, decision.ErrNotFound.Error()},
		{fmt.Errorf("%w: cannot approve a committed decision", decision.ErrInvalidState), stdhttp.StatusConflict, "cannot approve a committed decision"},
		{decision.ErrNoScore, stdhttp.StatusConflict, "no risk score"},
		{decision.ErrStaleState, stdhttp.StatusConflict, "changed concurrently"},
		{fmt.Errorf("%w: %w", decision.ErrAdapterFailure, errors.New("erp unavailable")), stdhttp.StatusBadGateway, "erp adapter call failed"},
		{errors.New("disk on fire"), stdhttp.StatusInternalServerError, "internal server error"},
	}
	for _, tc := range cases {
		svc := &fakeDecisions{
			ActionFn: func(context.Context, string, approval.ActionInput) (*approval.ActionResult, error) { return nil, tc.err },
		}
		rec := serveAction(t, NewApprovalHandler(svc).Approve, "PR-1", "")
		if rec.Code != tc.status {
			t.Fatalf("%v: status = %d, want %d", tc.err, rec.Code, tc.status)
		}
		var er ErrorResponse
		_ = json.Unmarshal(rec.Body.Bytes(), &er)
		if !strings.Contains(er.Error, tc.msg) {
			t.Fatalf("%v: error = %q, want it to contain %q", tc.err, er.Error, tc.msg)
		}
	}
}

func serveJSON(t *testing.T, h echo.HandlerFunc, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := newEchoWithValidator()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	middleware.WithPrincipal(c, &auth.Principal{Username: "alice", Role: user.RoleApprover})
	if err := h(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	return rec
}

func TestBatch(t *testing.T) {
	var got approval.BatchInput
	var gotOp string
	svc := &fakeDecisions{
		BatchFn: func(_ context.Context, op string, in approval.BatchInput) (*approval.BatchResult, error) {
			gotOp, got = op, in
			return &approval.BatchResult{
				Processed: 1,
				Failed:    1,
				Results: []approval.BatchItem{
					{ErpRequisitionID: "R3", Success: true, Message: "Approved"},
					{ErpRequisitionID: "R4", Message: "operation not allowed in current decision state: cannot approve a committed decision"},
				},
			}, nil
		},
	}
	h := NewApprovalHandler(svc)

	rec := serveJSON(t, h.BatchApprove, stdhttp.MethodPost, "/batch/approve", `{"ids":["R3","R4"],"comment":"bulk"}`)
	if rec.Code != stdhttp.StatusOK {
		t.Fatalf("status = %d, want 200 (%s)", rec.Code, rec.Body.String())
	}
	if gotOp != "approve" || got.Actor != "alice" || got.Comment != "bulk" || len(got.IDs) != 2 {
		t.Fatalf("usecase called with %q %+v", gotOp, got)
	}
	var res approval.BatchResult
	_ = json.Unmarshal(rec.Body.Bytes(), &res)
	if res.Processed != 1 || res.Failed != 1 || len(res.Results) != 2 || res.Results[1].Success {
		t.Fatalf("unexpected body: %+v", res)
	}

	rec = serveJSON(t, h.BatchReject, stdhttp.MethodPost, "/batch/reject", `{"ids":["R5"]}`)
	if rec.Code != stdhttp.StatusOK || gotOp != "reject" {
		t.Fatalf("reject: status = %d op = %q", rec.Code, gotOp)
	}
}

func TestBatch_Validation(t *testing.T) {
	svc := &fakeDecisions{
		BatchFn: func(context.Context, string, approval.BatchInput) (*approval.BatchResult, error) {
			t.Fatalf("usecase must not be called")
			return nil, nil
		},
	}
	h := NewApprovalHandler(svc)

	for _, body := range []string{
		`{}`,
		`{"ids":[]}`,
		`{"ids":["R1","R1"]}`,
		`{"ids":["R1","not valid"]}`,
	} {
		rec := serveJSON(t, h.BatchApprove, stdhttp.MethodPost, "/batch/approve", body)
		if rec.Code != stdhttp.StatusUnprocessableEntity {
			t.Fatalf("%s: status = %d, want 422", body, rec.Code)
		}
	}
}

func TestDetect(t *testing.T) {
	svc := &fakeDecisions{
		DetectFn: func(context.Context) (*approval.DetectResult, error) {
			return &approval.DetectResult{StagedCount: 3, Message: "Staged 3 approval decision(s)"}, nil
		},
	}
	rec := serveJSON(t, NewApprovalHandler(svc).Detect, stdhttp.MethodPost, "/detect", "")
	if rec.Code != stdhttp.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var res map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &res)
	if res["staged_count"] != float64(3) || res["message"] != "Staged 3 approval decision(s)" {
		t.Fatalf("unexpected body: %v", res)
	}

	svc.DetectFn = func(context.Context) (*approval.DetectResult, error) {
		return nil, fmt.Errorf("%w: fetch staged requisitions: %w", decision.ErrAdapterFailure, errors.New("timeout"))
	}
	rec = serveJSON(t, NewApprovalHandler(svc).Detect, stdhttp.MethodPost, "/detect", "")
	if rec.Code != stdhttp.StatusBadGateway {
		t.Fatalf("adapter failure: status = %d, want 502", rec.Code)
	}
}

func TestList(t *testing.T) {
	var gotState string
	svc := &fakeDecisions{
		ListFn: func(_ context.Context, state string) (*approval.ListResult, error) {
			gotState = state
			return &approval.ListResult{Decisions: []approval.DecisionDTO{{ErpRequisitionID: "PR-1"}}, Total: 1}, nil
		},
	}
	h := NewApprovalHandler(svc)

	rec := serveJSON(t, h.List, stdhttp.MethodGet, "/decisions?state=pending_commit", "")
	if rec.Code != stdhttp.StatusOK || gotState != "pending_commit" {
		t.Fatalf("status = %d state = %q", rec.Code, gotState)
	}
	var res approval.ListResult
	_ = json.Unmarshal(rec.Body.Bytes(), &res)
	if res.Total != 1 || res.Decisions[0].ErpRequisitionID != "PR-1" {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}

	rec = serveJSON(t, h.List, stdhttp.MethodGet, "/decisions?state=bogus", "")
	if rec.Code != stdhttp.StatusBadRequest {
		t.Fatalf("unknown state: status = %d, want 400", rec.Code)
	}
}

func TestGet(t *testing.T) {
	svc := &fakeDecisions{
		GetFn: func(_ context.Context, id string) (*approval.DecisionDTO, error) {
			if id != "PR-1" {
				return nil, decision.ErrNotFound
			}
			return &approval.DecisionDTO{ErpRequisitionID: id, State: decision.StateDetected}, nil
		},
	}
	h := NewApprovalHandler(svc)

	get := func(id string) *httptest.ResponseRecorder {
		e := newEchoWithValidator()
		rec := httptest.NewRecorder()
		c := e.NewContext(httptest.NewRequest(stdhttp.MethodGet, "/decisions/"+id, nil), rec)
		c.SetParamNames("erp_requisition_id")
		c.SetParamValues(id)
		if err := h.Get(c); err != nil {
			t.Fatalf("handler error: %v", err)
		}
		return rec
	}

	if rec := get("PR-1"); rec.Code != stdhttp.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec := get("PR-404"); rec.Code != stdhttp.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
