package erp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"erp-approval-middleware/internal/domain/requisition"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

const (
	sapServicePath = "/sap/opu/odata/sap/API_PURCHASEREQ_PROCESS_SRV"
	sapEntitySet   = "A_PurchaseRequisitionItem"
	sapReleaseFn   = "PurchaseRequisitionRelease"

	sapActionRelease = "01"
	sapActionReject  = "02"

	sapNoteMax = 256
)

var sapSelect = strings.Join([]string{
	"PurchaseRequisition", "PurchaseRequisitionItem", "Material", "PurchaseRequisitionItemText",
	"RequestedQuantity", "BaseUnit", "PurchaseRequisitionPrice", "PurReqnItemCurrency",
	"Plant", "FixedSupplier",
}, ",")

type SAPConfig struct {
	BaseURL       string
	ServicePrefix string
	Username      string
	Password      string
	APIKey        string
	Timeout       time.Duration
	RatePerSecond float64
	MaxAttempts   int
	// Filter is the OData $filter for staged items.
	Filter string
	Top    int
}

// SAP talks to the S/4HANA purchase requisition OData service.
type SAP struct {
	cfg     SAPConfig
	client  *http.Client
	limiter *rate.Limiter
	breaker *Breaker
	backoff func() backoff.BackOff
	log     *slog.Logger

	mu   sync.Mutex
	csrf string
}

type SAPOption func(*SAP)

func WithHTTPClient(c *http.Client) SAPOption { return func(s *SAP) { s.client = c } }
func WithSAPLogger(l *slog.Logger) SAPOption { return func(s *SAP) { s.log = l } }
func WithBreaker(b *Breaker) SAPOption { return func(s *SAP) { s.breaker = b } }

// WithBackOff replaces the retry schedule; tests use a zero backoff.
func WithBackOff(f func() backoff.BackOff) SAPOption { return func(s *SAP) { s.backoff = f } }

func NewSAP(cfg SAPConfig, opts ...SAPOption) *SAP {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Filter == "" {
		cfg.Filter = "PurchaseRequisitionReleaseCode eq ''"
	}
	if cfg.Top <= 0 {
		cfg.Top = 100
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	s := &SAP{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, 1),
		breaker: NewBreaker(5, 30*time.Second),
		log:     slog.Default(),
		backoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 5 * time.Second
			return b
		},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *SAP) Name() string { return ModeSAP }

func (s *SAP) serviceURL(suffix string) string {
	return strings.TrimRight(s.cfg.BaseURL, "/") + s.cfg.ServicePrefix + sapServicePath + "/" + suffix
}

type odataItem struct {
	PurchaseRequisition         string          `json:"PurchaseRequisition"`
	PurchaseRequisitionItem     string          `json:"PurchaseRequisitionItem"`
	Material                    string          `json:"Material"`
	PurchaseRequisitionItemText string          `json:"PurchaseRequisitionItemText"`
	RequestedQuantity           json.RawMessage `json:"RequestedQuantity"`
	BaseUnit                    string          `json:"BaseUnit"`
	PurchaseRequisitionPrice    json.RawMessage `json:"PurchaseRequisitionPrice"`
	PurReqnItemCurrency         string          `json:"PurReqnItemCurrency"`
	Plant                       string          `json:"Plant"`
	FixedSupplier               string          `json:"FixedSupplier"`
}

func (s *SAP) FetchStaged(ctx context.Context) ([]requisition.Requisition, error) {
	q := url.Values{}
	q.Set("$format", "json")
	q.Set("$top", strconv.Itoa(s.cfg.Top))
	q.Set("$select", sapSelect)
	q.Set("$filter", s.cfg.Filter)

	body, err := s.do(ctx, http.MethodGet, s.serviceURL(sapEntitySet)+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	items, err := decodeOData(body)
	if err != nil {
		return nil, fmt.Errorf("%w: decode odata: %v", ErrUnavailable, err)
	}
	out := make([]requisition.Requisition, 0, len(items))
	for _, it := range items {
		if strings.TrimSpace(it.PurchaseRequisition) == "" {
			continue
		}
		out = append(out, s.toRequisition(it))
	}
	s.log.Info("erp sap: fetched staged requisitions", "count", len(out))
	return out, nil
}

// decodeOData accepts v2 {"d":{"results":[..]}}, v2 {"d":[..]}, v2 single
// {"d":{..}} and v4 {"value":[..]} envelopes.
func decodeOData(body []byte) ([]odataItem, error) {
	var env struct {
		D     json.RawMessage `json:"d"`
		Value []odataItem     `json:"value"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, err
	}
	if len(env.D) == 0 {
		return env.Value, nil
	}
	d := bytes.TrimSpace(env.D)
	if len(d) > 0 && d[0] == '[' {
		var items []odataItem
		err := json.Unmarshal(d, &items)
		return items, err
	}
	var wrapped struct {
		Results []odataItem `json:"results"`
	}
	if err := json.Unmarshal(d, &wrapped); err != nil {
		return nil, err
	}
	if wrapped.Results != nil {
		return wrapped.Results, nil
	}
	var single odataItem
	if err := json.Unmarshal(d, &single); err != nil {
		return nil, err
	}
	return []odataItem{single}, nil
}

func (s *SAP) toRequisition(it odataItem) requisition.Requisition {
	return requisition.Requisition{
		ErpRequisitionID: strings.TrimSpace(it.PurchaseRequisition),
		ItemNumber:       it.PurchaseRequisitionItem,
		Material:         it.Material,
		Description:      it.PurchaseRequisitionItemText,
		Quantity:         s.number("RequestedQuantity", it.RequestedQuantity),
		Unit:             it.BaseUnit,
		Price:            s.number("PurchaseRequisitionPrice", it.PurchaseRequisitionPrice),
		Currency:         it.PurReqnItemCurrency,
		Plant:            it.Plant,
		Supplier:         it.FixedSupplier,
		CreatedAt:        time.Now().UTC(),
	}
}

// number parses OData decimals, which v2 sends as strings and v4 as numbers.
func (s *SAP) number(field string, raw json.RawMessage) decimal.NullDecimal {
	v := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if v == "" || v == "null" {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		s.log.Warn("erp sap: invalid decimal", "field", field, "value", v)
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

func (s *SAP) Commit(ctx context.Context, erpRequisitionID, comment string) error {
	return s.release(ctx, erpRequisitionID, sapActionRelease, comment)
}

func (s *SAP) Reject(ctx context.Context, erpRequisitionID, comment string) error {
	return s.release(ctx, erpRequisitionID, sapActionReject, comment)
}

// Rollback has nothing to undo: SAP only sees a requisition once it is committed.
func (s *SAP) Rollback(ctx context.Context, erpRequisitionID string) error {
	s.log.Debug("erp sap: rollback is a no-op", "erp_requisition_id", erpRequisitionID)
	return nil
}

func (s *SAP) release(ctx context.Context, erpRequisitionID, action, note string) error {
	payload := map[string]string{
		"PurchaseRequisition":     erpRequisitionID,
		"PurchaseReqnReleaseCode": action,
	}
	if note != "" {
		if len(note) > sapNoteMax {
			note = note[:sapNoteMax]
		}
		payload["Note"] = note
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = s.do(ctx, http.MethodPost, s.serviceURL(sapReleaseFn), body)
	if err != nil {
		return err
	}
	s.log.Info("erp sap: release submitted", "erp_requisition_id", erpRequisitionID, "action", action)
	return nil
}

func (s *SAP) Health(ctx context.Context) Health {
	h := Health{
		Adapter: ModeSAP,
		Details: map[string]any{"base_url": s.cfg.BaseURL, "breaker": s.breaker.State()},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.serviceURL("$metadata"), nil)
	if err != nil {
		h.Status, h.Error = "unhealthy", err.Error()
		return h
	}
	s.authorize(req)
	resp, err := s.client.Do(req)
	if err != nil {
		h.Status, h.Error = "unhealthy", err.Error()
		return h
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	h.Details["status_code"] = resp.StatusCode
	if resp.StatusCode/100 == 2 {
		h.Status = "healthy"
	} else {
		h.Status = "unhealthy"
	}
	return h
}

func (s *SAP) authorize(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	switch {
	case s.cfg.APIKey != "":
		req.Header.Set("APIKey", s.cfg.APIKey)
	case s.cfg.Username != "":
		req.SetBasicAuth(s.cfg.Username, s.cfg.Password)
	}
}

// do runs one logical call: breaker gate, rate limit, retry on 429/5xx and
// transport errors, CSRF refresh on 403 for writes.
func (s *SAP) do(ctx context.Context, method, target string, body []byte) ([]byte, error) {
	if !s.breaker.Allow() {
		return nil, fmt.Errorf("%w: circuit open", ErrUnavailable)
	}

	var out []byte
	csrfRetried := false
	op := func() error {
		if err := s.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(fmt.Errorf("%w: %v", ErrUnavailable, err))
		}
		status, respBody, err := s.send(ctx, method, target, body)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		switch {
		case status/100 == 2:
			out = respBody
			return nil
		case status == http.StatusForbidden && method != http.MethodGet && !csrfRetried:
			csrfRetried = true
			s.log.Warn("erp sap: csrf token rejected, refreshing")
			s.resetCSRF()
			return fmt.Errorf("%w: csrf token expired", ErrUnavailable)
		case status == http.StatusTooManyRequests || status >= 500:
			return fmt.Errorf("%w: http %d: %s", ErrUnavailable, status, sapErrorMessage(respBody))
		case status == http.StatusNotFound:
			return backoff.Permanent(fmt.Errorf("%w: %s", ErrNotFound, sapErrorMessage(respBody)))
		case status == http.StatusConflict:
			return backoff.Permanent(fmt.Errorf("%w: %s", ErrAlreadyProcessed, sapErrorMessage(respBody)))
		default:
			return backoff.Permanent(fmt.Errorf("%w: http %d: %s", ErrRejected, status, sapErrorMessage(respBody)))
		}
	}

	b := backoff.WithContext(backoff.WithMaxRetries(s.backoff(), uint64(s.cfg.MaxAttempts-1)), ctx)
	err := backoff.Retry(op, b)
	if err != nil && (errors.Is(err, ErrUnavailable) || ctx.Err() != nil) {
		if !errors.Is(err, ErrUnavailable) {
			err = fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		s.breaker.RecordFailure()
		s.log.Error("erp sap: call failed", "method", method, "url", target, "err", err)
		return nil, err
	}
	s.breaker.RecordSuccess()
	return out, err
}

func (s *SAP) send(ctx context.Context, method, target string, body []byte) (int, []byte, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rd)
	if err != nil {
		return 0, nil, err
	}
	s.authorize(req)
	req.Header.Set("X-Request-ID", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method != http.MethodGet {
		token, err := s.csrfToken(ctx)
		if err != nil {
			return 0, nil, err
		}
		if token != "" {
			req.Header.Set("X-CSRF-Token", token)
		}
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return 0, nil, err
	}
	s.log.Debug("erp sap: request", "method", method, "url", target,
		"status", resp.StatusCode, "elapsed_ms", time.Since(start).Milliseconds())
	return resp.StatusCode, respBody, nil
}

func (s *SAP) csrfToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.csrf != "" {
		return s.csrf, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.serviceURL(""), nil)
	if err != nil {
		return "", err
	}
	s.authorize(req)
	req.Header.Set("X-CSRF-Token", "Fetch")
	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	s.csrf = resp.Header.Get("X-CSRF-Token")
	if s.csrf == "" {
		s.log.Warn("erp sap: csrf token not returned", "status", resp.StatusCode)
	}
	return s.csrf, nil
}

func (s *SAP) resetCSRF() {
	s.mu.Lock()
	s.csrf = ""
	s.mu.Unlock()
}

// sapErrorMessage pulls error.message.value out of an OData error body.
func sapErrorMessage(body []byte) string {
	var e struct {
		Error struct {
			Message json.RawMessage `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && len(e.Error.Message) > 0 {
		var v struct {
			Value string `json:"value"`
		}
		if json.Unmarshal(e.Error.Message, &v) == nil && v.Value != "" {
			return v.Value
		}
		var str string
		if json.Unmarshal(e.Error.Message, &str) == nil && str != "" {
			return str
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 500 {
		msg = msg[:500]
	}
	if msg == "" {
		return "unknown error"
	}
	return msg
}
