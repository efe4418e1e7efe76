package adminactions

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/cloudcompute/admin-gateway/pkg/compute"
)

// DefaultDelegationTimeout bounds fetching and delegation when no timeout is
// configured.
const DefaultDelegationTimeout = 30 * time.Second

const tracerName = "github.com/cloudcompute/admin-gateway/pkg/adminactions"

// Stage is a step of request handling. Stages only move forward.
type Stage string

const (
	StageAuthorizing Stage = "authorizing"
	StageFetching    Stage = "fetching"
	StageValidating  Stage = "validating"
	StageGuarding    Stage = "guarding"
	StageDelegating  Stage = "delegating"
	StageReporting   Stage = "reporting"
)

// Request is one admin action invocation.
type Request struct {
	// RequestID identifies the request in logs and history. Generated when
	// empty.
	RequestID  string
	Principal  Principal
	Action     ActionName
	ResourceID string
	Body       json.RawMessage
}

// Result describes a successful action.
type Result struct {
	RequestID   string         `json:"request_id"`
	Action      ActionName     `json:"action"`
	ResourceID  string         `json:"resource_id"`
	Status      OutcomeStatus  `json:"status"`
	Location    string         `json:"location,omitempty"`
	Diagnostics map[string]any `json:"diagnostics,omitempty"`
}

// HTTPStatus returns 202 for accepted actions and 200 for completed ones.
func (r *Result) HTTPStatus() int {
	if r.Status == StatusCompleted {
		return http.StatusOK
	}
	return http.StatusAccepted
}

// Gateway runs admin actions: authorize, fetch, validate, guard, delegate,
// report. It holds no per-request state and is safe for concurrent use.
type Gateway struct {
	registry   *Registry
	store      compute.ResourceStore
	adapter    *Adapter
	quota      compute.QuotaChecker
	authorizer Authorizer
	recorder   Recorder
	metrics    *Metrics
	tracer     trace.Tracer
	logger     *slog.Logger
	baseURL    string
	timeout    time.Duration
	now        func() time.Time
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithQuotaChecker sets the metadata quota callout used by createBackup.
func WithQuotaChecker(q compute.QuotaChecker) Option {
	return func(g *Gateway) { g.quota = q }
}

// WithAuthorizer replaces the default RoleAuthorizer.
func WithAuthorizer(a Authorizer) Option {
	return func(g *Gateway) { g.authorizer = a }
}

// WithRecorder sets where action history is written.
func WithRecorder(r Recorder) Option {
	return func(g *Gateway) { g.recorder = r }
}

// WithMetrics sets the Prometheus collectors.
func WithMetrics(m *Metrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

// WithTracer overrides the global OpenTelemetry tracer.
func WithTracer(t trace.Tracer) Option {
	return func(g *Gateway) { g.tracer = t }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

// WithBaseURL sets the prefix for image locations returned by createBackup.
func WithBaseURL(u string) Option {
	return func(g *Gateway) { g.baseURL = strings.TrimRight(u, "/") }
}

// WithDelegationTimeout bounds the fetching and delegating stages.
func WithDelegationTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// NewGateway creates a Gateway over a populated registry.
func NewGateway(registry *Registry, store compute.ResourceStore, orchestrator compute.Orchestrator, opts ...Option) *Gateway {
	g := &Gateway{
		registry:   registry,
		store:      store,
		adapter:    NewAdapter(orchestrator, store),
		authorizer: RoleAuthorizer{},
		timeout:    DefaultDelegationTimeout,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	if g.tracer == nil {
		g.tracer = otel.Tracer(tracerName)
	}
	return g
}

// Registry returns the gateway's action registry.
func (g *Gateway) Registry() *Registry {
	return g.registry
}

// handling carries what a request has resolved so far.
type handling struct {
	req   Request
	desc  *Descriptor
	cmd   *Command
	inst  *compute.Instance
	start time.Time
}

// Handle runs one request to completion. Exactly one of the return values is
// non-nil.
func (g *Gateway) Handle(ctx context.Context, req Request) (*Result, *ActionError) {
	if req.RequestID == "" {
		req.RequestID = "req-" + uuid.NewString()
	}
	h := &handling{req: req, start: g.now()}

	ctx, span := g.tracer.Start(ctx, "adminactions.Handle", trace.WithAttributes(
		attribute.String("admin.action", string(req.Action)),
		attribute.String("admin.resource_id", req.ResourceID),
		attribute.String("admin.request_id", req.RequestID),
		attribute.String("admin.actor", req.Principal.User),
	))
	defer span.End()

	result, aerr := g.run(ctx, span, h)

	var outcome string
	if aerr != nil {
		outcome = string(aerr.Kind)
		span.SetStatus(codes.Error, aerr.Message)
		span.SetAttributes(attribute.String("admin.error_kind", outcome))
	} else {
		outcome = string(result.Status)
		span.SetStatus(codes.Ok, "")
	}
	g.metrics.observe(req.Action, outcome, g.now().Sub(h.start))
	g.record(ctx, h, result, aerr)
	return result, aerr
}

func (g *Gateway) run(ctx context.Context, span trace.Span, h *handling) (*Result, *ActionError) {
	req := h.req
	enter := func(s Stage) { span.AddEvent(string(s)) }

	enter(StageAuthorizing)
	desc, err := g.registry.Lookup(req.Action)
	if err != nil {
		return nil, g.fail(h, err)
	}
	h.desc = desc
	h.cmd = &Command{Action: desc.Name, ResourceID: req.ResourceID, Params: NoParams{}}
	if err := g.authorizer.Authorize(ctx, req.Principal, desc); err != nil {
		return nil, g.fail(h, err)
	}

	enter(StageFetching)
	fetchCtx, cancelFetch := context.WithTimeout(ctx, g.timeout)
	inst, err := g.store.Get(fetchCtx, req.ResourceID)
	cancelFetch()
	if err != nil {
		return nil, g.fail(h, err)
	}
	h.inst = inst

	enter(StageValidating)
	cmd, err := Validate(desc, inst.ID, req.Body)
	if err != nil {
		return nil, g.fail(h, err)
	}
	h.cmd = cmd
	if p, ok := cmd.Params.(BackupParams); ok && g.quota != nil {
		if err := g.quota.CheckMetadataQuota(ctx, p.Metadata); err != nil {
			return nil, g.fail(h, err)
		}
	}

	enter(StageGuarding)
	if !desc.BypassGuard {
		if err := CheckState(desc, inst.ID, inst.VMState); err != nil {
			return nil, g.fail(h, err)
		}
	}

	enter(StageDelegating)
	delegateCtx, cancelDelegate := context.WithTimeout(ctx, g.timeout)
	defer cancelDelegate()
	g.metrics.delegationStarted()
	outcome, err := g.adapter.Execute(delegateCtx, cmd, inst)
	g.metrics.delegationFinished()
	if err != nil {
		return nil, g.fail(h, err)
	}
	if p, ok := cmd.Params.(ResetStateParams); ok {
		g.metrics.stateOverridden()
		g.logger.Warn("forced vm_state override",
			"action", desc.Name,
			"resource", inst.ID,
			"requestID", req.RequestID,
			"actor", req.Principal.User,
			"priorState", inst.VMState,
			"priorTaskState", inst.TaskState,
			"newState", p.State)
	}

	enter(StageReporting)
	result := &Result{
		RequestID:   req.RequestID,
		Action:      desc.Name,
		ResourceID:  inst.ID,
		Status:      outcome.Status,
		Diagnostics: outcome.Diagnostics,
	}
	if outcome.BackupImageID != "" {
		result.Location = g.baseURL + "/images/" + outcome.BackupImageID
	}
	return result, nil
}

// fail classifies err and logs it. Causes that the classifier hides from the
// caller are logged at error level.
func (g *Gateway) fail(h *handling, err error) *ActionError {
	cmd := h.cmd
	if cmd == nil {
		cmd = &Command{Action: h.req.Action, ResourceID: h.req.ResourceID}
	}
	aerr := Classify(h.desc, cmd, err)

	attrs := []any{
		"action", h.req.Action,
		"resource", h.req.ResourceID,
		"requestID", h.req.RequestID,
		"actor", h.req.Principal.User,
		"kind", aerr.Kind,
	}
	switch {
	case aerr.Kind == KindUnprocessable || aerr.Reason == "operation_failed":
		g.logger.Error("admin action failed", append(attrs, "error", err)...)
	default:
		g.logger.Info("admin action rejected", append(attrs, "message", aerr.Message)...)
	}
	return aerr
}

// record writes the history entry. Failures are logged and never change the
// response. Requests for unknown actions are not recorded.
func (g *Gateway) record(ctx context.Context, h *handling, result *Result, aerr *ActionError) {
	if g.recorder == nil || h.desc == nil {
		return
	}
	rec := &InstanceActionRecord{
		ID:         uuid.NewString(),
		RequestID:  h.req.RequestID,
		InstanceID: h.req.ResourceID,
		Action:     string(h.desc.Name),
		UserID:     h.req.Principal.User,
		Role:       string(h.req.Principal.Role),
		StartTime:  h.start,
		FinishTime: g.now(),
	}
	if h.inst != nil {
		rec.PriorState = string(h.inst.VMState)
	}
	if h.cmd != nil {
		rec.Params = historyParams(h.cmd.Params)
	}
	if aerr != nil {
		rec.Outcome = "error"
		rec.ErrorKind = string(aerr.Kind)
		rec.Message = aerr.Message
		rec.StatusCode = aerr.HTTPStatus()
	} else {
		rec.Outcome = string(result.Status)
		rec.StatusCode = result.HTTPStatus()
	}

	if err := g.recorder.Append(context.WithoutCancel(ctx), rec); err != nil {
		g.logger.Warn("failed to record action history",
			"action", h.desc.Name,
			"resource", h.req.ResourceID,
			"requestID", h.req.RequestID,
			"error", err)
	}
}
