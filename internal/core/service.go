// Package core implements the transactional service layer over the domain
// persistence interfaces: catalog management, value state transitions,
// batch reconciliation, aggregation, and permission filtering.
package core

import (
	"context"

	"kpicore/internal/infra/persistence/memory"
	"kpicore/pkg/domain"
)

// Service exposes higher-level transactional operations over the KPI schema.
type Service struct {
	store    PersistentStore
	clock    Clock
	logger   Logger
	metrics  MetricsRecorder
	tracer   Tracer
	audit    AuditRecorder
	notifier PaletteNotifier
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...ServiceOption) *Service {
	options := defaultServiceOptions()
	for _, opt := range opts {
		opt(&options)
	}
	return &Service{
		store:    store,
		clock:    options.clock,
		logger:   options.logger,
		metrics:  options.metrics,
		tracer:   options.tracer,
		audit:    options.audit,
		notifier: options.notifier,
	}
}

// NewInMemoryService creates a service and in-memory store with the given rules engine.
func NewInMemoryService(engine *RulesEngine, opts ...ServiceOption) *Service {
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	return NewService(memory.NewStore(engine), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore {
	return s.store
}

// run wraps a service operation with tracing, metrics, logging, and audit.
func (s *Service) run(ctx context.Context, access *AccessContext, operation string, fn func(ctx context.Context) error) error {
	ctx, span := s.tracer.Start(ctx, operation)
	started := s.clock.Now()
	err := fn(ctx)
	duration := s.clock.Now().Sub(started)
	span.End(err)
	s.metrics.Observe(ctx, operation, err == nil, duration)
	if err != nil {
		s.logger.Error("operation failed", "operation", operation, "error", err)
	} else {
		s.logger.Debug("operation completed", "operation", operation, "duration", duration)
	}
	entry := AuditEntry{
		Operation:  operation,
		Actor:      actorFor(access),
		Success:    err == nil,
		Duration:   duration,
		OccurredAt: started,
	}
	if err != nil {
		entry.Error = err.Error()
	}
	if auditErr := s.audit.Record(ctx, entry); auditErr != nil {
		s.logger.Warn("audit record failed", "operation", operation, "error", auditErr)
	}
	return err
}

func actorFor(access *AccessContext) string {
	if access == nil || access.Claims == nil {
		return ""
	}
	tokens := access.Tokens()
	if len(tokens) == 0 {
		return ""
	}
	return tokens[0]
}

// requireAction checks the caller's capability on a specific KPI before a
// mutating operation proceeds. Internal, unauthenticated, and admin callers
// pass unconditionally.
func requireAction(view TransactionView, access *AccessContext, kpiID int64, action AccessAction) error {
	if securityDisabled() || access.Bypasses() {
		return nil
	}
	tokens := access.FilterTokens()
	if len(tokens) == 0 {
		return domain.AuthorizationError{}
	}
	allowed := map[string]bool{}
	for _, token := range tokens {
		allowed[token] = true
	}
	for _, perm := range view.ListPermissions() {
		if perm.KPIID != kpiID || !allowed[perm.Token] {
			continue
		}
		if perm.Allows(action) {
			return nil
		}
	}
	return domain.AuthorizationError{}
}

// visibleKPIs filters definitions to the ones the caller may touch with the
// capability recorded on the access context. The one-shot disable flag
// suppresses filtering for a single call.
func visibleKPIs(view TransactionView, access *AccessContext) []KPI {
	kpis := view.ListKPIs()
	if access.ConsumeDisabled() || securityDisabled() || access.Bypasses() {
		return kpis
	}
	allowed := map[string]bool{}
	for _, token := range access.FilterTokens() {
		allowed[token] = true
	}
	readable := map[int64]bool{}
	for _, perm := range view.ListPermissions() {
		if allowed[perm.Token] && perm.Allows(access.Action) {
			readable[perm.KPIID] = true
		}
	}
	out := kpis[:0]
	for _, kpi := range kpis {
		if readable[kpi.ID] {
			out = append(out, kpi)
		}
	}
	return out
}
