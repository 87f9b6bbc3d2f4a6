package orchestrator

import (
	"context"
	"sync"

	relayerrors "relay/internal/errors"
	"relay/internal/logging"
	"relay/internal/scheduler"
	"relay/internal/sse"
	"relay/internal/store"
)

// Registry creates and addresses Orchestrator instances by task key. It
// guarantees at most one live instance per key, which together with each
// instance's internal serialization gives every task record exactly one
// writer.
type Registry struct {
	config   Config
	store    store.StateStore
	agent    AgentClient
	notifier StatusNotifier
	cleanup  CleanupScheduler
	retry    relayerrors.RetryConfig
	logger   logging.Logger
	metrics  *Metrics

	onStreamError func(taskID string, event *sse.Event)
	onWipe        func(taskID string)

	mu        sync.Mutex
	instances map[string]*Orchestrator
}

// RegistryOption customizes a Registry.
type RegistryOption func(*Registry)

// WithRetryConfig overrides the retry policy used by WithRetry.
func WithRetryConfig(cfg relayerrors.RetryConfig) RegistryOption {
	return func(r *Registry) { r.retry = cfg }
}

// WithMetrics overrides the shared metrics instance (tests).
func WithMetrics(m *Metrics) RegistryOption {
	return func(r *Registry) { r.metrics = m }
}

// WithStreamErrorCallback receives informational error frames from every
// instance's stream loop.
func WithStreamErrorCallback(fn func(taskID string, event *sse.Event)) RegistryOption {
	return func(r *Registry) { r.onStreamError = fn }
}

// WithWipeCallback observes every completed cleanup wipe, e.g. so callers
// holding derived projections can drop them.
func WithWipeCallback(fn func(taskID string)) RegistryOption {
	return func(r *Registry) { r.onWipe = fn }
}

// NewRegistry wires the shared collaborators for all orchestrators.
func NewRegistry(cfg Config, st store.StateStore, agentClient AgentClient, notifier StatusNotifier, cleanup CleanupScheduler, logger logging.Logger, opts ...RegistryOption) *Registry {
	r := &Registry{
		config:    cfg.withDefaults(),
		store:     st,
		agent:     agentClient,
		notifier:  notifier,
		cleanup:   cleanup,
		retry:     relayerrors.DefaultRetryConfig(),
		logger:    logging.OrNop(logger),
		instances: make(map[string]*Orchestrator),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.metrics == nil {
		r.metrics = defaultMetrics()
	}
	return r
}

// Get returns the orchestrator addressed by taskID, creating it on first
// use. Creation is cheap; whether durable state exists is the instance's
// concern.
func (r *Registry) Get(taskID string) *Orchestrator {
	r.mu.Lock()
	defer r.mu.Unlock()
	if inst, ok := r.instances[taskID]; ok {
		return inst
	}
	inst := New(taskID, r.config, r.store, r.agent, r.notifier, r.cleanup, r.logger, r.metrics)
	inst.onStreamError = r.onStreamError
	r.instances[taskID] = inst
	return inst
}

// WithRetry resolves the orchestrator for taskID and invokes fn with
// bounded retry, absorbing transient addressing and transport errors.
// External call sites (creation, cancellation, event listing) go through
// this; the orchestrator's own outbound calls never do — they carry their
// own timeout and fatality semantics.
func (r *Registry) WithRetry(ctx context.Context, taskID string, fn func(ctx context.Context, inst *Orchestrator) error) error {
	return relayerrors.RetryWithLog(ctx, r.retry, func(ctx context.Context) error {
		return fn(ctx, r.Get(taskID))
	}, r.logger)
}

// CleanupExecutor adapts the registry to the scheduler's executor port:
// wipe the task's storage, then forget the instance so a later task reusing
// the key starts fresh.
func (r *Registry) CleanupExecutor() scheduler.Executor {
	return func(ctx context.Context, taskID string) error {
		if err := r.Get(taskID).Wipe(ctx); err != nil {
			return err
		}
		r.mu.Lock()
		delete(r.instances, taskID)
		r.mu.Unlock()
		if r.onWipe != nil {
			r.onWipe(taskID)
		}
		return nil
	}
}
