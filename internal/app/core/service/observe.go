package service

import (
	"context"
	"time"
)

// ObservationHooks captures optional callbacks bracketing a single
// operation, used to feed execution lifecycle events into a logger or an
// external collector without coupling the operation to either.
type ObservationHooks struct {
	OnStart    func(ctx context.Context, meta map[string]string)
	OnComplete func(ctx context.Context, meta map[string]string, err error, duration time.Duration)
}

// NoopObservationHooks provides a safe default.
var NoopObservationHooks = ObservationHooks{}

// StartObservation triggers OnStart and returns a completion callback for
// OnComplete. meta is shared by reference between the two calls, so a
// caller may enrich it (e.g. with a final status) between calling
// StartObservation and invoking the returned func.
func StartObservation(ctx context.Context, hooks ObservationHooks, meta map[string]string) func(error) {
	if hooks.OnStart != nil {
		hooks.OnStart(ctx, meta)
	}
	start := time.Now()
	return func(err error) {
		if hooks.OnComplete != nil {
			hooks.OnComplete(ctx, meta, err, time.Since(start))
		}
	}
}

// DispatchHooks names ObservationHooks as used by the execution dispatcher,
// which brackets an execution's full run from submit to terminal outcome.
type DispatchHooks = ObservationHooks

// NoopDispatchHooks provides a safe default for dispatchers.
var NoopDispatchHooks = NoopObservationHooks

// StartDispatch brackets one dispatched execution: it fires OnStart
// immediately and returns the completion callback the dispatcher invokes
// once that execution reaches a terminal status.
func StartDispatch(ctx context.Context, hooks DispatchHooks, meta map[string]string) func(error) {
	return StartObservation(ctx, hooks, meta)
}
