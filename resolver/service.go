package resolver

import (
	"context"
	"fmt"
	"time"

	"github.com/liamcoop/linker/internal/logger"
	"github.com/liamcoop/linker/internal/metrics"
	"github.com/liamcoop/linker/provider"
	"github.com/liamcoop/linker/rules"
)

// Service resolves queries against the snapshot of a Provider
type Service struct {
	provider provider.Provider
	matcher  *rules.Matcher
	origin   string
}

// NewService creates a Service. origin is used when a request does not
// supply its own.
func NewService(p provider.Provider, origin string) *Service {
	return &Service{
		provider: p,
		matcher:  rules.NewMatcher(),
		origin:   origin,
	}
}

// Resolve loads a snapshot and evaluates q. An error is returned only when
// the snapshot cannot be loaded; resolution itself never fails.
func (s *Service) Resolve(ctx context.Context, q, origin string, params map[string]string) (Evaluation, error) {
	start := time.Now()

	snapshot, err := s.provider.Snapshot(ctx)
	if err != nil {
		return Evaluation{}, fmt.Errorf("failed to load snapshot: %w", err)
	}

	if origin == "" {
		origin = s.origin
	}

	eval := Evaluate(q, snapshot.Conditions, snapshot.Tables, Options{
		Origin:  origin,
		Params:  params,
		Matcher: s.matcher,
	})

	kind := ResultKind(eval.Result)
	metrics.Resolutions.WithLabelValues(moduleLabel(eval.Module()), kind).Inc()
	metrics.ResolutionDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	metrics.ChainDepth.Observe(float64(eval.Hops()))

	for _, step := range eval.Steps {
		logger.Trace("Resolution step", "query", q, "depth", StepDepth(step), "step", Describe(step))
	}

	if f, ok := eval.Result.(Failure); ok {
		logger.Warn("Resolution failed", "query", q, "message", f.Message, "steps", len(eval.Steps))
	} else {
		logger.Debug("Query resolved", "query", q, "result", kind, "hops", eval.Hops())
	}

	return eval, nil
}

// moduleLabel bounds the metric label to known modules
func moduleLabel(module string) string {
	switch module {
	case ModuleGo, ModuleFind:
		return module
	case "":
		return "none"
	default:
		return "other"
	}
}
