package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/steveyegge/rmimport/internal/target"
	"github.com/steveyegge/rmimport/internal/types"
)

const targetScopeName = "github.com/steveyegge/rmimport/target"

// InstrumentedTarget wraps target.Target with OTel tracing and metrics.
// Every method gets a span and is counted in rmimport.target.* metrics.
// Use WrapTarget to create one; it returns the original target unchanged
// when telemetry is disabled.
type InstrumentedTarget struct {
	inner     target.Target
	tracer    trace.Tracer
	ops       metric.Int64Counter
	dur       metric.Float64Histogram
	errs      metric.Int64Counter
	committed metric.Int64Counter
}

var _ target.Target = (*InstrumentedTarget)(nil)

// WrapTarget returns t decorated with OTel instrumentation.
// When telemetry is disabled, t is returned as-is with zero overhead.
func WrapTarget(t target.Target) target.Target {
	if !Enabled() {
		return t
	}
	return newInstrumentedTarget(t)
}

func newInstrumentedTarget(t target.Target) *InstrumentedTarget {
	m := Meter(targetScopeName)
	ops, _ := m.Int64Counter("rmimport.target.operations",
		metric.WithDescription("Total target operations executed"),
	)
	dur, _ := m.Float64Histogram("rmimport.target.operation.duration",
		metric.WithDescription("Target operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	errs, _ := m.Int64Counter("rmimport.target.errors",
		metric.WithDescription("Total target operation errors"),
	)
	committed, _ := m.Int64Counter("rmimport.target.committed_issues",
		metric.WithDescription("Issues written by successful commits"),
	)
	return &InstrumentedTarget{
		inner:     t,
		tracer:    Tracer(targetScopeName),
		ops:       ops,
		dur:       dur,
		errs:      errs,
		committed: committed,
	}
}

// op starts a span and records a metric for the named target operation.
func (s *InstrumentedTarget) op(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span, time.Time) {
	all := append([]attribute.KeyValue{attribute.String("target.operation", name)}, attrs...)
	ctx, span := s.tracer.Start(ctx, "target."+name,
		trace.WithAttributes(all...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	s.ops.Add(ctx, 1, metric.WithAttributes(all...))
	return ctx, span, time.Now()
}

// done ends the span, records duration and optional error.
func (s *InstrumentedTarget) done(ctx context.Context, span trace.Span, start time.Time, err error, attrs ...attribute.KeyValue) {
	ms := float64(time.Since(start).Milliseconds())
	s.dur.Record(ctx, ms, metric.WithAttributes(attrs...))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.errs.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	span.End()
}

func (s *InstrumentedTarget) IssueSchema(ctx context.Context) (*types.Schema, error) {
	ctx, span, t := s.op(ctx, "IssueSchema")
	v, err := s.inner.IssueSchema(ctx)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedTarget) Milestones(ctx context.Context, projectID int64) ([]*types.Milestone, error) {
	attrs := []attribute.KeyValue{attribute.Int64("target.project.id", projectID)}
	ctx, span, t := s.op(ctx, "Milestones", attrs...)
	v, err := s.inner.Milestones(ctx, projectID)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedTarget) FindByVerifiedEmail(ctx context.Context, email string) (*types.User, error) {
	ctx, span, t := s.op(ctx, "FindByVerifiedEmail")
	v, err := s.inner.FindByVerifiedEmail(ctx, email)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedTarget) GroupExists(ctx context.Context, name string) (bool, error) {
	attrs := []attribute.KeyValue{attribute.String("target.group", name)}
	ctx, span, t := s.op(ctx, "GroupExists", attrs...)
	v, err := s.inner.GroupExists(ctx, name)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedTarget) IssueExists(ctx context.Context, projectID, number int64) (bool, error) {
	attrs := []attribute.KeyValue{
		attribute.Int64("target.project.id", projectID),
		attribute.Int64("target.issue.number", number),
	}
	ctx, span, t := s.op(ctx, "IssueExists", attrs...)
	v, err := s.inner.IssueExists(ctx, projectID, number)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedTarget) MaxIssueNumber(ctx context.Context, projectID int64) (int64, error) {
	attrs := []attribute.KeyValue{attribute.Int64("target.project.id", projectID)}
	ctx, span, t := s.op(ctx, "MaxIssueNumber", attrs...)
	v, err := s.inner.MaxIssueNumber(ctx, projectID)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedTarget) FindLinkSpec(ctx context.Context, name string) (*types.LinkSpec, error) {
	attrs := []attribute.KeyValue{attribute.String("target.link_spec", name)}
	ctx, span, t := s.op(ctx, "FindLinkSpec", attrs...)
	v, err := s.inner.FindLinkSpec(ctx, name)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedTarget) Commit(ctx context.Context, b *target.Batch) error {
	attrs := []attribute.KeyValue{
		attribute.Int64("target.project.id", b.ProjectID),
		attribute.Int("target.issue.count", len(b.Issues)),
		attribute.Int("target.link.count", len(b.Links)),
		attribute.Int("target.user.count", len(b.Users)),
	}
	ctx, span, t := s.op(ctx, "Commit", attrs...)
	err := s.inner.Commit(ctx, b)
	if err == nil {
		s.committed.Add(ctx, int64(len(b.Issues)))
	}
	s.done(ctx, span, t, err, attrs...)
	return err
}
