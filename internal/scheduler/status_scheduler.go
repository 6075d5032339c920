// Package scheduler ages tutorings forward as wall-clock time passes.
package scheduler

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	tutoringDomain "github.com/techbridge/service-tutoring/internal/domain/tutoring"
	"github.com/techbridge/service-tutoring/internal/events"
	"github.com/techbridge/service-tutoring/internal/platform/clock"
	"github.com/techbridge/service-tutoring/internal/platform/kafka"
)

// DefaultInterval is the sweep period when none is configured.
const DefaultInterval = 60 * time.Second

// Locker elects a single sweeping instance per tick.
type Locker interface {
	// Acquire returns true if this instance now holds the lock.
	Acquire(ctx context.Context) (bool, error)
	// Release gives the lock up if this instance still holds it.
	Release(ctx context.Context) error
}

// Publisher publishes CloudEvents. *kafka.Producer satisfies it.
type Publisher interface {
	PublishEvent(ctx context.Context, topic string, ce kafka.CloudEvent) error
}

// RuleResult is the outcome of one bulk rule within a tick.
type RuleResult struct {
	Rule     tutoringDomain.SweepRule
	Affected int64
}

// StatusScheduler periodically applies the time-driven transitions:
// ACCEPTED to IN_PROGRESS at start, IN_PROGRESS to COMPLETED at end, and
// CREATED to CANCELED at start.
type StatusScheduler struct {
	sweeper   tutoringDomain.Sweeper
	rules     []tutoringDomain.SweepRule
	locker    Locker
	publisher Publisher
	clock     clock.Clock
	interval  time.Duration
	tracer    trace.Tracer
	logger    *zap.Logger
}

// NewStatusScheduler creates a new StatusScheduler. locker and publisher may
// be nil: without a locker every instance sweeps, without a publisher no
// summary events are sent.
func NewStatusScheduler(
	sweeper tutoringDomain.Sweeper,
	locker Locker,
	publisher Publisher,
	clk clock.Clock,
	interval time.Duration,
	logger *zap.Logger,
) *StatusScheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &StatusScheduler{
		sweeper:   sweeper,
		rules:     tutoringDomain.SweepRules(),
		locker:    locker,
		publisher: publisher,
		clock:     clk,
		interval:  interval,
		tracer:    otel.Tracer("service-tutoring/scheduler"),
		logger:    logger.Named("status-scheduler"),
	}
}

// Start sweeps once immediately and then every interval until ctx is cancelled.
func (s *StatusScheduler) Start(ctx context.Context) {
	s.logger.Info("status scheduler started", zap.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.runTick(ctx)

		select {
		case <-ctx.Done():
			s.logger.Info("status scheduler stopped")
			return
		case <-ticker.C:
		}
	}
}

func (s *StatusScheduler) runTick(ctx context.Context) {
	if _, err := s.Tick(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("status sweep failed", zap.Error(err))
	}
}

// Tick runs every sweep rule once with a single reading of the clock. The
// first failing rule ends the tick; rules already applied stay applied and
// the remaining ones run on the next tick.
func (s *StatusScheduler) Tick(ctx context.Context) ([]RuleResult, error) {
	if s.locker != nil {
		acquired, err := s.locker.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		if !acquired {
			s.logger.Debug("sweep lock held by another instance")
			return nil, nil
		}
		defer func() {
			if err := s.locker.Release(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn("failed to release sweep lock", zap.Error(err))
			}
		}()
	}

	now := s.clock.Now()
	ctx, span := s.tracer.Start(ctx, "tutoring.sweep",
		trace.WithAttributes(attribute.String("sweep.now", now.Format(time.RFC3339))),
	)
	defer span.End()

	results := make([]RuleResult, 0, len(s.rules))
	for _, rule := range s.rules {
		affected, err := s.sweeper.ApplySweepRule(ctx, rule, now)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "sweep rule failed")
			return results, err
		}
		results = append(results, RuleResult{Rule: rule, Affected: affected})

		span.SetAttributes(attribute.Int64("sweep."+string(rule.Event), affected))
		if affected == 0 {
			continue
		}

		s.logger.Info("tutorings swept",
			zap.String("rule", string(rule.Event)),
			zap.String("from", string(rule.From)),
			zap.String("to", string(rule.To)),
			zap.Int64("affected", affected),
		)
		s.publishSwept(ctx, rule, affected, now)
	}
	return results, nil
}

func (s *StatusScheduler) publishSwept(ctx context.Context, rule tutoringDomain.SweepRule, affected int64, now time.Time) {
	if s.publisher == nil {
		return
	}

	ce, err := kafka.NewCloudEvent(events.Source, events.TutoringSwept, events.TutoringSweptEvent{
		Rule:     string(rule.Event),
		From:     string(rule.From),
		To:       string(rule.To),
		Affected: affected,
		SweptAt:  now,
	})
	if err != nil {
		s.logger.Error("failed to create cloud event", zap.Error(err))
		return
	}

	if err := s.publisher.PublishEvent(ctx, events.TopicTutoringEvents, ce.WithSubject(string(rule.Event))); err != nil {
		s.logger.Error("failed to publish event",
			zap.String("event_type", events.TutoringSwept),
			zap.Error(err),
		)
	}
}
