package app

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"innovation/engine/internal/actor"
	"innovation/engine/internal/config"
	"innovation/engine/internal/events"
	"innovation/engine/internal/lifecycle"
	"innovation/engine/internal/projection"
	"innovation/engine/internal/store"
)

type Publisher interface {
	Publish(context.Context, events.Event) error
}

type ProjectionCache interface {
	Get(ctx context.Context, innovationID string) (projection.Lookup, error)
	Set(ctx context.Context, entry projection.Entry, generation int64) (bool, error)
	Invalidate(ctx context.Context, innovationID string) error
	Rebuild(ctx context.Context, innovationIDs []string, parallelism int, compute projection.ComputeFunc) (int, error)
}

// Service is the support lifecycle engine. Every mutating method runs in one
// transaction; events and cache invalidations go out only after commit.
type Service struct {
	cfg         config.Config
	store       dataStore
	publisher   Publisher
	projections ProjectionCache
	log         zerolog.Logger
	now         func() time.Time

	shareHandlers []shareHandler
}

type Option func(*Service)

func WithPublisher(publisher Publisher) Option {
	return func(s *Service) { s.publisher = publisher }
}

func WithProjectionCache(cache ProjectionCache) Option {
	return func(s *Service) { s.projections = cache }
}

func WithLogger(log zerolog.Logger) Option {
	return func(s *Service) { s.log = log }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(cfg config.Config, pg *store.PostgresStore, opts ...Option) *Service {
	return newService(cfg, postgresData{PostgresStore: pg}, opts...)
}

func newService(cfg config.Config, data dataStore, opts ...Option) *Service {
	s := &Service{
		cfg:   cfg,
		store: data,
		log:   zerolog.Nop(),
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	s.shareHandlers = []shareHandler{appendShareLog}
	return s
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// outbox collects what to announce once the transaction commits.
type outbox struct {
	events  []events.Event
	touched map[string]struct{}
}

func (o *outbox) emit(event events.Event) {
	o.events = append(o.events, event)
	o.touch(event.InnovationID)
}

func (o *outbox) touch(innovationID string) {
	if o.touched == nil {
		o.touched = map[string]struct{}{}
	}
	o.touched[innovationID] = struct{}{}
}

// inTx runs fn in one transaction and flushes its outbox after commit.
func (s *Service) inTx(ctx context.Context, fn func(q queries, out *outbox) error) error {
	out := &outbox{}
	err := s.store.InTx(ctx, func(q queries) error {
		*out = outbox{}
		return fn(q, out)
	})
	if err != nil {
		return err
	}
	s.flush(ctx, out)
	return nil
}

func (s *Service) flush(ctx context.Context, out *outbox) {
	if s.publisher != nil {
		for _, event := range out.events {
			if err := s.publisher.Publish(ctx, event); err != nil {
				s.log.Warn().Err(err).
					Str("event_type", string(event.Type)).
					Str("innovation_id", event.InnovationID).
					Msg("publish event failed")
			}
		}
	}
	if s.projections != nil {
		for innovationID := range out.touched {
			if err := s.projections.Invalidate(ctx, innovationID); err != nil {
				s.log.Warn().Err(err).Str("innovation_id", innovationID).Msg("invalidate projection failed")
			}
		}
	}
}

func validateActor(a actor.Context) error {
	if err := a.Validate(); err != nil {
		return validation("%v", err)
	}
	return nil
}

// recordHistory closes the support's open history interval and opens one
// matching its current state.
func recordHistory(ctx context.Context, q queries, support store.SupportRecord, at time.Time, roleID string) error {
	err := q.AppendSupportHistory(ctx, store.SupportHistoryEntry{
		SupportID:         support.ID,
		Status:            support.Status,
		IsMostRecent:      support.IsMostRecent,
		MajorAssessmentID: support.MajorAssessmentID,
		CloseReason:       support.CloseReason,
		ChangedByRole:     roleID,
		ValidFrom:         at,
	})
	if err != nil {
		return mapStoreError(err, "support history")
	}
	return nil
}

func appendSupportEvent(ctx context.Context, q queries, event store.SupportEvent) error {
	if err := q.InsertSupportEvent(ctx, event); err != nil {
		return mapStoreError(err, "support event")
	}
	return nil
}

func ptr[T any](value T) *T {
	return &value
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}

func isClosedInnovation(status lifecycle.InnovationStatus) bool {
	return status == lifecycle.InnovationArchived || status == lifecycle.InnovationWithdrawn
}
