package trade

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Clark-Hu/trueque/internal/domain"
	"github.com/Clark-Hu/trueque/internal/metrics"
	"github.com/Clark-Hu/trueque/internal/posts"
	"github.com/Clark-Hu/trueque/internal/repository"
)

const (
	// DefaultLimit is the page size used when the caller does not pick one.
	DefaultLimit = 10
	// MaxLimit caps trade and notification pages.
	MaxLimit = 50

	maxSaveAttempts          = 3
	defaultSideEffectTimeout = 3 * time.Second
)

// TradeStore persists trades. Save must fail with repository.ErrConflict when
// the stored version differs from the trade's Version, and AddRating with
// repository.ErrDuplicate on a second rating by the same user.
type TradeStore interface {
	Create(ctx context.Context, t domain.Trade) error
	GetByID(ctx context.Context, id string) (domain.Trade, error)
	List(ctx context.Context, filters repository.TradeListFilters) ([]domain.Trade, error)
	Count(ctx context.Context, filters repository.TradeListFilters) (int, error)
	Save(ctx context.Context, t domain.Trade, entry domain.HistoryEntry) (domain.Trade, error)
	AttachChat(ctx context.Context, tradeID, chatID string) error
	AddRating(ctx context.Context, tradeID string, rating domain.Rating) error
}

// ChatThreads seeds chat threads between participants.
type ChatThreads interface {
	GetOrCreate(ctx context.Context, userA, userB string) (string, error)
	AppendSystemMessage(ctx context.Context, chatID, senderID, text string) (domain.ChatMessage, error)
}

// Notifier queues user notifications.
type Notifier interface {
	Enqueue(ctx context.Context, n domain.Notification) (domain.Notification, error)
	ListForUser(ctx context.Context, userID string, limit int) ([]domain.Notification, error)
}

// RatingAggregates maintains per-user rating summaries.
type RatingAggregates interface {
	ApplyRating(ctx context.Context, userID string, value int) (domain.RatingAggregate, error)
	GetRating(ctx context.Context, userID string) (domain.RatingAggregate, error)
}

// Deps lists the collaborators of a Service. Logger, Metrics, Clock, NewID
// and SideEffectTimeout are optional.
type Deps struct {
	Trades            TradeStore
	Posts             posts.Resolver
	Chats             ChatThreads
	Notifications     Notifier
	Users             RatingAggregates
	Logger            *log.Logger
	Metrics           *metrics.Metrics
	Clock             func() time.Time
	NewID             func() string
	SideEffectTimeout time.Duration
}

// Service runs the negotiation state machine and the rating ledger.
type Service struct {
	trades            TradeStore
	posts             posts.Resolver
	chats             ChatThreads
	notifications     Notifier
	users             RatingAggregates
	logger            *log.Logger
	metrics           *metrics.Metrics
	tracer            trace.Tracer
	clock             func() time.Time
	newID             func() string
	sideEffectTimeout time.Duration

	locks tradeLocks
}

// NewService wires a Service.
func NewService(d Deps) *Service {
	s := &Service{
		trades:            d.Trades,
		posts:             d.Posts,
		chats:             d.Chats,
		notifications:     d.Notifications,
		users:             d.Users,
		logger:            d.Logger,
		metrics:           d.Metrics,
		tracer:            otel.Tracer("github.com/Clark-Hu/trueque/internal/trade"),
		clock:             d.Clock,
		newID:             d.NewID,
		sideEffectTimeout: d.SideEffectTimeout,
	}
	if s.logger == nil {
		s.logger = log.Default()
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	if s.sideEffectTimeout <= 0 {
		s.sideEffectTimeout = defaultSideEffectTimeout
	}
	return s
}

// now is truncated to the store's timestamp precision.
func (s *Service) now() time.Time {
	return s.clock().UTC().Truncate(time.Microsecond)
}

func (s *Service) startOp(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(*error)) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "trade."+op, trace.WithAttributes(attrs...))
	return ctx, func(errp *error) {
		var err error
		if errp != nil {
			err = *errp
		}
		if err != nil {
			if code := domain.CodeOf(err); code != "" {
				span.SetAttributes(attribute.String("trade.error_code", string(code)))
			} else {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
		}
		span.End()
		s.metrics.ObserveOp(op, start, err)
	}
}

func parseID(raw, field string) (string, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", domain.Errorf(domain.CodeBadID, "%s is not a valid id", field)
	}
	return id.String(), nil
}

// load reads a trade, translating a missing row into NOT_FOUND.
func (s *Service) load(ctx context.Context, id string) (domain.Trade, error) {
	t, err := s.trades.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Trade{}, domain.Errorf(domain.CodeNotFound, "trade %s not found", id)
		}
		return domain.Trade{}, domain.Unavailable("load trade", err)
	}
	return t, nil
}

// mutate applies fn to the current state of a trade and persists the result
// with a version check. A lost race reloads and re-evaluates fn, so a
// transition that is no longer valid ends in its domain error.
func (s *Service) mutate(ctx context.Context, id string, fn func(*domain.Trade) (domain.HistoryEntry, error)) (domain.Trade, domain.HistoryEntry, error) {
	unlock := s.locks.lock(id)
	defer unlock()

	for attempt := 1; ; attempt++ {
		t, err := s.load(ctx, id)
		if err != nil {
			return domain.Trade{}, domain.HistoryEntry{}, err
		}
		entry, err := fn(&t)
		if err != nil {
			return domain.Trade{}, domain.HistoryEntry{}, err
		}
		saved, err := s.trades.Save(ctx, t, entry)
		if err == nil {
			return saved, entry, nil
		}
		if !errors.Is(err, repository.ErrConflict) {
			return domain.Trade{}, domain.HistoryEntry{}, domain.Unavailable("save trade", err)
		}
		s.metrics.Conflict()
		if attempt == maxSaveAttempts {
			return domain.Trade{}, domain.HistoryEntry{}, domain.Unavailable("save trade", err)
		}
		s.logger.Printf("trade: version conflict on %s, retrying (%d/%d)", id, attempt, maxSaveAttempts)
	}
}

// sideEffect runs fn after a committed write. It gets its own deadline and
// survives cancellation of the request; failures are logged and counted.
func (s *Service) sideEffect(ctx context.Context, effect, tradeID string, fn func(context.Context) error) bool {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.sideEffectTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		s.logger.Printf("trade: %s failed for %s: %v", effect, tradeID, err)
		s.metrics.SideEffectFailed(effect)
		return false
	}
	return true
}

func (s *Service) notify(ctx context.Context, tradeID string, n domain.Notification) {
	if s.notifications == nil {
		return
	}
	s.sideEffect(ctx, "notify", tradeID, func(ctx context.Context) error {
		_, err := s.notifications.Enqueue(ctx, n)
		return err
	})
}

// UserRating returns the rating aggregate of a user.
func (s *Service) UserRating(ctx context.Context, rawUserID string) (agg domain.RatingAggregate, err error) {
	ctx, done := s.startOp(ctx, "user_rating")
	defer done(&err)

	userID, err := parseID(rawUserID, "user id")
	if err != nil {
		return domain.RatingAggregate{}, err
	}
	agg, err = s.users.GetRating(ctx, userID)
	if err != nil {
		return domain.RatingAggregate{}, domain.Unavailable("get rating", err)
	}
	return agg, nil
}

// Notifications lists the newest notifications addressed to userID.
func (s *Service) Notifications(ctx context.Context, userID string, limit int) (items []domain.Notification, err error) {
	ctx, done := s.startOp(ctx, "notifications")
	defer done(&err)

	items, err = s.notifications.ListForUser(ctx, userID, clampLimit(limit))
	if err != nil {
		return nil, domain.Unavailable("list notifications", err)
	}
	return items, nil
}

func clampLimit(limit int) int {
	switch {
	case limit < 1:
		return 1
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}
