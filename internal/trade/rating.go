package trade

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Clark-Hu/trueque/internal/domain"
	"github.com/Clark-Hu/trueque/internal/repository"
)

// Rate records raterID's score for the counterparty of a finished trade and
// folds it into the counterparty's aggregate.
func (s *Service) Rate(ctx context.Context, rawTradeID, raterID string, value int) (r domain.Rating, err error) {
	ctx, done := s.startOp(ctx, "rate", attribute.Int("trade.rating", value))
	defer done(&err)

	id, err := parseID(rawTradeID, "trade id")
	if err != nil {
		return domain.Rating{}, err
	}
	if err := domain.ValidateRatingValue(value); err != nil {
		return domain.Rating{}, err
	}

	unlock := s.locks.lock(id)
	defer unlock()

	t, err := s.load(ctx, id)
	if err != nil {
		return domain.Rating{}, err
	}
	r, err = t.Rate(raterID, value, s.now())
	if err != nil {
		return domain.Rating{}, err
	}
	if err := s.trades.AddRating(ctx, id, r); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return domain.Rating{}, domain.Errorf(domain.CodeAlreadyRated, "trade already rated by this user")
		}
		return domain.Rating{}, domain.Unavailable("add rating", err)
	}
	s.metrics.Rated()

	s.sideEffect(ctx, "rating_aggregate", id, func(ctx context.Context) error {
		_, err := s.users.ApplyRating(ctx, r.To, r.Value)
		return err
	})
	return r, nil
}
