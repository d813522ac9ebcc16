package domain

import (
	"math"
	"time"
)

const (
	MinRating = 1
	MaxRating = 5
)

// RatingAggregate is a user's running rating summary.
type RatingAggregate struct {
	UserID  string
	Count   int64
	Total   int64
	Average float64
}

// Add folds one more rating into the aggregate.
func (a RatingAggregate) Add(value int) RatingAggregate {
	a.Count++
	a.Total += int64(value)
	a.Average = RoundAverage(a.Total, a.Count)
	return a
}

// RoundAverage returns total/count rounded to two decimals, or 0 without ratings.
func RoundAverage(total, count int64) float64 {
	if count == 0 {
		return 0
	}
	return math.Round(float64(total)/float64(count)*100) / 100
}

// ValidateRatingValue rejects scores outside [MinRating, MaxRating].
func ValidateRatingValue(value int) error {
	if value < MinRating || value > MaxRating {
		return Errorf(CodeBadRating, "rating must be an integer between %d and %d", MinRating, MaxRating)
	}
	return nil
}

// HasRated reports whether userID already rated this trade.
func (t Trade) HasRated(userID string) bool {
	for _, r := range t.ratings {
		if r.By == userID {
			return true
		}
	}
	return false
}

// Rate records raterID's score for the counterparty.
func (t *Trade) Rate(raterID string, value int, at time.Time) (Rating, error) {
	if err := ValidateRatingValue(value); err != nil {
		return Rating{}, err
	}
	if t.Status != StatusFinished {
		return Rating{}, Errorf(CodeBadState, "only finished trades can be rated")
	}
	if !t.IsParticipant(raterID) {
		return Rating{}, Errorf(CodeForbidden, "not a participant of trade %s", t.ID)
	}
	if t.HasRated(raterID) {
		return Rating{}, Errorf(CodeAlreadyRated, "trade already rated by this user")
	}
	r := Rating{By: raterID, To: t.Counterparty(raterID), Value: value, At: at}
	t.ratings = append(t.ratings[:len(t.ratings):len(t.ratings)], r)
	t.UpdatedAt = at
	return r, nil
}
