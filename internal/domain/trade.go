package domain

import (
	"strings"
	"time"
)

// Status is the negotiation state of a trade.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCountered Status = "countered"
	StatusAccepted  Status = "accepted"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
	StatusFinished  Status = "finished"
)

// ParseStatus validates a status coming from outside the domain.
func ParseStatus(raw string) (Status, bool) {
	switch s := Status(raw); s {
	case StatusPending, StatusCountered, StatusAccepted, StatusRejected, StatusCancelled, StatusFinished:
		return s, true
	}
	return "", false
}

// Terminal reports whether no further transition is possible from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusRejected, StatusCancelled, StatusFinished:
		return true
	}
	return false
}

// HistoryAction tags a history entry.
type HistoryAction string

const (
	HistoryCreated   HistoryAction = "created"
	HistoryCountered HistoryAction = "countered"
	HistoryAccepted  HistoryAction = "accepted"
	HistoryRejected  HistoryAction = "rejected"
	HistoryCancelled HistoryAction = "cancelled"
	HistoryFinished  HistoryAction = "finished"
)

// HistoryEntry is one immutable audit record. From is empty for creation.
type HistoryEntry struct {
	At     time.Time
	By     string
	Action HistoryAction
	From   Status
	To     Status
	Note   string
}

// Rating is a participant's score for the counterparty of a finished trade.
type Rating struct {
	By    string
	To    string
	Value int
	At    time.Time
}

// Trade is the negotiation record between a proposer and a receiver.
type Trade struct {
	ID              string
	ProposerID      string
	ReceiverID      string
	PostRequestedID string
	PostOfferedID   *string
	ItemsText       string
	Status          Status
	ChatID          string
	MeetingArea     string
	Version         int
	CreatedAt       time.Time
	UpdatedAt       time.Time

	history []HistoryEntry
	ratings []Rating
}

// Proposal carries the inputs of a new trade once posts have been resolved.
type Proposal struct {
	ID              string
	ProposerID      string
	ReceiverID      string
	PostRequestedID string
	PostOfferedID   *string
	ItemsText       string
	MeetingArea     string
}

// NewTrade validates a proposal and returns a pending trade with its
// created entry.
func NewTrade(p Proposal, at time.Time) (Trade, error) {
	if p.ProposerID == p.ReceiverID {
		return Trade{}, Errorf(CodeSelfTradeForbidden, "cannot propose a trade on your own post")
	}
	if p.PostOfferedID != nil && *p.PostOfferedID == p.PostRequestedID {
		return Trade{}, Errorf(CodeSamePost, "offered and requested post must differ")
	}
	t := Trade{
		ID:              p.ID,
		ProposerID:      p.ProposerID,
		ReceiverID:      p.ReceiverID,
		PostRequestedID: p.PostRequestedID,
		PostOfferedID:   p.PostOfferedID,
		ItemsText:       strings.TrimSpace(p.ItemsText),
		Status:          StatusPending,
		MeetingArea:     p.MeetingArea,
		CreatedAt:       at,
		UpdatedAt:       at,
	}
	if !t.hasOffer() {
		return Trade{}, Errorf(CodeOfferRequired, "itemsText or postOfferedId is required")
	}
	t.history = []HistoryEntry{{At: at, By: p.ProposerID, Action: HistoryCreated, To: StatusPending}}
	return t, nil
}

// RestoreTrade rebuilds a trade read from storage. The slices are copied.
func RestoreTrade(t Trade, history []HistoryEntry, ratings []Rating) Trade {
	t.history = append([]HistoryEntry(nil), history...)
	t.ratings = append([]Rating(nil), ratings...)
	return t
}

// History returns a copy of the audit trail, oldest first.
func (t Trade) History() []HistoryEntry {
	return append([]HistoryEntry(nil), t.history...)
}

// LastEntry returns the most recent history entry.
func (t Trade) LastEntry() (HistoryEntry, bool) {
	if len(t.history) == 0 {
		return HistoryEntry{}, false
	}
	return t.history[len(t.history)-1], true
}

// Ratings returns a copy of the ratings recorded on the trade.
func (t Trade) Ratings() []Rating {
	return append([]Rating(nil), t.ratings...)
}

// IsParticipant reports whether userID is the proposer or the receiver.
func (t Trade) IsParticipant(userID string) bool {
	return userID != "" && (userID == t.ProposerID || userID == t.ReceiverID)
}

// Counterparty returns the other participant.
func (t Trade) Counterparty(userID string) string {
	if userID == t.ProposerID {
		return t.ReceiverID
	}
	return t.ProposerID
}

// Revise overwrites the offer of a trade. A nil argument leaves the field
// untouched; an empty itemsText clears it.
func (t *Trade) Revise(postOfferedID, itemsText *string) error {
	next := *t
	if postOfferedID != nil {
		if *postOfferedID == t.PostRequestedID {
			return Errorf(CodeSamePost, "offered and requested post must differ")
		}
		id := *postOfferedID
		next.PostOfferedID = &id
	}
	if itemsText != nil {
		next.ItemsText = strings.TrimSpace(*itemsText)
	}
	if !next.hasOffer() {
		return Errorf(CodeOfferRequired, "itemsText or postOfferedId is required")
	}
	t.PostOfferedID = next.PostOfferedID
	t.ItemsText = next.ItemsText
	return nil
}

func (t Trade) hasOffer() bool {
	return t.ItemsText != "" || (t.PostOfferedID != nil && *t.PostOfferedID != "")
}
