package trade

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Clark-Hu/trueque/internal/domain"
	"github.com/Clark-Hu/trueque/internal/repository"
)

// CreateInput carries a new proposal as received from the caller.
type CreateInput struct {
	PostRequestedID string
	PostOfferedID   *string
	ItemsText       string
	MeetingArea     string
}

// ListQuery selects one page of a user's trades.
type ListQuery struct {
	Role   string
	Status string
	Page   int
	Limit  int
}

// ListResult is one page of trades plus the unpaginated total.
type ListResult struct {
	Items []domain.Trade
	Page  int
	Limit int
	Total int
}

// Create opens a pending trade from proposerID on the requested post, then
// seeds the chat thread and notifies the receiver.
func (s *Service) Create(ctx context.Context, proposerID string, in CreateInput) (t domain.Trade, err error) {
	ctx, done := s.startOp(ctx, "create", attribute.String("trade.proposer", proposerID))
	defer done(&err)

	requestedID, err := parseID(strings.TrimSpace(in.PostRequestedID), "postRequestedId")
	if err != nil {
		return domain.Trade{}, err
	}
	var offeredID *string
	if in.PostOfferedID != nil && strings.TrimSpace(*in.PostOfferedID) != "" {
		id, err := parseID(strings.TrimSpace(*in.PostOfferedID), "postOfferedId")
		if err != nil {
			return domain.Trade{}, err
		}
		offeredID = &id
	}
	if offeredID != nil && *offeredID == requestedID {
		return domain.Trade{}, domain.Errorf(domain.CodeSamePost, "offered and requested post must differ")
	}

	requested, err := s.livePost(ctx, requestedID)
	if err != nil {
		return domain.Trade{}, err
	}
	if requested.OwnerID == "" {
		return domain.Trade{}, domain.Errorf(domain.CodeReqPostNoOwner, "post %s has no owner", requestedID)
	}
	if requested.OwnerID == proposerID {
		return domain.Trade{}, domain.Errorf(domain.CodeSelfTradeForbidden, "cannot propose a trade on your own post")
	}

	var offered *domain.PostInfo
	if offeredID != nil {
		info, err := s.ownedPost(ctx, *offeredID, proposerID)
		if err != nil {
			return domain.Trade{}, err
		}
		offered = &info
	}

	offeredBarrio := ""
	if offered != nil {
		offeredBarrio = offered.Barrio
	}
	t, err = domain.NewTrade(domain.Proposal{
		ID:              s.newID(),
		ProposerID:      proposerID,
		ReceiverID:      requested.OwnerID,
		PostRequestedID: requestedID,
		PostOfferedID:   offeredID,
		ItemsText:       in.ItemsText,
		MeetingArea:     domain.MeetingArea(in.MeetingArea, requested.Barrio, offeredBarrio),
	}, s.now())
	if err != nil {
		return domain.Trade{}, err
	}

	if err := s.trades.Create(ctx, t); err != nil {
		return domain.Trade{}, domain.Unavailable("create trade", err)
	}
	s.metrics.Transition("create")

	t = s.seedChat(ctx, t, requested, offered)
	s.notify(ctx, t.ID, domain.Notification{
		UserID:  t.ReceiverID,
		Type:    domain.NotificationTradeRequest,
		Title:   "Nueva propuesta de trueque",
		Message: fmt.Sprintf("Recibiste una propuesta de trueque por %q.", requested.Title),
		Link:    domain.TradeLink(t.ID),
	})
	return t, nil
}

// seedChat gets or creates the participants' thread, attaches it to the trade
// and posts the offer summary. Each step is best-effort.
func (s *Service) seedChat(ctx context.Context, t domain.Trade, requested domain.PostInfo, offered *domain.PostInfo) domain.Trade {
	if s.chats == nil {
		return t
	}
	var chatID string
	ok := s.sideEffect(ctx, "chat", t.ID, func(ctx context.Context) error {
		var err error
		chatID, err = s.chats.GetOrCreate(ctx, t.ProposerID, t.ReceiverID)
		return err
	})
	if !ok {
		return t
	}
	if s.sideEffect(ctx, "chat_attach", t.ID, func(ctx context.Context) error {
		return s.trades.AttachChat(ctx, t.ID, chatID)
	}) {
		t.ChatID = chatID
	}
	summary := domain.OfferSummary(requested, offered, t.ItemsText, t.MeetingArea)
	s.sideEffect(ctx, "chat_message", t.ID, func(ctx context.Context) error {
		_, err := s.chats.AppendSystemMessage(ctx, chatID, t.ProposerID, summary)
		return err
	})
	return t
}

// List returns the trades a user received (inbox) or proposed (sent),
// newest first.
func (s *Service) List(ctx context.Context, userID string, q ListQuery) (res ListResult, err error) {
	ctx, done := s.startOp(ctx, "list")
	defer done(&err)

	filters := repository.TradeListFilters{UserID: userID}
	switch repository.TradeRole(q.Role) {
	case repository.RoleInbox, repository.RoleSent:
		filters.Role = repository.TradeRole(q.Role)
	default:
		return ListResult{}, domain.Errorf(domain.CodeBadRole, "role must be inbox or sent")
	}
	if q.Status != "" {
		status, ok := domain.ParseStatus(q.Status)
		if !ok {
			return ListResult{}, domain.Errorf(domain.CodeBadStatus, "unknown status %q", q.Status)
		}
		filters.Status = &status
	}

	page := q.Page
	if page < 1 {
		page = 1
	}
	limit := clampLimit(q.Limit)
	filters.Limit = limit
	filters.Offset = (page - 1) * limit

	items, err := s.trades.List(ctx, filters)
	if err != nil {
		return ListResult{}, domain.Unavailable("list trades", err)
	}
	total, err := s.trades.Count(ctx, filters)
	if err != nil {
		return ListResult{}, domain.Unavailable("count trades", err)
	}
	return ListResult{Items: items, Page: page, Limit: limit, Total: total}, nil
}

// Get returns a trade visible to userID.
func (s *Service) Get(ctx context.Context, rawTradeID, userID string) (t domain.Trade, err error) {
	ctx, done := s.startOp(ctx, "get")
	defer done(&err)

	id, err := parseID(rawTradeID, "trade id")
	if err != nil {
		return domain.Trade{}, err
	}
	t, err = s.load(ctx, id)
	if err != nil {
		return domain.Trade{}, err
	}
	if !t.IsParticipant(userID) {
		return domain.Trade{}, domain.Errorf(domain.CodeForbidden, "not a participant of trade %s", id)
	}
	return t, nil
}

// ChangeStatus applies accept, reject, cancel or finish on behalf of actorID
// and notifies the proposer.
func (s *Service) ChangeStatus(ctx context.Context, rawTradeID, actorID, rawAction string) (t domain.Trade, err error) {
	ctx, done := s.startOp(ctx, "change_status", attribute.String("trade.action", rawAction))
	defer done(&err)

	id, err := parseID(rawTradeID, "trade id")
	if err != nil {
		return domain.Trade{}, err
	}
	action, err := domain.ParseStatusAction(rawAction)
	if err != nil {
		return domain.Trade{}, err
	}

	t, entry, err := s.mutate(ctx, id, func(t *domain.Trade) (domain.HistoryEntry, error) {
		return t.Transition(actorID, action, s.now())
	})
	if err != nil {
		return domain.Trade{}, err
	}
	s.metrics.Transition(string(action))

	s.notify(ctx, t.ID, domain.Notification{
		UserID:  t.ProposerID,
		Type:    domain.NotificationTradeUpdate,
		Title:   "Actualización de trueque",
		Message: domain.UpdateMessage(entry.To),
		Link:    domain.TradeLink(t.ID),
	})
	return t, nil
}

// CounterOffer lets the receiver replace the offer and moves the trade to
// countered.
func (s *Service) CounterOffer(ctx context.Context, rawTradeID, actorID string, itemsText, postOfferedID *string) (t domain.Trade, err error) {
	ctx, done := s.startOp(ctx, "counter")
	defer done(&err)

	id, err := parseID(rawTradeID, "trade id")
	if err != nil {
		return domain.Trade{}, err
	}
	var offeredID *string
	if postOfferedID != nil && strings.TrimSpace(*postOfferedID) != "" {
		parsed, err := parseID(strings.TrimSpace(*postOfferedID), "postOfferedId")
		if err != nil {
			return domain.Trade{}, err
		}
		offeredID = &parsed
	}

	t, _, err = s.mutate(ctx, id, func(t *domain.Trade) (domain.HistoryEntry, error) {
		if err := t.Authorize(actorID, domain.ActionCounter); err != nil {
			return domain.HistoryEntry{}, err
		}
		if offeredID != nil {
			if *offeredID == t.PostRequestedID {
				return domain.HistoryEntry{}, domain.Errorf(domain.CodeSamePost, "offered and requested post must differ")
			}
			if _, err := s.ownedPost(ctx, *offeredID, actorID); err != nil {
				return domain.HistoryEntry{}, err
			}
		}
		if err := t.Revise(offeredID, itemsText); err != nil {
			return domain.HistoryEntry{}, err
		}
		return t.Transition(actorID, domain.ActionCounter, s.now())
	})
	if err != nil {
		return domain.Trade{}, err
	}
	s.metrics.Transition(string(domain.ActionCounter))

	s.notify(ctx, t.ID, domain.Notification{
		UserID:  t.ProposerID,
		Type:    domain.NotificationTradeUpdate,
		Title:   "Actualización de trueque",
		Message: domain.UpdateMessage(domain.StatusCountered),
		Link:    domain.TradeLink(t.ID),
	})
	return t, nil
}

// livePost resolves a post that must exist and not be deleted.
func (s *Service) livePost(ctx context.Context, id string) (domain.PostInfo, error) {
	info, err := s.posts.Resolve(ctx, id)
	if err != nil {
		return domain.PostInfo{}, domain.Unavailable("resolve post", err)
	}
	info.ID = id
	if err := info.MustBeLive(); err != nil {
		return domain.PostInfo{}, err
	}
	return info, nil
}

// ownedPost resolves a live post that must belong to ownerID.
func (s *Service) ownedPost(ctx context.Context, id, ownerID string) (domain.PostInfo, error) {
	info, err := s.livePost(ctx, id)
	if err != nil {
		return domain.PostInfo{}, err
	}
	if info.OwnerID != ownerID {
		return domain.PostInfo{}, domain.Errorf(domain.CodeOfferedNotOwned, "post %s is not yours", id)
	}
	return info, nil
}
