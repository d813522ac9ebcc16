package trade

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/Clark-Hu/trueque/internal/domain"
	"github.com/Clark-Hu/trueque/internal/repository"
)

var errBoom = errors.New("boom")

type memTrades struct {
	mu     sync.Mutex
	trades map[string]domain.Trade

	createErr  error
	attachErr  error
	ratingErr  error
	beforeSave func(m *memTrades, t domain.Trade)
	conflicts  int
	saves      int
}

func newMemTrades() *memTrades {
	return &memTrades{trades: make(map[string]domain.Trade)}
}

func (m *memTrades) Create(_ context.Context, t domain.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.trades[t.ID] = t
	return nil
}

func (m *memTrades) GetByID(_ context.Context, id string) (domain.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trades[id]
	if !ok {
		return domain.Trade{}, repository.ErrNotFound
	}
	return t, nil
}

func (m *memTrades) matching(f repository.TradeListFilters) []domain.Trade {
	var out []domain.Trade
	for _, t := range m.trades {
		switch f.Role {
		case repository.RoleInbox:
			if t.ReceiverID != f.UserID {
				continue
			}
		case repository.RoleSent:
			if t.ProposerID != f.UserID {
				continue
			}
		}
		if f.Status != nil && t.Status != *f.Status {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (m *memTrades) List(_ context.Context, f repository.TradeListFilters) ([]domain.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.matching(f)
	if f.Offset >= len(all) {
		return []domain.Trade{}, nil
	}
	end := f.Offset + f.Limit
	if end > len(all) {
		end = len(all)
	}
	return all[f.Offset:end], nil
}

func (m *memTrades) Count(_ context.Context, f repository.TradeListFilters) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.matching(f)), nil
}

func (m *memTrades) Save(_ context.Context, t domain.Trade, _ domain.HistoryEntry) (domain.Trade, error) {
	m.mu.Lock()
	hook := m.beforeSave
	m.beforeSave = nil
	m.mu.Unlock()
	if hook != nil {
		hook(m, t)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.conflicts > 0 {
		m.conflicts--
		return domain.Trade{}, repository.ErrConflict
	}
	stored, ok := m.trades[t.ID]
	if !ok {
		return domain.Trade{}, repository.ErrNotFound
	}
	if stored.Version != t.Version {
		return domain.Trade{}, repository.ErrConflict
	}
	t.Version++
	m.trades[t.ID] = t
	return t, nil
}

// put overwrites a stored trade as another process would.
func (m *memTrades) put(t domain.Trade) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.Version++
	m.trades[t.ID] = t
}

func (m *memTrades) AttachChat(_ context.Context, tradeID, chatID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.attachErr != nil {
		return m.attachErr
	}
	t, ok := m.trades[tradeID]
	if !ok {
		return repository.ErrNotFound
	}
	t.ChatID = chatID
	m.trades[tradeID] = t
	return nil
}

func (m *memTrades) AddRating(_ context.Context, tradeID string, r domain.Rating) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ratingErr != nil {
		return m.ratingErr
	}
	t, ok := m.trades[tradeID]
	if !ok {
		return repository.ErrNotFound
	}
	if t.HasRated(r.By) {
		return repository.ErrDuplicate
	}
	m.trades[tradeID] = domain.RestoreTrade(t, t.History(), append(t.Ratings(), r))
	return nil
}

type memPosts struct {
	posts map[string]domain.PostInfo
	err   error
}

func (m *memPosts) Resolve(_ context.Context, id string) (domain.PostInfo, error) {
	if m.err != nil {
		return domain.PostInfo{}, m.err
	}
	info, ok := m.posts[id]
	if !ok {
		return domain.PostInfo{ID: id}, nil
	}
	info.ID = id
	info.Exists = true
	return info, nil
}

type sysMessage struct {
	chatID, sender, text string
}

type memChats struct {
	mu       sync.Mutex
	threads  map[[2]string]string
	messages []sysMessage
	err      error
	msgErr   error
}

func newMemChats() *memChats {
	return &memChats{threads: make(map[[2]string]string)}
}

func (m *memChats) GetOrCreate(_ context.Context, a, b string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	if a > b {
		a, b = b, a
	}
	key := [2]string{a, b}
	id, ok := m.threads[key]
	if !ok {
		id = "chat-" + a[:4] + b[:4]
		m.threads[key] = id
	}
	return id, nil
}

func (m *memChats) AppendSystemMessage(_ context.Context, chatID, sender, text string) (domain.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.msgErr != nil {
		return domain.ChatMessage{}, m.msgErr
	}
	m.messages = append(m.messages, sysMessage{chatID, sender, text})
	return domain.ChatMessage{ChatID: chatID, SenderID: sender, Text: text, System: true}, nil
}

type memNotifier struct {
	mu    sync.Mutex
	items []domain.Notification
	err   error
}

func (m *memNotifier) Enqueue(_ context.Context, n domain.Notification) (domain.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return domain.Notification{}, m.err
	}
	m.items = append(m.items, n)
	return n, nil
}

func (m *memNotifier) ListForUser(_ context.Context, userID string, limit int) ([]domain.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Notification
	for i := len(m.items) - 1; i >= 0 && len(out) < limit; i-- {
		if m.items[i].UserID == userID {
			out = append(out, m.items[i])
		}
	}
	return out, nil
}

func (m *memNotifier) forUser(userID string) []domain.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Notification
	for _, n := range m.items {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out
}

type memUsers struct {
	mu   sync.Mutex
	aggs map[string]domain.RatingAggregate
	err  error
}

func newMemUsers() *memUsers {
	return &memUsers{aggs: make(map[string]domain.RatingAggregate)}
}

func (m *memUsers) ApplyRating(_ context.Context, userID string, value int) (domain.RatingAggregate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return domain.RatingAggregate{}, m.err
	}
	agg := m.aggs[userID]
	agg.UserID = userID
	agg = agg.Add(value)
	m.aggs[userID] = agg
	return agg, nil
}

func (m *memUsers) GetRating(_ context.Context, userID string) (domain.RatingAggregate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return domain.RatingAggregate{}, m.err
	}
	agg, ok := m.aggs[userID]
	if !ok {
		return domain.RatingAggregate{UserID: userID}, nil
	}
	return agg, nil
}
