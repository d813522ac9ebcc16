package httpserver

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Clark-Hu/trueque/internal/auth"
	"github.com/Clark-Hu/trueque/internal/domain"
	"github.com/Clark-Hu/trueque/internal/trade"
)

type tradeCreateRequest struct {
	PostRequestedID string  `json:"postRequestedId"`
	PostOfferedID   *string `json:"postOfferedId"`
	ItemsText       string  `json:"itemsText"`
	MeetingArea     string  `json:"meetingArea"`
}

type statusChangeRequest struct {
	Action string `json:"action"`
}

type counterOfferRequest struct {
	ItemsText     *string `json:"itemsText"`
	PostOfferedID *string `json:"postOfferedId"`
}

type rateRequest struct {
	Value int `json:"value"`
}

type historyResponse struct {
	At     time.Time `json:"at"`
	By     string    `json:"by"`
	Action string    `json:"action"`
	From   string    `json:"from,omitempty"`
	To     string    `json:"to"`
	Note   string    `json:"note,omitempty"`
}

type ratingResponse struct {
	By    string `json:"by"`
	To    string `json:"to"`
	Value int    `json:"value"`
}

type tradeResponse struct {
	ID              string            `json:"id"`
	ProposerID      string            `json:"proposerId"`
	ReceiverID      string            `json:"receiverId"`
	PostRequestedID string            `json:"postRequestedId"`
	PostOfferedID   *string           `json:"postOfferedId"`
	ItemsText       string            `json:"itemsText"`
	Status          string            `json:"status"`
	ChatID          *string           `json:"chatId"`
	MeetingArea     string            `json:"meetingArea"`
	History         []historyResponse `json:"history"`
	Ratings         []ratingResponse  `json:"ratings"`
	CreatedAt       time.Time         `json:"createdAt"`
	UpdatedAt       time.Time         `json:"updatedAt"`
}

type tradeListResponse struct {
	Items []tradeResponse `json:"items"`
	Page  int             `json:"page"`
	Limit int             `json:"limit"`
	Total int             `json:"total"`
}

type ratingAggregateResponse struct {
	UserID  string  `json:"userId"`
	Count   int64   `json:"count"`
	Total   int64   `json:"total"`
	Average float64 `json:"average"`
}

type notificationResponse struct {
	ID        string     `json:"id"`
	Type      string     `json:"type"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	Link      string     `json:"link"`
	CreatedAt time.Time  `json:"createdAt"`
	ReadAt    *time.Time `json:"readAt,omitempty"`
}

type notificationListResponse struct {
	Items []notificationResponse `json:"items"`
}

func (s *Server) handleCreateTrade(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}

	var req tradeCreateRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, err)
		return
	}
	if strings.TrimSpace(req.PostRequestedID) == "" {
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "postRequestedId is required")
		return
	}

	t, err := s.trades.Create(r.Context(), actor, trade.CreateInput{
		PostRequestedID: req.PostRequestedID,
		PostOfferedID:   req.PostOfferedID,
		ItemsText:       req.ItemsText,
		MeetingArea:     req.MeetingArea,
	})
	if err != nil {
		s.respondServiceError(w, "create trade", err)
		return
	}
	w.Header().Set("Location", domain.TradeLink(t.ID))
	s.respondJSON(w, http.StatusCreated, toTradeResponse(t))
}

func (s *Server) handleListTrades(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}

	q, err := buildListQuery(r.URL.Query())
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	res, err := s.trades.List(r.Context(), actor, q)
	if err != nil {
		s.respondServiceError(w, "list trades", err)
		return
	}

	items := make([]tradeResponse, 0, len(res.Items))
	for _, t := range res.Items {
		items = append(items, toTradeResponse(t))
	}
	s.respondJSON(w, http.StatusOK, tradeListResponse{
		Items: items,
		Page:  res.Page,
		Limit: res.Limit,
		Total: res.Total,
	})
}

// buildListQuery reads role, status, page and limit. Page and limit default
// to 1 and trade.DefaultLimit; clamping happens in the service.
func buildListQuery(query url.Values) (trade.ListQuery, error) {
	q := trade.ListQuery{
		Role:   strings.TrimSpace(query.Get("role")),
		Status: strings.TrimSpace(query.Get("status")),
		Page:   1,
		Limit:  trade.DefaultLimit,
	}
	if val := strings.TrimSpace(query.Get("page")); val != "" {
		page, err := strconv.Atoi(val)
		if err != nil {
			return q, fmt.Errorf("invalid page value")
		}
		q.Page = page
	}
	if val := strings.TrimSpace(query.Get("limit")); val != "" {
		limit, err := strconv.Atoi(val)
		if err != nil {
			return q, fmt.Errorf("invalid limit value")
		}
		q.Limit = limit
	}
	return q, nil
}

func (s *Server) handleGetTrade(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	t, err := s.trades.Get(r.Context(), chi.URLParam(r, "id"), actor)
	if err != nil {
		s.respondServiceError(w, "get trade", err)
		return
	}
	s.respondJSON(w, http.StatusOK, toTradeResponse(t))
}

func (s *Server) handleChangeStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}

	var req statusChangeRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, err)
		return
	}

	t, err := s.trades.ChangeStatus(r.Context(), chi.URLParam(r, "id"), actor, strings.TrimSpace(req.Action))
	if err != nil {
		s.respondServiceError(w, "change status", err)
		return
	}
	s.respondJSON(w, http.StatusOK, toTradeResponse(t))
}

func (s *Server) handleCounterOffer(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}

	var req counterOfferRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, err)
		return
	}

	t, err := s.trades.CounterOffer(r.Context(), chi.URLParam(r, "id"), actor, req.ItemsText, req.PostOfferedID)
	if err != nil {
		s.respondServiceError(w, "counter offer", err)
		return
	}
	s.respondJSON(w, http.StatusOK, toTradeResponse(t))
}

func (s *Server) handleRateTrade(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}

	var req rateRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, err)
		return
	}

	rating, err := s.trades.Rate(r.Context(), chi.URLParam(r, "id"), actor, req.Value)
	if err != nil {
		s.respondServiceError(w, "rate trade", err)
		return
	}
	s.respondJSON(w, http.StatusCreated, ratingResponse{
		By:    rating.By,
		To:    rating.To,
		Value: rating.Value,
	})
}

func (s *Server) handleUserRating(w http.ResponseWriter, r *http.Request) {
	agg, err := s.trades.UserRating(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondServiceError(w, "user rating", err)
		return
	}
	s.respondJSON(w, http.StatusOK, ratingAggregateResponse{
		UserID:  agg.UserID,
		Count:   agg.Count,
		Total:   agg.Total,
		Average: agg.Average,
	})
}

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}

	limit := trade.DefaultLimit
	if val := strings.TrimSpace(r.URL.Query().Get("limit")); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid limit value")
			return
		}
		limit = parsed
	}

	items, err := s.trades.Notifications(r.Context(), actor, limit)
	if err != nil {
		s.respondServiceError(w, "list notifications", err)
		return
	}
	resp := notificationListResponse{Items: make([]notificationResponse, 0, len(items))}
	for _, n := range items {
		resp.Items = append(resp.Items, notificationResponse{
			ID:        n.ID,
			Type:      string(n.Type),
			Title:     n.Title,
			Message:   n.Message,
			Link:      n.Link,
			CreatedAt: n.CreatedAt,
			ReadAt:    n.ReadAt,
		})
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// actor returns the authenticated user id or writes a 401.
func (s *Server) actor(w http.ResponseWriter, r *http.Request) (string, bool) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		s.respondAuthError(w, auth.ErrMissingToken)
		return "", false
	}
	return actor, true
}

func toTradeResponse(t domain.Trade) tradeResponse {
	resp := tradeResponse{
		ID:              t.ID,
		ProposerID:      t.ProposerID,
		ReceiverID:      t.ReceiverID,
		PostRequestedID: t.PostRequestedID,
		PostOfferedID:   t.PostOfferedID,
		ItemsText:       t.ItemsText,
		Status:          string(t.Status),
		MeetingArea:     t.MeetingArea,
		History:         []historyResponse{},
		Ratings:         []ratingResponse{},
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
	}
	if t.ChatID != "" {
		chatID := t.ChatID
		resp.ChatID = &chatID
	}
	for _, e := range t.History() {
		resp.History = append(resp.History, historyResponse{
			At:     e.At,
			By:     e.By,
			Action: string(e.Action),
			From:   string(e.From),
			To:     string(e.To),
			Note:   e.Note,
		})
	}
	for _, rt := range t.Ratings() {
		resp.Ratings = append(resp.Ratings, ratingResponse{By: rt.By, To: rt.To, Value: rt.Value})
	}
	return resp
}
