package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/Clark-Hu/trueque/internal/domain"
)

const maxRequestBody = 1 << 20 // 1 MiB

type errorResponse struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

var codeStatus = map[domain.Code]int{
	domain.CodeNotFound:           http.StatusNotFound,
	domain.CodePostNotFound:       http.StatusNotFound,
	domain.CodeForbidden:          http.StatusForbidden,
	domain.CodeOnlyProposer:       http.StatusForbidden,
	domain.CodeOnlyReceiver:       http.StatusForbidden,
	domain.CodeOfferedNotOwned:    http.StatusForbidden,
	domain.CodeSelfTradeForbidden: http.StatusForbidden,
	domain.CodeBadState:           http.StatusConflict,
	domain.CodeAlreadyRated:       http.StatusConflict,
	domain.CodePostDeleted:        http.StatusGone,
	domain.CodeBadID:              http.StatusBadRequest,
	domain.CodeBadRole:            http.StatusBadRequest,
	domain.CodeBadStatus:          http.StatusBadRequest,
	domain.CodeBadAction:          http.StatusBadRequest,
	domain.CodeOfferRequired:      http.StatusUnprocessableEntity,
	domain.CodeSamePost:           http.StatusUnprocessableEntity,
	domain.CodeReqPostNoOwner:     http.StatusUnprocessableEntity,
	domain.CodeBadRating:          http.StatusUnprocessableEntity,
}

func statusForCode(code domain.Code) int {
	if status, ok := codeStatus[code]; ok {
		return status
	}
	return http.StatusBadRequest
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	return nil
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			s.logger.Printf("failed to encode response: %v", err)
		}
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, code, message string) {
	s.respondJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
	})
}

func (s *Server) respondDecodeError(w http.ResponseWriter, err error) {
	var syntaxError *json.SyntaxError
	var typeError *json.UnmarshalTypeError
	var maxBytesError *http.MaxBytesError
	switch {
	case errors.As(err, &syntaxError):
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Malformed JSON payload")
	case errors.As(err, &typeError):
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", fmt.Sprintf("Invalid value for field %s", typeError.Field))
	case errors.As(err, &maxBytesError):
		s.respondError(w, http.StatusRequestEntityTooLarge, "VALIDATION_ERROR", "Request body too large")
	case errors.Is(err, io.EOF):
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Request body cannot be empty")
	default:
		s.respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Unable to parse request body")
	}
}

// respondServiceError maps a trade.Service error onto the JSON envelope.
func (s *Server) respondServiceError(w http.ResponseWriter, op string, err error) {
	var de *domain.Error
	switch {
	case errors.As(err, &de):
		s.respondError(w, statusForCode(de.Code), string(de.Code), de.Message)
	case errors.Is(err, domain.ErrUnavailable):
		s.logger.Printf("%s unavailable: %v", op, err)
		w.Header().Set("Retry-After", "1")
		s.respondError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "Service temporarily unavailable, retry later")
	default:
		s.logger.Printf("%s error: %v", op, err)
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to process request")
	}
}

func (s *Server) respondAuthError(w http.ResponseWriter, _ error) {
	s.respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing or invalid authentication information")
}
