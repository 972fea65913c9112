package server

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/njathi/homework-buddy-ai/internal/models"
	"github.com/njathi/homework-buddy-ai/internal/service"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Email   string `json:"email"`
	Token   string `json:"token"`
	Credits int    `json:"credits"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	acc, err := s.auth.Signup(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, authResponse{Email: acc.Email, Token: acc.APIToken, Credits: acc.Credits})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	acc, err := s.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, authResponse{Email: acc.Email, Token: acc.APIToken, Credits: acc.Credits})
}

type balanceResponse struct {
	Credits   int  `json:"credits"`
	Unlimited bool `json:"unlimited"`
}

func (s *Server) handleCredits(w http.ResponseWriter, r *http.Request) {
	acc, err := s.ledger.Account(r.Context(), accountFrom(r).Email)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, balanceResponse{Credits: acc.Credits, Unlimited: s.ledger.IsUnlimited(acc.Credits) && acc.Subscribed})
}

type subscriptionResponse struct {
	Subscribed bool `json:"subscribed"`
	Credits    int  `json:"credits"`
}

func (s *Server) handleGetSubscription(w http.ResponseWriter, r *http.Request) {
	acc, err := s.ledger.Account(r.Context(), accountFrom(r).Email)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, subscriptionResponse{Subscribed: acc.Subscribed, Credits: acc.Credits})
}

func (s *Server) handleSetSubscription(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Subscribe *bool `json:"subscribe"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Subscribe == nil {
		http.Error(w, "subscribe flag required", http.StatusBadRequest)
		return
	}
	acc, err := s.ledger.SetUnlimited(r.Context(), accountFrom(r).Email, *req.Subscribe)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, subscriptionResponse{Subscribed: acc.Subscribed, Credits: acc.Credits})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := s.ledger.History(r.Context(), accountFrom(r).Email)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if entries == nil {
		entries = []models.QAEntry{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"history": entries})
}

func (s *Server) handleApplyPromo(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Code) == "" {
		http.Error(w, "code required", http.StatusBadRequest)
		return
	}
	acc, err := s.ledger.ApplyPromo(r.Context(), accountFrom(r).Email, req.Code)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, subscriptionResponse{Subscribed: acc.Subscribed, Credits: acc.Credits})
}

type topUpRequest struct {
	Phone  string `json:"phone"`
	Amount int    `json:"amount"`
}

type topUpResponse struct {
	IntentID string `json:"intent_id"`
	Message  string `json:"message"`
}

func (s *Server) handleTopUp(w http.ResponseWriter, r *http.Request) {
	var req topUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Phone == "" || req.Amount <= 0 {
		http.Error(w, "phone and positive amount required", http.StatusBadRequest)
		return
	}
	intent, err := s.payments.RequestTopUp(r.Context(), accountFrom(r).Email, req.Phone, req.Amount)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, topUpResponse{IntentID: intent.ID, Message: "STK push sent. Check your phone."})
}

type askRequest struct {
	Question   string `json:"question"`
	GradeLevel string `json:"grade_level"`
	StepByStep bool   `json:"step_by_step"`
	Image      string `json:"image,omitempty"`
}

type askResponse struct {
	Answer  string `json:"answer"`
	Credits int    `json:"credits"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		http.Error(w, "question required", http.StatusBadRequest)
		return
	}

	ask := service.AskRequest{
		Question:   req.Question,
		GradeLevel: req.GradeLevel,
		StepByStep: req.StepByStep,
	}
	if req.Image != "" {
		data, mime, err := decodeDataURI(req.Image)
		if err != nil {
			http.Error(w, "invalid image data", http.StatusBadRequest)
			return
		}
		ask.ImageData = data
		ask.ImageMime = mime
	}

	result, err := s.ask.Ask(r.Context(), accountFrom(r).Email, ask)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, askResponse{Answer: result.Answer, Credits: result.Credits})
}

// handleMpesaCallback is the public endpoint the payment gateway posts
// asynchronous results to. It always acknowledges with ResultCode 0:
// anything else makes the gateway retry indefinitely, and every internal
// condition here is terminal.
func (s *Server) handleMpesaCallback(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err == nil {
		if herr := s.payments.HandleCallback(r.Context(), body); herr != nil {
			s.log.Error("mpesa callback", "err", herr)
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"ResultCode": 0, "ResultDesc": "Accepted"})
}

func (s *Server) handleListIntents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}
	intents, err := s.tracker.ListRecent(r.Context(), limit)
	if err != nil {
		s.internalError(w, err)
		return
	}
	if intents == nil {
		intents = []models.PaymentIntent{}
	}
	s.writeJSON(w, http.StatusOK, intents)
}

func (s *Server) handleGetIntent(w http.ResponseWriter, r *http.Request) {
	intent, err := s.tracker.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, intent)
}

// decodeDataURI splits a data:image/...;base64 payload into raw bytes and
// mime type.
func decodeDataURI(uri string) ([]byte, string, error) {
	if !strings.HasPrefix(uri, "data:image/") {
		return nil, "", fmt.Errorf("not an image data uri")
	}
	meta, encoded, ok := strings.Cut(uri, ",")
	if !ok {
		return nil, "", fmt.Errorf("malformed data uri")
	}
	mime := strings.TrimSuffix(strings.TrimPrefix(meta, "data:"), ";base64")
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, "", fmt.Errorf("decode image data: %w", err)
	}
	return data, mime, nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps expected service conditions to status codes; everything
// else is a masked 500.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInsufficientCredits):
		http.Error(w, err.Error(), http.StatusPaymentRequired)
	case errors.Is(err, service.ErrAccountNotFound), errors.Is(err, service.ErrUnknownIntent):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, service.ErrInvalidPromo):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, service.ErrEmailTaken):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, service.ErrInvalidCredentials), errors.Is(err, service.ErrInvalidToken):
		http.Error(w, err.Error(), http.StatusUnauthorized)
	default:
		s.internalError(w, err)
	}
}

func (s *Server) internalError(w http.ResponseWriter, err error) {
	s.log.Error("handler error", "err", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}
