package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/njathi/homework-buddy-ai/internal/models"
	"github.com/njathi/homework-buddy-ai/internal/mpesa"
)

var (
	callbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_callbacks_total",
		Help: "Gateway callbacks by reconciliation outcome.",
	}, []string{"outcome"})
	creditsGrantedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_credits_granted_total",
		Help: "Credits granted through resolved top-ups.",
	})
)

// Gateway dispatches a push request to the payment provider.
type Gateway interface {
	STKPush(ctx context.Context, req mpesa.STKPushRequest) (*mpesa.STKPushResult, error)
}

// PaymentService drives the top-up flow: it creates intents, dispatches them
// to the gateway and reconciles the asynchronous callbacks. Credits are only
// ever granted through the ledger, after the tracker's idempotent Resolve.
type PaymentService struct {
	tracker *TrackerService
	ledger  *LedgerService
	gateway Gateway
	log     *slog.Logger
}

func NewPaymentService(tracker *TrackerService, ledger *LedgerService, gateway Gateway, log *slog.Logger) *PaymentService {
	return &PaymentService{tracker: tracker, ledger: ledger, gateway: gateway, log: log}
}

var phonePattern = regexp.MustCompile(`^254[17]\d{8}$`)

// NormalizePhone coerces common Kenyan formats (07..., +254..., 254...) into
// the 2547XXXXXXXX form the gateway expects.
func NormalizePhone(phone string) (string, error) {
	phone = strings.TrimSpace(phone)
	phone = strings.TrimPrefix(phone, "+")
	if strings.HasPrefix(phone, "0") {
		phone = "254" + phone[1:]
	}
	if !phonePattern.MatchString(phone) {
		return "", fmt.Errorf("invalid phone number %q", phone)
	}
	return phone, nil
}

// RequestTopUp creates a payment intent and dispatches the push. It returns
// immediately; the balance only changes when the callback arrives. A gateway
// rejection resolves the intent as failed so it never lingers.
func (s *PaymentService) RequestTopUp(ctx context.Context, accountID, phone string, amount int) (*models.PaymentIntent, error) {
	if _, err := s.ledger.Account(ctx, accountID); err != nil {
		return nil, err
	}
	normalized, err := NormalizePhone(phone)
	if err != nil {
		return nil, err
	}

	intent, err := s.tracker.CreateIntent(ctx, accountID, normalized, amount)
	if err != nil {
		return nil, err
	}

	// Dispatch happens before the intent is marked sent; the mark itself is
	// a short atomic update and never spans the external call.
	result, err := s.gateway.STKPush(ctx, mpesa.STKPushRequest{
		Phone:       normalized,
		Amount:      amount,
		Reference:   intent.ID,
		Description: "Homework Buddy Credits",
	})
	if err != nil {
		if _, _, rerr := s.tracker.Resolve(ctx, intent.ID, models.OutcomeFailure, -1, "dispatch failed"); rerr != nil {
			s.log.Error("resolve failed dispatch", "intent", intent.ID, "err", rerr)
		}
		return nil, fmt.Errorf("dispatch stk push: %w", err)
	}

	if err := s.tracker.MarkSent(ctx, intent.ID); err != nil {
		return nil, err
	}

	if result.ResponseCode != "0" {
		if _, _, rerr := s.tracker.Resolve(ctx, intent.ID, models.OutcomeFailure, -1, result.ResponseDescription); rerr != nil {
			s.log.Error("resolve rejected push", "intent", intent.ID, "err", rerr)
		}
		return nil, fmt.Errorf("gateway rejected push: %s", result.ResponseDescription)
	}

	if err := s.tracker.AttachGatewayRef(ctx, intent.ID, result.CheckoutRequestID); err != nil {
		return nil, err
	}
	if err := s.tracker.MarkAcknowledged(ctx, intent.ID); err != nil {
		return nil, err
	}

	return s.tracker.Get(ctx, intent.ID)
}

// stkCallback mirrors the Daraja callback envelope.
type stkCallback struct {
	Body struct {
		StkCallback struct {
			MerchantRequestID string `json:"MerchantRequestID"`
			CheckoutRequestID string `json:"CheckoutRequestID"`
			ResultCode        int    `json:"ResultCode"`
			ResultDesc        string `json:"ResultDesc"`
			CallbackMetadata  struct {
				Item []struct {
					Name  string `json:"Name"`
					Value any    `json:"Value"`
				} `json:"Item"`
			} `json:"CallbackMetadata"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

func (c *stkCallback) metadataString(name string) string {
	for _, item := range c.Body.StkCallback.CallbackMetadata.Item {
		if item.Name != name {
			continue
		}
		if s, ok := item.Value.(string); ok {
			return s
		}
	}
	return ""
}

// HandleCallback reconciles one gateway callback. Whatever it returns, the
// HTTP layer acknowledges the gateway with success: a discard here is
// terminal and gateways retry on anything else. The returned error exists
// for internal observability only.
func (s *PaymentService) HandleCallback(ctx context.Context, payload []byte) error {
	var cb stkCallback
	if err := json.Unmarshal(payload, &cb); err != nil {
		callbacksTotal.WithLabelValues("malformed").Inc()
		return fmt.Errorf("parse callback: %w", err)
	}

	intent, err := s.findIntent(ctx, &cb)
	if err != nil {
		callbacksTotal.WithLabelValues("unknown_intent").Inc()
		s.log.Warn("callback for unknown intent",
			"checkout_request_id", cb.Body.StkCallback.CheckoutRequestID,
			"merchant_request_id", cb.Body.StkCallback.MerchantRequestID)
		return nil
	}

	resultCode := cb.Body.StkCallback.ResultCode
	outcome := models.OutcomeFailure
	if resultCode == 0 {
		outcome = models.OutcomeSuccess
	}

	prior, newly, err := s.tracker.Resolve(ctx, intent.ID, outcome, resultCode, cb.Body.StkCallback.ResultDesc)
	if err != nil {
		callbacksTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("resolve callback: %w", err)
	}
	if !newly {
		// Duplicate delivery; the first resolution already settled it.
		callbacksTotal.WithLabelValues("duplicate").Inc()
		s.log.Info("duplicate callback ignored", "intent", intent.ID, "prior_outcome", prior)
		return nil
	}

	if outcome == models.OutcomeFailure {
		callbacksTotal.WithLabelValues("failure").Inc()
		s.log.Info("payment failed", "intent", intent.ID, "result_code", resultCode, "desc", cb.Body.StkCallback.ResultDesc)
		return nil
	}

	if _, err := s.ledger.Grant(ctx, intent.AccountID, intent.RequestedCredits, "topup"); err != nil {
		callbacksTotal.WithLabelValues("grant_error").Inc()
		return fmt.Errorf("grant topup credits: %w", err)
	}
	callbacksTotal.WithLabelValues("success").Inc()
	creditsGrantedTotal.Add(float64(intent.RequestedCredits))
	return nil
}

// findIntent correlates a callback to its intent: first by the gateway's
// CheckoutRequestID, then by the AccountReference metadata item carrying the
// intent ID.
func (s *PaymentService) findIntent(ctx context.Context, cb *stkCallback) (*models.PaymentIntent, error) {
	if ref := cb.Body.StkCallback.CheckoutRequestID; ref != "" {
		intent, err := s.tracker.intents.FindByGatewayRef(ctx, ref)
		if err == nil {
			return intent, nil
		}
	}
	if id := cb.metadataString("AccountReference"); id != "" {
		return s.tracker.Get(ctx, id)
	}
	return nil, ErrUnknownIntent
}
