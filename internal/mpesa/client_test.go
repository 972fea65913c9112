package mpesa

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/njathi/homework-buddy-ai/internal/config"
)

func TestStkPassword(t *testing.T) {
	// Daraja documents base64(shortcode + passkey + timestamp).
	got := stkPassword("174379", "passkey", "20240101120000")
	want := "MTc0Mzc5cGFzc2tleTIwMjQwMTAxMTIwMDAw"
	if got != want {
		t.Errorf("stkPassword = %q, want %q", got, want)
	}
}

func TestSTKPush(t *testing.T) {
	var tokenCalls int
	var pushPayload map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth/v1/generate":
			tokenCalls++
			user, pass, ok := r.BasicAuth()
			if !ok || user != "key" || pass != "secret" {
				t.Errorf("bad basic auth: %q/%q", user, pass)
			}
			json.NewEncoder(w).Encode(map[string]string{"access_token": "tok-1", "expires_in": "3599"})
		case "/mpesa/stkpush/v1/processrequest":
			if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
				t.Errorf("missing bearer token, got %q", got)
			}
			body, _ := io.ReadAll(r.Body)
			if err := json.Unmarshal(body, &pushPayload); err != nil {
				t.Errorf("unmarshal push payload: %v", err)
			}
			json.NewEncoder(w).Encode(STKPushResult{
				MerchantRequestID: "merchant-1",
				CheckoutRequestID: "ws_CO_001",
				ResponseCode:      "0",
			})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := NewClient(config.Config{
		MpesaEnv:            "sandbox",
		MpesaShortcode:      "174379",
		MpesaPasskey:        "passkey",
		MpesaConsumerKey:    "key",
		MpesaConsumerSecret: "secret",
		MpesaCallbackURL:    "https://app.example.com/webhook/mpesa",
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	client.baseURL = srv.URL

	ctx := context.Background()
	result, err := client.STKPush(ctx, STKPushRequest{
		Phone:       "254712345678",
		Amount:      100,
		Reference:   "intent-1",
		Description: "Homework Buddy Credits",
	})
	if err != nil {
		t.Fatalf("stk push: %v", err)
	}
	if result.CheckoutRequestID != "ws_CO_001" || result.ResponseCode != "0" {
		t.Errorf("unexpected result %+v", result)
	}

	if pushPayload["AccountReference"] != "intent-1" {
		t.Errorf("AccountReference = %v, want intent-1", pushPayload["AccountReference"])
	}
	if pushPayload["PartyA"] != "254712345678" || pushPayload["PhoneNumber"] != "254712345678" {
		t.Errorf("phone fields = %v / %v", pushPayload["PartyA"], pushPayload["PhoneNumber"])
	}
	if pushPayload["TransactionType"] != "CustomerPayBillOnline" {
		t.Errorf("TransactionType = %v", pushPayload["TransactionType"])
	}
	if pushPayload["CallBackURL"] != "https://app.example.com/webhook/mpesa" {
		t.Errorf("CallBackURL = %v", pushPayload["CallBackURL"])
	}

	// A second push reuses the cached token.
	if _, err := client.STKPush(ctx, STKPushRequest{Phone: "254712345678", Amount: 50, Reference: "intent-2"}); err != nil {
		t.Fatalf("second push: %v", err)
	}
	if tokenCalls != 1 {
		t.Errorf("expected one token fetch, got %d", tokenCalls)
	}
}

func TestSTKPushTokenFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"errorMessage":"Invalid Authentication"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := NewClient(config.Config{MpesaEnv: "sandbox"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	client.baseURL = srv.URL

	if _, err := client.STKPush(context.Background(), STKPushRequest{Phone: "254712345678", Amount: 10, Reference: "intent-1"}); err == nil {
		t.Fatal("expected token error")
	}
}
