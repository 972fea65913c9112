package service

import (
	"context"
	"errors"
	"testing"

	"github.com/njathi/homework-buddy-ai/internal/assistant"
	"github.com/njathi/homework-buddy-ai/internal/repository"
)

type fakeAssistant struct {
	answer string
	err    error
	calls  []assistant.AnswerRequest
}

func (a *fakeAssistant) Answer(ctx context.Context, req assistant.AnswerRequest) (string, error) {
	a.calls = append(a.calls, req)
	if a.err != nil {
		return "", a.err
	}
	return a.answer, nil
}

type fakeAttachments struct {
	url string
	err error
}

func (a *fakeAttachments) Upload(ctx context.Context, data []byte, mime string) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	return a.url, nil
}

func TestAskDeductsAndRecords(t *testing.T) {
	log := testLogger()
	accounts := repository.NewMemoryAccountStore()
	ledger := NewLedgerService(accounts, log)
	seedAccount(t, accounts, "kid@example.com", 3)
	asst := &fakeAssistant{answer: "x equals 4"}
	svc := NewAskService(ledger, asst, nil, log)
	ctx := context.Background()

	res, err := svc.Ask(ctx, "kid@example.com", AskRequest{Question: "solve 2x=8", GradeLevel: "grade 6", StepByStep: true})
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if res.Answer != "x equals 4" {
		t.Errorf("unexpected answer %q", res.Answer)
	}
	if res.Credits != 2 {
		t.Errorf("expected balance 2 after one question, got %d", res.Credits)
	}
	if len(asst.calls) != 1 || asst.calls[0].GradeLevel != "grade 6" || !asst.calls[0].StepByStep {
		t.Errorf("assistant request not forwarded: %+v", asst.calls)
	}

	history, err := ledger.History(ctx, "kid@example.com")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].Question != "solve 2x=8" {
		t.Errorf("expected question recorded, got %+v", history)
	}
}

func TestAskRefundsOnAssistantFailure(t *testing.T) {
	log := testLogger()
	accounts := repository.NewMemoryAccountStore()
	ledger := NewLedgerService(accounts, log)
	seedAccount(t, accounts, "kid@example.com", 3)
	asst := &fakeAssistant{err: errors.New("model unavailable")}
	svc := NewAskService(ledger, asst, nil, log)
	ctx := context.Background()

	if _, err := svc.Ask(ctx, "kid@example.com", AskRequest{Question: "solve 2x=8"}); err == nil {
		t.Fatal("expected assistant error")
	}
	acc, _ := ledger.Account(ctx, "kid@example.com")
	if acc.Credits != 3 {
		t.Errorf("expected credit refunded, balance %d", acc.Credits)
	}
	history, _ := ledger.History(ctx, "kid@example.com")
	if len(history) != 0 {
		t.Errorf("failed answers must not enter history, got %d entries", len(history))
	}
}

func TestAskInsufficientCredits(t *testing.T) {
	log := testLogger()
	accounts := repository.NewMemoryAccountStore()
	ledger := NewLedgerService(accounts, log)
	seedAccount(t, accounts, "kid@example.com", 0)
	asst := &fakeAssistant{answer: "unused"}
	svc := NewAskService(ledger, asst, nil, log)

	if _, err := svc.Ask(context.Background(), "kid@example.com", AskRequest{Question: "solve 2x=8"}); !errors.Is(err, ErrInsufficientCredits) {
		t.Fatalf("expected ErrInsufficientCredits, got %v", err)
	}
	if len(asst.calls) != 0 {
		t.Error("assistant must not be called without a credit")
	}
}

func TestAskEmptyQuestion(t *testing.T) {
	log := testLogger()
	accounts := repository.NewMemoryAccountStore()
	ledger := NewLedgerService(accounts, log)
	seedAccount(t, accounts, "kid@example.com", 3)
	svc := NewAskService(ledger, &fakeAssistant{answer: "unused"}, nil, log)

	if _, err := svc.Ask(context.Background(), "kid@example.com", AskRequest{}); err == nil {
		t.Fatal("expected validation error")
	}
	acc, _ := ledger.Account(context.Background(), "kid@example.com")
	if acc.Credits != 3 {
		t.Errorf("validation errors must not cost a credit, balance %d", acc.Credits)
	}
}

func TestAskWithPhoto(t *testing.T) {
	log := testLogger()
	accounts := repository.NewMemoryAccountStore()
	ledger := NewLedgerService(accounts, log)
	seedAccount(t, accounts, "kid@example.com", 3)
	asst := &fakeAssistant{answer: "a triangle"}
	svc := NewAskService(ledger, asst, &fakeAttachments{url: "https://cdn.example.com/q.jpg"}, log)

	_, err := svc.Ask(context.Background(), "kid@example.com", AskRequest{
		Question:  "what shape is this",
		ImageData: []byte{0xff, 0xd8},
		ImageMime: "image/jpeg",
	})
	if err != nil {
		t.Fatalf("ask with photo: %v", err)
	}
	if asst.calls[0].ImageURL != "https://cdn.example.com/q.jpg" {
		t.Errorf("expected uploaded image URL forwarded, got %q", asst.calls[0].ImageURL)
	}
}

func TestAskPhotoWithoutUploads(t *testing.T) {
	log := testLogger()
	accounts := repository.NewMemoryAccountStore()
	ledger := NewLedgerService(accounts, log)
	seedAccount(t, accounts, "kid@example.com", 3)
	svc := NewAskService(ledger, &fakeAssistant{answer: "unused"}, nil, log)

	_, err := svc.Ask(context.Background(), "kid@example.com", AskRequest{
		Question:  "what shape is this",
		ImageData: []byte{0xff, 0xd8},
	})
	if err == nil {
		t.Fatal("expected error when uploads are not configured")
	}
	acc, _ := ledger.Account(context.Background(), "kid@example.com")
	if acc.Credits != 3 {
		t.Errorf("no credit should be spent, balance %d", acc.Credits)
	}
}
