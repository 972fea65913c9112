package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/njathi/homework-buddy-ai/internal/assistant"
)

// Assistant answers a homework question.
type Assistant interface {
	Answer(ctx context.Context, req assistant.AnswerRequest) (string, error)
}

// AttachmentStore persists an uploaded question photo and returns a URL the
// model can fetch it from. Nil when attachment uploads are not configured.
type AttachmentStore interface {
	Upload(ctx context.Context, data []byte, mime string) (string, error)
}

type AskService struct {
	ledger      *LedgerService
	assistant   Assistant
	attachments AttachmentStore
	log         *slog.Logger
}

type AskRequest struct {
	Question   string
	GradeLevel string
	StepByStep bool
	ImageData  []byte
	ImageMime  string
}

type AskResult struct {
	Answer  string
	Credits int
}

func NewAskService(ledger *LedgerService, asst Assistant, attachments AttachmentStore, log *slog.Logger) *AskService {
	return &AskService{ledger: ledger, assistant: asst, attachments: attachments, log: log}
}

// Ask answers one question for one credit. The credit is deducted up front,
// which is what stops two concurrent questions racing past a zero balance,
// and refunded if the model call fails.
func (s *AskService) Ask(ctx context.Context, accountID string, req AskRequest) (*AskResult, error) {
	if req.Question == "" {
		return nil, fmt.Errorf("question is required")
	}

	imageURL := ""
	if len(req.ImageData) > 0 {
		if s.attachments == nil {
			return nil, fmt.Errorf("photo questions are not enabled on this server")
		}
		url, err := s.attachments.Upload(ctx, req.ImageData, req.ImageMime)
		if err != nil {
			return nil, fmt.Errorf("upload attachment: %w", err)
		}
		imageURL = url
	}

	balance, err := s.ledger.Deduct(ctx, accountID, 1)
	if err != nil {
		return nil, err
	}

	answer, err := s.assistant.Answer(ctx, assistant.AnswerRequest{
		Question:   req.Question,
		GradeLevel: req.GradeLevel,
		StepByStep: req.StepByStep,
		ImageURL:   imageURL,
	})
	if err != nil {
		if _, gerr := s.ledger.Grant(ctx, accountID, 1, "refund"); gerr != nil {
			s.log.Error("refund after failed answer", "account", accountID, "err", gerr)
		}
		return nil, fmt.Errorf("answer question: %w", err)
	}

	if err := s.ledger.RecordQA(ctx, accountID, req.Question, answer); err != nil {
		s.log.Error("record history", "account", accountID, "err", err)
	}

	return &AskResult{Answer: answer, Credits: balance}, nil
}
