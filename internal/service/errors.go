package service

import "errors"

var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrInsufficientCredits = errors.New("insufficient credits, top-up required")
	ErrInvalidTransition   = errors.New("invalid intent transition")
	ErrUnknownIntent       = errors.New("unknown payment intent")
	ErrInvalidPromo        = errors.New("promo code invalid")
	ErrEmailTaken          = errors.New("email already in use")
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrInvalidToken        = errors.New("invalid api token")
)
