package policy

import (
	"strings"

	"github.com/njathi/homework-buddy-ai/internal/models"
)

// UnlimitedCredits is the sentinel balance representing an active
// subscription's unmetered access. Only this package and the ledger compare
// against it; external callers should use the ledger's IsUnlimited helper.
const UnlimitedCredits = 9999

// FreeTrialCredits is the balance every newly created account starts with.
const FreeTrialCredits = 3

type EffectKind string

const (
	EffectGrant     EffectKind = "grant"
	EffectUnlimited EffectKind = "unlimited"
)

// Effect is the fixed outcome a promo code maps to.
type Effect struct {
	Kind    EffectKind
	Credits int
}

// The promo table is fixed and exhaustively enumerated here. Review this
// block whenever a new code is issued.
var promoTable = map[string]Effect{
	"SCHOOL100":  {Kind: EffectGrant, Credits: 100},
	"FAMILYFREE": {Kind: EffectUnlimited},
}

// LookupPromo matches a free-text code against the promo table,
// case-insensitively. The second return is false for unknown codes.
func LookupPromo(code string) (Effect, bool) {
	effect, ok := promoTable[strings.ToUpper(strings.TrimSpace(code))]
	return effect, ok
}

// ApplySubscription transitions an account's subscription state in place.
// Turning it on grants the unlimited sentinel; turning it off forfeits any
// remaining balance and resets credits to zero.
func ApplySubscription(acc *models.Account, subscribe bool) {
	acc.Subscribed = subscribe
	if subscribe {
		acc.Credits = UnlimitedCredits
	} else {
		acc.Credits = 0
	}
}
