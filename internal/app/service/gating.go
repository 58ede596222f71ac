package service

import (
	"time"

	"github.com/sifan077/linkgate/internal/app/model"
)

// DefaultExpirationMessage is shown for expired links without a custom message.
const DefaultExpirationMessage = "This link has expired and is no longer available."

// Outcome is the gating verdict for a short code at a point in time.
type Outcome int

const (
	OutcomeRedirect Outcome = iota
	OutcomeNotFound
	OutcomeDisabled
	OutcomeNotYetActive
	OutcomeExpired
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRedirect:
		return "redirect"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeDisabled:
		return "disabled"
	case OutcomeNotYetActive:
		return "not_yet_active"
	case OutcomeExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Decision carries the outcome plus the data needed to render it.
type Decision struct {
	Outcome Outcome
	URL     string // set for OutcomeRedirect
	Message string // set for OutcomeExpired
}

// Decide applies the gating rules in order: missing, disabled, not yet active,
// expired, redirect. The first matching rule wins.
func Decide(link *model.Link, now time.Time) Decision {
	switch {
	case link == nil:
		return Decision{Outcome: OutcomeNotFound}
	case !link.IsActive:
		return Decision{Outcome: OutcomeDisabled}
	case link.ActivateAt != nil && now.Before(*link.ActivateAt):
		return Decision{Outcome: OutcomeNotYetActive}
	case link.ExpiresAt != nil && !now.Before(*link.ExpiresAt):
		msg := DefaultExpirationMessage
		if link.ExpirationMessage != nil && *link.ExpirationMessage != "" {
			msg = *link.ExpirationMessage
		}
		return Decision{Outcome: OutcomeExpired, Message: msg}
	default:
		return Decision{Outcome: OutcomeRedirect, URL: link.OriginalURL}
	}
}
