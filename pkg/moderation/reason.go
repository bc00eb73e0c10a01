package moderation

import (
	"fmt"
	"unicode/utf8"
)

const (
	// MaxReasonLength bounds the justification text, in characters.
	MaxReasonLength = 512
	// NoReasonText is shown wherever an absent reason is rendered.
	NoReasonText = "No reason provided"
)

// Reason is validated justification text. The zero value is an absent reason.
type Reason struct {
	text    string
	present bool
}

// NoReason returns the absent reason.
func NoReason() Reason { return Reason{} }

func (r Reason) Present() bool { return r.present }

// Text returns the raw text; empty when absent.
func (r Reason) Text() string { return r.text }

// String renders the reason for display.
func (r Reason) String() string {
	if !r.present {
		return NoReasonText
	}
	return r.text
}

// ReasonValidator bounds-checks reason text.
type ReasonValidator struct {
	max int
}

func NewReasonValidator() *ReasonValidator {
	return &ReasonValidator{max: MaxReasonLength}
}

// Validate accepts nil as an absent reason and returns the text unchanged
// when it fits.
func (v *ReasonValidator) Validate(text *string) (Reason, error) {
	if text == nil {
		return NoReason(), nil
	}
	if n := utf8.RuneCountInString(*text); n > v.max {
		return Reason{}, &ReasonTooLongError{Length: n, Max: v.max}
	}
	return Reason{text: *text, present: true}, nil
}

// Attribution builds the audit header passed to the platform with each
// action so Discord's own audit log names the moderator.
func Attribution(actor Principal, reason Reason) string {
	header := fmt.Sprintf("[ %s ] %s", actor.Label(), reason.String())
	return truncateRunes(header, MaxReasonLength)
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
