// Package dialog collects payment proof and shipping details one field at a time.
// Advance is a pure function of the current state and one answer.
package dialog

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/storefront-labs/orchestrator/pkg/model"
)

type Step string

const (
	StepAwaitingProof Step = "awaiting_proof"
	StepName          Step = "name"
	StepPhone         Step = "phone"
	StepCity          Step = "city"
	StepCarrier       Step = "carrier"
	StepCarrierDetail Step = "carrier_detail"
	StepComplete      Step = "complete"
)

type Field string

const (
	FieldProof         Field = "proof"
	FieldName          Field = "name"
	FieldPhone         Field = "phone"
	FieldCity          Field = "city"
	FieldCarrier       Field = "carrier"
	FieldCarrierDetail Field = "carrier_detail"
)

// ErrDialogRestarted is returned when the stored dialog lapsed and collection
// starts over from the name.
var ErrDialogRestarted = fmt.Errorf("dialog timed out and restarted: %w", model.ErrMalformedInput)

var expected = map[Step]Field{
	StepAwaitingProof: FieldProof,
	StepName:          FieldName,
	StepPhone:         FieldPhone,
	StepCity:          FieldCity,
	StepCarrier:       FieldCarrier,
	StepCarrierDetail: FieldCarrierDetail,
}

var next = map[Step]Step{
	StepAwaitingProof: StepName,
	StepName:          StepPhone,
	StepPhone:         StepCity,
	StepCity:          StepCarrier,
	StepCarrier:       StepCarrierDetail,
	StepCarrierDetail: StepComplete,
}

// State is the per-session dialog.
type State struct {
	SessionID     string    `json:"session_id"`
	BatchID       string    `json:"batch_id"`
	Step          Step      `json:"step"`
	Proof         string    `json:"proof,omitempty"`
	Name          string    `json:"name,omitempty"`
	Phone         string    `json:"phone,omitempty"`
	City          string    `json:"city,omitempty"`
	Carrier       string    `json:"carrier,omitempty"`
	CarrierDetail string    `json:"carrier_detail,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// New starts a dialog for a freshly held batch.
func New(sessionID, batchID string, now time.Time) State {
	return State{SessionID: sessionID, BatchID: batchID, Step: StepAwaitingProof, UpdatedAt: now}
}

// Expects returns the field the dialog is waiting for, or "" when complete.
func (s State) Expects() Field {
	return expected[s.Step]
}

// Complete reports whether every detail has been accepted.
func (s State) Complete() bool {
	return s.Step == StepComplete
}

// Shipping returns the collected details.
func (s State) Shipping() model.ShippingDetails {
	return model.ShippingDetails{
		FullName:      s.Name,
		Phone:         s.Phone,
		City:          s.City,
		Carrier:       s.Carrier,
		CarrierDetail: s.CarrierDetail,
	}
}

// Restart clears collected details and goes back to the name step. Proof is kept.
func (s State) Restart(now time.Time) State {
	return State{
		SessionID: s.SessionID,
		BatchID:   s.BatchID,
		Step:      StepName,
		Proof:     s.Proof,
		UpdatedAt: now,
	}
}

// FieldError explains why an answer was refused and what to send instead.
type FieldError struct {
	Field  Field
	Prompt string
	Err    error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

// Prompt returns the question asked at step.
func Prompt(step Step, carriers Carriers, carrier string) string {
	switch step {
	case StepAwaitingProof:
		return "Please attach the payment receipt."
	case StepName:
		return "Please enter your full name (surname, first name)."
	case StepPhone:
		return "Please enter your phone number."
	case StepCity:
		return "Please enter your city."
	case StepCarrier:
		return "Please choose a delivery service: " + strings.Join(carriers.Codes(), ", ") + "."
	case StepCarrierDetail:
		label := "branch number"
		if c, ok := carriers.Lookup(carrier); ok && c.DetailLabel != "" {
			label = c.DetailLabel
		}
		return "Please enter the " + label + "."
	default:
		return "Thank you, your order is with the manager for review."
	}
}

// Advance applies one answer. On error the returned state equals s.
func Advance(s State, field Field, value string, carriers Carriers, now time.Time) (State, error) {
	if s.Complete() {
		return s, &FieldError{Field: field, Prompt: Prompt(StepComplete, carriers, s.Carrier), Err: model.ErrInvalidTransition}
	}
	want := s.Expects()
	if field != want {
		return s, &FieldError{
			Field:  want,
			Prompt: Prompt(s.Step, carriers, s.Carrier),
			Err:    fmt.Errorf("expected %s, got %s: %w", want, field, model.ErrMalformedInput),
		}
	}

	normalized, err := validate(field, value, carriers, s.Carrier)
	if err != nil {
		return s, &FieldError{Field: field, Prompt: Prompt(s.Step, carriers, s.Carrier), Err: err}
	}

	out := s
	switch field {
	case FieldProof:
		out.Proof = normalized
	case FieldName:
		out.Name = normalized
	case FieldPhone:
		out.Phone = normalized
	case FieldCity:
		out.City = normalized
	case FieldCarrier:
		out.Carrier = normalized
	case FieldCarrierDetail:
		out.CarrierDetail = normalized
	}
	out.Step = next[s.Step]
	out.UpdatedAt = now
	return out, nil
}

// Casers are stateful; build one per call.
func title(s string) string {
	return cases.Title(language.Ukrainian).String(strings.ToLower(s))
}

func validate(field Field, raw string, carriers Carriers, carrier string) (string, error) {
	value := strings.Join(strings.Fields(raw), " ")
	if value == "" {
		return "", fmt.Errorf("empty %s: %w", field, model.ErrMalformedInput)
	}

	switch field {
	case FieldProof:
		return value, nil
	case FieldName:
		words := strings.Fields(value)
		if len(words) < 2 {
			return "", fmt.Errorf("name needs surname and first name: %w", model.ErrMalformedInput)
		}
		for _, w := range words {
			if !wordOf(w, "'’-") {
				return "", fmt.Errorf("name contains %q: %w", w, model.ErrMalformedInput)
			}
		}
		return title(value), nil
	case FieldPhone:
		return normalizePhone(value)
	case FieldCity:
		if !wordOf(strings.ReplaceAll(value, " ", ""), "-'’.") {
			return "", fmt.Errorf("city %q: %w", value, model.ErrMalformedInput)
		}
		return title(value), nil
	case FieldCarrier:
		code := strings.ToLower(strings.ReplaceAll(value, " ", "_"))
		if _, ok := carriers.Lookup(code); !ok {
			return "", fmt.Errorf("unknown carrier %q: %w", value, model.ErrMalformedInput)
		}
		return code, nil
	case FieldCarrierDetail:
		c, ok := carriers.Lookup(carrier)
		if !ok {
			return "", fmt.Errorf("carrier %q no longer offered: %w", carrier, model.ErrMalformedInput)
		}
		detail := strings.TrimPrefix(value, "№")
		detail = strings.TrimSpace(strings.TrimPrefix(detail, "#"))
		if !c.Valid(detail) {
			return "", fmt.Errorf("%s %q: %w", c.DetailLabel, value, model.ErrMalformedInput)
		}
		return detail, nil
	}
	return "", errors.New("unknown field")
}

func wordOf(w, extra string) bool {
	letters := 0
	for _, r := range w {
		switch {
		case unicode.IsLetter(r):
			letters++
		case strings.ContainsRune(extra, r):
		default:
			return false
		}
	}
	return letters > 0
}

func normalizePhone(value string) (string, error) {
	var digits strings.Builder
	plus := false
	for i, r := range value {
		switch {
		case unicode.IsDigit(r):
			digits.WriteRune(r)
		case r == '+' && i == 0:
			plus = true
		case r == ' ' || r == '-' || r == '(' || r == ')':
		default:
			return "", fmt.Errorf("phone %q: %w", value, model.ErrMalformedInput)
		}
	}
	d := digits.String()
	if len(d) < 10 || len(d) > 13 {
		return "", fmt.Errorf("phone %q must have 10 to 13 digits: %w", value, model.ErrMalformedInput)
	}
	if plus {
		return "+" + d, nil
	}
	return d, nil
}
