package checkout

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/betadomot/storefront/internal/orders"
	pkgerrors "github.com/betadomot/storefront/pkg/errors"
)

// Step is a state of the checkout wizard.
type Step int

const (
	StepCustomerInfo Step = iota + 1
	StepShipping
	StepPayment
	StepSubmitted
)

var stepNames = map[Step]string{
	StepCustomerInfo: "customer_info",
	StepShipping:     "shipping",
	StepPayment:      "payment",
	StepSubmitted:    "submitted",
}

func (s Step) String() string {
	if name, ok := stepNames[s]; ok {
		return name
	}
	return fmt.Sprintf("step(%d)", int(s))
}

func (s Step) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Session is one shopper's checkout. It is not safe for concurrent use; the
// service serializes access.
type Session struct {
	ID           string
	SessionID    string
	Step         Step
	Form         Form
	Errors       map[string]string
	Submitting   bool
	LastError    string
	Confirmation *orders.Confirmation
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func newSession(id, sessionID string, form Form, now time.Time) *Session {
	return &Session{
		ID:        id,
		SessionID: sessionID,
		Step:      StepCustomerInfo,
		Form:      form,
		Errors:    map[string]string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// UpdateForm applies a partial edit and clears the errors of edited fields.
func (s *Session) UpdateForm(patch map[string]json.RawMessage, now time.Time) error {
	if err := s.ensureEditable(); err != nil {
		return err
	}
	next, touched, err := s.Form.Apply(patch)
	if err != nil {
		return err
	}
	s.Form = next
	for _, field := range touched {
		delete(s.Errors, field)
	}
	s.UpdatedAt = now
	return nil
}

// Advance moves forward one step when every step up to the current one
// validates. On failure the step is unchanged and the field errors are kept.
func (s *Session) Advance(now time.Time) error {
	if err := s.ensureEditable(); err != nil {
		return err
	}
	if s.Step == StepPayment {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "payment step completes with submit").
			WithDetails(map[string]any{"step": s.Step.String()})
	}
	if err := s.validateThrough(s.Step); err != nil {
		return err
	}
	s.Step++
	s.UpdatedAt = now
	return nil
}

// Back returns to the previous step without validating it. Back from the
// first step stays put.
func (s *Session) Back(now time.Time) error {
	if err := s.ensureEditable(); err != nil {
		return err
	}
	if s.Step > StepCustomerInfo {
		s.Step--
	}
	s.Errors = map[string]string{}
	s.UpdatedAt = now
	return nil
}

// validateThrough checks every step from the first through last.
func (s *Session) validateThrough(last Step) error {
	errs := map[string]string{}
	failed := Step(0)
	for step := StepCustomerInfo; step <= last; step++ {
		stepErrs := s.Form.ValidateStep(step)
		if len(stepErrs) > 0 && failed == 0 {
			failed = step
		}
		for k, v := range stepErrs {
			errs[k] = v
		}
	}
	s.Errors = errs
	if len(errs) == 0 {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "checkout step is incomplete").WithDetails(map[string]any{
		"step":   failed.String(),
		"fields": copyErrors(errs),
	})
}

func (s *Session) ensureEditable() error {
	if s.Step == StepSubmitted {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "checkout already submitted").
			WithDetails(map[string]any{"step": s.Step.String()})
	}
	if s.Submitting {
		return pkgerrors.New(pkgerrors.CodeConflict, "order submission in progress")
	}
	return nil
}

func copyErrors(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
