package checkout

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/betadomot/storefront/pkg/enums"
	pkgerrors "github.com/betadomot/storefront/pkg/errors"
)

// CustomerInfo holds the fields gated by the first step.
type CustomerInfo struct {
	Email     string `json:"email" validate:"required"`
	FirstName string `json:"first_name" validate:"required"`
	LastName  string `json:"last_name" validate:"required"`
	Phone     string `json:"phone" validate:"required"`
}

// ShippingInfo holds the shipping address and, unless SameAsBilling is set,
// a separate billing address.
type ShippingInfo struct {
	Address    string `json:"address" validate:"required"`
	Apartment  string `json:"apartment"`
	City       string `json:"city" validate:"required"`
	State      string `json:"state" validate:"required"`
	PostalCode string `json:"postal_code" validate:"required"`
	Country    string `json:"country"`

	SameAsBilling     bool   `json:"same_as_billing"`
	BillingAddress    string `json:"billing_address" validate:"required_if=SameAsBilling false"`
	BillingCity       string `json:"billing_city" validate:"required_if=SameAsBilling false"`
	BillingState      string `json:"billing_state" validate:"required_if=SameAsBilling false"`
	BillingPostalCode string `json:"billing_postal_code" validate:"required_if=SameAsBilling false"`
	BillingCountry    string `json:"billing_country"`
}

// PaymentInfo holds the payment method; card fields are only required for card payments.
type PaymentInfo struct {
	PaymentMethod enums.PaymentMethod `json:"payment_method" validate:"required,oneof=card bank_transfer gateway"`
	CardNumber    string              `json:"card_number" validate:"required_if=PaymentMethod card"`
	ExpiryDate    string              `json:"expiry_date" validate:"required_if=PaymentMethod card"`
	CVV           string              `json:"cvv" validate:"required_if=PaymentMethod card"`
	CardName      string              `json:"card_name" validate:"required_if=PaymentMethod card"`
}

// Form is the flat checkout record edited field by field.
type Form struct {
	CustomerInfo
	ShippingInfo
	PaymentInfo

	SaveInfo   bool `json:"save_info"`
	Newsletter bool `json:"newsletter"`
}

// NewForm returns the defaults a fresh checkout starts from.
func NewForm(defaultCountry string) Form {
	return Form{
		ShippingInfo: ShippingInfo{
			Country:        defaultCountry,
			SameAsBilling:  true,
			BillingCountry: defaultCountry,
		},
		PaymentInfo: PaymentInfo{PaymentMethod: enums.PaymentMethodGateway},
	}
}

var fieldMessages = map[string]string{
	"email":               "Email is required",
	"first_name":          "First name is required",
	"last_name":           "Last name is required",
	"phone":               "Phone number is required",
	"address":             "Address is required",
	"city":                "City is required",
	"state":               "State is required",
	"postal_code":         "Postal code is required",
	"billing_address":     "Billing address is required",
	"billing_city":        "Billing city is required",
	"billing_state":       "Billing state is required",
	"billing_postal_code": "Billing postal code is required",
	"payment_method":      "Payment method must be card, bank_transfer or gateway",
	"card_number":         "Card number is required",
	"expiry_date":         "Expiry date is required",
	"cvv":                 "CVV is required",
	"card_name":           "Cardholder name is required",
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	return v
}

// ValidateStep returns per-field messages for the fields the step gates.
func (f Form) ValidateStep(step Step) map[string]string {
	var section any
	switch step {
	case StepCustomerInfo:
		section = f.CustomerInfo
	case StepShipping:
		section = f.ShippingInfo
	case StepPayment:
		section = f.PaymentInfo
	default:
		return nil
	}

	err := validate.Struct(section)
	if err == nil {
		return nil
	}
	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		return map[string]string{"form": err.Error()}
	}
	out := make(map[string]string, len(errs))
	for _, fe := range errs {
		msg, ok := fieldMessages[fe.Field()]
		if !ok {
			msg = "is invalid"
		}
		out[fe.Field()] = msg
	}
	return out
}

// Apply overlays a partial JSON object onto the form. It returns the updated
// form and the names of the fields that were set, sorted.
func (f Form) Apply(patch map[string]json.RawMessage) (Form, []string, error) {
	if len(patch) == 0 {
		return f, nil, nil
	}

	current, err := json.Marshal(f)
	if err != nil {
		return f, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode checkout form")
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(current, &fields); err != nil {
		return f, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode checkout form")
	}

	touched := make([]string, 0, len(patch))
	unknown := map[string]string{}
	for name, value := range patch {
		if _, ok := fields[name]; !ok {
			unknown[name] = "unknown field"
			continue
		}
		fields[name] = value
		touched = append(touched, name)
	}
	if len(unknown) > 0 {
		return f, nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown checkout form fields").WithDetails(unknown)
	}

	merged, err := json.Marshal(fields)
	if err != nil {
		return f, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode checkout form")
	}
	var next Form
	dec := json.NewDecoder(bytes.NewReader(merged))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&next); err != nil {
		return f, nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid checkout form value").
			WithDetails(map[string]any{"error": err.Error()})
	}
	next.normalize()
	sort.Strings(touched)
	return next, touched, nil
}

// Redacted hides card data for anything leaving the service.
func (f Form) Redacted() Form {
	out := f
	out.CardNumber = maskCard(f.CardNumber)
	if out.CVV != "" {
		out.CVV = "***"
	}
	return out
}

// CardLast4 returns the trailing four digits of the card number.
func (f Form) CardLast4() string {
	digits := onlyDigits(f.CardNumber)
	if len(digits) <= 4 {
		return digits
	}
	return digits[len(digits)-4:]
}

func (f *Form) normalize() {
	for _, s := range []*string{
		&f.Email, &f.FirstName, &f.LastName, &f.Phone,
		&f.Address, &f.Apartment, &f.City, &f.State, &f.PostalCode, &f.Country,
		&f.BillingAddress, &f.BillingCity, &f.BillingState, &f.BillingPostalCode, &f.BillingCountry,
		&f.CardNumber, &f.ExpiryDate, &f.CVV, &f.CardName,
	} {
		*s = strings.TrimSpace(*s)
	}
	if method, err := enums.ParsePaymentMethod(string(f.PaymentMethod)); err == nil {
		f.PaymentMethod = method
	}
}

func (f *Form) wipeCard() {
	f.CardNumber = maskCard(f.CardNumber)
	f.CVV = ""
}

func maskCard(number string) string {
	digits := onlyDigits(number)
	if digits == "" {
		return ""
	}
	if len(digits) <= 4 {
		return strings.Repeat("*", len(digits))
	}
	return fmt.Sprintf("%s%s", strings.Repeat("*", len(digits)-4), digits[len(digits)-4:])
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
