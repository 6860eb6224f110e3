// Package orderform turns the five-step checkout wizard input into an
// order: per-step validation, coupon pricing and order assembly.
package orderform

import (
	"fmt"
	"strings"
	"time"

	"github.com/joao-fontenele/primeuro-storefront/internal/domain"
)

const (
	StepPackage = iota + 1
	StepPersonal
	StepShipping
	StepPayment
	StepConfirmation

	TotalSteps = StepConfirmation
)

// FormState is the raw checkout input. Telegram and coupon are optional.
type FormState struct {
	Package        string `json:"package" validate:"required,catalog_package"`
	FullName       string `json:"fullName" validate:"required,min=2,personname"`
	Email          string `json:"email" validate:"required,email_light"`
	Phone          string `json:"phone" validate:"required,phone"`
	Telegram       string `json:"telegram" validate:"omitempty,telegram"`
	DeliveryMethod string `json:"deliveryMethod" validate:"required,delivery_method"`
	DeliveryType   string `json:"deliveryType" validate:"required,delivery_type"`
	StreetAddress  string `json:"streetAddress" validate:"required,min=5"`
	City           string `json:"city" validate:"required,min=2,personname"`
	PostalCode     string `json:"postalCode" validate:"required,postalcode"`
	Country        string `json:"country" validate:"required,min=2,personname"`
	PaymentMethod  string `json:"paymentMethod" validate:"required,payment_method"`
	CouponCode     string `json:"couponCode,omitempty" validate:"omitempty,coupon"`
}

var stepFields = map[int][]string{
	StepPackage:  {"Package"},
	StepPersonal: {"FullName", "Email", "Phone", "Telegram"},
	StepShipping: {"DeliveryMethod", "DeliveryType", "StreetAddress", "City", "PostalCode", "Country"},
	StepPayment:  {"PaymentMethod", "CouponCode"},
}

// Trimmed returns a copy with surrounding whitespace removed from every
// field and the delivery method lower-cased.
func (f FormState) Trimmed() FormState {
	return FormState{
		Package:        strings.TrimSpace(f.Package),
		FullName:       strings.TrimSpace(f.FullName),
		Email:          strings.TrimSpace(f.Email),
		Phone:          strings.TrimSpace(f.Phone),
		Telegram:       strings.TrimSpace(f.Telegram),
		DeliveryMethod: strings.ToLower(strings.TrimSpace(f.DeliveryMethod)),
		DeliveryType:   strings.TrimSpace(f.DeliveryType),
		StreetAddress:  strings.TrimSpace(f.StreetAddress),
		City:           strings.TrimSpace(f.City),
		PostalCode:     strings.TrimSpace(f.PostalCode),
		Country:        strings.TrimSpace(f.Country),
		PaymentMethod:  strings.TrimSpace(f.PaymentMethod),
		CouponCode:     strings.TrimSpace(f.CouponCode),
	}
}

// ValidateStep checks only the fields shown on one wizard step. The
// confirmation step has no fields and always passes.
func (v *Validator) ValidateStep(form FormState, step int) error {
	if step < StepPackage || step > TotalSteps {
		return fmt.Errorf("%w: step %d out of range", ErrInvalidForm, step)
	}

	fields := stepFields[step]
	if len(fields) == 0 {
		return nil
	}

	keep := make(map[string]bool, len(fields))
	for _, f := range fields {
		keep[f] = true
	}

	err := v.fieldErrors(v.validate.Struct(form.Trimmed()), keep)
	if verr, ok := err.(*ValidationError); ok {
		verr.Step = step
	}
	return err
}

// Validate walks the wizard from the first step and stops at the first
// invalid one.
func (v *Validator) Validate(form FormState) error {
	w := NewWizard(v)
	for !w.Done() {
		if err := w.Next(form); err != nil {
			return err
		}
	}
	return nil
}

// Wizard tracks the current checkout step. It refuses to advance while the
// current step has invalid fields.
type Wizard struct {
	validator *Validator
	step      int
}

func NewWizard(v *Validator) *Wizard {
	return &Wizard{validator: v, step: StepPackage}
}

func (w *Wizard) Step() int {
	return w.step
}

func (w *Wizard) Next(form FormState) error {
	if err := w.validator.ValidateStep(form, w.step); err != nil {
		return err
	}
	if w.step < TotalSteps {
		w.step++
	}
	return nil
}

func (w *Wizard) Prev() {
	if w.step > StepPackage {
		w.step--
	}
}

// Done reports whether the wizard reached the confirmation step.
func (w *Wizard) Done() bool {
	return w.step == TotalSteps
}

type Options struct {
	Now        func() time.Time
	NewCode    func() (string, error)
	Vocabulary *domain.Vocabulary
}

// CollectOrderData validates the form and assembles a new order priced from
// the catalog. The order has no id until it is stored.
func (v *Validator) CollectOrderData(form FormState, opts Options) (domain.Order, error) {
	form = form.Trimmed()
	if err := v.Validate(form); err != nil {
		return domain.Order{}, err
	}

	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewCode == nil {
		opts.NewCode = domain.NewOrderCode
	}

	quote, err := v.Quote(QuoteRequest{
		Package:        form.Package,
		DeliveryMethod: domain.ShippingMethod(form.DeliveryMethod),
		CouponCode:     form.CouponCode,
	})
	if err != nil {
		return domain.Order{}, err
	}

	code, err := opts.NewCode()
	if err != nil {
		return domain.Order{}, fmt.Errorf("generate order code: %w", err)
	}

	order := domain.Order{
		OrderCode: code,
		Timestamp: domain.NewTimestamp(opts.Now()),
		Package:   quote.Package,
		PersonalInfo: domain.PersonalInfo{
			FullName: form.FullName,
			Email:    form.Email,
			Phone:    form.Phone,
			Telegram: form.Telegram,
		},
		Shipping: domain.Shipping{
			Method:      domain.ShippingMethod(form.DeliveryMethod),
			MethodPrice: quote.DeliveryPrice,
			Type:        form.DeliveryType,
			Address: domain.Address{
				Street:     form.StreetAddress,
				City:       form.City,
				PostalCode: form.PostalCode,
				Country:    form.Country,
			},
		},
		Payment: domain.Payment{Method: form.PaymentMethod, Total: quote.Total},
		Coupon:  quote.Coupon,
	}
	if opts.Vocabulary != nil {
		order.Status = opts.Vocabulary.Default
	}

	return order, nil
}
