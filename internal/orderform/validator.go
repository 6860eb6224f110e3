package orderform

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/joao-fontenele/primeuro-storefront/internal/catalog"
	"github.com/joao-fontenele/primeuro-storefront/internal/domain"
)

var ErrInvalidForm = errors.New("invalid order form")

var (
	emailPattern      = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern      = regexp.MustCompile(`^[0-9+\-() ]+$`)
	telegramPattern   = regexp.MustCompile(`^@[A-Za-z0-9_]{5,32}$`)
	personNamePattern = regexp.MustCompile(`^\p{L}[\p{L} '\-]+$`)
	postalCodePattern = regexp.MustCompile(`^[A-Za-z0-9]{3,10}$`)
)

const (
	minPhoneDigits = 6
	maxPhoneDigits = 15
)

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every invalid field of one step, or of the whole
// form when Step is zero.
type ValidationError struct {
	Step   int          `json:"step,omitempty"`
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Message)
	}
	return fmt.Sprintf("%s: %s", ErrInvalidForm, strings.Join(msgs, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidForm
}

// Validator checks form input against the format rules and the catalog the
// order will be priced from.
type Validator struct {
	validate *validator.Validate
	catalog  *catalog.Catalog
}

func NewValidator(cat *catalog.Catalog) *Validator {
	v := validator.New()

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	mustRegister(v, "email_light", matches(emailPattern))
	mustRegister(v, "telegram", matches(telegramPattern))
	mustRegister(v, "personname", matches(personNamePattern))
	mustRegister(v, "postalcode", matches(postalCodePattern))
	mustRegister(v, "phone", func(fl validator.FieldLevel) bool {
		return validPhone(fl.Field().String())
	})
	mustRegister(v, "ordercode", func(fl validator.FieldLevel) bool {
		return domain.ValidOrderCode(strings.ToUpper(fl.Field().String()))
	})
	mustRegister(v, "catalog_package", func(fl validator.FieldLevel) bool {
		_, err := cat.Package(fl.Field().String())
		return err == nil
	})
	mustRegister(v, "delivery_method", func(fl validator.FieldLevel) bool {
		_, err := cat.DeliveryPrice(domain.ShippingMethod(fl.Field().String()))
		return err == nil
	})
	mustRegister(v, "delivery_type", func(fl validator.FieldLevel) bool {
		return cat.HasDeliveryType(fl.Field().String())
	})
	mustRegister(v, "payment_method", func(fl validator.FieldLevel) bool {
		return cat.HasPaymentMethod(fl.Field().String())
	})
	mustRegister(v, "coupon", func(fl validator.FieldLevel) bool {
		_, ok := cat.Coupon(fl.Field().String())
		return ok
	})

	return &Validator{validate: v, catalog: cat}
}

func (v *Validator) Catalog() *catalog.Catalog {
	return v.catalog
}

// Struct validates any tagged struct and reports failures as a
// ValidationError.
func (v *Validator) Struct(s any) error {
	return v.fieldErrors(v.validate.Struct(s), nil)
}

// fieldErrors converts validator output, keeping only the Go fields in
// keep when it is non-nil.
func (v *Validator) fieldErrors(err error, keep map[string]bool) error {
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	out := &ValidationError{}
	for _, fe := range verrs {
		if keep != nil && !keep[fe.StructField()] {
			continue
		}
		out.Fields = append(out.Fields, FieldError{Field: fe.Field(), Message: message(fe)})
	}
	if len(out.Fields) == 0 {
		return nil
	}
	return out
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "gte", "lte":
		return fmt.Sprintf("%s is out of range", fe.Field())
	case "email_light":
		return fmt.Sprintf("%s must be a valid email address", fe.Field())
	case "phone":
		return fmt.Sprintf("%s must contain %d to %d digits", fe.Field(), minPhoneDigits, maxPhoneDigits)
	case "telegram":
		return fmt.Sprintf("%s must start with @ followed by 5 to 32 letters, digits or underscores", fe.Field())
	case "personname":
		return fmt.Sprintf("%s may only contain letters, spaces, hyphens and apostrophes", fe.Field())
	case "postalcode":
		return fmt.Sprintf("%s must be 3 to 10 letters or digits", fe.Field())
	case "ordercode":
		return fmt.Sprintf("%s must look like PRIME-XXXX-XXXX-XXXX", fe.Field())
	case "catalog_package":
		return fmt.Sprintf("%s is not a known package", fe.Field())
	case "delivery_method", "delivery_type", "payment_method":
		return fmt.Sprintf("%s is not offered", fe.Field())
	case "coupon":
		return fmt.Sprintf("%s is not a valid coupon", fe.Field())
	}
	return fmt.Sprintf("%s is invalid: %s", fe.Field(), fe.Tag())
}

func matches(re *regexp.Regexp) validator.Func {
	return func(fl validator.FieldLevel) bool {
		return re.MatchString(fl.Field().String())
	}
}

func validPhone(s string) bool {
	if !phonePattern.MatchString(s) {
		return false
	}
	digits := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	return digits >= minPhoneDigits && digits <= maxPhoneDigits
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register validation %s: %v", tag, err))
	}
}
