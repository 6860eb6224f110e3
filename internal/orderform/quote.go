package orderform

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/primeuro-storefront/internal/domain"
)

var ErrUnknownCoupon = errors.New("unknown coupon")

var hundred = decimal.NewFromInt(100)

type QuoteRequest struct {
	Package        string                `json:"package"`
	DeliveryMethod domain.ShippingMethod `json:"deliveryMethod"`
	CouponCode     string                `json:"couponCode,omitempty"`
}

type Quote struct {
	Package       domain.Package  `json:"package"`
	DeliveryPrice decimal.Decimal `json:"deliveryPrice"`
	Coupon        *domain.Coupon  `json:"coupon,omitempty"`
	Total         decimal.Decimal `json:"total"`
}

// Quote prices a package and delivery method, applying the coupon when one
// is given.
func (v *Validator) Quote(req QuoteRequest) (Quote, error) {
	tier, err := v.catalog.Package(req.Package)
	if err != nil {
		return Quote{}, err
	}
	if req.DeliveryMethod == "" {
		req.DeliveryMethod = domain.ShippingStandard
	}
	delivery, err := v.catalog.DeliveryPrice(req.DeliveryMethod)
	if err != nil {
		return Quote{}, err
	}

	q := Quote{
		Package:       domain.Package{Name: tier.Name, Price: tier.Price},
		DeliveryPrice: delivery,
	}

	if code := strings.TrimSpace(req.CouponCode); code != "" {
		pct, ok := v.catalog.Coupon(code)
		if !ok {
			return Quote{}, fmt.Errorf("%w: %q", ErrUnknownCoupon, code)
		}
		discounted, amount := ApplyCoupon(tier.Price, pct)
		q.Package.DiscountedPrice = &discounted
		q.Coupon = &domain.Coupon{
			Code:               strings.ToUpper(code),
			DiscountPercentage: pct,
			DiscountAmount:     amount,
		}
	}

	q.Total = domain.OrderTotal(q.Package, delivery)
	return q, nil
}

// ApplyCoupon returns price × (1 − pct/100) rounded to cents, and the amount
// taken off.
func ApplyCoupon(price, pct decimal.Decimal) (discounted, amount decimal.Decimal) {
	factor := hundred.Sub(pct).Div(hundred)
	discounted = price.Mul(factor).Round(2)
	return discounted, price.Sub(discounted)
}
