package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

func init() {
	// Documents keep prices as plain JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

const notAvailable = "N/A"

type ShippingMethod string

const (
	ShippingStandard ShippingMethod = "standard"
	ShippingExpress  ShippingMethod = "express"
)

// Package is a snapshot of the catalog tier at order time. It is never
// updated after the order is stored.
type Package struct {
	Name            string           `json:"name"`
	Price           decimal.Decimal  `json:"price"`
	DiscountedPrice *decimal.Decimal `json:"discountedPrice,omitempty"`
}

// EffectivePrice is the discounted price when a coupon was applied.
func (p Package) EffectivePrice() decimal.Decimal {
	if p.DiscountedPrice != nil {
		return *p.DiscountedPrice
	}
	return p.Price
}

type PersonalInfo struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Telegram string `json:"telegram"`
}

// Display returns a copy with empty fields replaced by "N/A".
func (p PersonalInfo) Display() PersonalInfo {
	return PersonalInfo{
		FullName: orNotAvailable(p.FullName),
		Email:    orNotAvailable(p.Email),
		Phone:    orNotAvailable(p.Phone),
		Telegram: orNotAvailable(p.Telegram),
	}
}

type Address struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

type Shipping struct {
	Method      ShippingMethod  `json:"method"`
	MethodPrice decimal.Decimal `json:"methodPrice"`
	Type        string          `json:"type"`
	Address     Address         `json:"address"`
}

type Payment struct {
	Method string          `json:"method"`
	Total  decimal.Decimal `json:"total"`
}

type Coupon struct {
	Code               string          `json:"code"`
	DiscountPercentage decimal.Decimal `json:"discountPercentage"`
	DiscountAmount     decimal.Decimal `json:"discountAmount"`
}

type Order struct {
	ID           string       `json:"id,omitempty"`
	OrderCode    string       `json:"orderCode"`
	Timestamp    Timestamp    `json:"timestamp"`
	Status       Status       `json:"status"`
	CancelReason *string      `json:"cancelReason"`
	Package      Package      `json:"package"`
	PersonalInfo PersonalInfo `json:"personalInfo"`
	Shipping     Shipping     `json:"shipping"`
	Payment      Payment      `json:"payment"`
	Coupon       *Coupon      `json:"coupon,omitempty"`
}

// OrderTotal is the amount charged for an order: the effective package price
// plus the delivery price.
func OrderTotal(pkg Package, methodPrice decimal.Decimal) decimal.Decimal {
	return pkg.EffectivePrice().Add(methodPrice).Round(2)
}

func orNotAvailable(s string) string {
	if strings.TrimSpace(s) == "" {
		return notAvailable
	}
	return s
}
