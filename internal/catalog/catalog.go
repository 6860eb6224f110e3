// Package catalog holds the product tiers, delivery prices and coupon table
// the storefront sells from.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/joao-fontenele/primeuro-storefront/internal/domain"
)

//go:embed catalog.yaml
var defaultCatalog []byte

var (
	ErrUnknownPackage  = errors.New("unknown package")
	ErrUnknownDelivery = errors.New("unknown delivery method")
	ErrInvalidCatalog  = errors.New("invalid catalog")
)

type Tier struct {
	Key     string          `json:"key"`
	Name    string          `json:"name"`
	Price   decimal.Decimal `json:"price"`
	Aliases []string        `json:"-"`
}

// Catalog coupon codes are stored upper-cased and never exposed.
type Catalog struct {
	Packages       []Tier                                    `json:"packages"`
	Delivery       map[domain.ShippingMethod]decimal.Decimal `json:"delivery"`
	DeliveryTypes  []string                                  `json:"deliveryTypes"`
	PaymentMethods []string                                  `json:"paymentMethods"`
	Coupons        map[string]decimal.Decimal                `json:"-"`
}

type file struct {
	Packages []struct {
		Key     string   `yaml:"key"`
		Name    string   `yaml:"name"`
		Price   string   `yaml:"price"`
		Aliases []string `yaml:"aliases"`
	} `yaml:"packages"`
	Delivery       map[string]string `yaml:"delivery"`
	DeliveryTypes  []string          `yaml:"deliveryTypes"`
	PaymentMethods []string          `yaml:"paymentMethods"`
	Coupons        map[string]string `yaml:"coupons"`
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("embedded catalog: %v", err))
	}
	return c
}

// Load reads a catalog file, or returns the built-in one when path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file %s: %w", path, err)
	}

	return Parse(data)
}

func Parse(data []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse catalog YAML: %w", err)
	}

	c := &Catalog{
		Delivery:       make(map[domain.ShippingMethod]decimal.Decimal, len(f.Delivery)),
		DeliveryTypes:  f.DeliveryTypes,
		PaymentMethods: f.PaymentMethods,
		Coupons:        make(map[string]decimal.Decimal, len(f.Coupons)),
	}

	for _, p := range f.Packages {
		price, err := parsePrice(p.Price)
		if err != nil {
			return nil, fmt.Errorf("%w: package %q: %w", ErrInvalidCatalog, p.Key, err)
		}
		if p.Key == "" || p.Name == "" {
			return nil, fmt.Errorf("%w: package needs a key and a name", ErrInvalidCatalog)
		}
		c.Packages = append(c.Packages, Tier{Key: p.Key, Name: p.Name, Price: price, Aliases: p.Aliases})
	}

	for method, raw := range f.Delivery {
		price, err := parsePrice(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: delivery %q: %w", ErrInvalidCatalog, method, err)
		}
		c.Delivery[domain.ShippingMethod(method)] = price
	}

	for code, raw := range f.Coupons {
		pct, err := decimal.NewFromString(raw)
		if err != nil || pct.IsNegative() || pct.GreaterThan(decimal.NewFromInt(100)) {
			return nil, fmt.Errorf("%w: coupon %q must be a percentage between 0 and 100", ErrInvalidCatalog, code)
		}
		c.Coupons[strings.ToUpper(code)] = pct
	}

	if len(c.Packages) == 0 || len(c.Delivery) == 0 {
		return nil, fmt.Errorf("%w: packages and delivery prices are required", ErrInvalidCatalog)
	}

	return c, nil
}

// Package finds a tier by key, display name or alias, ignoring case.
func (c *Catalog) Package(ref string) (Tier, error) {
	ref = strings.TrimSpace(ref)
	for _, t := range c.Packages {
		if strings.EqualFold(t.Key, ref) || strings.EqualFold(t.Name, ref) {
			return t, nil
		}
		for _, alias := range t.Aliases {
			if strings.EqualFold(alias, ref) {
				return t, nil
			}
		}
	}
	return Tier{}, fmt.Errorf("%w: %q", ErrUnknownPackage, ref)
}

func (c *Catalog) DeliveryPrice(method domain.ShippingMethod) (decimal.Decimal, error) {
	price, ok := c.Delivery[domain.ShippingMethod(strings.ToLower(string(method)))]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrUnknownDelivery, method)
	}
	return price, nil
}

// Coupon returns the discount percentage for a code, ignoring case.
func (c *Catalog) Coupon(code string) (decimal.Decimal, bool) {
	pct, ok := c.Coupons[strings.ToUpper(strings.TrimSpace(code))]
	return pct, ok
}

func (c *Catalog) HasPaymentMethod(method string) bool {
	return slices.Contains(c.PaymentMethods, method)
}

func (c *Catalog) HasDeliveryType(t string) bool {
	return slices.Contains(c.DeliveryTypes, t)
}

func parsePrice(raw string) (decimal.Decimal, error) {
	price, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, err
	}
	if price.IsNegative() {
		return decimal.Zero, errors.New("negative price")
	}
	return price, nil
}
