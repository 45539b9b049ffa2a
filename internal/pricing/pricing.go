package pricing

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrUnknownProduct indicates a product code not present in the registry.
var ErrUnknownProduct = errors.New("unknown product code")

// Promocode usage outcomes, reported back with a quote.
const (
	UsageNotSet   = "not_set"
	UsageSuccess  = "success"
	UsageNotExist = "not_exist"
	UsageExpired  = "expired"
)

// Product is one purchasable report kind.
type Product struct {
	Code  string  `json:"code"`
	Title string  `json:"title"`
	Price float64 `json:"price"`
}

// Promocode grants a percent discount inside a validity window.
type Promocode struct {
	Code       string    `json:"code"`
	Discount   int       `json:"discount"` // percent, 0..100
	ValidFrom  time.Time `json:"valid_from"`
	ValidTo    time.Time `json:"valid_to"`
	RestUsages int       `json:"rest_usages"`
}

// Quote is the priced result for a product with an optional promocode.
type Quote struct {
	StartPrice     float64 `json:"start_price"`
	FinalPrice     float64 `json:"final_price"`
	Discount       int     `json:"discount"`
	PromocodeUsage string  `json:"promocode_usage"`
	UsedPromocode  string  `json:"used_promocode,omitempty"`
}

// Registry holds the product catalogue and promocodes. Both are loaded
// from configuration at startup and read-only afterwards.
type Registry struct {
	products   map[string]Product
	promocodes map[string]Promocode
	nowFunc    func() time.Time
}

// NewRegistry builds a Registry from explicit lists.
func NewRegistry(products []Product, promocodes []Promocode) *Registry {
	r := &Registry{
		products:   make(map[string]Product, len(products)),
		promocodes: make(map[string]Promocode, len(promocodes)),
		nowFunc:    time.Now,
	}
	for _, p := range products {
		r.products[p.Code] = p
	}
	for _, pc := range promocodes {
		r.promocodes[pc.Code] = pc
	}
	return r
}

// NewRegistryFromJSON parses the JSON registries from configuration.
// Empty strings yield the default catalogue.
func NewRegistryFromJSON(productsJSON, promocodesJSON string) (*Registry, error) {
	products := []Product{
		{Code: "basic", Title: "Basic report", Price: 299},
		{Code: "detailed", Title: "Detailed report", Price: 799},
	}
	if productsJSON != "" {
		products = nil
		if err := json.Unmarshal([]byte(productsJSON), &products); err != nil {
			return nil, fmt.Errorf("parse products registry: %w", err)
		}
	}
	var promocodes []Promocode
	if promocodesJSON != "" {
		if err := json.Unmarshal([]byte(promocodesJSON), &promocodes); err != nil {
			return nil, fmt.Errorf("parse promocodes registry: %w", err)
		}
	}
	return NewRegistry(products, promocodes), nil
}

// Product looks up a product by code.
func (r *Registry) Product(code string) (Product, bool) {
	p, ok := r.products[code]
	return p, ok
}

// Quote prices a product, applying promo if it is known, valid and has
// usages left. An unusable promocode never fails the quote; it is
// reported through PromocodeUsage.
func (r *Registry) Quote(productCode, promo string) (Quote, error) {
	product, ok := r.products[productCode]
	if !ok {
		return Quote{}, fmt.Errorf("%w: %q", ErrUnknownProduct, productCode)
	}

	quote := Quote{
		StartPrice:     product.Price,
		FinalPrice:     product.Price,
		PromocodeUsage: UsageNotSet,
	}
	if promo == "" {
		return quote, nil
	}

	pc, ok := r.promocodes[promo]
	now := r.nowFunc()
	switch {
	case !ok || pc.RestUsages <= 0:
		quote.PromocodeUsage = UsageNotExist
	case pc.ValidFrom.After(now) || pc.ValidTo.Before(now):
		quote.PromocodeUsage = UsageExpired
	default:
		quote.Discount = pc.Discount
		quote.PromocodeUsage = UsageSuccess
		quote.UsedPromocode = pc.Code
		quote.FinalPrice = roundPrice(product.Price * (1 - float64(pc.Discount)/100))
	}
	return quote, nil
}

func roundPrice(v float64) float64 {
	return math.Round(v*100) / 100
}
