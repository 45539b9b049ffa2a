package pricing

import (
	"errors"
	"testing"
	"time"
)

func testRegistry() *Registry {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	r := NewRegistry(
		[]Product{
			{Code: "basic", Title: "Basic report", Price: 299},
			{Code: "detailed", Title: "Detailed report", Price: 799},
		},
		[]Promocode{
			{
				Code:       "SPRING20",
				Discount:   20,
				ValidFrom:  now.AddDate(0, -1, 0),
				ValidTo:    now.AddDate(0, 1, 0),
				RestUsages: 10,
			},
			{
				Code:       "OLD50",
				Discount:   50,
				ValidFrom:  now.AddDate(-1, 0, 0),
				ValidTo:    now.AddDate(0, -2, 0),
				RestUsages: 10,
			},
			{
				Code:       "USEDUP",
				Discount:   30,
				ValidFrom:  now.AddDate(0, -1, 0),
				ValidTo:    now.AddDate(0, 1, 0),
				RestUsages: 0,
			},
		},
	)
	r.nowFunc = func() time.Time { return now }
	return r
}

func TestQuoteNoPromo(t *testing.T) {
	q, err := testRegistry().Quote("basic", "")
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if q.FinalPrice != 299 || q.StartPrice != 299 {
		t.Errorf("quote = %+v, want full price", q)
	}
	if q.PromocodeUsage != UsageNotSet {
		t.Errorf("usage = %q, want %q", q.PromocodeUsage, UsageNotSet)
	}
}

func TestQuoteValidPromo(t *testing.T) {
	q, err := testRegistry().Quote("detailed", "SPRING20")
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if q.PromocodeUsage != UsageSuccess {
		t.Fatalf("usage = %q, want %q", q.PromocodeUsage, UsageSuccess)
	}
	if q.FinalPrice != 639.2 {
		t.Errorf("final price = %v, want 639.2", q.FinalPrice)
	}
	if q.StartPrice != 799 {
		t.Errorf("start price = %v, want 799", q.StartPrice)
	}
	if q.Discount != 20 || q.UsedPromocode != "SPRING20" {
		t.Errorf("quote = %+v", q)
	}
}

func TestQuoteExpiredPromo(t *testing.T) {
	q, err := testRegistry().Quote("basic", "OLD50")
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if q.PromocodeUsage != UsageExpired {
		t.Errorf("usage = %q, want %q", q.PromocodeUsage, UsageExpired)
	}
	if q.FinalPrice != 299 {
		t.Errorf("expired promo changed price: %v", q.FinalPrice)
	}
}

func TestQuoteUnknownPromo(t *testing.T) {
	q, err := testRegistry().Quote("basic", "NOPE")
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if q.PromocodeUsage != UsageNotExist {
		t.Errorf("usage = %q, want %q", q.PromocodeUsage, UsageNotExist)
	}
	if q.FinalPrice != 299 {
		t.Errorf("unknown promo changed price: %v", q.FinalPrice)
	}
}

func TestQuoteExhaustedPromo(t *testing.T) {
	q, err := testRegistry().Quote("basic", "USEDUP")
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if q.PromocodeUsage != UsageNotExist {
		t.Errorf("usage = %q, want %q", q.PromocodeUsage, UsageNotExist)
	}
}

func TestQuoteUnknownProduct(t *testing.T) {
	_, err := testRegistry().Quote("nope", "")
	if !errors.Is(err, ErrUnknownProduct) {
		t.Fatalf("Quote = %v, want ErrUnknownProduct", err)
	}
}

func TestNewRegistryFromJSON(t *testing.T) {
	r, err := NewRegistryFromJSON(
		`[{"code":"custom","title":"Custom","price":100}]`,
		`[{"code":"HALF","discount":50,"valid_from":"2026-01-01T00:00:00Z","valid_to":"2027-01-01T00:00:00Z","rest_usages":5}]`,
	)
	if err != nil {
		t.Fatalf("NewRegistryFromJSON: %v", err)
	}
	if _, ok := r.Product("custom"); !ok {
		t.Error("custom product missing")
	}
	if _, ok := r.Product("basic"); ok {
		t.Error("default catalogue leaked into explicit registry")
	}

	q, err := r.Quote("custom", "HALF")
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if q.FinalPrice != 50 {
		t.Errorf("final price = %v, want 50", q.FinalPrice)
	}
}

func TestNewRegistryFromJSONDefaults(t *testing.T) {
	r, err := NewRegistryFromJSON("", "")
	if err != nil {
		t.Fatalf("NewRegistryFromJSON: %v", err)
	}
	if _, ok := r.Product("basic"); !ok {
		t.Error("default basic product missing")
	}
}

func TestNewRegistryFromJSONInvalid(t *testing.T) {
	if _, err := NewRegistryFromJSON("{not json", ""); err == nil {
		t.Fatal("invalid products JSON accepted")
	}
}
