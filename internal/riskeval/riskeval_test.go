package riskeval

import (
	"context"
	"testing"

	"github.com/orbicheck/orbicheck/internal/cache"
	"github.com/orbicheck/orbicheck/internal/dedupe"
	"github.com/orbicheck/orbicheck/internal/disposable"
	"github.com/orbicheck/orbicheck/internal/reason"
	"github.com/orbicheck/orbicheck/internal/rules"
	"github.com/orbicheck/orbicheck/internal/validate/address"
	"github.com/orbicheck/orbicheck/internal/validate/email"
)

type fakeOrderStore struct {
	existing map[string]bool
}

func newFakeOrderStore() *fakeOrderStore { return &fakeOrderStore{existing: map[string]bool{}} }

func (f *fakeOrderStore) OrderExists(_ context.Context, _, orderID string) (bool, error) {
	return f.existing[orderID], nil
}
func (f *fakeOrderStore) UpsertCustomer(_ context.Context, _ string, _ Customer) error { return nil }
func (f *fakeOrderStore) UpsertAddress(_ context.Context, _ string, _ address.Input) error {
	return nil
}
func (f *fakeOrderStore) InsertOrder(_ context.Context, _ string, _ Input, _ Result) error {
	return nil
}

type noMatchCustomerSource struct{}

func (noMatchCustomerSource) ByNormalizedEmail(context.Context, string, string) ([]dedupe.CustomerRecord, error) {
	return nil, nil
}
func (noMatchCustomerSource) ByNormalizedPhone(context.Context, string, string) ([]dedupe.CustomerRecord, error) {
	return nil, nil
}
func (noMatchCustomerSource) AllForFuzzyMatch(context.Context, string) ([]dedupe.CustomerRecord, error) {
	return nil, nil
}

type noMatchAddressSource struct{}

func (noMatchAddressSource) ByAddressHash(context.Context, string, string) ([]dedupe.AddressRecord, error) {
	return nil, nil
}
func (noMatchAddressSource) ByPostalCityCountry(context.Context, string, string, string, string) ([]dedupe.AddressRecord, error) {
	return nil, nil
}
func (noMatchAddressSource) AllForFuzzyMatch(context.Context, string) ([]dedupe.AddressRecord, error) {
	return nil, nil
}

func newStore(t *testing.T) cache.Store {
	t.Helper()
	s, err := cache.NewLRUStore(100)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

func TestEvaluatePOBoxAddressHolds(t *testing.T) {
	addrValidator := address.New(newStore(t), nil, nil, nil)
	ev := &Evaluator{
		Store:            newFakeOrderStore(),
		AddressValidator: addrValidator,
		CustomerDedupe:   noMatchCustomerSource{},
		AddressDedupe:    noMatchAddressSource{},
	}

	res, err := ev.Evaluate(context.Background(), "tenant-1", Input{
		OrderID: "ORD-001",
		Customer: Customer{Email: "new@example.com"},
		ShippingAddress: address.Input{
			Line1: "P.O. Box 123", City: "New York", PostalCode: "10001", Country: "US",
		},
		TotalAmount:   100,
		Currency:      "USD",
		PaymentMethod: "card",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.RiskScore < pointsPOBox {
		t.Fatalf("expected risk score to include po box points, got %d", res.RiskScore)
	}
	if !containsTag(res.Tags, TagPOBoxDetected) {
		t.Fatalf("expected po_box_detected tag, got %v", res.Tags)
	}
	if !containsCode(res.ReasonCodes, reason.OrderPOBoxBlock) {
		t.Fatalf("expected po_box_block code, got %v", res.ReasonCodes)
	}
	if res.Action != rules.ActionHold {
		t.Fatalf("expected hold action, got %s", res.Action)
	}
}

func TestEvaluateDuplicateOrderAddsFiftyPoints(t *testing.T) {
	store := newFakeOrderStore()
	store.existing["ORD-DUP"] = true
	ev := &Evaluator{
		Store:          store,
		CustomerDedupe: noMatchCustomerSource{},
		AddressDedupe:  noMatchAddressSource{},
	}

	res, err := ev.Evaluate(context.Background(), "tenant-1", Input{
		OrderID:       "ORD-DUP",
		Customer:      Customer{Email: "a@b.com"},
		TotalAmount:   50,
		Currency:      "USD",
		PaymentMethod: "card",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !containsTag(res.Tags, TagDuplicateOrder) {
		t.Fatalf("expected duplicate_order tag, got %v", res.Tags)
	}
	if res.RiskScore < pointsDuplicateOrder {
		t.Fatalf("expected duplicate points included, got %d", res.RiskScore)
	}
}

func TestEvaluateHighValueOrderAddsFifteenPoints(t *testing.T) {
	ev := &Evaluator{
		Store:          newFakeOrderStore(),
		CustomerDedupe: noMatchCustomerSource{},
		AddressDedupe:  noMatchAddressSource{},
	}

	res, err := ev.Evaluate(context.Background(), "tenant-1", Input{
		OrderID:       "ORD-002",
		Customer:      Customer{Email: "a@b.com"},
		TotalAmount:   5000,
		Currency:      "USD",
		PaymentMethod: "card",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !containsTag(res.Tags, TagHighValueOrder) {
		t.Fatalf("expected high_value_order tag, got %v", res.Tags)
	}
	if res.RiskScore != pointsHighValueOrder {
		t.Fatalf("expected exactly %d points from the high-value rule, got %d", pointsHighValueOrder, res.RiskScore)
	}
}

func TestEvaluateHighRiskCODCombination(t *testing.T) {
	set := disposable.NewSet()
	set.Swap(newDisposableBuilder("mailinator.com"))

	addrValidator := address.New(newStore(t), &mismatchReference{}, nil, nil)
	emailValidator := email.New(newStore(t), set, &alwaysResolvable{})

	ev := &Evaluator{
		Store:            newFakeOrderStore(),
		EmailValidator:   emailValidator,
		AddressValidator: addrValidator,
		CustomerDedupe:   noMatchCustomerSource{},
		AddressDedupe:    noMatchAddressSource{},
	}

	res, err := ev.Evaluate(context.Background(), "tenant-1", Input{
		OrderID: "ORD-003",
		Customer: Customer{
			Email: "someone@mailinator.com",
			Phone: "+5215555555555",
		},
		ShippingAddress: address.Input{
			Line1: "123 Main St", City: "Springfield", PostalCode: "02108", Country: "US",
		},
		TotalAmount:   500,
		Currency:      "USD",
		PaymentMethod: "cod",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !containsTag(res.Tags, TagHighRiskRTO) {
		t.Fatalf("expected high_risk_rto tag, got %v reasons=%v score=%d", res.Tags, res.ReasonCodes, res.RiskScore)
	}
	if res.Action != "block" {
		t.Fatalf("expected block action, got %s", res.Action)
	}
}

func TestFirstSeenCapAppliesOnlyWithoutSevereCombination(t *testing.T) {
	addrValidator := address.New(newStore(t), &mismatchReference{}, nil, nil)
	ev := &Evaluator{
		Store:            newFakeOrderStore(),
		AddressValidator: addrValidator,
		CustomerDedupe:   noMatchCustomerSource{},
		AddressDedupe:    noMatchAddressSource{},
	}

	res, err := ev.Evaluate(context.Background(), "tenant-1", Input{
		OrderID: "ORD-004",
		Customer: Customer{
			Email: "new@example.com",
		},
		ShippingAddress: address.Input{
			Line1: "P.O. Box 5", City: "Springfield", PostalCode: "02108", Country: "US",
		},
		TotalAmount:   100,
		Currency:      "USD",
		PaymentMethod: "card",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.RiskScore != firstSeenRiskCap {
		t.Fatalf("expected an unremarkable new-customer order to be capped at %d, got %d", firstSeenRiskCap, res.RiskScore)
	}
	if res.Action != rules.ActionHold {
		t.Fatalf("expected hold action at the capped score, got %s", res.Action)
	}
}

func TestFirstSeenCapDoesNotSuppressHighRiskRTOBlock(t *testing.T) {
	// Same combination as TestEvaluateHighRiskCODCombination: the cap must
	// not make block unreachable for a first-seen (new) customer.
	set := disposable.NewSet()
	set.Swap(newDisposableBuilder("mailinator.com"))

	addrValidator := address.New(newStore(t), &mismatchReference{}, nil, nil)
	emailValidator := email.New(newStore(t), set, &alwaysResolvable{})

	ev := &Evaluator{
		Store:            newFakeOrderStore(),
		EmailValidator:   emailValidator,
		AddressValidator: addrValidator,
		CustomerDedupe:   noMatchCustomerSource{},
		AddressDedupe:    noMatchAddressSource{},
	}

	res, err := ev.Evaluate(context.Background(), "tenant-1", Input{
		OrderID: "ORD-005",
		Customer: Customer{
			Email: "someone@mailinator.com",
			Phone: "+5215555555555",
		},
		ShippingAddress: address.Input{
			Line1: "123 Main St", City: "Springfield", PostalCode: "02108", Country: "US",
		},
		TotalAmount:   500,
		Currency:      "USD",
		PaymentMethod: "cod",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.RiskScore <= firstSeenRiskCap {
		t.Fatalf("expected the high-risk-RTO combination to escape the first-seen cap, got %d", res.RiskScore)
	}
	if res.Action != rules.ActionBlock {
		t.Fatalf("expected block action, got %s", res.Action)
	}
}

func TestGeocodeFailedPointsNotAddedWithoutGeocoderConfigured(t *testing.T) {
	addrValidator := address.New(newStore(t), &matchingReference{}, nil, nil)
	ev := &Evaluator{
		Store:            newFakeOrderStore(),
		AddressValidator: addrValidator,
		CustomerDedupe:   noMatchCustomerSource{},
		AddressDedupe:    noMatchAddressSource{},
	}

	res, err := ev.Evaluate(context.Background(), "tenant-1", Input{
		OrderID: "ORD-006",
		Customer: Customer{
			Email: "new@example.com",
		},
		ShippingAddress: address.Input{
			Line1: "123 Main St", City: "Springfield", PostalCode: "02108", Country: "US",
		},
		TotalAmount:   100,
		Currency:      "USD",
		PaymentMethod: "card",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.RiskScore != 0 {
		t.Fatalf("expected no risk points manufactured from an unconfigured geocoder, got %d", res.RiskScore)
	}
}

type mismatchReference struct{}

func (mismatchReference) Lookup(_ context.Context, _, _, _ string) (string, bool, error) {
	return "Boston", true, nil
}

type matchingReference struct{}

func (matchingReference) Lookup(_ context.Context, _, _, _ string) (string, bool, error) {
	return "Springfield", true, nil
}

type alwaysResolvable struct{}

func (alwaysResolvable) HasMX(_ context.Context, _ string) (bool, error)   { return true, nil }
func (alwaysResolvable) HasA(_ context.Context, _ string) (bool, error)    { return true, nil }
func (alwaysResolvable) HasAAAA(_ context.Context, _ string) (bool, error) { return false, nil }

func newDisposableBuilder(domains ...string) *disposable.Builder {
	b := disposable.NewBuilder()
	for _, d := range domains {
		b.Add(d)
	}
	return b
}

func containsTag(tags []Tag, target Tag) bool {
	for _, t := range tags {
		if t == target {
			return true
		}
	}
	return false
}

func containsCode(codes []reason.Code, target reason.Code) bool {
	for _, c := range codes {
		if c == target {
			return true
		}
	}
	return false
}
