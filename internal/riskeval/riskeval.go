// Package riskeval implements the §4.11 order evaluator: an 11-step
// pipeline composing address/email/phone validation and customer/address
// dedupe signals into a clamped risk score, then an action from the rule
// engine override or score thresholds.
package riskeval

import (
	"context"
	"strings"

	"github.com/orbicheck/orbicheck/internal/dedupe"
	"github.com/orbicheck/orbicheck/internal/disposable"
	"github.com/orbicheck/orbicheck/internal/reason"
	"github.com/orbicheck/orbicheck/internal/rules"
	"github.com/orbicheck/orbicheck/internal/validate/address"
	"github.com/orbicheck/orbicheck/internal/validate/email"
	"github.com/orbicheck/orbicheck/internal/validate/phone"
)

// Points are the exact §4.11 contribution values.
const (
	pointsDuplicateOrder       = 50
	pointsCustomerDedupeMatch  = 20
	pointsAddressDedupeMatch   = 15
	pointsPOBox                = 30
	pointsPostalCityMismatch   = 10
	pointsGeoOutOfBounds       = 40
	pointsGeocodeFailed        = 20
	pointsInvalidAddress       = 30
	pointsInvalidEmail         = 25
	pointsInvalidPhone         = 25
	pointsCODOrder             = 20
	pointsHighRiskRTO          = 50
	pointsHighValueOrder       = 15

	highValueThreshold = 1000.0
	firstSeenRiskCap   = 60
	actionBlockFloor   = 70
	actionHoldFloor    = 40
)

// Tag is a human-facing label attached to the decision, independent of
// reason codes (§4.11 names these alongside reason codes: duplicate_order,
// potential_duplicate_customer, po_box_detected, cod_order, high_risk_rto,
// high_value_order).
type Tag string

const (
	TagDuplicateOrder           Tag = "duplicate_order"
	TagPotentialDuplicateCustomer Tag = "potential_duplicate_customer"
	TagPOBoxDetected            Tag = "po_box_detected"
	TagDisposableEmail          Tag = "disposable_email"
	TagCODOrder                 Tag = "cod_order"
	TagHighRiskRTO               Tag = "high_risk_rto"
	TagHighValueOrder            Tag = "high_value_order"
)

// Customer is the order's customer-identity input.
type Customer struct {
	Email     string
	Phone     string
	FirstName string
	LastName  string
}

// Input is the §4.11 order-evaluator request shape.
type Input struct {
	OrderID         string
	Customer        Customer
	ShippingAddress address.Input
	TotalAmount     float64
	Currency        string
	PaymentMethod   string
}

// Result is the §4.11 response shape.
type Result struct {
	RiskScore   int           `json:"risk_score"`
	Action      rules.Action  `json:"action"`
	Tags        []Tag         `json:"tags"`
	ReasonCodes []reason.Code `json:"reason_codes"`
}

// OrderStore is the narrow tenant-scoped lookup/write surface this
// package needs from internal/storage.
type OrderStore interface {
	OrderExists(ctx context.Context, tenantID, orderID string) (bool, error)
	UpsertCustomer(ctx context.Context, tenantID string, c Customer) error
	UpsertAddress(ctx context.Context, tenantID string, a address.Input) error
	InsertOrder(ctx context.Context, tenantID string, in Input, result Result) error
}

// Evaluator wires together every collaborator the §4.11 pipeline needs.
type Evaluator struct {
	Store           OrderStore
	EmailValidator  *email.Validator
	PhoneHint       string
	AddressValidator *address.Validator
	CustomerDedupe  dedupe.CustomerSource
	AddressDedupe   dedupe.AddressSource
	Disposable      *disposable.Set
	RuleEngine      *rules.Engine
	RuleSet         []rules.Rule
}

// Evaluate runs the full §4.11 pipeline for one tenant's order.
func (e *Evaluator) Evaluate(ctx context.Context, tenantID string, in Input) (Result, error) {
	var score int
	var tags []Tag
	var codes []reason.Code

	// Step 2: duplicate check.
	duplicate, err := e.Store.OrderExists(ctx, tenantID, in.OrderID)
	if err != nil {
		return Result{}, err
	}
	if duplicate {
		score += pointsDuplicateOrder
		tags = append(tags, TagDuplicateOrder)
		codes = append(codes, reason.OrderDuplicateDetected)
	}

	// Step 3: customer dedupe.
	customerMatches := 0
	if e.CustomerDedupe != nil {
		res, err := dedupe.MatchCustomer(ctx, e.CustomerDedupe, tenantID, dedupe.CustomerQuery{
			NormalizedEmail: strings.ToLower(strings.TrimSpace(in.Customer.Email)),
			NormalizedPhone: in.Customer.Phone,
			FirstName:       in.Customer.FirstName,
			LastName:        in.Customer.LastName,
		})
		if err != nil {
			return Result{}, err
		}
		customerMatches = len(res.Candidates)
		if customerMatches > 0 {
			score += pointsCustomerDedupeMatch
			tags = append(tags, TagPotentialDuplicateCustomer)
			codes = append(codes, reason.OrderCustomerDedupeMatch)
		}
	}

	// Step 4/5: address validation + address dedupe + address flags.
	var addrResult address.Result
	if e.AddressValidator != nil {
		addrResult = e.AddressValidator.Validate(ctx, tenantID, in.ShippingAddress)
	}

	addressMatches := 0
	if e.AddressDedupe != nil {
		res, err := dedupe.MatchAddress(ctx, e.AddressDedupe, tenantID, dedupe.AddressQuery{
			Line1:      in.ShippingAddress.Line1,
			City:       in.ShippingAddress.City,
			PostalCode: in.ShippingAddress.PostalCode,
			Country:    in.ShippingAddress.Country,
		})
		if err != nil {
			return Result{}, err
		}
		addressMatches = len(res.Candidates)
		if addressMatches > 0 {
			score += pointsAddressDedupeMatch
			codes = append(codes, reason.OrderAddressDedupeMatch)
		}
	}

	regionMismatch := false
	if addrResult.POBox {
		score += pointsPOBox
		tags = append(tags, TagPOBoxDetected)
		codes = append(codes, reason.OrderPOBoxBlock)
	}
	if e.AddressValidator != nil && !addrResult.PostalCityMatch {
		score += pointsPostalCityMismatch
		regionMismatch = true
	}
	geocoderConfigured := e.AddressValidator != nil && e.AddressValidator.Geocoder != nil
	if addrResult.InBounds != nil && !*addrResult.InBounds {
		score += pointsGeoOutOfBounds
	} else if geocoderConfigured && addrResult.Geo == nil {
		// Geocoder is wired but Geo is nil only when address.Validator's
		// Geocode call actually returned an error (see address.go's
		// Validate) — without a geocoder configured, Geo is always nil
		// because geocoding was never attempted, which is not a failure.
		score += pointsGeocodeFailed
	}
	if e.AddressValidator != nil && !addrResult.Valid {
		score += pointsInvalidAddress
		codes = append(codes, reason.OrderInvalidAddress)
	}

	// Step 6: email/phone validation.
	disposableEmail := false
	phoneCountry := ""
	if in.Customer.Email != "" && e.EmailValidator != nil {
		emailResult := e.EmailValidator.Validate(ctx, tenantID, in.Customer.Email)
		if !emailResult.Valid {
			score += pointsInvalidEmail
			codes = append(codes, reason.OrderInvalidEmail)
		}
		if emailResult.Disposable {
			disposableEmail = true
			tags = append(tags, TagDisposableEmail)
			codes = append(codes, reason.OrderDisposableEmail)
		}
	}
	if in.Customer.Phone != "" {
		phoneResult := phone.Parse(in.Customer.Phone, e.PhoneHint)
		if !phoneResult.Valid {
			score += pointsInvalidPhone
			codes = append(codes, reason.OrderInvalidPhone)
		}
		phoneCountry = phoneResult.Country
	}
	if phoneCountry != "" && !strings.EqualFold(phoneCountry, in.ShippingAddress.Country) {
		regionMismatch = true
	}

	// Step 7: payment-method heuristic.
	isNewCustomer := customerMatches == 0
	if strings.EqualFold(in.PaymentMethod, "cod") {
		score += pointsCODOrder
		tags = append(tags, TagCODOrder)
		codes = append(codes, reason.OrderCODOrder)

		if isNewCustomer && regionMismatch && disposableEmail {
			score += pointsHighRiskRTO
			tags = append(tags, TagHighRiskRTO)
			codes = append(codes, reason.OrderHighRiskRTO)
		}
	}

	// Step 8: high value.
	if in.TotalAmount > highValueThreshold {
		score += pointsHighValueOrder
		tags = append(tags, TagHighValueOrder)
		codes = append(codes, reason.OrderHighValueOrder)
	}

	// Step 9: rule engine override.
	var finalAction rules.Action
	if e.RuleEngine != nil {
		decision := e.RuleEngine.Evaluate(ctx, e.RuleSet, rules.EvaluationContext{
			Email:                 in.Customer.Email,
			Phone:                 in.Customer.Phone,
			Name:                  strings.TrimSpace(in.Customer.FirstName + " " + in.Customer.LastName),
			RiskScore:             clamp(score, 0, 100),
			TransactionAmount:     in.TotalAmount,
			Currency:              in.Currency,
			CustomerDedupeMatches: customerMatches,
			AddressDedupeMatches:  addressMatches,
		})
		if len(decision.Fired) > 0 {
			finalAction = decision.FinalAction
		}
	}

	// Step 10: compose final score + action. The first-seen cap only
	// softens an otherwise-unremarkable new-customer order; it never
	// overrides a severe combination (duplicate order, the high-risk-RTO
	// combo, or an explicit rule-engine block) — those must still be able
	// to reach actionBlockFloor (§8 "high-risk COD" scenario).
	raw := clamp(score, 0, 100)
	severe := duplicate || hasTag(tags, TagHighRiskRTO) || finalAction == rules.ActionBlock
	if isNewCustomer && !severe && raw > firstSeenRiskCap {
		raw = firstSeenRiskCap
	}
	if finalAction == "" {
		finalAction = actionFromThresholds(raw)
	}

	result := Result{
		RiskScore:   raw,
		Action:      finalAction,
		Tags:        tags,
		ReasonCodes: reason.Dedup(codes),
	}

	// Step 11: upsert + insert, unless duplicate.
	if !duplicate {
		if err := e.Store.UpsertCustomer(ctx, tenantID, in.Customer); err != nil {
			return Result{}, err
		}
		if err := e.Store.UpsertAddress(ctx, tenantID, in.ShippingAddress); err != nil {
			return Result{}, err
		}
		if err := e.Store.InsertOrder(ctx, tenantID, in, result); err != nil {
			return Result{}, err
		}
	}

	return result, nil
}

func actionFromThresholds(score int) rules.Action {
	switch {
	case score >= actionBlockFloor:
		return rules.ActionBlock
	case score >= actionHoldFloor:
		return rules.ActionHold
	default:
		return rules.ActionApprove
	}
}

func hasTag(tags []Tag, want Tag) bool {
	for _, t := range tags {
		if t == want {
			return true
		}
	}
	return false
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
