// Package reason holds the closed catalogue of reason codes emitted by
// OrbiCheck's validators, the dedupe engine, and the order evaluator. Every
// code a response can carry is declared here; nothing else in this module
// may construct a reason code string at a call site.
package reason

import "sort"

// Category groups codes along the axis the catalogue endpoint reports them
// by (spec: email, phone, address, taxid, order, dedupe, webhook, batch).
type Category string

const (
	CategoryEmail   Category = "email"
	CategoryPhone   Category = "phone"
	CategoryAddress Category = "address"
	CategoryTaxID   Category = "taxid"
	CategoryOrder   Category = "order"
	CategoryDedupe  Category = "dedupe"
	CategoryWebhook Category = "webhook"
	CategoryBatch   Category = "batch"
)

// Severity is the second axis of the catalogue.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Code is an opaque dotted string, `category.detail`.
type Code string

// Meta describes one catalogue entry.
type Meta struct {
	Category    Category `json:"category"`
	Severity    Severity `json:"severity"`
	Description string   `json:"description"`
}

// Email validator (§4.2).
const (
	EmailInvalidFormat   Code = "email.invalid_format"
	EmailMXNotFound      Code = "email.mx_not_found"
	EmailDisposableDomain Code = "email.disposable_domain"
	EmailServerError     Code = "email.server_error"
)

// Phone validator (§4.3).
const (
	PhoneInvalidFormat  Code = "phone.invalid_format"
	PhoneUnparseable    Code = "phone.unparseable"
	PhoneOTPSent        Code = "phone.otp_sent"
	PhoneOTPSendFailed  Code = "phone.otp_send_failed"
	PhoneOTPInvalid     Code = "phone.otp_invalid"
)

// Address validator (§4.4).
const (
	AddressPOBox                  Code = "address.po_box"
	AddressPostalReferenceUnknown Code = "address.postal_reference_unknown"
	AddressPostalCityMismatch     Code = "address.postal_city_mismatch"
	AddressGeoOutOfBounds         Code = "address.geo_out_of_bounds"
	AddressGeocodeFailed          Code = "address.geocode_failed"
)

// Tax ID validator (§4.5).
const (
	TaxIDInvalidFormat   Code = "taxid.invalid_format"
	TaxIDInvalidChecksum Code = "taxid.invalid_checksum"
	TaxIDViesInvalid     Code = "taxid.vies_invalid"
	TaxIDViesUnavailable Code = "taxid.vies_unavailable"
)

// Dedupe engine (§4.6) — informational, attached to match responses.
const (
	DedupeExactMatchFound Code = "dedupe.exact_match_found"
	DedupeFuzzyMatchFound Code = "dedupe.fuzzy_match_found"
)

// Order evaluator (§4.11).
const (
	OrderDuplicateDetected   Code = "order.duplicate_detected"
	OrderCustomerDedupeMatch Code = "order.customer_dedupe_match"
	OrderAddressDedupeMatch  Code = "order.address_dedupe_match"
	OrderInvalidAddress      Code = "order.invalid_address"
	OrderPOBoxBlock          Code = "order.po_box_block"
	OrderInvalidEmail        Code = "order.invalid_email"
	OrderInvalidPhone        Code = "order.invalid_phone"
	OrderDisposableEmail     Code = "order.disposable_email"
	OrderCODOrder            Code = "order.cod_order"
	OrderHighRiskRTO         Code = "order.high_risk_rto"
	OrderHighValueOrder      Code = "order.high_value_order"
)

// Webhook dispatcher (§4.12).
const (
	WebhookSendFailed Code = "webhook.send_failed"
)

var registry = map[Code]Meta{
	EmailInvalidFormat:    {CategoryEmail, SeverityHigh, "address failed syntactic validation"},
	EmailMXNotFound:       {CategoryEmail, SeverityMedium, "no MX, A, or AAAA record for the domain"},
	EmailDisposableDomain: {CategoryEmail, SeverityHigh, "domain is a known disposable-email provider"},
	EmailServerError:      {CategoryEmail, SeverityLow, "validator failed unexpectedly; result not cached"},

	PhoneInvalidFormat: {CategoryPhone, SeverityHigh, "number failed format validation"},
	PhoneUnparseable:   {CategoryPhone, SeverityHigh, "number could not be parsed at all"},
	PhoneOTPSent:       {CategoryPhone, SeverityLow, "verification code dispatched"},
	PhoneOTPSendFailed: {CategoryPhone, SeverityMedium, "OTP provider failed to dispatch a code"},
	PhoneOTPInvalid:    {CategoryPhone, SeverityMedium, "submitted verification code was rejected"},

	AddressPOBox:                  {CategoryAddress, SeverityMedium, "line1/line2 matched a PO box pattern"},
	AddressPostalReferenceUnknown: {CategoryAddress, SeverityLow, "no postal reference row for this tenant/postal code"},
	AddressPostalCityMismatch:     {CategoryAddress, SeverityMedium, "postal code and city do not correspond per reference table"},
	AddressGeoOutOfBounds:         {CategoryAddress, SeverityHigh, "geocoded point falls outside the declared country's bounds"},
	AddressGeocodeFailed:          {CategoryAddress, SeverityLow, "geocoder returned no result"},

	TaxIDInvalidFormat:   {CategoryTaxID, SeverityHigh, "value does not match the expected pattern for its type"},
	TaxIDInvalidChecksum: {CategoryTaxID, SeverityHigh, "value matched the pattern but failed its checksum"},
	TaxIDViesInvalid:     {CategoryTaxID, SeverityMedium, "VIES reported the VAT number as invalid"},
	TaxIDViesUnavailable: {CategoryTaxID, SeverityLow, "VIES lookup failed; format-level verdict still returned"},

	DedupeExactMatchFound: {CategoryDedupe, SeverityMedium, "an exact match was found in tenant history"},
	DedupeFuzzyMatchFound: {CategoryDedupe, SeverityLow, "a fuzzy match above threshold was found in tenant history"},

	OrderDuplicateDetected:   {CategoryOrder, SeverityHigh, "order_id already exists for this tenant"},
	OrderCustomerDedupeMatch: {CategoryOrder, SeverityMedium, "customer matched an existing tenant record"},
	OrderAddressDedupeMatch:  {CategoryOrder, SeverityMedium, "shipping address matched an existing tenant record"},
	OrderInvalidAddress:      {CategoryOrder, SeverityMedium, "shipping address failed validation"},
	OrderPOBoxBlock:          {CategoryOrder, SeverityMedium, "shipping address is a PO box"},
	OrderInvalidEmail:        {CategoryOrder, SeverityMedium, "customer email failed validation"},
	OrderInvalidPhone:        {CategoryOrder, SeverityMedium, "customer phone failed validation"},
	OrderDisposableEmail:     {CategoryOrder, SeverityHigh, "customer email domain is disposable"},
	OrderCODOrder:            {CategoryOrder, SeverityLow, "cash-on-delivery payment method"},
	OrderHighRiskRTO:         {CategoryOrder, SeverityHigh, "new customer, region mismatch, and disposable email combined"},
	OrderHighValueOrder:      {CategoryOrder, SeverityLow, "order total exceeds the high-value threshold"},

	WebhookSendFailed: {CategoryWebhook, SeverityMedium, "delivery exhausted its retry budget"},
}

// Known reports whether code is in the catalogue.
func Known(code Code) bool {
	_, ok := registry[code]
	return ok
}

// Lookup returns the metadata for code.
func Lookup(code Code) (Meta, bool) {
	m, ok := registry[code]
	return m, ok
}

// All returns every registered code, sorted — the body of the catalogue
// endpoint (`/v1/rules/catalog`).
func All() []Code {
	out := make([]Code, 0, len(registry))
	for c := range registry {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Dedup removes repeats from codes, preserving first-occurrence order, per
// the closing line of §4.1 and §4.11 ("Reason codes ... de-duplicated
// preserving first-occurrence order").
func Dedup(codes []Code) []Code {
	seen := make(map[Code]struct{}, len(codes))
	out := make([]Code, 0, len(codes))
	for _, c := range codes {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
