// Package address implements the §4.4 address validator: normalization,
// PO-box detection, postal↔city coherence against a per-tenant reference
// table, and geocode + country-bounds checks.
package address

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/orbicheck/orbicheck/internal/cache"
	"github.com/orbicheck/orbicheck/internal/reason"
)

const resultTTL = 7 * 24 * time.Hour

// Input is the structured request shape.
type Input struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	State      string `json:"state,omitempty"`
	Country    string `json:"country"`
}

// GeoPoint is the resolved geocode result.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Result is the §4.4 response shape, minus request_id.
type Result struct {
	Valid            bool          `json:"valid"`
	Normalized       Input         `json:"normalized"`
	Geo              *GeoPoint     `json:"geo,omitempty"`
	POBox            bool          `json:"po_box"`
	PostalCityMatch  bool          `json:"postal_city_match"`
	InBounds         *bool         `json:"in_bounds,omitempty"`
	ReasonCodes      []reason.Code `json:"reason_codes"`
	TTLSeconds       int           `json:"ttl_seconds"`
}

// poBoxPatterns matches localized PO-box phrasing, case-insensitively.
var poBoxPatterns = regexp.MustCompile(`(?i)\b(p\.?\s?o\.?\s?box|post\s?office\s?box|apartado(?:\s+postal)?|casilla(?:\s+de\s+correo)?|caixa\s+postal|postfach)\b`)

// PostalReference resolves whether (postalCode, city, country) are
// coherent for a tenant; ok=false means "no reference entry" rather than
// "mismatch" (§4.4 step 3: missing reference does not flag).
type PostalReference interface {
	Lookup(ctx context.Context, tenantID, country, postalCode string) (city string, ok bool, err error)
}

// Geocoder resolves a normalized address to coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, in Input) (GeoPoint, error)
}

// BoundsTable resolves a country's bounding box.
type BoundsTable interface {
	InBounds(ctx context.Context, country string, p GeoPoint) (bool, error)
}

// Validator is the stateful address validator bound to one tenant's cache
// and collaborators.
type Validator struct {
	Cache     cache.Store
	Reference PostalReference
	Geocoder  Geocoder
	Bounds    BoundsTable
}

func New(store cache.Store, ref PostalReference, geo Geocoder, bounds BoundsTable) *Validator {
	return &Validator{Cache: store, Reference: ref, Geocoder: geo, Bounds: bounds}
}

// Validate runs the full §4.4 algorithm for one tenant.
func (v *Validator) Validate(ctx context.Context, tenantID string, in Input) Result {
	normalized := normalize(in)

	cacheKey := "validator:address:" + canonicalKey(normalized)
	if cached, hit, err := v.Cache.Get(ctx, tenantID, cacheKey); err == nil && hit {
		var r Result
		if jsonErr := json.Unmarshal(cached, &r); jsonErr == nil {
			return r
		}
	}

	var codes []reason.Code

	poBox := poBoxPatterns.MatchString(normalized.Line1) || poBoxPatterns.MatchString(normalized.Line2)
	if poBox {
		codes = append(codes, reason.AddressPOBox)
	}

	postalMatch := true
	if v.Reference != nil {
		city, ok, err := v.Reference.Lookup(ctx, tenantID, normalized.Country, normalized.PostalCode)
		if err != nil || !ok {
			codes = append(codes, reason.AddressPostalReferenceUnknown)
		} else if !strings.EqualFold(strings.TrimSpace(city), normalized.City) {
			postalMatch = false
			codes = append(codes, reason.AddressPostalCityMismatch)
		}
	} else {
		codes = append(codes, reason.AddressPostalReferenceUnknown)
	}

	var geo *GeoPoint
	var inBounds *bool
	if v.Geocoder != nil {
		if g, err := v.Geocoder.Geocode(ctx, normalized); err == nil {
			geo = &g
			if v.Bounds != nil {
				if ok, err := v.Bounds.InBounds(ctx, normalized.Country, g); err == nil {
					inBounds = &ok
					if !ok {
						codes = append(codes, reason.AddressGeoOutOfBounds)
					}
				}
			}
		} else {
			codes = append(codes, reason.AddressGeocodeFailed)
		}
	}

	valid := !poBox && postalMatch && (geo == nil || (inBounds != nil && *inBounds))

	res := Result{
		Valid:           valid,
		Normalized:      normalized,
		Geo:             geo,
		POBox:           poBox,
		PostalCityMatch: postalMatch,
		InBounds:        inBounds,
		ReasonCodes:     reason.Dedup(codes),
		TTLSeconds:      int(resultTTL.Seconds()),
	}

	if body, err := json.Marshal(res); err == nil {
		_ = v.Cache.Set(ctx, tenantID, cacheKey, body, resultTTL)
	}
	return res
}

func normalize(in Input) Input {
	return Input{
		Line1:      strings.TrimSpace(in.Line1),
		Line2:      strings.TrimSpace(in.Line2),
		City:       strings.TrimSpace(in.City),
		PostalCode: strings.ToUpper(strings.TrimSpace(in.PostalCode)),
		State:      strings.TrimSpace(in.State),
		Country:    strings.ToUpper(strings.TrimSpace(in.Country)),
	}
}

// canonicalKey builds a deterministic cache key from the normalized
// address's canonicalized JSON (§4.4 step 5).
func canonicalKey(in Input) string {
	b, _ := json.Marshal(in)
	return strings.ToLower(string(b))
}
