// Package email implements the email validator from §4.2: syntactic check,
// DNS-backed MX→A→AAAA fallback, disposable-domain membership, and a
// two-tier cache (full verdict 30d, domain facts 7d).
//
// Grounded on the MX-lookup/disposable/TTL-cache shape of the emailguard
// reference package, generalized to the tenant-scoped cache.Store and an
// injected disposable.Set rather than a package-global blocklist.
package email

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"golang.org/x/net/idna"

	"github.com/orbicheck/orbicheck/internal/cache"
	"github.com/orbicheck/orbicheck/internal/disposable"
	"github.com/orbicheck/orbicheck/internal/reason"
)

const (
	resultTTL = 30 * 24 * time.Hour
	domainTTL = 7 * 24 * time.Hour
)

// Resolver is the narrow DNS surface the validator needs; *DNSResolver in
// dns.go is the production implementation backed by miekg/dns. Tests
// supply their own fakes.
type Resolver interface {
	HasMX(ctx context.Context, domain string) (bool, error)
	HasA(ctx context.Context, domain string) (bool, error)
	HasAAAA(ctx context.Context, domain string) (bool, error)
}

// Result is the §4.2 response shape, minus request_id which the HTTP layer
// stamps on the way out.
type Result struct {
	Valid       bool          `json:"valid"`
	Normalized  string        `json:"normalized"`
	Disposable  bool          `json:"disposable"`
	MXFound     bool          `json:"mx_found"`
	ReasonCodes []reason.Code `json:"reason_codes"`
	TTLSeconds  int           `json:"ttl_seconds"`
}

type domainFacts struct {
	MXFound    bool `json:"mx_found"`
	Disposable bool `json:"disposable"`
}

// Validator is the stateful email validator bound to one tenant's cache.
type Validator struct {
	Cache      cache.Store
	Disposable *disposable.Set
	Resolver   Resolver
}

// New builds a Validator. resolver may be nil only in tests that never reach
// the DNS step (e.g. pure syntax failures).
func New(store cache.Store, set *disposable.Set, resolver Resolver) *Validator {
	return &Validator{Cache: store, Disposable: set, Resolver: resolver}
}

// Validate runs the full §4.2 algorithm for one tenant.
func (v *Validator) Validate(ctx context.Context, tenantID, raw string) Result {
	normalized, syntaxOK := normalize(raw)
	if normalized == "" {
		return Result{Valid: false, Normalized: "", ReasonCodes: []reason.Code{reason.EmailInvalidFormat}}
	}

	resultKey := "validator:email:" + sha1Hex(normalized)
	if cached, hit, err := v.Cache.Get(ctx, tenantID, resultKey); err == nil && hit {
		var r Result
		if jsonErr := json.Unmarshal(cached, &r); jsonErr == nil {
			return r
		}
	}

	if !syntaxOK {
		return Result{
			Valid:       false,
			Normalized:  normalized,
			MXFound:     false,
			ReasonCodes: []reason.Code{reason.EmailInvalidFormat},
		}
	}

	domain := domainPart(normalized)
	facts, codes, err := v.domainFacts(ctx, tenantID, domain)
	if err != nil {
		return Result{
			Valid:       false,
			Normalized:  normalized,
			ReasonCodes: []reason.Code{reason.EmailServerError},
		}
	}

	codes = reason.Dedup(codes)
	valid := facts.MXFound && !facts.Disposable
	res := Result{
		Valid:       valid,
		Normalized:  normalized,
		Disposable:  facts.Disposable,
		MXFound:     facts.MXFound,
		ReasonCodes: codes,
		TTLSeconds:  int(resultTTL.Seconds()),
	}

	if body, err := json.Marshal(res); err == nil {
		_ = v.Cache.Set(ctx, tenantID, resultKey, body, resultTTL)
	}
	return res
}

func (v *Validator) domainFacts(ctx context.Context, tenantID, domain string) (domainFacts, []reason.Code, error) {
	domainKey := "domain:" + domain
	if cached, hit, err := v.Cache.Get(ctx, tenantID, domainKey); err == nil && hit {
		var f domainFacts
		if jsonErr := json.Unmarshal(cached, &f); jsonErr == nil {
			return f, codesFor(f), nil
		}
	}

	var f domainFacts
	var codes []reason.Code

	mxFound, err := v.lookupMX(ctx, domain)
	if err != nil {
		return domainFacts{}, nil, err
	}
	f.MXFound = mxFound
	if !mxFound {
		codes = append(codes, reason.EmailMXNotFound)
	}

	if v.Disposable != nil && v.Disposable.Contains(domain) {
		f.Disposable = true
		codes = append(codes, reason.EmailDisposableDomain)
	}

	if body, err := json.Marshal(f); err == nil {
		_ = v.Cache.Set(ctx, tenantID, domainKey, body, domainTTL)
	}
	return f, codes, nil
}

func codesFor(f domainFacts) []reason.Code {
	var codes []reason.Code
	if !f.MXFound {
		codes = append(codes, reason.EmailMXNotFound)
	}
	if f.Disposable {
		codes = append(codes, reason.EmailDisposableDomain)
	}
	return codes
}

// lookupMX performs the MX→A→AAAA fallback chain; any record type found
// counts as "has mail route" per §4.2 step 4.
func (v *Validator) lookupMX(ctx context.Context, domain string) (bool, error) {
	if v.Resolver == nil {
		return false, nil
	}
	if ok, err := v.Resolver.HasMX(ctx, domain); err == nil && ok {
		return true, nil
	}
	if ok, err := v.Resolver.HasA(ctx, domain); err == nil && ok {
		return true, nil
	}
	if ok, err := v.Resolver.HasAAAA(ctx, domain); err == nil && ok {
		return true, nil
	}
	return false, nil
}

// normalize lowercases and trims the address, converts the domain part to
// ASCII (IDN→punycode), and reports whether the result is syntactically a
// single-@ address with a non-empty local part and a dotted domain.
func normalize(raw string) (string, bool) {
	s := strings.TrimSpace(strings.ToLower(raw))
	if s == "" {
		return "", false
	}
	at := strings.LastIndexByte(s, '@')
	if at <= 0 || at == len(s)-1 {
		return "", false
	}
	local, domain := s[:at], s[at+1:]
	asciiDomain, err := idna.Lookup.ToASCII(domain)
	if err != nil {
		return local + "@" + domain, false
	}
	normalized := local + "@" + asciiDomain
	if !strings.Contains(asciiDomain, ".") {
		return normalized, false
	}
	return normalized, true
}

func domainPart(normalized string) string {
	at := strings.LastIndexByte(normalized, '@')
	if at < 0 {
		return ""
	}
	return normalized[at+1:]
}

func sha1Hex(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
