// Package phone implements the §4.3 phone validator: a hand-rolled E.164
// parser (no library-equivalent exists anywhere in the retrieved example
// corpus, so this is deliberately built on the standard library), an
// optional country hint, and an OTP provider hook for verification.
package phone

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/orbicheck/orbicheck/internal/reason"
)

// callingCodes is a minimal country-calling-code table sufficient to infer
// an ISO country from an E.164 number's prefix when the caller does not
// supply a hint. It is not exhaustive; unmapped prefixes still parse, just
// without a resolved country.
var callingCodes = map[string]string{
	"1":   "US",
	"44":  "GB",
	"49":  "DE",
	"33":  "FR",
	"34":  "ES",
	"39":  "IT",
	"52":  "MX",
	"55":  "BR",
	"54":  "AR",
	"56":  "CL",
	"51":  "PE",
	"57":  "CO",
	"91":  "IN",
	"81":  "JP",
	"86":  "CN",
	"61":  "AU",
	"27":  "ZA",
	"234": "NG",
	"971": "AE",
}

var e164Pattern = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)

// ErrUnparseable is returned for input that cannot be interpreted as a
// phone number at all (non-numeric garbage, empty string).
var ErrUnparseable = errors.New("phone: unparseable")

// Result is the §4.3 response shape.
type Result struct {
	Valid       bool          `json:"valid"`
	E164        string        `json:"e164,omitempty"`
	Country     string        `json:"country,omitempty"`
	ReasonCodes []reason.Code `json:"reason_codes"`
}

// Parse normalizes raw into E.164 form, optionally using countryHint (ISO
// 3166-1 alpha-2) to disambiguate numbers given in national format.
func Parse(raw string, countryHint string) Result {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Result{Valid: false, ReasonCodes: []reason.Code{reason.PhoneUnparseable}}
	}

	digits := stripNonDigits(s)
	if digits == "" {
		return Result{Valid: false, ReasonCodes: []reason.Code{reason.PhoneUnparseable}}
	}

	e164 := toE164(s, digits, countryHint)
	if !e164Pattern.MatchString(e164) {
		return Result{Valid: false, ReasonCodes: []reason.Code{reason.PhoneInvalidFormat}}
	}

	country := countryHint
	if country == "" {
		country = countryFromE164(e164)
	}

	return Result{Valid: true, E164: e164, Country: strings.ToUpper(country)}
}

func stripNonDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// toE164 builds a best-effort E.164 string. Input already carrying a '+'
// is treated as already having a country code; otherwise a hinted
// country's calling code is prepended if known.
func toE164(raw, digits, countryHint string) string {
	if strings.HasPrefix(strings.TrimSpace(raw), "+") {
		return "+" + digits
	}
	if cc := callingCodeFor(countryHint); cc != "" {
		return "+" + cc + strings.TrimPrefix(digits, "0")
	}
	return "+" + digits
}

func callingCodeFor(country string) string {
	country = strings.ToUpper(strings.TrimSpace(country))
	for code, iso := range callingCodes {
		if iso == country {
			return code
		}
	}
	return ""
}

func countryFromE164(e164 string) string {
	digits := strings.TrimPrefix(e164, "+")
	for _, n := range []int{3, 2, 1} {
		if len(digits) < n {
			continue
		}
		if iso, ok := callingCodes[digits[:n]]; ok {
			return iso
		}
	}
	return ""
}

// OTPProvider is the narrow interface the validator calls into when a
// caller requests an OTP; implementations wrap the actual SMS/voice
// provider behind §6's abstraction boundary.
type OTPProvider interface {
	Send(ctx context.Context, e164 string) (verificationID string, err error)
	Check(ctx context.Context, verificationID, code string) (valid bool, err error)
}

// SendOTP attaches verification_id and phone.otp_sent on success, or
// phone.otp_send_failed on provider failure — the parse result itself is
// still returned regardless of OTP outcome (§4.3: "still return valid =
// the parse result").
func SendOTP(ctx context.Context, provider OTPProvider, parsed Result) (Result, string) {
	if !parsed.Valid || provider == nil {
		return parsed, ""
	}
	verificationID, err := provider.Send(ctx, parsed.E164)
	if err != nil {
		parsed.ReasonCodes = reason.Dedup(append(parsed.ReasonCodes, reason.PhoneOTPSendFailed))
		return parsed, ""
	}
	parsed.ReasonCodes = reason.Dedup(append(parsed.ReasonCodes, reason.PhoneOTPSent))
	return parsed, verificationID
}

// VerifyOTP is the separate OTP-verify endpoint's algorithm: {verification_sid, code} → {valid, reason_codes}.
func VerifyOTP(ctx context.Context, provider OTPProvider, verificationID, code string) (bool, []reason.Code) {
	ok, err := provider.Check(ctx, verificationID, code)
	if err != nil || !ok {
		return false, []reason.Code{reason.PhoneOTPInvalid}
	}
	return true, nil
}
