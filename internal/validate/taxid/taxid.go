// Package taxid implements the §4.5 per-country tax-identifier validator:
// format/checksum rules per type, plus an optional VIES lookup for VAT
// numbers.
package taxid

import (
	"context"
	"regexp"
	"strings"

	"github.com/orbicheck/orbicheck/internal/reason"
)

// Type enumerates the tagged tax-ID kinds §4.5 supports.
type Type string

const (
	TypeCPF  Type = "cpf"
	TypeCNPJ Type = "cnpj"
	TypeRFC  Type = "rfc"
	TypeCUIT Type = "cuit"
	TypeRUT  Type = "rut"
	TypeRUC  Type = "ruc"
	TypeNIT  Type = "nit"
	TypeNIF  Type = "nif"
	TypeEIN  Type = "ein"
	TypeVAT  Type = "vat"
)

// Result is the §4.5 response shape.
type Result struct {
	Valid       bool          `json:"valid"`
	Normalized  string        `json:"normalized"`
	Type        Type          `json:"type"`
	ReasonCodes []reason.Code `json:"reason_codes"`
}

// normalizeValue strips everything but letters and digits, uppercasing the rest —
// "normalizes to digits/letters only" per §4.5.
func normalizeValue(raw string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(raw) {
		if (r >= '0' && r <= '9') || (r >= 'A' && r <= 'Z') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

var formatPatterns = map[Type]*regexp.Regexp{
	TypeCPF:  regexp.MustCompile(`^\d{11}$`),
	TypeCNPJ: regexp.MustCompile(`^\d{14}$`),
	TypeRFC:  regexp.MustCompile(`^[A-Z]{3,4}\d{6}[A-Z0-9]{3}$`),
	TypeCUIT: regexp.MustCompile(`^\d{11}$`),
	TypeRUT:  regexp.MustCompile(`^\d{7,9}[0-9K]$`),
	TypeRUC:  regexp.MustCompile(`^\d{11}$`),
	TypeNIT:  regexp.MustCompile(`^\d{8,15}$`),
	TypeNIF:  regexp.MustCompile(`^[A-Z0-9]{8,9}$`),
	TypeEIN:  regexp.MustCompile(`^\d{9}$`),
	TypeVAT:  regexp.MustCompile(`^[A-Z]{2}[A-Z0-9]{2,12}$`),
}

// Validate normalizes and runs the per-type regex + checksum. VIES lookup
// (for VAT) is a separate, optional step — see ValidateVAT.
func Validate(typ Type, raw string) Result {
	normalized := normalizeValue(raw)
	pattern, known := formatPatterns[typ]
	if !known {
		return Result{Valid: false, Normalized: normalized, Type: typ, ReasonCodes: []reason.Code{reason.TaxIDInvalidFormat}}
	}
	if !pattern.MatchString(normalized) {
		return Result{Valid: false, Normalized: normalized, Type: typ, ReasonCodes: []reason.Code{reason.TaxIDInvalidFormat}}
	}

	if checksumOK, hasChecksum := checksum(typ, normalized); hasChecksum && !checksumOK {
		return Result{Valid: false, Normalized: normalized, Type: typ, ReasonCodes: []reason.Code{reason.TaxIDInvalidChecksum}}
	}

	return Result{Valid: true, Normalized: normalized, Type: typ}
}

// checksum runs a type-specific checksum when one exists; ok=false with
// hasChecksum=false means the type has no checksum step beyond format.
func checksum(typ Type, normalized string) (ok bool, hasChecksum bool) {
	switch typ {
	case TypeCPF:
		return cpfChecksum(normalized), true
	case TypeCNPJ:
		return cnpjChecksum(normalized), true
	case TypeCUIT:
		return cuitChecksum(normalized), true
	case TypeRUT:
		return rutChecksum(normalized), true
	default:
		return false, false
	}
}

func cpfChecksum(d string) bool {
	if len(d) != 11 || allSameDigit(d) {
		return false
	}
	digits := toDigits(d)
	d1 := modCheckDigit(digits[:9], 11)
	if d1 != d[9] {
		return false
	}
	d2 := modCheckDigit(digits[:10], 11)
	return d2 == d[10]
}

func cnpjChecksum(d string) bool {
	if len(d) != 14 || allSameDigit(d) {
		return false
	}
	digits := toDigits(d)
	weights1 := []int{5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
	d1 := weightedModCheck(digits[:12], weights1)
	if d1 != d[12] {
		return false
	}
	weights2 := []int{6, 5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
	d2 := weightedModCheck(digits[:13], weights2)
	return d2 == d[13]
}

func cuitChecksum(d string) bool {
	if len(d) != 11 {
		return false
	}
	digits := toDigits(d)
	weights := []int{5, 4, 3, 2, 7, 6, 5, 4, 3, 2}
	sum := 0
	for i, w := range weights {
		sum += digits[i] * w
	}
	rem := sum % 11
	check := 11 - rem
	if check == 11 {
		check = 0
	}
	if check == 10 {
		return false
	}
	return check == digits[10]
}

func rutChecksum(d string) bool {
	if len(d) < 8 {
		return false
	}
	body, dv := d[:len(d)-1], d[len(d)-1]
	digits := toDigits(body)
	weights := []int{2, 3, 4, 5, 6, 7}
	sum := 0
	for i := len(digits) - 1; i >= 0; i-- {
		w := weights[(len(digits)-1-i)%len(weights)]
		sum += digits[i] * w
	}
	rem := 11 - (sum % 11)
	var expected byte
	switch rem {
	case 11:
		expected = '0'
	case 10:
		expected = 'K'
	default:
		expected = byte('0' + rem)
	}
	return dv == expected
}

func allSameDigit(s string) bool {
	for i := 1; i < len(s); i++ {
		if s[i] != s[0] {
			return false
		}
	}
	return true
}

func toDigits(s string) []int {
	out := make([]int, len(s))
	for i, r := range s {
		out[i] = int(r - '0')
	}
	return out
}

func modCheckDigit(digits []int, mod int) byte {
	weight := len(digits) + 1
	sum := 0
	for _, d := range digits {
		sum += d * weight
		weight--
	}
	rem := (sum * 10) % mod
	if rem == 10 || rem == 11 {
		rem = 0
	}
	return byte('0' + rem)
}

func weightedModCheck(digits []int, weights []int) byte {
	sum := 0
	for i, d := range digits {
		sum += d * weights[i]
	}
	rem := sum % 11
	if rem < 2 {
		return '0'
	}
	return byte('0' + (11 - rem))
}

// VIESClient is the narrow VAT-registry lookup surface (§6).
type VIESClient interface {
	CheckVAT(ctx context.Context, countryCode, vatNumber string) (valid bool, err error)
}

// ValidateVAT runs the format/checksum step and, when provided a client,
// an optional VIES lookup. The format-level verdict is always returned
// even if VIES is unreachable (§4.5: "best-effort; response still
// includes the format-level verdict").
func ValidateVAT(ctx context.Context, client VIESClient, raw string) Result {
	res := Validate(TypeVAT, raw)
	if !res.Valid || client == nil {
		return res
	}

	countryCode, number := res.Normalized[:2], res.Normalized[2:]
	valid, err := client.CheckVAT(ctx, countryCode, number)
	if err != nil {
		res.ReasonCodes = reason.Dedup(append(res.ReasonCodes, reason.TaxIDViesUnavailable))
		return res
	}
	if !valid {
		res.Valid = false
		res.ReasonCodes = reason.Dedup(append(res.ReasonCodes, reason.TaxIDViesInvalid))
	}
	return res
}
