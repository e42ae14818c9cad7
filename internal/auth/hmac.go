package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	ErrHMACMalformed = errors.New("auth: malformed hmac authorization header")
	ErrHMACClockSkew = errors.New("auth: hmac timestamp outside allowed window")
	ErrHMACSignature = errors.New("auth: hmac signature mismatch")
	ErrHMACUnknownKey = errors.New("auth: hmac key not found")
)

const hmacClockSkew = 5 * time.Minute

// HMACKeyRecord carries the full symmetric key material for a keyId
// (the encrypted_key §3 calls out as "retained only to enable HMAC
// verification").
type HMACKeyRecord struct {
	ProjectID string
	FullKey   []byte
	Scopes    []string
}

// HMACKeyLookup resolves a keyId to its key record.
type HMACKeyLookup func(ctx context.Context, keyID string) (HMACKeyRecord, error)

// HMACVerifier authenticates the `HMAC keyId=…&ts=…&nonce=…&signature=…`
// Authorization scheme described in §4.9.
type HMACVerifier struct {
	Lookup HMACKeyLookup
	// SeenNonce, if set, reports whether (keyID, nonce) was already used
	// within the clock-skew window; nonces are ephemeral so a cache-backed
	// implementation is expected, not a durable store.
	SeenNonce func(ctx context.Context, keyID, nonce string) (bool, error)
}

func NewHMACVerifier(lookup HMACKeyLookup, seenNonce func(context.Context, string, string) (bool, error)) *HMACVerifier {
	return &HMACVerifier{Lookup: lookup, SeenNonce: seenNonce}
}

// hmacParams is the parsed Authorization header content.
type hmacParams struct {
	KeyID     string
	Timestamp string
	Nonce     string
	Signature string
}

// ParseHMACHeader parses `HMAC keyId=…&ts=…&nonce=…&signature=…`.
func ParseHMACHeader(header string) (hmacParams, error) {
	const scheme = "HMAC "
	if !strings.HasPrefix(header, scheme) {
		return hmacParams{}, ErrHMACMalformed
	}
	values, err := url.ParseQuery(strings.TrimPrefix(header, scheme))
	if err != nil {
		return hmacParams{}, fmt.Errorf("%w: %v", ErrHMACMalformed, err)
	}
	p := hmacParams{
		KeyID:     values.Get("keyId"),
		Timestamp: values.Get("ts"),
		Nonce:     values.Get("nonce"),
		Signature: values.Get("signature"),
	}
	if p.KeyID == "" || p.Timestamp == "" || p.Nonce == "" || p.Signature == "" {
		return hmacParams{}, ErrHMACMalformed
	}
	return p, nil
}

// Canonicalize builds the string HMAC signatures are computed over:
// uppercase(method) + "\n" + path + "?" + sorted-query + "\n" + ts + "\n" + nonce.
// Sorting the query string makes the signature stable across proxies that
// may reorder parameters.
func Canonicalize(method, path, rawQuery, ts, nonce string) string {
	sortedQuery := sortQueryString(rawQuery)
	pathAndQuery := path
	if sortedQuery != "" {
		pathAndQuery = path + "?" + sortedQuery
	}
	return strings.ToUpper(method) + "\n" + pathAndQuery + "\n" + ts + "\n" + nonce
}

func sortQueryString(raw string) string {
	if raw == "" {
		return ""
	}
	values, err := url.ParseQuery(raw)
	if err != nil {
		return raw
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		vs := values[k]
		sort.Strings(vs)
		for j, v := range vs {
			if i > 0 || j > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}

// Verify authenticates a request given its method, path, raw query, and
// the raw `Authorization` header value.
func (v *HMACVerifier) Verify(ctx context.Context, method, path, rawQuery, authorization string) (Context, error) {
	p, err := ParseHMACHeader(authorization)
	if err != nil {
		return Context{}, err
	}

	tsSeconds, err := strconv.ParseInt(p.Timestamp, 10, 64)
	if err != nil {
		return Context{}, ErrHMACMalformed
	}
	ts := time.Unix(tsSeconds, 0).UTC()
	if skew := time.Since(ts); skew > hmacClockSkew || skew < -hmacClockSkew {
		return Context{}, ErrHMACClockSkew
	}

	rec, err := v.Lookup(ctx, p.KeyID)
	if err != nil {
		return Context{}, ErrHMACUnknownKey
	}

	if v.SeenNonce != nil {
		seen, err := v.SeenNonce(ctx, p.KeyID, p.Nonce)
		if err == nil && seen {
			return Context{}, ErrHMACSignature
		}
	}

	canonical := Canonicalize(method, path, rawQuery, p.Timestamp, p.Nonce)
	mac := hmac.New(sha256.New, rec.FullKey)
	mac.Write([]byte(canonical))
	want := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(want), []byte(strings.ToLower(p.Signature))) {
		return Context{}, ErrHMACSignature
	}

	return Context{ProjectID: rec.ProjectID, Scopes: rec.Scopes, Method: "hmac"}, nil
}
