package auth

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrPATNotFound = errors.New("auth: personal access token not found")
	ErrPATExpired  = errors.New("auth: personal access token expired")
	ErrPATDenied   = errors.New("auth: personal access token denied by ip allowlist")
)

// PATRecord is the persisted shape of a personal_access_tokens row (§3:
// "user-scoped, hashed with application-wide pepper; may carry IP
// allowlist, scopes, expiry").
type PATRecord struct {
	ProjectID  string
	UserID     string
	Hash       string // bcrypt hash of (pepper + secret)
	Scopes     []string
	IPAllowlist []string // CIDR or bare IPs; empty = unrestricted
	ExpiresAt  *time.Time
}

// PATLookup resolves a caller-supplied PAT identifier (its non-secret id
// portion) to the candidate record; the secret material is verified
// separately via bcrypt.
type PATLookup func(ctx context.Context, tokenID string) (PATRecord, error)

// PATVerifier authenticates bearer tokens presented as personal access
// tokens, in the form "<token_id>.<secret>".
type PATVerifier struct {
	Lookup PATLookup
	Pepper []byte
}

func NewPATVerifier(lookup PATLookup, pepper []byte) *PATVerifier {
	return &PATVerifier{Lookup: lookup, Pepper: pepper}
}

// Verify checks token against the stored bcrypt hash, enforces expiry and
// the optional IP allowlist against the caller's remote address.
func (v *PATVerifier) Verify(ctx context.Context, token, remoteIP string) (Context, error) {
	tokenID, secret, ok := splitPAT(token)
	if !ok {
		return Context{}, ErrPATNotFound
	}

	rec, err := v.Lookup(ctx, tokenID)
	if err != nil {
		return Context{}, ErrPATNotFound
	}

	if rec.ExpiresAt != nil && time.Now().UTC().After(*rec.ExpiresAt) {
		return Context{}, ErrPATExpired
	}

	peppered := append(append([]byte{}, v.Pepper...), []byte(secret)...)
	if err := bcrypt.CompareHashAndPassword([]byte(rec.Hash), peppered); err != nil {
		return Context{}, ErrPATNotFound
	}

	if len(rec.IPAllowlist) > 0 && !ipAllowed(remoteIP, rec.IPAllowlist) {
		return Context{}, ErrPATDenied
	}

	return Context{ProjectID: rec.ProjectID, UserID: rec.UserID, Scopes: rec.Scopes, Method: "pat"}, nil
}

// HashPATSecret bcrypt-hashes a freshly generated secret with the
// application-wide pepper, for persistence at issuance time.
func HashPATSecret(secret string, pepper []byte) (string, error) {
	peppered := append(append([]byte{}, pepper...), []byte(secret)...)
	b, err := bcrypt.GenerateFromPassword(peppered, bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func splitPAT(token string) (tokenID, secret string, ok bool) {
	token = strings.TrimSpace(token)
	idx := strings.IndexByte(token, '.')
	if idx <= 0 || idx == len(token)-1 {
		return "", "", false
	}
	return token[:idx], token[idx+1:], true
}

func ipAllowed(remoteIP string, allowlist []string) bool {
	ip := net.ParseIP(strings.TrimSpace(remoteIP))
	if ip == nil {
		return false
	}
	for _, entry := range allowlist {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			_, cidr, err := net.ParseCIDR(entry)
			if err == nil && cidr.Contains(ip) {
				return true
			}
			continue
		}
		if net.ParseIP(entry).Equal(ip) {
			return true
		}
	}
	return false
}
