package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrInvalidToken indicates the token failed signature checks or had malformed structure.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken signals that the token's expiry is in the past.
	ErrExpiredToken = errors.New("token expired")
	// ErrWrongRegion signals a token minted for a different region.
	ErrWrongRegion = errors.New("token issued for another region")
)

// Scope values carried by console tokens.
const (
	// ScopeRead allows inspecting parameters and step statistics.
	ScopeRead = "read"
	// ScopeTune additionally allows changing parameters.
	ScopeTune = "tune"
)

const tokenHeader = `{"alg":"HS256","typ":"JWT"}`

// TokenClaims captures the console token payload.
type TokenClaims struct {
	Subject   string
	Region    string
	Scope     string
	ExpiresAt time.Time
	IssuedAt  time.Time
}

// CanTune reports whether the claims allow parameter changes.
func (c *TokenClaims) CanTune() bool {
	return c != nil && c.Scope == ScopeTune
}

type tokenPayload struct {
	Subject string `json:"sub"`
	Region  string `json:"aud"`
	Scope   string `json:"scope,omitempty"`
	Expires int64  `json:"exp"`
	Issued  int64  `json:"iat"`
}

// HMACTokenVerifier signs and validates compact JWT-style HS256 console tokens.
type HMACTokenVerifier struct {
	secret []byte
	region string
	now    func() time.Time
	leeway time.Duration
}

// NewHMACTokenVerifier constructs a verifier for the shared secret. A non-empty
// region makes tokens for other regions fail with ErrWrongRegion.
func NewHMACTokenVerifier(secret, region string, leeway time.Duration) (*HMACTokenVerifier, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("hmac secret must not be empty")
	}
	if leeway < 0 {
		leeway = 0
	}
	return &HMACTokenVerifier{secret: []byte(secret), region: strings.TrimSpace(region), now: time.Now, leeway: leeway}, nil
}

// WithClock overrides the verifier clock, enabling deterministic unit tests.
func (v *HMACTokenVerifier) WithClock(clock func() time.Time) {
	if clock == nil {
		return
	}
	v.now = clock
}

// Issue mints a token for subject valid for ttl, scoped to the verifier's region.
func (v *HMACTokenVerifier) Issue(subject, scope string, ttl time.Duration) (string, error) {
	if v == nil || len(v.secret) == 0 {
		return "", errors.New("verifier not initialised")
	}
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", errors.New("subject must not be empty")
	}
	if scope == "" {
		scope = ScopeRead
	}
	if scope != ScopeRead && scope != ScopeTune {
		return "", fmt.Errorf("unknown scope %q", scope)
	}
	issued := v.now()
	payload, err := json.Marshal(tokenPayload{
		Subject: subject,
		Region:  v.region,
		Scope:   scope,
		Expires: issued.Add(ttl).Unix(),
		Issued:  issued.Unix(),
	})
	if err != nil {
		return "", err
	}
	//1.- Header and payload are base64url without padding, joined by dots.
	signingInput := encodeSegment([]byte(tokenHeader)) + "." + encodeSegment(payload)
	signature, err := v.sign([]byte(signingInput))
	if err != nil {
		return "", err
	}
	return signingInput + "." + encodeSegment(signature), nil
}

// Verify parses the token and validates the signature, expiry and region,
// returning the embedded claims.
func (v *HMACTokenVerifier) Verify(token string) (*TokenClaims, error) {
	if v == nil || len(v.secret) == 0 {
		return nil, errors.New("verifier not initialised")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, ErrInvalidToken
	}

	//1.- Check the algorithm before trusting anything else in the token.
	headerBytes, err := decodeSegment(parts[0])
	if err != nil {
		return nil, ErrInvalidToken
	}
	var header struct {
		Algorithm string `json:"alg"`
	}
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return nil, ErrInvalidToken
	}
	if header.Algorithm != "HS256" {
		return nil, fmt.Errorf("%w: unexpected algorithm %q", ErrInvalidToken, header.Algorithm)
	}

	//2.- Constant-time signature comparison over "header.payload".
	expectedSig, err := v.sign([]byte(parts[0] + "." + parts[1]))
	if err != nil {
		return nil, err
	}
	signatureBytes, err := decodeSegment(parts[2])
	if err != nil {
		return nil, ErrInvalidToken
	}
	if !hmac.Equal(signatureBytes, expectedSig) {
		return nil, ErrInvalidToken
	}

	payloadBytes, err := decodeSegment(parts[1])
	if err != nil {
		return nil, ErrInvalidToken
	}
	var payload tokenPayload
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(payload.Subject) == "" || payload.Expires <= 0 {
		return nil, ErrInvalidToken
	}

	//3.- Expiry honours the configured clock skew allowance.
	expiresAt := time.Unix(payload.Expires, 0)
	if expiresAt.Add(v.leeway).Before(v.now()) {
		return nil, ErrExpiredToken
	}
	if v.region != "" && payload.Region != v.region {
		return nil, ErrWrongRegion
	}

	scope := payload.Scope
	if scope == "" {
		scope = ScopeRead
	}
	return &TokenClaims{
		Subject:   payload.Subject,
		Region:    payload.Region,
		Scope:     scope,
		ExpiresAt: expiresAt,
		IssuedAt:  time.Unix(payload.Issued, 0),
	}, nil
}

func (v *HMACTokenVerifier) sign(payload []byte) ([]byte, error) {
	mac := hmac.New(sha256.New, v.secret)
	if _, err := mac.Write(payload); err != nil {
		return nil, err
	}
	return mac.Sum(nil), nil
}

func encodeSegment(raw []byte) string {
	return base64.RawURLEncoding.EncodeToString(raw)
}

func decodeSegment(segment string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(segment)
}
