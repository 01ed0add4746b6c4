package console

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"regionsim/physics/internal/auth"
)

// Identity describes an authenticated console client.
type Identity struct {
	Subject string
	CanTune bool
}

// Authenticator decides who a console upgrade request belongs to.
type Authenticator interface {
	Authenticate(r *http.Request) (Identity, error)
}

type anonymousAuthenticator struct{}

// Authenticate admits everyone as a read-only viewer.
func (anonymousAuthenticator) Authenticate(r *http.Request) (Identity, error) {
	return Identity{Subject: "anonymous@" + r.RemoteAddr}, nil
}

// NewAnonymousAuthenticator returns the authenticator used when no console
// secret is configured: every client may read, nobody may tune.
func NewAnonymousAuthenticator() Authenticator {
	return anonymousAuthenticator{}
}

type hmacAuthenticator struct {
	verifier *auth.HMACTokenVerifier
}

// NewHMACAuthenticator validates HS256 console tokens for the region.
func NewHMACAuthenticator(secret, region string) (Authenticator, error) {
	verifier, err := auth.NewHMACTokenVerifier(secret, region, 2*time.Second)
	if err != nil {
		return nil, err
	}
	return &hmacAuthenticator{verifier: verifier}, nil
}

// NewVerifierAuthenticator wraps an existing verifier, sharing its clock and region.
func NewVerifierAuthenticator(verifier *auth.HMACTokenVerifier) Authenticator {
	return &hmacAuthenticator{verifier: verifier}
}

// Authenticate validates the token from the auth_token query parameter or the
// X-Auth-Token header.
func (a *hmacAuthenticator) Authenticate(r *http.Request) (Identity, error) {
	if a == nil || a.verifier == nil {
		return Identity{}, errors.New("verifier not configured")
	}
	token := strings.TrimSpace(r.URL.Query().Get("auth_token"))
	if token == "" {
		token = strings.TrimSpace(r.Header.Get("X-Auth-Token"))
	}
	if token == "" {
		return Identity{}, errors.New("missing auth token")
	}
	claims, err := a.verifier.Verify(token)
	if err != nil {
		return Identity{}, err
	}
	return Identity{Subject: claims.Subject, CanTune: claims.CanTune()}, nil
}
