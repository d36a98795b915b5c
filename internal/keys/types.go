// Package keys abstracts all cryptographic operations behind a single
// Backend interface so the implementation can be swapped (software today,
// an HSM or cloud KMS later) without touching callers: DEK envelope
// encryption, SVID signing/verification, and a JWKS view.
package keys

import (
	"context"
	"time"
)

// DEKEnvelope is the result of wrapping a data-encryption key under the
// current KEK. Ciphertext and Nonce are opaque outside this package.
type DEKEnvelope struct {
	ID         string
	Ciphertext []byte
	Nonce      []byte
	KEKVersion int
}

// SVIDClaims carries a SPIFFE-like workload identity plus the business
// fields a weaver pod's credential needs.
type SVIDClaims struct {
	JTI          string    `json:"jti"`
	Subject      string    `json:"sub"`
	WeaverID     string    `json:"weaver_id"`
	PodName      string    `json:"pod_name"`
	PodNamespace string    `json:"pod_namespace"`
	PodUID       string    `json:"pod_uid"`
	OrgID        string    `json:"org_id"`
	RepoID       string    `json:"repo_id,omitempty"`
	OwnerUserID  string    `json:"owner_user_id"`
	IssuedAt     time.Time `json:"iat"`
	NotBefore    time.Time `json:"nbf"`
	Expiry       time.Time `json:"exp"`
	Issuer       string    `json:"iss"`
	Audience     []string  `json:"aud"`
}

// JWK is a single entry of a JWKS document, restricted to the Ed25519
// "OKP" shape this package ever produces.
type JWK struct {
	Kty string `json:"kty"`
	Crv string `json:"crv"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	Kid string `json:"kid"`
	X   string `json:"x"`
}

// JWKS is the JSON document served at the weaver JWKS endpoint.
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// Backend is the single trait all cryptographic operations flow through.
// A hardware-backed implementation can replace SoftwareBackend without any
// caller changes.
type Backend interface {
	// EncryptDEK wraps a fresh data-encryption key under the current KEK.
	EncryptDEK(ctx context.Context, dek []byte) (DEKEnvelope, error)
	// DecryptDEK unwraps an envelope, rejecting a KEK version mismatch.
	DecryptDEK(ctx context.Context, env DEKEnvelope) ([]byte, error)

	// SignSVID produces a compact JWT for claims under the current
	// signing key.
	SignSVID(ctx context.Context, claims SVIDClaims) (string, error)
	// VerifySVID parses and validates a compact JWT, returning the
	// claims it carries on success.
	VerifySVID(ctx context.Context, token string) (SVIDClaims, error)

	// SigningKeyID returns the kid of the key SignSVID currently uses.
	SigningKeyID() string
	// JWKSView returns the public keys SVID verifiers should trust.
	JWKSView() JWKS
	// KEKVersion returns the KEK version DEKs are currently wrapped under.
	KEKVersion() int
}
