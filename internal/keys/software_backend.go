package keys

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/crypto/chacha20poly1305"
	"gopkg.in/square/go-jose.v2"

	"github.com/ohitslaurence/loom/internal/secret"
)

// kekSize is the width of a software KEK: a chacha20poly1305 key.
const kekSize = chacha20poly1305.KeySize

// nonceSize is the AEAD nonce width used for every DEK envelope.
const nonceSize = chacha20poly1305.NonceSize

// skewTolerance is how far into the future nbf/iat may sit and still be
// accepted, to absorb clock drift between the signer and the verifier.
const skewTolerance = 30 * time.Second

// jwtHeader is the fixed SVID header shape this package ever produces or
// accepts.
type jwtHeader struct {
	Alg string `json:"alg"`
	Typ string `json:"typ"`
	Kid string `json:"kid"`
}

// SoftwareBackend implements Backend with a process-resident Ed25519
// signing key and a zeroizing KEK, suitable for a single Loom control
// plane instance. A hardware-backed Backend can replace it without any
// caller changes.
type SoftwareBackend struct {
	mu sync.RWMutex

	kek        secret.String // hex-decoded 32 raw bytes, exposed on demand
	kekVersion int

	signingKey ed25519.PrivateKey
	verifyKey  ed25519.PublicKey
	kid        string

	issuer string
	clock  clockwork.Clock
}

// NewSoftwareBackend constructs a backend from a hex-encoded 32-byte KEK
// and an Ed25519 signing key. issuer is the `iss` claim this backend
// signs and expects on verification.
func NewSoftwareBackend(kekHex secret.String, signingKey ed25519.PrivateKey, issuer string, clock clockwork.Clock) (*SoftwareBackend, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	raw, err := hex.DecodeString(kekHex.Expose())
	if err != nil {
		return nil, &ConfigurationError{Detail: "kek is not valid hex"}
	}
	if len(raw) != kekSize {
		return nil, &ConfigurationError{Detail: fmt.Sprintf("kek must be %d bytes, got %d", kekSize, len(raw))}
	}
	if len(signingKey) != ed25519.PrivateKeySize {
		return nil, &ConfigurationError{Detail: "signing key is not a valid ed25519 private key"}
	}
	if issuer == "" {
		return nil, &ConfigurationError{Detail: "issuer is required"}
	}

	pub := signingKey.Public().(ed25519.PublicKey)
	return &SoftwareBackend{
		kek:        secret.New(string(raw)),
		kekVersion: 1,
		signingKey: signingKey,
		verifyKey:  pub,
		kid:        signingKeyID(pub),
		issuer:     issuer,
		clock:      clock,
	}, nil
}

// signingKeyID derives the SVID signing key id from its public key.
func signingKeyID(pub ed25519.PublicKey) string {
	return "loom-svid-" + hex.EncodeToString(pub)[:8]
}

// EncryptDEK wraps dek under the current KEK with a fresh nonce.
func (b *SoftwareBackend) EncryptDEK(ctx context.Context, dek []byte) (DEKEnvelope, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	aead, err := chacha20poly1305.New([]byte(b.kek.Expose()))
	if err != nil {
		return DEKEnvelope{}, &ConfigurationError{Detail: "kek rejected by aead: " + err.Error()}
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return DEKEnvelope{}, fmt.Errorf("keys: generating nonce: %w", err)
	}

	ciphertext := aead.Seal(nil, nonce, dek, nil)
	return DEKEnvelope{
		ID:         newEnvelopeID(),
		Ciphertext: ciphertext,
		Nonce:      nonce,
		KEKVersion: b.kekVersion,
	}, nil
}

// DecryptDEK unwraps env, rejecting a KEK version mismatch explicitly
// rather than attempting decryption under the wrong key.
func (b *SoftwareBackend) DecryptDEK(ctx context.Context, env DEKEnvelope) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if env.KEKVersion != b.kekVersion {
		return nil, &KeyVersionMismatchError{Expected: b.kekVersion, Actual: env.KEKVersion}
	}

	aead, err := chacha20poly1305.New([]byte(b.kek.Expose()))
	if err != nil {
		return nil, &ConfigurationError{Detail: "kek rejected by aead: " + err.Error()}
	}
	plaintext, err := aead.Open(nil, env.Nonce, env.Ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("keys: decrypting dek: %w", err)
	}
	return plaintext, nil
}

// Rotate increments the KEK version and replaces the active KEK, then
// re-wraps every outstanding DEK so it is valid under the new version.
// Envelopes not passed here are left at their old version and will be
// rejected by a future DecryptDEK until a caller re-wraps them too.
func (b *SoftwareBackend) Rotate(ctx context.Context, newKEKHex secret.String, outstanding []DEKEnvelope) ([]DEKEnvelope, error) {
	raw, err := hex.DecodeString(newKEKHex.Expose())
	if err != nil {
		return nil, &ConfigurationError{Detail: "kek is not valid hex"}
	}
	if len(raw) != kekSize {
		return nil, &ConfigurationError{Detail: fmt.Sprintf("kek must be %d bytes, got %d", kekSize, len(raw))}
	}

	// Unwrap every outstanding DEK under the *old* KEK before swapping it
	// out, so a decrypt failure leaves the backend's active key untouched.
	deks := make([][]byte, len(outstanding))
	for i, env := range outstanding {
		dek, err := b.DecryptDEK(ctx, env)
		if err != nil {
			return nil, fmt.Errorf("keys: rotate: re-wrapping %s: %w", env.ID, err)
		}
		deks[i] = dek
	}

	b.mu.Lock()
	b.kekVersion++
	version := b.kekVersion
	b.kek.Zero()
	b.kek = secret.New(string(raw))
	b.mu.Unlock()

	aead, err := chacha20poly1305.New(raw)
	if err != nil {
		return nil, &ConfigurationError{Detail: "kek rejected by aead: " + err.Error()}
	}

	rewrapped := make([]DEKEnvelope, len(outstanding))
	for i, env := range outstanding {
		nonce := make([]byte, nonceSize)
		if _, err := rand.Read(nonce); err != nil {
			return nil, fmt.Errorf("keys: generating nonce: %w", err)
		}
		rewrapped[i] = DEKEnvelope{
			ID:         env.ID,
			Ciphertext: aead.Seal(nil, nonce, deks[i], nil),
			Nonce:      nonce,
			KEKVersion: version,
		}
	}

	return rewrapped, nil
}

// SignSVID produces a compact, hand-framed EdDSA JWT: base64url
// (no padding) header, payload and signature joined by dots.
func (b *SoftwareBackend) SignSVID(ctx context.Context, claims SVIDClaims) (string, error) {
	b.mu.RLock()
	header := jwtHeader{Alg: "EdDSA", Typ: "JWT", Kid: b.kid}
	signingKey := b.signingKey
	b.mu.RUnlock()

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return "", &SvidSigningError{Detail: err.Error()}
	}
	payloadJSON, err := json.Marshal(claims)
	if err != nil {
		return "", &SvidSigningError{Detail: err.Error()}
	}

	signingInput := b64(headerJSON) + "." + b64(payloadJSON)
	sig := ed25519.Sign(signingKey, []byte(signingInput))
	return signingInput + "." + b64(sig), nil
}

// VerifySVID parses token's three segments, rejects a structurally or
// cryptographically invalid token, then checks the claim rules: exp in
// the future, nbf/iat no further than 30s ahead of now, iss matches, and
// aud contains the configured issuer audience.
func (b *SoftwareBackend) VerifySVID(ctx context.Context, token string) (SVIDClaims, error) {
	segments := splitJWT(token)
	if len(segments) != 3 {
		return SVIDClaims{}, &SvidValidationError{Detail: "token does not have three segments"}
	}

	headerRaw, err := unb64(segments[0])
	if err != nil {
		return SVIDClaims{}, &SvidValidationError{Detail: "bad header base64: " + err.Error()}
	}
	var header jwtHeader
	if err := json.Unmarshal(headerRaw, &header); err != nil {
		return SVIDClaims{}, &SvidValidationError{Detail: "bad header json: " + err.Error()}
	}
	if header.Alg != "EdDSA" {
		return SVIDClaims{}, &SvidValidationError{Detail: "unsupported alg " + header.Alg}
	}
	if header.Typ != "" && header.Typ != "JWT" {
		return SVIDClaims{}, &SvidValidationError{Detail: "unsupported typ " + header.Typ}
	}

	b.mu.RLock()
	ourKid := b.kid
	verifyKey := b.verifyKey
	issuer := b.issuer
	now := b.clock.Now()
	b.mu.RUnlock()

	if header.Kid != ourKid {
		return SVIDClaims{}, &SvidValidationError{Detail: "unknown kid " + header.Kid}
	}

	sig, err := unb64(segments[2])
	if err != nil {
		return SVIDClaims{}, &SvidValidationError{Detail: "bad signature base64: " + err.Error()}
	}
	signingInput := segments[0] + "." + segments[1]
	if !ed25519.Verify(verifyKey, []byte(signingInput), sig) {
		return SVIDClaims{}, ErrSvidInvalidSignature
	}

	payloadRaw, err := unb64(segments[1])
	if err != nil {
		return SVIDClaims{}, &SvidValidationError{Detail: "bad payload base64: " + err.Error()}
	}
	var claims SVIDClaims
	if err := json.Unmarshal(payloadRaw, &claims); err != nil {
		return SVIDClaims{}, &SvidValidationError{Detail: "bad payload json: " + err.Error()}
	}

	if !claims.Expiry.After(now) {
		return SVIDClaims{}, ErrSvidExpired
	}
	if claims.NotBefore.After(now.Add(skewTolerance)) {
		return SVIDClaims{}, ErrSvidNotYetValid
	}
	if claims.IssuedAt.After(now.Add(skewTolerance)) {
		return SVIDClaims{}, ErrSvidNotYetValid
	}
	if claims.Issuer != issuer {
		return SVIDClaims{}, ErrSvidInvalidIssuer
	}
	if !containsString(claims.Audience, issuer) {
		return SVIDClaims{}, ErrSvidInvalidAudience
	}

	return claims, nil
}

// SigningKeyID returns the kid of the key SignSVID currently uses.
func (b *SoftwareBackend) SigningKeyID() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.kid
}

// JWKSView returns the single Ed25519 public key verifiers should trust,
// built through go-jose's JSONWebKey so the OKP wire encoding matches
// what any go-jose-based verifier on the other end would also produce.
func (b *SoftwareBackend) JWKSView() JWKS {
	b.mu.RLock()
	defer b.mu.RUnlock()

	jwk := jose.JSONWebKey{
		Key:       b.verifyKey,
		KeyID:     b.kid,
		Algorithm: "EdDSA",
		Use:       "sig",
	}
	raw, err := jwk.MarshalJSON()
	if err != nil {
		// The key material is always well-formed Ed25519 at this point;
		// fall back to a hand-built entry rather than ever returning
		// an empty JWKS.
		return JWKS{Keys: []JWK{{
			Kty: "OKP",
			Crv: "Ed25519",
			Use: "sig",
			Alg: "EdDSA",
			Kid: b.kid,
			X:   base64.RawURLEncoding.EncodeToString(b.verifyKey),
		}}}
	}

	var decoded struct {
		Kty string `json:"kty"`
		Crv string `json:"crv"`
		X   string `json:"x"`
	}
	_ = json.Unmarshal(raw, &decoded)

	return JWKS{Keys: []JWK{{
		Kty: decoded.Kty,
		Crv: decoded.Crv,
		Use: "sig",
		Alg: "EdDSA",
		Kid: b.kid,
		X:   decoded.X,
	}}}
}

// KEKVersion returns the KEK version DEKs are currently wrapped under.
func (b *SoftwareBackend) KEKVersion() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.kekVersion
}

func b64(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}

func unb64(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(s)
}

func splitJWT(token string) []string {
	var segments []string
	start := 0
	for i := 0; i < len(token); i++ {
		if token[i] == '.' {
			segments = append(segments, token[start:i])
			start = i + 1
		}
	}
	segments = append(segments, token[start:])
	return segments
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if subtle.ConstantTimeCompare([]byte(s), []byte(needle)) == 1 {
			return true
		}
	}
	return false
}

// newEnvelopeID produces an opaque id used to correlate an envelope
// across encrypt/decrypt calls and rotation.
func newEnvelopeID() string {
	return "dek-" + uuid.NewString()
}
