package security

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	uuid "github.com/google/uuid"
)

// ErrKeyIDMissing indicates no kid is associated with the supplied key.
var ErrKeyIDMissing = errors.New("jwt: missing key identifier")

// ErrKeyNotRegistered indicates a supplied kid is unknown to the JWT manager.
var ErrKeyNotRegistered = errors.New("jwt: key not registered")

// JWTManager coordinates signing key retrieval and JWKS generation.
type JWTManager struct {
	KeyProvider KeyProvider
	mu          sync.RWMutex
	publicKeys  map[string]*rsa.PublicKey
}

// NewJWTManager constructs a JWTManager for the supplied key provider.
func NewJWTManager(provider KeyProvider) *JWTManager {
	mgr := &JWTManager{
		KeyProvider: provider,
		publicKeys:  make(map[string]*rsa.PublicKey),
	}

	if enumerator, ok := provider.(interface {
		ListVerificationKeys() map[string]*rsa.PublicKey
	}); ok {
		for kid, key := range enumerator.ListVerificationKeys() {
			_ = mgr.RegisterPublicKey(kid, key)
		}
	}

	return mgr
}

// RegisterPublicKey associates a kid with a public key for JWKS publication and future lookup.
func (m *JWTManager) RegisterPublicKey(kid string, key *rsa.PublicKey) error {
	kid = strings.TrimSpace(kid)
	if kid == "" {
		return ErrKeyIDMissing
	}
	if key == nil {
		return fmt.Errorf("jwt: public key for %s is nil", kid)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.publicKeys[kid] = key
	return nil
}

// GetSigningKey retrieves the active signing key from the provider.
func (m *JWTManager) GetSigningKey() (*rsa.PrivateKey, error) {
	if m.KeyProvider == nil {
		return nil, fmt.Errorf("jwt: key provider not configured")
	}
	return m.KeyProvider.GetSigningKey()
}

// GetVerificationKey retrieves a public key by kid.
func (m *JWTManager) GetVerificationKey(kid string) (*rsa.PublicKey, error) {
	kid = strings.TrimSpace(kid)
	if kid == "" {
		return nil, ErrKeyIDMissing
	}

	m.mu.RLock()
	key, ok := m.publicKeys[kid]
	m.mu.RUnlock()
	if ok {
		return key, nil
	}

	if m.KeyProvider != nil {
		fetched, err := m.KeyProvider.GetVerificationKey(kid)
		if err == nil {
			_ = m.RegisterPublicKey(kid, fetched)
			return fetched, nil
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrKeyNotRegistered, kid)
}

// JWKS produces the JSON Web Key Set for registered keys.
func (m *JWTManager) JWKS() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.publicKeys) == 0 {
		return json.Marshal(struct {
			Keys []any `json:"keys"`
		}{Keys: []any{}})
	}

	keys := make([]map[string]string, 0, len(m.publicKeys))
	for kid, key := range m.publicKeys {
		if key == nil {
			continue
		}
		keys = append(keys, buildJWK(kid, key))
	}

	payload := map[string]any{"keys": keys}
	return json.Marshal(payload)
}

func buildJWK(kid string, key *rsa.PublicKey) map[string]string {
	return map[string]string{
		"kty": "RSA",
		"use": "sig",
		"alg": "RS256",
		"kid": kid,
		"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
		"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
	}
}

// AccessTokenClaims augments registered claims with account and session context.
type AccessTokenClaims struct {
	AccountID string `json:"uid"`
	SessionID string `json:"sid,omitempty"`
	jwt.RegisteredClaims
}

// RefreshTokenClaims carry the session and token-family identity used for
// rotation. A presented token whose family no longer matches the session's
// current family has been rotated out.
type RefreshTokenClaims struct {
	AccountID string `json:"uid"`
	SessionID string `json:"sid"`
	FamilyID  string `json:"fam"`
	jwt.RegisteredClaims
}

// TokenOptions configures creation of token claims.
type TokenOptions struct {
	AccountID string
	SessionID string
	FamilyID  string
	Issuer    string
	Audience  []string
	TTL       time.Duration
	IssuedAt  time.Time
	JTI       string
}

const (
	defaultAccessTokenTTL  = 15 * time.Minute
	defaultRefreshTokenTTL = 7 * 24 * time.Hour
)

func registeredClaims(opts TokenOptions, fallbackTTL time.Duration) (jwt.RegisteredClaims, error) {
	issuer := strings.TrimSpace(opts.Issuer)
	if issuer == "" {
		return jwt.RegisteredClaims{}, fmt.Errorf("jwt: issuer is required")
	}

	now := opts.IssuedAt
	if now.IsZero() {
		now = time.Now().UTC()
	} else {
		now = now.UTC()
	}

	ttl := opts.TTL
	if ttl <= 0 {
		ttl = fallbackTTL
	}

	jti := strings.TrimSpace(opts.JTI)
	if jti == "" {
		jti = uuid.NewString()
	}

	return jwt.RegisteredClaims{
		Subject:   strings.TrimSpace(opts.AccountID),
		Issuer:    issuer,
		Audience:  opts.Audience,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		ID:        jti,
	}, nil
}

// NewAccessTokenClaims constructs standardized access token claims.
func NewAccessTokenClaims(opts TokenOptions) (*AccessTokenClaims, error) {
	accountID := strings.TrimSpace(opts.AccountID)
	if accountID == "" {
		return nil, fmt.Errorf("jwt: account id is required")
	}

	registered, err := registeredClaims(opts, defaultAccessTokenTTL)
	if err != nil {
		return nil, err
	}

	return &AccessTokenClaims{
		AccountID:        accountID,
		SessionID:        strings.TrimSpace(opts.SessionID),
		RegisteredClaims: registered,
	}, nil
}

// NewRefreshTokenClaims constructs refresh token claims bound to a session family.
func NewRefreshTokenClaims(opts TokenOptions) (*RefreshTokenClaims, error) {
	accountID := strings.TrimSpace(opts.AccountID)
	if accountID == "" {
		return nil, fmt.Errorf("jwt: account id is required")
	}
	sessionID := strings.TrimSpace(opts.SessionID)
	if sessionID == "" {
		return nil, fmt.Errorf("jwt: session id is required")
	}
	familyID := strings.TrimSpace(opts.FamilyID)
	if familyID == "" {
		return nil, fmt.Errorf("jwt: family id is required")
	}

	registered, err := registeredClaims(opts, defaultRefreshTokenTTL)
	if err != nil {
		return nil, err
	}

	return &RefreshTokenClaims{
		AccountID:        accountID,
		SessionID:        sessionID,
		FamilyID:         familyID,
		RegisteredClaims: registered,
	}, nil
}

// Sign signs the provided claims using the active signing key and kid.
func (m *JWTManager) Sign(kid string, claims jwt.Claims) (string, error) {
	if claims == nil {
		return "", fmt.Errorf("jwt: claims required")
	}
	kid = strings.TrimSpace(kid)
	if kid == "" {
		return "", ErrKeyIDMissing
	}

	signingKey, err := m.GetSigningKey()
	if err != nil {
		return "", fmt.Errorf("jwt: get signing key: %w", err)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid

	signed, err := token.SignedString(signingKey)
	if err != nil {
		return "", fmt.Errorf("jwt: sign token: %w", err)
	}

	return signed, nil
}

// Keyfunc resolves verification keys for jwt parsing by kid header.
func (m *JWTManager) Keyfunc(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
		return nil, fmt.Errorf("jwt: unexpected signing method %v", token.Header["alg"])
	}

	kid, _ := token.Header["kid"].(string)
	if kid == "" {
		return nil, ErrKeyIDMissing
	}

	return m.GetVerificationKey(kid)
}
