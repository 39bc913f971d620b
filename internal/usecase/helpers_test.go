package usecase

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/meridian-commerce/customer-auth/internal/infra/config"
	"github.com/meridian-commerce/customer-auth/internal/infra/security"
)

func init() {
	// Lighter hashing keeps the suite fast without changing digest format.
	if err := security.ConfigureArgon2(security.Argon2Config{
		Memory:      8 * 1024,
		Iterations:  1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}); err != nil {
		panic(err)
	}
}

func testConfig() *config.AppConfig {
	return &config.AppConfig{
		App: config.AppSettings{
			Name: "customer-auth",
			Env:  "test",
		},
		RateLimit: config.RateLimitSettings{
			IPLimit:       10,
			IPWindow:      60 * time.Second,
			AccountLimit:  5,
			AccountWindow: 60 * time.Second,
		},
		Lockout: config.LockoutSettings{
			Threshold: 5,
			Duration:  15 * time.Minute,
		},
		MFA: config.MFASettings{
			ChallengeTTL:   5 * time.Minute,
			MaxAttempts:    3,
			ResendCooldown: 60 * time.Second,
			ResendLimit:    3,
			ResendWindow:   time.Hour,
		},
		Device: config.DeviceSettings{
			TrustTTL:      30 * 24 * time.Hour,
			MaxPerAccount: 10,
		},
		Session: config.SessionSettings{
			MaxPerAccount: 5,
		},
		Reset: config.ResetSettings{
			TokenTTL:      time.Hour,
			RequestLimit:  3,
			RequestWindow: time.Hour,
		},
		JWT: config.JWTSettings{
			Issuer:          "https://auth.test",
			Audience:        "storefront",
			AccessTokenTTL:  15 * time.Minute,
			RefreshTokenTTL: 7 * 24 * time.Hour,
		},
	}
}

func newTestJWTManager(t *testing.T) *security.JWTManager {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}

	dir := t.TempDir()
	pemBytes := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	if err := os.WriteFile(filepath.Join(dir, "test.pem"), pemBytes, 0o600); err != nil {
		t.Fatalf("write key file: %v", err)
	}

	provider, err := security.NewFileKeyProvider(dir, "")
	if err != nil {
		t.Fatalf("load key provider: %v", err)
	}
	return security.NewJWTManager(provider)
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func hashForTest(t *testing.T, password string) string {
	t.Helper()
	digest, err := security.HashPassword(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return digest
}

func strptr(v string) *string { return &v }
