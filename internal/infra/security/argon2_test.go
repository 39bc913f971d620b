package security

import (
	"strings"
	"testing"
)

func init() {
	if err := ConfigureArgon2(Argon2Config{
		Memory:      8 * 1024,
		Iterations:  1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}); err != nil {
		panic(err)
	}
}

func TestHashAndVerifyPassword(t *testing.T) {
	digest, err := HashPassword("correct horse battery")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !strings.HasPrefix(digest, "$argon2id$") {
		t.Fatalf("unexpected digest format: %s", digest)
	}

	if !VerifyPassword("correct horse battery", digest) {
		t.Fatal("expected matching password to verify")
	}
	if VerifyPassword("wrong password", digest) {
		t.Fatal("expected mismatched password to fail")
	}
}

func TestHashPasswordSaltsEachDigest(t *testing.T) {
	first, err := HashPassword("same password")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	second, err := HashPassword("same password")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if first == second {
		t.Fatal("expected distinct salts to produce distinct digests")
	}
}

func TestVerifyPasswordFailsClosedOnBadDigest(t *testing.T) {
	cases := []string{
		"",
		"plaintext",
		"$argon2id$v=19$m=8192",
		"$argon2i$v=19$m=8192,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=bogus,t=1,p=1$c2FsdA$aGFzaA",
	}
	for _, digest := range cases {
		if VerifyPassword("anything", digest) {
			t.Fatalf("digest %q must not verify", digest)
		}
	}
}

func TestDummyVerifyAlwaysFails(t *testing.T) {
	if DummyVerify("any password at all") {
		t.Fatal("dummy digest must never match")
	}
}

func TestConfigureArgon2RejectsWeakParameters(t *testing.T) {
	cases := []Argon2Config{
		{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32},
		{Memory: 8 * 1024, Iterations: 0, Parallelism: 1, SaltLength: 16, KeyLength: 32},
		{Memory: 8 * 1024, Iterations: 1, Parallelism: 0, SaltLength: 16, KeyLength: 32},
		{Memory: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 4, KeyLength: 32},
		{Memory: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 8},
	}
	for i, cfg := range cases {
		if err := ConfigureArgon2(cfg); err == nil {
			t.Fatalf("case %d: expected configuration to be rejected", i)
		}
	}
}
