package vault

import (
	"encoding/json"
	"strings"
	"testing"
)

func testSecret() []byte {
	return []byte("test-platform-secret-not-for-production-use")
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	secret := testSecret()
	plaintext := "sk-live-abc123xyz"

	ev, err := Encrypt(secret, plaintext)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	got, err := Decrypt(secret, ev)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if got != plaintext {
		t.Errorf("expected plaintext %q, got %q", plaintext, got)
	}
}

func TestEncryptProducesFreshIVPerCall(t *testing.T) {
	secret := testSecret()

	evA, err := Encrypt(secret, "same-plaintext")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	evB, err := Encrypt(secret, "same-plaintext")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	if evA.IV == evB.IV {
		t.Error("expected distinct IVs across calls")
	}
	if evA.Ciphertext == evB.Ciphertext {
		t.Error("expected distinct ciphertexts across calls given distinct IVs")
	}

	// Both still decrypt to the same plaintext (spec.md §8: "encrypt(decrypt(p,
	// k), k) has the same plaintext; IVs differ").
	for _, ev := range []EncryptedValue{evA, evB} {
		got, err := Decrypt(secret, ev)
		if err != nil {
			t.Fatalf("Decrypt: %v", err)
		}
		if got != "same-plaintext" {
			t.Errorf("expected same-plaintext, got %q", got)
		}
	}
}

func TestDecryptFailsClosedOnTamperedCiphertext(t *testing.T) {
	secret := testSecret()
	ev, err := Encrypt(secret, "secret-value")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	tampered := ev
	// Flip the last hex nibble of the ciphertext.
	runes := []byte(tampered.Ciphertext)
	if runes[len(runes)-1] == '0' {
		runes[len(runes)-1] = '1'
	} else {
		runes[len(runes)-1] = '0'
	}
	tampered.Ciphertext = string(runes)

	if _, err := Decrypt(secret, tampered); err == nil {
		t.Fatal("expected decryption of tampered ciphertext to fail")
	}
}

func TestDecryptFailsClosedOnTamperedAuthTag(t *testing.T) {
	secret := testSecret()
	ev, err := Encrypt(secret, "secret-value")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	tampered := ev
	runes := []byte(tampered.AuthTag)
	runes[0] ^= 0x01
	tampered.AuthTag = string(runes)

	_, err = Decrypt(secret, tampered)
	if err == nil {
		t.Fatal("expected decryption of tampered auth tag to fail")
	}
}

func TestDecryptFailsClosedUnderWrongSecret(t *testing.T) {
	ev, err := Encrypt(testSecret(), "secret-value")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	if _, err := Decrypt([]byte("a-completely-different-secret"), ev); err == nil {
		t.Fatal("expected decryption under the wrong secret to fail")
	}
}

func TestValidAuthType(t *testing.T) {
	cases := []struct {
		authType string
		want     bool
	}{
		{AuthTypeHeader, true},
		{AuthTypeBearer, true},
		{AuthTypeBasic, true},
		{"oauth2", false},
		{"", false},
	}
	for _, c := range cases {
		if got := validAuthType(c.authType); got != c.want {
			t.Errorf("validAuthType(%q) = %v, want %v", c.authType, got, c.want)
		}
	}
}

func TestCredentialToSummaryOmitsEncryptedValue(t *testing.T) {
	c := Credential{
		Provider: "openai",
		KeyName:  "production",
		EncryptedValue: EncryptedValue{
			IV:         "aabbcc",
			AuthTag:    "ddeeff",
			Ciphertext: "112233",
		},
		AuthType: AuthTypeBearer,
	}

	summary := c.ToSummary()

	// Summary has no field at all capable of carrying the encrypted
	// value; this test pins that contract so a future field addition to
	// Credential doesn't silently leak into Summary.
	if summary.Provider != c.Provider || summary.KeyName != c.KeyName {
		t.Fatalf("summary lost non-secret fields: %+v", summary)
	}

	encoded, err := json.Marshal(summary)
	if err != nil {
		t.Fatalf("marshalling summary: %v", err)
	}
	for _, secret := range []string{c.EncryptedValue.IV, c.EncryptedValue.AuthTag, c.EncryptedValue.Ciphertext} {
		if strings.Contains(string(encoded), secret) {
			t.Errorf("summary JSON %s contains encrypted value part %q", encoded, secret)
		}
	}
}
