package security

import "testing"

const testEncryptionKey = "unit-test-encryption-key"

func TestEncryptDecryptSecret(t *testing.T) {
	t.Setenv(secretEncryptionKeyEnv, testEncryptionKey)
	ResetSecretCipherForTests()

	cipherText, err := EncryptSecret("super-secret")
	if err != nil {
		t.Fatalf("EncryptSecret returned error: %v", err)
	}

	if !IsSecretEncrypted(cipherText) {
		t.Fatalf("ciphertext %q is not marked as encrypted", cipherText)
	}

	plain, legacy, err := DecryptSecret(cipherText)
	if err != nil {
		t.Fatalf("DecryptSecret returned error: %v", err)
	}
	if legacy {
		t.Fatal("DecryptSecret flagged encrypted value as plaintext")
	}
	if plain != "super-secret" {
		t.Fatalf("DecryptSecret returned %q, want super-secret", plain)
	}
}

func TestDecryptPlaintextSecret(t *testing.T) {
	t.Setenv(secretEncryptionKeyEnv, testEncryptionKey)
	ResetSecretCipherForTests()

	plain, legacy, err := DecryptSecret("legacy-secret")
	if err != nil {
		t.Fatalf("DecryptSecret returned error: %v", err)
	}
	if !legacy {
		t.Fatal("expected plaintext flag for unprefixed secret")
	}
	if plain != "legacy-secret" {
		t.Fatalf("DecryptSecret returned %q, want legacy-secret", plain)
	}
}

func TestEncryptSecretMissingKey(t *testing.T) {
	t.Setenv(secretEncryptionKeyEnv, "")
	ResetSecretCipherForTests()
	t.Cleanup(ResetSecretCipherForTests)

	if _, err := EncryptSecret("anything"); err == nil {
		t.Fatal("expected error when encryption key is unset")
	}
}

func TestEmptySecretRoundTrip(t *testing.T) {
	t.Setenv(secretEncryptionKeyEnv, testEncryptionKey)
	ResetSecretCipherForTests()

	cipherText, err := EncryptSecret("")
	if err != nil {
		t.Fatalf("EncryptSecret returned error: %v", err)
	}
	if cipherText != "" {
		t.Fatalf("empty secret produced %q, want empty", cipherText)
	}

	plain, _, err := DecryptSecret("")
	if err != nil {
		t.Fatalf("DecryptSecret returned error: %v", err)
	}
	if plain != "" {
		t.Fatalf("DecryptSecret returned %q, want empty", plain)
	}
}
