package crypto_test

import (
	"bytes"
	"errors"
	"testing"

	"tether/internal/crypto"
)

// makeKeyPair generates a key pair or fails the test.
func makeKeyPair(t *testing.T) crypto.KeyPair {
	t.Helper()
	kp, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	return kp
}

// makeSecret derives the shared secret for a from b.
func makeSecret(t *testing.T, a, b crypto.KeyPair) crypto.SharedSecret {
	t.Helper()
	s, err := crypto.DeriveSharedSecret(a.SecretKey, b.PublicKey)
	if err != nil {
		t.Fatalf("DeriveSharedSecret: %v", err)
	}
	return s
}

func TestGenerateKeyPair_Fresh(t *testing.T) {
	a := makeKeyPair(t)
	b := makeKeyPair(t)
	if a.PublicKey == b.PublicKey || a.SecretKey == b.SecretKey {
		t.Fatal("two key pairs share material")
	}
	if a.SecretKey[0]&7 != 0 || a.SecretKey[31]&128 != 0 || a.SecretKey[31]&64 == 0 {
		t.Fatal("secret key is not clamped")
	}
}

func TestDeriveSharedSecret_Symmetric(t *testing.T) {
	for i := 0; i < 8; i++ {
		a := makeKeyPair(t)
		b := makeKeyPair(t)
		if makeSecret(t, a, b) != makeSecret(t, b, a) {
			t.Fatalf("round %d: derive(A,B) != derive(B,A)", i)
		}
	}
}

func TestDeriveSharedSecret_DistinctPairs(t *testing.T) {
	a := makeKeyPair(t)
	b := makeKeyPair(t)
	c := makeKeyPair(t)
	if makeSecret(t, a, b) == makeSecret(t, a, c) {
		t.Fatal("(A,B) and (A,C) produced the same secret")
	}
}

func TestDeriveSharedSecret_RejectsLowOrderKey(t *testing.T) {
	a := makeKeyPair(t)
	var zero crypto.PublicKey
	_, err := crypto.DeriveSharedSecret(a.SecretKey, zero)
	if !errors.Is(err, crypto.ErrLowOrderKey) {
		t.Fatalf("want ErrLowOrderKey, got %v", err)
	}
}

func TestEncrypt_FreshNonceAndCiphertext(t *testing.T) {
	secret := makeSecret(t, makeKeyPair(t), makeKeyPair(t))
	msg := []byte("ls -la")

	ct1, n1, err := crypto.Encrypt(msg, secret)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	ct2, n2, err := crypto.Encrypt(msg, secret)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if n1 == n2 {
		t.Fatal("nonce reused across calls")
	}
	if bytes.Equal(ct1, ct2) {
		t.Fatal("identical ciphertext for identical plaintext")
	}
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	secret := makeSecret(t, makeKeyPair(t), makeKeyPair(t))
	cases := [][]byte{
		{},
		[]byte("x"),
		[]byte(`{"type":"command","name":"input","content":"echo hi"}`),
		bytes.Repeat([]byte{0xAB}, 64*1024),
	}
	for _, m := range cases {
		ct, nonce, err := crypto.Encrypt(m, secret)
		if err != nil {
			t.Fatalf("Encrypt: %v", err)
		}
		pt, err := crypto.Decrypt(ct, nonce, secret)
		if err != nil {
			t.Fatalf("Decrypt: %v", err)
		}
		if !bytes.Equal(pt, m) {
			t.Fatalf("round trip mismatch for %d-byte message", len(m))
		}
	}
}

func TestDecrypt_FailureModes(t *testing.T) {
	a, b, c := makeKeyPair(t), makeKeyPair(t), makeKeyPair(t)
	secret := makeSecret(t, a, b)
	other := makeSecret(t, a, c)

	ct, nonce, err := crypto.Encrypt([]byte("secret output"), secret)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	otherNonce, err := crypto.GenerateNonce()
	if err != nil {
		t.Fatalf("GenerateNonce: %v", err)
	}
	tampered := append([]byte(nil), ct...)
	tampered[0] ^= 0x01

	tests := []struct {
		name   string
		ct     []byte
		nonce  crypto.Nonce
		secret crypto.SharedSecret
	}{
		{"wrong secret", ct, nonce, other},
		{"wrong nonce", ct, otherNonce, secret},
		{"tampered ciphertext", tampered, nonce, secret},
		{"truncated ciphertext", ct[:5], nonce, secret},
		{"empty ciphertext", nil, nonce, secret},
	}
	for _, tt := range tests {
		pt, err := crypto.Decrypt(tt.ct, tt.nonce, tt.secret)
		if !errors.Is(err, crypto.ErrDecrypt) {
			t.Errorf("%s: want ErrDecrypt, got %v", tt.name, err)
		}
		if pt != nil {
			t.Errorf("%s: got plaintext %q", tt.name, pt)
		}
	}
}

func TestDecryptWithAD_BindsAssociatedData(t *testing.T) {
	secret := makeSecret(t, makeKeyPair(t), makeKeyPair(t))
	ct, nonce, err := crypto.EncryptWithAD([]byte("hi"), []byte("S1|mobile"), secret)
	if err != nil {
		t.Fatalf("EncryptWithAD: %v", err)
	}
	if _, err := crypto.DecryptWithAD(ct, []byte("S1|desktop"), nonce, secret); !errors.Is(err, crypto.ErrDecrypt) {
		t.Fatalf("want ErrDecrypt for wrong AD, got %v", err)
	}
	pt, err := crypto.DecryptWithAD(ct, []byte("S1|mobile"), nonce, secret)
	if err != nil || string(pt) != "hi" {
		t.Fatalf("DecryptWithAD = %q, %v", pt, err)
	}
}

func TestConstantTimeEqual(t *testing.T) {
	if !crypto.ConstantTimeEqual([]byte("abc"), []byte("abc")) {
		t.Fatal("equal slices reported different")
	}
	if crypto.ConstantTimeEqual([]byte("abc"), []byte("abd")) {
		t.Fatal("different slices reported equal")
	}
	if crypto.ConstantTimeEqual([]byte("abc"), []byte("abcd")) {
		t.Fatal("different lengths reported equal")
	}
}

func TestWipe(t *testing.T) {
	kp := makeKeyPair(t)
	secret := makeSecret(t, kp, makeKeyPair(t))

	kp.Wipe()
	secret.Wipe()
	if kp.SecretKey != (crypto.SecretKey{}) {
		t.Fatal("secret key not wiped")
	}
	if secret != (crypto.SharedSecret{}) {
		t.Fatal("shared secret not wiped")
	}
}

func TestFingerprint_Stable(t *testing.T) {
	kp := makeKeyPair(t)
	fp1 := crypto.Fingerprint(kp.PublicKey[:])
	fp2 := crypto.Fingerprint(kp.PublicKey[:])
	if fp1 != fp2 || len(fp1) != 20 {
		t.Fatalf("unexpected fingerprint %q / %q", fp1, fp2)
	}
}
