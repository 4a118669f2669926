package signature

import "testing"

func TestVerify_RoundTrip(t *testing.T) {
	body := []byte(`{"zen":"Test"}`)
	secret := "test-secret"

	header := Prefix + Compute(secret, body)
	if !Verify(body, header, secret) {
		t.Fatal("expected valid signature to verify")
	}
}

func TestVerify_SingleByteFlip(t *testing.T) {
	body := []byte(`{"zen":"Test"}`)
	secret := "test-secret"
	header := Prefix + Compute(secret, body)

	for i := range body {
		flipped := make([]byte, len(body))
		copy(flipped, body)
		flipped[i] ^= 0x01

		if Verify(flipped, header, secret) {
			t.Fatalf("expected verification to fail with byte %d flipped", i)
		}
	}
}

func TestVerify_MissingHeader(t *testing.T) {
	if Verify([]byte("{}"), "", "test-secret") {
		t.Fatal("expected missing header to fail verification")
	}
}

func TestVerify_UnsetSecret(t *testing.T) {
	body := []byte("{}")
	header := Prefix + Compute("", body)
	if Verify(body, header, "") {
		t.Fatal("expected unset secret to fail verification")
	}
}

func TestVerify_MissingPrefix(t *testing.T) {
	body := []byte("{}")
	if Verify(body, Compute("test-secret", body), "test-secret") {
		t.Fatal("expected bare hex digest without prefix to fail verification")
	}
}

func TestVerify_WrongSecret(t *testing.T) {
	body := []byte(`{"zen":"Test"}`)
	header := Prefix + Compute("test-secret", body)
	if Verify(body, header, "other-secret") {
		t.Fatal("expected wrong secret to fail verification")
	}
}

func TestVerify_TruncatedDigest(t *testing.T) {
	body := []byte(`{"zen":"Test"}`)
	header := Prefix + Compute("test-secret", body)
	if Verify(body, header[:len(header)-2], "test-secret") {
		t.Fatal("expected truncated digest to fail verification")
	}
}
