package core

import (
	"crypto/ed25519"
	"testing"
	"time"
)

func newKeypair(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	return pub, priv
}

func TestNewTransactionSignVerify(t *testing.T) {
	_, sk := newKeypair(t)
	tx, err := NewTransaction(sampleTriples(), sk, time.Now())
	if err != nil {
		t.Fatalf("NewTransaction: %v", err)
	}
	if err := tx.Verify(); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestNewTransactionRejectsEmptyPayload(t *testing.T) {
	_, sk := newKeypair(t)
	if _, err := NewTransaction(nil, sk, time.Now()); err == nil {
		t.Fatalf("expected error for empty payload")
	}
}

func TestNewTransactionRawFallback(t *testing.T) {
	_, sk := newKeypair(t)
	raw := []byte("not valid RDF at all")
	tx, err := NewTransactionRaw(raw, sk, time.Now())
	if err != nil {
		t.Fatalf("NewTransactionRaw: %v", err)
	}
	if tx.CanonicalFlag {
		t.Fatalf("expected CanonicalFlag=false for raw transaction")
	}
	if err := tx.Verify(); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	want := HashRaw(raw)
	if tx.ID() != want {
		t.Fatalf("raw transaction id = %s, want %s", tx.ID(), want)
	}
}

func TestTransactionVerifyRejectsIDMismatch(t *testing.T) {
	_, sk := newKeypair(t)
	tx, err := NewTransaction(sampleTriples(), sk, time.Now())
	if err != nil {
		t.Fatalf("NewTransaction: %v", err)
	}
	tx.Payload = append(tx.Payload, Triple{Subject: IRI("urn:extra"), Predicate: IRI("urn:p"), Object: Literal("v")})
	if err := tx.Verify(); err == nil {
		t.Fatalf("expected ErrIDMismatch after payload tampering")
	}
}

func TestTransactionVerifyRejectsBadSignature(t *testing.T) {
	_, sk := newKeypair(t)
	tx, err := NewTransaction(sampleTriples(), sk, time.Now())
	if err != nil {
		t.Fatalf("NewTransaction: %v", err)
	}
	tx.Signature[0] ^= 0xFF
	if err := tx.Verify(); err == nil {
		t.Fatalf("expected ErrBadSignature after signature tampering")
	}
}

func TestTransactionEncodeDecodeRoundTrip(t *testing.T) {
	_, sk := newKeypair(t)
	tx, err := NewTransaction(sampleTriples(), sk, time.Now())
	if err != nil {
		t.Fatalf("NewTransaction: %v", err)
	}
	encoded := tx.encode()
	r := &byteReader{data: encoded}
	decoded, err := decodeTransaction(r)
	if err != nil {
		t.Fatalf("decodeTransaction: %v", err)
	}
	if decoded.ID() != tx.ID() {
		t.Fatalf("decoded id = %s, want %s", decoded.ID(), tx.ID())
	}
	if err := decoded.Verify(); err != nil {
		t.Fatalf("decoded.Verify: %v", err)
	}
}
