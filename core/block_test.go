package core

import (
	"testing"
	"time"
)

func TestBlockSignAndVerify(t *testing.T) {
	_, sk := newKeypair(t)
	_, txSK := newKeypair(t)
	tx, err := NewTransaction(sampleTriples(), txSK, time.Now())
	if err != nil {
		t.Fatalf("NewTransaction: %v", err)
	}
	b := &Block{
		Header: BlockHeader{
			Height:    0,
			Timestamp: time.Now(),
		},
		Transactions: []*Transaction{tx},
	}
	b.Sign(sk)
	if err := b.VerifySignature(); err != nil {
		t.Fatalf("VerifySignature: %v", err)
	}
}

func TestBlockVerifyRejectsTamperedPayloadRoot(t *testing.T) {
	_, sk := newKeypair(t)
	_, txSK := newKeypair(t)
	tx, err := NewTransaction(sampleTriples(), txSK, time.Now())
	if err != nil {
		t.Fatalf("NewTransaction: %v", err)
	}
	b := &Block{
		Header:       BlockHeader{Height: 0, Timestamp: time.Now()},
		Transactions: []*Transaction{tx},
	}
	b.Sign(sk)

	tx2, err := NewTransaction([]Triple{{Subject: IRI("urn:s"), Predicate: IRI("urn:p"), Object: Literal("extra")}}, txSK, time.Now())
	if err != nil {
		t.Fatalf("NewTransaction: %v", err)
	}
	b.Transactions = append(b.Transactions, tx2)

	if err := b.VerifySignature(); err == nil {
		t.Fatalf("expected payload root mismatch after appending transaction post-sign")
	}
}

func TestBlockEncodeDecodeRoundTrip(t *testing.T) {
	_, sk := newKeypair(t)
	_, txSK := newKeypair(t)
	tx, err := NewTransaction(sampleTriples(), txSK, time.Now())
	if err != nil {
		t.Fatalf("NewTransaction: %v", err)
	}
	raw, err := NewTransactionRaw([]byte("opaque bytes"), txSK, time.Now())
	if err != nil {
		t.Fatalf("NewTransactionRaw: %v", err)
	}
	b := &Block{
		Header:       BlockHeader{Height: 7, Timestamp: time.Now()},
		Transactions: []*Transaction{tx, raw},
	}
	b.Sign(sk)

	encoded := b.Encode()
	decoded, err := DecodeBlock(encoded)
	if err != nil {
		t.Fatalf("DecodeBlock: %v", err)
	}
	if decoded.Hash() != b.Hash() {
		t.Fatalf("decoded block hash mismatch")
	}
	if err := decoded.VerifySignature(); err != nil {
		t.Fatalf("decoded.VerifySignature: %v", err)
	}
	if len(decoded.Transactions) != 2 {
		t.Fatalf("decoded %d transactions, want 2", len(decoded.Transactions))
	}
	if err := decoded.Transactions[0].Verify(); err != nil {
		t.Fatalf("decoded tx[0].Verify: %v", err)
	}
	if err := decoded.Transactions[1].Verify(); err != nil {
		t.Fatalf("decoded tx[1].Verify: %v", err)
	}
}

func TestPayloadRootEmpty(t *testing.T) {
	if got := PayloadRoot(nil); got != (Hash{}) {
		t.Fatalf("PayloadRoot(nil) = %s, want zero hash", got)
	}
}

func TestPayloadRootOddCount(t *testing.T) {
	_, txSK := newKeypair(t)
	var txs []*Transaction
	for i := 0; i < 3; i++ {
		tx, err := NewTransaction([]Triple{{Subject: IRI("urn:s"), Predicate: IRI("urn:p"), Object: Literal(string(rune('a' + i)))}}, txSK, time.Now())
		if err != nil {
			t.Fatalf("NewTransaction: %v", err)
		}
		txs = append(txs, tx)
	}
	root := PayloadRoot(txs)
	if root.IsZero() {
		t.Fatalf("PayloadRoot for 3 transactions should not be zero")
	}
}
