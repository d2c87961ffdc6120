package core

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestLedgerAppendAndPersist(t *testing.T) {
	dir := t.TempDir()
	led, err := NewLedger(LedgerConfig{WALPath: filepath.Join(dir, "wal.log")})
	if err != nil {
		t.Fatalf("NewLedger: %v", err)
	}
	defer led.Close()

	_, proposerSK := newKeypair(t)
	_, txSK := newKeypair(t)

	var prevHash Hash
	ts := time.Now().Add(-time.Hour)
	for i := uint64(0); i < 3; i++ {
		tx, err := NewTransaction(sampleTriples(), txSK, ts)
		if err != nil {
			t.Fatalf("NewTransaction: %v", err)
		}
		b := &Block{
			Header:       BlockHeader{Height: i, PrevHash: prevHash, Timestamp: ts},
			Transactions: []*Transaction{tx},
		}
		b.Sign(proposerSK)
		if err := led.appendCommitted(b, true); err != nil {
			t.Fatalf("appendCommitted height %d: %v", i, err)
		}
		prevHash = b.Hash()
		ts = ts.Add(time.Minute)
	}

	if got := led.Len(); got != 3 {
		t.Fatalf("Len() = %d, want 3", got)
	}
	if led.HeadHash() != prevHash {
		t.Fatalf("HeadHash() mismatch")
	}

	if err := led.ValidateFull(context.Background(), true); err != nil {
		t.Fatalf("ValidateFull: %v", err)
	}
}

func TestLedgerReplaysWAL(t *testing.T) {
	dir := t.TempDir()
	walPath := filepath.Join(dir, "wal.log")

	_, proposerSK := newKeypair(t)
	_, txSK := newKeypair(t)

	led, err := NewLedger(LedgerConfig{WALPath: walPath})
	if err != nil {
		t.Fatalf("NewLedger: %v", err)
	}

	var prevHash Hash
	ts := time.Now().Add(-time.Hour)
	for i := uint64(0); i < 2; i++ {
		tx, err := NewTransaction(sampleTriples(), txSK, ts)
		if err != nil {
			t.Fatalf("NewTransaction: %v", err)
		}
		b := &Block{
			Header:       BlockHeader{Height: i, PrevHash: prevHash, Timestamp: ts},
			Transactions: []*Transaction{tx},
		}
		b.Sign(proposerSK)
		if err := led.appendCommitted(b, true); err != nil {
			t.Fatalf("appendCommitted height %d: %v", i, err)
		}
		prevHash = b.Hash()
		ts = ts.Add(time.Minute)
	}
	if err := led.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := NewLedger(LedgerConfig{WALPath: walPath})
	if err != nil {
		t.Fatalf("NewLedger (reopen): %v", err)
	}
	defer reopened.Close()

	if got := reopened.Len(); got != 2 {
		t.Fatalf("Len() after replay = %d, want 2", got)
	}
	if reopened.HeadHash() != prevHash {
		t.Fatalf("HeadHash() after replay mismatch")
	}
	if err := reopened.ValidateFull(context.Background(), true); err != nil {
		t.Fatalf("ValidateFull after replay: %v", err)
	}
}

func TestLedgerRejectsHeightGap(t *testing.T) {
	dir := t.TempDir()
	led, err := NewLedger(LedgerConfig{WALPath: filepath.Join(dir, "wal.log")})
	if err != nil {
		t.Fatalf("NewLedger: %v", err)
	}
	defer led.Close()

	_, proposerSK := newKeypair(t)
	b := &Block{Header: BlockHeader{Height: 5, Timestamp: time.Now()}}
	b.Sign(proposerSK)
	if err := led.appendCommitted(b, false); err == nil {
		t.Fatalf("expected error for height gap")
	}
}

func TestLedgerValidateFullDetectsBrokenChain(t *testing.T) {
	dir := t.TempDir()
	led, err := NewLedger(LedgerConfig{WALPath: filepath.Join(dir, "wal.log")})
	if err != nil {
		t.Fatalf("NewLedger: %v", err)
	}
	defer led.Close()

	_, proposerSK := newKeypair(t)
	_, txSK := newKeypair(t)

	tx0, _ := NewTransaction(sampleTriples(), txSK, time.Now())
	b0 := &Block{Header: BlockHeader{Height: 0, Timestamp: time.Now()}, Transactions: []*Transaction{tx0}}
	b0.Sign(proposerSK)
	if err := led.appendCommitted(b0, false); err != nil {
		t.Fatalf("appendCommitted b0: %v", err)
	}

	tx1, _ := NewTransaction(sampleTriples(), txSK, time.Now().Add(time.Minute))
	b1 := &Block{
		Header:       BlockHeader{Height: 1, PrevHash: Hash{0xFF}, Timestamp: time.Now().Add(time.Minute)},
		Transactions: []*Transaction{tx1},
	}
	b1.Sign(proposerSK)
	if err := led.appendCommitted(b1, false); err != nil {
		t.Fatalf("appendCommitted b1: %v", err)
	}

	if err := led.ValidateFull(context.Background(), false); err == nil {
		t.Fatalf("expected ValidateFull to detect broken prev_hash chain")
	}
}
