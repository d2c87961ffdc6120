package core

import (
	"path/filepath"
	"testing"
	"time"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	dir := t.TempDir()
	led, err := NewLedger(LedgerConfig{WALPath: filepath.Join(dir, "wal.log")})
	if err != nil {
		t.Fatalf("NewLedger: %v", err)
	}
	t.Cleanup(func() { led.Close() })
	return led
}

func TestPoATurnForRespectsMinInterval(t *testing.T) {
	led := newTestLedger(t)
	_, sk := newKeypair(t)
	genesis := &Block{Header: BlockHeader{Height: 0, Timestamp: time.Now()}}
	genesis.Sign(sk)
	if err := led.appendCommitted(genesis, false); err != nil {
		t.Fatalf("appendCommitted genesis: %v", err)
	}

	authSet := NewAuthoritySet([]AuthorityRecord{{ID: addrFromByte(1)}})
	engine := NewPoAEngine(PoAConfig{MinInterval: 5 * time.Second}, led, authSet)

	tooSoon := genesis.Header.Timestamp.Add(2 * time.Second)
	if _, ok := engine.TurnFor(1, tooSoon); ok {
		t.Fatalf("TurnFor should reject a timestamp inside the minimum interval")
	}

	late := genesis.Header.Timestamp.Add(6 * time.Second)
	if _, ok := engine.TurnFor(1, late); !ok {
		t.Fatalf("TurnFor should accept a timestamp past the minimum interval")
	}
}

func TestPoAMissedSlotRotatesThreeAuthorities(t *testing.T) {
	// Three authorities A, B, C; Delta=5s, grace=2s, matching the
	// three-authority missed-slot rotation scenario: if A misses its
	// slot, the cursor rotates to B without any block being produced.
	led := newTestLedger(t)
	_, sk := newKeypair(t)
	genesis := &Block{Header: BlockHeader{Height: 0, Timestamp: time.Now()}}
	genesis.Sign(sk)
	if err := led.appendCommitted(genesis, false); err != nil {
		t.Fatalf("appendCommitted genesis: %v", err)
	}

	a, b, c := addrFromByte('A'), addrFromByte('B'), addrFromByte('C')
	authSet := NewAuthoritySet([]AuthorityRecord{{ID: a}, {ID: b}, {ID: c}})
	engine := NewPoAEngine(PoAConfig{
		MinInterval: 5 * time.Second,
		Grace:       2 * time.Second,
		MissPenalty: 0.9,
	}, led, authSet)

	if got := authSet.Cursor(); got != 0 {
		t.Fatalf("initial cursor = %d, want 0 (authority A)", got)
	}

	beforeDeadline := genesis.Header.Timestamp.Add(5 * time.Second).Add(1 * time.Second)
	engine.OnMissedSlot(beforeDeadline)
	if got := authSet.Cursor(); got != 0 {
		t.Fatalf("cursor advanced before grace window elapsed: got %d, want 0", got)
	}

	afterDeadline := genesis.Header.Timestamp.Add(5 * time.Second).Add(3 * time.Second)
	engine.OnMissedSlot(afterDeadline)
	if got := authSet.Cursor(); got != 1 {
		t.Fatalf("cursor after missed slot = %d, want 1 (authority B)", got)
	}

	rep, ok := authSet.reputationOf(0)
	if !ok || rep != 0.9 {
		t.Fatalf("authority A reputation after miss = %v, want 0.9", rep)
	}
}

func TestPoAValidateRejectsWrongProposer(t *testing.T) {
	led := newTestLedger(t)
	_, genesisSK := newKeypair(t)
	genesis := &Block{Header: BlockHeader{Height: 0, Timestamp: time.Now()}}
	genesis.Sign(genesisSK)
	if err := led.appendCommitted(genesis, false); err != nil {
		t.Fatalf("appendCommitted genesis: %v", err)
	}

	correctPub, correctSK := newKeypair(t)
	_, wrongSK := newKeypair(t)
	authSet := NewAuthoritySet([]AuthorityRecord{{ID: addressFromPubKey(correctPub)}})
	engine := NewPoAEngine(PoAConfig{MinInterval: time.Second}, led, authSet)

	candidate := &Block{Header: BlockHeader{Height: 1, Timestamp: genesis.Header.Timestamp.Add(2 * time.Second)}}
	candidate.Sign(wrongSK)
	if err := engine.Validate(candidate); err != ErrNotYourTurn {
		t.Fatalf("Validate error = %v, want ErrNotYourTurn", err)
	}

	candidate2 := &Block{Header: BlockHeader{Height: 1, Timestamp: genesis.Header.Timestamp.Add(2 * time.Second)}}
	candidate2.Sign(correctSK)
	if err := engine.Validate(candidate2); err != nil {
		t.Fatalf("Validate (correct proposer) = %v, want nil", err)
	}
}

func TestPoAValidateRejectsTimestampOutOfWindow(t *testing.T) {
	led := newTestLedger(t)
	pub, sk := newKeypair(t)
	genesis := &Block{Header: BlockHeader{Height: 0, Timestamp: time.Now()}}
	genesis.Sign(sk)
	if err := led.appendCommitted(genesis, false); err != nil {
		t.Fatalf("appendCommitted genesis: %v", err)
	}

	authSet := NewAuthoritySet([]AuthorityRecord{{ID: addressFromPubKey(pub)}})
	engine := NewPoAEngine(PoAConfig{MinInterval: 5 * time.Second}, led, authSet)

	tooEarly := &Block{Header: BlockHeader{Height: 1, Timestamp: genesis.Header.Timestamp.Add(time.Second)}}
	tooEarly.Sign(sk)
	if err := engine.Validate(tooEarly); err != ErrTimestampOutOfWindow {
		t.Fatalf("Validate error = %v, want ErrTimestampOutOfWindow", err)
	}
}
