package core

// PoA consensus engine (C8) — deterministic round-robin leader election
// over an AuthoritySet, with per-authority reputation and a
// timestamp-gated turn predicate, per spec.md §4.5. Grounded on the
// teacher's own consensus.go: this keeps its logrus-tagged component
// logger and ticker-driven loop shape, but replaces the PoW/PoS/PoH
// hybrid sealing (sub-block aggregation, difficulty retargeting, block
// reward halving) entirely — none of that has a place in a
// single-authority-per-slot PoA design.

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// PoAConfig holds the tunables spec.md §4.5 names: the minimum block
// interval Δ and the missed-slot grace window γ, plus the reputation
// adjustment factors.
type PoAConfig struct {
	MinInterval time.Duration
	Grace       time.Duration
	MissPenalty float64 // ρ_miss, multiplicative decay on a missed slot; default 0.9
	GainPerHit  float64 // ε_gain, additive reputation gain on a committed block; default 0.01
	Logger      *logrus.Logger
	Metrics     *Metrics
}

// ConsensusEngine is the capability set spec.md §9 names so that a
// future BFT engine can be added as a sibling implementation rather
// than a subtype of PoA.
type ConsensusEngine interface {
	TurnFor(height uint64, now time.Time) (Address, bool)
	Validate(block *Block) error
	OnCommit(block *Block, proposerIndex int)
	OnMissedSlot(now time.Time)
}

// PoAEngine is the round-robin PoA consensus engine.
type PoAEngine struct {
	mu      sync.Mutex
	cfg     PoAConfig
	ledger  *Ledger
	authSet *AuthoritySet
	log     *logrus.Entry
}

// NewPoAEngine constructs a PoA engine bound to a ledger (for the
// previous block's timestamp) and an authority set (for turn rotation
// and reputation bookkeeping).
func NewPoAEngine(cfg PoAConfig, led *Ledger, authSet *AuthoritySet) *PoAEngine {
	if cfg.MissPenalty == 0 {
		cfg.MissPenalty = 0.9
	}
	if cfg.GainPerHit == 0 {
		cfg.GainPerHit = 0.01
	}
	return &PoAEngine{
		cfg:     cfg,
		ledger:  led,
		authSet: authSet,
		log:     NewComponentLogger(cfg.Logger, "consensus"),
	}
}

// TurnFor reports whether the authority currently at the cursor may
// propose at height and wall-clock now: spec.md §4.5's predicate is
// "i == cursor and t >= prev.timestamp + Δ". height is not consulted;
// the caller is expected to have already checked it against
// Ledger.Len().
func (e *PoAEngine) TurnFor(height uint64, now time.Time) (Address, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	addr, ok := e.authSet.currentAt(e.authSet.Cursor())
	if !ok {
		return Address{}, false
	}
	if now.Before(e.prevTimestamp().Add(e.cfg.MinInterval)) {
		return Address{}, false
	}
	return addr, true
}

func (e *PoAEngine) prevTimestamp() time.Time {
	head := e.ledger.Head()
	if head == nil {
		return time.Time{}
	}
	return head.Header.Timestamp
}

// Validate checks a peer-proposed block per spec.md §4.5: the
// proposer must be the authority currently at the cursor, the
// authority signature must verify, and the block's timestamp must
// respect the minimum interval since the previous block.
func (e *PoAEngine) Validate(block *Block) error {
	e.mu.Lock()
	cursor := e.authSet.Cursor()
	expected, ok := e.authSet.currentAt(cursor)
	prevTS := e.prevTimestamp()
	e.mu.Unlock()

	if !ok {
		return ErrEmptyAuthoritySet
	}
	if addressFromPubKey(block.Header.Proposer) != expected {
		return ErrNotYourTurn
	}
	if err := block.VerifySignature(); err != nil {
		return ErrBadAuthoritySig
	}
	if block.Header.Timestamp.Before(prevTS.Add(e.cfg.MinInterval)) {
		return ErrTimestampOutOfWindow
	}
	return nil
}

// CursorIndex returns the index of the authority a just-validated
// block was produced by, for use as the proposerIndex argument to
// OnCommit. Call this only immediately after a successful Validate, on
// the same PoAEngine: it reflects the cursor at call time, not the
// cursor at the time the block was proposed.
func (e *PoAEngine) CursorIndex() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.authSet.Cursor()
}

// OnCommit is invoked by the atomic-commit coordinator after a
// successful commit (spec.md §4.3 step 7): the proposer's
// blocks_produced counter and reputation are bumped, then the cursor
// advances to the next authority.
func (e *PoAEngine) OnCommit(block *Block, proposerIndex int) {
	e.mu.Lock()
	e.authSet.recordProduced(proposerIndex, e.cfg.GainPerHit)
	e.authSet.advanceCursor()
	rep, hasRep := e.authSet.reputationOf(proposerIndex)
	addr := e.authSet.addressAt(proposerIndex)
	e.mu.Unlock()

	if e.cfg.Metrics != nil {
		e.cfg.Metrics.BlocksCommitted.Inc()
		if hasRep {
			e.cfg.Metrics.AuthorityReputation.WithLabelValues(addr.String()).Set(rep)
		}
	}
	e.log.WithFields(logrus.Fields{"height": block.Header.Height, "authority": addr.Short()}).Info("block committed")
}

// OnMissedSlot is the only path by which the cursor advances without a
// successful commit (spec.md §4.5): once now exceeds
// prev.timestamp + Δ + γ with no block yet from the active authority,
// the miss is recorded, reputation decays, and the cursor rotates.
func (e *PoAEngine) OnMissedSlot(now time.Time) {
	e.mu.Lock()
	deadline := e.prevTimestamp().Add(e.cfg.MinInterval).Add(e.cfg.Grace)
	if !now.After(deadline) {
		e.mu.Unlock()
		return
	}
	idx := e.authSet.Cursor()
	e.authSet.recordMissed(idx, e.cfg.MissPenalty)
	e.authSet.advanceCursor()
	rep, hasRep := e.authSet.reputationOf(idx)
	addr := e.authSet.addressAt(idx)
	e.mu.Unlock()

	if e.cfg.Metrics != nil {
		e.cfg.Metrics.MissedSlots.Inc()
		if hasRep {
			e.cfg.Metrics.AuthorityReputation.WithLabelValues(addr.String()).Set(rep)
		}
	}
	e.log.WithField("authority", addr.Short()).Warn("slot missed, rotating cursor")
}

// Run polls for missed slots at a cadence derived from the grace
// window until ctx is cancelled — the teacher's own ticker-driven loop
// shape in blockLoop/subBlockLoop, adapted to PoA's single missed-slot
// timer instead of the hybrid PoW/PoS/PoH schedule.
func (e *PoAEngine) Run(ctx context.Context) {
	interval := e.cfg.Grace
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			e.OnMissedSlot(now)
		}
	}
}

func addressFromPubKey(pk []byte) Address {
	var a Address
	copy(a[:], pk)
	return a
}

// NewPoAMetrics is a convenience constructor for wiring Metrics into a
// PoAConfig, kept separate from the Metrics type itself so a caller
// that wants no metrics need not reference prometheus at all.
func NewPoAMetrics(reg prometheus.Registerer) *Metrics {
	return NewMetrics(reg)
}
