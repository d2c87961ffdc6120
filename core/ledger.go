package core

// Chain ledger (C5) — append-only ordered sequence of blocks with
// integrity invariants, per spec.md §4.4. Grounded on the teacher's own
// ledger.go: this file keeps its WAL-open-then-replay skeleton and
// logrus structured logging, but replaces all UTXO/token/contract state
// with chain-integrity state only (blocks, head hash, LRU cache).
// appendCommitted is the single coordinator-only mutator (spec.md §4.3
// step 6); every other mutation path the teacher exposed (MintToken,
// Transfer, AddToPool, …) has no place in this domain and was removed.

import (
	"bufio"
	"context"
	"crypto/ed25519"
	"fmt"
	"os"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
)

// LedgerConfig configures a Ledger. Configuration loading from a file is
// out of scope (spec.md §1); callers construct this struct directly.
type LedgerConfig struct {
	WALPath      string
	GenesisBlock *Block
	CacheSize    int // LRU block-by-height cache size; 0 uses a sensible default
	Logger       *logrus.Logger
}

// Ledger is the in-memory chain state spec.md §3 calls ChainState, plus
// the WAL file backing it. Only AtomicCommit (via appendCommitted) may
// mutate it past construction.
type Ledger struct {
	mu         sync.RWMutex
	blocks     []*Block
	blockIndex map[Hash]*Block
	headHash   Hash
	cache      *lru.Cache[uint64, *Block]
	walFile    *os.File
	log        *logrus.Entry
}

const defaultCacheSize = 256

// NewLedger initializes a ledger, replaying an existing WAL and
// optionally loading a genesis block.
func NewLedger(cfg LedgerConfig) (l *Ledger, err error) {
	wal, err := os.OpenFile(cfg.WALPath, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("core: open WAL: %w", err)
	}
	defer func() {
		if err != nil {
			_ = wal.Close()
		}
	}()

	size := cfg.CacheSize
	if size <= 0 {
		size = defaultCacheSize
	}
	cache, err := lru.New[uint64, *Block](size)
	if err != nil {
		return nil, fmt.Errorf("core: new LRU cache: %w", err)
	}

	l = &Ledger{
		blocks:     []*Block{},
		blockIndex: make(map[Hash]*Block),
		cache:      cache,
		walFile:    wal,
		log:        NewComponentLogger(cfg.Logger, "ledger"),
	}

	if cfg.GenesisBlock != nil {
		if err = l.appendLocked(cfg.GenesisBlock, false); err != nil {
			return nil, err
		}
		l.log.WithField("height", cfg.GenesisBlock.Header.Height).Info("loaded genesis block")
	}

	scanner := bufio.NewScanner(wal)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		blk, err := decodeWAL(scanner.Bytes())
		if err != nil {
			return nil, err
		}
		if err := l.appendLocked(blk, false); err != nil {
			return nil, err
		}
	}
	if err = scanner.Err(); err != nil {
		return nil, fmt.Errorf("core: WAL scan: %w", err)
	}
	return l, nil
}

// Head returns the most recently committed block, or nil for an empty chain.
func (l *Ledger) Head() *Block {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.blocks) == 0 {
		return nil
	}
	return l.blocks[len(l.blocks)-1]
}

// HeadHeight returns the height of the head block and true, or 0 and
// false for an empty chain.
func (l *Ledger) HeadHeight() (uint64, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.blocks) == 0 {
		return 0, false
	}
	return l.blocks[len(l.blocks)-1].Header.Height, true
}

// HeadHash returns the cached hash of the head block, the all-zero hash
// for an empty chain.
func (l *Ledger) HeadHash() Hash {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.headHash
}

// Get returns the block at height, using the LRU cache when possible.
func (l *Ledger) Get(height uint64) (*Block, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if b, ok := l.cache.Get(height); ok {
		return b, nil
	}
	if height >= uint64(len(l.blocks)) {
		return nil, fmt.Errorf("core: block %d not found", height)
	}
	b := l.blocks[height]
	l.cache.Add(height, b)
	return b, nil
}

// GetByHash returns the block with the given content hash.
func (l *Ledger) GetByHash(h Hash) (*Block, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	b, ok := l.blockIndex[h]
	if !ok {
		return nil, fmt.Errorf("core: block %s not found", h.String())
	}
	return b, nil
}

// Len reports the number of committed blocks.
func (l *Ledger) Len() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return uint64(len(l.blocks))
}

// appendCommitted is the coordinator-only mutator: AtomicCommit calls
// this only after the paired triplestore commit has already succeeded
// (spec.md §4.3 step 6). It rejects a block whose height is not the
// next one and, when persist is set, also writes the block to the WAL,
// returning ErrStoreError if that write fails.
func (l *Ledger) appendCommitted(block *Block, persist bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.appendLocked(block, persist)
}

func (l *Ledger) appendLocked(block *Block, persist bool) error {
	expected := uint64(len(l.blocks))
	if block.Header.Height != expected {
		if block.Header.Height < expected {
			return invalidBlock("DuplicateHeight", ErrDuplicateHeight)
		}
		return invalidBlock("HeightGap", fmt.Errorf("expected height %d, got %d", expected, block.Header.Height))
	}
	h := block.Hash()
	l.blocks = append(l.blocks, block)
	l.blockIndex[h] = block
	l.headHash = h
	l.cache.Add(block.Header.Height, block)

	if persist {
		data, err := encodeWAL(block)
		if err != nil {
			return fmt.Errorf("%w: encode WAL: %v", ErrStoreError, err)
		}
		if _, err := l.walFile.Write(append(data, '\n')); err != nil {
			return fmt.Errorf("%w: write WAL: %v", ErrStoreError, err)
		}
		if err := l.walFile.Sync(); err != nil {
			return fmt.Errorf("%w: sync WAL: %v", ErrStoreError, err)
		}
	}
	l.log.WithFields(logrus.Fields{"height": block.Header.Height, "hash": h.String()}).Info("block appended")
	return nil
}

// ValidateFull walks from genesis, recomputing each block hash, checking
// the prev-hash chain, re-verifying every transaction, and — when
// verifyPayloads is set — re-canonicalizing and rehashing each payload
// to detect store corruption, per spec.md §4.4/§8.
func (l *Ledger) ValidateFull(ctx context.Context, verifyPayloads bool) error {
	l.mu.RLock()
	blocks := make([]*Block, len(l.blocks))
	copy(blocks, l.blocks)
	l.mu.RUnlock()

	var prevHash Hash
	for i, b := range blocks {
		if err := ctx.Err(); err != nil {
			return chainBroken(b.Header.Height, "Cancelled", err)
		}
		if i == 0 {
			if b.Header.PrevHash != (Hash{}) {
				return chainBroken(b.Header.Height, "PrevHash", fmt.Errorf("genesis prev_hash must be zero"))
			}
		} else if b.Header.PrevHash != prevHash {
			return chainBroken(b.Header.Height, "PrevHash", fmt.Errorf("prev_hash does not match predecessor"))
		}
		if PayloadRoot(b.Transactions) != b.Header.PayloadRoot {
			return chainBroken(b.Header.Height, "PayloadRoot", fmt.Errorf("payload root mismatch"))
		}
		for j, tx := range b.Transactions {
			if verifyPayloads {
				if err := tx.Verify(); err != nil {
					return chainBroken(b.Header.Height, "Transaction", fmt.Errorf("tx %d: %w", j, err))
				}
				continue
			}
			id := tx.ID()
			if len(tx.Author) != ed25519.PublicKeySize || len(tx.Signature) != ed25519.SignatureSize ||
				!ed25519.Verify(tx.Author, id[:], tx.Signature) {
				return chainBroken(b.Header.Height, "Transaction", fmt.Errorf("tx %d: %w", j, ErrBadSignature))
			}
		}
		prevHash = b.Hash()
	}
	return nil
}

// Close releases the underlying WAL file handle.
func (l *Ledger) Close() error {
	if l == nil || l.walFile == nil {
		return nil
	}
	return l.walFile.Close()
}
