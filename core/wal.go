package core

// Write-ahead log record encoding. The teacher's own ledger.go decodes
// its WAL with github.com/ethereum/go-ethereum/rlp; this file keeps
// that dependency for the same purpose, rather than reusing the
// spec.md §6 wire layout (Block.Encode/DecodeBlock), which is pinned
// bit-for-bit for network/disk interchange and has no obligation to
// also be RLP's struct-reflection shape. walRecord is a flat,
// RLP-friendly projection of a Block — RLP's reflection-based encoder
// cannot walk time.Time's unexported fields and encodes only unsigned
// integers, so timestamps are carried as the uint64 bits of UnixNano
// instead. Each record is hex-encoded so that it fits on one line of
// the newline-delimited WAL file.

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/rlp"
)

type walTx struct {
	ID            []byte
	PayloadBytes  []byte
	CanonicalFlag bool
	Author        []byte
	Signature     []byte
}

type walRecord struct {
	Height       uint64
	PrevHash     []byte
	PayloadRoot  []byte
	Proposer     []byte
	TimestampNs  uint64
	AuthoritySig []byte
	Transactions []walTx
}

func encodeWAL(b *Block) ([]byte, error) {
	rec := walRecord{
		Height:       b.Header.Height,
		PrevHash:     append([]byte{}, b.Header.PrevHash[:]...),
		PayloadRoot:  append([]byte{}, b.Header.PayloadRoot[:]...),
		Proposer:     append([]byte{}, b.Header.Proposer...),
		TimestampNs:  uint64(b.Header.Timestamp.UnixNano()),
		AuthoritySig: append([]byte{}, b.Header.AuthoritySig...),
	}
	for _, tx := range b.Transactions {
		id := tx.ID()
		rec.Transactions = append(rec.Transactions, walTx{
			ID:            id[:],
			PayloadBytes:  tx.encodedPayload(),
			CanonicalFlag: tx.CanonicalFlag,
			Author:        append([]byte{}, tx.Author...),
			Signature:     append([]byte{}, tx.Signature...),
		})
	}
	raw, err := rlp.EncodeToBytes(&rec)
	if err != nil {
		return nil, err
	}
	return []byte(hex.EncodeToString(raw)), nil
}

func decodeWAL(data []byte) (*Block, error) {
	raw, err := hex.DecodeString(string(data))
	if err != nil {
		return nil, fmt.Errorf("core: WAL hex decode: %w", err)
	}
	var rec walRecord
	if err := rlp.DecodeBytes(raw, &rec); err != nil {
		return nil, fmt.Errorf("core: WAL rlp decode: %w", err)
	}
	h := BlockHeader{
		Height:       rec.Height,
		Proposer:     ed25519.PublicKey(rec.Proposer),
		Timestamp:    time.Unix(0, int64(rec.TimestampNs)).UTC(),
		AuthoritySig: rec.AuthoritySig,
	}
	copy(h.PrevHash[:], rec.PrevHash)
	copy(h.PayloadRoot[:], rec.PayloadRoot)

	txs := make([]*Transaction, 0, len(rec.Transactions))
	for i, wt := range rec.Transactions {
		var id Hash
		copy(id[:], wt.ID)
		tx := &Transaction{
			id:            id,
			CanonicalFlag: wt.CanonicalFlag,
			Author:        ed25519.PublicKey(wt.Author),
			Signature:     wt.Signature,
		}
		if wt.CanonicalFlag {
			triples, err := ParseNQuadLines(wt.PayloadBytes)
			if err != nil {
				return nil, fmt.Errorf("core: WAL tx %d: %w", i, err)
			}
			tx.Payload = triples
		} else {
			tx.RawPayload = wt.PayloadBytes
		}
		txs = append(txs, tx)
	}
	return &Block{Header: h, Transactions: txs}, nil
}
