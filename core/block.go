package core

// Block (C3) — a sealed container of transactions plus header, per
// spec.md §3/§6. Encode/Decode implement the exact wire layout spec.md
// §6 pins bit-for-bit (fixed-width big-endian fields), not RLP — RLP is
// reserved for the ledger's own WAL/snapshot persistence, an
// implementation detail validate_full never inspects.

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// BlockHeader is the sealed, signed portion of a block.
type BlockHeader struct {
	Height       uint64
	PrevHash     Hash
	PayloadRoot  Hash
	Proposer     ed25519.PublicKey
	Timestamp    time.Time
	AuthoritySig []byte
}

// Block is a sealed container of transactions plus header.
type Block struct {
	Header       BlockHeader
	Transactions []*Transaction
	hash         Hash
	hashValid    bool
}

// PayloadRoot computes the canonical hash over the ordered sequence of
// transaction ids (spec.md §3), using the same double-SHA256 pairing
// shape as the teacher's merkle_tree_operations.go, adapted from a
// UTXO merkle root to a transaction-id root.
func PayloadRoot(txs []*Transaction) Hash {
	if len(txs) == 0 {
		return Hash{}
	}
	level := make([][]byte, len(txs))
	for i, tx := range txs {
		id := tx.ID()
		level[i] = id[:]
	}
	for len(level) > 1 {
		next := make([][]byte, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 == len(level) {
				next = append(next, pairHash(level[i], level[i]))
			} else {
				next = append(next, pairHash(level[i], level[i+1]))
			}
		}
		level = next
	}
	var h Hash
	copy(h[:], level[0])
	return h
}

func pairHash(a, b []byte) []byte {
	first := sha256.Sum256(append(append([]byte{}, a...), b...))
	second := sha256.Sum256(first[:])
	return second[:]
}

// signedHeaderBytes is the region the authority signature covers: the
// header through tx_count, concatenated with each tx.id in order
// (spec.md §6).
func signedHeaderBytes(h BlockHeader, txs []*Transaction) []byte {
	buf := make([]byte, 0, 8+32+32+32+8+4+32*len(txs))
	var heightBuf [8]byte
	binary.BigEndian.PutUint64(heightBuf[:], h.Height)
	buf = append(buf, heightBuf[:]...)
	buf = append(buf, h.PrevHash[:]...)
	buf = append(buf, h.PayloadRoot[:]...)
	buf = append(buf, h.Proposer...)
	var tsBuf [8]byte
	binary.BigEndian.PutUint64(tsBuf[:], uint64(h.Timestamp.UnixNano()))
	buf = append(buf, tsBuf[:]...)
	var countBuf [4]byte
	binary.BigEndian.PutUint32(countBuf[:], uint32(len(txs)))
	buf = append(buf, countBuf[:]...)
	for _, tx := range txs {
		id := tx.ID()
		buf = append(buf, id[:]...)
	}
	return buf
}

// Sign seals the header: computes PayloadRoot and AuthoritySig over the
// signed region.
func (b *Block) Sign(proposerSK ed25519.PrivateKey) {
	b.Header.Proposer = proposerSK.Public().(ed25519.PublicKey)
	b.Header.PayloadRoot = PayloadRoot(b.Transactions)
	region := signedHeaderBytes(b.Header, b.Transactions)
	b.Header.AuthoritySig = ed25519.Sign(proposerSK, region)
	b.hashValid = false
}

// Hash is the content hash of the sealed header (spec.md §3), cached
// after the first computation since a committed block is immutable.
func (b *Block) Hash() Hash {
	if b.hashValid {
		return b.hash
	}
	region := signedHeaderBytes(b.Header, b.Transactions)
	full := append(append([]byte{}, region...), b.Header.AuthoritySig...)
	b.hash = sha256.Sum256(full)
	b.hashValid = true
	return b.hash
}

// VerifySignature checks AuthoritySig over the signed region against
// Proposer, and that PayloadRoot matches the actual transaction set.
func (b *Block) VerifySignature() error {
	if len(b.Header.Proposer) != ed25519.PublicKeySize || len(b.Header.AuthoritySig) != ed25519.SignatureSize {
		return ErrBadAuthoritySig
	}
	if PayloadRoot(b.Transactions) != b.Header.PayloadRoot {
		return invalidBlock("PayloadRoot", errors.New("payload root mismatch"))
	}
	region := signedHeaderBytes(b.Header, b.Transactions)
	if !ed25519.Verify(b.Header.Proposer, region, b.Header.AuthoritySig) {
		return ErrBadAuthoritySig
	}
	return nil
}

// Encode serializes the block per the fixed layout of spec.md §6:
// height | prev_hash | payload_root | proposer_pk | timestamp_ns |
// tx_count | [tx ...] | authority_sig.
func (b *Block) Encode() []byte {
	buf := signedHeaderBytes(b.Header, b.Transactions)
	// signedHeaderBytes already stops at tx ids per spec.md §6's signed
	// region; the wire record also needs the full transaction bodies.
	// Rebuild with bodies included.
	out := make([]byte, 0, len(buf)+64)
	var heightBuf [8]byte
	binary.BigEndian.PutUint64(heightBuf[:], b.Header.Height)
	out = append(out, heightBuf[:]...)
	out = append(out, b.Header.PrevHash[:]...)
	out = append(out, b.Header.PayloadRoot[:]...)
	out = append(out, b.Header.Proposer...)
	var tsBuf [8]byte
	binary.BigEndian.PutUint64(tsBuf[:], uint64(b.Header.Timestamp.UnixNano()))
	out = append(out, tsBuf[:]...)
	var countBuf [4]byte
	binary.BigEndian.PutUint32(countBuf[:], uint32(len(b.Transactions)))
	out = append(out, countBuf[:]...)
	for _, tx := range b.Transactions {
		out = append(out, tx.encode()...)
	}
	out = append(out, b.Header.AuthoritySig...)
	return out
}

// DecodeBlock parses the wire form produced by Encode.
func DecodeBlock(data []byte) (*Block, error) {
	r := &byteReader{data: data}
	h := BlockHeader{}
	var err error
	h.Height, err = r.readU64()
	if err != nil {
		return nil, err
	}
	h.PrevHash, err = r.readHash()
	if err != nil {
		return nil, err
	}
	h.PayloadRoot, err = r.readHash()
	if err != nil {
		return nil, err
	}
	pk, err := r.readBytes(ed25519.PublicKeySize)
	if err != nil {
		return nil, err
	}
	h.Proposer = ed25519.PublicKey(pk)
	tsRaw, err := r.readU64()
	if err != nil {
		return nil, err
	}
	h.Timestamp = time.Unix(0, int64(tsRaw)).UTC()
	count, err := r.readU32()
	if err != nil {
		return nil, err
	}
	txs := make([]*Transaction, 0, count)
	for i := uint32(0); i < count; i++ {
		tx, err := decodeTransaction(r)
		if err != nil {
			return nil, fmt.Errorf("tx %d: %w", i, err)
		}
		txs = append(txs, tx)
	}
	sig, err := r.readBytes(ed25519.SignatureSize)
	if err != nil {
		return nil, err
	}
	h.AuthoritySig = sig
	if !r.atEnd() {
		return nil, errors.New("core: trailing bytes after block record")
	}
	return &Block{Header: h, Transactions: txs}, nil
}

func decodeTransaction(r *byteReader) (*Transaction, error) {
	idBytes, err := r.readBytes(32)
	if err != nil {
		return nil, err
	}
	var id Hash
	copy(id[:], idBytes)
	author, err := r.readBytes(ed25519.PublicKeySize)
	if err != nil {
		return nil, err
	}
	sig, err := r.readBytes(ed25519.SignatureSize)
	if err != nil {
		return nil, err
	}
	flagByte, err := r.readByte()
	if err != nil {
		return nil, err
	}
	payloadLen, err := r.readU32()
	if err != nil {
		return nil, err
	}
	body, err := r.readBytes(int(payloadLen))
	if err != nil {
		return nil, err
	}
	tx := &Transaction{
		id:            id,
		Author:        ed25519.PublicKey(author),
		Signature:     sig,
		CanonicalFlag: flagByte != 0,
	}
	if tx.CanonicalFlag {
		triples, err := ParseNQuadLines(body)
		if err != nil {
			return nil, err
		}
		tx.Payload = triples
	} else {
		tx.RawPayload = body
	}
	return tx, nil
}

// byteReader is a minimal cursor over a fixed-layout wire record.
type byteReader struct {
	data []byte
	pos  int
}

func (r *byteReader) readBytes(n int) ([]byte, error) {
	if r.pos+n > len(r.data) {
		return nil, errors.New("core: truncated block record")
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *byteReader) readByte() (byte, error) {
	b, err := r.readBytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *byteReader) readHash() (Hash, error) {
	b, err := r.readBytes(32)
	if err != nil {
		return Hash{}, err
	}
	var h Hash
	copy(h[:], b)
	return h, nil
}

func (r *byteReader) readU32() (uint32, error) {
	b, err := r.readBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (r *byteReader) readU64() (uint64, error) {
	b, err := r.readBytes(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

func (r *byteReader) atEnd() bool { return r.pos == len(r.data) }
