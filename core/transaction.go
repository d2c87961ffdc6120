package core

// Transaction (C2) — a signed unit of semantic intent, per SPEC_FULL.md
// §C2. Signing follows the teacher's Ed25519 path in its own
// security.go (Sign/Verify over AlgoEd25519); BLS/Dilithium/TLS were
// dropped because spec.md §6 pins Ed25519 as the sole scheme (see
// DESIGN.md's dropped-dependency list).

import (
	"crypto/ed25519"
	"encoding/binary"
	"time"
)

// Transaction holds a triple payload destined for a per-tx named graph
// assigned by the block that eventually includes it.
type Transaction struct {
	id           Hash
	Payload      []Triple
	RawPayload   []byte // only set when CanonicalFlag is false
	CanonicalFlag bool
	Author       ed25519.PublicKey
	Signature    []byte
	Timestamp    time.Time
}

// NewTransaction signs a canonical-RDF transaction: id = HashTriples(payload).
func NewTransaction(payload []Triple, authorSK ed25519.PrivateKey, ts time.Time) (*Transaction, error) {
	if len(payload) == 0 {
		return nil, ErrMalformedPayload
	}
	id, err := HashTriples(payload)
	if err != nil {
		return nil, err
	}
	tx := &Transaction{
		id:            id,
		Payload:       payload,
		CanonicalFlag: true,
		Author:        authorSK.Public().(ed25519.PublicKey),
		Timestamp:     ts,
	}
	tx.Signature = ed25519.Sign(authorSK, tx.id[:])
	return tx, nil
}

// NewTransactionRaw builds a transaction whose id is the SHA-256 of the
// raw byte payload directly — the §4.1 "Fallback" rule, used only when
// the caller has already determined the payload cannot be parsed as
// RDF. This is always an explicit caller choice (see DESIGN.md's Open
// Question decision); CanonicalFlag is never inferred from a failed
// parse inside this package.
func NewTransactionRaw(raw []byte, authorSK ed25519.PrivateKey, ts time.Time) (*Transaction, error) {
	if len(raw) == 0 {
		return nil, ErrMalformedPayload
	}
	id := HashRaw(raw)
	tx := &Transaction{
		id:            id,
		RawPayload:    raw,
		CanonicalFlag: false,
		Author:        authorSK.Public().(ed25519.PublicKey),
		Timestamp:     ts,
	}
	tx.Signature = ed25519.Sign(authorSK, tx.id[:])
	return tx, nil
}

// ID returns the content hash this transaction was signed over.
func (tx *Transaction) ID() Hash { return tx.id }

// Verify recomputes id from the payload using CanonicalFlag and checks
// the signature over it against Author, per spec.md §4.2.
func (tx *Transaction) Verify() error {
	var want Hash
	var err error
	if tx.CanonicalFlag {
		if len(tx.Payload) == 0 {
			return ErrMalformedPayload
		}
		want, err = HashTriples(tx.Payload)
		if err != nil {
			return err
		}
	} else {
		if len(tx.RawPayload) == 0 {
			return ErrMalformedPayload
		}
		want = HashRaw(tx.RawPayload)
	}
	if want != tx.id {
		return ErrIDMismatch
	}
	if len(tx.Author) != ed25519.PublicKeySize || len(tx.Signature) != ed25519.SignatureSize {
		return ErrBadSignature
	}
	if !ed25519.Verify(tx.Author, tx.id[:], tx.Signature) {
		return ErrBadSignature
	}
	return nil
}

// encode writes the fixed-layout transaction record from spec.md §6:
// id (32) | author_pk (32) | signature (64) | canonical_flag (u8) |
// payload_len (u32 BE) | payload_bytes.
func (tx *Transaction) encode() []byte {
	body := tx.encodedPayload()
	buf := make([]byte, 0, 32+32+64+1+4+len(body))
	buf = append(buf, tx.id[:]...)
	buf = append(buf, tx.Author...)
	buf = append(buf, tx.Signature...)
	flag := byte(0)
	if tx.CanonicalFlag {
		flag = 1
	}
	buf = append(buf, flag)
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(body)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, body...)
	return buf
}

// encodedPayload returns the byte form persisted inside a block record:
// the raw payload when canonical_flag is unset, or the triple set's own
// canonical serialization otherwise (so decoding never needs a separate
// RDF parser to recover what was hashed).
func (tx *Transaction) encodedPayload() []byte {
	if !tx.CanonicalFlag {
		return tx.RawPayload
	}
	b, err := Canonicalize(tx.Payload)
	if err != nil {
		// Payload was accepted at construction time; a canonicalizer
		// failure here would mean the payload was mutated after
		// signing, which Verify already guards against.
		return nil
	}
	return b
}
