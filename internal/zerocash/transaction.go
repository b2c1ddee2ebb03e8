// transaction.go - Transaction type and its canonical wire encoding.
//
// Wire layout (little-endian integers, CompactSize counts):
//
//	u16 network || cs(n_sn) || sn_1..sn_n || cs(n_cm) || cm_1..cm_n || i64 value_balance || cs(len) || proof
//
// The encoding is self-delimiting so transactions can be concatenated inside a block payload.

package zerocash

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"io"

	"github.com/btcsuite/btcd/wire"
	"github.com/cockroachdb/errors"

	"zkledger/internal/amount"
)

const (
	// maxTagsPerTransaction bounds the serial number and commitment counts accepted when decoding.
	maxTagsPerTransaction = 64
	// MaxProofSize bounds the encoded proof accepted when decoding.
	MaxProofSize = 1 << 12

	// wire.ReadVarInt and friends take a protocol version; CompactSize does not depend on it.
	pver = 0
)

// ErrMalformedTransaction is returned when a transaction cannot be decoded.
var ErrMalformedTransaction = errors.New("malformed transaction")

// SerialNumber marks a spent note.
type SerialNumber [FieldBytes]byte

// Commitment marks a created note.
type Commitment [FieldBytes]byte

// TxID identifies a transaction: BLAKE2s-256 of its canonical encoding.
type TxID [32]byte

func (s SerialNumber) String() string { return hex.EncodeToString(s[:]) }
func (c Commitment) String() string   { return hex.EncodeToString(c[:]) }
func (id TxID) String() string        { return hex.EncodeToString(id[:]) }

// Transaction is a proven state transition: it spends the notes behind SerialNumbers and creates
// the notes behind Commitments. A negative ValueBalance mints value (coinbase); a non-negative
// one is the fee paid to the block producer.
type Transaction struct {
	Network       uint16
	SerialNumbers []SerialNumber
	Commitments   []Commitment
	ValueBalance  amount.Amount
	Proof         []byte
}

// IsCoinbase reports whether tx creates value.
func (tx *Transaction) IsCoinbase() bool {
	return tx.ValueBalance.IsNegative()
}

// ID returns the transaction id.
func (tx *Transaction) ID() TxID {
	return txHash(tx.Bytes())
}

// Bytes returns the canonical encoding of tx.
func (tx *Transaction) Bytes() []byte {
	var buf bytes.Buffer
	// bytes.Buffer writes never fail
	_, _ = tx.WriteTo(&buf)
	return buf.Bytes()
}

// WriteTo writes the canonical encoding of tx to w.
func (tx *Transaction) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	if err := binary.Write(cw, binary.LittleEndian, tx.Network); err != nil {
		return cw.n, err
	}
	if err := wire.WriteVarInt(cw, pver, uint64(len(tx.SerialNumbers))); err != nil {
		return cw.n, err
	}
	for i := range tx.SerialNumbers {
		if _, err := cw.Write(tx.SerialNumbers[i][:]); err != nil {
			return cw.n, err
		}
	}
	if err := wire.WriteVarInt(cw, pver, uint64(len(tx.Commitments))); err != nil {
		return cw.n, err
	}
	for i := range tx.Commitments {
		if _, err := cw.Write(tx.Commitments[i][:]); err != nil {
			return cw.n, err
		}
	}
	if err := binary.Write(cw, binary.LittleEndian, tx.ValueBalance.Int64()); err != nil {
		return cw.n, err
	}
	if err := wire.WriteVarBytes(cw, pver, tx.Proof); err != nil {
		return cw.n, err
	}
	return cw.n, nil
}

// ReadTransaction decodes exactly one transaction from r.
func ReadTransaction(r io.Reader) (*Transaction, error) {
	tx := &Transaction{}
	if err := binary.Read(r, binary.LittleEndian, &tx.Network); err != nil {
		return nil, errors.Wrapf(ErrMalformedTransaction, "network: %v", err)
	}

	nsn, err := readCount(r, "serial numbers")
	if err != nil {
		return nil, err
	}
	tx.SerialNumbers = make([]SerialNumber, nsn)
	for i := range tx.SerialNumbers {
		if _, err := io.ReadFull(r, tx.SerialNumbers[i][:]); err != nil {
			return nil, errors.Wrapf(ErrMalformedTransaction, "serial number %d: %v", i, err)
		}
	}

	ncm, err := readCount(r, "commitments")
	if err != nil {
		return nil, err
	}
	tx.Commitments = make([]Commitment, ncm)
	for i := range tx.Commitments {
		if _, err := io.ReadFull(r, tx.Commitments[i][:]); err != nil {
			return nil, errors.Wrapf(ErrMalformedTransaction, "commitment %d: %v", i, err)
		}
	}

	var vb int64
	if err := binary.Read(r, binary.LittleEndian, &vb); err != nil {
		return nil, errors.Wrapf(ErrMalformedTransaction, "value balance: %v", err)
	}
	tx.ValueBalance = amount.Amount(vb)

	proof, err := wire.ReadVarBytes(r, pver, MaxProofSize, "proof")
	if err != nil {
		return nil, errors.Wrapf(ErrMalformedTransaction, "proof: %v", err)
	}
	tx.Proof = proof
	return tx, nil
}

// TransactionFromBytes decodes b, which must hold exactly one transaction.
func TransactionFromBytes(b []byte) (*Transaction, error) {
	r := bytes.NewReader(b)
	tx, err := ReadTransaction(r)
	if err != nil {
		return nil, err
	}
	if r.Len() != 0 {
		return nil, errors.Wrapf(ErrMalformedTransaction, "%d trailing bytes", r.Len())
	}
	return tx, nil
}

// TransactionFromHex decodes the hex form produced by Hex.
func TransactionFromHex(s string) (*Transaction, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, errors.Wrapf(ErrMalformedTransaction, "hex: %v", err)
	}
	return TransactionFromBytes(b)
}

// Hex returns the lowercase hex of the canonical encoding.
func (tx *Transaction) Hex() string {
	return hex.EncodeToString(tx.Bytes())
}

// Equal reports whether two transactions have the same canonical encoding.
func (tx *Transaction) Equal(other *Transaction) bool {
	if tx == nil || other == nil {
		return tx == other
	}
	return bytes.Equal(tx.Bytes(), other.Bytes())
}

func readCount(r io.Reader, field string) (uint64, error) {
	n, err := wire.ReadVarInt(r, pver)
	if err != nil {
		return 0, errors.Wrapf(ErrMalformedTransaction, "%s count: %v", field, err)
	}
	if n > maxTagsPerTransaction {
		return 0, errors.Wrapf(ErrMalformedTransaction, "%s count %d exceeds %d", field, n, maxTagsPerTransaction)
	}
	return n, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
