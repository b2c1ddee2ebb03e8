package block

import (
	"bytes"
	"io"

	"github.com/btcsuite/btcd/wire"
	"github.com/cockroachdb/errors"

	"zkledger/internal/network"
	"zkledger/internal/zerocash"
)

// preallocLimit caps the capacity reserved from an untrusted count.
const preallocLimit = 1024

// WriteTo writes the block payload: CompactSize(count) followed by each member's encoding.
func (t *Transactions) WriteTo(w io.Writer) (int64, error) {
	var n int64
	if err := wire.WriteVarInt(w, 0, uint64(len(t.txs))); err != nil {
		return n, errors.Wrap(err, "write transaction count")
	}
	n += int64(wire.VarIntSerializeSize(uint64(len(t.txs))))
	for i, tx := range t.txs {
		m, err := tx.WriteTo(w)
		n += m
		if err != nil {
			return n, errors.Wrapf(err, "write transaction %d", i)
		}
	}
	return n, nil
}

// Bytes returns the block payload.
func (t *Transactions) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := t.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Read decodes a block payload from r. Members are not verified; call Validate on the result.
func Read(params *network.Params, verifier Verifier, r io.Reader, opts ...Option) (*Transactions, error) {
	count, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return nil, errors.Wrapf(ErrDecode, "transaction count: %v", err)
	}
	if count > params.MaxTransactions {
		return nil, errors.Wrapf(ErrDecode, "transaction count %d exceeds %d", count, params.MaxTransactions)
	}

	txs := make([]*zerocash.Transaction, 0, min(count, preallocLimit))
	for i := uint64(0); i < count; i++ {
		tx, err := zerocash.ReadTransaction(r)
		if err != nil {
			return nil, errors.Wrapf(ErrDecode, "transaction %d of %d: %v", i, count, err)
		}
		txs = append(txs, tx)
	}
	return From(params, verifier, txs, opts...), nil
}

// FromBytes decodes b, which must hold exactly one block payload.
func FromBytes(params *network.Params, verifier Verifier, b []byte, opts ...Option) (*Transactions, error) {
	r := bytes.NewReader(b)
	t, err := Read(params, verifier, r, opts...)
	if err != nil {
		return nil, err
	}
	if r.Len() != 0 {
		return nil, errors.Wrapf(ErrDecode, "%d trailing bytes", r.Len())
	}
	return t, nil
}

// SerializeAsStr returns the lowercase hex encoding of each member, in order.
func (t *Transactions) SerializeAsStr() []string {
	out := make([]string, len(t.txs))
	for i, tx := range t.txs {
		out[i] = tx.Hex()
	}
	return out
}

// Equal reports whether both sets hold the same transactions in the same order.
func (t *Transactions) Equal(other *Transactions) bool {
	if t == nil || other == nil {
		return t == other
	}
	if len(t.txs) != len(other.txs) {
		return false
	}
	for i := range t.txs {
		if !t.txs[i].Equal(other.txs[i]) {
			return false
		}
	}
	return true
}
