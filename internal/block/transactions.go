// Package block holds the transaction set of one block: the ordered payload that block assembly
// validates, digests into the transactions root and aggregates into fees and net value balance.
//
// A Transactions value is owned by exactly one component at a time (the block assembler) and has
// no internal locking. Push only checks the candidate on its own; cross-transaction invariants
// (double-spends, duplicate commitments, coinbase count) are checked by Validate.
package block

import (
	"runtime"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	"zkledger/internal/network"
	"zkledger/internal/zerocash"
)

var (
	// ErrInvalidTransaction is returned by Push when the candidate fails its own verification.
	ErrInvalidTransaction = errors.New("invalid transaction")
	// ErrMalformedAggregate is returned when an aggregate has no members to fold over.
	ErrMalformedAggregate = errors.New("malformed aggregate")
	// ErrEmptyFeeSet is returned by TransactionFees when no member pays a fee.
	ErrEmptyFeeSet = errors.Wrap(ErrMalformedAggregate, "empty fee set")
	// ErrDecode is returned when a block payload cannot be decoded.
	ErrDecode = errors.New("transactions decode error")
	// ErrIndexOutOfRange is returned for member indices outside the set.
	ErrIndexOutOfRange = errors.New("transaction index out of range")
)

// Verifier checks a single transaction in isolation.
// *zerocash.Verifier is the production implementation.
type Verifier interface {
	VerifyTransaction(tx *zerocash.Transaction) error
}

// Option configures a Transactions value.
type Option func(*Transactions)

// WithLogger sets the logger used for push and validation diagnostics.
func WithLogger(logger zerolog.Logger) Option {
	return func(t *Transactions) {
		t.log = logger.With().Str("component", "transactions").Logger()
	}
}

// WithConcurrency bounds the number of transactions verified in parallel by Validate.
func WithConcurrency(n int) Option {
	return func(t *Transactions) {
		if n > 0 {
			t.concurrency = n
		}
	}
}

// Transactions is the ordered transaction set of one block. Member order is part of the
// canonical representation: it determines the transactions root and the wire encoding.
type Transactions struct {
	params   *network.Params
	verifier Verifier
	txs      []*zerocash.Transaction

	log         zerolog.Logger
	concurrency int
}

// New returns an empty set for the network described by params.
func New(params *network.Params, verifier Verifier, opts ...Option) *Transactions {
	t := &Transactions{
		params:      params,
		verifier:    verifier,
		log:         zerolog.Nop(),
		concurrency: runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// From wraps txs verbatim. Members are not verified; the caller must have validated them.
func From(params *network.Params, verifier Verifier, txs []*zerocash.Transaction, opts ...Option) *Transactions {
	t := New(params, verifier, opts...)
	t.txs = append(make([]*zerocash.Transaction, 0, len(txs)), txs...)
	return t
}

// Push appends tx if it passes verification. On failure the set is unchanged and the returned
// error wraps ErrInvalidTransaction.
func (t *Transactions) Push(tx *zerocash.Transaction) error {
	if tx == nil {
		return errors.Wrap(ErrInvalidTransaction, "nil transaction")
	}
	if err := t.verifier.VerifyTransaction(tx); err != nil {
		t.log.Debug().Stringer("tx", tx.ID()).Err(err).Msg("rejected transaction")
		return errors.Wrapf(ErrInvalidTransaction, "transaction %s: %v", tx.ID(), err)
	}
	t.txs = append(t.txs, tx)
	t.log.Debug().Stringer("tx", tx.ID()).Int("len", len(t.txs)).Msg("pushed transaction")
	return nil
}

// Len returns the number of members.
func (t *Transactions) Len() int {
	return len(t.txs)
}

// At returns the member at index i.
func (t *Transactions) At(i int) (*zerocash.Transaction, error) {
	if i < 0 || i >= len(t.txs) {
		return nil, errors.Wrapf(ErrIndexOutOfRange, "index %d, len %d", i, len(t.txs))
	}
	return t.txs[i], nil
}

// Transactions returns the members in order. The slice is a copy; the transactions are shared.
func (t *Transactions) Transactions() []*zerocash.Transaction {
	return append([]*zerocash.Transaction(nil), t.txs...)
}

// Params returns the network profile the set was built for.
func (t *Transactions) Params() *network.Params {
	return t.params
}

// mustNotBeEmpty panics with an assertion failure when an aggregate is requested on an empty set
// or on a set holding nil members. Callers are expected to check Len first; reaching this is a
// programming error.
func (t *Transactions) mustNotBeEmpty(op string) {
	if len(t.txs) == 0 {
		panic(errors.AssertionFailedf("%s called on an empty transaction set", errors.Safe(op)))
	}
	t.mustNotHoldNil(op)
}

// mustNotHoldNil panics with an assertion failure when a member is nil. Only From can admit one.
func (t *Transactions) mustNotHoldNil(op string) {
	for i, tx := range t.txs {
		if tx == nil {
			panic(errors.AssertionFailedf("%s called on a transaction set with a nil member at %d", errors.Safe(op), i))
		}
	}
}
