package block

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"

	"zkledger/internal/zerocash"
)

// ErrValidation matches every *ValidationError.
var ErrValidation = errors.New("transaction set validation failed")

// Reason names the invariant a set failed.
type Reason int

const (
	ReasonEmpty Reason = iota + 1
	ReasonInvalidTransaction
	ReasonDuplicateSerialNumber
	ReasonDuplicateCommitment
	ReasonCoinbaseCount
)

func (r Reason) String() string {
	switch r {
	case ReasonEmpty:
		return "empty set"
	case ReasonInvalidTransaction:
		return "invalid transaction"
	case ReasonDuplicateSerialNumber:
		return "duplicate serial number"
	case ReasonDuplicateCommitment:
		return "duplicate commitment"
	case ReasonCoinbaseCount:
		return "coinbase count"
	default:
		return fmt.Sprintf("reason(%d)", int(r))
	}
}

// ValidationError is the structured result of a failed Validate.
type ValidationError struct {
	Reason Reason
	// Index is the member at fault, or -1 when the failure is set-wide.
	Index int
	// Value is the hex of the duplicated tag for duplicate reasons.
	Value string
	// Expected and Found are the coinbase counts for ReasonCoinbaseCount.
	Expected int
	Found    int
	// Cause is the verifier error for ReasonInvalidTransaction.
	Cause error
}

func (e *ValidationError) Error() string {
	switch e.Reason {
	case ReasonInvalidTransaction:
		return fmt.Sprintf("%s: transaction %d: %v", e.Reason, e.Index, e.Cause)
	case ReasonDuplicateSerialNumber, ReasonDuplicateCommitment:
		return fmt.Sprintf("%s %s in transaction %d", e.Reason, e.Value, e.Index)
	case ReasonCoinbaseCount:
		return fmt.Sprintf("%s: expected %d, found %d", e.Reason, e.Expected, e.Found)
	default:
		return e.Reason.String()
	}
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func (e *ValidationError) Unwrap() error { return e.Cause }

// Validate checks the whole set and returns nil or a *ValidationError.
//
// Phases:
//  1. Verify every member, in parallel. The lowest failing index is reported.
//  2. Reject serial numbers that appear more than once across the set.
//  3. Reject commitments that appear more than once across the set.
//  4. Require exactly params.CoinbaseTxCount value-creating members.
func (t *Transactions) Validate() error {
	if len(t.txs) == 0 {
		return &ValidationError{Reason: ReasonEmpty, Index: -1}
	}
	if err := t.verifyMembers(); err != nil {
		return err
	}

	seenSN := make(map[zerocash.SerialNumber]struct{}, len(t.txs)*t.params.NumInputs)
	for i, tx := range t.txs {
		for _, sn := range tx.SerialNumbers {
			if _, ok := seenSN[sn]; ok {
				return &ValidationError{Reason: ReasonDuplicateSerialNumber, Index: i, Value: sn.String()}
			}
			seenSN[sn] = struct{}{}
		}
	}

	seenCM := make(map[zerocash.Commitment]struct{}, len(t.txs)*t.params.NumOutputs)
	for i, tx := range t.txs {
		for _, cm := range tx.Commitments {
			if _, ok := seenCM[cm]; ok {
				return &ValidationError{Reason: ReasonDuplicateCommitment, Index: i, Value: cm.String()}
			}
			seenCM[cm] = struct{}{}
		}
	}

	if n := t.CoinbaseTransactionCount(); n != t.params.CoinbaseTxCount {
		return &ValidationError{
			Reason:   ReasonCoinbaseCount,
			Index:    -1,
			Expected: t.params.CoinbaseTxCount,
			Found:    n,
		}
	}
	return nil
}

// verifyMembers runs the verifier over every member. Members above an already failed index are
// skipped, so the reported index is the one a sequential pass would report.
func (t *Transactions) verifyMembers() error {
	errs := make([]error, len(t.txs))
	var firstFailed atomic.Int64
	firstFailed.Store(math.MaxInt64)

	var g errgroup.Group
	g.SetLimit(t.concurrency)
	for i, tx := range t.txs {
		i, tx := i, tx
		g.Go(func() error {
			if int64(i) > firstFailed.Load() {
				return nil
			}
			if err := t.verifyOne(tx); err != nil {
				errs[i] = err
				for {
					cur := firstFailed.Load()
					if int64(i) >= cur || firstFailed.CompareAndSwap(cur, int64(i)) {
						break
					}
				}
			}
			return nil
		})
	}
	// goroutines never return an error
	_ = g.Wait()

	if idx := firstFailed.Load(); idx != math.MaxInt64 {
		return &ValidationError{Reason: ReasonInvalidTransaction, Index: int(idx), Cause: errs[idx]}
	}
	return nil
}

// verifyOne converts a verifier panic into an error so it cannot escape the worker goroutine.
func (t *Transactions) verifyOne(tx *zerocash.Transaction) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("verifier panicked: %v", r)
		}
	}()
	if tx == nil {
		return errors.New("nil transaction")
	}
	return t.verifier.VerifyTransaction(tx)
}

// IsValid reports whether the set can be included in a block. It never panics: the failure
// reason, including recovered contract violations, is logged and collapsed to false.
func (t *Transactions) IsValid() (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			t.log.Error().Interface("panic", r).Msg("transaction set validation panicked")
			ok = false
		}
	}()

	err := t.Validate()
	if err == nil {
		return true
	}
	var verr *ValidationError
	if errors.As(err, &verr) {
		t.log.Warn().
			Stringer("reason", verr.Reason).
			Int("index", verr.Index).
			Int("len", len(t.txs)).
			Err(err).
			Msg("transaction set is invalid")
	} else {
		t.log.Warn().Err(err).Msg("transaction set is invalid")
	}
	return false
}
