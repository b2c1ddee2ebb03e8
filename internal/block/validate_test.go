package block

import (
	"bytes"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zkledger/internal/amount"
	"zkledger/internal/zerocash"
)

func requireReason(t *testing.T, err error, want Reason) *ValidationError {
	t.Helper()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr), "not a ValidationError: %v", err)
	assert.Equal(t, want, verr.Reason, verr.Error())
	return verr
}

func TestValidSetIsIdempotent(t *testing.T) {
	f := &txFactory{}
	txs := validSet(f, newFakeVerifier(), 2, 3)

	require.NoError(t, txs.Validate())
	assert.True(t, txs.IsValid())
	assert.True(t, txs.IsValid())
}

func TestEmptySetIsInvalid(t *testing.T) {
	txs := New(testParams(), newFakeVerifier())
	requireReason(t, txs.Validate(), ReasonEmpty)
	assert.False(t, txs.IsValid())
}

func TestDuplicateSerialNumberAcrossTransactions(t *testing.T) {
	f := &txFactory{}
	a := f.tx(2)
	b := f.tx(3)
	b.SerialNumbers[1] = a.SerialNumbers[0]

	txs := From(testParams(), newFakeVerifier(), []*zerocash.Transaction{f.tx(-10), a, b})
	verr := requireReason(t, txs.Validate(), ReasonDuplicateSerialNumber)
	assert.Equal(t, 2, verr.Index)
	assert.Equal(t, a.SerialNumbers[0].String(), verr.Value)
	assert.False(t, txs.IsValid())
}

func TestDuplicateSerialNumberWithinTransaction(t *testing.T) {
	f := &txFactory{}
	a := f.tx(2)
	a.SerialNumbers[1] = a.SerialNumbers[0]

	txs := From(testParams(), newFakeVerifier(), []*zerocash.Transaction{f.tx(-10), a})
	verr := requireReason(t, txs.Validate(), ReasonDuplicateSerialNumber)
	assert.Equal(t, 1, verr.Index)
}

func TestDuplicateCommitment(t *testing.T) {
	f := &txFactory{}
	coinbase := f.tx(-10)
	a := f.tx(2)
	a.Commitments[0] = coinbase.Commitments[1]

	txs := From(testParams(), newFakeVerifier(), []*zerocash.Transaction{coinbase, a})
	verr := requireReason(t, txs.Validate(), ReasonDuplicateCommitment)
	assert.Equal(t, 1, verr.Index)
	assert.Equal(t, coinbase.Commitments[1].String(), verr.Value)
}

func TestSerialNumbersCheckedBeforeCommitments(t *testing.T) {
	f := &txFactory{}
	a, b := f.tx(2), f.tx(3)
	b.SerialNumbers[0] = a.SerialNumbers[0]
	b.Commitments[0] = a.Commitments[0]

	txs := From(testParams(), newFakeVerifier(), []*zerocash.Transaction{f.tx(-10), a, b})
	requireReason(t, txs.Validate(), ReasonDuplicateSerialNumber)
}

func TestCoinbaseCount(t *testing.T) {
	tests := []struct {
		name     string
		balances []amount.Amount
		found    int
	}{
		{name: "none", balances: []amount.Amount{2, 3}, found: 0},
		{name: "two", balances: []amount.Amount{-10, -10, 3}, found: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &txFactory{}
			var members []*zerocash.Transaction
			for _, b := range tt.balances {
				members = append(members, f.tx(b))
			}
			txs := From(testParams(), newFakeVerifier(), members)
			verr := requireReason(t, txs.Validate(), ReasonCoinbaseCount)
			assert.Equal(t, 1, verr.Expected)
			assert.Equal(t, tt.found, verr.Found)
			assert.False(t, txs.IsValid())
		})
	}

	t.Run("exactly one", func(t *testing.T) {
		txs := validSet(&txFactory{}, newFakeVerifier(), 0)
		assert.True(t, txs.IsValid())
	})

	t.Run("network without coinbase", func(t *testing.T) {
		params := testParams()
		params.CoinbaseTxCount = 0
		f := &txFactory{}
		txs := From(params, newFakeVerifier(), []*zerocash.Transaction{f.tx(1)})
		assert.True(t, txs.IsValid())
	})
}

func TestInvalidMemberReportsLowestIndex(t *testing.T) {
	f := &txFactory{}
	v := newFakeVerifier()
	members := []*zerocash.Transaction{f.tx(-10)}
	for i := 0; i < 32; i++ {
		members = append(members, f.tx(1))
	}
	v.reject(members[7])
	v.reject(members[20])
	v.reject(members[31])

	for _, workers := range []int{1, 4, 64} {
		txs := From(testParams(), v, members, WithConcurrency(workers))
		verr := requireReason(t, txs.Validate(), ReasonInvalidTransaction)
		assert.Equal(t, 7, verr.Index, "workers=%d", workers)
		assert.ErrorIs(t, verr, errFakeInvalid)
	}
}

func TestInvalidMemberTakesPrecedence(t *testing.T) {
	f := &txFactory{}
	v := newFakeVerifier()
	a := f.tx(2)
	v.reject(a)

	// Also a double spend and no coinbase: the member check runs first.
	txs := From(testParams(), v, []*zerocash.Transaction{a, a})
	requireReason(t, txs.Validate(), ReasonInvalidTransaction)
}

func TestVerifierPanicIsContained(t *testing.T) {
	f := &txFactory{}
	txs := From(testParams(), panicVerifier{}, []*zerocash.Transaction{f.tx(-10)})

	verr := requireReason(t, txs.Validate(), ReasonInvalidTransaction)
	assert.Contains(t, verr.Error(), "boom")
	assert.False(t, txs.IsValid())
}

func TestIsValidLogsReason(t *testing.T) {
	var buf bytes.Buffer
	f := &txFactory{}
	txs := From(testParams(), newFakeVerifier(), []*zerocash.Transaction{f.tx(1)},
		WithLogger(zerolog.New(&buf)))

	assert.False(t, txs.IsValid())
	assert.Contains(t, buf.String(), `"reason":"coinbase count"`)
	assert.Contains(t, buf.String(), `"component":"transactions"`)
}

func TestIsValidRecoversPanics(t *testing.T) {
	var buf bytes.Buffer
	f := &txFactory{}
	// Without network parameters the set-wide phase dereferences nil.
	txs := From(nil, newFakeVerifier(), []*zerocash.Transaction{f.tx(-10)}, WithLogger(zerolog.New(&buf)))

	assert.NotPanics(t, func() { assert.False(t, txs.IsValid()) })
	assert.Contains(t, buf.String(), "transaction set validation panicked")
}

func TestNilMemberIsInvalid(t *testing.T) {
	txs := From(testParams(), newFakeVerifier(), []*zerocash.Transaction{nil})
	verr := requireReason(t, txs.Validate(), ReasonInvalidTransaction)
	assert.Equal(t, 0, verr.Index)
}

func TestReasonString(t *testing.T) {
	assert.Equal(t, "duplicate commitment", ReasonDuplicateCommitment.String())
	assert.Equal(t, "reason(42)", Reason(42).String())
}
