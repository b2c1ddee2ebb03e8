package miner

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zkledger/internal/amount"
	"zkledger/internal/block"
	"zkledger/internal/ledger"
	"zkledger/internal/network"
	"zkledger/internal/zerocash"
)

type stubVerifier struct {
	reject map[zerocash.TxID]bool
}

func (s stubVerifier) VerifyTransaction(tx *zerocash.Transaction) error {
	if s.reject[tx.ID()] {
		return errors.New("rejected")
	}
	return nil
}

type factory struct{ next byte }

func (f *factory) tag() [zerocash.FieldBytes]byte {
	f.next++
	var b [zerocash.FieldBytes]byte
	b[zerocash.FieldBytes-1] = f.next
	return b
}

func (f *factory) tx(balance amount.Amount) *zerocash.Transaction {
	return &zerocash.Transaction{
		Network:       2,
		SerialNumbers: []zerocash.SerialNumber{f.tag(), f.tag()},
		Commitments:   []zerocash.Commitment{f.tag(), f.tag()},
		ValueBalance:  balance,
		Proof:         []byte{0x01},
	}
}

func newTestAssembler(t *testing.T, v block.Verifier) (*Assembler, *ledger.Ledger) {
	t.Helper()
	return newAssemblerFor(t, network.Testnet2(), v)
}

func newAssemblerFor(t *testing.T, params *network.Params, v block.Verifier) (*Assembler, *ledger.Ledger) {
	t.Helper()
	l, err := ledger.Open(filepath.Join(t.TempDir(), "ledger.db"), params)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return NewAssembler(params, v, l, zerolog.Nop()), l
}

func TestSubmitTemplateSeal(t *testing.T) {
	a, l := newTestAssembler(t, stubVerifier{})
	f := &factory{}

	_, err := a.Template()
	assert.ErrorIs(t, err, ErrNoTransactions)

	coinbase, pay := f.tx(-100), f.tx(4)
	require.NoError(t, a.Submit(coinbase))
	require.NoError(t, a.Submit(pay))
	assert.Equal(t, 2, a.Pending())

	tmpl, err := a.Template()
	require.NoError(t, err)
	assert.True(t, tmpl.Valid)
	assert.Empty(t, tmpl.Reason)
	assert.Equal(t, 2, tmpl.TxCount)
	assert.Equal(t, 1, tmpl.CoinbaseCount)
	assert.Equal(t, amount.Amount(4), tmpl.Fees)
	assert.Equal(t, amount.Amount(-96), tmpl.NetValueBalance)
	assert.Equal(t, []string{coinbase.Hex(), pay.Hex()}, tmpl.Transactions)

	rec, err := a.Seal()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), rec.Height)
	assert.Equal(t, tmpl.Root, rec.Root)
	assert.Equal(t, 0, a.Pending())

	ok, err := l.HasSerialNumber(pay.SerialNumbers[0])
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = a.Seal()
	assert.ErrorIs(t, err, ErrNoTransactions)
}

func TestSubmitRejectsExcessiveReward(t *testing.T) {
	a, l := newTestAssembler(t, stubVerifier{})
	f := &factory{}
	reward := network.Testnet2().BlockReward

	for _, balance := range []amount.Amount{-reward - 1, -1 << 62, math.MinInt64} {
		err := a.Submit(f.tx(balance))
		assert.ErrorIs(t, err, ErrExcessiveReward, "balance %d", balance)
	}
	assert.Equal(t, 0, a.Pending())

	require.NoError(t, a.Submit(f.tx(-reward)))
	require.NoError(t, a.Submit(f.tx(1)))
	rec, err := a.Seal()
	require.NoError(t, err)
	assert.Equal(t, -reward+1, rec.NetValueBalance)
	h, err := l.Height()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), h)
}

func TestSubmitRejectsFullBlock(t *testing.T) {
	params := network.Testnet2()
	params.MaxTransactions = 2
	a, l := newAssemblerFor(t, params, stubVerifier{})
	f := &factory{}

	require.NoError(t, a.Submit(f.tx(-10)))
	require.NoError(t, a.Submit(f.tx(1)))
	assert.ErrorIs(t, a.Submit(f.tx(2)), ErrBlockFull)
	assert.Equal(t, 2, a.Pending())

	_, err := a.Seal()
	require.NoError(t, err)
	payload, err := l.Payload(1)
	require.NoError(t, err)
	decoded, err := block.FromBytes(params, stubVerifier{}, payload)
	require.NoError(t, err)
	assert.Equal(t, 2, decoded.Len())

	// The limit applies per block.
	require.NoError(t, a.Submit(f.tx(-10)))
}

func TestTemplateReportsInvalidSet(t *testing.T) {
	a, _ := newTestAssembler(t, stubVerifier{})
	require.NoError(t, a.Submit((&factory{}).tx(2)))

	tmpl, err := a.Template()
	require.NoError(t, err)
	assert.False(t, tmpl.Valid)
	assert.Contains(t, tmpl.Reason, "coinbase count")
	assert.Equal(t, amount.Amount(2), tmpl.Fees)

	_, err = a.Seal()
	assert.True(t, errors.Is(err, ledger.ErrInvalidBlock))
	assert.Equal(t, 1, a.Pending())
}

func TestSubmitRejectsConflicts(t *testing.T) {
	f := &factory{}
	bad := f.tx(1)
	a, _ := newTestAssembler(t, stubVerifier{reject: map[zerocash.TxID]bool{bad.ID(): true}})

	assert.ErrorIs(t, a.Submit(bad), block.ErrInvalidTransaction)
	assert.ErrorIs(t, a.Submit(nil), block.ErrInvalidTransaction)

	coinbase := f.tx(-10)
	require.NoError(t, a.Submit(coinbase))
	assert.ErrorIs(t, a.Submit(f.tx(-10)), ErrCoinbaseFull)

	dupSN := f.tx(1)
	dupSN.SerialNumbers[0] = coinbase.SerialNumbers[0]
	assert.ErrorIs(t, a.Submit(dupSN), ErrConflict)

	dupCM := f.tx(1)
	dupCM.Commitments[1] = coinbase.Commitments[0]
	assert.ErrorIs(t, a.Submit(dupCM), ErrConflict)

	assert.Equal(t, 1, a.Pending())
}

func TestSubmitRejectsLedgerConflicts(t *testing.T) {
	a, _ := newTestAssembler(t, stubVerifier{})
	f := &factory{}
	pay := f.tx(1)
	require.NoError(t, a.Submit(f.tx(-10)))
	require.NoError(t, a.Submit(pay))
	_, err := a.Seal()
	require.NoError(t, err)

	err = a.Submit(pay)
	assert.True(t, errors.Is(err, ErrConflict))
	assert.ErrorIs(t, err, ledger.ErrDoubleSpend)
}

func TestTemplateFailureIsStructured(t *testing.T) {
	a, _ := newTestAssembler(t, stubVerifier{})
	require.NoError(t, a.Submit((&factory{}).tx(2)))

	tmpl, err := a.Template()
	require.NoError(t, err)
	require.NotNil(t, tmpl.Failure)
	assert.Equal(t, block.ReasonCoinbaseCount, tmpl.Failure.Reason)
	assert.Equal(t, 0, tmpl.Failure.Found)
}
