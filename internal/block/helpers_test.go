package block

import (
	"sync"

	"github.com/cockroachdb/errors"

	"zkledger/internal/amount"
	"zkledger/internal/network"
	"zkledger/internal/zerocash"
)

var errFakeInvalid = errors.New("fake proof rejected")

// fakeVerifier accepts every transaction except those marked invalid.
type fakeVerifier struct {
	mu      sync.Mutex
	invalid map[zerocash.TxID]bool
	calls   int
}

func newFakeVerifier() *fakeVerifier {
	return &fakeVerifier{invalid: make(map[zerocash.TxID]bool)}
}

func (f *fakeVerifier) reject(tx *zerocash.Transaction) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalid[tx.ID()] = true
}

func (f *fakeVerifier) VerifyTransaction(tx *zerocash.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.invalid[tx.ID()] {
		return errFakeInvalid
	}
	return nil
}

// panicVerifier panics on every call.
type panicVerifier struct{}

func (panicVerifier) VerifyTransaction(*zerocash.Transaction) error {
	panic("boom")
}

// txFactory builds transactions with unique tags.
type txFactory struct {
	next uint32
}

func (f *txFactory) tag() [zerocash.FieldBytes]byte {
	f.next++
	var b [zerocash.FieldBytes]byte
	b[zerocash.FieldBytes-4] = byte(f.next >> 24)
	b[zerocash.FieldBytes-3] = byte(f.next >> 16)
	b[zerocash.FieldBytes-2] = byte(f.next >> 8)
	b[zerocash.FieldBytes-1] = byte(f.next)
	return b
}

func (f *txFactory) tx(balance amount.Amount) *zerocash.Transaction {
	return &zerocash.Transaction{
		Network:       2,
		SerialNumbers: []zerocash.SerialNumber{f.tag(), f.tag()},
		Commitments:   []zerocash.Commitment{f.tag(), f.tag()},
		ValueBalance:  balance,
		Proof:         []byte{0x01},
	}
}

func testParams() *network.Params {
	return network.Testnet2()
}

// validSet returns a set holding one coinbase and the given fee-paying balances.
func validSet(f *txFactory, v Verifier, fees ...amount.Amount) *Transactions {
	txs := []*zerocash.Transaction{f.tx(-10)}
	for _, fee := range fees {
		txs = append(txs, f.tx(fee))
	}
	return From(testParams(), v, txs)
}

// assertionFailure runs fn and returns the recovered assertion failure, or nil.
func assertionFailure(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok && errors.IsAssertionFailure(e) {
				err = e
			}
		}
	}()
	fn()
	return nil
}
