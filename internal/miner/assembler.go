// Package miner assembles blocks. The Assembler is the exclusive owner of the pending transaction
// set: all access goes through its mutex, so the set itself never sees concurrent mutation.
package miner

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	"zkledger/internal/amount"
	"zkledger/internal/block"
	"zkledger/internal/ledger"
	"zkledger/internal/network"
	"zkledger/internal/zerocash"
)

var (
	// ErrConflict is returned when a submission spends or creates a note already seen.
	ErrConflict = errors.New("transaction conflicts with ledger or pending block")
	// ErrCoinbaseFull is returned when the pending block already has its coinbase transactions.
	ErrCoinbaseFull = errors.New("pending block already has its coinbase")
	// ErrBlockFull is returned when the pending block already holds MaxTransactions members.
	ErrBlockFull = errors.New("pending block is full")
	// ErrExcessiveReward is returned for a coinbase minting more than the block reward.
	ErrExcessiveReward = errors.New("coinbase exceeds block reward")
	// ErrNoTransactions is returned when there is nothing to assemble.
	ErrNoTransactions = errors.New("no pending transactions")
)

// Template describes the block the pending set would produce.
type Template struct {
	Valid            bool          `json:"valid"`
	Reason           string        `json:"reason,omitempty"`
	Root             string        `json:"root"`
	TxCount          int           `json:"tx_count"`
	CoinbaseCount    int           `json:"coinbase_count"`
	Fees             amount.Amount `json:"fees"`
	NetValueBalance  amount.Amount `json:"net_value_balance"`
	Transactions     []string      `json:"transactions"`
	TransactionsSize int           `json:"transactions_size"`

	// Failure is the structured validation result when Valid is false.
	Failure *block.ValidationError `json:"-"`
}

// Assembler collects transactions for the next block and seals them into the ledger.
type Assembler struct {
	mu       sync.Mutex
	params   *network.Params
	verifier block.Verifier
	ledger   *ledger.Ledger
	log      zerolog.Logger
	opts     []block.Option

	pending *block.Transactions
	sns     map[zerocash.SerialNumber]struct{}
	cms     map[zerocash.Commitment]struct{}
}

// NewAssembler returns an assembler appending to l. opts apply to every pending set.
func NewAssembler(params *network.Params, verifier block.Verifier, l *ledger.Ledger, logger zerolog.Logger, opts ...block.Option) *Assembler {
	a := &Assembler{
		params:   params,
		verifier: verifier,
		ledger:   l,
		log:      logger.With().Str("component", "miner").Logger(),
	}
	a.opts = append([]block.Option{block.WithLogger(logger)}, opts...)
	a.reset()
	return a
}

func (a *Assembler) reset() {
	a.pending = block.New(a.params, a.verifier, a.opts...)
	a.sns = make(map[zerocash.SerialNumber]struct{})
	a.cms = make(map[zerocash.Commitment]struct{})
}

// Submit verifies tx and adds it to the pending block.
func (a *Assembler) Submit(tx *zerocash.Transaction) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if tx == nil {
		return errors.Wrap(block.ErrInvalidTransaction, "nil transaction")
	}
	if uint64(a.pending.Len()) >= a.params.MaxTransactions {
		return errors.Wrapf(ErrBlockFull, "limit %d", a.params.MaxTransactions)
	}
	if tx.ValueBalance < -a.params.BlockReward {
		return errors.Wrapf(ErrExcessiveReward, "value balance %s, reward is %s", tx.ValueBalance, a.params.BlockReward)
	}
	if tx.IsCoinbase() && a.pending.CoinbaseTransactionCount() >= a.params.CoinbaseTxCount {
		return errors.Wrapf(ErrCoinbaseFull, "limit %d", a.params.CoinbaseTxCount)
	}
	if err := a.ledger.Conflicts(tx); err != nil {
		return errors.Mark(err, ErrConflict)
	}
	for _, sn := range tx.SerialNumbers {
		if _, ok := a.sns[sn]; ok {
			return errors.Wrapf(ErrConflict, "serial number %s is spent by a pending transaction", sn)
		}
	}
	for _, cm := range tx.Commitments {
		if _, ok := a.cms[cm]; ok {
			return errors.Wrapf(ErrConflict, "commitment %s is created by a pending transaction", cm)
		}
	}
	if err := a.pending.Push(tx); err != nil {
		return err
	}
	for _, sn := range tx.SerialNumbers {
		a.sns[sn] = struct{}{}
	}
	for _, cm := range tx.Commitments {
		a.cms[cm] = struct{}{}
	}
	a.log.Info().Stringer("tx", tx.ID()).Int("pending", a.pending.Len()).Msg("accepted transaction")
	return nil
}

// Pending returns the number of pending transactions.
func (a *Assembler) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pending.Len()
}

// Template reports what sealing now would produce.
func (a *Assembler) Template() (*Template, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.pending.Len() == 0 {
		return nil, ErrNoTransactions
	}
	tmpl := &Template{
		Valid:         true,
		Root:          a.pending.TransactionsRoot().String(),
		TxCount:       a.pending.Len(),
		CoinbaseCount: a.pending.CoinbaseTransactionCount(),
		Transactions:  a.pending.SerializeAsStr(),
	}
	if err := a.pending.Validate(); err != nil {
		tmpl.Valid = false
		tmpl.Reason = err.Error()
		_ = errors.As(err, &tmpl.Failure)
	}

	fees, err := a.pending.TransactionFees()
	if err != nil && !errors.Is(err, block.ErrEmptyFeeSet) {
		return nil, err
	}
	tmpl.Fees = fees
	if tmpl.NetValueBalance, err = a.pending.NetValueBalance(); err != nil {
		return nil, err
	}
	raw, err := a.pending.Bytes()
	if err != nil {
		return nil, err
	}
	tmpl.TransactionsSize = len(raw)
	return tmpl, nil
}

// Seal applies the pending block to the ledger and starts a new one. On failure the pending
// block is kept.
func (a *Assembler) Seal() (*ledger.BlockRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.pending.Len() == 0 {
		return nil, ErrNoTransactions
	}
	rec, err := a.ledger.ApplyBlock(a.pending)
	if err != nil {
		return nil, err
	}
	a.reset()
	return rec, nil
}
