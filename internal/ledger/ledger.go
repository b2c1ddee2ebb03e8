// ledger.go - Persistent, append-only spent state.
//
// The Ledger records every serial number and commitment accepted so far, plus one record per
// applied block (root, fees, net value balance). It is backed by a bbolt file; every block is
// applied in a single write transaction, so a rejected block leaves no trace.
//
// NOTE: bbolt serializes writers. Readers may run concurrently with ApplyBlock.

package ledger

import (
	"encoding/binary"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	bolt "go.etcd.io/bbolt"

	"zkledger/internal/amount"
	"zkledger/internal/block"
	"zkledger/internal/network"
	"zkledger/internal/zerocash"
)

var (
	bucketSerialNumbers = []byte("serial_numbers")
	bucketCommitments   = []byte("commitments")
	bucketBlocks        = []byte("blocks")
	bucketPayloads      = []byte("payloads")
)

var (
	// ErrDoubleSpend is returned when a serial number was already recorded.
	ErrDoubleSpend = errors.New("double-spend detected: serial number already in ledger")
	// ErrDuplicateCommitment is returned when a commitment was already recorded.
	ErrDuplicateCommitment = errors.New("commitment already in ledger")
	// ErrInvalidBlock is returned when the transaction set fails validation.
	ErrInvalidBlock = errors.New("invalid block")
	// ErrNotFound is returned for unknown block heights.
	ErrNotFound = errors.New("not found")
)

// BlockRecord summarizes an applied block.
type BlockRecord struct {
	Height          uint64        `json:"height"`
	Root            string        `json:"root"`
	TxCount         int           `json:"tx_count"`
	Fees            amount.Amount `json:"fees"`
	NetValueBalance amount.Amount `json:"net_value_balance"`
	Time            time.Time     `json:"time"`
}

// Ledger is the spent-state store of one network.
type Ledger struct {
	db     *bolt.DB
	params *network.Params
	log    zerolog.Logger
	now    func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithLogger sets the ledger logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(l *Ledger) {
		l.log = logger.With().Str("component", "ledger").Logger()
	}
}

// WithClock overrides the clock used to stamp block records.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// Open opens or creates the ledger database at path.
func Open(path string, params *network.Params, opts ...Option) (*Ledger, error) {
	if path == "" {
		return nil, errors.New("ledger path required")
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "open bbolt %s", path)
	}
	l := &Ledger{db: db, params: params, log: zerolog.Nop(), now: time.Now}
	for _, opt := range opts {
		opt(l)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketSerialNumbers, bucketCommitments, bucketBlocks, bucketPayloads} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return errors.Wrapf(err, "create bucket %s", b)
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

// Close closes the database.
func (l *Ledger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

// HasSerialNumber reports whether sn was spent by an applied block.
func (l *Ledger) HasSerialNumber(sn zerocash.SerialNumber) (bool, error) {
	return l.has(bucketSerialNumbers, sn[:])
}

// HasCommitment reports whether cm was created by an applied block.
func (l *Ledger) HasCommitment(cm zerocash.Commitment) (bool, error) {
	return l.has(bucketCommitments, cm[:])
}

func (l *Ledger) has(bucket, key []byte) (bool, error) {
	var found bool
	err := l.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket(bucket).Get(key) != nil
		return nil
	})
	return found, err
}

// Conflicts reports whether tx spends or creates a note the ledger already knows.
func (l *Ledger) Conflicts(t *zerocash.Transaction) error {
	return l.db.View(func(tx *bolt.Tx) error {
		return checkUnseen(tx, t)
	})
}

func checkUnseen(tx *bolt.Tx, t *zerocash.Transaction) error {
	sns := tx.Bucket(bucketSerialNumbers)
	for _, sn := range t.SerialNumbers {
		if sns.Get(sn[:]) != nil {
			return errors.Wrapf(ErrDoubleSpend, "serial number %s", sn)
		}
	}
	cms := tx.Bucket(bucketCommitments)
	for _, cm := range t.Commitments {
		if cms.Get(cm[:]) != nil {
			return errors.Wrapf(ErrDuplicateCommitment, "commitment %s", cm)
		}
	}
	return nil
}

// Height returns the number of applied blocks.
func (l *Ledger) Height() (uint64, error) {
	var h uint64
	err := l.db.View(func(tx *bolt.Tx) error {
		h = tx.Bucket(bucketBlocks).Sequence()
		return nil
	})
	return h, err
}

// Block returns the record of the block at height (1-based).
func (l *Ledger) Block(height uint64) (*BlockRecord, error) {
	var rec BlockRecord
	err := l.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketBlocks).Get(heightKey(height))
		if raw == nil {
			return errors.Wrapf(ErrNotFound, "block %d", height)
		}
		return errors.Wrapf(json.Unmarshal(raw, &rec), "decode block %d", height)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Payload returns the encoded transaction set of the block at height.
func (l *Ledger) Payload(height uint64) ([]byte, error) {
	var out []byte
	err := l.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketPayloads).Get(heightKey(height))
		if raw == nil {
			return errors.Wrapf(ErrNotFound, "payload %d", height)
		}
		out = append([]byte(nil), raw...)
		return nil
	})
	return out, err
}

// ApplyBlock validates txs and records its serial numbers, commitments and summary.
//
// Steps:
//  1. Check the network and validate the transaction set on its own
//  2. Compute the root, fees and net value balance
//  3. In one write transaction, reject serial numbers or commitments already recorded,
//     then record them along with the block summary and payload
func (l *Ledger) ApplyBlock(txs *block.Transactions) (*BlockRecord, error) {
	if txs.Params().ID != l.params.ID {
		return nil, errors.Wrapf(ErrInvalidBlock, "block for network %s, ledger is %s", txs.Params().Name, l.params.Name)
	}
	if uint64(txs.Len()) > l.params.MaxTransactions {
		return nil, errors.Wrapf(ErrInvalidBlock, "%d transactions, network %s allows %d", txs.Len(), l.params.Name, l.params.MaxTransactions)
	}
	if err := txs.Validate(); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "invalid block"), ErrInvalidBlock)
	}

	root := txs.TransactionsRoot()
	fees, err := txs.TransactionFees()
	if errors.Is(err, block.ErrEmptyFeeSet) {
		fees, err = 0, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "transaction fees")
	}
	net, err := txs.NetValueBalance()
	if err != nil {
		return nil, errors.Wrap(err, "net value balance")
	}
	payload, err := txs.Bytes()
	if err != nil {
		return nil, err
	}

	rec := &BlockRecord{
		Root:            root.String(),
		TxCount:         txs.Len(),
		Fees:            fees,
		NetValueBalance: net,
		Time:            l.now().UTC(),
	}
	err = l.db.Update(func(tx *bolt.Tx) error {
		for _, t := range txs.Transactions() {
			if err := checkUnseen(tx, t); err != nil {
				return errors.Wrapf(err, "transaction %s", t.ID())
			}
		}

		blocks := tx.Bucket(bucketBlocks)
		height, err := blocks.NextSequence()
		if err != nil {
			return err
		}
		rec.Height = height
		key := heightKey(height)

		sns := tx.Bucket(bucketSerialNumbers)
		cms := tx.Bucket(bucketCommitments)
		for _, t := range txs.Transactions() {
			for _, sn := range t.SerialNumbers {
				if err := sns.Put(sn[:], key); err != nil {
					return err
				}
			}
			for _, cm := range t.Commitments {
				if err := cms.Put(cm[:], key); err != nil {
					return err
				}
			}
		}

		raw, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		if err := blocks.Put(key, raw); err != nil {
			return err
		}
		return tx.Bucket(bucketPayloads).Put(key, payload)
	})
	if err != nil {
		return nil, err
	}

	l.log.Info().
		Uint64("height", rec.Height).
		Str("root", rec.Root).
		Int("txs", rec.TxCount).
		Stringer("fees", rec.Fees).
		Stringer("net", rec.NetValueBalance).
		Msg("applied block")
	return rec, nil
}

func heightKey(h uint64) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], h)
	return k[:]
}
