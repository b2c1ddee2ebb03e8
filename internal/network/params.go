// params.go - Network parameter profiles.
//
// A Params value is the explicit configuration object handed to every component that depends on
// network-specific choices: the transactions tree hash and root width, the coinbase policy and the
// transaction shape. Nothing reads these from global state.

package network

import (
	"hash"
	"strings"

	"github.com/cockroachdb/errors"
	mimcNative "github.com/consensys/gnark-crypto/ecc/bw6-761/fr/mimc"
	"golang.org/x/crypto/blake2s"

	"zkledger/internal/amount"
)

var (
	// ErrUnknownNetwork is returned when no profile matches a name or id.
	ErrUnknownNetwork = errors.New("unknown network")
	// ErrInvalidParams is returned by Validate.
	ErrInvalidParams = errors.New("invalid network parameters")
)

// Params holds the per-network constants.
type Params struct {
	ID   uint16
	Name string

	// CoinbaseTxCount is the exact number of value-creating transactions a block must carry.
	CoinbaseTxCount int

	// NumInputs and NumOutputs fix the number of serial numbers and commitments per transaction.
	NumInputs  int
	NumOutputs int

	// TransactionsTreeHash builds the hash used for every node of the transactions Merkle tree.
	TransactionsTreeHash func() hash.Hash
	// TransactionsRootSize is the width of the transactions root in bytes.
	TransactionsRootSize int

	// MaxTransactions bounds the member count accepted when decoding a block payload.
	MaxTransactions uint64

	// BlockReward is minted by the coinbase transaction.
	BlockReward amount.Amount
}

// Testnet1 uses BLAKE2s-256 for the transactions tree (32-byte roots).
func Testnet1() *Params {
	return &Params{
		ID:                   1,
		Name:                 "testnet1",
		CoinbaseTxCount:      1,
		NumInputs:            2,
		NumOutputs:           2,
		TransactionsTreeHash: newBlake2s,
		TransactionsRootSize: blake2s.Size,
		MaxTransactions:      1 << 16,
		BlockReward:          150 * amount.OneCredit,
	}
}

// Testnet2 uses MiMC over the BW6-761 scalar field for the transactions tree (48-byte roots),
// so roots can be opened inside circuits over the same field as the transaction proofs.
func Testnet2() *Params {
	return &Params{
		ID:                   2,
		Name:                 "testnet2",
		CoinbaseTxCount:      1,
		NumInputs:            2,
		NumOutputs:           2,
		TransactionsTreeHash: newMiMC,
		TransactionsRootSize: mimcNative.BlockSize,
		MaxTransactions:      1 << 16,
		BlockReward:          100 * amount.OneCredit,
	}
}

// ByName resolves a profile by its name (case-insensitive).
func ByName(name string) (*Params, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "testnet1":
		return Testnet1(), nil
	case "testnet2":
		return Testnet2(), nil
	default:
		return nil, errors.Wrapf(ErrUnknownNetwork, "name %q", name)
	}
}

// ByID resolves a profile by its numeric id.
func ByID(id uint16) (*Params, error) {
	switch id {
	case 1:
		return Testnet1(), nil
	case 2:
		return Testnet2(), nil
	default:
		return nil, errors.Wrapf(ErrUnknownNetwork, "id %d", id)
	}
}

// Validate checks that the profile can be used.
func (p *Params) Validate() error {
	switch {
	case p.Name == "":
		return errors.Wrap(ErrInvalidParams, "name must be set")
	case p.CoinbaseTxCount < 0:
		return errors.Wrapf(ErrInvalidParams, "coinbase count %d is negative", p.CoinbaseTxCount)
	case p.NumInputs <= 0 || p.NumOutputs <= 0:
		return errors.Wrapf(ErrInvalidParams, "transaction shape %d->%d", p.NumInputs, p.NumOutputs)
	case p.TransactionsTreeHash == nil:
		return errors.Wrap(ErrInvalidParams, "transactions tree hash must be set")
	case p.MaxTransactions == 0:
		return errors.Wrap(ErrInvalidParams, "max transactions must be positive")
	case p.BlockReward < 0:
		return errors.Wrap(ErrInvalidParams, "block reward must not be negative")
	}
	if size := p.TransactionsTreeHash().Size(); size != p.TransactionsRootSize {
		return errors.Wrapf(ErrInvalidParams, "tree hash emits %d bytes, root size is %d", size, p.TransactionsRootSize)
	}
	return nil
}

func (p *Params) String() string {
	return p.Name
}

func newBlake2s() hash.Hash {
	h, err := blake2s.New256(nil)
	if err != nil {
		// only fails for keys longer than 32 bytes
		panic(err)
	}
	return h
}

func newMiMC() hash.Hash {
	return mimcNative.NewMiMC()
}
