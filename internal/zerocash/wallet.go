// wallet.go - Note bookkeeping for a single owner.
//
// A Wallet stores the owner's private key and the notes it has received, and tracks which of them
// have been spent. It is persisted as a JSON file (e.g. miner_wallet.json).
//
// NOTE: Wallet is not thread-safe by itself; use a sync.Mutex for concurrent access.

package zerocash

import (
	"encoding/json"
	"os"

	"github.com/cockroachdb/errors"

	"zkledger/internal/amount"
)

// Wallet stores a private key and the notes recognized as belonging to it.
type Wallet struct {
	Name  string
	Key   PrivateKey
	Notes []*Note
	Spent []bool
}

// NewWallet creates an empty wallet for key.
func NewWallet(name string, key PrivateKey) *Wallet {
	return &Wallet{Name: name, Key: key}
}

// Address returns the wallet's receiving address.
func (w *Wallet) Address() Address {
	return w.Key.Address()
}

// AddNote records a note owned by this wallet. Notes for other owners are rejected.
func (w *Wallet) AddNote(note *Note) error {
	if note.Owner != w.Address() {
		return errors.Wrap(ErrInvalidNote, "note is not owned by this wallet")
	}
	if err := note.Verify(); err != nil {
		return err
	}
	for _, n := range w.Notes {
		if n.Cm == note.Cm {
			return nil
		}
	}
	w.Notes = append(w.Notes, note)
	w.Spent = append(w.Spent, false)
	return nil
}

// ClaimOutputs adds every output of a that is addressed to this wallet and returns how many
// were claimed.
func (w *Wallet) ClaimOutputs(a *Assignment) int {
	claimed := 0
	for _, n := range a.Outputs {
		if n.Owner == w.Address() && n.Value > 0 {
			if err := w.AddNote(n); err == nil {
				claimed++
			}
		}
	}
	return claimed
}

// UnspentNotes returns all notes that haven't been spent yet.
func (w *Wallet) UnspentNotes() []*Note {
	var unspent []*Note
	for i, spent := range w.Spent {
		if !spent {
			unspent = append(unspent, w.Notes[i])
		}
	}
	return unspent
}

// Balance sums the unspent notes.
func (w *Wallet) Balance() (amount.Amount, error) {
	var values []amount.Amount
	for _, n := range w.UnspentNotes() {
		values = append(values, n.Value)
	}
	return amount.Sum(values...)
}

// RefreshSpent marks every note whose serial number is reported as spent.
func (w *Wallet) RefreshSpent(isSpent func(SerialNumber) (bool, error)) error {
	for i, note := range w.Notes {
		if w.Spent[i] {
			continue
		}
		spent, err := isSpent(note.SerialNumber(w.Key))
		if err != nil {
			return err
		}
		w.Spent[i] = spent
	}
	return nil
}

// Save saves the wallet to a JSON file.
func (w *Wallet) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create wallet %s", path)
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return errors.Wrap(enc.Encode(w), "encode wallet")
}

// LoadWallet loads a wallet from a JSON file.
func LoadWallet(path string) (*Wallet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var w Wallet
	if err := json.NewDecoder(f).Decode(&w); err != nil {
		return nil, errors.Wrapf(err, "decode wallet %s", path)
	}
	if len(w.Spent) != len(w.Notes) {
		return nil, errors.Newf("wallet %s: %d notes but %d spent flags", path, len(w.Notes), len(w.Spent))
	}
	return &w, nil
}
