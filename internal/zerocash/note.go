// note.go - Note type and logic.
//
// A Note is a confidential coin owned by an address. Notes are committed, and spending one
// reveals a serial number that cannot be linked to its commitment without the owner's key.

package zerocash

import (
	"io"

	"github.com/cockroachdb/errors"

	"zkledger/internal/amount"
)

// ErrInvalidNote is returned for notes that cannot be committed or spent.
var ErrInvalidNote = errors.New("invalid note")

// Note represents a confidential transaction note.
type Note struct {
	Value amount.Amount // Non-negative value in microcredits
	Owner Address       // Address of the owner, MiMC(sk)
	Rho   FieldElement  // Uniqueness seed, derived from the creating transaction's serial numbers
	Rand  FieldElement  // Commitment randomness
	Cm    Commitment    // MiMC(value || owner || rho || rand)
}

// NewNote creates a note for owner with fresh rho and randomness from rng.
// Notes created this way are used for genesis allocations and dummy inputs.
func NewNote(value amount.Amount, owner Address, rng io.Reader) (*Note, error) {
	if value < 0 {
		return nil, errors.Wrapf(ErrInvalidNote, "negative value %d", value)
	}
	rho, err := randomField(rng)
	if err != nil {
		return nil, err
	}
	return newNoteWithRho(value, owner, rho, rng)
}

func newNoteWithRho(value amount.Amount, owner Address, rho FieldElement, rng io.Reader) (*Note, error) {
	r, err := randomField(rng)
	if err != nil {
		return nil, err
	}
	return &Note{
		Value: value,
		Owner: owner,
		Rho:   rho,
		Rand:  r,
		Cm:    NoteCommitment(value, owner, rho, r),
	}, nil
}

// Verify recomputes the commitment.
func (n *Note) Verify() error {
	if n.Value < 0 {
		return errors.Wrapf(ErrInvalidNote, "negative value %d", n.Value)
	}
	if NoteCommitment(n.Value, n.Owner, n.Rho, n.Rand) != n.Cm {
		return errors.Wrap(ErrInvalidNote, "commitment mismatch")
	}
	return nil
}

// SerialNumber returns the serial number revealed when sk spends n.
func (n *Note) SerialNumber(sk PrivateKey) SerialNumber {
	return DeriveSerialNumber(sk, n.Cm)
}
