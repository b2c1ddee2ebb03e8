// prover.go - Witness assignment and Groth16 proof generation for transactions.
//
// Steps:
//  1. Pad the spends with zero-value dummy notes up to NumInputs
//  2. Compute a serial number for every spent note
//  3. Derive rho for each output from the serial numbers and commit the output notes
//  4. Compute the value balance sum(inputs) - sum(outputs)
//  5. Build the witness and generate the Groth16 proof

package zerocash

import (
	"bytes"
	"io"
	"math/big"

	"github.com/cockroachdb/errors"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/frontend"

	"zkledger/internal/amount"
)

// Spend is one input of a transaction: a note and the key that owns it.
type Spend struct {
	Note *Note
	Key  PrivateKey
}

// Output describes a note to create.
type Output struct {
	Owner Address
	Value amount.Amount
}

// Assignment is the full private and public assignment of one transaction proof.
type Assignment struct {
	Network       uint16
	Spends        [NumInputs]Spend
	SerialNumbers [NumInputs]SerialNumber
	Outputs       [NumOutputs]*Note
	ValueBalance  amount.Amount
}

// NewAssignment prepares a transaction spending spends and creating outputs. Missing inputs are
// filled with dummy zero-value notes and missing outputs with zero-value notes to fresh addresses.
func NewAssignment(network uint16, spends []Spend, outputs []Output, rng io.Reader) (*Assignment, error) {
	if len(spends) > NumInputs {
		return nil, errors.Wrapf(ErrInvalidNote, "%d spends, at most %d", len(spends), NumInputs)
	}
	if len(outputs) > NumOutputs {
		return nil, errors.Wrapf(ErrInvalidNote, "%d outputs, at most %d", len(outputs), NumOutputs)
	}

	a := &Assignment{Network: network}
	inTotal := amount.Amount(0)
	for i := 0; i < NumInputs; i++ {
		var s Spend
		if i < len(spends) {
			s = spends[i]
			if s.Note == nil {
				return nil, errors.Wrapf(ErrInvalidNote, "spend %d has no note", i)
			}
			if err := s.Note.Verify(); err != nil {
				return nil, errors.Wrapf(err, "spend %d", i)
			}
			if s.Note.Owner != s.Key.Address() {
				return nil, errors.Wrapf(ErrInvalidNote, "spend %d is not owned by its key", i)
			}
		} else {
			dummy, err := newDummySpend(rng)
			if err != nil {
				return nil, err
			}
			s = dummy
		}
		a.Spends[i] = s
		a.SerialNumbers[i] = s.Note.SerialNumber(s.Key)

		var err error
		if inTotal, err = inTotal.Add(s.Note.Value); err != nil {
			return nil, errors.Wrap(err, "input total")
		}
	}

	outTotal := amount.Amount(0)
	for j := 0; j < NumOutputs; j++ {
		out := Output{}
		if j < len(outputs) {
			out = outputs[j]
		} else {
			sk, err := NewPrivateKey(rng)
			if err != nil {
				return nil, err
			}
			out.Owner = sk.Address()
		}
		if out.Value < 0 {
			return nil, errors.Wrapf(ErrInvalidNote, "output %d has negative value", j)
		}
		note, err := newNoteWithRho(out.Value, out.Owner, DeriveOutputRho(a.SerialNumbers[:], j), rng)
		if err != nil {
			return nil, err
		}
		a.Outputs[j] = note
		if outTotal, err = outTotal.Add(out.Value); err != nil {
			return nil, errors.Wrap(err, "output total")
		}
	}

	vb, err := inTotal.Sub(outTotal)
	if err != nil {
		return nil, errors.Wrap(err, "value balance")
	}
	a.ValueBalance = vb
	return a, nil
}

func newDummySpend(rng io.Reader) (Spend, error) {
	sk, err := NewPrivateKey(rng)
	if err != nil {
		return Spend{}, err
	}
	note, err := NewNote(0, sk.Address(), rng)
	if err != nil {
		return Spend{}, err
	}
	return Spend{Note: note, Key: sk}, nil
}

// Commitments returns the output commitments in order.
func (a *Assignment) Commitments() []Commitment {
	cms := make([]Commitment, NumOutputs)
	for j, n := range a.Outputs {
		cms[j] = n.Cm
	}
	return cms
}

// Witness builds the full circuit assignment.
func (a *Assignment) Witness() *CircuitTx {
	w := &CircuitTx{ValueBalance: big.NewInt(a.ValueBalance.Int64())}
	for i, s := range a.Spends {
		w.SerialNumbers[i] = fieldInt(a.SerialNumbers[i][:])
		w.InSk[i] = fieldInt(s.Key[:])
		w.InRho[i] = fieldInt(s.Note.Rho[:])
		w.InRand[i] = fieldInt(s.Note.Rand[:])
		w.InValue[i] = big.NewInt(s.Note.Value.Int64())
	}
	for j, n := range a.Outputs {
		w.Commitments[j] = fieldInt(n.Cm[:])
		w.OutOwner[j] = fieldInt(n.Owner[:])
		w.OutRho[j] = fieldInt(n.Rho[:])
		w.OutRand[j] = fieldInt(n.Rand[:])
		w.OutValue[j] = big.NewInt(n.Value.Int64())
	}
	return w
}

// Prover generates transaction proofs.
type Prover struct {
	keys *Keys
}

// NewProver returns a prover using the compiled circuit and proving key in keys.
func NewProver(keys *Keys) *Prover {
	return &Prover{keys: keys}
}

// Prove generates the Groth16 proof for a and returns the resulting transaction.
func (p *Prover) Prove(a *Assignment) (*Transaction, error) {
	w, err := frontend.NewWitness(a.Witness(), Curve.ScalarField())
	if err != nil {
		return nil, errors.Wrap(err, "witness creation failed")
	}
	proof, err := groth16.Prove(p.keys.CCS, p.keys.PK, w)
	if err != nil {
		return nil, errors.Wrap(err, "proof generation failed")
	}
	var proofBuf bytes.Buffer
	if _, err := proof.WriteTo(&proofBuf); err != nil {
		return nil, errors.Wrap(err, "proof marshaling failed")
	}
	return &Transaction{
		Network:       a.Network,
		SerialNumbers: append([]SerialNumber(nil), a.SerialNumbers[:]...),
		Commitments:   a.Commitments(),
		ValueBalance:  a.ValueBalance,
		Proof:         proofBuf.Bytes(),
	}, nil
}

func fieldInt(b []byte) *big.Int {
	return new(big.Int).SetBytes(b)
}
