package zerocash

import (
	"bytes"
	"math/big"

	"github.com/cockroachdb/errors"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/frontend"

	"zkledger/internal/network"
)

// ErrVerification is returned when a transaction is structurally wrong or its proof is rejected.
var ErrVerification = errors.New("transaction verification failed")

// Verifier checks transactions of one network against the transaction verifying key.
type Verifier struct {
	params *network.Params
	vk     groth16.VerifyingKey
}

// NewVerifier returns a verifier for params. The network's transaction shape must match the
// circuit.
func NewVerifier(params *network.Params, vk groth16.VerifyingKey) (*Verifier, error) {
	if params.NumInputs != NumInputs || params.NumOutputs != NumOutputs {
		return nil, errors.Wrapf(network.ErrInvalidParams,
			"network %s expects %d->%d transactions, circuit proves %d->%d",
			params.Name, params.NumInputs, params.NumOutputs, NumInputs, NumOutputs)
	}
	return &Verifier{params: params, vk: vk}, nil
}

// VerifyTransaction checks the structure of tx and verifies its proof.
//
// Steps:
//  1. Check network id and shape
//  2. Reject non-canonical serial numbers and commitments
//  3. Rebuild the public witness
//  4. Unmarshal and verify the Groth16 proof
func (v *Verifier) VerifyTransaction(tx *Transaction) error {
	if tx == nil {
		return errors.Wrap(ErrVerification, "nil transaction")
	}
	if tx.Network != v.params.ID {
		return errors.Wrapf(ErrVerification, "network %d, expected %d", tx.Network, v.params.ID)
	}
	if len(tx.SerialNumbers) != NumInputs || len(tx.Commitments) != NumOutputs {
		return errors.Wrapf(ErrVerification, "shape %d->%d, expected %d->%d",
			len(tx.SerialNumbers), len(tx.Commitments), NumInputs, NumOutputs)
	}

	// Non-canonical encodings would let one field element appear under two byte strings and
	// slip past duplicate detection.
	witness := &CircuitTx{ValueBalance: big.NewInt(tx.ValueBalance.Int64())}
	for i := range tx.SerialNumbers {
		if !isCanonical((*[FieldBytes]byte)(&tx.SerialNumbers[i])) {
			return errors.Wrapf(ErrVerification, "serial number %d is not canonical", i)
		}
		witness.SerialNumbers[i] = fieldInt(tx.SerialNumbers[i][:])
	}
	for j := range tx.Commitments {
		if !isCanonical((*[FieldBytes]byte)(&tx.Commitments[j])) {
			return errors.Wrapf(ErrVerification, "commitment %d is not canonical", j)
		}
		witness.Commitments[j] = fieldInt(tx.Commitments[j][:])
	}

	w, err := frontend.NewWitness(witness, Curve.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return errors.Wrapf(ErrVerification, "public witness creation failed: %v", err)
	}

	proof := groth16.NewProof(Curve)
	if _, err := proof.ReadFrom(bytes.NewReader(tx.Proof)); err != nil {
		return errors.Wrapf(ErrVerification, "proof unmarshaling failed: %v", err)
	}
	if err := groth16.Verify(proof, v.vk, w); err != nil {
		return errors.Wrapf(ErrVerification, "proof verification failed: %v", err)
	}
	return nil
}
