// crypto.go - Cryptographic primitives for notes and transactions.
//
// Implements the MiMC-based address derivation, note commitments, serial numbers and output rho
// derivation. Every function here has an in-circuit twin in circuit.go; both sides hash the same
// sequence of field elements so native values match the public inputs of the proof.

package zerocash

import (
	"encoding/binary"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/consensys/gnark-crypto/ecc/bw6-761/fr"
	mimcNative "github.com/consensys/gnark-crypto/ecc/bw6-761/fr/mimc"
	"golang.org/x/crypto/blake2s"

	"zkledger/internal/amount"
)

// FieldBytes is the width of one BW6-761 scalar field element.
const FieldBytes = fr.Bytes

// PrivateKey is a note owner's secret key.
type PrivateKey [32]byte

// Address is the public counterpart of a PrivateKey: MiMC(sk).
type Address [FieldBytes]byte

// FieldElement is the canonical big-endian encoding of a scalar field element.
type FieldElement [FieldBytes]byte

// NewPrivateKey samples a private key from rng.
func NewPrivateKey(rng io.Reader) (PrivateKey, error) {
	var sk PrivateKey
	if _, err := io.ReadFull(rng, sk[:]); err != nil {
		return PrivateKey{}, errors.Wrap(err, "sample private key")
	}
	return sk, nil
}

// Address derives the owner address of sk.
func (sk PrivateKey) Address() Address {
	return Address(mimcHash(sk[:]))
}

// randomField samples a field element from 32 bytes of rng, which is always below the modulus.
func randomField(rng io.Reader) (FieldElement, error) {
	var e FieldElement
	if _, err := io.ReadFull(rng, e[FieldBytes-32:]); err != nil {
		return FieldElement{}, errors.Wrap(err, "sample randomness")
	}
	return e, nil
}

// NoteCommitment computes cm = MiMC(value || owner || rho || rand).
func NoteCommitment(value amount.Amount, owner Address, rho, rand FieldElement) Commitment {
	return Commitment(mimcHash(valueBytes(value), owner[:], rho[:], rand[:]))
}

// DeriveSerialNumber computes sn = MiMC(sk || cm), the tag revealed when the note is spent.
func DeriveSerialNumber(sk PrivateKey, cm Commitment) SerialNumber {
	return SerialNumber(mimcHash(sk[:], cm[:]))
}

// DeriveOutputRho computes rho_j = MiMC(sn_0 || ... || sn_n || j).
func DeriveOutputRho(serialNumbers []SerialNumber, index int) FieldElement {
	chunks := make([][]byte, 0, len(serialNumbers)+1)
	for i := range serialNumbers {
		chunks = append(chunks, serialNumbers[i][:])
	}
	chunks = append(chunks, []byte{byte(index)})
	return FieldElement(mimcHash(chunks...))
}

// mimcHash hashes each chunk as one field element. Chunks shorter than a field element are
// left-padded by the hasher.
func mimcHash(chunks ...[]byte) [FieldBytes]byte {
	h := mimcNative.NewMiMC()
	for _, c := range chunks {
		if _, err := h.Write(c); err != nil {
			// chunks are at most FieldBytes long and canonical by construction
			panic(errors.AssertionFailedf("mimc write: %v", err))
		}
	}
	var out [FieldBytes]byte
	copy(out[:], h.Sum(nil))
	return out
}

func valueBytes(v amount.Amount) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v.Int64()))
	return b[:]
}

// isCanonical reports whether b encodes a field element below the modulus.
func isCanonical(b *[FieldBytes]byte) bool {
	_, err := fr.BigEndian.Element(b)
	return err == nil
}

// txHash is the transaction id hash.
func txHash(data []byte) TxID {
	return TxID(blake2s.Sum256(data))
}
