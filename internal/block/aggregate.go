package block

import (
	"bytes"
	"encoding/hex"

	"github.com/cockroachdb/errors"
	"github.com/consensys/gnark-crypto/accumulator/merkletree"

	"zkledger/internal/amount"
	"zkledger/internal/network"
	"zkledger/internal/zerocash"
)

// Digest is a transactions root. Its width is fixed by the network profile.
type Digest []byte

func (d Digest) String() string { return hex.EncodeToString(d) }

// ParseDigest decodes the hex form of a root and checks its width against params.
func ParseDigest(params *network.Params, s string) (Digest, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, errors.Wrapf(ErrDecode, "root: %v", err)
	}
	if len(b) != params.TransactionsRootSize {
		return nil, errors.Wrapf(ErrDecode, "root is %d bytes, network %s expects %d", len(b), params.Name, params.TransactionsRootSize)
	}
	return Digest(b), nil
}

// TransactionsRoot returns the Merkle root over the member ids in order.
// It panics on an empty set.
func (t *Transactions) TransactionsRoot() Digest {
	t.mustNotBeEmpty("TransactionsRoot")

	tree := merkletree.New(t.params.TransactionsTreeHash())
	for _, tx := range t.txs {
		id := tx.ID()
		tree.Push(id[:])
	}
	root := tree.Root()
	if len(root) != t.params.TransactionsRootSize {
		panic(errors.AssertionFailedf("transactions root is %d bytes, network %s expects %d",
			len(root), errors.Safe(t.params.Name), t.params.TransactionsRootSize))
	}
	return Digest(root)
}

// InclusionProof shows that the transaction with ID sits at Index in a set of Leaves members.
type InclusionProof struct {
	ID     zerocash.TxID
	Index  uint64
	Leaves uint64
	// Path starts with the leaf data followed by the sibling hashes from leaf to root.
	Path [][]byte
}

// TransactionProof builds the inclusion proof of member i against TransactionsRoot.
func (t *Transactions) TransactionProof(i int) (*InclusionProof, error) {
	if i < 0 || i >= len(t.txs) {
		return nil, errors.Wrapf(ErrIndexOutOfRange, "index %d, len %d", i, len(t.txs))
	}
	tree := merkletree.New(t.params.TransactionsTreeHash())
	if err := tree.SetIndex(uint64(i)); err != nil {
		return nil, errors.Wrap(err, "set proof index")
	}
	for _, tx := range t.txs {
		id := tx.ID()
		tree.Push(id[:])
	}
	_, path, index, leaves := tree.Prove()
	return &InclusionProof{
		ID:     t.txs[i].ID(),
		Index:  index,
		Leaves: leaves,
		Path:   path,
	}, nil
}

// VerifyInclusion checks proof against root using the tree hash of params.
func VerifyInclusion(params *network.Params, root Digest, proof *InclusionProof) bool {
	if proof == nil || len(proof.Path) == 0 || !bytes.Equal(proof.Path[0], proof.ID[:]) {
		return false
	}
	return merkletree.VerifyProof(params.TransactionsTreeHash(), root, proof.Path, proof.Index, proof.Leaves)
}

// Commitments returns every member's commitments, flattened in member order. Duplicates are kept.
// It panics on an empty set.
func (t *Transactions) Commitments() []zerocash.Commitment {
	t.mustNotBeEmpty("Commitments")
	out := make([]zerocash.Commitment, 0, len(t.txs)*t.params.NumOutputs)
	for _, tx := range t.txs {
		out = append(out, tx.Commitments...)
	}
	return out
}

// SerialNumbers returns every member's serial numbers, flattened in member order. Duplicates are
// kept. It panics on an empty set.
func (t *Transactions) SerialNumbers() []zerocash.SerialNumber {
	t.mustNotBeEmpty("SerialNumbers")
	out := make([]zerocash.SerialNumber, 0, len(t.txs)*t.params.NumInputs)
	for _, tx := range t.txs {
		out = append(out, tx.SerialNumbers...)
	}
	return out
}

// CoinbaseTransactionCount counts members with a negative value balance.
// It panics on a nil member.
func (t *Transactions) CoinbaseTransactionCount() int {
	t.mustNotHoldNil("CoinbaseTransactionCount")
	n := 0
	for _, tx := range t.txs {
		if tx.IsCoinbase() {
			n++
		}
	}
	return n
}

// TransactionFees sums the value balances of the fee-paying members. A set without fee payers
// returns ErrEmptyFeeSet. It panics on an empty set.
func (t *Transactions) TransactionFees() (amount.Amount, error) {
	t.mustNotBeEmpty("TransactionFees")
	var (
		fees  amount.Amount
		payer bool
		err   error
	)
	for i, tx := range t.txs {
		if tx.IsCoinbase() {
			continue
		}
		payer = true
		if fees, err = fees.Add(tx.ValueBalance); err != nil {
			return 0, errors.Wrapf(err, "fees at transaction %d", i)
		}
	}
	if !payer {
		return 0, ErrEmptyFeeSet
	}
	return fees, nil
}

// NetValueBalance sums the value balances of all members, coinbase included.
// It panics on an empty set.
func (t *Transactions) NetValueBalance() (amount.Amount, error) {
	t.mustNotBeEmpty("NetValueBalance")
	var (
		net amount.Amount
		err error
	)
	for i, tx := range t.txs {
		if net, err = net.Add(tx.ValueBalance); err != nil {
			return 0, errors.Wrapf(err, "net value balance at transaction %d", i)
		}
	}
	return net, nil
}
