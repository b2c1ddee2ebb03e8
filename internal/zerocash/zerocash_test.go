package zerocash

import (
	"bytes"
	"math/rand"
	"path/filepath"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zkledger/internal/amount"
	"zkledger/internal/network"
)

var (
	keysOnce sync.Once
	keys     *Keys
	keysErr  error
)

// testKeys runs the Groth16 setup once for all proving tests in the package.
func testKeys(t *testing.T) *Keys {
	t.Helper()
	if testing.Short() {
		t.Skip("groth16 setup skipped in short mode")
	}
	keysOnce.Do(func() {
		keys, keysErr = Setup()
	})
	require.NoError(t, keysErr)
	return keys
}

func testRng(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

func sampleTransaction() *Transaction {
	tx := &Transaction{
		Network:       2,
		SerialNumbers: make([]SerialNumber, NumInputs),
		Commitments:   make([]Commitment, NumOutputs),
		ValueBalance:  -42,
		Proof:         []byte{0xde, 0xad, 0xbe, 0xef},
	}
	for i := range tx.SerialNumbers {
		tx.SerialNumbers[i][FieldBytes-1] = byte(i + 1)
	}
	for j := range tx.Commitments {
		tx.Commitments[j][FieldBytes-1] = byte(0x10 + j)
	}
	return tx
}

func TestTransactionCodecRoundTrip(t *testing.T) {
	tx := sampleTransaction()

	decoded, err := TransactionFromBytes(tx.Bytes())
	require.NoError(t, err)
	assert.True(t, tx.Equal(decoded))
	assert.Equal(t, tx.ID(), decoded.ID())
	assert.True(t, decoded.IsCoinbase())

	fromHex, err := TransactionFromHex(tx.Hex())
	require.NoError(t, err)
	assert.True(t, tx.Equal(fromHex))

	var buf bytes.Buffer
	n, err := tx.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, int64(len(tx.Bytes())), n)
}

func TestTransactionIDDependsOnContent(t *testing.T) {
	a := sampleTransaction()
	b := sampleTransaction()
	assert.Equal(t, a.ID(), b.ID())

	b.ValueBalance = 7
	assert.NotEqual(t, a.ID(), b.ID())
	assert.False(t, a.Equal(b))
}

func TestReadTransactionTruncated(t *testing.T) {
	raw := sampleTransaction().Bytes()
	for _, cut := range []int{0, 1, 2, 3, 40, len(raw) - 5, len(raw) - 1} {
		_, err := TransactionFromBytes(raw[:cut])
		assert.ErrorIs(t, err, ErrMalformedTransaction, "cut at %d", cut)
	}
}

func TestTransactionFromBytesTrailing(t *testing.T) {
	raw := append(sampleTransaction().Bytes(), 0x00)
	_, err := TransactionFromBytes(raw)
	assert.ErrorIs(t, err, ErrMalformedTransaction)
}

func TestReadTransactionRejectsHugeCounts(t *testing.T) {
	// network=2, then a CompactSize of 0xfd 0xff 0xff (65535 serial numbers)
	raw := []byte{0x02, 0x00, 0xfd, 0xff, 0xff}
	_, err := TransactionFromBytes(raw)
	assert.ErrorIs(t, err, ErrMalformedTransaction)
}

func TestTransactionFromHexInvalid(t *testing.T) {
	_, err := TransactionFromHex("zz")
	assert.ErrorIs(t, err, ErrMalformedTransaction)
}

func TestDerivationDeterministic(t *testing.T) {
	rng := testRng(1)
	sk, err := NewPrivateKey(rng)
	require.NoError(t, err)
	other, err := NewPrivateKey(rng)
	require.NoError(t, err)

	assert.Equal(t, sk.Address(), sk.Address())
	assert.NotEqual(t, sk.Address(), other.Address())

	note, err := NewNote(5*amount.OneCredit, sk.Address(), rng)
	require.NoError(t, err)
	require.NoError(t, note.Verify())

	sn := note.SerialNumber(sk)
	assert.Equal(t, sn, DeriveSerialNumber(sk, note.Cm))
	assert.NotEqual(t, sn, note.SerialNumber(other))

	sns := []SerialNumber{sn, note.SerialNumber(other)}
	assert.Equal(t, DeriveOutputRho(sns, 0), DeriveOutputRho(sns, 0))
	assert.NotEqual(t, DeriveOutputRho(sns, 0), DeriveOutputRho(sns, 1))
}

func TestNoteVerify(t *testing.T) {
	rng := testRng(2)
	sk, err := NewPrivateKey(rng)
	require.NoError(t, err)

	_, err = NewNote(-1, sk.Address(), rng)
	assert.ErrorIs(t, err, ErrInvalidNote)

	note, err := NewNote(10, sk.Address(), rng)
	require.NoError(t, err)
	note.Value = 11
	assert.ErrorIs(t, note.Verify(), ErrInvalidNote)
}

func TestIsCanonical(t *testing.T) {
	var b [FieldBytes]byte
	assert.True(t, isCanonical(&b))
	for i := range b {
		b[i] = 0xff
	}
	assert.False(t, isCanonical(&b))
}

func TestNewAssignment(t *testing.T) {
	rng := testRng(3)
	sk, err := NewPrivateKey(rng)
	require.NoError(t, err)
	recipient, err := NewPrivateKey(rng)
	require.NoError(t, err)

	note, err := NewNote(10*amount.OneCredit, sk.Address(), rng)
	require.NoError(t, err)

	a, err := NewAssignment(2, []Spend{{Note: note, Key: sk}}, []Output{
		{Owner: recipient.Address(), Value: 7 * amount.OneCredit},
		{Owner: sk.Address(), Value: 2 * amount.OneCredit},
	}, rng)
	require.NoError(t, err)

	assert.Equal(t, amount.OneCredit, a.ValueBalance)
	assert.Equal(t, note.SerialNumber(sk), a.SerialNumbers[0])
	assert.NotEqual(t, a.SerialNumbers[0], a.SerialNumbers[1])
	for j, out := range a.Outputs {
		require.NoError(t, out.Verify())
		assert.Equal(t, DeriveOutputRho(a.SerialNumbers[:], j), out.Rho)
	}
	assert.Len(t, a.Commitments(), NumOutputs)
}

func TestNewAssignmentRejectsForeignNote(t *testing.T) {
	rng := testRng(4)
	owner, err := NewPrivateKey(rng)
	require.NoError(t, err)
	thief, err := NewPrivateKey(rng)
	require.NoError(t, err)
	note, err := NewNote(1, owner.Address(), rng)
	require.NoError(t, err)

	_, err = NewAssignment(2, []Spend{{Note: note, Key: thief}}, nil, rng)
	assert.ErrorIs(t, err, ErrInvalidNote)

	_, err = NewAssignment(2, nil, []Output{{Owner: owner.Address(), Value: -1}}, rng)
	assert.ErrorIs(t, err, ErrInvalidNote)

	_, err = NewAssignment(2, make([]Spend, NumInputs+1), nil, rng)
	assert.ErrorIs(t, err, ErrInvalidNote)
}

func TestNewVerifierRejectsShapeMismatch(t *testing.T) {
	params := network.Testnet2()
	params.NumOutputs = 3
	_, err := NewVerifier(params, nil)
	assert.ErrorIs(t, err, network.ErrInvalidParams)
}

func TestVerifierStructuralChecks(t *testing.T) {
	v, err := NewVerifier(network.Testnet2(), nil)
	require.NoError(t, err)

	assert.ErrorIs(t, v.VerifyTransaction(nil), ErrVerification)

	tx := sampleTransaction()
	tx.Network = 1
	assert.ErrorIs(t, v.VerifyTransaction(tx), ErrVerification)

	tx = sampleTransaction()
	tx.SerialNumbers = tx.SerialNumbers[:1]
	assert.ErrorIs(t, v.VerifyTransaction(tx), ErrVerification)

	tx = sampleTransaction()
	for i := range tx.Commitments[1] {
		tx.Commitments[1][i] = 0xff
	}
	assert.ErrorIs(t, v.VerifyTransaction(tx), ErrVerification)
}

func TestProveAndVerify(t *testing.T) {
	k := testKeys(t)
	params := network.Testnet2()
	rng := testRng(5)

	sk, err := NewPrivateKey(rng)
	require.NoError(t, err)
	recipient, err := NewPrivateKey(rng)
	require.NoError(t, err)

	// Mint, then spend the minted note.
	mint, err := NewAssignment(params.ID, nil, []Output{{Owner: sk.Address(), Value: params.BlockReward}}, rng)
	require.NoError(t, err)
	coinbase, err := NewProver(k).Prove(mint)
	require.NoError(t, err)
	assert.True(t, coinbase.IsCoinbase())

	verifier, err := NewVerifier(params, k.VK)
	require.NoError(t, err)
	require.NoError(t, verifier.VerifyTransaction(coinbase))

	fee := amount.OneCredit
	spend, err := NewAssignment(params.ID, []Spend{{Note: mint.Outputs[0], Key: sk}}, []Output{
		{Owner: recipient.Address(), Value: params.BlockReward - fee},
	}, rng)
	require.NoError(t, err)
	tx, err := NewProver(k).Prove(spend)
	require.NoError(t, err)
	assert.Equal(t, fee, tx.ValueBalance)
	require.NoError(t, verifier.VerifyTransaction(tx))

	decoded, err := TransactionFromBytes(tx.Bytes())
	require.NoError(t, err)
	require.NoError(t, verifier.VerifyTransaction(decoded))

	t.Run("tampered value balance", func(t *testing.T) {
		bad := *tx
		bad.ValueBalance = fee + 1
		assert.ErrorIs(t, verifier.VerifyTransaction(&bad), ErrVerification)
	})
	t.Run("swapped serial numbers", func(t *testing.T) {
		bad := *tx
		bad.SerialNumbers = []SerialNumber{tx.SerialNumbers[1], tx.SerialNumbers[0]}
		assert.ErrorIs(t, verifier.VerifyTransaction(&bad), ErrVerification)
	})
	t.Run("foreign commitment", func(t *testing.T) {
		bad := *tx
		bad.Commitments = []Commitment{coinbase.Commitments[0], tx.Commitments[1]}
		assert.ErrorIs(t, verifier.VerifyTransaction(&bad), ErrVerification)
	})
	t.Run("garbage proof", func(t *testing.T) {
		bad := *tx
		bad.Proof = []byte{1, 2, 3}
		err := verifier.VerifyTransaction(&bad)
		assert.True(t, errors.Is(err, ErrVerification))
	})
}

func TestSetupOrLoadKeysPersists(t *testing.T) {
	testKeys(t)
	dir := t.TempDir()

	first, err := SetupOrLoadKeys(dir)
	require.NoError(t, err)
	require.FileExists(t, filepath.Join(dir, provingKeyFile))
	require.FileExists(t, filepath.Join(dir, verifyingKeyFile))

	vk, err := LoadVerifyingKeyFromDir(dir)
	require.NoError(t, err)

	var a, b bytes.Buffer
	_, err = first.VK.WriteTo(&a)
	require.NoError(t, err)
	_, err = vk.WriteTo(&b)
	require.NoError(t, err)
	assert.Equal(t, a.Bytes(), b.Bytes())
}

func TestWallet(t *testing.T) {
	rng := testRng(6)
	sk, err := NewPrivateKey(rng)
	require.NoError(t, err)
	stranger, err := NewPrivateKey(rng)
	require.NoError(t, err)

	w := NewWallet("alice", sk)
	mine, err := NewNote(3*amount.OneCredit, sk.Address(), rng)
	require.NoError(t, err)
	foreign, err := NewNote(1, stranger.Address(), rng)
	require.NoError(t, err)

	require.NoError(t, w.AddNote(mine))
	require.NoError(t, w.AddNote(mine))
	assert.ErrorIs(t, w.AddNote(foreign), ErrInvalidNote)
	assert.Len(t, w.Notes, 1)

	balance, err := w.Balance()
	require.NoError(t, err)
	assert.Equal(t, 3*amount.OneCredit, balance)

	spentSN := mine.SerialNumber(sk)
	require.NoError(t, w.RefreshSpent(func(sn SerialNumber) (bool, error) {
		return sn == spentSN, nil
	}))
	assert.Empty(t, w.UnspentNotes())

	path := filepath.Join(t.TempDir(), "alice.json")
	require.NoError(t, w.Save(path))
	loaded, err := LoadWallet(path)
	require.NoError(t, err)
	assert.Equal(t, w, loaded)
}
