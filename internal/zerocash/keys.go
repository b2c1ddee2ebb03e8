package zerocash

import (
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
)

// Curve is the proving curve. Its scalar field is the field MiMC operates in.
const Curve = ecc.BW6_761

const (
	provingKeyFile   = "transaction_pk.bin"
	verifyingKeyFile = "transaction_vk.bin"
)

// Keys bundles the compiled transaction circuit with its Groth16 keys.
type Keys struct {
	CCS constraint.ConstraintSystem
	PK  groth16.ProvingKey
	VK  groth16.VerifyingKey
}

// CompileCircuit compiles CircuitTx to R1CS.
func CompileCircuit() (constraint.ConstraintSystem, error) {
	var circuit CircuitTx
	ccs, err := frontend.Compile(Curve.ScalarField(), r1cs.NewBuilder, &circuit)
	if err != nil {
		return nil, errors.Wrap(err, "circuit compilation failed")
	}
	return ccs, nil
}

// Setup compiles the circuit and runs an in-memory Groth16 setup.
func Setup() (*Keys, error) {
	ccs, err := CompileCircuit()
	if err != nil {
		return nil, err
	}
	pk, vk, err := groth16.Setup(ccs)
	if err != nil {
		return nil, errors.Wrap(err, "groth16 setup failed")
	}
	return &Keys{CCS: ccs, PK: pk, VK: vk}, nil
}

// SetupOrLoadKeys loads the Groth16 keys from dir, or generates and saves them there.
func SetupOrLoadKeys(dir string) (*Keys, error) {
	ccs, err := CompileCircuit()
	if err != nil {
		return nil, err
	}
	pkPath := filepath.Join(dir, provingKeyFile)
	vkPath := filepath.Join(dir, verifyingKeyFile)

	pk, pkErr := LoadProvingKey(pkPath)
	vk, vkErr := LoadVerifyingKey(vkPath)
	if pkErr == nil && vkErr == nil {
		return &Keys{CCS: ccs, PK: pk, VK: vk}, nil
	}

	pk, vk, err = groth16.Setup(ccs)
	if err != nil {
		return nil, errors.Wrap(err, "groth16 setup failed")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create key dir %s", dir)
	}
	if err := SaveProvingKey(pkPath, pk); err != nil {
		return nil, err
	}
	if err := SaveVerifyingKey(vkPath, vk); err != nil {
		return nil, err
	}
	return &Keys{CCS: ccs, PK: pk, VK: vk}, nil
}

// LoadVerifyingKeyFromDir loads only the verifying key, for nodes that never prove.
func LoadVerifyingKeyFromDir(dir string) (groth16.VerifyingKey, error) {
	return LoadVerifyingKey(filepath.Join(dir, verifyingKeyFile))
}

// SaveProvingKey saves a Groth16 proving key to disk.
func SaveProvingKey(path string, pk groth16.ProvingKey) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	defer f.Close()
	_, err = pk.WriteTo(f)
	return errors.Wrapf(err, "write proving key %s", path)
}

// SaveVerifyingKey saves a Groth16 verifying key to disk.
func SaveVerifyingKey(path string, vk groth16.VerifyingKey) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	defer f.Close()
	_, err = vk.WriteTo(f)
	return errors.Wrapf(err, "write verifying key %s", path)
}

// LoadProvingKey loads a Groth16 proving key from disk.
func LoadProvingKey(path string) (groth16.ProvingKey, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	pk := groth16.NewProvingKey(Curve)
	if _, err := pk.ReadFrom(f); err != nil {
		return nil, errors.Wrapf(err, "read proving key %s", path)
	}
	return pk, nil
}

// LoadVerifyingKey loads a Groth16 verifying key from disk.
func LoadVerifyingKey(path string) (groth16.VerifyingKey, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	vk := groth16.NewVerifyingKey(Curve)
	if _, err := vk.ReadFrom(f); err != nil {
		return nil, errors.Wrapf(err, "read verifying key %s", path)
	}
	return vk, nil
}
