package zerocash

import (
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/hash/mimc"
)

// NumInputs and NumOutputs fix the circuit shape. Network profiles must agree with them.
const (
	NumInputs  = 2
	NumOutputs = 2
)

// valueBits bounds note values so that balance arithmetic cannot wrap around the field.
const valueBits = 64

// CircuitTx proves that the public serial numbers spend NumInputs notes owned by the prover,
// that the public commitments open to NumOutputs well-formed notes, and that
// sum(inputs) - sum(outputs) equals the public value balance.
type CircuitTx struct {
	// Public inputs
	SerialNumbers [NumInputs]frontend.Variable  `gnark:",public"`
	Commitments   [NumOutputs]frontend.Variable `gnark:",public"`
	ValueBalance  frontend.Variable             `gnark:",public"`

	// Private inputs
	InSk    [NumInputs]frontend.Variable
	InRho   [NumInputs]frontend.Variable
	InRand  [NumInputs]frontend.Variable
	InValue [NumInputs]frontend.Variable

	OutOwner [NumOutputs]frontend.Variable
	OutRho   [NumOutputs]frontend.Variable
	OutRand  [NumOutputs]frontend.Variable
	OutValue [NumOutputs]frontend.Variable
}

func (c *CircuitTx) Define(api frontend.API) error {
	var inTotal, outTotal frontend.Variable = 0, 0

	for i := 0; i < NumInputs; i++ {
		// owner = H(sk)
		owner, err := hashVars(api, c.InSk[i])
		if err != nil {
			return err
		}
		// cm = H(value || owner || rho || rand)
		cm, err := hashVars(api, c.InValue[i], owner, c.InRho[i], c.InRand[i])
		if err != nil {
			return err
		}
		// sn = H(sk || cm)
		sn, err := hashVars(api, c.InSk[i], cm)
		if err != nil {
			return err
		}
		api.AssertIsEqual(c.SerialNumbers[i], sn)

		api.ToBinary(c.InValue[i], valueBits)
		inTotal = api.Add(inTotal, c.InValue[i])
	}

	for j := 0; j < NumOutputs; j++ {
		// rho_j = H(sn_0 || ... || sn_n || j)
		seed := make([]frontend.Variable, 0, NumInputs+1)
		for i := 0; i < NumInputs; i++ {
			seed = append(seed, c.SerialNumbers[i])
		}
		seed = append(seed, j)
		rho, err := hashVars(api, seed...)
		if err != nil {
			return err
		}
		api.AssertIsEqual(c.OutRho[j], rho)

		cm, err := hashVars(api, c.OutValue[j], c.OutOwner[j], c.OutRho[j], c.OutRand[j])
		if err != nil {
			return err
		}
		api.AssertIsEqual(c.Commitments[j], cm)

		api.ToBinary(c.OutValue[j], valueBits)
		outTotal = api.Add(outTotal, c.OutValue[j])
	}

	// Value conservation
	api.AssertIsEqual(api.Sub(inTotal, outTotal), c.ValueBalance)

	return nil
}

// hashVars hashes vars with a fresh MiMC instance, matching mimcHash on the native side.
func hashVars(api frontend.API, vars ...frontend.Variable) (frontend.Variable, error) {
	h, err := mimc.NewMiMC(api)
	if err != nil {
		return nil, err
	}
	h.Write(vars...)
	return h.Sum(), nil
}
