// Package vm turns a program call into a provable transaction.
//
// Authorize maps a private key, program id, function name and inputs to an Authorization: the
// serial numbers the call reveals, the output notes it creates and the private assignment the
// prover needs. Execute hands the authorization to the Groth16 prover. Programs are resolved
// through the process registered for the VM's network.
package vm

import (
	"io"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	"zkledger/internal/network"
	"zkledger/internal/zerocash"
)

var (
	// ErrUnknownProgram is returned when no process on the network knows the program id.
	ErrUnknownProgram = errors.New("unknown program")
	// ErrUnknownFunction is returned when the program has no function of that name.
	ErrUnknownFunction = errors.New("unknown function")
	// ErrInvalidInputs is returned when the inputs do not match the function signature.
	ErrInvalidInputs = errors.New("invalid inputs")
	// ErrInsufficientFunds is returned when the spent records cannot cover amount and fee.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrNoProver is returned by Execute on a VM built without a prover.
	ErrNoProver = errors.New("vm has no prover")
)

// Authorization is a checked program call, ready to be proven.
type Authorization struct {
	Program    ProgramID
	Function   Identifier
	Assignment *zerocash.Assignment
}

// SerialNumbers returns the serial numbers the call reveals.
func (a *Authorization) SerialNumbers() []zerocash.SerialNumber {
	return a.Assignment.SerialNumbers[:]
}

// Outputs returns the notes the call creates, including zero-value padding notes.
func (a *Authorization) Outputs() []*zerocash.Note {
	return a.Assignment.Outputs[:]
}

// function builds the assignment of one call.
type function func(p *network.Params, sk zerocash.PrivateKey, inputs []Value, rng io.Reader) (*zerocash.Assignment, error)

// process holds the programs available on one network.
type process struct {
	programs map[ProgramID]map[Identifier]function
}

// processes are keyed by network id. Both test networks share the same credits program; the
// network only changes the transaction's network id and the reward it may mint.
var processes = map[uint16]*process{
	network.Testnet1().ID: {programs: map[ProgramID]map[Identifier]function{CreditsProgram: creditsFunctions}},
	network.Testnet2().ID: {programs: map[ProgramID]map[Identifier]function{CreditsProgram: creditsFunctions}},
}

// Option configures a VM.
type Option func(*VM)

// WithLogger sets the VM logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(vm *VM) {
		vm.log = logger.With().Str("component", "vm").Logger()
	}
}

// VM authorizes and executes program calls for one network.
type VM struct {
	params  *network.Params
	process *process
	prover  *zerocash.Prover
	log     zerolog.Logger
}

// New returns a VM for params. prover may be nil for a VM that only authorizes.
func New(params *network.Params, prover *zerocash.Prover, opts ...Option) (*VM, error) {
	proc, ok := processes[params.ID]
	if !ok {
		return nil, errors.Wrapf(network.ErrUnknownNetwork, "no process for network %s", params.Name)
	}
	vm := &VM{params: params, process: proc, prover: prover, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(vm)
	}
	return vm, nil
}

// Authorize checks a call of programID/functionName by the owner of privateKey and prepares its
// assignment. rng supplies the output randomness.
func (vm *VM) Authorize(
	privateKey zerocash.PrivateKey,
	programID ProgramID,
	functionName Identifier,
	inputs []Value,
	rng io.Reader,
) (*Authorization, error) {
	functions, ok := vm.process.programs[programID]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownProgram, "%s", programID)
	}
	fn, ok := functions[functionName]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownFunction, "%s/%s", programID, functionName)
	}
	assignment, err := fn(vm.params, privateKey, inputs, rng)
	if err != nil {
		return nil, errors.Wrapf(err, "%s/%s", programID, functionName)
	}
	vm.log.Debug().
		Stringer("program", programID).
		Str("function", string(functionName)).
		Stringer("value_balance", assignment.ValueBalance).
		Msg("authorized call")
	return &Authorization{Program: programID, Function: functionName, Assignment: assignment}, nil
}

// Execute proves auth and returns the transaction.
func (vm *VM) Execute(auth *Authorization) (*zerocash.Transaction, error) {
	if vm.prover == nil {
		return nil, ErrNoProver
	}
	tx, err := vm.prover.Prove(auth.Assignment)
	if err != nil {
		return nil, errors.Wrapf(err, "execute %s/%s", auth.Program, auth.Function)
	}
	vm.log.Info().
		Stringer("tx", tx.ID()).
		Stringer("program", auth.Program).
		Str("function", string(auth.Function)).
		Msg("executed call")
	return tx, nil
}
