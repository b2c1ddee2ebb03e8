// Package zerocash implements the confidential transactions that block payloads are made of.
//
// Overview:
//   - Notes commit to a value, an owner address and randomness (MiMC over the BW6-761 scalar field)
//   - Spending a note reveals its serial number; creating a note reveals its commitment
//   - Every transaction spends NumInputs notes and creates NumOutputs notes; coinbase transactions
//     spend zero-value dummy notes and carry a negative value balance
//   - A Groth16 proof (gnark, BW6-761) binds serial numbers, commitments and value balance
//
// Security Model:
//   - Serial numbers are PRF outputs of the owner's key and the note commitment, so a note has
//     exactly one serial number and double spends show up as repeated serial numbers
//   - Output randomness rho is derived from the transaction's serial numbers, so distinct
//     transactions cannot produce the same output commitment
//   - Membership of spent notes in the ledger's commitment set is a ledger concern and is not
//     proven here
//
// Usage:
//   - CompileCircuit / Setup / SetupOrLoadKeys produce the Groth16 keys
//   - NewAssignment derives serial numbers and output notes, Prover.Prove builds the Transaction
//   - Verifier.VerifyTransaction checks a Transaction against the verifying key
//
// References:
//   - Zerocash: Decentralized Anonymous Payments from Bitcoin (Ben-Sasson et al., 2014)
//
// WARNING: This package is for research and educational purposes.
package zerocash
