// main.go - Two-block ledger scenario.
//
// This walks through the life of a transaction set end to end:
//   - the Groth16 keys of the transaction circuit are set up (or loaded from keys/)
//   - block 1 holds the miner's coinbase, minted through credits.aleo/mint
//   - block 2 holds a new coinbase and a transfer from the miner to alice that pays a fee
//   - each block is validated, its transactions root, fees and net value balance computed,
//     and it is applied to the bbolt ledger
//   - replaying the transfer in a third block is rejected as a double spend
//
// Usage:
//
//	go run . [-dir scenario]
//
// Architecture:
//   - The ledger (ledger.db) records every serial number and commitment, one record per block
//   - Each participant keeps a wallet file (miner_wallet.json, alice_wallet.json)
package main

import (
	"crypto/rand"
	"flag"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	"zkledger/internal/amount"
	"zkledger/internal/block"
	"zkledger/internal/ledger"
	"zkledger/internal/network"
	"zkledger/internal/vm"
	"zkledger/internal/zerocash"
)

// scenarioResult is what the scenario leaves behind.
type scenarioResult struct {
	Blocks        []*ledger.BlockRecord
	MinerBalance  amount.Amount
	AliceBalance  amount.Amount
	ReplayErr     error
	TransferProof *block.InclusionProof
}

func main() {
	dir := flag.String("dir", "scenario", "directory for keys, ledger and wallets")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).With().Timestamp().Logger()
	if err := os.MkdirAll(*dir, 0o755); err != nil {
		log.Fatal().Err(err).Msg("create scenario directory")
	}
	keys, err := zerocash.SetupOrLoadKeys(filepath.Join(*dir, "keys"))
	if err != nil {
		log.Fatal().Err(err).Msg("transaction keys")
	}

	res, err := runScenario(*dir, keys, log, rand.Reader)
	if err != nil {
		log.Fatal().Err(err).Msg("scenario failed")
	}
	log.Info().
		Int("blocks", len(res.Blocks)).
		Stringer("miner", res.MinerBalance).
		Stringer("alice", res.AliceBalance).
		AnErr("replay", res.ReplayErr).
		Msg("scenario complete")
}

func runScenario(dir string, keys *zerocash.Keys, log zerolog.Logger, rng io.Reader) (*scenarioResult, error) {
	params := network.Testnet2()

	machine, err := vm.New(params, zerocash.NewProver(keys), vm.WithLogger(log))
	if err != nil {
		return nil, err
	}
	verifier, err := zerocash.NewVerifier(params, keys.VK)
	if err != nil {
		return nil, err
	}
	l, err := ledger.Open(filepath.Join(dir, "ledger.db"), params, ledger.WithLogger(log))
	if err != nil {
		return nil, err
	}
	defer l.Close()

	minerKey, err := zerocash.NewPrivateKey(rng)
	if err != nil {
		return nil, err
	}
	aliceKey, err := zerocash.NewPrivateKey(rng)
	if err != nil {
		return nil, err
	}
	miner := zerocash.NewWallet("miner", minerKey)
	alice := zerocash.NewWallet("alice", aliceKey)
	res := &scenarioResult{}

	// call authorizes and proves one credits.aleo call.
	call := func(sk zerocash.PrivateKey, fn vm.Identifier, inputs ...vm.Value) (*vm.Authorization, *zerocash.Transaction, error) {
		auth, err := machine.Authorize(sk, vm.CreditsProgram, fn, inputs, rng)
		if err != nil {
			return nil, nil, err
		}
		tx, err := machine.Execute(auth)
		if err != nil {
			return nil, nil, err
		}
		return auth, tx, nil
	}
	coinbase := func() (*vm.Authorization, *zerocash.Transaction, error) {
		return call(minerKey, vm.Mint, vm.AddressValue{Address: miner.Address()}, vm.AmountValue{Amount: params.BlockReward})
	}
	seal := func(txs ...*zerocash.Transaction) (*block.Transactions, *ledger.BlockRecord, error) {
		set := block.New(params, verifier, block.WithLogger(log))
		for _, tx := range txs {
			if err := set.Push(tx); err != nil {
				return nil, nil, err
			}
		}
		if !set.IsValid() {
			return set, nil, errors.AssertionFailedf("block of %d transactions is invalid", set.Len())
		}
		rec, err := l.ApplyBlock(set)
		if err != nil {
			return set, nil, err
		}
		res.Blocks = append(res.Blocks, rec)
		return set, rec, nil
	}

	log.Info().Msg("=== Block 1: coinbase ===")
	mint1, cb1, err := coinbase()
	if err != nil {
		return nil, err
	}
	if _, _, err := seal(cb1); err != nil {
		return nil, errors.Wrap(err, "block 1")
	}
	miner.ClaimOutputs(mint1.Assignment)

	log.Info().Msg("=== Block 2: coinbase and transfer ===")
	mint2, cb2, err := coinbase()
	if err != nil {
		return nil, err
	}
	unspent := miner.UnspentNotes()
	if len(unspent) == 0 {
		return nil, errors.New("miner has nothing to spend")
	}
	pay, transfer, err := call(minerKey, vm.Transfer,
		vm.RecordValue{Note: unspent[0]},
		vm.AddressValue{Address: alice.Address()},
		vm.AmountValue{Amount: 25 * amount.OneCredit},
		vm.AmountValue{Amount: amount.OneCredit},
	)
	if err != nil {
		return nil, err
	}
	set, rec, err := seal(cb2, transfer)
	if err != nil {
		return nil, errors.Wrap(err, "block 2")
	}
	for _, line := range set.SerializeAsStr() {
		log.Debug().Str("tx", line).Msg("block 2 transaction")
	}
	res.TransferProof, err = set.TransactionProof(1)
	if err != nil {
		return nil, err
	}
	root := set.TransactionsRoot()
	if !block.VerifyInclusion(params, root, res.TransferProof) {
		return nil, errors.AssertionFailedf("transfer is not included under root %s", root)
	}
	log.Info().Uint64("height", rec.Height).Stringer("root", root).Stringer("fees", rec.Fees).Msg("transfer included")

	miner.ClaimOutputs(mint2.Assignment)
	miner.ClaimOutputs(pay.Assignment)
	alice.ClaimOutputs(pay.Assignment)

	log.Info().Msg("=== Block 3: replayed transfer ===")
	_, cb3, err := coinbase()
	if err != nil {
		return nil, err
	}
	_, _, res.ReplayErr = seal(cb3, transfer)
	if !errors.Is(res.ReplayErr, ledger.ErrDoubleSpend) {
		return nil, errors.Wrap(res.ReplayErr, "replay was not rejected as a double spend")
	}
	log.Info().Err(res.ReplayErr).Msg("replay rejected")

	for _, w := range []*zerocash.Wallet{miner, alice} {
		if err := w.RefreshSpent(l.HasSerialNumber); err != nil {
			return nil, err
		}
		if err := w.Save(filepath.Join(dir, w.Name+"_wallet.json")); err != nil {
			return nil, err
		}
	}
	if res.MinerBalance, err = miner.Balance(); err != nil {
		return nil, err
	}
	if res.AliceBalance, err = alice.Balance(); err != nil {
		return nil, err
	}
	return res, nil
}
