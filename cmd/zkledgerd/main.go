// main.go - Ledger daemon.
//
// zkledgerd accepts proven transactions over HTTP, keeps them in the pending block, reports the
// block template (validity, transactions root, fees, net value balance) and seals blocks into the
// bbolt ledger.
//
// Usage:
//
//	zkledgerd --network testnet2 --listen 127.0.0.1:8080 --key-dir keys
//
// Every flag can also be set in a config file (--config) or as ZKLEDGER_<FLAG> in the
// environment, e.g. ZKLEDGER_LEDGER_PATH=/var/lib/zkledger/ledger.db.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"

	"zkledger/internal/block"
	"zkledger/internal/ledger"
	"zkledger/internal/miner"
	"zkledger/internal/network"
	"zkledger/internal/zerocash"
	"zkledger/p2p"
)

const version = "0.1.0"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "zkledgerd: %+v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := LoadConfig(args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "invalid config")
	}

	auditPath := ""
	if cfg.EnableAudit {
		auditPath = cfg.AuditLogPath
	}
	logger, err := NewLogger(cfg.LogLevel, cfg.LogFile, auditPath)
	if err != nil {
		return err
	}
	defer logger.Close()

	params, err := network.ByName(cfg.Network)
	if err != nil {
		return err
	}

	start := time.Now()
	vk, err := zerocash.LoadVerifyingKeyFromDir(cfg.KeyDir)
	if err != nil {
		logger.Warn().Err(err).Str("dir", cfg.KeyDir).Msg("no verifying key, running setup")
		keys, err := zerocash.SetupOrLoadKeys(cfg.KeyDir)
		if err != nil {
			return err
		}
		vk = keys.VK
	}
	logger.Info().Dur("took", time.Since(start)).Msg("verifying key ready")

	txVerifier, err := zerocash.NewVerifier(params, vk)
	if err != nil {
		return err
	}
	metrics := NewMetrics()
	verifier := instrumentedVerifier{next: txVerifier, metrics: metrics}

	l, err := ledger.Open(cfg.LedgerPath, params, ledger.WithLogger(logger.Logger))
	if err != nil {
		return err
	}
	defer l.Close()
	if h, err := l.Height(); err == nil {
		metrics.SetHeight(h)
	}

	assembler := miner.NewAssembler(params, verifier, l, logger.Logger, block.WithConcurrency(cfg.MaxConcurrency))

	health := NewHealthChecker(version, params.Name)
	health.RegisterComponent("ledger", func() error {
		_, err := l.Height()
		return err
	})
	health.RegisterComponent("assembler", func() error {
		if n := assembler.Pending(); uint64(n) >= params.MaxTransactions {
			return errors.Newf("pending block is full (%d transactions)", n)
		}
		return nil
	})

	peers, err := p2p.ParsePeers(cfg.Peers)
	if err != nil {
		return err
	}
	relay := p2p.NewNode(cfg.NodeID, peers, logger.Logger)

	srv := NewServer(cfg, assembler, l, logger, metrics, health, relay)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("network", params.Name).Str("listen", cfg.ListenAddress).Int("peers", len(peers)).Msg("zkledgerd started")
		errCh <- srv.echo.Start(cfg.ListenAddress)
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "http server")
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()
	return srv.echo.Shutdown(shutdownCtx)
}
