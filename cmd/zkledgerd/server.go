// server.go - HTTP API of the ledger daemon
package main

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"zkledger/internal/block"
	"zkledger/internal/ledger"
	"zkledger/internal/miner"
	"zkledger/internal/zerocash"
	"zkledger/p2p"
)

// SubmitRequest is the body of POST /transactions.
type SubmitRequest struct {
	Transaction string `json:"transaction"`
}

// SubmitResponse is returned for an accepted transaction.
type SubmitResponse struct {
	ID      string `json:"id"`
	Pending int    `json:"pending"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Server wires the assembler and ledger to HTTP.
type Server struct {
	echo      *echo.Echo
	assembler *miner.Assembler
	ledger    *ledger.Ledger
	metrics   *Metrics
	health    *HealthChecker
	log       *Logger
	relay     *p2p.Node
}

// NewServer builds the echo instance and registers the routes. relay may be nil.
func NewServer(cfg *Config, assembler *miner.Assembler, l *ledger.Ledger, logger *Logger, metrics *Metrics, health *HealthChecker, relay *p2p.Node) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Server.ReadTimeout = cfg.Timeout
	e.Server.WriteTimeout = cfg.Timeout

	s := &Server{
		echo:      e,
		assembler: assembler,
		ledger:    l,
		metrics:   metrics,
		health:    health,
		log:       logger,
		relay:     relay,
	}

	limiter := NewClientRateLimiter(cfg.RateLimitTokens, cfg.RateLimitRefill, cfg.RateLimitPeriod)
	limited := limiter.Middleware(func(c echo.Context) {
		metrics.RecordSubmission("rate_limited")
		logger.Audit("rate_limited", map[string]interface{}{"client": c.RealIP()})
	})

	e.GET("/health", s.getHealth)
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
	e.POST("/transactions", s.postTransaction, limited)
	e.GET("/block/template", s.getTemplate)
	e.POST("/block/seal", s.postSeal)
	e.GET("/blocks/:height", s.getBlock)

	if relay != nil {
		relay.OnTransaction(s.relayedTransaction)
		relay.RegisterHandler(p2p.MsgBlockSealed, s.peerSealedBlock)
		e.POST(p2p.MessagePath, echo.WrapHandler(relay.Handler()))
	}
	return s
}

// ServeHTTP lets the server be driven by httptest.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

func (s *Server) getHealth(c echo.Context) error {
	h := s.health.CheckHealth()
	code := http.StatusOK
	if h.Status != Healthy {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, h)
}

func (s *Server) postTransaction(c echo.Context) error {
	var req SubmitRequest
	if err := c.Bind(&req); err != nil {
		s.metrics.RecordSubmission("malformed")
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}
	tx, err := zerocash.TransactionFromHex(req.Transaction)
	if err != nil {
		s.metrics.RecordSubmission("malformed")
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}

	pending, err := s.accept(tx, "")
	if err != nil {
		code, result := submitStatus(err)
		s.metrics.RecordSubmission(result)
		s.log.Warn().Stringer("tx", tx.ID()).Err(err).Msg("submission rejected")
		return c.JSON(code, errorResponse{Error: err.Error()})
	}

	s.metrics.RecordSubmission("accepted")
	s.log.Audit("transaction_accepted", map[string]interface{}{
		"tx":            tx.ID().String(),
		"client":        c.RealIP(),
		"value_balance": tx.ValueBalance.Int64(),
	})
	return c.JSON(http.StatusAccepted, SubmitResponse{ID: tx.ID().String(), Pending: pending})
}

// accept adds tx to the pending block and relays it to every peer but from.
func (s *Server) accept(tx *zerocash.Transaction, from string) (int, error) {
	if err := s.assembler.Submit(tx); err != nil {
		return 0, err
	}
	pending := s.assembler.Pending()
	s.metrics.SetPending(pending)
	if s.relay != nil {
		s.relay.Relay(tx, from)
	}
	return pending, nil
}

func (s *Server) relayedTransaction(from string, tx *zerocash.Transaction) error {
	if _, err := s.accept(tx, from); err != nil {
		_, result := submitStatus(err)
		s.metrics.RecordSubmission("relayed_" + result)
		return err
	}
	s.metrics.RecordSubmission("relayed")
	s.log.Debug().Stringer("tx", tx.ID()).Str("from", from).Msg("accepted relayed transaction")
	return nil
}

func (s *Server) peerSealedBlock(_ *p2p.Node, msg p2p.Message) error {
	var p p2p.BlockSealedPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		return errors.Wrap(err, "decode block announcement")
	}
	height, err := s.ledger.Height()
	if err != nil {
		return err
	}
	ev := s.log.Info()
	if p.Height > height {
		ev = s.log.Warn()
	}
	ev.Str("peer", msg.SenderID).Uint64("peer_height", p.Height).Uint64("height", height).Str("root", p.Root).Msg("peer sealed block")
	return nil
}

func submitStatus(err error) (int, string) {
	switch {
	case errors.Is(err, miner.ErrConflict), errors.Is(err, miner.ErrCoinbaseFull):
		return http.StatusConflict, "conflict"
	case errors.Is(err, miner.ErrBlockFull):
		return http.StatusServiceUnavailable, "full"
	case errors.Is(err, block.ErrInvalidTransaction), errors.Is(err, miner.ErrExcessiveReward):
		return http.StatusUnprocessableEntity, "invalid"
	default:
		return http.StatusInternalServerError, "error"
	}
}

func (s *Server) getTemplate(c echo.Context) error {
	tmpl, err := s.assembler.Template()
	if errors.Is(err, miner.ErrNoTransactions) {
		return c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
	}
	if err != nil {
		s.metrics.RecordError("template")
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
	if tmpl.Failure != nil {
		s.metrics.RecordInvalidTemplate(tmpl.Failure.Reason)
	}
	return c.JSON(http.StatusOK, tmpl)
}

func (s *Server) postSeal(c echo.Context) error {
	start := time.Now()
	rec, err := s.assembler.Seal()
	switch {
	case errors.Is(err, miner.ErrNoTransactions):
		return c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, ledger.ErrInvalidBlock),
		errors.Is(err, ledger.ErrDoubleSpend),
		errors.Is(err, ledger.ErrDuplicateCommitment):
		s.log.Warn().Err(err).Msg("seal rejected")
		return c.JSON(http.StatusConflict, errorResponse{Error: err.Error()})
	case err != nil:
		s.metrics.RecordError("seal")
		s.log.Error().Err(err).Msg("seal failed")
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}

	s.metrics.RecordSeal(rec, time.Since(start))
	s.metrics.SetPending(s.assembler.Pending())
	if s.relay != nil {
		s.relay.AnnounceBlock(rec.Height, rec.Root)
	}
	s.log.Audit("block_sealed", map[string]interface{}{
		"height": rec.Height,
		"root":   rec.Root,
		"txs":    rec.TxCount,
		"fees":   rec.Fees.Int64(),
	})
	return c.JSON(http.StatusOK, rec)
}

func (s *Server) getBlock(c echo.Context) error {
	height, err := strconv.ParseUint(c.Param("height"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "height must be a positive integer"})
	}
	rec, err := s.ledger.Block(height)
	if errors.Is(err, ledger.ErrNotFound) {
		return c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
	}
	if err != nil {
		s.metrics.RecordError("block")
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, rec)
}
