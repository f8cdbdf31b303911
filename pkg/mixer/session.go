// Package mixer sequences the deposit and withdrawal flows: secret
// creation, chain reconstruction, proof generation and submission, either
// directly or through a relay.
package mixer

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/yourorg/shieldpool/pkg/chain"
	"github.com/yourorg/shieldpool/pkg/note"
	"github.com/yourorg/shieldpool/pkg/prover"
	"github.com/yourorg/shieldpool/pkg/relay"
)

// ErrConfirmationTimeout means local waiting gave up. The transaction may
// still confirm later; this is not a statement that it failed.
var ErrConfirmationTimeout = errors.New("mixer: gave up waiting for confirmation")

const (
	defaultPollInterval = 2 * time.Second
	defaultPollAttempts = 15
)

// Pool identifies one accumulator/ledger instance. Read-only for the
// process lifetime.
type Pool struct {
	Denomination    *big.Int
	Contract        common.Address
	DeploymentBlock uint64
}

// Session carries the collaborators one invocation works against. There
// is no implicit shared state: every operation reconstructs the tree
// fresh, and the only secret a client holds is the note itself.
type Session struct {
	Ledger  chain.Ledger
	Backend prover.Backend
	Pool    Pool

	// Receipt polling knobs; zero values take the defaults.
	PollInterval time.Duration
	PollAttempts int
}

func NewSession(ledger chain.Ledger, backend prover.Backend, pool Pool) *Session {
	return &Session{Ledger: ledger, Backend: backend, Pool: pool}
}

// Deposit draws fresh secrets, submits the commitment with the pool
// denomination and waits for confirmation. The returned note is the only
// record of the deposit; it is never persisted here.
func (s *Session) Deposit(ctx context.Context) (string, common.Hash, error) {
	dep, err := note.Random()
	if err != nil {
		return "", common.Hash{}, err
	}
	tx, err := s.Ledger.SubmitDeposit(ctx, dep.Commitment.Bytes(), s.Pool.Denomination)
	if err != nil {
		return "", common.Hash{}, err
	}
	if err := s.awaitReceipt(ctx, tx); err != nil {
		// The note is still spendable once the deposit lands.
		return dep.Note(), tx, err
	}
	return dep.Note(), tx, nil
}

// WithdrawDirect proves and submits the withdrawal from the session's own
// account, with no relayer and no fee.
func (s *Session) WithdrawDirect(ctx context.Context, noteStr, recipientStr string) (common.Hash, error) {
	dep, err := note.DecodeNote(noteStr)
	if err != nil {
		return common.Hash{}, err
	}
	recipient, err := note.ParseAddress(recipientStr)
	if err != nil {
		return common.Hash{}, err
	}

	in, proof, err := s.prove(ctx, dep, recipient, common.Address{}, new(big.Int), new(big.Int))
	if err != nil {
		return common.Hash{}, err
	}

	tx, err := s.Ledger.SubmitWithdraw(ctx, in.WithdrawCall(proof))
	if err != nil {
		return common.Hash{}, err
	}
	return tx, s.awaitReceipt(ctx, tx)
}

// WithdrawViaRelay asks the relay for a quote, proves with the relayer
// address and fee bound into the statement, posts the proof and polls the
// returned transaction until confirmation or until the attempt budget is
// exhausted.
func (s *Session) WithdrawViaRelay(ctx context.Context, noteStr, recipientStr, relayURL string) (common.Hash, error) {
	dep, err := note.DecodeNote(noteStr)
	if err != nil {
		return common.Hash{}, err
	}
	recipient, err := note.ParseAddress(recipientStr)
	if err != nil {
		return common.Hash{}, err
	}

	rc := relay.NewClient(relayURL)
	st, err := rc.Status(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	netID, err := s.Ledger.NetworkID(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	if !st.NetID.Agnostic() && string(st.NetID) != netID {
		return common.Hash{}, fmt.Errorf("%w: relay serves net %q, ledger is %q", relay.ErrNetworkMismatch, st.NetID, netID)
	}
	fee := relay.FeeFor(st.GasPrices.Fast)

	in, proof, err := s.prove(ctx, dep, recipient, st.RelayerAddress, fee, new(big.Int))
	if err != nil {
		return common.Hash{}, err
	}

	tx, err := rc.Relay(ctx, s.Pool.Contract, proof.CalldataHex(), in.LedgerArgs())
	if err != nil {
		return common.Hash{}, err
	}
	return tx, s.awaitReceipt(ctx, tx)
}

// prove runs the reconstruct → assemble → prove leg shared by both
// withdrawal paths.
func (s *Session) prove(ctx context.Context, dep *note.Deposit, recipient, relayer common.Address, fee, refund *big.Int) (*prover.CircuitInput, *prover.Proof, error) {
	tp, err := chain.BuildProof(ctx, s.Ledger, dep, s.Pool.DeploymentBlock)
	if err != nil {
		return nil, nil, err
	}
	in, err := prover.BuildCircuitInput(dep, tp, recipient, relayer, fee, refund)
	if err != nil {
		return nil, nil, err
	}
	proof, err := s.Backend.Prove(ctx, in)
	if err != nil {
		return nil, nil, err
	}
	return in, proof, nil
}

// awaitReceipt polls with a bounded budget. Cancellation stops the local
// wait only; the submitted transaction is not rolled back.
func (s *Session) awaitReceipt(ctx context.Context, tx common.Hash) error {
	interval := s.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	attempts := s.PollAttempts
	if attempts <= 0 {
		attempts = defaultPollAttempts
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for i := 0; i < attempts; i++ {
		r, err := s.Ledger.TxReceipt(ctx, tx)
		if err != nil {
			return err
		}
		if r != nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return fmt.Errorf("%w: tx %s still pending after %d attempts", ErrConfirmationTimeout, tx.Hex(), attempts)
}
