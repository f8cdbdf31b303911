package mixer

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/shieldpool/pkg/chain"
	"github.com/yourorg/shieldpool/pkg/note"
	"github.com/yourorg/shieldpool/pkg/prover"
	"github.com/yourorg/shieldpool/pkg/relay"
)

// stubBackend records the input and returns a canned proof; the real
// Groth16 path is covered by the integration test.
type stubBackend struct {
	last *prover.CircuitInput
}

func (s *stubBackend) Prove(_ context.Context, in *prover.CircuitInput) (*prover.Proof, error) {
	s.last = in
	p := &prover.Proof{Blob: []byte("proof")}
	for i := range p.Calldata {
		p.Calldata[i] = big.NewInt(int64(i + 1))
	}
	return p, nil
}

const recipientHex = "0x1111111111111111111111111111111111111111"

func newTestSession(ml *chain.MemoryLedger) (*Session, *stubBackend) {
	b := &stubBackend{}
	s := NewSession(ml, b, Pool{
		Denomination: big.NewInt(1e18),
		Contract:     common.HexToAddress("0x4444444444444444444444444444444444444444"),
	})
	s.PollInterval = time.Millisecond
	s.PollAttempts = 5
	return s, b
}

func TestDepositThenWithdrawDirect(t *testing.T) {
	ml := chain.NewMemoryLedger("1")
	s, b := newTestSession(ml)
	ctx := context.Background()

	noteStr, tx, err := s.Deposit(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, common.Hash{}, tx)

	wtx, err := s.WithdrawDirect(ctx, noteStr, recipientHex)
	require.NoError(t, err)
	assert.NotEqual(t, common.Hash{}, wtx)

	// direct path carries no relayer and no fee
	require.NotNil(t, b.last)
	assert.Equal(t, common.Address{}, b.last.Relayer)
	assert.Zero(t, b.last.Fee.Sign())

	dep, err := note.DecodeNote(noteStr)
	require.NoError(t, err)
	spent, err := ml.IsSpent(ctx, dep.NullifierHash.Bytes())
	require.NoError(t, err)
	assert.True(t, spent)

	// second spend of the same note is rejected up front
	_, err = s.WithdrawDirect(ctx, noteStr, recipientHex)
	assert.ErrorIs(t, err, chain.ErrAlreadySpent)
}

func TestWithdrawDirectRejectsBadInputs(t *testing.T) {
	s, _ := newTestSession(chain.NewMemoryLedger("1"))
	ctx := context.Background()

	_, err := s.WithdrawDirect(ctx, "0xnot-a-note", recipientHex)
	assert.ErrorIs(t, err, note.ErrMalformedNote)

	noteStr, _, err := s.Deposit(ctx)
	require.NoError(t, err)
	_, err = s.WithdrawDirect(ctx, noteStr, "not-an-address")
	assert.ErrorIs(t, err, note.ErrMalformedAddress)
}

func newRelayServer(t *testing.T, ml *chain.MemoryLedger, netID string, fast float64, relayer common.Address) (*httptest.Server, *[6]string) {
	t.Helper()
	var gotSignals [6]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/status":
			fmt.Fprintf(w, `{"relayerAddress":"%s","netId":"%s","gasPrices":{"fast":%v}}`,
				relayer.Hex(), netID, fast)
		case "/relay":
			var req struct {
				Contract string `json:"contract"`
				Proof    struct {
					Proof         string    `json:"proof"`
					PublicSignals [6]string `json:"publicSignals"`
				} `json:"proof"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			gotSignals = req.Proof.PublicSignals
			tx := common.HexToHash("0xabcdefabcdefabcdefabcdefabcdefabcdefabcdefabcdefabcdefabcdefabcd")
			ml.Mine(tx)
			fmt.Fprintf(w, `{"txHash":"%s"}`, tx.Hex())
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &gotSignals
}

func TestWithdrawViaRelay(t *testing.T) {
	ml := chain.NewMemoryLedger("1")
	s, b := newTestSession(ml)
	ctx := context.Background()

	relayer := common.HexToAddress("0x3333333333333333333333333333333333333333")
	srv, gotSignals := newRelayServer(t, ml, "1", 5, relayer)

	noteStr, _, err := s.Deposit(ctx)
	require.NoError(t, err)

	tx, err := s.WithdrawViaRelay(ctx, noteStr, recipientHex, srv.URL)
	require.NoError(t, err)
	assert.NotEqual(t, common.Hash{}, tx)

	// fee = 5 gwei x 1,000,000 gas, relayer bound into the statement
	require.NotNil(t, b.last)
	wantFee, _ := new(big.Int).SetString("5000000000000000", 10)
	assert.Zero(t, wantFee.Cmp(b.last.Fee))
	assert.Equal(t, relayer, b.last.Relayer)

	// publicSignals[3] is the relayer address
	assert.Equal(t, "0x3333333333333333333333333333333333333333", gotSignals[3])
}

func TestWithdrawViaRelayNetworkMismatch(t *testing.T) {
	ml := chain.NewMemoryLedger("1")
	s, _ := newTestSession(ml)
	ctx := context.Background()

	relayer := common.HexToAddress("0x3333333333333333333333333333333333333333")
	srv, _ := newRelayServer(t, ml, "5", 5, relayer)

	noteStr, _, err := s.Deposit(ctx)
	require.NoError(t, err)

	_, err = s.WithdrawViaRelay(ctx, noteStr, recipientHex, srv.URL)
	assert.ErrorIs(t, err, relay.ErrNetworkMismatch)
}

func TestWithdrawViaRelayAgnosticRelay(t *testing.T) {
	ml := chain.NewMemoryLedger("42")
	s, _ := newTestSession(ml)
	ctx := context.Background()

	relayer := common.HexToAddress("0x3333333333333333333333333333333333333333")
	srv, _ := newRelayServer(t, ml, "*", 2, relayer)

	noteStr, _, err := s.Deposit(ctx)
	require.NoError(t, err)

	_, err = s.WithdrawViaRelay(ctx, noteStr, recipientHex, srv.URL)
	assert.NoError(t, err)
}

func TestConfirmationTimeoutIsNotFailure(t *testing.T) {
	ml := chain.NewMemoryLedger("1")
	ml.ReceiptDelay = 100 // stays pending past the attempt budget
	s, _ := newTestSession(ml)

	noteStr, tx, err := s.Deposit(context.Background())
	assert.ErrorIs(t, err, ErrConfirmationTimeout)
	// the note and tx hash are still returned: outcome unknown, not failed
	assert.NotEmpty(t, noteStr)
	assert.NotEqual(t, common.Hash{}, tx)
	assert.Contains(t, err.Error(), tx.Hex())
}

func TestAwaitReceiptCancellation(t *testing.T) {
	ml := chain.NewMemoryLedger("1")
	ml.ReceiptDelay = 100
	s, _ := newTestSession(ml)
	s.PollInterval = 50 * time.Millisecond
	s.PollAttempts = 1000

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, _, err := s.Deposit(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 5*time.Second)
}
