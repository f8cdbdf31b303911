package relay

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusParsing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/status", r.URL.Path)
		_, _ = w.Write([]byte(`{
			"relayerAddress": "0x3333333333333333333333333333333333333333",
			"netId": "1",
			"gasPrices": {"fast": 5}
		}`))
	}))
	defer srv.Close()

	st, err := NewClient(srv.URL).Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0x3333333333333333333333333333333333333333"), st.RelayerAddress)
	assert.Equal(t, NetID("1"), st.NetID)
	assert.False(t, st.NetID.Agnostic())
	assert.Equal(t, 5.0, st.GasPrices.Fast)
}

func TestStatusNumericNetID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"relayerAddress":"0x3333333333333333333333333333333333333333","netId":5,"gasPrices":{"fast":1.5}}`))
	}))
	defer srv.Close()

	st, err := NewClient(srv.URL).Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, NetID("5"), st.NetID)
}

func TestStatusAgnosticNetID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"relayerAddress":"0x3333333333333333333333333333333333333333","netId":"*","gasPrices":{"fast":2}}`))
	}))
	defer srv.Close()

	st, err := NewClient(srv.URL).Status(context.Background())
	require.NoError(t, err)
	assert.True(t, st.NetID.Agnostic())
}

func TestStatusUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Status(context.Background())
	assert.ErrorIs(t, err, ErrRelayUnreachable)

	srv.Close()
	_, err = NewClient(srv.URL).Status(context.Background())
	assert.ErrorIs(t, err, ErrRelayUnreachable)
}

func TestRelayPostBody(t *testing.T) {
	contract := common.HexToAddress("0x4444444444444444444444444444444444444444")
	relayer := "0x3333333333333333333333333333333333333333"
	signals := [6]string{"0xr", "0xn", "0xto", relayer, "0xfee", "0x0"}

	var got relayRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/relay", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"txHash":"0xdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef"}`))
	}))
	defer srv.Close()

	tx, err := NewClient(srv.URL).Relay(context.Background(), contract, "0xproof", signals)
	require.NoError(t, err)
	assert.Equal(t, common.HexToHash("0xdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef"), tx)

	assert.Equal(t, contract.Hex(), got.Contract)
	assert.Equal(t, "0xproof", got.Proof.Proof)
	// publicSignals order is [root, nullifierHash, recipient, relayer, fee, refund]
	assert.Equal(t, relayer, got.Proof.PublicSignals[3])
}

func TestFeeFor(t *testing.T) {
	// 5 gwei fast price at the fixed 1,000,000 withdraw gas
	want, _ := new(big.Int).SetString("5000000000000000", 10)
	assert.Zero(t, want.Cmp(FeeFor(5)))

	assert.Zero(t, FeeFor(0).Sign())
}
