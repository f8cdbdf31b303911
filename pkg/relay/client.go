// Package relay implements the HTTP protocol of withdrawal relays: a
// status probe quoting the relayer address, network id and gas prices,
// and a relay endpoint that submits the withdrawal on the user's behalf.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// WithdrawGas is the fixed gas cost a relayed withdrawal is billed at.
const WithdrawGas = 1_000_000

var (
	ErrRelayUnreachable = errors.New("relay: unreachable")
	// ErrNetworkMismatch: the relay serves a different network than the
	// connected ledger. Fatal for that relay.
	ErrNetworkMismatch = errors.New("relay: network id mismatch")
)

// NetID is the relay's network id. Some relays quote it as a JSON number,
// some as a string; "*" declares the relay network-agnostic.
type NetID string

func (n *NetID) UnmarshalJSON(b []byte) error {
	*n = NetID(strings.Trim(string(b), `"`))
	return nil
}

func (n NetID) Agnostic() bool { return n == "*" }

type GasPrices struct {
	Fast float64 `json:"fast"`
}

type Status struct {
	RelayerAddress common.Address `json:"relayerAddress"`
	NetID          NetID          `json:"netId"`
	GasPrices      GasPrices      `json:"gasPrices"`
}

type Client struct {
	baseURL string
	hc      *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		hc:      &http.Client{Timeout: 30 * time.Second},
	}
}

// Status fetches the relay's quote.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/status", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRelayUnreachable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status endpoint returned %s", ErrRelayUnreachable, resp.Status)
	}
	var st Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return nil, fmt.Errorf("%w: decode status: %v", ErrRelayUnreachable, err)
	}
	return &st, nil
}

type relayProof struct {
	Proof         string    `json:"proof"`
	PublicSignals [6]string `json:"publicSignals"`
}

type relayRequest struct {
	Contract string     `json:"contract"`
	Proof    relayProof `json:"proof"`
}

// Relay posts the proof and public signals and returns the transaction
// hash the relay claims to have submitted.
func (c *Client) Relay(ctx context.Context, contract common.Address, proofHex string, signals [6]string) (common.Hash, error) {
	body, err := json.Marshal(relayRequest{
		Contract: contract.Hex(),
		Proof:    relayProof{Proof: proofHex, PublicSignals: signals},
	})
	if err != nil {
		return common.Hash{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/relay", bytes.NewReader(body))
	if err != nil {
		return common.Hash{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.hc.Do(req)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: %v", ErrRelayUnreachable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return common.Hash{}, fmt.Errorf("%w: relay endpoint returned %s", ErrRelayUnreachable, resp.Status)
	}
	var out struct {
		TxHash string `json:"txHash"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return common.Hash{}, fmt.Errorf("%w: decode relay response: %v", ErrRelayUnreachable, err)
	}
	if out.TxHash == "" {
		return common.Hash{}, fmt.Errorf("%w: relay returned no tx hash", ErrRelayUnreachable)
	}
	return common.HexToHash(out.TxHash), nil
}

// FeeFor converts the quoted fast gas price (gwei) into the relay fee in
// wei at the fixed withdrawal gas cost.
func FeeFor(fastGwei float64) *big.Int {
	wei := new(big.Float).Mul(big.NewFloat(fastGwei), big.NewFloat(1e9))
	fee, _ := wei.Int(nil)
	return fee.Mul(fee, big.NewInt(WithdrawGas))
}
