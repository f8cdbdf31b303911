package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Minimal ABI surface of the pool contract: the deposit log plus the view
// and submit methods the engine needs.
const poolABI = `[
  {"type":"event","name":"Deposit","inputs":[
    {"name":"commitment","type":"bytes32","indexed":true},
    {"name":"leafIndex","type":"uint32","indexed":false},
    {"name":"timestamp","type":"uint256","indexed":false}]},
  {"type":"function","name":"isKnownRoot","stateMutability":"view",
    "inputs":[{"name":"root","type":"bytes32"}],
    "outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"isSpent","stateMutability":"view",
    "inputs":[{"name":"nullifierHash","type":"bytes32"}],
    "outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"deposit","stateMutability":"payable",
    "inputs":[{"name":"commitment","type":"bytes32"}],"outputs":[]},
  {"type":"function","name":"withdraw","stateMutability":"payable","inputs":[
    {"name":"proof","type":"bytes"},
    {"name":"root","type":"bytes32"},
    {"name":"nullifierHash","type":"bytes32"},
    {"name":"recipient","type":"address"},
    {"name":"relayer","type":"address"},
    {"name":"fee","type":"uint256"},
    {"name":"refund","type":"uint256"}],"outputs":[]}
]`

const (
	depositGasLimit  = 1_200_000
	withdrawGasLimit = 1_000_000
)

// EthLedger talks to the pool contract over JSON-RPC.
type EthLedger struct {
	client   *ethclient.Client
	contract common.Address
	abi      abi.ABI
	key      *ecdsa.PrivateKey
	sender   common.Address
	chainID  *big.Int
}

// NewEthLedger dials rpcURL and binds the pool contract. keyHex may be
// empty for read-only use; submits then fail.
func NewEthLedger(ctx context.Context, rpcURL string, contract common.Address, keyHex string) (*EthLedger, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrLedgerCallFailed, rpcURL, err)
	}
	parsed, err := abi.JSON(strings.NewReader(poolABI))
	if err != nil {
		return nil, fmt.Errorf("parse pool abi: %w", err)
	}
	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: chain id: %v", ErrLedgerCallFailed, err)
	}
	l := &EthLedger{client: client, contract: contract, abi: parsed, chainID: chainID}
	if keyHex != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(keyHex, "0x"))
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		l.key = key
		l.sender = crypto.PubkeyToAddress(key.PublicKey)
	}
	return l, nil
}

// Close releases the underlying RPC connection.
func (l *EthLedger) Close() { l.client.Close() }

func (l *EthLedger) DepositLeaves(ctx context.Context, fromBlock uint64) ([]Leaf, error) {
	q := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		Addresses: []common.Address{l.contract},
		Topics:    [][]common.Hash{{l.abi.Events["Deposit"].ID}},
	}
	logs, err := l.client.FilterLogs(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("%w: filter deposit logs: %v", ErrLedgerCallFailed, err)
	}
	leaves := make([]Leaf, 0, len(logs))
	for _, lg := range logs {
		if len(lg.Topics) < 2 {
			return nil, fmt.Errorf("%w: deposit log without commitment topic", ErrLedgerCallFailed)
		}
		vals, err := l.abi.Unpack("Deposit", lg.Data)
		if err != nil {
			return nil, fmt.Errorf("%w: unpack deposit log: %v", ErrLedgerCallFailed, err)
		}
		var commitment fr.Element
		commitment.SetBytes(lg.Topics[1].Bytes())
		leaves = append(leaves, Leaf{Index: vals[0].(uint32), Commitment: commitment})
	}
	return leaves, nil
}

func (l *EthLedger) IsKnownRoot(ctx context.Context, root [32]byte) (bool, error) {
	return l.viewBool(ctx, "isKnownRoot", root)
}

func (l *EthLedger) IsSpent(ctx context.Context, nullifierHash [32]byte) (bool, error) {
	return l.viewBool(ctx, "isSpent", nullifierHash)
}

func (l *EthLedger) viewBool(ctx context.Context, method string, arg [32]byte) (bool, error) {
	data, err := l.abi.Pack(method, arg)
	if err != nil {
		return false, fmt.Errorf("pack %s: %w", method, err)
	}
	out, err := l.client.CallContract(ctx, ethereum.CallMsg{To: &l.contract, Data: data}, nil)
	if err != nil {
		return false, fmt.Errorf("%w: call %s: %v", ErrLedgerCallFailed, method, err)
	}
	vals, err := l.abi.Unpack(method, out)
	if err != nil {
		return false, fmt.Errorf("%w: unpack %s: %v", ErrLedgerCallFailed, method, err)
	}
	return vals[0].(bool), nil
}

func (l *EthLedger) SubmitDeposit(ctx context.Context, commitment [32]byte, value *big.Int) (common.Hash, error) {
	data, err := l.abi.Pack("deposit", commitment)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pack deposit: %w", err)
	}
	return l.submit(ctx, data, value, depositGasLimit)
}

func (l *EthLedger) SubmitWithdraw(ctx context.Context, call *WithdrawCall) (common.Hash, error) {
	proof := make([]byte, 0, 8*32)
	for _, p := range call.Proof {
		var word [32]byte
		p.FillBytes(word[:])
		proof = append(proof, word[:]...)
	}
	data, err := l.abi.Pack("withdraw",
		proof, call.Root, call.NullifierHash,
		call.Recipient, call.Relayer, call.Fee, call.Refund)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pack withdraw: %w", err)
	}
	return l.submit(ctx, data, call.Refund, withdrawGasLimit)
}

func (l *EthLedger) submit(ctx context.Context, data []byte, value *big.Int, gasLimit uint64) (common.Hash, error) {
	if l.key == nil {
		return common.Hash{}, errors.New("ledger opened read-only: no private key")
	}
	nonce, err := l.client.PendingNonceAt(ctx, l.sender)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: nonce: %v", ErrLedgerCallFailed, err)
	}
	gasPrice, err := l.client.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: gas price: %v", ErrLedgerCallFailed, err)
	}
	tx := types.NewTransaction(nonce, l.contract, value, gasLimit, gasPrice, data)
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(l.chainID), l.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign tx: %w", err)
	}
	if err := l.client.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("%w: send tx: %v", ErrLedgerCallFailed, err)
	}
	return signed.Hash(), nil
}

func (l *EthLedger) TxReceipt(ctx context.Context, tx common.Hash) (*Receipt, error) {
	r, err := l.client.TransactionReceipt(ctx, tx)
	if errors.Is(err, ethereum.NotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: receipt %s: %v", ErrLedgerCallFailed, tx.Hex(), err)
	}
	return &Receipt{TxHash: tx, BlockNumber: r.BlockNumber.Uint64()}, nil
}

func (l *EthLedger) NetworkID(ctx context.Context) (string, error) {
	id, err := l.client.NetworkID(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: network id: %v", ErrLedgerCallFailed, err)
	}
	return id.String(), nil
}
