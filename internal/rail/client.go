package rail

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"launchpool/internal/model"
)

// transferTopic is the topic0 of the ERC-20 Transfer(address,address,uint256)
// event used by the wrapped reserve-currency token.
var transferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// Transfer is one inbound reserve-currency movement observed on the rail.
// Amounts are in token smallest units, which match the engine's 8-decimal
// fixed point.
type Transfer struct {
	TxHash      string
	LogIndex    uint64
	BlockNumber uint64
	From        common.Address
	To          common.Address
	Amount      uint64
}

// DedupKey is the reconciler's idempotency key for this transfer.
func (t Transfer) DedupKey() string {
	return fmt.Sprintf("%s:%d", t.TxHash, t.LogIndex)
}

// Client wraps the EVM RPC connection that serves as the external payment
// rail: deposits are token transfers into per-principal vault addresses, and
// withdrawals are token transfers signed with the vault key.
type Client struct {
	rpcClient *rpc.Client
	ethClient *ethclient.Client
	token     common.Address
	chainID   *big.Int
	vaultKey  *ecdsa.PrivateKey
}

// NewClient dials the rail RPC. vaultKeyHex may be empty, in which case
// withdrawals are unavailable but deposit scanning still works.
func NewClient(ctx context.Context, rpcURL string, token common.Address, vaultKeyHex string) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}
	ethClient := ethclient.NewClient(rpcClient)

	chainID, err := ethClient.ChainID(ctx)
	if err != nil {
		rpcClient.Close()
		return nil, fmt.Errorf("get chain id: %w", err)
	}

	var vaultKey *ecdsa.PrivateKey
	if vaultKeyHex != "" {
		vaultKey, err = crypto.HexToECDSA(vaultKeyHex)
		if err != nil {
			rpcClient.Close()
			return nil, fmt.Errorf("parse vault key: %w", err)
		}
	}

	return &Client{
		rpcClient: rpcClient,
		ethClient: ethClient,
		token:     token,
		chainID:   chainID,
		vaultKey:  vaultKey,
	}, nil
}

// Close closes the underlying RPC client.
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

// LatestBlockNumber returns the rail's current head.
func (c *Client) LatestBlockNumber(ctx context.Context) (uint64, error) {
	return c.ethClient.BlockNumber(ctx)
}

// ReserveTransfers returns all token Transfer events in the inclusive block
// range. Transfers whose value does not fit the engine's uint64 amounts are
// dropped by the caller-side decode, never clipped.
func (c *Client) ReserveTransfers(ctx context.Context, fromBlock, toBlock uint64) ([]Transfer, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: []common.Address{c.token},
		Topics:    [][]common.Hash{{transferTopic}},
	}

	logs, err := c.ethClient.FilterLogs(ctx, query)
	if err != nil {
		return nil, err
	}

	transfers := make([]Transfer, 0, len(logs))
	for _, log := range logs {
		transfer, ok := decodeTransfer(log)
		if !ok {
			continue
		}
		transfers = append(transfers, transfer)
	}
	return transfers, nil
}

func decodeTransfer(log types.Log) (Transfer, bool) {
	if log.Removed || len(log.Topics) != 3 || len(log.Data) != 32 {
		return Transfer{}, false
	}
	value := new(big.Int).SetBytes(log.Data)
	if !value.IsUint64() {
		return Transfer{}, false
	}
	return Transfer{
		TxHash:      log.TxHash.Hex(),
		LogIndex:    uint64(log.Index),
		BlockNumber: log.BlockNumber,
		From:        common.BytesToAddress(log.Topics[1].Bytes()[12:]),
		To:          common.BytesToAddress(log.Topics[2].Bytes()[12:]),
		Amount:      value.Uint64(),
	}, true
}

// SubmitTransfer signs and broadcasts a token transfer from the vault to the
// destination, returning the transaction hash as the transfer reference.
// Implements the engine's TransferSubmitter.
func (c *Client) SubmitTransfer(ctx context.Context, destination, assetID string, amount uint64) (string, error) {
	if assetID != model.ReserveAsset {
		return "", fmt.Errorf("asset %s is not withdrawable through the rail", assetID)
	}
	if c.vaultKey == nil {
		return "", fmt.Errorf("no vault key configured")
	}
	if !common.IsHexAddress(destination) {
		return "", fmt.Errorf("invalid destination address: %s", destination)
	}

	from := crypto.PubkeyToAddress(c.vaultKey.PublicKey)
	nonce, err := c.ethClient.PendingNonceAt(ctx, from)
	if err != nil {
		return "", fmt.Errorf("pending nonce: %w", err)
	}
	gasPrice, err := c.ethClient.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("suggest gas price: %w", err)
	}

	data := transferCalldata(common.HexToAddress(destination), amount)
	tx := types.NewTransaction(nonce, c.token, big.NewInt(0), 90_000, gasPrice, data)

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.vaultKey)
	if err != nil {
		return "", fmt.Errorf("sign transfer: %w", err)
	}
	if err := c.ethClient.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("send transfer: %w", err)
	}

	return signed.Hash().Hex(), nil
}

// transferCalldata encodes transfer(address,uint256).
func transferCalldata(to common.Address, amount uint64) []byte {
	selector := crypto.Keccak256([]byte("transfer(address,uint256)"))[:4]

	data := make([]byte, 0, 4+64)
	data = append(data, selector...)
	data = append(data, common.LeftPadBytes(to.Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(new(big.Int).SetUint64(amount).Bytes(), 32)...)
	return data
}
