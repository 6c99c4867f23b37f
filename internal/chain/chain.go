package chain

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"

	"trading-agent-ledger/internal/config"
	"trading-agent-ledger/internal/httpx"
	"trading-agent-ledger/internal/market"
	"trading-agent-ledger/internal/models"
	"trading-agent-ledger/internal/trace"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// transferGas is the gas attached to an mt_transfer call (30 TGas).
const transferGas = "30000000000000"

// Receipt identifies a submitted transfer.
type Receipt struct {
	TxHash    string `json:"txHash"`
	Simulated bool   `json:"simulated"`
}

// Client reads intents balances and executes swap deposits.
type Client interface {
	Balances(ctx context.Context, accountID string) ([]models.TokenBalance, error)
	GetBalance(ctx context.Context, accountID, assetID string) (*big.Int, error)
	Transfer(ctx context.Context, quote models.Quote) (*Receipt, error)
}

// RPCClient talks to a NEAR JSON-RPC node for views and to an external signer for transfers.
type RPCClient struct {
	http       *httpx.Client
	logger     *zap.Logger
	rpcURL     string
	contractID string
	signerURL  string
}

var _ Client = (*RPCClient)(nil)

// NewRPCClient creates a chain client from cfg.
func NewRPCClient(cfg *config.Chain, logger *zap.Logger) *RPCClient {
	l := logger.Named("chain")
	return &RPCClient{
		http:       httpx.New("", 0, 1, l),
		logger:     l,
		rpcURL:     cfg.RPCURL,
		contractID: cfg.ContractID,
		signerURL:  cfg.SignerURL,
	}
}

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      string      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

type callFunctionParams struct {
	RequestType string `json:"request_type"`
	Finality    string `json:"finality"`
	AccountID   string `json:"account_id"`
	MethodName  string `json:"method_name"`
	ArgsBase64  string `json:"args_base64"`
}

type rpcResponse struct {
	Result *struct {
		Raw   []int  `json:"result"`
		Error string `json:"error,omitempty"`
	} `json:"result"`
	Error *struct {
		Name    string `json:"name"`
		Message string `json:"message"`
	} `json:"error"`
}

// GetBalance returns the raw intents balance of assetID held by accountID.
func (c *RPCClient) GetBalance(ctx context.Context, accountID, assetID string) (*big.Int, error) {
	args, err := json.Marshal(map[string]string{"account_id": accountID, "token_id": assetID})
	if err != nil {
		return nil, err
	}

	var resp rpcResponse
	req := c.http.R().
		SetHeader("Content-Type", "application/json").
		SetBody(rpcRequest{
			JSONRPC: "2.0",
			ID:      "dontcare",
			Method:  "query",
			Params: callFunctionParams{
				RequestType: "call_function",
				Finality:    "final",
				AccountID:   c.contractID,
				MethodName:  "mt_balance_of",
				ArgsBase64:  base64.StdEncoding.EncodeToString(args),
			},
		}).
		SetResult(&resp)

	if _, err := c.http.Do(ctx, http.MethodPost, c.rpcURL, req); err != nil {
		return nil, fmt.Errorf("mt_balance_of %s: %w", assetID, err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("mt_balance_of %s: %s: %s", assetID, resp.Error.Name, resp.Error.Message)
	}
	if resp.Result == nil {
		return nil, fmt.Errorf("mt_balance_of %s: empty result", assetID)
	}
	if resp.Result.Error != "" {
		return nil, fmt.Errorf("mt_balance_of %s: %s", assetID, resp.Result.Error)
	}

	// The view result is the UTF-8 bytes of a JSON string holding the amount.
	raw := make([]byte, len(resp.Result.Raw))
	for i, b := range resp.Result.Raw {
		raw[i] = byte(b)
	}
	var amount string
	if err := json.Unmarshal(raw, &amount); err != nil {
		return nil, fmt.Errorf("mt_balance_of %s: decode result: %w", assetID, err)
	}
	balance, ok := new(big.Int).SetString(amount, 10)
	if !ok {
		return nil, fmt.Errorf("mt_balance_of %s: invalid amount %q", assetID, amount)
	}
	return balance, nil
}

// Balances returns every catalogued token the account holds. Tokens that fail
// to load are logged and skipped; zero balances are omitted.
func (c *RPCClient) Balances(ctx context.Context, accountID string) ([]models.TokenBalance, error) {
	ctx, span := trace.StartSpan(ctx, "chain-balances")
	defer span.End()

	var balances []models.TokenBalance
	for _, token := range market.TokenList {
		amount, err := c.GetBalance(ctx, accountID, token.AssetID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.logger.Warn("Failed to fetch balance", zap.String("asset_id", token.AssetID), zap.Error(err))
			continue
		}
		if amount.Sign() == 0 {
			continue
		}
		balances = append(balances, NewTokenBalance(token, amount))
	}
	return balances, nil
}

// NewTokenBalance formats a raw amount using the token's decimals.
func NewTokenBalance(token market.Token, amount *big.Int) models.TokenBalance {
	return models.TokenBalance{
		AssetID:   token.AssetID,
		Symbol:    token.Symbol,
		Balance:   amount.String(),
		Decimals:  token.Decimals,
		Formatted: decimal.NewFromBigInt(amount, -token.Decimals),
	}
}

type transferRequest struct {
	ReceiverID string       `json:"receiverId"`
	MethodName string       `json:"methodName"`
	Args       transferArgs `json:"args"`
	Gas        string       `json:"gas"`
	Deposit    string       `json:"deposit"`
}

type transferArgs struct {
	TokenID    string `json:"token_id"`
	ReceiverID string `json:"receiver_id"`
	Amount     string `json:"amount"`
}

// Transfer deposits the quote's input amount to its deposit address through the signer.
func (c *RPCClient) Transfer(ctx context.Context, quote models.Quote) (*Receipt, error) {
	if c.signerURL == "" {
		return nil, errors.New("signer url is not configured")
	}
	if quote.DepositAddress == "" || quote.AmountIn == "" {
		return nil, fmt.Errorf("quote is missing deposit address or amount")
	}

	ctx, span := trace.StartSpan(ctx, "chain-transfer")
	defer span.End()

	var receipt Receipt
	req := c.http.R().
		SetHeader("Content-Type", "application/json").
		SetBody(transferRequest{
			ReceiverID: c.contractID,
			MethodName: "mt_transfer",
			Args: transferArgs{
				TokenID:    quote.OriginAsset,
				ReceiverID: quote.DepositAddress,
				Amount:     quote.AmountIn,
			},
			Gas:     transferGas,
			Deposit: "1",
		}).
		SetResult(&receipt)

	// A replayed transfer could broadcast twice, so the signer is called once.
	if _, err := c.http.DoOnce(ctx, http.MethodPost, c.signerURL, req); err != nil {
		return nil, fmt.Errorf("transfer failed: %w", err)
	}
	if receipt.TxHash == "" {
		return nil, errors.New("transfer failed: signer returned no transaction hash")
	}

	c.logger.Info("Trade executed", zap.String("tx_hash", receipt.TxHash), zap.String("token_id", quote.OriginAsset))
	return &receipt, nil
}

// DryRun reads real balances but never moves funds.
type DryRun struct {
	Client
	logger *zap.Logger
}

var _ Client = (*DryRun)(nil)

// NewDryRun wraps reader so transfers are simulated.
func NewDryRun(reader Client, logger *zap.Logger) *DryRun {
	return &DryRun{Client: reader, logger: logger.Named("chain")}
}

func (d *DryRun) Transfer(_ context.Context, quote models.Quote) (*Receipt, error) {
	receipt := &Receipt{TxHash: "dry-run-" + uuid.NewString(), Simulated: true}
	d.logger.Info("Dry run, transfer simulated",
		zap.String("tx_hash", receipt.TxHash),
		zap.String("origin_asset", quote.OriginAsset),
		zap.String("destination_asset", quote.DestinationAsset),
		zap.String("amount_in", quote.AmountIn),
	)
	return receipt, nil
}
