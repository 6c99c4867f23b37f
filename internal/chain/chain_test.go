package chain

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"trading-agent-ledger/internal/config"
	"trading-agent-ledger/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	solAssetID  = "nep141:sol.omft.near"
	usdcAssetID = "nep141:17208628f84f5d6ad33f0da3bbbeb27ffcb398eac501a31bd6ad2011e36133a1"
	btcAssetID  = "nep141:btc.omft.near"
)

// viewResult encodes amount the way the RPC node returns a view call result.
func viewResult(amount string) []int {
	raw, _ := json.Marshal(amount)
	out := make([]int, len(raw))
	for i, b := range raw {
		out[i] = int(b)
	}
	return out
}

// setupRPC starts a fake RPC node serving balances keyed by token id.
func setupRPC(t *testing.T, balances map[string]string, failing map[string]bool) *RPCClient {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string `json:"method"`
			Params struct {
				RequestType string `json:"request_type"`
				AccountID   string `json:"account_id"`
				MethodName  string `json:"method_name"`
				ArgsBase64  string `json:"args_base64"`
			} `json:"params"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "query", req.Method)
		assert.Equal(t, "call_function", req.Params.RequestType)
		assert.Equal(t, "intents.near", req.Params.AccountID)
		assert.Equal(t, "mt_balance_of", req.Params.MethodName)

		argsJSON, err := base64.StdEncoding.DecodeString(req.Params.ArgsBase64)
		require.NoError(t, err)
		var args map[string]string
		require.NoError(t, json.Unmarshal(argsJSON, &args))
		assert.Equal(t, "agent.near", args["account_id"])

		w.Header().Set("Content-Type", "application/json")
		if failing[args["token_id"]] {
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"error": map[string]string{"name": "HANDLER_ERROR", "message": "unknown token"},
			})
			return
		}
		amount, ok := balances[args["token_id"]]
		if !ok {
			amount = "0"
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"result": map[string]interface{}{"result": viewResult(amount)},
		})
	}))
	t.Cleanup(server.Close)

	c := NewRPCClient(&config.Chain{RPCURL: server.URL, ContractID: "intents.near"}, zap.NewNop())
	c.http.WithBackoff(time.Millisecond)
	return c
}

func TestRPCClient_GetBalance(t *testing.T) {
	c := setupRPC(t, map[string]string{solAssetID: "123456789012345678901234567890"}, nil)

	balance, err := c.GetBalance(context.Background(), "agent.near", solAssetID)

	require.NoError(t, err)
	want, _ := new(big.Int).SetString("123456789012345678901234567890", 10)
	assert.Equal(t, 0, want.Cmp(balance))
}

func TestRPCClient_GetBalanceRPCError(t *testing.T) {
	c := setupRPC(t, nil, map[string]bool{btcAssetID: true})

	_, err := c.GetBalance(context.Background(), "agent.near", btcAssetID)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "HANDLER_ERROR")
}

func TestRPCClient_Balances(t *testing.T) {
	// Arrange
	c := setupRPC(t,
		map[string]string{solAssetID: "5000000000", usdcAssetID: "250000000"},
		map[string]bool{btcAssetID: true},
	)

	// Act
	balances, err := c.Balances(context.Background(), "agent.near")

	// Assert
	require.NoError(t, err)
	require.Len(t, balances, 2)
	bySymbol := map[string]models.TokenBalance{}
	for _, b := range balances {
		bySymbol[b.Symbol] = b
	}
	assert.Equal(t, "5000000000", bySymbol["SOL"].Balance)
	assert.Equal(t, "5", bySymbol["SOL"].Formatted.String())
	assert.Equal(t, "250", bySymbol["USDC"].Formatted.String())
	assert.Equal(t, int32(6), bySymbol["USDC"].Decimals)
}

func TestRPCClient_Transfer(t *testing.T) {
	// Arrange
	signer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body transferRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "intents.near", body.ReceiverID)
		assert.Equal(t, "mt_transfer", body.MethodName)
		assert.Equal(t, usdcAssetID, body.Args.TokenID)
		assert.Equal(t, "deposit.near", body.Args.ReceiverID)
		assert.Equal(t, "10000000", body.Args.Amount)
		assert.Equal(t, "1", body.Deposit)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"txHash":"8xYz"}`))
	}))
	defer signer.Close()
	c := NewRPCClient(&config.Chain{ContractID: "intents.near", SignerURL: signer.URL}, zap.NewNop())

	// Act
	receipt, err := c.Transfer(context.Background(), models.Quote{
		OriginAsset:    usdcAssetID,
		AmountIn:       "10000000",
		DepositAddress: "deposit.near",
	})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "8xYz", receipt.TxHash)
	assert.False(t, receipt.Simulated)
}

func TestRPCClient_TransferIsNotRetried(t *testing.T) {
	// Arrange
	var posts int32
	signer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&posts, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"txHash":"abc"}`))
	}))
	defer signer.Close()
	c := NewRPCClient(&config.Chain{ContractID: "intents.near", SignerURL: signer.URL}, zap.NewNop())
	c.http.WithBackoff(time.Millisecond)

	// Act
	receipt, err := c.Transfer(context.Background(), models.Quote{
		OriginAsset:    usdcAssetID,
		AmountIn:       "10000000",
		DepositAddress: "deposit.near",
	})

	// Assert
	require.Error(t, err)
	assert.Nil(t, receipt)
	assert.Equal(t, int32(1), atomic.LoadInt32(&posts))
}

func TestRPCClient_TransferRequiresSigner(t *testing.T) {
	c := NewRPCClient(&config.Chain{ContractID: "intents.near"}, zap.NewNop())

	_, err := c.Transfer(context.Background(), models.Quote{AmountIn: "1", DepositAddress: "x"})

	assert.Error(t, err)
}

func TestDryRun_Transfer(t *testing.T) {
	c := NewDryRun(NewRPCClient(&config.Chain{}, zap.NewNop()), zap.NewNop())

	receipt, err := c.Transfer(context.Background(), models.Quote{OriginAsset: usdcAssetID, AmountIn: "1"})

	require.NoError(t, err)
	assert.True(t, receipt.Simulated)
	assert.True(t, strings.HasPrefix(receipt.TxHash, "dry-run-"))
}
