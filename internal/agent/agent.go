package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"trading-agent-ledger/internal/config"
	"trading-agent-ledger/internal/httpx"
	"trading-agent-ledger/internal/models"
	"trading-agent-ledger/internal/trace"

	"go.uber.org/zap"
)

// Request is the context handed to the agent for one decision.
type Request struct {
	AccountID string
	Prompt    string
}

// Decision is the agent's reply. Quote is set when the agent requested a swap.
type Decision struct {
	Content string
	Quote   *models.Quote
}

// Agent makes trading decisions.
type Agent interface {
	Decide(ctx context.Context, req Request) (*Decision, error)
}

// HTTPAgent calls a hosted agent over HTTP.
type HTTPAgent struct {
	http    *httpx.Client
	logger  *zap.Logger
	url     string
	apiKey  string
	agentID string
}

var _ Agent = (*HTTPAgent)(nil)

// NewHTTPAgent creates an agent client from cfg.
func NewHTTPAgent(cfg *config.Agent, logger *zap.Logger) (*HTTPAgent, error) {
	if cfg.URL == "" {
		return nil, errors.New("agent url is not configured")
	}
	l := logger.Named("agent")
	return &HTTPAgent{
		http:    httpx.New("", 0, 1, l),
		logger:  l,
		url:     cfg.URL,
		apiKey:  cfg.ApiKey,
		agentID: cfg.AgentID,
	}, nil
}

type chatRequest struct {
	AccountID string `json:"accountId"`
	Message   string `json:"message"`
	AgentID   string `json:"agentId"`
}

type toolResult struct {
	Result *struct {
		Data *struct {
			Data *struct {
				Quote *models.Quote `json:"quote"`
			} `json:"data"`
		} `json:"data"`
	} `json:"result"`
}

type chatResponse struct {
	Content     string       `json:"content"`
	ToolResults []toolResult `json:"toolResults"`
}

// Decide sends the prompt and extracts the first quote among the tool results.
func (a *HTTPAgent) Decide(ctx context.Context, req Request) (*Decision, error) {
	ctx, span := trace.StartSpan(ctx, "agent-decide")
	defer span.End()

	var resp chatResponse
	r := a.http.R().
		SetHeader("Content-Type", "application/json").
		SetBody(chatRequest{AccountID: req.AccountID, Message: req.Prompt, AgentID: a.agentID}).
		SetResult(&resp)
	if a.apiKey != "" {
		r.SetAuthToken(a.apiKey)
	}

	if _, err := a.http.Do(ctx, http.MethodPost, a.url, r); err != nil {
		return nil, fmt.Errorf("agent call failed: %w", err)
	}

	decision := &Decision{Content: resp.Content, Quote: findQuote(resp.ToolResults)}
	a.logger.Info("Agent responded",
		zap.String("account_id", req.AccountID),
		zap.Int("tool_results", len(resp.ToolResults)),
		zap.Bool("has_quote", decision.Quote != nil),
	)
	return decision, nil
}

func findQuote(results []toolResult) *models.Quote {
	for _, r := range results {
		if r.Result != nil && r.Result.Data != nil && r.Result.Data.Data != nil && r.Result.Data.Data.Quote != nil {
			return r.Result.Data.Data.Quote
		}
	}
	return nil
}

// Nop always holds. It is used when no agent is configured.
type Nop struct {
	logger *zap.Logger
}

var _ Agent = (*Nop)(nil)

func NewNop(logger *zap.Logger) *Nop {
	return &Nop{logger: logger.Named("agent")}
}

func (n *Nop) Decide(_ context.Context, req Request) (*Decision, error) {
	n.logger.Debug("Nop agent called, holding", zap.String("account_id", req.AccountID))
	return &Decision{Content: `{"action":"HOLD","reasoning":"no agent configured"}`}, nil
}
