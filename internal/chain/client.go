package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/bensig/golibre/pkg/logger"
)

var log = logger.WithField("component", "chain")

// Client talks to a Libre chain API node. Table reads go over HTTP; signed
// transactions go through the cleos binary, which owns the wallet and keys.
type Client struct {
	api      *resty.Client
	apiURL   string
	cleosBin string
}

// Option configures a Client.
type Option func(*Client)

// WithCleosBin overrides the signing CLI binary.
func WithCleosBin(bin string) Option {
	return func(c *Client) {
		if bin != "" {
			c.cleosBin = bin
		}
	}
}

// WithTimeout overrides the HTTP timeout (default 10s).
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.api.SetTimeout(d) }
}

// NewClient creates a chain client for one API node.
func NewClient(apiURL string, opts ...Option) *Client {
	apiURL = strings.TrimSuffix(apiURL, "/")
	api := resty.New().
		SetBaseURL(apiURL).
		SetTimeout(10 * time.Second).
		SetHeader("Content-Type", "application/json")

	c := &Client{
		api:      api,
		apiURL:   apiURL,
		cleosBin: "cleos",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetTableRows fetches a single page of rows.
func (c *Client) GetTableRows(ctx context.Context, q TableQuery) (*TableRowsResult, error) {
	q.JSON = true
	if q.Limit <= 0 {
		q.Limit = 100
	}
	var result TableRowsResult
	resp, err := c.api.R().
		SetContext(ctx).
		SetBody(q).
		SetResult(&result).
		Post("/v1/chain/get_table_rows")
	if err != nil {
		return nil, errors.Wrapf(ErrUnavailable, "get_table_rows %s/%s: %v", q.Code, q.Table, err)
	}
	if resp.IsError() {
		return nil, errors.Wrapf(ErrUnavailable, "get_table_rows %s/%s: status %d: %s",
			q.Code, q.Table, resp.StatusCode(), resp.String())
	}
	return &result, nil
}

// GetTable fetches all rows of a table by paginating with more/next_key,
// following the node's paging contract (max 1000 rows per request).
func (c *Client) GetTable(ctx context.Context, q TableQuery) ([]json.RawMessage, error) {
	q.Limit = 1000
	var all []json.RawMessage
	for {
		page, err := c.GetTableRows(ctx, q)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Rows...)
		if !page.More || page.NextKey == "" {
			return all, nil
		}
		q.LowerBound = page.NextKey
	}
}

// GetCurrencyBalance fetches token balances, e.g. ["12.34567890 BTC"].
func (c *Client) GetCurrencyBalance(ctx context.Context, contract, account, symbol string) ([]string, error) {
	var balances []string
	resp, err := c.api.R().
		SetContext(ctx).
		SetBody(map[string]string{"code": contract, "account": account, "symbol": symbol}).
		SetResult(&balances).
		Post("/v1/chain/get_currency_balance")
	if err != nil {
		return nil, errors.Wrapf(ErrUnavailable, "get_currency_balance %s: %v", account, err)
	}
	if resp.IsError() {
		return nil, errors.Wrapf(ErrUnavailable, "get_currency_balance %s: status %d", account, resp.StatusCode())
	}
	return balances, nil
}

// SubmitTransaction pushes one action signed as actor@active. It returns the
// transaction id on acceptance. A chain-side rejection comes back as
// *RejectionError with the assertion message; anything else wraps
// ErrUnavailable so callers can retry.
func (c *Client) SubmitTransaction(ctx context.Context, action Action, actor string) (string, error) {
	data, err := json.Marshal(action.Data)
	if err != nil {
		return "", fmt.Errorf("marshal action data: %w", err)
	}

	args := []string{
		"-u", c.apiURL,
		"push", "action", action.Contract, action.Name, string(data),
		"-p", actor + "@active",
		"--json",
		"-x", "60",
	}
	log.WithFields(logrus.Fields{
		"contract": action.Contract,
		"action":   action.Name,
		"actor":    actor,
	}).Debug("submitting transaction")

	cmd := exec.CommandContext(ctx, c.cleosBin, args...)
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			combined := string(out) + string(exitErr.Stderr)
			if msg, ok := extractRejection(combined); ok {
				return "", &RejectionError{Message: msg}
			}
			return "", errors.Wrapf(ErrUnavailable, "push action %s::%s: %s",
				action.Contract, action.Name, strings.TrimSpace(combined))
		}
		return "", errors.Wrapf(ErrUnavailable, "push action %s::%s: %v", action.Contract, action.Name, err)
	}

	var resp pushResponse
	if err := json.Unmarshal(out, &resp); err != nil {
		// Accepted but unparseable output: the transaction went through,
		// we just cannot report its id.
		log.Warnf("transaction accepted but output unparseable: %v", err)
		return "", nil
	}
	return resp.TransactionID, nil
}

// UnlockWallet opens and unlocks a cleos wallet from its password file.
func (c *Client) UnlockWallet(ctx context.Context, walletName, passwordFile string) error {
	password, err := os.ReadFile(passwordFile)
	if err != nil {
		return fmt.Errorf("read wallet password file %s: %w", passwordFile, err)
	}

	open := exec.CommandContext(ctx, c.cleosBin, "wallet", "open", "-n", walletName)
	if out, err := open.CombinedOutput(); err != nil {
		// "Already open" is fine; anything else is not.
		if !strings.Contains(string(out), "Already") {
			return fmt.Errorf("open wallet %s: %s", walletName, strings.TrimSpace(string(out)))
		}
	}

	unlock := exec.CommandContext(ctx, c.cleosBin, "wallet", "unlock",
		"-n", walletName, "--password", strings.TrimSpace(string(password)))
	if out, err := unlock.CombinedOutput(); err != nil {
		if strings.Contains(string(out), "Already unlocked") {
			return nil
		}
		return fmt.Errorf("unlock wallet %s: %s", walletName, strings.TrimSpace(string(out)))
	}
	return nil
}

// extractRejection digs the human-readable assertion message out of a cleos
// error dump. Falls back to the exception message, then error details.
func extractRejection(raw string) (string, bool) {
	start := strings.Index(raw, "{")
	if start < 0 {
		return "", false
	}
	var er errorResponse
	if err := json.Unmarshal([]byte(raw[start:]), &er); err != nil {
		return "", false
	}
	for _, trace := range er.Processed.ActionTraces {
		for _, item := range trace.Except.Stack {
			if item.Data.S != "" {
				return item.Data.S, true
			}
		}
		if trace.Except.Message != "" {
			return trace.Except.Message, true
		}
	}
	for _, d := range er.Error.Details {
		if d.Message != "" {
			return d.Message, true
		}
	}
	return "", false
}
