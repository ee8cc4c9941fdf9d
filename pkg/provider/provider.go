// Package provider is the HTTP client half of the open-banking OAuth flow:
// the token endpoint (code exchange, refresh) and the Bearer-authenticated
// data endpoints (accounts, transactions).
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/openbanklink/banklink/pkg/config"
	"github.com/openbanklink/banklink/pkg/token"
)

// Environment base URLs. Tests override them through the config fields.
const (
	sandboxAuthBaseURL    = "https://auth.truelayer-sandbox.com"
	sandboxAPIBaseURL     = "https://api.truelayer-sandbox.com"
	productionAuthBaseURL = "https://auth.truelayer.com"
	productionAPIBaseURL  = "https://api.truelayer.com"
)

// Account is the provider's account record, passed through untransformed.
type Account struct {
	AccountID   string          `json:"account_id"`
	DisplayName string          `json:"display_name"`
	AccountType string          `json:"account_type"`
	Currency    string          `json:"currency"`
	Balance     json.RawMessage `json:"balance,omitempty"`
}

// Transaction is one raw transaction record as the provider reports it.
// Identifier fields may be absent depending on the upstream bank.
type Transaction struct {
	TransactionID           string  `json:"transaction_id"`
	NormalisedProviderTxnID string  `json:"normalised_provider_transaction_id"`
	Timestamp               string  `json:"timestamp"`
	Amount                  float64 `json:"amount"`
	Currency                string  `json:"currency"`
	Description             string  `json:"description"`
	MerchantName            string  `json:"merchant_name"`
	TransactionCategory     string  `json:"transaction_category"`
}

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	ExpiresIn        int64  `json:"expires_in"`
	Scope            string `json:"scope"`
	TokenType        string `json:"token_type"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

type resultsResponse[T any] struct {
	Results []T    `json:"results"`
	Error   string `json:"error"`
}

// Client talks to one provider environment on behalf of one configured
// relying party.
type Client struct {
	cfg    config.ProviderConfig
	client *http.Client
}

// NewClient creates a provider client. Timeouts and cancellation beyond the
// 30 second client timeout are the caller's business via ctx.
func NewClient(cfg config.ProviderConfig) *Client {
	return &Client{
		cfg: cfg,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) authBaseURL() string {
	if c.cfg.AuthBaseURL != "" {
		return strings.TrimSuffix(c.cfg.AuthBaseURL, "/")
	}
	if c.cfg.Environment == "production" {
		return productionAuthBaseURL
	}
	return sandboxAuthBaseURL
}

func (c *Client) apiBaseURL() string {
	if c.cfg.APIBaseURL != "" {
		return strings.TrimSuffix(c.cfg.APIBaseURL, "/")
	}
	if c.cfg.Environment == "production" {
		return productionAPIBaseURL
	}
	return sandboxAPIBaseURL
}

func (c *Client) checkCredentials() error {
	if c.cfg.ClientID == "" {
		return &config.ConfigError{Field: "provider.client_id"}
	}
	if c.cfg.ClientSecret == "" {
		return &config.ConfigError{Field: "provider.client_secret"}
	}
	return nil
}

// AuthURL builds the authorization URL the user is redirected to, carrying
// the one-time CSRF state.
func (c *Client) AuthURL(state string) string {
	params := url.Values{
		"response_type": {"code"},
		"client_id":     {c.cfg.ClientID},
		"redirect_uri":  {c.cfg.RedirectURI},
		"scope":         {c.cfg.Scope},
		"state":         {state},
	}
	return fmt.Sprintf("%s/?%s", c.authBaseURL(), params.Encode())
}

// ExchangeCode performs the authorization-code grant and returns a fresh
// bundle. The expiry is stored with a safety margin so refresh happens
// before the provider's stated deadline.
func (c *Client) ExchangeCode(ctx context.Context, code, redirectURI string) (*token.Bundle, error) {
	if err := c.checkCredentials(); err != nil {
		return nil, err
	}

	params := url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {c.cfg.ClientID},
		"client_secret": {c.cfg.ClientSecret},
		"redirect_uri":  {redirectURI},
		"code":          {code},
	}

	resp, err := c.postToken(ctx, params)
	if err != nil {
		return nil, &ExchangeError{Reason: err.Error()}
	}

	if resp.AccessToken == "" || resp.RefreshToken == "" || resp.ExpiresIn == 0 {
		return nil, &ExchangeError{Reason: "provider response missing access_token, refresh_token or expires_in"}
	}

	return &token.Bundle{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(resp.ExpiresIn)*time.Second - token.ExpirySafetyMargin),
		Scope:        resp.Scope,
		TokenType:    resp.TokenType,
	}, nil
}

// Refresh performs the refresh grant. When the provider does not rotate the
// refresh token, the previous one is carried into the new bundle.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*token.Bundle, error) {
	if err := c.checkCredentials(); err != nil {
		return nil, err
	}

	params := url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {c.cfg.ClientID},
		"client_secret": {c.cfg.ClientSecret},
		"refresh_token": {refreshToken},
	}

	resp, err := c.postToken(ctx, params)
	if err != nil {
		return nil, &RefreshError{Reason: err.Error()}
	}

	if resp.AccessToken == "" || resp.ExpiresIn == 0 {
		return nil, &RefreshError{Reason: "provider response missing access_token or expires_in"}
	}

	newRefreshToken := resp.RefreshToken
	if newRefreshToken == "" {
		newRefreshToken = refreshToken
	}

	return &token.Bundle{
		AccessToken:  resp.AccessToken,
		RefreshToken: newRefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(resp.ExpiresIn)*time.Second - token.ExpirySafetyMargin),
		Scope:        resp.Scope,
		TokenType:    resp.TokenType,
	}, nil
}

func (c *Client) postToken(ctx context.Context, params url.Values) (*tokenResponse, error) {
	tokenURL := c.authBaseURL() + "/connect/token"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(params.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	httpResp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = httpResp.Body.Close()
	}()

	var resp tokenResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		if httpResp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("provider returned status %d", httpResp.StatusCode)
		}
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		reason := resp.ErrorDescription
		if reason == "" {
			reason = resp.Error
		}
		if reason == "" {
			reason = fmt.Sprintf("provider returned status %d", httpResp.StatusCode)
		}
		return nil, fmt.Errorf("%s", reason)
	}

	return &resp, nil
}

// Accounts fetches the linked accounts. A failure here is fatal to the
// whole synchronization call.
func (c *Client) Accounts(ctx context.Context, accessToken string) ([]Account, error) {
	return fetchResults[Account](ctx, c, accessToken, c.apiBaseURL()+"/data/v1/accounts", "accounts")
}

// Transactions fetches one account's transactions.
func (c *Client) Transactions(ctx context.Context, accessToken, accountID string) ([]Transaction, error) {
	endpoint := fmt.Sprintf("%s/data/v1/accounts/%s/transactions", c.apiBaseURL(), url.PathEscape(accountID))
	return fetchResults[Transaction](ctx, c, accessToken, endpoint, "transactions")
}

func fetchResults[T any](ctx context.Context, c *Client, accessToken, endpoint, stage string) ([]T, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &SyncError{Stage: stage, Reason: err.Error()}
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	httpResp, err := c.client.Do(req)
	if err != nil {
		return nil, &SyncError{Stage: stage, Reason: err.Error()}
	}
	defer func() {
		_ = httpResp.Body.Close()
	}()

	var resp resultsResponse[T]
	decodeErr := json.NewDecoder(httpResp.Body).Decode(&resp)

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		reason := resp.Error
		if reason == "" {
			reason = http.StatusText(httpResp.StatusCode)
		}
		return nil, &SyncError{Stage: stage, Status: httpResp.StatusCode, Reason: reason}
	}

	if decodeErr != nil {
		return nil, &SyncError{Stage: stage, Status: httpResp.StatusCode, Reason: decodeErr.Error()}
	}

	// An absent or null results array means no data, not an error.
	if resp.Results == nil {
		return []T{}, nil
	}
	return resp.Results, nil
}
