package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openbanklink/banklink/pkg/config"
	"github.com/openbanklink/banklink/pkg/token"
)

func testProviderConfig(serverURL string) config.ProviderConfig {
	return config.ProviderConfig{
		ClientID:     "test-client-id",
		ClientSecret: "test-client-secret",
		RedirectURI:  "http://localhost:3000/callback",
		Environment:  "sandbox",
		Scope:        "accounts transactions",
		AuthBaseURL:  serverURL,
		APIBaseURL:   serverURL,
	}
}

func TestClient_AuthURL(t *testing.T) {
	client := NewClient(testProviderConfig("https://auth.example.com"))

	authURL := client.AuthURL("state-123")

	assert.Contains(t, authURL, "https://auth.example.com/?")
	assert.Contains(t, authURL, "client_id=test-client-id")
	assert.Contains(t, authURL, "response_type=code")
	assert.Contains(t, authURL, "redirect_uri=http%3A%2F%2Flocalhost%3A3000%2Fcallback")
	assert.Contains(t, authURL, "state=state-123")
}

func TestClient_EnvironmentBaseURLs(t *testing.T) {
	sandbox := NewClient(config.ProviderConfig{Environment: "sandbox"})
	assert.Equal(t, "https://auth.truelayer-sandbox.com", sandbox.authBaseURL())
	assert.Equal(t, "https://api.truelayer-sandbox.com", sandbox.apiBaseURL())

	production := NewClient(config.ProviderConfig{Environment: "production"})
	assert.Equal(t, "https://auth.truelayer.com", production.authBaseURL())
	assert.Equal(t, "https://api.truelayer.com", production.apiBaseURL())
}

func TestClient_ExchangeCode(t *testing.T) {
	var gotGrantType, gotCode string
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/connect/token", r.URL.Path)
		require.NoError(t, r.ParseForm())
		gotGrantType = r.PostFormValue("grant_type")
		gotCode = r.PostFormValue("code")

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at_1","refresh_token":"rt_1","expires_in":3600,"scope":"accounts","token_type":"Bearer"}`))
	}))
	defer mockServer.Close()

	client := NewClient(testProviderConfig(mockServer.URL))

	before := time.Now()
	bundle, err := client.ExchangeCode(context.Background(), "auth-code", "http://localhost:3000/callback")
	require.NoError(t, err)

	assert.Equal(t, "authorization_code", gotGrantType)
	assert.Equal(t, "auth-code", gotCode)
	assert.Equal(t, "at_1", bundle.AccessToken)
	assert.Equal(t, "rt_1", bundle.RefreshToken)
	// Expiry carries the 30 second safety margin.
	expected := before.Add(3600*time.Second - token.ExpirySafetyMargin)
	assert.WithinDuration(t, expected, bundle.ExpiresAt, 5*time.Second)
}

func TestClient_ExchangeCode_MissingConfig(t *testing.T) {
	client := NewClient(config.ProviderConfig{})

	_, err := client.ExchangeCode(context.Background(), "code", "uri")
	var configErr *config.ConfigError
	assert.ErrorAs(t, err, &configErr)
}

func TestClient_ExchangeCode_ProviderRejection(t *testing.T) {
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"authorization code expired"}`))
	}))
	defer mockServer.Close()

	client := NewClient(testProviderConfig(mockServer.URL))

	_, err := client.ExchangeCode(context.Background(), "stale-code", "uri")
	var exchangeErr *ExchangeError
	require.ErrorAs(t, err, &exchangeErr)
	assert.Contains(t, exchangeErr.Reason, "authorization code expired")
}

func TestClient_ExchangeCode_IncompleteResponse(t *testing.T) {
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at_1","expires_in":3600}`))
	}))
	defer mockServer.Close()

	client := NewClient(testProviderConfig(mockServer.URL))

	_, err := client.ExchangeCode(context.Background(), "code", "uri")
	var exchangeErr *ExchangeError
	assert.ErrorAs(t, err, &exchangeErr)
}

func TestClient_Refresh(t *testing.T) {
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostFormValue("grant_type"))
		assert.Equal(t, "rt_old", r.PostFormValue("refresh_token"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at_2","refresh_token":"rt_new","expires_in":3600}`))
	}))
	defer mockServer.Close()

	client := NewClient(testProviderConfig(mockServer.URL))

	bundle, err := client.Refresh(context.Background(), "rt_old")
	require.NoError(t, err)
	assert.Equal(t, "at_2", bundle.AccessToken)
	assert.Equal(t, "rt_new", bundle.RefreshToken)
}

func TestClient_Refresh_RetainsOldRefreshToken(t *testing.T) {
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at_2","expires_in":3600}`))
	}))
	defer mockServer.Close()

	client := NewClient(testProviderConfig(mockServer.URL))

	bundle, err := client.Refresh(context.Background(), "rt_old")
	require.NoError(t, err)
	assert.Equal(t, "rt_old", bundle.RefreshToken, "an unrotated refresh token must be retained")
}

func TestClient_Refresh_ProviderRejection(t *testing.T) {
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer mockServer.Close()

	client := NewClient(testProviderConfig(mockServer.URL))

	_, err := client.Refresh(context.Background(), "rt_revoked")
	var refreshErr *RefreshError
	require.ErrorAs(t, err, &refreshErr)
	assert.Contains(t, refreshErr.Reason, "invalid_grant")
}

func TestClient_Refresh_MissingConfig(t *testing.T) {
	client := NewClient(config.ProviderConfig{ClientID: "cid"})

	_, err := client.Refresh(context.Background(), "rt")
	var configErr *config.ConfigError
	assert.ErrorAs(t, err, &configErr)
}

func TestClient_Accounts(t *testing.T) {
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/data/v1/accounts", r.URL.Path)
		require.Equal(t, "Bearer at_1", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[{"account_id":"acc_1","display_name":"Current Account","account_type":"TRANSACTION","currency":"GBP"}]}`))
	}))
	defer mockServer.Close()

	client := NewClient(testProviderConfig(mockServer.URL))

	accounts, err := client.Accounts(context.Background(), "at_1")
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "acc_1", accounts[0].AccountID)
	assert.Equal(t, "GBP", accounts[0].Currency)
}

func TestClient_Accounts_Failure(t *testing.T) {
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid_token"}`))
	}))
	defer mockServer.Close()

	client := NewClient(testProviderConfig(mockServer.URL))

	_, err := client.Accounts(context.Background(), "bad-token")
	var syncErr *SyncError
	require.ErrorAs(t, err, &syncErr)
	assert.Equal(t, "accounts", syncErr.Stage)
	assert.Equal(t, http.StatusUnauthorized, syncErr.Status)
	assert.Equal(t, "invalid_token", syncErr.Reason)
}

func TestClient_Transactions_MissingResults(t *testing.T) {
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/data/v1/accounts/acc_1/transactions", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer mockServer.Close()

	client := NewClient(testProviderConfig(mockServer.URL))

	transactions, err := client.Transactions(context.Background(), "at_1", "acc_1")
	require.NoError(t, err)
	assert.Empty(t, transactions)
}
