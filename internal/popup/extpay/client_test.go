package extpay

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/extension/clipsmart-ext/api/new-key", r.URL.Path)

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.JSONEq(t, `{"development":true}`, string(body))

		_ = json.NewEncoder(w).Encode("key-123")
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "clipsmart-ext")
	key, err := c.CreateKey(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, "key-123", key)
}

func TestCreateKey_ProductionBodyIsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.JSONEq(t, `{}`, string(body))
		_ = json.NewEncoder(w).Encode("key-456")
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "clipsmart-ext")
	key, err := c.CreateKey(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "key-456", key)
}

func TestFetchUser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/extension/clipsmart-ext/api/v2/user", r.URL.Path)
		assert.Equal(t, "key-123", r.URL.Query().Get("api_key"))
		_, _ = w.Write([]byte(`{"paid":true,"paidAt":"2026-05-01T10:00:00.000Z","plan":"monthly"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "clipsmart-ext")
	user, raw, err := c.FetchUser(context.Background(), "key-123")
	require.NoError(t, err)

	assert.True(t, user.Paid)
	require.NotNil(t, user.PaidAt)
	assert.Equal(t, 2026, user.PaidAt.Year())
	assert.Contains(t, string(raw), `"plan":"monthly"`)
}

func TestFetchUser_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such key", http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "clipsmart-ext")
	_, _, err := c.FetchUser(context.Background(), "bad-key")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestPlans(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/extension/clipsmart-ext/api/v2/current-plans", r.URL.Path)
		_, _ = w.Write([]byte(`[{"nickname":"monthly","price":299}]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "clipsmart-ext")
	raw, err := c.Plans(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `[{"nickname":"monthly","price":299}]`, string(raw))
}

func TestPageURLs(t *testing.T) {
	c := NewClient("https://extensionpay.com", "clipsmart-ext")
	root := "https://extensionpay.com/extension/clipsmart-ext"

	assert.Equal(t, root+"/choose-plan?api_key=k", c.PaymentPageURL("k", ""))
	assert.Equal(t, root+"/choose-plan/monthly?api_key=k", c.PaymentPageURL("k", "monthly"))
	assert.Equal(t, root+"/trial?api_key=k", c.TrialPageURL("k", ""))
	assert.Equal(t, root+"/trial?api_key=k&period=1+week", c.TrialPageURL("k", "1 week"))
	assert.Equal(t, root+"/reactivate?api_key=k&back=choose-plan&v2", c.LoginPageURL("k"))
}
