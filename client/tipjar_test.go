package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListTips_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "GET", r.Method)
		assert.Equal(t, "/api/v1/tips", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(Feed{
			Tips: []*Tip{
				{ID: 2, Tipper: "ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM", Amount: 2_500_000, Message: "second", BlockHeight: 105},
				{ID: 1, Tipper: "ST2CY5V39NHDPWSXMW9QDT3HC3GD6Q6XX4CFRK9AG", Amount: 1_000_000, Message: "first", BlockHeight: 100},
			},
			State:     FeedState{Balance: 3_500_000, TipCount: 2, TotalTipped: 3_500_000},
			UpdatedAt: time.Now(),
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	feed, err := client.ListTips(context.Background())
	require.NoError(t, err)
	require.Len(t, feed.Tips, 2)
	assert.Equal(t, uint64(2), feed.Tips[0].ID)
	assert.Equal(t, uint64(2), feed.State.TipCount)
}

func TestListTips_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{
			"error": "ledger unavailable",
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	_, err := client.ListTips(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ledger unavailable")
}

func TestGetTip_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "GET", r.Method)
		assert.Equal(t, "/api/v1/tips/7", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(Tip{ID: 7, Tipper: "ST2CY5V39NHDPWSXMW9QDT3HC3GD6Q6XX4CFRK9AG", Amount: 500_000, Message: "hi", BlockHeight: 42})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	tip, err := client.GetTip(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), tip.ID)
	assert.Equal(t, "hi", tip.Message)
}

func TestGetTip_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{
			"error": "tip not found",
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	_, err := client.GetTip(context.Background(), 99)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tip not found")
}

func TestStats_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/stats", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(Stats{
			Balance:        3_500_000,
			BalanceSTX:     "3.50",
			TipCount:       2,
			TotalTipped:    3_500_000,
			TotalTippedSTX: "3.50",
			UpdatedAt:      time.Now(),
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	stats, err := client.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), stats.TipCount)
	assert.Equal(t, "3.50", stats.BalanceSTX)
}

func TestRefresh_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/api/v1/refresh", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]string{"status": "refreshing"})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	assert.NoError(t, client.Refresh(context.Background()))
}

func TestHealth(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/health", r.URL.Path)
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		client := NewClient(server.URL, nil, nil)
		assert.NoError(t, client.Health(context.Background()))
	})

	t.Run("unhealthy", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		client := NewClient(server.URL, nil, nil)
		err := client.Health(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unhealthy")
	})
}
