package search

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/kubilitics/kubilitics-appstatus/internal/models"
)

const searchPayload = `{"data":{"searchResult":[{"items":[{"kind":"Application","name":"app","namespace":"ns"}],
"related":[{"kind":"Deployment","items":[{"kind":"Deployment","name":"web","namespace":"ns","cluster":"local-cluster","desired":"3","available":3}]}]}]}}`

func newTestClient(t *testing.T, url string, retries int) *Client {
	t.Helper()
	c, err := NewClient(ClientConfig{URL: url, Token: "secret", RetryAttempts: retries}, zaptest.NewLogger(t))
	require.NoError(t, err)
	return c
}

func TestNewClientRequiresURL(t *testing.T) {
	_, err := NewClient(ClientConfig{}, nil)
	assert.Error(t, err)
}

func TestClientSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req graphQLRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, searchOperation, req.OperationName)
		inputs, ok := req.Variables["input"].([]any)
		require.True(t, ok)
		assert.Len(t, inputs, 1)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(searchPayload))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 1)
	res, err := c.Search(context.Background(), []models.SearchInput{{
		Filters:      []models.SearchFilter{{Property: "kind", Values: []string{"application"}}},
		RelatedKinds: []string{"deployment"},
	}})
	require.NoError(t, err)
	require.Len(t, res, 1)
	require.Len(t, res[0].Related, 1)
	dep := res[0].Related[0].Items[0]
	assert.Equal(t, "web", dep.Name)
	assert.Equal(t, int64(3), dep.Desired.Int())
	assert.Equal(t, int64(3), dep.Available.Int())
}

func TestClientRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(searchPayload))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 3)
	res, err := c.Search(context.Background(), []models.SearchInput{{}})
	require.NoError(t, err)
	assert.Len(t, res, 1)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 3)
	_, err := c.Search(context.Background(), []models.SearchInput{{}})
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusUnauthorized, se.Code)
	assert.Equal(t, "nope", se.Body)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClientGraphQLErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"searchResult":null},"errors":[{"message":"index unavailable"}]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 1)
	_, err := c.Search(context.Background(), []models.SearchInput{{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index unavailable")
}

func TestClientCircuitOpens(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 1)
	for i := 0; i < 5; i++ {
		_, err := c.Search(context.Background(), []models.SearchInput{{}})
		require.Error(t, err)
	}
	_, err := c.Search(context.Background(), []models.SearchInput{{}})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(5), calls.Load())
}
