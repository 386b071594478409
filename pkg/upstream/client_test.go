package upstream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riddle022/farmavision/pkg/logger"
)

func testClient(baseURL string) *Client {
	return NewClient(Config{
		BaseURL:    baseURL,
		Timeout:    2 * time.Second,
		MaxRetries: 2,
		Backoff:    time.Millisecond,
	}, nil, logger.Discard())
}

func TestClientProductsSuccess(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/produtos", r.URL.Path)
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"produtos":[{"descricao":"DIPIRONA","valor":7.99}],"total":1}`))
	}))
	defer srv.Close()

	payload, err := testClient(srv.URL).Products(context.Background(), ProductQuery{
		Geohash:  "6gkzqfbkb",
		Term:     "dipirona",
		RadiusKM: 10,
		Ordering: OrderByPrice,
	})
	require.NoError(t, err)
	require.Len(t, payload.Produtos, 1)
	assert.Equal(t, 1, payload.Total)

	assert.Contains(t, gotQuery, "local=6gkzqfbkb")
	assert.Contains(t, gotQuery, "termo=dipirona")
	assert.Contains(t, gotQuery, "raio=10")
	assert.Contains(t, gotQuery, "ordem=0")
}

func TestClientFuelQueryParams(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/combustiveis", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("tipo"))
		assert.Equal(t, "1", r.URL.Query().Get("ordem"))
		w.Write([]byte(`{"postos":[{"nome":"POSTO ALFA","valor":5.89}]}`))
	}))
	defer srv.Close()

	payload, err := testClient(srv.URL).Fuel(context.Background(), FuelQuery{
		Geohash:  "6gkzqfbkb",
		Kind:     2,
		RadiusKM: 15,
		Ordering: OrderByDistance,
	})
	require.NoError(t, err)
	require.Len(t, payload.Postos, 1)
	assert.Len(t, payload.Records(), 1)
}

func TestClientRetriesUntilSuccess(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"produtos":[],"total":0}`))
	}))
	defer srv.Close()

	payload, err := testClient(srv.URL).Products(context.Background(), ProductQuery{Geohash: "6gkzqfbkb", RadiusKM: 5})
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load(), "two failures then success")
	assert.Empty(t, payload.Produtos)
}

func TestClientExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Products(context.Background(), ProductQuery{Geohash: "6gkzqfbkb", RadiusKM: 5})
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load(), "initial attempt plus two retries")

	assert.True(t, errors.Is(err, ErrUpstream))
	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, 3, reqErr.Attempts)
	assert.Equal(t, http.StatusInternalServerError, reqErr.Status)
}

func TestClientEmptyResultIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"produtos":[],"total":0}`))
	}))
	defer srv.Close()

	payload, err := testClient(srv.URL).Products(context.Background(), ProductQuery{Geohash: "6gkzqfbkb", RadiusKM: 5})
	require.NoError(t, err)
	assert.Empty(t, payload.Records())
	assert.Equal(t, int32(1), calls.Load(), "an empty answer is an answer")
}

func TestClientMalformedBodyIsRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Write([]byte(`{"produtos": [{]`))
			return
		}
		w.Write([]byte(`{"produtos":[{"descricao":"OK"}]}`))
	}))
	defer srv.Close()

	payload, err := testClient(srv.URL).Products(context.Background(), ProductQuery{Geohash: "6gkzqfbkb", RadiusKM: 5})
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.Len(t, payload.Produtos, 1)
}

func TestClientContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(Config{
		BaseURL:    srv.URL,
		Timeout:    2 * time.Second,
		MaxRetries: 2,
		Backoff:    5 * time.Second, // cancellation must win over the backoff wait
	}, nil, logger.Discard())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := c.Products(ctx, ProductQuery{Geohash: "6gkzqfbkb", RadiusKM: 5})
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, errors.Is(err, ErrUpstream))
}
