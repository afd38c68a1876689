package search

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/elastic/go-elasticsearch/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muhammadshahms/shoe-shop/internal/models"
)

type request struct {
	Method string
	Path   string
	Body   string
}

type fakeES struct {
	mu       sync.Mutex
	requests []request
	reply    func(w http.ResponseWriter, r *http.Request)
}

func newFakeES(t *testing.T, reply func(w http.ResponseWriter, r *http.Request)) (*fakeES, *Index) {
	t.Helper()
	f := &fakeES{reply: reply}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.requests = append(f.requests, request{Method: r.Method, Path: r.URL.Path, Body: string(b)})
		f.mu.Unlock()

		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		f.reply(w, r)
	}))
	t.Cleanup(srv.Close)

	es, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	return f, NewIndex(es, "products")
}

func (f *fakeES) last() request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func TestIndex_IndexProduct(t *testing.T) {
	f, ix := newFakeES(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"result":"created"}`))
	})

	err := ix.IndexProduct(context.Background(), models.Product{ID: 7, Name: "Runner", Price: decimal.RequireFromString("10.00"), Quantity: 5})
	require.NoError(t, err)

	req := f.last()
	assert.Equal(t, http.MethodPut, req.Method)
	assert.Equal(t, "/products/_doc/7", req.Path)

	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(req.Body), &doc))
	assert.Equal(t, "Runner", doc["name"])
}

func TestIndex_DeleteMissingIsFine(t *testing.T) {
	_, ix := newFakeES(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"result":"not_found"}`))
	})

	assert.NoError(t, ix.DeleteProduct(context.Background(), 7))
}

func TestIndex_Search(t *testing.T) {
	f, ix := newFakeES(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"hits":{"total":{"value":1},"hits":[{"_source":{"id":7,"name":"Runner","description":"fast","price":"10","quantity":5}}]}}`))
	})

	total, items, err := ix.Search(context.Background(), "runer", 0, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, items, 1)
	assert.Equal(t, uint(7), items[0].ID)
	assert.True(t, decimal.NewFromInt(10).Equal(items[0].Price))

	req := f.last()
	assert.Equal(t, "/products/_search", req.Path)
	assert.True(t, strings.Contains(req.Body, `"multi_match"`))
}

func TestIndex_SearchError(t *testing.T) {
	_, ix := newFakeES(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"boom"}`))
	})

	_, _, err := ix.Search(context.Background(), "x", 0, 20)
	assert.ErrorIs(t, err, ErrSearch)
}
