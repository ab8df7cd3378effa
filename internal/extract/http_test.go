package extract

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mshadianto/mnee-sentinel/internal/domain/model"
)

func TestHTTPExtract_Success(t *testing.T) {
	var gotBody extractRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"vendor_name":    "PT Cloud Nusantara",
			"vendor_address": "0xAbC1000000000000000000000000000000000001",
			"amount":         "1500.25",
			"category":       "software",
			"confidence":     "0.93",
			"interpretation": "monthly license renewal",
		})
	}))
	defer srv.Close()

	e := NewHTTPExtractor(srv.URL, slog.Default())
	p, err := e.Extract(context.Background(), "pay PT Cloud Nusantara 1500.25 MNEE")
	require.NoError(t, err)

	assert.Equal(t, "pay PT Cloud Nusantara 1500.25 MNEE", gotBody.Text)
	assert.Equal(t, "PT Cloud Nusantara", p.VendorName)
	assert.Equal(t, "0xabc1000000000000000000000000000000000001", p.VendorAddress)
	assert.True(t, p.Amount.Equal(decimal.RequireFromString("1500.25")))
	assert.Equal(t, model.CategorySoftware, p.Category)
	assert.True(t, p.Confidence.Equal(decimal.RequireFromString("0.93")))
	assert.Equal(t, "monthly license renewal", p.Interpretation)
}

func TestHTTPExtract_UnknownCategory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"vendor_name":    "PT Vendor",
			"vendor_address": "0xabc1000000000000000000000000000000000001",
			"amount":         "10",
			"category":       "Groceries",
			"confidence":     "0.9",
		})
	}))
	defer srv.Close()

	e := NewHTTPExtractor(srv.URL, slog.Default())
	_, err := e.Extract(context.Background(), "whatever")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown category")
}

func TestHTTPExtract_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	e := NewHTTPExtractor(srv.URL, slog.Default())
	_, err := e.Extract(context.Background(), "whatever")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http status 503")
}

func TestHTTPExtract_Unreachable(t *testing.T) {
	e := NewHTTPExtractor("http://127.0.0.1:1", slog.Default())
	_, err := e.Extract(context.Background(), "whatever")
	require.Error(t, err)
}
