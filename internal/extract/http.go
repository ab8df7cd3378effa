package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mshadianto/mnee-sentinel/internal/domain/model"
)

// HTTPExtractor calls an external semantic extraction service. The service
// receives the raw proposal text and returns the structured fields with its
// own confidence score; this client does no interpretation of its own beyond
// validating the category against the known budget buckets.
type HTTPExtractor struct {
	httpClient *http.Client
	url        string
	logger     *slog.Logger
}

func NewHTTPExtractor(url string, logger *slog.Logger) *HTTPExtractor {
	return &HTTPExtractor{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		url:        url,
		logger:     logger.With("component", "http_extractor"),
	}
}

type extractRequest struct {
	Text string `json:"text"`
}

type extractResponse struct {
	VendorName     string          `json:"vendor_name"`
	VendorAddress  string          `json:"vendor_address"`
	Amount         decimal.Decimal `json:"amount"`
	Category       string          `json:"category"`
	Confidence     decimal.Decimal `json:"confidence"`
	Interpretation string          `json:"interpretation"`
}

func (e *HTTPExtractor) Extract(ctx context.Context, text string) (model.ParsedProposal, error) {
	body, err := json.Marshal(extractRequest{Text: text})
	if err != nil {
		return model.ParsedProposal{}, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return model.ParsedProposal{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return model.ParsedProposal{}, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.ParsedProposal{}, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return model.ParsedProposal{}, fmt.Errorf("http status %d: %s", resp.StatusCode, string(respBody))
	}

	var out extractResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return model.ParsedProposal{}, fmt.Errorf("unmarshal response: %w", err)
	}

	category, ok := model.ParseCategory(out.Category)
	if !ok {
		return model.ParsedProposal{}, fmt.Errorf("extractor returned unknown category %q", out.Category)
	}

	return model.ParsedProposal{
		SourceText:     text,
		VendorName:     out.VendorName,
		VendorAddress:  strings.ToLower(out.VendorAddress),
		Amount:         out.Amount,
		Category:       category,
		Confidence:     out.Confidence,
		Interpretation: out.Interpretation,
	}, nil
}
