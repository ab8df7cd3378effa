package extract

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mshadianto/mnee-sentinel/internal/domain/model"
)

var (
	amountPattern  = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*MNEE`)
	addressPattern = regexp.MustCompile(`0x[a-fA-F0-9]{40}`)

	// Indonesian legal entity prefixes followed by a capitalized name, the
	// common shape of vendor names in treasury proposals.
	vendorPattern = regexp.MustCompile(`\b((?:PT|CV|PD)\.?\s+[A-Z][A-Za-z&' -]+?)(?:\s*[,(]|\s+(?:for|at|to|via)\b|\s*\d|$)`)
)

// regexConfidence is deliberately below any sensible confidence threshold
// only when the pattern match is partial; a full match of amount, address
// and vendor is trusted at 0.45 so operators can opt in by lowering the
// threshold, while the default configuration still rejects it.
var regexConfidence = decimal.RequireFromString("0.45")

// categoryKeywords maps lowercase substrings of the proposal text to spend
// categories. First match in iteration order wins, so more specific terms
// come before generic ones.
var categoryKeywords = []struct {
	needle   string
	category model.Category
}{
	{"foreign exchange", model.CategoryFX},
	{"fx ", model.CategoryFX},
	{"remittance", model.CategoryRemittance},
	{"settlement", model.CategorySettlement},
	{"software", model.CategorySoftware},
	{"license", model.CategorySoftware},
	{"saas", model.CategorySoftware},
	{"subscription", model.CategorySoftware},
	{"consulting", model.CategoryConsulting},
	{"advisory", model.CategoryConsulting},
	{"travel", model.CategoryTravel},
	{"flight", model.CategoryTravel},
	{"hotel", model.CategoryTravel},
	{"office", model.CategoryOffice},
	{"rent", model.CategoryOffice},
	{"furniture", model.CategoryOffice},
	{"data", model.CategoryData},
	{"analytics", model.CategoryData},
	{"cybersecurity", model.CategoryCybersecurity},
	{"security audit", model.CategoryCybersecurity},
	{"penetration test", model.CategoryCybersecurity},
	{"legal", model.CategoryLegal},
	{"notary", model.CategoryLegal},
	{"law firm", model.CategoryLegal},
}

// RegexExtractor parses proposals with regular expressions only. It is the
// fallback path when the primary extractor is unreachable, so it never makes
// network calls and never fails on ambiguity; missing amount or address are
// the only hard errors because the engine cannot evaluate without them.
type RegexExtractor struct {
	logger *slog.Logger
}

func NewRegexExtractor(logger *slog.Logger) *RegexExtractor {
	return &RegexExtractor{logger: logger.With("component", "regex_extractor")}
}

func (e *RegexExtractor) Extract(_ context.Context, text string) (model.ParsedProposal, error) {
	amountMatch := amountPattern.FindStringSubmatch(text)
	if amountMatch == nil {
		return model.ParsedProposal{}, ErrNoAmount
	}
	amount, err := decimal.NewFromString(amountMatch[1])
	if err != nil {
		return model.ParsedProposal{}, ErrNoAmount
	}

	address := addressPattern.FindString(text)
	if address == "" {
		return model.ParsedProposal{}, ErrNoAddress
	}

	vendor := "Unknown Vendor"
	if m := vendorPattern.FindStringSubmatch(text); m != nil {
		vendor = strings.TrimSpace(m[1])
	}

	category := model.CategorySettlement
	lower := strings.ToLower(text)
	for _, kw := range categoryKeywords {
		if strings.Contains(lower, kw.needle) {
			category = kw.category
			break
		}
	}

	e.logger.Debug("regex extraction",
		"vendor", vendor,
		"amount", amount.String(),
		"category", category,
	)

	return model.ParsedProposal{
		SourceText:     text,
		VendorName:     vendor,
		VendorAddress:  strings.ToLower(address),
		Amount:         amount,
		Category:       category,
		Confidence:     regexConfidence,
		Interpretation: "pattern-based extraction without semantic analysis",
	}, nil
}
