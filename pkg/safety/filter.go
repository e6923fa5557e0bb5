// Package safety gates generative-model output before it reaches the user.
//
// The generative collaborator is never trusted to self-police claims about
// mutable business state. The gate is a plain keyword scan: it accepts false
// positives in exchange for never letting a price, stock, promotion, or order
// claim through unfiltered.
package safety

import (
	"context"
	"strings"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Category names the class of business-sensitive content a keyword belongs to.
type Category string

const (
	CategoryPricing    Category = "pricing"
	CategoryInventory  Category = "inventory"
	CategoryPromotions Category = "promotions"
	CategoryOrder      Category = "order"
)

// SafeFallbackMessage replaces any blocked response. No fragment of the
// original text may be shown alongside it.
const SafeFallbackMessage = "Let me check our store system for that and get back to you with accurate details."

// forbidden maps each category to its keyword set. Matching is substring,
// case-insensitive. Order matters: the first matching category is reported.
var forbidden = []struct {
	category Category
	keywords []string
}{
	{CategoryPricing, []string{
		"price", "cost", "$", "€", "£", "₫", "usd", "vnd",
		"cheap", "expensive", "affordable",
	}},
	{CategoryInventory, []string{
		"stock", "in stock", "sold out", "available", "availability", "inventory",
	}},
	{CategoryPromotions, []string{
		"discount", "sale", "promotion", "promo", "%", "voucher", "coupon",
	}},
	{CategoryOrder, []string{
		"your order", "order status", "tracking", "shipped", "shipping", "delivery", "delivered",
	}},
}

// Filter validates generative output against the forbidden keyword set.
type Filter struct {
	logger ectologger.Logger
}

// NewFilter creates a new response safety filter.
func NewFilter(logger ectologger.Logger) *Filter {
	return &Filter{logger: logger}
}

// Validate scans rawText and returns the verdict. Every invocation, pass or
// block, is logged with the category and the routing intent so the blocked
// ratio can be audited downstream.
func (f *Filter) Validate(ctx context.Context, rawText string, intent string) models.GeneratedResponse {
	ctx, span := tracing.StartSpan(ctx, "SafetyFilter.Validate")
	defer span.End()

	lowered := strings.ToLower(rawText)

	for _, group := range forbidden {
		for _, keyword := range group.keywords {
			if strings.Contains(lowered, keyword) {
				metrics.GenerativeCallsTotal.WithLabelValues("blocked", string(group.category)).Inc()
				f.logger.WithContext(ctx).WithFields(map[string]any{
					"intent":   intent,
					"category": string(group.category),
					"keyword":  keyword,
				}).Warn("blocked generative response")

				return models.GeneratedResponse{
					RawText:       rawText,
					Validated:     false,
					BlockedReason: string(group.category),
				}
			}
		}
	}

	metrics.GenerativeCallsTotal.WithLabelValues("passed", "").Inc()
	f.logger.WithContext(ctx).WithFields(map[string]any{
		"intent": intent,
	}).Debugf("generative response passed safety filter")

	return models.GeneratedResponse{
		RawText:   rawText,
		Validated: true,
	}
}
