package safety

import (
	"context"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func TestValidateBlocksPricing(t *testing.T) {
	f := NewFilter(testLogger())

	verdict := f.Validate(context.Background(), "This shirt costs $20", "product_question")
	assert.False(t, verdict.Validated)
	assert.Equal(t, "pricing", verdict.BlockedReason)
}

func TestValidateBlocksInventory(t *testing.T) {
	f := NewFilter(testLogger())

	verdict := f.Validate(context.Background(), "We have plenty in stock right now", "product_question")
	assert.False(t, verdict.Validated)
	assert.Equal(t, "inventory", verdict.BlockedReason)
}

func TestValidateBlocksPromotions(t *testing.T) {
	f := NewFilter(testLogger())

	verdict := f.Validate(context.Background(), "There is a big summer promo coming", "chitchat")
	assert.False(t, verdict.Validated)
	assert.Equal(t, "promotions", verdict.BlockedReason)
}

func TestValidateBlocksOrderClaims(t *testing.T) {
	f := NewFilter(testLogger())

	verdict := f.Validate(context.Background(), "Your order has already been handed to the courier", "chitchat")
	assert.False(t, verdict.Validated)
	assert.Equal(t, "order", verdict.BlockedReason)
}

func TestValidateIsCaseInsensitive(t *testing.T) {
	f := NewFilter(testLogger())

	verdict := f.Validate(context.Background(), "Check out our DISCOUNT", "chitchat")
	assert.False(t, verdict.Validated)
	assert.Equal(t, "promotions", verdict.BlockedReason)
}

func TestValidateBlocksRegardlessOfContext(t *testing.T) {
	f := NewFilter(testLogger())

	// "cost" in a non-pricing sense is still blocked; false positives are the
	// accepted trade for zero false negatives.
	verdict := f.Validate(context.Background(), "Quality should never cost you comfort", "chitchat")
	assert.False(t, verdict.Validated)
	assert.Equal(t, "pricing", verdict.BlockedReason)
}

func TestValidatePassesNeutralText(t *testing.T) {
	f := NewFilter(testLogger())

	verdict := f.Validate(context.Background(), "A slim fit tee pairs well with relaxed jeans", "styling_advice")
	assert.True(t, verdict.Validated)
	assert.Empty(t, verdict.BlockedReason)
	assert.Equal(t, "A slim fit tee pairs well with relaxed jeans", verdict.RawText)
}
