package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-rental-settlement/internal/pricing"
)

func TestBuildQuoteRequest(t *testing.T) {
	req, err := buildQuoteRequest("2025-07-01T10:00:00Z", "2025-07-04T10:00:00Z", []string{"A:2", "B"})
	require.NoError(t, err)
	assert.Equal(t, 72*time.Hour, req.End.Sub(req.Start))
	assert.Equal(t, []pricing.Line{{ProductID: "A", Quantity: 2}, {ProductID: "B", Quantity: 1}}, req.Lines)

	_, err = buildQuoteRequest("yesterday", "2025-07-04T10:00:00Z", nil)
	assert.ErrorContains(t, err, "--start")

	_, err = buildQuoteRequest("2025-07-01T10:00:00Z", "2025-07-04T10:00:00Z", []string{"A:two"})
	assert.ErrorContains(t, err, "--item")
}

func TestPrintQuote(t *testing.T) {
	var buf bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&buf)

	printQuote(cmd, &pricing.Quote{
		Total:           decimal.NewFromInt(105),
		Deposit:         decimal.RequireFromString("31.5"),
		BillablePeriods: 3,
		Breakdowns:      []pricing.TenantQuote{{TenantID: "t1", Total: decimal.NewFromInt(105), Deposit: decimal.RequireFromString("31.5")}},
	})
	assert.Contains(t, buf.String(), "total 105.00 deposit 31.50 (3 billable periods)")
}
