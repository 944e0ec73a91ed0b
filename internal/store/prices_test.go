package store

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(d int) time.Time {
	return time.Date(2024, time.March, d, 0, 0, 0, 0, time.UTC)
}

func TestPivotRows_AlignsOnUnionOfDates(t *testing.T) {
	rows := []priceRow{
		{Symbol: "AAA", TradeDate: day(1), AdjClose: 100},
		{Symbol: "BBB", TradeDate: day(1), AdjClose: 200},
		{Symbol: "AAA", TradeDate: day(4), AdjClose: 101},
		// BBB did not trade on the 4th.
		{Symbol: "AAA", TradeDate: day(5), AdjClose: 102},
		{Symbol: "BBB", TradeDate: day(5), AdjClose: 204},
	}

	table, err := pivotRows(rows)
	require.NoError(t, err)

	require.Len(t, table.Dates, 3)
	assert.Equal(t, []string{"AAA", "BBB"}, table.Symbols)

	assert.Equal(t, 101.0, table.Price("AAA", 1))
	assert.True(t, math.IsNaN(table.Price("BBB", 1)), "missing observations become NaN")
	assert.Equal(t, 204.0, table.Price("BBB", 2))
}

func TestPivotRows_EmptyInput(t *testing.T) {
	_, err := pivotRows(nil)
	require.Error(t, err)
}
