package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestWindowsFor_EndsBeforeRebalance(t *testing.T) {
	rebalance := date(2022, time.June, 30)
	earliest := date(2018, time.January, 1)

	alpha, risk, err := WindowsFor(rebalance, 12, 24, earliest)
	require.NoError(t, err)

	assert.True(t, alpha.End.Equal(rebalance), "alpha window must end at the rebalance date (exclusive)")
	assert.True(t, risk.End.Equal(rebalance), "risk window must end at the rebalance date (exclusive)")
	assert.False(t, alpha.Contains(rebalance), "rebalance date itself must not be visible")
	assert.False(t, risk.Contains(rebalance))
	assert.Equal(t, KindAlpha, alpha.Kind)
	assert.Equal(t, KindRisk, risk.Kind)

	// Risk window must reach further back than the alpha window.
	assert.True(t, risk.Start.Before(alpha.Start))
	assert.True(t, alpha.Start.Equal(date(2021, time.June, 30)))
	assert.True(t, risk.Start.Equal(date(2020, time.June, 30)))
}

func TestWindowsFor_InsufficientHistory(t *testing.T) {
	rebalance := date(2022, time.June, 30)
	earliest := date(2021, time.January, 1) // only ~18 months of data

	_, _, err := WindowsFor(rebalance, 12, 24, earliest)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientHistory)
}

func TestWindowsFor_RiskShorterThanAlphaRejected(t *testing.T) {
	_, _, err := WindowsFor(date(2022, time.June, 30), 24, 12, date(2015, time.January, 1))
	require.Error(t, err)
}

func TestWindowsFor_NoLookAheadAcrossSchedule(t *testing.T) {
	table, err := GenerateSynthetic(DefaultSyntheticConfig(
		[]string{"AAA", "BBB"}, date(2018, time.January, 2), 1300))
	require.NoError(t, err)

	schedule, err := Schedule(table, Monthly, 24)
	require.NoError(t, err)
	require.NotEmpty(t, schedule)

	for _, rebalance := range schedule {
		alpha, risk, err := WindowsFor(rebalance, 12, 24, table.Earliest())
		require.NoError(t, err)
		for _, w := range []ObservationWindow{alpha, risk} {
			assert.True(t, w.End.Before(rebalance) || w.End.Equal(rebalance))
			sliced := table.Slice(w)
			if len(sliced.Dates) > 0 {
				assert.True(t, sliced.Latest().Before(rebalance),
					"window data must be strictly earlier than the rebalance date")
			}
		}
	}
}

func TestSchedule_Frequencies(t *testing.T) {
	table, err := GenerateSynthetic(DefaultSyntheticConfig(
		[]string{"AAA"}, date(2018, time.January, 2), 1040))
	require.NoError(t, err)

	monthly, err := Schedule(table, Monthly, 12)
	require.NoError(t, err)
	quarterly, err := Schedule(table, Quarterly, 12)
	require.NoError(t, err)
	weekly, err := Schedule(table, Weekly, 12)
	require.NoError(t, err)

	assert.Greater(t, len(weekly), len(monthly))
	assert.Greater(t, len(monthly), len(quarterly))

	for i := 1; i < len(monthly); i++ {
		assert.True(t, monthly[i].After(monthly[i-1]), "schedule must be strictly ascending")
	}
}

func TestSchedule_EmptyWhenRangeTooShort(t *testing.T) {
	table, err := GenerateSynthetic(DefaultSyntheticConfig(
		[]string{"AAA"}, date(2022, time.January, 3), 120))
	require.NoError(t, err)

	schedule, err := Schedule(table, Monthly, 24)
	require.NoError(t, err)
	assert.Empty(t, schedule, "a range shorter than the risk lookback yields no rebalance dates")
}

func TestSchedule_RejectsUnknownFrequency(t *testing.T) {
	table, err := GenerateSynthetic(DefaultSyntheticConfig(
		[]string{"AAA"}, date(2022, time.January, 3), 120))
	require.NoError(t, err)

	_, err = Schedule(table, Frequency("hourly"), 12)
	require.Error(t, err)
}
