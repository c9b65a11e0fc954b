package cutoff_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cutoff "billing-cloud/internal/cutoff/domain"
)

func mustResolved(t *testing.T, setting cutoff.Setting) cutoff.Resolved {
	t.Helper()
	resolved, err := cutoff.NewResolved(setting, cutoff.LevelSystem, "")
	require.NoError(t, err)
	return resolved
}

func at(year int, month time.Month, day, hour, minute, second int) time.Time {
	return time.Date(year, month, day, hour, minute, second, 0, time.UTC)
}

func label(year int, month time.Month) cutoff.Label {
	return cutoff.Label{Year: year, Month: month}
}

func TestLabelFor_DefaultCutoffBoundary(t *testing.T) {
	cut := mustResolved(t, cutoff.DefaultSetting)

	assert.Equal(t, label(2025, time.August), cutoff.LabelFor(at(2025, time.July, 26, 0, 0, 0), cut))
	assert.Equal(t, label(2025, time.August), cutoff.LabelFor(at(2025, time.August, 25, 23, 59, 59), cut))
	assert.Equal(t, label(2025, time.September), cutoff.LabelFor(at(2025, time.August, 26, 0, 0, 0), cut))
	assert.Equal(t, label(2025, time.September), cutoff.LabelFor(at(2025, time.September, 24, 23, 59, 58), cut))
	assert.Equal(t, label(2025, time.September), cutoff.LabelFor(at(2025, time.September, 25, 23, 59, 59), cut))
	assert.Equal(t, label(2025, time.October), cutoff.LabelFor(at(2025, time.September, 26, 0, 0, 0), cut))
	assert.Equal(t, label(2026, time.January), cutoff.LabelFor(at(2025, time.December, 31, 12, 0, 0), cut))
}

func TestLabelFor_Deterministic(t *testing.T) {
	cut := mustResolved(t, cutoff.Setting{Day: 10, Hour: 4, Minute: 30, Second: 0})
	ts := at(2025, time.March, 10, 4, 29, 59)
	first := cutoff.LabelFor(ts, cut)
	for i := 0; i < 100; i++ {
		require.Equal(t, first, cutoff.LabelFor(ts, cut))
	}
}

func TestLabelFor_EarlyRegime(t *testing.T) {
	cut := mustResolved(t, cutoff.Setting{Day: 10, Hour: 23, Minute: 59, Second: 59})
	require.Equal(t, cutoff.RegimeEarly, cut.Regime())

	assert.Equal(t, label(2025, time.August), cutoff.LabelFor(at(2025, time.September, 9, 23, 0, 0), cut))
	assert.Equal(t, label(2025, time.September), cutoff.LabelFor(at(2025, time.September, 10, 0, 0, 0), cut))
	assert.Equal(t, label(2025, time.September), cutoff.LabelFor(at(2025, time.October, 9, 23, 59, 59), cut))
	assert.Equal(t, label(2025, time.October), cutoff.LabelFor(at(2025, time.October, 10, 0, 0, 0), cut))

	first, last := cutoff.Bounds(label(2025, time.September), cut)
	assert.Equal(t, at(2025, time.September, 10, 0, 0, 0), first)
	assert.Equal(t, at(2025, time.October, 9, 0, 0, 0), last)
	assert.Equal(t, 30, cutoff.ExpectedDays(label(2025, time.September), cut))
}

func TestLabelFor_LateRegime(t *testing.T) {
	cut := mustResolved(t, cutoff.DefaultSetting)
	require.Equal(t, cutoff.RegimeLate, cut.Regime())

	first, last := cutoff.Bounds(label(2025, time.September), cut)
	assert.Equal(t, at(2025, time.August, 26, 0, 0, 0), first)
	assert.Equal(t, at(2025, time.September, 25, 0, 0, 0), last)
	assert.Equal(t, 31, cutoff.ExpectedDays(label(2025, time.September), cut))

	first, last = cutoff.Bounds(label(2026, time.January), cut)
	assert.Equal(t, at(2025, time.December, 26, 0, 0, 0), first)
	assert.Equal(t, at(2026, time.January, 25, 0, 0, 0), last)
}

func TestLabelFor_FirstDayIsSingleMonth(t *testing.T) {
	cut := mustResolved(t, cutoff.Setting{Day: 1, Hour: 23, Minute: 0, Second: 0})
	require.True(t, cut.SingleMonth())

	assert.Equal(t, label(2025, time.September), cutoff.LabelFor(at(2025, time.September, 1, 0, 0, 0), cut))
	assert.Equal(t, label(2025, time.September), cutoff.LabelFor(at(2025, time.September, 30, 23, 59, 59), cut))
	first, last := cutoff.Bounds(label(2025, time.February), cut)
	assert.Equal(t, at(2025, time.February, 1, 0, 0, 0), first)
	assert.Equal(t, at(2025, time.February, 28, 0, 0, 0), last)
}

func TestLabelFor_ClampsShortMonths(t *testing.T) {
	cut := mustResolved(t, cutoff.Setting{Day: 31, Hour: 23, Minute: 59, Second: 59})

	assert.Equal(t, label(2025, time.February), cutoff.LabelFor(at(2025, time.February, 27, 12, 0, 0), cut))
	assert.Equal(t, label(2025, time.March), cutoff.LabelFor(at(2025, time.February, 28, 0, 0, 0), cut))
	assert.Equal(t, label(2025, time.March), cutoff.LabelFor(at(2025, time.March, 30, 23, 0, 0), cut))
	assert.Equal(t, label(2025, time.April), cutoff.LabelFor(at(2025, time.March, 31, 0, 0, 0), cut))
	assert.Equal(t, label(2024, time.February), cutoff.LabelFor(at(2024, time.February, 28, 0, 0, 0), cut))
	assert.Equal(t, label(2024, time.March), cutoff.LabelFor(at(2024, time.February, 29, 0, 0, 0), cut))

	first, last := cutoff.Bounds(label(2025, time.March), cut)
	assert.Equal(t, at(2025, time.February, 28, 0, 0, 0), first)
	assert.Equal(t, at(2025, time.March, 30, 0, 0, 0), last)
}

func TestLabelFor_MorningCutoffShiftsToPreviousDay(t *testing.T) {
	cut := mustResolved(t, cutoff.Setting{Day: 1, Hour: 6, Minute: 0, Second: 0})

	assert.Equal(t, label(2025, time.September), cutoff.LabelFor(at(2025, time.October, 1, 5, 59, 59), cut))
	assert.Equal(t, label(2025, time.October), cutoff.LabelFor(at(2025, time.October, 1, 6, 0, 0), cut))

	late := mustResolved(t, cutoff.Setting{Day: 26, Hour: 6, Minute: 30, Second: 0})
	assert.Equal(t, label(2025, time.August), cutoff.LabelFor(at(2025, time.August, 26, 6, 29, 59), late))
	assert.Equal(t, label(2025, time.September), cutoff.LabelFor(at(2025, time.August, 26, 6, 30, 0), late))
	assert.Equal(t, at(2025, time.August, 25, 0, 0, 0), cutoff.EffectiveDate(at(2025, time.August, 26, 1, 0, 0), late))
}

func TestLabelFor_AfternoonCutoffDoesNotShift(t *testing.T) {
	cut := mustResolved(t, cutoff.Setting{Day: 26, Hour: 12, Minute: 0, Second: 0})

	assert.Equal(t, label(2025, time.September), cutoff.LabelFor(at(2025, time.August, 26, 0, 0, 0), cut))
	assert.Equal(t, at(2025, time.August, 26, 0, 0, 0), cutoff.EffectiveDate(at(2025, time.August, 26, 1, 0, 0), cut))
}

func TestLabelFor_MonotonicAndContiguous(t *testing.T) {
	settings := []cutoff.Setting{
		cutoff.DefaultSetting,
		{Day: 1, Hour: 0, Minute: 0, Second: 0},
		{Day: 1, Hour: 6, Minute: 0, Second: 0},
		{Day: 10, Hour: 3, Minute: 15, Second: 0},
		{Day: 15, Hour: 23, Minute: 0, Second: 0},
		{Day: 16, Hour: 11, Minute: 59, Second: 59},
		{Day: 29, Hour: 23, Minute: 59, Second: 59},
		{Day: 31, Hour: 0, Minute: 0, Second: 1},
	}
	for _, setting := range settings {
		cut := mustResolved(t, setting)
		t.Run(setting.String(), func(t *testing.T) {
			prev := cutoff.LabelFor(at(2023, time.December, 1, 0, 0, 0), cut)
			for ts := at(2023, time.December, 1, 0, 0, 0); ts.Before(at(2026, time.March, 1, 0, 0, 0)); ts = ts.Add(30 * time.Minute) {
				current := cutoff.LabelFor(ts, cut)
				if current != prev {
					require.Equal(t, prev.Next(), current, "non-contiguous step at %s", ts)
				}
				prev = current
			}
		})
	}
}

func TestBounds_AgreeWithLabelFor(t *testing.T) {
	settings := []cutoff.Setting{
		cutoff.DefaultSetting,
		{Day: 1, Hour: 23, Minute: 0, Second: 0},
		{Day: 10, Hour: 2, Minute: 0, Second: 0},
		{Day: 30, Hour: 13, Minute: 0, Second: 0},
		{Day: 31, Hour: 23, Minute: 59, Second: 59},
	}
	for _, setting := range settings {
		cut := mustResolved(t, setting)
		for l := label(2024, time.January); l.Before(label(2026, time.January)); l = l.Next() {
			first, last := cutoff.Bounds(l, cut)
			for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
				ts := day.Add(23*time.Hour + 30*time.Minute)
				require.Equal(t, l, cutoff.LabelFor(ts, cut), "%s at %s", setting, ts)
			}
			require.Equal(t, l.Prev(), cutoff.LabelFor(first.Add(-30*time.Minute), cut))
			require.Equal(t, l.Next(), cutoff.LabelFor(last.AddDate(0, 0, 1).Add(23*time.Hour+30*time.Minute), cut))
		}
	}
}

func TestLabel_OrderingAndText(t *testing.T) {
	dec := label(2025, time.December)
	assert.Equal(t, label(2026, time.January), dec.Next())
	assert.Equal(t, label(2024, time.December), label(2025, time.January).Prev())
	assert.True(t, label(2025, time.January).Before(dec))
	assert.Equal(t, 0, dec.Compare(label(2025, time.December)))
	assert.Equal(t, "2025-12", dec.String())

	parsed, err := cutoff.ParseLabel("2025-09")
	require.NoError(t, err)
	assert.Equal(t, label(2025, time.September), parsed)
	_, err = cutoff.ParseLabel("2025/09")
	require.ErrorIs(t, err, cutoff.ErrInvalidLabel)

	payload, err := json.Marshal(map[cutoff.Label]int{dec: 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"2025-12":1}`, string(payload))
	var decoded map[cutoff.Label]int
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, 1, decoded[dec])
}

func TestResolved_RegimeDerivedFromDay(t *testing.T) {
	assert.Equal(t, cutoff.RegimeEarly, mustResolved(t, cutoff.Setting{Day: 15}).Regime())
	assert.Equal(t, cutoff.RegimeLate, mustResolved(t, cutoff.Setting{Day: 16}).Regime())

	var decoded cutoff.Resolved
	require.NoError(t, json.Unmarshal([]byte(`{"setting":{"day":20,"hour":0,"minute":0,"second":0},"source":"client"}`), &decoded))
	assert.Equal(t, cutoff.RegimeLate, decoded.Regime())

	_, err := cutoff.NewResolved(cutoff.Setting{Day: 32}, cutoff.LevelSystem, "")
	require.ErrorIs(t, err, cutoff.ErrInvalidSetting)
}
