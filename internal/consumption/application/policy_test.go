package application

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	consumption "billing-cloud/internal/consumption/domain"
)

func TestParseReportPolicy_MergesClientOverrides(t *testing.T) {
	policy, err := ParseReportPolicy([]byte(`
defaults:
  tolerance_days: 2
clients:
  client-strict:
    tolerance_days: 0
  client-night:
    buckets:
      day_start_hour: 22
      day_end_hour: 6
`))
	require.NoError(t, err)

	assert.Equal(t, 2, policy.ForClient("client-other").Tolerance())
	assert.Equal(t, consumption.DefaultBuckets, policy.ForClient("client-other").Buckets)

	assert.Equal(t, 0, policy.ForClient("client-strict").Tolerance())
	assert.Equal(t, consumption.DefaultBuckets, policy.ForClient("client-strict").Buckets)

	night := policy.ForClient("client-night")
	assert.Equal(t, 2, night.Tolerance())
	assert.Equal(t, consumption.BucketConfig{DayStartHour: 22, DayEndHour: 6}, night.Buckets)
}

func TestParseReportPolicy_MergesBucketHoursSeparately(t *testing.T) {
	policy, err := ParseReportPolicy([]byte(`
defaults:
  buckets:
    day_start_hour: 7
clients:
  client-late:
    buckets:
      day_end_hour: 22
  client-midnight:
    buckets:
      day_end_hour: 24
`))
	require.NoError(t, err)

	assert.Equal(t, consumption.BucketConfig{DayStartHour: 7, DayEndHour: 20}, policy.ForClient("client-other").Buckets)
	assert.Equal(t, consumption.BucketConfig{DayStartHour: 7, DayEndHour: 22}, policy.ForClient("client-late").Buckets)
	assert.Equal(t, consumption.BucketConfig{DayStartHour: 7, DayEndHour: 24}, policy.ForClient("client-midnight").Buckets)
	assert.Equal(t, DefaultToleranceDays, policy.ForClient("client-late").Tolerance())
}

func TestParseReportPolicy_Rejects(t *testing.T) {
	_, err := ParseReportPolicy([]byte(`
clients:
  bad:
    tolerance_days: -1
`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, consumption.ErrNegativeTolerance))

	_, err = ParseReportPolicy([]byte(`
defaults:
  buckets:
    day_start_hour: 30
    day_end_hour: 6
`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, consumption.ErrInvalidBuckets))

	_, err = ParseReportPolicy([]byte(`
clients:
  bad-end:
    buckets:
      day_end_hour: 25
`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, consumption.ErrInvalidBuckets))

	_, err = ParseReportPolicy([]byte("defaults: ["))
	require.Error(t, err)
}

func TestLoadReportPolicy(t *testing.T) {
	policy, err := LoadReportPolicy("")
	require.NoError(t, err)
	assert.Equal(t, DefaultToleranceDays, policy.Defaults.Tolerance())

	path := filepath.Join(t.TempDir(), "report.yaml")
	require.NoError(t, os.WriteFile(path, []byte("defaults:\n  tolerance_days: 3\n"), 0o600))
	policy, err = LoadReportPolicy(path)
	require.NoError(t, err)
	assert.Equal(t, 3, policy.ForClient("any").Tolerance())

	_, err = LoadReportPolicy(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
