package main

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	reportapp "billing-cloud/internal/consumption/application"
	consumption "billing-cloud/internal/consumption/domain"
	cutoff "billing-cloud/internal/cutoff/domain"
)

func TestLoadLegacyPeriods(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "legacy.csv")
	require.NoError(t, os.WriteFile(path, []byte("Period, Total\n2024-02,100.5\n2024-03,\n"), 0o644))

	rows, err := loadLegacyPeriods(path)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, cutoff.NewLabel(2024, time.February), rows[0].Label)
	assert.Equal(t, 100.5, rows[0].Sum)
	assert.Equal(t, 0.0, rows[1].Sum)
}

func TestLoadLegacyPeriodsMissingHeaders(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.csv")
	require.NoError(t, os.WriteFile(path, []byte("when,amount\n2024-02,1\n"), 0o644))

	_, err := loadLegacyPeriods(path)
	require.Error(t, err)
}

func TestWriteDiffReport(t *testing.T) {
	feb := cutoff.NewLabel(2024, time.February)
	mar := cutoff.NewLabel(2024, time.March)
	apr := cutoff.NewLabel(2024, time.April)
	report := &reportapp.Report{
		Periods: []reportapp.PeriodReport{
			{Label: feb, Complete: true, Aggregate: &consumption.Aggregate{Label: feb, Sum: 10}},
			{Label: mar, Complete: false, Aggregate: &consumption.Aggregate{Label: mar, Sum: 4}},
		},
	}
	legacy := []legacyPeriod{
		{Label: feb, Sum: 10},
		{Label: mar, Sum: 5},
		{Label: apr, Sum: 1},
	}

	dir := t.TempDir()
	mismatches, err := writeDiffReport(dir, report, legacy, 1e-9)
	require.NoError(t, err)
	assert.Equal(t, 2, mismatches)

	file, err := os.Open(filepath.Join(dir, "diff_report.csv"))
	require.NoError(t, err)
	defer file.Close()
	records, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, []string{"2024-02", "true", "10", "10", "0", "true"}, records[1])
	assert.Equal(t, []string{"2024-03", "false", "4", "5", "-1", "false"}, records[2])
	assert.Equal(t, []string{"2024-04", "false", "0", "1", "-1", "false"}, records[3])
}

func TestWriteHourly(t *testing.T) {
	feb := cutoff.NewLabel(2024, time.February)
	agg := &consumption.Aggregate{Label: feb}
	agg.HourlySums[13] = 2.5
	report := &reportapp.Report{Periods: []reportapp.PeriodReport{{Label: feb, Complete: true, Aggregate: agg}}}

	dir := t.TempDir()
	require.NoError(t, writeHourly(dir, report))

	file, err := os.Open(filepath.Join(dir, "hourly.csv"))
	require.NoError(t, err)
	defer file.Close()
	records, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 25)
	assert.Equal(t, []string{"2024-02", "13", "2.5"}, records[14])
}
