package http

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	reportapp "billing-cloud/internal/consumption/application"
)

const dateLayout = "2006-01-02"

// BuildReportPDF renders a report as PDF.
func BuildReportPDF(report *reportapp.Report) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Consumption Report")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Client: %s", report.ClientID))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Provider: %s", report.ProviderID))
	pdf.Ln(5)
	if report.UnitID != "" {
		pdf.Cell(0, 6, fmt.Sprintf("Unit: %s", report.UnitID))
		pdf.Ln(5)
	}
	pdf.Cell(0, 6, fmt.Sprintf("Cutoff: %s (%s, %s regime)", report.Cutoff.Setting, report.Cutoff.Source, report.Regime))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Window: %s - %s", report.From.Format(time.RFC3339), report.To.Format(time.RFC3339)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", report.GeneratedAt.Format(time.RFC3339)))
	pdf.Ln(5)
	if report.PartialPeriods > 0 {
		pdf.Cell(0, 6, fmt.Sprintf("Partial periods: %d", report.PartialPeriods))
		pdf.Ln(5)
	}

	pdf.Ln(4)
	pdf.Cell(0, 6, fmt.Sprintf("Total closed consumption (kWh): %.3f", report.TotalSum()))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 9)
	for _, header := range []struct {
		w     float64
		title string
	}{
		{20, "Period"}, {24, "From"}, {24, "To"}, {16, "Days"}, {30, "Sum (kWh)"}, {24, "Peak"}, {24, "Min"}, {18, "Status"},
	} {
		pdf.CellFormat(header.w, 6, header.title, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 9)
	for _, period := range report.Periods {
		status := "closed"
		if !period.Complete {
			status = "partial"
		}
		pdf.CellFormat(20, 6, period.Label.String(), "1", 0, "C", false, 0, "")
		pdf.CellFormat(24, 6, period.FirstDate.Format(dateLayout), "1", 0, "C", false, 0, "")
		pdf.CellFormat(24, 6, period.LastDate.Format(dateLayout), "1", 0, "C", false, 0, "")
		pdf.CellFormat(16, 6, fmt.Sprintf("%d/%d", period.DistinctDates, period.ExpectedDays), "1", 0, "C", false, 0, "")
		pdf.CellFormat(30, 6, fmt.Sprintf("%.3f", period.Aggregate.Sum), "1", 0, "R", false, 0, "")
		pdf.CellFormat(24, 6, fmt.Sprintf("%.3f", period.Aggregate.Max), "1", 0, "R", false, 0, "")
		pdf.CellFormat(24, 6, fmt.Sprintf("%.3f", period.Aggregate.Min), "1", 0, "R", false, 0, "")
		pdf.CellFormat(18, 6, status, "1", 0, "C", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildReportXLSX renders a report as XLSX with summary, periods and hourly sheets.
func BuildReportXLSX(report *reportapp.Report) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	summarySheet := "summary"
	periodsSheet := "periods"
	hourlySheet := "hourly"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(periodsSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(hourlySheet); err != nil {
		return nil, err
	}

	summary := [][2]any{
		{"Consumption Report", nil},
		{"Report ID", report.ID},
		{"Client", report.ClientID},
		{"Provider", report.ProviderID},
		{"Unit", report.UnitID},
		{"Cutoff", report.Cutoff.Setting.String()},
		{"Cutoff Source", string(report.Cutoff.Source)},
		{"Regime", report.Regime},
		{"Tolerance Days", report.ToleranceDays},
		{"Partial Periods", report.PartialPeriods},
		{"Total Closed (kWh)", report.TotalSum()},
		{"Generated", report.GeneratedAt.Format(time.RFC3339)},
	}
	for i, row := range summary {
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", i+1), row[0])
		if row[1] != nil {
			_ = f.SetCellValue(summarySheet, fmt.Sprintf("B%d", i+1), row[1])
		}
	}

	headers := []string{"Period", "From", "To", "Complete", "Expected Days", "Distinct Dates", "Months",
		"Sum (kWh)", "Peak", "Peak At", "Min", "Min At", "Weekday", "Weekend", "Daytime", "Nighttime", "Samples"}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(periodsSheet, cell, header)
	}
	_ = f.SetCellValue(hourlySheet, "A1", "Hour")
	for hour := 0; hour < 24; hour++ {
		_ = f.SetCellValue(hourlySheet, fmt.Sprintf("A%d", hour+2), hour)
	}

	for i, period := range report.Periods {
		agg := period.Aggregate
		values := []any{
			period.Label.String(),
			period.FirstDate.Format(dateLayout),
			period.LastDate.Format(dateLayout),
			period.Complete,
			period.ExpectedDays,
			period.DistinctDates,
			period.MonthsTouched,
			agg.Sum,
			agg.Max,
			agg.MaxAt.Format(time.RFC3339),
			agg.Min,
			agg.MinAt.Format(time.RFC3339),
			agg.WeekdaySum,
			agg.WeekendSum,
			agg.DaytimeSum,
			agg.NighttimeSum,
			agg.SampleCount,
		}
		for col, value := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, i+2)
			_ = f.SetCellValue(periodsSheet, cell, value)
		}

		header, _ := excelize.CoordinatesToCellName(i+2, 1)
		_ = f.SetCellValue(hourlySheet, header, period.Label.String())
		for hour, sum := range agg.HourlySums {
			cell, _ := excelize.CoordinatesToCellName(i+2, hour+2)
			_ = f.SetCellValue(hourlySheet, cell, sum)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
