// Package exportsvc renders the financial ledger as a spreadsheet.
package exportsvc

import (
	"io"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/trezcool/escola/core/billing"
)

const (
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	boletosSheet = "Boletos"
	summarySheet = "Summary"
)

var (
	boletosHeader = []string{"Guardian", "Due date", "Amount", "Status", "Attachment"}
	summaryHeader = []string{"Status", "Count", "Total"}
)

// WriteBoletos writes the boletos and their per-status summary as an xlsx workbook.
// `guardians` maps guardian ids to names; unknown ids are written as is.
func WriteBoletos(w io.Writer, boletos []billing.Boleto, summary []billing.SummaryRow, guardians map[string]string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", boletosSheet); err != nil {
		return errors.Wrap(err, "renaming sheet")
	}
	if _, err := f.NewSheet(summarySheet); err != nil {
		return errors.Wrap(err, "creating summary sheet")
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return errors.Wrap(err, "creating header style")
	}
	money, err := f.NewStyle(&excelize.Style{NumFmt: 4}) // #,##0.00
	if err != nil {
		return errors.Wrap(err, "creating amount style")
	}

	if err := writeHeader(f, boletosSheet, boletosHeader, bold); err != nil {
		return err
	}
	for i, b := range boletos {
		name, ok := guardians[b.GuardianID]
		if !ok {
			name = b.GuardianID
		}
		attachment := ""
		if b.HasAttachment() {
			attachment = b.FilePath.String
		}
		row := []interface{}{name, b.DueDate.String(), b.Amount.Float(), string(b.Status), attachment}
		if err := setRow(f, boletosSheet, i+2, row); err != nil {
			return err
		}
	}
	if len(boletos) > 0 {
		if err := styleColumn(f, boletosSheet, 3, len(boletos), money); err != nil {
			return err
		}
	}
	_ = f.SetColWidth(boletosSheet, "A", "A", 30)
	_ = f.SetColWidth(boletosSheet, "B", "D", 14)
	_ = f.SetColWidth(boletosSheet, "E", "E", 40)

	if err := writeHeader(f, summarySheet, summaryHeader, bold); err != nil {
		return err
	}
	for i, s := range summary {
		if err := setRow(f, summarySheet, i+2, []interface{}{string(s.Status), s.Count, s.Total.Float()}); err != nil {
			return err
		}
	}
	if len(summary) > 0 {
		if err := styleColumn(f, summarySheet, 3, len(summary), money); err != nil {
			return err
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return errors.Wrap(err, "writing workbook")
	}
	return nil
}

func writeHeader(f *excelize.File, sheet string, header []string, style int) error {
	cells := make([]interface{}, len(header))
	for i, h := range header {
		cells[i] = h
	}
	if err := setRow(f, sheet, 1, cells); err != nil {
		return err
	}
	end, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return errors.Wrap(err, "header range")
	}
	if err := f.SetCellStyle(sheet, "A1", end, style); err != nil {
		return errors.Wrap(err, "styling header")
	}
	return f.AutoFilter(sheet, "A1:"+end, nil)
}

func setRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return errors.Wrap(err, "row coordinates")
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return errors.Wrapf(err, "writing %s!%s", sheet, cell)
	}
	return nil
}

func styleColumn(f *excelize.File, sheet string, col, rows, style int) error {
	from, err := excelize.CoordinatesToCellName(col, 2)
	if err != nil {
		return errors.Wrap(err, "column range")
	}
	to, err := excelize.CoordinatesToCellName(col, rows+1)
	if err != nil {
		return errors.Wrap(err, "column range")
	}
	return f.SetCellStyle(sheet, from, to, style)
}
