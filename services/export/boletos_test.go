package exportsvc

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"
	"github.com/xuri/excelize/v2"

	"github.com/trezcool/escola/core"
	"github.com/trezcool/escola/core/billing"
)

func TestWriteBoletos(t *testing.T) {
	boletos := []billing.Boleto{
		{ID: "b1", GuardianID: "g1", Amount: 55000, DueDate: core.NewDate(2024, time.July, 10), Status: billing.StatusPending,
			FilePath: null.StringFrom("g1/b1.pdf")},
		{ID: "b2", GuardianID: "g9", Amount: 30050, DueDate: core.NewDate(2024, time.July, 15), Status: billing.StatusPaid},
	}
	summary := []billing.SummaryRow{
		{Status: billing.StatusPending, Count: 1, Total: 55000},
		{Status: billing.StatusPaid, Count: 1, Total: 30050},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteBoletos(&buf, boletos, summary, map[string]string{"g1": "Ana"}))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{boletosSheet, summarySheet}, f.GetSheetList())

	rows, err := f.GetRows(boletosSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, boletosHeader, rows[0])
	assert.Equal(t, []string{"Ana", "2024-07-10", "550.00", "a_vencer", "g1/b1.pdf"}, rows[1])
	assert.Equal(t, "g9", rows[2][0])

	raw, err := f.GetCellValue(boletosSheet, "C3", excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	assert.Equal(t, "300.5", raw)

	sums, err := f.GetRows(summarySheet)
	require.NoError(t, err)
	require.Len(t, sums, 3)
	assert.Equal(t, []string{"pago", "1", "300.50"}, sums[2])
}

func TestWriteBoletos_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteBoletos(&buf, nil, nil, nil))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(boletosSheet)
	require.NoError(t, err)
	assert.Equal(t, [][]string{boletosHeader}, rows)
}
