package writers_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/intelliw/LSAssetDataService/internal/etl"
	"github.com/intelliw/LSAssetDataService/internal/etl/writers"
)

func sample() *etl.Recordset {
	rs := etl.NewRecordset("Workflow Data", []string{"Asset Code", "Comment"})
	_ = rs.Append("MTM1", `He said "hi", bye`)
	_ = rs.Append("MTM2", "line\r\nbreak")
	return rs
}

func noTempFiles(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp-")
	}
}

// ── CSV ────────────────────────────────────────────────────

func TestEscapeCSV(t *testing.T) {
	assert.Equal(t, `"He said ""hi"", bye"`, writers.EscapeCSV(`He said "hi", bye`))
	assert.Equal(t, `a ""b""`, writers.EscapeCSV(`a "b"`), "quotes are doubled without wrapping")
	assert.Equal(t, "ab", writers.EscapeCSV("a\r\nb"))
	assert.Equal(t, "plain", writers.EscapeCSV("plain"))
}

func TestCSVWriter_Writes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "AssetDataFile_2024_03_15_09_30.csv")

	saved, err := writers.CSVWriter{}.Write(context.Background(), sample(), path, false)
	require.NoError(t, err)
	assert.True(t, saved)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Asset Code,Comment\nMTM1,\"He said \"\"hi\"\", bye\"\nMTM2,linebreak\n", string(b))
	noTempFiles(t, dir)
}

func TestCSVWriter_NoOverwrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.csv")
	require.NoError(t, os.WriteFile(path, []byte("prior"), 0o644))

	saved, err := writers.CSVWriter{}.Write(context.Background(), sample(), path, false)
	require.NoError(t, err)
	assert.False(t, saved)

	b, _ := os.ReadFile(path)
	assert.Equal(t, "prior", string(b))
	noTempFiles(t, dir)
}

func TestCSVWriter_Overwrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.csv")
	require.NoError(t, os.WriteFile(path, []byte("prior"), 0o644))

	saved, err := writers.CSVWriter{}.Write(context.Background(), sample(), path, true)
	require.NoError(t, err)
	assert.True(t, saved)

	b, _ := os.ReadFile(path)
	assert.Contains(t, string(b), "MTM1")
}

func TestCSVWriter_CancelledLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.csv")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	saved, err := writers.CSVWriter{}.Write(ctx, sample(), path, false)
	assert.Error(t, err)
	assert.False(t, saved)
	assert.NoFileExists(t, path)
	noTempFiles(t, dir)
}

func TestCSVWriter_MissingDirFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "out.csv")
	saved, err := writers.CSVWriter{}.Write(context.Background(), sample(), path, false)
	assert.Error(t, err)
	assert.False(t, saved)
}

// ── XLSX ───────────────────────────────────────────────────

func TestXLSXWriter_WritesSheets(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "AssetPARDataFile_2024_03_15_09_30.xlsx")

	rs := etl.NewRecordset("PAR Data", []string{"Cur-Status", "Cur-Qty", "Tag"})
	require.NoError(t, rs.Append("Below PAR", "9", "55544D3432393436"))
	require.NoError(t, rs.Append("", "0012", "5554343239343636"))
	sup := etl.NewRecordset("PAR Count", []string{"Cur-Qty", "Zone"})
	require.NoError(t, sup.Append("4", "LBS02"))
	rs.Supplementary = sup

	saved, err := writers.XLSXWriter{}.Write(context.Background(), rs, path, false)
	require.NoError(t, err)
	require.True(t, saved)
	noTempFiles(t, dir)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"PAR Data", "PAR Count"}, f.GetSheetList())

	rows, err := f.GetRows("PAR Data")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Cur-Status", "Cur-Qty", "Tag"}, rows[0])
	assert.Equal(t, []string{"Below PAR", "9", "55544D3432393436"}, rows[1])
	assert.Equal(t, "0012", rows[2][1], "leading zeros stay text")
	assert.Equal(t, "5554343239343636", rows[2][2], "long digit strings stay text")

	typ, err := f.GetCellType("PAR Data", "B2")
	require.NoError(t, err)
	assert.NotEqual(t, excelize.CellTypeSharedString, typ)
	assert.NotEqual(t, excelize.CellTypeInlineString, typ)

	supRows, err := f.GetRows("PAR Count")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Cur-Qty", "Zone"}, {"4", "LBS02"}}, supRows)
}

func TestXLSXWriter_StripsLineBreaksOnly(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.xlsx")

	saved, err := writers.XLSXWriter{}.Write(context.Background(), sample(), path, false)
	require.NoError(t, err)
	require.True(t, saved)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Workflow Data")
	require.NoError(t, err)
	assert.Equal(t, `He said "hi", bye`, rows[1][1])
	assert.Equal(t, "linebreak", rows[2][1])
}

func TestForFormat(t *testing.T) {
	w, err := writers.ForFormat(etl.FormatCSV)
	require.NoError(t, err)
	assert.IsType(t, writers.CSVWriter{}, w)

	w, err = writers.ForFormat(etl.FormatXLSX)
	require.NoError(t, err)
	assert.IsType(t, writers.XLSXWriter{}, w)

	_, err = writers.ForFormat("pdf")
	assert.Error(t, err)
}
