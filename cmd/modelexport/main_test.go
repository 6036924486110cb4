package main

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dailyCSV = "date,taluka,rainfall_mm\n" +
	"2020-01-02,Karvir,0.0\n" +
	"2020-01-01,Karvir,12.5\n" +
	"2020-01-01,Ajra,3.0\n" +
	"2020-01-02,Ajra,\n"

func writeDaily(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rainfall_daily.csv")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

func TestRun_WritesModelFiles(t *testing.T) {
	out := t.TempDir()
	err := run([]string{
		"-daily", writeDaily(t, dailyCSV),
		"-regions", "../../config/panchganga.json",
		"-out", out,
	}, quiet())
	require.NoError(t, err)

	assert.Equal(t, "01JAN2020\t0000\t3.00\n02JAN2020\t0000\t-901.00\n",
		readFile(t, filepath.Join(out, "Ajra_HEC_HMS_format.txt")))

	swat := readFile(t, filepath.Join(out, "Ajra_SWAT_format.txt"))
	assert.True(t, strings.HasPrefix(swat, "Ajra Taluka - Panchganga Basin\nKolhapur, Maharashtra\n"))
	assert.Contains(t, swat, "2020\t1\t2\t-99.00\n")

	assert.Equal(t, "date,taluka,rainfall_mm\n2020-01-01,Karvir,12.5\n2020-01-02,Karvir,0.0\n",
		readFile(t, filepath.Join(out, "Karvir_rainfall_2020_2020.csv")))

	stats := readFile(t, filepath.Join(out, "Taluka_Rainfall_Statistics.csv"))
	assert.Contains(t, stats, "\nKarvir,")
	assert.Contains(t, stats, "\nAjra,539.00,")
}

func TestRun_SelectedFormats(t *testing.T) {
	out := t.TempDir()
	err := run([]string{
		"-daily", writeDaily(t, dailyCSV),
		"-regions", "../../config/panchganga.json",
		"-out", out,
		"-formats", "hec_hms",
	}, quiet())
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(out, "Ajra_HEC_HMS_format.txt"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(out, "Ajra_SWAT_format.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestRun_RejectsMonthlyInput(t *testing.T) {
	path := writeDaily(t, "year,month,taluka,rainfall_mm\n2020,1,Ajra,3.0\n")
	err := run([]string{"-daily", path, "-regions", "../../config/panchganga.json", "-out", t.TempDir()}, quiet())
	assert.ErrorContains(t, err, "want a daily dataset")
}

func TestRun_UnknownTaluka(t *testing.T) {
	path := writeDaily(t, "date,taluka,rainfall_mm\n2020-01-01,Nowhere,3.0\n")
	err := run([]string{"-daily", path, "-regions", "../../config/panchganga.json", "-out", t.TempDir()}, quiet())
	assert.ErrorContains(t, err, "unknown region")
}

func TestParseFormats(t *testing.T) {
	got, err := parseFormats(" SWAT, stats ,")
	require.NoError(t, err)
	assert.Equal(t, []string{"swat", "stats"}, got)

	_, err = parseFormats("mike_she")
	assert.ErrorContains(t, err, "unknown format")

	_, err = parseFormats(" , ")
	assert.Error(t, err)
}
