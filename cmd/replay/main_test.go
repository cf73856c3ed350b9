package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func line(side string, seq, clock, price, size string) string {
	return strings.Join([]string{
		"2019-06-28", "PETR4", side, seq, seq, "1", clock, "0", price, size, "0",
		"2019-06-28", "2019-06-28 10:00:00", "0", "2", "1",
	}, ";")
}

func writeFile(t *testing.T, path string, lines ...string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
}

func TestRun_PrintsSnapshotsAndSpreads(t *testing.T) {
	dir := t.TempDir()
	buy := filepath.Join(dir, "OFER_CPA.txt")
	sell := filepath.Join(dir, "OFER_VDA.txt")
	writeFile(t, buy, "RH OFER_CPA", line("1", "1", "10:00:00.000", "26.70", "100"), "RT 1")
	writeFile(t, sell, "RH OFER_VDA",
		line("2", "2", "10:00:01.000", "26.75", "50"),
		line("2", "3", "10:00:02.000", "26.70", "40"),
		"RT 2",
	)

	var out bytes.Buffer
	err := run(context.Background(), options{
		instrument: "PETR4",
		buy:        []string{buy},
		sell:       []string{sell},
		psup:       100_000,
		tick:       1,
		phase:      "open",
		decimals:   2,
		location:   "UTC",
		schedule:   []string{"2019-06-28T10:00:01.5Z"},
	}, zap.NewNop(), &out)
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "snapshot")
	assert.Contains(t, text, "2019-06-28T10:00:01.5Z")
	assert.Contains(t, text, "events 3")
	assert.Contains(t, text, "fills 1")
	assert.Contains(t, text, "spreads 2")
}

func TestRun_Validation(t *testing.T) {
	err := run(context.Background(), options{phase: "open", location: "UTC"}, zap.NewNop(), &bytes.Buffer{})
	assert.Error(t, err)

	err = run(context.Background(), options{instrument: "PETR4", phase: "halted", location: "UTC"}, zap.NewNop(), &bytes.Buffer{})
	assert.Error(t, err)

	err = run(context.Background(), options{instrument: "PETR4", phase: "open", location: "UTC", from: "noon"}, zap.NewNop(), &bytes.Buffer{})
	assert.Error(t, err)
}
