package describe

import (
	"bytes"
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"votefuse/internal/emit"
	"votefuse/pkg/contract"
	fsreader "votefuse/plugins/reader/filesystem"
)

var golden = filepath.Join("..", "..", "testdata", "votes", "golden")

func TestFeaturesAreEmitted(t *testing.T) {
	h := emit.Header()
	for _, f := range append(Features, Target) {
		assert.Contains(t, h, f)
	}
}

func TestSummarizeSenate(t *testing.T) {
	s, err := Summarize(context.Background(), fsreader.New(nil), nil, filepath.Join(golden, "NN_SENATE_119.csv"))
	require.NoError(t, err)
	assert.EqualValues(t, 5, s.Rows)
	assert.Equal(t, map[int]int64{0: 2, 1: 3}, s.Votes)
	require.Len(t, s.Columns, len(Features))

	p1, ok := s.Column("party_code_1")
	require.True(t, ok)
	assert.Equal(t, 4, p1.Count)
	assert.Equal(t, 1, p1.Missing)
	assert.InDelta(t, 0.25, p1.Mean, 1e-12)
	assert.Equal(t, 0.0, p1.Min)
	assert.Equal(t, 1.0, p1.Max)

	ch, _ := s.Column("chamber")
	assert.Equal(t, 1.0, ch.Mean)
	assert.Equal(t, 0.0, ch.Std)
	assert.Equal(t, 1.0, ch.Median)

	dem, _ := s.Column("dem_cosponsors")
	assert.Equal(t, 2, dem.AboveOne)
	assert.InDelta(t, 600.0/535, dem.Max, 1e-12)

	pieces, _ := s.Column("pieces_cosponsored")
	assert.Equal(t, 0, pieces.AboveOne, "exactly 1.0 is not above range")
	assert.Equal(t, 1.0, pieces.Max)

	_, ok = s.Column("icpsr")
	assert.False(t, ok)
}

func TestSummarizeMergesTables(t *testing.T) {
	s, err := Summarize(context.Background(), fsreader.New(nil), nil,
		filepath.Join(golden, "NN_SENATE_119.csv"), filepath.Join(golden, "NN_HOUSE_119.csv"))
	require.NoError(t, err)
	assert.EqualValues(t, 7, s.Rows)
	assert.Len(t, s.Sources, 2)
	assert.Equal(t, map[int]int64{0: 3, 1: 4}, s.Votes)
	ch, _ := s.Column("chamber")
	assert.InDelta(t, 5.0/7, ch.Mean, 1e-12)
}

func TestSummarizeErrors(t *testing.T) {
	dir := t.TempDir()
	r := fsreader.New(nil)

	_, err := Summarize(context.Background(), r, nil)
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.csv")
	require.NoError(t, os.WriteFile(bad, []byte("name,vote\nx,1\n"), 0o644))
	_, err = Summarize(context.Background(), r, nil, bad)
	assert.ErrorIs(t, err, contract.ErrSchema)

	cell := filepath.Join(dir, "cell.csv")
	header := strings.Join(append(append([]string(nil), Features...), Target), ",")
	require.NoError(t, os.WriteFile(cell, []byte(header+"\n0,1,1,0.1,0.1,0.1,0.1,0.2,0.3,0.1,0.2,yes\n"), 0o644))
	_, err = Summarize(context.Background(), r, nil, cell)
	var ce *contract.CellError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "vote", ce.Column)
	assert.Equal(t, 2, ce.Line)
}

func TestColumnEdgeCases(t *testing.T) {
	c := column("x", nil, 3)
	assert.Equal(t, 3, c.Missing)
	assert.True(t, math.IsNaN(c.Mean))

	c = column("x", []float64{2}, 0)
	assert.Equal(t, 2.0, c.Mean)
	assert.True(t, math.IsNaN(c.Std))
	assert.Equal(t, 1, c.AboveOne)
}

func TestRender(t *testing.T) {
	s, err := Summarize(context.Background(), fsreader.New(nil), nil, filepath.Join(golden, "NN_HOUSE_119.csv"))
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, s.Render(&buf))
	out := buf.String()
	assert.Regexp(t, `(?m)^rows\s+2$`, out)
	assert.Contains(t, out, "vote=0")
	assert.Contains(t, out, "(0.5)")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.True(t, strings.HasPrefix(lines[len(lines)-1], "nominate_mid_2"))
}
