package contract

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNormalizeSourceID 验证路径规范化逻辑。
func TestNormalizeSourceID(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"平台分隔符", filepath.Join("a", "b", "c.csv"), "a/b/c.csv"},
		{"父目录", "./x/../y.csv", "y.csv"},
		{"空串", "", "."},
		{"STDIN", "-", "stdin"},
		{"Windows路径", "C:\\data\\S118_votes.csv", "C:/data/S118_votes.csv"},
		{"多余斜杠", "datafiles//NN_files///NN_HOUSE_118.csv", "datafiles/NN_files/NN_HOUSE_118.csv"},
		{"混合分隔符", "datafiles\\NN_files/./out.csv", "datafiles/NN_files/out.csv"},
		{"绝对路径", "/srv/data/../votes.csv", "/srv/votes.csv"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, SourceID(tt.expected), NormalizeSourceID(tt.input))
		})
	}
}

// TestTypedErrorsUnwrap 验证类型化错误可被哨兵匹配。
func TestTypedErrorsUnwrap(t *testing.T) {
	var err error = &SchemaError{Source: "members.csv", Column: "icpsr"}
	require.ErrorIs(t, err, ErrSchema)
	assert.Contains(t, err.Error(), `"icpsr"`)

	err = &JoinIntegrityError{Line: 7, RollNumber: "999"}
	require.ErrorIs(t, err, ErrJoinIntegrity)
	var jerr *JoinIntegrityError
	require.True(t, errors.As(err, &jerr))
	assert.Equal(t, "999", jerr.RollNumber)

	err = &CellError{Source: "bills.csv", Line: 3, Column: "dem_cosponsors", Value: "x"}
	require.ErrorIs(t, err, ErrInvalidInput)
	assert.NotErrorIs(t, err, ErrSchema)
}

// TestSliceBallots 验证内存选票流单向、有限、耗尽后保持 done。
func TestSliceBallots(t *testing.T) {
	s := NewSliceBallots([]Ballot{{Line: 2, ICPSR: "1"}, {Line: 3, ICPSR: "2"}})
	ctx := context.Background()
	b, done, err := s.Next(ctx)
	require.NoError(t, err)
	require.False(t, done)
	assert.Equal(t, "1", b.ICPSR)
	b, done, err = s.Next(ctx)
	require.NoError(t, err)
	require.False(t, done)
	assert.Equal(t, 3, b.Line)
	for i := 0; i < 2; i++ {
		_, done, err = s.Next(ctx)
		require.NoError(t, err)
		assert.True(t, done)
	}
}

func TestSliceBallotsCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := NewSliceBallots([]Ballot{{}}).Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func BenchmarkNormalizeSourceID(b *testing.B) {
	paths := []string{
		"C:\\Users\\analyst\\datafiles\\S118_votes.csv",
		"datafiles/../datafiles/./H119_rollcalls_CLEANSED_API.csv",
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for _, p := range paths {
			NormalizeSourceID(p)
		}
	}
}
