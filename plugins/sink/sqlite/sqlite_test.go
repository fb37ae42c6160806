package sqlite

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"votefuse/pkg/contract"
)

func row(icpsr int) contract.FeatureRow {
	return contract.FeatureRow{
		Name: "X", NominateDim1: 0.5, NominateDim2: -0.2, BillNumber: "HR1", VoteDesc: "d", VoteResult: "Bill Passed",
		NominateMid1: 0.3, NominateMid2: 0.1, PartyCode1: 0, PartyCode2: 1, Chamber: 1,
		Counts: contract.Counts{DemCosponsors: 0.5, RepCosponsors: 0.25, PiecesCosponsored: 0.001, NumCongresses: 0.05},
		Vote:   1, RollNumber: "42", ICPSR: icpsr,
	}
}

func readBack(t *testing.T, dsn, table string) []featureRecord {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	defer func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	}()
	var out []featureRecord
	require.NoError(t, db.Table(table).Order("seq").Find(&out).Error)
	return out
}

func TestTableName(t *testing.T) {
	assert.Equal(t, "nn_senate_119", TableName("out/NN_SENATE_119.csv"))
	assert.Equal(t, "t_119_x", TableName("119-x.db"))
	assert.Equal(t, "features_v1", TableName(`C:\data\features.v1.csv`))
}

func TestCommitPersistsInOrder(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "votes.db")
	s := New(&Options{DSN: dsn, BatchSize: 2})
	tw, err := s.Open(context.Background(), "NN_SENATE_119.csv")
	require.NoError(t, err)
	for _, id := range []int{9, 3, 7} {
		require.NoError(t, tw.Append(row(id)))
	}
	gap := row(11)
	gap.PartyCode1, gap.PartyCode2 = math.NaN(), math.NaN()
	require.NoError(t, tw.Append(gap))
	require.NoError(t, tw.Commit())

	got := readBack(t, dsn, "nn_senate_119")
	require.Len(t, got, 4)
	assert.Equal(t, []int{9, 3, 7, 11}, []int{got[0].ICPSR, got[1].ICPSR, got[2].ICPSR, got[3].ICPSR})
	assert.True(t, got[0].PartyCode2.Valid)
	assert.Equal(t, 1.0, got[0].PartyCode2.Float64)
	assert.False(t, got[3].PartyCode1.Valid)
	assert.Equal(t, "42", got[0].RollNumber)
}

// 重跑同一工件：表被整体替换，而非追加。
func TestRerunReplacesTable(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "votes.db")
	s := New(&Options{DSN: dsn, Table: "features"})
	for run := 0; run < 2; run++ {
		tw, err := s.Open(context.Background(), "x")
		require.NoError(t, err)
		require.NoError(t, tw.Append(row(run)))
		require.NoError(t, tw.Commit())
	}
	got := readBack(t, dsn, "features")
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].ICPSR)
}

// Abort：回滚后既有表保持原样。
func TestAbortRollsBack(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "votes.db")
	s := New(&Options{DSN: dsn, Table: "features", BatchSize: 1})
	tw, err := s.Open(context.Background(), "x")
	require.NoError(t, err)
	require.NoError(t, tw.Append(row(1)))
	require.NoError(t, tw.Commit())

	tw, err = s.Open(context.Background(), "x")
	require.NoError(t, err)
	require.NoError(t, tw.Append(row(2)))
	require.NoError(t, tw.Append(row(3)))
	tw.Abort(errors.New("join integrity"))
	assert.Error(t, tw.Commit())

	got := readBack(t, dsn, "features")
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].ICPSR)
}

func TestArtifactAsDatabasePath(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "NN_HOUSE_119.db")
	tw, err := New(nil).Open(context.Background(), contract.ArtifactID(dsn))
	require.NoError(t, err)
	require.NoError(t, tw.Append(row(5)))
	require.NoError(t, tw.Commit())
	assert.Len(t, readBack(t, dsn, "nn_house_119"), 1)
}

func TestOpenCanceledWhileBusy(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "votes.db")
	s := New(&Options{DSN: dsn})
	tw, err := s.Open(context.Background(), "a")
	require.NoError(t, err)
	defer tw.Abort(nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Open(ctx, "b")
	assert.ErrorIs(t, err, context.Canceled)
}
