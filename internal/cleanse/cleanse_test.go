package cleanse

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"votefuse/pkg/contract"
	fsreader "votefuse/plugins/reader/filesystem"
	fswriter "votefuse/plugins/writer/filesystem"
)

const senateRollcalls = `congress,chamber,rollnumber,bill_number,vote_result,vote_question
119,Senate,1,HR1,Bill Passed,On Passage of the Bill
119,Senate,2,S.Res.5,Motion to Table Agreed to,On the Motion to Table
119,Senate,3,HJRES7,Joint Resolution Defeated,On the Joint Resolution
119,Senate,4,HR9,Cloture Motion Agreed to,On the Cloture Motion
`

const houseRollcalls = `congress,chamber,rollnumber,bill_number,vote_result,vote_question
119,House,10,HR1,Passed,On Passage
119,House,11,HR1,Passed,On Motion to Recommit
119,House,12,HR2,Passed,On Passage
119,House,13,HJRES7,Failed,"On Motion to Suspend the Rules and Pass, as Amended"
`

func newCleanser(t *testing.T) *Cleanser {
	t.Helper()
	w, err := fswriter.New(nil)
	require.NoError(t, err)
	return &Cleanser{Reader: fsreader.New(nil), Writer: w}
}

func write(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func read(t *testing.T, p string) string {
	t.Helper()
	b, err := os.ReadFile(p)
	require.NoError(t, err)
	return string(b)
}

func TestOutput(t *testing.T) {
	cases := map[string]string{
		"data/S119_rollcalls.csv":   "data/S119_rollcalls_CLEANSED.csv",
		"H119_votes.csv":            "H119_votes_CLEANSED.csv",
		"H119_votes.csv.gz":         "H119_votes_CLEANSED.csv",
		"noext":                     "noext_CLEANSED",
		"dir.v2/S119_rollcalls.CSV": "dir.v2/S119_rollcalls_CLEANSED.CSV",
	}
	for in, want := range cases {
		assert.Equal(t, want, Output(in), in)
	}
}

func TestRollcalls(t *testing.T) {
	dir := t.TempDir()
	s := write(t, dir, "S119_rollcalls.csv", senateRollcalls)
	h := write(t, dir, "H119_rollcalls.csv", houseRollcalls)

	srep, hrep, err := newCleanser(t).Rollcalls(context.Background(), s, h)
	require.NoError(t, err)

	assert.Equal(t, Report{Source: s, Output: filepath.Join(dir, "S119_rollcalls_CLEANSED.csv"), Read: 4, Kept: 2}, srep)
	assert.Equal(t, `congress,chamber,rollnumber,bill_number,vote_result,vote_question
119,Senate,1,HR1,Bill Passed,On Passage of the Bill
119,Senate,3,HJRES7,Joint Resolution Defeated,On the Joint Resolution
`, read(t, srep.Output))

	// HR2 未在参议院保留；问题不在白名单的 HR1 行被丢弃
	assert.EqualValues(t, 2, hrep.Kept)
	assert.Equal(t, `congress,chamber,rollnumber,bill_number,vote_result,vote_question
119,House,10,HR1,Passed,On Passage
119,House,13,HJRES7,Failed,"On Motion to Suspend the Rules and Pass, as Amended"
`, read(t, hrep.Output))
}

func TestRollcallsSchemaError(t *testing.T) {
	dir := t.TempDir()
	s := write(t, dir, "S.csv", "rollnumber,bill_number\n1,HR1\n")
	h := write(t, dir, "H.csv", houseRollcalls)
	_, _, err := newCleanser(t).Rollcalls(context.Background(), s, h)
	require.ErrorIs(t, err, contract.ErrSchema)

	_, statErr := os.Stat(filepath.Join(dir, "S_CLEANSED.csv"))
	assert.True(t, os.IsNotExist(statErr))
	_, statErr = os.Stat(filepath.Join(dir, "H_CLEANSED.csv"))
	assert.True(t, os.IsNotExist(statErr), "house must not be processed after a senate failure")
}

func TestBallots(t *testing.T) {
	dir := t.TempDir()
	rc := write(t, dir, "S119_rollcalls_CLEANSED.csv", "rollnumber,bill_number\n1,HR1\n3,HJRES7\n")
	votes := write(t, dir, "S119_votes.csv", "congress,chamber,rollnumber,icpsr,cast_code,prob\n119,Senate,1,7,1,99\n119,Senate,2,7,6,98\n119,Senate,3,8,9,\n119,Senate,3.0,8,1,\n")

	rep, err := newCleanser(t).Ballots(context.Background(), rc, votes)
	require.NoError(t, err)
	assert.EqualValues(t, 4, rep.Read)
	assert.EqualValues(t, 2, rep.Kept)
	assert.Equal(t, "congress,chamber,rollnumber,icpsr,cast_code,prob\n119,Senate,1,7,1,99\n119,Senate,3,8,9,\n", read(t, rep.Output))
}

// 短行按表头宽度以空串补齐。
func TestBallotsPadsShortRows(t *testing.T) {
	dir := t.TempDir()
	rc := write(t, dir, "r.csv", "rollnumber\n42\n")
	votes := write(t, dir, "v.csv", "rollnumber,icpsr,cast_code,prob\n42,7\n42,8,1,99\n")

	rep, err := newCleanser(t).Ballots(context.Background(), rc, votes)
	require.NoError(t, err)
	assert.EqualValues(t, 2, rep.Kept)
	assert.Equal(t, "rollnumber,icpsr,cast_code,prob\n42,7,,\n42,8,1,99\n", read(t, rep.Output))
}

// 失败时保留旧产物。
func TestBallotsMissingRollcallsKeepsOldOutput(t *testing.T) {
	dir := t.TempDir()
	votes := write(t, dir, "v.csv", "rollnumber,icpsr\n1,7\n")
	old := write(t, dir, "v_CLEANSED.csv", "old")
	_, err := newCleanser(t).Ballots(context.Background(), filepath.Join(dir, "missing.csv"), votes)
	require.Error(t, err)
	assert.Equal(t, "old", read(t, old))
}

func TestBallotsCanceled(t *testing.T) {
	dir := t.TempDir()
	rc := write(t, dir, "r.csv", "rollnumber\n1\n")
	votes := write(t, dir, "v.csv", "rollnumber,icpsr\n1,7\n")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newCleanser(t).Ballots(ctx, rc, votes)
	require.ErrorIs(t, err, context.Canceled)
	_, statErr := os.Stat(filepath.Join(dir, "v_CLEANSED.csv"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestRejectsStdinAndMissingComponents(t *testing.T) {
	_, err := (&Cleanser{}).Ballots(context.Background(), "a", "b")
	assert.Error(t, err)

	dir := t.TempDir()
	rc := write(t, dir, "r.csv", "rollnumber\n1\n")
	_, err = newCleanser(t).Ballots(context.Background(), rc, "-")
	assert.ErrorIs(t, err, contract.ErrPathInvalid)
}
