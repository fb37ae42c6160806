package join

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"votefuse/internal/index"
	"votefuse/pkg/contract"
	"votefuse/plugins/decoder/csvtable"
)

func fixtures() (*index.Members, *index.Bills) {
	members := index.MembersFrom([]contract.MemberRecord{
		{ICPSR: 7, Chamber: "Senate", PartyCode: "200", NominateDim1: 0.5, NominateDim2: -0.2, PiecesCosponsored: 10, NumCongresses: 2, Name: "X"},
		{ICPSR: 8, Chamber: "Senate", PartyCode: "100", Name: "Y"},
	})
	bills := index.BillsFrom([]contract.BillRecord{
		{RollNumber: "42", NominateMid1: 0.3, NominateMid2: 0.1, DemCosponsors: 20, RepCosponsors: 30, BillNumber: "HR1", VoteDesc: "d", VoteResult: "Bill Passed"},
		{RollNumber: "43", BillNumber: "S5"},
	})
	return members, bills
}

func drain(t *testing.T, s *Stream) ([]contract.MergedRow, error) {
	t.Helper()
	var out []contract.MergedRow
	for {
		m, done, err := s.Next(context.Background())
		if err != nil {
			return out, err
		}
		if done {
			return out, nil
		}
		out = append(out, m)
	}
}

func TestJoinMergesAndCoerces(t *testing.T) {
	members, bills := fixtures()
	in := contract.NewSliceBallots([]contract.Ballot{{Line: 2, ICPSR: "7.0", RollNumber: "42", CastCode: "1"}})
	rows, err := drain(t, New(members, bills, in, nil))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	m := rows[0]
	assert.Equal(t, 7, m.ICPSR)
	assert.Equal(t, "42", m.RollNumber)
	assert.Equal(t, 1, m.Vote)
	assert.Equal(t, "X", m.Member.Name)
	assert.Equal(t, "HR1", m.Bill.BillNumber)
	assert.Equal(t, 20.0, m.Bill.DemCosponsors)
}

func TestJoinPreservesOrder(t *testing.T) {
	members, bills := fixtures()
	in := contract.NewSliceBallots([]contract.Ballot{
		{Line: 2, ICPSR: "8", RollNumber: "43", CastCode: "6"},
		{Line: 3, ICPSR: "7", RollNumber: "42", CastCode: "1"},
		{Line: 4, ICPSR: "8", RollNumber: "42", CastCode: "9"},
		{Line: 5, ICPSR: "7", RollNumber: "43", CastCode: "4.0"},
	})
	rows, err := drain(t, New(members, bills, in, nil))
	require.NoError(t, err)
	var lines []int
	for _, r := range rows {
		lines = append(lines, r.Line)
	}
	assert.Equal(t, []int{2, 3, 4, 5}, lines)
	assert.Equal(t, 4, rows[3].Vote)
}

// 成员缺失：零输出、一条诊断、不崩溃。
func TestJoinUnresolvedMember(t *testing.T) {
	members, bills := fixtures()
	var skips []contract.Skip
	s := New(members, bills, contract.NewSliceBallots([]contract.Ballot{{Line: 2, ICPSR: "99", RollNumber: "42", CastCode: "1"}}), func(k contract.Skip) {
		skips = append(skips, k)
	})
	rows, err := drain(t, s)
	require.NoError(t, err)
	assert.Empty(t, rows)
	require.Len(t, skips, 1)
	assert.Equal(t, contract.SkipMemberUnresolved, skips[0].Reason)
	assert.Equal(t, "99", skips[0].ICPSR)
	assert.Contains(t, skips[0].Detail, "99")
	assert.EqualValues(t, 1, s.Seen())
}

// 账单缺失：致命的 JoinIntegrityError。
func TestJoinIntegrity(t *testing.T) {
	members, bills := fixtures()
	in := contract.NewSliceBallots([]contract.Ballot{
		{Line: 2, ICPSR: "7", RollNumber: "42", CastCode: "1"},
		{Line: 3, ICPSR: "7", RollNumber: "999", CastCode: "1"},
	})
	rows, err := drain(t, New(members, bills, in, nil))
	require.ErrorIs(t, err, contract.ErrJoinIntegrity)
	var jerr *contract.JoinIntegrityError
	require.ErrorAs(t, err, &jerr)
	assert.Equal(t, "999", jerr.RollNumber)
	assert.Equal(t, 3, jerr.Line)
	assert.Len(t, rows, 1)
}

// 成员检查先于账单检查：两者皆缺失时为可恢复跳过。
func TestJoinMemberCheckFirst(t *testing.T) {
	members, bills := fixtures()
	n := 0
	rows, err := drain(t, New(members, bills, contract.NewSliceBallots([]contract.Ballot{{ICPSR: "99", RollNumber: "999", CastCode: "1"}}), func(contract.Skip) { n++ }))
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Equal(t, 1, n)
}

func TestJoinInvalidCells(t *testing.T) {
	members, bills := fixtures()
	_, err := drain(t, New(members, bills, contract.NewSliceBallots([]contract.Ballot{{Line: 2, ICPSR: "abc", RollNumber: "42", CastCode: "1"}}), nil))
	var ce *contract.CellError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "icpsr", ce.Column)

	_, err = drain(t, New(members, bills, contract.NewSliceBallots([]contract.Ballot{{Line: 2, ICPSR: "7", RollNumber: "42", CastCode: "yea"}}), nil))
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "cast_code", ce.Column)
	assert.Equal(t, contract.SourceID("ballots"), ce.Source)
}

func TestBallotsAdapter(t *testing.T) {
	tb, err := csvtable.Open("S119_votes_CLEANSED.csv", strings.NewReader("congress,chamber,rollnumber,icpsr,cast_code,prob\n119,Senate,42,7.0,1,99.2\n"), nil, nil)
	require.NoError(t, err)
	bs, err := NewBallots(tb)
	require.NoError(t, err)
	assert.Equal(t, contract.SourceID("S119_votes_CLEANSED.csv"), bs.Source())

	members, bills := fixtures()
	rows, err := drain(t, New(members, bills, bs, nil))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 2, rows[0].Line)

	tb, err = csvtable.Open("v.csv", strings.NewReader("icpsr,rollnumber\n1,2\n"), nil, nil)
	require.NoError(t, err)
	_, err = NewBallots(tb)
	var se *contract.SchemaError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "cast_code", se.Column)
}
