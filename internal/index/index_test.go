package index

import (
	"context"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"votefuse/pkg/contract"
	"votefuse/plugins/decoder/csvtable"
)

const memberHeader = "congress,chamber,icpsr,state_abbrev,party_code,bioname,born,nominate_dim1,nominate_dim2,pieces_cosponsored,num_congresses\n"

func openTable(t *testing.T, name, body string) *csvtable.Table {
	t.Helper()
	tb, err := csvtable.Open(contract.SourceID(name), strings.NewReader(body), nil, nil)
	require.NoError(t, err)
	return tb
}

// 无重复键时，逐一查找应得到与输入约简记录相等的结果。
func TestBuildMembersLookupEquality(t *testing.T) {
	want := []contract.MemberRecord{
		{ICPSR: 40300, PartyCode: "200", Chamber: "Senate", NominateDim1: 0.203, NominateDim2: -0.304, PiecesCosponsored: 3539, NumCongresses: 12, Name: "MURKOWSKI, Lisa"},
		{ICPSR: 49703, PartyCode: "200", Chamber: "Senate", NominateDim1: 0.124, NominateDim2: -0.505, PiecesCosponsored: 6525, NumCongresses: 14, Name: "COLLINS, Susan Margaret"},
		{ICPSR: 41301, PartyCode: "100", Chamber: "Senate", NominateDim1: -0.744, NominateDim2: -0.37, PiecesCosponsored: 4213, NumCongresses: 5, Name: "WARREN, Elizabeth"},
	}
	var b strings.Builder
	b.WriteString(memberHeader)
	for _, m := range want {
		fmt.Fprintf(&b, "118,%s,%d.0,AK,%s,\"%s\",1957,%v,%v,%v,%v\n", m.Chamber, m.ICPSR, m.PartyCode, m.Name, m.NominateDim1, m.NominateDim2, m.PiecesCosponsored, m.NumCongresses)
	}
	idx, err := BuildMembers(context.Background(), openTable(t, "S118_members_API.csv", b.String()))
	require.NoError(t, err)
	require.Equal(t, len(want), idx.Len())
	assert.Zero(t, idx.Overwrites())
	for _, m := range want {
		got, ok := idx.Lookup(m.ICPSR)
		require.True(t, ok, "icpsr %d", m.ICPSR)
		assert.Equal(t, m, got)
	}
	_, ok := idx.Lookup(99)
	assert.False(t, ok)
}

// 重复 icpsr：后写覆盖，不报错。
func TestBuildMembersLastWriteWins(t *testing.T) {
	body := memberHeader +
		"118,House,7,NY,100,FIRST,1980,0.1,0.1,1,1\n" +
		"118,House,7,NY,200,SECOND,1980,0.2,0.2,2,2\n"
	idx, err := BuildMembers(context.Background(), openTable(t, "m.csv", body))
	require.NoError(t, err)
	assert.Equal(t, 1, idx.Len())
	assert.Equal(t, 1, idx.Overwrites())
	got, _ := idx.Lookup(7)
	assert.Equal(t, "SECOND", got.Name)
	assert.Equal(t, "200", got.PartyCode)
}

func TestBuildMembersSchemaError(t *testing.T) {
	body := "icpsr,party_code,chamber,nominate_dim1,nominate_dim2,pieces_cosponsored,bioname\n1,100,House,0,0,0,X\n"
	_, err := BuildMembers(context.Background(), openTable(t, "m.csv", body))
	var se *contract.SchemaError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "num_congresses", se.Column)
}

func TestBuildMembersCells(t *testing.T) {
	// 空数值单元格记为 NaN
	idx, err := BuildMembers(context.Background(), openTable(t, "m.csv", memberHeader+"118,President,99912,USA,200,\"TRUMP, Donald\",1946,,,0,0\n"))
	require.NoError(t, err)
	got, ok := idx.Lookup(99912)
	require.True(t, ok)
	assert.True(t, math.IsNaN(got.NominateDim1))
	assert.True(t, math.IsNaN(got.NominateDim2))

	_, err = BuildMembers(context.Background(), openTable(t, "m.csv", memberHeader+"118,House,x,NY,100,N,1,0,0,0,0\n"))
	require.ErrorIs(t, err, contract.ErrInvalidInput)

	_, err = BuildMembers(context.Background(), openTable(t, "m.csv", memberHeader+"118,House,1,NY,100,N,1,0,0,-4,0\n"))
	var ce *contract.CellError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "pieces_cosponsored", ce.Column)
}

func TestBuildMembersCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := BuildMembers(ctx, openTable(t, "m.csv", memberHeader+"118,House,1,NY,100,N,1,0,0,0,0\n"))
	assert.ErrorIs(t, err, context.Canceled)
}

const billHeader = "congress,chamber,rollnumber,date,bill_number,vote_result,vote_desc,vote_question,nominate_mid_1,nominate_mid_2,dem_cosponsors,rep_cosponsors\n"

func TestBuildBills(t *testing.T) {
	body := billHeader +
		"119,Senate,42,2025-07-01,HR1,Bill Passed,d,On Passage of the Bill,0.3,0.1,20,30\n" +
		"119,Senate,043,2025-07-02,S5,Bill Defeated,,On Passage of the Bill,-0.1,0.2,0,0\n"
	idx, err := BuildBills(context.Background(), openTable(t, "S119_rollcalls_CLEANSED_API.csv", body))
	require.NoError(t, err)
	require.Equal(t, 2, idx.Len())

	got, ok := idx.Lookup("42")
	require.True(t, ok)
	assert.Equal(t, contract.BillRecord{
		RollNumber: "42", NominateMid1: 0.3, NominateMid2: 0.1,
		DemCosponsors: 20, RepCosponsors: 30,
		BillNumber: "HR1", VoteDesc: "d", VoteResult: "Bill Passed",
	}, got)

	// 原样比较：不做数值归一
	_, ok = idx.Lookup("43")
	assert.False(t, ok)
	_, ok = idx.Lookup("043")
	assert.True(t, ok)
}

func TestBuildBillsDuplicatesAndErrors(t *testing.T) {
	body := billHeader +
		"119,Senate,42,,HR1,Bill Passed,first,,0,0,1,1\n" +
		"119,Senate,42,,HR1,Bill Passed,second,,0,0,2,2\n"
	idx, err := BuildBills(context.Background(), openTable(t, "b.csv", body))
	require.NoError(t, err)
	assert.Equal(t, 1, idx.Overwrites())
	got, _ := idx.Lookup("42")
	assert.Equal(t, "second", got.VoteDesc)

	_, err = BuildBills(context.Background(), openTable(t, "b.csv", "rollnumber,bill_number\n1,HR1\n"))
	require.ErrorIs(t, err, contract.ErrSchema)

	_, err = BuildBills(context.Background(), openTable(t, "b.csv", billHeader+"119,Senate,1,,HR1,,,,0,0,many,0\n"))
	require.ErrorIs(t, err, contract.ErrInvalidInput)
}

func TestFromSlices(t *testing.T) {
	m := MembersFrom([]contract.MemberRecord{{ICPSR: 1, Name: "a"}, {ICPSR: 1, Name: "b"}})
	got, _ := m.Lookup(1)
	assert.Equal(t, "b", got.Name)
	assert.Equal(t, 1, m.Overwrites())

	b := BillsFrom([]contract.BillRecord{{RollNumber: "1"}, {RollNumber: "2"}})
	assert.Equal(t, 2, b.Len())

	var nilIdx *Members
	_, ok := nilIdx.Lookup(1)
	assert.False(t, ok)
	assert.Zero(t, nilIdx.Len())
}
