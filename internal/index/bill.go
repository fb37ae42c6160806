package index

import (
	"context"

	"votefuse/pkg/contract"
	"votefuse/plugins/decoder/csvtable"
)

// 账单（rollcall）源必需列。
var BillColumns = []string{
	"rollnumber",
	"nominate_mid_1", "nominate_mid_2",
	"dem_cosponsors", "rep_cosponsors",
	"bill_number", "vote_desc", "vote_result",
}

// Bills: 按 rollnumber（原样字符串）的只读账单索引。
type Bills struct {
	byRoll     map[string]contract.BillRecord
	overwrites int
}

func (b *Bills) Lookup(rollnumber string) (contract.BillRecord, bool) {
	if b == nil {
		return contract.BillRecord{}, false
	}
	rec, ok := b.byRoll[rollnumber]
	return rec, ok
}

func (b *Bills) Len() int {
	if b == nil {
		return 0
	}
	return len(b.byRoll)
}

func (b *Bills) Overwrites() int {
	if b == nil {
		return 0
	}
	return b.overwrites
}

// BuildBills 与 BuildMembers 对称；rollnumber 不做类型转换。
func BuildBills(ctx context.Context, src contract.RowSource) (*Bills, error) {
	if err := requireColumns(src, BillColumns); err != nil {
		return nil, err
	}
	out := &Bills{byRoll: make(map[string]contract.BillRecord)}
	id := src.Source()
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r, done, err := src.Next()
		if err != nil {
			return nil, err
		}
		if done {
			return out, nil
		}
		rec, err := billFromRow(id, r)
		if err != nil {
			return nil, err
		}
		if _, dup := out.byRoll[rec.RollNumber]; dup {
			out.overwrites++
		}
		out.byRoll[rec.RollNumber] = rec
	}
}

func billFromRow(id contract.SourceID, r contract.Row) (contract.BillRecord, error) {
	var (
		rec contract.BillRecord
		err error
	)
	rec.RollNumber = r.Get("rollnumber")
	if rec.NominateMid1, err = csvtable.Cell(id, r, "nominate_mid_1"); err != nil {
		return rec, err
	}
	if rec.NominateMid2, err = csvtable.Cell(id, r, "nominate_mid_2"); err != nil {
		return rec, err
	}
	if rec.DemCosponsors, err = countCell(id, r, "dem_cosponsors"); err != nil {
		return rec, err
	}
	if rec.RepCosponsors, err = countCell(id, r, "rep_cosponsors"); err != nil {
		return rec, err
	}
	rec.BillNumber = r.Get("bill_number")
	rec.VoteDesc = r.Get("vote_desc")
	rec.VoteResult = r.Get("vote_result")
	return rec, nil
}

// BillsFrom 以内存记录序列构建索引，重复键同样后写覆盖。
func BillsFrom(recs []contract.BillRecord) *Bills {
	out := &Bills{byRoll: make(map[string]contract.BillRecord, len(recs))}
	for _, rec := range recs {
		if _, dup := out.byRoll[rec.RollNumber]; dup {
			out.overwrites++
		}
		out.byRoll[rec.RollNumber] = rec
	}
	return out
}
