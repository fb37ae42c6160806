package index

import (
	"context"
	"fmt"

	"votefuse/pkg/contract"
	"votefuse/plugins/decoder/csvtable"
)

// 成员源必需列。bioname 映射为 MemberRecord.Name。
var MemberColumns = []string{
	"icpsr", "party_code", "chamber",
	"nominate_dim1", "nominate_dim2",
	"pieces_cosponsored", "num_congresses",
	"bioname",
}

// Members: 按 ICPSR 的只读成员索引；构建后不再修改。
type Members struct {
	byID       map[int]contract.MemberRecord
	overwrites int
}

// Lookup 返回 icpsr 对应的保留记录。
func (m *Members) Lookup(icpsr int) (contract.MemberRecord, bool) {
	if m == nil {
		return contract.MemberRecord{}, false
	}
	rec, ok := m.byID[icpsr]
	return rec, ok
}

// Len 返回索引中的唯一 ICPSR 数。
func (m *Members) Len() int {
	if m == nil {
		return 0
	}
	return len(m.byID)
}

// Overwrites 返回构建期间被后写覆盖的重复键次数。
func (m *Members) Overwrites() int {
	if m == nil {
		return 0
	}
	return m.overwrites
}

// BuildMembers 从带表头的行源构建成员索引。
// 约束：
//  1. 缺少 MemberColumns 任一列 → *contract.SchemaError；
//  2. 重复 icpsr 后写覆盖，不报错（仅计数）；
//  3. icpsr 接受浮点文本；数值单元格为空记为 NaN；
//  4. 计数列为负或任一数值不可解析 → *contract.CellError。
func BuildMembers(ctx context.Context, src contract.RowSource) (*Members, error) {
	if err := requireColumns(src, MemberColumns); err != nil {
		return nil, err
	}
	out := &Members{byID: make(map[int]contract.MemberRecord)}
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
		rec, err := memberFromRow(id, r)
		if err != nil {
			return nil, err
		}
		if _, dup := out.byID[rec.ICPSR]; dup {
			out.overwrites++
		}
		out.byID[rec.ICPSR] = rec
	}
}

func memberFromRow(id contract.SourceID, r contract.Row) (contract.MemberRecord, error) {
	var (
		rec contract.MemberRecord
		err error
	)
	if rec.ICPSR, err = csvtable.IntCell(id, r, "icpsr"); err != nil {
		return rec, err
	}
	if rec.NominateDim1, err = csvtable.Cell(id, r, "nominate_dim1"); err != nil {
		return rec, err
	}
	if rec.NominateDim2, err = csvtable.Cell(id, r, "nominate_dim2"); err != nil {
		return rec, err
	}
	if rec.PiecesCosponsored, err = countCell(id, r, "pieces_cosponsored"); err != nil {
		return rec, err
	}
	if rec.NumCongresses, err = countCell(id, r, "num_congresses"); err != nil {
		return rec, err
	}
	rec.PartyCode = r.Get("party_code")
	rec.Chamber = r.Get("chamber")
	rec.Name = r.Get("bioname")
	return rec, nil
}

// countCell: 非负计数；NaN（缺失）放行。
func countCell(id contract.SourceID, r contract.Row, column string) (float64, error) {
	v, err := csvtable.Cell(id, r, column)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, &contract.CellError{Source: id, Line: r.Line(), Column: column, Value: r.Get(column)}
	}
	return v, nil
}

// requireColumns 对非 csvtable 的行源补做列校验（csvtable.Open 已校验时为幂等）。
func requireColumns(src contract.RowSource, cols []string) error {
	if src == nil {
		return fmt.Errorf("index: %w: nil row source", contract.ErrInvalidInput)
	}
	have := make(map[string]struct{}, len(cols))
	for _, c := range src.Columns() {
		have[c] = struct{}{}
	}
	for _, c := range cols {
		if _, ok := have[c]; !ok {
			return &contract.SchemaError{Source: src.Source(), Column: c}
		}
	}
	return nil
}

// MembersFrom 以内存记录序列构建索引，重复键同样后写覆盖。
func MembersFrom(recs []contract.MemberRecord) *Members {
	out := &Members{byID: make(map[int]contract.MemberRecord, len(recs))}
	for _, rec := range recs {
		if _, dup := out.byID[rec.ICPSR]; dup {
			out.overwrites++
		}
		out.byID[rec.ICPSR] = rec
	}
	return out
}
