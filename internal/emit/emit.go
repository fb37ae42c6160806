package emit

import (
	"math"
	"strconv"

	"votefuse/internal/encode"
	"votefuse/pkg/contract"
)

// Layout 为输出表版本号，与编码表版本同步提升。
const Layout = encode.Version

// Header: 固定列布局（v1）。顺序即输出顺序，下游分类器依赖列名。
var header = []string{
	"name",
	"nominate_dim1",
	"nominate_dim2",
	"bill_number",
	"vote_desc",
	"vote_result",
	"nominate_mid_1",
	"nominate_mid_2",
	"party_code_1",
	"party_code_2",
	"chamber",
	"dem_cosponsors",
	"rep_cosponsors",
	"pieces_cosponsored",
	"num_congresses",
	"vote",
	"rollnumber",
	"icpsr",
}

// Header 返回列布局副本。
func Header() []string {
	out := make([]string, len(header))
	copy(out, header)
	return out
}

// Record 将一行特征格式化为与 Header 对齐的字符串切片。
func Record(r contract.FeatureRow) []string {
	return []string{
		r.Name,
		Float(r.NominateDim1),
		Float(r.NominateDim2),
		r.BillNumber,
		r.VoteDesc,
		r.VoteResult,
		Float(r.NominateMid1),
		Float(r.NominateMid2),
		Float(r.PartyCode1),
		Float(r.PartyCode2),
		strconv.Itoa(r.Chamber),
		Float(r.Counts.DemCosponsors),
		Float(r.Counts.RepCosponsors),
		Float(r.Counts.PiecesCosponsored),
		Float(r.Counts.NumCongresses),
		strconv.Itoa(r.Vote),
		r.RollNumber,
		strconv.Itoa(r.ICPSR),
	}
}

// Float: 最短往返表示；NaN 输出空单元格。
func Float(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
