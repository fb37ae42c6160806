package normalize

import "votefuse/pkg/contract"

// 固定分母：与数据无关，同一版本下所有批次一致。
const (
	// CongressSeats: 国会两院席位总数（435 + 100）。
	CongressSeats = 535
	// MaxPiecesCosponsored: pieces_cosponsored 的经验上界。
	MaxPiecesCosponsored = 75000
	// MaxCongresses: num_congresses 的经验上界。
	MaxCongresses = 40
)

// Apply 按固定分母缩放计数字段；纯函数。
// 不截断：超过 1.0 的值原样保留（由 OverRange 计数告警）。
// NaN 输入保持 NaN。
func Apply(c contract.Counts) contract.Counts {
	return contract.Counts{
		DemCosponsors:     c.DemCosponsors / CongressSeats,
		RepCosponsors:     c.RepCosponsors / CongressSeats,
		PiecesCosponsored: c.PiecesCosponsored / MaxPiecesCosponsored,
		NumCongresses:     c.NumCongresses / MaxCongresses,
	}
}

// OverRange 报告缩放后有多少字段超过 1.0。
func OverRange(c contract.Counts) int {
	n := 0
	for _, v := range [...]float64{c.DemCosponsors, c.RepCosponsors, c.PiecesCosponsored, c.NumCongresses} {
		if v > 1.0 {
			n++
		}
	}
	return n
}
