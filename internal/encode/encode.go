package encode

import (
	"fmt"
	"math"
	"strings"

	"votefuse/pkg/contract"
)

// GapPolicy: 党派代码不在固定表内时的处理策略。
type GapPolicy string

const (
	// GapPropagate: 保留该行，party_code_1/2 为缺失值（NaN），并计数告警。
	GapPropagate GapPolicy = "propagate"
	// GapDrop: 丢弃该行，计为 SkipPartyUnmapped。
	GapDrop GapPolicy = "drop"
	// GapFail: 以 contract.ErrEncodingGap 终止运行。
	GapFail GapPolicy = "fail"
)

// ParseGapPolicy 解析策略名；空串返回默认 GapPropagate。
func ParseGapPolicy(s string) (GapPolicy, error) {
	switch p := GapPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return GapPropagate, nil
	case GapPropagate, GapDrop, GapFail:
		return p, nil
	default:
		return "", fmt.Errorf("encode: unknown party gap policy %q", s)
	}
}

// Outcome: 单行编码结论。
type Outcome struct {
	// Drop 非空表示该行被丢弃（可恢复）。
	Drop   contract.SkipReason
	Detail string
	// PartyGap 表示党派代码未映射但行被保留（仅 GapPropagate）。
	PartyGap bool
}

// Encoder: 固定表编码器（无状态，可复用）。
type Encoder struct {
	gap GapPolicy
}

func New(gap GapPolicy) *Encoder {
	if gap == "" {
		gap = GapPropagate
	}
	return &Encoder{gap: gap}
}

// Encode 按顺序执行：院别校验 → 投票域过滤 → 党派编码。
// 返回的 FeatureRow 携带原始计数（尚未缩放）。
func (e *Encoder) Encode(m contract.MergedRow) (contract.FeatureRow, Outcome, error) {
	chamber, ok := Chamber(m.Member.Chamber)
	if !ok {
		return contract.FeatureRow{}, Outcome{Drop: contract.SkipChamberInvalid, Detail: fmt.Sprintf("chamber %q", m.Member.Chamber)}, nil
	}
	vote, ok := Vote(m.Vote)
	if !ok {
		return contract.FeatureRow{}, Outcome{Drop: contract.SkipVoteNonSubstantive, Detail: fmt.Sprintf("cast_code %d", m.Vote)}, nil
	}

	var out Outcome
	p1, p2 := math.NaN(), math.NaN()
	if bits, ok := Party(m.Member.PartyCode); ok {
		p1, p2 = float64(bits[0]), float64(bits[1])
	} else {
		detail := fmt.Sprintf("party_code %q", m.Member.PartyCode)
		switch e.gap {
		case GapFail:
			return contract.FeatureRow{}, Outcome{}, fmt.Errorf("%w: line %d icpsr %d: %s", contract.ErrEncodingGap, m.Line, m.ICPSR, detail)
		case GapDrop:
			return contract.FeatureRow{}, Outcome{Drop: contract.SkipPartyUnmapped, Detail: detail}, nil
		default:
			out = Outcome{PartyGap: true, Detail: detail}
		}
	}

	return contract.FeatureRow{
		Name:         m.Member.Name,
		NominateDim1: m.Member.NominateDim1,
		NominateDim2: m.Member.NominateDim2,
		BillNumber:   m.Bill.BillNumber,
		VoteDesc:     m.Bill.VoteDesc,
		VoteResult:   m.Bill.VoteResult,
		NominateMid1: m.Bill.NominateMid1,
		NominateMid2: m.Bill.NominateMid2,
		PartyCode1:   p1,
		PartyCode2:   p2,
		Chamber:      chamber,
		Counts: contract.Counts{
			DemCosponsors:     m.Bill.DemCosponsors,
			RepCosponsors:     m.Bill.RepCosponsors,
			PiecesCosponsored: m.Member.PiecesCosponsored,
			NumCongresses:     m.Member.NumCongresses,
		},
		Vote:       vote,
		RollNumber: m.RollNumber,
		ICPSR:      m.ICPSR,
	}, out, nil
}
