package join

import (
	"context"
	"fmt"

	"votefuse/internal/index"
	"votefuse/pkg/contract"
	"votefuse/plugins/decoder/csvtable"
)

// 选票源必需列。
var BallotColumns = []string{"icpsr", "rollnumber", "cast_code"}

// SkipFunc 接收可恢复的逐行跳过诊断；为 nil 时丢弃。
type SkipFunc func(contract.Skip)

// Stream: 流式左查找 Join（非排序归并）。
// - 输出顺序与选票输入顺序一致；
// - 成员缺失：跳过并上报 SkipMemberUnresolved，继续；
// - 账单缺失：*contract.JoinIntegrityError，终止；
// - 索引只读，Stream 自身仅持有游标状态。
type Stream struct {
	members *index.Members
	bills   *index.Bills
	in      contract.BallotStream
	onSkip  SkipFunc
	src     contract.SourceID
	seen    int64
}

// New 构造 Join 流。members/bills 在 Stream 生命周期内不得修改。
func New(members *index.Members, bills *index.Bills, in contract.BallotStream, onSkip SkipFunc) *Stream {
	s := &Stream{members: members, bills: bills, in: in, onSkip: onSkip, src: "ballots"}
	if named, ok := in.(interface{ Source() contract.SourceID }); ok {
		s.src = named.Source()
	}
	return s
}

// Seen 返回已从上游拉取的选票数（含被跳过者）。
func (s *Stream) Seen() int64 { return s.seen }

// Next 返回下一条可合并记录；done=true 表示选票耗尽。
func (s *Stream) Next(ctx context.Context) (contract.MergedRow, bool, error) {
	for {
		b, done, err := s.in.Next(ctx)
		if err != nil {
			return contract.MergedRow{}, false, err
		}
		if done {
			return contract.MergedRow{}, true, nil
		}
		s.seen++

		icpsr, err := csvtable.Int(b.ICPSR)
		if err != nil {
			return contract.MergedRow{}, false, &contract.CellError{Source: s.src, Line: b.Line, Column: "icpsr", Value: b.ICPSR}
		}
		member, ok := s.members.Lookup(icpsr)
		if !ok {
			s.skip(contract.Skip{
				Line: b.Line, ICPSR: b.ICPSR, RollNumber: b.RollNumber,
				Reason: contract.SkipMemberUnresolved,
				Detail: fmt.Sprintf("icpsr %d not in member index", icpsr),
			})
			continue
		}
		bill, ok := s.bills.Lookup(b.RollNumber)
		if !ok {
			return contract.MergedRow{}, false, &contract.JoinIntegrityError{Line: b.Line, RollNumber: b.RollNumber}
		}
		vote, err := csvtable.Int(b.CastCode)
		if err != nil {
			return contract.MergedRow{}, false, &contract.CellError{Source: s.src, Line: b.Line, Column: "cast_code", Value: b.CastCode}
		}
		return contract.MergedRow{
			Line:       b.Line,
			ICPSR:      icpsr,
			RollNumber: b.RollNumber,
			Vote:       vote,
			Member:     member,
			Bill:       bill,
		}, false, nil
	}
}

func (s *Stream) skip(k contract.Skip) {
	if s.onSkip != nil {
		s.onSkip(k)
	}
}

// Ballots 将带表头的行源适配为 contract.BallotStream。
type Ballots struct {
	src contract.RowSource
}

// NewBallots 校验选票必需列并返回适配器。
func NewBallots(src contract.RowSource) (*Ballots, error) {
	have := make(map[string]struct{})
	for _, c := range src.Columns() {
		have[c] = struct{}{}
	}
	for _, c := range BallotColumns {
		if _, ok := have[c]; !ok {
			return nil, &contract.SchemaError{Source: src.Source(), Column: c}
		}
	}
	return &Ballots{src: src}, nil
}

func (b *Ballots) Source() contract.SourceID { return b.src.Source() }

func (b *Ballots) Next(ctx context.Context) (contract.Ballot, bool, error) {
	if err := ctx.Err(); err != nil {
		return contract.Ballot{}, false, err
	}
	r, done, err := b.src.Next()
	if err != nil || done {
		return contract.Ballot{}, done, err
	}
	return contract.Ballot{
		Line:       r.Line(),
		ICPSR:      r.Get("icpsr"),
		RollNumber: r.Get("rollnumber"),
		CastCode:   r.Get("cast_code"),
	}, false, nil
}
