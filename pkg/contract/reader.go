package contract

import (
	"context"
	"io"
)

// Reader: 输入源抽象（文件/STDIN）。
// 约束：
// 1) 仅提供字节流，不做 CSV 解析；
// 2) SourceID 稳定且去平台差异化；
// 3) 不在内部起并发；
// 4) 调用方负责 Close。
type Reader interface {
	Open(ctx context.Context, path string) (SourceID, io.ReadCloser, error)
}

// RowSource: 带表头的顺序行源（由解码器提供）。
// Next 在耗尽时返回 done=true；之后的调用保持 done=true。
type RowSource interface {
	Source() SourceID
	Columns() []string
	Next() (row Row, done bool, err error)
}

// Row: 按列名取值的只读行视图；缺失列返回空串。
// Fields 返回源记录的全部字段（按表头顺序，调用方不得修改）。
type Row interface {
	Line() int
	Get(column string) string
	Fields() []string
}

// BallotStream: 选票的单向拉取序列（有限、不可回看）。
// 可由文件、网络流或内存切片支撑，Join 逻辑不变。
type BallotStream interface {
	Next(ctx context.Context) (b Ballot, done bool, err error)
}

// SliceBallots: 基于内存切片的 BallotStream。
type SliceBallots struct {
	items []Ballot
	pos   int
}

// NewSliceBallots 以 items 构造内存选票流（不拷贝）。
func NewSliceBallots(items []Ballot) *SliceBallots { return &SliceBallots{items: items} }

func (s *SliceBallots) Next(ctx context.Context) (Ballot, bool, error) {
	if err := ctx.Err(); err != nil {
		return Ballot{}, false, err
	}
	if s.pos >= len(s.items) {
		return Ballot{}, true, nil
	}
	b := s.items[s.pos]
	s.pos++
	return b, false, nil
}
