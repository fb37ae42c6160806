package csvfile

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sync"

	"votefuse/internal/emit"
	"votefuse/pkg/contract"
)

// Options: 最小必要选项。
type Options struct {
	// Comma: 字段分隔符；为空时使用 ","。
	Comma string `yaml:"comma,omitempty"`
	// CRLF: 行尾使用 \r\n。默认 false。
	CRLF bool `yaml:"crlf,omitempty"`
}

// ErrAborted: Abort 未给出原因时用于关闭写端。
var ErrAborted = errors.New("csvfile: table aborted")

// Sink: 以 CSV 文件落地训练表。
// 字节经 io.Pipe 流入 contract.Writer；原子性由 Writer 负责（临时文件 + rename）。
type Sink struct {
	w     contract.Writer
	comma rune
	crlf  bool
}

var _ contract.Sink = (*Sink)(nil)

// New 基于 Writer 构造 CSV Sink。
func New(w contract.Writer, opts *Options) (*Sink, error) {
	if w == nil {
		return nil, errors.New("csvfile: writer is nil")
	}
	s := &Sink{w: w, comma: ','}
	if opts != nil {
		if opts.Comma != "" {
			c := []rune(opts.Comma)
			if len(c) != 1 {
				return nil, fmt.Errorf("csvfile: comma must be a single character, got %q", opts.Comma)
			}
			s.comma = c[0]
		}
		s.crlf = opts.CRLF
	}
	return s, nil
}

// Open 启动后台写入并写出表头。后台 goroutine 在 Commit/Abort 返回前结束。
func (s *Sink) Open(ctx context.Context, id contract.ArtifactID) (contract.TableWriter, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pr, pw := io.Pipe()
	t := &table{pw: pw, done: make(chan error, 1)}
	go func() {
		err := s.w.Write(ctx, id, pr)
		// 写端此后的 Write 立即失败，不会阻塞
		if err != nil {
			pr.CloseWithError(err)
		} else {
			pr.Close()
		}
		t.done <- err
	}()
	t.cw = csv.NewWriter(pw)
	t.cw.Comma = s.comma
	t.cw.UseCRLF = s.crlf
	if err := t.cw.Write(emit.Header()); err != nil {
		t.Abort(err)
		return nil, err
	}
	return t, nil
}

type table struct {
	cw   *csv.Writer
	pw   *io.PipeWriter
	done chan error

	once sync.Once
	err  error
}

func (t *table) Append(row contract.FeatureRow) error {
	return t.cw.Write(emit.Record(row))
}

// Commit 刷新缓冲、关闭写端并等待 Writer 完成发布。
func (t *table) Commit() error {
	t.once.Do(func() {
		t.cw.Flush()
		if err := t.cw.Error(); err != nil {
			t.pw.CloseWithError(err)
			<-t.done
			t.err = err
			return
		}
		t.pw.Close()
		t.err = <-t.done
	})
	return t.err
}

// Abort 以 cause 关闭写端；Writer 丢弃临时文件，目标保持原状。
func (t *table) Abort(cause error) {
	if cause == nil {
		cause = ErrAborted
	}
	t.once.Do(func() {
		t.pw.CloseWithError(cause)
		<-t.done
		t.err = cause
	})
}
