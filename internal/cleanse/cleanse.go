package cleanse

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"votefuse/internal/diag"
	"votefuse/pkg/contract"
	"votefuse/plugins/decoder/csvtable"
)

// 预处理：在外部补全步骤之前筛掉程序性表决。
// - 参议院：按 vote_result 保留最终表决，并收集其 bill_number；
// - 众议院：vote_question 属于白名单且 bill_number 出现在参议院保留集合中；
// - 选票：仅保留 rollnumber 出现在已清洗 rollcall 文件中的行。
// 输出保留输入的完整表头，经 contract.Writer 原子写出为 <stem>_CLEANSED<ext>。

// SenateAllowedResults: 参议院保留的 vote_result 取值。
var SenateAllowedResults = []string{
	"Bill Defeated",
	"Bill Passed",
	"Joint Resolution Defeated",
	"Joint Resolution Passed",
}

// HouseAllowedQuestions: 众议院保留的 vote_question 取值。
var HouseAllowedQuestions = []string{
	"On Agreeing to the Resolution",
	"On Agreeing to the Resolution, as Amended",
	"On Motion to Suspend the Rules and Agree",
	"On Motion to Suspend the Rules and Agree to the Conference Report",
	"On Motion to Suspend the Rules and Agree to the Resolution, as Amended",
	"On Motion to Suspend the Rules and Agree, as Amended",
	"On Motion to Suspend the Rules and Concur in the Senate Amendment",
	"On Motion to Suspend the Rules and Pass",
	"On Motion to Suspend the Rules and Pass, as Amended",
	"On Passage",
}

const suffix = "_CLEANSED"

// Output 返回 p 的清洗产物路径：同目录 <stem>_CLEANSED<ext>。
// 输入的 .gz 后缀先剥离（输出不压缩）。
func Output(p string) string {
	base := p
	if strings.EqualFold(filepath.Ext(base), ".gz") {
		base = base[:len(base)-3]
	}
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext) + suffix + ext
}

// Report: 单个文件的筛选计数。
type Report struct {
	Source string
	Output string
	Read   int64
	Kept   int64
}

// KV 以日志键值形式返回计数。
func (r Report) KV() map[string]string {
	return map[string]string{
		"output": r.Output,
		"read":   strconv.FormatInt(r.Read, 10),
		"kept":   strconv.FormatInt(r.Kept, 10),
	}
}

// Cleanser 组合输入读取与原子写出。
type Cleanser struct {
	Reader contract.Reader
	Writer contract.Writer
	CSV    *csvtable.Options
	Logger *diag.Logger
}

// Rollcalls 清洗同一届国会的参、众两院 rollcall 文件。
// 参议院文件先处理；其失败时不处理众议院文件。
func (c *Cleanser) Rollcalls(ctx context.Context, senatePath, housePath string) (Report, Report, error) {
	if err := c.sanity(); err != nil {
		return Report{}, Report{}, err
	}
	allowedResults := set(SenateAllowedResults)
	bills := make(map[string]struct{})
	senate, err := c.filter(ctx, "rollcalls", senatePath, []string{"vote_result", "bill_number"}, func(r contract.Row) bool {
		if _, ok := allowedResults[r.Get("vote_result")]; !ok {
			return false
		}
		bills[r.Get("bill_number")] = struct{}{}
		return true
	})
	if err != nil {
		return senate, Report{}, fmt.Errorf("senate rollcalls: %w", err)
	}

	allowedQuestions := set(HouseAllowedQuestions)
	house, err := c.filter(ctx, "rollcalls", housePath, []string{"vote_question", "bill_number"}, func(r contract.Row) bool {
		if _, ok := allowedQuestions[r.Get("vote_question")]; !ok {
			return false
		}
		_, ok := bills[r.Get("bill_number")]
		return ok
	})
	if err != nil {
		return senate, house, fmt.Errorf("house rollcalls: %w", err)
	}
	return senate, house, nil
}

// Ballots 按已清洗 rollcall 文件中的 rollnumber 筛选选票（按原文比较）。
func (c *Cleanser) Ballots(ctx context.Context, rollcallsPath, votesPath string) (Report, error) {
	if err := c.sanity(); err != nil {
		return Report{}, err
	}
	keep, err := c.rollnumbers(ctx, rollcallsPath)
	if err != nil {
		return Report{}, fmt.Errorf("rollcalls: %w", err)
	}
	rep, err := c.filter(ctx, "ballots", votesPath, []string{"rollnumber"}, func(r contract.Row) bool {
		_, ok := keep[r.Get("rollnumber")]
		return ok
	})
	if err != nil {
		return rep, fmt.Errorf("ballots: %w", err)
	}
	return rep, nil
}

func (c *Cleanser) sanity() error {
	if c == nil || c.Reader == nil || c.Writer == nil {
		return errors.New("cleanse: missing reader or writer")
	}
	return nil
}

func (c *Cleanser) rollnumbers(ctx context.Context, p string) (map[string]struct{}, error) {
	id, rc, err := c.Reader.Open(ctx, p)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	tb, err := csvtable.Open(id, rc, []string{"rollnumber"}, c.CSV)
	if err != nil {
		return nil, err
	}
	out := make(map[string]struct{})
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r, done, err := tb.Next()
		if err != nil {
			return nil, err
		}
		if done {
			return out, nil
		}
		out[r.Get("rollnumber")] = struct{}{}
	}
}

// filter 流式读取 p，将 keep 为真的行（含表头）写入 Output(p)。
// 任一错误时目标文件不被创建或替换。
func (c *Cleanser) filter(ctx context.Context, stage, p string, required []string, keep func(contract.Row) bool) (Report, error) {
	rep := Report{Source: p, Output: Output(p)}
	start := time.Now()
	timer := c.Logger.StartWith("cleanse", stage, p, nil)

	err := c.copyFiltered(ctx, &rep, required, keep)
	diag.ObserveDuration("cleanse", stage, time.Since(start).Milliseconds())
	if err != nil {
		code := diag.Classify(err)
		c.Logger.ErrorWith("cleanse", string(code), err.Error(), &start, p, rep.KV())
		diag.IncOp("cleanse", stage, "error")
		diag.IncError("cleanse", string(code))
		return rep, err
	}
	timer.Finish(stage, rep.Kept, rep.KV())
	diag.IncOp("cleanse", stage, "success")
	return rep, nil
}

func (c *Cleanser) copyFiltered(ctx context.Context, rep *Report, required []string, keep func(contract.Row) bool) error {
	if strings.TrimSpace(rep.Source) == "" || rep.Source == "-" {
		return fmt.Errorf("cleanse: %w: input must be a file path, got %q", contract.ErrPathInvalid, rep.Source)
	}
	id, rc, err := c.Reader.Open(ctx, rep.Source)
	if err != nil {
		return err
	}
	defer rc.Close()
	tb, err := csvtable.Open(id, rc, required, c.CSV)
	if err != nil {
		return err
	}

	pr, pw := io.Pipe()
	produced := make(chan error, 1)
	go func() {
		err := produce(ctx, tb, pw, rep, keep, c.CSV)
		if err != nil {
			pw.CloseWithError(err)
		} else {
			_ = pw.Close()
		}
		produced <- err
	}()

	werr := c.Writer.Write(ctx, contract.ArtifactID(rep.Output), pr)
	// 写端提前返回时解除生产者阻塞
	_ = pr.CloseWithError(io.ErrClosedPipe)
	perr := <-produced
	if perr != nil && !errors.Is(perr, io.ErrClosedPipe) {
		return perr
	}
	if werr != nil {
		return werr
	}
	return perr
}

func produce(ctx context.Context, tb *csvtable.Table, w io.Writer, rep *Report, keep func(contract.Row) bool, opts *csvtable.Options) error {
	cw := csv.NewWriter(w)
	if opts != nil && opts.Comma != "" {
		cw.Comma = []rune(opts.Comma)[0]
	}
	cols := tb.Columns()
	if err := cw.Write(cols); err != nil {
		return err
	}
	rec := make([]string, len(cols))
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		r, done, err := tb.Next()
		if err != nil {
			return err
		}
		if done {
			break
		}
		rep.Read++
		if !keep(r) {
			continue
		}
		// 短行以空串补齐到表头宽度
		clear(rec)
		copy(rec, r.Fields())
		if err := cw.Write(rec); err != nil {
			return err
		}
		rep.Kept++
	}
	cw.Flush()
	return cw.Error()
}

func set(values []string) map[string]struct{} {
	out := make(map[string]struct{}, len(values))
	for _, v := range values {
		out[v] = struct{}{}
	}
	return out
}
