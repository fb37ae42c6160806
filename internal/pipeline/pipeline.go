package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"votefuse/internal/diag"
	"votefuse/internal/emit"
	"votefuse/internal/encode"
	"votefuse/internal/index"
	"votefuse/internal/join"
	"votefuse/internal/normalize"
	"votefuse/pkg/contract"
	"votefuse/plugins/decoder/csvtable"
)

// - 单次运行同步、单遍：索引构建 → 流式 Join → 编码 → 缩放 → Sink。
// - 首错即止：任一致命错误 Abort Sink，不产生部分输出。
// - 可恢复跳过逐行计数、告警并写入审计边车；提交前校验行数守恒。

// Components 聚合运行所需的组件。
type Components struct {
	Reader contract.Reader
	Sink   contract.Sink
	// Writer 写出审计边车 <output>.skips.jsonl；为 nil 时不写。
	Writer contract.Writer
}

// Settings 单次运行配置。
type Settings struct {
	Members string
	Bills   string
	// Ballots 可为 "-"（STDIN）。
	Ballots string
	Output  string

	PartyGap encode.GapPolicy
	// Audit: 提交成功后写出审计边车。
	Audit bool
	// CSV: 输入解码选项（可为 nil）。
	CSV *csvtable.Options
	// Terminal: 可选终端提示；SinkName 仅用于展示。
	Terminal *diag.Terminal
	SinkName string
}

// AuditSuffix: 审计边车相对输出路径的后缀。
const AuditSuffix = ".skips.jsonl"

// progressEvery: 每处理这么多张选票向终端汇报一次。
const progressEvery = 4096

// Report: 单次运行的计数汇总。
type Report struct {
	Output string
	Layout string

	Members          int
	Bills            int
	MemberOverwrites int
	BillOverwrites   int

	Ballots            int64
	Emitted            int64
	UnresolvedMember   int64
	ChamberInvalid     int64
	VoteNonSubstantive int64
	// PartyUnmapped 统计所有党派缺口；PartyDropped 为其中按 drop 策略丢弃者。
	PartyUnmapped int64
	PartyDropped  int64
	// OverRange: 缩放后超过 1.0 的字段数（仅提示）。
	OverRange int64
	// AuditFailed: 表已提交但审计边车未能写出。
	AuditFailed bool
}

// Dropped 返回被丢弃的选票总数。
func (r Report) Dropped() int64 {
	return r.UnresolvedMember + r.ChamberInvalid + r.VoteNonSubstantive + r.PartyDropped
}

// Check 校验行数守恒：ballots = emitted + 各类丢弃。
func (r Report) Check() error {
	if r.Emitted+r.Dropped() != r.Ballots {
		return fmt.Errorf("%w: ballots %d != emitted %d + dropped %d",
			contract.ErrInvariantViolation, r.Ballots, r.Emitted, r.Dropped())
	}
	return nil
}

// KV 以日志键值形式返回计数。
func (r Report) KV() map[string]string {
	i := func(v int64) string { return strconv.FormatInt(v, 10) }
	return map[string]string{
		"output":              r.Output,
		"layout":              r.Layout,
		"members":             strconv.Itoa(r.Members),
		"bills":               strconv.Itoa(r.Bills),
		"member_overwrites":   strconv.Itoa(r.MemberOverwrites),
		"bill_overwrites":     strconv.Itoa(r.BillOverwrites),
		"ballots":             i(r.Ballots),
		"emitted":             i(r.Emitted),
		"member_unresolved":   i(r.UnresolvedMember),
		"chamber_invalid":     i(r.ChamberInvalid),
		"vote_nonsubstantive": i(r.VoteNonSubstantive),
		"party_unmapped":      i(r.PartyUnmapped),
		"party_dropped":       i(r.PartyDropped),
		"over_range":          i(r.OverRange),
		"audit_failed":        strconv.FormatBool(r.AuditFailed),
	}
}

// Run 执行一次融合：Members/Bills 索引 → Ballots 流式 Join → Encode → Normalize → Sink。
// 约束：
// - 输出行顺序与选票输入顺序一致；
// - 致命错误（缺列、账单缺失、单元格不可解析、fail 策略下的党派缺口、取消）→ Abort，无输出；
// - 审计边车在表提交后写出；其失败记为 Report.AuditFailed 与告警，不使运行失败；
// - 返回的 Report 在失败时也携带已累积的计数。
func Run(ctx context.Context, comp Components, set Settings, logger *diag.Logger) (Report, error) {
	rep := Report{Output: set.Output, Layout: emit.Layout}
	if err := sanity(comp, set); err != nil {
		return rep, fmt.Errorf("sanity: %w", err)
	}
	set.PartyGap, _ = encode.ParseGapPolicy(string(set.PartyGap))
	start := time.Now()
	timer := logger.StartWith("pipeline", "fuse", set.Ballots, map[string]string{
		"members": set.Members, "bills": set.Bills, "output": set.Output, "party_gap": string(set.PartyGap),
	})
	set.Terminal.JobStart(set.Output)

	err := run(ctx, comp, set, logger, &rep)
	set.Terminal.JobFinish(set.Output, err == nil, rep.Emitted, time.Since(start))
	diag.ObserveDuration("pipeline", "fuse", time.Since(start).Milliseconds())
	if err != nil {
		code := diag.Classify(err)
		logger.ErrorWith("pipeline", string(code), err.Error(), &start, set.Output, rep.KV())
		diag.IncOp("pipeline", "fuse", "error")
		diag.IncError("pipeline", string(code))
		return rep, err
	}
	timer.Finish("fuse", rep.Emitted, rep.KV())
	diag.IncOp("pipeline", "fuse", "success")
	diag.AddRows("emitted", rep.Emitted)
	diag.AddRows(string(contract.SkipMemberUnresolved), rep.UnresolvedMember)
	diag.AddRows(string(contract.SkipChamberInvalid), rep.ChamberInvalid)
	diag.AddRows(string(contract.SkipVoteNonSubstantive), rep.VoteNonSubstantive)
	diag.AddRows(string(contract.SkipPartyUnmapped), rep.PartyDropped)
	return rep, nil
}

func run(ctx context.Context, comp Components, set Settings, logger *diag.Logger, rep *Report) error {
	members, err := buildMembers(ctx, comp.Reader, set, logger)
	if err != nil {
		return err
	}
	rep.Members, rep.MemberOverwrites = members.Len(), members.Overwrites()

	bills, err := buildBills(ctx, comp.Reader, set, logger)
	if err != nil {
		return err
	}
	rep.Bills, rep.BillOverwrites = bills.Len(), bills.Overwrites()

	tb, closer, err := openTable(ctx, comp.Reader, set.Ballots, join.BallotColumns, set.CSV)
	if err != nil {
		return fmt.Errorf("ballots: %w", err)
	}
	defer closer.Close()
	ballots, err := join.NewBallots(tb)
	if err != nil {
		return fmt.Errorf("ballots: %w", err)
	}
	src := string(ballots.Source())

	tw, err := comp.Sink.Open(ctx, contract.ArtifactID(set.Output))
	if err != nil {
		return fmt.Errorf("sink open: %w", err)
	}
	abort := func(err error) error {
		tw.Abort(err)
		return err
	}

	var audit bytes.Buffer
	enc := json.NewEncoder(&audit)
	onSkip := func(k contract.Skip) {
		switch k.Reason {
		case contract.SkipMemberUnresolved:
			rep.UnresolvedMember++
		case contract.SkipChamberInvalid:
			rep.ChamberInvalid++
		case contract.SkipVoteNonSubstantive:
			rep.VoteNonSubstantive++
		case contract.SkipPartyUnmapped:
			rep.PartyUnmapped++
			if !k.Kept {
				rep.PartyDropped++
			}
		}
		logger.Warn("pipeline", string(k.Reason), k.Detail, src, k.Line, map[string]string{
			"icpsr": k.ICPSR, "rollnumber": k.RollNumber, "kept": strconv.FormatBool(k.Kept),
		})
		if set.Audit {
			_ = enc.Encode(k)
		}
	}

	stream := join.New(members, bills, ballots, onSkip)
	// 失败路径上的报告也带已拉取的选票数
	defer func() { rep.Ballots = stream.Seen() }()
	encoder := encode.New(set.PartyGap)
	var lastSeen, lastDropped int64
	report := func() {
		seen, dropped := stream.Seen(), rep.Dropped()
		set.Terminal.Progress(seen-lastSeen, dropped-lastDropped)
		lastSeen, lastDropped = seen, dropped
	}
	for {
		m, done, err := stream.Next(ctx)
		if err != nil {
			return abort(fmt.Errorf("join: %w", err))
		}
		if done {
			break
		}
		row, out, err := encoder.Encode(m)
		if err != nil {
			return abort(fmt.Errorf("encode: %w", err))
		}
		if out.Drop != "" || out.PartyGap {
			reason := out.Drop
			if reason == "" {
				reason = contract.SkipPartyUnmapped
			}
			onSkip(contract.Skip{
				Line: m.Line, ICPSR: strconv.Itoa(m.ICPSR), RollNumber: m.RollNumber,
				Reason: reason, Detail: out.Detail, Kept: out.Drop == "",
			})
			if out.Drop != "" {
				continue
			}
		}
		row.Counts = normalize.Apply(row.Counts)
		rep.OverRange += int64(normalize.OverRange(row.Counts))
		if err := tw.Append(row); err != nil {
			return abort(fmt.Errorf("sink append: %w", err))
		}
		rep.Emitted++
		if stream.Seen()-lastSeen >= progressEvery {
			report()
		}
	}
	report()
	rep.Ballots = stream.Seen()
	if err := rep.Check(); err != nil {
		return abort(err)
	}
	if rep.OverRange > 0 {
		logger.Warn("normalize", "over_range", "scaled counts above 1.0", src, 0, map[string]string{
			"fields": strconv.FormatInt(rep.OverRange, 10),
		})
	}
	if err := tw.Commit(); err != nil {
		return fmt.Errorf("sink commit: %w", err)
	}

	// 表已提交：边车写出失败只告警，不改变运行结果
	if set.Audit && comp.Writer != nil {
		id := contract.ArtifactID(set.Output + AuditSuffix)
		if err := comp.Writer.Write(ctx, id, &audit); err != nil {
			rep.AuditFailed = true
			logger.Warn("pipeline", "audit_write", err.Error(), string(id), 0, nil)
			diag.IncError("pipeline", "audit")
		}
	}
	return nil
}

func buildMembers(ctx context.Context, r contract.Reader, set Settings, logger *diag.Logger) (*index.Members, error) {
	timer := logger.StartWith("index", "members", set.Members, nil)
	tb, closer, err := openTable(ctx, r, set.Members, index.MemberColumns, set.CSV)
	if err != nil {
		return nil, fmt.Errorf("members: %w", err)
	}
	defer closer.Close()
	m, err := index.BuildMembers(ctx, tb)
	if err != nil {
		return nil, fmt.Errorf("members: %w", err)
	}
	timer.Finish("members", int64(m.Len()), map[string]string{"overwrites": strconv.Itoa(m.Overwrites())})
	return m, nil
}

func buildBills(ctx context.Context, r contract.Reader, set Settings, logger *diag.Logger) (*index.Bills, error) {
	timer := logger.StartWith("index", "bills", set.Bills, nil)
	tb, closer, err := openTable(ctx, r, set.Bills, index.BillColumns, set.CSV)
	if err != nil {
		return nil, fmt.Errorf("bills: %w", err)
	}
	defer closer.Close()
	b, err := index.BuildBills(ctx, tb)
	if err != nil {
		return nil, fmt.Errorf("bills: %w", err)
	}
	timer.Finish("bills", int64(b.Len()), map[string]string{"overwrites": strconv.Itoa(b.Overwrites())})
	return b, nil
}

// openTable 打开输入并读取表头；成功时调用方负责关闭返回的 Closer。
func openTable(ctx context.Context, r contract.Reader, p string, required []string, opts *csvtable.Options) (*csvtable.Table, io.Closer, error) {
	id, rc, err := r.Open(ctx, p)
	if err != nil {
		return nil, nil, err
	}
	tb, err := csvtable.Open(id, rc, required, opts)
	if err != nil {
		_ = rc.Close()
		return nil, nil, err
	}
	return tb, rc, nil
}

func sanity(c Components, s Settings) error {
	if c.Reader == nil || c.Sink == nil {
		return errors.New("pipeline: missing components")
	}
	for name, p := range map[string]string{"members": s.Members, "bills": s.Bills, "ballots": s.Ballots, "output": s.Output} {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("pipeline: empty %s path", name)
		}
	}
	if s.Members == "-" || s.Bills == "-" || s.Output == "-" {
		return errors.New("pipeline: only ballots may be read from stdin")
	}
	if _, err := encode.ParseGapPolicy(string(s.PartyGap)); err != nil {
		return err
	}
	return nil
}
