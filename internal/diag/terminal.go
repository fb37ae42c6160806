package diag

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Terminal: 终端信息提示（非日志）。
// - 输出到提供的 io.Writer（建议 stderr）。
// - TTY: 单行 \r 覆盖；非 TTY: 关键节点分行打印。
// - 并发安全（congress 多任务共享一个实例）；写失败后进入禁用态为 no-op。
type Terminal struct {
	w       io.Writer
	enabled bool
	isTTY   bool

	sink      string
	jobsTotal int
	jobsDone  int
	rows      int64
	skipped   int64
	runStart  time.Time

	lastLen   int
	lastFlush time.Time

	mu sync.Mutex
}

// NewTerminal 构造终端提示器。enabled=false 时总是 no-op。
func NewTerminal(w io.Writer, enabled bool) *Terminal {
	if w == nil {
		w = os.Stderr
	}
	t := &Terminal{w: w, enabled: enabled}
	// CI 环境视为非 TTY
	if os.Getenv("CI") != "" {
		t.isTTY = false
	} else if f, ok := w.(*os.File); ok {
		if fi, err := f.Stat(); err == nil {
			t.isTTY = fi.Mode()&os.ModeCharDevice != 0
		}
	}
	return t
}

// RunStart: 记录运行上下文（任务数、sink 类型）。
func (t *Terminal) RunStart(jobs int, sink string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	t.sink = sink
	t.jobsTotal = jobs
	t.jobsDone, t.rows, t.skipped = 0, 0, 0
	t.runStart = time.Now()
	t.println(fmt.Sprintf("[run] 任务=%d | sink=%s", jobs, safe(sink)))
}

// JobStart: 非 TTY 下为每个任务打点一行。
func (t *Terminal) JobStart(id string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled || t.isTTY {
		return
	}
	t.println(fmt.Sprintf("[job] %s", shortenBase(id, 48)))
}

// Progress: 累加行数（所有任务合计）；TTY 下节流 100ms 刷新一行。
func (t *Terminal) Progress(rows, skipped int64) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	t.rows += rows
	t.skipped += skipped
	if !t.isTTY {
		return
	}
	now := time.Now()
	if now.Sub(t.lastFlush) < 100*time.Millisecond {
		return
	}
	t.lastFlush = now
	t.printInline(fmt.Sprintf("[run] 任务 %d/%d | 选票 %d | 跳过 %d | 用时 %s",
		t.jobsDone, t.jobsTotal, t.rows, t.skipped, formatSince(t.runStart)))
}

// JobFinish: 完成一个任务（立即换行输出）。
func (t *Terminal) JobFinish(id string, ok bool, emitted int64, dur time.Duration) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	t.jobsDone++
	status := "done"
	if !ok {
		status = "fail"
	}
	if t.isTTY && t.lastLen > 0 {
		t.printInline("")
	}
	t.println(fmt.Sprintf("[%s] %s | 输出行 %d | 用时 %s", status, shortenBase(id, 48), emitted, formatDur(dur)))
}

// RunFinish: 结束总览。
func (t *Terminal) RunFinish(ok bool, dur time.Duration) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	tag := "ok"
	if !ok {
		tag = "fail"
	}
	t.println(fmt.Sprintf("[%s] 任务 %d/%d | 选票 %d | 跳过 %d | 总用时 %s",
		tag, t.jobsDone, t.jobsTotal, t.rows, t.skipped, formatDur(dur)))
}

func (t *Terminal) println(s string) {
	if !t.enabled {
		return
	}
	if _, err := io.WriteString(t.w, s+"\n"); err != nil {
		t.enabled = false
	}
	t.lastLen = 0
}

// printInline: \r + 内容 + 清尾空格（新行比旧行短时覆盖残留）。
func (t *Terminal) printInline(s string) {
	if !t.enabled {
		return
	}
	pad := 0
	if l := visLen(s); t.lastLen > l {
		pad = t.lastLen - l
	}
	var b strings.Builder
	b.WriteByte('\r')
	b.WriteString(s)
	b.WriteString(strings.Repeat(" ", pad))
	if _, err := io.WriteString(t.w, b.String()); err != nil {
		t.enabled = false
		return
	}
	t.lastLen = visLen(s)
}

// shortenBase: 取基名并按可见宽度截断（尾部省略号）。
func shortenBase(s string, max int) string {
	if max <= 0 {
		return ""
	}
	base := filepath.Base(strings.TrimSpace(s))
	if visLen(base) <= max {
		return base
	}
	cut := max - 1
	if cut < 1 {
		cut = 1
	}
	return string([]rune(base)[:cut]) + "…"
}

func visLen(s string) int { return len([]rune(s)) }

func safe(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "\r", " ")
}

func formatSince(t0 time.Time) string { return formatDur(time.Since(t0)) }

func formatDur(d time.Duration) string {
	if d < time.Second {
		ms := d.Milliseconds()
		if ms < 0 {
			ms = 0
		}
		return fmt.Sprintf("%dms", ms)
	}
	return fmt.Sprintf("%.1fs", float64(d.Milliseconds())/1000.0)
}
