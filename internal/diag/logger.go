package diag

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

// 级别定义
type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
)

func (l Level) String() string {
	switch l {
	case Debug:
		return "debug"
	case Info:
		return "info"
	case Warn:
		return "warn"
	case Error:
		return "error"
	default:
		return "info"
	}
}

// Logger 为最小结构化日志器：单行 JSON，写入轮转文件；无文件时写 stderr。
// nil *Logger 上的所有方法均为 no-op。
type Logger struct {
	corrID string
	level  Level
	sink   *RotatingFile
	mu     sync.Mutex
}

// NewLogger 以 level 初始化，日志写入 dir（为空时 "logs"），10MiB 轮转。
func NewLogger(corrID, level, dir string) *Logger {
	if strings.TrimSpace(dir) == "" {
		dir = "logs"
	}
	return NewLoggerTo(corrID, level, NewRotatingFile(dir, 10*1024*1024))
}

// NewLoggerTo 使用给定的 sink；sink 为 nil 时写 stderr。
func NewLoggerTo(corrID, level string, sink *RotatingFile) *Logger {
	return &Logger{corrID: corrID, level: parseLevel(strings.TrimSpace(level)), sink: sink}
}

func parseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return Debug
	case "warn":
		return Warn
	case "error":
		return Error
	default:
		return Info
	}
}

// CorrID 返回本次运行的关联 ID。
func (l *Logger) CorrID() string {
	if l == nil {
		return ""
	}
	return l.corrID
}

// Close 关闭底层文件。
func (l *Logger) Close() error {
	if l == nil || l.sink == nil {
		return nil
	}
	return l.sink.Close()
}

// Event 为标准事件结构。
type Event struct {
	Level  string            `json:"level"`
	TS     string            `json:"ts"`
	CorrID string            `json:"corr_id"`
	Comp   string            `json:"comp"`
	Stage  string            `json:"stage"` // start|finish|skip|error
	Code   string            `json:"code,omitempty"`
	DurMS  int64             `json:"dur_ms,omitempty"`
	Count  int64             `json:"count,omitempty"`
	Source string            `json:"source,omitempty"`
	Line   int               `json:"line,omitempty"`
	Msg    string            `json:"msg"`
	KV     map[string]string `json:"kv,omitempty"`
}

func (l *Logger) log(lv Level, ev Event) {
	if l == nil || lv < l.level {
		return
	}
	ev.Level = lv.String()
	ev.TS = NowUTC()
	ev.CorrID = l.corrID
	b, _ := json.Marshal(ev)
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sink == nil {
		_, _ = os.Stderr.Write(append(b, '\n'))
		return
	}
	if err := l.sink.WriteLine(b); err != nil {
		fmt.Fprintf(os.Stderr, "logger sink error: %v\n", err)
		_, _ = os.Stderr.Write(append(b, '\n'))
	}
}

// Start 记录 start 事件；返回计时器用于 Finish。
func (l *Logger) Start(comp, msg string) *Timer {
	return l.StartWith(comp, msg, "", nil)
}

// StartWith 记录带 source 与键值的 start。
func (l *Logger) StartWith(comp, msg, source string, kv map[string]string) *Timer {
	l.log(Info, Event{Comp: comp, Stage: "start", Source: source, Msg: msg, KV: kv})
	return &Timer{l: l, comp: comp, source: source, t0: time.Now()}
}

// Warn 记录可恢复的逐行诊断（如跳过的选票）。
func (l *Logger) Warn(comp, code, msg, source string, line int, kv map[string]string) {
	l.log(Warn, Event{Comp: comp, Stage: "skip", Code: code, Source: source, Line: line, Msg: msg, KV: kv})
}

// Error 记录 error 事件。
func (l *Logger) Error(comp, code, msg string, durSince *time.Time) {
	l.ErrorWith(comp, code, msg, durSince, "", nil)
}

// ErrorWith 支持 source 与键值。
func (l *Logger) ErrorWith(comp, code, msg string, durSince *time.Time, source string, kv map[string]string) {
	var dur int64
	if durSince != nil {
		dur = time.Since(*durSince).Milliseconds()
	}
	l.log(Error, Event{Comp: comp, Stage: "error", Code: code, DurMS: dur, Source: source, Msg: msg, KV: kv})
}

// InfoFinish 在已有起点的情况下记录 finish。
func (l *Logger) InfoFinish(comp, msg string, start time.Time, count int64, kv map[string]string) {
	l.log(Info, Event{Comp: comp, Stage: "finish", DurMS: time.Since(start).Milliseconds(), Count: count, Msg: msg, KV: kv})
}

// Debug 输出调试事件（仅在 level=debug 时生效）。
func (l *Logger) Debug(comp, msg string, kv map[string]string) {
	l.log(Debug, Event{Comp: comp, Stage: "debug", Msg: msg, KV: kv})
}

// Timer 用于 start→finish 计时。
type Timer struct {
	l      *Logger
	comp   string
	source string
	t0     time.Time
}

// Finish 记录 finish；可选 count 与键值。
func (t *Timer) Finish(msg string, count int64, kv map[string]string) {
	if t == nil || t.l == nil {
		return
	}
	t.l.log(Info, Event{Comp: t.comp, Stage: "finish", DurMS: time.Since(t.t0).Milliseconds(), Count: count, Source: t.source, Msg: msg, KV: kv})
}

// Since 返回计时起点。
func (t *Timer) Since() time.Time {
	if t == nil {
		return time.Now()
	}
	return t.t0
}
