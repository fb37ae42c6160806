package diag

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

const (
	logPrefix = "votefuse"
	// defaultBackups: 保留的已轮转日志个数。
	defaultBackups = 5
)

// RotatingFile 以 JSON Lines 追加写入 dir/votefuse-current.jsonl。
// 写入将超过 maxBytes 时，当前文件改名为 votefuse-<UTC 时间戳>.jsonl，
// 并只保留最新的 backups 个已轮转文件。
type RotatingFile struct {
	dir      string
	maxBytes int64
	backups  int

	mu   sync.Mutex
	f    *os.File
	size int64
}

func NewRotatingFile(dir string, maxBytes int64) *RotatingFile {
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	return &RotatingFile{dir: dir, maxBytes: maxBytes, backups: defaultBackups}
}

// WithBackups 设置保留的已轮转文件个数；n<=0 表示不清理。
func (w *RotatingFile) WithBackups(n int) *RotatingFile {
	w.backups = n
	return w
}

// CurrentPath 返回当前日志文件路径。
func (w *RotatingFile) CurrentPath() string {
	return filepath.Join(w.dir, logPrefix+"-current.jsonl")
}

// WriteLine 追加一行（自动补换行）。空文件上的超长行不触发轮转。
func (w *RotatingFile) WriteLine(b []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.open(); err != nil {
		return err
	}
	need := int64(len(b) + 1)
	if w.size > 0 && w.size+need > w.maxBytes {
		if err := w.rotate(); err != nil {
			return err
		}
	}
	n, err := w.f.Write(append(b, '\n'))
	w.size += int64(n)
	return err
}

func (w *RotatingFile) open() error {
	if w.f != nil {
		return nil
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.CurrentPath(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	w.f, w.size = f, 0
	if st, err := f.Stat(); err == nil {
		w.size = st.Size()
	}
	return nil
}

func (w *RotatingFile) rotate() error {
	if w.f == nil {
		return w.open()
	}
	_ = w.f.Close()
	w.f = nil
	// 纳秒时间戳：同秒多次轮转不互相覆盖，且按字典序即时间序
	ts := time.Now().UTC().Format("20060102T150405.000000000")
	rotated := filepath.Join(w.dir, fmt.Sprintf("%s-%s.jsonl", logPrefix, ts))
	if err := os.Rename(w.CurrentPath(), rotated); err != nil {
		return fmt.Errorf("rotate log: %w", err)
	}
	w.prune()
	return w.open()
}

// prune 删除超出保留数量的最旧轮转文件；失败忽略。
func (w *RotatingFile) prune() {
	if w.backups <= 0 {
		return
	}
	old, err := doublestar.Glob(os.DirFS(w.dir), logPrefix+"-[0-9]*.jsonl")
	if err != nil || len(old) <= w.backups {
		return
	}
	sort.Strings(old)
	for _, name := range old[:len(old)-w.backups] {
		_ = os.Remove(filepath.Join(w.dir, name))
	}
}

// Close 关闭当前文件句柄；之后的写入会重新打开。
func (w *RotatingFile) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	err := w.f.Close()
	w.f = nil
	return err
}
