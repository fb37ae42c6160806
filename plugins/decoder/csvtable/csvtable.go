package csvtable

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"votefuse/pkg/contract"
)

// Options: 最小必要选项。
type Options struct {
	// Comma: 字段分隔符；为空时使用 ","。
	Comma string `yaml:"comma,omitempty"`
}

// Table: 带表头的 CSV 顺序行源，实现 contract.RowSource。
// - 表头首次出现的列名生效；UTF-8 BOM 自动剥离；
// - 行字段数可少于表头（缺失列按空串处理）；
// - 行号取自 csv.Reader 的 FieldPos，表头为第 1 行。
type Table struct {
	src  contract.SourceID
	r    *csv.Reader
	cols []string
	idx  map[string]int
	done bool
}

var _ contract.RowSource = (*Table)(nil)

// Open 读取表头并校验 required 列；缺列返回 *contract.SchemaError。
func Open(src contract.SourceID, r io.Reader, required []string, opts *Options) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	if opts != nil && opts.Comma != "" {
		c := []rune(opts.Comma)
		if len(c) != 1 {
			return nil, fmt.Errorf("csvtable: comma must be a single character, got %q", opts.Comma)
		}
		cr.Comma = c[0]
	}
	header, err := cr.Read()
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%s: read header: %w", src, err)
	}
	t := &Table{src: src, r: cr, idx: make(map[string]int, len(header))}
	if errors.Is(err, io.EOF) {
		// 空源：无表头，等价于全部列缺失
		t.done = true
	}
	for i, name := range header {
		if i == 0 {
			name = strings.TrimPrefix(name, "\ufeff")
		}
		name = strings.TrimSpace(name)
		t.cols = append(t.cols, name)
		if _, dup := t.idx[name]; !dup {
			t.idx[name] = i
		}
	}
	for _, col := range required {
		if _, ok := t.idx[col]; !ok {
			return nil, &contract.SchemaError{Source: src, Column: col}
		}
	}
	return t, nil
}

func (t *Table) Source() contract.SourceID { return t.src }

// Columns 返回表头副本（顺序与源一致）。
func (t *Table) Columns() []string {
	out := make([]string, len(t.cols))
	copy(out, t.cols)
	return out
}

// Next 读取下一数据行；耗尽后持续返回 done=true。
func (t *Table) Next() (contract.Row, bool, error) {
	if t.done {
		return nil, true, nil
	}
	rec, err := t.r.Read()
	if errors.Is(err, io.EOF) {
		t.done = true
		return nil, true, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", t.src, err)
	}
	line, _ := t.r.FieldPos(0)
	return row{line: line, rec: rec, idx: t.idx}, false, nil
}

type row struct {
	line int
	rec  []string
	idx  map[string]int
}

func (r row) Line() int { return r.line }

func (r row) Fields() []string { return r.rec }

func (r row) Get(column string) string {
	i, ok := r.idx[column]
	if !ok || i >= len(r.rec) {
		return ""
	}
	return r.rec[i]
}

var errNotInteger = errors.New("not an integer")

// Int 宽松整数化：接受 "1234"、"1234.0"、" 1234 "；拒绝空串与非整数值。
// 上游来源对该类字段的序列化不一致（整数或浮点文本）。
func Int(s string) (int, error) {
	t := strings.TrimSpace(s)
	if n, err := strconv.Atoi(t); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(t, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) || math.Abs(f) > 1<<53 {
		return 0, errNotInteger
	}
	return int(f), nil
}

// Float 解析数值单元格；空串表示缺失，返回 NaN。
func Float(s string) (float64, error) {
	t := strings.TrimSpace(s)
	if t == "" {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(t, 64)
}

// Cell 在 Row 上按列解析数值，失败时返回带定位的 *contract.CellError。
func Cell(src contract.SourceID, r contract.Row, column string) (float64, error) {
	raw := r.Get(column)
	v, err := Float(raw)
	if err != nil {
		return 0, &contract.CellError{Source: src, Line: r.Line(), Column: column, Value: raw}
	}
	return v, nil
}

// IntCell 在 Row 上按列宽松整数化，失败时返回带定位的 *contract.CellError。
func IntCell(src contract.SourceID, r contract.Row, column string) (int, error) {
	raw := r.Get(column)
	v, err := Int(raw)
	if err != nil {
		return 0, &contract.CellError{Source: src, Line: r.Line(), Column: column, Value: raw}
	}
	return v, nil
}
