package describe

import (
	"context"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"text/tabwriter"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"votefuse/pkg/contract"
	"votefuse/plugins/decoder/csvtable"
)

// Features: 分类器输入列（顺序即分类器输入顺序）。
var Features = []string{
	"party_code_1",
	"party_code_2",
	"chamber",
	"dem_cosponsors",
	"rep_cosponsors",
	"pieces_cosponsored",
	"num_congresses",
	"nominate_dim1",
	"nominate_dim2",
	"nominate_mid_1",
	"nominate_mid_2",
}

// Target: 标签列。
const Target = "vote"

// Column: 单列汇总。缺失值（空单元格）不参与统计。
// Count<2 时 Std 为 NaN；Count==0 时 Mean/Min/Max/Median 均为 NaN。
type Column struct {
	Name    string
	Count   int
	Missing int
	Mean    float64
	Std     float64
	Min     float64
	Median  float64
	Max     float64
	// AboveOne: 大于 1.0 的值个数（缩放后越界提示）。
	AboveOne int
}

// Summary: 一个或多个输出表的合并汇总。
type Summary struct {
	Sources []contract.SourceID
	Rows    int64
	Columns []Column
	// Votes: 标签取值 → 行数。
	Votes map[int]int64
}

// Summarize 读取 paths 指向的输出表并合并统计。
// 各表必须包含 Features 与 Target 列；单元格不可解析返回 *contract.CellError。
func Summarize(ctx context.Context, r contract.Reader, opts *csvtable.Options, paths ...string) (Summary, error) {
	if r == nil {
		return Summary{}, fmt.Errorf("describe: nil reader")
	}
	if len(paths) == 0 {
		return Summary{}, fmt.Errorf("describe: no input tables")
	}
	sum := Summary{Votes: make(map[int]int64)}
	values := make([][]float64, len(Features))
	missing := make([]int, len(Features))
	for _, p := range paths {
		id, err := collect(ctx, r, opts, p, &sum, values, missing)
		if err != nil {
			return sum, err
		}
		sum.Sources = append(sum.Sources, id)
	}
	for i, name := range Features {
		sum.Columns = append(sum.Columns, column(name, values[i], missing[i]))
	}
	return sum, nil
}

func collect(ctx context.Context, r contract.Reader, opts *csvtable.Options, p string, sum *Summary, values [][]float64, missing []int) (contract.SourceID, error) {
	id, rc, err := r.Open(ctx, p)
	if err != nil {
		return "", err
	}
	defer rc.Close()
	required := append(append([]string(nil), Features...), Target)
	tb, err := csvtable.Open(id, rc, required, opts)
	if err != nil {
		return id, err
	}
	for {
		if err := ctx.Err(); err != nil {
			return id, err
		}
		row, done, err := tb.Next()
		if err != nil {
			return id, err
		}
		if done {
			return id, nil
		}
		sum.Rows++
		for i, name := range Features {
			v, err := csvtable.Cell(id, row, name)
			if err != nil {
				return id, err
			}
			if math.IsNaN(v) {
				missing[i]++
				continue
			}
			values[i] = append(values[i], v)
		}
		vote, err := csvtable.IntCell(id, row, Target)
		if err != nil {
			return id, err
		}
		sum.Votes[vote]++
	}
}

func column(name string, x []float64, missing int) Column {
	c := Column{Name: name, Count: len(x), Missing: missing}
	if len(x) == 0 {
		nan := math.NaN()
		c.Mean, c.Std, c.Min, c.Median, c.Max = nan, nan, nan, nan, nan
		return c
	}
	c.Mean, c.Std = stat.MeanStdDev(x, nil)
	if len(x) < 2 {
		c.Std = math.NaN()
	}
	c.Min, c.Max = floats.Min(x), floats.Max(x)
	sorted := append([]float64(nil), x...)
	sort.Float64s(sorted)
	c.Median = stat.Quantile(0.5, stat.Empirical, sorted, nil)
	for _, v := range x {
		if v > 1 {
			c.AboveOne++
		}
	}
	return c
}

// Column 按名称查找列汇总。
func (s Summary) Column(name string) (Column, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Render 以对齐文本表输出汇总。
func (s Summary) Render(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "rows\t%d\n", s.Rows)
	keys := make([]int, 0, len(s.Votes))
	for k := range s.Votes {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	for _, k := range keys {
		share := float64(s.Votes[k]) / float64(s.Rows)
		fmt.Fprintf(tw, "%s=%d\t%d\t(%s)\n", Target, k, s.Votes[k], num(share))
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "column\tcount\tmissing\tmean\tstd\tmin\tmedian\tmax\t>1")
	for _, c := range s.Columns {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\t%s\t%s\t%s\t%d\n",
			c.Name, c.Count, c.Missing, num(c.Mean), num(c.Std), num(c.Min), num(c.Median), num(c.Max), c.AboveOne)
	}
	return tw.Flush()
}

func num(v float64) string {
	if math.IsNaN(v) {
		return "-"
	}
	return strconv.FormatFloat(v, 'g', 6, 64)
}
