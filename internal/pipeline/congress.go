package pipeline

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"

	"votefuse/internal/diag"
)

// Chamber: 文件名前缀（S/H）对应的院别。
type Chamber string

const (
	Senate Chamber = "S"
	House  Chamber = "H"
)

// Label 返回输出文件名中的院别标签。
func (c Chamber) Label() string {
	if c == House {
		return "HOUSE"
	}
	return "SENATE"
}

// ParseChamber 接受 S/H 或 senate/house（不区分大小写）。
func ParseChamber(s string) (Chamber, error) {
	switch s {
	case "S", "s", "senate", "Senate", "SENATE":
		return Senate, nil
	case "H", "h", "house", "House", "HOUSE":
		return House, nil
	}
	return "", fmt.Errorf("pipeline: unknown chamber %q", s)
}

// Job: 某届国会某一院的一次融合。
type Job struct {
	Congress int
	Chamber  Chamber
	Members  string
	Bills    string
	Ballots  string
	Output   string
}

// Name 返回任务标识，如 SENATE_119。
func (j Job) Name() string { return fmt.Sprintf("%s_%d", j.Chamber.Label(), j.Congress) }

// NewJob 按数据目录的命名约定构造任务：
//
//	{S|H}{n}_members_API.csv, {S|H}{n}_rollcalls_CLEANSED_API.csv, {S|H}{n}_votes_CLEANSED.csv
//	→ outDir/NN_{SENATE|HOUSE}_{n}.csv
func NewJob(dataDir, outDir string, c Chamber, congress int) Job {
	p := fmt.Sprintf("%s%d", c, congress)
	return Job{
		Congress: congress,
		Chamber:  c,
		Members:  filepath.Join(dataDir, p+"_members_API.csv"),
		Bills:    filepath.Join(dataDir, p+"_rollcalls_CLEANSED_API.csv"),
		Ballots:  filepath.Join(dataDir, p+"_votes_CLEANSED.csv"),
		Output:   filepath.Join(outDir, fmt.Sprintf("NN_%s_%d.csv", c.Label(), congress)),
	}
}

var membersFile = regexp.MustCompile(`^([SH])(\d+)_members_API\.csv$`)

// Discover 扫描 dataDir 下的 {S,H}*_members_API.csv，返回按 (届次, 院别 S 先) 排序的任务。
// chambers 为空时两院都取。
func Discover(dataDir, outDir string, chambers ...Chamber) ([]Job, error) {
	matches, err := doublestar.Glob(os.DirFS(dataDir), "{S,H}*_members_API.csv")
	if err != nil {
		return nil, fmt.Errorf("discover: %w", err)
	}
	want := chamberSet(chambers)
	var jobs []Job
	for _, m := range matches {
		sub := membersFile.FindStringSubmatch(path.Base(m))
		if sub == nil {
			continue
		}
		c := Chamber(sub[1])
		if !want[c] {
			continue
		}
		n, err := strconv.Atoi(sub[2])
		if err != nil {
			continue
		}
		jobs = append(jobs, NewJob(dataDir, outDir, c, n))
	}
	sortJobs(jobs)
	return jobs, nil
}

// Plan 为显式届次构造任务（每届按 chambers，默认两院）。
func Plan(dataDir, outDir string, congresses []int, chambers ...Chamber) []Job {
	want := chamberSet(chambers)
	var jobs []Job
	for _, n := range congresses {
		for _, c := range []Chamber{Senate, House} {
			if want[c] {
				jobs = append(jobs, NewJob(dataDir, outDir, c, n))
			}
		}
	}
	sortJobs(jobs)
	return jobs
}

func chamberSet(chambers []Chamber) map[Chamber]bool {
	if len(chambers) == 0 {
		return map[Chamber]bool{Senate: true, House: true}
	}
	out := make(map[Chamber]bool, len(chambers))
	for _, c := range chambers {
		out[c] = true
	}
	return out
}

func sortJobs(jobs []Job) {
	sort.SliceStable(jobs, func(i, k int) bool {
		if jobs[i].Congress != jobs[k].Congress {
			return jobs[i].Congress < jobs[k].Congress
		}
		// S 在 H 之前
		return jobs[i].Chamber > jobs[k].Chamber
	})
}

// RunJobs 以至多 parallel 个并发执行任务。各任务互不共享状态；
// 任一失败取消其余任务并返回首错。已成功提交的输出保留。
// 返回的报告与 jobs 一一对应（未运行的为零值）。
func RunJobs(ctx context.Context, comp Components, base Settings, jobs []Job, parallel int, logger *diag.Logger) ([]Report, error) {
	if parallel < 1 {
		parallel = 1
	}
	reports := make([]Report, len(jobs))
	start := time.Now()
	base.Terminal.RunStart(len(jobs), base.SinkName)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for i, job := range jobs {
		i, job := i, job
		set := base
		set.Members, set.Bills, set.Ballots, set.Output = job.Members, job.Bills, job.Ballots, job.Output
		g.Go(func() error {
			rep, err := Run(gctx, comp, set, logger)
			reports[i] = rep
			if err != nil {
				return fmt.Errorf("%s: %w", job.Name(), err)
			}
			return nil
		})
	}
	err := g.Wait()
	base.Terminal.RunFinish(err == nil, time.Since(start))
	return reports, err
}
