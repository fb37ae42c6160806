package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"votefuse/internal/cleanse"
	cfgpkg "votefuse/internal/config"
	"votefuse/internal/describe"
	"votefuse/internal/diag"
	"votefuse/internal/emit"
	"votefuse/internal/pipeline"
)

var (
	version = "dev"

	pipelineRun = pipeline.Run
	runJobs     = pipeline.RunJobs
)

// 退出码：0 成功；1 运行失败；3 配置/装配失败。
const (
	exitOK     = 0
	exitRun    = 1
	exitConfig = 3
)

// exitError 携带退出码。
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func configErr(err error) error { return &exitError{code: exitConfig, err: err} }
func runErr(err error) error    { return &exitError{code: exitRun, err: err} }

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	// 在任何 ENV 读取前加载工作目录下的 .env（不覆盖已有 ENV）
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(stderr, "提示：.env 读取失败（已跳过）：%v\n", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		// 取消由用户触发，不重复打印
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintf(stderr, "%v\n", err)
		}
		return ee.code
	}
	// cobra 参数/旗标错误
	fmt.Fprintf(stderr, "%v\n", err)
	return exitConfig
}

// globalFlags: 所有子命令共享的旗标。
type globalFlags struct {
	config      string
	logLevel    string
	logDir      string
	metricsFile string
	partyGap    string
	sink        string
	audit       bool
	status      bool
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	g := &globalFlags{}
	cmd := &cobra.Command{
		Use:           "votefuse",
		Short:         "Roll-call data fusion: members + bills + ballots → training table",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	pf := cmd.PersistentFlags()
	pf.StringVarP(&g.config, "config", "c", "", "配置文件路径（YAML）；缺省读取 $VOTEFUSE_CONFIG_FILE 或 ./"+cfgpkg.TemplateFile+"（若存在）")
	pf.StringVar(&g.logLevel, "log-level", "", "日志级别 debug|info|warn|error（覆盖配置）")
	pf.StringVar(&g.logDir, "log-dir", "", "日志目录（覆盖配置）")
	pf.StringVar(&g.metricsFile, "metrics-file", "", "运行结束后写出 Prometheus 文本格式指标")
	pf.StringVar(&g.partyGap, "party-gap", "", "党派代码缺口策略 propagate|drop|fail（覆盖配置）")
	pf.StringVar(&g.sink, "sink", "", "输出 sink：csv|sqlite（覆盖配置）")
	pf.BoolVar(&g.audit, "audit", true, "写出 <output>.skips.jsonl 审计边车")
	pf.BoolVar(&g.status, "status", true, "终端状态提示（stderr）。TTY 动态刷新；非 TTY 打点输出")

	cmd.AddCommand(
		newFuseCmd(g),
		newCongressCmd(g),
		newCleanseCmd(g),
		newDescribeCmd(g),
		newInitConfigCmd(),
		newVersionCmd(),
	)
	return cmd
}

// loadConfig 按 Defaults → 配置文件 → ENV → CLI 的优先级合并配置。
func loadConfig(cmd *cobra.Command, g *globalFlags, over cfgpkg.Config) (cfgpkg.Config, error) {
	path := g.config
	if path == "" {
		path = os.Getenv(cfgpkg.EnvPrefix + "CONFIG_FILE")
	}
	if path == "" {
		if _, err := os.Stat(cfgpkg.TemplateFile); err == nil {
			path = cfgpkg.TemplateFile
		}
	}
	cfg := cfgpkg.Defaults()
	if path != "" {
		base, err := cfgpkg.Load(path, nil)
		if err != nil {
			return cfg, err
		}
		cfg = cfgpkg.Merge(cfg, base)
	}
	env, err := cfgpkg.EnvOverlay(os.Environ())
	if err != nil {
		return cfg, err
	}
	cfg = cfgpkg.Merge(cfg, env)

	fl := cmd.Flags()
	over.Logging.Level = g.logLevel
	over.Logging.Dir = g.logDir
	over.MetricsFile = g.metricsFile
	over.PartyGap = g.partyGap
	over.Components.Sink = g.sink
	if fl.Changed("audit") {
		v := g.audit
		over.Audit = &v
	}
	return cfgpkg.Merge(cfg, over), nil
}

// session: 单次命令的日志、终端与指标导出。
type session struct {
	cfg    cfgpkg.Config
	logger *diag.Logger
	term   *diag.Terminal
	start  time.Time
}

func openSession(cmd *cobra.Command, g *globalFlags, cfg cfgpkg.Config) *session {
	s := &session{
		cfg:    cfg,
		logger: diag.NewLogger(uuid.NewString(), cfg.Logging.Level, cfg.Logging.Dir),
		term:   diag.NewTerminal(cmd.ErrOrStderr(), g.status),
		start:  time.Now(),
	}
	s.logger.Debug("config", "effective", map[string]string{
		"command":   cmd.Name(),
		"reader":    cfg.Components.Reader,
		"sink":      cfg.Components.Sink,
		"writer":    cfg.Components.Writer,
		"party_gap": cfg.PartyGap,
		"parallel":  strconv.Itoa(cfg.Parallel),
	})
	return s
}

// close 写出指标（若配置）并关闭日志。
func (s *session) close(err error) {
	if err != nil {
		code := string(diag.Classify(err))
		s.logger.Error("cli", code, "first error", &s.start)
	}
	if s.cfg.MetricsFile != "" {
		if werr := diag.WriteMetrics(s.cfg.MetricsFile); werr != nil {
			s.logger.Error("cli", string(diag.Classify(werr)), "metrics: "+werr.Error(), nil)
		}
	}
	_ = s.logger.Close()
}

func newFuseCmd(g *globalFlags) *cobra.Command {
	var over cfgpkg.Config
	cmd := &cobra.Command{
		Use:   "fuse [members bills ballots output]",
		Short: "融合一组成员/账单/选票文件为训练表",
		Long: `fuse 将成员索引、账单索引与选票流连接并编码，输出固定布局（` + emit.Layout + `）的训练表。
路径可以用四个位置参数或 --members/--bills/--ballots/--output 指定；ballots 可为 "-"（STDIN）。`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 && len(args) != 4 {
				return fmt.Errorf("fuse: expected 0 or 4 positional paths, got %d", len(args))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			if len(args) == 4 {
				over.Members, over.Bills, over.Ballots, over.Output = args[0], args[1], args[2], args[3]
			}
			cfg, err := loadConfig(cmd, g, over)
			if err != nil {
				return configErr(err)
			}
			if err := cfgpkg.ValidateFuse(cfg); err != nil {
				return configErr(err)
			}
			comp, set, err := cfgpkg.Assemble(cfg)
			if err != nil {
				return configErr(err)
			}
			s := openSession(cmd, g, cfg)
			defer func() { s.close(err) }()

			set.Terminal = s.term
			s.term.RunStart(1, set.SinkName)
			_, rerr := pipelineRun(cmd.Context(), comp, set, s.logger)
			s.term.RunFinish(rerr == nil, time.Since(s.start))
			if rerr != nil {
				return runErr(rerr)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&over.Members, "members", "", "成员文件（{S|H}{n}_members_API.csv）")
	f.StringVar(&over.Bills, "bills", "", "账单文件（{S|H}{n}_rollcalls_CLEANSED_API.csv）")
	f.StringVar(&over.Ballots, "ballots", "", `选票文件（{S|H}{n}_votes_CLEANSED.csv）或 "-"`)
	f.StringVarP(&over.Output, "output", "o", "", "输出路径（csv 文件或 sqlite 工件 ID）")
	return cmd
}

func newCongressCmd(g *globalFlags) *cobra.Command {
	var (
		over     cfgpkg.Config
		chambers []string
	)
	cmd := &cobra.Command{
		Use:   "congress [N...]",
		Short: "按届次为参、众两院生成 NN_{SENATE|HOUSE}_{N}.csv",
		Long: `congress 在 --data-dir 中按命名约定查找输入，并发运行各院各届的融合任务。
未给出届次时扫描 {S,H}*_members_API.csv 自动发现。任一任务失败即取消其余任务。`,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			nums, err := parseCongresses(args)
			if err != nil {
				return configErr(err)
			}
			var cs []pipeline.Chamber
			for _, c := range chambers {
				pc, err := pipeline.ParseChamber(c)
				if err != nil {
					return configErr(err)
				}
				cs = append(cs, pc)
			}
			cfg, err := loadConfig(cmd, g, over)
			if err != nil {
				return configErr(err)
			}
			if err := cfgpkg.ValidateCongress(cfg); err != nil {
				return configErr(err)
			}
			comp, base, err := cfgpkg.Assemble(cfg)
			if err != nil {
				return configErr(err)
			}

			var jobs []pipeline.Job
			if len(nums) > 0 {
				jobs = pipeline.Plan(cfg.DataDir, cfg.OutDir, nums, cs...)
			} else {
				jobs, err = pipeline.Discover(cfg.DataDir, cfg.OutDir, cs...)
				if err != nil {
					return configErr(err)
				}
			}
			if len(jobs) == 0 {
				return configErr(fmt.Errorf("congress: no *_members_API.csv inputs under %s", cfg.DataDir))
			}

			s := openSession(cmd, g, cfg)
			defer func() { s.close(err) }()
			base.Terminal = s.term
			if _, rerr := runJobs(cmd.Context(), comp, base, jobs, cfg.Parallel, s.logger); rerr != nil {
				return runErr(rerr)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&over.DataDir, "data-dir", "", "输入目录（覆盖配置 data_dir）")
	f.StringVar(&over.OutDir, "out-dir", "", "输出目录（覆盖配置 out_dir）")
	f.IntVarP(&over.Parallel, "parallel", "j", 0, "并发任务数（覆盖配置 parallel）")
	f.StringSliceVar(&chambers, "chamber", nil, "仅处理指定院别（S/H，可重复）")
	return cmd
}

func parseCongresses(args []string) ([]int, error) {
	var out []int
	for _, a := range args {
		n, err := strconv.Atoi(a)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("congress: invalid congress number %q", a)
		}
		out = append(out, n)
	}
	return out, nil
}

func newCleanseCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cleanse",
		Short: "筛选 rollcall 与选票原始文件（输出 <stem>_CLEANSED<ext>）",
	}

	// withCleanser 装配 Cleanser 并在结束时关闭会话。
	withCleanser := func(cmd *cobra.Command, fn func(*cleanse.Cleanser) ([]cleanse.Report, error)) (err error) {
		cfg, err := loadConfig(cmd, g, cfgpkg.Config{})
		if err != nil {
			return configErr(err)
		}
		comp, set, err := cfgpkg.Assemble(cfg)
		if err != nil {
			return configErr(err)
		}
		s := openSession(cmd, g, cfg)
		defer func() { s.close(err) }()
		reps, rerr := fn(&cleanse.Cleanser{Reader: comp.Reader, Writer: comp.Writer, CSV: set.CSV, Logger: s.logger})
		for _, r := range reps {
			if r.Output != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: kept %d of %d\n", r.Output, r.Kept, r.Read)
			}
		}
		if rerr != nil {
			return runErr(rerr)
		}
		return nil
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "rollcalls <senate_rollcalls.csv> <house_rollcalls.csv>",
		Short: "按表决结果/问题白名单筛选同一届参、众两院的 rollcall",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCleanser(cmd, func(c *cleanse.Cleanser) ([]cleanse.Report, error) {
				s, h, err := c.Rollcalls(cmd.Context(), args[0], args[1])
				return []cleanse.Report{s, h}, err
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "ballots <rollcalls_CLEANSED.csv> <votes.csv>",
		Short: "仅保留 rollnumber 出现在已清洗 rollcall 中的选票",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCleanser(cmd, func(c *cleanse.Cleanser) ([]cleanse.Report, error) {
				r, err := c.Ballots(cmd.Context(), args[0], args[1])
				return []cleanse.Report{r}, err
			})
		},
	})

	var dataDir string
	byCongress := &cobra.Command{
		Use:   "congress <N...>",
		Short: "对 --data-dir 中第 N 届的 {S,H}N_rollcalls.csv 与 {S,H}N_votes.csv 依次执行两步筛选",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			nums, err := parseCongresses(args)
			if err != nil {
				return configErr(err)
			}
			return withCleanser(cmd, func(c *cleanse.Cleanser) ([]cleanse.Report, error) {
				var reps []cleanse.Report
				for _, n := range nums {
					at := func(format string) string { return filepath.Join(dataDir, fmt.Sprintf(format, n)) }
					s, h, err := c.Rollcalls(cmd.Context(), at("S%d_rollcalls.csv"), at("H%d_rollcalls.csv"))
					reps = append(reps, s, h)
					if err != nil {
						return reps, err
					}
					for _, p := range []string{"S", "H"} {
						r, err := c.Ballots(cmd.Context(), at(p+"%d_rollcalls_CLEANSED.csv"), at(p+"%d_votes.csv"))
						reps = append(reps, r)
						if err != nil {
							return reps, err
						}
					}
				}
				return reps, nil
			})
		},
	}
	byCongress.Flags().StringVar(&dataDir, "data-dir", ".", "原始文件目录")
	cmd.AddCommand(byCongress)
	return cmd
}

func newDescribeCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "describe <table.csv>...",
		Short: "汇总输出表的特征列分布与标签平衡",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			cfg, err := loadConfig(cmd, g, cfgpkg.Config{})
			if err != nil {
				return configErr(err)
			}
			comp, set, err := cfgpkg.Assemble(cfg)
			if err != nil {
				return configErr(err)
			}
			s := openSession(cmd, g, cfg)
			defer func() { s.close(err) }()
			t := s.logger.Start("describe", "summary")
			sum, rerr := describe.Summarize(cmd.Context(), comp.Reader, set.CSV, args...)
			if rerr != nil {
				return runErr(rerr)
			}
			t.Finish("summary", sum.Rows, nil)
			if rerr := sum.Render(cmd.OutOrStdout()); rerr != nil {
				return runErr(rerr)
			}
			return nil
		},
	}
}

func newInitConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-config [dir]",
		Short: "在目录中生成 " + cfgpkg.TemplateFile + " 与 .env 模板（不覆盖已有文件）",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return configErr(err)
			}
			b, err := cfgpkg.MarshalTemplate(cfgpkg.DefaultTemplateConfig())
			if err != nil {
				return configErr(err)
			}
			cfgPath := filepath.Join(dir, cfgpkg.TemplateFile)
			if err := writeNew(cfgPath, b); err != nil {
				return configErr(err)
			}
			envPath := filepath.Join(dir, ".env")
			if err := writeNew(envPath, []byte(cfgpkg.EnvTemplate())); err != nil && !errors.Is(err, fs.ErrExist) {
				fmt.Fprintf(cmd.ErrOrStderr(), "提示：.env 生成失败（已跳过）：%v\n", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), cfgPath)
			return nil
		},
	}
}

// writeNew 仅创建新文件；已存在时返回 fs.ErrExist。
func writeNew(path string, b []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "打印版本信息",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "votefuse %s (layout %s)\n", version, emit.Layout)
		},
	}
}
