package config

import (
	"strings"

	"gopkg.in/yaml.v3"
)

// TemplateFile: init-config 生成的配置文件名。
const TemplateFile = "votefuse.yaml"

// DefaultTemplateConfig 返回一个“可运行”的默认配置模板：
// - 以 datafiles/ 为输入目录、datafiles/NN_files 为输出目录（congress 子命令）；
// - 组件名采用仓库内置实现；
// - Options 给出所有键的中性默认值。
func DefaultTemplateConfig() Config {
	cfg := Defaults()
	cfg.DataDir = "datafiles"
	cfg.OutDir = "datafiles/NN_files"
	cfg.Options.Reader = mustNode(`
buf_size: 65536
gzip: true
`)
	cfg.Options.Decoder = mustNode(`
comma: ","
`)
	cfg.Options.Sink = mustNode(`
comma: ","
crlf: false
`)
	cfg.Options.Writer = mustNode(`
root: ""
atomic: true
perm_file: 0o644
perm_dir: 0o755
buf_size: 65536
`)
	return cfg
}

// MarshalTemplate 以 YAML 输出配置（带文件头注释）。
func MarshalTemplate(cfg Config) ([]byte, error) {
	body, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	head := "# votefuse 配置（由 init-config 生成）\n" +
		"# 优先级：CLI > ENV(.env, VOTEFUSE_*) > 本文件 > 内置默认\n" +
		"# components.sink: csv | sqlite（sqlite 的 options.sink 键为 dsn/table/batch_size）\n"
	return append([]byte(head), body...), nil
}

// EnvTemplate 返回 .env 模板内容：列出全部受支持的覆盖键（空值表示未设置）。
func EnvTemplate() string {
	var b strings.Builder
	b.WriteString("# votefuse .env 模板（由 init-config 生成）\n")
	b.WriteString("# 优先级：CLI > ENV(.env) > YAML；已存在的环境变量不会被 .env 覆盖。\n\n")
	b.WriteString("# 配置来源\n")
	b.WriteString(EnvPrefix + "CONFIG_FILE=\n\n")
	b.WriteString("# 单次融合\n")
	for _, k := range []string{"MEMBERS", "BILLS", "BALLOTS", "OUTPUT"} {
		b.WriteString(EnvPrefix + k + "=\n")
	}
	b.WriteString("\n# 按届次运行\n")
	for _, k := range []string{"DATA_DIR", "OUT_DIR", "PARALLEL"} {
		b.WriteString(EnvPrefix + k + "=\n")
	}
	b.WriteString("\n# 行为\n")
	for _, k := range []string{"PARTY_GAP", "AUDIT", "LOG_LEVEL", "LOG_DIR", "METRICS_FILE"} {
		b.WriteString(EnvPrefix + k + "=\n")
	}
	b.WriteString("\n# 组件选择与 Options（内联 YAML/JSON）\n")
	for _, k := range []string{"COMPONENTS_READER", "COMPONENTS_SINK", "COMPONENTS_WRITER",
		"OPTIONS__READER", "OPTIONS__DECODER", "OPTIONS__SINK", "OPTIONS__WRITER"} {
		b.WriteString(EnvPrefix + k + "=\n")
	}
	return b.String()
}

func mustNode(src string) *yaml.Node {
	n, err := parseNode(src)
	if err != nil {
		panic(err)
	}
	return n
}
