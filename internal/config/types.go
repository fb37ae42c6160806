package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Config: 运行期只读配置（一次解析，运行期不变）。
// YAML 使用 snake_case；未知字段在解析期失败。
type Config struct {
	// 单次融合（fuse）的四个路径；ballots 可为 "-"（STDIN）。
	Members string `yaml:"members,omitempty"`
	Bills   string `yaml:"bills,omitempty"`
	Ballots string `yaml:"ballots,omitempty"`
	Output  string `yaml:"output,omitempty"`

	// 按届次批量运行（congress）：输入目录与输出目录。
	DataDir string `yaml:"data_dir,omitempty"`
	OutDir  string `yaml:"out_dir,omitempty"`
	// Parallel: congress 并发任务数（>=1）。
	Parallel int `yaml:"parallel,omitempty"`

	// PartyGap: 党派代码缺口策略 propagate|drop|fail。
	PartyGap string `yaml:"party_gap,omitempty"`
	// Audit: 是否写出 <output>.skips.jsonl；nil 表示未设置。
	Audit *bool `yaml:"audit,omitempty"`

	Logging Logging `yaml:"logging,omitempty"`
	// MetricsFile: 非空时运行结束写出 Prometheus 文本格式指标。
	MetricsFile string `yaml:"metrics_file,omitempty"`

	// 组件名选择（空则使用默认名）。
	Components Components `yaml:"components,omitempty"`
	// 各组件 Options 子树，原样传入工厂严格解码。
	Options Options `yaml:"options,omitempty"`
}

// Logging: 日志等级与目录（轮转策略为固定默认）。
type Logging struct {
	Level string `yaml:"level,omitempty"`
	Dir   string `yaml:"dir,omitempty"`
}

// Components: 组件名选择（注册表中的实现名）。
type Components struct {
	Reader string `yaml:"reader,omitempty"`
	Sink   string `yaml:"sink,omitempty"`
	Writer string `yaml:"writer,omitempty"`
}

// Options: 各组件的原样 Options 子树。
type Options struct {
	Reader  *yaml.Node `yaml:"reader,omitempty"`
	Decoder *yaml.Node `yaml:"decoder,omitempty"`
	Sink    *yaml.Node `yaml:"sink,omitempty"`
	Writer  *yaml.Node `yaml:"writer,omitempty"`
}

// UnmarshalYAML 原样保存各组件子树，不对子树做字段校验（由工厂严格解码）。
// 只接受 reader/decoder/sink/writer 四个键。
func (o *Options) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: options must be a mapping", n.Line)
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		k, v := n.Content[i], n.Content[i+1]
		switch k.Value {
		case "reader":
			o.Reader = v
		case "decoder":
			o.Decoder = v
		case "sink":
			o.Sink = v
		case "writer":
			o.Writer = v
		default:
			return fmt.Errorf("line %d: field %s not found in options", k.Line, k.Value)
		}
	}
	return nil
}
