package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnvPrefix: 环境变量覆盖的统一前缀。
const EnvPrefix = "VOTEFUSE_"

// Defaults 返回带有安全默认值的 Config 雏形。
func Defaults() Config {
	audit := true
	return Config{
		Parallel: 1,
		PartyGap: "propagate",
		Audit:    &audit,
		Logging:  Logging{Level: "info", Dir: "logs"},
		Components: Components{
			Reader: "fs",
			Sink:   "csv",
			Writer: "fs",
		},
	}
}

// Load 从文件路径或原始 YAML 解析 Config（严格拒绝未知字段）。
// 空文档返回零值 Config。
func Load(path string, raw []byte) (Config, error) {
	var cfg Config
	var r io.Reader
	switch {
	case len(raw) > 0:
		r = bytes.NewReader(raw)
	case path != "":
		f, err := os.Open(path)
		if err != nil {
			return cfg, err
		}
		defer f.Close()
		r = f
	default:
		return cfg, errors.New("no config source provided")
	}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Merge 按优先级合并（后者覆盖前者）。
// 仅标量/字符串/Options 子树为“替换”；不做深度合并。
func Merge(base, over Config) Config {
	out := base
	str := func(dst *string, v string) {
		if t := strings.TrimSpace(v); t != "" {
			*dst = t
		}
	}
	str(&out.Members, over.Members)
	str(&out.Bills, over.Bills)
	str(&out.Ballots, over.Ballots)
	str(&out.Output, over.Output)
	str(&out.DataDir, over.DataDir)
	str(&out.OutDir, over.OutDir)
	str(&out.PartyGap, over.PartyGap)
	str(&out.MetricsFile, over.MetricsFile)
	if over.Parallel != 0 {
		out.Parallel = over.Parallel
	}
	// Audit 的 false 具有语义，按指针“存在”判定
	if over.Audit != nil {
		v := *over.Audit
		out.Audit = &v
	}

	str(&out.Logging.Level, over.Logging.Level)
	str(&out.Logging.Dir, over.Logging.Dir)

	// 组件名（空不覆盖）
	str(&out.Components.Reader, over.Components.Reader)
	str(&out.Components.Sink, over.Components.Sink)
	str(&out.Components.Writer, over.Components.Writer)

	// Options（完整替换对应键）
	if over.Options.Reader != nil {
		out.Options.Reader = over.Options.Reader
	}
	if over.Options.Decoder != nil {
		out.Options.Decoder = over.Options.Decoder
	}
	if over.Options.Sink != nil {
		out.Options.Sink = over.Options.Sink
	}
	if over.Options.Writer != nil {
		out.Options.Writer = over.Options.Writer
	}
	return out
}

// EnvOverlay 从环境变量构建一个 Config 覆盖（仅解析有限键集合）。
// 规则：前缀 VOTEFUSE_；集合之外的键忽略。
// 支持：MEMBERS, BILLS, BALLOTS, OUTPUT, DATA_DIR, OUT_DIR, PARALLEL, PARTY_GAP, AUDIT,
// LOG_LEVEL, LOG_DIR, METRICS_FILE, COMPONENTS_{READER,SINK,WRITER},
// 以及 OPTIONS__{READER,DECODER,SINK,WRITER}（内联 YAML/JSON 子树）。
// 数值/布尔/子树不可解析时返回错误（不静默忽略）。
func EnvOverlay(environ []string) (Config, error) {
	var over Config
	for _, kv := range environ {
		if !strings.HasPrefix(kv, EnvPrefix) {
			continue
		}
		eq := strings.IndexByte(kv, '=')
		if eq <= len(EnvPrefix) {
			continue
		}
		key := strings.TrimPrefix(kv[:eq], EnvPrefix)
		val := kv[eq+1:]
		switch key {
		case "MEMBERS":
			over.Members = val
		case "BILLS":
			over.Bills = val
		case "BALLOTS":
			over.Ballots = val
		case "OUTPUT":
			over.Output = val
		case "DATA_DIR":
			over.DataDir = val
		case "OUT_DIR":
			over.OutDir = val
		case "PARALLEL":
			n, err := strconv.Atoi(strings.TrimSpace(val))
			if err != nil {
				return over, fmt.Errorf("config: %s%s: %w", EnvPrefix, key, err)
			}
			over.Parallel = n
		case "PARTY_GAP":
			over.PartyGap = val
		case "AUDIT":
			b, err := strconv.ParseBool(strings.TrimSpace(val))
			if err != nil {
				return over, fmt.Errorf("config: %s%s: %w", EnvPrefix, key, err)
			}
			over.Audit = &b
		case "LOG_LEVEL":
			over.Logging.Level = val
		case "LOG_DIR":
			over.Logging.Dir = val
		case "METRICS_FILE":
			over.MetricsFile = val
		case "COMPONENTS_READER":
			over.Components.Reader = strings.TrimSpace(val)
		case "COMPONENTS_SINK":
			over.Components.Sink = strings.TrimSpace(val)
		case "COMPONENTS_WRITER":
			over.Components.Writer = strings.TrimSpace(val)
		case "OPTIONS__READER", "OPTIONS__DECODER", "OPTIONS__SINK", "OPTIONS__WRITER":
			// 空值视为未设置，避免清空配置文件中的子树
			if strings.TrimSpace(val) == "" {
				continue
			}
			n, err := parseNode(val)
			if err != nil {
				return over, fmt.Errorf("config: %s%s: %w", EnvPrefix, key, err)
			}
			switch key {
			case "OPTIONS__READER":
				over.Options.Reader = n
			case "OPTIONS__DECODER":
				over.Options.Decoder = n
			case "OPTIONS__SINK":
				over.Options.Sink = n
			default:
				over.Options.Writer = n
			}
		}
	}
	return over, nil
}

// parseNode 将内联 YAML（含 JSON）解析为映射节点。
func parseNode(s string) (*yaml.Node, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(s), &doc); err != nil {
		return nil, err
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, errors.New("options must be a mapping")
	}
	return doc.Content[0], nil
}
