package config

import (
	"errors"
	"fmt"
	"strings"

	"votefuse/internal/encode"
	"votefuse/internal/pipeline"
	"votefuse/pkg/registry"
)

var logLevels = map[string]bool{"": true, "debug": true, "info": true, "warn": true, "error": true}

// Validate 对与子命令无关的最小边界做静态校验。
func Validate(cfg Config) error {
	if cfg.Parallel < 1 {
		return errors.New("config: parallel must be >= 1")
	}
	if _, err := encode.ParseGapPolicy(cfg.PartyGap); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if !logLevels[strings.ToLower(strings.TrimSpace(cfg.Logging.Level))] {
		return fmt.Errorf("config: unknown log level %q", cfg.Logging.Level)
	}
	// 组件名若为空，使用默认名（由 Defaults() 提供）。此处只要最终有值即可。
	d := Defaults()
	if name := effName(cfg.Components.Reader, d.Components.Reader); registry.Reader[name] == nil {
		return fmt.Errorf("config: reader %q not registered", name)
	}
	if name := effName(cfg.Components.Sink, d.Components.Sink); registry.Sink[name] == nil {
		return fmt.Errorf("config: sink %q not registered", name)
	}
	if name := effName(cfg.Components.Writer, d.Components.Writer); registry.Writer[name] == nil {
		return fmt.Errorf("config: writer %q not registered", name)
	}
	return nil
}

// ValidateFuse 校验单次融合的四个路径："-" 仅允许用于 ballots。
func ValidateFuse(cfg Config) error {
	if err := Validate(cfg); err != nil {
		return err
	}
	for _, p := range []struct{ name, v string }{
		{"members", cfg.Members}, {"bills", cfg.Bills}, {"ballots", cfg.Ballots}, {"output", cfg.Output},
	} {
		if strings.TrimSpace(p.v) == "" {
			return fmt.Errorf("config: %s path not set", p.name)
		}
		if p.v == "-" && p.name != "ballots" {
			return fmt.Errorf("config: %s cannot be read from stdin", p.name)
		}
	}
	return nil
}

// ValidateCongress 校验按届次批量运行所需的目录。
func ValidateCongress(cfg Config) error {
	if err := Validate(cfg); err != nil {
		return err
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		return errors.New("config: data_dir not set")
	}
	if strings.TrimSpace(cfg.OutDir) == "" {
		return errors.New("config: out_dir not set")
	}
	return nil
}

// Assemble 构造 Components 与 Settings。
// 严格 Options 解析在 registry（工厂）层进行；此处只传原样子树。
// 路径字段原样拷贝，由调用方按子命令校验。
func Assemble(cfg Config) (pipeline.Components, pipeline.Settings, error) {
	if err := Validate(cfg); err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}

	d := Defaults()
	rn := effName(cfg.Components.Reader, d.Components.Reader)
	sn := effName(cfg.Components.Sink, d.Components.Sink)
	wn := effName(cfg.Components.Writer, d.Components.Writer)

	r, err := registry.Reader[rn](cfg.Options.Reader)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, fmt.Errorf("reader %q: %w", rn, err)
	}
	w, err := registry.Writer[wn](cfg.Options.Writer)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, fmt.Errorf("writer %q: %w", wn, err)
	}
	s, err := registry.Sink[sn](cfg.Options.Sink, w)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, fmt.Errorf("sink %q: %w", sn, err)
	}
	csv, err := registry.DecoderOptions(cfg.Options.Decoder)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, fmt.Errorf("decoder: %w", err)
	}
	gap, _ := encode.ParseGapPolicy(cfg.PartyGap)

	comp := pipeline.Components{Reader: r, Sink: s, Writer: w}
	set := pipeline.Settings{
		Members:  cfg.Members,
		Bills:    cfg.Bills,
		Ballots:  cfg.Ballots,
		Output:   cfg.Output,
		PartyGap: gap,
		Audit:    cfg.Audit == nil || *cfg.Audit,
		CSV:      csv,
		SinkName: sn,
	}
	return comp, set, nil
}

func effName(got, def string) string {
	if strings.TrimSpace(got) == "" {
		return def
	}
	return strings.TrimSpace(got)
}
