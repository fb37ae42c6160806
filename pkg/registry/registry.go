package registry

import (
	"bytes"
	"errors"
	"io"

	"gopkg.in/yaml.v3"

	"votefuse/pkg/contract"
	"votefuse/plugins/decoder/csvtable"
	rfs "votefuse/plugins/reader/filesystem"
	"votefuse/plugins/sink/csvfile"
	"votefuse/plugins/sink/sqlite"
	wfs "votefuse/plugins/writer/filesystem"
)

// Decode 严格解码 Options 子树：未知字段报错；nil 或空节点保持零值（默认选项）。
func Decode(node *yaml.Node, v any) error {
	if node == nil || node.Kind == 0 {
		return nil
	}
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		return nil
	}
	raw, err := yaml.Marshal(node)
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// NewReader 工厂签名：接收原样 Options 子树。
type NewReader func(node *yaml.Node) (contract.Reader, error)

// NewWriter 工厂签名：接收原样 Options 子树。
type NewWriter func(node *yaml.Node) (contract.Writer, error)

// NewSink 工厂签名：接收原样 Options 子树与已构造的 Writer（需要字节落地的 Sink 使用）。
type NewSink func(node *yaml.Node, w contract.Writer) (contract.Sink, error)

// Reader 工厂注册表（显式、零反射）。
var Reader = map[string]NewReader{
	// fs: 文件系统/STDIN Reader（.gz 透明解压）
	"fs": func(node *yaml.Node) (contract.Reader, error) {
		var opts rfs.Options
		if err := Decode(node, &opts); err != nil {
			return nil, err
		}
		return rfs.New(&opts), nil
	},
}

// Writer 工厂注册表。
var Writer = map[string]NewWriter{
	// fs: 文件系统 Writer（覆盖写/原子替换可配置）
	"fs": func(node *yaml.Node) (contract.Writer, error) {
		var opts wfs.Options
		if err := Decode(node, &opts); err != nil {
			return nil, err
		}
		return wfs.New(&opts)
	},
}

// Sink 工厂注册表。
var Sink = map[string]NewSink{
	// csv: 经 Writer 原子写出的 CSV 表
	"csv": func(node *yaml.Node, w contract.Writer) (contract.Sink, error) {
		var opts csvfile.Options
		if err := Decode(node, &opts); err != nil {
			return nil, err
		}
		return csvfile.New(w, &opts)
	},
	// sqlite: 单事务写入 SQLite 表（gorm）
	"sqlite": func(node *yaml.Node, _ contract.Writer) (contract.Sink, error) {
		var opts sqlite.Options
		if err := Decode(node, &opts); err != nil {
			return nil, err
		}
		return sqlite.New(&opts), nil
	},
}

// DecoderOptions 解码输入 CSV 选项。
func DecoderOptions(node *yaml.Node) (*csvtable.Options, error) {
	var opts csvtable.Options
	if err := Decode(node, &opts); err != nil {
		return nil, err
	}
	return &opts, nil
}
