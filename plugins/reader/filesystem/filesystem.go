package filesystem

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"

	"votefuse/pkg/contract"
)

// Options 为 FileSystem Reader 的可选配置（最小必要）。
type Options struct {
	// BufSize 为读缓冲区大小（字节）。默认 64KiB。
	BufSize int `yaml:"buf_size,omitempty"`
	// Gzip: 以 ".gz" 结尾的路径是否透明解压。默认 true。
	Gzip *bool `yaml:"gzip,omitempty"`
}

// FileSystem 实现基于文件系统与 STDIN 的 Reader。
type FileSystem struct {
	bufSize int
	gz      bool
}

// New 创建 FileSystem Reader。
func New(opts *Options) *FileSystem {
	const defaultBuf = 64 * 1024
	r := &FileSystem{bufSize: defaultBuf, gz: true}
	if opts != nil {
		if opts.BufSize > 0 {
			r.bufSize = opts.BufSize
		}
		if opts.Gzip != nil {
			r.gz = *opts.Gzip
		}
	}
	return r
}

var _ contract.Reader = (*FileSystem)(nil)

// Open 打开单个输入：常规文件或 "-"（STDIN）。
// 目录与其他非常规文件返回 contract.ErrPathInvalid。
// 关闭 STDIN 句柄不会关闭进程的 os.Stdin。
func (r *FileSystem) Open(ctx context.Context, p string) (contract.SourceID, io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return "", nil, err
	}
	if strings.TrimSpace(p) == "" {
		return "", nil, contract.ErrPathInvalid
	}
	id := contract.NormalizeSourceID(p)
	if p == "-" {
		return id, newBufferedCloser(io.NopCloser(os.Stdin), r.bufSize), nil
	}

	// Stat 跟随符号链接：指向常规文件的链接视为文件
	info, err := os.Stat(p)
	if err != nil {
		return "", nil, err
	}
	if !info.Mode().IsRegular() {
		return "", nil, contract.ErrPathInvalid
	}
	f, err := os.Open(p)
	if err != nil {
		return "", nil, err
	}
	brc := newBufferedCloser(f, r.bufSize)
	if r.gz && strings.HasSuffix(strings.ToLower(p), ".gz") {
		zr, err := gzip.NewReader(brc)
		if err != nil {
			_ = brc.Close()
			return "", nil, err
		}
		return id, &gzipCloser{Reader: zr, under: brc}, nil
	}
	return id, brc, nil
}

// bufferedCloser 将 bufio.Reader 与底层 Closer 组合为 ReadCloser。
type bufferedCloser struct {
	*bufio.Reader
	c io.Closer
}

func newBufferedCloser(c io.ReadCloser, bufSize int) *bufferedCloser {
	if bufSize <= 0 {
		bufSize = 64 * 1024
	}
	return &bufferedCloser{Reader: bufio.NewReaderSize(c, bufSize), c: c}
}

func (b *bufferedCloser) Close() error { return b.c.Close() }

// gzipCloser: 关闭时依次关闭解压器与底层文件。
type gzipCloser struct {
	*gzip.Reader
	under io.Closer
}

func (g *gzipCloser) Close() error {
	return errors.Join(g.Reader.Close(), g.under.Close())
}
