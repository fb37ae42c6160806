package diag

import (
	"context"
	"encoding/csv"
	"errors"
	"io/fs"
	"time"

	"votefuse/pkg/contract"
)

// Code: 日志与指标使用的错误类别，与进程退出码无关。
type Code string

const (
	CodeUnknown   Code = "unknown"
	CodeCancel    Code = "cancel"
	CodeSchema    Code = "schema"
	CodeIntegrity Code = "integrity"
	CodeEncoding  Code = "encoding"
	// CodeInput: 单元格无法解析或路径非法。
	CodeInput Code = "input"
	// CodeFormat: CSV 结构损坏（引号、字段数）。
	CodeFormat    Code = "format"
	CodeInvariant Code = "invariant"
	CodeIO        Code = "io"
)

// Classify 按哨兵错误与错误类型归类，不做字符串匹配。
func Classify(err error) Code {
	var (
		perr *fs.PathError
		cerr *csv.ParseError
	)
	switch {
	case err == nil:
		return CodeUnknown
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return CodeCancel
	case errors.Is(err, contract.ErrSchema):
		return CodeSchema
	case errors.Is(err, contract.ErrJoinIntegrity):
		return CodeIntegrity
	case errors.Is(err, contract.ErrEncodingGap):
		return CodeEncoding
	case errors.Is(err, contract.ErrInvalidInput), errors.Is(err, contract.ErrPathInvalid):
		return CodeInput
	case errors.As(err, &cerr):
		return CodeFormat
	case errors.Is(err, contract.ErrInvariantViolation):
		return CodeInvariant
	case errors.As(err, &perr):
		return CodeIO
	}
	return CodeUnknown
}

// NowUTC: 日志 ts 字段（RFC3339，UTC）。
func NowUTC() string { return time.Now().UTC().Format(time.RFC3339) }
