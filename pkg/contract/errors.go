package contract

import (
	"errors"
	"fmt"
)

// 最小错误分类（用于上层策略判定与日志分类）。
var (
	// ErrSchema: 输入源缺少必需列。
	ErrSchema = errors.New("schema error")
	// ErrJoinIntegrity: 选票引用了账单索引中不存在的 rollnumber（上游契约违例）。
	ErrJoinIntegrity = errors.New("join integrity error")
	// ErrEncodingGap: 分类值不在固定映射表内且策略要求失败。
	ErrEncodingGap = errors.New("encoding gap")
	// ErrInvalidInput: 单元格无法解析（标识符/数值）。
	ErrInvalidInput = errors.New("invalid input")
	// ErrPathInvalid: 目标标识映射为无效/越界路径。
	ErrPathInvalid = errors.New("path invalid")
	// ErrInvariantViolation: 领域不变量违例（通用哨兵）。
	ErrInvariantViolation = errors.New("invariant violation")
)

// SchemaError: 输入源缺少必需列（致命）。
type SchemaError struct {
	Source SourceID
	Column string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema error: %s: missing required column %q", e.Source, e.Column)
}

func (e *SchemaError) Unwrap() error { return ErrSchema }

// JoinIntegrityError: 选票的 rollnumber 未在账单索引中（致命，不得静默跳过）。
type JoinIntegrityError struct {
	Line       int
	RollNumber string
}

func (e *JoinIntegrityError) Error() string {
	return fmt.Sprintf("join integrity error: ballot line %d references rollnumber %q absent from bill index", e.Line, e.RollNumber)
}

func (e *JoinIntegrityError) Unwrap() error { return ErrJoinIntegrity }

// CellError: 单元格解析失败，携带定位信息并包裹 ErrInvalidInput。
type CellError struct {
	Source SourceID
	Line   int
	Column string
	Value  string
}

func (e *CellError) Error() string {
	return fmt.Sprintf("invalid input: %s line %d column %q: cannot parse %q", e.Source, e.Line, e.Column, e.Value)
}

func (e *CellError) Unwrap() error { return ErrInvalidInput }
