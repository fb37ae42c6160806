package contract

import (
	"context"
	"io"
)

// ArtifactID: 持久化工件标识（与 SourceID 复用同一表示）。
type ArtifactID = SourceID

// Writer: 将字节流持久化到目标介质。
// 约束：
//  1. 同一 ArtifactID 单写者；
//  2. 流式写入（O(1) 额外内存），按字节透传；
//  3. ctx 取消/超时或 r 返回错误时不得留下半成品；
//  4. 错误直接上抛（不做重试/回退）。
type Writer interface {
	Write(ctx context.Context, id ArtifactID, r io.Reader) error
}

// Sink: 训练表的落地目标（CSV 文件、SQLite 表等）。
// Open 返回的 TableWriter 仅在 Commit 成功后对外可见；Abort 丢弃全部已写内容。
type Sink interface {
	Open(ctx context.Context, id ArtifactID) (TableWriter, error)
}

// TableWriter: 单次运行的行级写入会话。
// 约束：Commit 与 Abort 二者恰调用其一；调用后不得再 Append。
type TableWriter interface {
	Append(row FeatureRow) error
	Commit() error
	Abort(cause error)
}
