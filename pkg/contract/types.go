package contract

// SourceID: 逻辑输入源标识（通常为路径，需规范化，跨平台一致）。
type SourceID string

// MemberRecord: 单个议员在某一院/某届国会语境下的保留属性子集。
// 约束：
//   - ICPSR 在同一索引内唯一（重复时后写覆盖）；
//   - 数值列缺失（空单元格）以 NaN 表示，不做补值；
//   - 计数列非负。
type MemberRecord struct {
	ICPSR             int
	PartyCode         string // 原始党派代码，按字面比较
	Chamber           string // 原始院别字符串，按字面比较
	NominateDim1      float64
	NominateDim2      float64
	PiecesCosponsored float64
	NumCongresses     float64
	Name              string // 源列 bioname
}

// BillRecord: 单次点名表决（rollcall）的保留属性子集。
// RollNumber 按原样比较，不做类型转换。
type BillRecord struct {
	RollNumber    string
	NominateMid1  float64
	NominateMid2  float64
	DemCosponsors float64
	RepCosponsors float64
	BillNumber    string
	VoteDesc      string
	VoteResult    string
}

// Ballot: 单张选票的原始文本形态（流式读取，不整体驻留内存）。
// ICPSR/CastCode 保留原文本，由 Join 阶段负责宽松整数化（"1234.0" → 1234）。
type Ballot struct {
	Line       int // 源文件中的数据行号（表头为第 1 行）
	ICPSR      string
	RollNumber string
	CastCode   string
}

// MergedRow: Join 阶段产物；一张选票对应恰好一条。
type MergedRow struct {
	Line       int
	ICPSR      int
	RollNumber string
	Vote       int // 原始 cast_code 的整数值（尚未编码）
	Member     MemberRecord
	Bill       BillRecord
}

// Counts: 需要按固定分母缩放的计数特征。
type Counts struct {
	DemCosponsors     float64
	RepCosponsors     float64
	PiecesCosponsored float64
	NumCongresses     float64
}

// FeatureRow: 最终训练表的一行（已编码、已缩放）。
// PartyCode1/PartyCode2 在党派代码未映射且策略为透传时为 NaN。
type FeatureRow struct {
	Name         string
	NominateDim1 float64
	NominateDim2 float64
	BillNumber   string
	VoteDesc     string
	VoteResult   string
	NominateMid1 float64
	NominateMid2 float64
	PartyCode1   float64
	PartyCode2   float64
	Chamber      int
	Counts       Counts
	Vote         int
	RollNumber   string
	ICPSR        int
}

// SkipReason: 可恢复的逐行跳过原因。
type SkipReason string

const (
	SkipMemberUnresolved   SkipReason = "member_unresolved"
	SkipChamberInvalid     SkipReason = "chamber_invalid"
	SkipVoteNonSubstantive SkipReason = "vote_nonsubstantive"
	SkipPartyUnmapped      SkipReason = "party_unmapped"
)

// Skip: 单条可审计的逐行诊断。
// Kept=true 表示行仍被输出（党派缺口按透传策略处理）。
type Skip struct {
	Line       int        `json:"line"`
	ICPSR      string     `json:"icpsr"`
	RollNumber string     `json:"rollnumber"`
	Reason     SkipReason `json:"reason"`
	Detail     string     `json:"detail,omitempty"`
	Kept       bool       `json:"kept,omitempty"`
}
