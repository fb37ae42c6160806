package encode

// Version: 固定编码表的版本号。任何映射变更都必须提升版本，
// 以保证不同批次独立生成的训练表使用相同编码。
const Version = "v1"

// 以下映射为进程级常量表：启动即存在，运行期只读，不依据观测数据派生。
var (
	// chamberCodes: 院别字面值 → 编码。
	chamberCodes = map[string]int{
		"House":  0,
		"Senate": 1,
	}

	// partyBits: 三类原始党派代码 → 两位编码 (party_code_1, party_code_2)。
	partyBits = map[string][2]int{
		"100": {0, 0}, // Democrat
		"200": {0, 1}, // Republican
		"328": {1, 0}, // Independent
	}

	// voteCodes: Voteview cast_code（0..9 约定）→ 0/1。
	// 0/7/8/9（未任职、出席未投、缺席等）不在表内，整行丢弃。
	voteCodes = map[int]int{
		1: 1, 2: 1, 3: 1, // yea 系
		4: 0, 5: 0, 6: 0, // nay 系
	}
)

// Chamber 返回院别编码；ok=false 表示不在 {"House","Senate"} 内。
func Chamber(raw string) (int, bool) {
	c, ok := chamberCodes[raw]
	return c, ok
}

// Party 返回党派两位编码；ok=false 表示编码缺口（不在固定表内）。
func Party(raw string) ([2]int, bool) {
	b, ok := partyBits[raw]
	return b, ok
}

// Vote 返回投票编码；ok=false 表示非实质性投票或域外代码。
func Vote(cast int) (int, bool) {
	v, ok := voteCodes[cast]
	return v, ok
}
