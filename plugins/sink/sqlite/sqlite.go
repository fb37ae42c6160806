package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"path"
	"strings"
	"sync"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"votefuse/pkg/contract"
)

// Options: 最小必要选项。
type Options struct {
	// DSN: SQLite 数据源。为空时以工件 ID 作为数据库文件路径。
	DSN string `yaml:"dsn,omitempty"`
	// Table: 目标表名。为空时由工件 ID 的文件名主干派生（如 nn_senate_119）。
	Table string `yaml:"table,omitempty"`
	// BatchSize: 批量插入大小；<=0 使用 500。
	BatchSize int `yaml:"batch_size,omitempty"`
}

// featureRecord: 训练表的行模型。列名与 CSV 布局一致；Seq 保持输入顺序。
// 缺失值（NaN）落为 NULL。
type featureRecord struct {
	Seq               int64           `gorm:"column:seq;primaryKey;autoIncrement:false"`
	Name              string          `gorm:"column:name"`
	NominateDim1      sql.NullFloat64 `gorm:"column:nominate_dim1"`
	NominateDim2      sql.NullFloat64 `gorm:"column:nominate_dim2"`
	BillNumber        string          `gorm:"column:bill_number"`
	VoteDesc          string          `gorm:"column:vote_desc"`
	VoteResult        string          `gorm:"column:vote_result"`
	NominateMid1      sql.NullFloat64 `gorm:"column:nominate_mid_1"`
	NominateMid2      sql.NullFloat64 `gorm:"column:nominate_mid_2"`
	PartyCode1        sql.NullFloat64 `gorm:"column:party_code_1"`
	PartyCode2        sql.NullFloat64 `gorm:"column:party_code_2"`
	Chamber           int             `gorm:"column:chamber"`
	DemCosponsors     sql.NullFloat64 `gorm:"column:dem_cosponsors"`
	RepCosponsors     sql.NullFloat64 `gorm:"column:rep_cosponsors"`
	PiecesCosponsored sql.NullFloat64 `gorm:"column:pieces_cosponsored"`
	NumCongresses     sql.NullFloat64 `gorm:"column:num_congresses"`
	Vote              int             `gorm:"column:vote"`
	RollNumber        string          `gorm:"column:rollnumber"`
	ICPSR             int             `gorm:"column:icpsr"`
}

func nullable(v float64) sql.NullFloat64 {
	if math.IsNaN(v) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func recordOf(seq int64, r contract.FeatureRow) featureRecord {
	return featureRecord{
		Seq:               seq,
		Name:              r.Name,
		NominateDim1:      nullable(r.NominateDim1),
		NominateDim2:      nullable(r.NominateDim2),
		BillNumber:        r.BillNumber,
		VoteDesc:          r.VoteDesc,
		VoteResult:        r.VoteResult,
		NominateMid1:      nullable(r.NominateMid1),
		NominateMid2:      nullable(r.NominateMid2),
		PartyCode1:        nullable(r.PartyCode1),
		PartyCode2:        nullable(r.PartyCode2),
		Chamber:           r.Chamber,
		DemCosponsors:     nullable(r.Counts.DemCosponsors),
		RepCosponsors:     nullable(r.Counts.RepCosponsors),
		PiecesCosponsored: nullable(r.Counts.PiecesCosponsored),
		NumCongresses:     nullable(r.Counts.NumCongresses),
		Vote:              r.Vote,
		RollNumber:        r.RollNumber,
		ICPSR:             r.ICPSR,
	}
}

// Sink: 以 SQLite 表落地训练表。每次运行一个事务：重建目标表、批量插入、提交。
// 同一 Sink 上的会话串行执行（SQLite 单写者）。
type Sink struct {
	dsn   string
	table string
	batch int
	sem   chan struct{}
}

var _ contract.Sink = (*Sink)(nil)

func New(opts *Options) *Sink {
	s := &Sink{batch: 500, sem: make(chan struct{}, 1)}
	if opts != nil {
		s.dsn = strings.TrimSpace(opts.DSN)
		s.table = strings.TrimSpace(opts.Table)
		if opts.BatchSize > 0 {
			s.batch = opts.BatchSize
		}
	}
	return s
}

// TableName 由工件 ID 派生表名：取文件名主干，小写，非 [a-z0-9_] 替换为 '_'。
func TableName(id contract.ArtifactID) string {
	base := path.Base(string(contract.NormalizeSourceID(string(id))))
	if ext := path.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	var b strings.Builder
	for _, r := range strings.ToLower(base) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	name := b.String()
	if name == "" || (name[0] >= '0' && name[0] <= '9') {
		name = "t_" + name
	}
	return name
}

func (s *Sink) Open(ctx context.Context, id contract.ArtifactID) (contract.TableWriter, error) {
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	release := func() { <-s.sem }

	dsn := s.dsn
	if dsn == "" {
		dsn = string(id)
	}
	if strings.TrimSpace(dsn) == "" {
		release()
		return nil, contract.ErrPathInvalid
	}
	table := s.table
	if table == "" {
		table = TableName(id)
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		release()
		return nil, err
	}
	closeDB := func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		closeDB()
		release()
		return nil, tx.Error
	}
	if err := tx.Migrator().DropTable(table); err != nil {
		tx.Rollback()
		closeDB()
		release()
		return nil, err
	}
	if err := tx.Table(table).AutoMigrate(&featureRecord{}); err != nil {
		tx.Rollback()
		closeDB()
		release()
		return nil, err
	}
	return &session{tx: tx, table: table, size: s.batch, closeDB: closeDB, release: release}, nil
}

type session struct {
	tx      *gorm.DB
	table   string
	size    int
	pending []featureRecord
	seq     int64

	closeDB func()
	release func()
	once    sync.Once
	err     error
}

func (t *session) Append(row contract.FeatureRow) error {
	t.seq++
	t.pending = append(t.pending, recordOf(t.seq, row))
	if len(t.pending) >= t.size {
		return t.flush()
	}
	return nil
}

func (t *session) flush() error {
	if len(t.pending) == 0 {
		return nil
	}
	if err := t.tx.Table(t.table).CreateInBatches(&t.pending, t.size).Error; err != nil {
		return err
	}
	t.pending = t.pending[:0]
	return nil
}

func (t *session) Commit() error {
	t.once.Do(func() {
		defer t.finish()
		if err := t.flush(); err != nil {
			t.tx.Rollback()
			t.err = err
			return
		}
		t.err = t.tx.Commit().Error
	})
	return t.err
}

func (t *session) Abort(cause error) {
	if cause == nil {
		cause = errors.New("sqlite: table aborted")
	}
	t.once.Do(func() {
		defer t.finish()
		t.tx.Rollback()
		t.err = cause
	})
}

func (t *session) finish() {
	t.closeDB()
	t.release()
}
