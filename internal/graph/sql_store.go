package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/grand-thief-cash/yggdrasil/infra/components/logging"
)

type graphNode struct {
	ID        string `gorm:"primaryKey;size:128"`
	Label     string `gorm:"size:128;index"`
	PropsJSON string `gorm:"type:text"`
	UpdatedAt time.Time
}

func (graphNode) TableName() string { return "graph_nodes" }

type graphEdge struct {
	FromID    string `gorm:"primaryKey;size:128;column:from_id;index:idx_from"`
	ToID      string `gorm:"primaryKey;size:128;column:to_id"`
	CreatedAt time.Time
}

func (graphEdge) TableName() string { return "graph_edges" }

type sqlStore struct {
	db *gorm.DB
}

const sqlUpsertBatch = 200

func openSQL(ctx context.Context, o SQLOptions) (Store, error) {
	var dial gorm.Dialector
	switch strings.ToLower(o.Dialect) {
	case "postgres":
		dial = postgres.Open(o.DSN)
	case "mysql":
		dial = mysql.Open(o.DSN)
	default:
		return nil, fmt.Errorf("unknown sql dialect %q", o.Dialect)
	}

	gdb, err := gorm.Open(dial, &gorm.Config{Logger: newGormLogger()})
	if err != nil {
		return nil, fmt.Errorf("open gorm %s failed: %w", o.Dialect, err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("get underlying sql.DB failed: %w", err)
	}
	if o.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(o.MaxOpenConns)
	} else {
		sqlDB.SetMaxOpenConns(50)
	}
	if o.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(o.MaxIdleConns)
	} else {
		sqlDB.SetMaxIdleConns(10)
	}
	if o.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(o.ConnMaxLifetime)
	} else {
		sqlDB.SetConnMaxLifetime(60 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping %s failed: %w", o.Dialect, err)
	}

	if o.AutoMigrate {
		if err := gdb.WithContext(ctx).AutoMigrate(&graphNode{}, &graphEdge{}); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("auto migrate failed: %w", err)
		}
	}
	return &sqlStore{db: gdb}, nil
}

func (s *sqlStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *sqlStore) Close(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *sqlStore) Node(ctx context.Context, id string) (*Node, error) {
	var row graphNode
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	n := &Node{ID: row.ID, Label: row.Label}
	if strings.TrimSpace(row.PropsJSON) != "" {
		if err := json.Unmarshal([]byte(row.PropsJSON), &n.Props); err != nil {
			return nil, fmt.Errorf("decode props for %s: %w", id, err)
		}
	}
	return n, nil
}

func (s *sqlStore) Adjacency(ctx context.Context, id string) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&graphEdge{}).
		Where("from_id = ?", id).
		Order("to_id").
		Pluck("to_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *sqlStore) UpsertNodes(ctx context.Context, nodes []Node) error {
	if len(nodes) == 0 {
		return nil
	}
	rows := make([]graphNode, 0, len(nodes))
	now := time.Now()
	for _, n := range nodes {
		if n.ID == "" {
			return fmt.Errorf("graph: node with empty id")
		}
		props := ""
		if len(n.Props) > 0 {
			b, err := json.Marshal(n.Props)
			if err != nil {
				return fmt.Errorf("encode props for %s: %w", n.ID, err)
			}
			props = string(b)
		}
		rows = append(rows, graphNode{ID: n.ID, Label: n.Label, PropsJSON: props, UpdatedAt: now})
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"label", "props_json", "updated_at"}),
		}).
		CreateInBatches(rows, sqlUpsertBatch).Error
}

func (s *sqlStore) UpsertEdges(ctx context.Context, edges []Edge) error {
	if len(edges) == 0 {
		return nil
	}
	rows := make([]graphEdge, 0, len(edges))
	now := time.Now()
	for _, e := range edges {
		if e.From == "" || e.To == "" {
			return fmt.Errorf("graph: edge with empty endpoint")
		}
		rows = append(rows, graphEdge{FromID: e.From, ToID: e.To, CreatedAt: now})
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(rows, sqlUpsertBatch).Error
}

func (s *sqlStore) NodeCount(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&graphNode{}).Count(&n).Error
	return n, err
}

func (s *sqlStore) EdgeCount(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&graphEdge{}).Count(&n).Error
	return n, err
}

// gormLogger routes gorm's logs through the logging globals with a slow
// query threshold.
type gormLogger struct {
	logLevel      logger.LogLevel
	slowThreshold time.Duration
}

func newGormLogger() logger.Interface {
	return &gormLogger{logLevel: logger.Warn, slowThreshold: 200 * time.Millisecond}
}

func (l *gormLogger) LogMode(level logger.LogLevel) logger.Interface {
	nl := *l
	nl.logLevel = level
	return &nl
}

func (l *gormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.logLevel >= logger.Info {
		logging.Infof(ctx, "[gorm] "+msg, data...)
	}
}

func (l *gormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.logLevel >= logger.Warn {
		logging.Warnf(ctx, "[gorm] "+msg, data...)
	}
}

func (l *gormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.logLevel >= logger.Error {
		logging.Errorf(ctx, "[gorm] "+msg, data...)
	}
}

func (l *gormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.logLevel <= logger.Silent {
		return
	}
	elapsed := time.Since(begin)
	sqlStr, rows := fc()
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.logLevel >= logger.Error {
		logging.Errorf(ctx, "[gorm] error elapsed=%s rows=%d sql=%s err=%v", elapsed, rows, sqlStr, err)
		return
	}
	if l.slowThreshold > 0 && elapsed > l.slowThreshold && l.logLevel >= logger.Warn {
		logging.Warnf(ctx, "[gorm] slow elapsed=%s threshold=%s rows=%d sql=%s", elapsed, l.slowThreshold, rows, sqlStr)
	}
}
