package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"conductor/internal/logger"
	"conductor/internal/market"
	"conductor/internal/store"
	"conductor/internal/store/model"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const DefaultPath = "./db/db.sqlite"

type SqliteStore struct {
	db *gorm.DB
}

var _ store.Store = (*SqliteStore)(nil)

func NewSqliteStore(path string) (*SqliteStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = DefaultPath
	}
	var dsn string
	if path == ":memory:" {
		dsn = "file::memory:?cache=shared"
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
		dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	return NewSqliteStoreFromDB(db)
}

func NewSqliteStoreFromDB(db *gorm.DB) (*SqliteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("gorm db cannot be nil")
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(2)
		sqlDB.SetMaxIdleConns(2)
	}
	return &SqliteStore{db: db}, nil
}

// Init creates the tables if needed.
func (s *SqliteStore) Init(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&model.PositionModel{}, &model.OrderEventModel{})
}

func (s *SqliteStore) GetPosition(ctx context.Context, id string) (market.Position, error) {
	var row model.PositionModel
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return market.Position{}, fmt.Errorf("%w: %s", market.ErrPositionNotFound, id)
	}
	if err != nil {
		return market.Position{}, err
	}
	return row.ToPosition()
}

// GetPositions skips rows that no longer validate and logs them.
func (s *SqliteStore) GetPositions(ctx context.Context) ([]market.Position, error) {
	var rows []model.PositionModel
	if err := s.db.WithContext(ctx).Order("open_date ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]market.Position, 0, len(rows))
	for _, row := range rows {
		p, err := row.ToPosition()
		if err != nil {
			logger.Warnf("sqlite: skip invalid position row %s: %v", row.ID, err)
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *SqliteStore) CreatePosition(ctx context.Context, p market.Position) error {
	if strings.TrimSpace(p.ID) == "" {
		return &market.ValidationError{Field: "id"}
	}
	row := model.FromPosition(p)
	return s.db.WithContext(ctx).Create(&row).Error
}

func (s *SqliteStore) UpdatePosition(ctx context.Context, p market.Position) error {
	if strings.TrimSpace(p.ID) == "" {
		return &market.ValidationError{Field: "id"}
	}
	row := model.FromPosition(p)
	res := s.db.WithContext(ctx).Model(&model.PositionModel{}).Where("id = ?", p.ID).
		Select("*").Omit("id").Updates(&row)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", market.ErrPositionNotFound, p.ID)
	}
	return nil
}

func (s *SqliteStore) AppendEvent(ctx context.Context, ev store.OrderEvent) error {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return err
	}
	row := model.OrderEventModel{
		Name:       ev.Name,
		PositionID: ev.PositionID,
		Symbol:     ev.Symbol,
		Payload:    datatypes.JSON(payload),
	}
	if !ev.CreatedAt.IsZero() {
		row.CreatedAt = ev.CreatedAt
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

func (s *SqliteStore) ListEvents(ctx context.Context, positionID string, limit int) ([]store.OrderEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	q := s.db.WithContext(ctx).Order("id ASC").Limit(limit)
	if positionID != "" {
		q = q.Where("position_id = ?", positionID)
	}
	var rows []model.OrderEventModel
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]store.OrderEvent, 0, len(rows))
	for _, row := range rows {
		ev := store.OrderEvent{
			ID:         row.ID,
			Name:       row.Name,
			PositionID: row.PositionID,
			Symbol:     row.Symbol,
			CreatedAt:  row.CreatedAt,
		}
		if len(row.Payload) > 0 {
			if err := json.Unmarshal(row.Payload, &ev.Payload); err != nil {
				return nil, fmt.Errorf("decode event %d: %w", row.ID, err)
			}
		}
		out = append(out, ev)
	}
	return out, nil
}

func (s *SqliteStore) Close() error {
	if s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
