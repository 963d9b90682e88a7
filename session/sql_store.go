package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/BaSui01/flowroute/config"
	"github.com/BaSui01/flowroute/types"
)

// sessionRow is the relational shape of one session. The full session state
// lives in the JSON blob; phase and expiry are lifted into columns so sweeps
// and retention queries stay indexable.
type sessionRow struct {
	ID        string    `gorm:"primaryKey;size:64"`
	Phase     string    `gorm:"index;size:32"`
	ExpiresAt time.Time `gorm:"index"`
	Data      []byte    `gorm:"type:blob"`
	UpdatedAt time.Time
}

func (sessionRow) TableName() string {
	return "sessions"
}

// SQLStore persists sessions in a relational database via gorm.
type SQLStore struct {
	db        *gorm.DB
	retention time.Duration
}

// NewSQLStore opens the configured database and migrates the schema.
func NewSQLStore(cfg config.DatabaseConfig, retention time.Duration) (*SQLStore, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN())
	case "mysql":
		dialector = mysql.Open(cfg.DSN())
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN())
	default:
		return nil, types.NewError(types.ErrValidation,
			fmt.Sprintf("unsupported database driver %q", cfg.Driver))
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, types.NewError(types.ErrStoreUnavailable, "database connection failed").
			WithCause(err).WithRetryable(true)
	}
	if err := db.AutoMigrate(&sessionRow{}); err != nil {
		return nil, types.NewError(types.ErrStoreUnavailable, "schema migration failed").WithCause(err)
	}
	return &SQLStore{db: db, retention: retention}, nil
}

// Save upserts the full session snapshot.
func (s *SQLStore) Save(ctx context.Context, session *types.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return types.NewError(types.ErrInternalError, "marshal session").WithCause(err).WithSession(session.ID)
	}
	row := sessionRow{
		ID:        session.ID,
		Phase:     string(session.Phase),
		ExpiresAt: session.ExpiresAt,
		Data:      data,
	}
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(&row).Error
	if err != nil {
		return types.NewError(types.ErrStoreUnavailable, "database save failed").
			WithCause(err).WithRetryable(true).WithSession(session.ID)
	}
	return nil
}

// Get loads and decodes one session.
func (s *SQLStore) Get(ctx context.Context, id string) (*types.Session, error) {
	var row sessionRow
	err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.NewError(types.ErrSessionNotFound, "session not found").WithSession(id)
	}
	if err != nil {
		return nil, types.NewError(types.ErrStoreUnavailable, "database get failed").
			WithCause(err).WithRetryable(true).WithSession(id)
	}
	var session types.Session
	if err := json.Unmarshal(row.Data, &session); err != nil {
		return nil, types.NewError(types.ErrInternalError, "decode session").WithCause(err).WithSession(id)
	}
	return &session, nil
}

// ListActive returns all sessions in a non-terminal phase.
func (s *SQLStore) ListActive(ctx context.Context) ([]*types.Session, error) {
	var rows []sessionRow
	err := s.db.WithContext(ctx).
		Where("phase NOT IN ?", []string{string(types.PhaseCompleted), string(types.PhaseCancelled)}).
		Find(&rows).Error
	if err != nil {
		return nil, types.NewError(types.ErrStoreUnavailable, "database list failed").
			WithCause(err).WithRetryable(true)
	}

	active := []*types.Session{}
	for _, row := range rows {
		var session types.Session
		if err := json.Unmarshal(row.Data, &session); err != nil {
			return nil, types.NewError(types.ErrInternalError, "decode session").WithCause(err).WithSession(row.ID)
		}
		active = append(active, &session)
	}
	return active, nil
}

// Delete removes the session row.
func (s *SQLStore) Delete(ctx context.Context, id string) error {
	err := s.db.WithContext(ctx).Delete(&sessionRow{}, "id = ?", id).Error
	if err != nil {
		return types.NewError(types.ErrStoreUnavailable, "database delete failed").
			WithCause(err).WithRetryable(true).WithSession(id)
	}
	return nil
}

// PruneExpired removes terminal sessions past the retention window.
func (s *SQLStore) PruneExpired(ctx context.Context, now time.Time) error {
	cutoff := now.Add(-s.retention)
	err := s.db.WithContext(ctx).
		Where("phase IN ? AND updated_at < ?",
			[]string{string(types.PhaseCompleted), string(types.PhaseCancelled)}, cutoff).
		Delete(&sessionRow{}).Error
	if err != nil {
		return types.NewError(types.ErrStoreUnavailable, "database prune failed").
			WithCause(err).WithRetryable(true)
	}
	return nil
}

// Ping verifies the database connection.
func (s *SQLStore) Ping(ctx context.Context) error {
	db, err := s.db.DB()
	if err != nil {
		return types.NewError(types.ErrStoreUnavailable, "database handle unavailable").WithCause(err)
	}
	if err := db.PingContext(ctx); err != nil {
		return types.NewError(types.ErrStoreUnavailable, "database ping failed").
			WithCause(err).WithRetryable(true)
	}
	return nil
}

// Close closes the underlying connection pool.
func (s *SQLStore) Close() error {
	db, err := s.db.DB()
	if err != nil {
		return err
	}
	return db.Close()
}
