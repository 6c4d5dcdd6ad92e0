// Package store is the relational data layer: users, threads, steps,
// elements and feedback, plus the single normalization point for the
// loosely-typed metadata column.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store wraps the gorm handle. All reads and writes go through short-lived
// operations; transactions are scoped to a single call.
type Store struct {
	db  *gorm.DB
	log *zap.Logger
}

// Open connects to the database named by databaseURL. Postgres URLs
// (postgres:// or postgresql://) go to the pgx-backed driver, everything
// else is treated as a SQLite path ("sqlite://" prefix optional).
func Open(databaseURL string, log *zap.Logger) (*Store, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is empty")
	}
	if log == nil {
		log = zap.NewNop()
	}

	dialector, err := dialectorFor(databaseURL)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db, log: log.Named("store")}

	// An in-memory SQLite database exists per connection; without a single
	// shared connection every pooled conn would see its own empty schema.
	if strings.Contains(databaseURL, ":memory:") {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to access connection pool: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	return s, nil
}

func dialectorFor(databaseURL string) (gorm.Dialector, error) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"),
		strings.HasPrefix(databaseURL, "postgresql://"):
		return postgres.Open(databaseURL), nil
	case strings.HasPrefix(databaseURL, "sqlite://"):
		return sqlite.Open(sqliteDSN(strings.TrimPrefix(databaseURL, "sqlite://"))), nil
	case strings.Contains(databaseURL, "://"):
		return nil, fmt.Errorf("unsupported database URL scheme: %s", databaseURL)
	default:
		// Bare path, e.g. data/runx.db or :memory:.
		return sqlite.Open(sqliteDSN(databaseURL)), nil
	}
}

// sqliteDSN turns on foreign-key enforcement through the DSN. SQLite applies
// the pragma per connection, so a one-off Exec would cover only whichever
// pooled connection happened to run it.
func sqliteDSN(path string) string {
	if strings.Contains(path, "?") {
		return path + "&_foreign_keys=on"
	}
	return path + "?_foreign_keys=on"
}

// AutoMigrate creates or upgrades the schema.
func (s *Store) AutoMigrate() error {
	if err := s.db.AutoMigrate(&User{}, &Thread{}, &Step{}, &Element{}, &Feedback{}); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// Ping runs a trivial connectivity probe (SELECT 1).
func (s *Store) Ping(ctx context.Context) error {
	var one int
	if err := s.db.WithContext(ctx).Raw("SELECT 1").Scan(&one).Error; err != nil {
		return fmt.Errorf("connectivity probe failed: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// GetThread loads a thread with its steps in creation order. A missing
// thread is (nil, nil): absence is an expected outcome, not an error.
func (s *Store) GetThread(ctx context.Context, threadID string) (*Thread, error) {
	if threadID == "" {
		return nil, nil
	}
	var thread Thread
	err := s.db.WithContext(ctx).
		Preload("Steps", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		First(&thread, "id = ?", threadID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load thread %s: %w", threadID, err)
	}
	return &thread, nil
}

// GetUserByIdentifier looks a user up by its stable external identifier.
// (nil, nil) when no row exists.
func (s *Store) GetUserByIdentifier(ctx context.Context, identifier string) (*User, error) {
	var user User
	err := s.db.WithContext(ctx).First(&user, "identifier = ?", identifier).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user %s: %w", identifier, err)
	}
	return &user, nil
}

// CreateUser inserts a new user row inside its own transaction. gorm rolls
// the transaction back when the callback errors.
func (s *Store) CreateUser(ctx context.Context, user *User) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(user).Error
	})
	if err != nil {
		return fmt.Errorf("failed to create user %s: %w", user.Identifier, err)
	}
	return nil
}

// DeleteUser removes a user row. Threads owned by the user go with it via
// the cascade constraint.
func (s *Store) DeleteUser(ctx context.Context, identifier string) error {
	err := s.db.WithContext(ctx).
		Where("identifier = ?", identifier).
		Delete(&User{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete user %s: %w", identifier, err)
	}
	return nil
}

// CreateThread inserts a thread and its steps, if any.
func (s *Store) CreateThread(ctx context.Context, thread *Thread) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(thread).Error
	})
	if err != nil {
		return fmt.Errorf("failed to create thread: %w", err)
	}
	return nil
}

// AppendStep records one step at the end of a thread.
func (s *Store) AppendStep(ctx context.Context, step *Step) error {
	if step.ThreadID == "" {
		return fmt.Errorf("step has no thread")
	}
	if err := s.db.WithContext(ctx).Create(step).Error; err != nil {
		return fmt.Errorf("failed to append step: %w", err)
	}
	return nil
}

// ListThreadsByUser returns the user's threads, newest first.
func (s *Store) ListThreadsByUser(ctx context.Context, identifier string) ([]Thread, error) {
	var threads []Thread
	err := s.db.WithContext(ctx).
		Where("user_identifier = ?", identifier).
		Order("created_at DESC").
		Find(&threads).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list threads for %s: %w", identifier, err)
	}
	return threads, nil
}
