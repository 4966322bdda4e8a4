package database

import (
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MigrationState はセッションテーブルのスキーマ状態。
type MigrationState struct {
	Version uint
	Dirty   bool
}

// migrateLogger はgolang-migrateのログをslogへ流す。
type migrateLogger struct {
	logger *slog.Logger
}

func (l migrateLogger) Printf(format string, v ...any) {
	l.logger.Debug(fmt.Sprintf(format, v...), slog.String("component", "migrate"))
}

func (l migrateLogger) Verbose() bool { return false }

// NewMigrator はセッションスキーマ用のmigrateインスタンスを生成する。
func NewMigrator(databaseURL string) (*migrate.Migrate, error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}
	m.Log = migrateLogger{logger: slog.Default()}
	return m, nil
}

// currentState は適用済みバージョンを返す。未適用の場合はバージョン0。
func currentState(m *migrate.Migrate) (MigrationState, error) {
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return MigrationState{}, nil
	}
	if err != nil {
		return MigrationState{}, fmt.Errorf("failed to read migration version: %w", err)
	}
	return MigrationState{Version: v, Dirty: dirty}, nil
}

// MigrateUp は未適用のマイグレーションをすべて適用し、適用後の状態を返す。
// 途中で失敗したまま残ったdirty状態の場合は適用せずにエラーを返す。
func MigrateUp(databaseURL string) (MigrationState, error) {
	m, err := NewMigrator(databaseURL)
	if err != nil {
		return MigrationState{}, err
	}
	defer m.Close()

	before, err := currentState(m)
	if err != nil {
		return MigrationState{}, err
	}
	if before.Dirty {
		return before, fmt.Errorf("session schema is dirty at version %d", before.Version)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return before, fmt.Errorf("failed to run migrations: %w", err)
	}
	return currentState(m)
}

// RunMigrations はMigrateUpのうち状態を必要としない呼び出し元向け。
func RunMigrations(databaseURL string) error {
	_, err := MigrateUp(databaseURL)
	return err
}
