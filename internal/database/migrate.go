// Package database はデータベース接続とマイグレーション管理を提供する。
package database

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrDirty は前回のマイグレーションが途中で失敗し、スキーマが中途半端な状態にあることを示す。
// 該当バージョンのSQLを確認して手動で修復し、migrate force で状態を戻す必要がある。
var ErrDirty = errors.New("database schema is dirty")

// SchemaStatus はマイグレーション適用後のスキーマ状態。
type SchemaStatus struct {
	// Previous は適用前のバージョン。未適用の場合は0。
	Previous uint
	// Version は適用後のバージョン。
	Version uint
}

// Changed は今回の実行で新たにマイグレーションが適用されたかを返す。
func (s SchemaStatus) Changed() bool {
	return s.Previous != s.Version
}

// migrator はマイグレーション実行に必要な操作。*migrate.Migrate が実装する。
type migrator interface {
	Version() (version uint, dirty bool, err error)
	Up() error
}

var _ migrator = (*migrate.Migrate)(nil)

// NewMigrator はマイグレーション実行用のmigrateインスタンスを生成する。
// databaseURLはPostgreSQLの接続URLを指定する。
func NewMigrator(databaseURL string) (*migrate.Migrate, error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}

	return m, nil
}

// RunMigrations は未適用のマイグレーションをすべて適用し、適用前後のバージョンを返す。
// すでに最新の場合はエラーなしで返る。スキーマがdirtyな場合は何も適用せずに ErrDirty を返す。
func RunMigrations(databaseURL string) (SchemaStatus, error) {
	m, err := NewMigrator(databaseURL)
	if err != nil {
		return SchemaStatus{}, err
	}
	defer m.Close()

	return migrateUp(m)
}

func migrateUp(m migrator) (SchemaStatus, error) {
	previous, err := currentVersion(m)
	if err != nil {
		return SchemaStatus{}, err
	}

	status := SchemaStatus{Previous: previous, Version: previous}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		// 途中のファイルで失敗した場合はdirtyとして記録されている
		if v, dirtyErr := currentVersion(m); errors.Is(dirtyErr, ErrDirty) {
			status.Version = v
			return status, fmt.Errorf("failed to run migrations: %w: %w", dirtyErr, err)
		}
		return status, fmt.Errorf("failed to run migrations: %w", err)
	}

	if status.Version, err = currentVersion(m); err != nil {
		return status, err
	}
	return status, nil
}

// currentVersion は適用済みバージョンを返す。未適用なら0を返す。
func currentVersion(m migrator) (uint, error) {
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	if dirty {
		return version, fmt.Errorf("version %d: %w", version, ErrDirty)
	}
	return version, nil
}
