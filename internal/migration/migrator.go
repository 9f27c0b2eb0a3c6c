package migration

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"

	_ "github.com/glebarez/go-sqlite" // 注册纯 Go 的 "sqlite" 驱动
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

// =============================================================================
// 📦 内嵌迁移文件
// =============================================================================

//go:embed migrations
var migrationsFS embed.FS

// VersionTable 记录已应用版本的表名.
const VersionTable = "schema_migrations"

// Dialect 数据库方言, 取值与 database.Driver* 相同.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
)

// ParseDialect 解析驱动名, 大小写不敏感.
func ParseDialect(s string) (Dialect, error) {
	switch d := Dialect(strings.ToLower(strings.TrimSpace(s))); d {
	case DialectSQLite, DialectPostgres, DialectMySQL:
		return d, nil
	default:
		return "", fmt.Errorf("unsupported database dialect: %q", s)
	}
}

// sqlDriverName 迁移连接使用的 database/sql 驱动名.
// postgres 与 mysql 的驱动由 golang-migrate 对应子包注册.
func (d Dialect) sqlDriverName() string {
	if d == DialectPostgres {
		return "postgres"
	}
	return string(d)
}

// =============================================================================
// 🔧 Migrator
// =============================================================================

// Migrator 持有一个独立的数据库连接, 不与 gorm 连接池共享.
type Migrator struct {
	dialect Dialect
	m       *migrate.Migrate
	logger  *zap.Logger
}

// New 按驱动名与 DSN 打开迁移连接.
func New(driver, dsn string, logger *zap.Logger) (*Migrator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	dialect, err := ParseDialect(driver)
	if err != nil {
		return nil, err
	}
	if dsn == "" {
		return nil, errors.New("database dsn is required")
	}

	db, err := sql.Open(dialect.sqlDriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s for migration: %w", dialect, err)
	}
	dbDriver, err := withInstance(dialect, db)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create %s migration driver: %w", dialect, err)
	}
	src, err := iofs.New(migrationsFS, "migrations/"+string(dialect))
	if err != nil {
		_ = dbDriver.Close()
		return nil, fmt.Errorf("load %s migrations: %w", dialect, err)
	}
	m, err := migrate.NewWithInstance("iofs", src, string(dialect), dbDriver)
	if err != nil {
		_ = src.Close()
		_ = dbDriver.Close()
		return nil, fmt.Errorf("create migrate instance: %w", err)
	}

	l := logger.With(zap.String("component", "migration"), zap.String("dialect", string(dialect)))
	m.Log = migrateLogger{l.Sugar()}
	return &Migrator{dialect: dialect, m: m, logger: l}, nil
}

func withInstance(d Dialect, db *sql.DB) (database.Driver, error) {
	switch d {
	case DialectPostgres:
		return postgres.WithInstance(db, &postgres.Config{MigrationsTable: VersionTable})
	case DialectMySQL:
		return mysql.WithInstance(db, &mysql.Config{MigrationsTable: VersionTable})
	default:
		// sqlite3 驱动只执行 SQL, 连接来自上面打开的纯 Go 实现
		return sqlite3.WithInstance(db, &sqlite3.Config{MigrationsTable: VersionTable})
	}
}

// Up 应用全部待执行版本. ctx 取消时在当前版本完成后停止.
func (m *Migrator) Up(ctx context.Context) error {
	stop := m.watch(ctx)
	defer stop()
	if err := m.m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	v, _, _ := m.Version()
	m.logger.Info("schema up to date", zap.Uint("version", v))
	return nil
}

// Down 回滚最近一个版本.
func (m *Migrator) Down(ctx context.Context) error {
	stop := m.watch(ctx)
	defer stop()
	if err := m.m.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration down failed: %w", err)
	}
	return nil
}

// Version 返回当前版本; 从未迁移时为 0.
func (m *Migrator) Version() (uint, bool, error) {
	v, dirty, err := m.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read migration version: %w", err)
	}
	return v, dirty, nil
}

// Close 释放迁移源与数据库连接.
func (m *Migrator) Close() error {
	srcErr, dbErr := m.m.Close()
	return errors.Join(srcErr, dbErr)
}

func (m *Migrator) watch(ctx context.Context) func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			select {
			case m.m.GracefulStop <- true:
			default:
			}
		case <-done:
		}
	}()
	return func() { close(done) }
}

// Run 打开迁移器, 执行 Up 后关闭.
func Run(ctx context.Context, driver, dsn string, logger *zap.Logger) error {
	m, err := New(driver, dsn, logger)
	if err != nil {
		return err
	}
	upErr := m.Up(ctx)
	return errors.Join(upErr, m.Close())
}

// migrateLogger 把 golang-migrate 的日志转到 zap debug 级别.
type migrateLogger struct {
	s *zap.SugaredLogger
}

func (l migrateLogger) Printf(format string, v ...any) {
	l.s.Debugf(strings.TrimRight(format, "\n"), v...)
}

func (l migrateLogger) Verbose() bool { return false }
