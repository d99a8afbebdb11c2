package repository

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"kawah-task/internal/model"
)

// sqlitePragmas are appended to file DSNs that do not set them already.
var sqlitePragmas = map[string]string{
	"_busy_timeout": "5000",
	"_journal_mode": "WAL",
}

// NewDB opens the SQLite database shared by the chat registry and the
// credential store, and migrates both tables.
func NewDB(dsn string, log logrus.FieldLogger) (*gorm.DB, error) {
	if dsn == "" {
		dsn = "kawah_task.db"
	}
	memory := isMemoryDSN(dsn)
	if !memory {
		if err := ensureDirForSQLite(dsn); err != nil {
			return nil, err
		}
		dsn = withPragmas(dsn)
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.New(log.WithField("component", "gorm"), logger.Config{
			SlowThreshold:             500 * time.Millisecond,
			LogLevel:                  gormLevel(log),
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("open db %q: %w", dsn, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("db handle: %w", err)
	}
	// Every chat session writes credentials; SQLite takes one writer.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&model.Chat{}, &model.Credential{}); err != nil {
		return nil, fmt.Errorf("migrate db: %w", err)
	}
	return db, nil
}

func isMemoryDSN(dsn string) bool {
	return strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}

func withPragmas(dsn string) string {
	for key, value := range sqlitePragmas {
		if strings.Contains(dsn, key+"=") {
			continue
		}
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + key + "=" + value
	}
	return dsn
}

// gormLevel maps the process log level onto gorm's; SQL is traced only at
// trace level.
func gormLevel(log logrus.FieldLogger) logger.LogLevel {
	var level logrus.Level
	switch l := log.(type) {
	case *logrus.Logger:
		level = l.GetLevel()
	case *logrus.Entry:
		level = l.Logger.GetLevel()
	default:
		return logger.Warn
	}
	switch {
	case level >= logrus.TraceLevel:
		return logger.Info
	case level >= logrus.WarnLevel:
		return logger.Warn
	default:
		return logger.Error
	}
}

// ensureDirForSQLite creates the parent directory of a SQLite file.
func ensureDirForSQLite(dsn string) error {
	path := strings.SplitN(strings.TrimPrefix(dsn, "file:"), "?", 2)[0]
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create db dir %q: %w", dir, err)
	}
	return nil
}
