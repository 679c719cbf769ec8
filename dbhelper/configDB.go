package dbhelper

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/Setouprincely/automated-results-system-sub005/models"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// slogWriter routes gorm's logger through the process slog handler.
type slogWriter struct{}

func (slogWriter) Printf(format string, args ...interface{}) {
	slog.Warn("gorm", "detail", fmt.Sprintf(format, args...))
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		SkipDefaultTransaction: true,
		Logger: logger.New(slogWriter{}, logger.Config{
			SlowThreshold:             500 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	}
}

// OpenDB connects to MySQL. dsn is a go-sql-driver DSN such as
// user:pass@tcp(127.0.0.1:3306)/exams?charset=utf8mb4&parseTime=True&loc=Local
func OpenDB(dsn string) (*gorm.DB, error) {
	return OpenWithDialector(mysql.Open(dsn))
}

// OpenWithDialector lets tests hand gorm an already-open connection.
func OpenWithDialector(d gorm.Dialector) (*gorm.DB, error) {
	db, err := gorm.Open(d, gormConfig())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return db, nil
}

func InitDB(db *gorm.DB) error {
	return db.AutoMigrate(&models.User{})
}

// CloseDB releases the pool behind db.
func CloseDB(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
