package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jiyuchen1/AiHistory/pkg/log"
	_ "modernc.org/sqlite"
)

// OpenSQLite 打开（必要时创建）本地 SQLite 数据库文件，并启用 WAL。
func OpenSQLite(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	// SQLite 只允许一个写者
	db.SetMaxOpenConns(1)

	log.Infof("SQLite database opened at %s", path)
	return db, nil
}
