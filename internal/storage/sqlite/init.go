package sqlite

import (
	"database/sql"

	// Import the SQLite driver.
	_ "github.com/mattn/go-sqlite3"
)

// InitDB opens the SQLite database at dbPath and creates the offline_files
// table if it doesn't exist. Each row is one key-value pair: the record key
// plus the JSON-serialized record payload. class_id and saved_at are
// duplicated outside the payload so listings can filter and order in SQL.
func InitDB(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS offline_files (
		record_key TEXT PRIMARY KEY,
		class_id TEXT NOT NULL,
		saved_at DATETIME NOT NULL,
		payload TEXT NOT NULL
	)`)

	if err != nil {
		return nil, err
	}

	return db, nil
}
