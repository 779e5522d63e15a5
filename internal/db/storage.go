package db

import (
	"database/sql"
	"errors"
	"log"
)

// ErrNotFound is returned when a key has no stored value
var ErrNotFound = errors.New("key not found")

// GetItem returns the value stored under key
func (d *DB) GetItem(key string) (string, error) {
	return WithLockResult(d, func() (string, error) {
		var value string
		err := d.db.QueryRow(`SELECT value FROM local_storage WHERE key = ?`, key).Scan(&value)
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		if err != nil {
			log.Printf("[DB] GetItem failed key=%s err=%v", key, err)
			return "", err
		}
		return value, nil
	})
}

// SetItem stores value under key, replacing any previous value
func (d *DB) SetItem(key, value string) error {
	return d.WithLock(func() error {
		_, err := d.db.Exec(`
			INSERT INTO local_storage (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
		`, key, value)
		if err != nil {
			log.Printf("[DB] SetItem failed key=%s size=%d err=%v", key, len(value), err)
		}
		return err
	})
}

// RemoveItem deletes key; removing a missing key is not an error
func (d *DB) RemoveItem(key string) error {
	return d.WithLock(func() error {
		_, err := d.db.Exec(`DELETE FROM local_storage WHERE key = ?`, key)
		if err != nil {
			log.Printf("[DB] RemoveItem failed key=%s err=%v", key, err)
		}
		return err
	})
}

// Keys lists every stored key in lexical order
func (d *DB) Keys() ([]string, error) {
	return WithLockResult(d, func() ([]string, error) {
		rows, err := d.db.Query(`SELECT key FROM local_storage ORDER BY key`)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var keys []string
		for rows.Next() {
			var k string
			if err := rows.Scan(&k); err != nil {
				return nil, err
			}
			keys = append(keys, k)
		}
		return keys, rows.Err()
	})
}
