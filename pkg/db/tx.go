package db

import (
	"database/sql"

	"gorm.io/gorm"
)

// SnapshotTxOptions asks for a repeatable-read transaction so every query in it
// observes one instant. SQLite transactions are already serializable.
func SnapshotTxOptions(tx *gorm.DB) []*sql.TxOptions {
	if tx == nil || tx.Dialector == nil {
		return nil
	}
	switch tx.Dialector.Name() {
	case "postgres", "mysql":
		return []*sql.TxOptions{{Isolation: sql.LevelRepeatableRead}}
	default:
		return nil
	}
}
