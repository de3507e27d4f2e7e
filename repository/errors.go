package repository

import (
	"errors"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// ErrDuplicateOrder is returned by DeliveryRepository.Create when the
// order_id is already tracked. It comes from the unique index, so it also
// catches creates that race past a prior existence check.
var ErrDuplicateOrder = errors.New("order already tracked")

// IsLockContention reports whether err is sqlite's transient SQLITE_BUSY or
// SQLITE_LOCKED, raised when a concurrent writer holds the database or table
// lock. Callers treat it like a lost write race and retry.
func IsLockContention(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
}
