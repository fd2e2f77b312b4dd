// Package repository implements the MySQL side of the reservation core:
// the show catalog reader, the seat lock store and the booking store.
// Driver errors are translated into the model sentinels here so that the
// service layer never inspects MySQL error numbers.
package repository

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/cinema-seat-locking/internal/model"
)

// MySQL server error numbers the repositories react to.
const (
	errDupEntry        = 1062
	errLockWaitTimeout = 1205
	errDeadlock        = 1213
)

func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == errDupEntry
}

// classify wraps errors that may succeed on retry with model.ErrTransient
// and returns everything else unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) && (me.Number == errLockWaitTimeout || me.Number == errDeadlock) {
		return fmt.Errorf("%w: %v", model.ErrTransient, err)
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", model.ErrTransient, err)
	}
	return err
}
