package pipeline

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	_ "modernc.org/sqlite"

	"landscapesim/pkg/batch/util/exception"
	"landscapesim/pkg/batch/util/logger"
)

// Cleaner empties a scenario's rows of one sheet directly in the library,
// for sheets the engine cannot be told to empty through an import.
type Cleaner interface {
	ClearSheet(ctx context.Context, library, sheet string, sid int) error
}

// SQLiteCleaner opens the library file, which is an SQLite database, and
// deletes the rows. A sheet without a backing table is left alone.
type SQLiteCleaner struct{}

// ClearSheet implements Cleaner.
func (SQLiteCleaner) ClearSheet(ctx context.Context, library, sheet string, sid int) error {
	db, err := sql.Open("sqlite", library)
	if err != nil {
		return exception.New(exception.KindProtocol, module, "open library "+library, err)
	}
	defer db.Close()

	var n int
	err = db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, sheet).Scan(&n)
	if err != nil {
		return exception.New(exception.KindProtocol, module, "inspect library "+library, err)
	}
	if n == 0 {
		logger.Debugf("library %s has no table %s; nothing to clear", library, sheet)
		return nil
	}
	res, err := db.ExecContext(ctx, `DELETE FROM `+quoteIdent(sheet)+` WHERE ScenarioID = ?`, sid)
	if err != nil {
		return exception.New(exception.KindProtocol, module, "clear "+sheet+" of sid "+strconv.Itoa(sid), err)
	}
	if rows, err := res.RowsAffected(); err == nil {
		logger.Debugf("cleared %d rows of %s for sid %d", rows, sheet, sid)
	}
	return nil
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
