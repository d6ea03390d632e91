package sqlite

import (
	"database/sql/driver"

	sqlitedriver "modernc.org/sqlite"

	"github.com/prn-tf/cinelog/internal/pkg/fold"
)

// SQLite's LOWER only maps ASCII. fold(x) is registered on every connection
// and applies the full Unicode case fold, so unique indexes, lookups and
// searches ignore case for any script.
func init() {
	if err := sqlitedriver.RegisterDeterministicScalarFunction("fold", 1, foldFunc); err != nil {
		panic(err)
	}
}

func foldFunc(_ *sqlitedriver.FunctionContext, args []driver.Value) (driver.Value, error) {
	switch v := args[0].(type) {
	case string:
		return fold.String(v), nil
	case []byte:
		return fold.String(string(v)), nil
	}
	return args[0], nil
}
