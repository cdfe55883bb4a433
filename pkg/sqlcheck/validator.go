// Package sqlcheck enforces the read-only query policy: every ad-hoc
// statement must parse as a single SELECT in the target dialect, and
// statements without a LIMIT clause get one injected before execution.
package sqlcheck

import (
	"fmt"

	"github.com/dbscope-io/dbscope-engine/pkg/adapters/datasource"
)

// ValidationError reports a statement rejected by the allow-list policy.
// Handlers map it to a client error instead of a server error.
type ValidationError struct {
	Detail string
}

func (e *ValidationError) Error() string { return e.Detail }

// Validate parses the statement with the dialect's grammar and rejects
// anything whose root is not a single plain SELECT. UNION, VALUES and
// parenthesized selects are rejected along with writes and DDL.
func Validate(sql, dialect string) error {
	switch dialect {
	case datasource.DialectPostgres:
		_, err := parsePostgresSelect(sql)
		return err
	case datasource.DialectMySQL:
		_, err := parseMySQLSelect(sql)
		return err
	default:
		return fmt.Errorf("unsupported dialect %q", dialect)
	}
}

// EnsureBounded injects LIMIT <limit> when the statement's own SELECT has no
// LIMIT clause, re-serializing in the dialect's surface syntax. A statement
// that already carries a LIMIT is returned unchanged, even when its bound
// exceeds limit. Anything that fails to parse is returned unchanged; Validate
// is the gate, this is only the rewrite.
func EnsureBounded(sql string, limit int, dialect string) string {
	switch dialect {
	case datasource.DialectPostgres:
		return ensureBoundedPostgres(sql, limit)
	case datasource.DialectMySQL:
		return ensureBoundedMySQL(sql, limit)
	default:
		return sql
	}
}

// ValidateAndTransform is the composition callers use: reject non-SELECT
// statements, then bound the survivors.
func ValidateAndTransform(sql string, limit int, dialect string) (string, error) {
	if err := Validate(sql, dialect); err != nil {
		return "", err
	}
	return EnsureBounded(sql, limit, dialect), nil
}
