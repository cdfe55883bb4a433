package sqlcheck

import (
	"fmt"

	"github.com/auxten/postgresql-parser/pkg/sql/parser"
	"github.com/auxten/postgresql-parser/pkg/sql/sem/tree"
)

func parsePostgresSelect(sql string) (*tree.Select, error) {
	stmts, err := parser.Parse(sql)
	if err != nil {
		return nil, &ValidationError{Detail: fmt.Sprintf("SQL parse error: %v", err)}
	}
	if len(stmts) == 0 {
		return nil, &ValidationError{Detail: "empty statement"}
	}
	if len(stmts) > 1 {
		return nil, &ValidationError{Detail: "Only SELECT statements are allowed"}
	}
	sel, ok := stmts[0].AST.(*tree.Select)
	if !ok {
		return nil, &ValidationError{Detail: "Only SELECT statements are allowed"}
	}
	// A tree.Select root also covers UNION and VALUES; only a plain select
	// clause passes.
	if _, ok := sel.Select.(*tree.SelectClause); !ok {
		return nil, &ValidationError{Detail: "Only SELECT statements are allowed"}
	}
	return sel, nil
}

func ensureBoundedPostgres(sql string, limit int) string {
	sel, err := parsePostgresSelect(sql)
	if err != nil {
		return sql
	}
	// An OFFSET clause without LIMIT still populates sel.Limit, so the count
	// has to be checked rather than the node. LIMIT ALL counts as an explicit
	// choice and is left alone.
	if sel.Limit == nil {
		sel.Limit = &tree.Limit{Count: tree.NewDInt(tree.DInt(limit))}
	} else if sel.Limit.Count == nil && !sel.Limit.LimitAll {
		sel.Limit.Count = tree.NewDInt(tree.DInt(limit))
	} else {
		return sql
	}
	return tree.AsString(sel)
}
