package sqlcheck

import (
	"fmt"
	"strconv"

	"github.com/xwb1989/sqlparser"
)

func parseMySQLSelect(sql string) (*sqlparser.Select, error) {
	stmt, err := sqlparser.Parse(sql)
	if err != nil {
		return nil, &ValidationError{Detail: fmt.Sprintf("SQL parse error: %v", err)}
	}
	sel, ok := stmt.(*sqlparser.Select)
	if !ok {
		return nil, &ValidationError{Detail: "Only SELECT statements are allowed"}
	}
	return sel, nil
}

func ensureBoundedMySQL(sql string, limit int) string {
	sel, err := parseMySQLSelect(sql)
	if err != nil {
		return sql
	}
	if sel.Limit != nil {
		return sql
	}
	sel.Limit = &sqlparser.Limit{
		Rowcount: sqlparser.NewIntVal([]byte(strconv.Itoa(limit))),
	}
	return sqlparser.String(sel)
}
