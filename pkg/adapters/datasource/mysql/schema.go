package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/dbscope-io/dbscope-engine/pkg/models"
)

// ExtractMetadata lists the tables and views of the connected database and
// the columns of each. Row counts are best effort; a table that cannot be
// counted is reported without one.
func (e *Executor) ExtractMetadata(ctx context.Context) (*models.DatabaseMetadata, error) {
	db, err := e.getDB()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.commandTimeout())
	defer cancel()

	relations, err := e.listRelations(ctx, db)
	if err != nil {
		return nil, err
	}

	meta := &models.DatabaseMetadata{
		Tables: []models.TableMetadata{},
		Views:  []models.TableMetadata{},
	}
	for _, rel := range relations {
		columns, err := e.tableColumns(ctx, db, rel.name)
		if err != nil {
			return nil, fmt.Errorf("failed to read columns for %s: %w", rel.name, err)
		}

		table := models.TableMetadata{
			Name:    rel.name,
			Schema:  rel.schema,
			Kind:    rel.kind,
			Columns: columns,
		}
		if rel.kind == models.TableKindTable {
			if count, err := e.tableRowCount(ctx, db, rel.name); err != nil {
				e.logger.Warn("Failed to count rows",
					zap.String("table", rel.name),
					zap.Error(err))
			} else {
				table.RowCount = &count
			}
			meta.Tables = append(meta.Tables, table)
		} else {
			meta.Views = append(meta.Views, table)
		}
	}
	return meta, nil
}

type relation struct {
	name   string
	schema string
	kind   string
}

func (e *Executor) listRelations(ctx context.Context, db *sql.DB) ([]relation, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT table_name, table_schema, table_type
		FROM information_schema.tables
		WHERE table_schema = DATABASE()
		  AND table_type IN ('BASE TABLE', 'VIEW')
		ORDER BY table_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var relations []relation
	for rows.Next() {
		var rel relation
		var tableType string
		if err := rows.Scan(&rel.name, &rel.schema, &tableType); err != nil {
			return nil, fmt.Errorf("failed to scan table row: %w", err)
		}
		if tableType == "VIEW" {
			rel.kind = models.TableKindView
		} else {
			rel.kind = models.TableKindTable
		}
		relations = append(relations, rel)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	return relations, nil
}

func (e *Executor) tableColumns(ctx context.Context, db *sql.DB, table string) ([]models.ColumnMetadata, error) {
	// column_type carries the display width and enum values that data_type
	// drops, matching what DESCRIBE shows.
	rows, err := db.QueryContext(ctx, `
		SELECT column_name, column_type, is_nullable, column_key, column_default
		FROM information_schema.columns
		WHERE table_schema = DATABASE() AND table_name = ?
		ORDER BY ordinal_position`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns := []models.ColumnMetadata{}
	for rows.Next() {
		var col models.ColumnMetadata
		var nullable, key string
		var defaultValue sql.NullString
		if err := rows.Scan(&col.Name, &col.DataType, &nullable, &key, &defaultValue); err != nil {
			return nil, err
		}
		col.Nullable = nullable == "YES"
		col.PrimaryKey = key == "PRI"
		col.Unique = key == "UNI"
		if defaultValue.Valid {
			col.DefaultValue = &defaultValue.String
		}
		columns = append(columns, col)
	}
	return columns, rows.Err()
}

func (e *Executor) tableRowCount(ctx context.Context, db *sql.DB, table string) (int64, error) {
	quoted := "`" + strings.ReplaceAll(table, "`", "``") + "`"
	var count int64
	err := db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", quoted)).Scan(&count)
	return count, err
}
