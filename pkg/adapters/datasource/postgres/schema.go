package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/dbscope-io/dbscope-engine/pkg/models"
)

// ExtractMetadata lists tables and views outside the system schemas with
// their columns, constraint flags, and (for tables) row counts. A failed
// count is logged and the table kept without one.
func (e *Executor) ExtractMetadata(ctx context.Context) (*models.DatabaseMetadata, error) {
	pool, err := e.getPool(ctx)
	if err != nil {
		return nil, err
	}

	refs, err := listTables(ctx, pool)
	if err != nil {
		return nil, err
	}

	meta := &models.DatabaseMetadata{
		Tables: []models.TableMetadata{},
		Views:  []models.TableMetadata{},
	}
	for _, ref := range refs {
		columns, err := e.tableColumns(ctx, pool, ref.schema, ref.name)
		if err != nil {
			return nil, fmt.Errorf("failed to read columns for %s.%s: %w", ref.schema, ref.name, err)
		}

		table := models.TableMetadata{
			Name:    ref.name,
			Schema:  ref.schema,
			Kind:    ref.kind,
			Columns: columns,
		}

		if ref.kind == models.TableKindTable {
			if count, err := e.tableRowCount(ctx, pool, ref.schema, ref.name); err != nil {
				e.logger.Warn("Failed to count rows",
					zap.String("table", ref.schema+"."+ref.name),
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

type tableRef struct {
	schema string
	name   string
	kind   string
}

func listTables(ctx context.Context, pool *pgxpool.Pool) ([]tableRef, error) {
	query := `
		SELECT table_schema, table_name, table_type
		FROM information_schema.tables
		WHERE table_schema NOT IN ('pg_catalog', 'information_schema')
		  AND table_type IN ('BASE TABLE', 'VIEW')
		ORDER BY table_schema, table_name`

	rows, err := pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var refs []tableRef
	for rows.Next() {
		var ref tableRef
		var tableType string
		if err := rows.Scan(&ref.schema, &ref.name, &tableType); err != nil {
			return nil, fmt.Errorf("failed to scan table row: %w", err)
		}
		if tableType == "VIEW" {
			ref.kind = models.TableKindView
		} else {
			ref.kind = models.TableKindTable
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tables: %w", err)
	}
	return refs, nil
}

// tableColumns reads column definitions joined with primary-key and unique
// index membership from the catalogs.
func (e *Executor) tableColumns(ctx context.Context, pool *pgxpool.Pool, schema, name string) ([]models.ColumnMetadata, error) {
	query := `
		SELECT
			c.column_name,
			c.data_type,
			c.character_maximum_length,
			c.is_nullable,
			c.column_default,
			COALESCE(pk.is_primary, false) AS is_primary,
			COALESCE(uq.is_unique, false) AS is_unique
		FROM information_schema.columns c
		LEFT JOIN (
			SELECT a.attname AS column_name, true AS is_primary
			FROM pg_index i
			JOIN pg_attribute a ON a.attrelid = i.indrelid AND a.attnum = ANY(i.indkey)
			WHERE i.indrelid = $1::regclass AND i.indisprimary
		) pk ON pk.column_name = c.column_name
		LEFT JOIN (
			SELECT a.attname AS column_name, true AS is_unique
			FROM pg_index i
			JOIN pg_attribute a ON a.attrelid = i.indrelid AND a.attnum = ANY(i.indkey)
			WHERE i.indrelid = $1::regclass AND i.indisunique AND NOT i.indisprimary
		) uq ON uq.column_name = c.column_name
		WHERE c.table_schema = $2 AND c.table_name = $3
		ORDER BY c.ordinal_position`

	qualified := pgx.Identifier{schema, name}.Sanitize()
	rows, err := pool.Query(ctx, query, qualified, schema, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []models.ColumnMetadata
	for rows.Next() {
		var (
			col        models.ColumnMetadata
			maxLength  *int64
			isNullable string
		)
		err := rows.Scan(&col.Name, &col.DataType, &maxLength, &isNullable,
			&col.DefaultValue, &col.PrimaryKey, &col.Unique)
		if err != nil {
			return nil, err
		}
		if maxLength != nil {
			col.DataType = fmt.Sprintf("%s(%d)", col.DataType, *maxLength)
		}
		col.Nullable = isNullable == "YES"
		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return columns, nil
}

func (e *Executor) tableRowCount(ctx context.Context, pool *pgxpool.Pool, schema, name string) (int64, error) {
	qualified := pgx.Identifier{schema, name}.Sanitize()
	var count int64
	err := pool.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", qualified)).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}
