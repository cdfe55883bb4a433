package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/dbscope-io/dbscope-engine/pkg/adapters/datasource"
	"github.com/dbscope-io/dbscope-engine/pkg/apperrors"
	"github.com/dbscope-io/dbscope-engine/pkg/llm"
	"github.com/dbscope-io/dbscope-engine/pkg/models"
	"github.com/dbscope-io/dbscope-engine/pkg/repositories"
	"github.com/dbscope-io/dbscope-engine/pkg/sqlcheck"
)

// GeneratedSQL is the outcome of one natural-language generation. The SQL is
// returned as the model produced it; validation happens when it is run.
type GeneratedSQL struct {
	SQL         string
	Explanation string
	Model       string
}

// NL2SQLService turns natural-language prompts into SQL using the schema
// snapshot as model context. Generation requires a cached snapshot; a stale
// one still serves, but a connection that was never refreshed cannot.
type NL2SQLService interface {
	Generate(ctx context.Context, name, prompt string) (*GeneratedSQL, error)
}

type nl2sqlService struct {
	connections ConnectionService
	metadata    repositories.MetadataRepository
	client      llm.Client
	rowLimit    int
	logger      *zap.Logger
}

var _ NL2SQLService = (*nl2sqlService)(nil)

// NewNL2SQLService creates a new natural-language SQL service with
// dependencies. rowLimit is quoted in the prompt so the model targets the
// same bound the validator enforces.
func NewNL2SQLService(
	connections ConnectionService,
	metadata repositories.MetadataRepository,
	client llm.Client,
	rowLimit int,
	logger *zap.Logger,
) NL2SQLService {
	return &nl2sqlService{
		connections: connections,
		metadata:    metadata,
		client:      client,
		rowLimit:    rowLimit,
		logger:      logger,
	}
}

func (s *nl2sqlService) Generate(ctx context.Context, name, prompt string) (*GeneratedSQL, error) {
	conn, err := s.connections.Get(ctx, name)
	if err != nil {
		return nil, err
	}

	snap, err := s.metadata.Get(ctx, name)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.ErrMetadataNotCached
		}
		return nil, err
	}

	if f := sqlcheck.ScreenInput(prompt); f != nil {
		s.logger.Warn("Prompt matches an injection signature",
			zap.String("connection", name),
			zap.String("fingerprint", f.Fingerprint))
	}

	system := buildSystemPrompt(conn.Type, snap.Payload, s.rowLimit)

	raw, err := s.client.Complete(ctx, system, prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to generate SQL: %w", err)
	}
	sql := stripFences(raw)

	s.logger.Info("Generated SQL",
		zap.String("connection", name),
		zap.String("model", s.client.Model()),
		zap.Int("prompt_len", len(prompt)))

	return &GeneratedSQL{
		SQL:         sql,
		Explanation: fmt.Sprintf("Generated SQL from: %s", prompt),
		Model:       s.client.Model(),
	}, nil
}

func buildSystemPrompt(dialect string, meta *models.DatabaseMetadata, rowLimit int) string {
	dbName := "PostgreSQL"
	rules := []string{
		"3. Use proper schema qualification (schema.table)",
		"4. Return valid PostgreSQL syntax",
		"5. Use double quotes for identifiers if needed",
		"6. Be concise - return just the SQL query",
	}
	if dialect == datasource.DialectMySQL {
		dbName = "MySQL"
		rules = []string{
			"3. Use backticks for identifiers (e.g., `table_name`, `column_name`)",
			"4. Return valid MySQL syntax",
			"5. Use MySQL LIMIT syntax (LIMIT n)",
			"6. Be concise - return just the SQL query",
		}
	}

	return fmt.Sprintf(`You are an expert SQL query generator for %s databases.

Database Schema:
%s

Rules:
1. Generate ONLY SELECT queries (no INSERT/UPDATE/DELETE/DROP)
2. Always include LIMIT clause (max %d rows)
%s

Output format:
Return ONLY the SQL query, nothing else. No explanations, no markdown, just the SQL.`,
		dbName, buildSchemaText(meta), rowLimit, strings.Join(rules, "\n"))
}

// buildSchemaText serializes the snapshot for the prompt, one block per
// relation. Tables carry row counts and constraint markers; views list bare
// columns.
func buildSchemaText(meta *models.DatabaseMetadata) string {
	blocks := make([]string, 0, len(meta.Tables)+len(meta.Views))

	for _, t := range meta.Tables {
		rows := "unknown"
		if t.RowCount != nil {
			rows = strconv.FormatInt(*t.RowCount, 10)
		}
		lines := []string{fmt.Sprintf("Table: %s (%s rows)", qualifiedName(t), rows)}
		for _, col := range t.Columns {
			line := fmt.Sprintf("  - %s (%s)", col.Name, col.DataType)
			if col.PrimaryKey {
				line += " PRIMARY KEY"
			}
			if !col.Nullable {
				line += " NOT NULL"
			}
			if col.Unique {
				line += " UNIQUE"
			}
			lines = append(lines, line)
		}
		blocks = append(blocks, strings.Join(lines, "\n"))
	}

	for _, v := range meta.Views {
		lines := []string{fmt.Sprintf("View: %s", qualifiedName(v))}
		for _, col := range v.Columns {
			lines = append(lines, fmt.Sprintf("  - %s (%s)", col.Name, col.DataType))
		}
		blocks = append(blocks, strings.Join(lines, "\n"))
	}

	return strings.Join(blocks, "\n\n")
}

func qualifiedName(t models.TableMetadata) string {
	if t.Schema != "" {
		return t.Schema + "." + t.Name
	}
	return t.Name
}

// stripFences removes a markdown code fence the model wrapped the SQL in
// despite the output-format instruction.
func stripFences(raw string) string {
	out := strings.TrimSpace(raw)
	if !strings.HasPrefix(out, "```") {
		return out
	}
	out = strings.TrimPrefix(out, "```sql")
	out = strings.TrimPrefix(out, "```")
	out = strings.ReplaceAll(out, "```", "")
	return strings.TrimSpace(out)
}
