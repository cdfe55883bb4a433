package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/dbscope-io/dbscope-engine/pkg/adapters/datasource"
	"github.com/dbscope-io/dbscope-engine/pkg/apperrors"
	"github.com/dbscope-io/dbscope-engine/pkg/models"
)

// Export formats accepted in tokens and the format query parameter.
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
)

// ExportLinks carries the signed download URLs minted alongside a query
// result. Both links expire together.
type ExportLinks struct {
	CSVURL    string
	JSONURL   string
	ExpiresAt time.Time
}

// ExportFile is a rendered download ready to be written to a response.
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ExportService mints signed export links and serves them. A link embeds the
// statement it was created for; downloading re-runs that statement, so the
// exported rows reflect the database at download time.
type ExportService interface {
	// BuildLinks signs CSV and JSON download URLs for the statement.
	BuildLinks(name, sql string) (*ExportLinks, error)

	// Export validates the token and streams the re-executed result in the
	// requested format.
	Export(ctx context.Context, name, token, format string) (*ExportFile, error)
}

// exportClaims binds a token to one connection, statement, and format. The
// hash guards against a tampered sql claim under a replayed signature.
type exportClaims struct {
	Database string `json:"database"`
	SQL      string `json:"sql"`
	SQLHash  string `json:"sql_hash"`
	Format   string `json:"format"`
	jwt.RegisteredClaims
}

type exportService struct {
	queries  QueryService
	secret   []byte
	tokenTTL time.Duration
	baseURL  string
	logger   *zap.Logger
}

var _ ExportService = (*exportService)(nil)

// NewExportService creates a new export service with dependencies.
func NewExportService(
	queries QueryService,
	secret string,
	tokenTTL time.Duration,
	baseURL string,
	logger *zap.Logger,
) ExportService {
	return &exportService{
		queries:  queries,
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		baseURL:  strings.TrimRight(baseURL, "/"),
		logger:   logger,
	}
}

func (s *exportService) BuildLinks(name, sql string) (*ExportLinks, error) {
	now := time.Now().UTC()

	csvToken, err := s.signToken(name, sql, FormatCSV, now)
	if err != nil {
		return nil, err
	}
	jsonToken, err := s.signToken(name, sql, FormatJSON, now)
	if err != nil {
		return nil, err
	}

	return &ExportLinks{
		CSVURL:    s.exportURL(name, csvToken, FormatCSV),
		JSONURL:   s.exportURL(name, jsonToken, FormatJSON),
		ExpiresAt: now.Add(s.tokenTTL),
	}, nil
}

func (s *exportService) Export(ctx context.Context, name, token, format string) (*ExportFile, error) {
	sql, err := s.validateToken(token, name, format)
	if err != nil {
		return nil, err
	}

	result, _, _, err := s.queries.Run(ctx, name, sql, models.QuerySourceManual)
	if err != nil {
		return nil, err
	}

	var (
		data        []byte
		contentType string
	)
	switch format {
	case FormatCSV:
		data, err = renderCSV(result)
		contentType = "text/csv"
	case FormatJSON:
		data, err = renderJSON(result)
		contentType = "application/json"
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("Exported query result",
		zap.String("connection", name),
		zap.String("format", format),
		zap.Int("rows", result.RowCount))

	return &ExportFile{
		Filename:    exportFilename(name, sql, format, time.Now().UTC()),
		ContentType: contentType,
		Data:        data,
	}, nil
}

func (s *exportService) signToken(name, sql, format string, now time.Time) (string, error) {
	sum := sha256.Sum256([]byte(sql))
	claims := exportClaims{
		Database: name,
		SQL:      sql,
		SQLHash:  hex.EncodeToString(sum[:]),
		Format:   format,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign export token: %w", err)
	}
	return token, nil
}

// validateToken returns the embedded statement when the token is genuine,
// unexpired, and was minted for this connection and format.
func (s *exportService) validateToken(token, name, format string) (string, error) {
	parsed, err := jwt.ParseWithClaims(token, &exportClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return "", apperrors.ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*exportClaims)
	if !ok {
		return "", apperrors.ErrInvalidToken
	}

	sum := sha256.Sum256([]byte(claims.SQL))
	if claims.Database != name || claims.Format != format || hex.EncodeToString(sum[:]) != claims.SQLHash {
		return "", apperrors.ErrInvalidToken
	}
	return claims.SQL, nil
}

func (s *exportService) exportURL(name, token, format string) string {
	return fmt.Sprintf("%s/api/v1/dbs/%s/export/query?token=%s&format=%s", s.baseURL, name, token, format)
}

func renderCSV(result *datasource.QueryResult) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := make([]string, len(result.Columns))
	for i, col := range result.Columns {
		header[i] = col.Name
	}
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("failed to render CSV: %w", err)
	}

	record := make([]string, len(result.Columns))
	for _, row := range result.Rows {
		for i, col := range result.Columns {
			record[i] = csvCell(row[col.Name])
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("failed to render CSV: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to render CSV: %w", err)
	}
	return buf.Bytes(), nil
}

// csvCell renders one value; NULL becomes the empty cell.
func csvCell(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

func renderJSON(result *datasource.QueryResult) ([]byte, error) {
	rows := result.Rows
	if rows == nil {
		rows = []map[string]any{}
	}
	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to render JSON: %w", err)
	}
	return data, nil
}

var (
	filenameUnsafePattern = regexp.MustCompile(`[<>:"/\\|?*]`)
	fromTablePattern      = regexp.MustCompile("(?i)\\bfrom\\s+[\"`]?([A-Za-z0-9_.]+)")
)

// exportFilename builds {database}_{table}_{YYYYMMDD_HHMMSS}.{format}, with
// "query" standing in when no table name can be read off the statement.
func exportFilename(database, sql, format string, now time.Time) string {
	table := "query"
	if m := fromTablePattern.FindStringSubmatch(sql); m != nil {
		name := m[1]
		if i := strings.LastIndex(name, "."); i >= 0 {
			name = name[i+1:]
		}
		if name != "" {
			table = name
		}
	}

	ts := now.Format("20060102_150405")
	return fmt.Sprintf("%s_%s_%s.%s", sanitizeFilename(database), sanitizeFilename(table), ts, format)
}

func sanitizeFilename(part string) string {
	out := filenameUnsafePattern.ReplaceAllString(part, "")
	out = strings.ReplaceAll(out, " ", "_")
	out = strings.ToLower(out)
	if len(out) > 100 {
		out = out[:100]
	}
	return strings.TrimSpace(out)
}
