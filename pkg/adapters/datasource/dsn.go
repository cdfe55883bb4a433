package datasource

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/dbscope-io/dbscope-engine/pkg/apperrors"
)

// DetectType maps a connection URL's scheme to a dialect name. Hybrid
// schemes carried over from SQLAlchemy-style URLs (mysql+pymysql,
// postgresql+asyncpg) resolve to their base dialect.
func DetectType(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperrors.ErrInvalidConnectionURL, err)
	}

	scheme := strings.ToLower(u.Scheme)
	if base, _, found := strings.Cut(scheme, "+"); found {
		scheme = base
	}

	switch scheme {
	case "postgres", "postgresql":
		return DialectPostgres, nil
	case "mysql":
		return DialectMySQL, nil
	case "":
		return "", fmt.Errorf("%w: missing scheme", apperrors.ErrInvalidConnectionURL)
	default:
		return "", fmt.Errorf("%w: %s", apperrors.ErrUnsupportedDatabaseType, scheme)
	}
}

// NormalizeURL rewrites hybrid schemes to the plain dialect scheme so stored
// URLs parse with the Go drivers. Everything else is preserved as given.
func NormalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperrors.ErrInvalidConnectionURL, err)
	}
	if base, _, found := strings.Cut(u.Scheme, "+"); found {
		u.Scheme = base
		return u.String(), nil
	}
	return rawURL, nil
}
