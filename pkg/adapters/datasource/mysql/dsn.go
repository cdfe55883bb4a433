package mysql

import (
	"fmt"
	"net/url"
	"strings"

	gomysql "github.com/go-sql-driver/mysql"

	"github.com/dbscope-io/dbscope-engine/pkg/apperrors"
)

// DSNFromURL converts a mysql:// URL into go-sql-driver DSN form. parseTime
// is forced on so temporal columns decode as time.Time.
func DSNFromURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperrors.ErrInvalidConnectionURL, err)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("%w: missing host", apperrors.ErrInvalidConnectionURL)
	}

	cfg := gomysql.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = u.Host
	if u.Port() == "" {
		cfg.Addr = u.Hostname() + ":3306"
	}
	if u.User != nil {
		cfg.User = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			cfg.Passwd = pw
		}
	}
	cfg.DBName = strings.TrimPrefix(u.Path, "/")
	cfg.ParseTime = true

	return cfg.FormatDSN(), nil
}
