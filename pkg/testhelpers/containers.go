// Package testhelpers provides shared database containers for integration
// tests.
package testhelpers

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	postgresImage = "postgres:16-alpine"
	mysqlImage    = "mysql:8"

	fixtureUser     = "scope"
	fixturePassword = "scope_password"
	fixtureDatabase = "fixture"
)

// Both containers are seeded with the same small retail schema so executor
// tests can assert identical shapes against either engine.
var postgresSeed = []string{
	`CREATE TABLE users (
		id SERIAL PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		name TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE orders (
		id SERIAL PRIMARY KEY,
		user_id INTEGER NOT NULL REFERENCES users(id),
		amount NUMERIC(10,2) NOT NULL,
		placed_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE VIEW order_totals AS
		SELECT u.email, SUM(o.amount) AS total
		FROM users u JOIN orders o ON o.user_id = u.id
		GROUP BY u.email`,
	`INSERT INTO users (email, name) VALUES
		('ada@example.com', 'Ada'),
		('grace@example.com', 'Grace'),
		('edsger@example.com', NULL)`,
	`INSERT INTO orders (user_id, amount) VALUES (1, 19.99), (1, 5.00), (2, 42.50)`,
}

var mysqlSeed = []string{
	"CREATE TABLE users (" +
		"id INT AUTO_INCREMENT PRIMARY KEY, " +
		"email VARCHAR(255) NOT NULL UNIQUE, " +
		"name VARCHAR(255), " +
		"created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP)",
	"CREATE TABLE orders (" +
		"id INT AUTO_INCREMENT PRIMARY KEY, " +
		"user_id INT NOT NULL, " +
		"amount DECIMAL(10,2) NOT NULL, " +
		"placed_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP, " +
		"FOREIGN KEY (user_id) REFERENCES users(id))",
	"CREATE VIEW order_totals AS " +
		"SELECT u.email, SUM(o.amount) AS total " +
		"FROM users u JOIN orders o ON o.user_id = u.id " +
		"GROUP BY u.email",
	"INSERT INTO users (email, name) VALUES " +
		"('ada@example.com', 'Ada'), " +
		"('grace@example.com', 'Grace'), " +
		"('edsger@example.com', NULL)",
	"INSERT INTO orders (user_id, amount) VALUES (1, 19.99), (1, 5.00), (2, 42.50)",
}

// PostgresDB holds a shared PostgreSQL container with the retail fixture
// loaded.
type PostgresDB struct {
	Container testcontainers.Container
	Pool      *pgxpool.Pool

	// URL is in the engine's connection-URL form, ready for a Descriptor.
	URL string
}

var (
	sharedPostgres     *PostgresDB
	sharedPostgresOnce sync.Once
	sharedPostgresErr  error
)

// GetPostgresDB returns a shared PostgreSQL container for integration tests.
// The container is created once and reused across all tests in the run.
func GetPostgresDB(t *testing.T) *PostgresDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedPostgresOnce.Do(func() {
		sharedPostgres, sharedPostgresErr = setupPostgres()
	})

	if sharedPostgresErr != nil {
		t.Fatalf("Failed to setup postgres container: %v", sharedPostgresErr)
	}

	return sharedPostgres
}

func setupPostgres() (*PostgresDB, error) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        postgresImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       fixtureDatabase,
			"POSTGRES_USER":     fixtureUser,
			"POSTGRES_PASSWORD": fixturePassword,
		},
		// The entrypoint starts the server twice: once for init, once for
		// real. Only the second is reachable from outside.
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	connURL := fmt.Sprintf("postgresql://%s:%s@%s:%s/%s?sslmode=disable",
		fixtureUser, fixturePassword, host, port.Port(), fixtureDatabase)

	pool, err := pgxpool.New(ctx, connURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	var pingErr error
	for i := 0; i < 10; i++ {
		if pingErr = pool.Ping(ctx); pingErr == nil {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}
	if pingErr != nil {
		return nil, fmt.Errorf("failed to ping postgres container: %w", pingErr)
	}

	for _, stmt := range postgresSeed {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to seed fixture: %w", err)
		}
	}

	return &PostgresDB{
		Container: container,
		Pool:      pool,
		URL:       connURL,
	}, nil
}

// MySQLDB holds a shared MySQL container with the retail fixture loaded.
type MySQLDB struct {
	Container testcontainers.Container
	DB        *sql.DB

	// URL is in the engine's connection-URL form, ready for a Descriptor.
	URL string
}

var (
	sharedMySQL     *MySQLDB
	sharedMySQLOnce sync.Once
	sharedMySQLErr  error
)

// GetMySQLDB returns a shared MySQL container for integration tests. The
// container is created once and reused across all tests in the run.
func GetMySQLDB(t *testing.T) *MySQLDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedMySQLOnce.Do(func() {
		sharedMySQL, sharedMySQLErr = setupMySQL()
	})

	if sharedMySQLErr != nil {
		t.Fatalf("Failed to setup mysql container: %v", sharedMySQLErr)
	}

	return sharedMySQL
}

func setupMySQL() (*MySQLDB, error) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        mysqlImage,
		ExposedPorts: []string{"3306/tcp"},
		Env: map[string]string{
			"MYSQL_DATABASE":      fixtureDatabase,
			"MYSQL_USER":          fixtureUser,
			"MYSQL_PASSWORD":      fixturePassword,
			"MYSQL_ROOT_PASSWORD": fixturePassword,
		},
		// mysqld logs readiness once for the bootstrap server and once for
		// the networked one.
		WaitingFor: wait.ForLog("ready for connections").
			WithOccurrence(2).
			WithStartupTimeout(120 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start mysql container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}

	port, err := container.MappedPort(ctx, "3306")
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true",
		fixtureUser, fixturePassword, host, port.Port(), fixtureDatabase)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open mysql connection: %w", err)
	}

	// The log line can precede actual availability by a few seconds.
	var pingErr error
	for i := 0; i < 20; i++ {
		if pingErr = db.PingContext(ctx); pingErr == nil {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}
	if pingErr != nil {
		return nil, fmt.Errorf("failed to ping mysql container: %w", pingErr)
	}

	for _, stmt := range mysqlSeed {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to seed fixture: %w", err)
		}
	}

	return &MySQLDB{
		Container: container,
		DB:        db,
		URL: fmt.Sprintf("mysql://%s:%s@%s:%s/%s",
			fixtureUser, fixturePassword, host, port.Port(), fixtureDatabase),
	}, nil
}
