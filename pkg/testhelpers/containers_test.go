//go:build integration

package testhelpers

import (
	"context"
	"testing"
)

func TestPostgresFixture(t *testing.T) {
	pg := GetPostgresDB(t)

	ctx := context.Background()

	var tableCount int
	err := pg.Pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = 'public' AND table_type = 'BASE TABLE'").
		Scan(&tableCount)
	if err != nil {
		t.Fatalf("failed to count tables: %v", err)
	}
	if tableCount != 2 {
		t.Errorf("expected 2 tables in fixture, got %d", tableCount)
	}

	var userCount int
	if err := pg.Pool.QueryRow(ctx, "SELECT COUNT(*) FROM users").Scan(&userCount); err != nil {
		t.Fatalf("failed to count users: %v", err)
	}
	if userCount != 3 {
		t.Errorf("expected 3 users in fixture, got %d", userCount)
	}
}

func TestMySQLFixture(t *testing.T) {
	my := GetMySQLDB(t)

	ctx := context.Background()

	var userCount int
	if err := my.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&userCount); err != nil {
		t.Fatalf("failed to count users: %v", err)
	}
	if userCount != 3 {
		t.Errorf("expected 3 users in fixture, got %d", userCount)
	}

	var total float64
	err := my.DB.QueryRowContext(ctx,
		"SELECT total FROM order_totals WHERE email = 'ada@example.com'").Scan(&total)
	if err != nil {
		t.Fatalf("failed to query fixture view: %v", err)
	}
	if total != 24.99 {
		t.Errorf("expected order total 24.99, got %v", total)
	}
}
