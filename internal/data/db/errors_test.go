package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsUniqueViolation(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"postgres", fmt.Errorf("create: %w", &pgconn.PgError{Code: "23505"}), true},
		{"postgres other", &pgconn.PgError{Code: "23503"}, false},
		{"sqlite", errors.New("UNIQUE constraint failed: operation_ids.id"), true},
		{"plain", errors.New("connection refused"), false},
	}
	for _, tc := range cases {
		if got := IsUniqueViolation(tc.err); got != tc.want {
			t.Fatalf("%s: got=%v want=%v", tc.name, got, tc.want)
		}
	}
}

func TestIsTransient(t *testing.T) {
	if !IsTransient(&pgconn.PgError{Code: "40P01"}) {
		t.Fatalf("deadlock should be transient")
	}
	if IsTransient(&pgconn.PgError{Code: "23505"}) {
		t.Fatalf("unique violation is not transient")
	}
	if !IsTransient(errors.New("database is locked")) {
		t.Fatalf("sqlite busy should be transient")
	}
}
