package migrations

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestScripts_AllDialects(t *testing.T) {
	for _, d := range []Dialect{Postgres, ClickHouse, SQLite} {
		list, err := Scripts(d)
		if err != nil {
			t.Fatalf("%s: %v", d, err)
		}
		if len(list) == 0 {
			t.Errorf("%s: no scripts embedded", d)
		}
		for i := 1; i < len(list); i++ {
			if list[i-1].Name >= list[i].Name {
				t.Errorf("%s: scripts out of order: %s, %s", d, list[i-1].Name, list[i].Name)
			}
		}
	}
}

func TestApply_SplitsForSQLite(t *testing.T) {
	var stmts []string
	err := Apply(context.Background(), SQLite, func(_ context.Context, stmt string) error {
		stmts = append(stmts, stmt)
		return nil
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	var tables int
	for _, s := range stmts {
		if strings.Contains(s, ";") {
			t.Errorf("statement still contains a separator: %q", s)
		}
		if strings.HasPrefix(s, "CREATE TABLE") {
			tables++
		}
	}
	if tables != 3 {
		t.Errorf("expected 3 tables, got %d in %d statements", tables, len(stmts))
	}
}

func TestApply_PostgresWholeScripts(t *testing.T) {
	var calls int
	err := Apply(context.Background(), Postgres, func(context.Context, string) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	list, _ := Scripts(Postgres)
	if calls != len(list) {
		t.Errorf("expected one call per script (%d), got %d", len(list), calls)
	}
}

func TestApply_StopsOnError(t *testing.T) {
	boom := errors.New("boom")
	var calls int
	err := Apply(context.Background(), ClickHouse, func(context.Context, string) error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) || calls != 1 {
		t.Errorf("err=%v calls=%d", err, calls)
	}
}

func TestSplit(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    int
		wantErr bool
	}{
		{"two statements", "CREATE TABLE a (x INT);\nCREATE TABLE b (y INT);", 2, false},
		{"comments dropped", "-- header; with semicolon\nSELECT 1;", 1, false},
		{"trailing statement", "SELECT 1;\nSELECT 2", 2, false},
		{"escaped quote", "SELECT 'it''s';", 1, false},
		{"quoted semicolon", "SELECT 'a;b';", 0, true},
		{"empty", "\n-- nothing\n", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Split(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrQuotedSemicolon) {
					t.Fatalf("expected ErrQuotedSemicolon, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != tt.want {
				t.Errorf("got %d statements %q, want %d", len(got), got, tt.want)
			}
		})
	}
}
