// Package migrations embeds the schema of every storage backend and applies it.
// Scripts are idempotent (CREATE ... IF NOT EXISTS) and run on every start.
package migrations

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
)

//go:embed postgres/*.sql clickhouse/*.sql sqlite/*.sql
var scripts embed.FS

// Dialect names a backend and the directory holding its scripts.
type Dialect string

const (
	Postgres   Dialect = "postgres"
	ClickHouse Dialect = "clickhouse"
	SQLite     Dialect = "sqlite"
)

// ErrQuotedSemicolon is returned for scripts the statement splitter cannot handle.
var ErrQuotedSemicolon = errors.New("semicolon inside a string literal")

// Exec runs one SQL statement (or, for Postgres, one whole script).
type Exec func(ctx context.Context, stmt string) error

// Script is one embedded migration file.
type Script struct {
	Name string
	SQL  string
}

// Scripts returns the dialect's scripts in lexical order.
func Scripts(d Dialect) ([]Script, error) {
	dir := string(d)
	entries, err := fs.ReadDir(scripts, dir)
	if err != nil {
		return nil, fmt.Errorf("read %s migrations: %w", d, err)
	}
	var out []Script
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		data, err := fs.ReadFile(scripts, path.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", e.Name(), err)
		}
		out = append(out, Script{Name: e.Name(), SQL: string(data)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Apply runs every script of the dialect through exec. Postgres accepts
// multi-statement scripts; ClickHouse and SQLite get one statement per call.
func Apply(ctx context.Context, d Dialect, exec Exec) error {
	list, err := Scripts(d)
	if err != nil {
		return err
	}
	for _, s := range list {
		if d == Postgres {
			if strings.TrimSpace(s.SQL) == "" {
				continue
			}
			if err := exec(ctx, s.SQL); err != nil {
				return fmt.Errorf("apply %s/%s: %w", d, s.Name, err)
			}
			continue
		}

		stmts, err := Split(s.SQL)
		if err != nil {
			return fmt.Errorf("split %s/%s: %w", d, s.Name, err)
		}
		for _, stmt := range stmts {
			if err := exec(ctx, stmt); err != nil {
				return fmt.Errorf("apply %s/%s: %w", d, s.Name, err)
			}
		}
	}
	return nil
}

// Split breaks a script into statements on ';'. Line comments are dropped.
// Scripts must not put ';' inside string literals or block comments; a quoted
// semicolon is rejected rather than split.
func Split(script string) ([]string, error) {
	var kept []string
	for _, line := range strings.Split(script, "\n") {
		if t := strings.TrimSpace(line); t == "" || strings.HasPrefix(t, "--") {
			continue
		}
		kept = append(kept, line)
	}
	body := strings.Join(kept, "\n")

	inQuote := false
	for i := 0; i < len(body); i++ {
		switch body[i] {
		case '\'':
			if inQuote && i+1 < len(body) && body[i+1] == '\'' {
				i++ // escaped quote
				continue
			}
			inQuote = !inQuote
		case ';':
			if inQuote {
				return nil, ErrQuotedSemicolon
			}
		}
	}

	var stmts []string
	for _, part := range strings.Split(body, ";") {
		if stmt := strings.TrimSpace(part); stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts, nil
}
