package extract

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func seedDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "alpha_fund_data.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	stmts := []string{
		`create table fund_managers (id integer primary key, name text, role text)`,
		`insert into fund_managers (name, role) values ('Dana Whitfield', 'Chief Privacy Officer'), ('Ravi Menon', NULL)`,
		`create table empty_one (x text)`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			t.Fatalf("exec %q: %v", s, err)
		}
	}
	return path
}

func TestSQLTableRendersRows(t *testing.T) {
	path := seedDB(t)
	text, err := SQLTable(context.Background(), path, "fund_managers")
	if err != nil {
		t.Fatalf("SQLTable: %v", err)
	}
	lines := strings.Split(text, "\n")
	if lines[0] != "Database table fund_managers:" {
		t.Fatalf("unexpected header %q", lines[0])
	}
	if len(lines) != 4 {
		t.Fatalf("expected header, column line and 2 rows, got %q", text)
	}
	if !strings.Contains(lines[2], "Dana Whitfield") || !strings.HasPrefix(lines[2], "0") {
		t.Fatalf("unexpected first row %q", lines[2])
	}
	if !strings.HasSuffix(lines[3], "None") {
		t.Fatalf("expected NULL rendered as None, got %q", lines[3])
	}
	if len(lines[1]) != len(lines[2]) || len(lines[2]) != len(lines[3]) {
		t.Fatalf("columns not aligned:\n%s", text)
	}
}

func TestSQLTableRejectsBadInput(t *testing.T) {
	if _, err := SQLTable(context.Background(), "x.db", "users; drop table x"); err == nil {
		t.Fatal("expected invalid table name error")
	}
	_, err := SQLTable(context.Background(), filepath.Join(t.TempDir(), "missing.db"), "fund_managers")
	if !errors.Is(err, ErrSourceNotFound) {
		t.Fatalf("expected ErrSourceNotFound, got %v", err)
	}
}

func TestSQLTableOrWarn(t *testing.T) {
	var warned string
	out := SQLTableOrWarn(context.Background(), filepath.Join(t.TempDir(), "missing.db"), "t", func(format string, args ...any) {
		warned = format
	})
	if out != "" || !strings.Contains(warned, "not found") {
		t.Fatalf("expected warning and empty output, got %q / %q", out, warned)
	}
}

func TestSQLTables(t *testing.T) {
	path := seedDB(t)
	tables, names, err := SQLTables(context.Background(), path)
	if err != nil {
		t.Fatalf("SQLTables: %v", err)
	}
	if len(names) != 2 || names[0] != "empty_one" || names[1] != "fund_managers" {
		t.Fatalf("unexpected tables %v", names)
	}
	if !strings.Contains(tables["empty_one"], "Empty table") {
		t.Fatalf("unexpected empty rendering %q", tables["empty_one"])
	}
}
