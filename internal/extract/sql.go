package extract

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"
	"unicode/utf8"

	_ "modernc.org/sqlite"
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLTable renders every row of table in the SQLite file at dbPath as an
// aligned text table prefixed with "Database table <name>:".
func SQLTable(ctx context.Context, dbPath, table string) (string, error) {
	if !identRe.MatchString(table) {
		return "", fmt.Errorf("extract: invalid table name %q", table)
	}
	db, err := openSQLite(dbPath)
	if err != nil {
		return "", err
	}
	defer db.Close()
	return renderTable(ctx, db, table)
}

// SQLTableOrWarn is SQLTable that reports failures through warn and returns "".
func SQLTableOrWarn(ctx context.Context, dbPath, table string, warn WarnFunc) string {
	text, err := SQLTable(ctx, dbPath, table)
	if errors.Is(err, ErrSourceNotFound) {
		warn.warn("Database file not found - %s", dbPath)
		return ""
	}
	if err != nil {
		warn.warn("error extracting text from %s: %v", dbPath, err)
		return ""
	}
	return text
}

// SQLTables renders every user table in the database, in name order.
func SQLTables(ctx context.Context, dbPath string) (map[string]string, []string, error) {
	db, err := openSQLite(dbPath)
	if err != nil {
		return nil, nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, `select name from sqlite_master where type = 'table' and name not like 'sqlite_%' order by name`)
	if err != nil {
		return nil, nil, fmt.Errorf("extract: list tables: %w", err)
	}
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return nil, nil, err
		}
		names = append(names, name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	out := make(map[string]string, len(names))
	var kept []string
	for _, name := range names {
		if !identRe.MatchString(name) {
			continue
		}
		text, err := renderTable(ctx, db, name)
		if err != nil {
			return nil, nil, err
		}
		out[name] = text
		kept = append(kept, name)
	}
	return out, kept, nil
}

func openSQLite(path string) (*sql.DB, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, path)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("extract: open %s: %w", path, err)
	}
	return db, nil
}

func renderTable(ctx context.Context, db *sql.DB, table string) (string, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`select * from "%s"`, table))
	if err != nil {
		return "", fmt.Errorf("extract: query %s: %w", table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return "", err
	}
	var cells [][]string
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return "", err
		}
		row := make([]string, len(cols))
		for i, v := range vals {
			row[i] = formatCell(v)
		}
		cells = append(cells, row)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	return fmt.Sprintf("Database table %s:\n%s", table, formatGrid(cols, cells)), nil
}

func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return "None"
	case []byte:
		return string(x)
	default:
		return fmt.Sprint(x)
	}
}

// formatGrid right-aligns columns behind a row-index column, like a dataframe dump.
func formatGrid(cols []string, cells [][]string) string {
	if len(cells) == 0 {
		return fmt.Sprintf("Empty table\nColumns: [%s]\nIndex: []", strings.Join(cols, ", "))
	}
	indexWidth := len(fmt.Sprint(len(cells) - 1))
	widths := make([]int, len(cols))
	for i, c := range cols {
		widths[i] = utf8.RuneCountInString(c)
	}
	for _, row := range cells {
		for i, v := range row {
			widths[i] = max(widths[i], utf8.RuneCountInString(v))
		}
	}
	var b strings.Builder
	b.WriteString(strings.Repeat(" ", indexWidth))
	for i, c := range cols {
		b.WriteString("  ")
		b.WriteString(padLeft(c, widths[i]))
	}
	for r, row := range cells {
		b.WriteByte('\n')
		b.WriteString(padRight(fmt.Sprint(r), indexWidth))
		for i, v := range row {
			b.WriteString("  ")
			b.WriteString(padLeft(v, widths[i]))
		}
	}
	return b.String()
}

func padLeft(s string, w int) string {
	return strings.Repeat(" ", max(w-utf8.RuneCountInString(s), 0)) + s
}

func padRight(s string, w int) string {
	return s + strings.Repeat(" ", max(w-utf8.RuneCountInString(s), 0))
}
