package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"moodle-harvest/lib/platforms/moodle/core"

	_ "modernc.org/sqlite"
)

// SQLiteSink keeps one table per dataset name, every row is tagged with the
// idnumber of its course. Saving a course replaces its previous rows.
type SQLiteSink struct {
	db *sql.DB
}

func OpenSQLite(path string) (SQLiteSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return SQLiteSink{}, err
	}
	// a single connection keeps ":memory:" databases alive between statements
	db.SetMaxOpenConns(1)
	return SQLiteSink{db: db}, nil
}

func NewSQLiteSink(db *sql.DB) SQLiteSink {
	return SQLiteSink{db: db}
}

func (s SQLiteSink) DB() *sql.DB {
	return s.db
}

func (s SQLiteSink) Close() error {
	return s.db.Close()
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (s SQLiteSink) Save(ctx context.Context, course core.Course, datasets []Dataset) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, ds := range datasets {
		err = saveDataset(ctx, tx, course.IDNumber, ds)
		if err != nil {
			return fmt.Errorf("save %s: %w", ds.Name, err)
		}
	}
	return tx.Commit()
}

func saveDataset(ctx context.Context, tx *sql.Tx, idnumber string, ds Dataset) error {
	table := quoteIdent(ds.Name)

	columns := make([]string, 0, len(ds.Columns)+1)
	columns = append(columns, quoteIdent("idnumber"))
	for _, c := range ds.Columns {
		columns = append(columns, quoteIdent(c))
	}

	_, err := tx.ExecContext(ctx, fmt.Sprintf(
		"create table if not exists %s (%s)",
		table,
		strings.Join(columns, ", "),
	))
	if err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	_, err = tx.ExecContext(ctx, fmt.Sprintf("delete from %s where idnumber = ?", table), idnumber)
	if err != nil {
		return fmt.Errorf("delete previous rows: %w", err)
	}
	if len(ds.Rows) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		"insert into %s (%s) values (%s)",
		table,
		strings.Join(columns, ", "),
		placeholders,
	))
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	args := make([]any, len(columns))
	for _, row := range ds.Rows {
		args[0] = idnumber
		for i := range ds.Columns {
			args[i+1] = ""
			if i < len(row) {
				args[i+1] = row[i]
			}
		}
		_, err = stmt.ExecContext(ctx, args...)
		if err != nil {
			return fmt.Errorf("insert row: %w", err)
		}
	}
	return nil
}
