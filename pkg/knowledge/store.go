package knowledge

import (
	"context"
	"database/sql"
	"fmt"
)

// SQLiteSource reads the qa_data and doc_data tables of the store.
type SQLiteSource struct {
	db *sql.DB
}

func NewSQLiteSource(db *sql.DB) *SQLiteSource {
	return &SQLiteSource{db: db}
}

func (s *SQLiteSource) FetchAll(ctx context.Context) ([]Item, error) {
	qaRows, err := s.db.QueryContext(ctx, `SELECT category, question, point, note, url FROM qa_data ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query qa_data: %w", err)
	}
	items, err := collectItems(qaRows, nil, QAItem)
	if err != nil {
		return nil, fmt.Errorf("read qa_data: %w", err)
	}

	docRows, err := s.db.QueryContext(ctx, `SELECT major_category, minor_category, title, point, url FROM doc_data ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query doc_data: %w", err)
	}
	items, err = collectItems(docRows, items, DocItem)
	if err != nil {
		return nil, fmt.Errorf("read doc_data: %w", err)
	}
	return items, nil
}

// itemRows is the part of *sql.Rows collectItems needs.
type itemRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// collectItems appends one Item per five-column row and closes rows. An
// error raised mid-iteration fails the whole read rather than returning a
// shortened corpus.
func collectItems(rows itemRows, items []Item, build func(a, b, c, d, e string) (Item, bool)) ([]Item, error) {
	defer rows.Close()
	for rows.Next() {
		var cols [5]string
		if err := rows.Scan(&cols[0], &cols[1], &cols[2], &cols[3], &cols[4]); err != nil {
			return nil, err
		}
		if it, ok := build(cols[0], cols[1], cols[2], cols[3], cols[4]); ok {
			items = append(items, it)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, rows.Close()
}

// Replace swaps both tables for the contents of seed in one transaction.
func (s *SQLiteSource) Replace(ctx context.Context, seed Seed) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("replace knowledge begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM qa_data`); err != nil {
		return fmt.Errorf("clear qa_data: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM doc_data`); err != nil {
		return fmt.Errorf("clear doc_data: %w", err)
	}
	for _, q := range seed.QA {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO qa_data(category, question, point, note, url) VALUES(?, ?, ?, ?, ?)`,
			q.Category, q.Question, q.Point, q.Note, q.URL); err != nil {
			return fmt.Errorf("insert qa_data: %w", err)
		}
	}
	for _, d := range seed.Docs {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO doc_data(major_category, minor_category, title, point, url) VALUES(?, ?, ?, ?, ?)`,
			d.Major, d.Minor, d.Title, d.Point, d.URL); err != nil {
			return fmt.Errorf("insert doc_data: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("replace knowledge commit: %w", err)
	}
	return nil
}
