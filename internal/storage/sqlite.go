package storage

import (
	"bytes"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/traditionalchinese"
	_ "modernc.org/sqlite"

	"github.com/matsen/citeparse/internal/normalize"
)

// candidateLimit caps the number of full-text hits scored per lookup.
const candidateLimit = 50

// Catalog is a SQLite database of known titles.
type Catalog struct {
	db *sql.DB
}

// CatalogMatch is the best catalog entry for a title.
type CatalogMatch struct {
	ID    int64   `json:"id"`
	Title string  `json:"title"`
	Score float64 `json:"score"`
}

// OpenCatalog opens or creates a catalog at the given path.
func OpenCatalog(path string) (*Catalog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &Catalog{db: db}, nil
}

// Close closes the database connection.
func (c *Catalog) Close() error {
	return c.db.Close()
}

func createSchema(db *sql.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS titles (
			id INTEGER PRIMARY KEY,
			title TEXT NOT NULL,
			clean TEXT NOT NULL
		);

		-- Standalone full-text index over cleaned titles, rowid = titles.id
		CREATE VIRTUAL TABLE IF NOT EXISTS titles_fts USING fts5(clean);
	`
	_, err := db.Exec(schema)
	return err
}

// Rebuild replaces the catalog's content with titles. Blank titles are
// skipped. It returns the number of titles stored.
func (c *Catalog) Rebuild(titles []string) (int, error) {
	tx, err := c.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM titles"); err != nil {
		return 0, fmt.Errorf("clearing titles table: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM titles_fts"); err != nil {
		return 0, fmt.Errorf("clearing titles_fts table: %w", err)
	}

	titleStmt, err := tx.Prepare(`INSERT INTO titles (title, clean) VALUES (?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("preparing titles insert: %w", err)
	}
	defer titleStmt.Close()
	ftsStmt, err := tx.Prepare(`INSERT INTO titles_fts (rowid, clean) VALUES (?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("preparing fts insert: %w", err)
	}
	defer ftsStmt.Close()

	n := 0
	for _, t := range titles {
		t = strings.TrimSpace(t)
		clean := normalize.CleanTitle(t)
		if clean == "" {
			continue
		}
		res, err := titleStmt.Exec(t, clean)
		if err != nil {
			return 0, fmt.Errorf("inserting title %q: %w", t, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("reading id of %q: %w", t, err)
		}
		if _, err := ftsStmt.Exec(id, clean); err != nil {
			return 0, fmt.Errorf("inserting fts for %q: %w", t, err)
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing catalog: %w", err)
	}
	return n, nil
}

// Count returns the number of titles.
func (c *Catalog) Count() (int, error) {
	var n int
	err := c.db.QueryRow("SELECT COUNT(*) FROM titles").Scan(&n)
	return n, err
}

// Match finds the catalog title most similar to title and reports whether
// its score reaches threshold. Candidates come from the full-text index;
// when it has none (for example unsegmented CJK titles) every title is
// scored.
func (c *Catalog) Match(title string, threshold float64) (CatalogMatch, bool, error) {
	clean := normalize.CleanTitle(title)
	if clean == "" {
		return CatalogMatch{}, false, nil
	}

	cands, err := c.candidates(clean)
	if err != nil {
		return CatalogMatch{}, false, err
	}
	if len(cands) == 0 {
		if cands, err = c.all(); err != nil {
			return CatalogMatch{}, false, err
		}
	}

	var best CatalogMatch
	for _, cand := range cands {
		cand.Score = normalize.MatchScore(title, cand.Title)
		if cand.Score > best.Score {
			best = cand
		}
	}
	return best, best.Score > 0 && best.Score >= threshold, nil
}

func (c *Catalog) candidates(clean string) ([]CatalogMatch, error) {
	rows, err := c.db.Query(`
		SELECT t.id, t.title
		FROM titles_fts f JOIN titles t ON t.id = f.rowid
		WHERE titles_fts MATCH ?
		ORDER BY f.rank
		LIMIT ?`, prepareFTSQuery(clean), candidateLimit)
	if err != nil {
		return nil, fmt.Errorf("searching catalog: %w", err)
	}
	defer rows.Close()
	return scanMatches(rows)
}

func (c *Catalog) all() ([]CatalogMatch, error) {
	rows, err := c.db.Query(`SELECT id, title FROM titles ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing catalog: %w", err)
	}
	defer rows.Close()
	return scanMatches(rows)
}

func scanMatches(rows *sql.Rows) ([]CatalogMatch, error) {
	var out []CatalogMatch
	for rows.Next() {
		var m CatalogMatch
		if err := rows.Scan(&m.ID, &m.Title); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// prepareFTSQuery turns cleaned title words into an OR query of quoted
// terms, so any shared word makes a row a candidate.
func prepareFTSQuery(clean string) string {
	words := strings.Fields(clean)
	terms := make([]string, 0, len(words))
	seen := make(map[string]bool)
	for _, w := range words {
		if seen[w] {
			continue
		}
		seen[w] = true
		terms = append(terms, `"`+strings.ReplaceAll(w, `"`, `""`)+`"`)
	}
	sort.Strings(terms)
	return strings.Join(terms, " OR ")
}

// ReadTitlesCSV reads the named column of a CSV file with a header row. An
// empty column name selects "title" when present, else the first column.
// Files that are not valid UTF-8 are decoded as Big5.
func ReadTitlesCSV(path, column string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading titles file: %w", err)
	}
	data = bytes.TrimPrefix(data, []byte("\ufeff"))
	if !utf8.Valid(data) {
		if data, err = traditionalchinese.Big5.NewDecoder().Bytes(data); err != nil {
			return nil, fmt.Errorf("decoding titles file as Big5: %w", err)
		}
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	col, err := pickColumn(header, column)
	if err != nil {
		return nil, err
	}

	var titles []string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading titles file: %w", err)
		}
		if col < len(rec) {
			titles = append(titles, rec[col])
		}
	}
	return titles, nil
}

func pickColumn(header []string, column string) (int, error) {
	want := strings.ToLower(strings.TrimSpace(column))
	if want == "" {
		want = "title"
	}
	for i, h := range header {
		if strings.ToLower(strings.TrimSpace(h)) == want {
			return i, nil
		}
	}
	if column == "" && len(header) > 0 {
		return 0, nil
	}
	return 0, fmt.Errorf("column %q not found in header %v", column, header)
}
