// Package snapshot persists resolved quantities of a tree into a SQLite file
// and reads them back.
package snapshot

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"regexp"
	"sync"

	_ "modernc.org/sqlite"
)

// DefaultTable is the table quantities are stored in unless configured otherwise.
const DefaultTable = "quantities"

// Quantity is one resolved canonical key.
type Quantity struct {
	Key    string
	Source string // path of the node that answered
	Unit   string
	Value  any
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func checkTable(table string) (string, error) {
	if table == "" {
		return DefaultTable, nil
	}
	if !identRe.MatchString(table) {
		return "", fmt.Errorf("invalid snapshot table name %q", table)
	}
	return table, nil
}

// Writer writes quantities in a single transaction.
type Writer struct {
	db    *sql.DB
	tx    *sql.Tx
	stmt  *sql.Stmt
	table string
	mu    sync.Mutex
}

// NewWriter creates (or truncates) the snapshot table at dbPath.
func NewWriter(dbPath, table string) (*Writer, error) {
	table, err := checkTable(table)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}

	if _, err := db.Exec("PRAGMA journal_mode = MEMORY"); err != nil {
		_ = db.Close()
		return nil, err
	}

	schema := fmt.Sprintf(`
	DROP TABLE IF EXISTS %[1]s;
	CREATE TABLE %[1]s (
		key TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		unit TEXT NOT NULL DEFAULT '',
		value JSON
	);
	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT
	);
	`, table)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	w := &Writer{db: db, table: table}
	if w.tx, err = db.Begin(); err != nil {
		_ = db.Close()
		return nil, err
	}
	w.stmt, err = w.tx.Prepare(fmt.Sprintf(
		`INSERT OR REPLACE INTO %s (key, source, unit, value) VALUES (?, ?, ?, ?)`, table))
	if err != nil {
		_ = w.tx.Rollback()
		_ = db.Close()
		return nil, err
	}
	return w, nil
}

// Add writes one quantity.
func (w *Writer) Add(q Quantity) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	raw, err := json.Marshal(finite(q.Value))
	if err != nil {
		return fmt.Errorf("encode %s: %w", q.Key, err)
	}
	if _, err := w.stmt.Exec(q.Key, q.Source, q.Unit, string(raw)); err != nil {
		return fmt.Errorf("insert %s: %w", q.Key, err)
	}
	return nil
}

// SetMeta records a free-form property of the snapshot.
func (w *Writer) SetMeta(key, value string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := w.tx.Exec(`INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)`, key, value)
	return err
}

// Close commits and closes the database.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.stmt.Close()
	if err := w.tx.Commit(); err != nil {
		_ = w.db.Close()
		return fmt.Errorf("commit: %w", err)
	}
	return w.db.Close()
}

// Write stores qs at dbPath in one go.
func Write(dbPath, table string, qs []Quantity) error {
	w, err := NewWriter(dbPath, table)
	if err != nil {
		return err
	}
	for _, q := range qs {
		if err := w.Add(q); err != nil {
			_ = w.Close()
			return err
		}
	}
	return w.Close()
}

// Stream calls fn for every stored quantity in key order.
func Stream(dbPath, table string, fn func(Quantity) error) error {
	table, err := checkTable(table)
	if err != nil {
		return err
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	defer func() { _ = db.Close() }() // safe to ignore

	rows, err := db.Query(fmt.Sprintf("SELECT key, source, unit, value FROM %s ORDER BY key", table))
	if err != nil {
		return fmt.Errorf("query %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }() // safe to ignore

	for rows.Next() {
		var q Quantity
		var raw sql.NullString
		if err := rows.Scan(&q.Key, &q.Source, &q.Unit, &raw); err != nil {
			return fmt.Errorf("scan row: %w", err)
		}
		if raw.Valid {
			if err := json.Unmarshal([]byte(raw.String), &q.Value); err != nil {
				return fmt.Errorf("parse value of %s: %w", q.Key, err)
			}
			q.Value = restoreGaps(q.Value)
		}
		if err := fn(q); err != nil {
			return err
		}
	}
	return rows.Err()
}

// finite replaces NaN and infinities with nil so the value encodes as JSON.
// Missing table cells are NaN, so numeric columns hit this routinely.
func finite(v any) any {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil
		}
		return x
	case float32:
		return finite(float64(x))
	case []float64:
		if allFinite(x) {
			return x
		}
		out := make([]any, len(x))
		for i, f := range x {
			out[i] = finite(f)
		}
		return out
	case [][]float64:
		out := make([]any, len(x))
		for i, row := range x {
			out[i] = finite(row)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = finite(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = finite(e)
		}
		return out
	default:
		return v
	}
}

func allFinite(xs []float64) bool {
	for _, f := range xs {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

// restoreGaps turns decoded arrays of numbers with null holes back into
// []float64 with NaN in the holes. A null scalar stays nil.
func restoreGaps(v any) any {
	switch x := v.(type) {
	case []any:
		nums, gaps := 0, 0
		for i, e := range x {
			switch e.(type) {
			case float64:
				nums++
			case nil:
				gaps++
			default:
				x[i] = restoreGaps(e)
			}
		}
		if gaps == 0 || nums+gaps != len(x) {
			return x
		}
		out := make([]float64, len(x))
		for i, e := range x {
			if f, ok := e.(float64); ok {
				out[i] = f
			} else {
				out[i] = math.NaN()
			}
		}
		return out
	case map[string]any:
		for k, e := range x {
			x[k] = restoreGaps(e)
		}
		return x
	default:
		return v
	}
}

// Read loads every stored quantity.
func Read(dbPath, table string) ([]Quantity, error) {
	var out []Quantity
	err := Stream(dbPath, table, func(q Quantity) error {
		out = append(out, q)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Meta returns the recorded snapshot properties.
func Meta(dbPath string) (map[string]string, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	defer func() { _ = db.Close() }() // safe to ignore

	rows, err := db.Query("SELECT key, value FROM meta")
	if err != nil {
		return nil, fmt.Errorf("query meta: %w", err)
	}
	defer func() { _ = rows.Close() }() // safe to ignore

	out := make(map[string]string)
	for rows.Next() {
		var k string
		var v sql.NullString
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out[k] = v.String
	}
	return out, rows.Err()
}

// Decode reads a snapshot held in memory, e.g. loaded through a virtual
// filesystem. SQLite needs a real file, so the bytes are staged in a temp file.
func Decode(data []byte, table string) ([]Quantity, error) {
	f, err := os.CreateTemp("", "yieldtree-snapshot-*.db")
	if err != nil {
		return nil, fmt.Errorf("stage snapshot: %w", err)
	}
	name := f.Name()
	defer func() { _ = os.Remove(name) }()

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stage snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("stage snapshot: %w", err)
	}
	return Read(name, table)
}
