package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/mvp-joe/anchors-aweigh/internal/extractor/extraction"
)

// ErrNotFound indicates that a file, symbol or run does not exist.
var ErrNotFound = errors.New("not found")

// QualifiedAnchor returns the cross-file key of a symbol: the file's
// relative path and the anchor joined by "#". Anchors are unique per file,
// so the pair is unique per database.
func QualifiedAnchor(relPath, anchor string) string {
	return relPath + "#" + anchor
}

// Run describes one extraction run.
type Run struct {
	ID           string
	Root         string
	StartedAt    time.Time
	FinishedAt   time.Time // zero while the run is in progress
	FileCount    int
	SymbolCount  int
	SkippedCount int
}

// FileRecord is the extraction result of one file.
type FileRecord struct {
	Path     string // relative, slash separated
	Language string
	Hash     string
	Size     int64
	Symbols  []extraction.Symbol
}

// StoredSymbol is a symbol together with the file that declares it.
type StoredSymbol struct {
	extraction.Symbol
	FilePath string
}

// QualifiedAnchor returns the symbol's file#anchor key.
func (s StoredSymbol) QualifiedAnchor() string {
	return QualifiedAnchor(s.FilePath, s.Anchor)
}

// symbolBatchSize keeps multi-row inserts under SQLite's bound-parameter limit.
const symbolBatchSize = 500

// Store reads and writes extraction results.
type Store struct {
	db *sql.DB
}

// NewStore creates a Store.
// DB must have schema already created via CreateSchema().
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// BeginRun records the start of a run and returns its ID.
func (s *Store) BeginRun(root string) (string, error) {
	id := uuid.New().String()
	_, err := sq.Insert("runs").
		Columns("run_id", "root", "started_at").
		Values(id, root, time.Now().UTC().Format(time.RFC3339)).
		RunWith(s.db).
		Exec()
	if err != nil {
		return "", fmt.Errorf("failed to begin run: %w", err)
	}
	return id, nil
}

// FinishRun stamps a run with its totals.
func (s *Store) FinishRun(id string, files, symbols, skipped int) error {
	res, err := sq.Update("runs").
		Set("finished_at", time.Now().UTC().Format(time.RFC3339)).
		Set("file_count", files).
		Set("symbol_count", symbols).
		Set("skipped_count", skipped).
		Where(sq.Eq{"run_id": id}).
		RunWith(s.db).
		Exec()
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return nil
}

// WriteFile replaces a file's row and all of its symbols in one transaction.
func (s *Store) WriteFile(runID string, rec FileRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // Safe to call even after commit

	// Deleting the file row cascades to its symbols.
	if _, err := sq.Delete("files").Where(sq.Eq{"file_path": rec.Path}).RunWith(tx).Exec(); err != nil {
		return fmt.Errorf("failed to clear file %s: %w", rec.Path, err)
	}

	_, err = sq.Insert("files").
		Columns("file_path", "language", "file_hash", "size_bytes", "symbol_count", "run_id", "extracted_at").
		Values(rec.Path, rec.Language, rec.Hash, rec.Size, len(rec.Symbols), runID, time.Now().UTC().Format(time.RFC3339)).
		RunWith(tx).
		Exec()
	if err != nil {
		return fmt.Errorf("failed to write file %s: %w", rec.Path, err)
	}

	for start := 0; start < len(rec.Symbols); start += symbolBatchSize {
		batch := rec.Symbols[start:min(start+symbolBatchSize, len(rec.Symbols))]
		insert := sq.Insert("symbols").Columns(
			"file_path", "anchor", "ordinal", "path_json", "qualified_name", "name", "kind",
			"doc", "line", "end_line", "doc_line", "mode", "initializer", "value",
			"visibility", "singleton", "fingerprint",
		)
		for i, sym := range batch {
			pathJSON, err := json.Marshal(sym.Path)
			if err != nil {
				return fmt.Errorf("failed to encode path of %s: %w", sym.Anchor, err)
			}
			insert = insert.Values(
				rec.Path, sym.Anchor, start+i, string(pathJSON), sym.QualifiedName("::"), sym.Name(), string(sym.Kind),
				sym.Doc, sym.Line, sym.EndLine, sym.DocLine, string(sym.Mode), sym.Initializer, sym.Value,
				string(sym.Visibility), sym.Singleton, sym.Fingerprint,
			)
		}
		if _, err := insert.RunWith(tx).Exec(); err != nil {
			return fmt.Errorf("failed to write symbols for %s: %w", rec.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit file %s: %w", rec.Path, err)
	}
	return nil
}

// DeleteFile removes a file and its symbols. Deleting a missing file is
// not an error.
func (s *Store) DeleteFile(path string) error {
	if _, err := sq.Delete("files").Where(sq.Eq{"file_path": path}).RunWith(s.db).Exec(); err != nil {
		return fmt.Errorf("failed to delete file %s: %w", path, err)
	}
	return nil
}

// FileHash returns the stored content hash of a file, or "" if the file
// has not been extracted.
func (s *Store) FileHash(path string) (string, error) {
	var hash string
	err := sq.Select("file_hash").
		From("files").
		Where(sq.Eq{"file_path": path}).
		RunWith(s.db).
		QueryRow().
		Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get hash for %s: %w", path, err)
	}
	return hash, nil
}

// Files returns all stored file paths in order.
func (s *Store) Files() ([]string, error) {
	rows, err := sq.Select("file_path").From("files").OrderBy("file_path").RunWith(s.db).Query()
	if err != nil {
		return nil, fmt.Errorf("failed to query files: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("failed to scan file path: %w", err)
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

var symbolColumns = []string{
	"file_path", "anchor", "path_json", "kind", "doc", "line", "end_line", "doc_line",
	"mode", "initializer", "value", "visibility", "singleton", "fingerprint",
}

// Symbols returns a file's symbols in declaration order.
func (s *Store) Symbols(path string) ([]StoredSymbol, error) {
	return s.querySymbols(sq.Select(symbolColumns...).
		From("symbols").
		Where(sq.Eq{"file_path": path}).
		OrderBy("ordinal"))
}

// Lookup resolves a file#anchor key.
func (s *Store) Lookup(qualified string) (StoredSymbol, error) {
	path, anchor, ok := strings.Cut(qualified, "#")
	if !ok {
		return StoredSymbol{}, fmt.Errorf("invalid qualified anchor %q", qualified)
	}
	found, err := s.querySymbols(sq.Select(symbolColumns...).
		From("symbols").
		Where(sq.Eq{"file_path": path, "anchor": anchor}))
	if err != nil {
		return StoredSymbol{}, err
	}
	if len(found) == 0 {
		return StoredSymbol{}, fmt.Errorf("%s: %w", qualified, ErrNotFound)
	}
	return found[0], nil
}

// SymbolQuery filters FindSymbols. Empty fields match everything.
type SymbolQuery struct {
	Name        string
	Kind        extraction.Kind
	Fingerprint string
	Limit       uint64
}

// FindSymbols searches symbols across all files, ordered by file and
// declaration order.
func (s *Store) FindSymbols(q SymbolQuery) ([]StoredSymbol, error) {
	query := sq.Select(symbolColumns...).From("symbols").OrderBy("file_path", "ordinal")
	if q.Name != "" {
		query = query.Where(sq.Eq{"name": q.Name})
	}
	if q.Kind != "" {
		query = query.Where(sq.Eq{"kind": string(q.Kind)})
	}
	if q.Fingerprint != "" {
		query = query.Where(sq.Eq{"fingerprint": q.Fingerprint})
	}
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}
	return s.querySymbols(query)
}

func (s *Store) querySymbols(query sq.SelectBuilder) ([]StoredSymbol, error) {
	rows, err := query.RunWith(s.db).Query()
	if err != nil {
		return nil, fmt.Errorf("failed to query symbols: %w", err)
	}
	defer rows.Close()

	var out []StoredSymbol
	for rows.Next() {
		var (
			sym      StoredSymbol
			pathJSON string
			kind     string
			mode     string
			vis      string
		)
		if err := rows.Scan(
			&sym.FilePath, &sym.Anchor, &pathJSON, &kind, &sym.Doc, &sym.Line, &sym.EndLine, &sym.DocLine,
			&mode, &sym.Initializer, &sym.Value, &vis, &sym.Singleton, &sym.Fingerprint,
		); err != nil {
			return nil, fmt.Errorf("failed to scan symbol: %w", err)
		}
		if err := json.Unmarshal([]byte(pathJSON), &sym.Path); err != nil {
			return nil, fmt.Errorf("failed to decode path of %s: %w", sym.Anchor, err)
		}
		sym.Kind = extraction.Kind(kind)
		sym.Mode = extraction.AttributeMode(mode)
		sym.Visibility = extraction.Visibility(vis)
		out = append(out, sym)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate symbols: %w", err)
	}
	return out, nil
}

// Run returns a run by ID.
func (s *Store) Run(id string) (Run, error) {
	runs, err := s.queryRuns(sq.Select("run_id", "root", "started_at", "finished_at", "file_count", "symbol_count", "skipped_count").
		From("runs").
		Where(sq.Eq{"run_id": id}))
	if err != nil {
		return Run{}, err
	}
	if len(runs) == 0 {
		return Run{}, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return runs[0], nil
}

// Runs returns all runs, newest first.
func (s *Store) Runs() ([]Run, error) {
	return s.queryRuns(sq.Select("run_id", "root", "started_at", "finished_at", "file_count", "symbol_count", "skipped_count").
		From("runs").
		OrderBy("started_at DESC", "rowid DESC"))
}

func (s *Store) queryRuns(query sq.SelectBuilder) ([]Run, error) {
	rows, err := query.RunWith(s.db).Query()
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r        Run
			started  string
			finished sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Root, &started, &finished, &r.FileCount, &r.SymbolCount, &r.SkippedCount); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.StartedAt, _ = time.Parse(time.RFC3339, started)
		if finished.Valid {
			r.FinishedAt, _ = time.Parse(time.RFC3339, finished.String)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// PruneRuns deletes finished runs beyond the newest keep. Runs that still
// own file rows are kept. It returns the number of runs deleted; keep <= 0
// disables pruning.
func (s *Store) PruneRuns(keep int) (int, error) {
	if keep <= 0 {
		return 0, nil
	}

	rows, err := sq.Select("run_id").
		From("runs").
		OrderBy("started_at DESC", "rowid DESC").
		Limit(uint64(keep)).
		RunWith(s.db).
		Query()
	if err != nil {
		return 0, fmt.Errorf("failed to query recent runs: %w", err)
	}
	var newest []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan run id: %w", err)
		}
		newest = append(newest, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("failed to iterate runs: %w", err)
	}

	res, err := sq.Delete("runs").
		Where(sq.NotEq{"finished_at": nil}).
		Where(sq.NotEq{"run_id": newest}).
		Where("NOT EXISTS (SELECT 1 FROM files WHERE files.run_id = runs.run_id)").
		RunWith(s.db).
		Exec()
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned runs: %w", err)
	}
	return int(n), nil
}
