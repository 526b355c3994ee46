package duckdb

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	log "github.com/sirupsen/logrus"
)

// MaxQueryRows caps the rows returned by ExecuteQuery.
const MaxQueryRows = 1000

// ErrQueryNotAllowed is returned for queries rejected by the read-only guard.
var ErrQueryNotAllowed = errors.New("duckdb: query not allowed")

// dangerousKeywordPattern matches write or side-effecting keywords at word
// boundaries, so "RESET" does not match "SET".
var dangerousKeywordPattern = regexp.MustCompile(
	`(?i)\b(INSERT|UPDATE|DELETE|DROP|CREATE|ALTER|TRUNCATE|COPY|ATTACH|DETACH|LOAD|EXPORT|IMPORT|INSTALL|CALL|EXECUTE|PRAGMA|SET|CHECKPOINT)\b`,
)

var blockCommentPattern = regexp.MustCompile(`/\*[\s\S]*?\*/`)

// stripSQLComments removes -- line comments and /* */ block comments.
func stripSQLComments(query string) string {
	cleaned := blockCommentPattern.ReplaceAllString(query, " ")
	var result strings.Builder
	for _, line := range strings.Split(cleaned, "\n") {
		if idx := strings.Index(line, "--"); idx >= 0 {
			line = line[:idx]
		}
		result.WriteString(line)
		result.WriteByte('\n')
	}
	return result.String()
}

// ValidateReadOnly rejects anything but a single SELECT or WITH statement.
func ValidateReadOnly(query string) error {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return fmt.Errorf("%w: empty query", ErrQueryNotAllowed)
	}
	if strings.Contains(trimmed, ";") {
		return fmt.Errorf("%w: query must not contain semicolons", ErrQueryNotAllowed)
	}

	// Keywords hidden in comments are still caught after stripping.
	stripped := strings.TrimSpace(stripSQLComments(trimmed))
	upper := strings.ToUpper(stripped)
	if !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "WITH") {
		return fmt.Errorf("%w: only SELECT/WITH queries are allowed", ErrQueryNotAllowed)
	}
	if match := dangerousKeywordPattern.FindString(stripped); match != "" {
		return fmt.Errorf("%w: disallowed keyword %s", ErrQueryNotAllowed, strings.ToUpper(match))
	}
	return nil
}

// ExecuteQuery runs a read-only query and returns up to MaxQueryRows rows.
func (s *Store) ExecuteQuery(query string) ([]map[string]interface{}, error) {
	if err := ValidateReadOnly(query); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()
	rows, err := s.db.QueryContext(ctx, strings.TrimSpace(query))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	results := []map[string]interface{}{}
	for rows.Next() && len(results) < MaxQueryRows {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			log.WithError(err).Debug("Scan error in ExecuteQuery")
			continue
		}

		row := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		results = append(results, row)
	}
	return results, rows.Err()
}

// GetSchemaDescription returns a human-readable schema description.
func (s *Store) GetSchemaDescription() string {
	return `Table 'records': id (BIGINT), line_no (BIGINT), source (VARCHAR: file/stdin), ` +
		`level (VARCHAR), severity (VARCHAR: TRACE/DEBUG/INFO/WARN/ERROR/FATAL/UNSET), ` +
		`type (VARCHAR), message (VARCHAR), path (VARCHAR), duration_ms (DOUBLE), ` +
		`status_code (INTEGER), operation (VARCHAR), model (VARCHAR), success (BOOLEAN), ` +
		`user_id (VARCHAR), timestamp (VARCHAR, as logged), raw_line (VARCHAR). ` +
		`Views: api_requests (line_no, path, duration_ms, status_code, user_id, timestamp), ` +
		`db_operations (line_no, op_key, duration_ms, success), ` +
		`error_records (line_no, level, type, message, path, timestamp). ` +
		`Absent fields are NULL in records and defaulted in the views.`
}

// TableRowCounts returns the row count of each known table and view.
func (s *Store) TableRowCounts() (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	allowedTables := []string{"records", "api_requests", "db_operations", "error_records"}
	counts := make(map[string]int64, len(allowedTables))
	for _, table := range allowedTables {
		var count int64
		// Table names are constants, not user input.
		err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&count)
		if err != nil {
			return nil, fmt.Errorf("duckdb: count %s: %w", table, err)
		}
		counts[table] = count
	}
	return counts, nil
}

// SeverityCounts returns the number of mirrored records per severity.
func (s *Store) SeverityCounts() (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	rows, err := s.db.QueryContext(ctx, "SELECT severity, COUNT(*) FROM records GROUP BY severity")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var (
			severity string
			n        int64
		)
		if err := rows.Scan(&severity, &n); err != nil {
			return nil, err
		}
		counts[severity] = n
	}
	return counts, rows.Err()
}
