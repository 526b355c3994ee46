// Package migrate brings the mirror schema up to the version embedded in
// the binary. Applied steps are recorded with a checksum so a database file
// reused across runs is never silently mixed with an edited schema.
package migrate

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
)

//go:embed migrations/*.sql
var files embed.FS

// LedgerTable records every applied step.
const LedgerTable = "loglens_schema"

// ErrModified is returned when an applied step no longer matches the
// embedded file of the same version.
var ErrModified = errors.New("applied schema step was modified")

// Step is one embedded schema change, named NNN_description.sql.
type Step struct {
	Version  int
	File     string
	Checksum string
	body     string
}

var loadSteps = sync.OnceValues(readSteps)

func readSteps() ([]Step, error) {
	entries, err := files.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("migrate: read embedded steps: %w", err)
	}

	byVersion := make(map[int]Step, len(entries))
	for _, e := range entries {
		if e.IsDir() || path.Ext(e.Name()) != ".sql" {
			continue
		}
		version, ok, err := versionOf(e.Name())
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if prev, dup := byVersion[version]; dup {
			return nil, fmt.Errorf("migrate: version %d used by %s and %s", version, prev.File, e.Name())
		}
		body, err := files.ReadFile(path.Join("migrations", e.Name()))
		if err != nil {
			return nil, fmt.Errorf("migrate: read %s: %w", e.Name(), err)
		}
		sum := sha256.Sum256(body)
		byVersion[version] = Step{
			Version:  version,
			File:     e.Name(),
			Checksum: hex.EncodeToString(sum[:]),
			body:     string(body),
		}
	}

	steps := make([]Step, 0, len(byVersion))
	for _, s := range byVersion {
		steps = append(steps, s)
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].Version < steps[j].Version })
	return steps, nil
}

// versionOf reports the numeric prefix of name. Files without an
// underscore are not steps.
func versionOf(name string) (int, bool, error) {
	prefix, _, found := strings.Cut(name, "_")
	if !found {
		return 0, false, nil
	}
	v, err := strconv.Atoi(prefix)
	if err != nil || v <= 0 {
		return 0, false, fmt.Errorf("migrate: %s: version prefix %q is not a positive integer", name, prefix)
	}
	return v, true, nil
}

// Steps returns the embedded steps in version order.
func Steps() ([]Step, error) {
	steps, err := loadSteps()
	if err != nil {
		return nil, err
	}
	return append([]Step(nil), steps...), nil
}

// Latest returns the highest embedded version, 0 when there is none.
func Latest() (int, error) {
	steps, err := loadSteps()
	if err != nil || len(steps) == 0 {
		return 0, err
	}
	return steps[len(steps)-1].Version, nil
}

// Runner applies embedded steps to one database.
type Runner struct{ db *sql.DB }

// NewRunner returns a Runner for db.
func NewRunner(db *sql.DB) *Runner {
	return &Runner{db: db}
}

// applied maps version to recorded checksum.
func (r *Runner) applied(ctx context.Context) (map[int]string, error) {
	if _, err := r.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+LedgerTable+` (
		version    INTEGER PRIMARY KEY,
		file       VARCHAR NOT NULL,
		checksum   VARCHAR NOT NULL,
		applied_at TIMESTAMP DEFAULT current_timestamp
	)`); err != nil {
		return nil, fmt.Errorf("migrate: create ledger: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `SELECT version, checksum FROM `+LedgerTable)
	if err != nil {
		return nil, fmt.Errorf("migrate: read ledger: %w", err)
	}
	defer rows.Close()

	done := make(map[int]string)
	for rows.Next() {
		var (
			v   int
			sum string
		)
		if err := rows.Scan(&v, &sum); err != nil {
			return nil, fmt.Errorf("migrate: scan ledger: %w", err)
		}
		done[v] = sum
	}
	return done, rows.Err()
}

// plan returns the steps still to apply, checking the applied ones
// against their embedded checksum.
func (r *Runner) plan(ctx context.Context) (pending []Step, current int, err error) {
	steps, err := loadSteps()
	if err != nil {
		return nil, 0, err
	}
	done, err := r.applied(ctx)
	if err != nil {
		return nil, 0, err
	}
	for _, s := range steps {
		sum, ok := done[s.Version]
		if !ok {
			pending = append(pending, s)
			continue
		}
		if sum != s.Checksum {
			return nil, 0, fmt.Errorf("%w: %s", ErrModified, s.File)
		}
		current = s.Version
	}
	return pending, current, nil
}

// Run applies every pending step in version order, one transaction each.
func (r *Runner) Run(ctx context.Context) error {
	pending, _, err := r.plan(ctx)
	if err != nil {
		return err
	}
	for _, s := range pending {
		if err := r.apply(ctx, s); err != nil {
			return err
		}
		log.WithFields(log.Fields{"version": s.Version, "file": s.File}).Debug("Schema step applied")
	}
	return nil
}

func (r *Runner) apply(ctx context.Context, s Step) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("migrate: begin %s: %w", s.File, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, s.body); err != nil {
		return fmt.Errorf("migrate: apply %s: %w", s.File, err)
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO `+LedgerTable+` (version, file, checksum) VALUES (?, ?, ?)`,
		s.Version, s.File, s.Checksum); err != nil {
		return fmt.Errorf("migrate: record %s: %w", s.File, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("migrate: commit %s: %w", s.File, err)
	}
	return nil
}

// Status reports the highest applied version and how many steps remain.
func (r *Runner) Status(ctx context.Context) (current, pending int, err error) {
	steps, current, err := r.plan(ctx)
	if err != nil {
		return 0, 0, err
	}
	return current, len(steps), nil
}
