package report

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/tinytelemetry/loglens/internal/model"
)

const (
	filePrefix     = "log_analysis_report_"
	fileTimeLayout = "20060102_150405"
)

// Writer persists reports into a directory, one file per run.
type Writer struct {
	Dir    string
	Format Format
	// KeepLast prunes older reports after each write. Zero keeps everything.
	KeepLast int
}

// FileName returns the report file name for a run completed at t (local time).
func FileName(t time.Time, f Format) string {
	return filePrefix + t.Local().Format(fileTimeLayout) + "." + f.Ext()
}

// Write encodes r into a new file named after completed and returns its path.
// The file is written to a temporary name and renamed into place, so readers
// never observe a partial report. An existing report is never overwritten.
func (w *Writer) Write(r *model.AnalysisReport, completed time.Time) (string, error) {
	dir := w.Dir
	if strings.TrimSpace(dir) == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("report: create dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".loglens-report-*.tmp")
	if err != nil {
		return "", fmt.Errorf("report: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := Encode(tmp, r, w.Format); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("report: close temp file: %w", err)
	}

	dst, err := uniquePath(dir, FileName(completed, w.Format))
	if err != nil {
		return "", err
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		return "", fmt.Errorf("report: rename: %w", err)
	}

	if err := Prune(dir, w.KeepLast); err != nil {
		// the report itself is already in place
		log.WithError(err).Warn("Failed to prune old reports")
	}
	return dst, nil
}

func uniquePath(dir, name string) (string, error) {
	candidate := filepath.Join(dir, name)
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for i := 1; ; i++ {
		_, err := os.Stat(candidate)
		if errors.Is(err, os.ErrNotExist) {
			return candidate, nil
		}
		if err != nil {
			return "", fmt.Errorf("report: stat %s: %w", candidate, err)
		}
		candidate = filepath.Join(dir, fmt.Sprintf("%s_%d%s", base, i, ext))
	}
}

// reportNamePattern matches names produced by FileName and uniquePath:
// the timestamp, an optional collision suffix, and the format extension.
var reportNamePattern = regexp.MustCompile(`^` + filePrefix + `(\d{8}_\d{6})(?:_(\d+))?\.(?:json|yaml)$`)

type reportFile struct {
	path  string
	stamp string
	seq   int
}

// List returns the report files in dir, newest first. Files that merely share
// the prefix are not reports and are left out.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var files []reportFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := reportNamePattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		f := reportFile{path: filepath.Join(dir, e.Name()), stamp: m[1]}
		if m[2] != "" {
			seq, err := strconv.Atoi(m[2])
			if err != nil {
				continue
			}
			f.seq = seq
		}
		files = append(files, f)
	}
	sort.Slice(files, func(i, j int) bool {
		// the stamp layout sorts lexically in time order
		if files[i].stamp != files[j].stamp {
			return files[i].stamp > files[j].stamp
		}
		if files[i].seq != files[j].seq {
			return files[i].seq > files[j].seq
		}
		return files[i].path > files[j].path
	})

	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.path
	}
	return out, nil
}

// Prune deletes all but the keepLast newest reports in dir. keepLast <= 0 is a no-op.
func Prune(dir string, keepLast int) error {
	if keepLast <= 0 {
		return nil
	}
	reports, err := List(dir)
	if err != nil {
		return err
	}
	if len(reports) <= keepLast {
		return nil
	}
	for _, oldPath := range reports[keepLast:] {
		if err := os.Remove(oldPath); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}
