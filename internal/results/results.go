// Package results owns the on-disk layout of one bench run: the
// timestamped run folder, screenshot and failure subfolders, and the
// append-only execution log.
package results

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	executionLogName = "execution_log_file.txt"
	imageDirName     = "IMAGE_RESULTS"
	failureDirName   = "TEST_FAILURE"
)

// Result naming is shared with years of archived runs; the layouts are
// load-bearing for downstream tooling that globs them.
const (
	runSuffixLayout = "_02_Jan_2006_150405"
	stampLayout     = "[02:Jan:2006:15:04:05]"
	imageTimeLayout = "150405"
)

// Workspace is one run folder. Log appends are serialized; everything
// else is single-owner.
type Workspace struct {
	runDir string
	now    func() time.Time

	mu sync.Mutex
}

// CreateRun makes a fresh run folder next to base, suffixed with the
// current timestamp. An already existing folder is an error: runs never
// share or overwrite results.
func CreateRun(base string) (*Workspace, error) {
	return CreateRunAt(base, time.Now)
}

func CreateRunAt(base string, now func() time.Time) (*Workspace, error) {
	if base == "" {
		return nil, fmt.Errorf("results: base path is required")
	}
	dir := base + now().Format(runSuffixLayout)
	if parent := filepath.Dir(dir); parent != "." {
		if err := os.MkdirAll(parent, 0o755); err != nil {
			return nil, fmt.Errorf("results: create parent: %w", err)
		}
	}
	if err := os.Mkdir(dir, 0o755); err != nil {
		return nil, fmt.Errorf("results: create run folder: %w", err)
	}
	return &Workspace{runDir: dir, now: now}, nil
}

// Open attaches to an existing run folder, for tools that post-process
// a finished run.
func Open(dir string) (*Workspace, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("results: open run folder: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("results: %s is not a folder", dir)
	}
	return &Workspace{runDir: dir, now: time.Now}, nil
}

func (w *Workspace) Dir() string {
	return w.runDir
}

func (w *Workspace) LogPath() string {
	return filepath.Join(w.runDir, executionLogName)
}

// ImageDir creates (once) and returns the screenshot folder.
func (w *Workspace) ImageDir() (string, error) {
	return w.subdir(imageDirName)
}

// FailureDir creates (once) and returns the failure-evidence folder.
func (w *Workspace) FailureDir() (string, error) {
	return w.subdir(failureDirName)
}

func (w *Workspace) subdir(name string) (string, error) {
	dir := filepath.Join(w.runDir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("results: create %s: %w", name, err)
	}
	return dir, nil
}

// Log appends one stamped line to the execution log. The CRLF ending
// matches the archive format consumed on non-unix workstations.
func (w *Workspace) Log(message string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := os.OpenFile(w.LogPath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("results: open execution log: %w", err)
	}
	defer f.Close()

	line := w.now().Format(stampLayout) + " " + message + "\r\n"
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("results: append execution log: %w", err)
	}
	return nil
}

// ImageName is the conventional screenshot basename, without extension.
func ImageName(t time.Time) string {
	return "IMAGE_" + t.Format(imageTimeLayout)
}

// FailureImageName is the conventional failure-screenshot basename.
func FailureImageName(t time.Time) string {
	return "TEST_FAILURE_" + t.Format(imageTimeLayout)
}
