package results

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dutlab/dutctl/internal/testutil/testlog"
)

func frozenClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestCreateRunFolderNaming(t *testing.T) {
	testlog.Start(t)
	base := filepath.Join(t.TempDir(), "results", "smoke")

	at := time.Date(2026, time.March, 7, 14, 22, 33, 0, time.UTC)
	w, err := CreateRunAt(base, frozenClock(at))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := base + "_07_Mar_2026_142233"
	if w.Dir() != want {
		t.Fatalf("run folder mismatch\nwant: %s\ngot:  %s", want, w.Dir())
	}
	if info, err := os.Stat(w.Dir()); err != nil || !info.IsDir() {
		t.Fatalf("run folder not created: %v", err)
	}
}

func TestCreateRunRefusesCollision(t *testing.T) {
	testlog.Start(t)
	base := filepath.Join(t.TempDir(), "run")
	clock := frozenClock(time.Date(2026, time.March, 7, 14, 22, 33, 0, time.UTC))

	if _, err := CreateRunAt(base, clock); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := CreateRunAt(base, clock); err == nil {
		t.Fatalf("expected collision error for identical run folder")
	}
}

func TestLogAppendsStampedCRLFLines(t *testing.T) {
	testlog.Start(t)
	base := filepath.Join(t.TempDir(), "run")

	at := time.Date(2026, time.March, 7, 14, 22, 33, 0, time.UTC)
	w, err := CreateRunAt(base, frozenClock(at))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := w.Log("test started"); err != nil {
		t.Fatalf("unexpected log error: %v", err)
	}
	if err := w.Log("pressed KEYCODE_HOME"); err != nil {
		t.Fatalf("unexpected log error: %v", err)
	}

	data, err := os.ReadFile(w.LogPath())
	if err != nil {
		t.Fatalf("reading execution log: %v", err)
	}
	want := "[07:Mar:2026:14:22:33] test started\r\n" +
		"[07:Mar:2026:14:22:33] pressed KEYCODE_HOME\r\n"
	if string(data) != want {
		t.Fatalf("execution log mismatch\nwant: %q\ngot:  %q", want, string(data))
	}
	if filepath.Base(w.LogPath()) != "execution_log_file.txt" {
		t.Fatalf("unexpected log name %s", w.LogPath())
	}
}

func TestSubfoldersCreatedOnDemand(t *testing.T) {
	testlog.Start(t)
	base := filepath.Join(t.TempDir(), "run")

	w, err := CreateRunAt(base, frozenClock(time.Date(2026, time.March, 7, 14, 22, 33, 0, time.UTC)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	img, err := w.ImageDir()
	if err != nil {
		t.Fatalf("unexpected image dir error: %v", err)
	}
	if !strings.HasSuffix(img, "IMAGE_RESULTS") {
		t.Fatalf("unexpected image dir %s", img)
	}

	fail, err := w.FailureDir()
	if err != nil {
		t.Fatalf("unexpected failure dir error: %v", err)
	}
	if !strings.HasSuffix(fail, "TEST_FAILURE") {
		t.Fatalf("unexpected failure dir %s", fail)
	}

	// Second call is a no-op, not an error.
	if _, err := w.FailureDir(); err != nil {
		t.Fatalf("failure dir must be reusable: %v", err)
	}
}

func TestImageNames(t *testing.T) {
	testlog.Start(t)

	at := time.Date(2026, time.March, 7, 14, 22, 33, 0, time.UTC)
	if got := ImageName(at); got != "IMAGE_142233" {
		t.Fatalf("unexpected image name %s", got)
	}
	if got := FailureImageName(at); got != "TEST_FAILURE_142233" {
		t.Fatalf("unexpected failure image name %s", got)
	}
}
