package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/crowdcal/crowdcal/internal/offline"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "run.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := writeConfig(t, `
survey:
  name: CFHTLS
  stage: 2
  database: events.db
subjects:
  detection_threshold: 0.9
engine:
  batch_limit: 500
  end: "2025-04-01T00:00:00Z"
refine:
  mode: both
`)
	f, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if f.Survey.Name != "CFHTLS" || f.Survey.Stage != 2 {
		t.Fatalf("survey section not applied: %+v", f.Survey)
	}
	if f.Subjects.DetectionThreshold != 0.9 {
		t.Fatalf("override not applied: %g", f.Subjects.DetectionThreshold)
	}
	if f.Subjects.Prior != 2e-4 {
		t.Fatalf("untouched field lost its default: %g", f.Subjects.Prior)
	}

	eng := f.ToEngineConfig()
	if eng.BatchLimit != 500 {
		t.Fatalf("engine batch limit = %d", eng.BatchLimit)
	}
	want := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	if !eng.End.Equal(want) {
		t.Fatalf("engine end = %v, want %v", eng.End, want)
	}
	if got := f.ToRefineConfig().Mode; got != offline.ModeBoth {
		t.Fatalf("refine mode = %q", got)
	}

	since := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)
	filter := f.ToFilter(since, "ev-42")
	if filter.Survey != "CFHTLS" || filter.Stage != 2 || !filter.Since.Equal(since) || filter.SinceID != "ev-42" {
		t.Fatalf("filter = %+v", filter)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*File)
		want   string
	}{
		{"inverted pl band", func(f *File) { f.Agents.PLMin = 0.9; f.Agents.PLMax = 0.1 }, "pl band"},
		{"pd band at one", func(f *File) { f.Agents.PDMax = 1.0 }, "pd band"},
		{"negative skepticism", func(f *File) { f.Agents.Skepticism = -1 }, "skepticism"},
		{"prior out of range", func(f *File) { f.Subjects.Prior = 1.5 }, "prior"},
		{"p_min above prior", func(f *File) { f.Subjects.PMin = 0.5 }, "p_min"},
		{"zero trajectories", func(f *File) { f.Subjects.Trajectories = 0 }, "trajectories"},
		{"rejection above detection", func(f *File) { f.Subjects.RejectionThreshold = 0.99 }, "rejection"},
		{"negative batch limit", func(f *File) { f.Engine.BatchLimit = -1 }, "batch limit"},
		{"garbage end", func(f *File) { f.Engine.End = "yesterday" }, "end"},
		{"unknown refine mode", func(f *File) { f.Refine.Mode = "bootstrap" }, "mode"},
		{"inverted iteration bounds", func(f *File) { f.Refine.MaxIterations = 1; f.Refine.MinIterations = 5 }, "iteration bounds"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := Default()
			tc.mutate(&f)
			err := f.Validate()
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestLoadRejectsMissingFileAndBadYAML(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
	path := writeConfig(t, "survey: [unclosed")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for malformed yaml")
	}
}
