package replay

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// buildFixture constructs the canonical smoke fixture in code: ten
// volunteers train up, then vote one test subject to detection and
// another to rejection.
func buildFixture() *Fixture {
	f := &Fixture{
		Description: "two-subject consensus",
		Config: FixtureConfig{
			Engine: FixtureEngineConfig{Learning: true, Seed: 42},
		},
	}

	at := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	push := func(agent, subject, category, kind, said, truth string) {
		at = at.Add(time.Second)
		f.Events = append(f.Events, FixtureEvent{
			ID:        subject + "/" + agent + "/" + at.Format("150405"),
			At:        at,
			AgentName: agent,
			SubjectID: subject,
			Category:  category,
			Kind:      kind,
			Said:      said,
			Truth:     truth,
		})
	}

	names := []string{"ada", "bea", "cyd", "dee", "eli", "fay", "gus", "hal", "ivy", "joy"}
	for _, name := range names {
		for r := 0; r < 8; r++ {
			push(name, "sim-1", "training", "sim", "LENS", "LENS")
			push(name, "dud-1", "training", "dud", "NOT", "NOT")
		}
	}
	for _, name := range names {
		push(name, "wild-yes", "test", "test", "LENS", "")
		push(name, "wild-no", "test", "test", "NOT", "")
	}

	f.Expected = []FixtureExpectation{
		{SubjectID: "wild-yes", Status: "detected", State: "active"},
		{SubjectID: "wild-no", Status: "rejected", State: "inactive"},
	}
	return f
}

func TestReplayMatchesExpectations(t *testing.T) {
	sum, err := Replay(buildFixture())
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if sum.Mismatches != 0 {
		t.Fatalf("mismatches: %+v", sum.Results)
	}
	if sum.Processed != sum.Seen || sum.Skipped != 0 {
		t.Fatalf("unexpected accounting: %+v", sum)
	}
	if got := len(sum.Results); got != 2 {
		t.Fatalf("expected 2 results, got %d", got)
	}
	if sum.Bureau.Size() != 10 || sum.Sample.Size() != 4 {
		t.Fatalf("registries: %d agents, %d subjects", sum.Bureau.Size(), sum.Sample.Size())
	}
}

func TestReplayReportsMismatch(t *testing.T) {
	f := buildFixture()
	f.Expected = append(f.Expected, FixtureExpectation{SubjectID: "wild-yes", Status: "rejected"})
	f.Expected = append(f.Expected, FixtureExpectation{SubjectID: "missing", Status: "detected"})

	sum, err := Replay(f)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if sum.Mismatches != 2 {
		t.Fatalf("expected 2 mismatches, got %d: %+v", sum.Mismatches, sum.Results)
	}
	for _, res := range sum.Results[:2] {
		if !res.Match {
			t.Fatalf("original expectations must still hold: %+v", res)
		}
	}
}

func TestReplayIsDeterministicAcrossRuns(t *testing.T) {
	first, err := Replay(buildFixture())
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	second, err := Replay(buildFixture())
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}

	for _, id := range first.Sample.List() {
		a, _ := first.Sample.Lookup(id)
		b, ok := second.Sample.Lookup(id)
		if !ok {
			t.Fatalf("subject %s missing in second run", id)
		}
		if a.Mean != b.Mean || a.Status != b.Status {
			t.Fatalf("subject %s diverged: %v/%v vs %v/%v", id, a.Mean, a.Status, b.Mean, b.Status)
		}
	}
}

func TestLoadFixtureRoundTrip(t *testing.T) {
	body := `{
  "description": "one vote",
  "config": {"engine": {"learning": true}},
  "events": [
    {"id": "e1", "at": "2025-03-01T09:00:00Z", "agent": "ada", "subject": "sim-1",
     "category": "training", "kind": "sim", "said": "LENS", "truth": "LENS"}
  ],
  "expected": [{"subject": "sim-1", "status": "undecided"}]
}`
	path := filepath.Join(t.TempDir(), "fixture.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	f, err := LoadFixture(path)
	if err != nil {
		t.Fatalf("LoadFixture: %v", err)
	}
	if f.Description != "one vote" || len(f.Events) != 1 {
		t.Fatalf("fixture lost content: %+v", f)
	}

	sum, err := Replay(f)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if sum.Mismatches != 0 {
		t.Fatalf("mismatches: %+v", sum.Results)
	}
}

func TestLoadFixtureErrors(t *testing.T) {
	if _, err := LoadFixture(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.json")
	os.WriteFile(path, []byte("{not json"), 0o644)
	if _, err := LoadFixture(path); err == nil {
		t.Fatal("expected error for malformed fixture")
	}
}

func TestReplayRejectsBadEvent(t *testing.T) {
	f := buildFixture()
	f.Events[0].Said = "MAYBE"
	if _, err := Replay(f); err == nil {
		t.Fatal("expected error for unparseable label")
	}
}
