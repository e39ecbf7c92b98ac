package registry

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/crowdcal/crowdcal/internal/agent"
	"github.com/crowdcal/crowdcal/internal/domain"
	"github.com/crowdcal/crowdcal/internal/subject"
)

func TestBureauIdempotentCreate(t *testing.T) {
	b := NewBureau(agent.DefaultConfig())

	a1 := b.Member("phil")
	a2 := b.Member("phil")
	if a1 != a2 {
		t.Fatal("second lookup created a duplicate agent")
	}
	if b.Size() != 1 {
		t.Fatalf("size = %d, want 1", b.Size())
	}

	if _, ok := b.Lookup("nobody"); ok {
		t.Fatal("Lookup created an agent")
	}
	if b.Size() != 1 {
		t.Fatal("Lookup mutated the bureau")
	}
}

func TestCollectionIdempotentCreate(t *testing.T) {
	c := NewCollection(subject.DefaultConfig())

	s1, err := c.Member("img-1", "D1", domain.CategoryTest, domain.KindTest)
	if err != nil {
		t.Fatal(err)
	}
	// A repeat sighting with different descriptive fields returns the
	// original subject untouched.
	s2, err := c.Member("img-1", "D2", domain.CategoryTraining, domain.KindSim)
	if err != nil {
		t.Fatal(err)
	}
	if s1 != s2 {
		t.Fatal("second lookup created a duplicate subject")
	}
	if s2.Category != domain.CategoryTest {
		t.Fatal("repeat sighting rewrote the category")
	}

	if _, err := c.Member("img-2", "", domain.CategoryTraining, domain.KindTest); err == nil {
		t.Fatal("inconsistent category/kind accepted")
	}
}

func TestShortlistStride(t *testing.T) {
	b := NewBureau(agent.DefaultConfig())
	for _, name := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		b.Member(name)
	}

	short := b.Shortlist(4)
	if len(short) != 4 {
		t.Fatalf("shortlist length = %d, want 4", len(short))
	}
	if short[0] != "a" || short[1] != "c" {
		t.Fatalf("unexpected stride sample: %v", short)
	}

	if got := b.Shortlist(100); len(got) != 8 {
		t.Fatalf("oversized shortlist returned %d names", len(got))
	}
	if got := b.Shortlist(0); got != nil {
		t.Fatalf("zero shortlist returned %v", got)
	}
}

func TestBureauStatsVectors(t *testing.T) {
	b := NewBureau(agent.DefaultConfig())
	b.Member("a").HeardTraining(domain.LabelLens, domain.LabelLens, true)
	b.Member("z")

	st := b.Stats()
	if len(st.PL) != 2 || len(st.Skill) != 2 {
		t.Fatalf("stats vectors have lengths %d/%d, want 2/2", len(st.PL), len(st.Skill))
	}
	if st.Names[0] != "a" || st.Names[1] != "z" {
		t.Fatalf("stats not in List order: %v", st.Names)
	}
	if st.Training[0] != 1 || st.Training[1] != 0 {
		t.Fatalf("training counts = %v", st.Training)
	}
}

func TestCollectionProbabilitiesByKind(t *testing.T) {
	cfg := subject.DefaultConfig()
	c := NewCollection(cfg)
	c.Member("sim-1", "", domain.CategoryTraining, domain.KindSim)
	c.Member("dud-1", "", domain.CategoryTraining, domain.KindDud)
	c.Member("test-1", "", domain.CategoryTest, domain.KindTest)
	c.Member("test-2", "", domain.CategoryTest, domain.KindTest)

	if got := c.Probabilities(domain.KindTest); len(got) != 2 {
		t.Fatalf("test probabilities = %v, want 2 entries", got)
	}
	if got := c.Probabilities(domain.KindSim); len(got) != 1 || got[0] != cfg.Prior {
		t.Fatalf("sim probabilities = %v", got)
	}
}

func TestSnapshotRoundTripThroughJSON(t *testing.T) {
	acfg := agent.DefaultConfig()
	scfg := subject.DefaultConfig()
	scfg.Deterministic = true

	b := NewBureau(acfg)
	b.Member("vol").HeardTraining(domain.LabelLens, domain.LabelLens, true)

	c := NewCollection(scfg)
	s, err := c.Member("img", "disp", domain.CategoryTest, domain.KindTest)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Observe(b.Member("vol"), domain.LabelLens, time.Now(), nil, subject.ObserveOptions{}); err != nil {
		t.Fatal(err)
	}

	braw, err := json.Marshal(b.TakeSnapshot())
	if err != nil {
		t.Fatal(err)
	}
	craw, err := json.Marshal(c.TakeSnapshot())
	if err != nil {
		t.Fatal(err)
	}

	var bsnap BureauSnapshot
	if err := json.Unmarshal(braw, &bsnap); err != nil {
		t.Fatal(err)
	}
	var csnap CollectionSnapshot
	if err := json.Unmarshal(craw, &csnap); err != nil {
		t.Fatal(err)
	}

	b2 := RestoreBureau(bsnap, acfg)
	c2 := RestoreCollection(csnap, scfg)

	if b2.Member("vol").PL != b.Member("vol").PL {
		t.Fatal("agent PL did not survive the JSON round trip")
	}
	restored, ok := c2.Lookup("img")
	if !ok {
		t.Fatal("subject missing after restore")
	}
	if restored.Mean != s.Mean || restored.Exposure != s.Exposure {
		t.Fatal("subject posterior did not survive the JSON round trip")
	}
}
