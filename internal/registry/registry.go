// Package registry owns the keyed containers for agents and subjects:
// the Bureau of classification agents and the Collection of labeled
// subjects. Lookups are idempotent lazy creations, so exactly one agent
// per volunteer identity and one subject per item identity ever exist.
package registry

import (
	"sort"

	"github.com/crowdcal/crowdcal/internal/agent"
	"github.com/crowdcal/crowdcal/internal/domain"
	"github.com/crowdcal/crowdcal/internal/subject"
)

// #region bureau

// Bureau is the registry of all agents, keyed by volunteer identity.
type Bureau struct {
	cfg     agent.Config
	members map[string]*agent.Agent
}

// NewBureau creates an empty bureau whose members share cfg.
func NewBureau(cfg agent.Config) *Bureau {
	return &Bureau{cfg: cfg, members: make(map[string]*agent.Agent)}
}

// Member returns the agent for name, creating it on first sighting.
func (b *Bureau) Member(name string) *agent.Agent {
	if a, ok := b.members[name]; ok {
		return a
	}
	a := agent.New(name, b.cfg)
	b.members[name] = a
	return a
}

// Lookup returns the agent for name without creating it.
func (b *Bureau) Lookup(name string) (*agent.Agent, bool) {
	a, ok := b.members[name]
	return a, ok
}

// Size returns the number of agents.
func (b *Bureau) Size() int {
	return len(b.members)
}

// List returns all member names, sorted for stable iteration.
func (b *Bureau) List() []string {
	names := make([]string, 0, len(b.members))
	for name := range b.members {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Shortlist returns up to n member names sampled at regular intervals,
// for reporting on a manageable subset of a large crowd.
func (b *Bureau) Shortlist(n int) []string {
	all := b.List()
	if n <= 0 || len(all) == 0 {
		return nil
	}
	if n >= len(all) {
		return all
	}
	stride := len(all) / n
	out := make([]string, 0, n)
	for i := 0; i < len(all) && len(out) < n; i += stride {
		out = append(out, all[i])
	}
	return out
}

// #endregion bureau

// #region bureau-stats

// BureauStats are the per-agent vectors read by report collaborators.
type BureauStats struct {
	Names    []string
	PL       []float64
	PD       []float64
	Skill    []float64
	Training []int
	Total    []int
}

// Stats collects the confusion-matrix and skill vectors across all
// members, in List order.
func (b *Bureau) Stats() BureauStats {
	names := b.List()
	st := BureauStats{
		Names:    names,
		PL:       make([]float64, len(names)),
		PD:       make([]float64, len(names)),
		Skill:    make([]float64, len(names)),
		Training: make([]int, len(names)),
		Total:    make([]int, len(names)),
	}
	for i, name := range names {
		a := b.members[name]
		st.PL[i] = a.PL
		st.PD[i] = a.PD
		st.Skill[i] = a.Skill
		st.Training[i] = a.NT
		st.Total[i] = a.N
	}
	return st
}

// #endregion bureau-stats

// #region bureau-snapshot

// BureauSnapshot is the serializable form of a bureau.
type BureauSnapshot struct {
	Agents []agent.Snapshot `json:"agents"`
}

// TakeSnapshot captures all members in List order.
func (b *Bureau) TakeSnapshot() BureauSnapshot {
	snap := BureauSnapshot{Agents: make([]agent.Snapshot, 0, len(b.members))}
	for _, name := range b.List() {
		snap.Agents = append(snap.Agents, b.members[name].TakeSnapshot())
	}
	return snap
}

// RestoreBureau rebuilds a bureau from a snapshot under cfg.
func RestoreBureau(snap BureauSnapshot, cfg agent.Config) *Bureau {
	b := NewBureau(cfg)
	for _, as := range snap.Agents {
		b.members[as.Name] = agent.FromSnapshot(as, cfg)
	}
	return b
}

// #endregion bureau-snapshot

// #region collection

// Collection is the registry of all subjects, keyed by item identity.
type Collection struct {
	cfg     subject.Config
	members map[string]*subject.Subject
}

// NewCollection creates an empty collection whose members share cfg.
func NewCollection(cfg subject.Config) *Collection {
	return &Collection{cfg: cfg, members: make(map[string]*subject.Subject)}
}

// Member returns the subject for id, creating it on first sighting. The
// descriptive fields are only consulted at creation; later calls with a
// different category or kind return the original subject untouched.
func (c *Collection) Member(id, displayID string, category domain.Category, kind domain.Kind) (*subject.Subject, error) {
	if s, ok := c.members[id]; ok {
		return s, nil
	}
	s, err := subject.New(id, displayID, category, kind, c.cfg)
	if err != nil {
		return nil, err
	}
	c.members[id] = s
	return s, nil
}

// Lookup returns the subject for id without creating it.
func (c *Collection) Lookup(id string) (*subject.Subject, bool) {
	s, ok := c.members[id]
	return s, ok
}

// Size returns the number of subjects.
func (c *Collection) Size() int {
	return len(c.members)
}

// List returns all member ids, sorted for stable iteration.
func (c *Collection) List() []string {
	ids := make([]string, 0, len(c.members))
	for id := range c.members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Shortlist returns up to n subject ids sampled at regular intervals.
func (c *Collection) Shortlist(n int) []string {
	all := c.List()
	if n <= 0 || len(all) == 0 {
		return nil
	}
	if n >= len(all) {
		return all
	}
	stride := len(all) / n
	out := make([]string, 0, n)
	for i := 0; i < len(all) && len(out) < n; i += stride {
		out = append(out, all[i])
	}
	return out
}

// Probabilities returns the mean posterior of every member of the given
// kind, in List order.
func (c *Collection) Probabilities(kind domain.Kind) []float64 {
	var out []float64
	for _, id := range c.List() {
		if s := c.members[id]; s.Kind == kind {
			out = append(out, s.Mean)
		}
	}
	return out
}

// StatusCounts tallies members by decision status.
func (c *Collection) StatusCounts() map[domain.Status]int {
	counts := make(map[domain.Status]int)
	for _, s := range c.members {
		counts[s.Status]++
	}
	return counts
}

// #endregion collection

// #region collection-snapshot

// CollectionSnapshot is the serializable form of a collection.
type CollectionSnapshot struct {
	Subjects []subject.Snapshot `json:"subjects"`
}

// TakeSnapshot captures all members in List order.
func (c *Collection) TakeSnapshot() CollectionSnapshot {
	snap := CollectionSnapshot{Subjects: make([]subject.Snapshot, 0, len(c.members))}
	for _, id := range c.List() {
		snap.Subjects = append(snap.Subjects, c.members[id].TakeSnapshot())
	}
	return snap
}

// RestoreCollection rebuilds a collection from a snapshot under cfg.
func RestoreCollection(snap CollectionSnapshot, cfg subject.Config) *Collection {
	c := NewCollection(cfg)
	for _, ss := range snap.Subjects {
		c.members[ss.ID] = subject.FromSnapshot(ss, cfg)
	}
	return c
}

// #endregion collection-snapshot
