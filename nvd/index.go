package nvd

import (
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Index maps a normalized vendor to the ids of the CVEs with a platform entry
// for that vendor. It is derived from the records and never edited otherwise.
type Index map[string]map[string]struct{}

func (idx Index) Add(vendor, id string) {
	ids, ok := idx[vendor]
	if !ok {
		ids = make(map[string]struct{})
		idx[vendor] = ids
	}
	ids[id] = struct{}{}
}

// IDs returns the sorted ids indexed under vendor.
func (idx Index) IDs(vendor string) []string {
	set, ok := idx[vendor]
	if !ok {
		return nil
	}
	ids := maps.Keys(set)
	slices.Sort(ids)
	return ids
}

// Snapshot is the parsed feed: every included record by id and the reverse
// index over them.
type Snapshot struct {
	CVEs  map[string]*CVE
	Index Index
}

func NewSnapshot() *Snapshot {
	return &Snapshot{
		CVEs:  make(map[string]*CVE),
		Index: make(Index),
	}
}

// Add folds a record into the snapshot when the inclusion policy admits it.
func (s *Snapshot) Add(c *CVE, ignored map[string]struct{}) bool {
	if !c.Include(ignored) {
		return false
	}
	s.CVEs[c.ID] = c
	for _, p := range c.CPEs {
		s.Index.Add(p.VendorNormalized(), c.ID)
	}
	return true
}

// Candidates returns the records indexed under vendor, ordered by id.
func (s *Snapshot) Candidates(vendor string) []*CVE {
	ids := s.Index.IDs(vendor)
	cves := make([]*CVE, 0, len(ids))
	for _, id := range ids {
		cves = append(cves, s.CVEs[id])
	}
	return cves
}

// Matches returns the candidates of vendor applicable to version.
func (s *Snapshot) Matches(vendor, version string) []*CVE {
	var matched []*CVE
	for _, c := range s.Candidates(vendor) {
		if c.Matches(vendor, version) {
			matched = append(matched, c)
		}
	}
	return matched
}
