package nvd

import (
	"time"

	"github.com/araddon/dateparse"
	"github.com/samber/lo"
)

// CVE is a vulnerability record built from a feed item. It is not modified
// once built.
type CVE struct {
	ID          string    `json:"id"`
	CPEs        []CPE     `json:"cpes"`
	Description string    `json:"description,omitempty"`
	Score       float64   `json:"score,omitempty"`
	Severity    string    `json:"severity,omitempty"`
	Published   time.Time `json:"published"`

	v3 bool
}

// NewCVE builds a record from a feed item. Only vulnerable platform entries
// are kept, nested configuration nodes included. When tracked is not empty,
// entries whose normalized vendor is not in it are dropped as well.
// Unparsable CPEs are skipped.
func NewCVE(item Item, tracked map[string]struct{}) *CVE {
	c := &CVE{
		ID: item.CVE.Meta.ID,
		v3: item.Impact.BaseMetricV3 != nil,
	}
	if item.Impact.BaseMetricV3 != nil {
		c.Score = item.Impact.BaseMetricV3.CVSSV3.BaseScore
		c.Severity = item.Impact.BaseMetricV3.CVSSV3.BaseSeverity
	}
	if d, ok := lo.Find(item.CVE.Description.Data, func(d LangString) bool {
		return d.Lang == "en"
	}); ok {
		c.Description = d.Value
	}
	if item.PublishedDate != "" {
		if t, err := dateparse.ParseAny(item.PublishedDate); err == nil {
			c.Published = t.UTC()
		}
	}

	var walk func(nodes []Node)
	walk = func(nodes []Node) {
		for _, node := range nodes {
			for _, m := range node.CPEMatch {
				if !m.Vulnerable {
					continue
				}
				p, err := ParseCPE(m.CPE23URI)
				if err != nil {
					continue
				}
				if len(tracked) > 0 {
					if _, ok := tracked[p.VendorNormalized()]; !ok {
						continue
					}
				}
				p.Range.StartIncluding = m.VersionStartIncluding
				p.Range.StartExcluding = m.VersionStartExcluding
				p.Range.EndIncluding = m.VersionEndIncluding
				p.Range.EndExcluding = m.VersionEndExcluding
				c.CPEs = append(c.CPEs, p)
			}
			walk(node.Children)
		}
	}
	walk(item.Configurations.Nodes)
	return c
}

// IsV3 reports whether the item carried a CVSS v3 base metric.
func (c *CVE) IsV3() bool {
	return c.v3
}

// Include is the inclusion policy: the record has platform entries, is a v3
// record and is not ignored.
func (c *CVE) Include(ignored map[string]struct{}) bool {
	if _, ok := ignored[c.ID]; ok {
		return false
	}
	return len(c.CPEs) > 0 && c.IsV3()
}

// Matches reports whether any platform entry of the vendor matches version.
func (c *CVE) Matches(vendor, version string) bool {
	return lo.ContainsBy(c.CPEs, func(p CPE) bool {
		return p.VendorNormalized() == vendor && p.Range.Matches(version)
	})
}
