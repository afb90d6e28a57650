package nvd

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/quay/claircore/toolkit/types/cpe"
	"golang.org/x/xerrors"

	"github.com/aquasecurity/dependency-check/version"
)

// "cpe", "2.3" and the eleven WFN attributes
const maxSegments = 13

// CPE is a single platform entry of a CVE, or the identifier of a dependency.
type CPE struct {
	Part    string        `json:"part"`
	Vendor  string        `json:"vendor"`
	Product string        `json:"product"`
	Version string        `json:"version,omitempty"`
	Range   version.Range `json:"range"`
}

// ParseCPE parses a CPE 2.3 formatted string (or a 2.2 URI). Trailing
// attributes may be omitted. A concrete version becomes the exact version of
// the range.
func ParseCPE(s string) (CPE, error) {
	if segments(s) > maxSegments {
		return CPE{}, &InvalidCPEError{CPE: s, Err: xerrors.New("too many components")}
	}
	w, err := cpe.Unbind(s)
	if err != nil {
		return CPE{}, &InvalidCPEError{CPE: s, Err: err}
	}

	c := CPE{
		Part:    value(w.Attr[cpe.Part]),
		Vendor:  value(w.Attr[cpe.Vendor]),
		Product: value(w.Attr[cpe.Product]),
	}
	if w.Attr[cpe.Version].Kind == cpe.ValueSet {
		c.Version = value(w.Attr[cpe.Version])
		c.Range.Exact = c.Version
	}
	return c, nil
}

// VendorNormalized is the key CVEs are indexed by: the vendor lower-cased,
// with runs of '-', '_' and whitespace replaced by a single '_'.
func (c CPE) VendorNormalized() string {
	return NormalizeVendor(c.Vendor)
}

func (c CPE) String() string {
	v := c.Version
	if v == "" {
		v = "*"
	}
	return fmt.Sprintf("cpe:2.3:%s:%s:%s:%s", c.Part, c.Vendor, c.Product, v)
}

func NormalizeVendor(vendor string) string {
	fields := strings.FieldsFunc(strings.ToLower(vendor), func(r rune) bool {
		return r == '-' || r == '_' || unicode.IsSpace(r)
	})
	return strings.Join(fields, "_")
}

func value(v cpe.Value) string {
	switch v.Kind {
	case cpe.ValueSet:
		// the WFN keeps punctuation quoted, e.g. 1\.5\.0
		return strings.ReplaceAll(v.V, `\`, "")
	case cpe.ValueAny:
		return "*"
	case cpe.ValueNA:
		return "-"
	}
	return ""
}

// segments counts the unescaped colon separated components of s.
func segments(s string) int {
	n, esc := 1, false
	for _, r := range s {
		switch {
		case esc:
			esc = false
		case r == '\\':
			esc = true
		case r == ':':
			n++
		}
	}
	return n
}
