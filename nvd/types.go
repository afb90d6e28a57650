package nvd

// Document is a single yearly segment of the NVD 1.1 JSON feed.
type Document struct {
	CVEItems []Item `json:"CVE_Items"`
}

type Item struct {
	CVE            ItemCVE        `json:"cve"`
	Configurations Configurations `json:"configurations"`
	Impact         Impact         `json:"impact"`
	PublishedDate  string         `json:"publishedDate"`
}

type ItemCVE struct {
	Meta        Meta        `json:"CVE_data_meta"`
	Description Description `json:"description"`
}

type Meta struct {
	ID string `json:"ID"`
}

type Description struct {
	Data []LangString `json:"description_data"`
}

type LangString struct {
	Lang  string `json:"lang"`
	Value string `json:"value"`
}

type Configurations struct {
	Nodes []Node `json:"nodes"`
}

type Node struct {
	Operator string     `json:"operator"`
	Children []Node     `json:"children,omitempty"`
	CPEMatch []CPEMatch `json:"cpe_match"`
}

type CPEMatch struct {
	Vulnerable            bool   `json:"vulnerable"`
	CPE23URI              string `json:"cpe23Uri"`
	VersionStartIncluding string `json:"versionStartIncluding,omitempty"`
	VersionStartExcluding string `json:"versionStartExcluding,omitempty"`
	VersionEndIncluding   string `json:"versionEndIncluding,omitempty"`
	VersionEndExcluding   string `json:"versionEndExcluding,omitempty"`
}

// Impact carries the CVSS metrics. Only the presence of the v3 metric matters
// for inclusion; its score is kept for reporting.
type Impact struct {
	BaseMetricV3 *BaseMetricV3 `json:"baseMetricV3,omitempty"`
}

type BaseMetricV3 struct {
	CVSSV3 CVSSV3 `json:"cvssV3"`
}

type CVSSV3 struct {
	BaseScore    float64 `json:"baseScore"`
	BaseSeverity string  `json:"baseSeverity"`
}
