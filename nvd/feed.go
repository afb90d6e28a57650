package nvd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/klauspost/compress/gzip"
	"github.com/samber/lo"
	"github.com/spf13/afero"
	"golang.org/x/exp/slices"
	"golang.org/x/xerrors"

	"github.com/aquasecurity/dependency-check/concurrent"
	"github.com/aquasecurity/dependency-check/config"
	"github.com/aquasecurity/dependency-check/memo"
	"github.com/aquasecurity/dependency-check/utils"
)

const (
	NistURLTemplate = "https://nvd.nist.gov/feeds/json/cve/1.1/nvdcve-1.1-{year}.json.gz"
	ScanFromYear    = 2018
	retry           = 5
)

// Tracked is anything carrying a CPE and a resolved version, typically a
// dependency.
type Tracked interface {
	CPE() string
	Version() string
}

// Fetcher returns the raw (compressed) content of a feed segment.
type Fetcher func(ctx context.Context, url string) ([]byte, error)

// Segment is one parsed yearly feed file.
type Segment struct {
	URL   string
	Items []Item
}

type options struct {
	configPath       string
	fs               afero.Fs
	fetch            Fetcher
	now              func() time.Time
	apiKey           string
	retry            int
	limit            int
	defaultStartYear int
}

type Option func(*options)

func WithConfigPath(path string) Option {
	return func(opts *options) {
		opts.configPath = path
	}
}

func WithFs(fs afero.Fs) Option {
	return func(opts *options) {
		opts.fs = fs
	}
}

// WithDefaultStartYear sets the year scanned from when the config has no
// start_year. Zero leaves it unset, and such a config is then rejected.
func WithDefaultStartYear(year int) Option {
	return func(opts *options) {
		opts.defaultStartYear = year
	}
}

func WithFetcher(fetch Fetcher) Option {
	return func(opts *options) {
		opts.fetch = fetch
	}
}

func WithClock(now func() time.Time) Option {
	return func(opts *options) {
		opts.now = now
	}
}

func WithAPIKey(apiKey string) Option {
	return func(opts *options) {
		opts.apiKey = apiKey
	}
}

func WithRetry(n int) Option {
	return func(opts *options) {
		opts.retry = n
	}
}

// WithLimit bounds the number of concurrent downloads.
func WithLimit(n int) Option {
	return func(opts *options) {
		opts.limit = n
	}
}

var (
	configProperty = memo.NewProperty("config", "CVE scan configuration",
		func(ctx context.Context, f *Feed) (config.CVE, error) {
			return f.loadConfig(ctx)
		}, memo.Cached())

	dataProperty = memo.NewProperty("data", "Parsed CVE records and their vendor index",
		func(ctx context.Context, f *Feed) (*Snapshot, error) {
			return f.loadData(ctx)
		}, memo.Cached())

	downloadsSequence = memo.NewSequence("downloads", "Feed segments in the order they complete",
		func(ctx context.Context, f *Feed) iter.Seq2[Segment, error] {
			return f.downloadAll(ctx)
		})
)

// Feed downloads the yearly NVD feed segments and indexes the CVEs that
// apply to the tracked vendors. The parsed data is computed once per Feed.
type Feed struct {
	memo.Cache
	*options

	tracked   map[string]struct{}
	startYear *memo.Property[*Feed, int]
}

func NewFeed(tracked []Tracked, opts ...Option) *Feed {
	o := &options{
		fs:               afero.NewOsFs(),
		now:              time.Now,
		apiKey:           utils.LookupEnv("NVD_API_KEY", ""),
		retry:            retry,
		defaultStartYear: ScanFromYear,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.fetch == nil {
		o.fetch = defaultFetcher(o.apiKey, o.retry)
	}

	startYear := memo.Abstract[*Feed, int]("start_year", "First year of the feed to scan")
	if o.defaultStartYear != 0 {
		year := o.defaultStartYear
		startYear = startYear.Implement(func(context.Context, *Feed) (int, error) {
			return year, nil
		})
	}

	vendors := make(map[string]struct{})
	for _, t := range tracked {
		c, err := ParseCPE(t.CPE())
		if err != nil {
			continue
		}
		vendors[c.VendorNormalized()] = struct{}{}
	}

	return &Feed{
		options:   o,
		tracked:   vendors,
		startYear: startYear,
	}
}

func (f *Feed) Config(ctx context.Context) (config.CVE, error) {
	return configProperty.Get(ctx, f)
}

// Data downloads and parses every segment on first access.
func (f *Feed) Data(ctx context.Context) (*Snapshot, error) {
	return dataProperty.Get(ctx, f)
}

// Downloads fetches and parses every segment afresh on each traversal.
func (f *Feed) Downloads(ctx context.Context) iter.Seq2[Segment, error] {
	return downloadsSequence.All(ctx, f)
}

// ScanYears returns the years from the configured start year up to and
// including the current one.
func (f *Feed) ScanYears(ctx context.Context) ([]int, error) {
	cfg, err := f.Config(ctx)
	if err != nil {
		return nil, err
	}
	n := f.now().Year() - cfg.StartYear + 1
	if n <= 0 {
		return nil, nil
	}
	return lo.RangeFrom(cfg.StartYear, n), nil
}

func (f *Feed) URLs(ctx context.Context) ([]string, error) {
	cfg, err := f.Config(ctx)
	if err != nil {
		return nil, err
	}
	years, err := f.ScanYears(ctx)
	if err != nil {
		return nil, err
	}
	return lo.Map(years, func(year int, _ int) string {
		return strings.ReplaceAll(cfg.NistURL, "{year}", strconv.Itoa(year))
	}), nil
}

func (f *Feed) IgnoredCVEs(ctx context.Context) (map[string]struct{}, error) {
	cfg, err := f.Config(ctx)
	if err != nil {
		return nil, err
	}
	return lo.SliceToMap(cfg.IgnoredCVEs, func(id string) (string, struct{}) {
		return id, struct{}{}
	}), nil
}

// Matches returns the CVEs applicable to t, ordered by id. A CPE that does
// not parse fails with *InvalidCPEError before anything is downloaded.
func (f *Feed) Matches(ctx context.Context, t Tracked) ([]*CVE, error) {
	if t.CPE() == "" {
		return nil, nil
	}
	c, err := ParseCPE(t.CPE())
	if err != nil {
		return nil, xerrors.Errorf("unable to parse CPE: %w", err)
	}
	data, err := f.Data(ctx)
	if err != nil {
		return nil, err
	}
	matched := data.Matches(c.VendorNormalized(), t.Version())
	slices.SortFunc(matched, func(a, b *CVE) int {
		return strings.Compare(a.ID, b.ID)
	})
	return matched, nil
}

func (f *Feed) loadConfig(ctx context.Context) (config.CVE, error) {
	cfg, err := config.Load(f.fs, f.configPath)
	if err != nil {
		return config.CVE{}, &CheckError{Message: "Unable to load config", Err: err}
	}
	cfg = config.CVE{NistURL: NistURLTemplate}.Merge(cfg)
	if cfg.StartYear != 0 {
		return cfg, nil
	}

	year, err := f.startYear.Get(ctx, f)
	if xerrors.Is(err, memo.ErrNotImplemented) {
		return config.CVE{}, &CheckError{
			Message: fmt.Sprintf("`start_year` must be specified in config (%s) or implemented by the feed", f.configPath),
		}
	} else if err != nil {
		return config.CVE{}, xerrors.Errorf("unable to get the start year: %w", err)
	}
	cfg.StartYear = year
	return cfg, nil
}

func (f *Feed) loadData(ctx context.Context) (*Snapshot, error) {
	ignored, err := f.IgnoredCVEs(ctx)
	if err != nil {
		return nil, err
	}
	years, err := f.ScanYears(ctx)
	if err != nil {
		return nil, err
	}

	snapshot := NewSnapshot()
	bar := pb.StartNew(len(years))
	defer bar.Finish()
	for segment, err := range f.Downloads(ctx) {
		if err != nil {
			return nil, err
		}
		for _, item := range segment.Items {
			snapshot.Add(NewCVE(item, f.tracked), ignored)
		}
		bar.Increment()
	}
	cvesIndexedGauge.Set(float64(len(snapshot.CVEs)))
	return snapshot, nil
}

func (f *Feed) downloadAll(ctx context.Context) iter.Seq2[Segment, error] {
	return func(yield func(Segment, error) bool) {
		urls, err := f.URLs(ctx)
		if err != nil {
			yield(Segment{}, err)
			return
		}
		ops := lo.Map(urls, func(url string, _ int) concurrent.Op[Segment] {
			return func(ctx context.Context) (Segment, error) {
				return f.download(ctx, url)
			}
		})
		for segment, err := range concurrent.Complete(ctx, ops, concurrent.WithLimit(f.limit)) {
			if !yield(segment, err) || err != nil {
				return
			}
		}
	}
}

func (f *Feed) download(ctx context.Context, url string) (Segment, error) {
	body, err := f.fetch(ctx, url)
	if err != nil {
		downloadsCounter.WithLabelValues("error").Inc()
		return Segment{}, &CheckError{URL: url, Err: err}
	}
	doc, err := parseResponse(url, body)
	if err != nil {
		downloadsCounter.WithLabelValues("error").Inc()
		return Segment{}, err
	}
	downloadsCounter.WithLabelValues("success").Inc()
	log.Printf("CVE data downloaded from: %s", url)
	return Segment{URL: url, Items: doc.CVEItems}, nil
}

// parseResponse decompresses a segment. Archive errors are reported against
// the url, JSON errors are returned as they are.
func parseResponse(url string, body []byte) (Document, error) {
	var doc Document
	r, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return doc, &CheckError{URL: url, Err: err}
	}
	defer r.Close()

	b, err := io.ReadAll(r)
	if err != nil {
		return doc, &CheckError{URL: url, Err: err}
	}
	if err = json.Unmarshal(b, &doc); err != nil {
		return doc, err
	}
	return doc, nil
}

func defaultFetcher(apiKey string, retry int) Fetcher {
	return func(ctx context.Context, url string) ([]byte, error) {
		if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
			return utils.FetchURL(ctx, url, apiKey, retry)
		}
		return utils.ReadSource(ctx, url)
	}
}
