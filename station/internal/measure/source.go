package measure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/hydrostack/hydrostack/station/internal/flowmeter"
)

const defaultScrapeTimeout = 10 * time.Second

// ErrNoValue is returned by ref and http_metric sources with nothing to report.
var ErrNoValue = errors.New("measure: no value")

// Source produces one raw value.
type Source interface {
	Read(ctx context.Context) (float64, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (float64, error)

// Read calls f.
func (f SourceFunc) Read(ctx context.Context) (float64, error) { return f(ctx) }

// SourceConfig selects and configures a source.
type SourceConfig struct {
	// Type is one of: modbus | signature | http_metric | gpvar | ref | static.
	Type string `yaml:"type"`

	// Register is used by modbus and signature sources.
	Register flowmeter.SignatureConfig `yaml:"register"`

	// URL, Metric and Match configure http_metric. The value is the sum of
	// every sample in the family whose labels contain all of Match.
	URL    string            `yaml:"url"`
	Metric string            `yaml:"metric"`
	Match  map[string]string `yaml:"match"`

	// Var names a GP variable; Ref names another measurement.
	Var string `yaml:"var"`
	Ref string `yaml:"ref"`

	Value float64 `yaml:"value"`
}

func buildSource(label string, c SourceConfig, env Env) (Source, error) {
	switch c.Type {
	case "modbus", "signature":
		s, err := flowmeter.NewSignature(c.Register, env.Open)
		if err != nil {
			return nil, err
		}
		if env.OnRetry != nil {
			s.OnRetry = func(int, error) { env.OnRetry(label) }
		}
		return SourceFunc(s.Read), nil
	case "http_metric":
		if c.URL == "" || c.Metric == "" {
			return nil, fmt.Errorf("http_metric needs url and metric")
		}
		client := env.Client
		if client == nil {
			client = &http.Client{Timeout: defaultScrapeTimeout}
		}
		return &metricSource{client: client, url: c.URL, metric: c.Metric, match: c.Match}, nil
	case "gpvar":
		if env.Vars == nil || c.Var == "" {
			return nil, fmt.Errorf("gpvar source needs var and a variable bank")
		}
		return SourceFunc(func(context.Context) (float64, error) { return env.Vars.Get(c.Var) }), nil
	case "ref":
		if c.Ref == "" {
			return nil, fmt.Errorf("ref source needs ref")
		}
		return SourceFunc(func(context.Context) (float64, error) { return env.latest(c.Ref) }), nil
	case "static":
		v := c.Value
		return SourceFunc(func(context.Context) (float64, error) { return v, nil }), nil
	}
	return nil, fmt.Errorf("unsupported source type %q", c.Type)
}

// metricSource scrapes a Prometheus text endpoint, such as a weigh scale
// or water-quality sonde bridge on the station network.
type metricSource struct {
	client *http.Client
	url    string
	metric string
	match  map[string]string
}

func (s *metricSource) Read(ctx context.Context) (float64, error) {
	mfs, err := fetchMetrics(ctx, s.client, s.url)
	if err != nil {
		return 0, err
	}
	mf, ok := mfs[s.metric]
	if !ok {
		return 0, fmt.Errorf("%w: metric %q not exposed", ErrNoValue, s.metric)
	}
	v, n := sumFamily(mf, s.match)
	if n == 0 {
		return 0, fmt.Errorf("%w: no %q sample matches %v", ErrNoValue, s.metric, s.match)
	}
	return v, nil
}

// fetchMetrics performs an HTTP GET to url and returns parsed metric families.
func fetchMetrics(ctx context.Context, client *http.Client, url string) (map[string]*dto.MetricFamily, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", string(expfmt.NewFormat(expfmt.TypeTextPlain)))

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return parseMetrics(resp.Body)
}

// parseMetrics decodes a text exposition. A partial parse still succeeds.
func parseMetrics(r io.Reader) (map[string]*dto.MetricFamily, error) {
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(r)
	if err != nil && len(mfs) == 0 {
		return nil, fmt.Errorf("parse prometheus text: %w", err)
	}
	return mfs, nil
}

// sumFamily adds the counter, gauge and untyped values of the samples whose
// labels include match. It also returns how many samples matched.
func sumFamily(mf *dto.MetricFamily, match map[string]string) (float64, int) {
	var (
		total float64
		n     int
	)
	for _, m := range mf.GetMetric() {
		if !hasLabels(m, match) {
			continue
		}
		switch {
		case m.Counter != nil:
			total += m.Counter.GetValue()
		case m.Gauge != nil:
			total += m.Gauge.GetValue()
		case m.Untyped != nil:
			total += m.Untyped.GetValue()
		default:
			continue
		}
		n++
	}
	return total, n
}

func hasLabels(m *dto.Metric, match map[string]string) bool {
	for k, want := range match {
		found := false
		for _, lp := range m.GetLabel() {
			if lp.GetName() == k && lp.GetValue() == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
