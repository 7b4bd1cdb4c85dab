package sources

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/tidwall/gjson"

	"github.com/uom-robota/robota-core/internal/config"
	"github.com/uom-robota/robota-core/internal/httpclient"
	"github.com/uom-robota/robota-core/internal/logger"
	"github.com/uom-robota/robota-core/internal/model"
)

// benchmarkVPNHint is attached to connectivity failures
const benchmarkVPNHint = "the Benchmark service is only reachable from the university network or VPN"

// BenchmarkOption configures the Benchmark adapter
type BenchmarkOption func(*benchmarkAdapter)

// WithBenchmarkHTTPClient replaces the HTTP client.
func WithBenchmarkHTTPClient(client httpclient.Client) BenchmarkOption {
	return func(a *benchmarkAdapter) {
		a.httpClient = client
	}
}

// benchmarkAdapter reads attendance from the Benchmark student records API.
// The whole course is downloaded in one request.
type benchmarkAdapter struct {
	desc       config.DataSourceDescriptor
	httpClient httpclient.Client
}

var (
	_ Adapter      = (*benchmarkAdapter)(nil)
	_ RecordSource = (*benchmarkAdapter)(nil)
)

// NewBenchmarkAdapter creates an adapter for the attendance endpoint at desc.URL
func NewBenchmarkAdapter(desc config.DataSourceDescriptor, opts ...BenchmarkOption) (Adapter, error) {
	if desc.URL == "" {
		return nil, &config.MissingConfigKeyError{Section: "data_sources." + desc.Name, Key: "url"}
	}
	a := &benchmarkAdapter{
		desc:       desc,
		httpClient: httpclient.NewDefaultClient(0),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Descriptor returns the settings the adapter was built from
func (a *benchmarkAdapter) Descriptor() config.DataSourceDescriptor {
	return a.desc
}

// GetAttendance returns one record per student per session. A student
// missing from a session's events was absent.
func (a *benchmarkAdapter) GetAttendance(ctx context.Context) ([]model.AttendanceRecord, error) {
	body, err := a.httpClient.Get(ctx, a.desc.URL, httpclient.WithHeader("Private-Token", a.desc.Token))
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		terr := newTransportError(a.desc.Name, "get attendance", httpclient.StatusCode(err), err)
		if terr.Kind == KindConnectivity {
			terr.Hint = benchmarkVPNHint
		}
		return nil, terr
	}

	if !gjson.ValidBytes(body) || !gjson.ParseBytes(body).IsArray() {
		return nil, &TransportError{
			Source:    a.desc.Name,
			Operation: "get attendance",
			Kind:      KindOther,
			Err:       fmt.Errorf("expected a JSON list of sessions"),
		}
	}

	sessions := gjson.ParseBytes(body).Array()
	seen := map[string]struct{}{}
	for _, s := range sessions {
		s.Get("events").ForEach(func(id, _ gjson.Result) bool {
			seen[id.String()] = struct{}{}
			return true
		})
	}
	students := make([]string, 0, len(seen))
	for id := range seen {
		students = append(students, id)
	}
	sort.Strings(students)

	records := make([]model.AttendanceRecord, 0, len(sessions)*len(students))
	for _, s := range sessions {
		finish := time.Unix(s.Get("finish").Int(), 0).UTC()
		events := s.Get("events")
		for _, id := range students {
			present := events.Get(gjson.Escape(id) + ".0.data").String() == "present"
			records = append(records, model.AttendanceRecord{
				StudentID:     id,
				SessionFinish: finish,
				Present:       present,
			})
		}
	}

	logger.Debugf("Fetched %d attendance sessions for %d students from %s", len(sessions), len(students), a.desc.Name)
	return records, nil
}
