package dispatch

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/trace"

	"github.com/uom-robota/robota-core/internal/config"
	"github.com/uom-robota/robota-core/internal/logger"
	"github.com/uom-robota/robota-core/internal/sources"
	"github.com/uom-robota/robota-core/internal/telemetry"
)

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithFactory replaces the adapter factory.
func WithFactory(factory sources.AdapterFactory) Option {
	return func(d *Dispatcher) {
		d.factory = factory
	}
}

// WithTracer enables a span around every Handle operation.
func WithTracer(tracer trace.Tracer) Option {
	return func(d *Dispatcher) {
		d.tracer = tracer
	}
}

// WithMetrics records a counter and a duration histogram for every Handle
// operation.
func WithMetrics(metrics *telemetry.DispatchMetrics) Option {
	return func(d *Dispatcher) {
		d.metrics = metrics
	}
}

// route is a validated data type binding
type route struct {
	spec    DataTypeSpec
	binding config.DataTypeBinding
	desc    config.DataSourceDescriptor
}

// Dispatcher hands out Handles for the data types of one resolved
// configuration. Adapters are built on first use and shared by every data
// type bound to the same source name.
type Dispatcher struct {
	factory sources.AdapterFactory
	tracer  trace.Tracer
	metrics *telemetry.DispatchMetrics
	routes  map[string]route

	mu       sync.Mutex
	adapters map[string]sources.Adapter
}

// New validates every data type binding in cfg. No adapter is built and no
// source is contacted.
func New(cfg *config.Config, opts ...Option) (*Dispatcher, error) {
	if cfg == nil || cfg.Sources == nil {
		return nil, fmt.Errorf("configuration is required")
	}

	d := &Dispatcher{
		factory:  sources.NewAdapterFactory(),
		routes:   make(map[string]route, len(cfg.DataTypes)),
		adapters: map[string]sources.Adapter{},
	}
	for _, opt := range opts {
		opt(d)
	}

	for _, dataType := range cfg.DataTypeNames() {
		binding := cfg.DataTypes[dataType]
		spec, ok := Lookup(dataType)
		if !ok {
			logger.Warnf("Ignoring unknown data type %q", dataType)
			continue
		}

		desc, ok := cfg.Sources.Get(binding.Source)
		if !ok {
			return nil, &config.MissingConfigKeyError{Section: config.DataSourcesKey, Key: binding.Source}
		}
		if !spec.Allows(desc.Type) {
			return nil, &config.IncompatibleSourceError{
				DataType:   dataType,
				Source:     desc.Name,
				SourceType: desc.Type,
				Allowed:    spec.SourceTypes,
			}
		}

		d.routes[dataType] = route{spec: spec, binding: binding, desc: desc}
	}

	return d, nil
}

// Configured returns the data types that can be handled, sorted.
func (d *Dispatcher) Configured() []string {
	names := make([]string, 0, len(d.routes))
	for _, name := range DataTypes() {
		if _, ok := d.routes[name]; ok {
			names = append(names, name)
		}
	}
	return names
}

// Has reports whether dataType is configured.
func (d *Dispatcher) Has(dataType string) bool {
	_, ok := d.routes[dataType]
	return ok
}

// Source returns the descriptor of the source dataType is bound to.
func (d *Dispatcher) Source(dataType string) (config.DataSourceDescriptor, bool) {
	r, ok := d.routes[dataType]
	return r.desc, ok
}

// Handle returns a handle on dataType, building its source's adapter on
// first use.
func (d *Dispatcher) Handle(ctx context.Context, dataType string) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r, ok := d.routes[dataType]
	if !ok {
		return nil, &config.MissingConfigKeyError{Section: config.DataTypesKey, Key: dataType}
	}

	adapter, err := d.adapter(r.desc)
	if err != nil {
		return nil, err
	}

	return &Handle{
		spec:    r.spec,
		binding: r.binding,
		desc:    r.desc,
		adapter: adapter,
		tracer:  d.tracer,
		metrics: d.metrics,
	}, nil
}

func (d *Dispatcher) adapter(desc config.DataSourceDescriptor) (sources.Adapter, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if a, ok := d.adapters[desc.Name]; ok {
		return a, nil
	}

	a, err := d.factory.CreateAdapter(desc)
	if err != nil {
		return nil, fmt.Errorf("failed to create adapter for %s: %w", desc, err)
	}
	logger.Debugf("Created %s adapter for data source %s", desc.Type, desc.Name)
	d.adapters[desc.Name] = a
	return a, nil
}
