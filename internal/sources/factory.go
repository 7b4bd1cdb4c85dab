package sources

import (
	"github.com/uom-robota/robota-core/internal/config"
)

// defaultAdapterFactory is the default implementation of AdapterFactory
type defaultAdapterFactory struct{}

var _ AdapterFactory = (*defaultAdapterFactory)(nil)

// NewAdapterFactory creates a new adapter factory
func NewAdapterFactory() AdapterFactory {
	return &defaultAdapterFactory{}
}

// CreateAdapter creates an adapter for the descriptor's source type
func (*defaultAdapterFactory) CreateAdapter(desc config.DataSourceDescriptor) (Adapter, error) {
	switch desc.Type {
	case config.SourceTypeLocalPath:
		return NewLocalPathAdapter(desc)
	case config.SourceTypeGitLab:
		return NewGitLabAdapter(desc)
	case config.SourceTypeGitHub:
		return NewGitHubAdapter(desc)
	case config.SourceTypeLocalRepository:
		return NewLocalRepositoryAdapter(desc)
	case config.SourceTypeJenkins:
		return NewJenkinsAdapter(desc)
	case config.SourceTypeBenchmark:
		return NewBenchmarkAdapter(desc)
	default:
		return nil, &config.UnknownSourceTypeError{Source: desc.Name, Type: desc.Type}
	}
}
