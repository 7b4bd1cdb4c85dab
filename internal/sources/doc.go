// Package sources provides the adapters that retrieve course data from
// configured data sources.
//
// Every adapter is built from a config.DataSourceDescriptor by an
// AdapterFactory and performs no I/O until its first retrieval. Adapters
// implement the Adapter interface plus whichever capability interfaces
// their provider supports:
//
//   - local_path: FileSource
//   - local_repository: CommitSource, FileSource (via go-git)
//   - gitlab: CommitSource, EventSource, FileSource, IssueSource,
//     MergeRequestSource, TeamSource, WikiSource
//   - github: the gitlab set without EventSource and WikiSource
//   - jenkins: CIBuildSource
//   - benchmark: RecordSource
//
// Callers discover capabilities by type assertion. Failures are reported
// as *TransportError for remote providers and *LocalError for the local
// filesystem; both match ErrNotFound when the requested resource does not
// exist. Nothing in this package retries.
package sources
