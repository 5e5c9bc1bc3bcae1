package postgres

import "time"

// repositoryOptions holds the tunables every postgres repository in this
// package accepts through RepositoryOption.
type repositoryOptions struct {
	queryTimeout time.Duration
	maxRetries   int
	batchSize    int
}

func defaultRepositoryOptions() repositoryOptions {
	return repositoryOptions{
		queryTimeout: 10 * time.Second,
		maxRetries:   3,
		batchSize:    50,
	}
}

// RepositoryOption configures a postgres repository constructor.
type RepositoryOption func(*repositoryOptions)

// WithQueryTimeout bounds how long taskRepository.Create may run; the other
// repository methods do not apply it.
func WithQueryTimeout(d time.Duration) RepositoryOption {
	return func(o *repositoryOptions) { o.queryTimeout = d }
}

// WithMaxRetries records a retry count in the repository options; no
// repository method reads it, and ExecuteQueryWithRetry uses the
// BaseRepository's own maxRetries.
func WithMaxRetries(n int) RepositoryOption {
	return func(o *repositoryOptions) { o.maxRetries = n }
}

// WithBatchSize bounds how many rows ListNext/ListTerminal fetch per call
// when the caller does not specify an explicit limit.
func WithBatchSize(n int) RepositoryOption {
	return func(o *repositoryOptions) { o.batchSize = n }
}
