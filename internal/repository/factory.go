package repository

import "context"

// Repositories holds all repository instances.
type Repositories struct {
	User   UserRepository
	Review ReviewRepository
}

// DatabaseHealth is an interface for database health checks.
// This interface satisfies handler.DatabaseChecker for health endpoints.
type DatabaseHealth interface {
	Ping(ctx context.Context) error
	Health(ctx context.Context) error
	Close() error
}

// Database bundles the repositories of one opened store with its connection.
type Database struct {
	Repos  *Repositories
	Health DatabaseHealth
	Driver string
}

// Close closes the underlying connection.
func (d *Database) Close() error {
	if d == nil || d.Health == nil {
		return nil
	}
	return d.Health.Close()
}
