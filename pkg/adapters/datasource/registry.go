package datasource

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/dbscope-io/dbscope-engine/pkg/apperrors"
)

// Factory builds an executor for one descriptor.
type Factory func(desc Descriptor, logger *zap.Logger) (Executor, error)

// Registry owns every live executor, keyed by dialect and connection name.
// At most one executor (and so at most one pool) exists per key.
type Registry struct {
	logger *zap.Logger

	mu        sync.RWMutex
	factories map[string]Factory
	executors map[string]Executor
}

// Stats reports the live executor population.
type Stats struct {
	ActiveExecutors int      `json:"activeExecutors"`
	Keys            []string `json:"keys"`
}

// NewRegistry creates an empty registry. Factories are installed with
// Register before first use.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		logger:    logger.Named("registry"),
		factories: make(map[string]Factory),
		executors: make(map[string]Executor),
	}
}

// Register installs the factory for a dialect, replacing any previous one.
func (r *Registry) Register(dbType string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[dbType] = factory
}

// NewExecutor builds an unmanaged executor the caller owns. Connection
// pre-tests use this so a failed registration leaves nothing cached.
func (r *Registry) NewExecutor(dbType string, desc Descriptor) (Executor, error) {
	r.mu.RLock()
	factory, ok := r.factories[dbType]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrUnsupportedDatabaseType, dbType)
	}
	return factory(desc, r.logger)
}

// GetOrCreate returns the executor for (dbType, desc.Name), creating it on
// first use. Concurrent callers with the same key observe the same instance.
func (r *Registry) GetOrCreate(dbType string, desc Descriptor) (Executor, error) {
	key := executorKey(dbType, desc.Name)

	r.mu.RLock()
	exec, ok := r.executors[key]
	r.mu.RUnlock()
	if ok {
		return exec, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Another goroutine may have created it while we waited for the lock.
	if exec, ok := r.executors[key]; ok {
		return exec, nil
	}

	factory, ok := r.factories[dbType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrUnsupportedDatabaseType, dbType)
	}

	exec, err := factory(desc, r.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s executor for %q: %w", dbType, desc.Name, err)
	}
	r.executors[key] = exec
	r.logger.Debug("Created executor",
		zap.String("type", dbType),
		zap.String("connection", desc.Name))
	return exec, nil
}

// Close shuts down and evicts one executor. Unknown keys are a no-op.
func (r *Registry) Close(dbType, name string) {
	key := executorKey(dbType, name)

	r.mu.Lock()
	exec, ok := r.executors[key]
	delete(r.executors, key)
	r.mu.Unlock()

	if ok {
		exec.Close()
		r.logger.Debug("Closed executor",
			zap.String("type", dbType),
			zap.String("connection", name))
	}
}

// CloseAll shuts down every executor. Called at shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	executors := r.executors
	r.executors = make(map[string]Executor)
	r.mu.Unlock()

	for key, exec := range executors {
		exec.Close()
		r.logger.Debug("Closed executor", zap.String("key", key))
	}
}

// Stats returns the count and sorted keys of live executors.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.executors))
	for k := range r.executors {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return Stats{ActiveExecutors: len(keys), Keys: keys}
}

func executorKey(dbType, name string) string {
	return dbType + "/" + name
}
