package planning

import (
	"fmt"
	"sync"

	"github.com/conversant-dev/conversant/core"
)

// Migration upgrades a serialized state document one schema version forward.
// Migrations operate on the decoded JSON document, not on typed state, so a
// chain of them can reshape fields that no longer exist in the current model.
type Migration struct {
	FromVersion uint16
	ToVersion   uint16
	Migrate     func(doc map[string]interface{}) (map[string]interface{}, error)
}

// MigrationRegistry holds the forward migration chain for state blobs. At
// most one migration per fromVersion; each must step exactly one version
// forward. The registry is append-only after setup and safe for concurrent
// reads.
type MigrationRegistry struct {
	mu             sync.RWMutex
	currentVersion uint16
	migrations     map[uint16]Migration
}

// NewMigrationRegistry creates a registry whose current schema version is
// currentVersion (minimum 1).
func NewMigrationRegistry(currentVersion uint16) *MigrationRegistry {
	if currentVersion == 0 {
		currentVersion = 1
	}
	return &MigrationRegistry{
		currentVersion: currentVersion,
		migrations:     make(map[uint16]Migration),
	}
}

// CurrentVersion returns the schema version written by serialization.
func (r *MigrationRegistry) CurrentVersion() uint16 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.currentVersion
}

// Register adds a migration to the chain. A migration that does not step
// exactly one version forward, or a second migration for the same
// fromVersion, is rejected.
func (r *MigrationRegistry) Register(m Migration) error {
	if m.Migrate == nil {
		return fmt.Errorf("migrations.Register: migration v%d has no migrate function", m.FromVersion)
	}
	if m.ToVersion != m.FromVersion+1 {
		return fmt.Errorf("migrations.Register: migration must step one version, got v%d->v%d", m.FromVersion, m.ToVersion)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.migrations[m.FromVersion]; exists {
		return core.NewEngineError("migrations.Register", "blob", core.ErrAlreadyRegistered)
	}
	r.migrations[m.FromVersion] = m
	return nil
}

// CanMigrate reports whether the full chain from `from` up to the current
// version is present.
func (r *MigrationRegistry) CanMigrate(from uint16) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if from > r.currentVersion {
		return false
	}
	for v := from; v < r.currentVersion; v++ {
		if _, ok := r.migrations[v]; !ok {
			return false
		}
	}
	return true
}

// Apply walks the chain from `from` to the current version, applying each
// migration in place. A missing link fails with core.ErrMigration.
func (r *MigrationRegistry) Apply(doc map[string]interface{}, from uint16) (map[string]interface{}, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for v := from; v < r.currentVersion; v++ {
		m, ok := r.migrations[v]
		if !ok {
			return nil, fmt.Errorf("%w: no migration for v%d->v%d", core.ErrMigration, v, v+1)
		}
		next, err := m.Migrate(doc)
		if err != nil {
			return nil, fmt.Errorf("%w: migration v%d->v%d: %v", core.ErrMigration, v, v+1, err)
		}
		doc = next
	}
	return doc, nil
}
