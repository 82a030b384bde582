package repository

import (
	"fmt"
	"sync"

	"gorm.io/gorm"
)

// Factory builds the repository set once per database handle.
type Factory struct {
	db    *gorm.DB
	repos *Repositories
	once  sync.Once
}

func NewFactory(db *gorm.DB) *Factory {
	return &Factory{db: db}
}

// Repositories returns the shared repository set.
func (f *Factory) Repositories() *Repositories {
	f.once.Do(func() {
		f.repos = NewRepositories(f.db)
	})
	return f.repos
}

var (
	globalFactory *Factory
	factoryMu     sync.RWMutex
)

// InitializeFactory installs the process wide factory. Later calls are ignored.
func InitializeFactory(db *gorm.DB) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	if globalFactory == nil {
		globalFactory = NewFactory(db)
	}
}

// GlobalRepositories returns the repositories of the process wide factory.
func GlobalRepositories() (*Repositories, error) {
	factoryMu.RLock()
	defer factoryMu.RUnlock()
	if globalFactory == nil {
		return nil, fmt.Errorf("repository factory not initialized")
	}
	return globalFactory.Repositories(), nil
}
