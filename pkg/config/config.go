package config

import (
	"sync"
)

var (
	// globalManager is the singleton configuration manager instance
	globalManager *Manager
	globalMu      sync.Mutex
)

// Initialize creates the global configuration manager from the file at
// configPath (DefaultPath when empty), then applies PAGEKEEPER_* overrides
// from the environment.
func Initialize(configPath string) error {
	manager, err := Load(configPath, nil)
	if err != nil {
		return err
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	globalManager = manager
	return nil
}

// Load builds a manager with the default sections registered, loads the
// file at configPath and applies environment overrides read through lookup
// (the process environment when nil).
func Load(configPath string, lookup LookupFunc) (*Manager, error) {
	store, err := NewFileStore(configPath)
	if err != nil {
		return nil, err
	}

	manager := NewManager(store)
	browser := NewBrowserSection()
	if err := manager.RegisterSection(browser); err != nil {
		return nil, err
	}

	if err := manager.LoadAll(); err != nil {
		return nil, err
	}
	if err := browser.ApplyEnv(lookup); err != nil {
		return nil, err
	}
	if err := browser.Validate(); err != nil {
		return nil, err
	}
	return manager, nil
}

// Global returns the global configuration manager.
// Panics if Initialize has not been called.
func Global() *Manager {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalManager == nil {
		panic("config not initialized: call config.Initialize first")
	}

	return globalManager
}

// IsInitialized returns true if the global configuration has been initialized.
func IsInitialized() bool {
	globalMu.Lock()
	defer globalMu.Unlock()
	return globalManager != nil
}

// Browser returns the browser section registered on m, or nil.
func (m *Manager) Browser() *BrowserSection {
	section, ok := m.GetSection(SectionIDBrowser)
	if !ok {
		return nil
	}
	browser, _ := section.(*BrowserSection)
	return browser
}

// GetBrowser returns the browser section from global config.
// Returns nil if config is not initialized.
func GetBrowser() *BrowserSection {
	if !IsInitialized() {
		return nil
	}
	return Global().Browser()
}
