package config

// Section is one named block of settings persisted by a Store.
type Section interface {
	// ID is the key the section is stored under
	ID() string

	Title() string
	Description() string

	// Data returns the section's settings in their stored form
	Data() map[string]any

	// SetData replaces the section's settings from their stored form
	SetData(data map[string]any) error

	Validate() error

	// Reset restores defaults
	Reset()
}
