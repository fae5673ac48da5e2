// internal/stages/build-case-features/config.go
package buildcasefeatures

// Config holds the feature-building settings.
type Config struct {
	// IncludeOtherDiscipline keeps cases whose discipline could not be
	// derived from the case number. They never match a PT/OT/ST clinician,
	// so the default drops them.
	IncludeOtherDiscipline bool
}

func DefaultConfig() *Config {
	return &Config{}
}
