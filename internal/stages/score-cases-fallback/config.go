// internal/stages/score-cases-fallback/config.go
package scorecasesfallback

// Config holds the deterministic scoring weights. Defaults mirror the
// scoring rubric the AI prompt carries, minus the free-text categories.
type Config struct {
	PreviousProviderPoints int
	OpenStatusPoints       int
	OtherStatusPoints      int
}

func DefaultConfig() *Config {
	return &Config{
		PreviousProviderPoints: 30,
		OpenStatusPoints:       10,
		OtherStatusPoints:      5,
	}
}
