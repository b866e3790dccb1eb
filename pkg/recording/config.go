package recording

import "time"

const (
	// DefaultTickInterval is the elapsed-time granularity.
	DefaultTickInterval = 100 * time.Millisecond

	// DefaultMaxDuration is the automatic stop threshold for all contexts.
	DefaultMaxDuration = 10 * time.Second

	// EnrollmentMinDuration is the shortest clip accepted for enrollment.
	EnrollmentMinDuration = 5 * time.Second

	// RecognitionMinDuration is the shortest clip accepted for recognition.
	RecognitionMinDuration = 3 * time.Second
)

// Config holds the duration limits of a Session.
type Config struct {
	// MinDuration is the elapsed time below which a stopped recording is
	// discarded.
	MinDuration time.Duration

	// MaxDuration is the elapsed time at which the session stops itself.
	MaxDuration time.Duration

	// TickInterval is the step by which elapsed time advances.
	// Default: DefaultTickInterval.
	TickInterval time.Duration
}

// EnrollmentConfig returns the limits used when recording training clips.
func EnrollmentConfig() Config {
	return Config{
		MinDuration:  EnrollmentMinDuration,
		MaxDuration:  DefaultMaxDuration,
		TickInterval: DefaultTickInterval,
	}
}

// RecognitionConfig returns the limits used when recording test clips.
func RecognitionConfig() Config {
	return Config{
		MinDuration:  RecognitionMinDuration,
		MaxDuration:  DefaultMaxDuration,
		TickInterval: DefaultTickInterval,
	}
}

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = DefaultTickInterval
	}
	if c.MaxDuration <= 0 {
		c.MaxDuration = DefaultMaxDuration
	}
	return c
}
