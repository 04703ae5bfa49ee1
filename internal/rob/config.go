package rob

// Default configuration values for the re-order buffer.
const (
	DefaultWindow = 0
)

// Config is the configuration for the re-order buffer structure [ROB].
type Config struct {
	// Window is the maximum distance between the next expected
	// sequence number and an accepted one.
	// It bounds the number of pending items.
	// A zero value means no bound.
	//
	// Default: 0
	Window uint64

	// FirstSeqNum is the sequence number of the first expected item.
	//
	// Default: 0
	FirstSeqNum uint64
}

// NewConfig returns a new ROB configuration with default values.
func NewConfig() *Config {
	return &Config{
		Window: DefaultWindow,
	}
}
