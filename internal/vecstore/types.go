package vecstore

import "time"

// Chunk is a single indexed document fragment.
type Chunk struct {
	ID        string            // Unique identifier
	Content   string            // Fragment text content
	Metadata  map[string]string // Optional metadata (policy_name, jurisdiction, etc.)
	CreatedAt time.Time         // Creation timestamp
}

// Result is a single search result with similarity score.
type Result struct {
	Chunk      Chunk
	Similarity float32 // Cosine similarity score (0-1)
}

// SearchOption configures search behavior using the functional options pattern.
type SearchOption func(*searchConfig)

// searchConfig holds internal search configuration.
type searchConfig struct {
	topK    int
	filter  map[string]string
	timeout time.Duration
}

// WithTopK sets the maximum number of results to return.
// Default is 6 if not specified.
func WithTopK(k int) SearchOption {
	return func(c *searchConfig) {
		c.topK = k
	}
}

// WithFilter adds a metadata filter to restrict search results.
// Multiple calls to WithFilter add additional filters (AND logic).
// Example: WithFilter("jurisdiction", "EU")
func WithFilter(key, value string) SearchOption {
	return func(c *searchConfig) {
		if c.filter == nil {
			c.filter = make(map[string]string)
		}
		c.filter[key] = value
	}
}

// WithTimeout overrides the per-search timeout. Default is 10 seconds.
func WithTimeout(d time.Duration) SearchOption {
	return func(c *searchConfig) {
		c.timeout = d
	}
}

// buildSearchConfig applies search options and returns the final configuration.
func buildSearchConfig(opts []SearchOption) *searchConfig {
	cfg := &searchConfig{
		topK:    DefaultTopK,
		filter:  nil,
		timeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}
