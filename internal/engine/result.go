package engine

// Digest is the hex digest of one algorithm
type Digest struct {
	Algorithm string
	Value     string
}

// Result lists digests in the order the algorithms were requested
type Result []Digest

// Get returns the digest computed by algorithm.
func (r Result) Get(algorithm string) (string, bool) {
	for _, d := range r {
		if d.Algorithm == algorithm {
			return d.Value, true
		}
	}
	return "", false
}

// Algorithms returns the algorithm names in order.
func (r Result) Algorithms() []string {
	names := make([]string, len(r))
	for i, d := range r {
		names[i] = d.Algorithm
	}
	return names
}
