package domain

// ProviderResult is the tagged outcome of one embedding provider call:
// either Ok with vectors or Err with a reason, never both.
type ProviderResult struct {
	vectors [][]float32
	reason  error
}

// Ok wraps vectors returned by a successful call.
func Ok(vectors [][]float32) ProviderResult {
	return ProviderResult{vectors: vectors}
}

// Err wraps the reason a call failed.
func Err(reason error) ProviderResult {
	return ProviderResult{reason: reason}
}

// IsOk reports whether the call succeeded.
func (r ProviderResult) IsOk() bool {
	return r.reason == nil
}

// Vectors returns the vectors of an Ok result.
func (r ProviderResult) Vectors() [][]float32 {
	return r.vectors
}

// Reason returns the failure of an Err result.
func (r ProviderResult) Reason() error {
	return r.reason
}

// Unwrap returns the vectors or the reason as a Go pair.
func (r ProviderResult) Unwrap() ([][]float32, error) {
	if r.reason != nil {
		return nil, r.reason
	}
	return r.vectors, nil
}
