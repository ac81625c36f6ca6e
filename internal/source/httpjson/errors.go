package httpjson

import "fmt"

// FetchError wraps any failure to obtain a dataset: connection errors,
// timeouts, non-2xx responses and bodies that are not an array of objects.
type FetchError struct {
	URL        string
	StatusCode int // zero when no response was received
	Err        error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
