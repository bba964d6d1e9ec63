package dedup

import "fmt"

// Error kinds as they appear in reports.
const (
	KindDecode     = "decode"
	KindExtraction = "extraction"
	KindFeatures   = "features" // embedding provider failed
)

// DecodeError reports an image that could not be read or decoded. The image
// is excluded from grouping for the rest of the run.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ConfigurationError reports an invalid run option. It is returned before any
// comparison work starts.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ExtractionFailure reports that text could not be extracted from an image.
// It is never fatal: the image compares as if it had no text.
type ExtractionFailure struct {
	Path string
	Err  error
}

func (e *ExtractionFailure) Error() string {
	return fmt.Sprintf("extract text from %s: %v", e.Path, e.Err)
}

func (e *ExtractionFailure) Unwrap() error { return e.Err }
