package encoder

import "errors"

// Error kinds from the capture/encoder error taxonomy. Callers should use
// errors.Is against these sentinels rather than matching on message text.
var (
	ErrAlreadyEncoding   = errors.New("encoder: already encoding")
	ErrInvalidDimensions = errors.New("encoder: invalid dimensions")
	ErrEncoderInit       = errors.New("encoder: initialization failed")
	ErrEncodingFailed    = errors.New("encoder: encoding failed")
	ErrNotEncoding       = errors.New("encoder: not encoding")
)
