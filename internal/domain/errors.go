package domain

import "errors"

var (
	// Image normalization.
	ErrUnsupportedFormat = errors.New("unsupported image format")
	ErrConversionFailed  = errors.New("image conversion failed")

	// Object store upload.
	ErrPresignRequestFailed = errors.New("presign request failed")
	ErrTransferFailed       = errors.New("upload transfer failed")

	// Record / job client.
	ErrRecordCreateFailed = errors.New("record create failed")
	ErrJobEnqueueFailed   = errors.New("job enqueue failed")

	// Push channel.
	ErrTokenUnavailable = errors.New("channel token unavailable")
	ErrChannelClosed    = errors.New("channel closed unexpectedly")

	// Optimistic cache.
	ErrMutationFailed = errors.New("mutation failed")

	// Transport classification.
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrServerFailure      = errors.New("server failure")
	ErrNetworkUnreachable = errors.New("network unreachable")
)
