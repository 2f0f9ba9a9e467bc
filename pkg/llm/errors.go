package llm

import "errors"

var (
	// ErrRateLimited indicates the provider rejected the call due to rate
	// limiting.
	ErrRateLimited = errors.New("llm: provider rate limited the request")

	// ErrProviderUnavailable indicates a transport-level failure reaching
	// the provider (network error, 5xx, timeout).
	ErrProviderUnavailable = errors.New("llm: provider unavailable")

	// ErrEmptyResponse indicates the provider returned a response with no
	// text and no tool calls.
	ErrEmptyResponse = errors.New("llm: provider returned an empty response")

	// ErrUnsupportedProvider indicates the configured provider has no
	// registered driver.
	ErrUnsupportedProvider = errors.New("llm: unsupported provider")
)
