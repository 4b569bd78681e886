package entity

import "errors"

var (
	// ErrValidation is returned when the input is malformed. It is never retried.
	ErrValidation = errors.New("validation error")
	// ErrInvalidURL is returned when the original URL is not an absolute http(s) URL.
	ErrInvalidURL = errors.New("invalid url")
	// ErrInvalidAlias is returned when a custom alias has characters or a length outside the allowed set.
	ErrInvalidAlias = errors.New("invalid custom alias")

	// ErrAliasTaken is returned when a custom alias is already used by another URL.
	ErrAliasTaken = errors.New("custom alias already taken")
	// ErrRateLimited is returned when a client has used up its request window.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrIssuanceRace is returned when a concurrent issuance of the same URL did not
	// finalize within the retry budget. Retrying the whole request is safe.
	ErrIssuanceRace = errors.New("short code issuance raced with a concurrent request")
	// ErrURLNotFound is returned when no active URL exists for a short code.
	ErrURLNotFound = errors.New("url not found")

	// ErrStoreUnavailable is returned when the record store cannot serve a request.
	ErrStoreUnavailable = errors.New("record store unavailable")
	// ErrCacheUnavailable is returned when the cache or the rate limit counter cannot serve a request.
	ErrCacheUnavailable = errors.New("cache unavailable")

	// ErrShortCodeExists is returned by stores when a short code violates its uniqueness constraint.
	ErrShortCodeExists = errors.New("short code exists")
	// ErrOriginalURLExists is returned by stores when an active record already holds the original URL.
	ErrOriginalURLExists = errors.New("original url exists")
	// ErrCacheMiss is returned by caches when a key is absent or expired.
	ErrCacheMiss = errors.New("cache miss")
)
