package http

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/vadimbarashkov/shortlink/internal/entity"
)

const (
	statusOK    = "ok"
	statusError = "error"
)

// shortenRequest represents the structure for a request to shorten a URL.
type shortenRequest struct {
	OriginalURL string `json:"original_url" validate:"required,max=2048,http_url"`
	CustomAlias string `json:"custom_alias,omitempty" validate:"omitempty,max=50,shortalias"`
}

// shortenResponse represents the structure for a response containing the issued short code.
type shortenResponse struct {
	ShortCode   string    `json:"short_code"`
	ShortURL    string    `json:"short_url"`
	OriginalURL string    `json:"original_url"`
	CreatedAt   time.Time `json:"created_at"`
}

func (h *urlHandler) toShortenResponse(url *entity.URL) shortenResponse {
	return shortenResponse{
		ShortCode:   url.ShortCode,
		ShortURL:    h.shortURL(url.ShortCode),
		OriginalURL: url.OriginalURL,
		CreatedAt:   url.CreatedAt,
	}
}

// urlInfoResponse represents the structure for a response containing URL details and statistics.
type urlInfoResponse struct {
	ShortCode      string     `json:"short_code"`
	ShortURL       string     `json:"short_url"`
	OriginalURL    string     `json:"original_url"`
	ClickCount     int64      `json:"click_count"`
	IsActive       bool       `json:"is_active"`
	CreatedAt      time.Time  `json:"created_at"`
	LastAccessedAt *time.Time `json:"last_accessed_at"`
}

func (h *urlHandler) toURLInfoResponse(url *entity.URL) urlInfoResponse {
	return urlInfoResponse{
		ShortCode:      url.ShortCode,
		ShortURL:       h.shortURL(url.ShortCode),
		OriginalURL:    url.OriginalURL,
		ClickCount:     url.ClickCount,
		IsActive:       url.IsActive,
		CreatedAt:      url.CreatedAt,
		LastAccessedAt: url.LastAccessedAt,
	}
}

type urlListResponse struct {
	Total    int64             `json:"total"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
	URLs     []urlInfoResponse `json:"urls"`
}

type analyticsResponse struct {
	TotalURLs   int64 `json:"total_urls"`
	ActiveURLs  int64 `json:"active_urls"`
	TotalClicks int64 `json:"total_clicks"`
	ClicksToday int64 `json:"clicks_today"`
}

func toAnalyticsResponse(a *entity.Analytics) analyticsResponse {
	return analyticsResponse{
		TotalURLs:   a.TotalURLs,
		ActiveURLs:  a.ActiveURLs,
		TotalClicks: a.TotalClicks,
		ClicksToday: a.ClicksToday,
	}
}

type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Cache    string `json:"cache"`
}

func componentStatus(ok bool) string {
	if ok {
		return statusOK
	}
	return "unavailable"
}

// validationError represents an individual validation error.
type validationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// errorResponse represents a structured error response. Code is stable and
// meant for programmatic handling.
type errorResponse struct {
	Status  string            `json:"status"`
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Errors  []validationError `json:"errors,omitempty"`
}

func newErrorResponse(code, message string) errorResponse {
	return errorResponse{
		Status:  statusError,
		Code:    code,
		Message: message,
	}
}

// Predefined error responses for common scenarios.
var (
	emptyRequestBodyResponse   = newErrorResponse("empty_request_body", "empty request body")
	invalidRequestBodyResponse = newErrorResponse("invalid_request_body", "invalid request body")
	urlNotFoundResponse        = newErrorResponse("not_found", "url not found")
	aliasTakenResponse         = newErrorResponse("alias_taken", "custom alias already taken")
	rateLimitedResponse        = newErrorResponse("rate_limited", "rate limit exceeded, try again later")
	issuanceRaceResponse       = newErrorResponse("issuance_race", "url is being shortened concurrently, retry the request")
	storeUnavailableResponse   = newErrorResponse("store_unavailable", "storage temporarily unavailable")
	cacheUnavailableResponse   = newErrorResponse("cache_unavailable", "cache temporarily unavailable")
	serverErrorResponse        = newErrorResponse("server_error", "server error occurred")
)

// messageForTag returns a user-friendly message based on the validation tag.
func messageForTag(tag string) string {
	switch tag {
	case "required":
		return "this field is required"
	case "http_url":
		return "invalid url"
	case "max":
		return "value is too long"
	case "shortalias":
		return "only letters, digits, hyphens and underscores are allowed"
	default:
		return "invalid value"
	}
}

// getValidationErrors processes validation errors and returns a list of validationError.
func getValidationErrors(err error) []validationError {
	var validationErrs []validationError

	errs, ok := err.(validator.ValidationErrors)
	if ok {
		for _, e := range errs {
			validationErrs = append(validationErrs, validationError{
				Field:   e.Field(),
				Message: messageForTag(e.Tag()),
			})
		}
	}

	return validationErrs
}

// validationErrorResponse constructs an errorResponse for validation errors.
func validationErrorResponse(err error) errorResponse {
	resp := newErrorResponse("validation_error", "validation error")
	resp.Errors = getValidationErrors(err)
	return resp
}
