package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httplog/v2"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/vadimbarashkov/shortlink/internal/entity"
	"github.com/vadimbarashkov/shortlink/internal/shortcode"
	"github.com/vadimbarashkov/shortlink/internal/usecase"
)

const (
	defaultPage     = 1
	defaultPageSize = 20
)

func handlePing(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "pong")
}

type urlUseCase interface {
	ShortenURL(ctx context.Context, in usecase.ShortenInput) (*entity.URL, error)
	ResolveShortCode(ctx context.Context, shortCode string) (string, error)
	GetURLInfo(ctx context.Context, shortCode string) (*entity.URL, error)
	ListURLs(ctx context.Context, page, pageSize int) (*entity.URLPage, error)
	GetAnalytics(ctx context.Context) (*entity.Analytics, error)
	DeactivateURL(ctx context.Context, shortCode string) error
	CheckHealth(ctx context.Context) usecase.HealthReport
}

type urlHandler struct {
	useCase  urlUseCase
	validate *validator.Validate
	baseURL  string
}

func newURLHandler(useCase urlUseCase, validate *validator.Validate, baseURL string) *urlHandler {
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	validate.RegisterValidation("shortalias", func(fl validator.FieldLevel) bool {
		return shortcode.IsValidAlias(fl.Field().String())
	})

	return &urlHandler{
		useCase:  useCase,
		validate: validate,
		baseURL:  strings.TrimRight(baseURL, "/"),
	}
}

func (h *urlHandler) shortURL(shortCode string) string {
	return h.baseURL + "/" + shortCode
}

// clientIP returns the host part of RemoteAddr, which middleware.RealIP has
// already replaced with the forwarded client address when present.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (h *urlHandler) shortenURL(w http.ResponseWriter, r *http.Request) {
	var req shortenRequest

	if err := render.DecodeJSON(r.Body, &req); err != nil {
		if errors.Is(err, io.EOF) {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, emptyRequestBodyResponse)
			return
		}

		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, invalidRequestBodyResponse)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, validationErrorResponse(err))
		return
	}

	url, err := h.useCase.ShortenURL(r.Context(), usecase.ShortenInput{
		OriginalURL: req.OriginalURL,
		CustomAlias: req.CustomAlias,
		ClientIP:    clientIP(r),
	})
	if err != nil {
		renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, h.toShortenResponse(url))
}

func (h *urlHandler) redirect(w http.ResponseWriter, r *http.Request) {
	shortCode := chi.URLParam(r, "shortCode")

	originalURL, err := h.useCase.ResolveShortCode(r.Context(), shortCode)
	if err != nil {
		renderError(w, r, err)
		return
	}

	http.Redirect(w, r, originalURL, http.StatusMovedPermanently)
}

func (h *urlHandler) getURLInfo(w http.ResponseWriter, r *http.Request) {
	shortCode := chi.URLParam(r, "shortCode")

	url, err := h.useCase.GetURLInfo(r.Context(), shortCode)
	if err != nil {
		renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, h.toURLInfoResponse(url))
}

func (h *urlHandler) listURLs(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page", defaultPage)
	if err != nil {
		renderError(w, r, err)
		return
	}
	pageSize, err := queryInt(r, "page_size", defaultPageSize)
	if err != nil {
		renderError(w, r, err)
		return
	}

	urls, err := h.useCase.ListURLs(r.Context(), page, pageSize)
	if err != nil {
		renderError(w, r, err)
		return
	}

	resp := urlListResponse{
		Total:    urls.Total,
		Page:     page,
		PageSize: pageSize,
		URLs:     make([]urlInfoResponse, 0, len(urls.URLs)),
	}
	for _, url := range urls.URLs {
		resp.URLs = append(resp.URLs, h.toURLInfoResponse(url))
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, resp)
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}

	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", entity.ErrValidation, key)
	}

	return n, nil
}

func (h *urlHandler) getAnalytics(w http.ResponseWriter, r *http.Request) {
	a, err := h.useCase.GetAnalytics(r.Context())
	if err != nil {
		renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, toAnalyticsResponse(a))
}

func (h *urlHandler) deactivateURL(w http.ResponseWriter, r *http.Request) {
	shortCode := chi.URLParam(r, "shortCode")

	if err := h.useCase.DeactivateURL(r.Context(), shortCode); err != nil {
		renderError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *urlHandler) health(w http.ResponseWriter, r *http.Request) {
	report := h.useCase.CheckHealth(r.Context())

	resp := healthResponse{
		Status:   statusOK,
		Database: componentStatus(report.Database),
		Cache:    componentStatus(report.Cache),
	}

	if !report.Healthy() {
		resp.Status = "degraded"
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, resp)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, resp)
}

// renderError writes the response for a use case error. Only unexpected
// failures are attached to the request log entry.
func renderError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, entity.ErrValidation):
		resp := newErrorResponse("validation_error", validationMessage(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, resp)
	case errors.Is(err, entity.ErrURLNotFound):
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, urlNotFoundResponse)
	case errors.Is(err, entity.ErrAliasTaken):
		render.Status(r, http.StatusConflict)
		render.JSON(w, r, aliasTakenResponse)
	case errors.Is(err, entity.ErrRateLimited):
		render.Status(r, http.StatusTooManyRequests)
		render.JSON(w, r, rateLimitedResponse)
	case errors.Is(err, entity.ErrIssuanceRace):
		httplog.LogEntrySetField(r.Context(), "err", slog.AnyValue(err))
		w.Header().Set("Retry-After", "1")
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, issuanceRaceResponse)
	case errors.Is(err, entity.ErrStoreUnavailable):
		httplog.LogEntrySetField(r.Context(), "err", slog.AnyValue(err))
		render.Status(r, http.StatusBadGateway)
		render.JSON(w, r, storeUnavailableResponse)
	case errors.Is(err, entity.ErrCacheUnavailable):
		httplog.LogEntrySetField(r.Context(), "err", slog.AnyValue(err))
		render.Status(r, http.StatusGatewayTimeout)
		render.JSON(w, r, cacheUnavailableResponse)
	default:
		httplog.LogEntrySetField(r.Context(), "err", slog.AnyValue(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, serverErrorResponse)
	}
}

func validationMessage(err error) string {
	switch {
	case errors.Is(err, entity.ErrInvalidURL):
		return "invalid url"
	case errors.Is(err, entity.ErrInvalidAlias):
		return "invalid custom alias"
	default:
		return "validation error"
	}
}
