package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"github.com/vadimbarashkov/shortlink/internal/entity"
	"github.com/vadimbarashkov/shortlink/internal/shortcode"
	"github.com/vadimbarashkov/shortlink/mocks/usecase"
)

var testConfig = Config{
	ShortCodeLength: 10,
	MaxRetries:      3,
	BaseDelay:       10 * time.Millisecond,
	StoreTimeout:    time.Second,
	CacheTimeout:    time.Second,
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type URLUseCaseTestSuite struct {
	suite.Suite
	errUnknown   error
	urlRepoMock  *usecase.MockUrlRepository
	urlCacheMock *usecase.MockUrlCache
	delays       []time.Duration
	uc           *URLUseCase
}

func (suite *URLUseCaseTestSuite) SetupSuite() {
	suite.errUnknown = errors.New("unknown error")
}

func (suite *URLUseCaseTestSuite) SetupSubTest() {
	suite.urlRepoMock = usecase.NewMockUrlRepository(suite.T())
	suite.urlCacheMock = usecase.NewMockUrlCache(suite.T())
	suite.delays = nil

	suite.uc = New(testConfig, suite.urlRepoMock, suite.urlCacheMock, discardLogger())
	suite.uc.sleep = func(ctx context.Context, d time.Duration) error {
		suite.delays = append(suite.delays, d)
		return ctx.Err()
	}
}

func isPlaceholder() any {
	return mock.MatchedBy(shortcode.IsPlaceholder)
}

func (suite *URLUseCaseTestSuite) TestShortenURL() {
	ctx := context.Background()
	in := ShortenInput{OriginalURL: "https://example.com", ClientIP: "10.0.0.1"}
	derived := shortcode.Derive("https://example.com", 7, 10)

	suite.Run("invalid url", func() {
		for _, raw := range []string{"", "example.com", "ftp://example.com", "https://", "http://exa mple.com"} {
			url, err := suite.uc.ShortenURL(ctx, ShortenInput{OriginalURL: raw})

			suite.ErrorIs(err, entity.ErrValidation, raw)
			suite.ErrorIs(err, entity.ErrInvalidURL, raw)
			suite.Nil(url)
		}
	})

	suite.Run("invalid alias", func() {
		url, err := suite.uc.ShortenURL(ctx, ShortenInput{OriginalURL: "https://example.com", CustomAlias: "no/slash"})

		suite.ErrorIs(err, entity.ErrValidation)
		suite.ErrorIs(err, entity.ErrInvalidAlias)
		suite.Nil(url)
	})

	suite.Run("already shortened", func() {
		existing := &entity.URL{ID: 3, ShortCode: "abc123", OriginalURL: "https://example.com", IsActive: true}

		suite.urlRepoMock.
			On("FindActiveByOriginalURL", mock.Anything, "https://example.com").
			Once().
			Return(existing, nil)

		url, err := suite.uc.ShortenURL(ctx, ShortenInput{OriginalURL: "https://example.com", CustomAlias: "other"})

		suite.NoError(err)
		suite.Equal(existing, url)
	})

	suite.Run("store unavailable", func() {
		suite.urlRepoMock.
			On("FindActiveByOriginalURL", mock.Anything, "https://example.com").
			Once().
			Return(nil, suite.errUnknown)

		url, err := suite.uc.ShortenURL(ctx, in)

		suite.ErrorIs(err, entity.ErrStoreUnavailable)
		suite.ErrorIs(err, suite.errUnknown)
		suite.Nil(url)
	})

	suite.Run("alias taken", func() {
		suite.urlRepoMock.
			On("FindActiveByOriginalURL", mock.Anything, "https://example.com").
			Once().
			Return(nil, entity.ErrURLNotFound)
		suite.urlRepoMock.
			On("FindActiveByShortCode", mock.Anything, "promo").
			Once().
			Return(&entity.URL{ShortCode: "promo"}, nil)

		url, err := suite.uc.ShortenURL(ctx, ShortenInput{OriginalURL: "https://example.com", CustomAlias: "promo"})

		suite.ErrorIs(err, entity.ErrAliasTaken)
		suite.Nil(url)
	})

	suite.Run("success", func() {
		suite.urlRepoMock.
			On("FindActiveByOriginalURL", mock.Anything, "https://example.com").
			Once().
			Return(nil, entity.ErrURLNotFound)
		suite.urlRepoMock.
			On("Insert", mock.Anything, isPlaceholder(), "https://example.com", "10.0.0.1").
			Once().
			Return(&entity.URL{ID: 7, ShortCode: "~pending", OriginalURL: "https://example.com", IsActive: true}, nil)
		suite.urlRepoMock.
			On("SetShortCode", mock.Anything, int64(7), derived).
			Once().
			Return(&entity.URL{ID: 7, ShortCode: derived, OriginalURL: "https://example.com", IsActive: true}, nil)
		suite.urlCacheMock.
			On("PutURL", mock.Anything, derived, "https://example.com").
			Once().
			Return(nil)

		url, err := suite.uc.ShortenURL(ctx, in)

		suite.NoError(err)
		suite.Require().NotNil(url)
		suite.Equal(derived, url.ShortCode)
		suite.Len(url.ShortCode, 10)
	})

	suite.Run("cache failure does not fail issuance", func() {
		suite.urlRepoMock.
			On("FindActiveByOriginalURL", mock.Anything, "https://example.com").
			Once().
			Return(nil, entity.ErrURLNotFound)
		suite.urlRepoMock.
			On("FindActiveByShortCode", mock.Anything, "promo").
			Once().
			Return(nil, entity.ErrURLNotFound)
		suite.urlRepoMock.
			On("Insert", mock.Anything, isPlaceholder(), "https://example.com", "").
			Once().
			Return(&entity.URL{ID: 7, ShortCode: "~pending"}, nil)
		suite.urlRepoMock.
			On("SetShortCode", mock.Anything, int64(7), "promo").
			Once().
			Return(&entity.URL{ID: 7, ShortCode: "promo", OriginalURL: "https://example.com"}, nil)
		suite.urlCacheMock.
			On("PutURL", mock.Anything, "promo", "https://example.com").
			Once().
			Return(suite.errUnknown)

		url, err := suite.uc.ShortenURL(ctx, ShortenInput{OriginalURL: "https://example.com", CustomAlias: "promo"})

		suite.NoError(err)
		suite.Require().NotNil(url)
		suite.Equal("promo", url.ShortCode)
	})

	suite.Run("alias lost race", func() {
		suite.urlRepoMock.
			On("FindActiveByOriginalURL", mock.Anything, "https://example.com").
			Once().
			Return(nil, entity.ErrURLNotFound)
		suite.urlRepoMock.
			On("FindActiveByShortCode", mock.Anything, "promo").
			Once().
			Return(nil, entity.ErrURLNotFound)
		suite.urlRepoMock.
			On("Insert", mock.Anything, isPlaceholder(), "https://example.com", "").
			Once().
			Return(&entity.URL{ID: 7, ShortCode: "~pending"}, nil)
		suite.urlRepoMock.
			On("SetShortCode", mock.Anything, int64(7), "promo").
			Once().
			Return(nil, entity.ErrShortCodeExists)
		suite.urlRepoMock.
			On("SoftDelete", mock.Anything, isPlaceholder()).
			Once().
			Return(nil)

		url, err := suite.uc.ShortenURL(ctx, ShortenInput{OriginalURL: "https://example.com", CustomAlias: "promo"})

		suite.ErrorIs(err, entity.ErrAliasTaken)
		suite.Nil(url)
	})

	suite.Run("derived code collision", func() {
		suite.urlRepoMock.
			On("FindActiveByOriginalURL", mock.Anything, "https://example.com").
			Once().
			Return(nil, entity.ErrURLNotFound)
		suite.urlRepoMock.
			On("Insert", mock.Anything, isPlaceholder(), "https://example.com", "10.0.0.1").
			Once().
			Return(&entity.URL{ID: 7, ShortCode: "~pending"}, nil)
		suite.urlRepoMock.
			On("SetShortCode", mock.Anything, int64(7), derived).
			Once().
			Return(nil, entity.ErrShortCodeExists)
		suite.urlRepoMock.
			On("SoftDelete", mock.Anything, isPlaceholder()).
			Once().
			Return(suite.errUnknown)

		url, err := suite.uc.ShortenURL(ctx, in)

		suite.ErrorIs(err, entity.ErrIssuanceRace)
		suite.Nil(url)
	})

	suite.Run("lost insert race returns winner", func() {
		winner := &entity.URL{ID: 6, ShortCode: "winner1234", OriginalURL: "https://example.com", IsActive: true}

		suite.urlRepoMock.
			On("FindActiveByOriginalURL", mock.Anything, "https://example.com").
			Once().
			Return(nil, entity.ErrURLNotFound)
		suite.urlRepoMock.
			On("Insert", mock.Anything, isPlaceholder(), "https://example.com", "10.0.0.1").
			Once().
			Return(nil, entity.ErrOriginalURLExists)
		suite.urlRepoMock.
			On("FindActiveByOriginalURL", mock.Anything, "https://example.com").
			Once().
			Return(&entity.URL{ID: 6, ShortCode: "~pending"}, nil)
		suite.urlRepoMock.
			On("FindActiveByOriginalURL", mock.Anything, "https://example.com").
			Once().
			Return(winner, nil)

		url, err := suite.uc.ShortenURL(ctx, in)

		suite.NoError(err)
		suite.Equal(winner, url)
		suite.Equal([]time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, suite.delays)
	})

	suite.Run("winner never finalizes", func() {
		pending := &entity.URL{ID: 6, ShortCode: "~pending", OriginalURL: "https://example.com", IsActive: true, CreatedAt: time.Now()}

		suite.urlRepoMock.
			On("FindActiveByOriginalURL", mock.Anything, "https://example.com").
			Once().
			Return(pending, nil)
		suite.urlRepoMock.
			On("FindActiveByOriginalURL", mock.Anything, "https://example.com").
			Once().
			Return(nil, context.DeadlineExceeded)
		suite.urlRepoMock.
			On("FindActiveByOriginalURL", mock.Anything, "https://example.com").
			Twice().
			Return(pending, nil)

		url, err := suite.uc.ShortenURL(ctx, in)

		suite.ErrorIs(err, entity.ErrIssuanceRace)
		suite.Nil(url)
		suite.Equal([]time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond}, suite.delays)
	})

	suite.Run("insert fails", func() {
		var placeholder string

		suite.urlRepoMock.
			On("FindActiveByOriginalURL", mock.Anything, "https://example.com").
			Once().
			Return(nil, entity.ErrURLNotFound)
		suite.urlRepoMock.
			On("Insert", mock.Anything, isPlaceholder(), "https://example.com", "10.0.0.1").
			Once().
			Run(func(args mock.Arguments) { placeholder = args.String(1) }).
			Return(nil, context.DeadlineExceeded)
		suite.urlRepoMock.
			On("SoftDelete", mock.Anything, isPlaceholder()).
			Once().
			Run(func(args mock.Arguments) { suite.Equal(placeholder, args.String(1)) }).
			Return(nil)

		url, err := suite.uc.ShortenURL(ctx, in)

		suite.ErrorIs(err, entity.ErrStoreUnavailable)
		suite.ErrorIs(err, context.DeadlineExceeded)
		suite.Nil(url)
	})

	suite.Run("abandoned placeholder is reclaimed", func() {
		abandoned := &entity.URL{
			ID:          5,
			ShortCode:   "~abandoned",
			OriginalURL: "https://example.com",
			IsActive:    true,
			CreatedAt:   time.Now().Add(-time.Hour),
		}

		suite.urlRepoMock.
			On("FindActiveByOriginalURL", mock.Anything, "https://example.com").
			Once().
			Return(abandoned, nil)
		suite.urlRepoMock.
			On("SoftDelete", mock.Anything, "~abandoned").
			Once().
			Return(nil)
		suite.urlRepoMock.
			On("Insert", mock.Anything, isPlaceholder(), "https://example.com", "10.0.0.1").
			Once().
			Return(&entity.URL{ID: 7, ShortCode: "~pending", OriginalURL: "https://example.com", IsActive: true}, nil)
		suite.urlRepoMock.
			On("SetShortCode", mock.Anything, int64(7), derived).
			Once().
			Return(&entity.URL{ID: 7, ShortCode: derived, OriginalURL: "https://example.com", IsActive: true}, nil)
		suite.urlCacheMock.
			On("PutURL", mock.Anything, derived, "https://example.com").
			Once().
			Return(nil)

		url, err := suite.uc.ShortenURL(ctx, in)

		suite.NoError(err)
		suite.Require().NotNil(url)
		suite.Equal(derived, url.ShortCode)
		suite.Empty(suite.delays)
	})

	suite.Run("canceled while waiting for winner", func() {
		pending := &entity.URL{ID: 6, ShortCode: "~pending", OriginalURL: "https://example.com", IsActive: true, CreatedAt: time.Now()}
		cctx, cancel := context.WithCancel(ctx)

		suite.urlRepoMock.
			On("FindActiveByOriginalURL", mock.Anything, "https://example.com").
			Once().
			Return(pending, nil)
		suite.urlRepoMock.
			On("FindActiveByOriginalURL", mock.Anything, "https://example.com").
			Once().
			Run(func(mock.Arguments) { cancel() }).
			Return(pending, nil)

		url, err := suite.uc.ShortenURL(cctx, in)

		suite.ErrorIs(err, context.Canceled)
		suite.NotErrorIs(err, entity.ErrIssuanceRace)
		suite.Nil(url)
		suite.Equal([]time.Duration{10 * time.Millisecond}, suite.delays)
	})
}

func (suite *URLUseCaseTestSuite) TestResolveShortCode() {
	ctx := context.Background()

	suite.Run("malformed code", func() {
		for _, code := range []string{"", "~pending", "favicon.ico"} {
			url, err := suite.uc.ResolveShortCode(ctx, code)

			suite.ErrorIs(err, entity.ErrURLNotFound)
			suite.Empty(url)
		}
	})

	suite.Run("cache hit", func() {
		suite.urlCacheMock.
			On("GetURL", mock.Anything, "abc123").
			Once().
			Return("https://example.com", nil)
		suite.urlRepoMock.
			On("IncrementClicks", mock.Anything, "abc123").
			Once().
			Return(suite.errUnknown)

		url, err := suite.uc.ResolveShortCode(ctx, "abc123")

		suite.NoError(err)
		suite.Equal("https://example.com", url)
		suite.NoError(suite.uc.Close(ctx))
	})

	suite.Run("cache miss", func() {
		suite.urlCacheMock.
			On("GetURL", mock.Anything, "abc123").
			Once().
			Return("", entity.ErrCacheMiss)
		suite.urlRepoMock.
			On("FindActiveByShortCode", mock.Anything, "abc123").
			Once().
			Return(&entity.URL{ShortCode: "abc123", OriginalURL: "https://example.com"}, nil)
		suite.urlCacheMock.
			On("FillURL", mock.Anything, "abc123", "https://example.com").
			Once().
			Return(nil)
		suite.urlRepoMock.
			On("IncrementClicks", mock.Anything, "abc123").
			Once().
			Return(nil)

		url, err := suite.uc.ResolveShortCode(ctx, "abc123")

		suite.NoError(err)
		suite.Equal("https://example.com", url)
	})

	suite.Run("cache unavailable falls back to store", func() {
		suite.urlCacheMock.
			On("GetURL", mock.Anything, "abc123").
			Once().
			Return("", suite.errUnknown)
		suite.urlRepoMock.
			On("FindActiveByShortCode", mock.Anything, "abc123").
			Once().
			Return(&entity.URL{ShortCode: "abc123", OriginalURL: "https://example.com"}, nil)
		suite.urlCacheMock.
			On("FillURL", mock.Anything, "abc123", "https://example.com").
			Once().
			Return(suite.errUnknown)
		suite.urlRepoMock.
			On("IncrementClicks", mock.Anything, "abc123").
			Once().
			Return(nil)

		url, err := suite.uc.ResolveShortCode(ctx, "abc123")

		suite.NoError(err)
		suite.Equal("https://example.com", url)
	})

	suite.Run("url not found", func() {
		suite.urlCacheMock.
			On("GetURL", mock.Anything, "abc123").
			Once().
			Return("", entity.ErrCacheMiss)
		suite.urlRepoMock.
			On("FindActiveByShortCode", mock.Anything, "abc123").
			Once().
			Return(nil, entity.ErrURLNotFound)

		url, err := suite.uc.ResolveShortCode(ctx, "abc123")

		suite.ErrorIs(err, entity.ErrURLNotFound)
		suite.Empty(url)
	})

	suite.Run("click update fails", func() {
		suite.urlCacheMock.
			On("GetURL", mock.Anything, "abc123").
			Once().
			Return("", entity.ErrCacheMiss)
		suite.urlRepoMock.
			On("FindActiveByShortCode", mock.Anything, "abc123").
			Once().
			Return(&entity.URL{ShortCode: "abc123", OriginalURL: "https://example.com"}, nil)
		suite.urlCacheMock.
			On("FillURL", mock.Anything, "abc123", "https://example.com").
			Once().
			Return(nil)
		suite.urlRepoMock.
			On("IncrementClicks", mock.Anything, "abc123").
			Once().
			Return(suite.errUnknown)

		url, err := suite.uc.ResolveShortCode(ctx, "abc123")

		suite.ErrorIs(err, entity.ErrStoreUnavailable)
		suite.Empty(url)
	})
}

func (suite *URLUseCaseTestSuite) TestGetURLInfo() {
	ctx := context.Background()

	suite.Run("unknown error", func() {
		suite.urlRepoMock.
			On("FindActiveByShortCode", mock.Anything, "abc123").
			Once().
			Return(nil, suite.errUnknown)

		url, err := suite.uc.GetURLInfo(ctx, "abc123")

		suite.ErrorIs(err, entity.ErrStoreUnavailable)
		suite.ErrorIs(err, suite.errUnknown)
		suite.Nil(url)
	})

	suite.Run("success", func() {
		suite.urlRepoMock.
			On("FindActiveByShortCode", mock.Anything, "abc123").
			Once().
			Return(&entity.URL{ShortCode: "abc123", URLStats: entity.URLStats{ClickCount: 4}}, nil)

		url, err := suite.uc.GetURLInfo(ctx, "abc123")

		suite.NoError(err)
		suite.Require().NotNil(url)
		suite.Equal(int64(4), url.ClickCount)
	})
}

func (suite *URLUseCaseTestSuite) TestListURLs() {
	ctx := context.Background()

	suite.Run("invalid paging", func() {
		for _, p := range [][2]int{{0, 10}, {1, 0}, {1, 101}} {
			page, err := suite.uc.ListURLs(ctx, p[0], p[1])

			suite.ErrorIs(err, entity.ErrValidation)
			suite.Nil(page)
		}
	})

	suite.Run("success", func() {
		want := &entity.URLPage{URLs: []*entity.URL{{ShortCode: "abc123"}}, Total: 21}

		suite.urlRepoMock.
			On("Page", mock.Anything, 10, 20).
			Once().
			Return(want, nil)

		page, err := suite.uc.ListURLs(ctx, 3, 10)

		suite.NoError(err)
		suite.Equal(want, page)
	})
}

func (suite *URLUseCaseTestSuite) TestGetAnalytics() {
	suite.Run("since local midnight", func() {
		loc := time.FixedZone("UTC+3", 3*60*60)
		suite.uc.now = func() time.Time {
			return time.Date(2024, 5, 1, 15, 30, 0, 0, loc)
		}
		want := &entity.Analytics{TotalURLs: 3}

		suite.urlRepoMock.
			On("Aggregate", mock.Anything, time.Date(2024, 5, 1, 0, 0, 0, 0, loc)).
			Once().
			Return(want, nil)

		a, err := suite.uc.GetAnalytics(context.Background())

		suite.NoError(err)
		suite.Equal(want, a)
	})

	suite.Run("store unavailable", func() {
		suite.urlRepoMock.
			On("Aggregate", mock.Anything, mock.Anything).
			Once().
			Return(nil, suite.errUnknown)

		a, err := suite.uc.GetAnalytics(context.Background())

		suite.ErrorIs(err, entity.ErrStoreUnavailable)
		suite.Nil(a)
	})
}

func (suite *URLUseCaseTestSuite) TestDeactivateURL() {
	ctx := context.Background()

	suite.Run("url not found", func() {
		suite.urlCacheMock.
			On("EvictURL", mock.Anything, "abc123").
			Once().
			Return(nil)
		suite.urlRepoMock.
			On("SoftDelete", mock.Anything, "abc123").
			Once().
			Return(entity.ErrURLNotFound)

		err := suite.uc.DeactivateURL(ctx, "abc123")

		suite.ErrorIs(err, entity.ErrURLNotFound)
	})

	suite.Run("cache unavailable keeps record active", func() {
		suite.urlCacheMock.
			On("EvictURL", mock.Anything, "abc123").
			Once().
			Return(suite.errUnknown)

		err := suite.uc.DeactivateURL(ctx, "abc123")

		suite.ErrorIs(err, entity.ErrCacheUnavailable)
		suite.urlRepoMock.AssertNotCalled(suite.T(), "SoftDelete", mock.Anything, mock.Anything)
	})

	suite.Run("success", func() {
		suite.urlCacheMock.
			On("EvictURL", mock.Anything, "abc123").
			Once().
			Return(nil)
		suite.urlRepoMock.
			On("SoftDelete", mock.Anything, "abc123").
			Once().
			Return(nil)

		err := suite.uc.DeactivateURL(ctx, "abc123")

		suite.NoError(err)
	})
}

func (suite *URLUseCaseTestSuite) TestCheckHealth() {
	suite.Run("cache down", func() {
		suite.urlRepoMock.On("Ping", mock.Anything).Once().Return(nil)
		suite.urlCacheMock.On("Ping", mock.Anything).Once().Return(suite.errUnknown)

		report := suite.uc.CheckHealth(context.Background())

		suite.Equal(HealthReport{Database: true, Cache: false}, report)
		suite.False(report.Healthy())
	})
}

func (suite *URLUseCaseTestSuite) TestClose() {
	suite.Run("drops clicks after close", func() {
		suite.urlCacheMock.
			On("GetURL", mock.Anything, "abc123").
			Once().
			Return("https://example.com", nil)

		suite.NoError(suite.uc.Close(context.Background()))

		url, err := suite.uc.ResolveShortCode(context.Background(), "abc123")

		suite.NoError(err)
		suite.Equal("https://example.com", url)
		suite.urlRepoMock.AssertNotCalled(suite.T(), "IncrementClicks", mock.Anything, mock.Anything)
	})
}

func TestURLUseCase(t *testing.T) {
	suite.Run(t, new(URLUseCaseTestSuite))
}
