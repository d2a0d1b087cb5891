// Package api serves the stored days to the dashboard.
package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/deusflow/aicybermon/internal/metrics"
	"github.com/deusflow/aicybermon/internal/news"
	"github.com/deusflow/aicybermon/internal/rank"
	"github.com/deusflow/aicybermon/internal/storage"
)

const maxLimit = 100

type Server struct {
	store         *storage.Store
	metrics       *metrics.Metrics
	retentionDays int
	topN          int
	logger        *slog.Logger
	now           func() time.Time
}

func NewServer(store *storage.Store, m *metrics.Metrics, retentionDays, topN int, logger *slog.Logger) *Server {
	if m == nil {
		m = metrics.Global
	}
	if retentionDays < 1 {
		retentionDays = 30
	}
	if topN < 1 {
		topN = 20
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		store:         store,
		metrics:       m,
		retentionDays: retentionDays,
		topN:          topN,
		logger:        logger,
		now:           time.Now,
	}
}

// Handler returns the instrumented router.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())
	s.RegisterRoutes(r)
	return otelhttp.NewHandler(r, "dashboard")
}

func (s *Server) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", s.health)
	r.GET("/metrics", s.stats)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/dates", s.listDates)
		v1.GET("/articles", s.listArticles)
		v1.GET("/articles/:date/:id", s.getArticle)
	}
}

type articleView struct {
	news.Article
	Score int `json:"score"`
}

func (s *Server) health(c *gin.Context) {
	if !s.metrics.Healthy() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) stats(c *gin.Context) {
	c.JSON(http.StatusOK, s.metrics.GetStats())
}

func (s *Server) listDates(c *gin.Context) {
	dates, err := s.store.Dates()
	if err != nil {
		s.internalError(c, err)
		return
	}
	oldest, today := s.window()
	kept := []string{}
	for _, d := range dates {
		if d >= oldest && d <= today {
			kept = append(kept, d)
		}
	}
	success(c, kept)
}

func (s *Server) listArticles(c *gin.Context) {
	date, ok := s.date(c, c.Query("date"))
	if !ok {
		return
	}

	category := news.Category(strings.ToLower(c.Query("category")))
	if category != "" && !category.Valid() {
		fail(c, http.StatusBadRequest, "invalid_category", "category must be ai or cyber")
		return
	}

	limitStr := c.DefaultQuery("limit", strconv.Itoa(s.topN))
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit <= 0 {
		limit = s.topN
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	articles, err := s.store.Load(date)
	if err != nil {
		s.internalError(c, err)
		return
	}

	q := strings.ToLower(strings.TrimSpace(c.Query("q")))
	items := []articleView{}
	for _, sc := range rank.Rank(articles) {
		if category != "" && sc.Article.Category != category {
			continue
		}
		if q != "" && !matches(&sc.Article, q) {
			continue
		}
		items = append(items, articleView{Article: sc.Article, Score: sc.Score})
		if len(items) == limit {
			break
		}
	}

	success(c, gin.H{
		"date":     date,
		"total":    len(articles),
		"articles": items,
	})
}

func (s *Server) getArticle(c *gin.Context) {
	date, ok := s.date(c, c.Param("date"))
	if !ok {
		return
	}
	a, err := s.store.Find(date, c.Param("id"))
	switch {
	case errors.Is(err, storage.ErrNotFound):
		fail(c, http.StatusNotFound, "not_found", "article not found")
		return
	case err != nil:
		s.internalError(c, err)
		return
	}
	success(c, articleView{Article: a, Score: rank.Score(&a)})
}

// date validates raw (empty means today) against the retention window and
// writes the error response itself.
func (s *Server) date(c *gin.Context, raw string) (string, bool) {
	oldest, today := s.window()
	if raw == "" {
		return today, true
	}
	if _, err := storage.ParseDate(raw); err != nil {
		fail(c, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
		return "", false
	}
	if raw < oldest || raw > today {
		fail(c, http.StatusNotFound, "out_of_range", "date is outside the retention window")
		return "", false
	}
	return raw, true
}

// window returns the oldest and newest servable dates.
func (s *Server) window() (string, string) {
	now := s.now()
	today := s.store.DateOf(now)
	oldest := s.store.DateOf(now.AddDate(0, 0, -(s.retentionDays - 1)))
	return oldest, today
}

func matches(a *news.Article, q string) bool {
	fields := []string{a.TitleOriginal, a.Description}
	for _, p := range []*string{a.TitleTranslated, a.SummaryTranslated, a.DetailsTranslated} {
		if p != nil {
			fields = append(fields, *p)
		}
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), q) {
			return true
		}
	}
	return false
}

func (s *Server) internalError(c *gin.Context, err error) {
	s.logger.Error("dashboard request failed", "path", c.Request.URL.Path, "error", err)
	fail(c, http.StatusInternalServerError, "internal_error", "internal server error")
}

func success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{
		"code":    "ok",
		"message": "success",
		"data":    data,
	})
}

func fail(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"code":    code,
		"message": message,
	})
}
