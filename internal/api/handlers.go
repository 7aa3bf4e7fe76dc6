package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/amosWeiskopf/seowatch/internal/models"
	"github.com/amosWeiskopf/seowatch/pkg/dashboard"
	"github.com/amosWeiskopf/seowatch/pkg/fetcher"
	"github.com/amosWeiskopf/seowatch/pkg/monitor"
	"github.com/amosWeiskopf/seowatch/pkg/performance"
	"github.com/amosWeiskopf/seowatch/pkg/recommend"
	"github.com/amosWeiskopf/seowatch/pkg/tracker"
	"github.com/amosWeiskopf/seowatch/pkg/utils"
)

const (
	defaultTrendDays = dashboard.TrendDays
	maxTrendDays     = 365
)

type pagesRequest struct {
	Pages []models.PageFacts `json:"pages"`
	URLs  []string           `json:"urls"`
}

type bulkUpdateRequest struct {
	Pages   []models.PageFacts   `json:"pages" binding:"required,min=1"`
	Updates []monitor.PageUpdate `json:"updates" binding:"required,min=1"`
}

type rollbackRequest struct {
	URL string `json:"url" binding:"required"`
}

type statusRequest struct {
	Status string `json:"status" binding:"required"`
}

type noteRequest struct {
	Note string `json:"note" binding:"required"`
}

type tagsRequest struct {
	Tags []string `json:"tags" binding:"required,min=1"`
}

type assigneeRequest struct {
	AssignedTo string `json:"assignedTo"`
}

func abortError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

// orEmpty keeps list responses from encoding as null
func orEmpty[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

// persist saves after a mutation; failures are logged, the mutation stands
func (s *Server) persist(c *gin.Context) {
	if err := s.dash.Save(c.Request.Context()); err != nil {
		s.logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg("failed to persist state")
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// loadPages resolves the pages of an analyze or autofix request. URLs are
// fetched before the dashboard lock is taken.
func (s *Server) loadPages(c *gin.Context) ([]models.PageFacts, bool) {
	var req pagesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return nil, false
	}
	pages := req.Pages
	if len(req.URLs) > 0 {
		if s.fetcher == nil {
			abortError(c, http.StatusBadRequest, "fetching by url is not enabled")
			return nil, false
		}
		for _, u := range req.URLs {
			if !utils.IsValidURL(u) {
				abortError(c, http.StatusBadRequest, "invalid url: "+u)
				return nil, false
			}
		}
		results, err := s.fetcher.FetchAll(c.Request.Context(), req.URLs)
		if err != nil {
			abortError(c, http.StatusServiceUnavailable, "fetch interrupted: "+err.Error())
			return nil, false
		}
		for _, r := range results {
			if r.Err != nil {
				s.logger.Warn().Err(r.Err).Str("page", r.URL).Msg("page skipped")
			}
		}
		pages = append(pages, fetcher.Pages(results)...)
	}
	if len(pages) == 0 {
		abortError(c, http.StatusBadRequest, "no pages to analyze")
		return nil, false
	}
	return pages, true
}

func (s *Server) analyze(c *gin.Context) {
	pages, ok := s.loadPages(c)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	result, err := s.dash.PerformComprehensiveAnalysis(c.Request.Context(), pages)
	if err != nil && result == nil {
		abortError(c, http.StatusInternalServerError, "analysis failed: "+err.Error())
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("analysis not persisted")
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) autoFix(c *gin.Context) {
	pages, ok := s.loadPages(c)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	result, err := s.dash.AutoFix(c.Request.Context(), pages)
	if err != nil {
		s.logger.Error().Err(err).Msg("auto-fix not persisted")
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) bulkUpdate(c *gin.Context) {
	var req bulkUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	c.JSON(http.StatusOK, s.dash.BulkUpdate(c.Request.Context(), req.Pages, req.Updates))
}

// rollback answers 200 with the result's errors map when nothing was restored
func (s *Server) rollback(c *gin.Context) {
	var req rollbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	c.JSON(http.StatusOK, s.dash.Rollback(req.URL))
}

func splitQuery(c *gin.Context, key string) []string {
	var out []string
	for _, v := range c.QueryArray(key) {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func convert[T ~string](values []string) []T {
	if len(values) == 0 {
		return nil
	}
	out := make([]T, len(values))
	for i, v := range values {
		out[i] = T(v)
	}
	return out
}

func parseIssueFilter(c *gin.Context) (tracker.IssueFilter, error) {
	f := tracker.IssueFilter{
		Severity:   convert[models.Severity](splitQuery(c, "severity")),
		Status:     convert[tracker.Status](splitQuery(c, "status")),
		IssueType:  convert[models.IssueType](splitQuery(c, "type")),
		PageURL:    c.Query("page"),
		AssignedTo: c.Query("assignee"),
		Tags:       splitQuery(c, "tag"),
	}
	for key, dst := range map[string]*time.Time{"from": &f.From, "to": &f.To} {
		if v := c.Query(key); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return f, errors.New(key + " must be an RFC 3339 timestamp")
			}
			*dst = t
		}
	}
	return f, nil
}

func (s *Server) listIssues(c *gin.Context) {
	filter, err := parseIssueFilter(c)
	if err != nil {
		abortError(c, http.StatusBadRequest, err.Error())
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c.JSON(http.StatusOK, orEmpty(s.dash.Issues().GetIssues(filter)))
}

func (s *Server) issueMetrics(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.JSON(http.StatusOK, s.dash.Issues().GetMetrics())
}

// intQuery reads a positive integer query parameter capped at ceiling
func intQuery(c *gin.Context, key string, def, ceiling int) (int, bool) {
	v := c.Query(key)
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		abortError(c, http.StatusBadRequest, key+" must be a positive integer")
		return 0, false
	}
	return min(n, ceiling), true
}

func (s *Server) issueTrends(c *gin.Context) {
	days, ok := intQuery(c, "days", defaultTrendDays, maxTrendDays)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c.JSON(http.StatusOK, orEmpty(s.dash.Issues().GetIssueTrends(days)))
}

func (s *Server) resolutionPerformance(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.JSON(http.StatusOK, s.dash.Issues().GetResolutionPerformance())
}

func (s *Server) exportIssues(c *gin.Context) {
	format := c.DefaultQuery("format", "json")
	s.mu.Lock()
	data, err := s.dash.Issues().ExportIssueData(format)
	s.mu.Unlock()
	if errors.Is(err, models.ErrUnsupportedFormat) {
		abortError(c, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		abortError(c, http.StatusInternalServerError, err.Error())
		return
	}

	contentType := "application/json; charset=utf-8"
	if strings.EqualFold(format, "csv") {
		contentType = "text/csv; charset=utf-8"
	}
	c.Header("Content-Disposition", "attachment; filename=seo-issues."+strings.ToLower(format))
	c.Data(http.StatusOK, contentType, []byte(data))
}

func (s *Server) getIssue(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	issue, ok := s.dash.Issues().GetIssue(c.Param("id"))
	if !ok {
		abortError(c, http.StatusNotFound, "issue not found")
		return
	}
	c.JSON(http.StatusOK, issue)
}

func (s *Server) updateIssueStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	status := tracker.Status(req.Status)
	if !status.Valid() {
		abortError(c, http.StatusBadRequest, "unknown status "+strconv.Quote(req.Status))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	id := c.Param("id")
	if !s.dash.Issues().UpdateIssueStatus(id, status) {
		abortError(c, http.StatusNotFound, "issue not found")
		return
	}
	s.persist(c)
	issue, _ := s.dash.Issues().GetIssue(id)
	c.JSON(http.StatusOK, issue)
}

func (s *Server) addIssueNote(c *gin.Context) {
	var req noteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	id := c.Param("id")
	if !s.dash.Issues().AddIssueNote(id, req.Note) {
		abortError(c, http.StatusNotFound, "issue not found")
		return
	}
	s.persist(c)
	issue, _ := s.dash.Issues().GetIssue(id)
	c.JSON(http.StatusOK, issue)
}

func (s *Server) addIssueTags(c *gin.Context) {
	var req tagsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	id := c.Param("id")
	if !s.dash.Issues().AddIssueTags(id, req.Tags...) {
		abortError(c, http.StatusNotFound, "issue not found")
		return
	}
	s.persist(c)
	issue, _ := s.dash.Issues().GetIssue(id)
	c.JSON(http.StatusOK, issue)
}

func (s *Server) assignIssue(c *gin.Context) {
	var req assigneeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	id := c.Param("id")
	if !s.dash.Issues().AssignIssue(id, req.AssignedTo) {
		abortError(c, http.StatusNotFound, "issue not found")
		return
	}
	s.persist(c)
	issue, _ := s.dash.Issues().GetIssue(id)
	c.JSON(http.StatusOK, issue)
}

func (s *Server) listRecommendations(c *gin.Context) {
	filter := recommend.Filter{
		Priority: convert[recommend.Priority](splitQuery(c, "priority")),
		Category: convert[recommend.Category](splitQuery(c, "category")),
		Status:   convert[recommend.Status](splitQuery(c, "status")),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c.JSON(http.StatusOK, orEmpty(s.dash.Recommendations().GetRecommendations(filter)))
}

func (s *Server) actionPlan(c *gin.Context) {
	limit, ok := intQuery(c, "limit", dashboard.ActionPlanLength, 100)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c.JSON(http.StatusOK, orEmpty(s.dash.Recommendations().GetPrioritizedActionPlan(limit)))
}

func (s *Server) updateRecommendationStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	status := recommend.Status(req.Status)
	if !status.Valid() {
		abortError(c, http.StatusBadRequest, "unknown status "+strconv.Quote(req.Status))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	id := c.Param("id")
	if !s.dash.Recommendations().UpdateRecommendationStatus(id, status) {
		abortError(c, http.StatusNotFound, "recommendation not found")
		return
	}
	s.persist(c)
	rec, _ := s.dash.Recommendations().GetRecommendation(id)
	c.JSON(http.StatusOK, rec)
}

func (s *Server) recordVitals(c *gin.Context) {
	var sample performance.CoreWebVitals
	if err := c.ShouldBindJSON(&sample); err != nil {
		abortError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if sample.URL == "" {
		abortError(c, http.StatusBadRequest, "url is required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	alerts, err := s.dash.RecordCoreWebVitals(c.Request.Context(), sample)
	if err != nil {
		s.logger.Error().Err(err).Msg("vitals sample not persisted")
	}
	c.JSON(http.StatusCreated, gin.H{"alerts": orEmpty(alerts)})
}

func (s *Server) performanceSummary(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.JSON(http.StatusOK, s.dash.Performance().GetPerformanceSummary())
}

func (s *Server) performanceTrends(c *gin.Context) {
	days, ok := intQuery(c, "days", defaultTrendDays, maxTrendDays)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c.JSON(http.StatusOK, orEmpty(s.dash.Performance().GetCombinedTrends(days)))
}

func (s *Server) performanceIssues(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.JSON(http.StatusOK, orEmpty(s.dash.Performance().GetPerformanceIssues()))
}

func (s *Server) comparePerformance(c *gin.Context) {
	days, ok := intQuery(c, "days", 7, maxTrendDays)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c.JSON(http.StatusOK, s.dash.Performance().ComparePerformance(days))
}

func (s *Server) listAlerts(c *gin.Context) {
	includeResolved := c.Query("include_resolved") == "true"
	s.mu.Lock()
	defer s.mu.Unlock()
	c.JSON(http.StatusOK, orEmpty(s.dash.Performance().GetAlerts(includeResolved)))
}

func (s *Server) resolveAlert(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dash.Performance().ResolveAlert(c.Param("id")) {
		abortError(c, http.StatusNotFound, "alert not found")
		return
	}
	s.persist(c)
	c.JSON(http.StatusOK, gin.H{"resolved": true})
}
