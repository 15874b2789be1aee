// Package api exposes the search job lifecycle over HTTP.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/FranksOps/painminer/internal/pipeline"
	"github.com/FranksOps/painminer/internal/report"
	"github.com/FranksOps/painminer/internal/storage"
	"github.com/gin-gonic/gin"
)

// Service is the job lifecycle the handlers drive.
type Service interface {
	Submit(ctx context.Context, query string, sources []string) (*storage.SearchJob, error)
	Get(ctx context.Context, id int64) (*pipeline.JobDetails, error)
	List(ctx context.Context, filter storage.JobFilter) ([]*storage.SearchJob, error)
	Opportunities(ctx context.Context, filter storage.OpportunityFilter) ([]*storage.Opportunity, error)
}

type errorBody struct {
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

type createSearchRequest struct {
	Query      string   `json:"query"`
	Subreddits []string `json:"subreddits"`
}

// CreateSearchHandler validates the request, creates a pending job and
// starts it in the background.
func CreateSearchHandler(svc Service, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createSearchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, errorBody{Message: "invalid request body"})
			return
		}

		job, err := svc.Submit(c.Request.Context(), req.Query, req.Subreddits)
		if err != nil {
			var ve *pipeline.ValidationError
			if errors.As(err, &ve) {
				c.JSON(http.StatusBadRequest, errorBody{Message: ve.Message, Field: ve.Field})
				return
			}
			internalError(c, logger, err)
			return
		}

		c.JSON(http.StatusCreated, job)
	}
}

// ListSearchesHandler returns jobs newest first, optionally filtered by status.
func ListSearchesHandler(svc Service, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var filter storage.JobFilter
		if s := c.Query("status"); s != "" {
			st, err := storage.ParseStatus(s)
			if err != nil {
				c.JSON(http.StatusBadRequest, errorBody{Message: err.Error(), Field: "status"})
				return
			}
			filter.Status = &st
		}
		var ok bool
		if filter.Limit, ok = intQuery(c, "limit"); !ok {
			return
		}
		if filter.Offset, ok = intQuery(c, "offset"); !ok {
			return
		}

		jobs, err := svc.List(c.Request.Context(), filter)
		if err != nil {
			internalError(c, logger, err)
			return
		}
		if jobs == nil {
			jobs = []*storage.SearchJob{}
		}
		c.JSON(http.StatusOK, jobs)
	}
}

// GetSearchHandler returns a job with its posts and opportunities.
func GetSearchHandler(svc Service, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		details, ok := loadDetails(c, svc, logger)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, details)
	}
}

// SearchReportHandler renders a job report as json (default), csv, html or text.
func SearchReportHandler(svc Service, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		details, ok := loadDetails(c, svc, logger)
		if !ok {
			return
		}

		var err error
		switch c.DefaultQuery("format", "json") {
		case "json":
			c.Header("Content-Type", "application/json; charset=utf-8")
			err = report.WriteJSON(c.Writer, report.GenerateSummary(details))
		case "csv":
			c.Header("Content-Type", "text/csv; charset=utf-8")
			c.Header("Content-Disposition", "attachment; filename=search-"+c.Param("id")+".csv")
			err = report.WriteCSV(c.Writer, details)
		case "html":
			c.Header("Content-Type", "text/html; charset=utf-8")
			err = report.WriteHTML(c.Writer, details)
		case "text":
			c.Header("Content-Type", "text/plain; charset=utf-8")
			err = report.WriteText(c.Writer, details, report.TextOptions{})
		default:
			c.JSON(http.StatusBadRequest, errorBody{Message: "unsupported format", Field: "format"})
			return
		}
		if err != nil {
			logger.Error("report rendering failed", "job_id", details.ID, "error", err)
		}
	}
}

// ListOpportunitiesHandler returns opportunities newest first, or for one
// search by confidence when searchId is given.
func ListOpportunitiesHandler(svc Service, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var filter storage.OpportunityFilter
		if s := c.Query("searchId"); s != "" {
			id, err := strconv.ParseInt(s, 10, 64)
			if err != nil || id <= 0 {
				c.JSON(http.StatusBadRequest, errorBody{Message: "searchId must be a positive integer", Field: "searchId"})
				return
			}
			filter.JobID = id
		}
		var ok bool
		if filter.Limit, ok = intQuery(c, "limit"); !ok {
			return
		}

		opps, err := svc.Opportunities(c.Request.Context(), filter)
		if err != nil {
			internalError(c, logger, err)
			return
		}
		if opps == nil {
			opps = []*storage.Opportunity{}
		}
		c.JSON(http.StatusOK, opps)
	}
}

func loadDetails(c *gin.Context, svc Service, logger *slog.Logger) (*pipeline.JobDetails, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusNotFound, errorBody{Message: "Not found"})
		return nil, false
	}

	details, err := svc.Get(c.Request.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, errorBody{Message: "Not found"})
		return nil, false
	}
	if err != nil {
		internalError(c, logger, err)
		return nil, false
	}
	return details, true
}

func intQuery(c *gin.Context, name string) (int, bool) {
	s := c.Query(name)
	if s == "" {
		return 0, true
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		c.JSON(http.StatusBadRequest, errorBody{Message: name + " must be a non-negative integer", Field: name})
		return 0, false
	}
	return n, true
}

func internalError(c *gin.Context, logger *slog.Logger, err error) {
	logger.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
	c.JSON(http.StatusInternalServerError, errorBody{Message: "Internal Server Error"})
}
