package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/RishiKendai/dupcheck/internal/apperr"
	"github.com/RishiKendai/dupcheck/internal/models"
	"github.com/RishiKendai/dupcheck/internal/plagiarism"
	"github.com/RishiKendai/dupcheck/internal/report"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// ScanService runs scans and reports their lifecycle.
type ScanService interface {
	Scan(ctx context.Context, problemID int64, threshold *float64) (*models.ScanRecord, error)
	Status(ctx context.Context, problemID int64) (*models.ScanStatus, error)
}

// ReportService serves the read side of the findings.
type ReportService interface {
	Listing(ctx context.Context, problemID *int64) (*report.Listing, error)
	Detail(ctx context.Context, findingID int64) (*report.Detail, error)
	Download(ctx context.Context, findingID int64) (*report.Document, error)
	Notify(ctx context.Context, findingID int64) (bool, error)
}

// Handler holds dependencies for handlers
type Handler struct {
	scans   ScanService
	reports ReportService
}

func NewHandler(scans ScanService, reports ReportService) *Handler {
	return &Handler{scans: scans, reports: reports}
}

// partialDetailResponse carries whatever could be loaded when one side of a
// finding is gone.
type partialDetailResponse struct {
	models.ErrorResponse
	Detail *report.Detail `json:"detail"`
}

type detailResponse struct {
	*report.Detail
	Notified *bool `json:"notified,omitempty"`
}

type notifyResponse struct {
	FindingID int64 `json:"findingId"`
	Notified  bool  `json:"notified"`
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
	})
}

// Scan runs a scan of one problem synchronously and returns the committed
// scan record.
func (h *Handler) Scan(c *gin.Context) {
	problemID, ok := int64Param(c, "problemId", "INVALID_PROBLEM_ID")
	if !ok {
		return
	}

	var req models.ScanRequest
	// An empty body means "use the default threshold".
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	record, err := h.scans.Scan(c.Request.Context(), problemID, req.Threshold)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, record)
}

func (h *Handler) ScanStatus(c *gin.Context) {
	problemID, ok := int64Param(c, "problemId", "INVALID_PROBLEM_ID")
	if !ok {
		return
	}

	status, err := h.scans.Status(c.Request.Context(), problemID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, status)
}

// ListFindings lists one problem's findings with ?problemId=, or every
// problem's without it.
func (h *Handler) ListFindings(c *gin.Context) {
	var problemID *int64
	if raw := c.Query("problemId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error: "problemId must be an integer",
				Code:  "INVALID_PROBLEM_ID",
			})
			return
		}
		problemID = &id
	}

	listing, err := h.reports.Listing(c.Request.Context(), problemID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, listing)
}

// GetFinding returns the detail view. With ?notify=true the flagged
// submitter is notified once the detail has loaded.
func (h *Handler) GetFinding(c *gin.Context) {
	findingID, ok := int64Param(c, "id", "INVALID_FINDING_ID")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	detail, err := h.reports.Detail(ctx, findingID)
	if err != nil {
		writePartialDetail(c, detail, err)
		return
	}

	resp := detailResponse{Detail: detail}
	if c.Query("notify") == "true" {
		sent, err := h.reports.Notify(ctx, findingID)
		if err != nil {
			log.Warn().Err(err).Int64("findingId", findingID).Msg("Failed to notify submitter")
		}
		resp.Notified = &sent
	}

	c.JSON(http.StatusOK, resp)
}

// FindingDiff renders the stored side-by-side diff as an HTML table. The
// diff is stored with the finding, so it renders even if a side was removed.
func (h *Handler) FindingDiff(c *gin.Context) {
	findingID, ok := int64Param(c, "id", "INVALID_FINDING_ID")
	if !ok {
		return
	}

	detail, err := h.reports.Detail(c.Request.Context(), findingID)
	if err != nil && !sideRemoved(err) {
		writeError(c, err)
		return
	}

	table, err := report.HTMLTable(detail.Finding.Diff)
	if err != nil {
		writeError(c, fmt.Errorf("failed to render diff: %w", err))
		return
	}

	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(table))
}

func (h *Handler) DownloadFinding(c *gin.Context) {
	findingID, ok := int64Param(c, "id", "INVALID_FINDING_ID")
	if !ok {
		return
	}

	doc, err := h.reports.Download(c.Request.Context(), findingID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.Filename))
	c.Data(http.StatusOK, doc.ContentType, doc.Body)
}

func (h *Handler) NotifyFinding(c *gin.Context) {
	findingID, ok := int64Param(c, "id", "INVALID_FINDING_ID")
	if !ok {
		return
	}

	sent, err := h.reports.Notify(c.Request.Context(), findingID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, notifyResponse{FindingID: findingID, Notified: sent})
}

func int64Param(c *gin.Context, name, code string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error: fmt.Sprintf("%s must be an integer", name),
			Code:  code,
		})
		return 0, false
	}
	return id, true
}

func sideRemoved(err error) bool {
	return errors.Is(err, report.ErrMatchedSubmissionRemoved) ||
		errors.Is(err, report.ErrFlaggedSubmissionRemoved)
}

func writePartialDetail(c *gin.Context, detail *report.Detail, err error) {
	if detail == nil || !sideRemoved(err) {
		writeError(c, err)
		return
	}
	status, code := classify(err)
	c.JSON(status, partialDetailResponse{
		ErrorResponse: models.ErrorResponse{Error: err.Error(), Code: code},
		Detail:        detail,
	})
}

// classify maps an error onto an HTTP status and error code.
func classify(err error) (int, string) {
	var storageErr *apperr.StorageError
	switch {
	case errors.Is(err, report.ErrMatchedSubmissionRemoved):
		return http.StatusNotFound, "MATCHED_SUBMISSION_REMOVED"
	case errors.Is(err, report.ErrFlaggedSubmissionRemoved):
		return http.StatusNotFound, "SUBMISSION_REMOVED"
	case apperr.IsNotFound(err):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, plagiarism.ErrInvalidThreshold):
		return http.StatusBadRequest, "INVALID_THRESHOLD"
	case errors.Is(err, apperr.ErrScanInProgress):
		return http.StatusConflict, "SCAN_IN_PROGRESS"
	case errors.Is(err, apperr.ErrStaleScan):
		return http.StatusConflict, "STALE_SCAN"
	case errors.As(err, &storageErr):
		return http.StatusInternalServerError, "STORAGE_ERROR"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "SCAN_TIMEOUT"
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout, "REQUEST_CANCELLED"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

func writeError(c *gin.Context, err error) {
	status, code := classify(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.Request.URL.Path).Str("code", code).Msg("Request failed")
		if code == "INTERNAL_ERROR" {
			message = "Internal server error"
		}
	}
	c.JSON(status, models.ErrorResponse{Error: message, Code: code})
}
