package server

import (
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/mohammad-safakhou/pharmaverse/internal/report"
	"github.com/mohammad-safakhou/pharmaverse/session"
)

// ReportsHandler serves the report registry and artifact downloads.
type ReportsHandler struct {
	Reports  *report.Compiler
	Sessions session.Store
}

// Register mounts the JSON endpoints on api and artifact downloads on downloads.
func (h *ReportsHandler) Register(api *echo.Group, downloads *echo.Group) {
	api.GET("/reports", h.list)
	api.GET("/reports/:id", h.get)
	api.GET("/session/:id/report", h.sessionReport)
	downloads.GET("/:file", h.download)
}

type ReportDetail struct {
	*report.Record
	Session *session.Session `json:"session,omitempty"`
}

type processingResponse struct {
	Status   string `json:"status"`
	ReportID string `json:"report_id,omitempty"`
	Error    string `json:"error,omitempty"`
}

// list returns registered reports newest first, optionally filtered by q.
//
//	@Summary	List reports
//	@Tags		reports
//	@Produce	json
//	@Param		q	query		string	false	"Full-text query"
//	@Success	200	{array}		report.Record
//	@Router		/api/reports [get]
func (h *ReportsHandler) list(c echo.Context) error {
	recs, err := h.Reports.List(c.Request().Context(), c.QueryParam("q"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if recs == nil {
		recs = []*report.Record{}
	}
	return c.JSON(http.StatusOK, recs)
}

func (h *ReportsHandler) get(c echo.Context) error {
	ctx := c.Request().Context()
	rec, err := h.Reports.Get(ctx, c.Param("id"))
	if err != nil {
		return reportError(err)
	}
	detail := ReportDetail{Record: rec}
	if s, err := h.Sessions.Get(ctx, rec.SessionID); err == nil {
		detail.Session = s
	}
	return c.JSON(http.StatusOK, detail)
}

// download serves the artifact of a report. The extension in the path is optional.
//
//	@Summary	Download a report
//	@Tags		reports
//	@Param		file	path	string	true	"Report ID with optional extension"
//	@Produce	application/pdf
//	@Success	200	{file}		binary
//	@Success	202	{object}	processingResponse
//	@Failure	404	{object}	HTTPError
//	@Router		/downloads/reports/{file} [get]
func (h *ReportsHandler) download(c echo.Context) error {
	file := c.Param("file")
	id := strings.TrimSuffix(file, path.Ext(file))
	rec, err := h.Reports.Get(c.Request().Context(), id)
	if err != nil {
		return reportError(err)
	}
	return serveArtifact(c, rec)
}

// sessionReport serves the artifact of a session's report, or 202 while none exists.
func (h *ReportsHandler) sessionReport(c echo.Context) error {
	ctx := c.Request().Context()
	s, err := h.Sessions.Get(ctx, c.Param("id"))
	if err != nil {
		return sessionError(err)
	}
	if s.ReportRef == nil || s.ReportRef.ReportID == "" {
		return c.JSON(http.StatusAccepted, processingResponse{Status: "processing"})
	}
	rec, err := h.Reports.Get(ctx, s.ReportRef.ReportID)
	if err != nil {
		if errors.Is(err, report.ErrNotFound) {
			return c.JSON(http.StatusAccepted, processingResponse{Status: "processing", ReportID: s.ReportRef.ReportID})
		}
		return reportError(err)
	}
	return serveArtifact(c, rec)
}

func serveArtifact(c echo.Context, rec *report.Record) error {
	if !rec.HasArtifact() {
		return c.JSON(http.StatusAccepted, processingResponse{Status: "processing", ReportID: rec.ReportID, Error: rec.Error})
	}
	name := rec.ReportID + path.Ext(rec.DownloadPath)
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, name))
	contentType := rec.ContentType
	if contentType == "" {
		contentType = echo.MIMEOctetStream
	}
	return c.Blob(http.StatusOK, contentType, rec.Artifact)
}

func reportError(err error) error {
	if errors.Is(err, report.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "report not found")
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
