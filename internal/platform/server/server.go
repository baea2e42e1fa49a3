// Package server exposes the ledger over HTTP. Routing and request shaping
// live here; the integrity, authorization and redaction semantics live in
// the platform packages this one wires together.
package server

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/oakmoor/casetrail/internal/platform/access"
	"github.com/oakmoor/casetrail/internal/platform/auth"
	"github.com/oakmoor/casetrail/internal/platform/ledger"
	"github.com/oakmoor/casetrail/internal/platform/redact"
	"github.com/oakmoor/casetrail/internal/platform/storage"
)

// DefaultListLimit bounds /log/list responses.
const DefaultListLimit = 200

type Server struct {
	Ledger    *ledger.Ledger
	Masker    *redact.Masker
	Access    *access.Recorder
	Auth      *auth.Authenticator
	Metrics   *Metrics
	Log       *zap.Logger
	ListLimit int
}

func (s *Server) logger() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

func (s *Server) listLimit() int {
	if s.ListLimit <= 0 {
		return DefaultListLimit
	}
	return s.ListLimit
}

// Router assembles the HTTP surface. The verify endpoint is deliberately
// unauthenticated: it returns no entry content, only the integrity report.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), RequestID(), RequestLogger(s.Log), s.observeAuthFailures(), cors.Default())

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/verify/chain", s.verifyChain)

	authed := r.Group("/", auth.Middleware(s.Auth))
	authed.POST("/log/write", auth.RequirePerms(auth.PermWrite), s.writeLog)
	authed.GET("/log/list", auth.RequirePerms(auth.PermRead), s.listLogs)
	authed.POST("/export/logs", auth.RequirePerms(auth.PermRead), s.exportLogs)
	authed.GET("/reports/access", auth.RequirePerms(auth.PermReport), s.accessReport)
	return r
}

type entryView struct {
	ID       int64          `json:"id"`
	TS       string         `json:"ts"`
	Actor    string         `json:"actor"`
	Action   string         `json:"action"`
	CaseID   string         `json:"case_id"`
	Details  map[string]any `json:"details"`
	PrevHash string         `json:"prev_hash"`
	Hash     string         `json:"hash"`
}

func viewOf(e ledger.Entry) entryView {
	return entryView{
		ID:       e.ID,
		TS:       e.TS,
		Actor:    e.Actor,
		Action:   e.Action,
		CaseID:   e.CaseID,
		Details:  e.Details,
		PrevHash: e.PrevHash,
		Hash:     e.Hash,
	}
}

type writeRequest struct {
	CaseID  string         `json:"case_id"`
	Action  string         `json:"action"`
	Details map[string]any `json:"details"`
}

func (s *Server) writeLog(c *gin.Context) {
	u, _ := auth.CurrentUser(c)
	var req writeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "malformed payload"})
		return
	}

	entry, err := s.Ledger.Append(c.Request.Context(), u.Email, req.CaseID, req.Action, req.Details,
		c.ClientIP(), c.Request.UserAgent())
	s.Metrics.ObserveAppend(err)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(entry))
}

func (s *Server) listLogs(c *gin.Context) {
	u, _ := auth.CurrentUser(c)
	limit := s.listLimit()
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "limit must be a positive integer"})
			return
		}
		if n < limit {
			limit = n
		}
	}

	entries, err := s.Ledger.List(c.Request.Context(), limit)
	if err != nil {
		s.respondError(c, err)
		return
	}
	out := make([]entryView, 0, len(entries))
	for _, e := range entries {
		out = append(out, viewOf(s.Masker.Entry(e, u.Role, false)))
	}

	s.recordAccess(c, u, "/log/list")
	c.JSON(http.StatusOK, out)
}

type exportRequest struct {
	Mask   *bool  `json:"mask"`
	Format string `json:"format"`
}

type exportRow struct {
	TS      string         `json:"ts"`
	Actor   string         `json:"actor"`
	Action  string         `json:"action"`
	CaseID  string         `json:"case_id"`
	Details map[string]any `json:"details"`
	Hash    string         `json:"hash"`
}

func (s *Server) exportLogs(c *gin.Context) {
	u, _ := auth.CurrentUser(c)
	req := exportRequest{Format: "json"}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "malformed payload"})
			return
		}
	}
	maskRequested := true
	if req.Mask != nil {
		maskRequested = *req.Mask
	}

	entries, err := s.Ledger.ExportAll(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	rows := make([]exportRow, 0, len(entries))
	for _, e := range entries {
		// The mask preference is honored only for roles permitted to see
		// unmasked data; everyone else is force-masked inside Entry.
		r := s.Masker.Entry(e, u.Role, maskRequested)
		rows = append(rows, exportRow{TS: r.TS, Actor: r.Actor, Action: r.Action, CaseID: r.CaseID, Details: r.Details, Hash: r.Hash})
	}

	s.recordAccess(c, u, "/export/logs")

	switch strings.ToLower(req.Format) {
	case "", "json":
		content, err := json.Marshal(rows)
		if err != nil {
			s.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"filename": "audit_export.json", "content": string(content)})
	case "csv":
		content, err := exportCSV(rows)
		if err != nil {
			s.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"filename": "audit_export.csv", "content": content})
	default:
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "format must be json or csv"})
	}
}

func exportCSV(rows []exportRow) (string, error) {
	var b strings.Builder
	w := csv.NewWriter(&b)
	if err := w.Write([]string{"ts", "actor", "action", "case_id", "details_json", "hash"}); err != nil {
		return "", err
	}
	for _, r := range rows {
		details, err := json.Marshal(r.Details)
		if err != nil {
			return "", err
		}
		if err := w.Write([]string{r.TS, r.Actor, r.Action, r.CaseID, string(details), r.Hash}); err != nil {
			return "", err
		}
	}
	w.Flush()
	return b.String(), w.Error()
}

func (s *Server) verifyChain(c *gin.Context) {
	rep, err := s.Ledger.Verify(c.Request.Context())
	s.Metrics.ObserveVerify(rep, err)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (s *Server) accessReport(c *gin.Context) {
	u, _ := auth.CurrentUser(c)
	sum, err := s.Access.Report(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.recordAccess(c, u, "/reports/access")
	c.JSON(http.StatusOK, sum)
}

func (s *Server) recordAccess(c *gin.Context, u auth.User, endpoint string) {
	params := map[string]string{}
	for k, vs := range c.Request.URL.Query() {
		if len(vs) > 0 {
			params[k] = vs[0]
		}
	}
	s.Access.Record(c.Request.Context(), u.Email, endpoint, params)
	s.Metrics.ObserveAccessRecord()
}

func (s *Server) respondError(c *gin.Context, err error) {
	var verr *ledger.ValidationError
	if errors.As(err, &verr) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": verr.Error()})
		return
	}
	if storage.IsImmutabilityViolation(err) {
		s.logger().Error("immutability violation on serving path",
			zap.String("request_id", c.GetString("request_id")),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage rejected the operation"})
		return
	}
	s.logger().Error("request failed",
		zap.String("request_id", c.GetString("request_id")),
		zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
