// Package server exposes the pipeline over HTTP: scan, enrich, score and
// export operations, the lead and job listings, and the engagement tracker
// endpoints.
package server

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/jvl-group/leadradar/internal/enrich"
	"github.com/jvl-group/leadradar/internal/export"
	"github.com/jvl-group/leadradar/internal/jobs"
	"github.com/jvl-group/leadradar/internal/leadstore"
	"github.com/jvl-group/leadradar/internal/scorer"
	"github.com/jvl-group/leadradar/internal/tracker"
)

// Options carries the values surfaced by /health and the tracker redirect
// target.
type Options struct {
	MaxWorkers int
	PerHostRPS float64
	DemoURL    string
}

// Server wires the pipeline components behind the HTTP API.
type Server struct {
	store    *leadstore.Store
	orch     *jobs.Orchestrator
	walker   *enrich.Walker
	scorer   *scorer.Scorer
	exporter *export.Exporter
	tracker  *tracker.Store
	opts     Options
}

// New builds a server. tracker may be nil, which disables the /t and /event
// endpoints.
func New(store *leadstore.Store, orch *jobs.Orchestrator, walker *enrich.Walker, sc *scorer.Scorer, exporter *export.Exporter, trk *tracker.Store, opts Options) *Server {
	return &Server{
		store:    store,
		orch:     orch,
		walker:   walker,
		scorer:   sc,
		exporter: exporter,
		tracker:  trk,
		opts:     opts,
	}
}

// Router mounts all routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/jobs/scan", s.handleScan)
		r.Post("/enrich", s.handleEnrich)
		r.Post("/enrich/deep", s.handleEnrichDeep)
		r.Post("/score", s.handleScore)
		r.Post("/export", s.handleExport)
		r.Get("/leads", s.handleLeads)
		r.Get("/jobs", s.handleJobs)
		r.Get("/jobs/{id}", s.handleJob)
	})
	if s.tracker != nil {
		r.Get("/t/{token}", s.handleTrackOpen)
		r.Post("/event", s.handleTrackEvent)
		r.Get("/v1/track/stats", s.handleTrackStats)
	}
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("write response failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":           true,
		"leads":        s.store.Len(),
		"jobs":         s.orch.Jobs().Len(),
		"max_workers":  s.opts.MaxWorkers,
		"per_host_rps": s.opts.PerHostRPS,
	})
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req jobs.ScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Countries) == 0 {
		writeError(w, http.StatusBadRequest, "countries is required")
		return
	}
	if req.SinceMonths <= 0 {
		req.SinceMonths = 18
	}
	if req.MaxPerSource <= 0 {
		req.MaxPerSource = 300
	}

	jobID, err := s.orch.StartScan(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	job, _ := s.orch.Jobs().Get(jobID)
	writeJSON(w, http.StatusOK, map[string]string{"job_id": jobID, "status": job.Status})
}

type jobRef struct {
	JobID string `json:"job_id"`
}

func (s *Server) handleEnrich(w http.ResponseWriter, r *http.Request) {
	var req jobRef
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if _, err := s.walker.Shallow(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.orch.Jobs().SetStatus(req.JobID, jobs.StatusEnriched)
	writeJSON(w, http.StatusOK, map[string]string{"job_id": req.JobID, "status": jobs.StatusEnriched})
}

func (s *Server) handleEnrichDeep(w http.ResponseWriter, r *http.Request) {
	req := struct {
		JobID           string   `json:"job_id"`
		Priorities      []string `json:"priorities"`
		MaxLeads        int      `json:"max_leads"`
		MaxPagesPerLead int      `json:"max_pages_per_lead"`
		SameDomainOnly  *bool    `json:"same_domain_only"`
	}{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	opts := enrich.DefaultDeepOptions()
	if len(req.Priorities) > 0 {
		opts.Priorities = req.Priorities
	}
	if req.MaxLeads > 0 {
		opts.MaxLeads = req.MaxLeads
	}
	if req.MaxPagesPerLead > 0 {
		opts.MaxPagesPerLead = req.MaxPagesPerLead
	}
	if req.SameDomainOnly != nil {
		opts.SameDomainOnly = *req.SameDomainOnly
	}

	targets, err := s.walker.Deep(r.Context(), opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.orch.Jobs().Update(req.JobID, func(j *jobs.Job) {
		j.Status = jobs.StatusEnriched
		j.Message = j.Message + " deep_enrich targets=" + strconv.Itoa(targets)
	})
	writeJSON(w, http.StatusOK, map[string]string{"job_id": req.JobID, "status": jobs.StatusEnriched})
}

func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	var req jobRef
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if _, err := s.scorer.Pass(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.orch.Jobs().SetStatus(req.JobID, jobs.StatusScored)
	writeJSON(w, http.StatusOK, map[string]string{"job_id": req.JobID, "status": jobs.StatusScored})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	req := struct {
		Format  []string       `json:"format"`
		Filters export.Filters `json:"filters"`
	}{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Format) == 0 {
		req.Format = []string{"csv", "md"}
	}

	files, err := s.exporter.Export(req.Format, req.Filters)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	exportID := s.orch.Jobs().Create("export", jobs.StatusExported, nil)
	s.orch.Jobs().Update(exportID, func(j *jobs.Job) {
		j.Message = "exported " + strconv.Itoa(len(files)) + " files"
	})
	writeJSON(w, http.StatusOK, map[string]any{"export_id": exportID, "files": files})
}

func (s *Server) handleLeads(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, offset := 200, 0
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	items, total := s.store.List(leadstore.ListFilter{
		Priority: q.Get("priority"),
		Country:  q.Get("country"),
		Limit:    limit,
		Offset:   offset,
	})
	if items == nil {
		items = []leadstore.Lead{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": total})
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"items": s.orch.Jobs().List()})
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, ok := s.orch.Jobs().Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleTrackOpen(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if err := s.tracker.RecordOpen(r.Context(), token, r.RemoteAddr, r.UserAgent()); err != nil {
		zap.L().Warn("record open failed", zap.String("token", token), zap.Error(err))
	}

	_, target, err := s.tracker.Resolve(r.Context(), token)
	if err != nil {
		zap.L().Warn("resolve token failed", zap.String("token", token), zap.Error(err))
	}
	if target == "" {
		target = s.opts.DemoURL
	}
	http.Redirect(w, r, target+"?"+url.Values{"token": {token}}.Encode(), http.StatusTemporaryRedirect)
}

func (s *Server) handleTrackEvent(w http.ResponseWriter, r *http.Request) {
	req := struct {
		Token string          `json:"token"`
		Name  string          `json:"name"`
		Meta  json.RawMessage `json:"meta"`
	}{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Token == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "token and name are required")
		return
	}
	if err := s.tracker.RecordEvent(r.Context(), req.Token, req.Name, string(req.Meta)); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleTrackStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.tracker.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if stats == nil {
		stats = []tracker.TokenStats{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": stats})
}
