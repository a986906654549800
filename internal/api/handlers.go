package api

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chmdznr/recsync/internal/db"
	"github.com/chmdznr/recsync/internal/export"
	"github.com/chmdznr/recsync/internal/tabular"
	"github.com/chmdznr/recsync/pkg/models"
	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

var errStop = errors.New("stop")

type errorResponse struct {
	Error   string   `json:"error"`
	Missing []string `json:"missing,omitempty"`
}

type listResponse struct {
	Records []models.StoredRecord `json:"records"`
	Next    string                `json:"next,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetStats(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleListRecords pages through current records ordered by key. The
// after parameter is the last key of the previous page.
func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultListLimit)
	if err != nil || limit <= 0 {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit"))
		return
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	after := r.URL.Query().Get("after")

	resp := listResponse{Records: []models.StoredRecord{}}
	// One extra row tells whether another page follows.
	err = s.store.ForEachCurrentAfter(r.Context(), after, limit+1, func(rec models.StoredRecord) error {
		if len(resp.Records) == limit {
			resp.Next = resp.Records[limit-1].Key
			return errStop
		}
		resp.Records = append(resp.Records, rec)
		return nil
	})
	if err != nil && !errors.Is(err, errStop) {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	ctx := r.Context()

	cols, err := s.store.Columns(ctx, s.store, db.TableCurrent)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	rec, err := s.store.GetRecord(ctx, s.store, cols, key)
	if errors.Is(err, models.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, fmt.Errorf("record %s not found", key))
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit"))
		return
	}
	entries, err := s.store.ListHistory(r.Context(), key, limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if entries == nil {
		entries = []models.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleRollback(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	s.writeMu.Lock()
	result, err := s.syncer.Rollback(r.Context(), key)
	s.writeMu.Unlock()

	if errors.Is(err, models.ErrRollbackNotFound) {
		s.writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleIngest accepts a multipart upload in the "file" field. The source
// label defaults to the uploaded file name.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("missing upload: %w", err))
		return
	}
	defer file.Close()

	format, err := tabular.FormatOf(header.Filename)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	table, err := tabular.Read(file, format)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	source := strings.TrimSpace(r.URL.Query().Get("source"))
	if source == "" {
		source = filepath.Base(header.Filename)
	}

	s.writeMu.Lock()
	summary, err := s.syncer.Ingest(r.Context(), table, source, s.profile)
	s.writeMu.Unlock()

	var missing *models.MissingColumnsError
	if errors.As(err, &missing) {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error(), Missing: missing.Missing})
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// handleExport streams the current snapshot as CSV.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	snap, err := export.Project(r.Context(), s.store, s.profile)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="snapshot.csv"`)
	if err := export.WriteCSV(snap, w); err != nil {
		s.logger.Error("export stream failed", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "status", status, "err", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}
