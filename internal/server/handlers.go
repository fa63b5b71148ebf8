package server

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mesh-intelligence/fmlearn/internal/recommender"
	"github.com/mesh-intelligence/fmlearn/pkg/types"
)

var errEmptyBody = errors.New("request body is required")

// fail maps an error to a status code: client mistakes are 400, missing
// records 404, everything else 500.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, types.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case recommender.IsMalformed(err):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// badRequest reports a body that failed to decode or validate.
func (s *Server) badRequest(w http.ResponseWriter, r *http.Request, err error) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		s.fail(w, r, err)
		return
	}
	writeError(w, http.StatusBadRequest, err.Error())
}

func (s *Server) createMetric(w http.ResponseWriter, r *http.Request) {
	var req metricRequest
	if err := decode(r, &req); err != nil {
		s.badRequest(w, r, err)
		return
	}
	rec, err := s.svc.Ingest(r.Context(), req.record())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) listMetrics(w http.ResponseWriter, r *http.Request) {
	recs, err := s.svc.List(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if len(recs) == 0 {
		writeJSON(w, http.StatusOK, recommender.MsgNoMetric)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) getMetric(w http.ResponseWriter, r *http.Request) {
	rec, err := s.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) updateMetric(w http.ResponseWriter, r *http.Request) {
	var req metricRequest
	if err := decode(r, &req); err != nil {
		s.badRequest(w, r, err)
		return
	}
	rec := req.record()
	rec.ID = chi.URLParam(r, "id")
	updated, err := s.svc.Update(r.Context(), rec)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) deleteMetric(w http.ResponseWriter, r *http.Request) {
	rec, err := s.svc.Delete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) retrieveAll(w http.ResponseWriter, r *http.Request) {
	var req hashRequest
	if err := decode(r, &req); err != nil {
		s.badRequest(w, r, err)
		return
	}
	res, err := s.svc.RetrieveAll(r.Context(), req.DatasetHash)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if res.Status != recommender.StatusOK {
		writeSoft(w, res.Status.Message())
		return
	}
	writeJSON(w, http.StatusOK, res.Records)
}

func (s *Server) retrieveMin(w http.ResponseWriter, r *http.Request) {
	s.retrieveBest(w, r, types.Ascending)
}

func (s *Server) retrieveMax(w http.ResponseWriter, r *http.Request) {
	s.retrieveBest(w, r, types.Descending)
}

func (s *Server) retrieveBest(w http.ResponseWriter, r *http.Request, order types.Order) {
	var req hashRequest
	if err := decode(r, &req); err != nil {
		s.badRequest(w, r, err)
		return
	}
	res, err := s.svc.RetrieveBest(r.Context(), req.DatasetHash, order)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if res.Status != recommender.StatusOK {
		writeSoft(w, res.Status.Message())
		return
	}
	writeJSON(w, http.StatusOK, res.Records[0])
}

func (s *Server) predict(w http.ResponseWriter, r *http.Request) {
	var req predictRequest
	if err := decode(r, &req); err != nil {
		s.badRequest(w, r, err)
		return
	}
	res, err := s.svc.Recommend(r.Context(), &types.RecommendationRequest{
		DatasetHash:  req.DatasetHash,
		TargetType:   req.TargetType,
		MetaFeatures: req.MetaFeatures,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if res.Status != recommender.StatusOK {
		writeSoft(w, res.Status.Message())
		return
	}
	writeJSON(w, http.StatusOK, res.Records)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	h, err := s.svc.Health(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("health check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "engine": h})
}
