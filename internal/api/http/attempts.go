package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/classquiz/internal/attempt"
	"github.com/mind-engage/classquiz/internal/quiz"
)

type attemptResp struct {
	Session attempt.View `json:"session"`
	Quiz    quiz.Quiz    `json:"quiz"`
}

func attemptBody(s *attempt.Session) attemptResp {
	v := s.View()
	if v.Result != nil {
		m := v.Result.Masked()
		v.Result = &m
	}
	return attemptResp{Session: v, Quiz: s.Quiz().StudentView()}
}

// POST /attempts  { "quiz_id": "..." }
func StartAttemptHandler(svc *attempt.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			QuizID string `json:"quiz_id"`
		}
		if !decode(w, r, &req) {
			return
		}
		if req.QuizID == "" {
			http.Error(w, "quiz_id required", http.StatusBadRequest)
			return
		}
		v := viewerOf(r)
		s, err := svc.Start(r.Context(), req.QuizID, v.ID, v.Name)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, attemptBody(s))
	}
}

func liveSession(w http.ResponseWriter, r *http.Request, svc *attempt.Service) (*attempt.Session, bool) {
	s, err := svc.Session(chi.URLParam(r, "attemptID"), viewerOf(r).ID)
	if err != nil {
		writeErr(w, err)
		return nil, false
	}
	return s, true
}

// GET /attempts/{attemptID}
func GetAttemptHandler(svc *attempt.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := liveSession(w, r, svc)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, attemptBody(s))
	}
}

// PUT /attempts/{attemptID}/answers/{index}  { "value": "..." }
func RecordAnswerHandler(svc *attempt.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := liveSession(w, r, svc)
		if !ok {
			return
		}
		idx, err := strconv.Atoi(chi.URLParam(r, "index"))
		if err != nil {
			http.Error(w, "bad index", http.StatusBadRequest)
			return
		}
		var req struct {
			Value string `json:"value"`
		}
		if !decode(w, r, &req) {
			return
		}
		if err := s.RecordAnswer(idx, req.Value); err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s.View())
	}
}

// POST /attempts/{attemptID}/advance  { "direction": 1 | -1 }
func AdvanceHandler(svc *attempt.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := liveSession(w, r, svc)
		if !ok {
			return
		}
		var req struct {
			Direction int `json:"direction"`
		}
		if !decode(w, r, &req) {
			return
		}
		idx, err := s.Advance(req.Direction)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"current_index": idx})
	}
}

// POST /attempts/{attemptID}/signals reports one focus-loss signal.
func SignalHandler(svc *attempt.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var sig attempt.Signal
		if !decode(w, r, &sig) {
			return
		}
		if err := quiz.Struct(sig); err != nil {
			writeErr(w, err)
			return
		}
		verdict, err := svc.Observe(r.Context(), chi.URLParam(r, "attemptID"), viewerOf(r).ID, sig)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, verdict)
	}
}

// POST /attempts/{attemptID}/submit. Submitting an attempt that is already
// submitted returns the stored result.
func SubmitAttemptHandler(svc *attempt.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := svc.Submit(r.Context(), chi.URLParam(r, "attemptID"), viewerOf(r).ID, quiz.ReasonManual)
		if err != nil && !errors.Is(err, attempt.ErrAlreadySubmitted) {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res.Masked())
	}
}

// DELETE /attempts/{attemptID} abandons the attempt without a result.
func DiscardAttemptHandler(svc *attempt.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Discard(chi.URLParam(r, "attemptID"), viewerOf(r).ID); err != nil {
			writeErr(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
