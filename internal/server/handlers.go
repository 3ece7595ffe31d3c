package server

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"sort"

	"github.com/p-n-ai/pai-progress/internal/notify"
	"github.com/p-n-ai/pai-progress/internal/progress"
	"github.com/p-n-ai/pai-progress/internal/quiz"
	"github.com/p-n-ai/pai-progress/internal/report"
)

type topicsResponse struct {
	Topics       []progress.TopicState  `json:"topics"`
	Achievements []progress.Achievement `json:"achievements"`
}

func (s *Server) handleTopics(w http.ResponseWriter, r *http.Request, actor progress.Actor) {
	pm, err := s.writer.Progress(r.Context(), actor)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	have, err := s.writer.Achievements(r.Context(), actor)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	achievements := make([]progress.Achievement, 0, len(have))
	for _, a := range have {
		achievements = append(achievements, a)
	}
	sort.Slice(achievements, func(i, j int) bool {
		return achievements[i].UnlockedAt.Before(achievements[j].UnlockedAt)
	})

	writeJSON(w, http.StatusOK, topicsResponse{
		Topics:       progress.Overview(s.content.Catalog(), pm, s.writer.Thresholds().Unlock),
		Achievements: achievements,
	})
}

type quizSummary struct {
	ID               string `json:"id"`
	Title            string `json:"title"`
	Questions        int    `json:"questions"`
	TimeLimitMinutes int    `json:"time_limit_minutes,omitempty"`
}

func (s *Server) handleTopicQuizzes(w http.ResponseWriter, r *http.Request, actor progress.Actor) {
	slug := r.PathValue("slug")
	if !s.topicOpen(w, r, actor, slug) {
		return
	}

	quizzes := s.content.QuizzesForTopic(slug)
	out := make([]quizSummary, 0, len(quizzes))
	for _, q := range quizzes {
		out = append(out, quizSummary{
			ID:               q.ID,
			Title:            q.Title,
			Questions:        len(q.Questions),
			TimeLimitMinutes: q.TimeLimitMinutes,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleMaterialsViewed(w http.ResponseWriter, r *http.Request, actor progress.Actor) {
	slug := r.PathValue("slug")
	if !s.topicOpen(w, r, actor, slug) {
		return
	}

	p, err := s.writer.MarkMaterialsViewed(r.Context(), actor, slug)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if actor.TeacherID != "" {
		name := actor.Name
		if name == "" {
			name = actor.UserID
		}
		if err := s.hub.Append(r.Context(), notify.Activity{
			TeacherID:   actor.TeacherID,
			StudentID:   actor.UserID,
			StudentName: actor.Name,
			Kind:        notify.KindMaterialsViewed,
			Topic:       slug,
			Message:     fmt.Sprintf("%s viewed materials for %s", name, slug),
		}); err != nil {
			slog.Warn("materials activity not recorded", "user_id", actor.UserID, "topic", slug, "error", err)
		}
	}
	writeJSON(w, http.StatusOK, p)
}

// topicOpen writes 404 or 423 and returns false when slug is unknown or
// still locked for actor.
func (s *Server) topicOpen(w http.ResponseWriter, r *http.Request, actor progress.Actor, slug string) bool {
	catalog := s.content.Catalog()
	if _, ok := catalog.Get(slug); !ok {
		writeError(w, http.StatusNotFound, "unknown topic")
		return false
	}
	pm, err := s.writer.Progress(r.Context(), actor)
	if err != nil {
		writeDomainError(w, err)
		return false
	}
	if !progress.IsUnlocked(catalog, slug, pm, s.writer.Thresholds().Unlock) {
		writeError(w, http.StatusLocked, quiz.ErrLocked.Error())
		return false
	}
	return true
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request, actor progress.Actor) {
	sess, err := s.quizzes.Start(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess.Snapshot(s.quizzes.Now()))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request, actor progress.Actor) {
	sess, err := s.quizzes.Get(actor, r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot(s.quizzes.Now()))
}

type answerRequest struct {
	Answers map[string]string `json:"answers" validate:"required,min=1,dive,keys,required,endkeys,max=4096"`
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request, actor progress.Actor) {
	var req answerRequest
	if !decodeBody(w, r, &req) {
		return
	}

	id := r.PathValue("id")
	if err := s.quizzes.Answer(actor, id, progress.Answers(req.Answers)); err != nil {
		writeDomainError(w, err)
		return
	}
	sess, err := s.quizzes.Get(actor, id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot(s.quizzes.Now()))
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request, actor progress.Actor) {
	sub, err := s.quizzes.Submit(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (s *Server) handleActivityFeed(w http.ResponseWriter, r *http.Request, actor progress.Actor) {
	if !canTeach(actor) {
		writeError(w, http.StatusForbidden, "teachers only")
		return
	}
	s.hub.ServeWS(w, r, actor.UserID)
}

func (s *Server) handleGradebook(w http.ResponseWriter, r *http.Request, actor progress.Actor) {
	if !canTeach(actor) {
		writeError(w, http.StatusForbidden, "teachers only")
		return
	}

	attempts, err := s.store.TeacherAttempts(r.Context(), actor.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var buf bytes.Buffer
	if err := report.WriteGradebook(&buf, s.content.Catalog(), attempts, s.writer.Thresholds().Completion); err != nil {
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="gradebook.xlsx"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		slog.Warn("writing gradebook failed", "error", err)
	}
}
