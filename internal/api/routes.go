package api

import "github.com/go-chi/chi/v5"

// RegisterRoutes mounts the authenticated resource routes on r. The caller
// applies the auth middleware.
func RegisterRoutes(r chi.Router, sessions *SessionHandler, cards *CardHandler) {
	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", sessions.StartSession)
		r.Get("/", sessions.ListSessions)
		r.Post("/restart", sessions.RestartSession)
		r.Get("/active", sessions.GetActiveSession)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", sessions.GetSession)
			r.Get("/next", sessions.GetNextQuestion)
			r.Post("/answers", sessions.SubmitAnswer)
			r.Post("/finish", sessions.FinishSession)
			r.Post("/abandon", sessions.AbandonSession)
		})
	})
	r.Get("/mastery", sessions.ListMastery)

	r.Route("/cards", func(r chi.Router) {
		r.Post("/", cards.CreateCard)
		r.Get("/", cards.ListCards)
		r.Post("/bulk", cards.BulkCreateCards)
		r.Post("/sync", cards.SyncCards)
		r.Get("/due", cards.GetDueCards)
		r.Get("/stats", cards.GetStats)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", cards.GetCard)
			r.Delete("/", cards.DeleteCard)
			r.Post("/review", cards.RecordReview)
			r.Post("/suspend", cards.SuspendCard)
			r.Post("/resume", cards.ResumeCard)
		})
	})
}
