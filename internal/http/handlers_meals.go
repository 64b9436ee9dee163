package http

import "net/http"

// handleRecordMeal sets a member's meal for a date. A null or missing type
// clears the selection.
func (s *Server) handleRecordMeal(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		ErrorFor(r, err).Write(w)
		return
	}

	entry, err := s.api.RecordMeal(r.Context(), p.Get("teamMemberId"), p.Get("date"), p.Get("type"))
	if err != nil {
		ErrorFor(r, err).Write(w)
		return
	}
	NewJSONResponse().Body(entry).Write(w)
}

func (s *Server) handleDailyMeals(w http.ResponseWriter, r *http.Request) {
	date, err := requireDate(r.URL.Query())
	if err != nil {
		ErrorFor(r, err).Write(w)
		return
	}

	summary, err := s.api.DailySummary(r.Context(), date)
	if err != nil {
		ErrorFor(r, err).Write(w)
		return
	}
	NewJSONResponse().Body(summary).Write(w)
}

func (s *Server) handleWeeklyTotal(w http.ResponseWriter, r *http.Request) {
	date, err := requireDate(r.URL.Query())
	if err != nil {
		ErrorFor(r, err).Write(w)
		return
	}

	summary, err := s.api.WeeklySummary(r.Context(), date)
	if err != nil {
		ErrorFor(r, err).Write(w)
		return
	}
	NewJSONResponse().Body(summary).Write(w)
}
