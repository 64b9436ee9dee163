package http

import (
	"net/http"

	"mealtracker/internal/log"
)

func (s *Server) handleListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := s.api.ListTeamMembers(r.Context())
	if err != nil {
		ErrorFor(r, err).Write(w)
		return
	}
	NewJSONResponse().Body(members).Write(w)
}

func (s *Server) handleGetMember(w http.ResponseWriter, r *http.Request) {
	m, err := s.api.GetTeamMember(r.Context(), r.PathValue("id"))
	if err != nil {
		ErrorFor(r, err).Write(w)
		return
	}
	NewJSONResponse().Body(m).Write(w)
}

func (s *Server) handleCreateMember(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		ErrorFor(r, err).Write(w)
		return
	}

	m, err := s.api.CreateTeamMember(r.Context(), p.Get("employeeId"), p.Get("name"))
	if err != nil {
		ErrorFor(r, err).Write(w)
		return
	}
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/team-members/"+m.ID).
		Body(m).
		Write(w)
}

func (s *Server) handleUpdateMember(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		ErrorFor(r, err).Write(w)
		return
	}

	m, err := s.api.UpdateTeamMember(r.Context(), r.PathValue("id"), p.Get("employeeId"), p.Get("name"))
	if err != nil {
		ErrorFor(r, err).Write(w)
		return
	}
	NewJSONResponse().Body(m).Write(w)
}

func (s *Server) handleDeleteMember(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.api.DeleteTeamMember(r.Context(), id); err != nil {
		ErrorFor(r, err).Write(w)
		return
	}
	logger(r).InfoContext(r.Context(), "Team member removed via API", log.FieldTeamMemberID, id)
	NewJSONResponse().Body(messageBody{Message: "Team member deleted successfully"}).Write(w)
}

func (s *Server) handleMemberStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.api.MemberSummary(r.Context(), r.PathValue("id"))
	if err != nil {
		ErrorFor(r, err).Write(w)
		return
	}
	NewJSONResponse().Body(stats).Write(w)
}

func (s *Server) handleTeamStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.api.TeamSummary(r.Context())
	if err != nil {
		ErrorFor(r, err).Write(w)
		return
	}
	NewJSONResponse().Body(stats).Write(w)
}
