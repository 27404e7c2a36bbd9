package api

import (
	"net/http"
)

type avatarsRequest struct {
	JIDs []string `json:"jids"`
}

func (s *Server) handleAvatars(w http.ResponseWriter, r *http.Request) {
	var req avatarsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.JIDs) == 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "jids is required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"avatars": s.Messenger.LoadAvatars(r.Context(), req.JIDs)})
}

func (s *Server) handleGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := s.Messenger.LoadGroups(r.Context())
	if err != nil {
		s.writeCapabilityError(w, "load_groups", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"groups": groups})
}

func (s *Server) handlePicture(w http.ResponseWriter, r *http.Request) {
	jid := r.PathValue("jid")
	url, err := s.Messenger.GetProfilePicture(r.Context(), jid)
	if err != nil {
		s.writeCapabilityError(w, "profile_picture", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"jid": jid, "url": url})
}

func (s *Server) handleContactVars(w http.ResponseWriter, r *http.Request) {
	vars, err := s.Messenger.ContactVars(r.Context(), r.PathValue("jid"))
	if err != nil {
		s.writeCapabilityError(w, "contact_vars", err)
		return
	}
	writeJSON(w, http.StatusOK, vars)
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	info, err := s.Messenger.ValidateNumber(r.Context(), r.PathValue("jid"))
	if err != nil {
		s.writeCapabilityError(w, "validate_number", err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}
