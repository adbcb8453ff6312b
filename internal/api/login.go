package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/heliradar/tracker/internal/httputil"
	"github.com/heliradar/tracker/internal/security"
	"github.com/heliradar/tracker/internal/store"
)

var validate = validator.New()

type loginRequest struct {
	AgentID  string `json:"agentId" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Status  string `json:"status"`
	AgentID string `json:"agentId"`
	Name    string `json:"name"`
}

// handleLogin checks an agent's credentials. Nothing is issued on success;
// the client keeps the returned agent id.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w, http.MethodPost)
		return
	}

	var req loginRequest
	body, err := httputil.ReadBody(w, r)
	if err == nil {
		err = json.Unmarshal(body, &req)
	}
	if err != nil {
		httputil.BadRequest(w, msgInvalidFormat)
		return
	}
	if err := validate.Struct(req); err != nil {
		httputil.BadRequest(w, "Missing credentials")
		return
	}

	agent, err := s.store.FindAgent(r.Context(), req.AgentID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		httputil.Unauthorized(w, "Invalid Agent ID or Password")
		return
	case err != nil:
		internalError(w, r, err)
		return
	}
	if !security.VerifyPassword(agent.Password, req.Password) {
		httputil.Unauthorized(w, "Invalid Agent ID or Password")
		return
	}
	httputil.WriteJSONOK(w, loginResponse{Status: "success", AgentID: agent.AgentID, Name: agent.Name})
}
