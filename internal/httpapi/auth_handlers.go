package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"gatekeep.org/internal/access"
	"gatekeep.org/internal/audit"
	"gatekeep.org/internal/obs"
)

type loginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type logoutRequest struct {
	Login string `json:"login"`
}

type createUserRequest struct {
	Login    string `json:"login"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Authenticated bool           `json:"authenticated"`
	User          *access.User   `json:"user,omitempty"`
	Permissions   []permission   `json:"permissions,omitempty"`
}

type permission struct {
	Name string `json:"name"`
}

func (a *API) requireService(w http.ResponseWriter, r *http.Request) bool {
	if a.svc == nil {
		writeError(w, r, http.StatusServiceUnavailable, "authentication service unavailable")
		return false
	}
	return true
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.requireService(w, r) {
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	user, err := a.svc.Authenticate(r.Context(), req.Login, req.Password)
	if err != nil {
		obs.RecordAuthAttempt(authResultLabel(err))
		_ = audit.Record(r.Context(), audit.EventLoginDenied, map[string]any{
			"login":  req.Login,
			"reason": authResultLabel(err),
		})
		mapAccessError(w, r, err)
		return
	}
	obs.RecordAuthAttempt("ok")
	_ = audit.Record(access.ContextWithUser(r.Context(), user), audit.EventLoginSucceeded, map[string]any{
		"login": user.Login,
	})

	writeJSON(w, http.StatusOK, user)
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.requireService(w, r) {
		return
	}

	var req logoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, err := a.svc.FindByLogin(r.Context(), req.Login)
	if err != nil {
		mapAccessError(w, r, err)
		return
	}
	if err := a.svc.Logout(r.Context(), user); err != nil {
		mapAccessError(w, r, err)
		return
	}
	_ = audit.Record(r.Context(), audit.EventLogout, map[string]any{"login": user.Login})
	writeJSON(w, http.StatusOK, map[string]any{"status": "logged_out"})
}

func (a *API) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.requireService(w, r) {
		return
	}

	user, ok := a.svc.Session().User()
	if !ok {
		writeJSON(w, http.StatusOK, sessionResponse{Authenticated: false})
		return
	}
	perms := user.Permissions()
	out := make([]permission, 0, len(perms))
	for _, p := range perms {
		out = append(out, permission{Name: p.Name})
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		Authenticated: true,
		User:          user,
		Permissions:   out,
	})
}

func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.requireService(w, r) {
		return
	}

	var req createUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	user := access.NewUser(strings.TrimSpace(req.Login), strings.TrimSpace(req.Name), strings.TrimSpace(req.Email))
	user.Password = req.Password
	if err := a.svc.SaveUser(r.Context(), user); err != nil {
		mapAccessError(w, r, err)
		return
	}
	_ = audit.Record(r.Context(), audit.EventUserCreated, map[string]any{"login": user.Login})
	w.Header().Set("Location", "/v1/users/"+user.Login)
	writeJSON(w, http.StatusCreated, user)
}

// handleUserScoped routes /v1/users/{login} and /v1/users/{login}/password.
func (a *API) handleUserScoped(w http.ResponseWriter, r *http.Request) {
	if !a.requireService(w, r) {
		return
	}
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/users/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	login := parts[0]
	switch {
	case len(parts) == 1:
		a.handleUserByLogin(w, r, login)
	case len(parts) == 2 && parts[1] == "password":
		a.handlePasswordReset(w, r, login)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleUserByLogin(w http.ResponseWriter, r *http.Request, login string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	user, err := a.svc.FindByLogin(r.Context(), login)
	if err != nil {
		mapAccessError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// handlePasswordReset assigns a fresh random password and returns the
// plaintext exactly once, so an operator can hand it to the user
// out-of-band.
func (a *API) handlePasswordReset(w http.ResponseWriter, r *http.Request, login string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	user, err := a.svc.FindByLogin(r.Context(), login)
	if err != nil {
		mapAccessError(w, r, err)
		return
	}
	pw, err := a.svc.SetRandomPassword(r.Context(), user)
	if err != nil {
		mapAccessError(w, r, err)
		return
	}
	_ = audit.Record(r.Context(), audit.EventPasswordReset, map[string]any{"login": user.Login})
	writeJSON(w, http.StatusOK, map[string]any{
		"login":    user.Login,
		"password": pw,
	})
}

func authResultLabel(err error) string {
	switch {
	case errors.Is(err, access.ErrBadCredentials):
		return "bad_credentials"
	case errors.Is(err, access.ErrCredentialsExpired):
		return "credentials_expired"
	case errors.Is(err, access.ErrAccountLocked):
		return "locked"
	case errors.Is(err, access.ErrAccountDisabled):
		return "disabled"
	case errors.Is(err, access.ErrSimultaneousLogin):
		return "simultaneous_login"
	case errors.Is(err, access.ErrInvalidInput):
		return "invalid_input"
	default:
		return "error"
	}
}
