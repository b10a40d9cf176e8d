package httpapi

import (
	"context"
	"net/http"
	"regexp"
	"testing"

	"gatekeep.org/internal/access"
)

func createUser(t *testing.T, c *apiClient, login, password string) {
	t.Helper()
	resp := c.post("/v1/users", createUserRequest{
		Login:    login,
		Name:     "Test " + login,
		Email:    login + "@example.com",
		Password: password,
	}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create user status = %d, want 201", resp.StatusCode)
	}
}

func TestCreateUser(t *testing.T) {
	c := newTestAPI(t)

	resp := c.post("/v1/users", createUserRequest{
		Login:    "aline",
		Name:     "Aline",
		Email:    "aline@example.com",
		Password: "s3cret",
	}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "/v1/users/aline" {
		t.Fatalf("Location = %q, want /v1/users/aline", loc)
	}
	body := decodeBody[map[string]any](t, resp)
	if body["login"] != "aline" {
		t.Fatalf("login = %v, want aline", body["login"])
	}
	if _, present := body["password"]; present {
		t.Fatal("response must not expose the password")
	}
}

func TestCreateUserDuplicateLogin(t *testing.T) {
	c := newTestAPI(t)

	createUser(t, c, "aline", "s3cret")
	resp := c.post("/v1/users", createUserRequest{Login: "aline", Name: "Again"}, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409", resp.StatusCode)
	}
}

func TestCreateUserRejectsShortLogin(t *testing.T) {
	c := newTestAPI(t)

	resp := c.post("/v1/users", createUserRequest{Login: "x", Name: "X"}, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestCreateUserRejectsUnknownFields(t *testing.T) {
	c := newTestAPI(t)

	resp := c.post("/v1/users", map[string]string{"login": "aline", "surprise": "field"}, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestLoginSuccess(t *testing.T) {
	c := newTestAPI(t)
	createUser(t, c, "aline", "s3cret")

	resp := c.post("/v1/auth/login", loginRequest{Login: "aline", Password: "s3cret"}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body := decodeBody[map[string]any](t, resp)
	if body["logged_in"] != true {
		t.Fatalf("logged_in = %v, want true", body["logged_in"])
	}
}

func TestLoginWrongPassword(t *testing.T) {
	c := newTestAPI(t)
	createUser(t, c, "aline", "s3cret")

	resp := c.post("/v1/auth/login", loginRequest{Login: "aline", Password: "wrong"}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestLoginUnknownLoginIndistinguishable(t *testing.T) {
	c := newTestAPI(t)
	createUser(t, c, "aline", "s3cret")

	wrongPassword := c.post("/v1/auth/login", loginRequest{Login: "aline", Password: "wrong"}, nil)
	unknownLogin := c.post("/v1/auth/login", loginRequest{Login: "ghost", Password: "wrong"}, nil)
	a := decodeBody[map[string]any](t, wrongPassword)
	b := decodeBody[map[string]any](t, unknownLogin)
	if a["code"] != "bad_credentials" || b["code"] != "bad_credentials" {
		t.Fatalf("codes = %v / %v, want bad_credentials for both", a["code"], b["code"])
	}
	if a["error"] != b["error"] {
		t.Fatalf("error messages differ: %v vs %v", a["error"], b["error"])
	}
}

func TestLoginAccountStateCodes(t *testing.T) {
	c := newTestAPI(t)

	cases := []struct {
		name   string
		mutate func(u *access.User)
		status int
		code   string
	}{
		{"locked", func(u *access.User) { u.Locked = true }, http.StatusForbidden, "account_locked"},
		{"disabled", func(u *access.User) { u.Enabled = false }, http.StatusForbidden, "account_disabled"},
		{"credentials expired", func(u *access.User) { u.CredentialsExpired = true }, http.StatusForbidden, "credentials_expired"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			login := "user-" + tc.code
			createUser(t, c, login, "s3cret")
			user, err := c.svc.FindByLogin(context.Background(), login)
			if err != nil {
				t.Fatalf("find user: %v", err)
			}
			tc.mutate(user)

			resp := c.post("/v1/auth/login", loginRequest{Login: login, Password: "s3cret"}, nil)
			defer resp.Body.Close()
			if resp.StatusCode != tc.status {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tc.status)
			}
			body := decodeBody[map[string]any](t, resp)
			if body["code"] != tc.code {
				t.Fatalf("code = %v, want %s", body["code"], tc.code)
			}
		})
	}
}

func TestLoginTwiceConflicts(t *testing.T) {
	c := newTestAPI(t)
	createUser(t, c, "aline", "s3cret")

	first := c.post("/v1/auth/login", loginRequest{Login: "aline", Password: "s3cret"}, nil)
	first.Body.Close()
	if first.StatusCode != http.StatusOK {
		t.Fatalf("first login status = %d, want 200", first.StatusCode)
	}

	second := c.post("/v1/auth/login", loginRequest{Login: "aline", Password: "s3cret"}, nil)
	defer second.Body.Close()
	if second.StatusCode != http.StatusConflict {
		t.Fatalf("second login status = %d, want 409", second.StatusCode)
	}
	body := decodeBody[map[string]any](t, second)
	if body["code"] != "simultaneous_login" {
		t.Fatalf("code = %v, want simultaneous_login", body["code"])
	}
}

func TestLogoutThenLoginAgain(t *testing.T) {
	c := newTestAPI(t)
	createUser(t, c, "aline", "s3cret")

	resp := c.post("/v1/auth/login", loginRequest{Login: "aline", Password: "s3cret"}, nil)
	resp.Body.Close()

	resp = c.post("/v1/auth/logout", logoutRequest{Login: "aline"}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logout status = %d, want 200", resp.StatusCode)
	}
	body := decodeBody[map[string]any](t, resp)
	if body["status"] != "logged_out" {
		t.Fatalf("status field = %v, want logged_out", body["status"])
	}

	resp = c.post("/v1/auth/login", loginRequest{Login: "aline", Password: "s3cret"}, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("re-login status = %d, want 200", resp.StatusCode)
	}
}

func TestSessionReflectsLogin(t *testing.T) {
	c := newTestAPI(t)
	createUser(t, c, "aline", "s3cret")

	resp := c.get("/v1/auth/session", nil, nil)
	anon := decodeBody[sessionResponse](t, resp)
	if anon.Authenticated {
		t.Fatal("expected unauthenticated session before login")
	}

	r := c.post("/v1/auth/login", loginRequest{Login: "aline", Password: "s3cret"}, nil)
	r.Body.Close()

	resp = c.get("/v1/auth/session", nil, nil)
	sess := decodeBody[sessionResponse](t, resp)
	if !sess.Authenticated {
		t.Fatal("expected authenticated session after login")
	}
	if sess.User == nil || sess.User.Login != "aline" {
		t.Fatalf("session user = %+v, want aline", sess.User)
	}
	found := false
	for _, p := range sess.Permissions {
		if p.Name == access.UserRolePermissionName {
			found = true
		}
	}
	if !found {
		t.Fatalf("permissions %v missing %s", sess.Permissions, access.UserRolePermissionName)
	}
}

func TestGetUserByLogin(t *testing.T) {
	c := newTestAPI(t)
	createUser(t, c, "aline", "s3cret")

	resp := c.get("/v1/users/aline", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body := decodeBody[map[string]any](t, resp)
	if body["login"] != "aline" {
		t.Fatalf("login = %v, want aline", body["login"])
	}

	resp = c.get("/v1/users/ghost", nil, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown user status = %d, want 404", resp.StatusCode)
	}
}

func TestPasswordReset(t *testing.T) {
	c := newTestAPI(t)
	createUser(t, c, "aline", "s3cret")

	resp := c.post("/v1/users/aline/password", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body := decodeBody[map[string]string](t, resp)
	if !regexp.MustCompile(`^[a-z]{7}$`).MatchString(body["password"]) {
		t.Fatalf("password = %q, want 7 lowercase letters", body["password"])
	}

	old := c.post("/v1/auth/login", loginRequest{Login: "aline", Password: "s3cret"}, nil)
	old.Body.Close()
	if old.StatusCode != http.StatusUnauthorized {
		t.Fatalf("old password status = %d, want 401", old.StatusCode)
	}

	fresh := c.post("/v1/auth/login", loginRequest{Login: "aline", Password: body["password"]}, nil)
	fresh.Body.Close()
	if fresh.StatusCode != http.StatusOK {
		t.Fatalf("new password status = %d, want 200", fresh.StatusCode)
	}
}
