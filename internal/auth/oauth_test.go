package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"golang.org/x/oauth2"
)

// fakeGitHub serves the token endpoint and the two API calls Exchange makes.
func fakeGitHub(t *testing.T, userJSON, emailsJSON string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/login/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"gho_test","token_type":"bearer"}`))
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer gho_test" {
			http.Error(w, "bad token", http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(userJSON))
	})
	mux.HandleFunc("/user/emails", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(emailsJSON))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	old := GitHubAPIBase
	GitHubAPIBase = srv.URL
	t.Cleanup(func() { GitHubAPIBase = old })
	return srv
}

func testProvider(srv *httptest.Server) *GitHubProvider {
	p := NewGitHubProvider("client-id", "client-secret", "http://localhost/callback")
	p.config.Endpoint = oauth2.Endpoint{
		AuthURL:  srv.URL + "/login/oauth/authorize",
		TokenURL: srv.URL + "/login/oauth/access_token",
	}
	return p
}

func TestAuthURL_CarriesState(t *testing.T) {
	p := NewGitHubProvider("client-id", "secret", "http://localhost/callback")
	u, err := url.Parse(p.AuthURL("state-123"))
	if err != nil {
		t.Fatalf("parsing AuthURL: %v", err)
	}
	if got := u.Query().Get("state"); got != "state-123" {
		t.Errorf("state = %q", got)
	}
	if got := u.Query().Get("client_id"); got != "client-id" {
		t.Errorf("client_id = %q", got)
	}
}

func TestExchange_ProfileEmail(t *testing.T) {
	srv := fakeGitHub(t, `{"id":42,"login":"octo","name":"","email":"octo@x.com"}`, `[]`)

	u, err := testProvider(srv).Exchange(context.Background(), "code")
	if err != nil {
		t.Fatalf("Exchange() error = %v", err)
	}
	if u.ID != 42 || u.Email != "octo@x.com" || u.DisplayName() != "octo" {
		t.Errorf("Exchange() = %+v", u)
	}
}

func TestExchange_FallsBackToPrimaryVerifiedEmail(t *testing.T) {
	srv := fakeGitHub(t,
		`{"id":7,"login":"octo","name":"Octo Cat","email":""}`,
		`[{"email":"old@x.com","primary":false,"verified":true},{"email":"main@x.com","primary":true,"verified":true}]`)

	u, err := testProvider(srv).Exchange(context.Background(), "code")
	if err != nil {
		t.Fatalf("Exchange() error = %v", err)
	}
	if u.Email != "main@x.com" || u.DisplayName() != "Octo Cat" {
		t.Errorf("Exchange() = %+v", u)
	}
}

func TestExchange_NoUsableEmail(t *testing.T) {
	srv := fakeGitHub(t, `{"id":7,"login":"octo"}`, `[{"email":"x@x.com","primary":true,"verified":false}]`)

	_, err := testProvider(srv).Exchange(context.Background(), "code")
	if err == nil || !strings.Contains(err.Error(), "no verified primary email") {
		t.Fatalf("Exchange() error = %v", err)
	}
}
