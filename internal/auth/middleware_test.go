package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// echoUser writes the user id from the context, or "anonymous".
var echoUser = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	id, ok := UserIDFromContext(r.Context())
	if !ok {
		id = "anonymous"
	}
	_, _ = w.Write([]byte(id))
})

func serve(h http.Handler, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestBearerToken(t *testing.T) {
	cases := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc.def.ghi", "abc.def.ghi", true},
		{"bearer abc", "abc", true},
		{"  Bearer   abc  ", "abc", true},
		{"Basic dXNlcjpwYXNz", "", false},
		{"Bearer", "", false},
		{"Bearer ", "", false},
		{"abc.def.ghi", "", false},
	}
	for _, tc := range cases {
		got, ok := BearerToken(tc.header)
		if got != tc.want || ok != tc.ok {
			t.Errorf("BearerToken(%q) = (%q, %v), want (%q, %v)", tc.header, got, ok, tc.want, tc.ok)
		}
	}
}

func TestRequireAuth(t *testing.T) {
	ts := newTestTokenService(t)
	h := RequireAuth(ts)(echoUser)

	valid, _ := ts.Generate(testUserID)
	expired, _ := ts.GenerateWithDuration(testUserID, -time.Minute)

	cases := []struct {
		name        string
		header      string
		wantStatus  int
		wantMessage string
	}{
		{"valid", "Bearer " + valid, http.StatusOK, ""},
		{"missing", "", http.StatusUnauthorized, msgNoToken},
		{"wrong scheme", "Token " + valid, http.StatusUnauthorized, msgInvalidToken},
		{"garbage", "Bearer nope", http.StatusUnauthorized, msgInvalidToken},
		{"expired", "Bearer " + expired, http.StatusUnauthorized, msgExpiredToken},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := serve(h, tc.header)
			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			if tc.wantStatus == http.StatusOK {
				if rec.Body.String() != testUserID {
					t.Errorf("body = %q, want user id", rec.Body.String())
				}
				return
			}

			var body struct {
				Success bool   `json:"success"`
				Message string `json:"message"`
				Error   string `json:"error"`
			}
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decoding 401 body: %v", err)
			}
			if body.Success || body.Message != tc.wantMessage || body.Error != "auth_error" {
				t.Errorf("body = %+v, want message %q", body, tc.wantMessage)
			}
		})
	}
}

func TestOptionalAuth(t *testing.T) {
	ts := newTestTokenService(t)
	h := OptionalAuth(ts)(echoUser)
	valid, _ := ts.Generate(testUserID)

	if got := serve(h, "").Body.String(); got != "anonymous" {
		t.Errorf("no header: body = %q, want anonymous", got)
	}
	if got := serve(h, "Bearer broken").Body.String(); got != "anonymous" {
		t.Errorf("bad token: body = %q, want anonymous", got)
	}
	rec := serve(h, "Bearer "+valid)
	if rec.Code != http.StatusOK || rec.Body.String() != testUserID {
		t.Errorf("valid token: %d %q", rec.Code, rec.Body.String())
	}
}
