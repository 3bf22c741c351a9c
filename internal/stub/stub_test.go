package stub

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dskow/devtoken/internal/apierror"
	"github.com/dskow/devtoken/internal/token"
)

var fixedNow = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	h := NewHandler(Options{
		Secret: []byte("secret"),
		Now:    func() time.Time { return fixedNow },
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func mint(t *testing.T, userID int64) string {
	t.Helper()
	tok, err := token.New(token.Settings{
		Secret:   []byte("secret"),
		Validity: time.Hour,
		UserID:   userID,
	}, token.WithClock(func() time.Time { return fixedNow })).Mint()
	if err != nil {
		t.Fatal(err)
	}
	return tok.Raw
}

func get(t *testing.T, url, bearer string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeError(t *testing.T, resp *http.Response) apierror.ErrorResponse {
	t.Helper()
	var e apierror.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&e); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return e
}

func TestGroupMembers_ValidToken(t *testing.T) {
	srv := newTestServer(t)

	resp := get(t, srv.URL+"/api/group-members?groupID=8", mint(t, 1))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID on response")
	}

	var body GroupMembersResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Members) != 1 {
		t.Fatalf("expected 1 member, got %d", len(body.Members))
	}
	m := body.Members[0]
	if m.UserID != 1 || m.GroupID != 8 {
		t.Errorf("expected user 1 in group 8, got %+v", m)
	}
	if !m.JoinedAt.Equal(fixedNow) {
		t.Errorf("expected joined_at %v, got %v", fixedNow, m.JoinedAt)
	}
}

func TestGroupMembers_Errors(t *testing.T) {
	srv := newTestServer(t)
	valid := mint(t, 1)

	tests := []struct {
		name       string
		path       string
		bearer     string
		wantStatus int
		wantCode   apierror.ErrorCode
	}{
		{name: "no token", path: "/api/group-members?groupID=8", wantStatus: http.StatusUnauthorized, wantCode: apierror.AuthMissingToken},
		{name: "bad token", path: "/api/group-members?groupID=8", bearer: "a.b.c", wantStatus: http.StatusUnauthorized, wantCode: apierror.AuthInvalidToken},
		{name: "missing group", path: "/api/group-members", bearer: valid, wantStatus: http.StatusBadRequest, wantCode: apierror.BadRequest},
		{name: "bad group", path: "/api/group-members?groupID=eight", bearer: valid, wantStatus: http.StatusBadRequest, wantCode: apierror.BadRequest},
		{name: "unknown path", path: "/api/groups", bearer: valid, wantStatus: http.StatusNotFound, wantCode: apierror.NotFound},
		{name: "unknown path unauthenticated", path: "/api/groups", wantStatus: http.StatusUnauthorized, wantCode: apierror.AuthMissingToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := get(t, srv.URL+tt.path, tt.bearer)
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("expected %d, got %d", tt.wantStatus, resp.StatusCode)
			}
			if e := decodeError(t, resp); e.ErrorCode != string(tt.wantCode) {
				t.Errorf("expected error_code %s, got %s", tt.wantCode, e.ErrorCode)
			}
		})
	}
}

func TestGroupMembers_MethodNotAllowed(t *testing.T) {
	srv := newTestServer(t)

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/group-members?groupID=8", strings.NewReader("{}"))
	req.Header.Set("Authorization", "Bearer "+mint(t, 1))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Allow") != http.MethodGet {
		t.Errorf("expected Allow: GET, got %q", resp.Header.Get("Allow"))
	}
}

func TestHealthAndMetrics_Unauthenticated(t *testing.T) {
	srv := newTestServer(t)

	for _, path := range []string{"/healthz", "/metrics"} {
		resp := get(t, srv.URL+path, "")
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, resp.StatusCode)
		}
	}
}
