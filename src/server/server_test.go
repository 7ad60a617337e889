package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gistlick-api/src/config"
	"gistlick-api/src/license"
)

const testToken = "gho_testtoken"

// stubGithub is an in-memory GitHub API good enough for full request flows:
// token check on /user, gist CRUD, whole-file content updates.
type stubGithub struct {
	gists map[string]*stubGist
}

type stubGist struct {
	name    string
	content string
	public  bool
	desc    string
}

func newStubGithub() *stubGithub {
	return &stubGithub{gists: map[string]*stubGist{}}
}

func (s *stubGithub) apiGist(id string, g *stubGist) map[string]any {
	return map[string]any{
		"id":          id,
		"description": g.desc,
		"public":      g.public,
		"created_at":  "2024-01-01T00:00:00Z",
		"updated_at":  "2024-02-01T00:00:00Z",
		"files": map[string]any{
			g.name: map[string]any{
				"filename": g.name,
				"raw_url":  "https://example.com/raw/" + g.name,
				"content":  g.content,
			},
		},
	}
}

func (s *stubGithub) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+testToken {
			w.WriteHeader(http.StatusUnauthorized)
			io.WriteString(w, `{"message":"Bad credentials"}`)
			return
		}

		switch {
		case r.URL.Path == "/user":
			io.WriteString(w, `{"id":42,"login":"octocat","created_at":"2020-01-01T00:00:00Z","updated_at":"2024-01-01T00:00:00Z","followers":3,"following":1}`)

		case r.URL.Path == "/gists" && r.Method == http.MethodGet:
			list := []map[string]any{}
			for id, g := range s.gists {
				list = append(list, s.apiGist(id, g))
			}
			json.NewEncoder(w).Encode(list)

		case r.URL.Path == "/gists" && r.Method == http.MethodPost:
			var body struct {
				Description string `json:"description"`
				Public      bool   `json:"public"`
				Files       map[string]struct {
					Content string `json:"content"`
				} `json:"files"`
			}
			json.NewDecoder(r.Body).Decode(&body)
			id := fmt.Sprintf("gist%d", len(s.gists)+1)
			for name, f := range body.Files {
				s.gists[id] = &stubGist{name: name, content: f.Content, public: body.Public, desc: body.Description}
			}
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(s.apiGist(id, s.gists[id]))

		case strings.HasPrefix(r.URL.Path, "/gists/"):
			id := strings.TrimPrefix(r.URL.Path, "/gists/")
			g, ok := s.gists[id]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				io.WriteString(w, `{"message":"Not Found"}`)
				return
			}

			switch r.Method {
			case http.MethodGet:
				json.NewEncoder(w).Encode(s.apiGist(id, g))
			case http.MethodPatch:
				var body struct {
					Description *string `json:"description"`
					Files       map[string]struct {
						Content  *string `json:"content"`
						Filename *string `json:"filename"`
					} `json:"files"`
				}
				json.NewDecoder(r.Body).Decode(&body)
				if body.Description != nil {
					g.desc = *body.Description
				}
				for _, f := range body.Files {
					if f.Content != nil {
						g.content = *f.Content
					}
					if f.Filename != nil {
						g.name = *f.Filename
					}
				}
				json.NewEncoder(w).Encode(s.apiGist(id, g))
			case http.MethodDelete:
				delete(s.gists, id)
				w.WriteHeader(http.StatusNoContent)
			}

		default:
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `{"message":"Not Found"}`)
		}
	})
}

// newTestServer wires the full router against a stub GitHub backend.
func newTestServer(t *testing.T) (*testRouter, *stubGithub) {
	t.Helper()

	github := newStubGithub()
	backend := httptest.NewServer(github.handler())
	t.Cleanup(backend.Close)

	cfg := config.Config{
		Port:         8080,
		GithubAPIURL: backend.URL,
		HTTPTimeout:  5 * time.Second,
	}

	return &testRouter{router: NewServe(cfg).Router()}, github
}

// testRouter is a tiny helper for driving the router in tests.
type testRouter struct {
	router http.Handler
}

func (m *testRouter) do(t *testing.T, method, path string, body any, authorized bool) *httptest.ResponseRecorder {
	t.Helper()

	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reqBody = bytes.NewReader(b)
	}

	req := httptest.NewRequest(method, path, reqBody)
	if authorized {
		req.Header.Set("Authorization", "Bearer "+testToken)
	}

	rr := httptest.NewRecorder()
	m.router.ServeHTTP(rr, req)
	return rr
}

func TestRootNeedsNoAuth(t *testing.T) {
	m, _ := newTestServer(t)

	rr := m.do(t, "GET", "/", nil, false)
	if rr.Code != 200 {
		t.Errorf("root expected response 200 but got %d", rr.Code)
	}
}

func TestMissingBearerToken(t *testing.T) {
	m, _ := newTestServer(t)

	rr := m.do(t, "GET", "/gists", nil, false)
	if rr.Code != 401 {
		t.Errorf("expected 401 without a token but got %d", rr.Code)
	}

	var errRes ErrorRes
	if err := json.Unmarshal(rr.Body.Bytes(), &errRes); err != nil {
		t.Fatal("error response body missing or malformed")
	}
	if errRes.Message == "" {
		t.Error("error response should carry a message")
	}
}

func TestMalformedAuthorizationHeader(t *testing.T) {
	m, _ := newTestServer(t)

	req := httptest.NewRequest("GET", "/gists", nil)
	req.Header.Set("Authorization", "Token abc")

	rr := httptest.NewRecorder()
	m.router.ServeHTTP(rr, req)

	if rr.Code != 401 {
		t.Errorf("expected 401 for a non-bearer header but got %d", rr.Code)
	}
}

func TestInvalidTokenRejectedUpstream(t *testing.T) {
	m, _ := newTestServer(t)

	req := httptest.NewRequest("GET", "/gists", nil)
	req.Header.Set("Authorization", "Bearer wrong")

	rr := httptest.NewRecorder()
	m.router.ServeHTTP(rr, req)

	if rr.Code != 401 {
		t.Errorf("expected 401 for a rejected token but got %d", rr.Code)
	}
}

func TestGetMe(t *testing.T) {
	m, _ := newTestServer(t)

	rr := m.do(t, "GET", "/user/me", nil, true)
	if rr.Code != 200 {
		t.Fatalf("expected 200 but got %d", rr.Code)
	}

	var user struct {
		ID   int64  `json:"id"`
		User string `json:"user"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &user); err != nil {
		t.Fatal(err)
	}
	if user.ID != 42 || user.User != "octocat" {
		t.Errorf("unexpected identity: %+v", user)
	}
}

func TestGistCRUD(t *testing.T) {
	m, github := newTestServer(t)

	rr := m.do(t, "POST", "/gists", GistCreateReq{Name: "licenses.json", Public: false}, true)
	if rr.Code != 201 {
		t.Fatalf("create gist expected 201 but got %d: %s", rr.Code, rr.Body.String())
	}

	var created struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}
	if created.Name != "licenses.json" {
		t.Errorf("gist name = %q", created.Name)
	}
	if github.gists[created.ID].content != "[]" {
		t.Error("a new gist should be seeded with an empty license array")
	}

	rr = m.do(t, "GET", "/gists/"+created.ID, nil, true)
	if rr.Code != 200 {
		t.Errorf("get gist expected 200 but got %d", rr.Code)
	}

	desc := "updated description"
	rr = m.do(t, "PUT", "/gists/"+created.ID, map[string]any{"description": desc}, true)
	if rr.Code != 200 {
		t.Errorf("update gist expected 200 but got %d", rr.Code)
	}
	if github.gists[created.ID].desc != desc {
		t.Errorf("description = %q, want %q", github.gists[created.ID].desc, desc)
	}

	rr = m.do(t, "DELETE", "/gists/"+created.ID, nil, true)
	if rr.Code != 204 {
		t.Errorf("delete gist expected 204 but got %d", rr.Code)
	}
	if _, ok := github.gists[created.ID]; ok {
		t.Error("gist should be gone after delete")
	}

	rr = m.do(t, "GET", "/gists/"+created.ID, nil, true)
	if rr.Code != 404 {
		t.Errorf("get deleted gist expected 404 but got %d", rr.Code)
	}
}

func TestLicenseLifecycle(t *testing.T) {
	m, github := newTestServer(t)
	github.gists["g1"] = &stubGist{name: "licenses.json", content: "[]"}

	// Create.
	rr := m.do(t, "POST", "/gists/g1/licenses", LicenseCreateReq{
		User:        "alice",
		Plan:        "trial",
		Machine:     "m1",
		ExpiredDays: 1,
	}, true)
	if rr.Code != 201 {
		t.Fatalf("create license expected 201 but got %d: %s", rr.Code, rr.Body.String())
	}

	var created license.Record
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}
	if created.User != "alice" || created.IsExpired {
		t.Errorf("unexpected created record: %+v", created)
	}
	if created.GistID != "g1" || created.GistName != "licenses.json" {
		t.Errorf("derived gist fields missing: %+v", created)
	}

	key := created.License.License

	// List shows it, unexpired.
	rr = m.do(t, "GET", "/gists/g1/licenses", nil, true)
	if rr.Code != 200 {
		t.Fatalf("list licenses expected 200 but got %d", rr.Code)
	}
	var records []license.Record
	if err := json.Unmarshal(rr.Body.Bytes(), &records); err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].License.License != key || records[0].IsExpired {
		t.Errorf("unexpected listing: %+v", records)
	}

	// Update only the plan.
	rr = m.do(t, "PUT", "/gists/g1/licenses/"+key, map[string]string{"plan": "premium"}, true)
	if rr.Code != 200 {
		t.Fatalf("update license expected 200 but got %d: %s", rr.Code, rr.Body.String())
	}
	var updated license.Record
	if err := json.Unmarshal(rr.Body.Bytes(), &updated); err != nil {
		t.Fatal(err)
	}
	if updated.Plan != "premium" || updated.User != "alice" || updated.Machine != "m1" {
		t.Errorf("update must merge only the provided fields: %+v", updated)
	}

	// Delete, then delete again.
	rr = m.do(t, "DELETE", "/gists/g1/licenses/"+key, nil, true)
	if rr.Code != 204 {
		t.Errorf("delete license expected 204 but got %d", rr.Code)
	}
	rr = m.do(t, "DELETE", "/gists/g1/licenses/"+key, nil, true)
	if rr.Code != 404 {
		t.Errorf("second delete expected 404 but got %d", rr.Code)
	}
}

func TestCreateLicenseRejectsBadDays(t *testing.T) {
	m, github := newTestServer(t)
	github.gists["g1"] = &stubGist{name: "licenses.json", content: "[]"}

	rr := m.do(t, "POST", "/gists/g1/licenses", LicenseCreateReq{
		User:        "alice",
		Plan:        "trial",
		Machine:     "m1",
		ExpiredDays: -1,
	}, true)
	if rr.Code != 400 {
		t.Errorf("expected 400 for negative expired_days but got %d", rr.Code)
	}

	rr = m.do(t, "POST", "/gists/g1/licenses", LicenseCreateReq{User: "alice"}, true)
	if rr.Code != 400 {
		t.Errorf("expected 400 for missing fields but got %d", rr.Code)
	}
}

func TestListLicensesBadDocument(t *testing.T) {
	m, github := newTestServer(t)
	github.gists["g1"] = &stubGist{name: "licenses.json", content: `{"not":"an array"}`}

	rr := m.do(t, "GET", "/gists/g1/licenses", nil, true)
	if rr.Code != 400 {
		t.Errorf("expected 400 for a non-array document but got %d", rr.Code)
	}
}

func TestDeleteExpiredLicenses(t *testing.T) {
	m, github := newTestServer(t)
	github.gists["g1"] = &stubGist{
		name:    "licenses.json",
		content: `[{"license":"K1","expired":"2000-01-01 00:00:00"},{"license":"K2","expired":"2099-01-01 00:00:00"}]`,
	}

	rr := m.do(t, "DELETE", "/gists/g1/licenses/expired", nil, true)
	if rr.Code != 200 {
		t.Fatalf("delete expired expected 200 but got %d: %s", rr.Code, rr.Body.String())
	}

	var res DeletedCountRes
	if err := json.Unmarshal(rr.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if res.DeletedCount != 1 {
		t.Errorf("deleted_count = %d, want 1", res.DeletedCount)
	}
	if !strings.Contains(github.gists["g1"].content, "K2") || strings.Contains(github.gists["g1"].content, "K1") {
		t.Errorf("stored document after bulk delete: %s", github.gists["g1"].content)
	}
}

func TestRawData(t *testing.T) {
	m, github := newTestServer(t)
	github.gists["g1"] = &stubGist{name: "licenses.json", content: `[{"license":"K1"}]`}

	rr := m.do(t, "GET", "/gists/g1/raw_data", nil, true)
	if rr.Code != 200 {
		t.Fatalf("raw_data expected 200 but got %d", rr.Code)
	}
	if strings.TrimSpace(rr.Body.String()) != `[{"license":"K1"}]` {
		t.Errorf("raw_data body = %s", rr.Body.String())
	}

	// Unknown file names surface as bad request.
	rr = m.do(t, "GET", "/gists/g1/raw_data?file_name=nope.txt", nil, true)
	if rr.Code != 400 {
		t.Errorf("raw_data with a missing file expected 400 but got %d", rr.Code)
	}
}

func TestRequestIDHeader(t *testing.T) {
	m, _ := newTestServer(t)

	rr := m.do(t, "GET", "/", nil, false)
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("every response should carry a request ID")
	}
}
