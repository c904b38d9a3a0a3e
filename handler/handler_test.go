package handler_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/Neos21/db-api/handler"
	"github.com/Neos21/db-api/registry"
	"github.com/Neos21/db-api/store"
	"github.com/Neos21/db-api/telemetry"
	"github.com/Neos21/db-api/tenant"
)

const master = "master-secret"

func setup(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	dir := t.TempDir()

	docReg, err := registry.Open("json", dir, "json-db-registry")
	if err != nil {
		t.Fatal(err)
	}
	docStore, err := store.NewJsonFileStore(filepath.Join(dir, "json-db"))
	if err != nil {
		t.Fatal(err)
	}
	sqlReg, err := registry.Open("sqlite", dir, "sqlite-registry")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { sqlReg.Close() })
	sqlStore, err := store.NewSqliteStore(filepath.Join(dir, "sqlite"))
	if err != nil {
		t.Fatal(err)
	}

	h := handler.New(handler.Options{
		Credential:      master,
		Documents:       tenant.NewManager(docReg, docStore, zerolog.Nop()),
		DocumentStore:   docStore,
		Relational:      tenant.NewManager(sqlReg, sqlStore, zerolog.Nop()),
		RelationalStore: sqlStore,
		AllowedOrigins:  []string{"*"},
		Metrics:         telemetry.NewMetrics(true),
		MetricsPath:     "/metrics",
		Logger:          zerolog.Nop(),
	})
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	return ts, dir
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func decodeJSON(t *testing.T, r io.Reader) map[string]any {
	t.Helper()
	var v map[string]any
	if err := json.NewDecoder(r).Decode(&v); err != nil {
		t.Fatal(err)
	}
	return v
}

// post sends body to path and returns the status and decoded response.
// A 204 response decodes to nil.
func post(t *testing.T, ts *httptest.Server, path string, body any) (int, map[string]any) {
	t.Helper()
	var raw []byte
	if s, ok := body.(string); ok {
		raw = []byte(s)
	} else {
		raw = mustJSON(t, body)
	}
	resp, err := http.Post(ts.URL+path, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNoContent {
		return resp.StatusCode, nil
	}
	return resp.StatusCode, decodeJSON(t, resp.Body)
}

func expectError(t *testing.T, status int, body map[string]any, wantStatus int, wantMsg string) {
	t.Helper()
	if status != wantStatus {
		t.Fatalf("expected %d, got %d (%v)", wantStatus, status, body)
	}
	if body["error"] != wantMsg {
		t.Fatalf("expected error %q, got %v", wantMsg, body["error"])
	}
}

func createDB(t *testing.T, ts *httptest.Server, family, name, cred string) {
	t.Helper()
	status, body := post(t, ts, "/"+family+"/create-db", map[string]any{
		"credential": master, "db_name": name, "db_credential": cred,
	})
	if status != http.StatusCreated || body["result"] != "Created" {
		t.Fatalf("create-db %s: %d %v", name, status, body)
	}
}

func TestStaticRoutes(t *testing.T) {
	ts, _ := setup(t)

	resp, err := http.Get(ts.URL + "/robots.txt")
	if err != nil {
		t.Fatal(err)
	}
	b, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(b) != "User-agent: *\nDisallow: /\n" {
		t.Fatalf("unexpected robots.txt: %q", b)
	}

	resp, err = http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if id := resp.Header.Get("X-Request-Id"); id == "" {
		t.Fatal("expected a request id header")
	}
	body := decodeJSON(t, resp.Body)
	resp.Body.Close()
	if body["status"] != "healthy" {
		t.Fatalf("expected healthy, got %v", body["status"])
	}
}

func TestLifecycleRoutes(t *testing.T) {
	for _, family := range []string{"json-db", "sqlite"} {
		t.Run(family, func(t *testing.T) {
			ts, _ := setup(t)

			status, body := post(t, ts, "/"+family+"/list-db-names", map[string]any{"credential": "wrong"})
			expectError(t, status, body, 400, "Invalid Credential")

			status, body = post(t, ts, "/"+family+"/list-db-names", map[string]any{"credential": master})
			if status != 200 {
				t.Fatalf("expected 200, got %d", status)
			}
			if names := body["db_names"].([]any); len(names) != 0 {
				t.Fatalf("expected no names, got %v", names)
			}

			createDB(t, ts, family, "first-db", "password1")
			createDB(t, ts, family, "second", "password2")

			status, body = post(t, ts, "/"+family+"/create-db", map[string]any{
				"credential": master, "db_name": "first-db", "db_credential": "password9",
			})
			expectError(t, status, body, 400, "The Name Of DB Already Exists")

			status, body = post(t, ts, "/"+family+"/create-db", map[string]any{
				"credential": master, "db_name": "bad-", "db_credential": "password1",
			})
			expectError(t, status, body, 400, "Invalid DB Name Pattern")

			status, body = post(t, ts, "/"+family+"/create-db", map[string]any{
				"credential": master, "db_name": "short", "db_credential": "pw",
			})
			expectError(t, status, body, 400, "DB Credential Is Too Short. Please Input 8 Characters Or More")

			_, body = post(t, ts, "/"+family+"/list-db-names", map[string]any{"credential": master})
			names := body["db_names"].([]any)
			if len(names) != 2 || names[0] != "first-db" || names[1] != "second" {
				t.Fatalf("unexpected names %v", names)
			}

			status, body = post(t, ts, "/"+family+"/delete-db", map[string]any{
				"credential": master, "db_name": "first-db", "db_credential": "password2",
			})
			expectError(t, status, body, 400, "The DB Does Not Exist")

			status, _ = post(t, ts, "/"+family+"/delete-db", map[string]any{
				"credential": master, "db_name": "first-db", "db_credential": "password1",
			})
			if status != http.StatusNoContent {
				t.Fatalf("expected 204, got %d", status)
			}

			_, body = post(t, ts, "/"+family+"/list-db-names", map[string]any{"credential": master})
			if names := body["db_names"].([]any); len(names) != 1 || names[0] != "second" {
				t.Fatalf("unexpected names after delete %v", names)
			}
		})
	}
}

func TestFamiliesAreIndependent(t *testing.T) {
	ts, _ := setup(t)
	createDB(t, ts, "json-db", "shared", "password1")
	createDB(t, ts, "sqlite", "shared", "password1")
	createDB(t, ts, "json-db", "docs-only", "password1")

	status, body := post(t, ts, "/sqlite/all", map[string]any{
		"db_name": "docs-only", "db_credential": "password1", "sql": "SELECT 1",
	})
	expectError(t, status, body, 400, "The DB Does Not Exist")
}

func TestDocumentRoutes(t *testing.T) {
	ts, dir := setup(t)
	createDB(t, ts, "json-db", "notes", "password1")
	auth := func(extra map[string]any) map[string]any {
		m := map[string]any{"db_name": "notes", "db_credential": "password1"}
		for k, v := range extra {
			m[k] = v
		}
		return m
	}

	status, body := post(t, ts, "/json-db/find-all", map[string]any{"db_name": "notes", "db_credential": "password2"})
	expectError(t, status, body, 400, "The DB Does Not Exist")

	status, body = post(t, ts, "/json-db/create", auth(map[string]any{"item": []any{1}}))
	expectError(t, status, body, 400, "The Item Is Not A Object")

	status, body = post(t, ts, "/json-db/create", auth(map[string]any{"item": map[string]any{"title": "a", "id": 42}}))
	if status != 200 {
		t.Fatalf("create: %d %v", status, body)
	}
	created := body["result"].(map[string]any)
	if created["id"] != float64(1) || created["title"] != "a" {
		t.Fatalf("unexpected created doc %v", created)
	}
	post(t, ts, "/json-db/create", auth(map[string]any{"item": map[string]any{"title": "b"}}))

	_, body = post(t, ts, "/json-db/find-all", auth(nil))
	if results := body["results"].([]any); len(results) != 2 {
		t.Fatalf("expected 2 docs, got %v", results)
	}

	_, body = post(t, ts, "/json-db/find-by-id", auth(map[string]any{"id": 2}))
	if doc := body["result"].(map[string]any); doc["title"] != "b" {
		t.Fatalf("unexpected doc %v", doc)
	}

	status, body = post(t, ts, "/json-db/find-by-id", auth(map[string]any{"id": 99}))
	if v, ok := body["result"]; status != 200 || !ok || v != nil {
		t.Fatalf("expected null result, got %d %v", status, body)
	}

	status, body = post(t, ts, "/json-db/find-by-id", auth(map[string]any{"id": "1"}))
	if status != 400 || !strings.HasPrefix(body["error"].(string), "Invalid Request") {
		t.Fatalf("expected type error, got %d %v", status, body)
	}

	_, body = post(t, ts, "/json-db/put-by-id", auth(map[string]any{"id": 1, "item": map[string]any{"x": 1}}))
	if doc := body["result"].(map[string]any); len(doc) != 2 || doc["x"] != float64(1) || doc["id"] != float64(1) {
		t.Fatalf("put should replace the document, got %v", doc)
	}

	_, body = post(t, ts, "/json-db/patch-by-id", auth(map[string]any{"id": 1, "item": map[string]any{"y": 2, "x": nil}}))
	if doc := body["result"].(map[string]any); len(doc) != 3 || doc["y"] != float64(2) {
		t.Fatalf("patch should merge, got %v", doc)
	}

	for _, path := range []string{"/json-db/put-by-id", "/json-db/patch-by-id", "/json-db/delete-by-id"} {
		status, body = post(t, ts, path, auth(map[string]any{"id": 77, "item": map[string]any{}}))
		expectError(t, status, body, 400, "The Item Not Found (Invalid ID)")
	}

	_, body = post(t, ts, "/json-db/delete-by-id", auth(map[string]any{"id": 1}))
	if doc := body["result"].(map[string]any); doc["y"] != float64(2) {
		t.Fatalf("expected deleted doc, got %v", doc)
	}

	// Corrupt the file: reads now fail as infrastructure errors.
	if err := os.WriteFile(filepath.Join(dir, "json-db", "notes.json"), []byte("{oops"), 0o644); err != nil {
		t.Fatal(err)
	}
	status, body = post(t, ts, "/json-db/find-all", auth(nil))
	if status != 500 || !strings.HasPrefix(body["error"].(string), "Failed To Find All : ") {
		t.Fatalf("expected 500, got %d %v", status, body)
	}
}

func TestRelationalRoutes(t *testing.T) {
	ts, _ := setup(t)
	createDB(t, ts, "sqlite", "shop", "password1")
	req := func(sql string, params any) map[string]any {
		return map[string]any{"db_name": "shop", "db_credential": "password1", "sql": sql, "params": params}
	}

	status, body := post(t, ts, "/sqlite/run", req("  ", nil))
	expectError(t, status, body, 400, "The SQL Is Empty")

	status, body = post(t, ts, "/sqlite/run", req("CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT UNIQUE)", nil))
	if status != 200 {
		t.Fatalf("create table: %d %v", status, body)
	}

	_, body = post(t, ts, "/sqlite/run", req("INSERT INTO items (name) VALUES (?)", []any{"apple"}))
	if res := body["result"].(map[string]any); res["last_id"] != float64(1) || res["changes"] != float64(1) {
		t.Fatalf("unexpected run result %v", res)
	}
	post(t, ts, "/sqlite/run", req("INSERT INTO items (name) VALUES (:name)", map[string]any{":name": "pear"}))

	_, body = post(t, ts, "/sqlite/get", req("SELECT * FROM items WHERE name = $name", map[string]any{"name": "pear"}))
	if row := body["result"].(map[string]any); row["id"] != float64(2) {
		t.Fatalf("unexpected row %v", row)
	}

	_, body = post(t, ts, "/sqlite/get", req("SELECT * FROM items WHERE id = ?", []any{9}))
	if v, ok := body["result"]; !ok || v != nil {
		t.Fatalf("expected null row, got %v", body)
	}

	_, body = post(t, ts, "/sqlite/all", req("SELECT name FROM items ORDER BY id", nil))
	if rows := body["results"].([]any); len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %v", rows)
	}

	status, body = post(t, ts, "/sqlite/run", req("INSERT INTO items (name) VALUES ('apple')", nil))
	if status != 500 || !strings.HasPrefix(body["error"].(string), "Failed To Run : ") {
		t.Fatalf("expected constraint failure as 500, got %d %v", status, body)
	}
}

func TestMalformedBody(t *testing.T) {
	ts, _ := setup(t)

	status, body := post(t, ts, "/json-db/list-db-names", "{not json")
	if status != 400 || !strings.HasPrefix(body["error"].(string), "Invalid JSON") {
		t.Fatalf("expected 400, got %d %v", status, body)
	}

	status, body = post(t, ts, "/json-db/list-db-names", "")
	expectError(t, status, body, 400, "Invalid Credential")
}

func TestCORSPreflight(t *testing.T) {
	ts, _ := setup(t)

	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/json-db/find-all", nil)
	req.Header.Set("Origin", "https://app.example")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("expected wildcard origin, got %q", got)
	}
	if got := resp.Header.Get("Access-Control-Allow-Credentials"); got != "" {
		t.Fatalf("expected no credentials header with wildcard origin, got %q", got)
	}
	if got := resp.Header.Get("Access-Control-Allow-Methods"); !strings.Contains(got, "PATCH") {
		t.Fatalf("expected PATCH in allowed methods, got %q", got)
	}
}

func TestSwagger(t *testing.T) {
	ts, _ := setup(t)

	resp, err := http.Get(ts.URL + "/swagger/json")
	if err != nil {
		t.Fatal(err)
	}
	doc := decodeJSON(t, resp.Body)
	resp.Body.Close()
	paths := doc["paths"].(map[string]any)
	if len(paths) != 15 {
		t.Fatalf("expected 15 operations, got %d", len(paths))
	}
	op := paths["/json-db/create-db"].(map[string]any)["post"].(map[string]any)
	if _, ok := op["responses"].(map[string]any)["201"]; !ok {
		t.Fatalf("create-db should document 201: %v", op["responses"])
	}

	resp, err = http.Get(ts.URL + "/swagger/yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var fromYAML map[string]any
	if err := yaml.NewDecoder(resp.Body).Decode(&fromYAML); err != nil {
		t.Fatal(err)
	}
	if fromYAML["openapi"] != "3.0.3" {
		t.Fatalf("unexpected yaml document: %v", fromYAML["openapi"])
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts, _ := setup(t)
	post(t, ts, "/json-db/list-db-names", map[string]any{"credential": "nope"})

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(b), `dbapi_operation_failures_total{kind="validation",route="POST /json-db/list-db-names"} 1`) {
		t.Fatalf("failure not counted:\n%s", b)
	}
	if !strings.Contains(string(b), `route="POST /json-db/list-db-names",status="400"`) {
		t.Fatalf("request not counted:\n%s", b)
	}
}
