// Package handler provides the HTTP API for the database server.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/Neos21/db-api/dberr"
	"github.com/Neos21/db-api/schema"
	"github.com/Neos21/db-api/store"
	"github.com/Neos21/db-api/telemetry"
	"github.com/Neos21/db-api/tenant"
	"github.com/Neos21/db-api/validate"
)

// Options are the dependencies of a Handler.
type Options struct {
	// Credential is the master credential for database administration.
	Credential string

	Documents     *tenant.Manager
	DocumentStore *store.JsonFileStore

	Relational      *tenant.Manager
	RelationalStore *store.SqliteStore

	AllowedOrigins []string
	Metrics        *telemetry.Metrics
	MetricsPath    string
	Logger         zerolog.Logger
}

// Handler holds the server dependencies and registers routes.
type Handler struct {
	gate       *validate.Gate
	documents  *tenant.Manager
	docs       *store.JsonFileStore
	relational *tenant.Manager
	sql        *store.SqliteStore
	metrics    *telemetry.Metrics
	log        zerolog.Logger
	mux        *http.ServeMux
	root       http.Handler
}

// New creates a Handler and wires up all routes and middleware.
func New(opts Options) *Handler {
	h := &Handler{
		gate:       validate.NewGate(opts.Credential),
		documents:  opts.Documents,
		docs:       opts.DocumentStore,
		relational: opts.Relational,
		sql:        opts.RelationalStore,
		metrics:    opts.Metrics,
		log:        telemetry.Component(opts.Logger, "http"),
		mux:        http.NewServeMux(),
	}
	h.routes(opts.MetricsPath)
	h.root = corsMiddleware(accessLog(h.mux, h.log, h.metrics), opts.AllowedOrigins)
	return h
}

// ServeHTTP makes Handler an http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.root.ServeHTTP(w, r)
}

func (h *Handler) routes(metricsPath string) {
	var patterns []string
	for _, rt := range h.routeTable() {
		pattern := rt.method + " " + rt.path
		h.mux.HandleFunc(pattern, h.operation(rt))
		patterns = append(patterns, pattern)
	}
	h.log.Info().Strs("routes", patterns).Msg("routes registered")

	h.mux.HandleFunc("GET /robots.txt", robots)
	h.mux.HandleFunc("GET /health", health)
	h.mux.HandleFunc("GET /swagger/json", serveOpenAPIJSON)
	h.mux.HandleFunc("GET /swagger/yaml", serveOpenAPIYAML)
	if h.metrics.Enabled() && metricsPath != "" {
		h.mux.Handle("GET "+metricsPath, h.metrics.Handler())
	}
}

// ---------- helpers ----------

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// readBody decodes the request body. An empty body reads as an empty object.
func readBody(r *http.Request) (any, error) {
	defer r.Body.Close()
	var v any
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		if errors.Is(err, io.EOF) {
			return map[string]any{}, nil
		}
		return nil, dberr.Validationf("Invalid JSON : %v", err)
	}
	return v, nil
}

// request is a type-checked request body. Absent and null fields read as
// zero values.
type request struct {
	Credential   string
	DBName       string
	DBCredential string
	ID           any
	Item         any
	SQL          string
	Params       any
}

func newRequest(body map[string]any) request {
	str := func(key string) string {
		s, _ := body[key].(string)
		return s
	}
	return request{
		Credential:   str("credential"),
		DBName:       str("db_name"),
		DBCredential: str("db_credential"),
		ID:           body["id"],
		Item:         body["item"],
		SQL:          str("sql"),
		Params:       body["params"],
	}
}

// docID returns the document id the request addresses. Ids that are absent
// or not whole numbers address no document.
func (req request) docID() (int64, bool) {
	f, ok := req.ID.(float64)
	if !ok || f != math.Trunc(f) {
		return 0, false
	}
	return int64(f), true
}

// ---------- operations ----------

// operation adapts a route to an http.HandlerFunc: it decodes and
// type-checks the body, runs the route and maps failures to responses.
func (h *Handler) operation(rt route) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Storage operations finish even if the client goes away.
		ctx := context.WithoutCancel(r.Context())

		result, err := h.decodeAndServe(ctx, r, rt)
		if err != nil {
			h.writeFailure(ctx, w, r, rt, err)
			return
		}
		if rt.status == http.StatusNoContent {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, rt.status, result)
	}
}

func (h *Handler) decodeAndServe(ctx context.Context, r *http.Request, rt route) (any, error) {
	body, err := readBody(r)
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(rt.request, body); err != nil {
		return nil, dberr.Validationf("Invalid Request : %v", err)
	}
	return rt.serve(ctx, newRequest(body.(map[string]any)))
}

func (h *Handler) writeFailure(ctx context.Context, w http.ResponseWriter, r *http.Request, rt route, err error) {
	kind := dberr.KindOf(err)
	h.metrics.RecordFailure(r.Pattern, kind.String())
	if kind.Expected() {
		writeError(w, http.StatusBadRequest, dberr.Reason(err))
		return
	}
	zerolog.Ctx(ctx).Error().Err(err).Str("route", rt.path).Str("kind", kind.String()).Msg("operation failed")
	writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed To %s : %s", rt.summary, err))
}

// Lifecycle operations, shared by both engine families.

func (h *Handler) listDBNames(m *tenant.Manager) serveFunc {
	return func(ctx context.Context, req request) (any, error) {
		if err := h.gate.Check(req.Credential); err != nil {
			return nil, err
		}
		names, err := m.ListDBNames(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{"db_names": names}, nil
	}
}

func (h *Handler) createDB(m *tenant.Manager) serveFunc {
	return func(ctx context.Context, req request) (any, error) {
		if err := h.gate.Check(req.Credential); err != nil {
			return nil, err
		}
		if err := m.CreateDB(ctx, req.DBName, req.DBCredential); err != nil {
			return nil, err
		}
		return map[string]any{"result": "Created"}, nil
	}
}

func (h *Handler) deleteDB(m *tenant.Manager) serveFunc {
	return func(ctx context.Context, req request) (any, error) {
		if err := h.gate.Check(req.Credential); err != nil {
			return nil, err
		}
		if err := m.Authorize(ctx, req.DBName, req.DBCredential); err != nil {
			return nil, err
		}
		return nil, m.DeleteDB(ctx, req.DBName, req.DBCredential)
	}
}

// Document operations.

var (
	errItemNotObject = dberr.Validationf("The Item Is Not A Object")
	errItemNotFound  = dberr.NotFoundf("The Item Not Found (Invalid ID)")
)

func (h *Handler) findAll(ctx context.Context, req request) (any, error) {
	if err := h.documents.Authorize(ctx, req.DBName, req.DBCredential); err != nil {
		return nil, err
	}
	docs, err := h.docs.FindAll(req.DBName)
	if err != nil {
		return nil, err
	}
	return map[string]any{"results": docs}, nil
}

func (h *Handler) findByID(ctx context.Context, req request) (any, error) {
	if err := h.documents.Authorize(ctx, req.DBName, req.DBCredential); err != nil {
		return nil, err
	}
	var doc store.Document
	if id, ok := req.docID(); ok {
		var err error
		if doc, err = h.docs.FindByID(req.DBName, id); err != nil {
			return nil, err
		}
	}
	return map[string]any{"result": doc}, nil
}

func (h *Handler) create(ctx context.Context, req request) (any, error) {
	if err := h.documents.Authorize(ctx, req.DBName, req.DBCredential); err != nil {
		return nil, err
	}
	if !validate.IsObject(req.Item) {
		return nil, errItemNotObject
	}
	doc, err := h.docs.Create(req.DBName, req.Item.(map[string]any))
	if err != nil {
		return nil, err
	}
	return map[string]any{"result": doc}, nil
}

// mutateByID runs fn for an addressed document and reports a missing one
// as not found.
func (h *Handler) mutateByID(ctx context.Context, req request, needItem bool, fn func(id int64) (store.Document, error)) (any, error) {
	if err := h.documents.Authorize(ctx, req.DBName, req.DBCredential); err != nil {
		return nil, err
	}
	if needItem && !validate.IsObject(req.Item) {
		return nil, errItemNotObject
	}
	id, ok := req.docID()
	if !ok {
		return nil, errItemNotFound
	}
	doc, err := fn(id)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, errItemNotFound
	}
	return map[string]any{"result": doc}, nil
}

func (h *Handler) putByID(ctx context.Context, req request) (any, error) {
	return h.mutateByID(ctx, req, true, func(id int64) (store.Document, error) {
		return h.docs.PutByID(req.DBName, id, req.Item.(map[string]any))
	})
}

func (h *Handler) patchByID(ctx context.Context, req request) (any, error) {
	return h.mutateByID(ctx, req, true, func(id int64) (store.Document, error) {
		return h.docs.PatchByID(req.DBName, id, req.Item.(map[string]any))
	})
}

func (h *Handler) deleteByID(ctx context.Context, req request) (any, error) {
	return h.mutateByID(ctx, req, false, func(id int64) (store.Document, error) {
		return h.docs.DeleteByID(req.DBName, id)
	})
}

// Relational operations.

func (h *Handler) checkSQL(ctx context.Context, req request) error {
	if err := h.relational.Authorize(ctx, req.DBName, req.DBCredential); err != nil {
		return err
	}
	if validate.IsEmpty(req.SQL) {
		return dberr.Validationf("The SQL Is Empty")
	}
	return nil
}

func (h *Handler) run(ctx context.Context, req request) (any, error) {
	if err := h.checkSQL(ctx, req); err != nil {
		return nil, err
	}
	res, err := h.sql.Run(ctx, req.DBName, req.SQL, req.Params)
	if err != nil {
		return nil, err
	}
	return map[string]any{"result": res}, nil
}

func (h *Handler) get(ctx context.Context, req request) (any, error) {
	if err := h.checkSQL(ctx, req); err != nil {
		return nil, err
	}
	row, err := h.sql.Get(ctx, req.DBName, req.SQL, req.Params)
	if err != nil {
		return nil, err
	}
	return map[string]any{"result": row}, nil
}

func (h *Handler) all(ctx context.Context, req request) (any, error) {
	if err := h.checkSQL(ctx, req); err != nil {
		return nil, err
	}
	rows, err := h.sql.All(ctx, req.DBName, req.SQL, req.Params)
	if err != nil {
		return nil, err
	}
	return map[string]any{"results": rows}, nil
}

// ---------- status endpoints ----------

func robots(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, "User-agent: *\nDisallow: /\n")
}

func health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}
