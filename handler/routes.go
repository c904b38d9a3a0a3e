package handler

import (
	"context"
	"net/http"
	"path"

	"github.com/Neos21/db-api/schema"
	"github.com/Neos21/db-api/tenant"
)

type serveFunc func(ctx context.Context, req request) (any, error)

// route is one API operation. The same table drives registration and the
// OpenAPI document.
type route struct {
	method   string
	path     string
	tag      string
	summary  string
	request  schema.Schema
	status   int
	response schema.Schema
	serve    serveFunc
}

func (h *Handler) lifecycleRoutes(prefix string, m *tenant.Manager) []route {
	return []route{
		{
			path: prefix + "/list-db-names", summary: "List DB Names",
			request: schema.MasterRequest, status: http.StatusOK, response: schema.DBNamesResponse,
			serve: h.listDBNames(m),
		},
		{
			path: prefix + "/create-db", summary: "Create DB",
			request: schema.DBAdminRequest, status: http.StatusCreated, response: schema.CreatedResponse,
			serve: h.createDB(m),
		},
		{
			path: prefix + "/delete-db", summary: "Delete DB",
			request: schema.DBAdminRequest, status: http.StatusNoContent,
			serve: h.deleteDB(m),
		},
	}
}

// routeTable lists every operation. All of them are POST with a JSON body.
func (h *Handler) routeTable() []route {
	var routes []route
	routes = append(routes, h.lifecycleRoutes("/json-db", h.documents)...)
	routes = append(routes, []route{
		{path: "/json-db/find-all", summary: "Find All", request: schema.DBRequest, response: schema.DocumentsResponse, serve: h.findAll},
		{path: "/json-db/find-by-id", summary: "Find By ID", request: schema.IDRequest, response: schema.DocumentResponse, serve: h.findByID},
		{path: "/json-db/create", summary: "Create", request: schema.ItemRequest, response: schema.DocumentResponse, serve: h.create},
		{path: "/json-db/put-by-id", summary: "Put By ID", request: schema.IDItemRequest, response: schema.DocumentResponse, serve: h.putByID},
		{path: "/json-db/patch-by-id", summary: "Patch By ID", request: schema.IDItemRequest, response: schema.DocumentResponse, serve: h.patchByID},
		{path: "/json-db/delete-by-id", summary: "Delete By ID", request: schema.IDRequest, response: schema.DocumentResponse, serve: h.deleteByID},
	}...)
	routes = append(routes, h.lifecycleRoutes("/sqlite", h.relational)...)
	routes = append(routes, []route{
		{path: "/sqlite/run", summary: "Run", request: schema.SQLRequest, response: schema.RunResponse, serve: h.run},
		{path: "/sqlite/get", summary: "Get", request: schema.SQLRequest, response: schema.RowResponse, serve: h.get},
		{path: "/sqlite/all", summary: "All", request: schema.SQLRequest, response: schema.RowsResponse, serve: h.all},
	}...)

	for i := range routes {
		rt := &routes[i]
		rt.method = http.MethodPost
		if rt.status == 0 {
			rt.status = http.StatusOK
		}
		rt.tag = path.Base(path.Dir(rt.path))
	}
	return routes
}
