package handler

import (
	"net/http"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/Neos21/db-api/schema"
)

// OpenAPI returns the OpenAPI 3 document describing every operation.
func OpenAPI() map[string]any {
	paths := map[string]any{}
	for _, rt := range (&Handler{}).routeTable() {
		responses := map[string]any{
			"400": response("Invalid Request", schema.ErrorResponse),
			"500": response("Something Wrong", schema.ErrorResponse),
		}
		responses[strconv.Itoa(rt.status)] = response(http.StatusText(rt.status), rt.response)

		paths[rt.path] = map[string]any{
			"post": map[string]any{
				"tags":        []string{rt.tag},
				"summary":     rt.summary,
				"operationId": rt.tag + "-" + rt.path[len(rt.tag)+2:],
				"requestBody": map[string]any{
					"required": true,
					"content": map[string]any{
						"application/json": map[string]any{"schema": rt.request},
					},
				},
				"responses": responses,
			},
		}
	}
	return map[string]any{
		"openapi": "3.0.3",
		"info": map[string]any{
			"title":       "DB API",
			"description": "Credential-gated JSON document and SQLite databases",
			"version":     "1.0.0",
		},
		"paths": paths,
	}
}

func response(description string, body schema.Schema) map[string]any {
	r := map[string]any{"description": description}
	if body != nil {
		r["content"] = map[string]any{
			"application/json": map[string]any{"schema": body},
		}
	}
	return r
}

func serveOpenAPIJSON(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, OpenAPI())
}

func serveOpenAPIYAML(w http.ResponseWriter, _ *http.Request) {
	out, err := yaml.Marshal(OpenAPI())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed To Render Document : "+err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.Write(out)
}
