package handler

import (
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/talentsphere/securecore/internal/openapi"
)

// OpenAPIHandler serves the API description. The document is built once from
// the mounted resources; routes do not change while the server runs.
type OpenAPIHandler struct {
	doc *openapi3.T
}

// NewOpenAPIHandler generates the document for opts.
func NewOpenAPIHandler(opts openapi.Options) *OpenAPIHandler {
	return &OpenAPIHandler{doc: openapi.Generate(opts)}
}

// ServeSpec handles GET /openapi.json.
func (h *OpenAPIHandler) ServeSpec(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.doc)
}
