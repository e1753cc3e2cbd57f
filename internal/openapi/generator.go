// Package openapi describes the securecore HTTP API as an OpenAPI 3.1
// document. The document is generated from the configured owned resources so
// it always matches the mounted routes.
package openapi

import (
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"
)

// Options controls document generation.
type Options struct {
	BaseURL   string
	Version   string
	Resources []string // owned resource tables, in mount order
}

// Generate builds the OpenAPI document for the demo API.
func Generate(opts Options) *openapi3.T {
	version := opts.Version
	if version == "" {
		version = "dev"
	}
	doc := &openapi3.T{
		OpenAPI: "3.1.0",
		Info: &openapi3.Info{
			Title:       "securecore API",
			Description: "Authenticated record access over a validated, pooled SQL layer.",
			Version:     version,
		},
	}
	if opts.BaseURL != "" {
		doc.Servers = openapi3.Servers{{URL: opts.BaseURL}}
	}

	components := openapi3.NewComponents()
	components.Schemas = openapi3.Schemas{}
	components.SecuritySchemes = openapi3.SecuritySchemes{}
	doc.Components = &components

	// Credential channels, in the order the middleware consults them.
	doc.Components.SecuritySchemes["bearerAuth"] = &openapi3.SecuritySchemeRef{
		Value: &openapi3.SecurityScheme{Type: "http", Scheme: "bearer", BearerFormat: "JWT"},
	}
	doc.Components.SecuritySchemes["apiKey"] = &openapi3.SecuritySchemeRef{
		Value: &openapi3.SecurityScheme{Type: "apiKey", In: "header", Name: "X-API-Key"},
	}
	doc.Components.SecuritySchemes["queryToken"] = &openapi3.SecuritySchemeRef{
		Value: &openapi3.SecurityScheme{Type: "apiKey", In: "query", Name: "token"},
	}
	doc.Components.SecuritySchemes["cookieToken"] = &openapi3.SecuritySchemeRef{
		Value: &openapi3.SecurityScheme{Type: "apiKey", In: "cookie", Name: "auth_token"},
	}
	doc.Security = authenticated()

	addComponentSchemas(doc)

	doc.Paths = openapi3.NewPaths()
	addSystemPaths(doc)
	addRecordsPath(doc, opts.Resources)
	for _, res := range opts.Resources {
		addResourcePaths(doc, res)
	}
	addAdminPaths(doc)

	return doc
}

// authenticated lists the accepted credential channels; any one suffices.
func authenticated() openapi3.SecurityRequirements {
	return openapi3.SecurityRequirements{
		{"bearerAuth": {}},
		{"apiKey": {}},
		{"queryToken": {}},
		{"cookieToken": {}},
	}
}

// anonymous marks an operation as callable without credentials.
func anonymous() *openapi3.SecurityRequirements {
	return &openapi3.SecurityRequirements{}
}

// optional accepts any credential channel or none at all.
func optional() *openapi3.SecurityRequirements {
	reqs := append(authenticated(), openapi3.SecurityRequirement{})
	return &reqs
}

// ─── Paths ──────────────────────────────────────────────────────────────────

func addSystemPaths(doc *openapi3.T) {
	doc.Paths.Set("/healthz", &openapi3.PathItem{Get: &openapi3.Operation{
		Tags:        []string{"system"},
		Summary:     "Liveness probe",
		OperationID: "healthz",
		Security:    anonymous(),
		Responses:   newResponses("200", "Process is running", objectSchema()),
	}})

	readyz := &openapi3.Operation{
		Tags:        []string{"system"},
		Summary:     "Readiness probe",
		Description: "Runs SELECT 1 on a pooled connection.",
		OperationID: "readyz",
		Security:    anonymous(),
		Responses:   newResponses("200", "Database reachable", ref("HealthStatus")),
	}
	readyz.Responses.Set("503", jsonResponse("Database unreachable", ref("HealthStatus")))
	doc.Paths.Set("/readyz", &openapi3.PathItem{Get: readyz})

	doc.Paths.Set("/api/v1/me", &openapi3.PathItem{Get: &openapi3.Operation{
		Tags:        []string{"identity"},
		Summary:     "Current principal",
		OperationID: "me",
		Responses:   newResponses("200", "Authenticated principal", envelope(ref("Principal")), "401"),
	}})

	doc.Paths.Set("/api/v1/whoami", &openapi3.PathItem{Get: &openapi3.Operation{
		Tags:        []string{"identity"},
		Summary:     "Principal if authenticated",
		Description: "Never fails for anonymous callers; invalid credentials are ignored.",
		OperationID: "whoami",
		Security:    optional(),
		Responses: newResponses("200", "Authentication state", envelope(&openapi3.SchemaRef{Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"authenticated": {Value: openapi3.NewBoolSchema()},
				"principal":     ref("Principal"),
			},
		}})),
	}})
}

func addRecordsPath(doc *openapi3.T, resources []string) {
	table := openapi3.NewPathParameter("table").
		WithDescription("Owned resource table.").
		WithSchema(enumSchema(resources))

	params := append(openapi3.Parameters{{Value: table}}, listQueryParameters()...)
	doc.Paths.Set("/api/v1/records/{table}", &openapi3.PathItem{Get: &openapi3.Operation{
		Tags:    []string{"records"},
		Summary: "List records",
		Description: "Paginated listing. Callers below the admin tier only see rows they own. " +
			"Requires the records.read permission.",
		OperationID: "list_records",
		Parameters:  params,
		Responses:   newResponses("200", "One page of records", envelope(ref("Page")), "400", "401", "403", "404"),
	}})
}

func addResourcePaths(doc *openapi3.T, resource string) {
	tag := resource
	rowSchema := objectSchema()
	id := &openapi3.ParameterRef{Value: openapi3.NewPathParameter("id").
		WithDescription("Primary key of the record.").
		WithSchema(openapi3.NewStringSchema())}

	doc.Paths.Set("/api/v1/"+resource, &openapi3.PathItem{Post: &openapi3.Operation{
		Tags:        []string{tag},
		Summary:     fmt.Sprintf("Create a %s record", resource),
		Description: "The owner column is always set to the caller.",
		OperationID: "create_" + resource,
		RequestBody: jsonBody(fmt.Sprintf("Columns of the new %s record", resource), rowSchema),
		Responses:   newResponses("201", "Created record", envelope(rowSchema), "400", "401"),
	}})

	doc.Paths.Set("/api/v1/"+resource+"/{id}", &openapi3.PathItem{
		Parameters: openapi3.Parameters{id},
		Get: &openapi3.Operation{
			Tags:        []string{tag},
			Summary:     fmt.Sprintf("Get a %s record", resource),
			Description: "Owner or admin tier only. Requires the records.read permission.",
			OperationID: "get_" + resource,
			Responses:   newResponses("200", "The record", envelope(rowSchema), "401", "403", "404"),
		},
		Patch: &openapi3.Operation{
			Tags:        []string{tag},
			Summary:     fmt.Sprintf("Update a %s record", resource),
			Description: "Owner or admin tier only. The id and owner columns cannot be changed.",
			OperationID: "update_" + resource,
			RequestBody: jsonBody("Columns to change", rowSchema),
			Responses:   newResponses("200", "Updated record", envelope(rowSchema), "400", "401", "403", "404"),
		},
		Delete: &openapi3.Operation{
			Tags:        []string{tag},
			Summary:     fmt.Sprintf("Delete a %s record", resource),
			Description: "Owner or admin tier only.",
			OperationID: "delete_" + resource,
			Responses:   noContentResponses("Record deleted", "401", "403", "404"),
		},
	})
}

func addAdminPaths(doc *openapi3.T) {
	doc.Paths.Set("/api/v1/admin/db/stats", &openapi3.PathItem{Get: &openapi3.Operation{
		Tags:        []string{"admin"},
		Summary:     "Pool and query statistics",
		Description: "Requires the admin role and the db.stats permission.",
		OperationID: "db_stats",
		Responses:   newResponses("200", "Statistics", envelope(objectSchema()), "401", "403"),
	}})
	doc.Paths.Set("/api/v1/admin/db/stats/reset", &openapi3.PathItem{Post: &openapi3.Operation{
		Tags:        []string{"admin"},
		Summary:     "Reset query statistics",
		Description: "Requires the super_admin role.",
		OperationID: "db_stats_reset",
		Responses:   noContentResponses("Statistics reset", "401", "403"),
	}})
}

// ─── Query Parameter Builders ───────────────────────────────────────────────

// listQueryParameters returns the query parameters of the records listing.
func listQueryParameters() openapi3.Parameters {
	filter := openapi3.NewQueryParameter("filter").
		WithDescription("Repeatable column,operator[,value] predicate (e.g. \"age,>=,21\", \"status,IN,a|b\", \"deleted_at,IS NULL\").").
		WithSchema(openapi3.NewArraySchema().WithItems(openapi3.NewStringSchema()))
	explode := true
	filter.Explode = &explode

	return openapi3.Parameters{
		{Value: filter},
		{Value: openapi3.NewQueryParameter("order").
			WithDescription("Sort order for a single column (e.g. \"created_at DESC\").").
			WithSchema(openapi3.NewStringSchema())},
		{Value: openapi3.NewQueryParameter("page").
			WithDescription("1-based page number.").
			WithSchema(openapi3.NewInt32Schema().WithMin(1).WithMax(10000).WithDefault(1))},
		{Value: openapi3.NewQueryParameter("limit").
			WithDescription("Rows per page.").
			WithSchema(openapi3.NewInt32Schema().WithMin(1).WithMax(1000).WithDefault(20))},
		{Value: openapi3.NewQueryParameter("fields").
			WithDescription("Comma-separated list of columns to return.").
			WithSchema(openapi3.NewStringSchema())},
	}
}

// ─── Schema Builders ────────────────────────────────────────────────────────

func addComponentSchemas(doc *openapi3.T) {
	str := func() *openapi3.SchemaRef { return &openapi3.SchemaRef{Value: openapi3.NewStringSchema()} }
	integer := func() *openapi3.SchemaRef { return &openapi3.SchemaRef{Value: openapi3.NewInt64Schema()} }

	doc.Components.Schemas["ErrorResponse"] = &openapi3.SchemaRef{Value: &openapi3.Schema{
		Type: &openapi3.Types{"object"},
		Properties: openapi3.Schemas{
			"error": {Value: &openapi3.Schema{
				Type: &openapi3.Types{"object"},
				Properties: openapi3.Schemas{
					"code":     str(),
					"message":  str(),
					"status":   integer(),
					"query_id": str(),
					"detail":   {Value: openapi3.NewStringSchema().WithDescription("Backend detail, development mode only.")},
				},
				Required: []string{"code", "message", "status"},
			}},
		},
	}}

	doc.Components.Schemas["Principal"] = &openapi3.SchemaRef{Value: &openapi3.Schema{
		Type: &openapi3.Types{"object"},
		Properties: openapi3.Schemas{
			"user_id":      str(),
			"role":         {Value: openapi3.NewStringSchema().WithEnum("guest", "user", "moderator", "admin", "super_admin")},
			"permissions":  {Value: openapi3.NewArraySchema().WithItems(openapi3.NewStringSchema())},
			"session_id":   str(),
			"issued_at":    {Value: openapi3.NewDateTimeSchema()},
			"expires_at":   {Value: openapi3.NewDateTimeSchema()},
			"token_source": {Value: openapi3.NewStringSchema().WithEnum("bearer", "api_key", "query", "cookie")},
		},
	}}

	doc.Components.Schemas["Page"] = &openapi3.SchemaRef{Value: &openapi3.Schema{
		Type: &openapi3.Types{"object"},
		Properties: openapi3.Schemas{
			"data": {Value: &openapi3.Schema{Type: &openapi3.Types{"array"}, Items: objectSchema()}},
			"pagination": {Value: &openapi3.Schema{
				Type: &openapi3.Types{"object"},
				Properties: openapi3.Schemas{
					"page":        integer(),
					"limit":       integer(),
					"total":       integer(),
					"total_pages": integer(),
					"has_next":    {Value: openapi3.NewBoolSchema()},
					"has_prev":    {Value: openapi3.NewBoolSchema()},
				},
			}},
		},
	}}

	doc.Components.Schemas["HealthStatus"] = &openapi3.SchemaRef{Value: &openapi3.Schema{
		Type: &openapi3.Types{"object"},
		Properties: openapi3.Schemas{
			"status":     {Value: openapi3.NewStringSchema().WithEnum("healthy", "unhealthy")},
			"driver":     str(),
			"latency_ms": {Value: openapi3.NewFloat64Schema()},
			"error":      str(),
			"pool":       objectSchema(),
			"checked_at": {Value: openapi3.NewDateTimeSchema()},
		},
	}}
}

// envelope wraps data in the {"data": ..., "meta": ...} success envelope.
func envelope(data *openapi3.SchemaRef) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{
		Type: &openapi3.Types{"object"},
		Properties: openapi3.Schemas{
			"data": data,
			"meta": {Value: &openapi3.Schema{
				Type: &openapi3.Types{"object"},
				Properties: openapi3.Schemas{
					"request_id": {Value: openapi3.NewStringSchema()},
					"took_ms":    {Value: openapi3.NewFloat64Schema()},
				},
			}},
		},
	}}
}

func objectSchema() *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: openapi3.NewObjectSchema()}
}

func enumSchema(values []string) *openapi3.Schema {
	s := openapi3.NewStringSchema()
	if len(values) > 0 {
		enum := make([]any, len(values))
		for i, v := range values {
			enum[i] = v
		}
		s.Enum = enum
	}
	return s
}

func ref(name string) *openapi3.SchemaRef {
	return openapi3.NewSchemaRef("#/components/schemas/"+name, nil)
}

func jsonBody(description string, schema *openapi3.SchemaRef) *openapi3.RequestBodyRef {
	return &openapi3.RequestBodyRef{Value: &openapi3.RequestBody{
		Description: description,
		Required:    true,
		Content:     openapi3.NewContentWithJSONSchemaRef(schema),
	}}
}

// ─── Response Helpers ───────────────────────────────────────────────────────

var errorDescriptions = map[string]string{
	"400": "Validation or security failure",
	"401": "Missing, invalid or expired credential",
	"403": "Insufficient role, missing permission or not the owner",
	"404": "Not found",
	"500": "Internal server error",
}

// newResponses builds a Responses map with a success response, the listed
// error responses and a 500.
func newResponses(statusCode, description string, schema *openapi3.SchemaRef, errorCodes ...string) *openapi3.Responses {
	responses := openapi3.NewResponses()
	responses.Set(statusCode, jsonResponse(description, schema))
	addErrorResponses(responses, errorCodes)
	return responses
}

func noContentResponses(description string, errorCodes ...string) *openapi3.Responses {
	responses := openapi3.NewResponses()
	responses.Set("204", &openapi3.ResponseRef{Value: openapi3.NewResponse().WithDescription(description)})
	addErrorResponses(responses, errorCodes)
	return responses
}

func addErrorResponses(responses *openapi3.Responses, codes []string) {
	errorRef := ref("ErrorResponse")
	for _, code := range append(codes, "500") {
		responses.Set(code, jsonResponse(errorDescriptions[code], errorRef))
	}
}

func jsonResponse(description string, schema *openapi3.SchemaRef) *openapi3.ResponseRef {
	return &openapi3.ResponseRef{Value: &openapi3.Response{
		Description: &description,
		Content:     openapi3.NewContentWithJSONSchemaRef(schema),
	}}
}
