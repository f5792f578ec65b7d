// Package docs serves the OpenAPI description of the HTTP API and a
// Swagger UI page for browsing it.
package docs

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// OpenAPISpec is the root of an OpenAPI 3.0 document.
type OpenAPISpec struct {
	OpenAPI    string               `json:"openapi"`
	Info       Info                 `json:"info"`
	Servers    []Server             `json:"servers,omitempty"`
	Paths      map[string]*PathItem `json:"paths"`
	Components Components           `json:"components"`
	Tags       []Tag                `json:"tags,omitempty"`
}

// Info carries API metadata.
type Info struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version"`
}

// Server names a base URL the API is reachable on.
type Server struct {
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
}

// PathItem holds the operations available on one path.
type PathItem struct {
	Get        *Operation  `json:"get,omitempty"`
	Put        *Operation  `json:"put,omitempty"`
	Post       *Operation  `json:"post,omitempty"`
	Parameters []Parameter `json:"parameters,omitempty"`
}

// Operation describes a single method on a path.
type Operation struct {
	Tags        []string              `json:"tags,omitempty"`
	Summary     string                `json:"summary,omitempty"`
	Description string                `json:"description,omitempty"`
	OperationID string                `json:"operationId,omitempty"`
	RequestBody *RequestBody          `json:"requestBody,omitempty"`
	Responses   map[string]Response   `json:"responses"`
	Security    []SecurityRequirement `json:"security,omitempty"`
}

// Parameter describes a path parameter.
type Parameter struct {
	Name        string  `json:"name"`
	In          string  `json:"in"`
	Description string  `json:"description,omitempty"`
	Required    bool    `json:"required,omitempty"`
	Schema      *Schema `json:"schema,omitempty"`
}

// RequestBody describes an operation's request payload.
type RequestBody struct {
	Description string               `json:"description,omitempty"`
	Content     map[string]MediaType `json:"content"`
	Required    bool                 `json:"required,omitempty"`
}

// Response describes one status code an operation can return.
type Response struct {
	Description string               `json:"description"`
	Content     map[string]MediaType `json:"content,omitempty"`
}

// MediaType binds a content type to its schema.
type MediaType struct {
	Schema *Schema `json:"schema,omitempty"`
}

// Components holds the reusable pieces of the document.
type Components struct {
	Schemas         map[string]Schema         `json:"schemas,omitempty"`
	SecuritySchemes map[string]SecurityScheme `json:"securitySchemes,omitempty"`
}

// Schema is a JSON schema fragment.
type Schema struct {
	Type                 string             `json:"type,omitempty"`
	Format               string             `json:"format,omitempty"`
	Description          string             `json:"description,omitempty"`
	Properties           map[string]*Schema `json:"properties,omitempty"`
	AdditionalProperties *Schema            `json:"additionalProperties,omitempty"`
	Required             []string           `json:"required,omitempty"`
	Items                *Schema            `json:"items,omitempty"`
	Example              interface{}        `json:"example,omitempty"`
	Ref                  string             `json:"$ref,omitempty"`
	Enum                 []interface{}      `json:"enum,omitempty"`
	Nullable             bool               `json:"nullable,omitempty"`
}

// SecurityScheme describes an authentication mechanism.
type SecurityScheme struct {
	Type         string `json:"type"`
	Description  string `json:"description,omitempty"`
	Scheme       string `json:"scheme,omitempty"`
	BearerFormat string `json:"bearerFormat,omitempty"`
}

// SecurityRequirement maps a scheme name to its required scopes.
type SecurityRequirement map[string][]string

// Tag groups related operations.
type Tag struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// bearerSecurity marks an operation as requiring a bearer token.
func bearerSecurity() []SecurityRequirement {
	return []SecurityRequirement{{"BearerAuth": {}}}
}

// GenerateOpenAPISpec builds the full OpenAPI document for the API.
func GenerateOpenAPISpec() *OpenAPISpec {
	return &OpenAPISpec{
		OpenAPI: "3.0.3",
		Info: Info{
			Title:       "Mentat API",
			Description: "Per-user adaptive learning containers: event ingestion, behavioral predictions, and container lifecycle control",
			Version:     "0.1.0",
		},
		Servers: []Server{
			{
				URL:         "http://localhost:8080",
				Description: "Local daemon",
			},
		},
		Tags: []Tag{
			{Name: "Predictions", Description: "Prediction retrieval and streaming"},
			{Name: "Events", Description: "Interaction event ingestion"},
			{Name: "Containers", Description: "Container lifecycle and configuration"},
			{Name: "Auth", Description: "Token minting"},
			{Name: "Service", Description: "Health and readiness"},
		},
		Paths: generatePaths(),
		Components: Components{
			Schemas:         generateSchemas(),
			SecuritySchemes: generateSecuritySchemes(),
		},
	}
}

func generatePaths() map[string]*PathItem {
	userParam := []Parameter{
		{
			Name:        "userID",
			In:          "path",
			Description: "User the container belongs to",
			Required:    true,
			Schema:      &Schema{Type: "string"},
		},
	}

	return map[string]*PathItem{
		"/health": {
			Get: &Operation{
				Tags:        []string{"Service"},
				Summary:     "Liveness check",
				OperationID: "GetHealth",
				Responses: map[string]Response{
					"200": jsonResponse("Daemon is up", "#/components/schemas/Health"),
				},
			},
		},
		"/ready": {
			Get: &Operation{
				Tags:        []string{"Service"},
				Summary:     "Readiness check",
				OperationID: "GetReady",
				Responses: map[string]Response{
					"200": jsonResponse("Daemon is serving", "#/components/schemas/Ready"),
				},
			},
		},
		"/api/v1/auth/token": {
			Post: &Operation{
				Tags:        []string{"Auth"},
				Summary:     "Mint a bearer token",
				Description: "Exchanges the configured access token for a signed JWT scoped to one user",
				OperationID: "IssueToken",
				RequestBody: &RequestBody{
					Required: true,
					Content: map[string]MediaType{
						"application/json": {
							Schema: &Schema{Ref: "#/components/schemas/TokenRequest"},
						},
					},
				},
				Responses: map[string]Response{
					"200": jsonResponse("Token issued", "#/components/schemas/TokenResponse"),
					"400": {Description: "Missing fields, or auth is disabled"},
					"401": {Description: "Access token rejected"},
					"429": {Description: "Rate limit exceeded"},
				},
			},
		},
		"/api/v1/users/{userID}/prediction": {
			Parameters: userParam,
			Get: &Operation{
				Tags:        []string{"Predictions"},
				Summary:     "Get the current prediction",
				Description: "Returns the latest prediction for the user, or null when the container has not learned enough yet",
				OperationID: "GetPrediction",
				Security:    bearerSecurity(),
				Responses: map[string]Response{
					"200": jsonResponse("Current prediction, possibly null", "#/components/schemas/PredictionEnvelope"),
					"401": {Description: "Missing or invalid token"},
					"429": {Description: "Rate limit exceeded"},
				},
			},
		},
		"/api/v1/users/{userID}/predictions/stream": {
			Parameters: userParam,
			Get: &Operation{
				Tags:        []string{"Predictions"},
				Summary:     "Stream predictions",
				Description: "Server-sent events; each observed interaction that yields a prediction is pushed as an 'event: prediction' frame",
				OperationID: "StreamPredictions",
				Security:    bearerSecurity(),
				Responses: map[string]Response{
					"200": {
						Description: "Open event stream",
						Content: map[string]MediaType{
							"text/event-stream": {
								Schema: &Schema{Type: "string"},
							},
						},
					},
					"401": {Description: "Missing or invalid token"},
					"429": {Description: "Rate limit exceeded"},
				},
			},
		},
		"/api/v1/users/{userID}/events": {
			Parameters: userParam,
			Post: &Operation{
				Tags:        []string{"Events"},
				Summary:     "Ingest an interaction event",
				Description: "Feeds one event into the user's container; only deployments with a channel event source accept ingestion",
				OperationID: "IngestEvent",
				Security:    bearerSecurity(),
				RequestBody: &RequestBody{
					Required: true,
					Content: map[string]MediaType{
						"application/json": {
							Schema: &Schema{Ref: "#/components/schemas/Event"},
						},
					},
				},
				Responses: map[string]Response{
					"202": jsonResponse("Event accepted for processing", "#/components/schemas/IngestAccepted"),
					"400": {Description: "Malformed body or missing event type"},
					"401": {Description: "Missing or invalid token"},
					"409": {Description: "Configured event source does not accept ingestion"},
					"429": {Description: "Rate limit exceeded"},
				},
			},
		},
		"/api/v1/users/{userID}/instructions": {
			Parameters: userParam,
			Put: &Operation{
				Tags:        []string{"Containers"},
				Summary:     "Replace the container's instructions",
				Description: "Applies a full instruction document; subsequent events are filtered accordingly",
				OperationID: "UpdateInstructions",
				Security:    bearerSecurity(),
				RequestBody: &RequestBody{
					Required: true,
					Content: map[string]MediaType{
						"application/json": {
							Schema: &Schema{Ref: "#/components/schemas/InstructionDocument"},
						},
					},
				},
				Responses: map[string]Response{
					"200": jsonResponse("Instructions applied", "#/components/schemas/InstructionsApplied"),
					"400": {Description: "Document failed validation"},
					"401": {Description: "Missing or invalid token"},
					"429": {Description: "Rate limit exceeded"},
				},
			},
		},
		"/api/v1/users/{userID}/status": {
			Parameters: userParam,
			Get: &Operation{
				Tags:        []string{"Containers"},
				Summary:     "Get container status",
				OperationID: "GetStatus",
				Security:    bearerSecurity(),
				Responses: map[string]Response{
					"200": jsonResponse("Container state", "#/components/schemas/ContainerStatus"),
					"401": {Description: "Missing or invalid token"},
					"404": {Description: "No container for this user"},
					"429": {Description: "Rate limit exceeded"},
				},
			},
		},
		"/api/v1/users/{userID}/save": {
			Parameters: userParam,
			Post: &Operation{
				Tags:        []string{"Containers"},
				Summary:     "Persist the learned state",
				OperationID: "SaveState",
				Security:    bearerSecurity(),
				Responses: map[string]Response{
					"200": jsonResponse("State written to storage", "#/components/schemas/ActionStatus"),
					"401": {Description: "Missing or invalid token"},
					"404": {Description: "No container for this user"},
					"409": {Description: "Container is not ready"},
					"429": {Description: "Rate limit exceeded"},
				},
			},
		},
		"/api/v1/users/{userID}/reset": {
			Parameters: userParam,
			Post: &Operation{
				Tags:        []string{"Containers"},
				Summary:     "Reset the container",
				Description: "Clears the learned model and the user's stored history, then resumes observation",
				OperationID: "ResetContainer",
				Security:    bearerSecurity(),
				Responses: map[string]Response{
					"200": jsonResponse("Container back to a blank state", "#/components/schemas/ActionStatus"),
					"401": {Description: "Missing or invalid token"},
					"404": {Description: "No container for this user"},
					"409": {Description: "Container is not ready"},
					"429": {Description: "Rate limit exceeded"},
				},
			},
		},
		"/api/v1/users/{userID}/release": {
			Parameters: userParam,
			Post: &Operation{
				Tags:        []string{"Containers"},
				Summary:     "Release the container",
				Description: "Stops observation and frees the container's engine and storage; repeat releases are no-ops",
				OperationID: "ReleaseContainer",
				Security:    bearerSecurity(),
				Responses: map[string]Response{
					"204": {Description: "Container released"},
					"401": {Description: "Missing or invalid token"},
					"429": {Description: "Rate limit exceeded"},
				},
			},
		},
	}
}

func jsonResponse(description, ref string) Response {
	return Response{
		Description: description,
		Content: map[string]MediaType{
			"application/json": {
				Schema: &Schema{Ref: ref},
			},
		},
	}
}

func generateSchemas() map[string]Schema {
	return map[string]Schema{
		"Event": {
			Type: "object",
			Properties: map[string]*Schema{
				"type": {
					Type:        "string",
					Description: "Interaction type, e.g. a command or file action",
					Example:     "build.run",
				},
				"attributes": {
					Type:                 "object",
					Description:          "Free-form string attributes",
					AdditionalProperties: &Schema{Type: "string"},
				},
				"timestamp": {
					Type:        "integer",
					Format:      "int64",
					Description: "Unix milliseconds; stamped on arrival when omitted",
				},
			},
			Required: []string{"type"},
		},
		"Prediction": {
			Type: "object",
			Properties: map[string]*Schema{
				"suggestion": {
					Type:        "string",
					Description: "Interaction type the user is likely to perform next",
					Example:     "test.run",
				},
				"confidence": {
					Type:   "number",
					Format: "float",
				},
				"category": {
					Type:        "string",
					Description: "Whether the suggestion came from a transition or a frequency signal",
					Enum:        []interface{}{"transition", "frequency"},
				},
			},
		},
		"PredictionEnvelope": {
			Type: "object",
			Properties: map[string]*Schema{
				"prediction": {
					Ref:      "#/components/schemas/Prediction",
					Nullable: true,
				},
			},
		},
		"InstructionDocument": {
			Type: "object",
			Properties: map[string]*Schema{
				"version": {
					Type:    "integer",
					Example: 1,
				},
				"instructions": {
					Type:  "array",
					Items: &Schema{Ref: "#/components/schemas/Instruction"},
				},
			},
			Required: []string{"version", "instructions"},
		},
		"Instruction": {
			Type: "object",
			Properties: map[string]*Schema{
				"action": {
					Type: "string",
					Enum: []interface{}{"ignore_event_type"},
				},
				"type": {
					Type:        "string",
					Description: "Event type the action applies to",
				},
			},
			Required: []string{"action"},
		},
		"TokenRequest": {
			Type: "object",
			Properties: map[string]*Schema{
				"access_token": {
					Type:        "string",
					Description: "Shared access token configured on the daemon",
				},
				"user_id": {
					Type:        "string",
					Description: "User the minted token is scoped to",
				},
			},
			Required: []string{"access_token", "user_id"},
		},
		"TokenResponse": {
			Type: "object",
			Properties: map[string]*Schema{
				"token": {
					Type: "string",
				},
				"expires_at": {
					Type:   "string",
					Format: "date-time",
				},
			},
		},
		"ContainerStatus": {
			Type: "object",
			Properties: map[string]*Schema{
				"user_id": {
					Type: "string",
				},
				"state": {
					Type:    "string",
					Example: "ready",
				},
			},
		},
		"IngestAccepted": {
			Type: "object",
			Properties: map[string]*Schema{
				"status": {
					Type:    "string",
					Example: "accepted",
				},
				"ingest_id": {
					Type:   "string",
					Format: "uuid",
				},
			},
		},
		"InstructionsApplied": {
			Type: "object",
			Properties: map[string]*Schema{
				"applied": {
					Type:        "integer",
					Description: "Number of instructions now in effect",
				},
			},
		},
		"ActionStatus": {
			Type: "object",
			Properties: map[string]*Schema{
				"status": {
					Type:    "string",
					Example: "saved",
				},
			},
		},
		"Health": {
			Type: "object",
			Properties: map[string]*Schema{
				"status": {
					Type:    "string",
					Example: "healthy",
				},
				"version": {
					Type: "string",
				},
				"uptime": {
					Type:        "number",
					Description: "Seconds since the daemon started",
				},
			},
		},
		"Ready": {
			Type: "object",
			Properties: map[string]*Schema{
				"ready": {
					Type: "boolean",
				},
				"users": {
					Type:        "integer",
					Description: "Containers currently managed",
				},
				"memory_mb": {
					Type: "integer",
				},
			},
		},
	}
}

func generateSecuritySchemes() map[string]SecurityScheme {
	return map[string]SecurityScheme{
		"BearerAuth": {
			Type:         "http",
			Description:  "JWT minted by /api/v1/auth/token",
			Scheme:       "bearer",
			BearerFormat: "JWT",
		},
	}
}

// OpenAPIJSONHandler serves the document as JSON. The document is
// static, so it is rendered once up front.
func OpenAPIJSONHandler() http.HandlerFunc {
	spec := GenerateOpenAPISpec()
	specJSON, _ := json.MarshalIndent(spec, "", "  ")

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(specJSON)
	}
}

// SwaggerUIHandler serves a Swagger UI page pointed at /openapi.json.
func SwaggerUIHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = fmt.Fprint(w, swaggerUIHTML)
	}
}

const swaggerUIHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>Mentat API Documentation</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5.10.3/swagger-ui.css">
    <style>
        html { box-sizing: border-box; overflow: -moz-scrollbars-vertical; overflow-y: scroll; }
        *, *:before, *:after { box-sizing: inherit; }
        body { margin: 0; background: #fafafa; }
    </style>
</head>
<body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5.10.3/swagger-ui-bundle.js"></script>
    <script src="https://unpkg.com/swagger-ui-dist@5.10.3/swagger-ui-standalone-preset.js"></script>
    <script>
    window.onload = function() {
        window.ui = SwaggerUIBundle({
            url: "/openapi.json",
            dom_id: '#swagger-ui',
            deepLinking: true,
            presets: [
                SwaggerUIBundle.presets.apis,
                SwaggerUIStandalonePreset
            ],
            plugins: [
                SwaggerUIBundle.plugins.DownloadUrl
            ],
            layout: "StandaloneLayout"
        });
    };
    </script>
</body>
</html>`
