// Package api embeds the OpenAPI description of the provider HTTP API.
package api

import _ "embed"

// OpenAPISpec is the OpenAPI 3.1 document served on /openapi.json.
//
//go:embed openapi.yaml
var OpenAPISpec []byte
