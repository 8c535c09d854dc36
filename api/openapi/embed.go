// Package openapi embeds the REST contract served at /api/openapi.yaml.
package openapi

import _ "embed"

// Spec is the OpenAPI 3 document of the incidents API.
//
//go:embed openapi.yaml
var Spec []byte
