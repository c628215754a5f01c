// Package docs registers the OpenAPI specification of the TezosIndexor API
// with the swagger handler.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/blocks": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Blocks"],
                "summary": "List indexed blocks",
                "parameters": [
                    {"type": "integer", "default": 100, "description": "Maximum number of blocks to return", "name": "limit", "in": "query"},
                    {"type": "integer", "default": 0, "description": "Number of blocks to skip", "name": "offset", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "List of blocks with pagination info"},
                    "400": {"description": "Invalid parameters"},
                    "500": {"description": "Internal server error"}
                }
            }
        },
        "/blocks/{hash}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Blocks"],
                "summary": "Get a block",
                "parameters": [
                    {"type": "string", "description": "Block hash or 'head'", "name": "hash", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "The stored block"},
                    "404": {"description": "Block not found"},
                    "500": {"description": "Internal server error"}
                }
            }
        },
        "/accounts/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Accounts"],
                "summary": "Get an account",
                "parameters": [
                    {"type": "string", "description": "Account id (tz1/KT1 address)", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "The stored account"},
                    "404": {"description": "Account not found"},
                    "500": {"description": "Internal server error"}
                }
            }
        },
        "/status": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Status"],
                "summary": "Indexing status",
                "responses": {
                    "200": {"description": "Indexing status"},
                    "500": {"description": "Internal server error"}
                }
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/api/v1",
	Schemes:          []string{"http", "https"},
	Title:            "TezosIndexor API",
	Description:      "REST API for querying Tezos chain data indexed by TezosIndexor",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
