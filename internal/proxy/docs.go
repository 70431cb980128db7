package proxy

import "github.com/swaggo/swag"

// docTemplate is the OpenAPI document for the routes in proxy.go, in the
// layout swag init emits for the annotations there.
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
        "/gemini": {
            "post": {
                "description": "Forwards the query to the configured language model and returns its\ngenerateContent response unchanged. Upstream API errors keep their status code.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["answer"],
                "summary": "Answer a free-form question",
                "parameters": [
                    {
                        "description": "Question to answer",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/proxy.Request"}
                    }
                ],
                "responses": {
                    "200": {
                        "description": "generateContent response",
                        "schema": {"type": "object", "additionalProperties": {}}
                    },
                    "400": {
                        "description": "Invalid request body or empty query",
                        "schema": {"$ref": "#/definitions/proxy.ErrorResponse"}
                    },
                    "429": {
                        "description": "Rate limit exceeded",
                        "schema": {"$ref": "#/definitions/proxy.ErrorResponse"}
                    },
                    "500": {
                        "description": "Internal processing error",
                        "schema": {"$ref": "#/definitions/proxy.ErrorResponse"}
                    }
                }
            }
        }
    },
    "definitions": {
        "proxy.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string", "example": "query is required"}
            }
        },
        "proxy.Request": {
            "type": "object",
            "properties": {
                "query": {"type": "string", "example": "what is the tallest mountain"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Jarvis answer proxy",
	Description:      "Relays free-form questions to a language model.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
