// Package docs registers the OpenAPI description served under /swagger/.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/v1/ledgers": {
            "get": {"summary": "List ledgers in creation order", "responses": {"200": {"description": "ok"}}},
            "post": {
                "summary": "Create a ledger and schedule its deadline",
                "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/CreateLedgerRequest"}}],
                "responses": {"201": {"description": "created", "schema": {"$ref": "#/definitions/LedgerResponse"}}, "400": {"description": "invalid ledger input"}}
            }
        },
        "/v1/ledgers/{ledger_id}": {
            "get": {
                "summary": "Get a ledger",
                "parameters": [{"in": "path", "name": "ledger_id", "required": true, "type": "string"}],
                "responses": {"200": {"description": "ok", "schema": {"$ref": "#/definitions/LedgerResponse"}}, "404": {"description": "ledger not found"}}
            }
        },
        "/v1/ledgers/{ledger_id}/votes": {
            "post": {
                "summary": "Cast a vote",
                "parameters": [
                    {"in": "path", "name": "ledger_id", "required": true, "type": "string"},
                    {"in": "header", "name": "X-User-Id", "required": true, "type": "string"},
                    {"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/VoteRequest"}}
                ],
                "responses": {"200": {"description": "ok"}, "409": {"description": "vote closed or already voted"}, "422": {"description": "invalid option"}}
            },
            "put": {
                "summary": "Change a recorded vote",
                "parameters": [
                    {"in": "path", "name": "ledger_id", "required": true, "type": "string"},
                    {"in": "header", "name": "X-User-Id", "required": true, "type": "string"},
                    {"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/VoteRequest"}}
                ],
                "responses": {"200": {"description": "ok"}, "409": {"description": "no existing vote or same option"}}
            },
            "delete": {
                "summary": "Clear a recorded vote",
                "parameters": [
                    {"in": "path", "name": "ledger_id", "required": true, "type": "string"},
                    {"in": "header", "name": "X-User-Id", "required": true, "type": "string"}
                ],
                "responses": {"200": {"description": "ok"}, "403": {"description": "right not held"}}
            }
        },
        "/v1/ledgers/{ledger_id}/rights": {
            "get": {
                "summary": "List voting right holdings",
                "parameters": [{"in": "path", "name": "ledger_id", "required": true, "type": "string"}],
                "responses": {"200": {"description": "ok"}}
            }
        },
        "/v1/ledgers/{ledger_id}/rights/transfer": {
            "post": {
                "summary": "Transfer a voting right and migrate its recorded choice",
                "parameters": [
                    {"in": "path", "name": "ledger_id", "required": true, "type": "string"},
                    {"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/TransferRightRequest"}}
                ],
                "responses": {"200": {"description": "ok"}, "403": {"description": "right not held"}, "409": {"description": "recipient already holds a right"}}
            }
        },
        "/v1/ledgers/{ledger_id}/results": {
            "get": {
                "summary": "Get tally and settlement of a closed ledger",
                "parameters": [{"in": "path", "name": "ledger_id", "required": true, "type": "string"}],
                "responses": {"200": {"description": "ok"}, "409": {"description": "ledger is not closed"}}
            }
        },
        "/v1/ledgers/{ledger_id}/settle": {
            "post": {
                "summary": "Execute the ledger's schedule entry",
                "parameters": [{"in": "path", "name": "ledger_id", "required": true, "type": "string"}],
                "responses": {"200": {"description": "ok"}, "409": {"description": "already executed"}, "425": {"description": "deadline has not passed"}}
            }
        },
        "/v1/ledgers/{ledger_id}/randomness/retry": {
            "post": {
                "summary": "Issue a fresh randomness request for a stalled ledger",
                "parameters": [{"in": "path", "name": "ledger_id", "required": true, "type": "string"}],
                "responses": {"202": {"description": "accepted"}, "409": {"description": "ledger is not stalled"}}
            }
        },
        "/v1/randomness/fulfill": {
            "post": {
                "summary": "Deliver a random value for a pending request",
                "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/FulfillRandomnessRequest"}}],
                "responses": {"200": {"description": "ok"}, "409": {"description": "unknown or stale request"}}
            }
        },
        "/v1/randomness/stalled": {
            "get": {"summary": "List ledgers whose randomness stalled", "responses": {"200": {"description": "ok"}}}
        },
        "/v1/schedule": {
            "get": {"summary": "List schedule entries by deadline", "responses": {"200": {"description": "ok"}}}
        }
    },
    "definitions": {
        "CreateLedgerRequest": {
            "type": "object",
            "required": ["name", "total_options", "mode", "deadline"],
            "properties": {
                "name": {"type": "string"},
                "description": {"type": "string"},
                "total_options": {"type": "integer", "minimum": 2},
                "mode": {"type": "string", "enum": ["deterministic", "weighted_lottery"]},
                "deadline": {"type": "string", "format": "date-time"}
            }
        },
        "LedgerResponse": {
            "type": "object",
            "properties": {
                "ledger_id": {"type": "string"},
                "state": {"type": "string"},
                "mode": {"type": "string"},
                "tally": {"type": "array", "items": {"type": "integer"}},
                "settlement": {"type": "string"},
                "winner": {"type": "integer"}
            }
        },
        "VoteRequest": {
            "type": "object",
            "properties": {"option": {"type": "integer", "minimum": 1}}
        },
        "TransferRightRequest": {
            "type": "object",
            "required": ["from", "to"],
            "properties": {"from": {"type": "string"}, "to": {"type": "string"}}
        },
        "FulfillRandomnessRequest": {
            "type": "object",
            "required": ["request_id", "value"],
            "properties": {"request_id": {"type": "string"}, "value": {"type": "string"}}
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "ballotbox voting ledger API",
	Description:      "Voting ledgers with transferable rights and deadline settlement.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
