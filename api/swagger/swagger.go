package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "BP Reports API",
        "description": "Batch program enrollment report generation",
        "version": "1.0.0"
    },
    "basePath": "/bp/v1",
    "schemes": [
        "http",
        "https"
    ],
    "securityDefinitions": {
        "UserToken": {"type": "apiKey", "in": "header", "name": "x-authenticated-user-token"}
    },
    "security": [{"UserToken": []}],
    "tags": [
        {"name": "Reports", "description": "Enrollment report requests, status and downloads"}
    ],
    "paths": {
        "/generate/report": {
            "post": {
                "tags": ["Reports"],
                "summary": "Request an enrollment report",
                "description": "Queues a report run unless one is already IN_PROGRESS for the same key.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/GenerateReportRequest"}}
                ],
                "responses": {
                    "200": {"description": "SUCCESS or IN_PROGRESS", "schema": {"$ref": "#/definitions/EnqueueEnvelope"}},
                    "400": {"description": "Validation failure or organisation mismatch", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Missing or invalid token", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "500": {"description": "State store or queue failure", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/bpreport/status": {
            "post": {
                "tags": ["Reports"],
                "summary": "List report requests for a batch",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/ReportStatusRequest"}}
                ],
                "responses": {
                    "200": {"description": "Report requests, or a not-available message in meta", "schema": {"$ref": "#/definitions/StatusEnvelope"}},
                    "400": {"description": "Validation failure or organisation mismatch", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/bpreport/download/{orgId}/{courseId}/{batchId}/{fileName}": {
            "get": {
                "tags": ["Reports"],
                "summary": "Download a generated report",
                "produces": [
                    "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
                    "text/csv",
                    "application/octet-stream"
                ],
                "parameters": [
                    {"in": "path", "name": "orgId", "required": true, "type": "string"},
                    {"in": "path", "name": "courseId", "required": true, "type": "string"},
                    {"in": "path", "name": "batchId", "required": true, "type": "string"},
                    {"in": "path", "name": "fileName", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Report file", "schema": {"type": "file"}},
                    "404": {"description": "File not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "500": {"description": "Object store failure", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "GenerateReportRequest": {
            "type": "object",
            "required": ["orgId", "courseId", "batchId"],
            "properties": {
                "orgId": {"type": "string"},
                "courseId": {"type": "string"},
                "batchId": {"type": "string"},
                "surveyId": {"type": "string"},
                "requesterKind": {"type": "string", "enum": ["MDO_ADMIN", "MDO_LEADER", "PC"]}
            }
        },
        "ReportStatusRequest": {
            "type": "object",
            "required": ["orgId", "courseId", "batchId"],
            "properties": {
                "orgId": {"type": "string"},
                "courseId": {"type": "string"},
                "batchId": {"type": "string"}
            }
        },
        "ReportRequest": {
            "type": "object",
            "properties": {
                "orgId": {"type": "string"},
                "courseId": {"type": "string"},
                "batchId": {"type": "string"},
                "requesterKind": {"type": "string"},
                "surveyId": {"type": "string"},
                "createdBy": {"type": "string"},
                "status": {"type": "string", "enum": ["IN_PROGRESS", "COMPLETED", "FAILED"]},
                "downloadLink": {"type": "string"},
                "fileName": {"type": "string"},
                "pendingUserCount": {"type": "integer"},
                "approvedUserCount": {"type": "integer"},
                "rejectedUserCount": {"type": "integer"},
                "lastReportGeneratedOn": {"type": "string", "format": "date-time"},
                "createdAt": {"type": "string", "format": "date-time"}
            }
        },
        "EnqueueEnvelope": {
            "type": "object",
            "properties": {
                "data": {
                    "type": "object",
                    "properties": {"status": {"type": "string", "enum": ["SUCCESS", "IN_PROGRESS"]}}
                }
            }
        },
        "StatusEnvelope": {
            "type": "object",
            "properties": {
                "data": {
                    "type": "object",
                    "properties": {
                        "count": {"type": "integer"},
                        "content": {"type": "array", "items": {"$ref": "#/definitions/ReportRequest"}}
                    }
                },
                "meta": {"type": "object"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
