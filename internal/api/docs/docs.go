// Package docs holds the OpenAPI description served at /swagger.
// Regenerate with: swag init -g cmd/portal/main.go -o internal/api/docs
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
        "/auth/login": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Login",
                "parameters": [
                    {
                        "description": "Login credentials",
                        "name": "body",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/handler.loginRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.actionResponse"}},
                    "303": {"description": "Redirect to the role's home page (form posts)"},
                    "400": {"description": "Bad Request", "schema": {"type": "object", "additionalProperties": {"type": "string"}}},
                    "401": {"description": "Unauthorized", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/auth/logout": {
            "post": {
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Logout",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.actionResponse"}},
                    "303": {"description": "Redirect to /logout (form posts)"}
                }
            }
        },
        "/auth/signup": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Sign up",
                "parameters": [
                    {
                        "description": "Registration details",
                        "name": "body",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/handler.signupRequest"}
                    }
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/handler.actionResponse"}},
                    "303": {"description": "Redirect to the login page (form posts)"},
                    "400": {"description": "Bad Request", "schema": {"type": "object", "additionalProperties": {"type": "string"}}},
                    "502": {"description": "Bad Gateway", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/auth/change-password": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Change password",
                "parameters": [
                    {
                        "description": "Old and new password",
                        "name": "body",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/handler.changePasswordRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.actionResponse"}},
                    "400": {"description": "Bad Request", "schema": {"type": "object", "additionalProperties": {"type": "string"}}},
                    "401": {"description": "Unauthorized", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/auth/role-change": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Request a role change",
                "parameters": [
                    {
                        "description": "Requested role",
                        "name": "body",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/handler.roleChangeRequest"}
                    }
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/handler.actionResponse"}},
                    "400": {"description": "Bad Request", "schema": {"type": "object", "additionalProperties": {"type": "string"}}},
                    "401": {"description": "Unauthorized", "schema": {"type": "object", "additionalProperties": {"type": "string"}}},
                    "422": {"description": "Unprocessable Entity", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/api/pending": {
            "get": {
                "produces": ["application/json"],
                "tags": ["approvals"],
                "summary": "List pending requests",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.approvalResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"type": "object", "additionalProperties": {"type": "string"}}},
                    "403": {"description": "Forbidden", "schema": {"type": "object", "additionalProperties": {"type": "string"}}},
                    "502": {"description": "Bad Gateway", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/api/requests/{kind}/{id}/approve": {
            "post": {
                "produces": ["application/json"],
                "tags": ["approvals"],
                "summary": "Approve a request",
                "parameters": [
                    {"type": "string", "description": "registration or role_change", "name": "kind", "in": "path", "required": true},
                    {"type": "string", "description": "Request id", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.approvalResponse"}},
                    "400": {"description": "Bad Request", "schema": {"type": "object", "additionalProperties": {"type": "string"}}},
                    "409": {"description": "Conflict", "schema": {"type": "object", "additionalProperties": {"type": "string"}}},
                    "502": {"description": "Bad Gateway", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/api/requests/{kind}/{id}/reject": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["approvals"],
                "summary": "Reject a request",
                "parameters": [
                    {"type": "string", "description": "registration or role_change", "name": "kind", "in": "path", "required": true},
                    {"type": "string", "description": "Request id", "name": "id", "in": "path", "required": true},
                    {
                        "description": "Rejection reason",
                        "name": "body",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/handler.rejectRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.approvalResponse"}},
                    "400": {"description": "Bad Request", "schema": {"type": "object", "additionalProperties": {"type": "string"}}},
                    "409": {"description": "Conflict", "schema": {"type": "object", "additionalProperties": {"type": "string"}}},
                    "422": {"description": "Unprocessable Entity", "schema": {"type": "object", "additionalProperties": {"type": "string"}}},
                    "502": {"description": "Bad Gateway", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/api/decisions": {
            "get": {
                "produces": ["application/json"],
                "tags": ["approvals"],
                "summary": "Recent decisions",
                "parameters": [
                    {"type": "integer", "description": "Maximum number of records (1-200, default 50)", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.decisionsResponse"}},
                    "403": {"description": "Forbidden", "schema": {"type": "object", "additionalProperties": {"type": "string"}}},
                    "404": {"description": "Not Found", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/health/ready": {
            "get": {
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Readiness probe",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.readinessResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/handler.readinessResponse"}}
                }
            }
        }
    },
    "definitions": {
        "handler.loginRequest": {
            "type": "object",
            "required": ["password", "username"],
            "properties": {
                "password": {"type": "string"},
                "username": {"type": "string"}
            }
        },
        "handler.signupRequest": {
            "type": "object",
            "required": ["desired_practice_id", "email", "full_name", "password", "username"],
            "properties": {
                "desired_practice_id": {"type": "string"},
                "email": {"type": "string"},
                "full_name": {"type": "string"},
                "password": {"type": "string", "minLength": 8},
                "username": {"type": "string", "maxLength": 150}
            }
        },
        "handler.changePasswordRequest": {
            "type": "object",
            "required": ["new_password", "old_password"],
            "properties": {
                "new_password": {"type": "string", "minLength": 8},
                "old_password": {"type": "string"}
            }
        },
        "handler.roleChangeRequest": {
            "type": "object",
            "required": ["requested_role"],
            "properties": {
                "reason": {"type": "string"},
                "requested_role": {"type": "string"}
            }
        },
        "handler.rejectRequest": {
            "type": "object",
            "properties": {
                "reason": {"type": "string"}
            }
        },
        "handler.actionResponse": {
            "type": "object",
            "properties": {
                "notices": {"type": "array", "items": {"$ref": "#/definitions/service.Notice"}},
                "redirect": {"type": "string"},
                "session": {"$ref": "#/definitions/domain.Session"}
            }
        },
        "handler.approvalResponse": {
            "type": "object",
            "properties": {
                "is_loading": {"type": "boolean"},
                "is_processing": {"type": "boolean"},
                "load_failed": {"type": "boolean"},
                "notices": {"type": "array", "items": {"$ref": "#/definitions/service.Notice"}},
                "registration_requests": {"type": "array", "items": {"$ref": "#/definitions/domain.PendingRequest"}},
                "registration_state": {"type": "string"},
                "role_change_requests": {"type": "array", "items": {"$ref": "#/definitions/domain.PendingRequest"}},
                "role_change_state": {"type": "string"}
            }
        },
        "handler.decisionsResponse": {
            "type": "object",
            "properties": {
                "decisions": {"type": "array", "items": {"$ref": "#/definitions/domain.Decision"}}
            }
        },
        "handler.readinessResponse": {
            "type": "object",
            "properties": {
                "dependencies": {"type": "object", "additionalProperties": {"$ref": "#/definitions/handler.dependencyStatus"}},
                "status": {"type": "string"}
            }
        },
        "handler.dependencyStatus": {
            "type": "object",
            "properties": {
                "error": {"type": "string"},
                "status": {"type": "string"}
            }
        },
        "service.Notice": {
            "type": "object",
            "properties": {
                "level": {"type": "string", "enum": ["success", "error"]},
                "message": {"type": "string"}
            }
        },
        "domain.Profile": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "full_name": {"type": "string"},
                "id": {"type": "string"},
                "role": {"type": "string"},
                "username": {"type": "string"}
            }
        },
        "domain.Session": {
            "type": "object",
            "properties": {
                "isAuthenticated": {"type": "boolean"},
                "role": {"type": "string"},
                "user": {"$ref": "#/definitions/domain.Profile"}
            }
        },
        "domain.PendingRequest": {
            "type": "object",
            "properties": {
                "current_role": {"type": "string"},
                "id": {"type": "string"},
                "kind": {"type": "string", "enum": ["registration", "role_change"]},
                "practice": {
                    "type": "object",
                    "properties": {"id": {"type": "string"}, "name": {"type": "string"}}
                },
                "requested_role": {"type": "string"},
                "submitted_at": {"type": "string"},
                "user": {
                    "type": "object",
                    "properties": {"email": {"type": "string"}, "full_name": {"type": "string"}}
                }
            }
        },
        "domain.Decision": {
            "type": "object",
            "properties": {
                "actor": {"type": "string"},
                "decided_at": {"type": "string"},
                "error": {"type": "string"},
                "id": {"type": "string"},
                "kind": {"type": "string"},
                "outcome": {"type": "string", "enum": ["APPROVED", "REJECTED"]},
                "reason": {"type": "string"},
                "request_id": {"type": "string"},
                "succeeded": {"type": "boolean"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Practice Portal API",
	Description:      "Backend for the practice portal: sessions, role routing and the approval workflow.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
