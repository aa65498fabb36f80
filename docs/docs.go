// Package docs registers the OpenAPI document served at /swagger.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "schemes": ["http"],
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header",
            "description": "Type \"Bearer\" followed by a space and JWT token."
        }
    },
    "paths": {
        "/health": {
            "get": {
                "tags": ["health"],
                "summary": "Liveness probe",
                "responses": {"200": {"description": "Server is up"}}
            }
        },
        "/ready": {
            "get": {
                "tags": ["health"],
                "summary": "Readiness probe",
                "responses": {
                    "200": {"description": "Dependencies reachable"},
                    "503": {"description": "A dependency is down"}
                }
            }
        },
        "/auth/register": {
            "post": {
                "tags": ["auth"],
                "summary": "Register a new account",
                "parameters": [{"name": "request", "in": "body", "required": true, "schema": {
                    "type": "object",
                    "required": ["email", "password", "name"],
                    "properties": {
                        "email": {"type": "string"},
                        "password": {"type": "string", "minLength": 8},
                        "name": {"type": "string"}
                    }
                }}],
                "responses": {
                    "201": {"description": "Token and user"},
                    "409": {"description": "Email already registered"}
                }
            }
        },
        "/auth/login": {
            "post": {
                "tags": ["auth"],
                "summary": "Authenticate and receive a token",
                "parameters": [{"name": "request", "in": "body", "required": true, "schema": {
                    "type": "object",
                    "required": ["email", "password"],
                    "properties": {
                        "email": {"type": "string"},
                        "password": {"type": "string"}
                    }
                }}],
                "responses": {
                    "200": {"description": "Token and user"},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/{user_id}/tasks": {
            "get": {
                "tags": ["tasks"],
                "summary": "List tasks with filters",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "user_id", "in": "path", "required": true, "type": "string"},
                    {"name": "status", "in": "query", "type": "string", "enum": ["incomplete", "complete"]},
                    {"name": "priority", "in": "query", "type": "string", "enum": ["low", "medium", "high", "urgent"]},
                    {"name": "tags", "in": "query", "type": "string", "description": "comma-separated; tasks must carry all"},
                    {"name": "due_date_window", "in": "query", "type": "string", "enum": ["overdue", "today", "this_week", "this_month"]},
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "sort_by", "in": "query", "type": "string"},
                    {"name": "sort_order", "in": "query", "type": "string", "enum": ["asc", "desc"]},
                    {"name": "limit", "in": "query", "type": "integer"},
                    {"name": "offset", "in": "query", "type": "integer"}
                ],
                "responses": {"200": {"description": "Page of tasks with total"}}
            },
            "post": {
                "tags": ["tasks"],
                "summary": "Create a task",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "user_id", "in": "path", "required": true, "type": "string"},
                    {"name": "request", "in": "body", "required": true, "schema": {
                        "type": "object",
                        "required": ["title"],
                        "properties": {
                            "title": {"type": "string", "maxLength": 200},
                            "description": {"type": "string", "maxLength": 2000},
                            "priority": {"type": "string", "enum": ["low", "medium", "high", "urgent"]},
                            "tags": {"type": "array", "items": {"type": "string"}},
                            "due_date": {"type": "string", "format": "date-time"},
                            "recurrence": {"type": "string", "enum": ["none", "daily", "weekly", "monthly"]},
                            "reminder_offset": {"type": "string", "example": "1h"}
                        }
                    }}
                ],
                "responses": {
                    "201": {"description": "Created task, possibly with a sync warning"},
                    "400": {"description": "Validation failure"}
                }
            }
        },
        "/{user_id}/tasks/{id}": {
            "get": {
                "tags": ["tasks"],
                "summary": "Fetch one task",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "user_id", "in": "path", "required": true, "type": "string"},
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {"200": {"description": "Task"}, "404": {"description": "Not found or not owned"}}
            },
            "put": {
                "tags": ["tasks"],
                "summary": "Patch a task",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "user_id", "in": "path", "required": true, "type": "string"},
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "request", "in": "body", "required": true, "schema": {"type": "object"}}
                ],
                "responses": {"200": {"description": "Updated task"}}
            },
            "delete": {
                "tags": ["tasks"],
                "summary": "Delete a task",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "user_id", "in": "path", "required": true, "type": "string"},
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {"204": {"description": "Deleted"}}
            }
        },
        "/{user_id}/tasks/{id}/complete": {
            "patch": {
                "tags": ["tasks"],
                "summary": "Mark a task complete",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "user_id", "in": "path", "required": true, "type": "string"},
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {"200": {"description": "Completed task"}}
            }
        },
        "/api/{user_id}/chat": {
            "post": {
                "tags": ["chat"],
                "summary": "Send a chat message",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "user_id", "in": "path", "required": true, "type": "string"},
                    {"name": "request", "in": "body", "required": true, "schema": {
                        "type": "object",
                        "required": ["message"],
                        "properties": {
                            "message": {"type": "string"},
                            "conversation_id": {"type": "string"}
                        }
                    }}
                ],
                "responses": {
                    "200": {"description": "Assistant response with tool calls"},
                    "429": {"description": "Rate limited"}
                }
            }
        },
        "/api/{user_id}/conversations": {
            "get": {
                "tags": ["chat"],
                "summary": "List conversations",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "user_id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "Conversations, newest first"}}
            }
        },
        "/api/{user_id}/conversations/{id}/messages": {
            "get": {
                "tags": ["chat"],
                "summary": "Fetch a conversation transcript",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "user_id", "in": "path", "required": true, "type": "string"},
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {"200": {"description": "Messages, oldest first"}}
            }
        },
        "/api/reminders/trigger": {
            "post": {
                "tags": ["reminders"],
                "summary": "Fire a reminder from an external scheduler",
                "parameters": [{"name": "request", "in": "body", "required": true, "schema": {
                    "type": "object",
                    "required": ["user_id", "task_id"],
                    "properties": {
                        "user_id": {"type": "string"},
                        "task_id": {"type": "string"},
                        "message": {"type": "string"}
                    }
                }}],
                "responses": {"202": {"description": "Reminder event published"}}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "TaskForge API",
	Description:      "Event-driven multi-tenant task management backend",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
