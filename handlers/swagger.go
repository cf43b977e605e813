package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger registers Swagger/OpenAPI endpoints for the paper service.
// - GET /swagger/index.html  -> a small HTML page that loads the OpenAPI JSON
// - GET /swagger/doc.json    -> machine-readable OpenAPI JSON
func RegisterSwagger(rg *gin.Engine) {
	rg.GET("/swagger/index.html", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, swaggerHTML)
	})

	rg.GET("/swagger/doc.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(swaggerJSON))
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>paperdesk API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@4/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@4/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/swagger/doc.json',
        dom_id: '#swagger-ui',
      })
    </script>
  </body>
</html>`

// OpenAPI document for the auth and paper endpoints.
const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "paperdesk", "version": "v0.1.0" },
  "components": {
    "securitySchemes": { "bearer": { "type": "http", "scheme": "bearer", "bearerFormat": "JWT" } }
  },
  "security": [ { "bearer": [] } ],
  "paths": {
    "/auth/login": {
      "post": {
        "summary": "Password login",
        "security": [],
        "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"username":{"type":"string"},"password":{"type":"string"}}}}}},
        "responses": { "200": { "description": "access token returned" }, "401": { "description": "bad credentials" } }
      }
    },
    "/auth/logout": {
      "post": { "summary": "Revoke the presented access token", "responses": { "200": { "description": "logged out" } } }
    },
    "/auth/me": {
      "get": { "summary": "Current account", "responses": { "200": { "description": "user" } } }
    },
    "/auth/reviewers": {
      "post": {
        "summary": "Create a reviewer assigned to a paper (admin)",
        "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"username":{"type":"string"},"name":{"type":"string"},"password":{"type":"string"},"paperId":{"type":"integer"}}}}}},
        "responses": { "201": { "description": "reviewer created" }, "403": { "description": "not an admin" }, "404": { "description": "paper not found" }, "409": { "description": "username taken" } }
      }
    },
    "/auth/users": {
      "get": { "summary": "List accounts (admin)", "responses": { "200": { "description": "users" }, "403": { "description": "not an admin" } } }
    },
    "/api/papers": {
      "get": { "summary": "List visible papers", "responses": { "200": { "description": "papers" } } },
      "post": {
        "summary": "Create a paper (faculty)",
        "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"sections":{"type":"object","additionalProperties":{"type":"string"}}}}}}},
        "responses": { "201": { "description": "created" }, "400": { "description": "unknown section" }, "403": { "description": "forbidden" } }
      }
    },
    "/api/papers/statuses": {
      "get": { "summary": "Configured statuses", "responses": { "200": { "description": "statuses" } } }
    },
    "/api/papers/{id}": {
      "get": { "summary": "Get a paper", "responses": { "200": { "description": "paper" }, "403": { "description": "forbidden" }, "404": { "description": "not found" } } },
      "delete": { "summary": "Delete a paper with its attachments and reviews", "responses": { "204": { "description": "deleted" } } }
    },
    "/api/papers/{id}/sections": {
      "patch": {
        "summary": "Edit sections; omitted sections keep their content",
        "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"sections":{"type":"object","additionalProperties":{"type":"string"}}}}}}},
        "responses": { "200": { "description": "paper and changes" }, "409": { "description": "paper busy" } }
      }
    },
    "/api/papers/{id}/upload": {
      "post": {
        "summary": "Upload a document (.txt .md .html .pdf .docx) and split it into sections",
        "requestBody": { "content": { "multipart/form-data": { "schema": {"type":"object","properties":{"file":{"type":"string","format":"binary"}}}}}},
        "responses": { "200": { "description": "paper and changes" }, "413": { "description": "too large" }, "415": { "description": "unsupported type" }, "422": { "description": "malformed document" } }
      }
    },
    "/api/papers/{id}/status": {
      "put": {
        "summary": "Set status",
        "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"status":{"type":"string"}}}}}},
        "responses": { "200": { "description": "paper" }, "400": { "description": "invalid status" } }
      }
    },
    "/api/papers/{id}/history": {
      "get": { "summary": "Change history, oldest first", "responses": { "200": { "description": "history records" } } }
    },
    "/api/papers/{id}/render": {
      "get": { "summary": "Sections with image and table placeholders rendered as HTML", "responses": { "200": { "description": "rendered sections" } } }
    },
    "/api/papers/{id}/images": {
      "post": {
        "summary": "Attach an image",
        "requestBody": { "content": { "multipart/form-data": { "schema": {"type":"object","properties":{"file":{"type":"string","format":"binary"}}}}}},
        "responses": { "201": { "description": "index and placeholder" } }
      }
    },
    "/api/papers/{id}/images/{n}": {
      "get": { "summary": "Image bytes", "responses": { "200": { "description": "image" }, "404": { "description": "no such image" } } }
    },
    "/api/papers/{id}/tables": {
      "post": {
        "summary": "Add a blank table",
        "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"rows":{"type":"integer"},"cols":{"type":"integer"}}}}}},
        "responses": { "201": { "description": "index and placeholder" }, "400": { "description": "invalid dimensions" } }
      }
    },
    "/api/papers/{id}/reviews": {
      "get": { "summary": "List reviews", "responses": { "200": { "description": "reviews" } } },
      "post": {
        "summary": "Submit a review (assigned reviewer)",
        "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"suggestions":{"type":"string"},"overallComment":{"type":"string"}}}}}},
        "responses": { "201": { "description": "review" }, "403": { "description": "not the assigned reviewer" } }
      }
    },
    "/health": { "get": { "summary": "Liveness check", "security": [], "responses": { "200": { "description": "healthy" } } } },
    "/ready": { "get": { "summary": "Readiness check", "security": [], "responses": { "200": { "description": "ready" }, "503": { "description": "not ready" } } } },
    "/metrics": { "get": { "summary": "Prometheus metrics", "security": [], "responses": { "200": { "description": "metrics" } } } }
  }
}`
