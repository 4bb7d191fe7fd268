package pe

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// openAPIDocument describes the graph endpoints. Served statically; the
// document is part of the public contract and changes only with it.
const openAPIDocument = `{
  "openapi": "3.0.0",
  "info": {
    "title": "Cincinnati",
    "description": "Cincinnati update graph service",
    "version": "1.0.0"
  },
  "paths": {
    "/graph": {
      "get": {
        "summary": "Fetch the update graph for a channel",
        "parameters": [
          {"name": "channel", "in": "query", "required": true, "schema": {"type": "string"}},
          {"name": "arch", "in": "query", "required": false, "schema": {"type": "string", "default": "amd64"}},
          {"name": "id", "in": "query", "required": false, "schema": {"type": "string"}},
          {"name": "version", "in": "query", "required": false, "schema": {"type": "string"}}
        ],
        "responses": {
          "200": {
            "description": "The filtered update graph",
            "content": {
              "application/json": {"schema": {"$ref": "#/components/schemas/Graph"}},
              "application/vnd.redhat.cincinnati.v1+json": {"schema": {"$ref": "#/components/schemas/Graph"}}
            }
          },
          "400": {"description": "Missing or invalid client parameters", "content": {"application/json": {"schema": {"$ref": "#/components/schemas/GraphError"}}}},
          "406": {"description": "Unacceptable content type", "content": {"application/json": {"schema": {"$ref": "#/components/schemas/GraphError"}}}},
          "500": {"description": "Internal failure", "content": {"application/json": {"schema": {"$ref": "#/components/schemas/GraphError"}}}},
          "502": {"description": "Upstream failure", "content": {"application/json": {"schema": {"$ref": "#/components/schemas/GraphError"}}}}
        }
      }
    },
    "/v1/graph": {
      "$ref": "#/paths/~1graph"
    }
  },
  "components": {
    "schemas": {
      "Graph": {
        "type": "object",
        "properties": {
          "version": {"type": "integer"},
          "nodes": {"type": "array", "items": {"$ref": "#/components/schemas/Node"}},
          "edges": {"type": "array", "items": {"type": "array", "items": {"type": "integer"}, "minItems": 2, "maxItems": 2}},
          "conditionalEdges": {"type": "array", "items": {"$ref": "#/components/schemas/ConditionalEdges"}}
        }
      },
      "Node": {
        "type": "object",
        "required": ["version", "payload", "metadata"],
        "properties": {
          "version": {"type": "string"},
          "payload": {"type": "string"},
          "metadata": {"type": "object", "additionalProperties": {"type": "string"}}
        }
      },
      "ConditionalEdges": {
        "type": "object",
        "properties": {
          "edges": {"type": "array", "items": {"type": "object", "properties": {"from": {"type": "string"}, "to": {"type": "string"}}}},
          "risks": {"type": "array", "items": {"$ref": "#/components/schemas/Risk"}}
        }
      },
      "Risk": {
        "type": "object",
        "properties": {
          "url": {"type": "string"},
          "name": {"type": "string"},
          "message": {"type": "string"},
          "matchingRules": {"type": "array", "items": {"type": "object"}}
        }
      },
      "GraphError": {
        "type": "object",
        "required": ["kind", "value"],
        "properties": {
          "kind": {"type": "string"},
          "value": {"type": "string"}
        }
      }
    }
  }
}`

// OpenAPI serves the static OpenAPI 3.0 document.
func (h *Handler) OpenAPI(c *gin.Context) {
	c.Data(http.StatusOK, "application/json", []byte(openAPIDocument))
}
