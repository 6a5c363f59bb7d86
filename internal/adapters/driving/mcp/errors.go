// Package mcp provides an MCP (Model Context Protocol) server adapter for kbase.
// It lets AI assistants search the knowledge base and manage its documents.
package mcp

import "errors"

// ErrMissingKnowledgeService is returned when the knowledge service is not provided.
var ErrMissingKnowledgeService = errors.New("mcp: knowledge service is required")
