package mcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nomadai/kbase/internal/core/domain"
)

// SearchInput is the input schema for the search_knowledge tool.
type SearchInput struct {
	Query string `json:"query" jsonschema:"the question or text to find relevant passages for"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of passages to return (default 5)"`
}

// SearchOutput is the output schema for the search_knowledge tool.
type SearchOutput struct {
	Results []SearchResultOutput `json:"results"`
	Count   int                  `json:"count"`
	Message string               `json:"message"`
}

// SearchResultOutput represents a single retrieved passage.
type SearchResultOutput struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	FileName   string  `json:"file_name"`
	Score      float64 `json:"score"`
	Text       string  `json:"text"`
}

// ContextInput is the input schema for the build_context tool.
type ContextInput struct {
	Query string `json:"query" jsonschema:"the question to assemble context for"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of passages to include (default 5)"`
}

// ContextOutput is the output schema for the build_context tool.
type ContextOutput struct {
	HasContext bool                   `json:"has_context"`
	Context    string                 `json:"context"`
	Sources    []domain.ContextSource `json:"sources"`
}

// IngestInput is the input schema for the ingest_document tool.
type IngestInput struct {
	FileName string `json:"file_name" jsonschema:"name of the document, its extension selects the type"`
	Content  string `json:"content" jsonschema:"full text of the document"`
	FileType string `json:"file_type,omitempty" jsonschema:"MIME type, detected from the name when omitted"`
	Force    bool   `json:"force,omitempty" jsonschema:"ingest even when identical content already exists"`
}

// IngestOutput is the output schema for the ingest_document tool.
type IngestOutput struct {
	DocumentID  string `json:"document_id"`
	IsDuplicate bool   `json:"is_duplicate"`
	Chunks      int    `json:"chunks"`
	Message     string `json:"message"`
}

// ListInput is the input schema for the list_documents tool.
type ListInput struct {
	Filter string `json:"filter,omitempty" jsonschema:"only list documents whose file name contains this text"`
}

// ListOutput is the output schema for the list_documents tool.
type ListOutput struct {
	Documents []DocumentOutput `json:"documents"`
	Count     int              `json:"count"`
}

// DocumentOutput is a document summary.
type DocumentOutput struct {
	ID         string `json:"id"`
	FileName   string `json:"file_name"`
	FileType   string `json:"file_type"`
	FileSize   int64  `json:"file_size"`
	ChunkCount int    `json:"chunk_count"`
	CreatedAt  string `json:"created_at"`
}

// DeleteInput is the input schema for the delete_document tool.
type DeleteInput struct {
	DocumentID string `json:"document_id" jsonschema:"id of the document to remove"`
}

// DeleteOutput is the output schema for the delete_document tool.
type DeleteOutput struct {
	Deleted bool `json:"deleted"`
}

// StatsInput is the empty input of the knowledge_stats tool.
type StatsInput struct{}

// StatsOutput is the output schema for the knowledge_stats tool.
type StatsOutput struct {
	Documents                int     `json:"documents"`
	Vectors                  int     `json:"vectors"`
	IndexedDocuments         int     `json:"indexed_documents"`
	AverageChunksPerDocument float64 `json:"average_chunks_per_document"`
	CachedVectors            int     `json:"cached_vectors"`
	LastUpdated              string  `json:"last_updated"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search_knowledge",
		Description: "Find the passages of the knowledge base most similar to a query",
	}, s.handleSearch)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "build_context",
		Description: "Assemble retrieved passages and source excerpts into one context block",
	}, s.handleBuildContext)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "ingest_document",
		Description: "Add a text document to the knowledge base",
	}, s.handleIngest)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_documents",
		Description: "List documents in the knowledge base",
	}, s.handleList)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "delete_document",
		Description: "Remove a document and all of its passages",
	}, s.handleDelete)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "knowledge_stats",
		Description: "Summarise the size of the knowledge base",
	}, s.handleStats)
}

func (s *Server) limit(requested int) int {
	if requested <= 0 {
		return s.ports.DefaultLimit
	}
	return requested
}

// handleSearch handles the search_knowledge tool invocation.
func (s *Server) handleSearch(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SearchInput,
) (*mcp.CallToolResult, SearchOutput, error) {
	resp := s.ports.Knowledge.SearchRelevantChunks(ctx, input.Query, s.limit(input.Limit))
	if !resp.Success {
		return nil, SearchOutput{}, toolError(resp.Kind, resp.Message)
	}

	output := SearchOutput{
		Results: make([]SearchResultOutput, len(resp.Results)),
		Count:   len(resp.Results),
		Message: resp.Message,
	}
	for i, hit := range resp.Results {
		out := SearchResultOutput{
			ChunkID: hit.ID,
			Score:   hit.Score,
			Text:    hit.Text,
		}
		if hit.Metadata != nil {
			out.DocumentID = hit.Metadata.ID
			out.FileName = hit.Metadata.FileName
		}
		output.Results[i] = out
	}

	return nil, output, nil
}

func (s *Server) handleBuildContext(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ContextInput,
) (*mcp.CallToolResult, ContextOutput, error) {
	result := s.ports.Knowledge.BuildContext(ctx, input.Query, s.limit(input.Limit))
	if result.Kind != domain.KindNone {
		return nil, ContextOutput{}, toolError(result.Kind, result.Message)
	}
	return nil, ContextOutput{
		HasContext: result.HasContext,
		Context:    result.ContextText,
		Sources:    result.Sources,
	}, nil
}

func (s *Server) handleIngest(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input IngestInput,
) (*mcp.CallToolResult, IngestOutput, error) {
	file := domain.TextFile(input.FileName, input.FileType, input.Content)
	result := s.ports.Knowledge.ProcessDocument(ctx, file, input.Force)
	if !result.Success {
		return nil, IngestOutput{}, toolError(result.Kind, result.Message)
	}
	return nil, IngestOutput{
		DocumentID:  result.DocumentID,
		IsDuplicate: result.IsDuplicate,
		Chunks:      result.Chunks,
		Message:     result.Message,
	}, nil
}

func (s *Server) handleList(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ListInput,
) (*mcp.CallToolResult, ListOutput, error) {
	var docs []domain.Document
	if input.Filter != "" {
		docs = s.ports.Knowledge.FindDocuments(ctx, input.Filter)
	} else {
		docs = s.ports.Knowledge.GetKnowledgeBase(ctx)
	}

	output := ListOutput{
		Documents: make([]DocumentOutput, len(docs)),
		Count:     len(docs),
	}
	for i := range docs {
		output.Documents[i] = documentOutput(&docs[i])
	}
	return nil, output, nil
}

func (s *Server) handleDelete(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input DeleteInput,
) (*mcp.CallToolResult, DeleteOutput, error) {
	if input.DocumentID == "" {
		return nil, DeleteOutput{}, toolError(domain.KindInvalidInput, "document_id is required")
	}
	return nil, DeleteOutput{Deleted: s.ports.Knowledge.DeleteDocument(ctx, input.DocumentID)}, nil
}

func (s *Server) handleStats(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ StatsInput,
) (*mcp.CallToolResult, StatsOutput, error) {
	return nil, statsOutput(s.ports.Knowledge.Stats(ctx)), nil
}

func statsOutput(stats domain.KnowledgeStats) StatsOutput {
	return StatsOutput{
		Documents:                stats.DocumentCount,
		Vectors:                  stats.Vectors.TotalVectors,
		IndexedDocuments:         stats.Vectors.TotalDocuments,
		AverageChunksPerDocument: stats.Vectors.AverageChunksPerDocument,
		CachedVectors:            stats.CachedVectors,
		LastUpdated:              stats.LastUpdated.Format(time.RFC3339),
	}
}

func documentOutput(doc *domain.Document) DocumentOutput {
	return DocumentOutput{
		ID:         doc.ID,
		FileName:   doc.FileName,
		FileType:   doc.FileType,
		FileSize:   doc.FileSize,
		ChunkCount: doc.ChunkCount,
		CreatedAt:  doc.CreatedAt.Format(time.RFC3339),
	}
}

// toolError turns a failed result into the error reported to the client.
func toolError(kind domain.ErrorKind, message string) error {
	if message == "" {
		message = "request failed"
	}
	if kind == domain.KindNone {
		return errors.New(message)
	}
	return fmt.Errorf("%s: %s", kind, message)
}
