package mcp

import (
	"context"
	"strings"

	"github.com/nomadai/kbase/internal/core/domain"
)

// mockKnowledgeService is a mock implementation of driving.KnowledgeService.
type mockKnowledgeService struct {
	search   domain.SearchResponse
	built    domain.ContextResult
	process  domain.ProcessResult
	docs     []domain.Document
	content  map[string]string
	stats    domain.KnowledgeStats
	deleted  bool
	repair   domain.RepairReport
	contErr  error
	lastFile domain.UploadedFile
	lastLim  int
	force    bool
}

func (m *mockKnowledgeService) ProcessDocument(_ context.Context, file domain.UploadedFile, force bool) domain.ProcessResult {
	m.lastFile = file
	m.force = force
	return m.process
}

func (m *mockKnowledgeService) ProcessAttachments(ctx context.Context, files []domain.UploadedFile) []domain.AttachmentResult {
	out := make([]domain.AttachmentResult, len(files))
	for i, f := range files {
		r := m.ProcessDocument(ctx, f, false)
		out[i] = domain.AttachmentResult{FileName: f.Name, Success: r.Success, Message: r.Message}
	}
	return out
}

func (m *mockKnowledgeService) SearchRelevantChunks(_ context.Context, _ string, limit int) domain.SearchResponse {
	m.lastLim = limit
	return m.search
}

func (m *mockKnowledgeService) BuildContext(_ context.Context, _ string, limit int) domain.ContextResult {
	m.lastLim = limit
	return m.built
}

func (m *mockKnowledgeService) GetKnowledgeBase(_ context.Context) []domain.Document {
	return m.docs
}

func (m *mockKnowledgeService) GetDocument(_ context.Context, id string) (*domain.Document, error) {
	for i := range m.docs {
		if m.docs[i].ID == id {
			return &m.docs[i], nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockKnowledgeService) GetContent(_ context.Context, id string) (string, error) {
	if m.contErr != nil {
		return "", m.contErr
	}
	c, ok := m.content[id]
	if !ok {
		return "", domain.ErrNotFound
	}
	return c, nil
}

func (m *mockKnowledgeService) FindDocuments(_ context.Context, query string) []domain.Document {
	var out []domain.Document
	for _, d := range m.docs {
		if strings.Contains(strings.ToLower(d.FileName), strings.ToLower(query)) {
			out = append(out, d)
		}
	}
	return out
}

func (m *mockKnowledgeService) DeleteDocument(_ context.Context, _ string) bool {
	return m.deleted
}

func (m *mockKnowledgeService) Stats(_ context.Context) domain.KnowledgeStats {
	return m.stats
}

func (m *mockKnowledgeService) Repair(_ context.Context) (domain.RepairReport, error) {
	return m.repair, nil
}
