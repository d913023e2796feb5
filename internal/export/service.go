package export

import (
	"context"
	"fmt"
	"html/template"

	"quill/api/internal/store"
)

// DataStore defines the interface for data access
type DataStore interface {
	GetDocument(ctx context.Context, id string) (store.Document, error)
	GetUserByID(ctx context.Context, id string) (store.User, error)
	GetVersion(ctx context.Context, documentID string, version int) (store.Version, error)
}

// Service provides document export functionality
type Service struct {
	store DataStore
}

// NewService creates a new export service
func NewService(store DataStore) *Service {
	return &Service{store: store}
}

// Export generates an export in the requested format
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	doc, err := s.store.GetDocument(ctx, req.DocumentID)
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}

	data := TemplateData{
		Title:       doc.Title,
		ContentHTML: template.HTML(doc.Content),
		UpdatedAt:   doc.UpdatedAt,
		Version:     doc.CurrentVersion,
	}

	if author, err := s.store.GetUserByID(ctx, doc.AuthorID); err == nil {
		data.Author = author.DisplayName
	}

	if req.Version > 0 && req.Version != doc.CurrentVersion {
		version, err := s.store.GetVersion(ctx, req.DocumentID, req.Version)
		if err != nil {
			return nil, fmt.Errorf("get version: %w", err)
		}
		data.Title = version.Title
		data.ContentHTML = template.HTML(version.Content)
		data.UpdatedAt = version.CreatedAt
		data.Version = version.Version
	}

	html, err := RenderDocumentHTML(data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	switch req.Format {
	case FormatPDF:
		return exportPDF(html, data.Title)
	case FormatDOCX:
		return exportDOCX(html, data.Title)
	default:
		return nil, fmt.Errorf("unsupported format: %s", req.Format)
	}
}
