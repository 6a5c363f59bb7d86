package domain

// UploadedFile is the descriptor handed over by the upload layer.
// Content is nil for binary files that carry no text.
type UploadedFile struct {
	Name    string   `json:"name"`
	Type    string   `json:"type"`
	Size    int64    `json:"size"`
	Content *string  `json:"content,omitempty"`
	CSVInfo *CSVInfo `json:"csvInfo,omitempty"`
}

// TextFile builds an UploadedFile for text content.
func TextFile(name, fileType, content string) UploadedFile {
	return UploadedFile{
		Name:    name,
		Type:    fileType,
		Size:    int64(len(content)),
		Content: &content,
	}
}

// HasContent reports whether the file carries text to process.
func (f UploadedFile) HasContent() bool {
	return f.Content != nil && *f.Content != ""
}

// ProcessResult is the outcome of ingesting one document.
type ProcessResult struct {
	Success     bool      `json:"success"`
	IsDuplicate bool      `json:"isDuplicate"`
	DocumentID  string    `json:"documentId,omitempty"`
	Document    *Document `json:"metadata,omitempty"`
	// ExistingFile is the previously ingested document when IsDuplicate is set.
	ExistingFile *Document `json:"existingFile,omitempty"`
	// Chunks is the number of chunks persisted.
	Chunks int `json:"chunks"`
	// Attempted is the number of chunks the chunker produced.
	Attempted int       `json:"attempted"`
	Kind      ErrorKind `json:"kind,omitempty"`
	Error     string    `json:"error,omitempty"`
	Message   string    `json:"message"`
}

// AttachmentResult is the per-file summary returned for a batch upload.
type AttachmentResult struct {
	FileName    string    `json:"fileName"`
	Success     bool      `json:"success"`
	IsDuplicate bool      `json:"isDuplicate"`
	DocumentID  string    `json:"documentId,omitempty"`
	Kind        ErrorKind `json:"kind,omitempty"`
	Message     string    `json:"message"`
}
