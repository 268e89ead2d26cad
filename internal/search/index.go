package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/google/uuid"

	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/documents"
	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/workflow"
)

const DefaultIndex = "doctrack-documents"

const indexMapping = `{
  "mappings": {
    "properties": {
      "document_number":       {"type": "keyword", "fields": {"text": {"type": "text"}}},
      "barcode":               {"type": "keyword"},
      "title":                 {"type": "text"},
      "description":           {"type": "text"},
      "type":                  {"type": "keyword"},
      "status":                {"type": "keyword"},
      "priority":              {"type": "keyword"},
      "security_level":        {"type": "keyword"},
      "current_department_id": {"type": "keyword"},
      "created_by":            {"type": "keyword"},
      "assigned_to":           {"type": "keyword"},
      "deadline":              {"type": "date"},
      "created_at":            {"type": "date"},
      "updated_at":            {"type": "date"}
    }
  }
}`

// indexedDocument is the searchable projection of a document.
type indexedDocument struct {
	DocumentNumber      string     `json:"document_number"`
	Barcode             string     `json:"barcode,omitempty"`
	Title               string     `json:"title"`
	Description         string     `json:"description,omitempty"`
	Type                string     `json:"type"`
	Status              string     `json:"status"`
	Priority            string     `json:"priority"`
	SecurityLevel       string     `json:"security_level"`
	CurrentDepartmentID string     `json:"current_department_id,omitempty"`
	CreatedBy           string     `json:"created_by"`
	AssignedTo          string     `json:"assigned_to,omitempty"`
	Deadline            *time.Time `json:"deadline,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

func project(doc *documents.Document) indexedDocument {
	out := indexedDocument{
		DocumentNumber: doc.DocumentNumber,
		Title:          doc.Title,
		Description:    doc.Description,
		Type:           string(doc.Type),
		Status:         string(doc.Status),
		Priority:       string(doc.Priority),
		SecurityLevel:  string(doc.SecurityLevel),
		CreatedBy:      doc.CreatedBy.String(),
		Deadline:       doc.Deadline,
		CreatedAt:      doc.CreatedAt,
		UpdatedAt:      doc.UpdatedAt,
	}
	if doc.Barcode != nil {
		out.Barcode = *doc.Barcode
	}
	if doc.CurrentDepartmentID != nil {
		out.CurrentDepartmentID = doc.CurrentDepartmentID.String()
	}
	if doc.AssignedTo != nil {
		out.AssignedTo = doc.AssignedTo.String()
	}
	return out
}

// Index keeps the Elasticsearch projection of documents current. It is
// registered on the engine as a post-commit hook.
type Index struct {
	es   *elasticsearch.Client
	name string
}

func NewClient(addresses []string, username, password string) (*elasticsearch.Client, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: addresses,
		Username:  username,
		Password:  password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}
	return es, nil
}

func NewIndex(es *elasticsearch.Client, name string) *Index {
	if name == "" {
		name = DefaultIndex
	}
	return &Index{es: es, name: name}
}

// EnsureIndex creates the index with its mapping when it does not exist.
func (i *Index) EnsureIndex(ctx context.Context) error {
	res, err := i.es.Indices.Exists([]string{i.name}, i.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to check index %s: %w", i.name, err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}

	res, err = i.es.Indices.Create(i.name,
		i.es.Indices.Create.WithContext(ctx),
		i.es.Indices.Create.WithBody(strings.NewReader(indexMapping)),
	)
	if err != nil {
		return fmt.Errorf("failed to create index %s: %w", i.name, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return responseError("create index", res)
	}
	return nil
}

func (i *Index) Put(ctx context.Context, doc *documents.Document) error {
	body, err := json.Marshal(project(doc))
	if err != nil {
		return fmt.Errorf("failed to marshal document %s: %w", doc.ID, err)
	}

	res, err := i.es.Index(i.name, bytes.NewReader(body),
		i.es.Index.WithContext(ctx),
		i.es.Index.WithDocumentID(doc.ID.String()),
	)
	if err != nil {
		return fmt.Errorf("failed to index document %s: %w", doc.ID, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return responseError("index document", res)
	}
	return nil
}

// Remove deletes the projection. A missing projection is not an error.
func (i *Index) Remove(ctx context.Context, id uuid.UUID) error {
	res, err := i.es.Delete(i.name, id.String(), i.es.Delete.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to remove document %s: %w", id, err)
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return responseError("remove document", res)
	}
	return nil
}

func (i *Index) AfterCommit(ctx context.Context, event workflow.Event) error {
	if event.Document == nil {
		return nil
	}
	if event.Deleted() {
		return i.Remove(ctx, event.Document.ID)
	}
	return i.Put(ctx, event.Document)
}

func responseError(op string, res *esapi.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
	return fmt.Errorf("elasticsearch %s: %s: %s", op, res.Status(), strings.TrimSpace(string(msg)))
}
