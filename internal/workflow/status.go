package workflow

import (
	"context"

	"github.com/google/uuid"

	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/documents"
)

var progress = map[documents.Status]int{
	documents.StatusDraft:           10,
	documents.StatusPending:         20,
	documents.StatusSubmitted:       30,
	documents.StatusRouted:          35,
	documents.StatusOnHold:          40,
	documents.StatusReceived:        50,
	documents.StatusUnderReview:     60,
	documents.StatusForApproval:     70,
	documents.StatusApproved:        80,
	documents.StatusAwaitingPayment: 85,
	documents.StatusPaid:            90,
	documents.StatusCompleted:       100,
	documents.StatusArchived:        100,
	documents.StatusRejected:        0,
}

// StatusView is the read-only status projection of a document.
type StatusView struct {
	DocumentID         uuid.UUID        `json:"document_id"`
	DocumentNumber     string           `json:"document_number"`
	CurrentStatus      documents.Status `json:"current_status"`
	Label              string           `json:"label"`
	Color              string           `json:"color"`
	ProgressPercentage int              `json:"progress_percentage"`
	AvailableActions   []Action         `json:"available_actions"`
}

// Progress returns the completion percentage shown for a status.
func Progress(s documents.Status) int {
	return progress[s]
}

// AvailableActions lists the workflow actions whose status precondition holds
// in s. Authorization is not considered.
func (p *StatusPolicy) AvailableActions(s documents.Status) []Action {
	actions := make([]Action, 0, len(WorkflowActions))
	for _, a := range WorkflowActions {
		if p.Available(a, s) {
			actions = append(actions, a)
		}
	}
	return actions
}

// StatusInfo describes one status for clients building filters and legends.
type StatusInfo struct {
	Status             documents.Status   `json:"status"`
	Label              string             `json:"label"`
	Color              string             `json:"color"`
	ProgressPercentage int                `json:"progress_percentage"`
	Terminal           bool               `json:"terminal"`
	Next               []documents.Status `json:"next"`
	AvailableActions   []Action           `json:"available_actions"`
}

// Catalog describes every status in the table, sorted by name.
func (p *StatusPolicy) Catalog() []StatusInfo {
	states := p.machine.States()
	out := make([]StatusInfo, 0, len(states))
	for _, s := range states {
		out = append(out, StatusInfo{
			Status:             s,
			Label:              documents.StatusLabel(s),
			Color:              documents.StatusColor(s),
			ProgressPercentage: Progress(s),
			Terminal:           p.IsTerminal(s),
			Next:               p.AllowedTransitions(s),
			AvailableActions:   p.AvailableActions(s),
		})
	}
	return out
}

// GetStatus reads the document without locking or writing anything.
func (e *Engine) GetStatus(ctx context.Context, documentID uuid.UUID) (StatusView, error) {
	doc, err := e.store.FindDocument(ctx, documentID)
	if err != nil {
		return StatusView{}, classify(err)
	}
	return e.statusView(doc), nil
}

func (e *Engine) statusView(doc *documents.Document) StatusView {
	return StatusView{
		DocumentID:         doc.ID,
		DocumentNumber:     doc.DocumentNumber,
		CurrentStatus:      doc.Status,
		Label:              documents.StatusLabel(doc.Status),
		Color:              documents.StatusColor(doc.Status),
		ProgressPercentage: Progress(doc.Status),
		AvailableActions:   e.statuses.AvailableActions(doc.Status),
	}
}
