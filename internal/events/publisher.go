package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/workflow"
)

const DefaultSubjectPrefix = "doctrack.workflow"

// Conn is the part of *nats.Conn the publisher needs.
type Conn interface {
	PublishMsg(m *nats.Msg) error
}

// Message is the JSON body published for every committed workflow change.
type Message struct {
	ID             uuid.UUID  `json:"id"`
	Event          string     `json:"event"`
	Action         string     `json:"action"`
	DocumentID     uuid.UUID  `json:"document_id"`
	DocumentNumber string     `json:"document_number"`
	DepartmentID   *uuid.UUID `json:"department_id,omitempty"`
	OldStatus      string     `json:"old_status,omitempty"`
	NewStatus      string     `json:"new_status,omitempty"`
	ActorID        uuid.UUID  `json:"actor_id"`
	Remarks        string     `json:"remarks,omitempty"`
	Deleted        bool       `json:"deleted,omitempty"`
	OccurredAt     time.Time  `json:"occurred_at"`
}

// Publisher is a workflow.CommitHook that publishes each committed change on
// <prefix>.<action>.
type Publisher struct {
	conn   Conn
	prefix string
}

func NewPublisher(conn Conn, prefix string) *Publisher {
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &Publisher{conn: conn, prefix: prefix}
}

func (p *Publisher) Subject(action workflow.Action) string {
	return p.prefix + "." + string(action)
}

func (p *Publisher) AfterCommit(ctx context.Context, event workflow.Event) error {
	if event.Document == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before publish: %w", err)
	}

	doc := event.Document
	msg := Message{
		ID:             uuid.New(),
		Event:          event.Name,
		Action:         string(event.Action),
		DocumentID:     doc.ID,
		DocumentNumber: doc.DocumentNumber,
		DepartmentID:   doc.CurrentDepartmentID,
		OldStatus:      string(event.OldStatus),
		NewStatus:      string(event.NewStatus),
		ActorID:        event.ActorID,
		Remarks:        event.Remarks,
		Deleted:        event.Deleted(),
		OccurredAt:     event.OccurredAt.UTC(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal workflow event: %w", err)
	}

	out := nats.NewMsg(p.Subject(event.Action))
	out.Data = data
	out.Header.Set(nats.MsgIdHdr, msg.ID.String())
	out.Header.Set("Doctrack-Document", doc.ID.String())

	if err := p.conn.PublishMsg(out); err != nil {
		return fmt.Errorf("failed to publish %s: %w", out.Subject, err)
	}
	return nil
}

// Connect dials NATS with reconnect settings suited to a long-running API.
func Connect(url, name string) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	return conn, nil
}
