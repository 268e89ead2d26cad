package documents

import "strings"

// Status is the workflow status of a document.
type Status string

const (
	StatusDraft           Status = "draft"
	StatusPending         Status = "pending"
	StatusSubmitted       Status = "submitted"
	StatusUnderReview     Status = "under_review"
	StatusForApproval     Status = "for_approval"
	StatusRouted          Status = "routed"
	StatusAwaitingPayment Status = "awaiting_payment"
	StatusPaid            Status = "paid"
	StatusReceived        Status = "received"
	StatusApproved        Status = "approved"
	StatusRejected        Status = "rejected"
	StatusOnHold          Status = "on_hold"
	StatusCompleted       Status = "completed"
	StatusArchived        Status = "archived"
)

var allStatuses = []Status{
	StatusDraft,
	StatusPending,
	StatusSubmitted,
	StatusUnderReview,
	StatusForApproval,
	StatusRouted,
	StatusAwaitingPayment,
	StatusPaid,
	StatusReceived,
	StatusApproved,
	StatusRejected,
	StatusOnHold,
	StatusCompleted,
	StatusArchived,
}

// AllStatuses returns every status in lifecycle order.
func AllStatuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

func (s Status) IsValid() bool {
	for _, known := range allStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// ParseStatus accepts either the stored form ("on_hold") or the upper-case
// form used by operators ("ON_HOLD").
func ParseStatus(raw string) (Status, bool) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	return s, s.IsValid()
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// SecurityLevel classifies a document. Users carry the same scale as clearance.
type SecurityLevel string

const (
	SecurityPublic       SecurityLevel = "public"
	SecurityInternal     SecurityLevel = "internal"
	SecurityConfidential SecurityLevel = "confidential"
	SecuritySecret       SecurityLevel = "secret"
)

// Rank orders security levels. Unknown levels rank above secret so that
// comparisons against them fail closed.
func (l SecurityLevel) Rank() int {
	switch l {
	case SecurityPublic:
		return 0
	case SecurityInternal:
		return 1
	case SecurityConfidential:
		return 2
	case SecuritySecret:
		return 3
	default:
		return 4
	}
}

func (l SecurityLevel) IsValid() bool {
	return l.Rank() <= 3
}

type DocumentType string

const (
	TypePurchaseRequest     DocumentType = "purchase_request"
	TypePurchaseOrder       DocumentType = "purchase_order"
	TypeBid                 DocumentType = "bid"
	TypeAward               DocumentType = "award"
	TypeContract            DocumentType = "contract"
	TypeDisbursementVoucher DocumentType = "disbursement_voucher"
	TypeMemo                DocumentType = "memo"
	TypeLetter              DocumentType = "letter"
	TypeOther               DocumentType = "other"
)

var typePrefixes = map[DocumentType]string{
	TypePurchaseRequest:     "PR",
	TypePurchaseOrder:       "PO",
	TypeBid:                 "BID",
	TypeAward:               "AWD",
	TypeContract:            "CON",
	TypeDisbursementVoucher: "DV",
	TypeMemo:                "MEMO",
	TypeLetter:              "LTR",
	TypeOther:               "DOC",
}

func (t DocumentType) IsValid() bool {
	_, ok := typePrefixes[t]
	return ok
}

// Prefix is the document number prefix for the type.
func (t DocumentType) Prefix() string {
	if p, ok := typePrefixes[t]; ok {
		return p
	}
	return "DOC"
}

// IsProcurement reports whether the type belongs to the procurement chain.
func (t DocumentType) IsProcurement() bool {
	switch t {
	case TypePurchaseRequest, TypePurchaseOrder, TypeBid, TypeAward, TypeContract:
		return true
	}
	return false
}
