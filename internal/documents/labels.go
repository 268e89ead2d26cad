package documents

// Presentation metadata for HTTP responses. Nothing in the workflow core reads it.

var statusLabels = map[Status]string{
	StatusDraft:           "Draft",
	StatusPending:         "Pending",
	StatusSubmitted:       "Submitted",
	StatusUnderReview:     "Under Review",
	StatusForApproval:     "For Approval",
	StatusRouted:          "Routed",
	StatusAwaitingPayment: "Awaiting Payment",
	StatusPaid:            "Paid",
	StatusReceived:        "Received",
	StatusApproved:        "Approved",
	StatusRejected:        "Rejected",
	StatusOnHold:          "On Hold",
	StatusCompleted:       "Completed",
	StatusArchived:        "Archived",
}

var statusColors = map[Status]string{
	StatusDraft:           "gray",
	StatusPending:         "yellow",
	StatusSubmitted:       "blue",
	StatusUnderReview:     "indigo",
	StatusForApproval:     "purple",
	StatusRouted:          "cyan",
	StatusAwaitingPayment: "orange",
	StatusPaid:            "teal",
	StatusReceived:        "sky",
	StatusApproved:        "green",
	StatusRejected:        "red",
	StatusOnHold:          "amber",
	StatusCompleted:       "emerald",
	StatusArchived:        "slate",
}

func StatusLabel(s Status) string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return string(s)
}

func StatusColor(s Status) string {
	if c, ok := statusColors[s]; ok {
		return c
	}
	return "gray"
}
