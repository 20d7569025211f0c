package capabilities

import "sync"

const (
	DeskConference = "conference"
	DeskFinance    = "finance"
	DeskDocuments  = "documents"
	DeskChat       = "chat"
	DeskCalendar   = "calendar"
)

const invoiceSchema = `{
  "type": "object",
  "required": ["recipient", "amount", "due_date"],
  "properties": {
    "recipient": {"type": "string", "minLength": 1},
    "amount": {"type": "number", "exclusiveMinimum": 0},
    "currency": {"type": "string", "pattern": "^[A-Z]{3}$"},
    "due_date": {"type": "string", "minLength": 1}
  }
}`

const paymentSchema = `{
  "type": "object",
  "required": ["payee", "amount", "scheduled_for"],
  "properties": {
    "payee": {"type": "string", "minLength": 1},
    "amount": {"type": "number", "exclusiveMinimum": 0},
    "scheduled_for": {"type": "string", "minLength": 1}
  }
}`

const conferenceSchema = `{
  "type": "object",
  "required": ["participants"],
  "properties": {
    "participants": {"type": "array", "minItems": 1, "items": {"type": "string"}},
    "topic": {"type": "string"}
  }
}`

// builtinEntries is the compiled-in catalog. It is copied into the default
// registry once and never mutated.
var builtinEntries = []Entry{
	{
		ID:    "conference_call",
		Desk:  DeskConference,
		Label: "Conference Call",
		Icon:  "video",
		Verbs: []Verb{
			{
				ID:    "start_conference",
				Label: "Start conference",
				Tier:  TierYellow,
				Lens: []LensField{
					{Key: "participants", Label: "Participants", Type: FieldRecipient},
					{Key: "topic", Label: "Topic", Type: FieldText},
					{Key: "status", Label: "Room status", Type: FieldStatus},
				},
				ParamsSchema: conferenceSchema,
			},
			{ID: "join_conference", Label: "Join conference", Tier: TierGreen},
			{
				ID:    "end_conference",
				Label: "End conference for everyone",
				Tier:  TierYellow,
				Lens: []LensField{
					{Key: "status", Label: "Room status", Type: FieldStatus},
					{Key: "duration", Label: "Elapsed", Type: FieldDuration},
				},
			},
		},
		DefaultVerb: "start_conference",
	},
	{
		ID:    "meeting_recording",
		Desk:  DeskConference,
		Label: "Meeting Recording",
		Icon:  "film",
		Verbs: []Verb{
			{ID: "view_recording", Label: "View recording", Tier: TierGreen},
			{
				ID:    "share_recording",
				Label: "Share recording",
				Tier:  TierYellow,
				Lens: []LensField{
					{Key: "recipients", Label: "Share with", Type: FieldRecipient},
					{Key: "recording", Label: "Recording", Type: FieldDocument},
				},
			},
			{
				ID:    "delete_recording",
				Label: "Delete recording",
				Tier:  TierRed,
				Lens: []LensField{
					{Key: "recording", Label: "Recording", Type: FieldDocument},
					{Key: "retention_status", Label: "Retention", Type: FieldStatus},
				},
			},
		},
		DefaultVerb: "view_recording",
	},
	{
		ID:    "invoice",
		Desk:  DeskFinance,
		Label: "Invoice",
		Icon:  "receipt",
		Verbs: []Verb{
			{ID: "draft_invoice", Label: "Draft invoice", Tier: TierGreen},
			{
				ID:    "send_invoice",
				Label: "Send invoice",
				Tier:  TierRed,
				Lens: []LensField{
					{Key: "recipient", Label: "Bill to", Type: FieldRecipient},
					{Key: "amount", Label: "Amount", Type: FieldCurrency},
					{Key: "due_date", Label: "Due", Type: FieldDate},
				},
				ParamsSchema: invoiceSchema,
			},
			{
				ID:    "void_invoice",
				Label: "Void invoice",
				Tier:  TierRed,
				Lens: []LensField{
					{Key: "invoice", Label: "Invoice", Type: FieldDocument},
					{Key: "amount", Label: "Amount", Type: FieldCurrency},
					{Key: "status", Label: "Current status", Type: FieldStatus},
				},
			},
		},
		DefaultVerb: "draft_invoice",
	},
	{
		ID:    "payment",
		Desk:  DeskFinance,
		Label: "Payment",
		Icon:  "bank",
		Verbs: []Verb{
			{ID: "view_payments", Label: "View payments", Tier: TierGreen},
			{
				ID:    "schedule_payment",
				Label: "Schedule payment",
				Tier:  TierRed,
				Lens: []LensField{
					{Key: "payee", Label: "Payee", Type: FieldRecipient},
					{Key: "amount", Label: "Amount", Type: FieldCurrency},
					{Key: "scheduled_for", Label: "Pay on", Type: FieldDate},
				},
				ParamsSchema: paymentSchema,
			},
		},
		DefaultVerb: "view_payments",
	},
	{
		ID:    "expense_report",
		Desk:  DeskFinance,
		Label: "Expense Report",
		Icon:  "wallet",
		Verbs: []Verb{
			{
				ID:    "submit_expense",
				Label: "Submit expense",
				Tier:  TierYellow,
				Lens: []LensField{
					{Key: "amount", Label: "Amount", Type: FieldCurrency},
					{Key: "category", Label: "Category", Type: FieldText},
				},
			},
			{
				ID:    "approve_expense",
				Label: "Approve expense",
				Tier:  TierRed,
				Lens: []LensField{
					{Key: "submitter", Label: "Submitted by", Type: FieldRecipient},
					{Key: "amount", Label: "Amount", Type: FieldCurrency},
				},
			},
		},
		DefaultVerb: "submit_expense",
	},
	{
		ID:    "document",
		Desk:  DeskDocuments,
		Label: "Document",
		Icon:  "file",
		Verbs: []Verb{
			{ID: "view_document", Label: "Open document", Tier: TierGreen},
			{
				ID:    "share_document",
				Label: "Share document",
				Tier:  TierYellow,
				Lens: []LensField{
					{Key: "document", Label: "Document", Type: FieldDocument},
					{Key: "recipients", Label: "Share with", Type: FieldRecipient},
				},
			},
			{
				ID:    "archive_document",
				Label: "Archive document",
				Tier:  TierYellow,
				Lens: []LensField{
					{Key: "document", Label: "Document", Type: FieldDocument},
					{Key: "status", Label: "Current status", Type: FieldStatus},
				},
			},
			{
				ID:    "sign_document",
				Label: "Sign document",
				Tier:  TierRed,
				Lens: []LensField{
					{Key: "document", Label: "Document", Type: FieldDocument},
					{Key: "signer", Label: "Signer", Type: FieldRecipient},
					{Key: "status", Label: "Signature status", Type: FieldStatus},
				},
			},
		},
		DefaultVerb: "view_document",
	},
	{
		ID:    "chat_message",
		Desk:  DeskChat,
		Label: "Chat Message",
		Icon:  "message",
		Verbs: []Verb{
			{ID: "draft_reply", Label: "Draft reply", Tier: TierGreen},
			{
				ID:    "send_message",
				Label: "Send message",
				Tier:  TierYellow,
				Lens: []LensField{
					{Key: "recipient", Label: "To", Type: FieldRecipient},
					{Key: "body", Label: "Message", Type: FieldText},
				},
			},
			{
				ID:    "broadcast_message",
				Label: "Broadcast to all contacts",
				Tier:  TierRed,
				Lens: []LensField{
					{Key: "audience_size", Label: "Audience", Type: FieldCount},
					{Key: "body", Label: "Message", Type: FieldText},
				},
			},
		},
		DefaultVerb: "draft_reply",
	},
	{
		ID:    "calendar_event",
		Desk:  DeskCalendar,
		Label: "Calendar Event",
		Icon:  "calendar",
		Verbs: []Verb{
			{ID: "view_calendar", Label: "View calendar", Tier: TierGreen},
			{
				ID:    "schedule_event",
				Label: "Schedule event",
				Tier:  TierYellow,
				Lens: []LensField{
					{Key: "title", Label: "Title", Type: FieldText},
					{Key: "starts_at", Label: "Starts", Type: FieldDateTime},
					{Key: "attendees", Label: "Attendees", Type: FieldRecipient},
				},
			},
			{
				ID:    "cancel_event",
				Label: "Cancel event",
				Tier:  TierYellow,
				Lens: []LensField{
					{Key: "title", Label: "Title", Type: FieldText},
					{Key: "status", Label: "Current status", Type: FieldStatus},
				},
			},
		},
		DefaultVerb: "view_calendar",
	},
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the registry built from the compiled-in catalog.
func Default() *Registry {
	defaultOnce.Do(func() {
		r, err := NewRegistry(builtinEntries...)
		if err != nil {
			panic(err)
		}
		defaultRegistry = r
	})
	return defaultRegistry
}
