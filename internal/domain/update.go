package domain

// UpdateKind is the envelope variant.
type UpdateKind string

const (
	UpdateMessageText     UpdateKind = "message-text"
	UpdateMessageDocument UpdateKind = "message-document"
	UpdateCallbackQuery   UpdateKind = "callback-query"
)

// Document describes an attachment referenced by an update.
type Document struct {
	FileID   string
	FileName string
	FileSize int
}

// Envelope is the schema-normalized form of one Telegram update as
// produced by the transport. UpdateID is strictly increasing within a
// transport session.
type Envelope struct {
	UpdateID int
	UserID   int64
	ChatID   int64
	Kind     UpdateKind

	// message-text / message-document payload
	Text     string
	Document *Document

	// callback-query payload
	CallbackID   string
	CallbackData string
}
