package domain

type ParsingStatus string

const (
	ParsingPending ParsingStatus = "PENDING"
	ParsingRunning ParsingStatus = "RUNNING"
	ParsingSuccess ParsingStatus = "SUCCESS"
	ParsingFailed  ParsingStatus = "FAILED"
	// ParsingTimeout is synthesized locally when the poll budget runs out.
	ParsingTimeout ParsingStatus = "TIMEOUT"
)

func (s ParsingStatus) Terminal() bool {
	switch s {
	case ParsingSuccess, ParsingFailed, ParsingTimeout:
		return true
	default:
		return false
	}
}

// ParsingJob tracks one PDF conversion job at the parsing provider.
type ParsingJob struct {
	ID       string        `json:"id"`
	Status   ParsingStatus `json:"status"`
	Error    string        `json:"error,omitempty"`
	Attempts int           `json:"attempts"`
	Markdown string        `json:"-"`
}

// DocumentKind is the handling strategy selected from a file extension.
type DocumentKind string

const (
	DocumentImage DocumentKind = "image"
	DocumentText  DocumentKind = "text"
	DocumentPDF   DocumentKind = "pdf"
)

const ImagePlaceholderText = "[image content]"
