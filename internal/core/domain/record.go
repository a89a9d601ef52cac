package domain

type RecordStatus string

const (
	RecordPending    RecordStatus = "pending"
	RecordProcessing RecordStatus = "processing"
	RecordProcessed  RecordStatus = "processed"
	RecordFailed     RecordStatus = "failed"
)

// RecordSnapshot is a point-in-time read of a medical record from the record store.
type RecordSnapshot struct {
	ID          string `json:"id"`
	FileURL     string `json:"fileUrl"`
	ContentType string `json:"contentType,omitempty"`
	OwnerID     string `json:"userId"`
	Title       string `json:"title"`
}

// WriteBack is the discriminated callback payload sent to the record store.
type WriteBack struct {
	Status        RecordStatus `json:"status"`
	ExtractedText string       `json:"extractedText,omitempty"`
	ExtractedData *HealthData  `json:"extractedData,omitempty"`
	ErrorMessage  string       `json:"errorMessage,omitempty"`
}

func ProcessedWriteBack(text string, data HealthData) WriteBack {
	normalized := data.Normalize()
	return WriteBack{
		Status:        RecordProcessed,
		ExtractedText: text,
		ExtractedData: &normalized,
	}
}

func FailedWriteBack(message string) WriteBack {
	return WriteBack{
		Status:       RecordFailed,
		ErrorMessage: message,
	}
}
