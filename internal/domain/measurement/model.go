package measurement

import (
	"time"

	"github.com/google/uuid"

	"github.com/ehr/srlistener/internal/sr"
)

// Source records where a tag document came from.
type Source string

const (
	SourceOrthanc Source = "orthanc"
	SourceUpload  Source = "upload"
)

// Extraction is one stored run of the engine over one SR document.
type Extraction struct {
	ID          uuid.UUID `db:"id" json:"id"`
	InstanceID  string    `db:"instance_id" json:"instance_id,omitempty"`
	Source      Source    `db:"source" json:"source"`
	PatientID   string    `db:"patient_id" json:"patient_id"`
	PatientName string    `db:"patient_name" json:"patient_name"`
	Values      sr.Result `db:"values" json:"values"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// newExtraction stamps demographics from the result onto the record.
func newExtraction(instanceID string, source Source, values sr.Result) *Extraction {
	return &Extraction{
		InstanceID:  instanceID,
		Source:      source,
		PatientID:   values[sr.KeyPatientID],
		PatientName: values[sr.KeyPatientName],
		Values:      values,
	}
}
