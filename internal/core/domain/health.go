package domain

type PatientInfo struct {
	FullName string `json:"fullName"`
	Age      int    `json:"age"`
	Gender   string `json:"gender"`
}

type HealthCondition struct {
	Condition string `json:"condition"`
	Severity  string `json:"severity"`
}

type BloodPressure struct {
	Systolic  float64 `json:"systolic"`
	Diastolic float64 `json:"diastolic"`
}

type BloodSugar struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

type LabResults struct {
	BloodPressure BloodPressure `json:"bloodPressure"`
	BloodSugar    BloodSugar    `json:"bloodSugar"`
}

// HealthData is the fixed-shape extraction result. Missing fields stay at their zero value.
type HealthData struct {
	PatientInfo      PatientInfo       `json:"patientInfo"`
	HealthConditions []HealthCondition `json:"healthConditions"`
	LabResults       LabResults        `json:"labResults"`
	DoctorNotes      string            `json:"doctorNotes"`
}

// Normalize replaces nil collections so that later stages never see null.
func (d HealthData) Normalize() HealthData {
	if d.HealthConditions == nil {
		d.HealthConditions = []HealthCondition{}
	}
	return d
}

func EmptyHealthData() HealthData {
	return HealthData{}.Normalize()
}

func (d HealthData) IsEmpty() bool {
	return d.PatientInfo == (PatientInfo{}) &&
		len(d.HealthConditions) == 0 &&
		d.LabResults == (LabResults{}) &&
		d.DoctorNotes == ""
}
