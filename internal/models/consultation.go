package models

// Consultation is the clinical record a doctor writes during an in-progress
// appointment: diagnosis, treatment notes and any prescription issued.
type Consultation struct {
	BaseModel
	AppointmentID string `gorm:"size:36;uniqueIndex;not null" json:"appointmentId"`
	PatientID     string `gorm:"size:36;index;not null" json:"patientId"`
	DoctorID      string `gorm:"size:36;index;not null" json:"doctorId"`
	Diagnosis     string `gorm:"type:text" json:"diagnosis"`
	Treatment     string `gorm:"type:text" json:"treatment"`
	Prescription  string `gorm:"type:text" json:"prescription,omitempty"`
	FollowUpNotes string `gorm:"type:text" json:"followUpNotes,omitempty"`

	// Relations
	Appointment Appointment `gorm:"foreignKey:AppointmentID" json:"-"`
	Patient     User        `gorm:"foreignKey:PatientID" json:"-"`
	Doctor      User        `gorm:"foreignKey:DoctorID" json:"-"`
}
