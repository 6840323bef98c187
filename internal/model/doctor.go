package model

// Doctor is a roster entry. The core never mutates it.
type Doctor struct {
	ID              string              `json:"id" validate:"required"`
	Name            string              `json:"name" validate:"required"`
	Specialty       string              `json:"specialty" validate:"required"`
	Subspecialty    string              `json:"subspecialty,omitempty"`
	Qualifications  []string            `json:"qualifications"`
	Languages       []string            `json:"languages"`
	ExperienceYears int                 `json:"experience_years" validate:"gte=0"`
	CurrentLoad     int                 `json:"current_load" validate:"gte=0"`
	MaxLoad         int                 `json:"max_load" validate:"gte=0"`
	Availability    map[string][]string `json:"availability,omitempty"`
	ConsultationFee float64             `json:"consultation_fee" validate:"gte=0"`
	IsAvailable     bool                `json:"is_available"`
	IsOnline        bool                `json:"is_online"`
	Rating          float64             `json:"rating" validate:"gte=0,lte=5"`
}

// LoadPercentage is current_load/max_load as a percentage; a zero
// capacity counts as full.
func (d Doctor) LoadPercentage() float64 {
	if d.MaxLoad <= 0 {
		return 100
	}
	return float64(d.CurrentLoad) / float64(d.MaxLoad) * 100
}

// HasCapacity reports whether the doctor can take another patient.
func (d Doctor) HasCapacity() bool {
	return d.CurrentLoad < d.MaxLoad
}

// Roster defaults applied to records that omit a field.
const (
	DefaultMaxLoad         = 20
	DefaultConsultationFee = 500
	DefaultRating          = 4.0
	DefaultLanguage        = "English"
)

// DoctorRecord is the directory's wire shape; optional fields are pointers
// so absent values can take roster defaults.
type DoctorRecord struct {
	ID              string              `json:"id" validate:"required"`
	Name            string              `json:"name" validate:"required"`
	Specialty       string              `json:"specialty"`
	Subspecialty    string              `json:"subspecialty"`
	Qualifications  []string            `json:"qualifications"`
	Languages       []string            `json:"languages"`
	ExperienceYears int                 `json:"experience_years" validate:"gte=0"`
	CurrentLoad     int                 `json:"current_load" validate:"gte=0"`
	MaxLoad         *int                `json:"max_load" validate:"omitempty,gte=0"`
	Availability    map[string][]string `json:"availability"`
	ConsultationFee *float64            `json:"consultation_fee" validate:"omitempty,gte=0"`
	IsAvailable     *bool               `json:"is_available"`
	IsOnline        bool                `json:"is_online"`
	Rating          *float64            `json:"rating" validate:"omitempty,gte=0,lte=5"`
}

// ToDoctor fills defaults for absent fields.
func (r DoctorRecord) ToDoctor() Doctor {
	d := Doctor{
		ID:              r.ID,
		Name:            r.Name,
		Specialty:       r.Specialty,
		Subspecialty:    r.Subspecialty,
		Qualifications:  append([]string{}, r.Qualifications...),
		Languages:       append([]string{}, r.Languages...),
		ExperienceYears: r.ExperienceYears,
		CurrentLoad:     r.CurrentLoad,
		MaxLoad:         DefaultMaxLoad,
		Availability:    r.Availability,
		ConsultationFee: DefaultConsultationFee,
		IsAvailable:     true,
		IsOnline:        r.IsOnline,
		Rating:          DefaultRating,
	}
	if d.Specialty == "" {
		d.Specialty = GeneralMedicine
	}
	if len(d.Languages) == 0 {
		d.Languages = []string{DefaultLanguage}
	}
	if r.MaxLoad != nil {
		d.MaxLoad = *r.MaxLoad
	}
	if r.ConsultationFee != nil {
		d.ConsultationFee = *r.ConsultationFee
	}
	if r.IsAvailable != nil {
		d.IsAvailable = *r.IsAvailable
	}
	if r.Rating != nil {
		d.Rating = *r.Rating
	}
	return d
}
