package contact

import "strings"

// Placeholder is rendered in place of a missing field value.
const Placeholder = "N/A"

// Record holds the contact fields extracted from a business card.
// Missing values are nil and encode as JSON null; keys are never omitted.
type Record struct {
	Name     *string `json:"name"`
	JobTitle *string `json:"job_title"`
	Company  *string `json:"company"`
	Email    *string `json:"email"`
	Phone    *string `json:"phone"`
	Website  *string `json:"website"`
	Address  *string `json:"address"`
}

// Field describes one record field: its JSON key and its display label.
type Field struct {
	Key   string
	Label string
}

// Fields lists the record fields in display and spreadsheet column order.
var Fields = []Field{
	{Key: "name", Label: "Name"},
	{Key: "job_title", Label: "Job Title"},
	{Key: "company", Label: "Company"},
	{Key: "email", Label: "Email"},
	{Key: "phone", Label: "Phone"},
	{Key: "website", Label: "Website"},
	{Key: "address", Label: "Address"},
}

// Row is a rendered field, ready for display.
type Row struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Value string `json:"value"`
}

// String returns a pointer to s.
func String(s string) *string {
	return &s
}

// Value returns the field stored under the given JSON key, or nil for unknown keys.
func (r *Record) Value(key string) *string {
	if r == nil {
		return nil
	}
	switch key {
	case "name":
		return r.Name
	case "job_title":
		return r.JobTitle
	case "company":
		return r.Company
	case "email":
		return r.Email
	case "phone":
		return r.Phone
	case "website":
		return r.Website
	case "address":
		return r.Address
	}
	return nil
}

// set assigns the field stored under the given JSON key. Unknown keys are ignored.
func (r *Record) set(key string, v *string) {
	switch key {
	case "name":
		r.Name = v
	case "job_title":
		r.JobTitle = v
	case "company":
		r.Company = v
	case "email":
		r.Email = v
	case "phone":
		r.Phone = v
	case "website":
		r.Website = v
	case "address":
		r.Address = v
	}
}

// Display returns the field value for rendering, or Placeholder when it is
// missing or blank.
func (r *Record) Display(key string) string {
	v := r.Value(key)
	if v == nil || strings.TrimSpace(*v) == "" {
		return Placeholder
	}
	return *v
}

// Rows renders every field in display order.
func (r *Record) Rows() []Row {
	rows := make([]Row, 0, len(Fields))
	for _, f := range Fields {
		rows = append(rows, Row{Key: f.Key, Label: f.Label, Value: r.Display(f.Key)})
	}
	return rows
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := &Record{}
	for _, f := range Fields {
		if v := r.Value(f.Key); v != nil {
			c.set(f.Key, String(*v))
		}
	}
	return c
}
