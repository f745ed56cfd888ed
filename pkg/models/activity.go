package models

// Activity describes the business object requesting approval. The attribute
// bag feeds step conditions; it is read once at request creation.
type Activity struct {
	CompanyID    string         `json:"company_id"    validate:"required"`
	ActivityType string         `json:"activity_type" validate:"required"`
	ActivityID   string         `json:"activity_id"   validate:"required"`
	Title        string         `json:"title"`
	RequestorID  string         `json:"requestor_id"  validate:"required"`
	Attributes   map[string]any `json:"attributes,omitempty"`
}
