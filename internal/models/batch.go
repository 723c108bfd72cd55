package models

// MandatoryProfileField is one batch-configured report column.
type MandatoryProfileField struct {
	Field       string `json:"field"`
	DisplayName string `json:"displayName"`
}

// BatchAttributes is the per-batch metadata the report builder needs.
type BatchAttributes struct {
	CourseID               string
	BatchID                string
	MandatoryProfileFields []MandatoryProfileField
	CreatedFor             []string
}

// ContentOrg is the org that owns the course content, if known.
func (b *BatchAttributes) ContentOrg() string {
	if b == nil || len(b.CreatedFor) == 0 {
		return ""
	}
	return b.CreatedFor[0]
}
