package models

// Profile field keys. These double as report column keys.
const (
	FieldFirstName            = "firstName"
	FieldPrimaryEmail         = "primaryEmail"
	FieldMobile               = "mobile"
	FieldGender               = "gender"
	FieldDOB                  = "dob"
	FieldDomicileMedium       = "domicileMedium"
	FieldCategory             = "category"
	FieldGroup                = "group"
	FieldDesignation          = "designation"
	FieldDateOfRetirement     = "dateOfRetirement"
	FieldDepartmentName       = "departmentName"
	FieldEmployeeCode         = "employeeCode"
	FieldPinCode              = "pinCode"
	FieldExternalSystemID     = "externalSystemId"
	FieldCadreDetails         = "cadreDetails"
	FieldCivilServiceType     = "civilServiceType"
	FieldCivilServiceName     = "civilServiceName"
	FieldCadreName            = "cadreName"
	FieldCadreBatch           = "cadreBatch"
	FieldCadreControllingAuth = "cadreControllingAuthorityName"
)

// Verification labels.
const (
	Verified    = "Verified"
	NotVerified = "Not Verified"
)

// UserProfile is a user row with its profile blob flattened into column values.
type UserProfile struct {
	UserID    string
	RootOrgID string
	Fields    map[string]string
}

// Value returns the flattened value for key, or "".
func (p *UserProfile) Value(key string) string {
	if p == nil || p.Fields == nil {
		return ""
	}
	return p.Fields[key]
}
