package repository

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/noah-isme/bp-reports-api/internal/models"
)

// ErrMalformedProfile marks a profile blob that could not be read.
var ErrMalformedProfile = errors.New("malformed profile details")

const (
	keyProfileGroupStatus       = "profileGroupStatus"
	keyProfileDesignationStatus = "profileDesignationStatus"
	keyPersonalDetails          = "personalDetails"
	keyProfessionalDetails      = "professionalDetails"
	keyEmploymentDetails        = "employmentDetails"
	keyAdditionalProperties     = "additionalProperties"
)

var (
	personalKeys = []string{
		models.FieldPrimaryEmail, models.FieldMobile, models.FieldGender,
		models.FieldDOB, models.FieldDomicileMedium, models.FieldCategory,
	}
	employmentKeys = []string{models.FieldDepartmentName, models.FieldEmployeeCode, models.FieldPinCode}
	cadreKeys      = []string{
		models.FieldCivilServiceType, models.FieldCivilServiceName, models.FieldCadreName,
		models.FieldCadreBatch, models.FieldCadreControllingAuth,
	}
)

func parseProfileDetails(firstName, raw string) (map[string]string, error) {
	fields := map[string]string{models.FieldFirstName: firstName}
	if strings.TrimSpace(raw) == "" {
		return fields, nil
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var profile map[string]interface{}
	if err := dec.Decode(&profile); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedProfile, err)
	}

	groupStatus := verificationLabel(profile[keyProfileGroupStatus])
	designationStatus := verificationLabel(profile[keyProfileDesignationStatus])

	personal, err := objectAt(profile, keyPersonalDetails)
	if err != nil {
		return nil, err
	}
	for _, key := range personalKeys {
		fields[key] = stringify(personal[key])
	}

	professional, err := firstObjectAt(profile, keyProfessionalDetails)
	if err != nil {
		return nil, err
	}
	if group := stringify(professional[models.FieldGroup]); group != "" {
		fields[models.FieldGroup] = fmt.Sprintf("%s (%s)", group, groupStatus)
	}
	if designation := stringify(professional[models.FieldDesignation]); designation != "" {
		fields[models.FieldDesignation] = fmt.Sprintf("%s (%s)", designation, designationStatus)
	}
	fields[models.FieldDateOfRetirement] = stringify(professional[models.FieldDateOfRetirement])

	employment, err := objectAt(profile, keyEmploymentDetails)
	if err != nil {
		return nil, err
	}
	for _, key := range employmentKeys {
		fields[key] = stringify(employment[key])
	}

	additional, err := objectAt(profile, keyAdditionalProperties)
	if err != nil {
		return nil, err
	}
	fields[models.FieldExternalSystemID] = stringify(additional[models.FieldExternalSystemID])

	cadre, err := objectAt(profile, models.FieldCadreDetails)
	if err != nil {
		return nil, err
	}
	if len(cadre) == 0 {
		fields[models.FieldCadreDetails] = "No"
	} else {
		fields[models.FieldCadreDetails] = "Yes"
		for _, key := range cadreKeys {
			fields[key] = stringify(cadre[key])
		}
	}

	return fields, nil
}

func verificationLabel(v interface{}) string {
	if s, ok := v.(string); ok && strings.EqualFold(s, "verified") {
		return models.Verified
	}
	return models.NotVerified
}

func objectAt(profile map[string]interface{}, key string) (map[string]interface{}, error) {
	v, ok := profile[key]
	if !ok || v == nil {
		return nil, nil
	}
	obj, ok := v.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: %s is not an object", ErrMalformedProfile, key)
	}
	return obj, nil
}

func firstObjectAt(profile map[string]interface{}, key string) (map[string]interface{}, error) {
	v, ok := profile[key]
	if !ok || v == nil {
		return nil, nil
	}
	list, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a list", ErrMalformedProfile, key)
	}
	if len(list) == 0 || list[0] == nil {
		return nil, nil
	}
	obj, ok := list[0].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: %s[0] is not an object", ErrMalformedProfile, key)
	}
	return obj, nil
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}
