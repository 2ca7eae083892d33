package validation

import (
	"fmt"
	"sort"

	stderrors "admissions-forms/internal/common/errors"

	"github.com/xeipuuv/gojsonschema"
)

// submissionSchema describes the envelope accepted by the public submit
// endpoint. Field-level contents of formData are form specific and are not
// constrained here.
var submissionSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"studentInfo": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"fullName":    map[string]interface{}{"type": "string", "minLength": 1},
				"email":       map[string]interface{}{"type": "string", "format": "email"},
				"phoneNumber": map[string]interface{}{"type": "string", "minLength": 1},
				"dateOfBirth": map[string]interface{}{"type": "string"},
				"address":     map[string]interface{}{"type": "object"},
				"emergencyContact": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"email": map[string]interface{}{"type": "string", "format": "email"},
					},
				},
			},
		},
		"academicInfo": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"education": map[string]interface{}{
					"type": "array",
					"items": map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"level": map[string]interface{}{
								"enum": []interface{}{"high-school", "bachelor", "master", "phd", "diploma", "certificate"},
							},
							"graduationYear": map[string]interface{}{"type": "integer"},
						},
					},
				},
				"englishProficiency": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"level": map[string]interface{}{
							"enum": []interface{}{"beginner", "elementary", "intermediate", "upper-intermediate", "advanced", "native"},
						},
						"testScores": map[string]interface{}{
							"type": "array",
							"items": map[string]interface{}{
								"type": "object",
								"properties": map[string]interface{}{
									"testName": map[string]interface{}{
										"enum": []interface{}{"IELTS", "TOEFL", "PTE", "DUOLINGO", "OTHER"},
									},
								},
							},
						},
					},
				},
			},
		},
		"coursePreferences": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"interestedCourses": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
				"preferredSchedule": map[string]interface{}{
					"enum": []interface{}{"morning", "afternoon", "evening", "weekend", "flexible"},
				},
			},
		},
		"documents": map[string]interface{}{
			"type": "array",
			"items": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"name": map[string]interface{}{"type": "string"},
					"type": map[string]interface{}{
						"enum": []interface{}{"transcript", "certificate", "id-document", "photo", "test-score", "other"},
					},
					"url": map[string]interface{}{"type": "string"},
				},
			},
		},
		"formData": map[string]interface{}{"type": "object"},
		"tags":     map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
	},
	"anyOf": []interface{}{
		map[string]interface{}{"required": []interface{}{"formData"}},
		map[string]interface{}{"required": []interface{}{"studentInfo"}},
	},
}

var compiledSubmissionSchema *gojsonschema.Schema

func init() {
	s, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(submissionSchema))
	if err != nil {
		panic(fmt.Sprintf("submission schema: %v", err))
	}
	compiledSubmissionSchema = s
}

// ValidateSubmission checks a decoded submit payload against the envelope
// schema.
func ValidateSubmission(payload map[string]interface{}) error {
	if payload["formData"] == nil && payload["studentInfo"] == nil {
		return stderrors.NewValidationError("Form data is required")
	}

	result, err := compiledSubmissionSchema.Validate(gojsonschema.NewGoLoader(payload))
	if err != nil {
		return stderrors.NewValidationError(fmt.Sprintf("validation error: %v", err))
	}
	if result.Valid() {
		return nil
	}

	fields := make([]stderrors.FieldError, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		// anyOf failures are already covered by the explicit check above.
		if desc.Type() == "number_any_of" {
			continue
		}
		fields = append(fields, stderrors.FieldError{
			Field:   desc.Field(),
			Message: desc.Description(),
		})
	}
	if len(fields) == 0 {
		return nil
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].Field < fields[j].Field })
	return stderrors.NewValidationError(fmt.Sprintf("%s: %s", fields[0].Field, fields[0].Message), fields...)
}
