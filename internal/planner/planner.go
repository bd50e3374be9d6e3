package planner

import (
	"fmt"

	"github.com/datapult/insightsync/internal"
	"github.com/datapult/insightsync/internal/models"
)

// Plan holds the two disjoint field-creation request lists derived from an
// insight definition.
type Plan struct {
	Numeric []models.FieldCreationRequest
	Text    []models.FieldCreationRequest
}

// Size returns the total number of planned field requests.
func (p Plan) Size() int {
	return len(p.Numeric) + len(p.Text)
}

// BuildPlan classifies every attribute of the definition into exactly one
// creation bucket. It is pure: it never calls the schema-administration
// service.
func BuildPlan(def models.InsightDefinition) Plan {
	var plan Plan

	for _, attr := range def.Attributes {
		req := models.FieldCreationRequest{ //nolint:exhaustruct // type-specific fields set below
			FullName: fmt.Sprintf("%s.%s", def.ObjectFullName, attr.Name),
			Label:    attr.DisplayLabel,
		}
		if req.Label == "" {
			req.Label = attr.Name
		}

		switch attr.DeclaredType {
		case internal.TypeNumber:
			req.Type = models.FieldNumber
			req.Precision = internal.NumberFieldPrecision
			req.Scale = internal.NumberFieldScale
			plan.Numeric = append(plan.Numeric, req)
		case internal.TypeLongTextArea:
			req.Type = models.FieldLongText
			req.Length = internal.LongTextFieldLength
			plan.Text = append(plan.Text, req)
		default:
			// Every other declared type, plain STRING included, collapses
			// to a generic 255-char text field.
			req.Type = models.FieldText
			req.Length = internal.TextFieldLength
			plan.Text = append(plan.Text, req)
		}
	}

	return plan
}
