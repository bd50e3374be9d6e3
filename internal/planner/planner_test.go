package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datapult/insightsync/internal"
	"github.com/datapult/insightsync/internal/models"
)

func TestBuildPlanClassification(t *testing.T) {
	def := models.InsightDefinition{
		ObjectFullName: "Insight.Revenue",
		ObjectLabel:    "Revenue",
		Attributes: []models.AttributeSpec{
			{Name: "Amount", DisplayLabel: "Amount", DeclaredType: internal.TypeNumber, Role: models.RoleMeasure},
			{Name: "Notes", DisplayLabel: "Notes", DeclaredType: internal.TypeLongTextArea, Role: models.RoleDimension},
			{Name: "Region", DisplayLabel: "Region", DeclaredType: internal.TypeString, Role: models.RoleDimension},
			{Name: "When", DisplayLabel: "When", DeclaredType: internal.TypeDateTime, Role: models.RoleDimension},
		},
	}

	plan := BuildPlan(def)
	assert.Equal(t, 4, plan.Size())

	require.Len(t, plan.Numeric, 1)
	num := plan.Numeric[0]
	assert.Equal(t, "Insight.Revenue.Amount", num.FullName)
	assert.Equal(t, models.FieldNumber, num.Type)
	assert.Equal(t, internal.NumberFieldPrecision, num.Precision)
	assert.Equal(t, internal.NumberFieldScale, num.Scale)

	require.Len(t, plan.Text, 3)
	assert.Equal(t, models.FieldLongText, plan.Text[0].Type)
	assert.Equal(t, internal.LongTextFieldLength, plan.Text[0].Length)

	// STRING and every other non-numeric type collapse to 255-char text.
	for _, req := range plan.Text[1:] {
		assert.Equal(t, models.FieldText, req.Type)
		assert.Equal(t, internal.TextFieldLength, req.Length)
	}
}

func TestBuildPlanLabelFallsBackToName(t *testing.T) {
	def := models.InsightDefinition{ //nolint:exhaustruct // label omitted on purpose
		ObjectFullName: "Insight.Revenue",
		Attributes: []models.AttributeSpec{
			{Name: "Amount", DisplayLabel: "", DeclaredType: internal.TypeNumber, Role: models.RoleMeasure},
		},
	}

	plan := BuildPlan(def)
	require.Len(t, plan.Numeric, 1)
	assert.Equal(t, "Amount", plan.Numeric[0].Label)
}

func TestBuildPlanEmptyDefinition(t *testing.T) {
	plan := BuildPlan(models.InsightDefinition{}) //nolint:exhaustruct // empty on purpose
	assert.Zero(t, plan.Size())
	assert.Empty(t, plan.Numeric)
	assert.Empty(t, plan.Text)
}
