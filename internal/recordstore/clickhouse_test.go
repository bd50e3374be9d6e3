package recordstore

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/datapult/insightsync/internal"
	"github.com/datapult/insightsync/internal/models"
)

func testSchema(keyInFields bool) models.RecordSchema {
	fields := []models.RecordField{
		{Name: "Revenue", DeclaredType: internal.TypeNumber},
		{Name: "Region", DeclaredType: internal.TypeText},
	}
	if keyInFields {
		fields = append([]models.RecordField{{Name: "Id", DeclaredType: internal.TypeText}}, fields...)
	}
	return models.RecordSchema{
		TargetObject: "Accounts",
		KeyField:     "Id",
		Fields:       fields,
	}
}

func TestInsertColumnsPrependsMissingKey(t *testing.T) {
	cols := insertColumns(testSchema(false))
	assert.Equal(t, []string{"Id", "Revenue", "Region"}, cols)
}

func TestInsertColumnsKeepsDeclaredOrder(t *testing.T) {
	cols := insertColumns(testSchema(true))
	assert.Equal(t, []string{"Id", "Revenue", "Region"}, cols)
}

func TestBuildInsertQuery(t *testing.T) {
	query := buildInsertQuery("analytics", "accounts", testSchema(false))
	assert.Equal(t, "INSERT INTO `analytics`.`accounts` (`Id`, `Revenue`, `Region`)", query)
}
