package catalog

import (
	"context"
	"fmt"
	"os"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/datapult/insightsync/internal/models"
)

// FileCatalog serves insight definitions from a JSON catalog file loaded at
// startup. Lookups are case-insensitive on the object full name.
type FileCatalog struct {
	definitions map[string]models.InsightDefinition
	hooks       []models.SyncHook
}

func LoadFile(path string) (*FileCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file %s: %w", path, err)
	}

	var cat models.SyncCatalog
	if err := json.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("decode catalog file %s: %w", path, err)
	}

	definitions := make(map[string]models.InsightDefinition, len(cat.Definitions))
	for _, def := range cat.Definitions {
		if def.ObjectFullName == "" {
			return nil, fmt.Errorf("catalog file %s: definition without object_full_name", path)
		}
		definitions[strings.ToLower(def.ObjectFullName)] = def
	}

	return &FileCatalog{
		definitions: definitions,
		hooks:       cat.OnSuccess,
	}, nil
}

func (c *FileCatalog) Definition(_ context.Context, target string) (zero models.InsightDefinition, _ error) {
	def, ok := c.definitions[strings.ToLower(target)]
	if !ok {
		return zero, fmt.Errorf("definition %s: %w", target, models.ErrRecordNotFound)
	}
	return def, nil
}

// OnSuccess returns the follow-up jobs configured for successful syncs.
func (c *FileCatalog) OnSuccess() []models.SyncHook {
	return c.hooks
}
