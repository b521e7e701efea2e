package differ

import (
	"strings"

	"github.com/Limetric/dbsyncd/internal/model"
)

// witnessColumnNames are the lowercased column names recognized as a
// change-witness column.
var witnessColumnNames = map[string]bool{
	"updated_at":    true,
	"modified_at":   true,
	"timestamp":     true,
	"last_modified": true,
}

// witnessColumn returns the name of the table's change-witness column, or
// "" if it has none: the first column whose lowercased name is a recognized
// witness name, or whose type string contains "timestamp".
func witnessColumn(cols []model.ColumnDescriptor) string {
	for _, c := range cols {
		lower := strings.ToLower(c.Name)
		if witnessColumnNames[lower] {
			return c.Name
		}
		if strings.Contains(strings.ToLower(c.Type), "timestamp") {
			return c.Name
		}
	}
	return ""
}
