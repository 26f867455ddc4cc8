package genai

import (
	"fmt"

	"github.com/GoogleCloudPlatform/db-nl-query/internal/database"
)

// BuildPrompt grounds a request in the schema text. Both the schema and the
// request are embedded verbatim.
func BuildPrompt(flavor database.SQLFlavor, schemaText, request string) string {
	if flavor.Product == "" {
		flavor.Product = "SQL"
	}
	if flavor.Language == "" {
		flavor.Language = "SQL"
	}
	return fmt.Sprintf(`You are given this %s schema:

%s

Generate a single %s SELECT statement that answers:
“%s”

Only return the SQL.`, flavor.Product, schemaText, flavor.Language, request)
}
