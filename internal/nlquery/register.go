/*
 * Copyright 2025 Google LLC
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *    https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */
package nlquery

import (
	"context"
	"fmt"

	"github.com/GoogleCloudPlatform/db-nl-query/internal/database"
)

// Resource is a readable, text-valued endpoint.
type Resource struct {
	URI         string
	Name        string
	Description string
	MIMEType    string
	Read        func(ctx context.Context) (string, error)
}

// Param is a required string argument of an Operation.
type Param struct {
	Name        string
	Description string
}

// Operation is a callable endpoint returning rows.
type Operation struct {
	Name        string
	Description string
	Params      []Param
	Call        func(ctx context.Context, args map[string]string) (*database.ResultSet, error)
}

// Registry is implemented by transports that expose resources and operations
// to remote callers.
type Registry interface {
	RegisterResource(r Resource)
	RegisterOperation(op Operation)
}

// SchemaURI is the resource URI of the schema text for a database kind.
func SchemaURI(kind string) string {
	return fmt.Sprintf("schema://%s", kind)
}

// Register exposes the schema resource and the query_data and nl_query
// operations of svc on reg.
func Register(reg Registry, svc *Service, schema SchemaSource, kind string) {
	reg.RegisterResource(Resource{
		URI:         SchemaURI(kind),
		Name:        "Database schema",
		Description: fmt.Sprintf("Tables and columns of the connected %s database.", kind),
		MIMEType:    "text/plain",
		Read: func(ctx context.Context) (string, error) {
			ctx, cancel := context.WithTimeout(ctx, svc.timeout)
			defer cancel()
			return schema.FetchSchema(ctx)
		},
	})

	reg.RegisterOperation(Operation{
		Name:        operationQueryData,
		Description: "Execute a SQL statement as given and return the resulting rows.",
		Params:      []Param{{Name: "sql", Description: "SQL statement to execute."}},
		Call: func(ctx context.Context, args map[string]string) (*database.ResultSet, error) {
			return svc.QueryData(ctx, args["sql"])
		},
	})

	reg.RegisterOperation(Operation{
		Name:        operationNLQuery,
		Description: "Answer a natural-language question by generating and running a read-only SQL query.",
		Params:      []Param{{Name: "request", Description: "Question about the data, in plain language."}},
		Call: func(ctx context.Context, args map[string]string) (*database.ResultSet, error) {
			return svc.Answer(ctx, QueryRequest{Text: args["request"]})
		},
	})
}
