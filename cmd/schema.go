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
package cmd

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/GoogleCloudPlatform/db-nl-query/internal/utils"
)

var schemaOutFile string

var schemaCmd = &cobra.Command{
	Use:     "schema",
	Short:   "Print the schema text used to ground generation",
	Example: `./db-nl-query schema --dialect sqlite --database ./shop.db --out auto`,
	RunE:    runSchema,
}

func runSchema(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), cfg, false)
	if err != nil {
		return err
	}
	defer a.Close()

	text, err := a.catalog.FetchSchema(cmd.Context())
	if err != nil {
		return err
	}

	if schemaOutFile == "" {
		fmt.Fprint(cmd.OutOrStdout(), text)
		return nil
	}
	path := schemaOutFile
	if path == "auto" {
		path = utils.DefaultOutputFilePath(cfg.Database.DBName, "schema")
	}
	if err := utils.WriteOutputFile(path, text); err != nil {
		return err
	}
	pterm.Success.Printfln("Schema written to: %s", path)
	return nil
}

func init() {
	schemaCmd.Flags().StringVar(&schemaOutFile, "out", "", `Write the schema to this file instead of stdout ("auto" picks <database>_schema.sql)`)
}
