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

	"github.com/spf13/cobra"

	"github.com/GoogleCloudPlatform/db-nl-query/internal/utils"
)

var (
	querySQL  string
	queryFile string
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Run a SQL statement as given and print the rows",
	Long:  `Runs the statement without vetting, exactly like the query_data tool.`,
	Example: `./db-nl-query query --dialect sqlite --database ./shop.db --sql "SELECT COUNT(*) FROM Product"
./db-nl-query query --dialect postgres --host localhost --database shop --file ./report.sql --format json`,
	RunE: runQuery,
}

func runQuery(cmd *cobra.Command, args []string) error {
	sql := querySQL
	switch {
	case sql != "" && queryFile != "":
		return fmt.Errorf("--sql and --file are mutually exclusive")
	case queryFile != "":
		var err error
		if sql, err = utils.ReadSQLFile(queryFile); err != nil {
			return err
		}
	case sql == "":
		return fmt.Errorf("one of --sql or --file is required")
	}

	a, err := newApp(cmd.Context(), cfg, false)
	if err != nil {
		return err
	}
	defer a.Close()

	rs, err := a.service.QueryData(cmd.Context(), sql)
	if err != nil {
		return err
	}
	return printResult(cmd.OutOrStdout(), rs, outputFormat)
}

func init() {
	queryCmd.Flags().StringVar(&querySQL, "sql", "", "SQL statement to run")
	queryCmd.Flags().StringVar(&queryFile, "file", "", "File holding the SQL statement to run")
	addFormatFlag(queryCmd)
}
