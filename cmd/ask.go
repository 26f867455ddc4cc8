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
	"strings"

	"github.com/spf13/cobra"

	"github.com/GoogleCloudPlatform/db-nl-query/internal/nlquery"
	"github.com/GoogleCloudPlatform/db-nl-query/internal/utils"
)

var askRequestFiles string

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a natural-language question against the database",
	Long:  `Runs the nl_query pipeline locally: the schema grounds a generated SELECT statement, which is vetted and executed.`,
	Example: `./db-nl-query ask --dialect sqlserver --host localhost --database AdventureWorks2022 "List the top 5 products by list price"
./db-nl-query ask --dialect sqlite --database ./shop.db --provider openai --request-file ./question.txt`,
	RunE: runAsk,
}

func runAsk(cmd *cobra.Command, args []string) error {
	request := strings.TrimSpace(strings.Join(args, " "))
	if askRequestFiles != "" {
		fromFiles, err := utils.ReadRequestFiles(askRequestFiles)
		if err != nil {
			return err
		}
		request = strings.TrimSpace(request + "\n\n" + fromFiles)
	}
	if request == "" {
		return fmt.Errorf("a question is required, as arguments or via --request-file")
	}

	a, err := newApp(cmd.Context(), cfg, true)
	if err != nil {
		return err
	}
	defer a.Close()

	rs, err := a.service.Answer(cmd.Context(), nlquery.QueryRequest{Text: request})
	if err != nil {
		return err
	}
	return printResult(cmd.OutOrStdout(), rs, outputFormat)
}

func init() {
	askCmd.Flags().StringVar(&askRequestFiles, "request-file", "", "Comma-separated files whose text is appended to the question")
	addFormatFlag(askCmd)
}
