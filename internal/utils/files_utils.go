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
package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ReadSQLFile returns the statement stored in filePath, trimmed of surrounding
// whitespace and a single trailing semicolon.
func ReadSQLFile(filePath string) (string, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	stmt := strings.TrimSpace(string(content))
	stmt = strings.TrimSpace(strings.TrimSuffix(stmt, ";"))
	if stmt == "" {
		return "", fmt.Errorf("file %s contains no SQL", filePath)
	}
	return stmt, nil
}

// ReadRequestFiles reads natural-language request text from one or more
// comma-separated files and joins them with blank lines.
func ReadRequestFiles(filePaths string) (string, error) {
	if filePaths == "" {
		return "", nil
	}

	var parts []string
	for _, path := range strings.Split(filePaths, ",") {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read request file '%s': %w", path, err)
		}
		if text := strings.TrimSpace(string(content)); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n\n"), nil
}

// DefaultOutputFilePath names the file a command writes when --out is "auto".
func DefaultOutputFilePath(dbName, commandName string) string {
	base := strings.TrimSuffix(filepath.Base(dbName), filepath.Ext(dbName))
	if base == "" || base == "." {
		base = "database"
	}
	switch commandName {
	case "schema":
		return fmt.Sprintf("%s_schema.sql", base)
	default:
		return fmt.Sprintf("%s_%s.json", base, commandName)
	}
}

// WriteOutputFile writes content to filePath, creating parent directories.
func WriteOutputFile(filePath, content string) error {
	if dir := filepath.Dir(filePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(filePath, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filePath, err)
	}
	return nil
}
