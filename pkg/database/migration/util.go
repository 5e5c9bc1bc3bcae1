package migration

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// CreateMigration writes a new pair of up/down migration files into dir,
// numbered one past the highest existing version.
func CreateMigration(dir, name string) error {
	if dir == "" {
		return errors.New("migration directory cannot be empty")
	}
	if name == "" {
		return errors.New("migration name cannot be empty")
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create migration directory: %w", err)
	}

	version, err := getNextVersion(dir)
	if err != nil {
		return fmt.Errorf("failed to determine next migration version: %w", err)
	}
	versionStr := fmt.Sprintf("%03d", version)

	upFileName := fmt.Sprintf("%s_%s.up.sql", versionStr, strings.ToLower(name))
	downFileName := fmt.Sprintf("%s_%s.down.sql", versionStr, strings.ToLower(name))

	upFilePath := filepath.Join(dir, upFileName)
	if err := createFile(upFilePath, getUpTemplate(name)); err != nil {
		return fmt.Errorf("failed to create up migration file: %w", err)
	}

	downFilePath := filepath.Join(dir, downFileName)
	if err := createFile(downFilePath, getDownTemplate(name)); err != nil {
		return fmt.Errorf("failed to create down migration file: %w", err)
	}

	fmt.Printf("Created migration files:\n  %s\n  %s\n", upFilePath, downFilePath)
	return nil
}

func getNextVersion(dir string) (int, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 1, nil
		}
		return 0, err
	}

	maxVersion := 0
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		parts := strings.Split(file.Name(), "_")
		if len(parts) < 2 {
			continue
		}
		version, err := strconv.Atoi(parts[0])
		if err != nil {
			continue
		}
		if version > maxVersion {
			maxVersion = version
		}
	}

	return maxVersion + 1, nil
}

func createFile(path, content string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = file.WriteString(content)
	return err
}

func getUpTemplate(name string) string {
	timestamp := time.Now().Format(time.RFC3339)
	return fmt.Sprintf(`-- Migration: %s
-- Created at: %s
-- Description: Add your migration description here

-- Add your migration SQL here
`, name, timestamp)
}

func getDownTemplate(name string) string {
	timestamp := time.Now().Format(time.RFC3339)
	return fmt.Sprintf(`-- Migration: %s (down)
-- Created at: %s
-- Description: This migration reverts the changes made in the up migration

-- Add your migration SQL here
`, name, timestamp)
}
