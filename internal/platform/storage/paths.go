package storage

import (
	"fmt"
	"path"
	"strings"
	"time"
)

// BackupObjectPath lays backups out by UTC date: {prefix}/{yyyy}/{mm}/{dd}/{runID}.{ext}.
func BackupObjectPath(prefix, runID, ext string, at time.Time) (string, error) {
	id, err := validateSegment("runID", runID)
	if err != nil {
		return "", err
	}
	ext = strings.TrimPrefix(strings.TrimSpace(ext), ".")
	if ext == "" {
		ext = "json"
	}
	if _, err := validateSegment("ext", ext); err != nil {
		return "", err
	}

	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		prefix = "backups"
	}
	for _, segment := range strings.Split(prefix, "/") {
		if _, err := validateSegment("prefix", segment); err != nil {
			return "", err
		}
	}

	at = at.UTC()
	return path.Join(prefix, at.Format("2006"), at.Format("01"), at.Format("02"), fmt.Sprintf("%s.%s", id, ext)), nil
}

func validateSegment(name, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("storage: %s is required", name)
	}
	if strings.ContainsAny(value, "/\\") {
		return "", fmt.Errorf("storage: %s contains invalid path characters", name)
	}
	if strings.Contains(value, "..") {
		return "", fmt.Errorf("storage: %s contains invalid traversal sequence", name)
	}
	return value, nil
}
