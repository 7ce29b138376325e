package discovery

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// SaveCandidate writes a discovery result to a review directory as indented
// JSON so an operator can inspect a flagged config before it is stored. The
// filename is derived from the page host and discovery timestamp.
func SaveCandidate(dataDir string, result *Result) (string, error) {
	if strings.HasPrefix(dataDir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, dataDir[2:])
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", fmt.Errorf("creating review directory: %w", err)
	}

	host := "venue"
	if u, err := url.Parse(result.Config.BaseURL); err == nil && u.Host != "" {
		host = strings.ReplaceAll(u.Host, ".", "_")
	}
	name := fmt.Sprintf("candidate_%s_%s.json", host, result.DiscoveredAt.Format("20060102T150405"))
	path := filepath.Join(dataDir, name)

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling candidate: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("writing candidate: %w", err)
	}

	return path, nil
}
