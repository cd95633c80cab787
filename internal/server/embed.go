package server

import (
	"embed"
	"fmt"
)

//go:embed static/client.html
var staticFS embed.FS

const indexFile = "static/client.html"

// loadIndexHTML returns the accelerometer page served at "/".
func loadIndexHTML() ([]byte, error) {
	data, err := staticFS.ReadFile(indexFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded %s: %w", indexFile, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("embedded %s is empty", indexFile)
	}
	return data, nil
}
