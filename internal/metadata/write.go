package metadata

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/eykd/dmearchive/internal/hierarchy"
)

// CollectionFileName is the document file name for a collection node,
// e.g. "Sample_TumorA.json".
func CollectionFileName(n *hierarchy.Node) string {
	return string(n.Type) + "_" + safeName(n.Name) + ".json"
}

// ObjectFileName is the document file name for a data object.
func ObjectFileName(name string) string {
	return "DataObject_" + safeName(filepath.Base(name)) + ".json"
}

func safeName(s string) string {
	if s == "" {
		return "Unspecified"
	}
	return strings.ReplaceAll(s, string(os.PathSeparator), "_")
}

// WriteDocument encodes doc to dir/name atomically via a temp file and
// returns the written path.
func WriteDocument(dir, name string, doc Document) (string, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encoding metadata: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating metadata dir: %w", err)
	}
	path := filepath.Join(dir, name)
	tmp, err := os.CreateTemp(dir, ".meta-*.tmp")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("writing temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("closing temp file: %w", err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("renaming temp file: %w", err)
	}
	return path, nil
}
