package prompt

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	listingMaxDepth   = 2
	listingMaxEntries = 200
)

// skippedNames are directory/file basenames excluded from the workspace
// listing outright: build artifacts and caches the model never needs to
// see.
var skippedNames = map[string]bool{
	".git": true, "node_modules": true, "__pycache__": true, ".venv": true,
	"dist": true, "build": true, "target": true, ".cache": true, "todo.md": true,
}

func skip(name string) bool {
	if skippedNames[name] {
		return true
	}
	return strings.HasSuffix(name, ".pyc")
}

// renderWorkspaceListing walks root to depth listingMaxDepth, collecting up
// to listingMaxEntries paths relative to root, in deterministic order. A
// missing or unreadable root yields an empty listing, not an error, since a
// brand-new conversation directory may not exist yet on the first turn.
func renderWorkspaceListing(root string) (string, error) {
	if root == "" {
		return "", nil
	}
	if _, err := os.Stat(root); err != nil {
		return "", nil
	}

	var entries []string
	var walk func(dir string, rel string, depth int) bool
	walk = func(dir, rel string, depth int) bool {
		items, err := os.ReadDir(dir)
		if err != nil {
			return true
		}
		sort.Slice(items, func(i, j int) bool { return items[i].Name() < items[j].Name() })
		for _, item := range items {
			if skip(item.Name()) {
				continue
			}
			childRel := item.Name()
			if rel != "" {
				childRel = rel + "/" + item.Name()
			}
			if item.IsDir() {
				childRel += "/"
			}
			entries = append(entries, childRel)
			if len(entries) >= listingMaxEntries {
				return false
			}
			if item.IsDir() && depth < listingMaxDepth {
				if !walk(filepath.Join(dir, item.Name()), strings.TrimSuffix(childRel, "/"), depth+1) {
					return false
				}
			}
		}
		return true
	}
	walk(root, "", 1)

	return strings.Join(entries, "\n"), nil
}
