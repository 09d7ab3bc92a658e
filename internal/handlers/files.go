package handlers

import (
	"errors"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/hass-addons/claude-terminal/internal/logutil"
)

// maxPreviewSize is the largest file ReadFileContent will return.
const maxPreviewSize = 1024 * 1024

var errOutsideRoot = errors.New("path escapes the configuration directory")

type fileEntry struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	Type     string `json:"type"`
	Size     int64  `json:"size"`
	Modified string `json:"modified"`
}

// resolveConfigPath maps a client-supplied path, relative to root, to an
// absolute path that is guaranteed to stay inside root, symlinks included.
func resolveConfigPath(root, rel string) (string, error) {
	root = filepath.Clean(root)
	abs := filepath.Clean(filepath.Join(root, rel))
	if filepath.IsAbs(rel) {
		abs = filepath.Clean(rel)
	}
	if !within(root, abs) {
		return "", errOutsideRoot
	}

	// Resolve symlinks of paths that exist so a link cannot point outside.
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		realRoot, rootErr := filepath.EvalSymlinks(root)
		if rootErr != nil {
			realRoot = root
		}
		if !within(realRoot, real) {
			return "", errOutsideRoot
		}
	}
	return abs, nil
}

// isSecretsFile reports whether the request names secrets.yaml or resolves to
// it through a symlink.
func isSecretsFile(rel, abs string) bool {
	if strings.Contains(rel, "secrets.yaml") || filepath.Base(abs) == "secrets.yaml" {
		return true
	}
	real, err := filepath.EvalSymlinks(abs)
	return err == nil && filepath.Base(real) == "secrets.yaml"
}

func within(root, p string) bool {
	return p == root || strings.HasPrefix(p, root+string(filepath.Separator))
}

// BrowseFiles lists a directory of the configuration directory. Dotfiles are
// hidden; directories come first.
func (h *Handler) BrowseFiles(w http.ResponseWriter, r *http.Request) {
	rel := r.URL.Query().Get("path")

	abs, err := resolveConfigPath(h.ConfigDir, rel)
	if err != nil {
		writeError(w, http.StatusForbidden, "Access denied")
		return
	}

	stat, err := os.Stat(abs)
	if os.IsNotExist(err) {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !stat.IsDir() {
		writeError(w, http.StatusBadRequest, "Not a directory")
		return
	}

	dirEntries, err := os.ReadDir(abs)
	if err != nil {
		log.Printf("[files] list %s failed: %v", logutil.SanitizeForLog(rel), err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	entries := make([]fileEntry, 0, len(dirEntries))
	for _, de := range dirEntries {
		if strings.HasPrefix(de.Name(), ".") {
			continue
		}
		info, err := os.Stat(filepath.Join(abs, de.Name()))
		if err != nil {
			// Dangling symlink or a file removed meanwhile.
			continue
		}
		typ := "file"
		if info.IsDir() {
			typ = "directory"
		}
		entries = append(entries, fileEntry{
			Name:     de.Name(),
			Path:     filepath.ToSlash(filepath.Join(rel, de.Name())),
			Type:     typ,
			Size:     info.Size(),
			Modified: info.ModTime().UTC().Format(time.RFC3339),
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Type != entries[j].Type {
			return entries[i].Type == "directory"
		}
		return strings.ToLower(entries[i].Name) < strings.ToLower(entries[j].Name)
	})

	writeJSON(w, http.StatusOK, entries)
}

// ReadFileContent returns a read-only preview of one file. secrets.yaml is
// never served.
func (h *Handler) ReadFileContent(w http.ResponseWriter, r *http.Request) {
	rel := r.URL.Query().Get("path")
	if rel == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}

	abs, err := resolveConfigPath(h.ConfigDir, rel)
	if err != nil {
		writeError(w, http.StatusForbidden, "Access denied")
		return
	}
	if isSecretsFile(rel, abs) {
		writeError(w, http.StatusForbidden, "Access to secrets.yaml is denied")
		return
	}

	stat, err := os.Stat(abs)
	if os.IsNotExist(err) {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if stat.IsDir() {
		writeError(w, http.StatusBadRequest, "Not a file")
		return
	}
	if stat.Size() > maxPreviewSize {
		writeError(w, http.StatusRequestEntityTooLarge, "File too large (max 1MB)")
		return
	}

	content, err := os.ReadFile(abs)
	if err != nil {
		log.Printf("[files] read %s failed: %v", logutil.SanitizeForLog(rel), err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"content": string(content),
		"path":    rel,
		"size":    stat.Size(),
	})
}
