package handlers

import (
	"context"
	"log"
	"net/http"
	"os/exec"
	"regexp"
	"strings"
	"time"
)

const (
	gitLogLimit   = "20"
	gitCmdTimeout = 10 * time.Second
)

var commitHashPattern = regexp.MustCompile(`^[a-f0-9]{4,40}$`)

type commitEntry struct {
	Hash    string `json:"hash"`
	Message string `json:"message"`
}

func (h *Handler) runGit(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, gitCmdTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = h.ConfigDir
	out, err := cmd.Output()
	return string(out), err
}

// GitLog returns the most recent commits of the configuration directory. A
// directory that is not a repository yields an empty list.
func (h *Handler) GitLog(w http.ResponseWriter, r *http.Request) {
	out, err := h.runGit(r.Context(), "log", "--oneline", "--no-decorate", "-"+gitLogLimit)
	if err != nil {
		log.Printf("[git] log in %s: %v", h.ConfigDir, err)
		writeJSON(w, http.StatusOK, []commitEntry{})
		return
	}

	commits := []commitEntry{}
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line == "" {
			continue
		}
		hash, message, _ := strings.Cut(line, " ")
		commits = append(commits, commitEntry{Hash: hash, Message: message})
	}
	writeJSON(w, http.StatusOK, commits)
}

// GitDiff returns the diff a commit introduced.
func (h *Handler) GitDiff(w http.ResponseWriter, r *http.Request) {
	commit := r.URL.Query().Get("commit")
	if !commitHashPattern.MatchString(commit) {
		writeError(w, http.StatusBadRequest, "Invalid commit hash")
		return
	}

	diff, err := h.runGit(r.Context(), "diff", commit+"~1", commit)
	if err != nil {
		// The root commit has no parent; show it against the empty tree.
		diff, err = h.runGit(r.Context(), "show", "--format=", commit)
		if err != nil {
			log.Printf("[git] diff %s: %v", commit, err)
			diff = ""
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"diff": diff})
}
