package ingest

import (
	"path/filepath"
	"strings"
)

// defaultExcludedPathMarkers is the configurable set of path fragments that
// cause a tool event to be dropped entirely regardless of content, per
// spec.md §4.4(b).
var defaultExcludedPathMarkers = []string{
	".env", "credentials", "secrets", ".pem", ".key", "id_rsa",
}

// noiseMarkers flags low-signal tool output: build chatter, package install
// logs, and repetitive linter warnings. These never admit on their own
// unless the tool itself is always-admitted (Write/Edit).
var noiseMarkers = []string{
	"npm warn", "npm notice", "added 1 package", "audited", "packages in",
	"go: downloading", "go: extracting",
	"webpack compiled", "webpack bundle",
	"0 vulnerabilities found",
}

// decisionIndicators identify content worth admitting even past the size
// threshold: a decision was made, or something failed.
var decisionIndicators = []string{
	"error", "exception", "panic", "failed", "failure",
	"decided", "decision", "chose", "because", "instead of",
	"traceback", "fatal",
}

const maxAdmissionSize = 5 * 1024

// alwaysAdmittedTools bypass the noise and size filters entirely: a file
// change is always high-signal, per spec.md §4.4(c).
var alwaysAdmittedTools = map[string]bool{
	"Write": true,
	"Edit":  true,
}

// excludedPath reports whether path matches one of the excluded-file
// markers (case-insensitive substring match on the base name).
func excludedPath(path string, extra []string) bool {
	if path == "" {
		return false
	}
	base := strings.ToLower(filepath.Base(path))
	for _, marker := range defaultExcludedPathMarkers {
		if strings.Contains(base, marker) {
			return true
		}
	}
	for _, marker := range extra {
		if strings.Contains(base, strings.ToLower(marker)) {
			return true
		}
	}
	return false
}

// admit decides whether a tool event's extracted content should be
// persisted as an observation, per spec.md §4.4(e).
func admit(toolName, content string) bool {
	if alwaysAdmittedTools[toolName] {
		return true
	}
	if content == "" {
		return false
	}
	lower := strings.ToLower(content)
	for _, marker := range noiseMarkers {
		if strings.Contains(lower, marker) {
			return false
		}
	}
	if len(content) > maxAdmissionSize {
		for _, marker := range decisionIndicators {
			if strings.Contains(lower, marker) {
				return true
			}
		}
		return false
	}
	return true
}
