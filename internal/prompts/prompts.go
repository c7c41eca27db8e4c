// Package prompts gathers newline-delimited prompt files and prepares the
// environment bundle forwarded to the pod workload.
package prompts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// BundleLimit is the maximum size in bytes of the serialized prompt bundle.
// The provider rejects pod-create payloads with larger env values, so the
// bundle is truncated to this ceiling. Truncation is lossy: trailing prompts
// beyond the ceiling are dropped.
const BundleLimit = 48000

// EnvVar is the environment variable name the workload reads prompts from.
const EnvVar = "PROMPTS_NDJSON"

// Gather expands the glob pattern, reads every matching file and returns all
// non-blank lines in file order. It fails when no lines match so a typo in
// the glob never launches an empty render run.
func Gather(pattern string) ([]string, error) {
	paths, err := expand(pattern)
	if err != nil {
		return nil, err
	}

	var lines []string
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", p, err)
		}
		for _, line := range strings.Split(string(data), "\n") {
			if strings.TrimSpace(line) != "" {
				lines = append(lines, line)
			}
		}
	}

	if len(lines) == 0 {
		return nil, fmt.Errorf("no prompts match %q", pattern)
	}
	return lines, nil
}

// Bundle joins prompt lines with newlines and truncates the result to
// BundleLimit bytes.
func Bundle(lines []string) string {
	joined := strings.Join(lines, "\n")
	if len(joined) > BundleLimit {
		joined = joined[:BundleLimit]
	}
	return joined
}

// expand handles the recursive "**" patterns the CI workflows pass, which
// filepath.Glob does not understand natively.
func expand(pattern string) ([]string, error) {
	if !strings.Contains(pattern, "**") {
		paths, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid glob %q: %w", pattern, err)
		}
		return paths, nil
	}

	// Split at the first "**" and walk the fixed prefix, matching the
	// remainder against each file's base name.
	idx := strings.Index(pattern, "**")
	root := filepath.Dir(pattern[:idx] + "x")
	if root == "" {
		root = "."
	}
	suffix := strings.TrimPrefix(pattern[idx+2:], "/")

	var paths []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if suffix == "" {
			paths = append(paths, path)
			return nil
		}
		ok, err := filepath.Match(suffix, filepath.Base(path))
		if err != nil {
			return err
		}
		if ok {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to expand glob %q: %w", pattern, err)
	}
	return paths, nil
}

// ValidationError describes one rejected prompt line.
type ValidationError struct {
	Path string
	Line int
	Msg  string
}

func (e ValidationError) String() string {
	return fmt.Sprintf("%s:%d %s", e.Path, e.Line, e.Msg)
}

// Validate checks every .ndjson file under dir: each line must be valid
// JSON, ASCII-only, and carry a non-empty "text" or "prompt" field.
func Validate(dir string) ([]ValidationError, error) {
	var errs []ValidationError

	walkErr := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(path, ".ndjson") {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		for i, line := range strings.Split(string(data), "\n") {
			if strings.TrimSpace(line) == "" {
				continue
			}
			num := i + 1

			var obj map[string]any
			if err := json.Unmarshal([]byte(line), &obj); err != nil {
				errs = append(errs, ValidationError{path, num, fmt.Sprintf("invalid JSON: %v", err)})
				continue
			}
			if !isASCII(line) {
				errs = append(errs, ValidationError{path, num, "contains non-ASCII characters"})
				continue
			}
			if text(obj) == "" {
				errs = append(errs, ValidationError{path, num, `missing "text" or "prompt" field`})
			}
		}
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", dir, walkErr)
	}

	return errs, nil
}

func isASCII(s string) bool {
	for _, r := range s {
		if r > 127 {
			return false
		}
	}
	return true
}

func text(obj map[string]any) string {
	for _, key := range []string{"text", "prompt"} {
		if v, ok := obj[key].(string); ok && strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
