package catalog

import (
	"bufio"
	"bytes"
	"regexp"
	"strings"

	"github.com/flemzord/toolbench/pkg/toolkit"
)

var (
	importSpecRe = regexp.MustCompile(`(?:([A-Za-z_][A-Za-z0-9_]*|\.)\s+)?"([^"]+)"`)
	declStartRe  = regexp.MustCompile(`^(func|type|var|const)\b`)
)

// Import is one import line required by a tool body.
type Import struct {
	Name string `json:"name,omitempty"`
	Path string `json:"path"`
}

// Spec renders the import as it appears inside an import block.
func (i Import) Spec() string {
	if i.Name != "" {
		return i.Name + " " + `"` + i.Path + `"`
	}
	return `"` + i.Path + `"`
}

// scanImports collects import specs with a line-oriented text scan. It
// stops at the first top-level declaration and skips the toolkit import.
func scanImports(src []byte) []Import {
	var (
		out     []Import
		inBlock bool
	)
	sc := bufio.NewScanner(bytes.NewReader(src))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := stripLineComment(strings.TrimSpace(sc.Text()))
		switch {
		case inBlock:
			if idx := strings.Index(line, ")"); idx >= 0 {
				out = appendSpecs(out, line[:idx])
				inBlock = false
				continue
			}
			out = appendSpecs(out, line)
		case strings.HasPrefix(line, "import"):
			rest := strings.TrimSpace(strings.TrimPrefix(line, "import"))
			if strings.HasPrefix(rest, "(") {
				rest = rest[1:]
				if idx := strings.Index(rest, ")"); idx >= 0 {
					out = appendSpecs(out, rest[:idx])
					continue
				}
				inBlock = true
			}
			out = appendSpecs(out, rest)
		case declStartRe.MatchString(line):
			return out
		}
	}
	return out
}

func appendSpecs(out []Import, text string) []Import {
	for _, m := range importSpecRe.FindAllStringSubmatch(text, -1) {
		if m[2] == toolkit.ImportPath {
			continue
		}
		out = append(out, Import{Name: m[1], Path: m[2]})
	}
	return out
}

func stripLineComment(line string) string {
	if idx := strings.Index(line, "//"); idx >= 0 {
		return strings.TrimSpace(line[:idx])
	}
	return line
}
