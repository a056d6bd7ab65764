package security

import (
	"maps"
	"regexp"
	"slices"
	"sort"
	"strings"
	"sync"
)

// RedactPlaceholder is the replacement string for redacted secrets.
const RedactPlaceholder = "***REDACTED***"

// RedactorService is the AppContext service name of the process Redactor.
const RedactorService = "security.redactor"

// secretKeyPattern matches argument and attribute names that hold secrets.
var secretKeyPattern = regexp.MustCompile(`(?i)(secret|token|password|passwd|api_?key|credential|authorization)`)

// Rule rewrites one kind of credential found in free text. Replace may
// reference capture groups; the placeholder is available as ${redacted}.
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
	Replace string
}

func (r Rule) apply(s string) string {
	if r.Replace == "" {
		return r.Pattern.ReplaceAllLiteralString(s, RedactPlaceholder)
	}
	return r.Pattern.ReplaceAllString(s, strings.ReplaceAll(r.Replace, "${redacted}", RedactPlaceholder))
}

// DefaultRules covers the credentials toolbench itself handles (gateway
// auth headers, exporter URLs) and common provider keys that tool
// arguments or dataset records may carry.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:    "authorization",
			Pattern: regexp.MustCompile(`(?i)\b(Bearer|Basic)\s+[A-Za-z0-9\-._~+/]{8,}=*`),
			Replace: "$1 ${redacted}",
		},
		{
			Name:    "url_userinfo",
			Pattern: regexp.MustCompile(`(://[^/\s:@]+):[^/\s@]+@`),
			Replace: "$1:${redacted}@",
		},
		{Name: "openai", Pattern: regexp.MustCompile(`sk-(?:ant-)?[A-Za-z0-9\-]{20,}`)},
		{Name: "github", Pattern: regexp.MustCompile(`(?:ghp_|gho_|ghs_|github_pat_)[A-Za-z0-9_]{20,}`)},
		{Name: "aws", Pattern: regexp.MustCompile(`AKIA[A-Z0-9]{16}`)},
	}
}

// Redactor masks secrets in log lines, audit events and recorded tool
// arguments. Free text is matched against rules and against literal
// secrets registered by modules (gateway credentials, exporter headers).
// All methods are safe for concurrent use.
type Redactor struct {
	mu      sync.RWMutex
	rules   []Rule
	secrets map[string][]string // owner -> literals
	ordered []string            // every literal, longest first
}

// NewRedactor creates a Redactor with DefaultRules.
func NewRedactor() *Redactor {
	return &Redactor{rules: DefaultRules(), secrets: map[string][]string{}}
}

// AddRule appends a rule.
func (r *Redactor) AddRule(rule Rule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules = append(r.rules, rule)
}

// SetSecrets replaces the literal secrets registered by owner, typically
// a module ID. A module calls it again after a reload; no arguments
// forgets the owner. Empty strings are ignored.
func (r *Redactor) SetSecrets(owner string, secrets ...string) {
	kept := slices.DeleteFunc(slices.Clone(secrets), func(s string) bool { return s == "" })

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.secrets == nil {
		r.secrets = map[string][]string{}
	}
	if len(kept) == 0 {
		delete(r.secrets, owner)
	} else {
		r.secrets[owner] = kept
	}

	// Longest first so a secret containing another is masked whole.
	var all []string
	for _, owner := range slices.Sorted(maps.Keys(r.secrets)) {
		all = append(all, r.secrets[owner]...)
	}
	sort.SliceStable(all, func(i, j int) bool { return len(all[i]) > len(all[j]) })
	r.ordered = all
}

// Redact masks rule matches and registered secrets in s.
func (r *Redactor) Redact(s string) string {
	if s == "" {
		return s
	}

	r.mu.RLock()
	rules, literals := r.rules, r.ordered
	r.mu.RUnlock()

	for _, lit := range literals {
		s = strings.ReplaceAll(s, lit, RedactPlaceholder)
	}
	for _, rule := range rules {
		s = rule.apply(s)
	}
	return s
}

// SecretKey reports whether a field name suggests a secret value.
func SecretKey(name string) bool {
	return secretKeyPattern.MatchString(name)
}

// RedactArguments returns a copy of a decoded JSON tree with non-empty
// string values under secret-named keys masked and every other string
// passed through Redact. args is left untouched, so recorded history
// keeps the exact values a tool received.
func (r *Redactor) RedactArguments(args map[string]any) map[string]any {
	if args == nil {
		return nil
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		if s, ok := v.(string); ok && s != "" && SecretKey(k) {
			out[k] = RedactPlaceholder
			continue
		}
		out[k] = r.redactValue(v)
	}
	return out
}

func (r *Redactor) redactValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return r.RedactArguments(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = r.redactValue(item)
		}
		return out
	case string:
		return r.Redact(val)
	default:
		return v
	}
}
