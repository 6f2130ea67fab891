package docs

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/iota-uz/contracts/modules/contracts/domain/aggregates/contract"
	"github.com/iota-uz/contracts/modules/contracts/domain/entities/template"
)

var (
	variableRE  = regexp.MustCompile(`\$\{\s*([a-zA-Z0-9_]+)\s*\}`)
	signatureRE = regexp.MustCompile(`\{\{\s*([A-Z][A-Z0-9_]*)\s*\}\}`)
)

// MissingVariablesError reports required template variables absent from
// the provided values.
type MissingVariablesError struct {
	Names []string
}

func (e *MissingVariablesError) Error() string {
	return fmt.Sprintf("missing required variables: %s", strings.Join(e.Names, ", "))
}

// Renderer turns a template body into a contract working document:
// ${name} slots are substituted from values, {{TOKEN}} signature slots
// are left in place for later embedding.
type Renderer struct {
	storage *Storage
	log     *logrus.Logger
}

func NewRenderer(storage *Storage, log *logrus.Logger) *Renderer {
	return &Renderer{storage: storage, log: log}
}

// Render writes the document for the contract and returns its path.
func (r *Renderer) Render(ctx context.Context, tpl *template.Template, c *contract.Contract, values map[string]string) (string, error) {
	required := make(map[string]bool, len(tpl.Variables))
	for _, v := range tpl.Variables {
		if v.Required {
			required[v.Name] = true
		}
	}

	missingSet := map[string]struct{}{}
	body := variableRE.ReplaceAllStringFunc(tpl.Body, func(m string) string {
		name := variableRE.FindStringSubmatch(m)[1]
		if v, ok := values[name]; ok {
			return v
		}
		if required[name] {
			missingSet[name] = struct{}{}
		}
		return ""
	})

	if len(missingSet) > 0 {
		names := make([]string, 0, len(missingSet))
		for n := range missingSet {
			names = append(names, n)
		}
		sort.Strings(names)
		return "", &MissingVariablesError{Names: names}
	}

	path := r.storage.DocumentPath(c.ID)
	if err := r.storage.Write(path, []byte(normalize(body))); err != nil {
		return "", err
	}

	r.log.WithFields(logrus.Fields{
		"contract_id": c.ID,
		"template_id": tpl.ID,
		"path":        path,
	}).Info("docs: document rendered")
	return path, nil
}

// SignatureTokens lists the distinct {{TOKEN}} placeholders in a body, in
// order of first appearance.
func SignatureTokens(body string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, m := range signatureRE.FindAllStringSubmatch(body, -1) {
		token := m[1]
		if _, ok := seen[token]; ok {
			continue
		}
		seen[token] = struct{}{}
		out = append(out, token)
	}
	return out
}

func normalize(in string) string {
	s := strings.ReplaceAll(in, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], " \t")
	}
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n") + "\n"
}
