// Package render materializes a branch's workspace from a template
// directory: it copies the tree, substitutes {{KEY}} placeholders in text
// artifacts, and filters the container-group spec down to the requested
// services.
package render

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// ErrUnknownService is returned when a requested service isn't declared by
// the template's container-group spec.
var ErrUnknownService = errors.New("render: unknown service")

// ErrNoServices is returned when the requested service set is empty.
var ErrNoServices = errors.New("render: no services requested")

// composeTemplateName and composeOutputName are the container-group spec
// file names inside the template and the rendered workspace respectively.
const (
	composeTemplateName = "docker-compose.branch.template.yaml"
	composeOutputName   = "docker-compose.yaml"
)

// RequiredKeys are the substitution keys every rendered branch must supply.
var RequiredKeys = []string{"BRANCH_NAME", "PORT", "PORT_TTYD", "GEMINI_API_KEY"}

var placeholderPattern = regexp.MustCompile(`\{\{\s*[A-Za-z0-9_]+\s*\}\}`)

// textArtifactExts are file suffixes treated as text for placeholder
// substitution purposes, beyond the exact-name matches below.
var textArtifactExts = map[string]bool{
	".yaml": true,
	".yml":  true,
	".json": true,
	".js":   true,
	".py":   true,
	".env":  true,
}

var textArtifactNames = map[string]bool{
	"Dockerfile": true,
	".env":       true,
}

func isTextArtifact(path string) bool {
	base := filepath.Base(path)
	if textArtifactNames[base] {
		return true
	}
	return textArtifactExts[filepath.Ext(base)]
}

// Renderer renders a template directory into branch workspaces.
type Renderer struct {
	templateRoot string
}

// New returns a Renderer reading from templateRoot.
func New(templateRoot string) *Renderer {
	return &Renderer{templateRoot: templateRoot}
}

// DeclaredServices reads docker-compose.branch.template.yaml's top-level
// "services" key and returns the canonical (branch-suffix-stripped)
// service names it declares, without performing any substitution. Callers
// use this at startup to populate the set of services Create/Start may
// legitimately be asked for, so an unknown-service request fails fast
// instead of only being caught deep inside Render. Returns (nil, nil) if
// the template has no compose file at all.
func (r *Renderer) DeclaredServices() ([]string, error) {
	templatePath := filepath.Join(r.templateRoot, composeTemplateName)
	data, err := os.ReadFile(templatePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var raw map[string]yaml.Node
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing compose template: %w", err)
	}

	servicesNode, ok := raw["services"]
	if !ok {
		return nil, fmt.Errorf("compose template has no top-level 'services' key")
	}

	var names []string
	for i := 0; i+1 < len(servicesNode.Content); i += 2 {
		names = append(names, canonicalServiceName(servicesNode.Content[i].Value, "{{BRANCH_NAME}}"))
	}
	return names, nil
}

// Render copies the template tree into targetDir, substitutes placeholders
// in text artifacts, filters the container-group spec to the requested
// services, and renders every .gemini/*.template.* file to its
// non-template sibling. On any failure, the caller is responsible for
// removing the partially-written targetDir (see the engine's compensation
// logic).
func (r *Renderer) Render(targetDir string, substitutions map[string]string, services []string) error {
	if len(services) == 0 {
		return ErrNoServices
	}

	if _, err := os.Stat(r.templateRoot); err != nil {
		return fmt.Errorf("render: template root %s: %w", r.templateRoot, err)
	}

	if err := copyTree(r.templateRoot, targetDir); err != nil {
		return fmt.Errorf("render: copying template: %w", err)
	}

	if err := substituteTree(targetDir, substitutions); err != nil {
		return fmt.Errorf("render: substituting placeholders: %w", err)
	}

	if err := renderGeminiTemplates(targetDir, substitutions); err != nil {
		return fmt.Errorf("render: rendering .gemini templates: %w", err)
	}

	if err := r.filterComposeServices(targetDir, substitutions, services); err != nil {
		return fmt.Errorf("render: filtering services: %w", err)
	}

	return nil
}

// copyTree recursively copies src to dst, creating dst if needed.
func copyTree(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		if info.Mode()&os.ModeSymlink != 0 {
			resolved, err := filepath.EvalSymlinks(path)
			if err != nil {
				return err
			}
			if info, err = os.Stat(resolved); err != nil {
				return err
			}
			if info.IsDir() {
				return copyTree(resolved, target)
			}
		}
		if info.IsDir() {
			return os.MkdirAll(target, info.Mode())
		}
		return copyFile(path, target, info.Mode())
	})
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

// substituteTree walks targetDir, applying placeholder substitution to
// every recognized text artifact. Unknown keys are left intact and
// warn-logged, never treated as an error: the template may legitimately
// be partial.
func substituteTree(root string, substitutions map[string]string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !isTextArtifact(path) {
			return nil
		}
		// The raw compose template is handled separately by the service
		// filter, which performs its own substitution pass after parsing.
		if filepath.Base(path) == composeTemplateName {
			return nil
		}
		return substituteFile(path, substitutions)
	})
}

func substituteFile(path string, substitutions map[string]string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	rendered, unresolved := applySubstitutions(string(data), substitutions)
	for _, key := range unresolved {
		log.WithFields(log.Fields{"file": path, "key": key}).Warn("render: placeholder left unresolved")
	}
	return os.WriteFile(path, []byte(rendered), 0o644)
}

// applySubstitutions replaces every {{KEY}} occurrence found in
// substitutions and returns the result along with the list of keys left
// unresolved (still present verbatim in the output).
func applySubstitutions(content string, substitutions map[string]string) (string, []string) {
	var unresolved []string
	result := placeholderPattern.ReplaceAllStringFunc(content, func(m string) string {
		key := strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(m, "{{"), "}}"))
		if v, ok := substitutions[key]; ok {
			return v
		}
		unresolved = append(unresolved, key)
		return m
	})
	return result, unresolved
}

// renderGeminiTemplates renders every .gemini/*.template.* file to its
// non-template sibling name, applying the standard placeholder pass. This
// generalizes the single-cased config.template.json handling of the
// system this was adapted from to any file under .gemini/ matching the
// pattern.
func renderGeminiTemplates(targetDir string, substitutions map[string]string) error {
	geminiDir := filepath.Join(targetDir, ".gemini")
	if _, err := os.Stat(geminiDir); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	return filepath.Walk(geminiDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.Contains(filepath.Base(path), ".template.") {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rendered, unresolved := applySubstitutions(string(data), substitutions)
		for _, key := range unresolved {
			log.WithFields(log.Fields{"file": path, "key": key}).Warn("render: placeholder left unresolved")
		}

		sibling := strings.Replace(path, ".template.", ".", 1)
		if err := os.WriteFile(sibling, []byte(rendered), 0o644); err != nil {
			return err
		}
		return os.Remove(path)
	})
}

// filterComposeServices reads docker-compose.branch.template.yaml from
// the template root, substitutes placeholders using the full substitution
// set (BRANCH_NAME, PORT, PORT_TTYD, GEMINI_API_KEY, ...), keeps only the
// requested services (matched after stripping a "-{{BRANCH_NAME}}"/
// "-<branch>" suffix), and writes docker-compose.yaml into targetDir.
func (r *Renderer) filterComposeServices(targetDir string, substitutions map[string]string, services []string) error {
	templatePath := filepath.Join(r.templateRoot, composeTemplateName)
	data, err := os.ReadFile(templatePath)
	if errors.Is(err, os.ErrNotExist) {
		log.WithField("path", templatePath).Warn("render: no compose template found, skipping")
		return nil
	}
	if err != nil {
		return err
	}

	branchName := substitutions["BRANCH_NAME"]
	rendered, unresolved := applySubstitutions(string(data), substitutions)
	for _, key := range unresolved {
		log.WithFields(log.Fields{"file": templatePath, "key": key}).Warn("render: placeholder left unresolved")
	}

	var raw map[string]yaml.Node
	if err := yaml.Unmarshal([]byte(rendered), &raw); err != nil {
		return fmt.Errorf("parsing compose template: %w", err)
	}

	servicesNode, ok := raw["services"]
	if !ok {
		return fmt.Errorf("compose template has no top-level 'services' key")
	}

	requested := make(map[string]bool, len(services))
	for _, s := range services {
		requested[s] = true
	}

	var filtered yaml.Node
	filtered.Kind = yaml.MappingNode
	filtered.Tag = "!!map"

	seen := make(map[string]bool)
	for i := 0; i+1 < len(servicesNode.Content); i += 2 {
		keyNode := servicesNode.Content[i]
		valNode := servicesNode.Content[i+1]
		canonical := canonicalServiceName(keyNode.Value, branchName)
		if requested[canonical] {
			filtered.Content = append(filtered.Content, keyNode, valNode)
			seen[canonical] = true
		}
	}

	for s := range requested {
		if !seen[s] {
			return fmt.Errorf("%w: %s", ErrUnknownService, s)
		}
	}

	raw["services"] = filtered

	out, err := yaml.Marshal(raw)
	if err != nil {
		return fmt.Errorf("re-encoding compose spec: %w", err)
	}

	return os.WriteFile(filepath.Join(targetDir, composeOutputName), out, 0o644)
}

// canonicalServiceName strips a trailing "-{{BRANCH_NAME}}" or
// "-<branchName>" suffix from a template service name, so "app-{{BRANCH_NAME}}"
// and "app-alpha" both canonicalize to "app".
func canonicalServiceName(serviceName, branchName string) string {
	suffix := "-" + branchName
	if len(serviceName) > len(suffix) && strings.EqualFold(serviceName[len(serviceName)-len(suffix):], suffix) {
		return serviceName[:len(serviceName)-len(suffix)]
	}
	return serviceName
}
