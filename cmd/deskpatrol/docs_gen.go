package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"github.com/dotsetgreg/deskpatrol/pkg/config"
	"github.com/dotsetgreg/deskpatrol/pkg/providers"
	"github.com/spf13/cobra"
	cobraDoc "github.com/spf13/cobra/doc"
)

func newDocsCommand(rootFactory func() *cobra.Command) *cobra.Command {
	var (
		outputDir string
		checkOnly bool
	)
	gen := &cobra.Command{
		Use:   "generate",
		Short: "Generate CLI, config and provider reference docs",
		RunE: func(cmd *cobra.Command, args []string) error {
			if blank(outputDir) {
				return fmt.Errorf("--output must not be empty")
			}
			return generateDocumentation(rootFactory, outputDir, checkOnly)
		},
	}
	gen.Flags().StringVar(&outputDir, "output", "docs", "Docs directory root")
	gen.Flags().BoolVar(&checkOnly, "check", false, "Fail if generated docs are out of date")

	docs := &cobra.Command{Use: "docs", Short: "Internal docs maintenance commands", Hidden: true}
	docs.AddCommand(gen)
	return docs
}

// generateDocumentation renders <outputDir>/reference. With checkOnly the
// tree on disk is compared instead of replaced.
func generateDocumentation(rootFactory func() *cobra.Command, outputDir string, checkOnly bool) error {
	fresh, err := renderReferences(rootFactory)
	if err != nil {
		return err
	}
	dst := filepath.Join(outputDir, "reference")
	if checkOnly {
		onDisk, err := readTree(dst)
		if err != nil {
			return fmt.Errorf("docs out of date: %w", err)
		}
		if stale := staleFiles(fresh, onDisk); len(stale) > 0 {
			return fmt.Errorf("docs out of date (%s); run `deskpatrol docs generate`", strings.Join(stale, ", "))
		}
		return nil
	}
	if err := os.RemoveAll(dst); err != nil {
		return fmt.Errorf("clear %s: %w", dst, err)
	}
	for rel, data := range fresh {
		path := filepath.Join(dst, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return err
		}
	}
	return nil
}

// renderReferences returns every reference file keyed by its path relative
// to the reference dir. cobra only writes to disk, so its output goes
// through a scratch dir.
func renderReferences(rootFactory func() *cobra.Command) (map[string][]byte, error) {
	scratch, err := os.MkdirTemp("", "deskpatrol-docs-*")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	root := rootFactory()
	disableAutoGenTag(root)

	cliDir, manDir := filepath.Join(scratch, "cli"), filepath.Join(scratch, "man")
	for _, d := range []string{cliDir, manDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, err
		}
	}
	title := func(filename string) string {
		name := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
		return "# " + strings.ReplaceAll(name, "_", " ") + "\n\n"
	}
	if err := cobraDoc.GenMarkdownTreeCustom(root, cliDir, title, func(s string) string { return s }); err != nil {
		return nil, fmt.Errorf("generate cli markdown: %w", err)
	}
	if err := cobraDoc.GenManTree(root, &cobraDoc.GenManHeader{Title: "DESKPATROL", Section: "1", Source: appName}, manDir); err != nil {
		return nil, fmt.Errorf("generate man pages: %w", err)
	}

	out, err := readTree(scratch)
	if err != nil {
		return nil, err
	}
	cfgRef, err := configReference()
	if err != nil {
		return nil, err
	}
	out["config.md"] = []byte(cfgRef)
	out["providers.md"] = []byte(providersReference())
	return out, nil
}

func disableAutoGenTag(cmd *cobra.Command) {
	cmd.DisableAutoGenTag = true
	for _, child := range cmd.Commands() {
		disableAutoGenTag(child)
	}
}

func readTree(root string) (map[string][]byte, error) {
	out := map[string][]byte{}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil || d.IsDir() {
			return walkErr
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		out[filepath.ToSlash(rel)] = data
		return nil
	})
	return out, err
}

// staleFiles lists paths that differ, are missing, or are extra on disk.
func staleFiles(want, got map[string][]byte) []string {
	var stale []string
	for rel, data := range want {
		if have, ok := got[rel]; !ok || !bytes.Equal(have, data) {
			stale = append(stale, rel)
		}
	}
	for rel := range got {
		if _, ok := want[rel]; !ok {
			stale = append(stale, rel)
		}
	}
	sort.Strings(stale)
	return stale
}

type configRow struct {
	key, typ, env, def string
}

func configReference() (string, error) {
	defaults, err := configDefaults()
	if err != nil {
		return "", err
	}
	var rows []configRow
	walkConfig(reflect.TypeOf(config.Config{}), "", "", defaults, &rows)
	sort.Slice(rows, func(i, j int) bool { return rows[i].key < rows[j].key })

	var b strings.Builder
	b.WriteString("# Config Reference\n\n")
	b.WriteString("Generated from `pkg/config/config.go` and `config.DefaultConfig()`.\n\n")
	b.WriteString("| Key | Type | Env Var | Default |\n| --- | --- | --- | --- |\n")
	for _, r := range rows {
		fmt.Fprintf(&b, "| `%s` | `%s` | `%s` | `%s` |\n", r.key, r.typ, orDash(r.env), strings.ReplaceAll(orDash(r.def), "|", "\\|"))
	}
	return b.String(), nil
}

// walkConfig follows json tags for keys; envPrefix tags on nested structs
// prefix the env names of their fields.
func walkConfig(t reflect.Type, keyPrefix, envPrefix string, defaults map[string]string, rows *[]configRow) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if !f.IsExported() || name == "" || name == "-" {
			continue
		}
		key := name
		if keyPrefix != "" {
			key = keyPrefix + "." + name
		}
		if f.Type.Kind() == reflect.Struct {
			walkConfig(f.Type, key, envPrefix+f.Tag.Get("envPrefix"), defaults, rows)
			continue
		}
		env := f.Tag.Get("env")
		if env != "" {
			env = envPrefix + env
		}
		*rows = append(*rows, configRow{key: key, typ: f.Type.Kind().String(), env: env, def: defaults[key]})
	}
}

// configDefaults flattens DefaultConfig into dotted json keys.
func configDefaults() (map[string]string, error) {
	data, err := json.Marshal(config.DefaultConfig())
	if err != nil {
		return nil, err
	}
	var tree map[string]any
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, err
	}
	out := map[string]string{}
	var walk func(prefix string, v any)
	walk = func(prefix string, v any) {
		if m, ok := v.(map[string]any); ok {
			for k, child := range m {
				if prefix != "" {
					k = prefix + "." + k
				}
				walk(k, child)
			}
			return
		}
		enc, _ := json.Marshal(v)
		out[prefix] = string(enc)
	}
	walk("", tree)
	return out, nil
}

func providersReference() string {
	var b strings.Builder
	b.WriteString("# Provider Reference\n\n")
	b.WriteString("Answers are generated by `providers.primary`; `providers.secondary` is tried when the primary fails or returns an empty reply.\n\n")
	b.WriteString("| Kind | Default model | Needs `api_base` |\n| --- | --- | --- |\n")
	for _, kind := range providers.SupportedProviders() {
		model, needsBase := "-", "no"
		if p, err := providers.CreateProvider(config.ProviderConfig{Kind: kind, APIKey: "docs", APIBase: "http://localhost"}); err == nil {
			model = orDash(p.GetDefaultModel())
		}
		if providers.ValidateProviderConfig(config.ProviderConfig{Kind: kind, APIKey: "docs", Model: "m"}) != nil {
			needsBase = "yes"
		}
		fmt.Fprintf(&b, "| `%s` | `%s` | %s |\n", kind, model, needsBase)
	}
	return b.String()
}

func orDash(v string) string {
	if blank(v) {
		return "-"
	}
	return v
}
