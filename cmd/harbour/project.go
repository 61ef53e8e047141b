package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"harbour/internal/ops"
)

func newNewCmd(globals *globalFlags) *cobra.Command {
	var lang string
	cmd := &cobra.Command{
		Use:   "new <name>",
		Short: "Scaffold a new Harbour package",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			if _, err := os.Stat(name); err == nil {
				return fmt.Errorf("directory %q already exists", name)
			}
			if err := os.MkdirAll(filepath.Join(name, "src"), 0o755); err != nil {
				return err
			}

			ext, body := "c", "#include <stdio.h>\n\nint main(void) {\n\tprintf(\"hello from %s\\n\", \""+name+"\");\n\treturn 0;\n}\n"
			language := "c"
			if lang == "cpp" || lang == "c++" {
				ext, language = "cpp", "cpp"
				body = "#include <iostream>\n\nint main() {\n\tstd::cout << \"hello from " + name + "\\n\";\n\treturn 0;\n}\n"
			}

			manifestBody := fmt.Sprintf(`[package]
name = %q
version = "0.1.0"

[targets.%s]
kind = "exe"
language = %q
sources = ["src/*.%s"]
`, name, name, language, ext)
			if err := os.WriteFile(filepath.Join(name, "Harbour.toml"), []byte(manifestBody), 0o644); err != nil {
				return err
			}
			if err := os.WriteFile(filepath.Join(name, "src", "main."+ext), []byte(body), 0o644); err != nil {
				return err
			}
			fmt.Printf("Created package %q\n", name)
			return nil
		},
	}
	cmd.Flags().StringVar(&lang, "lang", "c", "source language (c or cpp)")
	return cmd
}

func newAddCmd(globals *globalFlags) *cobra.Command {
	var path, git, version string
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a dependency to the current project's manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			var entry string
			switch {
			case path != "":
				entry = fmt.Sprintf("%s = { path = %q }", name, path)
			case git != "":
				entry = fmt.Sprintf("%s = { git = %q }", name, git)
			case version != "":
				entry = fmt.Sprintf("%s = %q", name, version)
			default:
				return fmt.Errorf("one of --path, --git, or --version is required")
			}
			if err := addManifestDependency("Harbour.toml", name, entry); err != nil {
				return err
			}
			fmt.Printf("Added dependency %q\n", name)
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "path", "", "path dependency")
	cmd.Flags().StringVar(&git, "git", "", "git dependency URL")
	cmd.Flags().StringVar(&version, "version", "", "registry dependency version requirement")
	return cmd
}

func newRmCmd(globals *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <name>",
		Short: "Remove a dependency from the current project's manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := removeManifestDependency("Harbour.toml", args[0]); err != nil {
				return err
			}
			fmt.Printf("Removed dependency %q\n", args[0])
			return nil
		},
	}
}

// addManifestDependency inserts an entry into the [dependencies] table,
// creating the table if the manifest has none yet. The edited manifest
// is re-parsed before being written back, so a malformed edit never
// lands on disk.
func addManifestDependency(manifestPath, name, entry string) error {
	proj, err := ops.LoadProject(filepath.Dir(manifestPath))
	if err != nil {
		return err
	}
	if _, exists := proj.Manifest.Dependencies[name]; exists {
		return fmt.Errorf("dependency %q already present", name)
	}

	lines := strings.Split(string(proj.ManifestBytes), "\n")
	var out []string
	inserted := false
	for _, line := range lines {
		out = append(out, line)
		if strings.TrimSpace(line) == "[dependencies]" {
			out = append(out, entry)
			inserted = true
		}
	}
	if !inserted {
		if len(out) > 0 && out[len(out)-1] == "" {
			out = out[:len(out)-1]
		}
		out = append(out, "", "[dependencies]", entry, "")
	}
	return verifyAndWriteManifest(manifestPath, strings.Join(out, "\n"))
}

// removeManifestDependency drops a dependency's line from the
// [dependencies] table.
func removeManifestDependency(manifestPath, name string) error {
	proj, err := ops.LoadProject(filepath.Dir(manifestPath))
	if err != nil {
		return err
	}
	if _, exists := proj.Manifest.Dependencies[name]; !exists {
		return fmt.Errorf("dependency %q not present", name)
	}

	lines := strings.Split(string(proj.ManifestBytes), "\n")
	var out []string
	inDeps := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "[") {
			inDeps = trimmed == "[dependencies]"
		}
		if inDeps && (strings.HasPrefix(trimmed, name+" =") || strings.HasPrefix(trimmed, name+"=")) {
			continue
		}
		out = append(out, line)
	}
	return verifyAndWriteManifest(manifestPath, strings.Join(out, "\n"))
}

func verifyAndWriteManifest(manifestPath, content string) error {
	tmpDir, err := os.MkdirTemp("", "harbour-manifest-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmpDir)
	tmpFile := filepath.Join(tmpDir, "Harbour.toml")
	if err := os.WriteFile(tmpFile, []byte(content), 0o644); err != nil {
		return err
	}
	if _, err := ops.LoadProject(tmpDir); err != nil {
		return fmt.Errorf("refusing to write manifest that no longer parses: %w", err)
	}
	return os.WriteFile(manifestPath, []byte(content), 0o644)
}
