package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/reglet-dev/exthost/application/loader"
	"github.com/reglet-dev/exthost/domain/entities"
	domainerrors "github.com/reglet-dev/exthost/domain/errors"
	"github.com/reglet-dev/exthost/host"
	"github.com/reglet-dev/exthost/internal/testutil"
	"github.com/stretchr/testify/suite"
)

const rustManifest = `id = "rust"
name = "Rust"
version = "0.3.1"

[slash_commands.cargo-doc]
description = "Open crate docs"
requires_argument = true

[[capabilities]]
kind = "process:exec"
command = "cargo"
args = ["doc", "**"]
`

// CLISuite runs the root command against an isolated config directory.
type CLISuite struct {
	suite.Suite
	dir        string
	configPath string
	grantsPath string
}

func (s *CLISuite) SetupTest() {
	s.dir = s.T().TempDir()
	s.configPath = filepath.Join(s.dir, "exthost.yaml")
	s.grantsPath = filepath.Join(s.dir, "grants.yaml")
	s.Require().NoError(os.WriteFile(s.configPath, []byte(`
work_dir: work
grants_file: grants.yaml
watch_grants: false
log_level: error
settings:
  lsp:
    rust-analyzer: '{"check_on_save": true}'
`), 0o600))
}

func (s *CLISuite) execute(stdin string, args ...string) (string, error) {
	root := newRootCmd()
	out := new(bytes.Buffer)
	root.SetOut(out)
	root.SetErr(out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"--config", s.configPath}, args...))
	err := root.Execute()
	return out.String(), err
}

func (s *CLISuite) writeExtension(name, manifest string, guest *testutil.Guest) string {
	dir := filepath.Join(s.dir, "extensions", name)
	s.Require().NoError(os.MkdirAll(dir, 0o755))
	s.Require().NoError(os.WriteFile(filepath.Join(dir, "extension.toml"), []byte(manifest), 0o600))
	if guest != nil {
		s.Require().NoError(os.WriteFile(filepath.Join(dir, loader.WasmFileName), guest.Bytes(), 0o600))
	}
	return dir
}

func (s *CLISuite) TestHelp() {
	out, err := s.execute("", "--help")
	s.Require().NoError(err)
	for _, sub := range []string{"inspect", "validate", "load", "call", "grants", "schema", "--log-format"} {
		s.Contains(out, sub)
	}
}

func (s *CLISuite) TestInspect() {
	dir := s.writeExtension("rust", rustManifest, testutil.NewGuest().Version(0, 2, 0))

	out, err := s.execute("", "inspect", "--json", dir)
	s.Require().NoError(err)

	var report inspectReport
	s.Require().NoError(json.Unmarshal([]byte(out), &report))
	s.Equal("0.2.0", report.Version)
	s.True(report.Supported)
	s.Contains(report.Operations, host.OpContextServerCommand)
	s.NotContains(report.Operations, host.OpRunDebugTask)

	out, err = s.execute("", "inspect", filepath.Join(dir, loader.WasmFileName))
	s.Require().NoError(err)
	s.Contains(out, "interface version: 0.2.0")
	s.Contains(out, "- "+host.OpLanguageServerCommand)
}

func (s *CLISuite) TestInspect_MissingVersion() {
	dir := s.writeExtension("rust", rustManifest, testutil.NewGuest())
	_, err := s.execute("", "inspect", dir)
	s.Error(err)
}

func (s *CLISuite) TestValidate() {
	good := s.writeExtension("rust", rustManifest, testutil.NewGuest().Version(0, 1, 0))
	bad := s.writeExtension("bad", "id = \"Bad ID\"\nname = \"Bad\"\nversion = \"x\"\n", nil)
	old := s.writeExtension("old", "id = \"old\"\nname = \"Old\"\nversion = \"1.0.0\"\n", testutil.NewGuest().Version(0, 0, 1))

	out, err := s.execute("", "validate", good)
	s.Require().NoError(err)
	s.Contains(out, "ok   "+good+" (rust)")

	out, err = s.execute("", "validate", good, bad, old)
	s.ErrorContains(err, "2 of 3 extensions are invalid")
	s.Contains(out, "FAIL "+bad)
	s.Contains(out, "FAIL "+old)
}

func (s *CLISuite) TestLoad() {
	s.writeExtension("rust", rustManifest, testutil.NewGuest().Version(0, 1, 0))
	s.writeExtension("go", "id = \"go\"\nname = \"Go\"\nversion = \"0.1.0\"\n", testutil.NewGuest().Version(0, 6, 0))

	out, err := s.execute("", "load", filepath.Join(s.dir, "extensions"))
	s.Require().NoError(err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	s.Require().Len(lines, 3)
	s.True(strings.HasPrefix(lines[1], "go "), lines[1])
	s.Contains(lines[1], host.OpRunDebugTask)
	s.True(strings.HasPrefix(lines[2], "rust "), lines[2])
	s.NotContains(lines[2], host.OpRunDebugTask)

	s.DirExists(filepath.Join(s.dir, "work", "rust"))
}

func (s *CLISuite) TestCall_LanguageServerCommand() {
	want := entities.Command{Command: "rust-analyzer", Args: []string{"--stdio"}, Env: []entities.EnvVar{}}
	dir := s.writeExtension("rust", rustManifest,
		testutil.NewGuest().Version(0, 1, 0).Const(host.OpLanguageServerCommand, testutil.Ok(s.T(), want)))

	out, err := s.execute("", "call", dir, host.OpLanguageServerCommand,
		"--server-id", "rust-analyzer", "--language", "Rust", "--worktree", s.dir)
	s.Require().NoError(err)

	var got entities.Command
	s.Require().NoError(json.Unmarshal([]byte(out), &got))
	s.Equal(want.Command, got.Command)
	s.Equal(want.Args, got.Args)
}

func (s *CLISuite) TestCall_SettingsFromConfig() {
	dir := s.writeExtension("rust", rustManifest,
		testutil.NewGuest().Version(0, 1, 0).
			CallImport(host.OpLanguageServerWorkspaceConfiguration, "get_settings", `{"category":"lsp","key":"rust-analyzer"}`))

	out, err := s.execute("", "call", dir, host.OpLanguageServerWorkspaceConfiguration,
		"--server-id", "rust-analyzer", "--worktree", s.dir)
	s.Require().NoError(err)
	s.Contains(out, "check_on_save")
}

func (s *CLISuite) TestCall_SlashCommand() {
	completions := []entities.SlashCommandArgumentCompletion{{Label: "serde", NewText: "serde", RunCommand: true}}
	dir := s.writeExtension("rust", rustManifest,
		testutil.NewGuest().Version(0, 1, 0).Const(host.OpCompleteSlashCommandArgument, testutil.Ok(s.T(), completions)))

	out, err := s.execute("", "call", dir, host.OpCompleteSlashCommandArgument, "--command", "cargo-doc", "se")
	s.Require().NoError(err)
	s.Contains(out, `"label": "serde"`)

	_, err = s.execute("", "call", dir, host.OpCompleteSlashCommandArgument, "--command", "cargo-test")
	s.ErrorContains(err, `declares no slash command "cargo-test"`)
}

func (s *CLISuite) TestCall_InputFromStdin() {
	labels := []*entities.CodeLabel{{Code: "fn main()", Spans: []entities.CodeLabelSpan{}}}
	dir := s.writeExtension("rust", rustManifest,
		testutil.NewGuest().Version(0, 1, 0).Const(host.OpLabelsForSymbols, testutil.Ok(s.T(), labels)))

	out, err := s.execute(`[{"name":"main","kind":12}]`, "call", dir, host.OpLabelsForSymbols, "--server-id", "rust-analyzer", "--input", "-")
	s.Require().NoError(err)
	s.Contains(out, "fn main()")

	_, err = s.execute("", "call", dir, host.OpLabelsForSymbols)
	s.ErrorContains(err, "--input is required for labels_for_symbols")
}

func (s *CLISuite) TestCall_Errors() {
	dir := s.writeExtension("rust", rustManifest, testutil.NewGuest().Version(0, 1, 0))

	_, err := s.execute("", "call", dir, "format_document")
	s.ErrorContains(err, `unknown operation "format_document"`)

	_, err = s.execute("{}", "call", dir, host.OpRunDebugTask, "--input", "-")
	s.ErrorIs(err, domainerrors.ErrOperationUnsupported)
}

func (s *CLISuite) TestGrants_ReviewListRevoke() {
	dir := s.writeExtension("rust", rustManifest, nil)

	out, err := s.execute("", "grants", "list")
	s.Require().NoError(err)
	s.Contains(out, "no capabilities granted")

	_, err = s.execute("", "grants", "review", dir)
	s.ErrorContains(err, "exthost grants review")
	s.NoFileExists(s.grantsPath)

	out, err = s.execute("", "grants", "review", "--yes", dir)
	s.Require().NoError(err)
	s.Contains(out, "rust: granted 1 capabilities")
	s.FileExists(s.grantsPath)

	out, err = s.execute("", "grants", "review", "--yes", dir)
	s.Require().NoError(err)
	s.Contains(out, "rust: nothing to grant")

	out, err = s.execute("", "grants", "list")
	s.Require().NoError(err)
	s.Contains(out, "1. process:exec cargo doc **")

	_, err = s.execute("", "grants", "revoke", "2")
	s.ErrorContains(err, "out of range 1-1")

	out, err = s.execute("", "grants", "revoke", "1")
	s.Require().NoError(err)
	s.Contains(out, "revoked process:exec cargo doc **")

	out, err = s.execute("", "grants", "list", "--json")
	s.Require().NoError(err)
	var granted entities.GrantedCapabilitySet
	s.Require().NoError(json.Unmarshal([]byte(out), &granted))
	s.Empty(granted.Capabilities)
}

func (s *CLISuite) TestSchema() {
	out, err := s.execute("", "schema", "manifest")
	s.Require().NoError(err)
	s.Contains(out, `"capabilities"`)

	out, err = s.execute("", "schema", "config")
	s.Require().NoError(err)
	s.Contains(out, `"grants_file"`)

	out, err = s.execute("", "schema", "capability", entities.CapabilityNpmInstallPackage)
	s.Require().NoError(err)
	s.Contains(out, `"package"`)

	_, err = s.execute("", "schema", "capability", "network:connect")
	s.ErrorContains(err, "download_file, npm:install_package, process:exec")
}

func (s *CLISuite) TestLogFlagsOverrideConfig() {
	_, err := s.execute("", "--log-format", "xml", "schema", "grants")
	s.ErrorContains(err, "LogFormat")
}

func TestCLISuite(t *testing.T) {
	suite.Run(t, new(CLISuite))
}

func TestNewLogger(t *testing.T) {
	buf := new(bytes.Buffer)
	logger, err := newLogger(buf, "json", "warn")
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("hidden")
	logger.Warn("shown", "extension", "rust")
	if !strings.Contains(buf.String(), `"extension":"rust"`) || strings.Contains(buf.String(), "hidden") {
		t.Fatalf("unexpected log output: %s", buf.String())
	}

	if _, err := newLogger(buf, "text", "loud"); err == nil {
		t.Fatal("expected an invalid level error")
	}
}
