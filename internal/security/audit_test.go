package security

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/agentcore/nexus/internal/config"
)

func TestNewAuditor(t *testing.T) {
	auditor := NewAuditor(AuditOptions{})
	if auditor == nil {
		t.Fatal("NewAuditor returned nil")
	}
}

func TestAuditFilesystemPermissions(t *testing.T) {
	tmpDir := t.TempDir()

	configPath := filepath.Join(tmpDir, "agentcore.yaml")
	if err := os.WriteFile(configPath, []byte("llm:\n  default_provider: anthropic\n"), 0644); err != nil {
		t.Fatal(err)
	}

	opts := AuditOptions{
		ConfigPath:        configPath,
		StateDir:          tmpDir,
		IncludeFilesystem: true,
	}

	auditor := NewAuditor(opts)
	report, err := auditor.Run()
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	found := false
	for _, f := range report.Findings {
		if f.CheckID == "fs.config_world_readable" {
			found = true
			if f.Severity != SeverityCritical {
				t.Errorf("expected critical severity, got %s", f.Severity)
			}
		}
	}
	if !found {
		t.Error("expected to find world-readable config finding")
	}
}

func TestAuditWorldWritableDir(t *testing.T) {
	tmpDir := t.TempDir()

	credsDir := filepath.Join(tmpDir, "credentials")
	if err := os.Mkdir(credsDir, 0777); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(credsDir, 0777); err != nil {
		t.Fatal(err)
	}

	opts := AuditOptions{
		StateDir:          credsDir,
		IncludeFilesystem: true,
	}

	auditor := NewAuditor(opts)
	report, err := auditor.Run()
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	found := false
	for _, f := range report.Findings {
		if f.CheckID == "fs.state_dir_world_writable" {
			found = true
			if f.Severity != SeverityCritical {
				t.Errorf("expected critical severity, got %s", f.Severity)
			}
		}
	}
	if !found {
		t.Error("expected to find world-writable state dir finding")
	}
}

func TestRunAudit_ConfigContent(t *testing.T) {
	cfg := &config.Config{
		LLM: config.LLMConfig{
			Providers: map[string]config.LLMProviderConfig{
				"openai": {APIKey: "sk-abcdefghijklmnopqrstuvwxyz123456"},
			},
		},
		Tools: config.ToolsConfig{
			Execution: config.ToolExecutionConfig{
				Approval: config.ApprovalConfig{
					Allowlist: []string{"*"},
				},
			},
		},
	}

	report, err := RunAudit(AuditOptions{Config: cfg, IncludeConfig: true})
	if err != nil {
		t.Fatalf("RunAudit failed: %v", err)
	}

	checkIDs := map[string]bool{}
	for _, f := range report.Findings {
		checkIDs[f.CheckID] = true
	}

	if !checkIDs["config.hardcoded_api_key.openai"] {
		t.Error("expected to find hardcoded API key finding")
	}
	if !checkIDs["tools.allowlist.wildcard"] {
		t.Error("expected to find wildcard allowlist finding")
	}
	if !report.HasCritical() {
		t.Error("expected report to have a critical finding")
	}
}

func TestCountBySeverity(t *testing.T) {
	report := &AuditReport{
		Findings: []AuditFinding{
			{CheckID: "test1", Severity: SeverityCritical},
			{CheckID: "test2", Severity: SeverityCritical},
			{CheckID: "test3", Severity: SeverityWarn},
			{CheckID: "test4", Severity: SeverityInfo},
		},
	}

	counts := report.CountBySeverity()
	if counts[SeverityCritical] != 2 {
		t.Errorf("expected 2 critical, got %d", counts[SeverityCritical])
	}
	if counts[SeverityWarn] != 1 {
		t.Errorf("expected 1 warn, got %d", counts[SeverityWarn])
	}
	if counts[SeverityInfo] != 1 {
		t.Errorf("expected 1 info, got %d", counts[SeverityInfo])
	}
}

func TestCheckPath(t *testing.T) {
	tmpDir := t.TempDir()
	secretFile := filepath.Join(tmpDir, "id_rsa")
	if err := os.WriteFile(secretFile, []byte("fake"), 0644); err != nil {
		t.Fatal(err)
	}

	findings, err := CheckPath(secretFile)
	if err != nil {
		t.Fatalf("CheckPath failed: %v", err)
	}

	found := false
	for _, f := range findings {
		if f.CheckID == "fs.config_world_readable" {
			found = true
		}
	}
	if !found {
		t.Error("expected to find a world-readable finding for the file")
	}
}

func TestValidatePermissions(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "secret.key")
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := ValidatePermissions(path, SecureFileMode); err == nil {
		t.Error("expected an error for a world-readable file exceeding the max mode")
	}

	if err := os.Chmod(path, SecureFileMode); err != nil {
		t.Fatal(err)
	}
	if err := ValidatePermissions(path, SecureFileMode); err != nil {
		t.Errorf("expected no error once permissions are tightened, got %v", err)
	}
}
