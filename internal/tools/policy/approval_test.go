package policy

import "testing"

func TestApprovalManager_LowRiskAutoApproves(t *testing.T) {
	m := NewApprovalManager(nil)
	if err := m.CheckApproval("read_file", "{}", "s1", RiskLow); err != nil {
		t.Fatalf("expected low risk to auto-approve, got %v", err)
	}
}

func TestApprovalManager_HighRiskRequiresApproval(t *testing.T) {
	m := NewApprovalManager(nil)
	err := m.CheckApproval("delete_repo", "{}", "s1", RiskHigh)
	if err == nil {
		t.Fatalf("expected high risk to require approval")
	}

	pending := m.ListPending()
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending request, got %d", len(pending))
	}

	if err := m.Approve(pending[0].ID, "user"); err != nil {
		t.Fatalf("approve: %v", err)
	}
	req, err := m.GetRequest(pending[0].ID)
	if err != nil {
		t.Fatalf("get request: %v", err)
	}
	if req.Status != ApprovalStatusApproved {
		t.Fatalf("expected approved status, got %s", req.Status)
	}
}

func TestApprovalManager_AlwaysRequireApprovalForOverridesLowRisk(t *testing.T) {
	pol := DefaultApprovalPolicy()
	pol.AlwaysRequireApprovalFor = []string{"shutdown_host"}
	m := NewApprovalManager(pol)

	if err := m.CheckApproval("shutdown_host", "{}", "s1", RiskLow); err == nil {
		t.Fatalf("expected forced-approval tool to require approval even at low risk")
	}
}

func TestApprovalManager_DenyRecordsReason(t *testing.T) {
	m := NewApprovalManager(nil)
	_ = m.CheckApproval("delete_repo", "{}", "s1", RiskHigh)
	pending := m.ListPending()
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending request")
	}
	if err := m.Deny(pending[0].ID, "user", "not now"); err != nil {
		t.Fatalf("deny: %v", err)
	}
	req, _ := m.GetRequest(pending[0].ID)
	if req.Status != ApprovalStatusDenied || req.DenialReason != "not now" {
		t.Fatalf("expected denied status with reason recorded, got %+v", req)
	}
}

func TestApprovalManager_MediumRiskBudgetExhausted(t *testing.T) {
	pol := DefaultApprovalPolicy()
	pol.ByRiskLevel[RiskMedium] = RiskApprovalPolicy{MaxAutoApprovePerSession: 1}
	m := NewApprovalManager(pol)

	if err := m.CheckApproval("web_search", "{}", "s1", RiskMedium); err != nil {
		t.Fatalf("expected first medium-risk call to auto-approve, got %v", err)
	}
	if err := m.CheckApproval("web_search", "{}", "s1", RiskMedium); err == nil {
		t.Fatalf("expected second medium-risk call to require approval once budget is exhausted")
	}
}
