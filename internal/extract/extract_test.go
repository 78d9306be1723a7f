package extract

import (
	"strings"
	"testing"
)

func TestParseTaggedOutput(t *testing.T) {
	text := `STATUS: APPROVED

APPROACH: Ansible

ISSUES: none

FINAL_CODE:
---
- hosts: webservers
  become: yes
  tasks:
    - name: Install nginx
      apt:
        name: nginx
        state: present
`

	artifact := Parse(text)

	if artifact.Status != StatusApproved {
		t.Errorf("Status = %s, want approved", artifact.Status)
	}
	if artifact.Approach != ApproachAnsible {
		t.Errorf("Approach = %s, want ansible", artifact.Approach)
	}

	want := strings.Join([]string{
		"---",
		"- hosts: webservers",
		"  become: yes",
		"  tasks:",
		"    - name: Install nginx",
		"      apt:",
		"        name: nginx",
		"        state: present",
	}, "\n")
	if artifact.Content != want {
		t.Errorf("Content mismatch:\ngot:\n%s\nwant:\n%s", artifact.Content, want)
	}
}

func TestParseFinalCodeRunsToEndOfText(t *testing.T) {
	// There is no end marker for FINAL_CODE; trailing prose is captured too.
	text := "FINAL_CODE:\necho hello\n\nThis looks safe to run."

	artifact := Parse(text)

	if !strings.Contains(artifact.Content, "echo hello") {
		t.Fatalf("missing captured line: %q", artifact.Content)
	}
	if !strings.Contains(artifact.Content, "This looks safe to run.") {
		t.Errorf("open-ended capture should include trailing prose, got %q", artifact.Content)
	}
}

func TestParseYAMLSniff(t *testing.T) {
	text := `Here is the playbook you asked for:

---
- hosts: all
  become: yes
  tasks:
    - name: Update cache
      apt:
        update_cache: yes

Let me know if you need changes.`

	artifact := Parse(text)

	if !artifact.HasContent() {
		t.Fatal("expected YAML block to be extracted")
	}
	if !strings.HasPrefix(artifact.Content, "---") {
		t.Errorf("block should start at the --- marker, got %q", artifact.Content)
	}
	if strings.Contains(artifact.Content, "Let me know") {
		t.Errorf("block should stop at the first unindented line, got %q", artifact.Content)
	}
}

func TestParseYAMLSniffRejectsShortBlocks(t *testing.T) {
	artifact := Parse("---\nhosts: all\nnot yaml anymore")
	if artifact.HasContent() {
		t.Errorf("two-line block should be rejected, got %q", artifact.Content)
	}
}

func TestParseCommandSniff(t *testing.T) {
	text := "You can simply restart the service:\n\nsystemctl restart nginx\n\nThat should fix it."

	artifact := Parse(text)

	if !artifact.HasContent() {
		t.Fatal("expected synthesized playbook")
	}
	if !strings.Contains(artifact.Content, "shell: systemctl restart nginx") {
		t.Errorf("synthesized playbook should wrap the literal command, got:\n%s", artifact.Content)
	}
	if !strings.Contains(artifact.Content, "hosts: localhost") {
		t.Errorf("synthesized playbook should target localhost, got:\n%s", artifact.Content)
	}
	if artifact.Approach != ApproachShell {
		t.Errorf("Approach = %s, want shell", artifact.Approach)
	}
}

func TestParseNoArtifact(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"prose only", "The task is already complete, nothing to do."},
		{"empty", ""},
		{"whitespace", "   \n\t\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			artifact := Parse(tt.text)
			if artifact.HasContent() {
				t.Errorf("expected no content, got %q", artifact.Content)
			}
			if artifact.Approach != ApproachUnknown || artifact.Status != StatusUnknown {
				t.Errorf("expected unknown approach/status, got %s/%s", artifact.Approach, artifact.Status)
			}
		})
	}
}

func TestParseStatusNormalization(t *testing.T) {
	tests := []struct {
		raw  string
		want Status
	}{
		{"STATUS: APPROVED", StatusApproved},
		{"STATUS: [APPROVED]", StatusApproved},
		{"STATUS: NEEDS_FIXES", StatusNeedsFixes},
		{"STATUS: NEEDS FIXES", StatusNeedsFixes},
		{"STATUS: looks great", StatusUnknown},
	}

	for _, tt := range tests {
		if got := Parse(tt.raw).Status; got != tt.want {
			t.Errorf("Parse(%q).Status = %s, want %s", tt.raw, got, tt.want)
		}
	}
}

func TestParseApproachNormalization(t *testing.T) {
	tests := []struct {
		raw  string
		want Approach
	}{
		{"APPROACH: Ansible", ApproachAnsible},
		{"APPROACH: [Shell]", ApproachShell},
		{"APPROACH: MIXED", ApproachMixed},
		{"APPROACH: terraform", ApproachUnknown},
	}

	for _, tt := range tests {
		if got := Parse(tt.raw).Approach; got != tt.want {
			t.Errorf("Parse(%q).Approach = %s, want %s", tt.raw, got, tt.want)
		}
	}
}

func TestParseTaggedTakesPriorityOverSniffing(t *testing.T) {
	text := `APPROACH: Shell
FINAL_CODE:
apt-get update

---
- hosts: all
  tasks:
    - name: ignored
      ping:`

	artifact := Parse(text)
	if !strings.Contains(artifact.Content, "apt-get update") {
		t.Fatalf("tagged capture should win, got %q", artifact.Content)
	}
}

func TestParseIdempotent(t *testing.T) {
	text := `STATUS: NEEDS_FIXES
APPROACH: Mixed
FINAL_CODE:
- hosts: db
  tasks:
    - name: restart postgres
      service:
        name: postgresql
        state: restarted`

	first := Parse(text)
	second := Parse(text)
	if first != second {
		t.Errorf("Parse is not idempotent:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

func TestParseNotesFromResultTag(t *testing.T) {
	artifact := Parse("RESULT: all hosts patched")
	if artifact.Notes != "all hosts patched" {
		t.Errorf("Notes = %q, want %q", artifact.Notes, "all hosts patched")
	}
}
