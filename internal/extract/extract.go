// Package extract recovers structured automation artifacts from free-form
// reviewer text. The requested output template is not guaranteed, so the
// parser always terminates with either an artifact or an explicitly empty
// one, never an error.
package extract

import (
	"fmt"
	"strings"
)

// Approach is the automation style the reviewer settled on.
type Approach string

const (
	ApproachAnsible Approach = "ansible"
	ApproachShell   Approach = "shell"
	ApproachMixed   Approach = "mixed"
	ApproachUnknown Approach = "unknown"
)

// Status is the reviewer's verdict.
type Status string

const (
	StatusApproved   Status = "approved"
	StatusNeedsFixes Status = "needs_fixes"
	StatusUnknown    Status = "unknown"
)

// Artifact is the structured result of parsing reviewer output. An empty
// Content means nothing executable was found and the caller should surface
// the raw text instead.
type Artifact struct {
	Approach Approach
	Status   Status
	Content  string
	Notes    string
}

// HasContent reports whether the artifact carries executable content.
func (a Artifact) HasContent() bool {
	return a.Content != ""
}

// parseState names the states of the line parser. FINAL_CODE capture has no
// end marker: once open it runs to the end of the text.
type parseState int

const (
	stateScanning parseState = iota
	stateCapturingFinalCode
)

const (
	tagStatus    = "STATUS:"
	tagApproach  = "APPROACH:"
	tagFinalCode = "FINAL_CODE:"
	tagResult    = "RESULT:"
	tagOutput    = "OUTPUT:"
)

// commandIndicators are package-manager and service-manager verbs that mark
// a line as an executable shell command for the fallback pass.
var commandIndicators = []string{
	"apt install",
	"apt-get install",
	"yum install",
	"dnf install",
	"systemctl",
	"service ",
}

// Parse extracts an Artifact from reviewer text. Passes run in priority
// order: tagged lines, then a YAML-shaped block, then a bare command line.
// Parse is a pure function of its input.
func Parse(text string) Artifact {
	artifact := Artifact{
		Approach: ApproachUnknown,
		Status:   StatusUnknown,
	}
	if strings.TrimSpace(text) == "" {
		return artifact
	}

	lines := strings.Split(text, "\n")

	state := stateScanning
	var captured []string

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)

		if state == stateCapturingFinalCode {
			if trimmed != "" {
				captured = append(captured, line)
			}
			continue
		}

		switch {
		case strings.HasPrefix(trimmed, tagStatus):
			artifact.Status = normalizeStatus(strings.TrimPrefix(trimmed, tagStatus))
		case strings.HasPrefix(trimmed, tagApproach):
			artifact.Approach = normalizeApproach(strings.TrimPrefix(trimmed, tagApproach))
		case strings.HasPrefix(trimmed, tagResult):
			artifact.Notes = strings.TrimSpace(strings.TrimPrefix(trimmed, tagResult))
		case strings.HasPrefix(trimmed, tagOutput):
			artifact.Notes = strings.TrimSpace(strings.TrimPrefix(trimmed, tagOutput))
		case strings.HasPrefix(trimmed, tagFinalCode):
			state = stateCapturingFinalCode
			// Inline content on the tag line itself counts as the first line.
			if rest := strings.TrimSpace(strings.TrimPrefix(trimmed, tagFinalCode)); rest != "" {
				captured = append(captured, rest)
			}
		}
	}

	if len(captured) > 0 {
		artifact.Content = strings.Join(captured, "\n")
		return artifact
	}

	if block := sniffYAML(lines); block != "" {
		artifact.Content = block
		return artifact
	}

	if cmd := sniffCommand(lines); cmd != "" {
		artifact.Content = synthesizeShellPlaybook(cmd)
		if artifact.Approach == ApproachUnknown {
			artifact.Approach = ApproachShell
		}
		return artifact
	}

	return artifact
}

// sniffYAML looks for a configuration-management block: a start marker
// followed by a greedy run of indented lines, list items and blanks. The
// block only counts if it is more than two lines long.
func sniffYAML(lines []string) string {
	start := -1
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "---") ||
			strings.HasPrefix(trimmed, "hosts:") ||
			strings.HasPrefix(trimmed, "tasks:") {
			start = i
			break
		}
	}
	if start < 0 {
		return ""
	}

	block := []string{lines[start]}
	for _, line := range lines[start+1:] {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			block = append(block, line)
		case strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t"):
			block = append(block, line)
		case strings.HasPrefix(trimmed, "- "):
			block = append(block, line)
		default:
			// First unindented non-blank line ends the block.
			if len(block) > 2 {
				return strings.TrimRight(strings.Join(block, "\n"), " \n")
			}
			return ""
		}
	}

	if len(block) > 2 {
		return strings.TrimRight(strings.Join(block, "\n"), " \n")
	}
	return ""
}

// sniffCommand returns the first line containing a known command indicator.
func sniffCommand(lines []string) string {
	for _, line := range lines {
		lower := strings.ToLower(line)
		for _, indicator := range commandIndicators {
			if strings.Contains(lower, indicator) {
				return strings.TrimSpace(line)
			}
		}
	}
	return ""
}

// synthesizeShellPlaybook wraps a single command in a minimal one-task
// playbook so the executor only ever sees playbook documents.
func synthesizeShellPlaybook(command string) string {
	return fmt.Sprintf(`---
- hosts: localhost
  become: yes
  tasks:
    - name: Execute command
      shell: %s
`, command)
}

func normalizeStatus(raw string) Status {
	cleaned := strings.ToUpper(strings.Trim(strings.TrimSpace(raw), "[]"))
	cleaned = strings.ReplaceAll(cleaned, " ", "_")
	switch cleaned {
	case "APPROVED":
		return StatusApproved
	case "NEEDS_FIXES":
		return StatusNeedsFixes
	default:
		return StatusUnknown
	}
}

func normalizeApproach(raw string) Approach {
	cleaned := strings.ToLower(strings.Trim(strings.TrimSpace(raw), "[]"))
	switch cleaned {
	case "ansible":
		return ApproachAnsible
	case "shell":
		return ApproachShell
	case "mixed":
		return ApproachMixed
	default:
		return ApproachUnknown
	}
}
