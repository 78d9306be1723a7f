package pipeline

import (
	"fmt"
	"strings"
)

func plannerPrompt(task string, past []PastSolution) string {
	var b strings.Builder

	fmt.Fprintf(&b, `You are an expert DevOps engineer specializing in infrastructure automation.

Analyze this infrastructure task: %q

Requirements:
1. Break down the task into specific, actionable steps
2. Identify what systems/services will be affected
3. Determine the best automation approach (Ansible playbook vs shell commands)
4. Consider security implications and safety measures
5. Plan for verification and rollback if needed
`, task)

	if len(past) > maxPastSolutions {
		past = past[:maxPastSolutions]
	}
	if len(past) > 0 {
		b.WriteString("\nRelevant past successful approaches:\n")
		for _, p := range past {
			fmt.Fprintf(&b, "Task: %s\nSolution: %s\n\n", p.Task, truncate(p.Content, maxContextRunes))
		}
	}

	b.WriteString("\nProvide a detailed execution plan with numbered steps and the chosen approach.")
	return b.String()
}

func generatorPrompt(task, plan string) string {
	return fmt.Sprintf(`You are a master of infrastructure automation with deep expertise in Ansible,
Linux system administration, and DevOps best practices.

Based on the following execution plan, generate the actual automation code for: %q

Execution plan:
%s

Requirements:
1. If Ansible is appropriate, create a complete, idempotent playbook
2. If shell commands are better, provide safe, tested commands
3. Include error handling and verification steps
4. Follow security best practices
5. Make it production-ready

Format your response as:
APPROACH: [Ansible/Shell/Mixed]

PLAYBOOK/COMMANDS:
[Your generated code here]

VERIFICATION:
[How to verify success]`, task, plan)
}

func reviewerPrompt(task, code string) string {
	return fmt.Sprintf(`You are a security-conscious infrastructure reviewer who ensures that all
automation is safe, follows best practices, and won't cause system damage.

Review the generated automation for the task: %q

Generated automation:
%s

Check for:
1. Security vulnerabilities or risky operations
2. Idempotency and reliability
3. Error handling and rollback capabilities
4. Best practices compliance
5. Potential for system damage

If issues found, provide specific fixes. If approved, confirm it's ready for execution.

Format your response as:
STATUS: [APPROVED/NEEDS_FIXES]

ISSUES: [List any problems found]

FIXES: [Specific corrections needed]

FINAL_CODE: [The corrected/approved code]`, task, code)
}
