package chat

import "strings"

// ToolLabel derives a human-readable activity label from a tool name.
// Used only for the status line shown in the UI, never for control flow.
func ToolLabel(tool string) string {
	t := strings.ToLower(tool)
	switch {
	case containsAny(t, "read", "glob", "grep", "search", "ls"):
		return "reading files"
	case containsAny(t, "write", "edit", "patch"):
		return "writing files"
	case containsAny(t, "bash", "run", "shell", "exec"):
		return "executing commands"
	case containsAny(t, "task", "agent"):
		return "delegating"
	case t == "":
		return "working"
	}
	return "running " + tool
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
