package hooks

import "regexp"

// MatchesEvent checks if a matcher pattern matches the given value.
// Empty or "*" matches everything. Matcher is regex-anchored at both ends.
func MatchesEvent(matcher, matchValue string) bool {
	switch matcher {
	case "", "*":
		return true
	default:
		if re, err := regexp.Compile("^(" + matcher + ")$"); err == nil {
			return re.MatchString(matchValue)
		}
		return matcher == matchValue
	}
}

// GetMatchValue extracts the value PreToolUse hooks match against: the tool name.
func GetMatchValue(input HookInput) string {
	return input.ToolName
}
