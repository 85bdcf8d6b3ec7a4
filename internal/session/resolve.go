package session

const DefaultSessionName = "main"

// Resolve determines the session name using precedence:
// 1. flagOverride (--session flag)
// 2. the configured default session
// 3. "main"
func Resolve(flagOverride, configured string) string {
	if flagOverride != "" {
		return flagOverride
	}
	if configured != "" {
		return configured
	}
	return DefaultSessionName
}
