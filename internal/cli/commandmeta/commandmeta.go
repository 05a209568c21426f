package commandmeta

import "strings"

type OutputPolicy uint8

const (
	OutputPolicyStructured OutputPolicy = iota
	OutputPolicyTextOnly
	OutputPolicyYAMLDefaultTextOrYAML
)

// EmitsExecutionStatusPath reports the commands that end with an OK or ERROR
// status line on stderr.
func EmitsExecutionStatusPath(path string) bool {
	switch strings.TrimSpace(path) {
	case "remotable save",
		"remotable destroy",
		"remotable sync":
		return true
	default:
		return false
	}
}

func OutputPolicyForPath(path string) OutputPolicy {
	switch strings.TrimSpace(path) {
	case "remotable config show":
		return OutputPolicyYAMLDefaultTextOrYAML
	case "remotable config check",
		"remotable config path":
		return OutputPolicyTextOnly
	default:
		return OutputPolicyStructured
	}
}
