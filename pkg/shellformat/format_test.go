package shellformat

import (
	"testing"
)

func TestCommand(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		args     []string
		expected string
	}{
		{
			name:     "bare command",
			path:     "claude",
			args:     nil,
			expected: "claude",
		},
		{
			name:     "plain args",
			path:     "/usr/local/bin/claude",
			args:     []string{"-p", "--output-format", "json"},
			expected: "/usr/local/bin/claude -p --output-format json",
		},
		{
			name:     "arg with spaces is quoted",
			path:     "gemini",
			args:     []string{"--prompt", "review the diff"},
			expected: "gemini --prompt 'review the diff'",
		},
		{
			name:     "arg with single quote",
			path:     "echo",
			args:     []string{"it's fine"},
			expected: `echo "it's fine"`,
		},
		{
			name:     "empty arg kept",
			path:     "tool",
			args:     []string{""},
			expected: "tool ''",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Command(tt.path, tt.args...)
			if got != tt.expected {
				t.Errorf("Command(%q, %q) = %q, expected %q", tt.path, tt.args, got, tt.expected)
			}
		})
	}
}

func TestEnv(t *testing.T) {
	got := Env([]string{"AGENTQ_RUN_ID=01J0", "NOTE=two words"})
	expected := "AGENTQ_RUN_ID=01J0 NOTE='two words'"
	if got != expected {
		t.Errorf("Env() = %q, expected %q", got, expected)
	}
}
