package cliadapter

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ktagawa/agentq/internal/runrecord"
)

func TestParseOutcome(t *testing.T) {
	cases := []struct {
		name      string
		stdout    string
		want      runrecord.Outcome
		wantFound bool
	}{
		{
			name:      "continue directive",
			stdout:    "did some work\nRESULT: continue\n",
			want:      runrecord.OutcomeContinue,
			wantFound: true,
		},
		{
			name:      "comment only directive",
			stdout:    "looked around\nRESULT: comment-only",
			want:      runrecord.OutcomeCommentOnly,
			wantFound: true,
		},
		{
			name:      "needs review directive",
			stdout:    "something is off\nRESULT: needs-review\n\n",
			want:      runrecord.OutcomeNeedsReview,
			wantFound: true,
		},
		{
			name:      "underscore verdicts accepted",
			stdout:    "RESULT: needs_review",
			want:      runrecord.OutcomeNeedsReview,
			wantFound: true,
		},
		{
			name:      "mixed case verdict",
			stdout:    "RESULT: Comment-Only",
			want:      runrecord.OutcomeCommentOnly,
			wantFound: true,
		},
		{
			name:      "no directive defaults to continue",
			stdout:    "just regular output\nmore output",
			want:      runrecord.OutcomeContinue,
			wantFound: false,
		},
		{
			name:      "directive not on last line is ignored",
			stdout:    "RESULT: needs-review\nfurther output after",
			want:      runrecord.OutcomeContinue,
			wantFound: false,
		},
		{
			name:      "unknown verdict ignored",
			stdout:    "RESULT: maybe",
			want:      runrecord.OutcomeContinue,
			wantFound: false,
		},
		{
			name:      "empty output",
			stdout:    "",
			want:      runrecord.OutcomeContinue,
			wantFound: false,
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, found := ParseOutcome(c.stdout)
			assert.Equal(t, c.want, got)
			assert.Equal(t, c.wantFound, found)
		})
	}
}

func TestAdapterInvocations(t *testing.T) {
	claude := NewClaudeAdapter("")
	inv := claude.Invocation("do the thing")
	assert.Equal(t, "claude", inv.Path)
	assert.Equal(t, "do the thing", inv.Stdin)

	codex := NewCodexAdapter("/opt/bin/codex")
	inv = codex.Invocation("fix it")
	assert.Equal(t, "/opt/bin/codex", inv.Path)
	assert.Equal(t, []string{"exec", "-"}, inv.Args)
	assert.Equal(t, "fix it", inv.Stdin)

	opencode := NewOpencodeAdapter("")
	inv = opencode.Invocation("review")
	assert.Equal(t, []string{"run", "review"}, inv.Args)
}
