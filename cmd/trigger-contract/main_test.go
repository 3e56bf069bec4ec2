package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixtureDir = "../../internal/contract/testdata"

func execute(args ...string) (stdout, stderr string, err error) {
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--no-color"}, args...))
	err = cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestVerify_ShippedFixture(t *testing.T) {
	stdout, stderr, err := execute("verify", filepath.Join(fixtureDir, "trigger_terminal_cases.json"))
	require.NoError(t, err)
	assert.Equal(t, "19 cases passed\n", stdout)
	assert.Empty(t, stderr)
}

func TestVerify_ReportsMismatches(t *testing.T) {
	stdout, stderr, err := execute("verify", filepath.Join(fixtureDir, "mismatch_cases.yaml"))
	assert.ErrorIs(t, err, errMismatch)
	assert.Empty(t, stdout)
	assert.Equal(t,
		"[FAIL] journey marked open: expected false, got true\n"+
			"[FAIL] decision flow_shown marked closed: expected true, got false\n"+
			"2 of 3 cases failed\n",
		stderr)
}

func TestVerify_BadFixture(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"name":`), 0o600))

	_, _, err := execute("verify", path)
	require.Error(t, err)
	assert.NotErrorIs(t, err, errMismatch)

	_, _, err = execute("verify", filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestClassify(t *testing.T) {
	cases := []struct {
		args []string
		want string
	}{
		{[]string{"--kind", "decision", "--decision", "allowed_immediate"}, "decision/allowed_immediate: terminal\n"},
		{[]string{"--kind", "decision", "--decision", "flow_shown"}, "decision/flow_shown: in progress\n"},
		{[]string{"--kind", "journey"}, "journey: terminal\n"},
		{[]string{"--kind", "paywall_closed"}, "paywall_closed: in progress\n"},
		{[]string{"--bridge", "kind=entitlement&entitlement_kind=pending&is_terminal=1"}, "entitlement/pending: in progress\n"},
	}
	for _, tc := range cases {
		stdout, _, err := execute(append([]string{"classify"}, tc.args...)...)
		require.NoError(t, err, tc.args)
		assert.Equal(t, tc.want, stdout, tc.args)
	}
}

func TestClassify_Errors(t *testing.T) {
	_, _, err := execute("classify")
	assert.Error(t, err)

	_, _, err = execute("classify", "--kind", "decision")
	assert.Error(t, err)

	_, _, err = execute("classify", "--bridge", "kind=entitlement")
	assert.Error(t, err)
}
