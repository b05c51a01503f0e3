package main

import (
	"bytes"
	"testing"
)

func TestRootCommand_RequiresTarget(t *testing.T) {
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{})

	if err := cmd.Execute(); err == nil {
		t.Error("expected error when no target is provided")
	}
}

func TestRootCommand_DryRunSkipsProbing(t *testing.T) {
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"example.com", "--dry-run"})

	if err := cmd.Execute(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRootCommand_RejectsInvalidProtocol(t *testing.T) {
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"example.com", "--protocol", "sctp", "--dry-run"})

	if err := cmd.Execute(); err == nil {
		t.Error("expected error for an unsupported protocol")
	}
}

func TestRootCommand_RejectsBothIPVersionFlags(t *testing.T) {
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"example.com", "-4", "-6", "--dry-run"})

	if err := cmd.Execute(); err == nil {
		t.Error("expected error when both -4 and -6 are set")
	}
}

func TestMCPSubcommand_Registered(t *testing.T) {
	cmd := NewRootCmd()
	found := false
	for _, c := range cmd.Commands() {
		if c.Name() == "mcp" {
			found = true
		}
	}
	if !found {
		t.Error("expected an 'mcp' subcommand to be registered")
	}
}

func TestProtocolFromFlag_DefaultsToICMP(t *testing.T) {
	if got := protocolFromFlag("nonsense"); got != protocolFromFlag("icmp") {
		t.Errorf("protocolFromFlag(nonsense) = %v, want icmp default", got)
	}
}

func TestIsInteractiveStdout_FalseForNonFileWriter(t *testing.T) {
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)

	if isInteractiveStdout(cmd) {
		t.Error("expected a bytes.Buffer stdout to be reported as non-interactive")
	}
}
