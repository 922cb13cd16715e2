package cmd

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"agentgate/internal/config"
	"agentgate/internal/gateway"
	"agentgate/internal/poller"
)

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{
			name: "nil-ish general error",
			err:  errors.New("something broke"),
			want: ExitCodeError,
		},
		{
			name: "transient control plane error",
			err:  &gateway.TransientError{Op: "CreateGateway", Err: errors.New("throttled")},
			want: ExitCodeTransient,
		},
		{
			name: "wrapped transient error",
			err:  fmt.Errorf("ensure gateway: %w", &gateway.TransientError{Op: "GetGateway", Err: errors.New("eof")}),
			want: ExitCodeTransient,
		},
		{
			name: "control plane validation error",
			err:  &gateway.ValidationError{Op: "CreateTarget", Message: "bad endpoint"},
			want: ExitCodeValidation,
		},
		{
			name: "config validation errors",
			err:  config.ValidationErrors{{Field: "gateway.name", Message: "is required"}},
			want: ExitCodeValidation,
		},
		{
			name: "wait timeout",
			err:  &poller.TimeoutError{Ref: poller.Ref{Kind: gateway.KindGateway, Name: "demo"}, Timeout: 5 * time.Minute},
			want: ExitCodeTimeout,
		},
		{
			name: "resource failed",
			err:  &gateway.ResourceFailedError{Kind: gateway.KindGateway, Name: "demo"},
			want: ExitCodeResourceFailed,
		},
		{
			name: "wrapped resource failed",
			err:  fmt.Errorf("up: %w", &gateway.ResourceFailedError{Kind: gateway.KindTarget, Name: "backend"}),
			want: ExitCodeResourceFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := getExitCode(tt.err); got != tt.want {
				t.Errorf("getExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRootCmdHasSubcommands(t *testing.T) {
	expected := []string{"up", "down", "status", "token", "verify", "serve", "version", "self-update"}

	registered := make(map[string]bool)
	for _, sub := range rootCmd.Commands() {
		registered[sub.Name()] = true
	}

	for _, name := range expected {
		if !registered[name] {
			t.Errorf("expected subcommand %q to be registered", name)
		}
	}
}
