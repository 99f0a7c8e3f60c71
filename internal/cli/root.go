// Package cli implements the ipactl command tree.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	freeipa "github.com/isometry/go-freeipa"
	"github.com/isometry/go-freeipa/rpc"
)

// NewRootCommand builds the ipactl command tree.
func NewRootCommand(version string) *cobra.Command {
	root := &cobra.Command{
		Use:           "ipactl",
		Short:         "Manage FreeIPA users and groups over JSON-RPC",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cmd.SetContext(initializeLogging(cmd.Context(), cmd.CommandPath(), version))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	addConnectionFlags(root.PersistentFlags())

	root.AddCommand(
		newPingCommand(),
		newWhoamiCommand(),
		newUserCommand(),
		newGroupCommand(),
		newCallCommand(),
	)
	return root
}

// Execute runs ipactl and returns the process exit code.
func Execute(ctx context.Context, version string, args []string, stdout, stderr io.Writer) int {
	root := NewRootCommand(version)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "Error: %s\n", err)

		var authErr *rpc.AuthenticationError
		if errors.As(err, &authErr) {
			if hint := authErr.Hint(); hint != "" && hint != authErr.Message {
				fmt.Fprintf(stderr, "Hint: %s\n", hint)
			}
		}
		return 1
	}
	return 0
}

// session resolves configuration for cmd and logs in.
func session(cmd *cobra.Command) (*freeipa.FreeIPA, error) {
	cfg, err := LoadConfig(cmd.Flags())
	if err != nil {
		return nil, err
	}
	return cfg.Connect(cmd.Context())
}

// withSession runs fn against an authenticated session and logs out afterwards.
func withSession(fn func(ctx context.Context, cmd *cobra.Command, ipa *freeipa.FreeIPA, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ipa, err := session(cmd)
		if err != nil {
			return err
		}
		defer ipa.Close()

		return fn(cmd.Context(), cmd, ipa, args)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseAssignments turns repeated key=value flags into command options.
// A repeated key becomes a list. With decodeJSON, values that parse as JSON
// keep their JSON type.
func parseAssignments(pairs []string, decodeJSON bool) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	repeated := make(map[string]bool)
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, &rpc.ConfigurationError{Field: key, Message: fmt.Sprintf("expected key=value, got %q", pair)}
		}

		var value any = raw
		if decodeJSON {
			var decoded any
			if err := json.Unmarshal([]byte(raw), &decoded); err == nil {
				value = decoded
			}
		}

		prev, exists := out[key]
		switch {
		case !exists:
			out[key] = value
		case repeated[key]:
			out[key] = append(prev.([]any), value)
		default:
			out[key] = []any{prev, value}
			repeated[key] = true
		}
	}
	return out, nil
}
