package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	freeipa "github.com/isometry/go-freeipa"
	"github.com/isometry/go-freeipa/rpc"
)

func newPingCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check the server answers and print its version",
		Args:  cobra.NoArgs,
		RunE: withSession(func(ctx context.Context, cmd *cobra.Command, ipa *freeipa.FreeIPA, _ []string) error {
			summary, err := ipa.Ping(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), summary)
			return nil
		}),
	}
}

func newWhoamiCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the entry the session is bound to",
		Args:  cobra.NoArgs,
		RunE: withSession(func(ctx context.Context, cmd *cobra.Command, ipa *freeipa.FreeIPA, _ []string) error {
			id, err := ipa.Whoami(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), id)
		}),
	}
}

func newCallCommand() *cobra.Command {
	var (
		opts    []string
		version string
		raw     bool
	)

	cmd := &cobra.Command{
		Use:   "call METHOD [ARG...]",
		Short: "Send any JSON-RPC command and print the response",
		Example: `  ipactl call hostgroup_show webservers --opt all=true
  ipactl call user_find --opt sizelimit=5 --opt in_group=admins`,
		Args: cobra.MinimumNArgs(1),
		RunE: withSession(func(ctx context.Context, cmd *cobra.Command, ipa *freeipa.FreeIPA, args []string) error {
			options, err := parseAssignments(opts, true)
			if err != nil {
				return err
			}

			body := rpc.NewRequestBody(args[0],
				rpc.WithArgs(args[1:]...),
				rpc.WithOpts(options),
				rpc.WithVersion(version),
			)

			send := ipa.SendRequest
			if raw {
				send = ipa.SendRequestRaw
			}
			resp, err := send(ctx, body)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		}),
	}

	cmd.Flags().StringArrayVarP(&opts, "opt", "o", nil, "command option as key=value; JSON values keep their type")
	cmd.Flags().StringVar(&version, "method-version", "", "method version suffix, e.g. 1 for user_show/1")
	cmd.Flags().BoolVar(&raw, "raw", false, "print server errors as part of the response instead of failing")
	return cmd
}
