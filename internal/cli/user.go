package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	freeipa "github.com/isometry/go-freeipa"
	"github.com/isometry/go-freeipa/repository"
	"github.com/isometry/go-freeipa/rpc"
)

func newUserCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
	}
	cmd.AddCommand(
		newUserFindCommand(),
		newUserShowCommand(),
		newUserAddCommand(),
		newUserModCommand(),
		newUserDelCommand(),
	)
	return cmd
}

func newUserFindCommand() *cobra.Command {
	var by string

	cmd := &cobra.Command{
		Use:   "find [CRITERIA]",
		Short: "Search for users",
		Long: "Search for users by free-text criteria, or by one attribute with --by.\n\nFinders: " +
			strings.Join(repository.UserFinders(), ", "),
		Args: cobra.MaximumNArgs(1),
		RunE: withSession(func(ctx context.Context, cmd *cobra.Command, ipa *freeipa.FreeIPA, args []string) error {
			var (
				result *repository.FindResult
				err    error
			)
			if by != "" {
				field, value, ok := strings.Cut(by, "=")
				if !ok {
					return &rpc.ConfigurationError{Field: "by", Message: fmt.Sprintf("expected field=value, got %q", by)}
				}
				result, err = ipa.Users().Call(ctx, "findBy"+field, value)
			} else {
				result, err = ipa.Users().Find(ctx, args, nil)
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		}),
	}

	cmd.Flags().StringVar(&by, "by", "", "search one attribute, e.g. --by in_group=admins")
	return cmd
}

func newUserShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show UID",
		Short: "Show one user",
		Args:  cobra.ExactArgs(1),
		RunE: withSession(func(ctx context.Context, cmd *cobra.Command, ipa *freeipa.FreeIPA, args []string) error {
			entry, ok, err := ipa.Users().Get(ctx, args[0], nil)
			if err != nil {
				return err
			}
			if !ok {
				return rpc.NewRPCError("user_show", &rpc.ErrorPayload{
					Name:    rpc.NotFoundErrorName,
					Message: args[0] + ": user not found",
				})
			}
			return printJSON(cmd.OutOrStdout(), entry)
		}),
	}
}

// userAttributeFlags maps the common user_add/user_mod flags to attributes.
type userAttributeFlags struct {
	first, last, email string
	set                []string
}

func (f *userAttributeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.first, "first", "", "given name")
	cmd.Flags().StringVar(&f.last, "last", "", "surname")
	cmd.Flags().StringVar(&f.email, "email", "", "mail address")
	cmd.Flags().StringArrayVar(&f.set, "set", nil, "any attribute as key=value, repeatable")
}

func (f *userAttributeFlags) attributes() (map[string]any, error) {
	data, err := parseAssignments(f.set, false)
	if err != nil {
		return nil, err
	}
	for attr, value := range map[string]string{"givenname": f.first, "sn": f.last, "mail": f.email} {
		if value != "" {
			data[attr] = value
		}
	}
	return data, nil
}

func newUserAddCommand() *cobra.Command {
	var attrs userAttributeFlags

	cmd := &cobra.Command{
		Use:   "add UID",
		Short: "Create a user",
		Args:  cobra.ExactArgs(1),
		RunE: withSession(func(ctx context.Context, cmd *cobra.Command, ipa *freeipa.FreeIPA, args []string) error {
			data, err := attrs.attributes()
			if err != nil {
				return err
			}
			data["uid"] = args[0]

			entry, err := ipa.Users().Add(ctx, data, nil, nil)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), entry)
		}),
	}

	attrs.register(cmd)
	return cmd
}

func newUserModCommand() *cobra.Command {
	var attrs userAttributeFlags

	cmd := &cobra.Command{
		Use:   "mod UID",
		Short: "Modify a user",
		Args:  cobra.ExactArgs(1),
		RunE: withSession(func(ctx context.Context, cmd *cobra.Command, ipa *freeipa.FreeIPA, args []string) error {
			data, err := attrs.attributes()
			if err != nil {
				return err
			}
			if len(data) == 0 {
				return &rpc.ConfigurationError{Field: "set", Message: "nothing to modify"}
			}

			entry, err := ipa.Users().Mod(ctx, args[0], data, nil, nil)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), entry)
		}),
	}

	attrs.register(cmd)
	return cmd
}

func newUserDelCommand() *cobra.Command {
	var preserve bool

	cmd := &cobra.Command{
		Use:   "del UID...",
		Short: "Delete users",
		Args:  cobra.MinimumNArgs(1),
		RunE: withSession(func(ctx context.Context, cmd *cobra.Command, ipa *freeipa.FreeIPA, args []string) error {
			var opts repository.Options
			if preserve {
				opts = repository.Options{"preserve": true}
			}

			resp, err := ipa.Users().Del(ctx, args, opts)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.Summary())
			return nil
		}),
	}

	cmd.Flags().BoolVar(&preserve, "preserve", false, "move to preserved users instead of deleting")
	return cmd
}
