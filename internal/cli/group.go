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

func newGroupCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "group",
		Short: "Manage groups and their members",
	}
	cmd.AddCommand(
		newGroupFindCommand(),
		newGroupShowCommand(),
		newGroupAddCommand(),
		newGroupDelCommand(),
		newGroupMemberCommand("add-member", "Add members to a group", "added", (*repository.GroupRepository).AddMembers),
		newGroupMemberCommand("remove-member", "Remove members from a group", "removed", (*repository.GroupRepository).RemoveMembers),
		newGroupSetMembersCommand(),
	)
	return cmd
}

func newGroupFindCommand() *cobra.Command {
	var by string

	cmd := &cobra.Command{
		Use:   "find [CRITERIA]",
		Short: "Search for groups",
		Long: "Search for groups by free-text criteria, or by one attribute with --by.\n\nFinders: " +
			strings.Join(repository.GroupFinders(), ", "),
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
				result, err = ipa.Groups().Call(ctx, "findBy"+field, value)
			} else {
				result, err = ipa.Groups().Find(ctx, args, nil)
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		}),
	}

	cmd.Flags().StringVar(&by, "by", "", "search one attribute, e.g. --by user=bob")
	return cmd
}

func newGroupShowCommand() *cobra.Command {
	var membersOnly bool

	cmd := &cobra.Command{
		Use:   "show NAME",
		Short: "Show one group",
		Args:  cobra.ExactArgs(1),
		RunE: withSession(func(ctx context.Context, cmd *cobra.Command, ipa *freeipa.FreeIPA, args []string) error {
			entry, ok, err := ipa.Groups().Get(ctx, args[0], nil)
			if err != nil {
				return err
			}
			if !ok {
				return rpc.NewRPCError("group_show", &rpc.ErrorPayload{
					Name:    rpc.NotFoundErrorName,
					Message: args[0] + ": group not found",
				})
			}
			if membersOnly {
				return printJSON(cmd.OutOrStdout(), repository.MembersOf(entry))
			}
			return printJSON(cmd.OutOrStdout(), entry)
		}),
	}

	cmd.Flags().BoolVar(&membersOnly, "members", false, "print only the direct members")
	return cmd
}

func newGroupAddCommand() *cobra.Command {
	var (
		description string
		set         []string
	)

	cmd := &cobra.Command{
		Use:   "add NAME",
		Short: "Create a group",
		Args:  cobra.ExactArgs(1),
		RunE: withSession(func(ctx context.Context, cmd *cobra.Command, ipa *freeipa.FreeIPA, args []string) error {
			data, err := parseAssignments(set, false)
			if err != nil {
				return err
			}
			if description != "" {
				data["description"] = description
			}

			entry, err := ipa.Groups().Add(ctx, args[0], data, nil)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), entry)
		}),
	}

	cmd.Flags().StringVarP(&description, "desc", "d", "", "group description")
	cmd.Flags().StringArrayVar(&set, "set", nil, "any attribute as key=value, repeatable")
	return cmd
}

func newGroupDelCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "del NAME...",
		Short: "Delete groups",
		Args:  cobra.MinimumNArgs(1),
		RunE: withSession(func(ctx context.Context, cmd *cobra.Command, ipa *freeipa.FreeIPA, args []string) error {
			resp, err := ipa.Groups().Del(ctx, args, nil)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.Summary())
			return nil
		}),
	}
}

// memberFlags collects --users/--groups/--services.
type memberFlags struct {
	set repository.MemberSet
}

func (f *memberFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&f.set.Users, "users", nil, "user names, comma separated or repeated")
	cmd.Flags().StringSliceVar(&f.set.Groups, "groups", nil, "group names, comma separated or repeated")
	cmd.Flags().StringSliceVar(&f.set.Services, "services", nil, "service principals, comma separated or repeated")
}

type memberChange func(r *repository.GroupRepository, ctx context.Context, group string, members repository.MemberSet) (*repository.MembershipResult, error)

func newGroupMemberCommand(use, short, past string, change memberChange) *cobra.Command {
	var members memberFlags

	cmd := &cobra.Command{
		Use:   use + " NAME",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: withSession(func(ctx context.Context, cmd *cobra.Command, ipa *freeipa.FreeIPA, args []string) error {
			result, err := change(ipa.Groups(), ctx, args[0], members.set)
			if err != nil {
				return err
			}
			for _, failure := range result.Failed {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s %s\n", failure.Kind, failure)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Number of members %s: %d\n", past, result.Completed)
			return nil
		}),
	}

	members.register(cmd)
	return cmd
}

func newGroupSetMembersCommand() *cobra.Command {
	var members memberFlags

	cmd := &cobra.Command{
		Use:   "set-members NAME",
		Short: "Make the direct members of a group exactly the given list",
		Args:  cobra.ExactArgs(1),
		RunE: withSession(func(ctx context.Context, cmd *cobra.Command, ipa *freeipa.FreeIPA, args []string) error {
			delta, err := ipa.Groups().SetMembers(ctx, args[0], members.set)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), delta)
		}),
	}

	members.register(cmd)
	return cmd
}
