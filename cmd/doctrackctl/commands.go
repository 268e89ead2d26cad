package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/access"
	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/app"
	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/directory"
	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/documents"
	"github.com/Hunyo07/doc-track-gerona-lgu-sub000/internal/workflow"
)

// actionFlags are the inputs shared by perform and bulk.
type actionFlags struct {
	as       string
	to       string
	assignTo string
	status   string
	reason   string
	remarks  string
}

func (f *actionFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.as, "as", "", "acting user id or email (required)")
	cmd.Flags().StringVar(&f.to, "to", "", "destination department id (forward)")
	cmd.Flags().StringVar(&f.assignTo, "assign-to", "", "assignee user id (assign)")
	cmd.Flags().StringVar(&f.status, "status", "", "target status (update_status)")
	cmd.Flags().StringVar(&f.reason, "reason", "", "reason (reject, hold)")
	cmd.Flags().StringVar(&f.remarks, "remarks", "", "free-text remarks")
	_ = cmd.MarkFlagRequired("as")
}

func (f *actionFlags) params() (workflow.Params, error) {
	p := workflow.Params{
		TargetStatus: documents.Status(f.status),
		Reason:       f.reason,
		Remarks:      f.remarks,
	}
	if f.to != "" {
		id, err := uuid.Parse(f.to)
		if err != nil {
			return p, fmt.Errorf("invalid --to: %w", err)
		}
		p.ToDepartmentID = &id
	}
	if f.assignTo != "" {
		id, err := uuid.Parse(f.assignTo)
		if err != nil {
			return p, fmt.Errorf("invalid --assign-to: %w", err)
		}
		p.AssignTo = &id
	}
	return p, nil
}

// resolveActor accepts a user id or an email address.
func resolveActor(ctx context.Context, a *app.App, ref string) (access.Actor, error) {
	user, err := lookupUser(ctx, a.Directory, ref)
	if err != nil {
		return access.Actor{}, err
	}
	if !user.IsActive {
		return access.Actor{}, fmt.Errorf("user %s is inactive", user.Email)
	}
	return user.Actor(), nil
}

func lookupUser(ctx context.Context, users directory.Repository, ref string) (*directory.User, error) {
	if id, err := uuid.Parse(ref); err == nil {
		return users.GetUser(ctx, id)
	}
	return users.GetUserByEmail(ctx, strings.TrimSpace(ref))
}

func parseAction(raw string) (workflow.Action, error) {
	action, ok := workflow.ParseAction(raw)
	if !ok {
		return "", fmt.Errorf("unknown action %q", raw)
	}
	return action, nil
}

func performCmd(g *globals) *cobra.Command {
	flags := &actionFlags{}
	cmd := &cobra.Command{
		Use:   "perform <action> <document-id>",
		Short: "Run one workflow action on a document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			action, err := parseAction(args[0])
			if err != nil {
				return err
			}
			id, err := uuid.Parse(args[1])
			if err != nil {
				return fmt.Errorf("invalid document id: %w", err)
			}
			params, err := flags.params()
			if err != nil {
				return err
			}

			return g.withApp(cmd, func(ctx context.Context, a *app.App) error {
				actor, err := resolveActor(ctx, a, flags.as)
				if err != nil {
					return err
				}
				doc, err := a.Engine.Perform(ctx, action, id, actor, params)
				if err != nil {
					return fmt.Errorf("%s failed (%s): %w", action, workflow.KindOf(err), err)
				}
				return printJSON(cmd, doc)
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func bulkCmd(g *globals) *cobra.Command {
	flags := &actionFlags{}
	cmd := &cobra.Command{
		Use:   "bulk <action> <document-id>...",
		Short: "Run an action on several documents, each in its own transaction",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			action, err := parseAction(args[0])
			if err != nil {
				return err
			}
			ids := make([]uuid.UUID, 0, len(args)-1)
			for _, raw := range args[1:] {
				id, err := uuid.Parse(raw)
				if err != nil {
					return fmt.Errorf("invalid document id %q: %w", raw, err)
				}
				ids = append(ids, id)
			}
			params, err := flags.params()
			if err != nil {
				return err
			}

			return g.withApp(cmd, func(ctx context.Context, a *app.App) error {
				actor, err := resolveActor(ctx, a, flags.as)
				if err != nil {
					return err
				}
				result, err := a.Engine.BulkPerform(ctx, action, ids, actor, params)
				if err != nil {
					return err
				}
				return printJSON(cmd, result)
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func statusCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "status <document-id>",
		Short: "Show a document's status, progress and available actions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid document id: %w", err)
			}
			return g.withApp(cmd, func(ctx context.Context, a *app.App) error {
				view, err := a.Engine.GetStatus(ctx, id)
				if err != nil {
					return err
				}
				return printJSON(cmd, view)
			})
		},
	}
}

func tokenCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "token <user-id|email>",
		Short: "Issue a bearer token for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withApp(cmd, func(ctx context.Context, a *app.App) error {
				user, err := lookupUser(ctx, a.Directory, args[0])
				if err != nil {
					return err
				}
				token, err := a.Signer.Sign(user.ID, user.Email)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), token)
				return nil
			})
		},
	}
}

func departmentCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "department",
		Short: "Manage departments",
	}

	var code, name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a department",
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withApp(cmd, func(ctx context.Context, a *app.App) error {
				dept := &directory.Department{Code: strings.ToUpper(code), Name: name}
				if err := a.Directory.CreateDepartment(ctx, dept); err != nil {
					return err
				}
				return printJSON(cmd, dept)
			})
		},
	}
	create.Flags().StringVar(&code, "code", "", "short office code")
	create.Flags().StringVar(&name, "name", "", "display name")
	_ = create.MarkFlagRequired("code")
	_ = create.MarkFlagRequired("name")

	list := &cobra.Command{
		Use:   "list",
		Short: "List departments",
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withApp(cmd, func(ctx context.Context, a *app.App) error {
				depts, err := a.Directory.ListDepartments(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd, depts)
			})
		},
	}

	cmd.AddCommand(create, list)
	return cmd
}

func userCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
	}

	var (
		name, email, department, clearance string
		roles                              []string
		admin                              bool
	)
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			level := documents.SecurityLevel(clearance)
			if !level.IsValid() {
				return fmt.Errorf("unknown clearance %q", clearance)
			}
			user := &directory.User{
				Name:      name,
				Email:     strings.ToLower(strings.TrimSpace(email)),
				Roles:     roles,
				Clearance: level,
				IsAdmin:   admin,
				IsActive:  true,
			}
			if department != "" {
				id, err := uuid.Parse(department)
				if err != nil {
					return fmt.Errorf("invalid --department: %w", err)
				}
				user.DepartmentID = &id
			}

			return g.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if user.DepartmentID != nil {
					if _, err := a.Directory.GetDepartment(ctx, *user.DepartmentID); err != nil {
						return err
					}
				}
				if err := a.Directory.CreateUser(ctx, user); err != nil {
					return err
				}
				return printJSON(cmd, user)
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "full name")
	create.Flags().StringVar(&email, "email", "", "email address")
	create.Flags().StringVar(&department, "department", "", "department id")
	create.Flags().StringVar(&clearance, "clearance", string(documents.SecurityInternal), "clearance level")
	create.Flags().StringSliceVar(&roles, "role", nil, "domain role (procurement, finance, department_head); repeatable")
	create.Flags().BoolVar(&admin, "admin", false, "grant administrator rights")
	_ = create.MarkFlagRequired("name")
	_ = create.MarkFlagRequired("email")

	cmd.AddCommand(create)
	return cmd
}
