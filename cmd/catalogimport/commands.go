package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/catalogimport/internal/catalog"
	"github.com/JonMunkholm/catalogimport/internal/core"
)

func newParseCmd(c *cli) *cobra.Command {
	var scope, entityType string

	cmd := &cobra.Command{
		Use:   "parse <file>",
		Short: "Upload a CSV or ZIP file into a new draft session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			return c.withService(cmd, func(ctx context.Context, svc *core.Service) error {
				sess, err := svc.Parse(ctx, c.actor(), core.ParseRequest{
					Scope:      scope,
					EntityType: catalog.EntityType(entityType),
					FileName:   filepath.Base(args[0]),
					Data:       data,
				})
				if err != nil {
					return err
				}
				return c.printSession(cmd.OutOrStdout(), sess)
			})
		},
	}

	cmd.Flags().StringVar(&scope, "scope", "", "Catalog scope to import into (required)")
	cmd.Flags().StringVar(&entityType, "type", "", "Entity type: category, item, modifier_group, modifier, size (required)")
	_ = cmd.MarkFlagRequired("scope")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func newEditCmd(c *cli) *cobra.Command {
	var (
		patchFile string
		sets      []string
		deletes   []string
	)

	cmd := &cobra.Command{
		Use:   "edit <session-id>",
		Short: "Change, add or remove draft rows and re-validate",
		Long: `Edit a draft. Changes come from a JSON patch file ("-" for stdin) of the form
{"updates":[{"row_id":"r2","fields":{"category":"Food"}}],"inserts":[{"name":"Tea"}],"deletes":["r3"]}
and/or the --set and --delete shortcuts.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			patch, err := buildPatch(patchFile, cmd.InOrStdin(), sets, deletes)
			if err != nil {
				return err
			}
			return c.withService(cmd, func(ctx context.Context, svc *core.Service) error {
				sess, err := svc.EditDraft(ctx, c.actor(), args[0], patch)
				if err != nil {
					return err
				}
				return c.printSession(cmd.OutOrStdout(), sess)
			})
		},
	}

	cmd.Flags().StringVar(&patchFile, "patch", "", "JSON patch file, or - for stdin")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "Set a field: <row-id>.<field>=<value> (repeatable)")
	cmd.Flags().StringArrayVar(&deletes, "delete", nil, "Remove a row by id (repeatable)")
	return cmd
}

// buildPatch merges a patch file with --set and --delete shortcuts.
func buildPatch(patchFile string, stdin io.Reader, sets, deletes []string) (core.DraftPatch, error) {
	var patch core.DraftPatch
	if patchFile != "" {
		var r io.Reader = stdin
		if patchFile != "-" {
			f, err := os.Open(patchFile)
			if err != nil {
				return patch, fmt.Errorf("open patch: %w", err)
			}
			defer f.Close()
			r = f
		}
		dec := json.NewDecoder(r)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&patch); err != nil {
			return patch, fmt.Errorf("decode patch: %w", err)
		}
	}

	byRow := make(map[string]int)
	for i, u := range patch.Updates {
		byRow[u.RowID] = i
	}
	for _, s := range sets {
		target, value, ok := strings.Cut(s, "=")
		rowID, field, ok2 := strings.Cut(target, ".")
		if !ok || !ok2 || rowID == "" || field == "" {
			return patch, fmt.Errorf("--set %q: want <row-id>.<field>=<value>", s)
		}
		i, seen := byRow[rowID]
		if !seen {
			patch.Updates = append(patch.Updates, core.RowUpdate{RowID: rowID, Fields: map[string]string{}})
			i = len(patch.Updates) - 1
			byRow[rowID] = i
		}
		if patch.Updates[i].Fields == nil {
			patch.Updates[i].Fields = map[string]string{}
		}
		patch.Updates[i].Fields[field] = value
	}
	patch.Deletes = append(patch.Deletes, deletes...)

	if patch.Empty() {
		return patch, fmt.Errorf("nothing to change: pass --patch, --set or --delete")
	}
	return patch, nil
}

func newValidateCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <session-id>",
		Short: "Re-run validation; a clean draft becomes validated",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withService(cmd, func(ctx context.Context, svc *core.Service) error {
				sess, err := svc.Validate(ctx, c.actor(), args[0])
				if err != nil {
					return err
				}
				return c.printSession(cmd.OutOrStdout(), sess)
			})
		},
	}
}

func newCommitCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "commit <session-id>",
		Short: "Write a validated session to the catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withService(cmd, func(ctx context.Context, svc *core.Service) error {
				sess, err := svc.Commit(ctx, c.actor(), args[0])
				if sess != nil {
					if perr := c.printSession(cmd.OutOrStdout(), sess); perr != nil && err == nil {
						err = perr
					}
				}
				if err != nil {
					return err
				}
				if sess.Status() != core.StatusConfirmed {
					return fmt.Errorf("commit did not complete; session %s is %s", sess.ID, sess.Status())
				}
				return nil
			})
		},
	}
}

func newDiscardCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "discard <session-id>",
		Short: "Abandon a draft or validated session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withService(cmd, func(ctx context.Context, svc *core.Service) error {
				if err := svc.Discard(ctx, c.actor(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "session %s discarded\n", args[0])
				return nil
			})
		},
	}
}

func newShowCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "show <session-id>",
		Short: "Print a session and its issues",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withService(cmd, func(ctx context.Context, svc *core.Service) error {
				sess, err := svc.Get(ctx, c.actor(), args[0])
				if err != nil {
					return err
				}
				return c.printSession(cmd.OutOrStdout(), sess)
			})
		},
	}
}

func newListCmd(c *cli) *cobra.Command {
	var (
		f        core.SessionFilter
		entity   string
		statuses []string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List import sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f.EntityType = catalog.EntityType(entity)
			f.Statuses = nil
			for _, s := range statuses {
				f.Statuses = append(f.Statuses, core.Status(s))
			}
			return c.withService(cmd, func(ctx context.Context, svc *core.Service) error {
				sessions, err := svc.List(ctx, c.actor(), f)
				if err != nil {
					return err
				}
				if c.opts.json {
					return writeJSON(cmd.OutOrStdout(), sessions)
				}
				return printSessionTable(cmd.OutOrStdout(), sessions)
			})
		},
	}

	cmd.Flags().StringVar(&f.Scope, "scope", "", "Only this scope")
	cmd.Flags().StringVar(&f.Owner, "owner", "", "Only this owner (admin)")
	cmd.Flags().StringVar(&entity, "type", "", "Only this entity type")
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Only these statuses (comma-separated)")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "Maximum sessions to show")
	return cmd
}

func newReportCmd(c *cli) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "report <session-id>",
		Short: "Download the issue report as CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withService(cmd, func(ctx context.Context, svc *core.Service) error {
				data, err := svc.ExportReport(ctx, c.actor(), args[0])
				if err != nil {
					return err
				}
				return writeOutput(cmd.OutOrStdout(), output, data)
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to this file instead of stdout")
	return cmd
}

func newSourceCmd(c *cli) *cobra.Command {
	var expiry time.Duration

	cmd := &cobra.Command{
		Use:   "source <session-id>",
		Short: "Print a time-limited download link for the archived upload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withService(cmd, func(ctx context.Context, svc *core.Service) error {
				url, err := svc.SourceURL(ctx, c.actor(), args[0], expiry)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), url)
				return nil
			})
		},
	}

	cmd.Flags().DurationVar(&expiry, "expiry", 15*time.Minute, "Link lifetime")
	return cmd
}

func newSchemasCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schemas",
		Short: "Describe the importable entity types",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printSchemas(cmd.OutOrStdout(), core.Schemas())
		},
	}
}

func newTemplateCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "template <entity-type>",
		Short: "Write an empty CSV template for an entity type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := core.Template(catalog.EntityType(args[0]))
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), output, data)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to this file instead of stdout")
	return cmd
}

func writeOutput(stdout io.Writer, path string, data []byte) error {
	if path == "" {
		_, err := stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Fprintf(stdout, "wrote %s (%d bytes)\n", path, len(data))
	return nil
}
