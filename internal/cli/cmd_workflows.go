package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/randalmurphal/flowd/internal/db"
	"github.com/randalmurphal/flowd/internal/workflow"
)

// newWorkflowsCmd groups workflow subcommands.
func newWorkflowsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workflows",
		Short: "Inspect and move workflows",
	}
	cmd.AddCommand(newWorkflowsListCmd())
	cmd.AddCommand(newWorkflowsExportCmd())
	cmd.AddCommand(newWorkflowsImportCmd())
	return cmd
}

func newWorkflowsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List workflows in a workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspaceID, _ := cmd.Flags().GetString("workspace")
			if workspaceID == "" {
				return fmt.Errorf("--workspace is required")
			}
			return withDatabase(func(d *db.DB) error {
				workflows, err := d.ListWorkflows(workspaceID)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tNAME\tDEPLOYED\tBLOCKS")
				for _, wf := range workflows {
					blocks := 0
					if wf.State != nil {
						blocks = len(wf.State.Blocks)
					}
					fmt.Fprintf(w, "%s\t%s\t%v\t%d\n", wf.ID, wf.Name, wf.IsDeployed, blocks)
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().String("workspace", "", "workspace ID")
	return cmd
}

// workflowExport is the YAML document written by export and read by import.
type workflowExport struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	Color       string `yaml:"color,omitempty"`
	StateJSON   string `yaml:"state"`
}

func newWorkflowsExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <workflow-id>",
		Short: "Export a workflow as YAML to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(func(d *db.DB) error {
				wf, err := d.GetWorkflow(args[0])
				if err != nil {
					return err
				}
				if wf == nil {
					return fmt.Errorf("workflow %s not found", args[0])
				}
				state, err := json.Marshal(wf.State)
				if err != nil {
					return err
				}
				doc := workflowExport{
					Name:        wf.Name,
					Description: wf.Description,
					Color:       wf.Color,
					StateJSON:   string(state),
				}
				out, err := yaml.Marshal(doc)
				if err != nil {
					return err
				}
				_, err = os.Stdout.Write(out)
				return err
			})
		},
	}
	return cmd
}

func newWorkflowsImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Import a workflow from a YAML export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			workspaceID, _ := cmd.Flags().GetString("workspace")
			if workspaceID == "" {
				return fmt.Errorf("--workspace is required")
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var doc workflowExport
			if err := yaml.Unmarshal(data, &doc); err != nil {
				return fmt.Errorf("parse export: %w", err)
			}

			var state workflow.State
			if err := json.Unmarshal([]byte(doc.StateJSON), &state); err != nil {
				return fmt.Errorf("parse state: %w", err)
			}
			workflow.Normalize(&state)
			if err := workflow.Validate(&state); err != nil {
				return fmt.Errorf("imported workflow is invalid: %w", err)
			}

			return withDatabase(func(d *db.DB) error {
				wf := &db.Workflow{
					ID:          uuid.New().String(),
					WorkspaceID: workspaceID,
					Name:        doc.Name,
					Description: doc.Description,
					Color:       doc.Color,
					State:       &state,
				}
				if err := d.SaveWorkflow(wf); err != nil {
					return err
				}
				fmt.Printf("Imported %q as %s\n", wf.Name, wf.ID)
				return nil
			})
		},
	}
	cmd.Flags().String("workspace", "", "destination workspace ID")
	return cmd
}
