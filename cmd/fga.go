/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/mautops/results-gin/internal/auth"
	"github.com/mautops/results-gin/internal/config"
	"github.com/mautops/results-gin/internal/directory"
	"github.com/spf13/cobra"
)

// fgaCmd represents the fga command
var fgaCmd = &cobra.Command{
	Use:   "fga",
	Short: "Manage OpenFGA relations",
	Long: `Manage the OpenFGA authorization model and relation tuples.
Requires openfga.store_id unless noted otherwise.`,
}

var fgaModelCmd = &cobra.Command{
	Use:   "model",
	Short: "Print the authorization model",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), auth.GetPermissionModel())
		return err
	},
}

var fgaSyncRosterCmd = &cobra.Command{
	Use:   "sync-roster",
	Short: "Write roster relations to OpenFGA",
	Long: `Write unit lecturers, department approvers and student self relations
from the YAML roster to OpenFGA. Existing relations are skipped, so the
command can be re-run after every roster change.
With --dry-run the relations are printed and nothing is written.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rosterPath, _ := cmd.Flags().GetString("roster")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		cfg, err := LoadConfig(cmd)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if rosterPath == "" {
			rosterPath = cfg.Directory.FilePath
		}
		fileDir, err := directory.LoadFileDirectory(rosterPath)
		if err != nil {
			return fmt.Errorf("failed to load roster: %w", err)
		}

		if dryRun {
			for _, t := range auth.RosterTuples(fileDir.Roster()) {
				fmt.Fprintln(cmd.OutOrStdout(), t)
			}
			return nil
		}

		client, err := newFGAClient(cfg)
		if err != nil {
			return err
		}
		report, err := auth.SyncRoster(cmd.Context(), client, fileDir.Roster())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "written: %d, existing: %d\n", report.Written, report.Existing)
		return nil
	},
}

var fgaRevokeCmd = &cobra.Command{
	Use:   "revoke",
	Short: "Delete a relation tuple",
	Long: `Delete one relation tuple, for example when a lecturer leaves a unit:

  results-gin fga revoke --user lec-cs --relation lecturer --object unit:CS101`,
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")
		relation, _ := cmd.Flags().GetString("relation")
		object, _ := cmd.Flags().GetString("object")

		objectType, objectID, ok := strings.Cut(object, ":")
		if !ok || objectType == "" || objectID == "" {
			return fmt.Errorf("invalid --object %q, use type:id", object)
		}
		if userID == "" || relation == "" {
			return fmt.Errorf("--user and --relation are required")
		}

		cfg, err := LoadConfig(cmd)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		client, err := newFGAClient(cfg)
		if err != nil {
			return err
		}
		if err := client.DeleteRelation(cmd.Context(), userID, relation, objectType, objectID); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "revoked %s\n", auth.RelationTuple{
			UserID: userID, Relation: relation, ObjectType: objectType, ObjectID: objectID,
		})
		return nil
	},
}

func newFGAClient(cfg *config.Config) (*auth.OpenFGAClient, error) {
	if cfg.OpenFGA.StoreID == "" {
		return nil, fmt.Errorf("openfga.store_id is not configured")
	}
	// 默认重试 3 次，初始间隔 1 秒，指数退避
	client, err := auth.NewOpenFGAClientWithRetry(cfg.OpenFGA.APIURL, cfg.OpenFGA.StoreID, cfg.OpenFGA.ModelID, 3, time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenFGA client: %w", err)
	}
	return client, nil
}

func init() {
	rootCmd.AddCommand(fgaCmd)
	fgaCmd.AddCommand(fgaModelCmd, fgaSyncRosterCmd, fgaRevokeCmd)

	fgaSyncRosterCmd.Flags().String("roster", "", "Roster YAML file (default: directory.file_path)")
	fgaSyncRosterCmd.Flags().Bool("dry-run", false, "Print relations without writing")

	fgaRevokeCmd.Flags().String("user", "", "User ID")
	fgaRevokeCmd.Flags().String("relation", "", "Relation, e.g. lecturer")
	fgaRevokeCmd.Flags().String("object", "", "Object as type:id, e.g. unit:CS101")
}
