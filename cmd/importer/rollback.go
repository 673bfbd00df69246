package main

import (
	"encoding/json"
	"os/user"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/medimport/internal/application"
	"github.com/JonMunkholm/medimport/internal/config"
	"github.com/JonMunkholm/medimport/internal/core"
	"github.com/JonMunkholm/medimport/internal/logging"
	"github.com/JonMunkholm/medimport/internal/store"
)

func newRollbackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rollback SESSION_ID",
		Short: "Soft-delete the records created by a finished import",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var logCfg config.LoggingConfig
			var dbCfg config.DatabaseConfig
			for _, section := range []interface{}{&logCfg, &dbCfg} {
				if err := config.LoadSection(section); err != nil {
					return withCode(exitUsage, err)
				}
			}
			logger := logging.SetupWriter(cmd.ErrOrStderr(), logCfg.Level, logCfg.Format)

			ctx := cmd.Context()
			if u, err := user.Current(); err == nil {
				ctx = core.ContextWithActor(ctx, "cli:"+u.Username)
			}

			pool, err := application.OpenPool(ctx, dbCfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			result, err := store.New(pool).RollbackSession(ctx, args[0])
			if err != nil {
				return err
			}
			logger.Warn("import rolled back",
				"session_id", result.SessionID,
				"records_deleted", result.RecordsDeleted,
			)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}
}
