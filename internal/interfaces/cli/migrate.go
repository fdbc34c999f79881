package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/turtacn/BizAtlas/internal/infrastructure/database/postgres"
	"github.com/turtacn/BizAtlas/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/BizAtlas/pkg/errors"
)

// schemaMigrator is the part of postgres.Migrator the commands drive.
type schemaMigrator interface {
	Up() error
	Down(steps int) error
	Status() (version uint, dirty bool, err error)
	Force(version int) error
}

var newMigrator = func(dsn string, logger logging.Logger) schemaMigrator {
	return postgres.NewMigrator(dsn, logger)
}

// NewMigrateCmd manages the embedded schema.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply, roll back or inspect schema migrations",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply every pending migration",
			Args:  cobra.NoArgs,
			RunE: withMigrator(func(cmd *cobra.Command, m schemaMigrator, _ []string) error {
				if err := m.Up(); err != nil {
					return err
				}
				return reportStatus(cmd, m)
			}),
		},
		&cobra.Command{
			Use:   "down [steps]",
			Short: "Roll back the given number of migrations (default 1)",
			Args:  cobra.MaximumNArgs(1),
			RunE: withMigrator(func(cmd *cobra.Command, m schemaMigrator, args []string) error {
				steps := 1
				if len(args) == 1 {
					n, err := strconv.Atoi(args[0])
					if err != nil || n <= 0 {
						return errors.Newf(errors.ErrCodeBadRequest, "steps must be a positive integer, got %q", args[0])
					}
					steps = n
				}
				if err := m.Down(steps); err != nil {
					return err
				}
				return reportStatus(cmd, m)
			}),
		},
		&cobra.Command{
			Use:   "status",
			Short: "Print the applied schema version",
			Args:  cobra.NoArgs,
			RunE: withMigrator(func(cmd *cobra.Command, m schemaMigrator, _ []string) error {
				return reportStatus(cmd, m)
			}),
		},
		&cobra.Command{
			Use:   "force <version>",
			Short: "Set the schema version without running migrations",
			Args:  cobra.ExactArgs(1),
			RunE: withMigrator(func(cmd *cobra.Command, m schemaMigrator, args []string) error {
				v, err := strconv.Atoi(args[0])
				if err != nil || v < -1 {
					return errors.Newf(errors.ErrCodeBadRequest, "version must be an integer >= -1, got %q", args[0])
				}
				if err := m.Force(v); err != nil {
					return err
				}
				return reportStatus(cmd, m)
			}),
		},
	)
	return cmd
}

func withMigrator(run func(cmd *cobra.Command, m schemaMigrator, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cliCtx, err := GetCLIContext(cmd)
		if err != nil {
			return err
		}
		cfg, err := cliCtx.Config()
		if err != nil {
			return err
		}
		return run(cmd, newMigrator(postgres.BuildDSN(cfg.Database), cliCtx.Logger), args)
	}
}

type migrationStatus struct {
	Version uint `json:"version"`
	Dirty   bool `json:"dirty"`
}

func (s migrationStatus) String() string {
	if s.Dirty {
		return fmt.Sprintf("schema version %d (dirty)", s.Version)
	}
	return fmt.Sprintf("schema version %d", s.Version)
}

func reportStatus(cmd *cobra.Command, m schemaMigrator) error {
	v, dirty, err := m.Status()
	if err != nil {
		return err
	}
	return PrintResult(cmd, migrationStatus{Version: v, Dirty: dirty})
}

//Personal.AI order the ending
