package main

import (
	"github.com/mohammad-safakhou/pharmaverse/config"
	srv "github.com/mohammad-safakhou/pharmaverse/internal/server"
	"github.com/spf13/cobra"
)

func migrateCMD(cfgPath *string) *cobra.Command {
	var migDir string
	var direction string
	var steps int

	var migrate = &cobra.Command{
		Use:   "migrate",
		Short: "Run report store migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dsn := getenv("DATABASE_URL", "")
			if dsn == "" {
				cfg := config.LoadConfig(*cfgPath)
				var err error
				if dsn, err = cfg.Postgres.DSN(); err != nil {
					return err
				}
			}
			return srv.Migrate(migDir, dsn, direction, steps)
		},
	}
	migrate.Flags().StringVar(&migDir, "dir", "file://migrations", "migrations source")
	migrate.Flags().StringVar(&direction, "direction", "up", "up or down")
	migrate.Flags().IntVar(&steps, "steps", 0, "number of steps (0 = all)")
	return migrate
}
