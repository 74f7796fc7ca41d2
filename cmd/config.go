package cmd

import (
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"handlescope/internal/bootstrap/config"
	"handlescope/internal/errs"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as TOML",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(cmd.Context(), cfgFile)
		if err != nil {
			return errs.Wrap(err, "load config")
		}
		out, err := renderConfig(cfg)
		if err != nil {
			return err
		}
		if _, err := cmd.OutOrStdout().Write(out); err != nil {
			return errs.Wrap(err, "write config output")
		}
		return nil
	},
}

type serverView struct {
	Addr            string `toml:"addr"`
	ShutdownTimeout string `toml:"shutdown_timeout"`
}

type configView struct {
	App        config.AppConfig        `toml:"app"`
	Log        config.LogConfig        `toml:"log"`
	Database   config.DatabaseConfig   `toml:"database"`
	UnitOfWork config.UnitOfWorkConfig `toml:"unitofwork"`
	Server     serverView              `toml:"server"`
}

func renderConfig(cfg config.Config) ([]byte, error) {
	out, err := toml.Marshal(configView{
		App:        cfg.App,
		Log:        cfg.Log,
		Database:   cfg.Database,
		UnitOfWork: cfg.UnitOfWork,
		Server: serverView{
			Addr:            cfg.Server.Addr,
			ShutdownTimeout: cfg.Server.ShutdownTimeout.String(),
		},
	})
	if err != nil {
		return nil, errs.Wrap(err, "marshal config")
	}
	return out, nil
}

func init() {
	rootCmd.AddCommand(configCmd)
}
