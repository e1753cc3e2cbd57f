package cli

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/talentsphere/securecore/internal/config"
)

// rootOptions carries state shared by all subcommands. Each command tree
// gets its own viper instance so flag bindings never leak between runs.
type rootOptions struct {
	cfgFile string
	v       *viper.Viper
}

func (o *rootOptions) load() (*config.Config, error) {
	return config.Load(o.v, o.cfgFile)
}

// Execute creates the root command tree and runs it.
func Execute(version, commit, date string) error {
	return newRootCmd(version, commit, date).Execute()
}

func newRootCmd(version, commit, date string) *cobra.Command {
	opts := &rootOptions{v: viper.New()}

	cmd := &cobra.Command{
		Use:     "securecore",
		Short:   "Secure data-access and authorization core",
		Version: version,
		Long: `securecore: validated SQL building, a bounded connection pool and
token-based authentication with role, permission and ownership checks.

Configuration comes from securecore.yaml (./ or $HOME/.securecore) and
SECURECORE_* environment variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.cfgFile, "config", "", "config file (default is ./securecore.yaml)")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newVersionCmd(version, commit, date))
	cmd.AddCommand(newDBCmd(opts))
	cmd.AddCommand(newTokenCmd(opts))
	cmd.AddCommand(newConfigCmd(opts))

	return cmd
}
