// Package cli provides the command-line interface for bpfload.
package cli

import (
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"github.com/netbpf/bpfload/config"
	"github.com/netbpf/bpfload/logging"
)

// CLI is the root command structure for bpfload.
type CLI struct {
	Config string `name:"config" help:"Config file path." default:"${default_config_path}"`
	Log    string `name:"log" help:"Log spec (e.g., 'info,loader=debug')." env:"NETBPFLOAD_LOG"`

	Load     LoadCmd     `cmd:"" default:"withargs" help:"Load and pin all configured BPF objects."`
	Finalize FinalizeCmd `cmd:"" help:"Create the completion marker directory."`
	List     ListCmd     `cmd:"" help:"List pins under the pinning filesystem."`
	Status   StatusCmd   `cmd:"" help:"Show the most recent recorded run."`
}

// KongOptions returns the Kong configuration options for the CLI.
func KongOptions() []kong.Option {
	return []kong.Option{
		kong.Name("bpfload"),
		kong.Description("Boot-time BPF object loader."),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Vars{
			"default_config_path": config.DefaultConfigPath,
		},
	}
}

// LoadConfig loads the configuration from the config file path.
func (c *CLI) LoadConfig() (config.Config, error) {
	return config.Load(c.Config)
}

// Logger creates a logger honouring flag, environment and config file
// precedence.
func (c *CLI) Logger(cfg config.Config) (*slog.Logger, error) {
	format, err := logging.ParseFormat(cfg.Logging.Format)
	if err != nil {
		return nil, err
	}
	return logging.New(logging.Options{
		CLISpec:    c.Log,
		ConfigSpec: cfg.Logging.Level,
		Format:     format,
		Output:     os.Stderr,
	})
}
