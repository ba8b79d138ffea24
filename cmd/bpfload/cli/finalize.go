package cli

import (
	"github.com/netbpf/bpfload/bpffs"
	"github.com/netbpf/bpfload/loader"
)

// FinalizeCmd creates the completion marker on its own, for recovery
// paths where the load already happened but the marker is missing.
type FinalizeCmd struct {
	PinRoot string `name:"pin-root" help:"Override the pinning filesystem root."`
}

// Run executes the finalize command.
func (c *FinalizeCmd) Run(cli *CLI) error {
	cfg, err := cli.LoadConfig()
	if err != nil {
		return err
	}
	pinRoot := cfg.Filesystem.PinRoot
	if c.PinRoot != "" {
		pinRoot = c.PinRoot
	}
	return bpffs.CreatePinSubdir(pinRoot, loader.DoneMarker)
}
