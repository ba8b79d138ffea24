package cli

import (
	"context"
	"fmt"

	"github.com/netbpf/bpfload"
	"github.com/netbpf/bpfload/bpffs"
)

// ListCmd lists pins found under the pinning filesystem, across the
// root and every known pin subdirectory.
type ListCmd struct {
	PinRoot string `name:"pin-root" help:"Override the pinning filesystem root."`
	Stale   bool   `name:"stale" help:"Only show leftover tmp_ pins from interrupted publishes."`
}

// Run executes the list command.
func (c *ListCmd) Run(cli *CLI) error {
	cfg, err := cli.LoadConfig()
	if err != nil {
		return err
	}
	log, err := cli.Logger(cfg)
	if err != nil {
		return err
	}

	pinRoot := cfg.Filesystem.PinRoot
	if c.PinRoot != "" {
		pinRoot = c.PinRoot
	}

	scanner := bpffs.NewScanner(pinRoot, bpfload.PinSubdirs()...).
		WithOnMalformed(func(path string, err error) {
			log.Warn("unparseable pin name", "path", path, "error", err)
		})

	pins, err := scanner.Scan(context.Background())
	if err != nil {
		return err
	}

	shown := 0
	for _, pin := range pins {
		if c.Stale && !pin.Stale {
			continue
		}
		object := pin.Object
		if object == "" {
			object = "(shared)"
		}
		marker := ""
		if pin.Stale {
			marker = "  STALE"
		}
		fmt.Printf("%-4s  %-20s  %-32s  %s%s\n", pin.Kind, object, pin.Node, pin.Path, marker)
		shown++
	}
	if shown == 0 {
		fmt.Println("No pins found.")
	}
	return nil
}
