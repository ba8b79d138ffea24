// bpfload loads precompiled BPF object files at boot and pins the
// resulting maps and programs on the BPF filesystem.
package main

import (
	"github.com/alecthomas/kong"

	"github.com/netbpf/bpfload/cmd/bpfload/cli"
)

func main() {
	var c cli.CLI
	ctx := kong.Parse(&c, cli.KongOptions()...)
	ctx.FatalIfErrorf(ctx.Run(&c))
}
