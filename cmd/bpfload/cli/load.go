package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/netbpf/bpfload"
	"github.com/netbpf/bpfload/bpffs"
	"github.com/netbpf/bpfload/kernel"
	"github.com/netbpf/bpfload/loader"
	"github.com/netbpf/bpfload/store"
	"github.com/netbpf/bpfload/sysinfo"
)

// LoadCmd runs the full boot-time load: mount check, object sweep,
// map provisioning, program loading, pinning, canary and completion
// marker.
type LoadCmd struct {
	PinRoot       string `name:"pin-root" help:"Override the pinning filesystem root."`
	SkipMount     bool   `name:"skip-mount" help:"Fail instead of mounting when no bpffs is present."`
	NoStore       bool   `name:"no-store" help:"Do not record the run in the manifest database."`
	LoaderVersion uint32 `name:"loader-version" help:"Override the configured loader version."`
}

// Run executes the load command.
func (c *LoadCmd) Run(cli *CLI) error {
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

	if c.SkipMount {
		mounted, err := bpffs.IsMounted(cfg.Filesystem.MountInfo, pinRoot)
		if err != nil {
			return err
		}
		if !mounted {
			return fmt.Errorf("no bpf filesystem mounted at %s", pinRoot)
		}
	} else if err := bpffs.EnsureMounted(cfg.Filesystem.MountInfo, pinRoot); err != nil {
		return fmt.Errorf("ensure bpffs at %s: %w", pinRoot, err)
	}

	loaderVersion := cfg.Loader.Version
	if c.LoaderVersion != 0 {
		loaderVersion = c.LoaderVersion
	}

	sysctx, err := sysinfo.Collect(loaderVersion)
	if err != nil {
		return err
	}
	log.Info("starting load",
		"loader_version", sysctx.LoaderVersion,
		"kernel", sysctx.Kernel,
		"arch", sysctx.DescribeArch(),
		"pin_root", pinRoot)

	l, err := loader.New(kernel.New(log), log, sysctx, pinRoot)
	if err != nil {
		return err
	}

	locations := make([]loader.Location, 0, len(cfg.Locations))
	for _, loc := range cfg.Locations {
		locations = append(locations, loader.Location{Dir: loc.Dir, Prefix: loc.Prefix})
	}

	started := time.Now()
	results, runErr := l.Run(locations)
	finished := time.Now()

	if !c.NoStore && cfg.Store.Path != "" {
		if err := recordRun(cfg.Store.Path, sysctx, started, finished, results, runErr == nil); err != nil {
			// The manifest is diagnostic; never fail the boot
			// path over it.
			log.Warn("failed to record run manifest", "error", err)
		}
	}

	if runErr != nil {
		return runErr
	}
	log.Info("load complete", "objects", len(results), "elapsed", finished.Sub(started))
	return nil
}

func recordRun(dbPath string, sysctx bpfload.Context, started, finished time.Time, results []loader.ObjectResult, succeeded bool) error {
	ctx := context.Background()
	s, err := store.Open(ctx, dbPath, nil)
	if err != nil {
		return err
	}
	defer s.Close()

	_, err = s.RecordRun(ctx, store.Run{
		StartedAt:     started,
		FinishedAt:    finished,
		LoaderVersion: sysctx.LoaderVersion,
		Kernel:        sysctx.Kernel,
		Succeeded:     succeeded,
	}, results)
	return err
}
