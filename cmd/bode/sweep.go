package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/bode.report/internal/api"
	"github.com/banshee-data/bode.report/internal/bode"
	"github.com/banshee-data/bode.report/internal/config"
	"github.com/banshee-data/bode.report/internal/feeltech"
	"github.com/banshee-data/bode.report/internal/monitoring"
	"github.com/banshee-data/bode.report/internal/report"
	"github.com/banshee-data/bode.report/internal/rigol"
	"github.com/banshee-data/bode.report/internal/serialmux"
	"github.com/banshee-data/bode.report/internal/simulator"
	"github.com/banshee-data/bode.report/internal/timeutil"
	"github.com/banshee-data/bode.report/internal/version"
)

type sweepOptions struct {
	input      config.SweepInput
	scope      string
	generator  string
	channel    int
	timeout    time.Duration
	configPath string
	out        string
	listen     string
	dev        bool
	devCorner  float64
}

func newSweepCmd() *cobra.Command {
	opts := &sweepOptions{}
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run a frequency response sweep and write the report",
		Example: `  bode sweep --start 10 --end 100000 --steps 30 --spacing log --vpp 2 \
      --scope tcp://192.168.1.50:5555 --generator /dev/ttyUSB0
  bode sweep --dev --out /tmp/bode`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runSweep(ctx, cmd.OutOrStdout(), opts)
		},
	}
	addPlanFlags(cmd, &opts.input)
	f := cmd.Flags()
	f.StringVar(&opts.scope, "scope", "", "Scope address: tcp://host[:port], usbtmc:///dev/usbtmc0, serial:///dev/ttyUSB1 or prologix:///dev/ttyUSB1?addr=N")
	f.StringVar(&opts.generator, "generator", "", "Generator serial port")
	f.IntVar(&opts.channel, "channel", 1, "Generator output channel (1 or 2)")
	f.DurationVar(&opts.timeout, "timeout", 2*time.Second, "Scope reply timeout")
	f.StringVar(&opts.configPath, "config", "", "Tuning config file (.json, .yaml or .yml)")
	f.StringVar(&opts.out, "out", "runs", "Directory the run directory is created in")
	f.StringVar(&opts.listen, "listen", "", "Serve sweep progress on this address, e.g. :8080")
	f.BoolVar(&opts.dev, "dev", false, "Sweep a simulated low-pass filter instead of real instruments")
	f.Float64Var(&opts.devCorner, "dev-corner", 1000, "Corner frequency of the simulated filter, Hz")
	return cmd
}

// instruments is what a sweep runs against.
type instruments struct {
	scope     bode.AcquisitionDevice
	keeper    bode.SettingsKeeper
	generator bode.StimulusDevice
	// mux is the generator's serial link, nil in dev mode.
	mux     serialmux.SerialMuxInterface
	clock   timeutil.Clock
	closers []io.Closer
}

func (in *instruments) Close() {
	for i := len(in.closers) - 1; i >= 0; i-- {
		if err := in.closers[i].Close(); err != nil {
			monitoring.Logf("close instrument: %v", err)
		}
	}
}

func openInstruments(ctx context.Context, opts *sweepOptions) (*instruments, error) {
	if opts.dev {
		monitoring.Logf("dev mode: simulated low-pass filter, corner %g Hz", opts.devCorner)
		bench := simulator.NewBench(simulator.LowPass{Corner: opts.devCorner, Gain: 1})
		scope := bench.Scope()
		// Simulated instruments need no real settling time.
		return &instruments{
			scope:     scope,
			keeper:    scope,
			generator: bench.Generator(),
			clock:     timeutil.NewMockClock(time.Now()),
		}, nil
	}

	if opts.scope == "" || opts.generator == "" {
		return nil, errors.New("--scope and --generator are required unless --dev is set")
	}
	scope, err := rigol.Open(ctx, opts.scope, opts.timeout)
	if err != nil {
		return nil, err
	}
	gen, err := feeltech.Open(ctx, serialmux.RealPortFactory, opts.generator, serialmux.PortOptions{}, opts.channel)
	if err != nil {
		scope.Close()
		return nil, err
	}
	return &instruments{
		scope:     scope,
		keeper:    scope,
		generator: gen,
		mux:       gen.Mux(),
		clock:     timeutil.RealClock{},
		closers:   []io.Closer{scope, gen},
	}, nil
}

func loadTuning(path string) (*config.TuningConfig, error) {
	if path == "" {
		return config.DefaultTuningConfig(), nil
	}
	cfg, err := config.LoadTuningConfig(path)
	if err != nil {
		return nil, err
	}
	monitoring.Logf("loaded tuning config from %s", path)
	return cfg, nil
}

func runSweep(ctx context.Context, stdout io.Writer, opts *sweepOptions) error {
	// Nothing is opened before the request is known to be valid.
	plan, err := opts.input.Plan()
	if err != nil {
		return err
	}
	tuning, err := loadTuning(opts.configPath)
	if err != nil {
		return err
	}
	monitoring.Logf("%s", version.String())

	inst, err := openInstruments(ctx, opts)
	if err != nil {
		return err
	}
	defer inst.Close()

	tracker := api.NewTracker(plan, opts.input.Vpp)
	sweeper := &bode.Sweeper{
		Plan:       plan,
		Amplitude:  opts.input.Vpp,
		Config:     tuning.Loop(),
		Scope:      inst.scope,
		Generator:  inst.generator,
		Keeper:     inst.keeper,
		Clock:      inst.clock,
		OnProgress: tracker.Observe,
	}

	g, gctx := errgroup.WithContext(ctx)
	serverCtx, stopServer := context.WithCancel(gctx)
	defer stopServer()

	var res *bode.SweepResult
	g.Go(func() error {
		defer stopServer()
		var runErr error
		res, runErr = sweeper.Run(gctx)
		tracker.Finish(res)
		return runErr
	})
	if opts.listen != "" {
		server := api.NewServer(tracker, inst.mux)
		g.Go(func() error {
			return server.ListenAndServe(serverCtx, opts.listen)
		})
	}
	runErr := g.Wait()

	if res == nil || len(res.Points) == 0 {
		return runErr
	}
	dir, err := report.WriteAll(opts.out, res)
	if err != nil {
		return errors.Join(runErr, err)
	}
	fmt.Fprintf(stdout, "%d points, %d trigger errors, %d low amplitude, %d anomalies\n",
		len(res.Points),
		res.Count(bode.FlagTriggerError),
		res.Count(bode.FlagLowAmplitudeUnreliablePhase),
		res.Count(bode.FlagAnomaly))
	fmt.Fprintln(stdout, dir)
	return runErr
}
