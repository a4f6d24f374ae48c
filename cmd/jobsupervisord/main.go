package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/jessevdk/go-flags"
	"go.uber.org/zap"

	"jobsupervisor/internal/completion"
	"jobsupervisor/internal/config"
	"jobsupervisor/internal/eventbus"
	"jobsupervisor/internal/execrunner"
	"jobsupervisor/internal/filetransfer"
	"jobsupervisor/internal/job"
	"jobsupervisor/internal/launcher"
	"jobsupervisor/internal/logging"
	"jobsupervisor/internal/mail"
	"jobsupervisor/internal/metrics"
	"jobsupervisor/internal/monitor"
	"jobsupervisor/internal/persistence"
	"jobsupervisor/internal/processcheck"
	"jobsupervisor/internal/search"
)

// For command-line args.
var cmdflags struct {
	ConfigFile string `short:"c" long:"config" description:"Path to a YAML/JSON/TOML configuration file" default:""`
	IODevID    string `short:"d" long:"iodevice-id" description:"Linux IO device ID (<MAJOR>:<MINOR>) for cgroup-based job resource limits; omit to disable cgroup limiting" default:""`
	RunCommand string `short:"r" long:"run" description:"If set, launch this command as a demo job under supervision instead of idling" default:""`
}

func main() {
	if _, err := flags.Parse(&cmdflags); err != nil {
		if flags.WroteHelp(err) {
			return
		}
		log.Fatalf("failed parsing flags: %v", err)
	}

	cfg, err := config.Load(cmdflags.ConfigFile)
	if err != nil {
		log.Fatalf("failed loading configuration: %v", err)
	}

	zlog, err := logging.New(cfg.LoggingLevel, cfg.LoggingProfile)
	if err != nil {
		log.Fatalf("failed constructing logger: %v", err)
	}
	defer zlog.Sync()

	termctx, endIt := signal.NotifyContext(context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT,
		syscall.SIGHUP,
	)
	defer endIt()

	if err := run(termctx, cfg, zlog); err != nil {
		zlog.Error("jobsupervisord exited with error", zap.Error(err))
	}
	zlog.Info("exiting")
}

func run(ctx context.Context, cfg config.Config, zlog *zap.Logger) error {
	sink := metrics.NewSink(metrics.AllNames()...)

	store := persistence.NewFileStore(cfg.PersistenceRoot)
	searchSvc := search.NewInMemory(store)

	bus := eventbus.New()
	runner := execrunner.New(cfg.ExecRunnerRatePerSec)

	xfer, err := filetransfer.New(ctx, cfg.ArchiveRegion, cfg.ArchiveEndpoint, cfg.ArchiveForcePathStyle)
	if err != nil {
		return err
	}

	mailer := mail.New(cfg.SMTPAddr, cfg.SMTPFrom, nil)

	ccfg := completion.Config{
		BaseWorkingDir:            cfg.BaseWorkingDir,
		DeleteArchiveFileEnabled:  cfg.DeleteArchiveFileEnabled,
		DeleteDependenciesEnabled: cfg.DeleteDependenciesEnabled,
		RunAsUserEnabled:          cfg.RunAsUserEnabled,
	}
	handler := completion.New(ccfg, searchSvc, store, runner, xfer, mailer, sink, zlog)

	bus.SubscribeJobFinished(func(evt eventbus.JobFinished) {
		handler.Handle(ctx, evt)
	})

	scheduler := monitor.NewScheduler(cfg.Workers, processcheck.New(), bus, sink, zlog)

	if cmdflags.RunCommand != "" {
		if err := launchDemoJob(ctx, cfg, scheduler, searchSvc, store, zlog); err != nil {
			zlog.Error("failed launching demo job", zap.Error(err))
		}
	}

	<-ctx.Done()
	return nil
}

// launchDemoJob wires the reference launcher to the monitor scheduler
// and the search/persistence services, so a single command-line run can
// exercise launch, polling, and completion handling end to end.
func launchDemoJob(ctx context.Context, cfg config.Config, scheduler *monitor.Scheduler, searchSvc *search.InMemory, store *persistence.FileStore, zlog *zap.Logger) error {
	var limiter *launcher.ResourceLimiter
	if cmdflags.IODevID != "" {
		l, err := launcher.NewResourceLimiter(cmdflags.IODevID)
		if err != nil {
			zlog.Warn("cgroup resource limiting unavailable, continuing without it", zap.Error(err))
		} else {
			limiter = l
		}
	}

	lnch := launcher.New(cfg.BaseWorkingDir, limiter, zlog)

	exec, err := lnch.Launch("", cmdflags.RunCommand, nil, 1000, 0, cfg.StdoutMaxBytes, cfg.StderrMaxBytes)
	if err != nil {
		return fmt.Errorf("launch: %w", err)
	}

	searchSvc.RegisterExecution(exec)
	searchSvc.RegisterRequest(job.Request{JobID: exec.JobID})
	if err := store.Put(job.Record{ID: exec.JobID, Status: job.StatusRunning}); err != nil {
		return fmt.Errorf("seed job record: %w", err)
	}

	return scheduler.Start(ctx, exec)
}
