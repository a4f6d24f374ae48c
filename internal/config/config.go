// Package config loads supervisor configuration with viper, registering
// defaults before binding environment variables and an optional config
// file.
package config

import (
	"strings"

	"github.com/spf13/viper"
)

// setDefaults registers every key the supervisor recognizes: the
// tunables for its external interfaces (archive/dependency cleanup,
// output guards, file transfer, mail) plus the ambient keys every
// service in this repo carries (logging, workers, base paths).
func setDefaults(v *viper.Viper) {
	v.SetDefault("deleteArchiveFile.enabled", true)
	v.SetDefault("deleteDependencies.enabled", true)
	v.SetDefault("runAsUser.enabled", false)
	v.SetDefault("stdout.maxBytes", int64(10_000_000))
	v.SetDefault("stderr.maxBytes", int64(10_000_000))

	v.SetDefault("baseWorkingDir", "/tmp/genie/jobs")
	v.SetDefault("workers", 4)
	v.SetDefault("execrunner.ratePerSecond", float64(0))

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "structured")

	v.SetDefault("archive.region", "")
	v.SetDefault("archive.endpoint", "")
	v.SetDefault("archive.forcePathStyle", false)

	v.SetDefault("smtp.addr", "localhost:25")
	v.SetDefault("smtp.from", "genie@localhost")

	v.SetDefault("persistence.root", "/var/lib/genie/jobs")
}

// Config is the resolved supervisor configuration.
type Config struct {
	DeleteArchiveFileEnabled  bool
	DeleteDependenciesEnabled bool
	RunAsUserEnabled          bool
	StdoutMaxBytes            int64
	StderrMaxBytes            int64

	BaseWorkingDir       string
	Workers              int
	ExecRunnerRatePerSec float64

	LoggingLevel   string
	LoggingProfile string

	ArchiveRegion         string
	ArchiveEndpoint       string
	ArchiveForcePathStyle bool

	SMTPAddr string
	SMTPFrom string

	PersistenceRoot string
}

// Load reads configuration from configPath (if non-empty) plus the
// GENIE_-prefixed environment, layered over the defaults in
// setDefaults, and returns the resolved Config.
func Load(configPath string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("genie")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	return Config{
		DeleteArchiveFileEnabled:  v.GetBool("deleteArchiveFile.enabled"),
		DeleteDependenciesEnabled: v.GetBool("deleteDependencies.enabled"),
		RunAsUserEnabled:          v.GetBool("runAsUser.enabled"),
		StdoutMaxBytes:            v.GetInt64("stdout.maxBytes"),
		StderrMaxBytes:            v.GetInt64("stderr.maxBytes"),

		BaseWorkingDir:       v.GetString("baseWorkingDir"),
		Workers:              v.GetInt("workers"),
		ExecRunnerRatePerSec: v.GetFloat64("execrunner.ratePerSecond"),

		LoggingLevel:   v.GetString("logging.level"),
		LoggingProfile: v.GetString("logging.profile"),

		ArchiveRegion:         v.GetString("archive.region"),
		ArchiveEndpoint:       v.GetString("archive.endpoint"),
		ArchiveForcePathStyle: v.GetBool("archive.forcePathStyle"),

		SMTPAddr: v.GetString("smtp.addr"),
		SMTPFrom: v.GetString("smtp.from"),

		PersistenceRoot: v.GetString("persistence.root"),
	}, nil
}
