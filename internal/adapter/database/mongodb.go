package database

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/semmidev/mongosnap/internal/config"
)

const mongodumpCmd = "mongodump"

type Logger interface {
	Infof(template string, args ...interface{})
	Errorf(template string, args ...interface{})
	Warnf(template string, args ...interface{})
}

// runner executes a command and returns its combined output.
type runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// MongoDB dumps the local mongod with mongodump.
type MongoDB struct {
	config *config.DatabaseConfig
	logger Logger
	run    runner
}

func NewMongoDB(cfg *config.DatabaseConfig, logger Logger) *MongoDB {
	return &MongoDB{config: cfg, logger: logger, run: execRunner}
}

// Dump writes an oplog-consistent, gzip-compressed dump of every database on
// the local instance into outputDir. A non-zero exit is returned as an error
// carrying the tool's output.
func (m *MongoDB) Dump(ctx context.Context, outputDir string) error {
	args := m.dumpArgs(outputDir)
	m.logger.Infof("Running %s %s", mongodumpCmd, strings.Join(maskArgs(args), " "))

	output, err := m.run(ctx, mongodumpCmd, args...)
	if err != nil {
		return fmt.Errorf("mongodump failed: %w, output: %s", err, strings.TrimSpace(string(output)))
	}

	return nil
}

func (m *MongoDB) dumpArgs(outputDir string) []string {
	return []string{
		fmt.Sprintf("--host=%s", m.config.Host),
		"--oplog",
		"--gzip",
		fmt.Sprintf("--username=%s", m.config.Username),
		fmt.Sprintf("--password=%s", m.config.Password),
		fmt.Sprintf("--authenticationDatabase=%s", m.config.AuthDatabase),
		fmt.Sprintf("--out=%s", outputDir),
	}
}

// maskArgs hides the password for logging.
func maskArgs(args []string) []string {
	masked := make([]string, len(args))
	for i, arg := range args {
		if strings.HasPrefix(arg, "--password=") {
			arg = "--password=<redacted>"
		}
		masked[i] = arg
	}
	return masked
}
