package app

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/semmidev/mongosnap/internal/config"
	"github.com/semmidev/mongosnap/internal/infrastructure/lock"
	"github.com/semmidev/mongosnap/internal/infrastructure/logger"
	"github.com/semmidev/mongosnap/internal/usecase"
	. "github.com/smartystreets/goconvey/convey"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observed() (*logger.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return &logger.Logger{SugaredLogger: zap.New(core).Sugar()}, logs
}

func TestLogValidation(t *testing.T) {
	Convey("Given a config with missing fields", t, func() {
		cfg := &config.Config{}
		cfg.Snapshot.PollInterval = 1
		cfg.Volume.Device = "/dev/xvdf"
		err := cfg.Validate()
		So(err, ShouldNotBeNil)

		log, logs := observed()
		logValidation(log, err)

		Convey("Each missing field gets its own error line", func() {
			So(logs.FilterLevelExact(zapcore.ErrorLevel).Len(), ShouldEqual, 11)
			So(logs.FilterMessageSnippet("volume.device").Len(), ShouldEqual, 0)

			volumeID := logs.FilterMessageSnippet("Missing volume.volume_id")
			So(volumeID.Len(), ShouldEqual, 1)
			So(volumeID.All()[0].Message, ShouldContainSubstring, "MONGOSNAP_VOLUME_VOLUME_ID")
			So(volumeID.All()[0].Message, ShouldContainSubstring, "EBS volume id")
		})
	})

	Convey("Invalid values are logged as well", t, func() {
		log, logs := observed()
		logValidation(log, &config.ValidationError{Invalid: []string{"snapshot.timeout must not be negative"}})

		So(logs.Len(), ShouldEqual, 1)
		So(logs.All()[0].Message, ShouldEqual, "Invalid configuration: snapshot.timeout must not be negative")
	})
}

func TestLockFunc(t *testing.T) {
	Convey("Given a lock reference", t, func() {
		tempDir, err := os.MkdirTemp("", "app_test")
		So(err, ShouldBeNil)
		defer os.RemoveAll(tempDir)

		ref := filepath.Join(tempDir, "mongosnap")
		So(os.WriteFile(ref, []byte("#!/bin/sh\n"), 0755), ShouldBeNil)

		cfg := &config.Config{Lock: config.LockConfig{Path: ref}}
		log, logs := observed()

		Convey("When it is free the lock is taken", func() {
			held, err := lockFunc(cfg, log)()
			So(err, ShouldBeNil)
			defer held.Release()
			So(logs.FilterMessageSnippet("Holding lock on "+ref).Len(), ShouldEqual, 1)
		})

		Convey("When another holder has it the error is contention", func() {
			other, err := lock.Acquire(ref)
			So(err, ShouldBeNil)
			defer other.Release()

			_, err = lockFunc(cfg, log)()
			So(errors.Is(err, usecase.ErrLocked), ShouldBeTrue)
		})

		Convey("When the reference is missing the error is not contention", func() {
			cfg.Lock.Path = filepath.Join(tempDir, "missing")

			_, err := lockFunc(cfg, log)()
			So(err, ShouldNotBeNil)
			So(errors.Is(err, usecase.ErrLocked), ShouldBeFalse)
		})
	})
}

func TestEnvName(t *testing.T) {
	Convey("Config keys map to environment variable suffixes", t, func() {
		So(envName("notify.telegram.bot_token"), ShouldEqual, "NOTIFY_TELEGRAM_BOT_TOKEN")
	})
}
