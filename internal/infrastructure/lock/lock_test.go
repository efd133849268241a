package lock

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestLock(t *testing.T) {
	Convey("Given a lock reference file", t, func() {
		tempDir, err := os.MkdirTemp("", "lock_test")
		So(err, ShouldBeNil)
		defer os.RemoveAll(tempDir)

		ref := filepath.Join(tempDir, "mongosnap")
		So(os.WriteFile(ref, []byte("#!/bin/sh\n"), 0755), ShouldBeNil)

		Convey("When the lock is free", func() {
			l, err := Acquire(ref)
			defer l.Release()

			Convey("Acquire should succeed", func() {
				So(err, ShouldBeNil)
				So(l.Path(), ShouldEqual, ref)
			})
		})

		Convey("When the lock is already held", func() {
			first, err := Acquire(ref)
			So(err, ShouldBeNil)
			defer first.Release()

			second, err := Acquire(ref)

			Convey("The second attempt should fail immediately with ErrLocked", func() {
				So(second, ShouldBeNil)
				So(errors.Is(err, ErrLocked), ShouldBeTrue)
			})

			Convey("Releasing the first lets a new holder in", func() {
				So(first.Release(), ShouldBeNil)
				third, err := Acquire(ref)
				So(err, ShouldBeNil)
				So(third.Release(), ShouldBeNil)
			})
		})

		Convey("When the reference does not exist", func() {
			_, err := Acquire(filepath.Join(tempDir, "missing"))

			Convey("It should fail with an open error, not ErrLocked", func() {
				So(err, ShouldNotBeNil)
				So(errors.Is(err, ErrLocked), ShouldBeFalse)
				So(err.Error(), ShouldContainSubstring, "failed to open lock reference")
			})
		})

		Convey("Release is safe to call twice and on nil", func() {
			l, err := Acquire(ref)
			So(err, ShouldBeNil)
			So(l.Release(), ShouldBeNil)
			So(l.Release(), ShouldBeNil)

			var nilLock *Lock
			So(nilLock.Release(), ShouldBeNil)
		})

		Convey("Self resolves the test binary", func() {
			exe, err := Self()
			So(err, ShouldBeNil)
			So(exe, ShouldNotBeEmpty)
		})
	})
}
