package volume

import (
	"context"
	"fmt"
	"os"

	"github.com/moby/sys/mountinfo"
	"golang.org/x/sys/unix"
)

// Mount data for an EBS backed filesystem: TRIM freed blocks so snapshots
// stay small, and skip atime writes.
const (
	mountFlags = unix.MS_NOATIME
	mountData  = "discard"
)

type Logger interface {
	Infof(template string, args ...interface{})
	Warnf(template string, args ...interface{})
}

// sys holds the kernel calls so tests can run without root.
type sys struct {
	mounted func(path string) (bool, error)
	mount   func(source, target, fstype string, flags uintptr, data string) error
	unmount func(target string, flags int) error
	sync    func()
}

var hostSys = sys{
	mounted: mountinfo.Mounted,
	mount:   unix.Mount,
	unmount: unix.Unmount,
	sync:    unix.Sync,
}

// Manager mounts the backup block device at a fixed path.
type Manager struct {
	device     string
	mountPath  string
	filesystem string
	logger     Logger
	sys        sys
}

func NewManager(device, mountPath, filesystem string, logger Logger) *Manager {
	return &Manager{
		device:     device,
		mountPath:  mountPath,
		filesystem: filesystem,
		logger:     logger,
		sys:        hostSys,
	}
}

// IsMounted reports whether the mount path is currently a mount point.
func (m *Manager) IsMounted() (bool, error) {
	mounted, err := m.sys.mounted(m.mountPath)
	if err != nil {
		return false, fmt.Errorf("failed to inspect mount state of %s: %w", m.mountPath, err)
	}
	return mounted, nil
}

// Mount creates the mount path and mounts the device there unless something
// is already mounted, so a run can resume after an interrupted one.
func (m *Manager) Mount(ctx context.Context) error {
	if err := os.MkdirAll(m.mountPath, 0755); err != nil {
		return fmt.Errorf("failed to create mount path: %w", err)
	}

	mounted, err := m.IsMounted()
	if err != nil {
		return err
	}
	if mounted {
		m.logger.Infof("%s is already mounted, reusing it", m.mountPath)
		return nil
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	m.logger.Infof("Mounting %s (%s) at %s with %s,noatime", m.device, m.filesystem, m.mountPath, mountData)
	if err := m.sys.mount(m.device, m.mountPath, m.filesystem, mountFlags, mountData); err != nil {
		return fmt.Errorf("failed to mount %s at %s: %w", m.device, m.mountPath, err)
	}

	return nil
}

// Unmount flushes dirty pages to the device and unmounts it. The path not
// being mounted is not an error.
func (m *Manager) Unmount(ctx context.Context) error {
	mounted, err := m.IsMounted()
	if err != nil {
		return err
	}
	if !mounted {
		m.logger.Warnf("%s is not mounted, nothing to unmount", m.mountPath)
		return nil
	}

	m.logger.Infof("Flushing filesystem buffers")
	m.sys.sync()

	m.logger.Infof("Unmounting %s", m.mountPath)
	if err := m.sys.unmount(m.mountPath, 0); err != nil {
		return fmt.Errorf("failed to unmount %s: %w", m.mountPath, err)
	}

	return nil
}
