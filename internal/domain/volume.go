package domain

import "context"

type Volume interface {
	Mount(ctx context.Context) error
	Unmount(ctx context.Context) error
	IsMounted() (bool, error)
}

// Workspace is the dump area on the mounted volume.
type Workspace interface {
	Clean() error
	ArchiveDir(archive string) string
	// Size reports the bytes stored below dir.
	Size(dir string) (int64, error)
}

// ArchiveCopier copies a finished dump somewhere off the volume.
type ArchiveCopier interface {
	CopyDir(ctx context.Context, localDir, remotePrefix string) (int, error)
}
