package domain

import "context"

// NodeIdentity reports the address the local replica set member believes it
// is reachable at.
type NodeIdentity interface {
	Self(ctx context.Context) (string, error)
}

type Dumper interface {
	Dump(ctx context.Context, outputDir string) error
}
