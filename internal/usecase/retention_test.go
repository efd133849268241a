package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/semmidev/mongosnap/internal/domain"
	"github.com/semmidev/mongosnap/internal/infrastructure/logger"
	. "github.com/smartystreets/goconvey/convey"
)

type retentionStore struct {
	snaps     []domain.Snapshot
	listErr   error
	failing   map[string]error
	deleted   []string
	lastQuery domain.SnapshotFilter
}

func (s *retentionStore) Create(context.Context, string, domain.SnapshotFilter) (string, error) {
	return "", errors.New("not used")
}

func (s *retentionStore) Describe(context.Context, string) (*domain.Snapshot, error) {
	return nil, errors.New("not used")
}

func (s *retentionStore) List(_ context.Context, filter domain.SnapshotFilter) ([]domain.Snapshot, error) {
	s.lastQuery = filter
	if s.listErr != nil {
		return nil, s.listErr
	}
	return append([]domain.Snapshot(nil), s.snaps...), nil
}

func (s *retentionStore) Delete(_ context.Context, id string) error {
	if err, ok := s.failing[id]; ok {
		return err
	}
	for i, snap := range s.snaps {
		if snap.ID == id {
			s.snaps = append(s.snaps[:i], s.snaps[i+1:]...)
			s.deleted = append(s.deleted, id)
			return nil
		}
	}
	return domain.ErrSnapshotNotFound
}

func TestRetentionPrune(t *testing.T) {
	Convey("Given snapshots around a cutoff", t, func() {
		now := time.Date(2024, 6, 1, 3, 0, 0, 0, time.UTC)
		cutoff := now.AddDate(0, 0, -5)
		store := &retentionStore{
			snaps: []domain.Snapshot{
				{ID: "snap-a", CreatedAt: now.AddDate(0, 0, -10)},
				{ID: "snap-b", CreatedAt: now.AddDate(0, 0, -3)},
				{ID: "snap-c", CreatedAt: now.AddDate(0, 0, 1)},
			},
		}
		filter := domain.SnapshotFilter{Description: "nightly", JobTag: "app"}
		r := NewRetention(store, filter, cutoff, logger.Nop())
		ctx := context.Background()

		Convey("Only snapshots strictly older than the cutoff are deleted", func() {
			n, err := r.Prune(ctx, "")
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 1)
			So(store.deleted, ShouldResemble, []string{"snap-a"})
			So(store.lastQuery, ShouldResemble, filter)

			Convey("And a second run deletes nothing", func() {
				n, err := r.Prune(ctx, "")
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 0)
				So(store.deleted, ShouldResemble, []string{"snap-a"})
			})
		})

		Convey("A snapshot created exactly at the cutoff is kept", func() {
			store.snaps = append(store.snaps, domain.Snapshot{ID: "snap-edge", CreatedAt: cutoff})
			_, err := r.Prune(ctx, "")
			So(err, ShouldBeNil)
			So(store.deleted, ShouldNotContain, "snap-edge")
		})

		Convey("The snapshot just taken is never deleted", func() {
			n, err := r.Prune(ctx, "snap-a")
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 0)
		})

		Convey("Snapshots without a creation time are left alone", func() {
			store.snaps = append(store.snaps, domain.Snapshot{ID: "snap-undated"})
			_, err := r.Prune(ctx, "")
			So(err, ShouldBeNil)
			So(store.deleted, ShouldNotContain, "snap-undated")
		})

		Convey("A snapshot deleted concurrently is not an error", func() {
			store.failing = map[string]error{"snap-a": domain.ErrSnapshotNotFound}
			n, err := r.Prune(ctx, "")
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 0)
		})

		Convey("One failed deletion does not stop the others", func() {
			store.snaps = append(store.snaps, domain.Snapshot{ID: "snap-z", CreatedAt: now.AddDate(0, 0, -30)})
			denied := errors.New("UnauthorizedOperation")
			store.failing = map[string]error{"snap-a": denied}

			n, err := r.Prune(ctx, "")
			So(n, ShouldEqual, 1)
			So(store.deleted, ShouldResemble, []string{"snap-z"})
			So(errors.Is(err, denied), ShouldBeTrue)
		})

		Convey("A listing failure aborts the prune", func() {
			store.listErr = errors.New("RequestExpired")
			n, err := r.Prune(ctx, "")
			So(n, ShouldEqual, 0)
			So(err.Error(), ShouldContainSubstring, "list snapshots")
		})
	})
}
