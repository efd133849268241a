package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/smithy-go"
	"github.com/semmidev/mongosnap/internal/domain"
)

// JobTagKey is the EC2 tag that marks snapshots of one backup job when a job
// tag is configured.
const JobTagKey = "mongosnap:job"

const snapshotNotFoundCode = "InvalidSnapshot.NotFound"

// EC2API is the subset of the EC2 client used for snapshots.
type EC2API interface {
	CreateSnapshot(ctx context.Context, params *ec2.CreateSnapshotInput, optFns ...func(*ec2.Options)) (*ec2.CreateSnapshotOutput, error)
	DescribeSnapshots(ctx context.Context, params *ec2.DescribeSnapshotsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSnapshotsOutput, error)
	DeleteSnapshot(ctx context.Context, params *ec2.DeleteSnapshotInput, optFns ...func(*ec2.Options)) (*ec2.DeleteSnapshotOutput, error)
}

// EBSSnapshots manages EBS snapshots owned by this account.
type EBSSnapshots struct {
	client EC2API
}

var _ domain.SnapshotStore = (*EBSSnapshots)(nil)

func NewEBS(awsCfg aws.Config) *EBSSnapshots {
	return &EBSSnapshots{client: ec2.NewFromConfig(awsCfg)}
}

func NewEBSWithClient(client EC2API) *EBSSnapshots {
	return &EBSSnapshots{client: client}
}

// Create starts a snapshot of volumeID and returns its ID without waiting.
func (e *EBSSnapshots) Create(ctx context.Context, volumeID string, filter domain.SnapshotFilter) (string, error) {
	input := &ec2.CreateSnapshotInput{
		VolumeId:    aws.String(volumeID),
		Description: aws.String(filter.Description),
	}
	if filter.JobTag != "" {
		input.TagSpecifications = []types.TagSpecification{{
			ResourceType: types.ResourceTypeSnapshot,
			Tags:         []types.Tag{{Key: aws.String(JobTagKey), Value: aws.String(filter.JobTag)}},
		}}
	}

	out, err := e.client.CreateSnapshot(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to create snapshot of %s: %w", volumeID, err)
	}
	if out.SnapshotId == nil || *out.SnapshotId == "" {
		return "", fmt.Errorf("create snapshot of %s returned no snapshot id", volumeID)
	}

	return *out.SnapshotId, nil
}

func (e *EBSSnapshots) Describe(ctx context.Context, snapshotID string) (*domain.Snapshot, error) {
	out, err := e.client.DescribeSnapshots(ctx, &ec2.DescribeSnapshotsInput{
		SnapshotIds: []string{snapshotID},
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", domain.ErrSnapshotNotFound, snapshotID)
		}
		return nil, fmt.Errorf("failed to describe snapshot %s: %w", snapshotID, err)
	}
	if len(out.Snapshots) == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrSnapshotNotFound, snapshotID)
	}

	snap := toDomain(out.Snapshots[0])
	return &snap, nil
}

// List returns every snapshot owned by this account that matches filter.
func (e *EBSSnapshots) List(ctx context.Context, filter domain.SnapshotFilter) ([]domain.Snapshot, error) {
	input := &ec2.DescribeSnapshotsInput{
		OwnerIds: []string{"self"},
		Filters: []types.Filter{
			{Name: aws.String("description"), Values: []string{filter.Description}},
		},
	}
	if filter.JobTag != "" {
		input.Filters = append(input.Filters, types.Filter{
			Name:   aws.String("tag:" + JobTagKey),
			Values: []string{filter.JobTag},
		})
	}

	var snapshots []domain.Snapshot
	paginator := ec2.NewDescribeSnapshotsPaginator(e.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list snapshots: %w", err)
		}
		for _, s := range page.Snapshots {
			snapshots = append(snapshots, toDomain(s))
		}
	}

	return snapshots, nil
}

func (e *EBSSnapshots) Delete(ctx context.Context, snapshotID string) error {
	_, err := e.client.DeleteSnapshot(ctx, &ec2.DeleteSnapshotInput{
		SnapshotId: aws.String(snapshotID),
	})
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("%w: %s", domain.ErrSnapshotNotFound, snapshotID)
		}
		return fmt.Errorf("failed to delete snapshot %s: %w", snapshotID, err)
	}
	return nil
}

func toDomain(s types.Snapshot) domain.Snapshot {
	snap := domain.Snapshot{
		ID:          aws.ToString(s.SnapshotId),
		VolumeID:    aws.ToString(s.VolumeId),
		Description: aws.ToString(s.Description),
		State:       domain.SnapshotState(s.State),
	}
	if s.StartTime != nil {
		snap.CreatedAt = s.StartTime.UTC()
	}
	return snap
}

func isNotFound(err error) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == snapshotNotFoundCode
}
