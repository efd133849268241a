package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/semmidev/mongosnap/internal/config"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const identityTimeout = 30 * time.Second

// helloReply holds the fields of isMaster we care about.
type helloReply struct {
	Me      string `bson:"me"`
	SetName string `bson:"setName"`
}

// commandRunner runs an admin command and decodes the reply.
type commandRunner func(ctx context.Context, cmd bson.D, out interface{}) error

// ReplicaIdentity asks the local mongod which replica set member it is.
type ReplicaIdentity struct {
	config *config.DatabaseConfig
	run    commandRunner
}

func NewReplicaIdentity(cfg *config.DatabaseConfig) *ReplicaIdentity {
	r := &ReplicaIdentity{config: cfg}
	r.run = r.runAdminCommand
	return r
}

// Self returns the member's own host:port as reported in isMaster.me.
// Authentication and connection failures are returned as errors.
func (r *ReplicaIdentity) Self(ctx context.Context) (string, error) {
	var reply helloReply
	if err := r.run(ctx, bson.D{{Key: "isMaster", Value: 1}}, &reply); err != nil {
		return "", fmt.Errorf("isMaster on %s: %w", r.config.Host, err)
	}

	me := NormalizeIdentity(reply.Me)
	if me == "" {
		return "", fmt.Errorf("isMaster on %s returned no member identity; is it part of a replica set?", r.config.Host)
	}
	return me, nil
}

func (r *ReplicaIdentity) runAdminCommand(ctx context.Context, cmd bson.D, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, identityTimeout)
	defer cancel()

	opts := options.Client().
		SetHosts([]string{r.config.Host}).
		SetDirect(true).
		SetAuth(options.Credential{
			AuthSource: r.config.AuthDatabase,
			Username:   r.config.Username,
			Password:   r.config.Password,
		}).
		SetServerSelectionTimeout(identityTimeout)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer client.Disconnect(context.Background())

	if err := client.Database("admin").RunCommand(ctx, cmd).Decode(out); err != nil {
		return err
	}
	return nil
}

// NormalizeIdentity trims whitespace and quoting around a host:port.
func NormalizeIdentity(s string) string {
	return strings.Trim(strings.TrimSpace(s), `"'`)
}
