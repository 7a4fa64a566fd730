// Package pubsub wraps the Google Pub/Sub v2 client used by the outbox publisher.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gpubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/marketplace-backend/pkg/config"
)

var errProjectIDRequired = errors.New("gcp project id is required")

type Client struct {
	client    *gpubsub.Client
	projectID string
	topics    []string
}

// NewClient connects to Pub/Sub and checks that every topic exists.
func NewClient(ctx context.Context, gcp config.GCPConfig, topics []string) (*Client, error) {
	if strings.TrimSpace(gcp.ProjectID) == "" {
		return nil, errProjectIDRequired
	}
	raw, err := gpubsub.NewClient(ctx, gcp.ProjectID, clientOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	c := &Client{client: raw, projectID: gcp.ProjectID, topics: topics}
	if err := c.Ping(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}
	return c, nil
}

// clientOptions prefers inline credentials, then a key file, then ADC.
func clientOptions(gcp config.GCPConfig) []option.ClientOption {
	var opts []option.ClientOption
	switch {
	case strings.TrimSpace(gcp.CredentialsJSON) != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(gcp.CredentialsJSON)))
	case strings.TrimSpace(gcp.ApplicationCredentials) != "":
		opts = append(opts, option.WithCredentialsFile(gcp.ApplicationCredentials))
	}
	return opts
}

// Ping verifies each configured topic is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errors.New("pubsub client not initialized")
	}
	for _, topic := range c.topics {
		full := TopicName(c.projectID, topic)
		_, err := c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: full})
		if err == nil {
			continue
		}
		if status.Code(err) == codes.NotFound {
			return fmt.Errorf("topic %q does not exist", topic)
		}
		return fmt.Errorf("checking topic %q: %w", topic, err)
	}
	return nil
}

// Publisher returns a handle for topic, which may be an id or a full resource name.
func (c *Client) Publisher(topic string) *gpubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	full := TopicName(c.projectID, topic)
	if full == "" {
		return nil
	}
	return c.client.Publisher(full)
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// TopicName expands a topic id into projects/<p>/topics/<id>.
func TopicName(projectID, topic string) string {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return ""
	}
	if strings.HasPrefix(topic, "projects/") && strings.Contains(topic, "/topics/") {
		return topic
	}
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return ""
	}
	return fmt.Sprintf("projects/%s/topics/%s", projectID, topic)
}
