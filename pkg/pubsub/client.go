package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	gpubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/marketplace-backend/pkg/config"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
)

// ErrUnknownTopic is returned for a topic the client was not configured with.
// Retrying cannot fix it.
var ErrUnknownTopic = errors.New("pubsub topic not configured")

var errNotInitialized = errors.New("pubsub client not initialized")

// Message is one outgoing event. Messages sharing an OrderingKey are
// delivered in publish order.
type Message struct {
	Data        []byte
	Attributes  map[string]string
	OrderingKey string
}

// Result resolves once the server acknowledged or rejected the message.
type Result interface {
	Get(ctx context.Context) (serverID string, err error)
}

// Client publishes to a fixed set of topics, one batching publisher each.
type Client struct {
	client    *gpubsub.Client
	projectID string
	topics    []string

	mu         sync.Mutex
	publishers map[string]*gpubsub.Publisher
}

// NewClient connects and checks that every configured topic exists.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errors.New("gcp project id is required")
	}
	topics := topicNames(cfg)
	if len(topics) == 0 {
		return nil, errors.New("pubsub topic name is required")
	}
	ps, err := gpubsub.NewClient(ctx, projectID, gcp.ClientOptions()...)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	c := &Client{client: ps, projectID: projectID, topics: topics, publishers: map[string]*gpubsub.Publisher{}}
	if err := c.Ping(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "topics", topics), "pubsub.ready")
	}
	return c, nil
}

func topicNames(cfg config.PubSubConfig) []string {
	var names []string
	for _, name := range []string{cfg.OrdersTopic, cfg.DLQTopic} {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}

func (c *Client) configured(topic string) bool {
	for _, t := range c.topics {
		if t == topic {
			return true
		}
	}
	return false
}

func (c *Client) publisher(topic string) (*gpubsub.Publisher, error) {
	if c == nil || c.client == nil {
		return nil, errNotInitialized
	}
	topic = strings.TrimSpace(topic)
	if !c.configured(topic) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTopic, topic)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.publishers[topic]; ok {
		return p, nil
	}
	p := c.client.Publisher(resourceName(c.projectID, "topics", topic))
	p.EnableMessageOrdering = true
	c.publishers[topic] = p
	return p, nil
}

// Publish queues msg on topic without waiting for the server.
func (c *Client) Publish(ctx context.Context, topic string, msg Message) Result {
	p, err := c.publisher(topic)
	if err != nil {
		return failed{err: err}
	}
	res := p.Publish(ctx, &gpubsub.Message{
		Data:        msg.Data,
		Attributes:  msg.Attributes,
		OrderingKey: msg.OrderingKey,
	})
	return ordered{res: res, pub: p, key: msg.OrderingKey}
}

// Ping checks that the configured topics still exist.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errNotInitialized
	}
	for _, topic := range c.topics {
		name := resourceName(c.projectID, "topics", topic)
		_, err := c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: name})
		if status.Code(err) == codes.NotFound {
			return fmt.Errorf("topic %q does not exist", name)
		}
		if err != nil {
			return fmt.Errorf("get topic %q: %w", name, err)
		}
	}
	return nil
}

// Close flushes pending messages and releases the connection.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	c.mu.Lock()
	for _, p := range c.publishers {
		p.Stop()
	}
	c.publishers = map[string]*gpubsub.Publisher{}
	c.mu.Unlock()
	return c.client.Close()
}

// ordered resumes a paused ordering key after a failure so the retry of
// that key is not rejected outright.
type ordered struct {
	res *gpubsub.PublishResult
	pub *gpubsub.Publisher
	key string
}

func (o ordered) Get(ctx context.Context) (string, error) {
	id, err := o.res.Get(ctx)
	if err != nil && o.key != "" {
		o.pub.ResumePublish(o.key)
	}
	return id, err
}

type failed struct{ err error }

func (f failed) Get(context.Context) (string, error) { return "", f.err }

// resourceName expands a short topic id; full resource names pass through.
func resourceName(projectID, kind, name string) string {
	name = strings.TrimSpace(name)
	if name == "" || strings.HasPrefix(name, "projects/") {
		return name
	}
	return fmt.Sprintf("projects/%s/%s/%s", projectID, kind, name)
}
