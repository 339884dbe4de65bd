package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type Client struct {
	*redis.Client
}

func NewClient(redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Client{client}, nil
}

func (c *Client) Close() error {
	return c.Client.Close()
}

// SessionKey is the key holding the JSON session record of a device.
func SessionKey(deviceID string) string {
	return fmt.Sprintf("device:%s:session", deviceID)
}

// SessionChannel carries the full record after every committed write.
func SessionChannel(deviceID string) string {
	return fmt.Sprintf("device:%s:session:changes", deviceID)
}
