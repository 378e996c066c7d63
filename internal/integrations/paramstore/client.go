// Package paramstore reads configuration overrides from AWS SSM Parameter
// Store.
package paramstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// SSM rejects GetParameters calls naming more than ten parameters.
const maxNamesPerCall = 10

// ssmAPI is the minimal AWS SSM interface required by Client.
// *ssm.Client from aws-sdk-go-v2 satisfies this interface.
type ssmAPI interface {
	GetParameters(ctx context.Context, in *ssm.GetParametersInput, optFns ...func(*ssm.Options)) (*ssm.GetParametersOutput, error)
}

// Client wraps an AWS SSM API for parameter retrieval.
type Client struct {
	api ssmAPI
}

func New(api ssmAPI) (*Client, error) {
	if api == nil {
		return nil, errors.New("paramstore: api must not be nil")
	}
	return &Client{api: api}, nil
}

// Lookup fetches prefix/key for every key and returns the values found,
// keyed by key. Parameters that do not exist are left out of the result.
func (c *Client) Lookup(ctx context.Context, prefix string, keys ...string) (map[string]string, error) {
	if c.api == nil {
		return nil, errors.New("paramstore: client not initialized")
	}
	prefix = strings.TrimRight(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return nil, errors.New("paramstore: prefix is required")
	}

	byName := make(map[string]string, len(keys))
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		k = strings.Trim(strings.TrimSpace(k), "/")
		if k == "" {
			continue
		}
		name := prefix + "/" + k
		if _, dup := byName[name]; dup {
			continue
		}
		byName[name] = k
		names = append(names, name)
	}

	found := make(map[string]string, len(names))
	for start := 0; start < len(names); start += maxNamesPerCall {
		end := min(start+maxNamesPerCall, len(names))
		out, err := c.api.GetParameters(ctx, &ssm.GetParametersInput{
			Names:          names[start:end],
			WithDecryption: aws.Bool(true),
		})
		if err != nil {
			return nil, fmt.Errorf("paramstore: get parameters under %q: %w", prefix, err)
		}
		if out == nil {
			continue
		}
		for _, p := range out.Parameters {
			if p.Name == nil || p.Value == nil {
				continue
			}
			if key, ok := byName[aws.ToString(p.Name)]; ok {
				found[key] = aws.ToString(p.Value)
			}
		}
	}
	return found, nil
}
