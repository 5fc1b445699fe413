// Package flowgraph mirrors the flow summary into a graph database so the
// money flow can be explored as nodes and FLOWS_TO relationships.
package flowgraph

import (
	"context"
	"errors"
)

// Client is the subset of a graph database the publisher needs.
type Client interface {
	ExecuteWrite(ctx context.Context, cypher string, params map[string]any) (Result, error)
	VerifyConnectivity(ctx context.Context) error
	Close(ctx context.Context) error
}

type Result struct {
	Records []Record
}

type Record map[string]any

type Options struct {
	URI            string
	Database       string
	Username       string
	Password       string
	MaxConnections int
}

var ErrMissingURI = errors.New("graph URI is required")
