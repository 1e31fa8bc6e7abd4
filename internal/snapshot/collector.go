// Package snapshot collects the observable interface surface of an MCP
// server: initialize info, instructions, the capability-gated list
// sections, and any configured custom messages. Collection runs at the
// JSON-RPC transport layer of mcp-go so result payloads are preserved
// byte-for-byte; typed decoding would silently drop fields a server
// might drift on.
package snapshot

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"os/exec"
	"sync/atomic"
	"time"

	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"mcpdrift/internal/environ"
	"mcpdrift/internal/errors"
	"mcpdrift/internal/logging"
	"mcpdrift/internal/version"
)

// Transport kinds for probe targets
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// protocolVersion is the MCP protocol revision advertised during the
// initialize handshake.
const protocolVersion = "2025-03-26"

// maxListPages bounds cursor-following on list endpoints so a server
// that returns a cycling cursor cannot stall the probe.
const maxListPages = 100

// Target describes how to reach one server instance
type Target struct {
	// Kind selects the transport: stdio or http
	Kind string

	// Stdio: command spawned for the probe
	Command string
	Args    []string
	Dir     string
	Env     map[string]string

	// HTTP: endpoint and optional headers
	URL     string
	Headers map[string]string
}

// CustomMessage is an ad-hoc JSON-RPC request sent after the standard
// sections and matched into the snapshot by name.
type CustomMessage struct {
	Name   string
	Method string
	Params map[string]interface{}
}

// Options bounds the collector's suspension points
type Options struct {
	// ConnectTimeout bounds transport start plus the initialize handshake
	ConnectTimeout time.Duration
	// RequestTimeout bounds each individual request
	RequestTimeout time.Duration
}

// Collector produces capability snapshots from live servers
type Collector struct {
	logger *logging.Logger
	opts   Options
	seq    atomic.Int64
}

// NewCollector creates a collector; zero timeouts get defaults.
func NewCollector(logger *logging.Logger, opts Options) *Collector {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 15 * time.Second
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	return &Collector{logger: logger, opts: opts}
}

// errMethodNotFound marks a JSON-RPC "method not found" response for a
// declared capability. It is treated the same as "capability not
// declared": the section is left absent. See DESIGN.md for the
// regression-masking tradeoff this leniency carries.
var errMethodNotFound = stderrors.New("method not implemented")

// Collect connects once, gathers every section the server declares,
// sends custom messages sequentially, and always attempts an orderly
// shutdown. On connection or handshake failure the returned snapshot
// carries only the error string; partial snapshots are never returned
// for connection-level failures.
func (c *Collector) Collect(ctx context.Context, target Target, custom []CustomMessage) *Snapshot {
	snap := &Snapshot{}

	tr, err := c.dial(target)
	if err != nil {
		snap.Err = errors.New(errors.ConnectionFailed, "could not create transport", err).Error()
		return snap
	}
	defer func() {
		if closeErr := tr.Close(); closeErr != nil {
			c.logger.Debug("Transport close failed", map[string]interface{}{
				"error": closeErr.Error(),
			})
		}
	}()

	connectCtx, cancel := context.WithTimeout(ctx, c.opts.ConnectTimeout)
	defer cancel()

	if err := tr.Start(connectCtx); err != nil {
		snap.Err = errors.New(errors.ConnectionFailed, "could not connect to server", err).Error()
		return snap
	}

	initResult, err := c.call(connectCtx, tr, "initialize", map[string]interface{}{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]interface{}{},
		"clientInfo": map[string]interface{}{
			"name":    "mcpdrift",
			"version": version.Version,
		},
	})
	if err != nil {
		snap.Err = errors.New(errors.ConnectionFailed, "initialize handshake failed", err).Error()
		return snap
	}

	_ = tr.SendNotification(ctx, mcp.JSONRPCNotification{
		JSONRPC: mcp.JSONRPC_VERSION,
		Notification: mcp.Notification{
			Method: "notifications/initialized",
		},
	})

	initMap, _ := initResult.(map[string]interface{})
	snap.ServerInfo = initMap["serverInfo"]
	if instructions, ok := initMap["instructions"]; ok {
		snap.Instructions = instructions
	}

	caps := declaredCapabilities(initMap)
	if caps[SectionTools] {
		snap.Tools = c.collectList(ctx, tr, "tools/list", "tools")
	}
	if caps[SectionPrompts] {
		snap.Prompts = c.collectList(ctx, tr, "prompts/list", "prompts")
	}
	if caps[SectionResources] {
		snap.Resources = c.collectList(ctx, tr, "resources/list", "resources")
		snap.ResourceTemplates = c.collectList(ctx, tr, "resources/templates/list", "resourceTemplates")
	}

	for _, msg := range custom {
		result, err := c.callWithTimeout(ctx, tr, msg.Method, paramsOrNil(msg.Params))
		if err != nil {
			c.logger.Warn("Custom message failed, leaving entry absent", map[string]interface{}{
				"name":   msg.Name,
				"method": msg.Method,
				"error":  err.Error(),
			})
			continue
		}
		if snap.Custom == nil {
			snap.Custom = make(map[string]interface{})
		}
		snap.Custom[msg.Name] = result
	}

	return snap
}

// dial builds the transport for a target without connecting.
func (c *Collector) dial(target Target) (transport.Interface, error) {
	switch target.Kind {
	case TransportStdio:
		env := environ.MergeEnv(os.Environ(), target.Env)
		if target.Dir == "" {
			return transport.NewStdio(target.Command, env, target.Args...), nil
		}
		return transport.NewStdioWithOptions(target.Command, env, target.Args,
			transport.WithCommandFunc(func(ctx context.Context, command string, env []string, args []string) (*exec.Cmd, error) {
				cmd := exec.CommandContext(ctx, command, args...)
				cmd.Env = env
				cmd.Dir = target.Dir
				return cmd, nil
			})), nil

	case TransportHTTP:
		var opts []transport.StreamableHTTPCOption
		if len(target.Headers) > 0 {
			opts = append(opts, transport.WithHTTPHeaders(target.Headers))
		}
		return transport.NewStreamableHTTP(target.URL, opts...)

	default:
		return nil, fmt.Errorf("unsupported transport kind %q", target.Kind)
	}
}

// collectList gathers one list section, following cursors until the
// server stops returning one. Returns nil (section absent) on any
// failure: method-not-found is informational, other failures are
// warnings, neither fails the probe.
func (c *Collector) collectList(ctx context.Context, tr transport.Interface, method, field string) interface{} {
	var items []interface{}
	collected := false
	cursor := ""

	for page := 0; page < maxListPages; page++ {
		params := map[string]interface{}{}
		if cursor != "" {
			params["cursor"] = cursor
		}

		result, err := c.callWithTimeout(ctx, tr, method, params)
		if err != nil {
			if stderrors.Is(err, errMethodNotFound) {
				c.logger.Info("Declared capability not implemented, section absent", map[string]interface{}{
					"method": method,
				})
			} else {
				c.logger.Warn("Capability call failed, section absent", map[string]interface{}{
					"method": method,
					"error":  err.Error(),
				})
			}
			return nil
		}

		m, ok := result.(map[string]interface{})
		if !ok {
			c.logger.Warn("Unexpected list result shape, section absent", map[string]interface{}{
				"method": method,
			})
			return nil
		}

		collected = true
		if arr, ok := m[field].([]interface{}); ok {
			items = append(items, arr...)
		}

		next, _ := m["nextCursor"].(string)
		if next == "" || next == cursor {
			break
		}
		cursor = next
	}

	if !collected {
		return nil
	}
	if items == nil {
		// Present but empty is distinct from absent.
		items = []interface{}{}
	}
	return items
}

func (c *Collector) callWithTimeout(ctx context.Context, tr transport.Interface, method string, params interface{}) (interface{}, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.opts.RequestTimeout)
	defer cancel()
	return c.call(reqCtx, tr, method, params)
}

// call issues one JSON-RPC request and decodes the raw result generically.
func (c *Collector) call(ctx context.Context, tr transport.Interface, method string, params interface{}) (interface{}, error) {
	resp, err := tr.SendRequest(ctx, transport.JSONRPCRequest{
		JSONRPC: mcp.JSONRPC_VERSION,
		ID:      mcp.NewRequestId(c.seq.Add(1)),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	if resp.Error != nil {
		if resp.Error.Code == mcp.METHOD_NOT_FOUND {
			return nil, fmt.Errorf("%s: %w", method, errMethodNotFound)
		}
		return nil, fmt.Errorf("%s: %s (code %d)", method, resp.Error.Message, resp.Error.Code)
	}

	var result interface{}
	if len(resp.Result) > 0 {
		if err := json.Unmarshal(resp.Result, &result); err != nil {
			return nil, fmt.Errorf("%s: invalid result JSON: %w", method, err)
		}
	}
	return result, nil
}

// declaredCapabilities extracts which list sections the server declared
// support for during initialize. The resources capability gates both
// resources/list and resources/templates/list.
func declaredCapabilities(initResult map[string]interface{}) map[string]bool {
	out := map[string]bool{}
	caps, ok := initResult["capabilities"].(map[string]interface{})
	if !ok {
		return out
	}
	if _, declared := caps["tools"]; declared {
		out[SectionTools] = true
	}
	if _, declared := caps["prompts"]; declared {
		out[SectionPrompts] = true
	}
	if _, declared := caps["resources"]; declared {
		out[SectionResources] = true
	}
	return out
}

func paramsOrNil(params map[string]interface{}) interface{} {
	if params == nil {
		return nil
	}
	return params
}
