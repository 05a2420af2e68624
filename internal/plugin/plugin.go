// Package plugin runs embedders out of process with hashicorp/go-plugin over
// net/rpc. A plugin binary calls Serve; the host calls Launch.
package plugin

import (
	"context"
	"errors"
	"fmt"
	"net/rpc"
	"os"
	"os/exec"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-plugin"
)

// Handshake is used to handshake between host and plugin.
var Handshake = plugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "MNEMO_PLUGIN",
	MagicCookieValue: "mnemo-embedder",
}

// PluginName is the key the embedder is dispensed under.
const PluginName = "embedder"

// Embedder is the capability a plugin serves.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// EmbedArgs is the request for Plugin.Embed.
type EmbedArgs struct {
	Text string
}

// EmbedReply is the response for Plugin.Embed.
type EmbedReply struct {
	Vector []float32
}

// EmbedderPlugin implements plugin.Plugin for both sides of the connection.
type EmbedderPlugin struct {
	Impl Embedder
}

func (p *EmbedderPlugin) Server(*plugin.MuxBroker) (interface{}, error) {
	if p.Impl == nil {
		return nil, errors.New("no embedder to serve")
	}
	return &EmbedderRPCServer{Impl: p.Impl}, nil
}

func (p *EmbedderPlugin) Client(_ *plugin.MuxBroker, c *rpc.Client) (interface{}, error) {
	return &EmbedderRPCClient{client: c}, nil
}

// EmbedderRPCServer exposes an Embedder over net/rpc.
type EmbedderRPCServer struct {
	Impl Embedder
}

func (s *EmbedderRPCServer) Embed(args EmbedArgs, reply *EmbedReply) error {
	vec, err := s.Impl.Embed(context.Background(), args.Text)
	if err != nil {
		return err
	}
	reply.Vector = vec
	return nil
}

func (s *EmbedderRPCServer) Dimensions(args interface{}, reply *int) error {
	*reply = s.Impl.Dimensions()
	return nil
}

// EmbedderRPCClient is an Embedder that talks to a plugin over RPC.
type EmbedderRPCClient struct {
	client *rpc.Client
}

// Embed honors ctx cancellation on the host side. The remote call keeps
// running until the plugin answers.
func (c *EmbedderRPCClient) Embed(ctx context.Context, text string) ([]float32, error) {
	var reply EmbedReply
	call := c.client.Go("Plugin.Embed", EmbedArgs{Text: text}, &reply, make(chan *rpc.Call, 1))
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-call.Done:
		if call.Error != nil {
			return nil, fmt.Errorf("plugin embed: %w", call.Error)
		}
		return reply.Vector, nil
	}
}

// Dimensions returns 0 when the plugin cannot be reached.
func (c *EmbedderRPCClient) Dimensions() int {
	var dim int
	if err := c.client.Call("Plugin.Dimensions", new(interface{}), &dim); err != nil {
		return 0
	}
	return dim
}

// Serve runs impl as a plugin. It blocks until the host disconnects.
func Serve(impl Embedder) {
	plugin.Serve(&plugin.ServeConfig{
		HandshakeConfig: Handshake,
		Plugins: map[string]plugin.Plugin{
			PluginName: &EmbedderPlugin{Impl: impl},
		},
		Logger: hclog.New(&hclog.LoggerOptions{
			Name:   "mnemo-plugin",
			Level:  hclog.Warn,
			Output: os.Stderr,
		}),
	})
}

// Host is a running plugin process and the embedder it serves.
type Host struct {
	Embedder
	client *plugin.Client
}

// Launch starts the plugin binary at path and dispenses its embedder.
func Launch(path string, args ...string) (*Host, error) {
	if path == "" {
		return nil, errors.New("plugin path is required")
	}

	client := plugin.NewClient(&plugin.ClientConfig{
		HandshakeConfig: Handshake,
		Plugins: map[string]plugin.Plugin{
			PluginName: &EmbedderPlugin{},
		},
		Cmd:              exec.Command(path, args...),
		AllowedProtocols: []plugin.Protocol{plugin.ProtocolNetRPC},
		Logger: hclog.New(&hclog.LoggerOptions{
			Name:   "mnemo-plugin",
			Level:  hclog.Error,
			Output: os.Stderr,
		}),
	})

	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("failed to start plugin %s: %w", path, err)
	}
	raw, err := rpcClient.Dispense(PluginName)
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("failed to dispense embedder: %w", err)
	}
	emb, ok := raw.(Embedder)
	if !ok {
		client.Kill()
		return nil, fmt.Errorf("plugin %s does not serve an embedder", path)
	}
	return &Host{Embedder: emb, client: client}, nil
}

// Close stops the plugin process.
func (h *Host) Close() error {
	h.client.Kill()
	return nil
}
