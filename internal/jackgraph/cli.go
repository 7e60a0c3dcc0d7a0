package jackgraph

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Runner executes a tool and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(env []string) Runner {
	return func(ctx context.Context, name string, args ...string) ([]byte, error) {
		// #nosec G204 -- fixed tool names, arguments are port names
		cmd := exec.CommandContext(ctx, name, args...)
		if len(env) > 0 {
			cmd.Env = env
		}
		return cmd.CombinedOutput()
	}
}

// CLI talks to the JACK server through jack_lsp, jack_connect and
// jack_disconnect.
type CLI struct {
	run Runner
}

// NewCLI uses the real tools with env (nil inherits the current environment).
func NewCLI(env []string) *CLI { return &CLI{run: execRunner(env)} }

// NewCLIWithRunner is for tests and for wrapping the tools (ssh, sudo -u).
func NewCLIWithRunner(r Runner) *CLI { return &CLI{run: r} }

func (c *CLI) Connections(ctx context.Context, port Endpoint) ([]Endpoint, error) {
	out, err := c.run(ctx, "jack_lsp", "-c", port.String())
	if err != nil {
		return nil, fmt.Errorf("jack_lsp %s: %w: %v: %s", port, ErrGraphUnavailable, err, firstLine(out))
	}
	conns, found := parseConnections(out, port.String())
	if !found {
		return nil, fmt.Errorf("jack_lsp %s: %w: port not found", port, ErrGraphUnavailable)
	}
	return conns, nil
}

func (c *CLI) Connect(ctx context.Context, src, dst Endpoint) error {
	if out, err := c.run(ctx, "jack_connect", src.String(), dst.String()); err != nil {
		return fmt.Errorf("jack_connect %s %s: %w: %v: %s", src, dst, ErrGraphUnavailable, err, firstLine(out))
	}
	return nil
}

func (c *CLI) Disconnect(ctx context.Context, src, dst Endpoint) error {
	if out, err := c.run(ctx, "jack_disconnect", src.String(), dst.String()); err != nil {
		return fmt.Errorf("jack_disconnect %s %s: %w: %v: %s", src, dst, ErrGraphUnavailable, err, firstLine(out))
	}
	return nil
}

// parseConnections reads `jack_lsp -c` output. Port names start in column
// zero; the ports connected to them follow, indented. The filter argument is
// a substring match, so only the block whose header equals port is used.
func parseConnections(out []byte, port string) ([]Endpoint, bool) {
	var (
		conns []Endpoint
		found bool
		in    bool
	)
	s := bufio.NewScanner(bytes.NewReader(out))
	for s.Scan() {
		line := s.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		if line[0] != ' ' && line[0] != '\t' {
			in = line == port
			found = found || in
			continue
		}
		if !in {
			continue
		}
		if ep, err := ParseEndpoint(line); err == nil {
			conns = append(conns, ep)
		}
	}
	return conns, found
}

func firstLine(b []byte) string {
	line, _, _ := strings.Cut(strings.TrimSpace(string(b)), "\n")
	return line
}
