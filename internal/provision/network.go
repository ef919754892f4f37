package provision

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"

	"github.com/sky1core/agentbox/internal/config"
	"github.com/sky1core/agentbox/internal/runtime"
	"github.com/sky1core/agentbox/internal/shell"
)

const (
	// ProbeURL is fetched from inside the sandbox to check outbound access.
	ProbeURL = "https://api.github.com"
	// probeTimeout is curl's --max-time, in seconds.
	probeTimeout = "10"
	// timeoutStatus is what curl prints for %{http_code} when no response arrived.
	timeoutStatus = "000"

	hostsFile = "/etc/hosts"
)

// Network applies proxy policy and keeps the gateway hostname resolvable.
type Network struct {
	driver runtime.Driver
	log    *slog.Logger
}

func NewNetwork(d runtime.Driver, log *slog.Logger) *Network {
	return &Network{driver: d, log: log}
}

// ApplyPolicy configures the runtime's outbound proxy. A policy with no
// stance and no entries is a no-op.
func (n *Network) ApplyPolicy(ctx context.Context, name string, policy config.NetworkPolicy) error {
	if policy.IsZero() {
		return nil
	}
	code, err := n.driver.ApplyNetworkPolicy(ctx, name, policy)
	if err != nil {
		if errors.Is(err, runtime.ErrUnsupported) {
			return fmt.Errorf("network policy on %s: %w", n.driver.Name(), err)
		}
		return fmt.Errorf("applying network policy: %w", err)
	}
	if code != 0 {
		return fmt.Errorf("applying network policy: exit %d", code)
	}
	return nil
}

// PinGatewayHost writes a single /etc/hosts entry for the runtime's
// gateway hostname. Outbound traffic is proxied through that name and its
// DNS answer is not always reliable inside the sandbox.
func (n *Network) PinGatewayHost(ctx context.Context, name, workspace string) error {
	traits := n.driver.Traits()
	if traits.GatewayHost == "" {
		return nil
	}
	ip := n.resolveGateway(ctx, name, workspace, traits)
	return mustSh(ctx, n.driver, name, workspace, "pinning "+traits.GatewayHost, hostsScript(hostsFile, traits.GatewayHost, ip))
}

// resolveGateway tries DNS inside the sandbox, then the nameserver's .254
// neighbour, then the runtime default.
func (n *Network) resolveGateway(ctx context.Context, name, workspace string, traits runtime.Traits) string {
	res, err := n.driver.ExecCapture(ctx, name, runtime.ExecOptions{
		Command: []string{"getent", "hosts", traits.GatewayHost},
		WorkDir: workspace,
	})
	if err == nil && res.Status == 0 {
		if ip := firstIPv4(res.Stdout); ip != "" {
			return ip
		}
	}

	res, err = n.driver.ExecCapture(ctx, name, runtime.ExecOptions{
		Command: []string{"cat", "/etc/resolv.conf"},
		WorkDir: workspace,
	})
	if err == nil && res.Status == 0 {
		if ip := gatewayFromResolvConf(res.Stdout); ip != "" {
			n.log.Debug("gateway derived from resolver", "ip", ip)
			return ip
		}
	}

	n.log.Debug("gateway falling back to default", "ip", traits.DefaultGatewayIP)
	return traits.DefaultGatewayIP
}

func firstIPv4(getent string) string {
	for _, line := range strings.Split(getent, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if ip := net.ParseIP(fields[0]); ip != nil && ip.To4() != nil {
			return ip.String()
		}
	}
	return ""
}

// gatewayFromResolvConf assumes the gateway is the .254 address of the
// first non-loopback IPv4 nameserver's /24.
func gatewayFromResolvConf(conf string) string {
	sc := bufio.NewScanner(strings.NewReader(conf))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 2 || fields[0] != "nameserver" {
			continue
		}
		ip := net.ParseIP(fields[1]).To4()
		if ip == nil || ip.IsLoopback() {
			continue
		}
		return net.IPv4(ip[0], ip[1], ip[2], 254).String()
	}
	return ""
}

// hostsScript leaves /etc/hosts alone when the exact line is present and
// otherwise replaces any entry for host. The file is rewritten with cp
// because it is often a bind mount that cannot be renamed over.
func hostsScript(file, host, ip string) string {
	line := ip + " " + host
	pattern := "[[:space:]]" + strings.ReplaceAll(host, ".", `\.`) + "([[:space:]]|$)"
	f := shell.Quote(file)
	return "grep -qxF " + shell.Quote(line) + " " + f + " || { " +
		`tmp=$(mktemp) && ` +
		"{ grep -vE " + shell.Quote(pattern) + " " + f + ` > "$tmp"; true; } && ` +
		"echo " + shell.Quote(line) + ` >> "$tmp" && ` +
		`sudo cp "$tmp" ` + f + ` && rm -f "$tmp"; }`
}

// VerifyConnectivity probes ProbeURL from inside the sandbox. Only a 2xx
// or 3xx response counts as healthy.
func (n *Network) VerifyConnectivity(ctx context.Context, name, workspace string) bool {
	res, err := n.driver.ExecCapture(ctx, name, runtime.ExecOptions{
		Command: []string{"curl", "-s", "-o", "/dev/null", "-w", "%{http_code}", "--max-time", probeTimeout, ProbeURL},
		WorkDir: workspace,
	})
	if err != nil {
		n.log.Debug("connectivity probe failed to run", "err", err)
		return false
	}
	status := strings.TrimSpace(res.Stdout)
	if status == "" {
		status = timeoutStatus
	}
	n.log.Debug("connectivity probe", "url", ProbeURL, "status", status)
	code, err := strconv.Atoi(status)
	return err == nil && code >= 200 && code < 400
}
