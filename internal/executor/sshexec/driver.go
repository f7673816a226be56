// Package sshexec implements the SSH driver for running shell commands on
// Linux targets: key/password auth, sudo elevation, session caching, TOFU
// host key verification, and retry with backoff.
package sshexec

import (
	"context"
	"encoding/base64"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"

	"github.com/maftabmirza/remediation-engine-sub001/internal/executor"
)

const (
	connMaxAge     = 300 * time.Second
	maxCachedConns = 50 // LRU eviction threshold
	distroTTL      = 24 * time.Hour
)

// cachedConn holds an SSH client with its creation time.
type cachedConn struct {
	client    *ssh.Client
	createdAt time.Time
}

type distroCacheEntry struct {
	distro   string
	cachedAt time.Time
}

// Driver implements executor.Driver over golang.org/x/crypto/ssh.
type Driver struct {
	log           *zap.Logger
	knownHostsPath string

	mu          sync.Mutex
	conns       map[string]*cachedConn
	connOrder   []string // LRU order: oldest first
	distroCache map[string]*distroCacheEntry
	hostKeys    map[string]ssh.PublicKey
}

// New builds a Driver. knownHostsPath is where TOFU-accepted host keys are
// persisted; it is loaded immediately so a restart doesn't re-trust blindly.
func New(log *zap.Logger, knownHostsPath string) *Driver {
	d := &Driver{
		log:            log,
		knownHostsPath: knownHostsPath,
		conns:          make(map[string]*cachedConn),
		distroCache:    make(map[string]*distroCacheEntry),
		hostKeys:       make(map[string]ssh.PublicKey),
	}
	d.loadKnownHosts()
	return d
}

// Run executes command on target's host with a bounded retry loop. Auth
// failures are never retried.
func (d *Driver) Run(ctx context.Context, target executor.Target, command string, timeout time.Duration, retries int, retryDelay time.Duration) *executor.Result {
	start := time.Now()
	var lastErr string
	retryCount := 0

	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(int64(retryDelay) * int64(attempt))
			select {
			case <-ctx.Done():
				return executor.TimedOutResult(start, retryCount, "context cancelled")
			case <-time.After(delay):
			}
			retryCount++
		}

		res, err := d.runOnce(ctx, target, command, timeout, false, "")
		if err != nil {
			lastErr = err.Error()
			d.log.Warn("ssh execution failed", zap.String("host", target.Hostname), zap.Error(err))
			d.Invalidate(target.Hostname)
			if isAuthError(err) {
				break
			}
			continue
		}
		res.DurationSecs = time.Since(start).Seconds()
		res.RetryCount = retryCount
		return res
	}

	return &executor.Result{Success: false, ExitCode: -1, Err: lastErr, Stderr: lastErr, DurationSecs: time.Since(start).Seconds(), RetryCount: retryCount}
}

// RunElevated behaves like Run but prefixes command with sudo, optionally
// piping a sudo password.
func (d *Driver) RunElevated(ctx context.Context, target executor.Target, command, sudoPassword string, timeout time.Duration, retries int, retryDelay time.Duration) *executor.Result {
	start := time.Now()
	var lastErr string
	retryCount := 0
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return executor.TimedOutResult(start, retryCount, "context cancelled")
			case <-time.After(time.Duration(int64(retryDelay) * int64(attempt))):
			}
			retryCount++
		}
		res, err := d.runOnce(ctx, target, command, timeout, true, sudoPassword)
		if err != nil {
			lastErr = err.Error()
			d.Invalidate(target.Hostname)
			if isAuthError(err) {
				break
			}
			continue
		}
		res.DurationSecs = time.Since(start).Seconds()
		res.RetryCount = retryCount
		return res
	}
	return &executor.Result{Success: false, ExitCode: -1, Err: lastErr, Stderr: lastErr, DurationSecs: time.Since(start).Seconds(), RetryCount: retryCount}
}

// runOnce opens (or reuses) a session and runs command, base64-wrapped to
// dodge shell quoting, honoring timeout via a goroutine+select race.
func (d *Driver) runOnce(ctx context.Context, target executor.Target, command string, timeout time.Duration, useSudo bool, sudoPassword string) (*executor.Result, error) {
	client, err := d.getConnection(target)
	if err != nil {
		return nil, fmt.Errorf("get connection: %w", err)
	}

	session, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("new session: %w", err)
	}
	defer session.Close()

	encoded := base64.StdEncoding.EncodeToString([]byte(command))

	var cmd string
	switch {
	case useSudo && target.Username != "root" && sudoPassword != "":
		cmd = fmt.Sprintf(`echo '%s' | sudo -S bash -c "$(echo %s | base64 -d)"`, sudoPassword, encoded)
	case useSudo && target.Username != "root":
		cmd = fmt.Sprintf(`sudo bash -c "$(echo %s | base64 -d)"`, encoded)
	default:
		cmd = fmt.Sprintf(`bash -c "$(echo %s | base64 -d)"`, encoded)
	}

	var stdout, stderr strings.Builder
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- session.Run(cmd) }()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("context cancelled")
	case <-time.After(timeout):
		return nil, fmt.Errorf("execution timed out after %s", timeout)
	case runErr := <-done:
		exitCode := 0
		if runErr != nil {
			if exitErr, ok := runErr.(*ssh.ExitError); ok {
				exitCode = exitErr.ExitStatus()
			} else {
				return nil, fmt.Errorf("run: %w", runErr)
			}
		}
		return &executor.Result{
			Success:  exitCode == 0,
			ExitCode: exitCode,
			Stdout:   strings.TrimSpace(stdout.String()),
			Stderr:   strings.TrimSpace(stderr.String()),
		}, nil
	}
}

// DetectDistro runs a small shell probe to identify the Linux distribution,
// cached for distroTTL.
func (d *Driver) DetectDistro(ctx context.Context, target executor.Target) (string, error) {
	d.mu.Lock()
	if entry, ok := d.distroCache[target.Hostname]; ok && time.Since(entry.cachedAt) < distroTTL {
		d.mu.Unlock()
		return entry.distro, nil
	}
	d.mu.Unlock()

	script := `if [ -f /etc/os-release ]; then . /etc/os-release; echo "$ID"; elif [ -f /etc/redhat-release ]; then echo "rhel"; elif [ -f /etc/debian_version ]; then echo "debian"; else echo "unknown"; fi`
	res, err := d.runOnce(ctx, target, script, 10*time.Second, false, "")
	if err != nil || res.ExitCode != 0 {
		return "unknown", err
	}
	distro := strings.TrimSpace(res.Stdout)
	if distro == "" {
		distro = "unknown"
	}
	d.mu.Lock()
	d.distroCache[target.Hostname] = &distroCacheEntry{distro: distro, cachedAt: time.Now()}
	d.mu.Unlock()
	return distro, nil
}

func (d *Driver) getConnection(target executor.Target) (*ssh.Client, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if cached, ok := d.conns[target.Hostname]; ok {
		if time.Since(cached.createdAt) < connMaxAge {
			if _, err := cached.client.NewSession(); err == nil {
				d.lruTouch(target.Hostname)
				return cached.client, nil
			}
		}
		cached.client.Close()
		delete(d.conns, target.Hostname)
		d.lruRemove(target.Hostname)
	}

	config, err := d.buildSSHConfig(target)
	if err != nil {
		return nil, err
	}

	port := target.Port
	if port == 0 {
		port = 22
	}
	connectTimeout := target.ConnectTimeout
	if connectTimeout == 0 {
		connectTimeout = 30 * time.Second
	}

	addr := net.JoinHostPort(target.Hostname, fmt.Sprintf("%d", port))
	conn, err := net.DialTimeout("tcp", addr, connectTimeout)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh handshake %s: %w", addr, err)
	}
	client := ssh.NewClient(sshConn, chans, reqs)

	if len(d.conns) >= maxCachedConns && len(d.connOrder) > 0 {
		evictHost := d.connOrder[0]
		d.connOrder = d.connOrder[1:]
		if old, ok := d.conns[evictHost]; ok {
			old.client.Close()
			delete(d.conns, evictHost)
		}
	}

	d.conns[target.Hostname] = &cachedConn{client: client, createdAt: time.Now()}
	d.lruTouch(target.Hostname)
	return client, nil
}

func (d *Driver) lruTouch(hostname string) {
	d.lruRemove(hostname)
	d.connOrder = append(d.connOrder, hostname)
}

func (d *Driver) lruRemove(hostname string) {
	for i, h := range d.connOrder {
		if h == hostname {
			d.connOrder = append(d.connOrder[:i], d.connOrder[i+1:]...)
			return
		}
	}
}

// Invalidate drops the cached session for hostname, if any.
func (d *Driver) Invalidate(hostname string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cached, ok := d.conns[hostname]; ok {
		cached.client.Close()
		delete(d.conns, hostname)
		d.lruRemove(hostname)
	}
}

// CloseAll closes every cached session.
func (d *Driver) CloseAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for host, cached := range d.conns {
		cached.client.Close()
		delete(d.conns, host)
	}
	d.connOrder = nil
}

func (d *Driver) buildSSHConfig(target executor.Target) (*ssh.ClientConfig, error) {
	username := target.Username
	if username == "" {
		username = "root"
	}

	config := &ssh.ClientConfig{
		User:            username,
		HostKeyCallback: d.tofuHostKeyCallback,
		Timeout:         30 * time.Second,
	}

	switch {
	case target.PrivateKeyPEM != "":
		signer, err := ssh.ParsePrivateKey([]byte(target.PrivateKeyPEM))
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		config.Auth = []ssh.AuthMethod{ssh.PublicKeys(signer)}
	case target.Password != "":
		config.Auth = []ssh.AuthMethod{ssh.Password(target.Password)}
	default:
		return nil, fmt.Errorf("no auth method for %s (need key or password)", target.Hostname)
	}

	return config, nil
}

// tofuHostKeyCallback implements Trust On First Use: accept and persist new
// host keys, reject changed keys (possible MITM).
func (d *Driver) tofuHostKeyCallback(hostname string, _ net.Addr, key ssh.PublicKey) error {
	host, _, err := net.SplitHostPort(hostname)
	if err != nil {
		host = hostname
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	existing, known := d.hostKeys[host]
	if !known {
		d.hostKeys[host] = key
		d.log.Info("ssh tofu accepted new host key", zap.String("host", host), zap.String("type", key.Type()))
		d.saveKnownHostsLocked()
		return nil
	}

	if string(existing.Marshal()) == string(key.Marshal()) {
		return nil
	}

	d.log.Error("ssh host key changed, possible MITM", zap.String("host", host))
	return fmt.Errorf("host key mismatch for %s: expected %s, got %s (remove from %s to accept new key)",
		host, ssh.FingerprintSHA256(existing), ssh.FingerprintSHA256(key), d.knownHostsPath)
}

func (d *Driver) loadKnownHosts() {
	f, err := os.Open(d.knownHostsPath)
	if err != nil {
		return
	}
	defer f.Close()

	data, err := os.ReadFile(d.knownHostsPath)
	if err != nil {
		return
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, " ", 3)
		if len(parts) != 3 {
			continue
		}
		keyBytes, err := base64.StdEncoding.DecodeString(parts[2])
		if err != nil {
			continue
		}
		pubKey, err := ssh.ParsePublicKey(keyBytes)
		if err != nil {
			continue
		}
		d.hostKeys[parts[0]] = pubKey
	}
}

func (d *Driver) saveKnownHostsLocked() {
	dir := filepath.Dir(d.knownHostsPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		d.log.Warn("ssh tofu cannot create known_hosts dir", zap.Error(err))
		return
	}
	var buf strings.Builder
	buf.WriteString("# SSH known hosts (TOFU — managed by the remediation daemon)\n")
	for host, key := range d.hostKeys {
		buf.WriteString(fmt.Sprintf("%s %s %s\n", host, key.Type(), base64.StdEncoding.EncodeToString(key.Marshal())))
	}
	if err := os.WriteFile(d.knownHostsPath, []byte(buf.String()), 0o600); err != nil {
		d.log.Warn("ssh tofu failed to save known_hosts", zap.Error(err))
	}
}

func isAuthError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "unable to authenticate") ||
		strings.Contains(msg, "permission denied") ||
		strings.Contains(msg, "no supported methods remain")
}
