// Package winrm implements the WinRM driver for running PowerShell commands
// on Windows targets: session caching, NTLM auth, the cmd.exe 8191
// character limit worked around via temp-file chunking, and retry with
// backoff.
package winrm

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	gowinrm "github.com/masterzen/winrm"
	"go.uber.org/zap"

	"github.com/maftabmirza/remediation-engine-sub001/internal/executor"
)

const (
	sessionMaxAge     = 300 * time.Second
	inlineScriptLimit = 2000 // chars before switching to temp-file mode
	chunkSize         = 6000 // base64 chunk size for cmd.exe echo safety
)

type cachedSession struct {
	client    *gowinrm.Client
	createdAt time.Time
}

// Driver implements executor.Driver over github.com/masterzen/winrm.
type Driver struct {
	log *zap.Logger

	mu       sync.Mutex
	sessions map[string]*cachedSession
}

func New(log *zap.Logger) *Driver {
	return &Driver{log: log, sessions: make(map[string]*cachedSession)}
}

// Run executes command via PowerShell with a bounded retry loop.
func (d *Driver) Run(ctx context.Context, target executor.Target, command string, timeout time.Duration, retries int, retryDelay time.Duration) *executor.Result {
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

		res, err := d.runOnce(ctx, target, command, timeout)
		if err != nil {
			lastErr = err.Error()
			d.log.Warn("winrm execution failed", zap.String("host", target.Hostname), zap.Error(err))
			d.Invalidate(target.Hostname)
			continue
		}
		res.DurationSecs = time.Since(start).Seconds()
		res.RetryCount = retryCount
		return res
	}

	return &executor.Result{Success: false, ExitCode: -1, Err: lastErr, Stderr: lastErr, DurationSecs: time.Since(start).Seconds(), RetryCount: retryCount}
}

func (d *Driver) runOnce(ctx context.Context, target executor.Target, command string, timeout time.Duration) (*executor.Result, error) {
	client, err := d.getSession(target)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	type runOut struct {
		stdout, stderr string
		exit           int
		err            error
	}
	done := make(chan runOut, 1)

	go func() {
		var stdout, stderr string
		var exitCode int
		var runErr error
		if len(command) > inlineScriptLimit {
			stdout, stderr, exitCode, runErr = d.runViaTempFile(client, command)
		} else {
			stdout, stderr, exitCode, runErr = d.runInline(client, command)
		}
		done <- runOut{stdout, stderr, exitCode, runErr}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("context cancelled")
	case <-time.After(timeout):
		return nil, fmt.Errorf("execution timed out after %s", timeout)
	case out := <-done:
		if out.err != nil {
			return nil, out.err
		}
		return &executor.Result{
			Success:  out.exit == 0,
			ExitCode: out.exit,
			Stdout:   out.stdout,
			Stderr:   out.stderr,
		}, nil
	}
}

// runInline runs a short PowerShell command directly via -EncodedCommand.
func (d *Driver) runInline(client *gowinrm.Client, command string) (string, string, int, error) {
	shell, err := client.CreateShell()
	if err != nil {
		return "", "", -1, fmt.Errorf("create shell: %w", err)
	}
	defer shell.Close()

	encoded := encodePowerShell(command)
	cmd, err := shell.Execute("powershell.exe", "-NoProfile", "-NonInteractive", "-EncodedCommand", encoded)
	if err != nil {
		return "", "", -1, fmt.Errorf("execute: %w", err)
	}
	defer cmd.Close()

	var stdoutBuf, stderrBuf bytes.Buffer
	go io.Copy(&stdoutBuf, cmd.Stdout)
	go io.Copy(&stderrBuf, cmd.Stderr)
	cmd.Wait()

	return strings.TrimSpace(stdoutBuf.String()), strings.TrimSpace(stderrBuf.String()), cmd.ExitCode(), nil
}

// runViaTempFile works around the cmd.exe 8191-char command-line limit by
// chunking a base64-encoded script into a temp file via repeated echo
// commands, then decoding and running it in one PowerShell call.
func (d *Driver) runViaTempFile(client *gowinrm.Client, command string) (string, string, int, error) {
	hash := fmt.Sprintf("%x", sha256.Sum256([]byte(command)))[:8]
	tempB64 := fmt.Sprintf(`C:\Windows\Temp\remediate_%s.b64`, hash)
	tempPS1 := fmt.Sprintf(`C:\Windows\Temp\remediate_%s.ps1`, hash)

	encoded := base64.StdEncoding.EncodeToString([]byte(command))
	chunks := splitString(encoded, chunkSize)

	shell, err := client.CreateShell()
	if err != nil {
		return "", "", -1, fmt.Errorf("create shell: %w", err)
	}
	defer shell.Close()

	for i, chunk := range chunks {
		op := ">"
		if i > 0 {
			op = ">>"
		}
		cmdStr := fmt.Sprintf(`echo %s%s"%s"`, chunk, op, tempB64)
		cmd, err := shell.Execute("cmd.exe", "/c", cmdStr)
		if err != nil {
			return "", "", -1, fmt.Errorf("write chunk %d: %w", i, err)
		}
		cmd.Wait()
		cmd.Close()
		if cmd.ExitCode() != 0 {
			return "", "", -1, fmt.Errorf("write chunk %d failed: exit %d", i, cmd.ExitCode())
		}
	}

	decodeAndRun := fmt.Sprintf(
		`$r=(Get-Content '%s' -Raw) -replace '\s',''; `+
			`$b=[Convert]::FromBase64String($r); `+
			`[IO.File]::WriteAllText('%s',[Text.Encoding]::UTF8.GetString($b)); `+
			`Remove-Item '%s' -Force -EA SilentlyContinue; `+
			`try { & '%s' } finally { Remove-Item '%s' -Force -EA SilentlyContinue }`,
		tempB64, tempPS1, tempB64, tempPS1, tempPS1,
	)

	cmd, err := shell.Execute("powershell.exe", "-NoProfile", "-NonInteractive", "-EncodedCommand", encodePowerShell(decodeAndRun))
	if err != nil {
		return "", "", -1, fmt.Errorf("execute temp file: %w", err)
	}
	defer cmd.Close()

	var stdoutBuf, stderrBuf bytes.Buffer
	go io.Copy(&stdoutBuf, cmd.Stdout)
	go io.Copy(&stderrBuf, cmd.Stderr)
	cmd.Wait()

	return strings.TrimSpace(stdoutBuf.String()), strings.TrimSpace(stderrBuf.String()), cmd.ExitCode(), nil
}

func (d *Driver) getSession(target executor.Target) (*gowinrm.Client, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if cached, ok := d.sessions[target.Hostname]; ok {
		if time.Since(cached.createdAt) < sessionMaxAge {
			return cached.client, nil
		}
	}

	port := target.Port
	if port == 0 {
		if target.UseSSL {
			port = 5986
		} else {
			port = 5985
		}
	}

	endpoint := gowinrm.NewEndpoint(target.Hostname, port, target.UseSSL, !target.VerifySSL, nil, nil, nil, 120*time.Second)

	params := gowinrm.NewParameters("PT120S", "en-US", 153600)
	params.TransportDecorator = func() gowinrm.Transporter { return &gowinrm.ClientNTLM{} }

	client, err := gowinrm.NewClientWithParameters(endpoint, target.Username, target.Password, params)
	if err != nil {
		return nil, fmt.Errorf("create winrm client for %s: %w", target.Hostname, err)
	}

	d.sessions[target.Hostname] = &cachedSession{client: client, createdAt: time.Now()}
	d.log.Info("winrm new session", zap.String("host", target.Hostname), zap.Int("port", port), zap.Bool("ssl", target.UseSSL))
	return client, nil
}

// Invalidate drops the cached session for hostname.
func (d *Driver) Invalidate(hostname string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.sessions, hostname)
}

// CloseAll drops every cached session. WinRM sessions have no persistent
// connection object to close explicitly (shells are opened/closed per-run).
func (d *Driver) CloseAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sessions = make(map[string]*cachedSession)
}

// encodePowerShell encodes script for -EncodedCommand, which expects
// UTF-16LE base64.
func encodePowerShell(script string) string {
	utf16 := make([]byte, len(script)*2)
	for i, c := range []byte(script) {
		utf16[i*2] = c
		utf16[i*2+1] = 0
	}
	return base64.StdEncoding.EncodeToString(utf16)
}

func splitString(s string, size int) []string {
	var chunks []string
	for len(s) > 0 {
		end := size
		if end > len(s) {
			end = len(s)
		}
		chunks = append(chunks, s[:end])
		s = s[end:]
	}
	return chunks
}
