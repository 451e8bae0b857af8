package cookies

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	errpkg "github.com/veranemoloko/audio-downloader/internal/errors"
)

// Provider returns the path of a usable cookie jar.
type Provider interface {
	Acquire(ctx context.Context) (string, error)
}

// Policy decides which downloads need cookies.
type Policy string

const (
	PolicyNever  Policy = "never"
	PolicyAlways Policy = "always"
	PolicyHosts  Policy = "hosts"
)

// Valid reports whether p is a known policy.
func (p Policy) Valid() bool {
	switch p {
	case PolicyNever, PolicyAlways, PolicyHosts:
		return true
	}
	return false
}

// Gate applies a Policy to decide whether a URL needs cookies.
type Gate struct {
	Policy Policy
	// Hosts lists domains that require cookies under PolicyHosts.
	// Subdomains match, so "youtube.com" covers "www.youtube.com".
	Hosts []string
}

// Required reports whether rawURL must be fetched with cookies.
func (g Gate) Required(rawURL string) bool {
	switch g.Policy {
	case PolicyAlways:
		return true
	case PolicyHosts:
		u, err := url.Parse(rawURL)
		if err != nil {
			return false
		}
		host := strings.ToLower(u.Hostname())
		for _, h := range g.Hosts {
			h = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(h), "."))
			if h == "" {
				continue
			}
			if host == h || strings.HasSuffix(host, "."+h) {
				return true
			}
		}
	}
	return false
}

// FileProvider serves a cookie jar maintained outside the process.
type FileProvider struct {
	Path string
	now  func() time.Time
}

// NewFileProvider creates a FileProvider for path.
func NewFileProvider(path string) *FileProvider {
	return &FileProvider{Path: path, now: time.Now}
}

// Acquire validates the jar and returns its path. A missing, malformed, or
// fully expired jar yields ErrAuthUnavailable.
func (p *FileProvider) Acquire(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := validateJarFile(p.Path, p.now()); err != nil {
		return "", err
	}
	return p.Path, nil
}

func validateJarFile(path string, now time.Time) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: open cookie jar: %v", errpkg.ErrAuthUnavailable, err)
	}
	defer f.Close()

	jar, err := ParseJar(f)
	if err != nil {
		return fmt.Errorf("%w: %v", errpkg.ErrAuthUnavailable, err)
	}
	for _, c := range jar {
		if !c.Expired(now) {
			return nil
		}
	}
	return fmt.Errorf("%w: cookie jar %s has no live cookies", errpkg.ErrAuthUnavailable, path)
}

// browserCookie is the JSON shape printed by headless browser helpers such
// as puppeteer's page.cookies().
type browserCookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	Secure   bool    `json:"secure"`
	HTTPOnly bool    `json:"httpOnly"`
}

// CommandProvider runs an external helper (typically a headless browser
// script) that prints the captured cookies as a JSON array on stdout, and
// writes them to JarPath in Netscape format.
type CommandProvider struct {
	Command string
	Args    []string
	JarPath string
	Timeout time.Duration
	logger  *slog.Logger
}

// NewCommandProvider creates a CommandProvider. commandLine is split on
// whitespace into the binary and its arguments.
func NewCommandProvider(commandLine, jarPath string, timeout time.Duration, logger *slog.Logger) *CommandProvider {
	parts := strings.Fields(commandLine)
	p := &CommandProvider{JarPath: jarPath, Timeout: timeout, logger: logger}
	if len(parts) > 0 {
		p.Command = parts[0]
		p.Args = parts[1:]
	}
	return p
}

// Acquire runs the helper and returns the freshly written jar path.
func (p *CommandProvider) Acquire(ctx context.Context) (string, error) {
	if p.Command == "" {
		return "", fmt.Errorf("%w: no cookie command configured", errpkg.ErrAuthUnavailable)
	}
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	started := time.Now()
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, p.Command, p.Args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%w: cookie command: %v: %s", errpkg.ErrAuthUnavailable, err, strings.TrimSpace(stderr.String()))
	}

	var captured []browserCookie
	if err := json.Unmarshal(stdout.Bytes(), &captured); err != nil {
		return "", fmt.Errorf("%w: decode cookie command output: %v", errpkg.ErrAuthUnavailable, err)
	}
	if len(captured) == 0 {
		return "", fmt.Errorf("%w: cookie command returned no cookies", errpkg.ErrAuthUnavailable)
	}

	if err := p.writeJar(toJar(captured)); err != nil {
		return "", fmt.Errorf("%w: %v", errpkg.ErrAuthUnavailable, err)
	}

	p.logger.Info("cookies acquired",
		"count", len(captured),
		"jar", p.JarPath,
		"duration", time.Since(started),
	)
	return p.JarPath, nil
}

func (p *CommandProvider) writeJar(jar []Cookie) error {
	if err := os.MkdirAll(filepath.Dir(p.JarPath), 0o700); err != nil {
		return fmt.Errorf("create jar directory: %w", err)
	}

	tempFile := p.JarPath + ".tmp"
	f, err := os.OpenFile(tempFile, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("create temporary jar: %w", err)
	}
	if err := WriteJar(f, jar); err != nil {
		f.Close()
		os.Remove(tempFile)
		return fmt.Errorf("write jar: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("close jar: %w", err)
	}
	if err := os.Rename(tempFile, p.JarPath); err != nil {
		return fmt.Errorf("rename temporary jar: %w", err)
	}
	return nil
}

func toJar(captured []browserCookie) []Cookie {
	jar := make([]Cookie, 0, len(captured))
	for _, bc := range captured {
		path := bc.Path
		if path == "" {
			path = "/"
		}
		var expires time.Time
		if bc.Expires > 0 {
			expires = time.Unix(int64(bc.Expires), 0)
		}
		jar = append(jar, Cookie{
			Domain:            bc.Domain,
			IncludeSubdomains: strings.HasPrefix(bc.Domain, "."),
			Path:              path,
			Secure:            bc.Secure,
			HTTPOnly:          bc.HTTPOnly,
			Expires:           expires,
			Name:              bc.Name,
			Value:             bc.Value,
		})
	}
	return jar
}
