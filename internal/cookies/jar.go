// Package cookies acquires authentication cookie jars for login-gated sources.
package cookies

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

const httpOnlyPrefix = "#HttpOnly_"

// Cookie is one record of a Netscape cookie jar.
type Cookie struct {
	Domain            string
	IncludeSubdomains bool
	Path              string
	Secure            bool
	HTTPOnly          bool
	// Expires is zero for session cookies.
	Expires time.Time
	Name    string
	Value   string
}

// Expired reports whether c is past its expiry at now. Session cookies never expire.
func (c Cookie) Expired(now time.Time) bool {
	return !c.Expires.IsZero() && !c.Expires.After(now)
}

// ParseJar reads a Netscape cookie jar: one cookie per line, seven
// tab-separated fields (domain, include-subdomains, path, secure, expiry,
// name, value). Comment and blank lines are skipped.
func ParseJar(r io.Reader) ([]Cookie, error) {
	var jar []Cookie
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		httpOnly := false
		if strings.HasPrefix(line, httpOnlyPrefix) {
			httpOnly = true
			line = strings.TrimPrefix(line, httpOnlyPrefix)
		} else if strings.HasPrefix(line, "#") || strings.TrimSpace(line) == "" {
			continue
		}

		fields := strings.Split(line, "\t")
		if len(fields) != 7 {
			return nil, fmt.Errorf("line %d: expected 7 tab-separated fields, got %d", lineNo, len(fields))
		}

		expiry, err := strconv.ParseInt(fields[4], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid expiry %q: %w", lineNo, fields[4], err)
		}
		var expires time.Time
		if expiry > 0 {
			expires = time.Unix(expiry, 0)
		}

		jar = append(jar, Cookie{
			Domain:            fields[0],
			IncludeSubdomains: strings.EqualFold(fields[1], "TRUE"),
			Path:              fields[2],
			Secure:            strings.EqualFold(fields[3], "TRUE"),
			HTTPOnly:          httpOnly,
			Expires:           expires,
			Name:              fields[5],
			Value:             fields[6],
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read cookie jar: %w", err)
	}
	return jar, nil
}

// WriteJar writes cookies in Netscape format, readable by ParseJar and the
// extraction tool's --cookies option.
func WriteJar(w io.Writer, jar []Cookie) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString("# Netscape HTTP Cookie File\n"); err != nil {
		return err
	}
	for _, c := range jar {
		domain := c.Domain
		if c.HTTPOnly {
			domain = httpOnlyPrefix + domain
		}
		var expiry int64
		if !c.Expires.IsZero() {
			expiry = c.Expires.Unix()
		}
		if _, err := fmt.Fprintf(bw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			domain, boolField(c.IncludeSubdomains), c.Path, boolField(c.Secure), expiry, c.Name, c.Value); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func boolField(v bool) string {
	if v {
		return "TRUE"
	}
	return "FALSE"
}
