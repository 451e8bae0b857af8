package validation

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"

	errpkg "github.com/veranemoloko/audio-downloader/internal/errors"
)

// MissingURLMessage is the client-facing text for an absent video URL.
const MissingURLMessage = "You must provide a video URL."

var (
	ErrURLRequired = fmt.Errorf("%w: video URL is required", errpkg.ErrInvalidInput)
	ErrUnsafeURL   = fmt.Errorf("%w: video URL must be a public http(s) address", errpkg.ErrInvalidInput)
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("safe_url", validateSafeURL)
}

// ValidateVideoURL checks that raw is present and points at a public
// http(s) host. The returned error wraps ErrInvalidInput.
func ValidateVideoURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if err := validate.Var(raw, "required"); err != nil {
		return ErrURLRequired
	}
	if err := validate.Var(raw, "safe_url"); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return fmt.Errorf("%w: %q", ErrUnsafeURL, raw)
		}
		return fmt.Errorf("%w: %v", errpkg.ErrInvalidInput, err)
	}
	return nil
}

func validateSafeURL(fl validator.FieldLevel) bool {
	urlStr := fl.Field().String()

	u, err := url.Parse(urlStr)
	if err != nil {
		return false
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}

	if u.Host == "" {
		return false
	}

	host := u.Hostname()

	forbiddenHosts := []string{
		"localhost",
		"127.0.0.1",
		"::1",
		"0.0.0.0",
		"169.254.169.254",
	}

	for _, forbidden := range forbiddenHosts {
		if strings.EqualFold(host, forbidden) {
			return false
		}
	}

	if ip := net.ParseIP(host); ip != nil {
		if ip.IsPrivate() || ip.IsLoopback() || ip.IsUnspecified() || ip.IsLinkLocalUnicast() {
			return false
		}
	}

	return true
}
