// Package classify turns probe failures and HTTP statuses into existence
// and accessibility verdicts.
package classify

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"strings"
	"syscall"
)

// Error codes reported in debug output.
const (
	CodeNotFound = "ENOTFOUND"
	CodeTimeout  = "ETIMEDOUT"
	CodeRefused  = "ECONNREFUSED"
	CodeReset    = "ECONNRESET"
	CodeAborted  = "ECONNABORTED"
	CodeTLS      = "ETLS"
	CodeRedirect = "EREDIRECT"
	CodeCanceled = "ECANCELED"
	CodeRejected = "EREJECTED"
	CodeUnknown  = "EUNKNOWN"
)

// Class is the failure taxonomy.
type Class string

const (
	ClassNotFound     Class = "not_found"    // authoritative DNS negative
	ClassBlocked      Class = "blocked"      // live, but a definitive read was prevented
	ClassSuccess      Class = "success"      // 2xx/3xx
	ClassInconclusive Class = "inconclusive" // 5xx, try the next strategy
)

var (
	// ErrTooManyRedirects is returned by redirect policies when the cap is hit.
	ErrTooManyRedirects = errors.New("classify: too many redirects")

	// ErrRejected marks a request the URL guard refused to send, such as a
	// redirect into a private network.
	ErrRejected = errors.New("classify: target rejected")
)

// Outcome is the verdict for one observation.
type Outcome struct {
	Exists     bool
	Accessible bool
	Class      Class
	Code       string
}

// Inconclusive reports whether the observation proves nothing either way.
func (o Outcome) Inconclusive() bool { return o.Class == ClassInconclusive }

// Error classifies a transport failure. Only a DNS negative means the name
// does not exist; every other failure is treated as a live host that is
// refusing or slowing us.
func Error(err error) Outcome {
	if err == nil {
		return Outcome{Exists: true, Accessible: true, Class: ClassSuccess}
	}
	if IsNotFound(err) {
		return Outcome{Class: ClassNotFound, Code: CodeNotFound}
	}
	return Outcome{Exists: true, Class: ClassBlocked, Code: code(err)}
}

// Status classifies an HTTP response status.
func Status(status int) Outcome {
	switch {
	case status >= 500:
		return Outcome{Class: ClassInconclusive}
	case status >= 200 && status < 400:
		return Outcome{Exists: true, Accessible: true, Class: ClassSuccess}
	default:
		return Outcome{Exists: true, Class: ClassBlocked}
	}
}

// IsNotFound reports whether err is a negative DNS answer.
func IsNotFound(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "no such host")
}

func code(err error) string {
	switch {
	case errors.Is(err, ErrTooManyRedirects):
		return CodeRedirect
	case errors.Is(err, ErrRejected):
		return CodeRejected
	case errors.Is(err, context.Canceled):
		return CodeCanceled
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, syscall.ETIMEDOUT):
		return CodeTimeout
	case errors.Is(err, syscall.ECONNREFUSED):
		return CodeRefused
	case errors.Is(err, syscall.ECONNRESET):
		return CodeReset
	case errors.Is(err, syscall.ECONNABORTED):
		return CodeAborted
	case isTLS(err):
		return CodeTLS
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CodeTimeout
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline exceeded"):
		return CodeTimeout
	case strings.Contains(msg, "connection refused"):
		return CodeRefused
	case strings.Contains(msg, "connection reset"), strings.Contains(msg, "eof"):
		return CodeReset
	case strings.Contains(msg, "tls"), strings.Contains(msg, "handshake"), strings.Contains(msg, "certificate"):
		return CodeTLS
	}
	return CodeUnknown
}

func isTLS(err error) bool {
	var (
		recErr   tls.RecordHeaderError
		unkAuth  x509.UnknownAuthorityError
		hostErr  x509.HostnameError
		certErr  x509.CertificateInvalidError
		verifErr *tls.CertificateVerificationError
	)
	return errors.As(err, &recErr) ||
		errors.As(err, &unkAuth) ||
		errors.As(err, &hostErr) ||
		errors.As(err, &certErr) ||
		errors.As(err, &verifErr)
}
