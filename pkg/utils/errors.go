package utils

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
)

// --- Fetch rejection taxonomy ---
// Every terminal kind is journaled before it reaches the caller
var (
	ErrMalformedHost       = errors.New("host is not well-formed")
	ErrBlacklisted         = errors.New("url is blacklisted")
	ErrEmptyRedirect       = errors.New("redirect without location")
	ErrTooManyRedirects    = errors.New("redirection counter exceeded")
	ErrDuplicateContent    = errors.New("redirect to already indexed content")
	ErrEmptyBody           = errors.New("empty response body")
	ErrTooLarge            = errors.New("file size limit exceeded")
	ErrUnexpectedStatus    = errors.New("unexpected status code")
	ErrUnsupportedProtocol = errors.New("unsupported protocol")
	ErrOfflineOnly         = errors.New("cache only strategy, no cached copy")
	ErrSecurityViolation   = errors.New("access to loopback host not granted")
	ErrShutdownInProgress  = errors.New("shutdown in progress")
	ErrTransport           = errors.New("transport error")    // Wraps the underlying network/filesystem error
	ErrCacheWrite          = errors.New("cache write failed") // Non-fatal, logged only
)

// --- Infrastructure sentinels ---
var (
	ErrParsing          = errors.New("parsing error")    // Wraps specific parsing error (URL, YAML, JSON)
	ErrFilesystem       = errors.New("filesystem error") // Wraps os errors
	ErrDatabase         = errors.New("database error")   // Wraps badger/gorm errors
	ErrConfigValidation = errors.New("configuration validation error")
)

// WrapErrorf wraps sentinel with a formatted message so errors.Is still matches
func WrapErrorf(sentinel error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
}

// IsTerminal reports whether err is one of the fetch rejections that end a load
func IsTerminal(err error) bool {
	if err == nil {
		return false
	}
	for _, s := range []error{
		ErrMalformedHost, ErrBlacklisted, ErrEmptyRedirect, ErrTooManyRedirects,
		ErrDuplicateContent, ErrEmptyBody, ErrTooLarge, ErrUnexpectedStatus,
		ErrUnsupportedProtocol, ErrOfflineOnly, ErrSecurityViolation,
		ErrShutdownInProgress, ErrTransport,
	} {
		if errors.Is(err, s) {
			return true
		}
	}
	return false
}

// CategorizeError maps an error to a predefined category string for the failure journal and metrics.
func CategorizeError(err error) string {
	if err == nil {
		return "None"
	}

	switch {
	case errors.Is(err, ErrMalformedHost):
		return "Reject_MalformedHost"
	case errors.Is(err, ErrBlacklisted):
		if strings.Contains(err.Error(), "robots.txt") {
			return "Policy_Robots"
		}
		return "Policy_Blacklisted"
	case errors.Is(err, ErrEmptyRedirect):
		return "Redirect_Empty"
	case errors.Is(err, ErrTooManyRedirects):
		return "Redirect_TooMany"
	case errors.Is(err, ErrDuplicateContent):
		return "Redirect_DuplicateContent"
	case errors.Is(err, ErrEmptyBody):
		return "Reject_EmptyBody"
	case errors.Is(err, ErrTooLarge):
		return "Reject_TooLarge"
	case errors.Is(err, ErrUnexpectedStatus):
		errMsg := err.Error()
		if strings.Contains(errMsg, "status 404") {
			return "HTTP_404"
		}
		if strings.Contains(errMsg, "status 403") {
			return "HTTP_403"
		}
		if strings.Contains(errMsg, "status 5") {
			return "HTTP_5xx"
		}
		return "HTTP_OtherStatus"
	case errors.Is(err, ErrUnsupportedProtocol):
		return "Dispatch_UnsupportedProtocol"
	case errors.Is(err, ErrOfflineOnly):
		return "Cache_OfflineOnly"
	case errors.Is(err, ErrSecurityViolation):
		return "Policy_Loopback"
	case errors.Is(err, ErrShutdownInProgress):
		return "System_Shutdown"
	case errors.Is(err, ErrCacheWrite):
		return "Cache_WriteFailure"
	case errors.Is(err, ErrParsing):
		if strings.Contains(err.Error(), "URL") {
			return "Content_ParsingURL"
		}
		return "Content_ParsingOther"
	case errors.Is(err, ErrFilesystem):
		if errors.Is(err, os.ErrPermission) {
			return "Filesystem_Permission"
		}
		if errors.Is(err, os.ErrNotExist) {
			return "Filesystem_NotExist"
		}
		return "Filesystem_Other"
	case errors.Is(err, ErrDatabase):
		return "Database_Other"
	case errors.Is(err, ErrConfigValidation):
		return "Config_Validation"
	}

	// --- Fallback checks for transport errors and raw underlying errors ---

	if errors.Is(err, context.Canceled) {
		return "System_ContextCanceled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "Network_Timeout"
	}
	if errors.Is(err, os.ErrNotExist) {
		return "Filesystem_NotExist"
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "Network_Timeout"
	}
	lowerErrMsg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lowerErrMsg, "timeout"):
		return "Network_TimeoutGeneric"
	case strings.Contains(lowerErrMsg, "connection refused"):
		return "Network_ConnectionRefused"
	case strings.Contains(lowerErrMsg, "no such host"):
		return "Network_DNSLookup"
	case strings.Contains(lowerErrMsg, "tls") || strings.Contains(lowerErrMsg, "certificate"):
		return "Network_TLS"
	case strings.Contains(lowerErrMsg, "reset by peer"):
		return "Network_ConnectionReset"
	}

	if errors.Is(err, ErrTransport) {
		return "Network_Other"
	}
	return "Unknown"
}
