package fetch

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"mime"
	"net"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/Sriram-PR/crawl-loader/pkg/config"
	"github.com/Sriram-PR/crawl-loader/pkg/models"
	"github.com/Sriram-PR/crawl-loader/pkg/parse"
	"github.com/Sriram-PR/crawl-loader/pkg/utils"
)

// remoteEntry describes a file or directory on a file-like protocol
type remoteEntry struct {
	Name    string
	Dir     bool
	Size    int64 // -1 when the server did not report it
	ModTime time.Time
}

// session is an open connection to one file tree (an FTP login, an SMB share, the local disk)
// Paths are unescaped URL paths; a missing resource yields an error matching fs.ErrNotExist
type session interface {
	stat(p string) (remoteEntry, error)
	list(p string) ([]remoteEntry, error)
	open(p string) (io.ReadCloser, error)
	close() error
}

// dialFunc opens a session for the tree holding u
type dialFunc func(ctx context.Context, u *url.URL) (session, error)

// extensions the platform mime table may lack
var fallbackMimeTypes = map[string]string{
	".txt":  "text/plain",
	".text": "text/plain",
	".md":   "text/plain",
	".csv":  "text/csv",
	".doc":  "application/msword",
	".rtf":  "application/rtf",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".odt":  "application/vnd.oasis.opendocument.text",
}

// resourceAdapter serves FTP, SMB and local files: directories become listing pages,
// unparseable files become metadata-only responses, everything else is returned raw
type resourceAdapter struct {
	protocols []string
	parseable map[string]bool
	dial      dialFunc
	guard
}

func newResourceAdapter(protocol string, cfg *config.AppConfig, deps Deps, dial dialFunc) resourceAdapter {
	parseable := make(map[string]bool, len(cfg.ParseableMimeTypes))
	for _, mt := range cfg.ParseableMimeTypes {
		parseable[strings.ToLower(mt)] = true
	}
	return resourceAdapter{
		protocols: []string{protocol},
		parseable: parseable,
		dial:      dial,
		guard:     newGuard(protocol, deps),
	}
}

// Protocols implements Adapter
func (a *resourceAdapter) Protocols() []string {
	return a.protocols
}

// Fetch implements Adapter
func (a *resourceAdapter) Fetch(ctx context.Context, req *models.Request, opts FetchOptions) (*models.Response, error) {
	u := req.URL
	if a.protocol != "file" {
		if err := a.checkHost(u); err != nil {
			return nil, a.reject(req, nil, err)
		}
	}
	if err := a.checkBlacklist(u, opts.CheckBlacklist); err != nil {
		return nil, a.reject(req, nil, err)
	}
	if ctx.Err() != nil {
		return nil, a.reject(req, nil, utils.WrapErrorf(utils.ErrShutdownInProgress, "not connecting for '%s'", u.Redacted()))
	}

	start := time.Now()
	sess, err := a.dial(ctx, u)
	if err != nil {
		return nil, a.reject(req, nil, a.classify(ctx, u, "connecting", err))
	}
	defer func() {
		if cerr := sess.close(); cerr != nil {
			a.log.WithField("url", u.String()).Debugf("Closing session failed: %v", cerr)
		}
	}()

	resp, err := a.serve(ctx, sess, req, opts)
	a.deps.Metrics.ObserveFetch(a.protocol, time.Since(start))
	if err != nil {
		return nil, a.reject(req, nil, err)
	}
	return resp, nil
}

func (a *resourceAdapter) serve(ctx context.Context, sess session, req *models.Request, opts FetchOptions) (*models.Response, error) {
	u := req.URL
	p := resourcePath(u)
	reqLog := a.log.WithField("url", u.String())

	entry, err := sess.stat(p)
	if err != nil {
		return nil, a.classify(ctx, u, "stat", err)
	}

	if entry.Dir {
		entries, err := sess.list(p)
		if err != nil {
			return nil, a.classify(ctx, u, "listing", err)
		}
		content, err := renderListing(u, entries)
		if err != nil {
			return nil, utils.WrapErrorf(utils.ErrTransport, "rendering listing of '%s': %v", u.Redacted(), err)
		}
		a.account(int64(len(content)))
		reqLog.Debugf("Listed %d entries", len(entries))

		resp := models.NewResponse(req, nil, resourceHeader("text/html; charset=utf-8", entry.ModTime, len(content)), http.StatusOK, opts.Profile, content)
		resp.Indexable = false
		return resp, nil
	}

	mimeType := mimeTypeOf(p)
	if !a.parseable[mimeType] {
		// Only the name is indexed; the bytes are never transferred
		content := []byte(parse.TokenText(u))
		reqLog.Debugf("Serving metadata only for %s content", mimeType)
		header := resourceHeader(mimeType, entry.ModTime, len(content))
		if entry.Size >= 0 {
			header.Set("X-Resource-Size", strconv.FormatInt(entry.Size, 10))
		}
		return models.NewResponse(req, nil, header, http.StatusOK, opts.Profile, content), nil
	}

	if err := a.checkSize(u, entry.Size, opts.MaxFileSize); err != nil {
		return nil, err
	}
	body, err := sess.open(p)
	if err != nil {
		return nil, a.classify(ctx, u, "opening", err)
	}
	defer body.Close()

	var limited io.Reader = body
	if opts.MaxFileSize > 0 {
		limited = io.LimitReader(body, opts.MaxFileSize+1)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(limited); err != nil {
		return nil, a.classify(ctx, u, "reading", err)
	}
	if err := a.checkSize(u, int64(buf.Len()), opts.MaxFileSize); err != nil {
		return nil, err
	}
	content := buf.Bytes()
	a.account(int64(len(content)))
	reqLog.Debugf("Fetched %d bytes", len(content))

	return models.NewResponse(req, nil, resourceHeader(mimeType, entry.ModTime, len(content)), http.StatusOK, opts.Profile, content), nil
}

// classify maps a session error to the fetch taxonomy
func (a *resourceAdapter) classify(ctx context.Context, u *url.URL, op string, err error) error {
	switch {
	case ctx.Err() != nil:
		return utils.WrapErrorf(utils.ErrShutdownInProgress, "%s '%s' interrupted: %v", op, u.Redacted(), err)
	case errors.Is(err, fs.ErrNotExist):
		return utils.WrapErrorf(utils.ErrUnexpectedStatus, "'%s' not found: %v", u.Redacted(), err)
	case errors.Is(err, fs.ErrPermission):
		return utils.WrapErrorf(utils.ErrUnexpectedStatus, "access to '%s' denied: %v", u.Redacted(), err)
	default:
		return utils.WrapErrorf(utils.ErrTransport, "%s '%s': %v", op, u.Redacted(), err)
	}
}

// resourcePath returns the unescaped path of u, "/" when empty
func resourcePath(u *url.URL) string {
	if u.Path == "" {
		return "/"
	}
	return u.Path
}

// mimeTypeOf guesses the media type of a file from its extension
// Files without an extension are treated as plain text
func mimeTypeOf(p string) string {
	ext := strings.ToLower(path.Ext(p))
	if ext == "" {
		return "text/plain"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		if mediaType, _, err := mime.ParseMediaType(t); err == nil {
			return mediaType
		}
	}
	if t, ok := fallbackMimeTypes[ext]; ok {
		return t
	}
	return "application/octet-stream"
}

func resourceHeader(contentType string, modTime time.Time, size int) http.Header {
	header := http.Header{}
	header.Set("Content-Type", contentType)
	header.Set("Content-Length", strconv.Itoa(size))
	if !modTime.IsZero() {
		header.Set("Last-Modified", modTime.UTC().Format(http.TimeFormat))
	}
	return header
}

// deadlineConn arms a fresh read or write deadline before every I/O call
// A peer that stops answering fails the pending call after timeout
type deadlineConn struct {
	net.Conn
	timeout time.Duration
}

func withDeadlines(conn net.Conn, timeout time.Duration) net.Conn {
	if timeout <= 0 {
		return conn
	}
	return &deadlineConn{Conn: conn, timeout: timeout}
}

func (c *deadlineConn) Read(b []byte) (int, error) {
	if err := c.Conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Read(b)
}

func (c *deadlineConn) Write(b []byte) (int, error) {
	if err := c.Conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Write(b)
}
