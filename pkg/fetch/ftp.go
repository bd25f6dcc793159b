package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"net/textproto"
	"net/url"
	"path"

	"github.com/jlaffaye/ftp"

	"github.com/Sriram-PR/crawl-loader/pkg/config"
)

// FTPAdapter fetches ftp resources
type FTPAdapter struct {
	resourceAdapter
}

// NewFTPAdapter creates the adapter for ftp URLs
// Credentials come from the URL, else from the ftp config section
func NewFTPAdapter(cfg *config.AppConfig, deps Deps) *FTPAdapter {
	a := &FTPAdapter{}
	a.resourceAdapter = newResourceAdapter("ftp", cfg, deps, func(ctx context.Context, u *url.URL) (session, error) {
		return dialFTP(ctx, u, cfg.FTP)
	})
	return a
}

type ftpSession struct {
	conn *ftp.ServerConn
}

func dialFTP(ctx context.Context, u *url.URL, cfg config.FTPConfig) (session, error) {
	addr := u.Host
	if u.Port() == "" {
		addr = net.JoinHostPort(u.Hostname(), "21")
	}
	// Control and data connections both go through dial, so every read is bounded by the timeout
	dialer := &net.Dialer{Timeout: cfg.Timeout}
	dial := func(network, address string) (net.Conn, error) {
		conn, err := dialer.DialContext(ctx, network, address)
		if err != nil {
			return nil, err
		}
		return withDeadlines(conn, cfg.Timeout), nil
	}
	conn, err := ftp.Dial(addr, ftp.DialWithDialFunc(dial))
	if err != nil {
		return nil, err
	}

	user, password := cfg.User, cfg.Password
	if u.User != nil {
		user = u.User.Username()
		password, _ = u.User.Password()
	}
	if err := conn.Login(user, password); err != nil {
		_ = conn.Quit()
		return nil, fmt.Errorf("login as '%s': %w", user, err)
	}
	return &ftpSession{conn: conn}, nil
}

func (s *ftpSession) stat(p string) (remoteEntry, error) {
	name := path.Base(p)
	size, sizeErr := s.conn.FileSize(p)
	if sizeErr == nil {
		return remoteEntry{Name: name, Size: size}, nil
	}
	if err := s.conn.ChangeDir(p); err == nil {
		return remoteEntry{Name: name, Dir: true, Size: -1}, nil
	}
	if isFileUnavailable(sizeErr) {
		return remoteEntry{}, ftpError(sizeErr)
	}
	// SIZE is an extension; without it the file is assumed and RETR decides
	return remoteEntry{Name: name, Size: -1}, nil
}

func (s *ftpSession) list(p string) ([]remoteEntry, error) {
	listed, err := s.conn.List(p)
	if err != nil {
		return nil, ftpError(err)
	}
	entries := make([]remoteEntry, 0, len(listed))
	for _, e := range listed {
		entries = append(entries, remoteEntry{
			Name:    e.Name,
			Dir:     e.Type == ftp.EntryTypeFolder,
			Size:    int64(e.Size),
			ModTime: e.Time,
		})
	}
	return entries, nil
}

func (s *ftpSession) open(p string) (io.ReadCloser, error) {
	resp, err := s.conn.Retr(p)
	if err != nil {
		return nil, ftpError(err)
	}
	return resp, nil
}

func (s *ftpSession) close() error {
	return s.conn.Quit()
}

// ftpError marks "file unavailable" replies as not found
func ftpError(err error) error {
	var reply *textproto.Error
	if isFileUnavailable(err) && errors.As(err, &reply) {
		return fmt.Errorf("ftp reply %d %s: %w", reply.Code, reply.Msg, fs.ErrNotExist)
	}
	return err
}

func isFileUnavailable(err error) bool {
	var reply *textproto.Error
	return errors.As(err, &reply) && reply.Code == ftp.StatusFileUnavailable
}
