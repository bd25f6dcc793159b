package fetch

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/url"
	"path"
	"strings"

	"github.com/hirochachacha/go-smb2"

	"github.com/Sriram-PR/crawl-loader/pkg/config"
)

// SMBAdapter fetches smb resources; the first path segment names the share
type SMBAdapter struct {
	resourceAdapter
}

// NewSMBAdapter creates the adapter for smb URLs
// Credentials come from the URL, else from the smb config section
func NewSMBAdapter(cfg *config.AppConfig, deps Deps) *SMBAdapter {
	a := &SMBAdapter{}
	a.resourceAdapter = newResourceAdapter("smb", cfg, deps, func(ctx context.Context, u *url.URL) (session, error) {
		return dialSMB(ctx, u, cfg.SMB)
	})
	return a
}

type smbSession struct {
	conn  net.Conn
	sess  *smb2.Session
	share *smb2.Share // nil at the server root
}

func dialSMB(ctx context.Context, u *url.URL, cfg config.SMBConfig) (session, error) {
	addr := u.Host
	if u.Port() == "" {
		addr = net.JoinHostPort(u.Hostname(), "445")
	}
	dialer := &net.Dialer{Timeout: cfg.Timeout}
	raw, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	conn := withDeadlines(raw, cfg.Timeout)

	initiator := &smb2.NTLMInitiator{User: cfg.User, Password: cfg.Password, Domain: cfg.Domain}
	if u.User != nil {
		initiator.User = u.User.Username()
		initiator.Password, _ = u.User.Password()
	}
	d := &smb2.Dialer{Initiator: initiator}
	sess, err := d.DialContext(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("smb session setup as '%s': %w", initiator.User, err)
	}

	s := &smbSession{conn: conn, sess: sess}
	if shareName, _ := splitShare(resourcePath(u)); shareName != "" {
		share, err := sess.Mount(shareName)
		if err != nil {
			_ = s.close()
			return nil, fmt.Errorf("mounting share '%s': %w", shareName, err)
		}
		s.share = share.WithContext(ctx)
	}
	return s, nil
}

// splitShare separates "/share/dir/file" into "share" and "dir/file"
func splitShare(p string) (string, string) {
	trimmed := strings.TrimPrefix(p, "/")
	share, rest, _ := strings.Cut(trimmed, "/")
	return share, strings.TrimSuffix(rest, "/")
}

func (s *smbSession) stat(p string) (remoteEntry, error) {
	_, rest := splitShare(p)
	if s.share == nil || rest == "" {
		return remoteEntry{Name: path.Base(p), Dir: true, Size: -1}, nil
	}
	info, err := s.share.Stat(rest)
	if err != nil {
		return remoteEntry{}, err
	}
	size := info.Size()
	if info.IsDir() {
		size = -1
	}
	return remoteEntry{Name: info.Name(), Dir: info.IsDir(), Size: size, ModTime: info.ModTime()}, nil
}

func (s *smbSession) list(p string) ([]remoteEntry, error) {
	if s.share == nil {
		names, err := s.sess.ListSharenames()
		if err != nil {
			return nil, err
		}
		entries := make([]remoteEntry, 0, len(names))
		for _, name := range names {
			// Administrative shares such as IPC$ and C$ are not crawled
			if strings.HasSuffix(name, "$") {
				continue
			}
			entries = append(entries, remoteEntry{Name: name, Dir: true, Size: -1})
		}
		return entries, nil
	}

	_, rest := splitShare(p)
	if rest == "" {
		rest = "."
	}
	infos, err := s.share.ReadDir(rest)
	if err != nil {
		return nil, err
	}
	entries := make([]remoteEntry, 0, len(infos))
	for _, info := range infos {
		entries = append(entries, remoteEntry{Name: info.Name(), Dir: info.IsDir(), Size: info.Size(), ModTime: info.ModTime()})
	}
	return entries, nil
}

func (s *smbSession) open(p string) (io.ReadCloser, error) {
	_, rest := splitShare(p)
	if s.share == nil || rest == "" {
		return nil, fmt.Errorf("'%s' is not a file", p)
	}
	f, err := s.share.Open(rest)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (s *smbSession) close() error {
	if s.share != nil {
		_ = s.share.Umount()
	}
	err := s.sess.Logoff()
	_ = s.conn.Close()
	return err
}
