package nfsmount

import (
	"fmt"
	"net"
	"os/exec"
	"runtime"

	billy "github.com/go-git/go-billy/v5"
	nfs "github.com/willscott/go-nfs"
	nfshelper "github.com/willscott/go-nfs/helpers"
)

// handleCacheSize bounds the file handles go-nfs keeps per server.
const handleCacheSize = 4096

// Server is an NFSv3 server on a loopback TCP port.
type Server struct {
	l    net.Listener
	done chan error
}

// NewServer serves fs on an ephemeral port of addr's host, "localhost" when
// addr is empty.
func NewServer(fs billy.Filesystem, addr string) (*Server, error) {
	if addr == "" {
		addr = "localhost:0"
	}
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("nfs listen: %w", err)
	}
	handler := nfshelper.NewCachingHandler(nfshelper.NewNullAuthHandler(fs), handleCacheSize)
	s := &Server{l: l, done: make(chan error, 1)}
	go func() { s.done <- nfs.Serve(l, handler) }()
	return s, nil
}

// Port is the TCP port the server listens on.
func (s *Server) Port() int { return s.l.Addr().(*net.TCPAddr).Port }

// Close stops accepting connections and waits for the serve loop to exit.
func (s *Server) Close() error {
	err := s.l.Close()
	<-s.done
	return err
}

// mountArgs is the command that mounts a local server read-only on goos.
func mountArgs(goos string, port int, mountpoint string) ([]string, error) {
	var opts string
	switch goos {
	case "darwin":
		opts = fmt.Sprintf("port=%d,mountport=%d,vers=3,tcp,locallocks,noresvport,rdonly", port, port)
	case "linux":
		opts = fmt.Sprintf("port=%d,mountport=%d,vers=3,tcp,local_lock=all,nolock,ro", port, port)
	default:
		return nil, fmt.Errorf("nfs mount: unsupported OS %s", goos)
	}
	return []string{"sudo", "mount", "-t", "nfs", "-o", opts, "localhost:/", mountpoint}, nil
}

// unmountArgs lists the commands tried in order to unmount mountpoint.
func unmountArgs(goos, mountpoint string) [][]string {
	umount := []string{"sudo", "umount", mountpoint}
	if goos == "darwin" {
		return [][]string{{"diskutil", "unmount", mountpoint}, umount}
	}
	return [][]string{umount}
}

// Mount mounts the server on port at mountpoint. It needs sudo.
func Mount(port int, mountpoint string) error {
	args, err := mountArgs(runtime.GOOS, port, mountpoint)
	if err != nil {
		return err
	}
	if out, err := exec.Command(args[0], args[1:]...).CombinedOutput(); err != nil {
		return fmt.Errorf("mount %s: %w\n%s", mountpoint, err, out)
	}
	return nil
}

// Unmount undoes Mount.
func Unmount(mountpoint string) error {
	var err error
	for _, args := range unmountArgs(runtime.GOOS, mountpoint) {
		var out []byte
		if out, err = exec.Command(args[0], args[1:]...).CombinedOutput(); err == nil {
			return nil
		}
		err = fmt.Errorf("unmount %s: %w\n%s", mountpoint, err, out)
	}
	return err
}
