package daemon

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"runtime"
	"time"

	log "github.com/sirupsen/logrus"
	nfs "github.com/willscott/go-nfs"
	nfshelper "github.com/willscott/go-nfs/helpers"

	"treemount/internal/dispatch"
)

// handleCacheSize bounds the NFS caching handler's file-handle table.
const handleCacheSize = 65536

// NFSServer wraps the go-nfs server serving one mount's dispatch adapter.
type NFSServer struct {
	listener net.Listener
	server   *nfs.Server
	handler  nfs.Handler
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewNFSServer creates an NFS server exporting adapter's filesystem.
func NewNFSServer(adapter *dispatch.Adapter) *NFSServer {
	// Match go-nfs's log level to ours.
	if log.IsLevelEnabled(log.TraceLevel) {
		nfs.Log.SetLevel(nfs.TraceLevel)
	} else if log.IsLevelEnabled(log.DebugLevel) {
		nfs.Log.SetLevel(nfs.DebugLevel)
	}

	handler := nfshelper.NewNullAuthHandler(adapter)
	cacheHelper := nfshelper.NewCachingHandler(handler, handleCacheSize)

	ctx, cancel := context.WithCancel(context.Background())
	server := &nfs.Server{
		Handler: cacheHelper,
		Context: ctx,
	}

	return &NFSServer{
		server:  server,
		handler: cacheHelper,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

// Listen binds addr without serving yet, so the caller can learn the
// bound port before the OS-level mount command needs it.
func (s *NFSServer) Listen(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.listener = listener
	return nil
}

// Port returns the bound TCP port. Valid after Listen.
func (s *NFSServer) Port() int {
	if s.listener == nil {
		return 0
	}
	return s.listener.Addr().(*net.TCPAddr).Port
}

// Serve runs the accept loop; it blocks until Shutdown.
func (s *NFSServer) Serve() error {
	if s.listener == nil {
		return fmt.Errorf("NFS server: Serve before Listen")
	}
	return s.server.Serve(s.listener)
}

// Shutdown stops the NFS server gracefully.
func (s *NFSServer) Shutdown() {
	if s.listener != nil {
		s.listener.Close()
	}

	// Settle time for in-flight NFS operations after listener close; the
	// OS mount is unmounted before this runs, so the kernel client has
	// already disconnected.
	time.Sleep(100 * time.Millisecond)

	if s.cancel != nil {
		s.cancel()
	}
	close(s.done)
}

// MountNetFS mounts the served filesystem at mountPath through the
// platform's NFS client: soft with a short timeout so a dead server can't
// wedge the kernel, noac so external writers' changes are immediately
// visible.
func MountNetFS(ip string, port int, mountPath string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("mount_nfs",
			"-o", fmt.Sprintf("port=%d,mountport=%d,tcp,nolocks,vers=3,rsize=65536,wsize=65536,noac,soft,timeo=50,retrans=3,nobrowse", port, port),
			fmt.Sprintf("%s:/", ip),
			mountPath,
		)
	default:
		cmd = exec.Command("mount",
			"-t", "nfs",
			"-o", fmt.Sprintf("port=%d,mountport=%d,tcp,nolock,vers=3,rsize=65536,wsize=65536,noac,soft,timeo=50,retrans=3", port, port),
			fmt.Sprintf("%s:/", ip),
			mountPath,
		)
	}
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("nfs mount failed: %w: %s", err, string(output))
	}
	return nil
}

// UnmountNetFS unmounts mountPath, forcing if a normal unmount fails.
func UnmountNetFS(mountPath string) error {
	output, err := exec.Command("umount", mountPath).CombinedOutput()
	if err == nil {
		return nil
	}
	log.Warnf("daemon: umount %s failed (%v: %s), retrying with force", mountPath, err, string(output))
	output, ferr := exec.Command("umount", "-f", mountPath).CombinedOutput()
	if ferr != nil {
		return fmt.Errorf("umount -f failed: %w: %s", ferr, string(output))
	}
	return nil
}
