package camera

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/banshee-data/cabinet.report/internal/monitoring"
	"github.com/banshee-data/cabinet.report/internal/timeutil"
)

// handshakeTimeout bounds how long a fresh connection may take to identify
// itself before the server drops it.
const handshakeTimeout = 10 * time.Second

// FrameServer accepts producer connections, performs the identification
// handshake, and runs one Session per connection. At most one session per
// device id is live at a time; a new connection for a known device
// replaces the old one.
type FrameServer struct {
	addr     string
	config   SessionConfig
	detector Detector
	devices  DeviceDirectory
	emitter  *Emitter
	clock    timeutil.Clock

	mu       sync.Mutex
	listener net.Listener
	sessions map[string]*sessionHandle
}

type sessionHandle struct {
	session *Session
	cancel  context.CancelFunc
}

// NewFrameServer creates a server listening on addr once Serve is called.
func NewFrameServer(addr string, config SessionConfig, detector Detector,
	devices DeviceDirectory, emitter *Emitter, clock timeutil.Clock) *FrameServer {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &FrameServer{
		addr:     addr,
		config:   config,
		detector: detector,
		devices:  devices,
		emitter:  emitter,
		clock:    clock,
		sessions: make(map[string]*sessionHandle),
	}
}

// Serve listens and accepts until ctx is cancelled. Each connection runs
// in its own goroutine; a failure there never affects the accept loop or
// other connections.
func (fs *FrameServer) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", fs.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", fs.addr, err)
	}
	fs.mu.Lock()
	fs.listener = listener
	fs.mu.Unlock()

	monitoring.Logf("frame server listening on %s", listener.Addr())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				wg.Wait()
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				wg.Wait()
				return nil
			}
			monitoring.Logf("accept error: %v", err)
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			fs.handleConn(ctx, conn)
		}()
	}
}

// Addr returns the bound listen address, or empty before Serve.
func (fs *FrameServer) Addr() string {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.listener == nil {
		return ""
	}
	return fs.listener.Addr().String()
}

// handleConn owns one TCP connection from handshake to teardown.
func (fs *FrameServer) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	reader := NewMessageReader(conn, fs.config.MaxFrameBytes)

	conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	deviceID, err := reader.Handshake()
	if err != nil {
		monitoring.Logf("rejecting %s: handshake failed: %v", conn.RemoteAddr(), err)
		return
	}
	conn.SetReadDeadline(time.Time{})

	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Cancelling the session context closes the connection, which
	// unblocks any in-progress read.
	go func() {
		<-sessCtx.Done()
		conn.Close()
	}()

	session := newSession(deviceID, reader, fs.config, fs.detector, fs.devices, fs.emitter, fs.clock)
	fs.register(deviceID, session, cancel)
	defer fs.deregister(deviceID, session)

	if err := fs.devices.SetDeviceOnline(ctx, deviceID, true); err != nil {
		monitoring.Logf("device %s: failed to record online status: %v", deviceID, err)
	}
	monitoring.Logf("device %s connected from %s", deviceID, conn.RemoteAddr())

	err = session.run(sessCtx)
	switch {
	case err == nil:
		monitoring.Logf("device %s disconnected", deviceID)
	case errors.Is(err, context.Canceled):
		monitoring.Logf("device %s session closed", deviceID)
	default:
		monitoring.Logf("device %s session ended: %v", deviceID, err)
	}
}

// register installs the session for its device id, displacing any
// existing session for the same device. The displaced connection is
// cancelled; its goroutine finishes teardown on its own.
func (fs *FrameServer) register(deviceID string, session *Session, cancel context.CancelFunc) {
	fs.mu.Lock()
	old := fs.sessions[deviceID]
	fs.sessions[deviceID] = &sessionHandle{session: session, cancel: cancel}
	fs.mu.Unlock()

	if old != nil {
		monitoring.Logf("device %s reconnected, replacing previous session", deviceID)
		old.cancel()
	}
}

// deregister removes the session unless it has already been replaced.
func (fs *FrameServer) deregister(deviceID string, session *Session) {
	fs.mu.Lock()
	current, ok := fs.sessions[deviceID]
	if ok && current.session == session {
		delete(fs.sessions, deviceID)
	}
	stillOnline := fs.sessions[deviceID] != nil
	fs.mu.Unlock()

	if !stillOnline {
		// Best-effort status update during teardown; the parent context
		// may already be gone.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := fs.devices.SetDeviceOnline(ctx, deviceID, false); err != nil {
			monitoring.Logf("device %s: failed to record offline status: %v", deviceID, err)
		}
	}
}

// OnlineDevices returns the ids of currently connected devices, sorted.
func (fs *FrameServer) OnlineDevices() []string {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	ids := make([]string, 0, len(fs.sessions))
	for id := range fs.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// IsOnline reports whether the device has a live session.
func (fs *FrameServer) IsOnline(deviceID string) bool {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	_, ok := fs.sessions[deviceID]
	return ok
}

// SetDetection starts or stops detection for a connected device. Returns
// false when the device has no live session or its control queue is full.
func (fs *FrameServer) SetDetection(deviceID string, enabled bool) bool {
	fs.mu.Lock()
	handle, ok := fs.sessions[deviceID]
	fs.mu.Unlock()
	if !ok {
		return false
	}
	kind := controlStop
	if enabled {
		kind = controlStart
	}
	return handle.session.control(kind)
}

// RefreshBoundary asks a connected device's session to reload its boundary
// configuration. Returns false when the device is offline; a disconnected
// device picks up the new boundary on its next connection anyway.
func (fs *FrameServer) RefreshBoundary(deviceID string) bool {
	fs.mu.Lock()
	handle, ok := fs.sessions[deviceID]
	fs.mu.Unlock()
	if !ok {
		return false
	}
	return handle.session.control(controlRefreshBoundary)
}
