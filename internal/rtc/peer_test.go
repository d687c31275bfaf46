package rtc

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/BioHazard786/Coderoom/internal/errs"
	"github.com/BioHazard786/Coderoom/internal/files"
	"github.com/pion/logging"
	"github.com/pion/transport/v3/vnet"
	"github.com/pion/webrtc/v4"
)

// writeIVF writes a small VP8 IVF file. Frame payloads are opaque to the
// packetizer so they need not decode.
func writeIVF(t *testing.T, frames int) string {
	t.Helper()
	var buf bytes.Buffer

	h := make([]byte, 32)
	copy(h, "DKIF")
	binary.LittleEndian.PutUint16(h[6:], 32)
	copy(h[8:], "VP80")
	binary.LittleEndian.PutUint16(h[12:], 64)
	binary.LittleEndian.PutUint16(h[14:], 48)
	binary.LittleEndian.PutUint32(h[16:], 30)
	binary.LittleEndian.PutUint32(h[20:], 1)
	binary.LittleEndian.PutUint32(h[24:], uint32(frames))
	buf.Write(h)

	for i := 0; i < frames; i++ {
		payload := bytes.Repeat([]byte{0x10, byte(i)}, 64)
		fh := make([]byte, 12)
		binary.LittleEndian.PutUint32(fh[0:], uint32(len(payload)))
		binary.LittleEndian.PutUint64(fh[4:], uint64(i))
		buf.Write(fh)
		buf.Write(payload)
	}

	path := filepath.Join(t.TempDir(), "cam.ivf")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// trickle forwards candidates to a peer once its remote description is set.
type trickle struct {
	mu      sync.Mutex
	target  *Peer
	pending []webrtc.ICECandidateInit
}

func (tr *trickle) add(c webrtc.ICECandidateInit) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if tr.target == nil {
		tr.pending = append(tr.pending, c)
		return
	}
	_ = tr.target.AddICECandidate(c)
}

func (tr *trickle) attach(p *Peer) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.target = p
	for _, c := range tr.pending {
		_ = p.AddICECandidate(c)
	}
	tr.pending = nil
}

func newVNetPair(t *testing.T) (*API, *API) {
	t.Helper()

	router, err := vnet.NewRouter(&vnet.RouterConfig{
		CIDR:          "10.0.0.0/24",
		LoggerFactory: logging.NewDefaultLoggerFactory(),
	})
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	t.Cleanup(func() { _ = router.Stop() })

	netA, err := vnet.NewNet(&vnet.NetConfig{StaticIPs: []string{"10.0.0.1"}})
	if err != nil {
		t.Fatalf("new net A: %v", err)
	}
	netB, err := vnet.NewNet(&vnet.NetConfig{StaticIPs: []string{"10.0.0.2"}})
	if err != nil {
		t.Fatalf("new net B: %v", err)
	}
	if err := router.AddNet(netA); err != nil {
		t.Fatalf("add net A: %v", err)
	}
	if err := router.AddNet(netB); err != nil {
		t.Fatalf("add net B: %v", err)
	}
	if err := router.Start(); err != nil {
		t.Fatalf("start router: %v", err)
	}

	quiet := logging.NewDefaultLoggerFactory()
	apiA, err := NewAPI(Settings{Net: netA, LoggerFactory: quiet})
	if err != nil {
		t.Fatalf("new api A: %v", err)
	}
	apiB, err := NewAPI(Settings{Net: netB, LoggerFactory: quiet})
	if err != nil {
		t.Fatalf("new api B: %v", err)
	}
	return apiA, apiB
}

func TestOpenLocalStreamWithoutSources(t *testing.T) {
	if _, err := OpenLocalStream("s", nil, nil); !errors.Is(err, errs.ErrMediaUnavailable) {
		t.Fatalf("err=%v, want ErrMediaUnavailable", err)
	}
	var s *LocalStream
	if s.Track(webrtc.RTPCodecTypeVideo) != nil {
		t.Fatalf("nil stream returned a track")
	}
	s.Start(context.Background())
	s.Stop()
}

func TestPeersExchangeVideoOverVNet(t *testing.T) {
	apiA, apiB := newVNetPair(t)

	media, err := files.ValidateMedia(writeIVF(t, 60), files.KindVideo)
	if err != nil {
		t.Fatalf("validate ivf: %v", err)
	}
	local, err := OpenLocalStream("stream-a", &media, nil)
	if err != nil {
		t.Fatalf("open local stream: %v", err)
	}

	toA, toB := &trickle{}, &trickle{}
	connectedA := make(chan struct{}, 1)
	connectedB := make(chan struct{}, 1)
	tracks := make(chan *RemoteTrack, 4)

	a, err := apiA.NewPeer("b", local, Callbacks{
		OnCandidate: toB.add,
		OnState: func(s webrtc.PeerConnectionState) {
			if s == webrtc.PeerConnectionStateConnected {
				select {
				case connectedA <- struct{}{}:
				default:
				}
			}
		},
	})
	if err != nil {
		t.Fatalf("new peer A: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })

	b, err := apiB.NewPeer("a", nil, Callbacks{
		OnCandidate: toA.add,
		OnState: func(s webrtc.PeerConnectionState) {
			if s == webrtc.PeerConnectionStateConnected {
				select {
				case connectedB <- struct{}{}:
				default:
				}
			}
		},
		OnTrack: func(rt *RemoteTrack) { tracks <- rt },
	})
	if err != nil {
		t.Fatalf("new peer B: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })

	offer, err := a.Offer()
	if err != nil {
		t.Fatalf("offer: %v", err)
	}
	if err := b.SetRemoteDescription(offer); err != nil {
		t.Fatalf("B set remote: %v", err)
	}
	toB.attach(b)

	answer, err := b.Answer()
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if err := a.SetRemoteDescription(answer); err != nil {
		t.Fatalf("A set remote: %v", err)
	}
	toA.attach(a)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		local.Stop()
	})
	local.Start(ctx)

	for name, ch := range map[string]chan struct{}{"A": connectedA, "B": connectedB} {
		select {
		case <-ch:
		case <-time.After(15 * time.Second):
			t.Fatalf("peer %s never connected", name)
		}
	}

	select {
	case rt := <-tracks:
		if rt.PeerID != "a" || rt.StreamID != "stream-a" || rt.Kind != "video" {
			t.Fatalf("remote track=%+v", rt)
		}
		set := NewStreamSet()
		set.AddTrack(rt)
		if got := len(set.ForPeer("a")); got != 1 {
			t.Fatalf("streams from a=%d, want 1", got)
		}
	case <-time.After(15 * time.Second):
		t.Fatalf("B never received A's video track")
	}
}
