package intercept

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"golang.org/x/sync/errgroup"

	"firestige.xyz/scanguard/internal/core"
)

// pcapng section header block type
var ngMagic = []byte{0x0A, 0x0D, 0x0D, 0x0A}

type packetReader interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
}

// ReplaySource feeds the packets of a capture file to a PacketFunc.
// Both pcap and pcapng files are read.
type ReplaySource struct {
	path     string
	workers  int
	capacity int
}

// NewReplaySource creates a replay of the file at path classified by
// workers goroutines.
func NewReplaySource(path string, workers, capacity int) *ReplaySource {
	if workers <= 0 {
		workers = 1
	}
	if capacity <= 0 {
		capacity = 1024
	}
	return &ReplaySource{path: path, workers: workers, capacity: capacity}
}

// Run reads the whole file, calls fn for every packet and returns the number
// of packets read. It stops early when ctx is done.
func (s *ReplaySource) Run(ctx context.Context, fn PacketFunc) (int, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return 0, fmt.Errorf("open capture: %w", err)
	}
	defer f.Close()

	r, link, err := openCapture(bufio.NewReader(f))
	if err != nil {
		return 0, fmt.Errorf("read capture %s: %w", s.path, err)
	}

	packets := make(chan core.RawPacket, s.capacity)
	var read int

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(packets)
		for {
			data, ci, err := r.ReadPacketData()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("read packet %d: %w", read+1, err)
			}
			read++

			raw := core.RawPacket{
				Data:       data,
				Timestamp:  ci.Timestamp,
				LinkType:   link,
				CaptureLen: uint32(ci.CaptureLength),
				OrigLen:    uint32(ci.Length),
			}
			select {
			case packets <- raw:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})
	g.Go(func() error {
		return serve(gctx, packets, fn, s.workers)
	})

	if err := g.Wait(); err != nil {
		return read, err
	}
	return read, nil
}

func openCapture(br *bufio.Reader) (packetReader, core.LinkType, error) {
	magic, err := br.Peek(4)
	if err != nil {
		return nil, 0, err
	}

	var (
		r  packetReader
		lt layers.LinkType
	)
	if string(magic) == string(ngMagic) {
		ng, err := pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
		if err != nil {
			return nil, 0, err
		}
		r, lt = ng, ng.LinkType()
	} else {
		pr, err := pcapgo.NewReader(br)
		if err != nil {
			return nil, 0, err
		}
		r, lt = pr, pr.LinkType()
	}

	link, err := LinkTypeOf(lt)
	if err != nil {
		return nil, 0, err
	}
	return r, link, nil
}
