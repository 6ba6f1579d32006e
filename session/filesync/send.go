package filesync

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/tonistiigi/fsutil/types"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/forgekit/forge/session"
)

// dataChunkSize is the largest DATA payload sent for one file chunk.
const dataChunkSize = 32 * 1024

// sender drives the server role of one DiffCopy conversation: announce
// every entry with a densely numbered STAT, serve file bytes on REQ,
// and answer the peer's FIN with its own.
type sender struct {
	stream session.Stream

	// fileMap holds only entries announced with regular-file modes;
	// directories and symlinks consume ids but are never requestable.
	fileMap map[uint32]string
}

func serveDiffCopy(ctx context.Context, stream session.Stream, dir SyncedDir, followPaths []string) error {
	s := &sender{stream: stream, fileMap: map[uint32]string{}}
	if err := s.announce(dir, followPaths); err != nil {
		return err
	}
	return s.serve(ctx)
}

func (s *sender) announce(dir SyncedDir, followPaths []string) error {
	id := uint32(0)
	err := walkDir(dir.Dir, dir.Excludes, followPaths, func(rel string, stat *types.Stat) error {
		if err := s.writePacket(&types.Packet{Type: types.PACKET_STAT, Stat: stat, ID: id}); err != nil {
			return err
		}
		if os.FileMode(stat.Mode).IsRegular() {
			s.fileMap[id] = filepath.Join(dir.Dir, filepath.FromSlash(rel))
		}
		id++
		return nil
	})
	if err != nil {
		return err
	}
	// An empty STAT closes the announce phase.
	return s.writePacket(&types.Packet{Type: types.PACKET_STAT})
}

func (s *sender) serve(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		payload, err := s.stream.ReadFrame()
		if err == io.EOF {
			// The peer closed its write half without FIN: a graceful
			// abort. Emit nothing further.
			return nil
		}
		if err != nil {
			return err
		}
		var pkt types.Packet
		if err := pkt.Unmarshal(payload); err != nil {
			return status.Errorf(codes.InvalidArgument, "malformed packet: %v", err)
		}
		switch pkt.Type {
		case types.PACKET_REQ:
			if err := s.sendFile(pkt.ID); err != nil {
				return err
			}
		case types.PACKET_FIN:
			return s.writePacket(&types.Packet{Type: types.PACKET_FIN})
		default:
			return status.Errorf(codes.InvalidArgument, "unexpected %s packet (id %d)", pkt.Type, pkt.ID)
		}
	}
}

func (s *sender) sendFile(id uint32) error {
	path, ok := s.fileMap[id]
	if !ok {
		return status.Errorf(codes.InvalidArgument, "REQ for id %d, which is not a regular file", id)
	}
	f, err := os.Open(path)
	if err != nil {
		return status.Errorf(codes.Internal, "opening %s: %v", path, err)
	}
	defer f.Close()

	buf := make([]byte, dataChunkSize)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			if werr := s.writePacket(&types.Packet{Type: types.PACKET_DATA, ID: id, Data: buf[:n]}); werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return status.Errorf(codes.Internal, "reading %s: %v", path, err)
		}
	}
	// An empty DATA marks end-of-file for this id; the conversation
	// itself stays open until FIN.
	return s.writePacket(&types.Packet{Type: types.PACKET_DATA, ID: id})
}

func (s *sender) writePacket(p *types.Packet) error {
	b, err := p.Marshal()
	if err != nil {
		return err
	}
	return s.stream.WriteFrame(b)
}
