package controlapi

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// PacketSize is the size in bytes of every packet on the wire.
var PacketSize = binary.Size(Packet{})

// WritePacket writes p as a fixed size little endian frame.
func WritePacket(w io.Writer, p *Packet) error {
	if err := binary.Write(w, binary.LittleEndian, p); err != nil {
		return errors.Wrapf(err, "writing %s packet", p.Tag)
	}
	return nil
}

// ReadPacket reads one frame. It returns io.EOF if the connection was closed cleanly between frames.
func ReadPacket(r io.Reader) (*Packet, error) {
	p := &Packet{}
	if err := binary.Read(r, binary.LittleEndian, p); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, errors.Wrap(err, "reading packet")
	}
	return p, nil
}

// ExpectPacket reads one frame and checks it carries tag.
func ExpectPacket(r io.Reader, tag Tag) (*Packet, error) {
	p, err := ReadPacket(r)
	if err != nil {
		return nil, err
	}
	if p.Tag != tag {
		return nil, errors.Errorf("expected %s packet but got %s", tag, p.Tag)
	}
	return p, nil
}
