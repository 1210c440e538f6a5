package controlapi

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacketSize(t *testing.T) {
	// tag, query id, five assignments of five fields and the cost
	assert.Equal(t, 4+4+5*5*4+8, PacketSize)
}

func TestWritePacket_Layout(t *testing.T) {
	tasks := NewTasksToExecute()
	tasks.Current = StageAssignment{StageID: 3, NumTasks: 12, TaskIDStart: 4, ChannelIDStart: 7, NumLocalTasks: 4}
	var buf bytes.Buffer
	require.NoError(t, WritePacket(&buf, NewPacket(Exec, 95, tasks)))
	b := buf.Bytes()
	require.Len(t, b, PacketSize)

	assert.Equal(t, uint32(Exec), binary.LittleEndian.Uint32(b[0:]))
	assert.Equal(t, uint32(95), binary.LittleEndian.Uint32(b[4:]))
	assert.Equal(t, uint32(3), binary.LittleEndian.Uint32(b[8:]))
	assert.Equal(t, uint32(12), binary.LittleEndian.Uint32(b[12:]))
	assert.Equal(t, uint32(7), binary.LittleEndian.Uint32(b[20:]))
	// To is unset
	assert.Equal(t, uint32(math.MaxUint32), binary.LittleEndian.Uint32(b[28:]))
}

func TestReadPacket(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WritePacket(&buf, CostPacket(12.5)))
	require.NoError(t, WritePacket(&buf, ControlPacket(Ack)))

	p, err := ReadPacket(&buf)
	require.NoError(t, err)
	assert.Equal(t, Cost, p.Tag)
	assert.Equal(t, 12.5, p.Cost)
	assert.Equal(t, NoStage, p.Tasks.From[2].StageID)

	_, err = ExpectPacket(&buf, Ack)
	require.NoError(t, err)

	_, err = ReadPacket(&buf)
	assert.Equal(t, io.EOF, err)
}

func TestReadPacket_Truncated(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WritePacket(&buf, ControlPacket(End)))
	truncated := bytes.NewReader(buf.Bytes()[:PacketSize-3])
	_, err := ReadPacket(truncated)
	assert.Error(t, err)
	assert.NotEqual(t, io.EOF, err)
}

func TestExpectPacket_WrongTag(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WritePacket(&buf, ControlPacket(Profiled)))
	_, err := ExpectPacket(&buf, Ack)
	assert.ErrorContains(t, err, "expected ACK packet but got PROFILED")
}

func TestTagString(t *testing.T) {
	assert.Equal(t, "END_CONT", EndCont.String())
	assert.Equal(t, "Tag(42)", Tag(42).String())
}
