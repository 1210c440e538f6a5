// Package controlapi defines the messages exchanged between the scheduler and executors over the
// control connection.
package controlapi

import "fmt"

// MaxInDegree is the number of upstream assignments carried by a TasksToExecute.
const MaxInDegree = 3

// NoStage marks an unused assignment, and the downstream of the sink.
const NoStage int32 = -1

// DatasetStage is the upstream stage id of a leaf, standing for the raw dataset.
const DatasetStage int32 = 0

type Tag int32

const (
	// Exec asks the executor to launch its local tasks of a stage.
	Exec Tag = iota
	// End tells the executor that no more stages follow. It replies Ack once its tasks finish.
	End
	// EndCont asks the executor to wait for its tasks, upload their profiles and reply Profiled.
	EndCont
	Ack
	Profiled
	// Cost carries the cost of the tasks an executor ran.
	Cost
	// TestPacket is logged by the executor and otherwise ignored.
	TestPacket
)

func (t Tag) String() string {
	switch t {
	case Exec:
		return "EXEC"
	case End:
		return "END"
	case EndCont:
		return "END_CONT"
	case Ack:
		return "ACK"
	case Profiled:
		return "PROFILED"
	case Cost:
		return "COST"
	case TestPacket:
		return "TESTPKT"
	}
	return fmt.Sprintf("Tag(%d)", int32(t))
}

// StageAssignment describes the tasks of one stage as seen from one executor.
type StageAssignment struct {
	StageID int32
	// Degree of the stage across all executors.
	NumTasks int32
	// Id of the first task run by this executor; its tasks are contiguous.
	TaskIDStart int32
	// First shared memory channel owned by this executor for the stage. Channel ids are opaque to the
	// scheduler; the transport on the executor maps them to buffers.
	ChannelIDStart int32
	// Number of tasks run by this executor. Zero on a neighbouring stage means the edge goes through the
	// external store.
	NumLocalTasks int32
}

// Unassigned is the zero value of a slot in TasksToExecute that carries no stage.
var Unassigned = StageAssignment{StageID: NoStage, ChannelIDStart: 1}

func (a StageAssignment) IsLocal() bool {
	return a.NumLocalTasks > 0
}

func (a StageAssignment) String() string {
	return fmt.Sprintf(
		"stage %d: %d tasks, local [%d, %d) on channels from %d",
		a.StageID, a.NumTasks, a.TaskIDStart, a.TaskIDStart+a.NumLocalTasks, a.ChannelIDStart,
	)
}

// TasksToExecute is everything an executor needs to run its tasks of a stage: its own assignment and those of
// its neighbours, which say where input comes from and output goes to.
type TasksToExecute struct {
	Current StageAssignment
	To      StageAssignment
	From    [MaxInDegree]StageAssignment
}

// NewTasksToExecute returns a TasksToExecute with every assignment unset.
func NewTasksToExecute() TasksToExecute {
	return TasksToExecute{
		Current: Unassigned,
		To:      Unassigned,
		From:    [MaxInDegree]StageAssignment{Unassigned, Unassigned, Unassigned},
	}
}

type Packet struct {
	Tag     Tag
	QueryID int32
	Tasks   TasksToExecute
	Cost    float64
}

func NewPacket(tag Tag, queryID int32, tasks TasksToExecute) *Packet {
	return &Packet{Tag: tag, QueryID: queryID, Tasks: tasks}
}

// ControlPacket returns a packet carrying only a tag.
func ControlPacket(tag Tag) *Packet {
	return &Packet{Tag: tag, Tasks: NewTasksToExecute()}
}

func CostPacket(cost float64) *Packet {
	return &Packet{Tag: Cost, Tasks: NewTasksToExecute(), Cost: cost}
}
