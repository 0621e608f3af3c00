package tracestore

import (
	"encoding/binary"
	"time"

	"github.com/google/uuid"

	"github.com/fortiblox/X1-Scenario/internal/types"
	"github.com/fortiblox/X1-Scenario/pkg/scenario"
	"github.com/fortiblox/X1-Scenario/pkg/vm"
)

// Run describes one execution of a scenario file.
type Run struct {
	ID uuid.UUID

	// Seq orders runs by start.
	Seq uint64

	Scenario string
	Started  time.Time
	Finished time.Time

	// Steps is the number of steps recorded.
	Steps int

	// Failed is set when the run ended with an error.
	Failed bool
	Error  string
}

// Done reports whether Finish was called for the run.
func (r *Run) Done() bool {
	return !r.Finished.IsZero()
}

// Log is a stored contract event.
type Log struct {
	Address  types.Address
	Endpoint string
	Topics   [][]byte
	Data     []byte
}

// Step is a stored step record.
type Step struct {
	// Seq orders the steps of a run, external ones included.
	Seq uint64

	Scenario string
	Index    int
	ID       string
	Kind     string

	// HasResult is set for transaction steps.
	HasResult    bool
	Status       uint64
	Message      string
	Values       [][]byte
	Logs         []Log
	GasRemaining uint64

	NewAddress types.Address
	Failure    string
}

// ReturnCode returns the VM status of the step.
func (s *Step) ReturnCode() vm.ReturnCode {
	return vm.ReturnCode(s.Status)
}

func stepOf(rec scenario.StepRecord) Step {
	st := Step{
		Scenario:   rec.Scenario,
		Index:      rec.Index,
		ID:         rec.ID,
		Kind:       string(rec.Kind),
		NewAddress: rec.NewAddress,
		Failure:    rec.Failure,
	}
	if res := rec.Result; res != nil {
		st.HasResult = true
		st.Status = uint64(res.Status)
		st.Message = res.Message
		st.Values = res.Values
		st.GasRemaining = res.GasRemaining
		for _, l := range res.Logs {
			st.Logs = append(st.Logs, Log{Address: l.Address, Endpoint: l.Endpoint, Topics: l.Topics, Data: l.Data})
		}
	}
	return st
}

// Stats contains trace store statistics.
type Stats struct {
	RunCount  uint64
	StepCount uint64

	// DatabaseSize is the size of the database file in bytes.
	DatabaseSize int64
}

func encodeUint(v uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, v)
	return key
}

func decodeUint(b []byte) uint64 {
	if len(b) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}
