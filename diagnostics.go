package bldtrack

import (
	"encoding/json"
	"io"
	"time"

	"github.com/fredrikaverpil/bldtrack/inputs"
)

// RunningOperation is a build operation running as part of a task action.
type RunningOperation struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	Parent  string    `json:"parent,omitempty"`
	Started time.Time `json:"started"`
}

// Diagnostics is a point-in-time view of a build tree for CI/CD integration.
type Diagnostics struct {
	ActiveWorkers int                `json:"activeWorkers"`
	Running       []RunningOperation `json:"running"`
	Inputs        []inputs.Input     `json:"inputs,omitempty"`
	Problems      []inputs.Problem   `json:"problems,omitempty"`
}

// Diagnostics captures the current state of the build tree.
// Running operations are sorted by identifier. Operations that finish while
// the view is being built are left out.
func (bt *BuildTree) Diagnostics() Diagnostics {
	running := bt.tracker.RunningTaskOperations()

	d := Diagnostics{
		ActiveWorkers: bt.tracker.ActiveWorkers(),
		Running:       make([]RunningOperation, 0, running.Len()),
		Inputs:        bt.inputs.Inputs(),
		Problems:      bt.inputs.Problems(),
	}
	for _, id := range running.IDs() {
		op, ok := bt.ops.Lookup(id)
		if !ok {
			continue
		}
		ro := RunningOperation{
			ID:      op.ID.String(),
			Name:    op.Name,
			Started: op.Started,
		}
		if !op.Parent.IsNil() {
			ro.Parent = op.Parent.String()
		}
		d.Running = append(d.Running, ro)
	}
	return d
}

// WriteDiagnostics writes the current diagnostics to w as indented JSON.
func (bt *BuildTree) WriteDiagnostics(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(bt.Diagnostics())
}
