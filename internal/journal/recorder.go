package journal

import (
	"errors"

	"github.com/aimat-lab/AutoSlurm/internal/chain"
)

// Recorder writes the events of one chain. The chain ID is taken from
// ChainStarted.
type Recorder struct {
	store   *Store
	chainID string
}

var _ chain.Recorder = (*Recorder)(nil)

var errNotStarted = errors.New("journal: chain not started")

func (r *Recorder) ChainStarted(info chain.ChainInfo) error {
	r.chainID = info.ID
	_, err := r.store.db.Exec(`
		INSERT INTO chains (id, template, tasks, max_resumes, dry_run, started_at, state)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		info.ID, info.Template, info.Tasks, int(info.MaxResumes), boolInt(info.DryRun),
		info.Started.UTC().Format(timeLayout), string(chain.StateInit))
	return err
}

func (r *Recorder) JobSubmitted(gen int, sb chain.SubmittedBatch) error {
	if r.chainID == "" {
		return errNotStarted
	}
	_, err := r.store.db.Exec(`
		INSERT INTO jobs (chain_id, generation, batch, job_id, script_path, slots, units, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.chainID, gen, sb.Batch.Index, nullString(sb.Handle.ID), nullString(sb.Handle.ScriptPath),
		joinInts(sb.Batch.Slots()), sb.Batch.Units, errString(sb.Err))
	if err != nil {
		return err
	}
	_, err = r.store.db.Exec(`UPDATE chains SET generations = MAX(generations, ?), state = ? WHERE id = ?`,
		gen+1, string(chain.StateSubmitted), r.chainID)
	return err
}

func (r *Recorder) ResumeDecided(gen int, d chain.ResumeDecision) error {
	if r.chainID == "" {
		return errNotStarted
	}
	_, err := r.store.db.Exec(`
		INSERT INTO resumes (chain_id, generation, slot, command, count, accepted)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.chainID, gen, d.Slot, d.Command, d.Count, boolInt(d.Accepted))
	return err
}

func (r *Recorder) ChainFinished(res *chain.Result) error {
	if r.chainID == "" {
		return errNotStarted
	}
	var finished interface{}
	if chain.IsTerminal(res.State) {
		finished = res.Finished.UTC().Format(timeLayout)
	}
	_, err := r.store.db.Exec(`
		UPDATE chains SET finished_at = ?, state = ?, generations = ?, status = ?, error = ?
		WHERE id = ?`,
		finished, string(res.State), len(res.Generations), res.ExitStatus(), errString(res.Err), r.chainID)
	return err
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func errString(err error) interface{} {
	if err == nil {
		return nil
	}
	return err.Error()
}
