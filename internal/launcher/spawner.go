package launcher

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/Klingon-tech/night-consolidator/internal/donation"
	"github.com/Klingon-tech/night-consolidator/internal/log"
	"github.com/Klingon-tech/night-consolidator/pkg/types"
)

// Job is one donation run handed to a worker.
type Job struct {
	Destination string
	// Items holds one item for a single donation, or the whole batch.
	Items  []donation.Item
	Single bool
	// BatchFile already contains Items when Single is false.
	BatchFile    string
	ResultFile   string
	SessionLabel string
}

// Spawner starts a worker for a job and returns once it is running.
// The worker reports by writing the job's result file.
type Spawner interface {
	Spawn(ctx context.Context, job Job) error
}

// ExecSpawner runs each job as a detached `nightc donate` or
// `nightc donate-batch` child process.
type ExecSpawner struct {
	// Executable defaults to the running binary.
	Executable string
	// Args are global flags placed before the subcommand, e.g. --datadir.
	Args []string
	// Output receives the child's stdout and stderr. Nil means os.Stdout.
	Output io.Writer
}

// Command builds the child process for job without starting it.
func (s *ExecSpawner) Command(job Job) (*exec.Cmd, error) {
	exe := s.Executable
	if exe == "" {
		self, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("locate executable: %w", err)
		}
		exe = self
	}

	args := append([]string(nil), s.Args...)
	if job.Single {
		if len(job.Items) != 1 {
			return nil, fmt.Errorf("single job needs exactly one item, got %d", len(job.Items))
		}
		it := job.Items[0]
		args = append(args, "donate",
			"--source", it.SourceAddress,
			"--dest", job.Destination,
			"--signature", it.Signature,
			"--result", job.ResultFile,
		)
	} else {
		args = append(args, "donate-batch",
			"--dest", job.Destination,
			"--batchfile", job.BatchFile,
			"--result", job.ResultFile,
		)
	}
	if job.SessionLabel != "" {
		args = append(args, "--label", job.SessionLabel)
	}

	cmd := exec.Command(exe, args...)
	out := s.Output
	if out == nil {
		out = os.Stdout
	}
	cmd.Stdout = out
	cmd.Stderr = out
	return cmd, nil
}

// Spawn starts the child and reaps it in the background. The child is not
// tied to ctx; it outlives a launcher shutdown.
func (s *ExecSpawner) Spawn(_ context.Context, job Job) error {
	cmd, err := s.Command(job)
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}
	pid := cmd.Process.Pid
	log.Launcher.Info().Int("pid", pid).Bool("single", job.Single).Int("items", len(job.Items)).Msg("Worker started")

	go func() {
		if err := cmd.Wait(); err != nil {
			log.Launcher.Warn().Err(err).Int("pid", pid).Msg("Worker exited with error")
			return
		}
		log.Launcher.Debug().Int("pid", pid).Msg("Worker finished")
	}()
	return nil
}

// InlineSpawner runs jobs in a goroutine of the launcher process with a
// donation client.
type InlineSpawner struct {
	Client *donation.Client
	// Output receives the trace lines. Nil discards them.
	Output io.Writer

	wg sync.WaitGroup
}

// Spawn starts the job and returns immediately.
func (s *InlineSpawner) Spawn(ctx context.Context, job Job) error {
	if s.Client == nil {
		return fmt.Errorf("inline spawner has no donation client")
	}
	if job.Single && len(job.Items) != 1 {
		return fmt.Errorf("single job needs exactly one item, got %d", len(job.Items))
	}
	out := s.Output
	if out == nil {
		out = io.Discard
	}
	tracer := donation.NewWriterTracer(out)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		var result any
		if job.Single {
			it := job.Items[0]
			tracer.Log("Donating %s -> %s", types.Preview(it.SourceAddress, 40), types.Preview(job.Destination, 40))
			o := s.Client.DonateSingle(ctx, job.Destination, it.SourceAddress, it.Signature)
			tracer.Log("%s", o)
			result = donation.NewSingleResult(job.Destination, o)
		} else {
			outcomes, err := s.Client.DonateBatch(ctx, job.Destination, job.Items, donation.BatchHooks{Tracer: tracer})
			if err != nil {
				log.Launcher.Warn().Err(err).Int("processed", len(outcomes)).Msg("Inline batch interrupted")
			}
			result = donation.NewBatchResult(job.Destination, outcomes, len(job.Items))
		}
		if err := donation.WriteResult(job.ResultFile, result); err != nil {
			log.Launcher.Error().Err(err).Str("file", job.ResultFile).Msg("Failed to write result")
		}
	}()
	return nil
}

// Wait blocks until every spawned job has written its result.
func (s *InlineSpawner) Wait() {
	s.wg.Wait()
}
