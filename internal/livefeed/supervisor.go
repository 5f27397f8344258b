package livefeed

import (
	"context"
	"log"
	"os"
	"os/exec"
	"time"

	"swingbot/internal/metrics"
)

// Supervisor keeps the feed subprocess alive. It restarts the process when
// it exits and also when the snapshot goes stale while the process is still
// running, which covers silent websocket stalls.
type Supervisor struct {
	binary     string
	args       []string
	reader     *Reader
	checkEvery time.Duration
	graceAfter time.Duration // stale tolerance before a forced restart
	restartGap time.Duration
}

// NewSupervisor creates a supervisor that launches binary with args and
// watches freshness through reader.
func NewSupervisor(binary string, args []string, reader *Reader) *Supervisor {
	return &Supervisor{
		binary:     binary,
		args:       args,
		reader:     reader,
		checkEvery: 5 * time.Second,
		graceAfter: 30 * time.Second,
		restartGap: 5 * time.Second,
	}
}

// Run launches and supervises the feed process until ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		s.runOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.restartGap):
			metrics.FeedRestarts.Inc()
		}
	}
}

// runOnce starts the process and blocks until it exits or the watchdog
// kills it.
func (s *Supervisor) runOnce(ctx context.Context) {
	cmd := exec.Command(s.binary, s.args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		log.Printf("[livefeed] feed start failed: %v", err)
		return
	}
	log.Printf("[livefeed] feed process started pid=%d", cmd.Process.Pid)

	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()

	started := time.Now()
	ticker := time.NewTicker(s.checkEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.stop(cmd)
			<-exited
			return
		case err := <-exited:
			log.Printf("[livefeed] feed process exited: %v", err)
			return
		case <-ticker.C:
			// Give a fresh process time to log in and connect before
			// judging staleness.
			if time.Since(started) < s.graceAfter {
				continue
			}
			if !s.reader.Fresh() {
				log.Printf("[livefeed] snapshot stale beyond %s, restarting feed", s.graceAfter)
				s.stop(cmd)
				<-exited
				return
			}
		}
	}
}

func (s *Supervisor) stop(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	if err := cmd.Process.Signal(os.Interrupt); err != nil {
		cmd.Process.Kill()
		return
	}
	// Escalate if the process ignores the interrupt.
	time.AfterFunc(10*time.Second, func() { cmd.Process.Kill() })
}
