package edupage

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// SyncResult is the outcome of one account's sync pass.
type SyncResult struct {
	Account Account
	Payload json.RawMessage
	// ChallengeURL is set when the portal demanded human verification
	// and no solver could answer it.
	ChallengeURL string
	Error        error
	Fatal        bool
}

// Scheduler fans accounts out over a bounded worker pool. Each account gets
// its own Client (and therefore its own Session); workers share only the
// process-wide backoff controller.
type Scheduler struct {
	workChan     chan Account
	resultsChan  chan SyncResult
	wg           sync.WaitGroup
	workerCount  int
	proxyManager *ProxyManager
	backoff      *BackoffController
	solver       CaptchaSolver
	logger       Logger
	staggerDelay time.Duration
	cancel       context.CancelFunc
	fatalOnce    sync.Once
	stopped      atomic.Bool
}

// NewScheduler builds a scheduler. proxyManager and solver may be nil.
func NewScheduler(workerCount int, proxyManager *ProxyManager, solver CaptchaSolver, staggerDelay time.Duration, logger Logger) *Scheduler {
	if logger == nil {
		logger = NopLogger()
	}
	return &Scheduler{
		workChan:     make(chan Account, workerCount*2),
		resultsChan:  make(chan SyncResult, workerCount*2),
		workerCount:  workerCount,
		proxyManager: proxyManager,
		backoff:      NewBackoffController(0, 0),
		solver:       solver,
		logger:       logger,
		staggerDelay: staggerDelay,
	}
}

// Start launches the workers, staggered so the portal doesn't see a burst
// of simultaneous fresh sessions.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.runWorker(ctx)

		if s.staggerDelay > 0 && i < s.workerCount-1 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.staggerDelay):
			}
		}
	}
}

func (s *Scheduler) runWorker(ctx context.Context) {
	defer s.wg.Done()

	id := uuid.New().String()[:8]
	workerLog := PrefixLogger(id, s.logger)

	for {
		select {
		case <-ctx.Done():
			return
		case account, ok := <-s.workChan:
			if !ok {
				return
			}
			if s.stopped.Load() {
				return
			}

			result := s.syncAccount(ctx, workerLog, account)
			if result.Fatal {
				s.handleFatalError(result.Error)
				return
			}

			select {
			case s.resultsChan <- result:
			case <-ctx.Done():
				return
			}
		}
	}
}

// syncAccount runs one account through authenticate + protected call,
// replacing the session and retrying once on connection-level errors.
func (s *Scheduler) syncAccount(ctx context.Context, workerLog Logger, account Account) SyncResult {
	cfg := DefaultConfig(account.Subdomain)
	cfg.CaptchaSolver = s.solver
	if s.proxyManager != nil {
		proxy, display := s.proxyManager.Random()
		cfg.Proxy = proxy
		workerLog.Log("using proxy %s", display)
	}

	client, err := NewClient(cfg, s.backoff, workerLog)
	if err != nil {
		return SyncResult{Account: account, Error: err}
	}

	workerLog.Log("syncing %s@%s", account.Username, account.Subdomain)

	payload, auth, err := client.Sync(ctx, account.Username, account.Password)
	if err != nil && IsRetryableError(err) {
		workerLog.Log("connection error, replacing session: %v", err)
		if resetErr := client.ResetSession(); resetErr == nil {
			payload, auth, err = client.Sync(ctx, account.Username, account.Password)
		}
	}

	if err != nil {
		return SyncResult{Account: account, Error: err, Fatal: IsFatalError(err)}
	}

	if auth != nil && auth.Kind != AuthOK {
		result := SyncResult{Account: account}
		switch auth.Kind {
		case AuthCaptcha:
			result.ChallengeURL = auth.ChallengeURL
			result.Error = &AuthRejectedError{Reason: "captcha challenge pending: " + auth.Reason}
		case AuthRejected:
			result.Error = &AuthRejectedError{Reason: auth.Reason}
		case AuthTransient:
			result.Error = auth.Err
		}
		return result
	}

	return SyncResult{Account: account, Payload: payload}
}

func (s *Scheduler) handleFatalError(err error) {
	s.fatalOnce.Do(func() {
		s.stopped.Store(true)
		s.logger.Log("FATAL ERROR: %v - stopping all workers", err)

		if s.cancel != nil {
			s.cancel()
		}

		select {
		case s.resultsChan <- SyncResult{Fatal: true, Error: err}:
		default:
		}
	})
}

// Submit queues one account for syncing.
func (s *Scheduler) Submit(account Account) {
	s.workChan <- account
}

// Results returns the channel sync outcomes are delivered on.
func (s *Scheduler) Results() <-chan SyncResult {
	return s.resultsChan
}

// Close shuts the scheduler down and waits for workers to finish.
func (s *Scheduler) Close() {
	close(s.workChan)
	s.wg.Wait()
	close(s.resultsChan)
}
