package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"time"

	"ytup/internal/retry"
	"ytup/internal/youtube"
)

// State is the transfer session lifecycle position.
type State int

const (
	StateUninitiated State = iota
	StateSessionOpen
	StateUploading
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitiated:
		return "uninitiated"
	case StateSessionOpen:
		return "session-open"
	case StateUploading:
		return "uploading"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// maxAuthRetriesPerChunk bounds how many 401-refresh-resend cycles a single
// chunk may go through. Auth retries have their own ceiling so a refresh
// loop cannot eat the transient budget, and vice versa.
const maxAuthRetriesPerChunk = 2

// Uploader is the slice of the API client the session drives. Defined here
// so tests can substitute a scripted fake.
type Uploader interface {
	CreateUploadSession(ctx context.Context, meta *youtube.Metadata, size int64, mimeType string) (*youtube.UploadSession, error)
	UploadChunk(ctx context.Context, session *youtube.UploadSession, chunk io.Reader, offset, length int64) (*youtube.ChunkResult, error)
	QueryOffset(ctx context.Context, session *youtube.UploadSession) (*youtube.ChunkResult, error)
}

// Refresher renews the credential grant when the service answers 401
// mid-transfer.
type Refresher interface {
	Refresh(ctx context.Context, force bool) error
}

// Options configures a Session.
type Options struct {
	// ChunkSize in bytes; zero selects DefaultChunkSize.
	ChunkSize int64

	// Policy is the transient-error retry schedule, shared by initiation
	// and chunk uploads.
	Policy retry.Policy

	// Journal enables cross-restart resume when non-nil.
	Journal *Journal
}

// Session drives one end-to-end resumable upload: initiation, the chunk
// loop, and retry/refresh decisions. One Session uploads one file; sessions
// share no mutable state except the authorizer, so independent files could
// run concurrently.
type Session struct {
	client    Uploader
	refresher Refresher
	opts      Options
	logger    *slog.Logger

	state State

	// sleepFunc waits out backoff delays. Tests override it.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// NewSession creates a Session. A zero Options.Policy gets the default
// schedule.
func NewSession(client Uploader, refresher Refresher, opts Options, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}

	if opts.Policy.MaxRetries == 0 && opts.Policy.InitialBackoff == 0 {
		opts.Policy = retry.DefaultPolicy()
	}

	return &Session{
		client:    client,
		refresher: refresher,
		opts:      opts,
		logger:    logger,
		state:     StateUninitiated,
		sleepFunc: retry.Sleep,
	}
}

// State returns the session's current lifecycle position.
func (s *Session) State() State {
	return s.state
}

// Run uploads the file at path with the given (already validated) metadata
// and returns the created video resource. The file is held open read-only
// for the duration and released on any terminal outcome.
func (s *Session) Run(ctx context.Context, path string, meta *youtube.Metadata) (*youtube.Video, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("transfer: opening %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("transfer: stat %s: %w", path, err)
	}

	planner, err := NewPlanner(info.Size(), s.opts.ChunkSize)
	if err != nil {
		return nil, err
	}

	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	s.logger.Info("starting upload",
		slog.String("path", path),
		slog.Int64("size", info.Size()),
		slog.String("mime_type", mimeType),
	)

	session, journalID, err := s.openSession(ctx, path, planner, meta, mimeType)
	if err != nil {
		s.state = StateFailed
		return nil, err
	}

	s.state = StateSessionOpen

	video, err := s.uploadChunks(ctx, f, planner, session, journalID)
	if err != nil {
		s.state = StateFailed

		// A failed transfer's journal entry is useless once the retry
		// budget is spent on a dead session; keep it only for transient
		// exits (cancellation) where a rerun could resume.
		if journalID != "" && !resumableFailure(err) {
			s.dropJournalEntry(journalID)
		}

		return nil, err
	}

	s.state = StateCompleted

	if journalID != "" {
		s.dropJournalEntry(journalID)
	}

	s.logger.Info("upload complete",
		slog.String("video_id", video.ID),
	)

	return video, nil
}

// resumableFailure reports whether a rerun of the same file could pick the
// session back up: exhausted budgets and cancellations leave the server
// session intact, client rejections do not.
func resumableFailure(err error) bool {
	if retry.IsExhausted(err) {
		return true
	}

	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// openSession either resumes a journaled session for this file or initiates
// a fresh one. Returns the open session and the journal entry id ("" when
// journaling is disabled).
func (s *Session) openSession(
	ctx context.Context, path string, planner *Planner, meta *youtube.Metadata, mimeType string,
) (*youtube.UploadSession, string, error) {
	if s.opts.Journal != nil {
		session, id, ok, err := s.resumeFromJournal(ctx, path, planner)
		if err != nil {
			return nil, "", err
		}

		if ok {
			return session, id, nil
		}
	}

	session, err := s.initiate(ctx, meta, planner.Total(), mimeType)
	if err != nil {
		return nil, "", err
	}

	var journalID string

	if s.opts.Journal != nil {
		entry, recErr := s.opts.Journal.Record(ctx, path, planner.Total(), session.URI, 0)
		if recErr != nil {
			// Journaling is an optimization; a failed write must not kill
			// the transfer.
			s.logger.Warn("failed to record upload in resume journal",
				slog.String("error", recErr.Error()),
			)
		} else {
			journalID = entry.ID
		}
	}

	return session, journalID, nil
}

// resumeFromJournal looks for an interrupted upload of the same file and
// asks the server where it left off. A dead server session (expired URI)
// drops the entry and falls through to fresh initiation.
func (s *Session) resumeFromJournal(
	ctx context.Context, path string, planner *Planner,
) (*youtube.UploadSession, string, bool, error) {
	entry, err := s.opts.Journal.Pending(ctx, path, planner.Total())
	if err != nil || entry == nil {
		return nil, "", false, err
	}

	s.logger.Info("found interrupted upload, querying server offset",
		slog.String("journal_id", entry.ID),
		slog.Int64("journaled_offset", entry.Offset),
	)

	session := &youtube.UploadSession{URI: entry.SessionURI, Total: planner.Total()}

	res, err := s.client.QueryOffset(ctx, session)
	if err != nil {
		s.logger.Warn("journaled session no longer valid, re-initiating",
			slog.String("error", err.Error()),
		)

		s.dropJournalEntry(entry.ID)

		return nil, "", false, nil
	}

	if res.Done {
		// The server finished this upload in a previous run; nothing to
		// resume, and replaying metadata would duplicate the video.
		s.dropJournalEntry(entry.ID)

		return nil, "", false, nil
	}

	if err := planner.Advance(res.NextOffset); err != nil {
		return nil, "", false, err
	}

	s.logger.Info("resuming upload",
		slog.Int64("server_offset", res.NextOffset),
	)

	return session, entry.ID, true, nil
}

// initiate opens a resumable session, retrying transient failures and
// refreshing the grant once on 401.
func (s *Session) initiate(ctx context.Context, meta *youtube.Metadata, size int64, mimeType string) (*youtube.UploadSession, error) {
	var session *youtube.UploadSession

	retrier := retry.New(retry.KindInitiation, s.opts.Policy, s.logger)
	retrier.SetSleepFunc(s.sleepFunc)

	refreshed := false

	err := retrier.Do(ctx, youtube.IsTransient, func(ctx context.Context) error {
		sess, initErr := s.client.CreateUploadSession(ctx, meta, size, mimeType)
		if initErr != nil {
			// A 401 gets one refresh-and-retry before it is terminal.
			if youtube.IsAuthExpired(initErr) && !refreshed {
				refreshed = true

				if refErr := s.refresher.Refresh(ctx, false); refErr != nil {
					return refErr
				}

				sess, initErr = s.client.CreateUploadSession(ctx, meta, size, mimeType)
			}

			if initErr != nil {
				return initErr
			}
		}

		session = sess

		return nil
	})
	if err != nil {
		return nil, err
	}

	return session, nil
}

// uploadChunks runs the chunk loop until the server reports completion.
func (s *Session) uploadChunks(
	ctx context.Context, f *os.File, planner *Planner, session *youtube.UploadSession, journalID string,
) (*youtube.Video, error) {
	s.state = StateUploading

	// Per-chunk attempt counters, reset whenever the server confirms
	// progress.
	transientFailures := 0
	authRetries := 0

	for {
		offset, length, ok := planner.Next()
		if !ok {
			// All bytes confirmed but no completion response seen. The
			// offset query resolves whether the server finished.
			res, err := s.client.QueryOffset(ctx, session)
			if err != nil {
				return nil, err
			}

			if !res.Done {
				return nil, fmt.Errorf("transfer: server confirmed all %d bytes but reports offset %d", planner.Total(), res.NextOffset)
			}

			return res.Video, nil
		}

		res, err := s.sendChunk(ctx, f, session, offset, length)
		if err == nil {
			if res.Done {
				return res.Video, nil
			}

			if err := planner.Advance(res.NextOffset); err != nil {
				return nil, err
			}

			if res.NextOffset > offset {
				// Progress confirmed; the next chunk starts its own budget.
				transientFailures = 0
				authRetries = 0

				s.journalOffset(ctx, journalID, res.NextOffset)

				continue
			}

			// Accepted but stored nothing: treat as a transient failure so
			// a stalled server cannot loop us forever.
			err = fmt.Errorf("%w at offset %d", errNoProgress, offset)
		}

		if ctx.Err() != nil {
			return nil, fmt.Errorf("transfer: upload canceled: %w", ctx.Err())
		}

		switch {
		case youtube.IsAuthExpired(err):
			authRetries++
			if authRetries > maxAuthRetriesPerChunk {
				return nil, fmt.Errorf("transfer: chunk at %d still unauthorized after %d refreshes: %w", offset, maxAuthRetriesPerChunk, err)
			}

			s.logger.Warn("access token expired mid-transfer, refreshing",
				slog.Int64("offset", offset),
			)

			if refErr := s.refresher.Refresh(ctx, false); refErr != nil {
				return nil, refErr
			}

		case youtube.IsTransient(err) || errors.Is(err, errNoProgress):
			transientFailures++

			decision := s.opts.Policy.Decide(transientFailures - 1)
			if !decision.Retry {
				return nil, &retry.ExhaustedError{
					Kind:     retry.KindChunkUpload,
					Attempts: transientFailures,
					Err:      fmt.Errorf("at byte offset %d: %w", planner.Offset(), err),
				}
			}

			delay := decision.Delay
			if ra := retryAfterHint(err); ra > 0 {
				// The server knows its own congestion better than our
				// backoff curve does.
				delay = ra
			}

			s.logger.Warn("chunk upload failed, backing off",
				slog.Int64("offset", offset),
				slog.Int("attempt", transientFailures),
				slog.Duration("backoff", delay),
				slog.String("error", err.Error()),
			)

			if sleepErr := s.sleepFunc(ctx, delay); sleepErr != nil {
				return nil, fmt.Errorf("transfer: upload canceled: %w", sleepErr)
			}

			// After a transport-level failure the client cannot know how
			// many bytes landed; only the server's offset is authoritative.
			if isAmbiguous(err) {
				if syncErr := s.resync(ctx, planner, session, journalID); syncErr != nil {
					return nil, syncErr
				}
			}

		default:
			// Non-retryable rejection: malformed metadata, quota, etc.
			return nil, err
		}
	}
}

// sendChunk seeks to the range and streams it to the server. The section
// reader re-reads from disk on every retry, so a half-sent chunk never
// corrupts the next attempt.
func (s *Session) sendChunk(
	ctx context.Context, f *os.File, session *youtube.UploadSession, offset, length int64,
) (*youtube.ChunkResult, error) {
	chunk := io.NewSectionReader(f, offset, length)

	return s.client.UploadChunk(ctx, session, chunk, offset, length)
}

// resync replaces the planner's cursor with the server-confirmed offset
// after an ambiguous failure. A completed upload discovered here is not an
// error — the final chunk landed even though its response was lost; the
// outer loop's terminal query returns the video.
func (s *Session) resync(ctx context.Context, planner *Planner, session *youtube.UploadSession, journalID string) error {
	res, err := s.client.QueryOffset(ctx, session)
	if err != nil {
		// The probe itself failed; the next chunk attempt will retry from
		// the last confirmed offset, which is always safe.
		s.logger.Warn("offset query failed, resuming from last confirmed offset",
			slog.Int64("offset", planner.Offset()),
			slog.String("error", err.Error()),
		)

		return nil
	}

	if res.Done {
		return planner.Advance(planner.Total())
	}

	if err := planner.Advance(res.NextOffset); err != nil {
		return err
	}

	s.journalOffset(ctx, journalID, res.NextOffset)

	return nil
}

// errNoProgress marks a partial accept that confirmed no new bytes.
var errNoProgress = errors.New("transfer: server accepted chunk without progress")

// isAmbiguous reports whether the failure left the client unable to tell
// how many bytes the server received. HTTP error statuses are unambiguous
// (the server rejected the chunk); transport failures are not.
func isAmbiguous(err error) bool {
	if errors.Is(err, errNoProgress) {
		return false
	}

	var apiErr *youtube.APIError
	return !errors.As(err, &apiErr)
}

// retryAfterHint extracts the server-advised delay, if any.
func retryAfterHint(err error) time.Duration {
	var apiErr *youtube.APIError
	if errors.As(err, &apiErr) {
		return apiErr.RetryAfter
	}

	return 0
}

// journalOffset best-effort persists a confirmed offset.
func (s *Session) journalOffset(ctx context.Context, journalID string, offset int64) {
	if s.opts.Journal == nil || journalID == "" {
		return
	}

	if err := s.opts.Journal.UpdateOffset(ctx, journalID, offset); err != nil {
		s.logger.Warn("failed to update resume journal",
			slog.String("error", err.Error()),
		)
	}
}

// dropJournalEntry best-effort removes a journal entry on terminal outcomes.
func (s *Session) dropJournalEntry(id string) {
	if s.opts.Journal == nil || id == "" {
		return
	}

	// The transfer's context may already be canceled; deletion should
	// still happen.
	if err := s.opts.Journal.Delete(context.Background(), id); err != nil {
		s.logger.Warn("failed to delete resume journal entry",
			slog.String("error", err.Error()),
		)
	}
}
