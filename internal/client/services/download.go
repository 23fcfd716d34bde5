package services

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/speakingcat21/filesoldier/internal/api"
	"github.com/speakingcat21/filesoldier/internal/client/client"
	"github.com/speakingcat21/filesoldier/internal/client/models"
	"github.com/speakingcat21/filesoldier/internal/common"
	"github.com/speakingcat21/filesoldier/internal/cryptox"
	"github.com/speakingcat21/filesoldier/internal/logging"
)

// State is the download session's position in the protocol. Transitions
// are strictly forward except that a transient transport failure after
// token acquisition returns the session to StateMetadataLoaded, because
// the remediation is a fresh token and a full re-fetch.
type State int

const (
	StateIdle State = iota
	StateMetadataLoaded
	StateTokenAcquired
	StateDecrypting
	StateComplete
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateMetadataLoaded:
		return "metadata_loaded"
	case StateTokenAcquired:
		return "token_acquired"
	case StateDecrypting:
		return "decrypting"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

var (
	// ErrLinkUnusable marks a link with neither a key fragment nor a
	// password wrapping. Nothing can ever decrypt such a record; this is
	// terminal by construction, not a transient condition.
	ErrLinkUnusable = errors.New("link carries no key fragment and no password wrapping")

	// ErrInvalidState is returned when a session operation is called out
	// of order. Each protocol step consumes the previous step's output,
	// so no step may be skipped.
	ErrInvalidState = errors.New("operation not valid in current session state")

	// ErrPasswordRequired is returned by UnlockWithFragment when the
	// record is password-protected.
	ErrPasswordRequired = errors.New("file is password protected")
)

// VerifyFunc produces an opaque human-verification pass token. The
// widget/UI driving the challenge lives outside the protocol core; the
// session only calls this when the record demands verification.
type VerifyFunc func(ctx context.Context) (string, error)

// DownloadSession drives the client half of the two-phase download
// protocol: load record, acquire key, request token, fetch ciphertext,
// decrypt, save, confirm. One session serves one download attempt chain;
// key material lives only in the session and is wiped on completion.
//
// Sessions are not safe for concurrent use. The protocol is inherently
// sequential, so there is nothing to parallelize.
type DownloadSession struct {
	client client.Client
	verify VerifyFunc
	rand   io.Reader
	now    func() time.Time
	log    logging.Logger

	state       State
	fileID      string
	record      *models.FileRecord
	key         []byte
	meta        *models.Metadata
	fingerprint string
	confirmErr  error
}

// NewDownloadSession builds a session in StateIdle. verify may be nil
// when the caller knows the record does not require verification.
func NewDownloadSession(c client.Client, rand io.Reader, verify VerifyFunc, log logging.Logger) *DownloadSession {
	if log == nil {
		log = logging.NewNop()
	}
	return &DownloadSession{
		client: c,
		verify: verify,
		rand:   rand,
		now:    time.Now,
		log:    log,
		state:  StateIdle,
	}
}

func (s *DownloadSession) State() State { return s.state }

func (s *DownloadSession) Record() *models.FileRecord { return s.record }

func (s *DownloadSession) Metadata() *models.Metadata { return s.meta }

// ConfirmError reports a swallowed confirmation failure after a
// successful Fetch. It never indicates a problem with the saved file.
func (s *DownloadSession) ConfirmError() error { return s.confirmErr }

func (s *DownloadSession) fail(err error) error {
	s.state = StateFailed
	cryptox.WipeBytes(s.key)
	s.key = nil
	return err
}

// LoadMetadata fetches the public record and checks the expiry and
// download counters. The check here is informational; the server repeats
// it authoritatively at token time, since state can change between page
// load and the user's action.
func (s *DownloadSession) LoadMetadata(ctx context.Context, fileID string) (*models.FileRecord, error) {
	if s.state != StateIdle {
		return nil, fmt.Errorf("%w: load metadata in %s", ErrInvalidState, s.state)
	}

	record, err := s.client.GetFileRecord(ctx, fileID)
	if err != nil {
		return nil, s.fail(err)
	}

	if record.Exhausted(s.now()) {
		if record.DownloadLimit > 0 && record.DownloadCount >= record.DownloadLimit {
			return nil, s.fail(common.ErrLimitReached)
		}
		return nil, s.fail(common.ErrFileExpired)
	}

	s.fileID = fileID
	s.record = record
	s.state = StateMetadataLoaded
	return record, nil
}

// NeedsPassword reports whether key acquisition must go through
// UnlockWithPassword.
func (s *DownloadSession) NeedsPassword() bool {
	return s.record != nil && s.record.PasswordProtected()
}

// UnlockWithPassword unwraps the file key with the supplied password and
// decrypts the metadata with the recovered key.
//
// A wrong password (cryptox.ErrIncorrectPassword) does not fail the
// session: the user may try another password, and nothing about the
// error reveals whether the password or the record was at fault.
func (s *DownloadSession) UnlockWithPassword(ctx context.Context, password []byte) (*models.Metadata, error) {
	if s.state != StateMetadataLoaded {
		return nil, fmt.Errorf("%w: unlock in %s", ErrInvalidState, s.state)
	}
	if s.record.Wrapping == nil {
		return nil, fmt.Errorf("file is not password protected")
	}

	key, err := cryptox.UnwrapKey(s.record.Wrapping, password)
	if err != nil {
		// Stays in StateMetadataLoaded; another attempt is allowed.
		return nil, err
	}

	var meta models.Metadata
	if err := cryptox.DecryptMetadata(key, s.record.EncMetadata, &meta); err != nil {
		// The unwrap authenticated, so the key is right; a broken
		// metadata blob is a corrupted record, which is terminal.
		cryptox.WipeBytes(key)
		return nil, s.fail(err)
	}

	// One fingerprint per session; the server rate-limits password
	// attempts by it before any ciphertext is transferred.
	fingerprint, err := s.newFingerprint()
	if err != nil {
		cryptox.WipeBytes(key)
		return nil, s.fail(err)
	}

	s.key = key
	s.meta = &meta
	s.fingerprint = fingerprint
	return s.meta, nil
}

func (s *DownloadSession) newFingerprint() (string, error) {
	b := make([]byte, 16)
	if _, err := io.ReadFull(s.rand, b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// UnlockWithFragment decodes the key from a URL fragment and decrypts
// the metadata. The fragment arrives as a plain parameter: the session
// never reads ambient browser-ish state.
//
// An empty fragment on a record without password wrapping is terminal
// (ErrLinkUnusable). A fragment that does not decode is terminal
// (cryptox.ErrInvalidKeyEncoding): the link is broken, not the password.
func (s *DownloadSession) UnlockWithFragment(ctx context.Context, fragment string) (*models.Metadata, error) {
	if s.state != StateMetadataLoaded {
		return nil, fmt.Errorf("%w: unlock in %s", ErrInvalidState, s.state)
	}

	if fragment == "" {
		if s.record.PasswordProtected() {
			return nil, ErrPasswordRequired
		}
		return nil, s.fail(ErrLinkUnusable)
	}

	key, err := cryptox.DecodeKeyTransport(fragment)
	if err != nil {
		return nil, s.fail(err)
	}

	var meta models.Metadata
	if err := cryptox.DecryptMetadata(key, s.record.EncMetadata, &meta); err != nil {
		cryptox.WipeBytes(key)
		return nil, s.fail(err)
	}

	s.key = key
	s.meta = &meta
	return s.meta, nil
}

// Fetch runs the second phase: request a single-use token, fetch the
// ciphertext, decrypt, hand the plaintext to save, and only then confirm
// the download so the server commits the counter increment.
//
// Requesting the token never moves the counter: an attacker who opens
// sessions without completing them exhausts nothing.
//
// Failure handling:
//   - rate limited: returned as *client.RateLimitError, session stays in
//     StateMetadataLoaded for a later retry;
//   - exhausted/expired at token time: terminal;
//   - transport failure fetching ciphertext: returned, session back to
//     StateMetadataLoaded (remediation is a new token, full re-fetch);
//   - authentication failure decrypting: terminal, never auto-retried;
//     the same key will fail the same way every time;
//   - confirmation failure: the user already has the file, so transport
//     errors are logged and swallowed (see ConfirmError); only a
//     server-reported token expiry is returned, distinctly, because the
//     caller may want to know the counter was not committed.
func (s *DownloadSession) Fetch(ctx context.Context, save func([]byte) error) error {
	if s.state != StateMetadataLoaded || s.key == nil {
		return fmt.Errorf("%w: fetch requires an unlocked session", ErrInvalidState)
	}

	tokenReq := &api.TokenRequest{}
	if s.record.PasswordProtected() {
		tokenReq.Fingerprint = s.fingerprint
	}
	if s.record.RequiresVerification {
		if s.verify == nil {
			return common.ErrVerificationFailed
		}
		pass, err := s.verify(ctx)
		if err != nil {
			return fmt.Errorf("%w: %v", common.ErrVerificationFailed, err)
		}
		tokenReq.VerificationToken = pass
	}

	grant, err := s.client.RequestDownloadToken(ctx, s.fileID, tokenReq)
	if err != nil {
		switch {
		case errors.Is(err, client.ErrRateLimited):
			// Terminal for this window only.
			return err
		case errors.Is(err, client.ErrExpired), errors.Is(err, client.ErrLimitReached), errors.Is(err, client.ErrNotFound):
			return s.fail(err)
		default:
			return err
		}
	}
	s.state = StateTokenAcquired

	blob, err := s.client.FetchBlob(ctx, grant.CiphertextURL)
	if err != nil {
		s.state = StateMetadataLoaded
		return fmt.Errorf("fetch ciphertext: %w", err)
	}

	s.state = StateDecrypting
	plaintext, err := cryptox.DecryptPayload(s.key, &cryptox.Envelope{IV: s.record.FileIV, Ciphertext: blob})
	if err != nil {
		return s.fail(err)
	}

	if err := save(plaintext); err != nil {
		return s.fail(fmt.Errorf("save plaintext: %w", err))
	}

	s.state = StateComplete
	cryptox.WipeBytes(s.key)
	s.key = nil

	if err := s.client.ConfirmDownload(ctx, grant.Token); err != nil {
		if errors.Is(err, client.ErrTokenExpired) {
			return err
		}
		s.confirmErr = err
		s.log.Warn(ctx, "download confirmation failed", "file_id", s.fileID, "error", err)
	}
	return nil
}
