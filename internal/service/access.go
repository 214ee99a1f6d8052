package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/keygate/keygate/internal/files"
	"github.com/keygate/keygate/internal/keys"
	"github.com/keygate/keygate/internal/model"
	"github.com/keygate/keygate/internal/store"
)

// User-facing login messages.
const (
	MsgInvalidKey = "Invalid key."
	MsgRevokedKey = "This key has been revoked. Please contact support."
)

// LoginOutcome is the result of a key submission.
type LoginOutcome int

const (
	// LoginEmpty means no key was submitted; nothing is logged.
	LoginEmpty LoginOutcome = iota
	LoginGranted
	LoginRevoked
	LoginInvalid
)

func (o LoginOutcome) String() string {
	switch o {
	case LoginGranted:
		return "granted"
	case LoginRevoked:
		return "revoked"
	case LoginInvalid:
		return "invalid"
	default:
		return "empty"
	}
}

// LoginResult describes what happened to a key submission. Key is set only
// when access was granted.
type LoginResult struct {
	Outcome LoginOutcome
	Key     string
	Message string
}

// AccessService is the gate in front of the file source.
type AccessService struct {
	store   *store.Store
	journal *Journal
	files   files.Source
	now     func() time.Time
}

// NewAccessService creates an AccessService serving src.
func NewAccessService(st *store.Store, journal *Journal, src files.Source) *AccessService {
	return &AccessService{store: st, journal: journal, files: src, now: time.Now}
}

// Authenticate checks a submitted key and records the attempt with its
// origin IP. Unknown and revoked keys are distinguished in the result.
func (s *AccessService) Authenticate(ctx context.Context, raw, ip string) (*LoginResult, error) {
	key := keys.Normalize(raw)
	if key == "" {
		return &LoginResult{Outcome: LoginEmpty}, nil
	}

	res := &LoginResult{}
	var action model.Action

	// No stored key is longer than MaxKeyLength.
	if len(key) > MaxKeyLength {
		err := s.journal.Record(ctx, &model.LogEntry{
			Action: model.ActionLoginFail,
			Key:    model.StringPtr(truncateKey(key)),
			IP:     model.StringPtr(ip),
		})
		if err != nil {
			return nil, err
		}
		res.Outcome, res.Message = LoginInvalid, MsgInvalidKey
		return res, nil
	}

	k, err := s.store.GetKey(ctx, key)
	switch {
	case errors.Is(err, store.ErrNotFound):
		res.Outcome, res.Message, action = LoginInvalid, MsgInvalidKey, model.ActionLoginFail
	case err != nil:
		return nil, err
	case k.IsActive():
		res.Outcome, res.Key, action = LoginGranted, key, model.ActionLoginSuccess
	default:
		res.Outcome, res.Message, action = LoginRevoked, MsgRevokedKey, model.ActionLoginRevoked
	}

	err = s.journal.Record(ctx, &model.LogEntry{
		Action: action,
		Key:    model.StringPtr(key),
		IP:     model.StringPtr(ip),
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Authorize re-checks a session key. Any failure, including a missing key,
// is reported as ErrForbidden without a reason.
func (s *AccessService) Authorize(ctx context.Context, sessionKey string) error {
	if sessionKey == "" {
		return ErrForbidden
	}
	k, err := s.store.GetKey(ctx, sessionKey)
	if errors.Is(err, store.ErrNotFound) {
		return ErrForbidden
	}
	if err != nil {
		return err
	}
	if !k.IsActive() {
		return ErrForbidden
	}
	return nil
}

// ListFiles returns the downloadable file names.
func (s *AccessService) ListFiles(ctx context.Context) ([]string, error) {
	return s.files.List(ctx)
}

// Fetch authorizes sessionKey, opens the named file, records DOWNLOAD and
// bumps the key's usage. A file that cannot be opened is not counted. The
// caller streams and closes the returned object.
func (s *AccessService) Fetch(ctx context.Context, sessionKey, name, ip string) (*files.Object, error) {
	if err := s.Authorize(ctx, sessionKey); err != nil {
		return nil, err
	}

	obj, err := s.files.Open(ctx, name)
	if err != nil {
		return nil, err
	}

	entry := &model.LogEntry{
		Action:   model.ActionDownload,
		Key:      model.StringPtr(sessionKey),
		Filename: model.StringPtr(name),
		IP:       model.StringPtr(ip),
	}
	err = s.store.WithTx(ctx, func(tx *store.Tx) error {
		if err := tx.AppendLog(ctx, entry); err != nil {
			return err
		}
		return tx.RecordUsage(ctx, sessionKey, s.now())
	})
	if err != nil {
		obj.Close()
		return nil, err
	}
	s.journal.notify(ctx, *entry)
	return obj, nil
}

// truncateKey cuts key to MaxKeyLength bytes without splitting a rune, so
// the audit column never overflows.
func truncateKey(key string) string {
	if len(key) <= MaxKeyLength {
		return key
	}
	return strings.ToValidUTF8(key[:MaxKeyLength], "")
}
