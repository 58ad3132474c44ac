package acousticverify

import (
	"errors"

	"github.com/himanishpuri/AcousticVerify/pkg/acousticverify/fingerprint"
	"github.com/himanishpuri/AcousticVerify/pkg/acousticverify/similarity"
	"github.com/himanishpuri/AcousticVerify/pkg/acousticverify/storage"
)

var (
	ErrEmptyAudio           = errors.New("acousticverify: audio buffer is empty")
	ErrNoEmbeddings         = errors.New("acousticverify: no segment produced an embedding")
	ErrInvalidFingerprintID = errors.New("acousticverify: invalid fingerprint id")
	ErrNoEmbedder           = errors.New("acousticverify: no embedder configured")
	ErrInvalidConfig        = errors.New("acousticverify: invalid configuration")
	ErrNotFound             = storage.ErrNotFound
	ErrConfigMismatch       = fingerprint.ErrConfigMismatch
	ErrStoreUnavailable     = similarity.ErrStoreUnavailable
)
