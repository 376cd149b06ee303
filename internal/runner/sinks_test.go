package runner

import (
	"context"
	"errors"
	"testing"

	"github.com/skalibog/bsig/internal/config"
	"github.com/skalibog/bsig/internal/strategy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func sinkConfig(t *testing.T) config.Config {
	cfg := testConfig(t, strategy.NameSMACross)
	cfg.Storage.Enabled = true
	cfg.Results.SQLitePath = "results.db"
	return cfg
}

func TestOpenSinksClosesArchiveWhenJournalFails(t *testing.T) {
	archive := &mockArchive{}
	archive.On("Close").Return(nil).Once()

	_, closeSinks, err := OpenSinks(context.Background(), sinkConfig(t), Openers{
		Archive: func(context.Context, config.StorageConfig) (Archive, error) { return archive, nil },
		Journal: func(string) (Journal, error) { return nil, errors.New("диск только для чтения") },
	})
	assert.ErrorContains(t, err, "диск только для чтения")
	assert.Nil(t, closeSinks)
	archive.AssertExpectations(t)
}

func TestOpenSinksArchiveFailure(t *testing.T) {
	journalOpened := false
	_, _, err := OpenSinks(context.Background(), sinkConfig(t), Openers{
		Archive: func(context.Context, config.StorageConfig) (Archive, error) { return nil, errors.New("influx недоступен") },
		Journal: func(string) (Journal, error) {
			journalOpened = true
			return &memJournal{}, nil
		},
	})
	assert.ErrorContains(t, err, "influx недоступен")
	assert.False(t, journalOpened)
}

func TestOpenSinksWiresBoth(t *testing.T) {
	archive := &mockArchive{}
	archive.On("Close").Return(nil).Once()
	journal := &memJournal{}

	opts, closeSinks, err := OpenSinks(context.Background(), sinkConfig(t), Openers{
		Archive: func(context.Context, config.StorageConfig) (Archive, error) { return archive, nil },
		Journal: func(path string) (Journal, error) {
			assert.Equal(t, "results.db", path)
			return journal, nil
		},
	})
	require.NoError(t, err)
	require.Len(t, opts, 2)

	r, err := New(staticSource{}, sinkConfig(t), opts...)
	require.NoError(t, err)
	assert.Same(t, archive, r.archive)
	assert.Same(t, journal, r.journal)

	assert.NoError(t, closeSinks())
	archive.AssertExpectations(t)
	archive.AssertNotCalled(t, "SavePriceTable", mock.Anything, mock.Anything, mock.Anything)
}

func TestOpenSinksDisabled(t *testing.T) {
	cfg := testConfig(t, strategy.NameSMACross)
	cfg.Storage.Enabled = false
	cfg.Results.SQLitePath = ""

	opts, closeSinks, err := OpenSinks(context.Background(), cfg, Openers{})
	require.NoError(t, err)
	assert.Empty(t, opts)
	assert.NoError(t, closeSinks())
}
