package runtime

import (
	"chat-relay/errors"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"
)

func TestCensoredLoader_LoadAll(t *testing.T) {
	req := require.New(t)
	fsys := fstest.MapFS{
		"censored/en.txt":    {Data: []byte("badger\r\nsnake\n\n# comment\n")},
		"censored/fr.txt":    {Data: []byte("blaireau\nbadger\n")},
		"censored/README.md": {Data: []byte("ignored")},
	}

	data, err := NewCensoredLoader(fsys).LoadAll("censored")

	req.NoError(err)
	req.ElementsMatch([]string{"en", "fr"}, data.Languages)
	req.ElementsMatch([]string{"badger", "snake", "blaireau"}, data.Words)
}

func TestCensoredLoader_NoWords(t *testing.T) {
	req := require.New(t)
	fsys := fstest.MapFS{
		"censored/en.txt": {Data: []byte("\n  \n")},
	}

	_, err := NewCensoredLoader(fsys).LoadAll("censored")
	req.ErrorIs(err, errors.ErrEmptyWords)
}

func TestCensoredLoader_MissingDirectory(t *testing.T) {
	_, err := NewCensoredLoader(fstest.MapFS{}).LoadAll("censored")
	require.Error(t, err)
}
